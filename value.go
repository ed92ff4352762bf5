package stdb

// Dynamic values, produced by Decode and accepted by Encode. Primitives use
// the Go types bool, int8..int64, uint8..uint64, float32, float64, string,
// I128, U128, I256 and U256. An array of u8 is a []byte.
type (
	// ProductValue holds field values in declaration order.
	ProductValue []any

	// ArrayValue holds the elements of an array of any type except u8.
	ArrayValue []any

	// SumValue is a variant tag plus its payload.
	SumValue struct {
		Tag   uint8
		Value any
	}

	// OptionValue is either None (Some == false) or a present Value.
	OptionValue struct {
		Some  bool
		Value any
	}
)

// Unit is the value of the empty product.
var Unit = ProductValue{}

var None = OptionValue{}

func Some(v any) OptionValue {
	return OptionValue{Some: true, Value: v}
}
