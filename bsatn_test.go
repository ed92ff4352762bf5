package stdb

import (
	"encoding/hex"
	"errors"
	"testing"
)

func TestEncode_layout(t *testing.T) {
	point := Product(Field("x", I16Type), Field("y", I16Type))
	shape := Sum(Variant("none", UnitType), Variant("point", point))
	tests := []struct {
		name string
		ty   *AlgebraicType
		v    any
		hex  string
	}{
		{"bool", BoolType, true, "01"},
		{"u32", U32Type, uint32(5), "05000000"},
		{"i16", I16Type, int16(-2), "feff"},
		{"f64", F64Type, 1.0, "000000000000f03f"},
		{"u128", U128Type, U128From64(1), "01000000000000000000000000000000"},
		{"i128 -1", I128Type, I128FromInt64(-1), "ffffffffffffffffffffffffffffffff"},
		{"string", StringType, "hé", "0300000068c3a9"},
		{"bytes", ArrayOf(U8Type), []byte{1, 2}, "020000000102"},
		{"array", ArrayOf(U16Type), ArrayValue{uint16(1), uint16(2)}, "0200000001000200"},
		{"none", OptionOf(U8Type), None, "00"},
		{"some", OptionOf(U8Type), Some(uint8(7)), "0107"},
		{"unit", UnitType, Unit, ""},
		{"product", point, ProductValue{int16(1), int16(-1)}, "0100ffff"},
		{"sum unit", shape, SumValue{Tag: 0, Value: Unit}, "00"},
		{"sum point", shape, SumValue{Tag: 1, Value: ProductValue{int16(3), int16(4)}}, "0103000400"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Encode(nil, tt.ty, tt.v)
			if err != nil {
				t.Fatalf("** Encode: %v", err)
			}
			deepEq(t, hex.EncodeToString(data), tt.hex)

			v, err := Decode(nil, tt.ty, data)
			if err != nil {
				t.Fatalf("** Decode: %v", err)
			}
			deepEq(t, must(Encode(nil, tt.ty, v)), data)
		})
	}
}

func TestEncode_mismatch(t *testing.T) {
	tests := []struct {
		ty *AlgebraicType
		v  any
	}{
		{U8Type, uint16(1)},
		{StringType, []byte("x")},
		{OptionOf(U8Type), uint8(1)},
		{Product(Field("a", U8Type)), ProductValue{}},
		{Sum(Variant("a", UnitType)), SumValue{Tag: 1, Value: Unit}},
	}
	for _, tt := range tests {
		_, err := Encode(nil, tt.ty, tt.v)
		if !errors.Is(err, ErrTypeMismatch) {
			t.Errorf("** Encode(%v, %#v) = %v, wanted %v", tt.ty, tt.v, err, ErrTypeMismatch)
		}
	}
}

func TestDecode_rejects(t *testing.T) {
	shape := Sum(Variant("a", U8Type), Variant("b", U8Type))
	tests := []struct {
		name string
		ty   *AlgebraicType
		hex  string
		want error
	}{
		{"discriminant past variants", shape, "0201", ErrInvalidTag},
		{"option tag 2", OptionOf(U8Type), "0201", ErrInvalidTag},
		{"bool 2", BoolType, "02", ErrInvalidBool},
		{"invalid utf8", StringType, "01000000ff", ErrInvalidUTF8},
		{"short", U64Type, "01020304", ErrSizeMismatch},
		{"array longer than input", ArrayOf(U32Type), "ffffff7f", ErrSizeMismatch},
		{"trailing", U8Type, "0102", ErrTrailingBytes},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(nil, tt.ty, must(hex.DecodeString(tt.hex)))
			if !errors.Is(err, tt.want) {
				t.Fatalf("** got %v, wanted %v", err, tt.want)
			}
		})
	}
}

func TestColumnBytes(t *testing.T) {
	ts := NewTypespace()
	inner := ts.Add("Inner", Product(Field("tags", ArrayOf(StringType)), Field("flag", BoolType)))
	row := Product(
		Field("id", U32Type),
		Field("name", StringType),
		Field("inner", RefTo(inner)),
		Field("maybe", OptionOf(I64Type)),
		Field("last", U8Type),
	)
	v := ProductValue{
		uint32(1),
		"Ann",
		ProductValue{ArrayValue{"a", "bc"}, true},
		Some(int64(-1)),
		uint8(9),
	}
	data := must(Encode(ts, row, v))

	deepEq(t, hex.EncodeToString(must(ColumnBytes(ts, row, data, 0))), "01000000")
	deepEq(t, hex.EncodeToString(must(ColumnBytes(ts, row, data, 1))), "03000000416e6e")
	deepEq(t, hex.EncodeToString(must(ColumnBytes(ts, row, data, 3))), "01ffffffffffffffff")
	deepEq(t, hex.EncodeToString(must(ColumnBytes(ts, row, data, 4))), "09")

	if _, err := ColumnBytes(ts, row, data, 5); !errors.Is(err, ErrUnknownColumn) {
		t.Errorf("** got %v, wanted %v", err, ErrUnknownColumn)
	}
	if _, err := ColumnBytes(ts, row, data[:10], 4); !errors.Is(err, ErrSizeMismatch) {
		t.Errorf("** got %v, wanted %v", err, ErrSizeMismatch)
	}
}

func TestSkip_matchesDecode(t *testing.T) {
	ty := Product(
		Field("a", ArrayOf(OptionOf(StringType))),
		Field("b", Sum(Variant("x", F32Type), Variant("y", ArrayOf(BoolType)))),
	)
	v := ProductValue{
		ArrayValue{Some("p"), None, Some("")},
		SumValue{Tag: 1, Value: ArrayValue{true, false}},
	}
	data := must(Encode(nil, ty, v))
	r := NewReader(append(data, 0xEE))
	ensure(Skip(r, nil, ty))
	deepEq(t, r.Remaining(), 1)

	// a bad bool inside a fixed-size array is still caught
	r = NewReader([]byte{1, 0, 0, 0, 7})
	if err := Skip(r, nil, ArrayOf(BoolType)); !errors.Is(err, ErrInvalidBool) {
		t.Errorf("** got %v, wanted %v", err, ErrInvalidBool)
	}
}
