package stdb

import (
	"strconv"
	"strings"
)

// Kind identifies the shape of an AlgebraicType. The numeric values are the
// tags used when a type is itself encoded as BSATN.
type Kind uint8

const (
	KindRef Kind = iota
	KindSum
	KindProduct
	KindArray
	KindString
	KindBool
	KindI8
	KindU8
	KindI16
	KindU16
	KindI32
	KindU32
	KindI64
	KindU64
	KindI128
	KindU128
	KindI256
	KindU256
	KindF32
	KindF64
	KindOption

	kindCount = int(KindOption) + 1
)

var kindNames = [kindCount]string{
	"ref", "sum", "product", "array", "string", "bool",
	"i8", "u8", "i16", "u16", "i32", "u32", "i64", "u64",
	"i128", "u128", "i256", "u256", "f32", "f64", "option",
}

func (k Kind) String() string {
	if int(k) < kindCount {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Ref addresses a type in a Typespace.
type Ref uint32

// AlgebraicType describes the shape of a value.
//
// Elements holds the fields of a product or the variants of a sum, Elem the
// element type of an array or the inner type of an option, and Ref the target
// of a reference.
type AlgebraicType struct {
	Kind     Kind
	Ref      Ref
	Elements []Element
	Elem     *AlgebraicType
}

// Element is a product field or a sum variant. Name may be empty.
type Element struct {
	Name string
	Type *AlgebraicType
}

var (
	BoolType   = &AlgebraicType{Kind: KindBool}
	I8Type     = &AlgebraicType{Kind: KindI8}
	U8Type     = &AlgebraicType{Kind: KindU8}
	I16Type    = &AlgebraicType{Kind: KindI16}
	U16Type    = &AlgebraicType{Kind: KindU16}
	I32Type    = &AlgebraicType{Kind: KindI32}
	U32Type    = &AlgebraicType{Kind: KindU32}
	I64Type    = &AlgebraicType{Kind: KindI64}
	U64Type    = &AlgebraicType{Kind: KindU64}
	I128Type   = &AlgebraicType{Kind: KindI128}
	U128Type   = &AlgebraicType{Kind: KindU128}
	I256Type   = &AlgebraicType{Kind: KindI256}
	U256Type   = &AlgebraicType{Kind: KindU256}
	F32Type    = &AlgebraicType{Kind: KindF32}
	F64Type    = &AlgebraicType{Kind: KindF64}
	StringType = &AlgebraicType{Kind: KindString}

	// UnitType is the empty product, the payload of fieldless variants.
	UnitType = &AlgebraicType{Kind: KindProduct}
)

func primitiveType(k Kind) *AlgebraicType {
	switch k {
	case KindBool:
		return BoolType
	case KindI8:
		return I8Type
	case KindU8:
		return U8Type
	case KindI16:
		return I16Type
	case KindU16:
		return U16Type
	case KindI32:
		return I32Type
	case KindU32:
		return U32Type
	case KindI64:
		return I64Type
	case KindU64:
		return U64Type
	case KindI128:
		return I128Type
	case KindU128:
		return U128Type
	case KindI256:
		return I256Type
	case KindU256:
		return U256Type
	case KindF32:
		return F32Type
	case KindF64:
		return F64Type
	case KindString:
		return StringType
	default:
		return nil
	}
}

func Field(name string, t *AlgebraicType) Element {
	return Element{name, t}
}

func Variant(name string, t *AlgebraicType) Element {
	return Element{name, t}
}

func Product(fields ...Element) *AlgebraicType {
	return &AlgebraicType{Kind: KindProduct, Elements: fields}
}

func Sum(variants ...Element) *AlgebraicType {
	return &AlgebraicType{Kind: KindSum, Elements: variants}
}

func ArrayOf(elem *AlgebraicType) *AlgebraicType {
	return &AlgebraicType{Kind: KindArray, Elem: elem}
}

func OptionOf(inner *AlgebraicType) *AlgebraicType {
	return &AlgebraicType{Kind: KindOption, Elem: inner}
}

func RefTo(r Ref) *AlgebraicType {
	return &AlgebraicType{Kind: KindRef, Ref: r}
}

func (t *AlgebraicType) IsInteger() bool {
	return t.Kind >= KindI8 && t.Kind <= KindU256
}

func (t *AlgebraicType) IsSigned() bool {
	switch t.Kind {
	case KindI8, KindI16, KindI32, KindI64, KindI128, KindI256:
		return true
	}
	return false
}

func (t *AlgebraicType) IsFloat() bool {
	return t.Kind == KindF32 || t.Kind == KindF64
}

func (t *AlgebraicType) IsPrimitive() bool {
	return t.Kind >= KindString && t.Kind <= KindF64
}

func (t *AlgebraicType) IsUnit() bool {
	return t.Kind == KindProduct && len(t.Elements) == 0
}

// FixedSize returns the encoded size of primitive numeric types, or -1.
func (t *AlgebraicType) FixedSize() int {
	switch t.Kind {
	case KindBool, KindI8, KindU8:
		return 1
	case KindI16, KindU16:
		return 2
	case KindI32, KindU32, KindF32:
		return 4
	case KindI64, KindU64, KindF64:
		return 8
	case KindI128, KindU128:
		return 16
	case KindI256, KindU256:
		return 32
	default:
		return -1
	}
}

// ElementNamed returns the position of the named field or variant, or -1.
func (t *AlgebraicType) ElementNamed(name string) int {
	for i, e := range t.Elements {
		if e.Name == name {
			return i
		}
	}
	return -1
}

func (t *AlgebraicType) Equal(o *AlgebraicType) bool {
	if t == o {
		return true
	}
	if t == nil || o == nil || t.Kind != o.Kind {
		return false
	}
	switch t.Kind {
	case KindRef:
		return t.Ref == o.Ref
	case KindProduct, KindSum:
		if len(t.Elements) != len(o.Elements) {
			return false
		}
		for i, e := range t.Elements {
			if e.Name != o.Elements[i].Name || !e.Type.Equal(o.Elements[i].Type) {
				return false
			}
		}
		return true
	case KindArray, KindOption:
		return t.Elem.Equal(o.Elem)
	default:
		return true
	}
}

func (t *AlgebraicType) String() string {
	var buf strings.Builder
	t.format(&buf)
	return buf.String()
}

func (t *AlgebraicType) format(buf *strings.Builder) {
	switch t.Kind {
	case KindRef:
		buf.WriteByte('&')
		buf.WriteString(strconv.FormatUint(uint64(t.Ref), 10))
	case KindProduct:
		buf.WriteByte('(')
		for i, e := range t.Elements {
			if i > 0 {
				buf.WriteString(", ")
			}
			if e.Name != "" {
				buf.WriteString(e.Name)
				buf.WriteString(": ")
			}
			e.Type.format(buf)
		}
		buf.WriteByte(')')
	case KindSum:
		buf.WriteByte('{')
		for i, e := range t.Elements {
			if i > 0 {
				buf.WriteString(" | ")
			}
			buf.WriteString(e.Name)
			if !e.Type.IsUnit() {
				buf.WriteString(": ")
				e.Type.format(buf)
			}
		}
		buf.WriteByte('}')
	case KindArray, KindOption:
		buf.WriteString(t.Kind.String())
		buf.WriteByte('<')
		t.Elem.format(buf)
		buf.WriteByte('>')
	default:
		buf.WriteString(t.Kind.String())
	}
}
