package stdb

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// BSATNTyper is implemented by types that describe their own algebraic type.
type BSATNTyper interface {
	BSATNType(ts *Typespace) *AlgebraicType
}

var (
	typerType       = reflect.TypeFor[BSATNTyper]()
	marshalerType   = reflect.TypeFor[BSATNMarshaler]()
	unmarshalerType = reflect.TypeFor[BSATNUnmarshaler]()
	u128Type        = reflect.TypeFor[U128]()
	i128Type        = reflect.TypeFor[I128]()
	u256Type        = reflect.TypeFor[U256]()
	i256Type        = reflect.TypeFor[I256]()
	byteType        = reflect.TypeFor[byte]()
)

type fieldInfo struct {
	name  string
	index []int
	typ   reflect.Type
}

var structFieldsCache sync.Map // reflect.Type -> []fieldInfo

// structFields lists the encoded fields of a struct in declaration order.
// Unexported fields and fields tagged `stdb:"-"` are skipped; `stdb:"name"`
// renames a field.
func structFields(rt reflect.Type) []fieldInfo {
	if v, ok := structFieldsCache.Load(rt); ok {
		return v.([]fieldInfo)
	}
	var fields []fieldInfo
	for i := range rt.NumField() {
		f := rt.Field(i)
		if !f.IsExported() {
			continue
		}
		name := f.Name
		if tag, ok := f.Tag.Lookup("stdb"); ok {
			tagName, _, _ := strings.Cut(tag, ",")
			if tagName == "-" {
				continue
			}
			if tagName != "" {
				name = tagName
			}
		}
		fields = append(fields, fieldInfo{name, f.Index, f.Type})
	}
	actual, _ := structFieldsCache.LoadOrStore(rt, fields)
	return actual.([]fieldInfo)
}

func selfTyped(rt reflect.Type) (BSATNTyper, bool) {
	if rt.Kind() != reflect.Pointer && rt.Kind() != reflect.Interface && rt.Implements(typerType) {
		return reflect.Zero(rt).Interface().(BSATNTyper), true
	}
	if rt.Kind() != reflect.Pointer && reflect.PointerTo(rt).Implements(typerType) {
		return reflect.New(rt).Interface().(BSATNTyper), true
	}
	return nil, false
}

// TypeOf returns the algebraic type of T, registering named types in ts.
func TypeOf[T any](ts *Typespace) (*AlgebraicType, error) {
	return ts.TypeOf(reflect.TypeFor[T]())
}

// TypeOf returns the algebraic type of rt. Struct types and registered sums
// are added to the typespace once and referred to by Ref.
func (ts *Typespace) TypeOf(rt reflect.Type) (*AlgebraicType, error) {
	if r, ok := ts.byGoType[rt]; ok {
		return RefTo(r), nil
	}
	if t, ok := selfTyped(rt); ok {
		return t.BSATNType(ts), nil
	}
	switch rt {
	case u128Type:
		return U128Type, nil
	case i128Type:
		return I128Type, nil
	case u256Type:
		return U256Type, nil
	case i256Type:
		return I256Type, nil
	}
	if info := sumOf(rt); info != nil {
		return ts.sumType(rt, info)
	}

	switch rt.Kind() {
	case reflect.Bool:
		return BoolType, nil
	case reflect.Int8:
		return I8Type, nil
	case reflect.Int16:
		return I16Type, nil
	case reflect.Int32:
		return I32Type, nil
	case reflect.Int64, reflect.Int:
		return I64Type, nil
	case reflect.Uint8:
		return U8Type, nil
	case reflect.Uint16:
		return U16Type, nil
	case reflect.Uint32:
		return U32Type, nil
	case reflect.Uint64, reflect.Uint:
		return U64Type, nil
	case reflect.Float32:
		return F32Type, nil
	case reflect.Float64:
		return F64Type, nil
	case reflect.String:
		return StringType, nil
	case reflect.Slice, reflect.Array:
		et, err := ts.TypeOf(rt.Elem())
		if err != nil {
			return nil, err
		}
		return ArrayOf(et), nil
	case reflect.Pointer:
		et, err := ts.TypeOf(rt.Elem())
		if err != nil {
			return nil, err
		}
		return OptionOf(et), nil
	case reflect.Struct:
		r := ts.reserve(rt, rt.Name())
		fields := structFields(rt)
		elems := make([]Element, len(fields))
		for i, f := range fields {
			ft, err := ts.TypeOf(f.typ)
			if err != nil {
				return nil, fmt.Errorf("%v.%s: %w", rt, f.name, err)
			}
			elems[i] = Field(f.name, ft)
		}
		ts.Types[r] = Product(elems...)
		return RefTo(r), nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedType, rt)
	}
}

func (ts *Typespace) sumType(rt reflect.Type, info *sumInfo) (*AlgebraicType, error) {
	r := ts.reserve(rt, info.name)
	variants := make([]Element, len(info.names))
	for i, name := range info.names {
		if info.enum {
			variants[i] = Variant(name, UnitType)
			continue
		}
		vt, err := ts.TypeOf(info.cases[i])
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", info.name, name, err)
		}
		variants[i] = Variant(name, vt)
	}
	ts.Types[r] = Sum(variants...)
	return RefTo(r), nil
}
