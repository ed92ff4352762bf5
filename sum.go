package stdb

import (
	"reflect"
	"sync"
)

type sumInfo struct {
	name  string
	typ   reflect.Type
	enum  bool
	names []string
	cases []reflect.Type
	tags  map[reflect.Type]uint8
}

var sumRegistry sync.Map // reflect.Type -> *sumInfo

func sumOf(rt reflect.Type) *sumInfo {
	if v, ok := sumRegistry.Load(rt); ok {
		return v.(*sumInfo)
	}
	return nil
}

// SumCase is one variant of a sum registered with RegisterSum.
type SumCase struct {
	name string
	typ  reflect.Type
}

// Case declares a variant whose payload is a T. T must implement the sum's
// interface with value receivers.
func Case[T any](name string) SumCase {
	return SumCase{name, reflect.TypeFor[T]()}
}

// RegisterSum makes interface type S encodable as a sum. The variant tag is the
// position of the case in the list. Registering the same S again is a no-op.
func RegisterSum[S any](name string, cases ...SumCase) {
	st := reflect.TypeFor[S]()
	if st.Kind() != reflect.Interface {
		panic(regErrf(name, "", ErrUnsupportedType, "sum type %v must be an interface", st))
	}
	if len(cases) == 0 || len(cases) > 256 {
		panic(regErrf(name, "", ErrUnsupportedType, "sum must have 1 to 256 variants, got %d", len(cases)))
	}
	info := &sumInfo{
		name: name,
		typ:  st,
		tags: make(map[reflect.Type]uint8, len(cases)),
	}
	for i, c := range cases {
		switch c.typ.Kind() {
		case reflect.Pointer, reflect.Interface:
			panic(regErrf(name, c.name, ErrUnsupportedType, "variant payload %v must be a concrete non-pointer type", c.typ))
		}
		if !c.typ.Implements(st) {
			panic(regErrf(name, c.name, ErrUnsupportedType, "%v does not implement %v", c.typ, st))
		}
		if _, dup := info.tags[c.typ]; dup {
			panic(regErrf(name, c.name, ErrUnsupportedType, "%v is used by two variants", c.typ))
		}
		info.tags[c.typ] = uint8(i)
		info.names = append(info.names, c.name)
		info.cases = append(info.cases, c.typ)
	}
	sumRegistry.LoadOrStore(st, info)
}

// RegisterEnum makes E encodable as a sum of fieldless variants whose tag is
// the numeric value of E.
func RegisterEnum[E ~uint8](name string, variants ...string) {
	et := reflect.TypeFor[E]()
	if len(variants) == 0 || len(variants) > 256 {
		panic(regErrf(name, "", ErrUnsupportedType, "enum must have 1 to 256 variants, got %d", len(variants)))
	}
	info := &sumInfo{
		name:  name,
		typ:   et,
		enum:  true,
		names: append([]string(nil), variants...),
	}
	sumRegistry.LoadOrStore(et, info)
}

// VariantName returns the registered name of the variant held by v, which
// must be a value of a registered sum or enum.
func VariantName[S any](v S) string {
	info := sumOf(reflect.TypeFor[S]())
	if info == nil {
		return ""
	}
	if info.enum {
		i := int(reflect.ValueOf(v).Uint())
		if i < len(info.names) {
			return info.names[i]
		}
		return ""
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return ""
	}
	if tag, ok := info.tags[rv.Type()]; ok {
		return info.names[tag]
	}
	return ""
}
