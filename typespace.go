package stdb

import (
	"fmt"
	"reflect"
	"slices"
	"strings"
)

// Typespace is an ordered collection of types addressed by Ref. Named Go
// types (structs and registered sums) get one entry each, and every other
// type refers to them by Ref, which is how recursive types are expressed.
type Typespace struct {
	Types []*AlgebraicType
	Names []string

	byGoType map[reflect.Type]Ref
}

func NewTypespace() *Typespace {
	return &Typespace{}
}

func (ts *Typespace) Len() int {
	if ts == nil {
		return 0
	}
	return len(ts.Types)
}

// Add appends t under the given name (which may be empty) and returns its ref.
func (ts *Typespace) Add(name string, t *AlgebraicType) Ref {
	r := Ref(len(ts.Types))
	ts.Types = append(ts.Types, t)
	ts.Names = append(ts.Names, name)
	return r
}

func (ts *Typespace) reserve(rt reflect.Type, name string) Ref {
	if ts.byGoType == nil {
		ts.byGoType = make(map[reflect.Type]Ref)
	}
	r := ts.Add(name, nil)
	ts.byGoType[rt] = r
	return r
}

func (ts *Typespace) At(r Ref) (*AlgebraicType, error) {
	if ts == nil || int(r) >= len(ts.Types) || ts.Types[r] == nil {
		return nil, fmt.Errorf("%w: &%d", ErrDanglingRef, r)
	}
	return ts.Types[r], nil
}

// Resolve follows references until it reaches a non-reference type.
func (ts *Typespace) Resolve(t *AlgebraicType) (*AlgebraicType, error) {
	for n := 0; t.Kind == KindRef; n++ {
		if n > ts.Len() {
			return nil, fmt.Errorf("%w: reference cycle through &%d", ErrDirectRecursion, t.Ref)
		}
		var err error
		t, err = ts.At(t.Ref)
		if err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Validate checks that every reference resolves and that no type contains
// itself through a chain of product fields. Recursion through an array, an
// option or a sum is permitted.
func (ts *Typespace) Validate() error {
	for i, t := range ts.Types {
		if t == nil {
			return fmt.Errorf("%w: &%d is reserved but never defined", ErrDanglingRef, i)
		}
		if err := ts.checkRefs(t); err != nil {
			return fmt.Errorf("%s: %w", ts.describe(Ref(i)), err)
		}
	}
	for i := range ts.Types {
		if err := ts.checkDirect(ts.Types[i], []Ref{Ref(i)}); err != nil {
			return err
		}
	}
	return nil
}

func (ts *Typespace) checkRefs(t *AlgebraicType) error {
	switch t.Kind {
	case KindRef:
		_, err := ts.At(t.Ref)
		return err
	case KindProduct, KindSum:
		for _, e := range t.Elements {
			if err := ts.checkRefs(e.Type); err != nil {
				return err
			}
		}
	case KindArray, KindOption:
		return ts.checkRefs(t.Elem)
	}
	return nil
}

func (ts *Typespace) checkDirect(t *AlgebraicType, path []Ref) error {
	switch t.Kind {
	case KindRef:
		if slices.Contains(path, t.Ref) {
			var names []string
			for _, r := range append(path, t.Ref) {
				names = append(names, ts.describe(r))
			}
			return fmt.Errorf("%w: %s", ErrDirectRecursion, strings.Join(names, " -> "))
		}
		return ts.checkDirect(ts.Types[t.Ref], append(path, t.Ref))
	case KindProduct:
		for _, e := range t.Elements {
			if err := ts.checkDirect(e.Type, path); err != nil {
				return err
			}
		}
	}
	return nil
}

func (ts *Typespace) describe(r Ref) string {
	if int(r) < len(ts.Names) && ts.Names[r] != "" {
		return ts.Names[r]
	}
	return fmt.Sprintf("&%d", r)
}

// NameOf returns the name registered for r, or an empty string.
func (ts *Typespace) NameOf(r Ref) string {
	if ts == nil || int(r) >= len(ts.Names) {
		return ""
	}
	return ts.Names[r]
}

// RefOf returns the ref assigned to a Go type by TypeOf.
func (ts *Typespace) RefOf(rt reflect.Type) (Ref, bool) {
	r, ok := ts.byGoType[rt]
	return r, ok
}

func (ts *Typespace) refByName(name string) (Ref, bool) {
	i := slices.Index(ts.Names, name)
	return Ref(max(i, 0)), i >= 0
}
