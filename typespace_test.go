package stdb

import (
	"errors"
	"testing"
)

type treeNode struct {
	Label    string
	Children []treeNode
	Parent   *treeNode
}

func TestTypespace_recursion(t *testing.T) {
	tests := []struct {
		name  string
		build func(ts *Typespace)
		err   error
	}{
		{"self product", func(ts *Typespace) {
			r := ts.Add("Loop", nil)
			ts.Types[r] = Product(Field("next", RefTo(r)))
		}, ErrDirectRecursion},
		{"through option", func(ts *Typespace) {
			r := ts.Add("List", nil)
			ts.Types[r] = Product(Field("head", I32Type), Field("tail", OptionOf(RefTo(r))))
		}, nil},
		{"through array", func(ts *Typespace) {
			r := ts.Add("Tree", nil)
			ts.Types[r] = Product(Field("kids", ArrayOf(RefTo(r))))
		}, nil},
		{"through sum", func(ts *Typespace) {
			r := ts.Add("Expr", nil)
			ts.Types[r] = Sum(Variant("lit", I64Type), Variant("neg", Product(Field("inner", RefTo(r)))))
		}, nil},
		{"mutual products", func(ts *Typespace) {
			a := ts.Add("A", nil)
			b := ts.Add("B", Product(Field("a", RefTo(a))))
			ts.Types[a] = Product(Field("b", RefTo(b)))
		}, ErrDirectRecursion},
		{"ref alias cycle", func(ts *Typespace) {
			a := ts.Add("A", nil)
			ts.Types[a] = RefTo(a)
		}, ErrDirectRecursion},
		{"dangling", func(ts *Typespace) {
			ts.Add("A", Product(Field("x", RefTo(5))))
		}, ErrDanglingRef},
		{"reserved", func(ts *Typespace) {
			ts.Add("A", nil)
		}, ErrDanglingRef},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := NewTypespace()
			tt.build(ts)
			err := ts.Validate()
			if tt.err == nil && err != nil {
				t.Fatalf("** Validate: %v", err)
			}
			if !errors.Is(err, tt.err) {
				t.Fatalf("** Validate: got %v, wanted %v", err, tt.err)
			}
		})
	}
}

func TestTypespace_recursiveGoType(t *testing.T) {
	ts := NewTypespace()
	ty := must(TypeOf[treeNode](ts))
	ensure(ts.Validate())
	deepEq(t, ts.Len(), 1)
	deepEq(t, ts.NameOf(ty.Ref), "treeNode")

	v := treeNode{Label: "root", Children: []treeNode{{Label: "a"}, {Label: "b"}}}
	data := must(Marshal(v))
	dyn := must(Decode(ts, ty, data))
	deepEq(t, must(Encode(ts, ty, dyn)), data)

	var back treeNode
	ensure(Unmarshal(data, &back))
	deepEq(t, back, v)
}

func TestSchema_DefineType(t *testing.T) {
	scm := NewSchema()
	r := scm.DefineType("List", func(self Ref) *AlgebraicType {
		return Sum(Variant("nil", UnitType), Variant("cons", Product(Field("head", StringType), Field("tail", RefTo(self)))))
	})
	deepEq(t, scm.Typespace().NameOf(r), "List")

	err := panicErr(func() {
		scm.DefineType("Loop", func(self Ref) *AlgebraicType {
			return Product(Field("x", U8Type), Field("again", RefTo(self)))
		})
	})
	var re *RegistrationError
	if !errors.As(err, &re) || !errors.Is(err, ErrDirectRecursion) || re.Table != "Loop" {
		t.Fatalf("** got %v, wanted a registration error wrapping %v", err, ErrDirectRecursion)
	}
	deepEq(t, scm.Typespace().Len(), 1)
}
