package stdb

import (
	"fmt"
	"strings"
)

type CmpOp uint8

const (
	CmpEq CmpOp = iota
	CmpNe
	CmpLt
	CmpLe
	CmpGt
	CmpGe
	cmpOpCount
)

var cmpOpNames = [cmpOpCount]string{"==", "!=", "<", "<=", ">", ">="}

func (op CmpOp) String() string {
	if op < cmpOpCount {
		return cmpOpNames[op]
	}
	return fmt.Sprintf("cmp(%d)", uint8(op))
}

type FilterKind uint8

const (
	FilterCmp FilterKind = iota
	FilterAnd
	FilterOr
	FilterNot
	filterKindCount
)

// Filter is a row predicate written against column names and Go values.
// Compile turns it into a FilterExpr for a particular table.
type Filter struct {
	kind  FilterKind
	op    CmpOp
	col   string
	value any
	args  []Filter
}

func ColEq(col string, value any) Filter {
	return ColCmp(col, CmpEq, value)
}

func ColCmp(col string, op CmpOp, value any) Filter {
	return Filter{kind: FilterCmp, op: op, col: col, value: value}
}

// And matches when every argument matches; an empty And matches everything.
func And(fs ...Filter) Filter {
	return Filter{kind: FilterAnd, args: fs}
}

// Or matches when any argument matches; an empty Or matches nothing.
func Or(fs ...Filter) Filter {
	return Filter{kind: FilterOr, args: fs}
}

func Not(f Filter) Filter {
	return Filter{kind: FilterNot, args: []Filter{f}}
}

func (f Filter) Compile(tbl *Table) (*FilterExpr, error) {
	switch f.kind {
	case FilterCmp:
		if f.op >= cmpOpCount {
			return nil, fmt.Errorf("%w: comparison operator %d", ErrInvalidTag, f.op)
		}
		col := tbl.columnsByName[f.col]
		if col == nil {
			return nil, fmt.Errorf("%w %q", ErrUnknownColumn, f.col)
		}
		raw, err := col.encodeValue(f.value)
		if err != nil {
			return nil, err
		}
		return &FilterExpr{Kind: FilterCmp, Op: f.op, Col: col.pos, Value: raw}, nil
	case FilterAnd, FilterOr, FilterNot:
		e := &FilterExpr{Kind: f.kind, Args: make([]*FilterExpr, len(f.args))}
		for i, a := range f.args {
			ae, err := a.Compile(tbl)
			if err != nil {
				return nil, err
			}
			e.Args[i] = ae
		}
		return e, nil
	default:
		return nil, fmt.Errorf("%w: filter kind %d", ErrInvalidTag, f.kind)
	}
}

// FilterExpr is the wire form of a filter, as the host receives it.
//
//	Filter = sum {
//	  cmp: (op: u8, col: u16, value: array<u8>),
//	  and: array<Filter>,
//	  or:  array<Filter>,
//	  not: Filter,
//	}
//
// The compared value holds the BSATN encoding of the column's type.
type FilterExpr struct {
	Kind  FilterKind
	Op    CmpOp
	Col   ColID
	Value []byte
	Args  []*FilterExpr
}

// FilterType adds the filter type to ts and returns a ref to it.
func FilterType(ts *Typespace) *AlgebraicType {
	if r, ok := ts.refByName("Filter"); ok {
		return RefTo(r)
	}
	r := ts.Add("Filter", nil)
	self := RefTo(r)
	ts.Types[r] = Sum(
		Variant("cmp", Product(
			Field("op", U8Type),
			Field("col", U16Type),
			Field("value", ArrayOf(U8Type)),
		)),
		Variant("and", ArrayOf(self)),
		Variant("or", ArrayOf(self)),
		Variant("not", self),
	)
	return self
}

const maxFilterDepth = 128

func (e *FilterExpr) MarshalBSATN(w *Writer) error {
	w.PutTag(uint8(e.Kind))
	switch e.Kind {
	case FilterCmp:
		w.PutU8(uint8(e.Op))
		w.PutU16(uint16(e.Col))
		w.PutBytes(e.Value)
	case FilterAnd, FilterOr:
		w.PutLen(len(e.Args))
		for _, a := range e.Args {
			if err := a.MarshalBSATN(w); err != nil {
				return err
			}
		}
	case FilterNot:
		if len(e.Args) != 1 {
			return fmt.Errorf("%w: not takes one argument, got %d", ErrLengthMismatch, len(e.Args))
		}
		return e.Args[0].MarshalBSATN(w)
	default:
		return fmt.Errorf("%w: filter kind %d", ErrInvalidTag, e.Kind)
	}
	return nil
}

func (e *FilterExpr) UnmarshalBSATN(r *Reader) error {
	return e.decode(r, 0)
}

func (e *FilterExpr) decode(r *Reader, depth int) error {
	if depth > maxFilterDepth {
		return dataErrf(r.Orig, r.Off(), ErrSizeMismatch, "filter nested deeper than %d", maxFilterDepth)
	}
	tag, err := r.Tag(int(filterKindCount))
	if err != nil {
		return err
	}
	*e = FilterExpr{Kind: FilterKind(tag)}
	switch e.Kind {
	case FilterCmp:
		op, err := r.Tag(int(cmpOpCount))
		if err != nil {
			return err
		}
		col, err := r.U16()
		if err != nil {
			return err
		}
		e.Op, e.Col = CmpOp(op), ColID(col)
		e.Value, err = r.Bytes()
		return err
	case FilterAnd, FilterOr:
		n, err := r.Len()
		if err != nil {
			return err
		}
		e.Args = make([]*FilterExpr, 0, r.capHint(n))
		for range n {
			a := new(FilterExpr)
			if err := a.decode(r, depth+1); err != nil {
				return err
			}
			e.Args = append(e.Args, a)
		}
	case FilterNot:
		a := new(FilterExpr)
		if err := a.decode(r, depth+1); err != nil {
			return err
		}
		e.Args = []*FilterExpr{a}
	}
	return nil
}

func (e *FilterExpr) String() string {
	var buf strings.Builder
	e.format(&buf)
	return buf.String()
}

func (e *FilterExpr) format(buf *strings.Builder) {
	switch e.Kind {
	case FilterCmp:
		fmt.Fprintf(buf, "col%d %v %s", e.Col, e.Op, hexstr(e.Value))
	case FilterNot:
		buf.WriteString("not(")
		e.Args[0].format(buf)
		buf.WriteByte(')')
	default:
		if e.Kind == FilterAnd {
			buf.WriteString("and(")
		} else {
			buf.WriteString("or(")
		}
		for i, a := range e.Args {
			if i > 0 {
				buf.WriteString(", ")
			}
			a.format(buf)
		}
		buf.WriteByte(')')
	}
}
