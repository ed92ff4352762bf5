package hostsim

import (
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/SierraSoftworks/connor"

	"github.com/andreyvit/stdb"
)

// rowFilter is a filter expression compiled into a connor condition over
// the row's referenced columns, keyed "c<col>".
type rowFilter struct {
	cond  map[string]any
	konst bool // result when cond is nil
	cols  []stdb.ColID
}

var connorOps = [...]string{
	stdb.CmpEq: "$eq",
	stdb.CmpNe: "$ne",
	stdb.CmpLt: "$lt",
	stdb.CmpLe: "$le",
	stdb.CmpGt: "$gt",
	stdb.CmpGe: "$ge",
}

// negated maps each comparison to its complement, so Not can be pushed down
// to the leaves.
var negated = [...]stdb.CmpOp{
	stdb.CmpEq: stdb.CmpNe,
	stdb.CmpNe: stdb.CmpEq,
	stdb.CmpLt: stdb.CmpGe,
	stdb.CmpLe: stdb.CmpGt,
	stdb.CmpGt: stdb.CmpLe,
	stdb.CmpGe: stdb.CmpLt,
}

func compileFilter(t *table, expr *stdb.FilterExpr) (*rowFilter, error) {
	c := filterCompiler{t: t, seen: make(map[stdb.ColID]bool)}
	cond, konst, err := c.compile(expr, false)
	if err != nil {
		return nil, err
	}
	return &rowFilter{cond: cond, konst: konst, cols: c.cols}, nil
}

type filterCompiler struct {
	t    *table
	cols []stdb.ColID
	seen map[stdb.ColID]bool
}

// compile returns either a condition or, when the expression folds to a
// constant, a nil condition and the constant.
func (c *filterCompiler) compile(e *stdb.FilterExpr, neg bool) (map[string]any, bool, error) {
	switch e.Kind {
	case stdb.FilterCmp:
		op := e.Op
		if neg {
			op = negated[op]
		}
		return c.leaf(op, e.Col, e.Value)
	case stdb.FilterNot:
		return c.compile(e.Args[0], !neg)
	case stdb.FilterAnd, stdb.FilterOr:
		conj := e.Kind == stdb.FilterAnd
		if neg {
			conj = !conj
		}
		// identity is the value of the empty conjunction or disjunction;
		// its negation absorbs the whole expression.
		identity := conj
		var parts []any
		for _, a := range e.Args {
			cond, konst, err := c.compile(a, neg)
			if err != nil {
				return nil, false, err
			}
			if cond == nil {
				if konst != identity {
					return nil, konst, nil
				}
				continue
			}
			parts = append(parts, cond)
		}
		switch len(parts) {
		case 0:
			return nil, identity, nil
		case 1:
			return parts[0].(map[string]any), false, nil
		}
		if conj {
			return map[string]any{"$and": parts}, false, nil
		}
		return map[string]any{"$or": parts}, false, nil
	default:
		return nil, false, stdb.ErrnoHostCallFailure
	}
}

func (c *filterCompiler) leaf(op stdb.CmpOp, col stdb.ColID, value []byte) (map[string]any, bool, error) {
	colType, err := c.columnType(col)
	if err != nil {
		return nil, false, err
	}
	v, err := stdb.Decode(c.t.ts, colType, value)
	if err != nil {
		return nil, false, stdb.ErrnoBsatnDecodeError
	}
	s, numeric := scalarize(v, value)
	if !numeric && op != stdb.CmpEq && op != stdb.CmpNe {
		return nil, false, fmt.Errorf("%w: %v on non-numeric column %d", stdb.ErrnoHostCallFailure, op, col)
	}
	if !c.seen[col] {
		c.seen[col] = true
		c.cols = append(c.cols, col)
	}
	return map[string]any{colKey(col): map[string]any{connorOps[op]: s}}, false, nil
}

func (c *filterCompiler) columnType(col stdb.ColID) (*stdb.AlgebraicType, error) {
	elems := c.t.rowType.Elements
	if int(col) >= len(elems) {
		return nil, stdb.ErrnoNoSuchColumn
	}
	return elems[col].Type, nil
}

func colKey(col stdb.ColID) string {
	return "c" + strconv.Itoa(int(col))
}

func (f *rowFilter) match(t *table, row []byte) (bool, error) {
	if f.cond == nil {
		return f.konst, nil
	}
	data := make(map[string]any, len(f.cols))
	for _, col := range f.cols {
		raw, err := t.columnBytes(row, col)
		if err != nil {
			return false, stdb.ErrnoBsatnDecodeError
		}
		v, err := stdb.Decode(t.ts, t.rowType.Elements[col].Type, raw)
		if err != nil {
			return false, stdb.ErrnoBsatnDecodeError
		}
		data[colKey(col)], _ = scalarize(v, raw)
	}
	return connor.Match(f.cond, data)
}

// scalarize maps a decoded column value to something connor compares with
// the same order as the column type. Integers become int64, with u64 shifted
// by 2^63 so that order is kept; bools become 0 and 1. Values that have no
// such mapping compare by their encoding and only support equality.
func scalarize(v any, raw []byte) (s any, numeric bool) {
	switch v := v.(type) {
	case bool:
		if v {
			return int64(1), true
		}
		return int64(0), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		return int64(v ^ 1<<63), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case string:
		return v, false
	default:
		return "x" + hex.EncodeToString(raw), false
	}
}
