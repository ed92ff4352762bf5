package stdb

import (
	"fmt"
	"math"
	"reflect"
)

// TableAccess controls whether clients outside the module may read a table.
type TableAccess uint8

const (
	Private TableAccess = iota
	Public
)

func (a TableAccess) String() string {
	if a == Public {
		return "public"
	}
	return "private"
}

type Table struct {
	schema        *Schema
	name          string
	pos           int
	access        TableAccess
	rowType       reflect.Type
	rowTypePtr    reflect.Type
	rowRef        Ref
	product       *AlgebraicType
	codec         *codec
	columns       []*Column
	columnsByName map[string]*Column
	pk            *Column
	autoInc       *Column
	indices       []*Index
	indicesByName map[string]*Index
}

// Column is one field of a table's row type.
type Column struct {
	table  *Table
	name   string
	pos    ColID
	typ    *AlgebraicType
	field  fieldInfo
	codec  *codec
	unique bool
}

func (tbl *Table) Name() string {
	return tbl.name
}

func (tbl *Table) Schema() *Schema {
	return tbl.schema
}

func (tbl *Table) Access() TableAccess {
	return tbl.access
}

func (tbl *Table) RowType() reflect.Type {
	return tbl.rowType
}

// RowTypeRef is the typespace entry describing the row product.
func (tbl *Table) RowTypeRef() Ref {
	return tbl.rowRef
}

func (tbl *Table) Columns() []*Column {
	return append([]*Column(nil), tbl.columns...)
}

func (tbl *Table) ColumnNamed(name string) *Column {
	return tbl.columnsByName[name]
}

// PrimaryKey returns the primary-key column, or nil.
func (tbl *Table) PrimaryKey() *Column {
	return tbl.pk
}

// AutoInc returns the auto-increment column, or nil.
func (tbl *Table) AutoInc() *Column {
	return tbl.autoInc
}

func (tbl *Table) Indices() []*Index {
	return append([]*Index(nil), tbl.indices...)
}

func (tbl *Table) IndexNamed(name string) *Index {
	return tbl.indicesByName[name]
}

func (tbl *Table) String() string {
	return tbl.name
}

func (tbl *Table) column(name string) (*Column, error) {
	col := tbl.columnsByName[name]
	if col == nil {
		return nil, regErrf(tbl.name, name, ErrUnknownColumn, "row type %v has no field %q", tbl.rowType, name)
	}
	return col, nil
}

func (tbl *Table) encodeRowVal(buf []byte, rowVal reflect.Value) ([]byte, error) {
	w := Writer{Buf: buf}
	if err := tbl.codec.enc(&w, rowVal); err != nil {
		return nil, err
	}
	return w.Buf, nil
}

func (tbl *Table) decodeRowFrom(r *Reader) (reflect.Value, error) {
	rowPtr := reflect.New(tbl.rowType)
	err := tbl.codec.dec(r, rowPtr.Elem())
	return rowPtr, err
}

func (tbl *Table) ensureRowPtr(row any) reflect.Value {
	rv := reflect.ValueOf(row)
	if rv.Type() != tbl.rowTypePtr {
		panic(fmt.Errorf("%s: expected %v, got %T", tbl.name, tbl.rowTypePtr, row))
	}
	if rv.IsNil() {
		panic(fmt.Errorf("%s: nil row", tbl.name))
	}
	return rv
}

func (col *Column) Name() string {
	return col.name
}

func (col *Column) Table() *Table {
	return col.table
}

func (col *Column) ID() ColID {
	return col.pos
}

func (col *Column) Type() *AlgebraicType {
	return col.typ
}

func (col *Column) IsUnique() bool {
	return col.unique
}

func (col *Column) String() string {
	return col.table.name + "." + col.name
}

func (col *Column) fieldOf(rowVal reflect.Value) reflect.Value {
	return rowVal.FieldByIndex(col.field.index)
}

// encodeValue encodes v as this column's value. v must be convertible to the
// column's Go type.
func (col *Column) encodeValue(v any) ([]byte, error) {
	rv := reflect.ValueOf(v)
	ft := col.field.typ
	if !rv.IsValid() {
		return nil, fmt.Errorf("%w: nil value for %v", ErrTypeMismatch, col)
	}
	if rv.Type() != ft {
		if !convertibleScalar(rv.Type(), ft) {
			return nil, fmt.Errorf("%w: %v holds %v, got %T", ErrTypeMismatch, col, ft, v)
		}
		if !fitsScalar(rv, ft) {
			return nil, fmt.Errorf("%w: %v out of range for %v", ErrTypeMismatch, v, col)
		}
		rv = rv.Convert(ft)
	}
	tmp := reflect.New(ft).Elem()
	tmp.Set(rv)
	var w Writer
	if err := col.codec.enc(&w, tmp); err != nil {
		return nil, err
	}
	return w.Buf, nil
}

func convertibleScalar(from, to reflect.Type) bool {
	return scalarFamily(from.Kind()) != 0 && scalarFamily(from.Kind()) == scalarFamily(to.Kind()) && from.ConvertibleTo(to)
}

// fitsScalar reports whether rv survives conversion to type to unchanged.
func fitsScalar(rv reflect.Value, to reflect.Type) bool {
	z := reflect.Zero(to)
	switch {
	case rv.CanInt():
		x := rv.Int()
		if z.CanUint() {
			return x >= 0 && !z.OverflowUint(uint64(x))
		}
		if z.CanInt() {
			return !z.OverflowInt(x)
		}
	case rv.CanUint():
		x := rv.Uint()
		if z.CanUint() {
			return !z.OverflowUint(x)
		}
		if z.CanInt() {
			return x <= math.MaxInt64 && !z.OverflowInt(int64(x))
		}
	case rv.CanFloat():
		if z.CanFloat() {
			x := rv.Float()
			if to.Kind() == reflect.Float32 {
				return !z.OverflowFloat(x) && (float64(float32(x)) == x || math.IsNaN(x))
			}
			return true
		}
	}
	return true
}

func scalarFamily(k reflect.Kind) int {
	switch k {
	case reflect.Bool:
		return 1
	case reflect.String:
		return 2
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return 3
	case reflect.Float32, reflect.Float64:
		return 4
	}
	return 0
}
