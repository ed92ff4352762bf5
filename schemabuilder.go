package stdb

import (
	"fmt"
	"reflect"
)

type TableBuilder[Row any] struct {
	tbl *Table
}

// DefineTable registers a table whose rows are values of struct type Row.
// Columns follow the struct's fields in declaration order. The callback
// declares keys and indexes; any definition error panics with a
// *RegistrationError.
func DefineTable[Row any](scm *Schema, name string, f func(b *TableBuilder[Row])) *Table {
	scm.ensureOpen("table " + name)
	rowPtrType := reflect.TypeFor[*Row]()
	rowType := rowPtrType.Elem()
	if rowType.Kind() != reflect.Struct {
		panic(regErrf(name, "", ErrUnsupportedType, "row type %v must be a struct", rowType))
	}

	ts := scm.typespace
	at, err := ts.TypeOf(rowType)
	if err != nil {
		panic(regErrf(name, "", ErrUnsupportedType, "%v", err))
	}
	if err := ts.Validate(); err != nil {
		panic(&RegistrationError{Table: name, Err: err})
	}
	product := must(ts.Resolve(at))
	c, err := codecOf(rowType)
	if err != nil {
		panic(regErrf(name, "", ErrUnsupportedType, "%v", err))
	}

	tbl := &Table{
		schema:        scm,
		name:          name,
		rowType:       rowType,
		rowTypePtr:    rowPtrType,
		rowRef:        at.Ref,
		product:       product,
		codec:         c,
		columnsByName: make(map[string]*Column),
		indicesByName: make(map[string]*Index),
	}
	for i, f := range structFields(rowType) {
		fc, err := codecOf(f.typ)
		if err != nil {
			panic(regErrf(name, f.name, ErrUnsupportedType, "%v", err))
		}
		col := &Column{
			table: tbl,
			name:  f.name,
			pos:   ColID(i),
			typ:   product.Elements[i].Type,
			field: f,
			codec: fc,
		}
		if tbl.columnsByName[f.name] != nil {
			panic(regErrf(name, f.name, ErrUnsupportedType, "duplicate column name"))
		}
		tbl.columns = append(tbl.columns, col)
		tbl.columnsByName[f.name] = col
	}

	if f != nil {
		f(&TableBuilder[Row]{tbl: tbl})
	}
	if tbl.autoInc != nil && tbl.autoInc != tbl.pk {
		panic(regErrf(name, tbl.autoInc.name, ErrAutoIncNotPrimaryKey, ""))
	}
	scm.addTable(tbl)
	return tbl
}

// PrimaryKey designates the primary-key column. A table has at most one.
func (b *TableBuilder[Row]) PrimaryKey(col string) *TableBuilder[Row] {
	tbl := b.tbl
	c := must(tbl.column(col))
	if tbl.pk != nil {
		panic(regErrf(tbl.name, col, ErrDuplicatePrimaryKey, "%s is already the primary key", tbl.pk.name))
	}
	tbl.pk = c
	c.unique = true
	return b
}

// AutoInc makes the host assign the column from a sequence when a row is
// inserted with a zero value. Only an integer primary key qualifies.
func (b *TableBuilder[Row]) AutoInc(col string) *TableBuilder[Row] {
	tbl := b.tbl
	c := must(tbl.column(col))
	rt, err := tbl.schema.typespace.Resolve(c.typ)
	if err != nil || !rt.IsInteger() {
		panic(regErrf(tbl.name, col, ErrAutoIncNotInteger, "column type is %v", c.typ))
	}
	if tbl.autoInc != nil && tbl.autoInc != c {
		panic(regErrf(tbl.name, col, ErrAutoIncNotPrimaryKey, "%s is already auto-increment", tbl.autoInc.name))
	}
	tbl.autoInc = c
	return b
}

// Unique adds a uniqueness constraint on a single column.
func (b *TableBuilder[Row]) Unique(col string) *TableBuilder[Row] {
	must(b.tbl.column(col)).unique = true
	return b
}

// Index declares a named index over the given columns, in order.
func (b *TableBuilder[Row]) Index(name string, typ IndexType, cols ...string) *TableBuilder[Row] {
	b.tbl.addIndex(name, typ, cols)
	return b
}

func (b *TableBuilder[Row]) Public() *TableBuilder[Row] {
	b.tbl.access = Public
	return b
}

func (b *TableBuilder[Row]) Table() *Table {
	return b.tbl
}

// TableFor returns the table registered for row type Row.
func TableFor[Row any](scm *Schema) *Table {
	return scm.TableByRowType(reflect.TypeFor[Row]())
}

func (tbl *Table) GoString() string {
	return fmt.Sprintf("stdb.Table(%s %v)", tbl.name, tbl.product)
}
