package stdb

import (
	"fmt"
	"reflect"
	"sync/atomic"
)

// Schema is the registry of a module: its types, tables and reducers. It is
// populated once at startup and read-only after the first call into the module.
type Schema struct {
	typespace       *Typespace
	tables          []*Table
	tablesByName    map[string]*Table
	tablesByRowType map[reflect.Type]*Table
	reducers        []*Reducer
	reducersByName  map[string]*Reducer
	sealed          atomic.Bool
}

func NewSchema() *Schema {
	scm := &Schema{}
	scm.init()
	return scm
}

func (scm *Schema) init() {
	if scm.tablesByName == nil {
		scm.typespace = NewTypespace()
		scm.tablesByName = make(map[string]*Table)
		scm.tablesByRowType = make(map[reflect.Type]*Table)
		scm.reducersByName = make(map[string]*Reducer)
	}
}

func (scm *Schema) ensureOpen(what string) {
	if scm.sealed.Load() {
		panic(fmt.Errorf("cannot register %s: schema is in use", what))
	}
	scm.init()
}

func (scm *Schema) seal() {
	scm.sealed.Store(true)
}

func (scm *Schema) Typespace() *Typespace {
	return scm.typespace
}

func (scm *Schema) Tables() []*Table {
	return append([]*Table(nil), scm.tables...)
}

func (scm *Schema) TableNamed(name string) *Table {
	return scm.tablesByName[name]
}

func (scm *Schema) TableByRowType(rt reflect.Type) *Table {
	tbl := scm.tablesByRowType[rt]
	if tbl == nil {
		panic(fmt.Errorf("no table defined for row type %v", rt))
	}
	return tbl
}

func (scm *Schema) Reducers() []*Reducer {
	return append([]*Reducer(nil), scm.reducers...)
}

func (scm *Schema) ReducerNamed(name string) *Reducer {
	return scm.reducersByName[name]
}

func (scm *Schema) addTable(tbl *Table) {
	if scm.tablesByName[tbl.name] != nil {
		panic(regErrf(tbl.name, "", ErrDuplicateTable, ""))
	}
	if other := scm.tablesByRowType[tbl.rowType]; other != nil {
		panic(regErrf(tbl.name, "", ErrDuplicateTable, "row type %v already used by %s", tbl.rowType, other.name))
	}
	tbl.pos = len(scm.tables)
	scm.tables = append(scm.tables, tbl)
	scm.tablesByName[tbl.name] = tbl
	scm.tablesByRowType[tbl.rowType] = tbl
}

// DefineType adds a hand-built type to the typespace. build receives the ref
// the type will occupy, so the type may refer to itself. Direct recursion
// through product fields is rejected.
func (scm *Schema) DefineType(name string, build func(self Ref) *AlgebraicType) Ref {
	scm.ensureOpen("type " + name)
	ts := scm.typespace
	r := ts.Add(name, nil)
	ts.Types[r] = build(r)
	if err := ts.Validate(); err != nil {
		ts.Types = ts.Types[:r]
		ts.Names = ts.Names[:r]
		panic(&RegistrationError{Table: name, Err: err})
	}
	return r
}
