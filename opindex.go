package stdb

import (
	"reflect"
)

// CreateIndex asks the host to build an index over cols of Row's table at
// runtime. Indexes declared with TableBuilder.Index are created by the host
// from the module description and need no call.
func CreateIndex[Row any](db *DB, name string, typ IndexType, cols ...string) error {
	tbl := db.schema.TableByRowType(reflect.TypeFor[Row]())
	return db.CreateIndex(tbl, name, typ, cols...)
}

func (db *DB) CreateIndex(tbl *Table, name string, typ IndexType, cols ...string) error {
	if len(cols) == 0 {
		return tableErrf(tbl, "create_index", ErrUnknownColumn, "index %s has no columns", name)
	}
	ids := make([]ColID, len(cols))
	for i, name := range cols {
		c := tbl.columnsByName[name]
		if c == nil {
			return &TableError{Table: tbl, Op: "create_index", Column: name, Err: ErrUnknownColumn}
		}
		ids[i] = c.pos
	}
	tid, err := db.TableID(tbl)
	if err != nil {
		return err
	}
	if errno := db.host.CreateIndex(name, tid, typ, ids); errno != ErrnoOK {
		return tableErrf(tbl, "create_index", errno, "index %s", name)
	}
	return nil
}
