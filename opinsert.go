package stdb

import (
	"fmt"
	"reflect"
)

// Insert adds row to its table. When the table has an auto-increment column,
// the host may assign it and the assigned value is written back into row.
func Insert[Row any](db *DB, row *Row) error {
	tbl := db.schema.TableByRowType(reflect.TypeFor[Row]())
	return db.insertVal(tbl, tbl.ensureRowPtr(row))
}

// Insert is the untyped form of Insert; row must be a pointer to a table row.
func (db *DB) Insert(row any) error {
	rt := reflect.TypeOf(row)
	if rt == nil || rt.Kind() != reflect.Pointer {
		panic(fmt.Errorf("expected pointer to a table row type, got %T", row))
	}
	tbl := db.schema.TableByRowType(rt.Elem())
	return db.insertVal(tbl, tbl.ensureRowPtr(row))
}

func (db *DB) insertVal(tbl *Table, rowPtr reflect.Value) error {
	tid, err := db.TableID(tbl)
	if err != nil {
		return err
	}
	buf, err := tbl.encodeRowVal(nil, rowPtr.Elem())
	if err != nil {
		return tableErrf(tbl, "insert", err, "encoding row")
	}
	if errno := db.host.Insert(tid, buf); errno != ErrnoOK {
		return &TableError{Table: tbl, Op: "insert", Err: errno}
	}
	db.trace("insert", tbl, hexAttr("row", buf))

	// The host rewrote generated columns in buf; the caller must see them.
	if col := tbl.autoInc; col != nil {
		raw, err := ColumnBytes(tbl.schema.typespace, RefTo(tbl.rowRef), buf, int(col.pos))
		if err != nil {
			return &TableError{Table: tbl, Op: "insert", Column: col.name, Err: err}
		}
		r := NewReader(raw)
		if err := col.codec.dec(r, col.fieldOf(rowPtr.Elem())); err != nil {
			return &TableError{Table: tbl, Op: "insert", Column: col.name, Err: err}
		}
	}
	return nil
}
