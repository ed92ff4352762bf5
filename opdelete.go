package stdb

import (
	"reflect"
)

// DeleteByColEq deletes every row of Row's table whose column col equals
// value, and returns how many were deleted.
func DeleteByColEq[Row any](db *DB, col string, value any) (uint32, error) {
	tbl := db.schema.TableByRowType(reflect.TypeFor[Row]())
	return db.DeleteByColEq(tbl, col, value)
}

// DeleteByPK deletes the row with the given primary key and reports whether
// it existed.
func DeleteByPK[Row any](db *DB, key any) (bool, error) {
	tbl := db.schema.TableByRowType(reflect.TypeFor[Row]())
	if tbl.pk == nil {
		return false, &TableError{Table: tbl, Op: "delete", Err: ErrNoPrimaryKey}
	}
	n, err := db.DeleteByColEq(tbl, tbl.pk.name, key)
	return n > 0, err
}

// Delete deletes row by its primary key.
func Delete[Row any](db *DB, row *Row) (bool, error) {
	tbl := db.schema.TableByRowType(reflect.TypeFor[Row]())
	if tbl.pk == nil {
		return false, &TableError{Table: tbl, Op: "delete", Err: ErrNoPrimaryKey}
	}
	key := tbl.pk.fieldOf(tbl.ensureRowPtr(row).Elem()).Interface()
	n, err := db.DeleteByColEq(tbl, tbl.pk.name, key)
	return n > 0, err
}

func (db *DB) DeleteByColEq(tbl *Table, col string, value any) (uint32, error) {
	c := tbl.columnsByName[col]
	if c == nil {
		return 0, &TableError{Table: tbl, Op: "delete", Column: col, Err: ErrUnknownColumn}
	}
	tid, err := db.TableID(tbl)
	if err != nil {
		return 0, err
	}
	raw, err := c.encodeValue(value)
	if err != nil {
		return 0, &TableError{Table: tbl, Op: "delete", Column: col, Err: err}
	}
	n, errno := db.host.DeleteByColEq(tid, c.pos, raw)
	if errno != ErrnoOK {
		return 0, &TableError{Table: tbl, Op: "delete", Column: col, Err: errno}
	}
	db.trace("delete", tbl, hexAttr("value", raw))
	return n, nil
}
