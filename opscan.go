package stdb

import (
	"iter"
	"reflect"
)

// Cursor walks the rows of a table through a host iterator. Each host buffer
// may carry several rows back to back. Close must be called unless Next has
// returned false.
type Cursor[Row any] struct {
	db     *DB
	tbl    *Table
	it     *BufferIter
	r      *Reader
	row    *Row
	err    error
	closed bool
}

// Scan starts a full scan of Row's table.
func Scan[Row any](db *DB) *Cursor[Row] {
	c := newCursor[Row](db)
	if c.err != nil {
		return c
	}
	tid, err := db.TableID(c.tbl)
	if err != nil {
		c.err = err
		return c
	}
	raw, errno := db.host.IterStart(tid)
	if errno != ErrnoOK {
		c.err = &TableError{Table: c.tbl, Op: "scan", Err: errno}
		return c
	}
	c.it = newBufferIter(db.host, raw)
	return c
}

// ScanFiltered starts a scan that yields only rows matching f. The filter is
// evaluated by the host.
func ScanFiltered[Row any](db *DB, f Filter) *Cursor[Row] {
	c := newCursor[Row](db)
	expr, err := f.Compile(c.tbl)
	if err != nil {
		c.err = &TableError{Table: c.tbl, Op: "scan", Err: err}
		return c
	}
	tid, err := db.TableID(c.tbl)
	if err != nil {
		c.err = err
		return c
	}
	raw, errno := db.host.IterStartFiltered(tid, must(Marshal(expr)))
	if errno != ErrnoOK {
		c.err = &TableError{Table: c.tbl, Op: "scan", Err: errno}
		return c
	}
	c.it = newBufferIter(db.host, raw)
	return c
}

func newCursor[Row any](db *DB) *Cursor[Row] {
	return &Cursor[Row]{
		db:  db,
		tbl: db.schema.TableByRowType(reflect.TypeFor[Row]()),
	}
}

func (c *Cursor[Row]) Next() bool {
	if c.closed || c.err != nil || c.it == nil {
		return false
	}
	for c.r == nil || c.r.Remaining() == 0 {
		buf, err := c.it.Next()
		if err != nil {
			c.fail(err)
			return false
		}
		if buf == nil {
			c.Close()
			return false
		}
		data, err := buf.Read()
		if err != nil {
			c.fail(err)
			return false
		}
		c.r = NewReader(data)
	}
	rowPtr, err := c.tbl.decodeRowFrom(c.r)
	if err != nil {
		c.fail(err)
		return false
	}
	c.row = rowPtr.Interface().(*Row)
	return true
}

func (c *Cursor[Row]) fail(err error) {
	c.err = &TableError{Table: c.tbl, Op: "scan", Err: err}
	c.row = nil
	if dropErr := c.Close(); dropErr != nil {
		c.db.logger.Warn("dropping iterator", "table", c.tbl.name, "err", dropErr)
	}
}

// Row returns the row read by the last successful Next.
func (c *Cursor[Row]) Row() *Row {
	return c.row
}

func (c *Cursor[Row]) Err() error {
	return c.err
}

// Close drops the host iterator. It is idempotent.
func (c *Cursor[Row]) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.r = nil
	if c.it != nil {
		return c.it.Drop()
	}
	return nil
}

// All adapts the cursor to a range-over-func sequence. The cursor is closed
// when iteration stops, including on early break. A failure is yielded once
// as the final pair.
func (c *Cursor[Row]) All() iter.Seq2[*Row, error] {
	return func(yield func(*Row, error) bool) {
		defer c.Close()
		for c.Next() {
			if !yield(c.row, nil) {
				return
			}
		}
		if c.err != nil {
			yield(nil, c.err)
		}
	}
}

// All iterates over every row of Row's table.
func All[Row any](db *DB) iter.Seq2[*Row, error] {
	return Scan[Row](db).All()
}

// Collect reads every row of Row's table.
func Collect[Row any](db *DB) ([]*Row, error) {
	var rows []*Row
	for row, err := range All[Row](db) {
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Count scans Row's table and returns the number of rows.
func Count[Row any](db *DB) (int, error) {
	c := Scan[Row](db)
	defer c.Close()
	var n int
	for c.Next() {
		n++
	}
	return n, c.Err()
}

// FilterByColEq returns every row whose column col equals value. The host
// answers with a single buffer holding all matches.
func FilterByColEq[Row any](db *DB, col string, value any) ([]*Row, error) {
	tbl := db.schema.TableByRowType(reflect.TypeFor[Row]())
	return filterByColEq[Row](db, tbl, col, value)
}

func filterByColEq[Row any](db *DB, tbl *Table, col string, value any) ([]*Row, error) {
	c := tbl.columnsByName[col]
	if c == nil {
		return nil, &TableError{Table: tbl, Op: "filter", Column: col, Err: ErrUnknownColumn}
	}
	tid, err := db.TableID(tbl)
	if err != nil {
		return nil, err
	}
	key, err := c.encodeValue(value)
	if err != nil {
		return nil, &TableError{Table: tbl, Op: "filter", Column: col, Err: err}
	}
	raw, errno := db.host.IterByColEq(tid, c.pos, key)
	if errno != ErrnoOK {
		return nil, &TableError{Table: tbl, Op: "filter", Column: col, Err: errno}
	}
	data, err := newBuffer(db.host, raw).Read()
	if err != nil {
		return nil, &TableError{Table: tbl, Op: "filter", Column: col, Err: err}
	}

	var rows []*Row
	r := NewReader(data)
	for r.Remaining() > 0 {
		rowPtr, err := tbl.decodeRowFrom(r)
		if err != nil {
			return nil, &TableError{Table: tbl, Op: "filter", Column: col, Err: err}
		}
		rows = append(rows, rowPtr.Interface().(*Row))
	}
	return rows, nil
}

// FindByPK returns the row with the given primary key, or nil if there is none.
func FindByPK[Row any](db *DB, key any) (*Row, error) {
	tbl := db.schema.TableByRowType(reflect.TypeFor[Row]())
	if tbl.pk == nil {
		return nil, &TableError{Table: tbl, Op: "find", Err: ErrNoPrimaryKey}
	}
	rows, err := filterByColEq[Row](db, tbl, tbl.pk.name, key)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}
