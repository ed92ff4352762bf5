package hostsim

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/google/btree"

	"github.com/andreyvit/stdb"
)

const btreeDegree = 16

type rowItem struct {
	id   uint64
	data []byte
}

func lessRow(a, b rowItem) bool {
	return a.id < b.id
}

// keyItem is an index entry. Entries are ordered by the encoded key, then
// by row id, so equal keys form a contiguous run.
type keyItem struct {
	key []byte
	row uint64
}

func lessKey(a, b keyItem) bool {
	if c := bytes.Compare(a.key, b.key); c != 0 {
		return c < 0
	}
	return a.row < b.row
}

type index struct {
	name   string
	typ    stdb.IndexType
	cols   []stdb.ColID
	unique bool
	tree   *btree.BTreeG[keyItem]
}

func newIndex(name string, typ stdb.IndexType, cols []stdb.ColID, unique bool) *index {
	return &index{
		name:   name,
		typ:    typ,
		cols:   cols,
		unique: unique,
		tree:   btree.NewG(btreeDegree, lessKey),
	}
}

// find calls f with the id of every row whose key equals key.
func (idx *index) find(key []byte, f func(row uint64) bool) {
	idx.tree.AscendGreaterOrEqual(keyItem{key: key}, func(it keyItem) bool {
		if !bytes.Equal(it.key, key) {
			return false
		}
		return f(it.row)
	})
}

func (idx *index) contains(key []byte) bool {
	var found bool
	idx.find(key, func(uint64) bool {
		found = true
		return false
	})
	return found
}

type table struct {
	id      stdb.TableID
	name    string
	def     *stdb.TableDef
	ts      *stdb.Typespace
	rowType *stdb.AlgebraicType
	state   *tableState
	rows    *btree.BTreeG[rowItem]
	indexes []*index
}

func newTable(def *stdb.TableDef, ts *stdb.Typespace, rowType *stdb.AlgebraicType, state *tableState) *table {
	t := &table{
		id:      stdb.TableID(state.ID),
		name:    def.Name,
		def:     def,
		ts:      ts,
		rowType: rowType,
		state:   state,
		rows:    btree.NewG(btreeDegree, lessRow),
	}
	if def.PrimaryKey != nil {
		t.indexes = append(t.indexes, newIndex(def.Name+"_pk", stdb.IndexBTree, []stdb.ColID{*def.PrimaryKey}, true))
	}
	for _, col := range def.Unique {
		if def.PrimaryKey != nil && *def.PrimaryKey == col {
			continue
		}
		t.indexes = append(t.indexes, newIndex(fmt.Sprintf("%s_%s_unique", def.Name, rowType.Elements[col].Name), stdb.IndexBTree, []stdb.ColID{col}, true))
	}
	for _, idef := range def.Indexes {
		t.indexes = append(t.indexes, newIndex(idef.Name, idef.Type, idef.Columns, false))
	}
	for _, is := range state.Indexes {
		t.indexes = append(t.indexes, newIndex(is.Name, stdb.IndexType(is.Type), colIDs(is.Cols), false))
	}
	return t
}

func colIDs(cols []uint16) []stdb.ColID {
	ids := make([]stdb.ColID, len(cols))
	for i, c := range cols {
		ids[i] = stdb.ColID(c)
	}
	return ids
}

func (t *table) indexNamed(name string) *index {
	for _, idx := range t.indexes {
		if idx.name == name {
			return idx
		}
	}
	return nil
}

// indexOn returns an index covering exactly col, preferring unique ones.
func (t *table) indexOn(col stdb.ColID) *index {
	var found *index
	for _, idx := range t.indexes {
		if len(idx.cols) == 1 && idx.cols[0] == col {
			if idx.unique {
				return idx
			}
			if found == nil {
				found = idx
			}
		}
	}
	return found
}

func (t *table) columnBytes(row []byte, col stdb.ColID) ([]byte, error) {
	return stdb.ColumnBytes(t.ts, t.rowType, row, int(col))
}

func (t *table) keyOf(idx *index, row []byte) ([]byte, error) {
	if len(idx.cols) == 1 {
		return t.columnBytes(row, idx.cols[0])
	}
	var key []byte
	for _, col := range idx.cols {
		b, err := t.columnBytes(row, col)
		if err != nil {
			return nil, err
		}
		key = append(key, b...)
	}
	return key, nil
}

// validateRow checks that data is exactly one encoded row.
func (t *table) validateRow(data []byte) error {
	r := stdb.NewReader(data)
	if err := stdb.Skip(r, t.ts, t.rowType); err != nil {
		return err
	}
	return r.Finish()
}

// checkUnique fails with ErrnoUniqueAlreadyExists if row collides with an
// existing row on any unique index.
func (t *table) checkUnique(row []byte) stdb.Errno {
	for _, idx := range t.indexes {
		if !idx.unique {
			continue
		}
		key, err := t.keyOf(idx, row)
		if err != nil {
			return stdb.ErrnoBsatnDecodeError
		}
		if idx.contains(key) {
			return stdb.ErrnoUniqueAlreadyExists
		}
	}
	return stdb.ErrnoOK
}

func (t *table) insertRow(id uint64, data []byte) {
	t.rows.ReplaceOrInsert(rowItem{id: id, data: data})
	for _, idx := range t.indexes {
		idx.tree.ReplaceOrInsert(keyItem{key: must(t.keyOf(idx, data)), row: id})
	}
}

func (t *table) deleteRow(id uint64) bool {
	it, ok := t.rows.Delete(rowItem{id: id})
	if !ok {
		return false
	}
	for _, idx := range t.indexes {
		idx.tree.Delete(keyItem{key: must(t.keyOf(idx, it.data)), row: id})
	}
	return true
}

func (t *table) row(id uint64) []byte {
	it, ok := t.rows.Get(rowItem{id: id})
	if !ok {
		return nil
	}
	return it.data
}

// matchColEq returns the ids of rows whose column col encodes to value.
func (t *table) matchColEq(col stdb.ColID, value []byte) ([]uint64, error) {
	var ids []uint64
	if idx := t.indexOn(col); idx != nil {
		idx.find(value, func(row uint64) bool {
			ids = append(ids, row)
			return true
		})
		slices.Sort(ids)
		return ids, nil
	}
	var err error
	t.rows.Ascend(func(it rowItem) bool {
		var b []byte
		b, err = t.columnBytes(it.data, col)
		if err != nil {
			return false
		}
		if bytes.Equal(b, value) {
			ids = append(ids, it.id)
		}
		return true
	})
	return ids, err
}

func (t *table) buildIndex(idx *index) error {
	var err error
	t.rows.Ascend(func(it rowItem) bool {
		var key []byte
		key, err = t.keyOf(idx, it.data)
		if err != nil {
			return false
		}
		idx.tree.ReplaceOrInsert(keyItem{key: key, row: it.id})
		return true
	})
	return err
}

func (t *table) Len() int {
	return t.rows.Len()
}

// snapshot captures the table for rollback. Clones share nodes until
// either side is written.
func (t *table) snapshot() tableSnap {
	s := tableSnap{
		rows:    t.rows.Clone(),
		state:   t.state.clone(),
		indexes: make([]*index, len(t.indexes)),
	}
	for i, idx := range t.indexes {
		c := *idx
		c.tree = idx.tree.Clone()
		s.indexes[i] = &c
	}
	return s
}

func (t *table) restore(s tableSnap) {
	t.rows = s.rows
	*t.state = s.state
	t.indexes = s.indexes
}

type tableSnap struct {
	rows    *btree.BTreeG[rowItem]
	state   tableState
	indexes []*index
}
