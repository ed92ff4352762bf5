package stdb

import "strings"

// Index is a named secondary index over an ordered list of columns.
type Index struct {
	table   *Table
	name    string
	typ     IndexType
	columns []*Column
}

func (idx *Index) Name() string {
	return idx.name
}

func (idx *Index) Table() *Table {
	return idx.table
}

func (idx *Index) Type() IndexType {
	return idx.typ
}

func (idx *Index) Columns() []*Column {
	return append([]*Column(nil), idx.columns...)
}

func (idx *Index) ColumnIDs() []ColID {
	ids := make([]ColID, len(idx.columns))
	for i, col := range idx.columns {
		ids[i] = col.pos
	}
	return ids
}

func (idx *Index) String() string {
	names := make([]string, len(idx.columns))
	for i, col := range idx.columns {
		names[i] = col.name
	}
	return idx.table.name + "." + idx.name + "(" + strings.Join(names, ", ") + ")"
}

func (tbl *Table) addIndex(name string, typ IndexType, colNames []string) *Index {
	if tbl.indicesByName[name] != nil {
		panic(regErrf(tbl.name, "", ErrDuplicateIndex, "index %q", name))
	}
	if len(colNames) == 0 {
		panic(regErrf(tbl.name, "", ErrUnknownColumn, "index %q has no columns", name))
	}
	idx := &Index{
		table: tbl,
		name:  name,
		typ:   typ,
	}
	for _, cn := range colNames {
		col, err := tbl.column(cn)
		if err != nil {
			panic(err)
		}
		idx.columns = append(idx.columns, col)
	}
	tbl.indices = append(tbl.indices, idx)
	tbl.indicesByName[name] = idx
	return idx
}
