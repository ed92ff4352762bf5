package stdb

import (
	"fmt"
)

// ModuleDef is the self-description a module hands to the host: the
// typespace plus every table and reducer. Its BSATN encoding is what
// __describe_module__ returns.
type ModuleDef struct {
	Typespace *Typespace   `stdb:"typespace"`
	Tables    []TableDef   `stdb:"tables"`
	Reducers  []ReducerDef `stdb:"reducers"`
}

type TableDef struct {
	Name           string     `stdb:"name"`
	ProductTypeRef Ref        `stdb:"product_type_ref"`
	PrimaryKey     *ColID     `stdb:"primary_key"`
	AutoInc        *ColID     `stdb:"auto_inc"`
	Unique         []ColID    `stdb:"unique"`
	Indexes        []IndexDef `stdb:"indexes"`
	Public         bool       `stdb:"public"`
}

type IndexDef struct {
	Name    string    `stdb:"name"`
	Type    IndexType `stdb:"index_type"`
	Columns []ColID   `stdb:"columns"`
}

type ReducerDef struct {
	Name      string         `stdb:"name"`
	Params    *AlgebraicType `stdb:"params"`
	Lifecycle Lifecycle      `stdb:"lifecycle"`
}

func (def *ModuleDef) TableNamed(name string) *TableDef {
	for i := range def.Tables {
		if def.Tables[i].Name == name {
			return &def.Tables[i]
		}
	}
	return nil
}

func (def *ModuleDef) ReducerNamed(name string) (uint32, *ReducerDef) {
	for i := range def.Reducers {
		if def.Reducers[i].Name == name {
			return uint32(i), &def.Reducers[i]
		}
	}
	return 0, nil
}

// RowType returns the product type of a table's rows.
func (def *ModuleDef) RowType(tbl *TableDef) (*AlgebraicType, error) {
	at, err := def.Typespace.At(tbl.ProductTypeRef)
	if err != nil {
		return nil, fmt.Errorf("table %s: %w", tbl.Name, err)
	}
	if at.Kind != KindProduct {
		return nil, fmt.Errorf("%w: table %s row type is %v", ErrTypeMismatch, tbl.Name, at)
	}
	return at, nil
}

// Describe builds the module description. It seals the schema.
func (scm *Schema) Describe() *ModuleDef {
	scm.seal()
	def := &ModuleDef{
		Typespace: scm.typespace,
		Tables:    make([]TableDef, 0, len(scm.tables)),
		Reducers:  make([]ReducerDef, 0, len(scm.reducers)),
	}
	for _, tbl := range scm.tables {
		td := TableDef{
			Name:           tbl.name,
			ProductTypeRef: tbl.rowRef,
			Public:         tbl.access == Public,
		}
		if tbl.pk != nil {
			id := tbl.pk.pos
			td.PrimaryKey = &id
		}
		if tbl.autoInc != nil {
			id := tbl.autoInc.pos
			td.AutoInc = &id
		}
		for _, col := range tbl.columns {
			if col.unique {
				td.Unique = append(td.Unique, col.pos)
			}
		}
		for _, idx := range tbl.indices {
			td.Indexes = append(td.Indexes, IndexDef{
				Name:    idx.name,
				Type:    idx.typ,
				Columns: idx.ColumnIDs(),
			})
		}
		def.Tables = append(def.Tables, td)
	}
	for _, rd := range scm.reducers {
		def.Reducers = append(def.Reducers, ReducerDef{
			Name:      rd.name,
			Params:    rd.params,
			Lifecycle: rd.lifecycle,
		})
	}
	return def
}

func (scm *Schema) DescribeModule() ([]byte, error) {
	return Marshal(*scm.Describe())
}

func DecodeModuleDef(data []byte) (*ModuleDef, error) {
	def := new(ModuleDef)
	if err := Unmarshal(data, def); err != nil {
		return nil, fmt.Errorf("module description: %w", err)
	}
	if def.Typespace == nil {
		def.Typespace = NewTypespace()
	}
	if err := def.Typespace.Validate(); err != nil {
		return nil, fmt.Errorf("module description: %w", err)
	}
	return def, nil
}
