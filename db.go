package stdb

import (
	"context"
	"log/slog"
)

// DB is the table access layer for one module instance. It is bound to the
// host the module runs in and caches table ids resolved through it.
type DB struct {
	host     Host
	schema   *Schema
	tableIDs []TableID
	logger   *slog.Logger
	verbose  bool
}

type Options struct {
	Logger  *slog.Logger
	Verbose bool
}

func NewDB(host Host, scm *Schema, opt Options) *DB {
	if opt.Logger == nil {
		opt.Logger = slog.New(NewConsoleHandler(host, nil))
	}
	scm.seal()
	return &DB{
		host:     host,
		schema:   scm,
		tableIDs: make([]TableID, len(scm.tables)),
		logger:   opt.Logger,
		verbose:  opt.Verbose,
	}
}

func (db *DB) Host() Host {
	return db.host
}

func (db *DB) Schema() *Schema {
	return db.schema
}

func (db *DB) Logger() *slog.Logger {
	return db.logger
}

// TableID resolves the host id of tbl, asking the host on first use.
func (db *DB) TableID(tbl *Table) (TableID, error) {
	if id := db.tableIDs[tbl.pos]; id != 0 {
		return id, nil
	}
	id, err := db.GetTableID(tbl.name)
	if err != nil {
		return 0, &TableError{Table: tbl, Op: "get_table_id", Err: err}
	}
	db.tableIDs[tbl.pos] = id
	return id, nil
}

// GetTableID asks the host for the id of the named table. Id 0 is never valid.
func (db *DB) GetTableID(name string) (TableID, error) {
	id, errno := db.host.GetTableID(name)
	if errno != ErrnoOK {
		return 0, errno
	}
	if id == 0 {
		return 0, ErrInvalidTableID
	}
	return id, nil
}

func (db *DB) trace(op string, tbl *Table, attrs ...slog.Attr) {
	if !db.verbose {
		return
	}
	attrs = append(attrs, slog.String("table", tbl.name))
	db.logger.LogAttrs(context.Background(), slog.LevelDebug, op, attrs...)
}
