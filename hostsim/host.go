// Package hostsim is an in-process host for stdb modules. It implements the
// module ABI on top of in-memory B-trees, runs each reducer call in a
// transaction, and persists committed state to bbolt and a commit log.
package hostsim

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/btree"

	"github.com/andreyvit/stdb"
	"github.com/andreyvit/stdb/commitlog"
)

var (
	ErrNotLoaded     = errors.New("no module loaded")
	ErrAlreadyLoaded = errors.New("module already loaded")
	ErrUnknownTable  = errors.New("unknown table")
	ErrTrapped       = errors.New("module trapped")
)

type Options struct {
	// Path is the bbolt database file. Empty keeps committed state in memory.
	Path string

	// CommitLogDir enables the commit log. With in-memory storage, state is
	// rebuilt from the log on Load.
	CommitLogDir string

	// IterBatchRows is how many rows IterNext packs into one buffer.
	IterBatchRows int

	Logger  *slog.Logger
	Now     func() time.Time
	Verbose bool
}

// ConsoleLine is one message a module wrote to the console.
type ConsoleLine struct {
	Level    stdb.LogLevel
	Target   string
	Filename string
	Line     uint32
	Message  string
}

const maxConsoleLines = 1000

// Host runs one module. ABI methods are only meant to be called by the
// module during a call the Host started; everything else is safe for
// concurrent use.
type Host struct {
	logger    *slog.Logger
	now       func() time.Time
	verbose   bool
	batchRows int
	clogDir   string
	st        storage
	clog      *commitlog.Log

	mu      sync.Mutex
	module  stdb.Module
	def     *stdb.ModuleDef
	tables  map[stdb.TableID]*table
	byName  map[string]*table
	ordered []*table
	lastTS  stdb.Timestamp
	tx      *hostTx
	console []ConsoleLine

	buffers  map[stdb.RawBuffer][]byte
	nextBuf  uint32
	iters    map[stdb.RawIter]*rowIter
	nextIter uint32

	schedule  *btree.BTreeG[*scheduledCall]
	schedByID map[stdb.ScheduleID]*scheduledCall
	nextSched uint64
}

var _ stdb.Host = (*Host)(nil)

func New(o Options) (*Host, error) {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.IterBatchRows <= 0 {
		o.IterBatchRows = 1
	}
	h := &Host{
		logger:    o.Logger,
		now:       o.Now,
		verbose:   o.Verbose,
		batchRows: o.IterBatchRows,
		clogDir:   o.CommitLogDir,
		tables:    make(map[stdb.TableID]*table),
		byName:    make(map[string]*table),
		buffers:   make(map[stdb.RawBuffer][]byte),
		iters:     make(map[stdb.RawIter]*rowIter),
		schedule:  btree.NewG(btreeDegree, lessScheduled),
		schedByID: make(map[stdb.ScheduleID]*scheduledCall),
	}
	if o.Path != "" {
		st, err := openBoltStorage(o.Path)
		if err != nil {
			return nil, fmt.Errorf("hostsim: %w", err)
		}
		h.st = st
	} else {
		h.st = newMemStorage()
	}
	return h, nil
}

func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	var errs []error
	if h.clog != nil {
		errs = append(errs, h.clog.Close())
		h.clog = nil
	}
	if h.st != nil {
		errs = append(errs, h.st.Close())
		h.st = nil
	}
	return errors.Join(errs...)
}

// Load installs mod: it reads the module description, restores committed
// state, and runs the init reducer if the database is new.
func (h *Host) Load(mod stdb.Module) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.module != nil {
		return ErrAlreadyLoaded
	}
	raw, err := mod.DescribeModule()
	if err != nil {
		return fmt.Errorf("hostsim: describing module: %w", err)
	}
	def, err := stdb.DecodeModuleDef(raw)
	if err != nil {
		return fmt.Errorf("hostsim: %w", err)
	}

	fresh, err := h.loadTables(def)
	if err != nil {
		return err
	}
	h.module, h.def = mod, def

	if h.clogDir != "" {
		clog, err := commitlog.Open(h.clogDir, commitlog.Options{
			Invariant: sha256.Sum256(raw),
			Logger:    h.logger,
			Now:       h.now,
			Verbose:   h.verbose,
		})
		if err != nil {
			return fmt.Errorf("hostsim: %w", err)
		}
		h.clog = clog
		if fresh {
			n, err := h.replay()
			if err != nil {
				return err
			}
			fresh = n == 0
		}
	}

	if fresh {
		if err := h.persistAll(); err != nil {
			return err
		}
		if id, rd := def.ReducerNamed(lifecycleInit); rd != nil {
			if err := h.call(id, rd.Name, stdb.Identity{}, stdb.ConnectionID{}, nil); err != nil {
				return fmt.Errorf("hostsim: init: %w", err)
			}
		}
	}
	return nil
}

const (
	lifecycleInit         = "__init__"
	lifecycleConnected    = "__identity_connected__"
	lifecycleDisconnected = "__identity_disconnected__"
)

func (h *Host) loadTables(def *stdb.ModuleDef) (fresh bool, err error) {
	tx, err := h.st.BeginTx(false)
	if err != nil {
		return false, fmt.Errorf("hostsim: %w", err)
	}
	defer tx.Rollback()

	catalog := tx.Bucket(catalogBucket, "")
	fresh = catalog == nil || catalog.KeyCount() == 0

	var maxID uint32
	states := make([]*tableState, len(def.Tables))
	for i := range def.Tables {
		td := &def.Tables[i]
		if catalog == nil {
			continue
		}
		if raw := catalog.Get([]byte(td.Name)); raw != nil {
			st, err := decodeTableState(td.Name, raw)
			if err != nil {
				return false, err
			}
			states[i] = st
			maxID = max(maxID, st.ID)
		}
	}

	for i := range def.Tables {
		td := &def.Tables[i]
		rowType, err := def.RowType(td)
		if err != nil {
			return false, fmt.Errorf("hostsim: %w", err)
		}
		st := states[i]
		if st == nil {
			maxID++
			st = &tableState{ID: maxID, NextSeq: 1, NextRowID: 1, Created: h.now().UTC()}
		}
		t := newTable(td, def.Typespace, rowType, st)

		if b := tx.Bucket(rowsBucket, td.Name); b != nil {
			c := b.Cursor()
			for k, v := c.First(); k != nil; k, v = c.Next() {
				data := slices.Clone(v)
				if err := t.validateRow(data); err != nil {
					return false, fmt.Errorf("hostsim: table %s: stored row %d does not match the module: %w", td.Name, rowKeyID(k), err)
				}
				t.insertRow(rowKeyID(k), data)
			}
		}
		h.addTable(t)
	}
	return fresh, nil
}

func (h *Host) addTable(t *table) {
	h.tables[t.id] = t
	h.byName[t.name] = t
	h.ordered = append(h.ordered, t)
}

// persistAll writes the catalog and every row to storage.
func (h *Host) persistAll() error {
	tx, err := h.st.BeginTx(true)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	catalog, err := tx.CreateBucket(catalogBucket, "")
	if err != nil {
		return err
	}
	for _, t := range h.ordered {
		if err := catalog.Put([]byte(t.name), encodeTableState(t.state)); err != nil {
			return err
		}
		b, err := tx.CreateBucket(rowsBucket, t.name)
		if err != nil {
			return err
		}
		t.rows.Ascend(func(it rowItem) bool {
			err = b.Put(rowKey(it.id), it.data)
			return err == nil
		})
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (h *Host) replay() (int, error) {
	n, err := h.clog.Replay(func(rec commitlog.Record) error {
		txr, err := decodeTxRecord(rec.Data)
		if err != nil {
			return err
		}
		h.applyRecord(txr)
		return nil
	})
	if err != nil {
		return n, fmt.Errorf("hostsim: replaying commit log: %w", err)
	}
	if n > 0 {
		h.logger.Info("hostsim: restored state from commit log", "records", n)
		if err := h.persistAll(); err != nil {
			return n, err
		}
	}
	return n, nil
}

func (h *Host) applyRecord(rec *txRecord) {
	for _, tt := range rec.Tables {
		t := h.byName[tt.Name]
		if t == nil {
			continue
		}
		for _, id := range tt.Deletes {
			t.deleteRow(id)
		}
		for _, r := range tt.Inserts {
			t.insertRow(r.ID, r.Data)
		}
		if tt.State != nil {
			h.applyState(t, tt.State)
		}
	}
	if rec.Timestamp > h.lastTS {
		h.lastTS = rec.Timestamp
	}
}

func (h *Host) applyState(t *table, st *tableState) {
	have := len(t.state.Indexes)
	*t.state = st.clone()
	for _, is := range t.state.Indexes[min(have, len(t.state.Indexes)):] {
		idx := newIndex(is.Name, stdb.IndexType(is.Type), colIDs(is.Cols), false)
		ensure(t.buildIndex(idx))
		t.indexes = append(t.indexes, idx)
	}
}

func (h *Host) ModuleDef() *stdb.ModuleDef {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.def
}

func (h *Host) ConsoleLog(level stdb.LogLevel, target, filename string, line uint32, message string) {
	if len(h.console) >= maxConsoleLines {
		h.console = slices.Delete(h.console, 0, len(h.console)-maxConsoleLines+1)
	}
	h.console = append(h.console, ConsoleLine{level, target, filename, line, message})
	h.logger.LogAttrs(context.Background(), slogLevel(level), message,
		slog.String("target", target),
		slog.String("file", fmt.Sprintf("%s:%d", filename, line)))
}

// Console returns the messages the module has logged, oldest first.
func (h *Host) Console() []ConsoleLine {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.console)
}

func slogLevel(l stdb.LogLevel) slog.Level {
	switch l {
	case stdb.LogError, stdb.LogPanic:
		return slog.LevelError
	case stdb.LogWarn:
		return slog.LevelWarn
	case stdb.LogInfo:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

func (h *Host) tableFor(id stdb.TableID) (*table, stdb.Errno) {
	if h.tx == nil {
		return nil, stdb.ErrnoNotInTransaction
	}
	t := h.tables[id]
	if t == nil {
		return nil, stdb.ErrnoNoSuchTable
	}
	return t, stdb.ErrnoOK
}

func (h *Host) GetTableID(name string) (stdb.TableID, stdb.Errno) {
	if h.tx == nil {
		return 0, stdb.ErrnoNotInTransaction
	}
	t := h.byName[name]
	if t == nil {
		return 0, stdb.ErrnoNoSuchTable
	}
	return t.id, stdb.ErrnoOK
}

// CreateIndex adds a non-unique index. Creating an index that already exists
// with the same columns is a no-op.
func (h *Host) CreateIndex(name string, table stdb.TableID, typ stdb.IndexType, cols []stdb.ColID) stdb.Errno {
	t, errno := h.tableFor(table)
	if errno != stdb.ErrnoOK {
		return errno
	}
	if len(cols) == 0 || typ > stdb.IndexHash {
		return stdb.ErrnoHostCallFailure
	}
	for _, c := range cols {
		if int(c) >= len(t.rowType.Elements) {
			return stdb.ErrnoNoSuchColumn
		}
	}
	if existing := t.indexNamed(name); existing != nil {
		if slices.Equal(existing.cols, cols) {
			return stdb.ErrnoOK
		}
		return stdb.ErrnoHostCallFailure
	}
	idx := newIndex(name, typ, slices.Clone(cols), false)
	if err := t.buildIndex(idx); err != nil {
		return stdb.ErrnoBsatnDecodeError
	}
	t.indexes = append(t.indexes, idx)
	is := indexState{Name: name, Type: uint8(typ)}
	for _, c := range cols {
		is.Cols = append(is.Cols, uint16(c))
	}
	t.state.Indexes = append(t.state.Indexes, is)
	h.tx.touch(t).stateChanged = true
	return stdb.ErrnoOK
}

// Insert validates row, fills a zero auto-increment column from the table's
// sequence, and enforces unique constraints. The assigned value is written
// back into row only when the insert succeeds.
func (h *Host) Insert(table stdb.TableID, row []byte) stdb.Errno {
	t, errno := h.tableFor(table)
	if errno != stdb.ErrnoOK {
		return errno
	}
	if err := t.validateRow(row); err != nil {
		return stdb.ErrnoBsatnDecodeError
	}
	data := slices.Clone(row)
	seqUsed := false
	if col := t.def.AutoInc; col != nil {
		b, err := t.columnBytes(data, *col)
		if err != nil {
			return stdb.ErrnoBsatnDecodeError
		}
		if isZero(b) {
			if !seqFits(t.rowType.Elements[*col].Type.IsSigned(), len(b), t.state.NextSeq) {
				h.logger.Warn("hostsim: sequence exhausted", "table", t.def.Name, "next", t.state.NextSeq)
				return stdb.ErrnoHostCallFailure
			}
			putSeq(b, t.state.NextSeq)
			seqUsed = true
		}
	}
	if errno := t.checkUnique(data); errno != stdb.ErrnoOK {
		return errno
	}

	id := t.state.NextRowID
	t.state.NextRowID++
	if seqUsed {
		t.state.NextSeq++
		copy(row, data)
	}
	t.insertRow(id, data)
	ch := h.tx.touch(t)
	ch.inserts = append(ch.inserts, txRow{ID: id, Data: data})
	ch.stateChanged = true
	return stdb.ErrnoOK
}

func isZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

// putSeq writes v as a little-endian integer filling b, which holds a
// fixed-width integer column.
func putSeq(b []byte, v uint64) {
	for i := range b {
		if i < 8 {
			b[i] = byte(v >> (8 * i))
		} else {
			b[i] = 0
		}
	}
}

// seqFits reports whether v is representable in a column of width bytes.
func seqFits(signed bool, width int, v uint64) bool {
	bits := 8 * width
	if signed {
		bits--
	}
	return bits >= 64 || v < 1<<bits
}

func (h *Host) DeleteByColEq(table stdb.TableID, col stdb.ColID, value []byte) (uint32, stdb.Errno) {
	t, errno := h.tableFor(table)
	if errno != stdb.ErrnoOK {
		return 0, errno
	}
	if int(col) >= len(t.rowType.Elements) {
		return 0, stdb.ErrnoNoSuchColumn
	}
	ids, err := t.matchColEq(col, value)
	if err != nil {
		return 0, stdb.ErrnoBsatnDecodeError
	}
	if len(ids) == 0 {
		return 0, stdb.ErrnoOK
	}
	ch := h.tx.touch(t)
	for _, id := range ids {
		if t.deleteRow(id) {
			ch.deletes = append(ch.deletes, id)
		}
	}
	return uint32(len(ids)), stdb.ErrnoOK
}

// IterByColEq returns all matching rows concatenated in one buffer.
func (h *Host) IterByColEq(table stdb.TableID, col stdb.ColID, value []byte) (stdb.RawBuffer, stdb.Errno) {
	t, errno := h.tableFor(table)
	if errno != stdb.ErrnoOK {
		return stdb.InvalidBuffer, errno
	}
	if int(col) >= len(t.rowType.Elements) {
		return stdb.InvalidBuffer, stdb.ErrnoNoSuchColumn
	}
	ids, err := t.matchColEq(col, value)
	if err != nil {
		return stdb.InvalidBuffer, stdb.ErrnoBsatnDecodeError
	}
	var data []byte
	for _, id := range ids {
		data = append(data, t.row(id)...)
	}
	return h.allocBuffer(data), stdb.ErrnoOK
}

func (h *Host) IterStart(table stdb.TableID) (stdb.RawIter, stdb.Errno) {
	t, errno := h.tableFor(table)
	if errno != stdb.ErrnoOK {
		return 0, errno
	}
	rows := make([][]byte, 0, t.Len())
	t.rows.Ascend(func(it rowItem) bool {
		rows = append(rows, it.data)
		return true
	})
	return h.startIter(rows), stdb.ErrnoOK
}

func (h *Host) IterStartFiltered(table stdb.TableID, filter []byte) (stdb.RawIter, stdb.Errno) {
	t, errno := h.tableFor(table)
	if errno != stdb.ErrnoOK {
		return 0, errno
	}
	var expr stdb.FilterExpr
	if err := stdb.Unmarshal(filter, &expr); err != nil {
		return 0, stdb.ErrnoBsatnDecodeError
	}
	m, err := compileFilter(t, &expr)
	if err != nil {
		return 0, errnoOf(err)
	}
	var rows [][]byte
	t.rows.Ascend(func(it rowItem) bool {
		var ok bool
		ok, err = m.match(t, it.data)
		if err != nil {
			return false
		}
		if ok {
			rows = append(rows, it.data)
		}
		return true
	})
	if err != nil {
		h.logger.Warn("hostsim: filter failed", "table", t.name, "filter", expr.String(), "err", err)
		return 0, errnoOf(err)
	}
	return h.startIter(rows), stdb.ErrnoOK
}

func errnoOf(err error) stdb.Errno {
	var errno stdb.Errno
	if errors.As(err, &errno) {
		return errno
	}
	return stdb.ErrnoHostCallFailure
}

// TableInfo summarizes a table for tools.
type TableInfo struct {
	Name   string
	ID     stdb.TableID
	Rows   int
	Public bool
}

func (h *Host) Tables() []TableInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	infos := make([]TableInfo, 0, len(h.ordered))
	for _, t := range h.ordered {
		infos = append(infos, TableInfo{Name: t.name, ID: t.id, Rows: t.Len(), Public: t.def.Public})
	}
	return infos
}

// Rows returns the committed rows of a table in insertion order.
func (h *Host) Rows(tableName string) ([][]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t := h.byName[tableName]
	if t == nil {
		return nil, fmt.Errorf("%w %q", ErrUnknownTable, tableName)
	}
	rows := make([][]byte, 0, t.Len())
	t.rows.Ascend(func(it rowItem) bool {
		rows = append(rows, it.data)
		return true
	})
	return rows, nil
}

// RowType returns the product type of a table's rows and the typespace it
// refers into.
func (h *Host) RowType(tableName string) (*stdb.Typespace, *stdb.AlgebraicType, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t := h.byName[tableName]
	if t == nil {
		return nil, nil, fmt.Errorf("%w %q", ErrUnknownTable, tableName)
	}
	return t.ts, t.rowType, nil
}
