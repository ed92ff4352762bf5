package hostsim

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/andreyvit/stdb"
)

// hostTx tracks one reducer call's writes so they can be committed to
// storage and the commit log, or undone.
type hostTx struct {
	ts        stdb.Timestamp
	reducer   string
	snaps     map[*table]tableSnap
	changes   map[*table]*tableChanges
	order     []*table
	scheduled []stdb.ScheduleID
	cancelled []*scheduledCall
}

type tableChanges struct {
	inserts      []txRow
	deletes      []uint64
	stateChanged bool
}

func (h *Host) begin(ts stdb.Timestamp, reducer string) {
	if h.tx != nil {
		panic("hostsim: nested transaction")
	}
	tx := &hostTx{
		ts:      ts,
		reducer: reducer,
		snaps:   make(map[*table]tableSnap, len(h.ordered)),
		changes: make(map[*table]*tableChanges),
	}
	for _, t := range h.ordered {
		tx.snaps[t] = t.snapshot()
	}
	h.tx = tx
}

func (tx *hostTx) touch(t *table) *tableChanges {
	ch := tx.changes[t]
	if ch == nil {
		ch = new(tableChanges)
		tx.changes[t] = ch
		tx.order = append(tx.order, t)
	}
	return ch
}

func (h *Host) rollback() {
	if tx := h.tx; tx != nil {
		h.tx = nil
		h.undo(tx)
	}
}

func (h *Host) undo(tx *hostTx) {
	for t, s := range tx.snaps {
		t.restore(s)
	}
	for _, id := range tx.scheduled {
		h.unschedule(id)
	}
	for _, sc := range tx.cancelled {
		h.reschedule(sc)
	}
}

func (h *Host) commit() (err error) {
	tx := h.tx
	h.tx = nil
	if len(tx.order) == 0 {
		return nil
	}
	defer func() {
		if err != nil {
			h.undo(tx)
		}
	}()

	rec := &txRecord{Timestamp: tx.ts, Reducer: tx.reducer}
	stx, err := h.st.BeginTx(true)
	if err != nil {
		return err
	}
	defer stx.Rollback()
	catalog, err := stx.CreateBucket(catalogBucket, "")
	if err != nil {
		return err
	}
	for _, t := range tx.order {
		ch := tx.changes[t]
		tt := txTable{Name: t.name, Inserts: ch.inserts, Deletes: ch.deletes}
		b, err := stx.CreateBucket(rowsBucket, t.name)
		if err != nil {
			return err
		}
		for _, id := range ch.deletes {
			if err := b.Delete(rowKey(id)); err != nil {
				return err
			}
		}
		for _, r := range ch.inserts {
			if t.row(r.ID) == nil {
				continue // inserted and deleted within the call
			}
			if err := b.Put(rowKey(r.ID), r.Data); err != nil {
				return err
			}
		}
		if ch.stateChanged {
			st := t.state.clone()
			tt.State = &st
			if err := catalog.Put([]byte(t.name), encodeTableState(&st)); err != nil {
				return err
			}
		}
		rec.Tables = append(rec.Tables, tt)
	}

	if h.clog != nil {
		if _, err := h.clog.Append(encodeTxRecord(rec)); err != nil {
			return fmt.Errorf("hostsim: commit log: %w", err)
		}
	}
	if err := stx.Commit(); err != nil {
		return err
	}
	if h.verbose {
		h.logger.Debug("hostsim: committed", "reducer", tx.reducer, "tables", len(rec.Tables))
	}
	return nil
}

func (h *Host) timestamp() stdb.Timestamp {
	ts := stdb.TimestampFromTime(h.now())
	if ts <= h.lastTS {
		ts = h.lastTS + 1
	}
	h.lastTS = ts
	return ts
}

// call runs reducer id inside a transaction. A reducer error or trap rolls
// the transaction back.
func (h *Host) call(id uint32, name string, sender stdb.Identity, conn stdb.ConnectionID, args []byte) (err error) {
	if h.module == nil {
		return ErrNotLoaded
	}
	ts := h.timestamp()
	h.begin(ts, name)
	defer h.releaseHandles(name)
	defer func() {
		if e := recover(); e != nil {
			h.rollback()
			if t, ok := e.(*stdb.Trap); ok {
				err = fmt.Errorf("%w in %s: %w", ErrTrapped, name, t)
			} else {
				err = fmt.Errorf("%w in %s: %v", ErrTrapped, name, e)
			}
			h.logger.Error("hostsim: reducer trapped", "reducer", name, "err", err)
		}
	}()

	if err := h.module.CallReducer(h, id, sender, conn, ts, args); err != nil {
		h.rollback()
		if h.verbose {
			h.logger.LogAttrs(context.Background(), slog.LevelDebug, "hostsim: reducer failed", slog.String("reducer", name), slog.Any("err", err))
		}
		return err
	}
	return h.commit()
}

// Caller identifies who invokes a reducer. A zero ConnectionID means the
// call did not arrive over a client connection.
type Caller struct {
	Identity     stdb.Identity
	ConnectionID stdb.ConnectionID
}

// CallReducer calls the named reducer with BSATN-encoded args.
func (h *Host) CallReducer(name string, caller Caller, args []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.def == nil {
		return ErrNotLoaded
	}
	id, rd := h.def.ReducerNamed(name)
	if rd == nil {
		return fmt.Errorf("%w %q", stdb.ErrUnknownReducer, name)
	}
	return h.call(id, name, caller.Identity, caller.ConnectionID, args)
}

// Connect registers a client connection for identity, running the
// client-connected reducer if the module has one. A failing reducer
// rejects the connection.
func (h *Host) Connect(identity stdb.Identity) (Caller, error) {
	caller := Caller{Identity: identity, ConnectionID: newConnectionID()}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.def == nil {
		return Caller{}, ErrNotLoaded
	}
	if id, rd := h.def.ReducerNamed(lifecycleConnected); rd != nil {
		if err := h.call(id, rd.Name, identity, caller.ConnectionID, nil); err != nil {
			return Caller{}, err
		}
	}
	return caller, nil
}

func (h *Host) Disconnect(caller Caller) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.def == nil {
		return ErrNotLoaded
	}
	if id, rd := h.def.ReducerNamed(lifecycleDisconnected); rd != nil {
		return h.call(id, rd.Name, caller.Identity, caller.ConnectionID, nil)
	}
	return nil
}

func newConnectionID() stdb.ConnectionID {
	return stdb.ConnectionID(uuid.New())
}

// Transact runs fn in a transaction without going through a reducer, so Go
// code can drive the ABI directly, as a *stdb.DB over this host does. An
// error or panic from fn rolls back.
func (h *Host) Transact(fn func() error) (err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.def == nil {
		return ErrNotLoaded
	}
	h.begin(h.timestamp(), "")
	defer h.releaseHandles("")
	defer func() {
		if e := recover(); e != nil {
			h.rollback()
			panic(e)
		}
	}()
	if err := fn(); err != nil {
		h.rollback()
		return err
	}
	return h.commit()
}
