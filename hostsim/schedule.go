package hostsim

import (
	"errors"
	"slices"

	"github.com/andreyvit/stdb"
)

// maxScheduleDelay is the longest delay ScheduleReducer accepts, 64^6-1 ms.
const maxScheduleDelay = stdb.TimeDuration((1<<36 - 1) * 1000)

type scheduledCall struct {
	id      stdb.ScheduleID
	at      stdb.Timestamp
	reducer string
	args    []byte
}

func lessScheduled(a, b *scheduledCall) bool {
	if a.at != b.at {
		return a.at < b.at
	}
	return a.id < b.id
}

// ScheduledCall describes a pending scheduled reducer call.
type ScheduledCall struct {
	ID      stdb.ScheduleID
	At      stdb.Timestamp
	Reducer string
}

func (h *Host) ScheduleReducer(name string, args []byte, delay stdb.TimeDuration) (stdb.ScheduleID, stdb.Errno) {
	if h.tx == nil {
		return 0, stdb.ErrnoNotInTransaction
	}
	_, rd := h.def.ReducerNamed(name)
	if rd == nil || rd.Lifecycle != stdb.LifecycleNone {
		return 0, stdb.ErrnoHostCallFailure
	}
	if delay > maxScheduleDelay {
		return 0, stdb.ErrnoScheduleAtDelayTooLong
	}
	if _, err := stdb.Decode(h.def.Typespace, rd.Params, args); err != nil {
		return 0, stdb.ErrnoBsatnDecodeError
	}

	h.nextSched++
	sc := &scheduledCall{
		id:      stdb.ScheduleID(h.nextSched),
		at:      h.tx.ts.Add(max(delay, 0)),
		reducer: name,
		args:    slices.Clone(args),
	}
	h.reschedule(sc)
	h.tx.scheduled = append(h.tx.scheduled, sc.id)
	return sc.id, stdb.ErrnoOK
}

// CancelReducer succeeds whether or not the call is still pending.
func (h *Host) CancelReducer(id stdb.ScheduleID) stdb.Errno {
	sc := h.unschedule(id)
	if sc != nil && h.tx != nil {
		h.tx.cancelled = append(h.tx.cancelled, sc)
	}
	return stdb.ErrnoOK
}

func (h *Host) reschedule(sc *scheduledCall) {
	h.schedule.ReplaceOrInsert(sc)
	h.schedByID[sc.id] = sc
}

func (h *Host) unschedule(id stdb.ScheduleID) *scheduledCall {
	sc := h.schedByID[id]
	if sc == nil {
		return nil
	}
	delete(h.schedByID, id)
	h.schedule.Delete(sc)
	return sc
}

// Scheduled lists pending calls in the order they will run.
func (h *Host) Scheduled() []ScheduledCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	var calls []ScheduledCall
	h.schedule.Ascend(func(sc *scheduledCall) bool {
		calls = append(calls, ScheduledCall{ID: sc.id, At: sc.at, Reducer: sc.reducer})
		return true
	})
	return calls
}

// RunDue runs every scheduled call whose time has come, including calls
// scheduled by the calls it runs if they are already due. It returns how
// many ran. Failures are logged and joined into the error; they do not stop
// later calls.
func (h *Host) RunDue() (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.def == nil {
		return 0, ErrNotLoaded
	}
	// calls are stamped with monotonic transaction timestamps, which may run
	// ahead of the clock
	now := max(stdb.TimestampFromTime(h.now()), h.lastTS)
	var n int
	var errs []error
	for {
		sc, ok := h.schedule.Min()
		if !ok || sc.at > now {
			break
		}
		h.unschedule(sc.id)
		id, rd := h.def.ReducerNamed(sc.reducer)
		if rd == nil {
			continue
		}
		n++
		if err := h.call(id, sc.reducer, stdb.Identity{}, stdb.ConnectionID{}, sc.args); err != nil {
			h.logger.Warn("hostsim: scheduled reducer failed", "reducer", sc.reducer, "schedule_id", sc.id, "err", err)
			errs = append(errs, err)
		}
	}
	return n, errors.Join(errs...)
}
