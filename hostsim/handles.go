package hostsim

import (
	"slices"

	"github.com/andreyvit/stdb"
)

// rowIter is a host cursor over a snapshot of row encodings taken when the
// iterator was started.
type rowIter struct {
	rows [][]byte
	pos  int
}

func (h *Host) BufferAlloc(data []byte) stdb.RawBuffer {
	return h.allocBuffer(slices.Clone(data))
}

func (h *Host) allocBuffer(data []byte) stdb.RawBuffer {
	h.nextBuf++
	if stdb.RawBuffer(h.nextBuf) == stdb.InvalidBuffer {
		h.nextBuf = 1
	}
	buf := stdb.RawBuffer(h.nextBuf)
	h.buffers[buf] = data
	return buf
}

func (h *Host) BufferLen(buf stdb.RawBuffer) uint32 {
	data, ok := h.buffers[buf]
	if !ok {
		panic(&stdb.Trap{Msg: "buffer_len", Err: stdb.ErrnoNoSuchBytes})
	}
	return uint32(len(data))
}

// BufferConsume frees the buffer whether or not dst has the right length.
func (h *Host) BufferConsume(buf stdb.RawBuffer, dst []byte) stdb.Errno {
	data, ok := h.buffers[buf]
	if !ok {
		return stdb.ErrnoNoSuchBytes
	}
	delete(h.buffers, buf)
	if len(dst) != len(data) {
		return stdb.ErrnoBufferTooSmall
	}
	copy(dst, data)
	return stdb.ErrnoOK
}

func (h *Host) startIter(rows [][]byte) stdb.RawIter {
	h.nextIter++
	it := stdb.RawIter(h.nextIter)
	h.iters[it] = &rowIter{rows: rows}
	return it
}

// IterNext returns up to Options.IterBatchRows rows per buffer. At the end
// it frees the iterator and returns InvalidBuffer.
func (h *Host) IterNext(iter stdb.RawIter) (stdb.RawBuffer, stdb.Errno) {
	it, ok := h.iters[iter]
	if !ok {
		return stdb.InvalidBuffer, stdb.ErrnoNoSuchIter
	}
	if it.pos >= len(it.rows) {
		delete(h.iters, iter)
		return stdb.InvalidBuffer, stdb.ErrnoOK
	}
	end := min(it.pos+h.batchRows, len(it.rows))
	var data []byte
	for _, row := range it.rows[it.pos:end] {
		data = append(data, row...)
	}
	it.pos = end
	return h.allocBuffer(data), stdb.ErrnoOK
}

func (h *Host) IterDrop(iter stdb.RawIter) stdb.Errno {
	if _, ok := h.iters[iter]; !ok {
		return stdb.ErrnoNoSuchIter
	}
	delete(h.iters, iter)
	return stdb.ErrnoOK
}

// OpenHandles reports how many buffers and iterators are currently live.
func (h *Host) OpenHandles() (buffers, iters int) {
	return len(h.buffers), len(h.iters)
}

// releaseHandles frees everything left over from a call, since handles never
// outlive the call that created them.
func (h *Host) releaseHandles(reducer string) {
	if len(h.buffers) == 0 && len(h.iters) == 0 {
		return
	}
	h.logger.Warn("hostsim: call leaked handles", "reducer", reducer, "buffers", len(h.buffers), "iters", len(h.iters))
	clear(h.buffers)
	clear(h.iters)
}
