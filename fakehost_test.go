package stdb

import "fmt"

// fakeHost implements the buffer, iterator and console parts of Host.
// Calling anything else panics on the nil embedded interface.
type fakeHost struct {
	Host

	bufs    map[RawBuffer][]byte
	nextBuf RawBuffer
	iters   map[RawIter][][]byte
	dropped []RawIter
	console []string
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		bufs:  make(map[RawBuffer][]byte),
		iters: make(map[RawIter][][]byte),
	}
}

func (h *fakeHost) ConsoleLog(level LogLevel, target, filename string, line uint32, message string) {
	h.console = append(h.console, fmt.Sprintf("%v %s %s", level, target, message))
}

func (h *fakeHost) BufferAlloc(data []byte) RawBuffer {
	h.nextBuf++
	h.bufs[h.nextBuf] = append([]byte(nil), data...)
	return h.nextBuf
}

func (h *fakeHost) BufferLen(buf RawBuffer) uint32 {
	data, ok := h.bufs[buf]
	if !ok {
		panic(&Trap{Msg: "buffer_len", Err: ErrnoNoSuchBytes})
	}
	return uint32(len(data))
}

func (h *fakeHost) BufferConsume(buf RawBuffer, dst []byte) Errno {
	data, ok := h.bufs[buf]
	if !ok {
		return ErrnoNoSuchBytes
	}
	delete(h.bufs, buf)
	if len(dst) != len(data) {
		return ErrnoBufferTooSmall
	}
	copy(dst, data)
	return ErrnoOK
}

func (h *fakeHost) addIter(id RawIter, chunks ...[]byte) {
	h.iters[id] = chunks
}

func (h *fakeHost) IterNext(iter RawIter) (RawBuffer, Errno) {
	chunks, ok := h.iters[iter]
	if !ok {
		return 0, ErrnoNoSuchIter
	}
	if len(chunks) == 0 {
		delete(h.iters, iter)
		return InvalidBuffer, ErrnoOK
	}
	h.iters[iter] = chunks[1:]
	return h.BufferAlloc(chunks[0]), ErrnoOK
}

func (h *fakeHost) IterDrop(iter RawIter) Errno {
	if _, ok := h.iters[iter]; !ok {
		return ErrnoNoSuchIter
	}
	delete(h.iters, iter)
	h.dropped = append(h.dropped, iter)
	return ErrnoOK
}
