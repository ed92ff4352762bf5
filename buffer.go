package stdb

// Buffer is a host-owned byte region. It can be read exactly once.
type Buffer struct {
	host     Host
	raw      RawBuffer
	consumed bool
}

func newBuffer(host Host, raw RawBuffer) *Buffer {
	return &Buffer{host: host, raw: raw}
}

// AllocBuffer copies data into a new host buffer.
func AllocBuffer(host Host, data []byte) *Buffer {
	return newBuffer(host, host.BufferAlloc(data))
}

func (b *Buffer) Raw() RawBuffer {
	return b.raw
}

func (b *Buffer) Consumed() bool {
	return b.consumed
}

// Len asks the host for the buffer's size. Calling it on a consumed buffer
// is a protocol fault and traps.
func (b *Buffer) Len() int {
	if b.consumed {
		panic(&Trap{Msg: "buffer_len", Err: &ProtocolError{Handle: uint32(b.raw), Kind: "buffer", Err: ErrBufferConsumed}})
	}
	return int(b.host.BufferLen(b.raw))
}

// Read consumes the buffer and returns its contents.
func (b *Buffer) Read() ([]byte, error) {
	if b.consumed {
		return nil, &ProtocolError{Handle: uint32(b.raw), Kind: "buffer", Err: ErrBufferConsumed}
	}
	dst := make([]byte, b.Len())
	if err := b.ReadInto(dst); err != nil {
		return nil, err
	}
	return dst, nil
}

// ReadInto consumes the buffer into dst, whose length must equal Len.
func (b *Buffer) ReadInto(dst []byte) error {
	if b.consumed {
		return &ProtocolError{Handle: uint32(b.raw), Kind: "buffer", Err: ErrBufferConsumed}
	}
	b.consumed = true
	if errno := b.host.BufferConsume(b.raw, dst); errno != ErrnoOK {
		if errno == ErrnoBufferTooSmall {
			return &ProtocolError{Handle: uint32(b.raw), Kind: "buffer", Err: ErrBufferLength, Msg: errno.Error()}
		}
		return &ProtocolError{Handle: uint32(b.raw), Kind: "buffer", Err: errno}
	}
	return nil
}

// BufferIter is a host cursor yielding one buffer per step.
type BufferIter struct {
	host      Host
	raw       RawIter
	exhausted bool
	dropped   bool
}

func newBufferIter(host Host, raw RawIter) *BufferIter {
	return &BufferIter{host: host, raw: raw}
}

func (it *BufferIter) Raw() RawIter {
	return it.raw
}

// Next returns the next buffer, or nil at the end of the sequence.
func (it *BufferIter) Next() (*Buffer, error) {
	if it.dropped {
		return nil, &ProtocolError{Handle: uint32(it.raw), Kind: "iter", Err: ErrIterDropped}
	}
	if it.exhausted {
		return nil, nil
	}
	raw, errno := it.host.IterNext(it.raw)
	if errno != ErrnoOK {
		return nil, errno
	}
	if raw == InvalidBuffer {
		it.exhausted = true
		return nil, nil
	}
	return newBuffer(it.host, raw), nil
}

// Drop releases the host cursor. It is safe to call any number of times.
// The host releases an exhausted cursor by itself, so dropping one is a no-op.
func (it *BufferIter) Drop() error {
	if it.dropped {
		return nil
	}
	it.dropped = true
	if it.exhausted {
		return nil
	}
	return it.host.IterDrop(it.raw).Err()
}
