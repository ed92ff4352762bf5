package stdb

import (
	"fmt"
	"math"
)

type (
	TableID uint32
	ColID   uint16

	// RawBuffer is a host buffer handle as it crosses the ABI. Application
	// code holds *Buffer instead.
	RawBuffer uint32

	// RawIter is a host row-iterator handle as it crosses the ABI.
	RawIter uint32
)

// InvalidBuffer is returned by IterNext when the iterator is exhausted.
const InvalidBuffer RawBuffer = math.MaxUint32

type IndexType uint8

const (
	IndexBTree IndexType = 0
	IndexHash  IndexType = 1
)

func (t IndexType) String() string {
	switch t {
	case IndexBTree:
		return "btree"
	case IndexHash:
		return "hash"
	default:
		return fmt.Sprintf("index_type(%d)", uint8(t))
	}
}

type LogLevel uint8

const (
	LogError LogLevel = 0
	LogWarn  LogLevel = 1
	LogInfo  LogLevel = 2
	LogDebug LogLevel = 3
	LogTrace LogLevel = 4
	LogPanic LogLevel = 101
)

func (l LogLevel) String() string {
	switch l {
	case LogError:
		return "error"
	case LogWarn:
		return "warn"
	case LogInfo:
		return "info"
	case LogDebug:
		return "debug"
	case LogTrace:
		return "trace"
	case LogPanic:
		return "panic"
	default:
		return fmt.Sprintf("level(%d)", uint8(l))
	}
}

// Host is the ABI a module calls into. Every method is one blocking host
// call. Row and value arguments are BSATN. Insert may rewrite row in place
// to fill auto-increment columns.
//
// BufferLen on an unknown handle traps: implementations panic with *Trap
// rather than return.
type Host interface {
	ConsoleLog(level LogLevel, target, filename string, line uint32, message string)

	BufferAlloc(data []byte) RawBuffer
	BufferLen(buf RawBuffer) uint32
	BufferConsume(buf RawBuffer, dst []byte) Errno

	ScheduleReducer(name string, args []byte, delay TimeDuration) (ScheduleID, Errno)
	CancelReducer(id ScheduleID) Errno

	GetTableID(name string) (TableID, Errno)
	CreateIndex(name string, table TableID, typ IndexType, cols []ColID) Errno
	Insert(table TableID, row []byte) Errno
	DeleteByColEq(table TableID, col ColID, value []byte) (uint32, Errno)

	IterByColEq(table TableID, col ColID, value []byte) (RawBuffer, Errno)
	IterStart(table TableID) (RawIter, Errno)
	IterStartFiltered(table TableID, filter []byte) (RawIter, Errno)
	IterNext(iter RawIter) (RawBuffer, Errno)
	IterDrop(iter RawIter) Errno
}

// Trap aborts the current call. Hosts panic with it where the ABI traps, and
// it is never turned into an error by this package.
type Trap struct {
	Msg string
	Err error
}

func (t *Trap) Error() string {
	if t.Err != nil {
		return "trap: " + t.Msg + ": " + t.Err.Error()
	}
	return "trap: " + t.Msg
}

func (t *Trap) Unwrap() error {
	return t.Err
}
