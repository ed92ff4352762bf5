//go:build wasip1

package stdb

import (
	"unsafe"
)

//go:wasmimport spacetime_7.0 _console_log
func rawConsoleLog(level uint32, target unsafe.Pointer, targetLen uint32, filename unsafe.Pointer, filenameLen uint32, line uint32, text unsafe.Pointer, textLen uint32)

//go:wasmimport spacetime_7.0 _buffer_alloc
func rawBufferAlloc(data unsafe.Pointer, dataLen uint32) uint32

//go:wasmimport spacetime_7.0 _buffer_len
func rawBufferLen(buf uint32) uint32

//go:wasmimport spacetime_7.0 _buffer_consume
func rawBufferConsume(buf uint32, dst unsafe.Pointer, dstLen uint32) uint32

//go:wasmimport spacetime_7.0 _schedule_reducer
func rawScheduleReducer(name unsafe.Pointer, nameLen uint32, args unsafe.Pointer, argsLen uint32, delay int64, out unsafe.Pointer) uint32

//go:wasmimport spacetime_7.0 _cancel_reducer
func rawCancelReducer(id uint64) uint32

//go:wasmimport spacetime_7.0 _get_table_id
func rawGetTableID(name unsafe.Pointer, nameLen uint32, out unsafe.Pointer) uint32

//go:wasmimport spacetime_7.0 _create_index
func rawCreateIndex(name unsafe.Pointer, nameLen uint32, table uint32, typ uint32, cols unsafe.Pointer, colsLen uint32) uint32

//go:wasmimport spacetime_7.0 _insert
func rawInsert(table uint32, row unsafe.Pointer, rowLen uint32) uint32

//go:wasmimport spacetime_7.0 _delete_by_col_eq
func rawDeleteByColEq(table uint32, col uint32, value unsafe.Pointer, valueLen uint32, out unsafe.Pointer) uint32

//go:wasmimport spacetime_7.0 _iter_by_col_eq
func rawIterByColEq(table uint32, col uint32, value unsafe.Pointer, valueLen uint32, out unsafe.Pointer) uint32

//go:wasmimport spacetime_7.0 _iter_start
func rawIterStart(table uint32, out unsafe.Pointer) uint32

//go:wasmimport spacetime_7.0 _iter_start_filtered
func rawIterStartFiltered(table uint32, filter unsafe.Pointer, filterLen uint32, out unsafe.Pointer) uint32

//go:wasmimport spacetime_7.0 _iter_next
func rawIterNext(iter uint32, out unsafe.Pointer) uint32

//go:wasmimport spacetime_7.0 _iter_drop
func rawIterDrop(iter uint32) uint32

// wasmHost is the Host of a module compiled to WebAssembly.
type wasmHost struct{}

var _ Host = wasmHost{}

func bytesPtr(b []byte) unsafe.Pointer {
	return unsafe.Pointer(unsafe.SliceData(b))
}

func stringPtr(s string) unsafe.Pointer {
	return unsafe.Pointer(unsafe.StringData(s))
}

func (wasmHost) ConsoleLog(level LogLevel, target, filename string, line uint32, message string) {
	rawConsoleLog(uint32(level),
		stringPtr(target), uint32(len(target)),
		stringPtr(filename), uint32(len(filename)),
		line,
		stringPtr(message), uint32(len(message)))
}

func (wasmHost) BufferAlloc(data []byte) RawBuffer {
	return RawBuffer(rawBufferAlloc(bytesPtr(data), uint32(len(data))))
}

func (wasmHost) BufferLen(buf RawBuffer) uint32 {
	return rawBufferLen(uint32(buf))
}

func (wasmHost) BufferConsume(buf RawBuffer, dst []byte) Errno {
	return Errno(rawBufferConsume(uint32(buf), bytesPtr(dst), uint32(len(dst))))
}

func (wasmHost) ScheduleReducer(name string, args []byte, delay TimeDuration) (ScheduleID, Errno) {
	var id uint64
	errno := rawScheduleReducer(stringPtr(name), uint32(len(name)), bytesPtr(args), uint32(len(args)), int64(delay), unsafe.Pointer(&id))
	return ScheduleID(id), Errno(errno)
}

func (wasmHost) CancelReducer(id ScheduleID) Errno {
	return Errno(rawCancelReducer(uint64(id)))
}

func (wasmHost) GetTableID(name string) (TableID, Errno) {
	var id uint32
	errno := rawGetTableID(stringPtr(name), uint32(len(name)), unsafe.Pointer(&id))
	return TableID(id), Errno(errno)
}

func (wasmHost) CreateIndex(name string, table TableID, typ IndexType, cols []ColID) Errno {
	return Errno(rawCreateIndex(stringPtr(name), uint32(len(name)), uint32(table), uint32(typ),
		unsafe.Pointer(unsafe.SliceData(cols)), uint32(len(cols))))
}

func (wasmHost) Insert(table TableID, row []byte) Errno {
	return Errno(rawInsert(uint32(table), bytesPtr(row), uint32(len(row))))
}

func (wasmHost) DeleteByColEq(table TableID, col ColID, value []byte) (uint32, Errno) {
	var n uint32
	errno := rawDeleteByColEq(uint32(table), uint32(col), bytesPtr(value), uint32(len(value)), unsafe.Pointer(&n))
	return n, Errno(errno)
}

func (wasmHost) IterByColEq(table TableID, col ColID, value []byte) (RawBuffer, Errno) {
	var buf uint32
	errno := rawIterByColEq(uint32(table), uint32(col), bytesPtr(value), uint32(len(value)), unsafe.Pointer(&buf))
	return RawBuffer(buf), Errno(errno)
}

func (wasmHost) IterStart(table TableID) (RawIter, Errno) {
	var it uint32
	errno := rawIterStart(uint32(table), unsafe.Pointer(&it))
	return RawIter(it), Errno(errno)
}

func (wasmHost) IterStartFiltered(table TableID, filter []byte) (RawIter, Errno) {
	var it uint32
	errno := rawIterStartFiltered(uint32(table), bytesPtr(filter), uint32(len(filter)), unsafe.Pointer(&it))
	return RawIter(it), Errno(errno)
}

func (wasmHost) IterNext(iter RawIter) (RawBuffer, Errno) {
	var buf uint32
	errno := rawIterNext(uint32(iter), unsafe.Pointer(&buf))
	return RawBuffer(buf), Errno(errno)
}

func (wasmHost) IterDrop(iter RawIter) Errno {
	return Errno(rawIterDrop(uint32(iter)))
}
