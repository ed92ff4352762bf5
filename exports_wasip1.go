//go:build wasip1

package stdb

import (
	"encoding/binary"
	"log/slog"
)

// The host calls these two exports. Both need a module installed with
// SetModule during package initialization.

//go:wasmexport __describe_module__
func describeModule() uint32 {
	if registered == nil {
		panic("stdb: no module installed, call SetModule from init")
	}
	data, err := registered.DescribeModule()
	if err != nil {
		panic(err)
	}
	return uint32(wasmHost{}.BufferAlloc(data))
}

// callReducer returns InvalidBuffer on success, or a buffer holding the
// error message.
//
//go:wasmexport __call_reducer__
func callReducer(id uint32, sender0, sender1, sender2, sender3 uint64, conn0, conn1 uint64, timestamp uint64, args uint32) uint32 {
	host := wasmHost{}
	var sender Identity
	for i, w := range [4]uint64{sender0, sender1, sender2, sender3} {
		binary.LittleEndian.PutUint64(sender[i*8:], w)
	}
	var conn ConnectionID
	binary.LittleEndian.PutUint64(conn[0:], conn0)
	binary.LittleEndian.PutUint64(conn[8:], conn1)

	data, err := newBuffer(host, RawBuffer(args)).Read()
	if err == nil {
		err = registered.CallReducer(host, id, sender, conn, Timestamp(timestamp), data)
	}
	if err != nil {
		slog.New(NewConsoleHandler(host, nil)).Error("reducer failed", "id", id, "err", err)
		return uint32(host.BufferAlloc([]byte(err.Error())))
	}
	return uint32(InvalidBuffer)
}
