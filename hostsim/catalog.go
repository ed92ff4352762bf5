package hostsim

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/andreyvit/stdb"
)

// tableState is the persistent per-table bookkeeping kept in the catalog
// bucket, keyed by table name.
type tableState struct {
	ID        uint32       `msgpack:"id"`
	NextSeq   uint64       `msgpack:"seq"`
	NextRowID uint64       `msgpack:"row"`
	Indexes   []indexState `msgpack:"idx,omitempty"`
	Created   time.Time    `msgpack:"t"`
}

// indexState records an index created at runtime through CreateIndex.
// Declared indexes come from the module description and are not stored.
type indexState struct {
	Name string   `msgpack:"n"`
	Type uint8    `msgpack:"ty"`
	Cols []uint16 `msgpack:"c"`
}

func (ts *tableState) clone() tableState {
	c := *ts
	c.Indexes = append([]indexState(nil), ts.Indexes...)
	return c
}

func encodeTableState(ts *tableState) []byte {
	return must(msgpack.Marshal(ts))
}

func decodeTableState(tableName string, raw []byte) (*tableState, error) {
	ts := new(tableState)
	if err := msgpack.Unmarshal(raw, ts); err != nil {
		return nil, fmt.Errorf("table %s: failed to decode table state: %w", tableName, err)
	}
	return ts, nil
}

func rowKey(id uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, id)
}

func rowKeyID(key []byte) uint64 {
	return binary.BigEndian.Uint64(key)
}

// txRecord is one committed transaction as written to the commit log.
type txRecord struct {
	Timestamp stdb.Timestamp `msgpack:"ts"`
	Reducer   string         `msgpack:"r,omitempty"`
	Tables    []txTable      `msgpack:"t"`
}

type txTable struct {
	Name    string      `msgpack:"n"`
	Inserts []txRow     `msgpack:"i,omitempty"`
	Deletes []uint64    `msgpack:"d,omitempty"`
	State   *tableState `msgpack:"s,omitempty"`
}

type txRow struct {
	ID   uint64 `msgpack:"id"`
	Data []byte `msgpack:"d"`
}

func encodeTxRecord(rec *txRecord) []byte {
	return must(msgpack.Marshal(rec))
}

func decodeTxRecord(raw []byte) (*txRecord, error) {
	rec := new(txRecord)
	if err := msgpack.Unmarshal(raw, rec); err != nil {
		return nil, fmt.Errorf("failed to decode commit record: %w", err)
	}
	return rec, nil
}
