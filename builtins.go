package stdb

import (
	"encoding/hex"
	"fmt"
	"time"
)

// Identity identifies a caller. On the wire it is a u256, 32 raw bytes with
// no length prefix.
type Identity [32]byte

func IdentityFromHex(s string) (Identity, error) {
	var id Identity
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("invalid identity %q: %w", s, err)
	}
	if len(b) != len(id) {
		return id, fmt.Errorf("invalid identity %q: %d bytes, wanted %d", s, len(b), len(id))
	}
	copy(id[:], b)
	return id, nil
}

func (id Identity) String() string {
	return hex.EncodeToString(id[:])
}

func (id Identity) IsZero() bool {
	return id == Identity{}
}

func (id Identity) BSATNType(ts *Typespace) *AlgebraicType {
	return Product(Field("__identity__", U256Type))
}

func (id *Identity) MarshalBSATN(w *Writer) error {
	w.PutRaw(id[:])
	return nil
}

func (id *Identity) UnmarshalBSATN(r *Reader) error {
	b, err := r.Raw(len(id))
	if err != nil {
		return err
	}
	copy(id[:], b)
	return nil
}

// ConnectionID identifies one client connection. On the wire it is a u128.
// The zero value means no connection.
type ConnectionID [16]byte

func (c ConnectionID) String() string {
	return hex.EncodeToString(c[:])
}

func (c ConnectionID) IsZero() bool {
	return c == ConnectionID{}
}

func (c ConnectionID) BSATNType(ts *Typespace) *AlgebraicType {
	return Product(Field("__connection_id__", U128Type))
}

func (c *ConnectionID) MarshalBSATN(w *Writer) error {
	w.PutRaw(c[:])
	return nil
}

func (c *ConnectionID) UnmarshalBSATN(r *Reader) error {
	b, err := r.Raw(len(c))
	if err != nil {
		return err
	}
	copy(c[:], b)
	return nil
}

// Timestamp counts microseconds since the Unix epoch.
type Timestamp uint64

func TimestampFromTime(t time.Time) Timestamp {
	return Timestamp(t.UnixMicro())
}

func (ts Timestamp) Micros() uint64 {
	return uint64(ts)
}

func (ts Timestamp) Time() time.Time {
	return time.UnixMicro(int64(ts)).UTC()
}

func (ts Timestamp) Add(d TimeDuration) Timestamp {
	return Timestamp(int64(ts) + int64(d))
}

func (ts Timestamp) Sub(o Timestamp) TimeDuration {
	return TimeDuration(int64(ts) - int64(o))
}

func (ts Timestamp) String() string {
	return ts.Time().Format(time.RFC3339Nano)
}

func (ts Timestamp) BSATNType(*Typespace) *AlgebraicType {
	return Product(Field("__timestamp_micros_since_unix_epoch__", U64Type))
}

func (ts *Timestamp) MarshalBSATN(w *Writer) error {
	w.PutU64(uint64(*ts))
	return nil
}

func (ts *Timestamp) UnmarshalBSATN(r *Reader) error {
	v, err := r.U64()
	*ts = Timestamp(v)
	return err
}

// TimeDuration is a signed span of microseconds.
type TimeDuration int64

func DurationOf(d time.Duration) TimeDuration {
	return TimeDuration(d.Microseconds())
}

func (d TimeDuration) Micros() int64 {
	return int64(d)
}

func (d TimeDuration) Duration() time.Duration {
	return time.Duration(d) * time.Microsecond
}

func (d TimeDuration) String() string {
	return d.Duration().String()
}

func (d TimeDuration) BSATNType(*Typespace) *AlgebraicType {
	return Product(Field("__time_duration_micros__", I64Type))
}

func (d *TimeDuration) MarshalBSATN(w *Writer) error {
	w.PutI64(int64(*d))
	return nil
}

func (d *TimeDuration) UnmarshalBSATN(r *Reader) error {
	v, err := r.I64()
	*d = TimeDuration(v)
	return err
}

// ScheduleID identifies a scheduled reducer call.
type ScheduleID uint64
