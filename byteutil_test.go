package stdb

import (
	"errors"
	"math"
	"reflect"
	"testing"
)

func TestWriter_littleEndian(t *testing.T) {
	var w Writer
	w.PutU8(0xAB)
	w.PutU16(0x0102)
	w.PutU32(0x01020304)
	w.PutU64(0x0102030405060708)
	w.PutI16(-2)
	w.PutBool(true)
	w.PutF32(1)
	want := []byte{
		0xAB,
		0x02, 0x01,
		0x04, 0x03, 0x02, 0x01,
		0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01,
		0xFE, 0xFF,
		0x01,
		0x00, 0x00, 0x80, 0x3F,
	}
	if !reflect.DeepEqual(w.Bytes(), want) {
		t.Fatalf("w.Bytes() = %x, wanted %x", w.Bytes(), want)
	}

	w.Reset()
	w.PutString("hé")
	w.PutBytes([]byte{9})
	want = []byte{3, 0, 0, 0, 'h', 0xC3, 0xA9, 1, 0, 0, 0, 9}
	if !reflect.DeepEqual(w.Bytes(), want) {
		t.Fatalf("w.Bytes() = %x, wanted %x", w.Bytes(), want)
	}
}

func TestReader_roundTrip(t *testing.T) {
	var w Writer
	w.PutI8(-1)
	w.PutI32(math.MinInt32)
	w.PutI64(-42)
	w.PutF64(math.Pi)
	w.PutU128(U128From64(7))
	w.PutI128(I128FromInt64(-7))
	w.PutU256(U256From64(9))
	w.PutString("ok")
	w.PutBytes(nil)

	r := NewReader(w.Bytes())
	deepEq(t, must(r.I8()), int8(-1))
	deepEq(t, must(r.I32()), int32(math.MinInt32))
	deepEq(t, must(r.I64()), int64(-42))
	deepEq(t, must(r.F64()), math.Pi)
	deepEq(t, must(r.U128()), U128From64(7))
	deepEq(t, must(r.I128()), I128FromInt64(-7))
	deepEq(t, must(r.U256()), U256From64(9))
	deepEq(t, must(r.String()), "ok")
	deepEq(t, len(must(r.Bytes())), 0)
	ensure(r.Finish())
}

func TestReader_errors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		read func(r *Reader) error
		want error
	}{
		{"short u32", []byte{1, 2, 3}, func(r *Reader) error { _, err := r.U32(); return err }, ErrSizeMismatch},
		{"bool 2", []byte{2}, func(r *Reader) error { _, err := r.Bool(); return err }, ErrInvalidBool},
		{"bad utf8", []byte{2, 0, 0, 0, 0xFF, 0xFE}, func(r *Reader) error { _, err := r.String(); return err }, ErrInvalidUTF8},
		{"short string", []byte{5, 0, 0, 0, 'a'}, func(r *Reader) error { _, err := r.String(); return err }, ErrSizeMismatch},
		{"tag out of range", []byte{3}, func(r *Reader) error { _, err := r.Tag(3); return err }, ErrInvalidTag},
		{"option tag 2", []byte{2}, func(r *Reader) error { _, err := r.OptionTag(); return err }, ErrInvalidTag},
		{"trailing", []byte{1, 2}, func(r *Reader) error { r.U8(); return r.Finish() }, ErrTrailingBytes},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.read(NewReader(tt.data))
			if !errors.Is(err, tt.want) {
				t.Fatalf("** got %v, wanted %v", err, tt.want)
			}
			var de *DataError
			if !errors.As(err, &de) {
				t.Fatalf("** %T is not a *DataError", err)
			}
		})
	}
}

func TestReader_tagConsumesNoPayload(t *testing.T) {
	r := NewReader([]byte{5, 1, 2})
	if _, err := r.Tag(2); err == nil {
		t.Fatal("** Tag(2) accepted 5")
	}
	deepEq(t, r.Remaining(), 2)
}

func TestReader_capHint(t *testing.T) {
	r := NewReader([]byte{0xFF, 0xFF, 0xFF, 0x7F})
	n := must(r.Len())
	deepEq(t, n, math.MaxInt32)
	deepEq(t, r.capHint(n), 0)
}
