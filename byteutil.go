package stdb

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"unicode/utf8"
)

func ensureCapacity(buf []byte, minCap int) []byte {
	c := cap(buf)
	if minCap > c {
		if c < 16 {
			c = 16
		}
		for minCap > c {
			c <<= 1
		}
		old := buf
		buf = make([]byte, len(old), c)
		copy(buf, old)
	}
	return buf
}

func grow(buf []byte, n int) (int, []byte) {
	off := len(buf)
	newLen := off + n
	buf = ensureCapacity(buf, newLen)
	return off, buf[:newLen]
}

func appendRaw(buf []byte, chunk []byte) []byte {
	n := len(chunk)
	off, buf := grow(buf, n)
	copy(buf[off:], chunk)
	return buf
}

// Writer appends BSATN-encoded values to Buf.
type Writer struct {
	Buf []byte
}

var _ io.Writer = (*Writer)(nil)

func NewWriter(buf []byte) *Writer {
	return &Writer{Buf: buf}
}

func (w *Writer) Bytes() []byte {
	return w.Buf
}

func (w *Writer) Len() int {
	return len(w.Buf)
}

func (w *Writer) Reset() {
	w.Buf = w.Buf[:0]
}

func (w *Writer) Grow(n int) (off int) {
	off, w.Buf = grow(w.Buf, n)
	return
}

// Write appends raw bytes with no length prefix.
func (w *Writer) Write(b []byte) (int, error) {
	w.Buf = appendRaw(w.Buf, b)
	return len(b), nil
}

func (w *Writer) PutRaw(b []byte) {
	w.Buf = appendRaw(w.Buf, b)
}

func (w *Writer) PutBool(v bool) {
	if v {
		w.PutU8(1)
	} else {
		w.PutU8(0)
	}
}

func (w *Writer) PutU8(v uint8) {
	off := w.Grow(1)
	w.Buf[off] = v
}

func (w *Writer) PutU16(v uint16) {
	off := w.Grow(2)
	binary.LittleEndian.PutUint16(w.Buf[off:], v)
}

func (w *Writer) PutU32(v uint32) {
	off := w.Grow(4)
	binary.LittleEndian.PutUint32(w.Buf[off:], v)
}

func (w *Writer) PutU64(v uint64) {
	off := w.Grow(8)
	binary.LittleEndian.PutUint64(w.Buf[off:], v)
}

func (w *Writer) PutI8(v int8)   { w.PutU8(uint8(v)) }
func (w *Writer) PutI16(v int16) { w.PutU16(uint16(v)) }
func (w *Writer) PutI32(v int32) { w.PutU32(uint32(v)) }
func (w *Writer) PutI64(v int64) { w.PutU64(uint64(v)) }

func (w *Writer) PutU128(v U128) {
	w.PutU64(v.Lo)
	w.PutU64(v.Hi)
}

func (w *Writer) PutI128(v I128) {
	w.PutU64(v.Lo)
	w.PutU64(v.Hi)
}

func (w *Writer) PutU256(v U256) {
	for _, limb := range v {
		w.PutU64(limb)
	}
}

func (w *Writer) PutI256(v I256) {
	for _, limb := range v {
		w.PutU64(limb)
	}
}

func (w *Writer) PutF32(v float32) {
	w.PutU32(math.Float32bits(v))
}

func (w *Writer) PutF64(v float64) {
	w.PutU64(math.Float64bits(v))
}

// PutLen writes a u32 length prefix.
func (w *Writer) PutLen(n int) {
	if n < 0 || uint64(n) > math.MaxUint32 {
		panic(fmt.Errorf("length %d does not fit into u32", n))
	}
	w.PutU32(uint32(n))
}

func (w *Writer) PutString(s string) {
	w.PutLen(len(s))
	off := w.Grow(len(s))
	copy(w.Buf[off:], s)
}

// PutBytes writes b as an array of u8.
func (w *Writer) PutBytes(b []byte) {
	w.PutLen(len(b))
	w.PutRaw(b)
}

func (w *Writer) PutTag(tag uint8) {
	w.PutU8(tag)
}

// Reader decodes BSATN values from Buf; Orig is kept for error reporting.
type Reader struct {
	Orig []byte
	Buf  []byte
}

func NewReader(data []byte) *Reader {
	return &Reader{data, data}
}

func (r *Reader) Off() int {
	return len(r.Orig) - len(r.Buf)
}

func (r *Reader) Remaining() int {
	return len(r.Buf)
}

func (r *Reader) Raw(n int) ([]byte, error) {
	if len(r.Buf) < n {
		return nil, dataErrf(r.Orig, r.Off(), ErrSizeMismatch, "need %d bytes, %d remaining", n, len(r.Buf))
	}
	v := r.Buf[:n]
	r.Buf = r.Buf[n:]
	return v, nil
}

// Finish fails if any bytes remain unread.
func (r *Reader) Finish() error {
	if len(r.Buf) != 0 {
		return dataErrf(r.Orig, r.Off(), ErrTrailingBytes, "%d bytes left after value", len(r.Buf))
	}
	return nil
}

func (r *Reader) Bool() (bool, error) {
	off := r.Off()
	b, err := r.U8()
	if err != nil {
		return false, err
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, dataErrf(r.Orig, off, ErrInvalidBool, "bool byte is %d", b)
	}
}

func (r *Reader) U8() (uint8, error) {
	b, err := r.Raw(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) U16() (uint16, error) {
	b, err := r.Raw(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *Reader) U32() (uint32, error) {
	b, err := r.Raw(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *Reader) U64() (uint64, error) {
	b, err := r.Raw(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *Reader) I8() (int8, error) {
	v, err := r.U8()
	return int8(v), err
}

func (r *Reader) I16() (int16, error) {
	v, err := r.U16()
	return int16(v), err
}

func (r *Reader) I32() (int32, error) {
	v, err := r.U32()
	return int32(v), err
}

func (r *Reader) I64() (int64, error) {
	v, err := r.U64()
	return int64(v), err
}

func (r *Reader) U128() (U128, error) {
	b, err := r.Raw(16)
	if err != nil {
		return U128{}, err
	}
	return U128{Lo: binary.LittleEndian.Uint64(b), Hi: binary.LittleEndian.Uint64(b[8:])}, nil
}

func (r *Reader) I128() (I128, error) {
	u, err := r.U128()
	return I128{Lo: u.Lo, Hi: u.Hi}, err
}

func (r *Reader) U256() (U256, error) {
	var v U256
	b, err := r.Raw(32)
	if err != nil {
		return v, err
	}
	for i := range v {
		v[i] = binary.LittleEndian.Uint64(b[i*8:])
	}
	return v, nil
}

func (r *Reader) I256() (I256, error) {
	u, err := r.U256()
	return I256(u), err
}

func (r *Reader) F32() (float32, error) {
	v, err := r.U32()
	return math.Float32frombits(v), err
}

func (r *Reader) F64() (float64, error) {
	v, err := r.U64()
	return math.Float64frombits(v), err
}

// Len reads a u32 length prefix.
func (r *Reader) Len() (int, error) {
	v, err := r.U32()
	if err != nil {
		return 0, err
	}
	if uint64(v) > math.MaxInt {
		return 0, dataErrf(r.Orig, r.Off()-4, ErrSizeMismatch, "length %d does not fit into int", v)
	}
	return int(v), nil
}

func (r *Reader) String() (string, error) {
	start := r.Off()
	n, err := r.Len()
	if err != nil {
		return "", err
	}
	b, err := r.Raw(n)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", dataErrf(r.Orig, start, ErrInvalidUTF8, "string of %d bytes", n)
	}
	return string(b), nil
}

// Bytes reads an array of u8 and returns a copy.
func (r *Reader) Bytes() ([]byte, error) {
	n, err := r.Len()
	if err != nil {
		return nil, err
	}
	b, err := r.Raw(n)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), b...), nil
}

// Tag reads a sum discriminant and checks it against the number of variants.
// No payload bytes are consumed when the tag is out of range.
func (r *Reader) Tag(variants int) (uint8, error) {
	off := r.Off()
	tag, err := r.U8()
	if err != nil {
		return 0, err
	}
	if int(tag) >= variants {
		return 0, dataErrf(r.Orig, off, ErrInvalidTag, "tag %d, type has %d variants", tag, variants)
	}
	return tag, nil
}

// OptionTag reads an option discriminant: false for absent, true for present.
func (r *Reader) OptionTag() (bool, error) {
	tag, err := r.Tag(2)
	return tag == 1, err
}

// capHint bounds slice preallocation by what the input could possibly hold.
func (r *Reader) capHint(n int) int {
	return min(n, len(r.Buf))
}
