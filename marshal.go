package stdb

import (
	"fmt"
	"reflect"
)

// BSATNMarshaler is implemented by types that encode themselves.
type BSATNMarshaler interface {
	MarshalBSATN(w *Writer) error
}

// BSATNUnmarshaler is implemented by types that decode themselves.
type BSATNUnmarshaler interface {
	UnmarshalBSATN(r *Reader) error
}

// Marshal encodes v according to the algebraic type of its Go type. A pointer
// is an option: nil encodes as absent.
func Marshal(v any) ([]byte, error) {
	return AppendMarshal(nil, v)
}

func AppendMarshal(buf []byte, v any) ([]byte, error) {
	w := Writer{Buf: buf}
	if err := MarshalTo(&w, v); err != nil {
		return nil, err
	}
	return w.Buf, nil
}

func MarshalTo(w *Writer, v any) error {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return fmt.Errorf("%w: cannot marshal untyped nil", ErrTypeMismatch)
	}
	return marshalVal(w, rv)
}

func marshalVal(w *Writer, rv reflect.Value) error {
	c, err := codecOf(rv.Type())
	if err != nil {
		return err
	}
	if !rv.CanAddr() {
		tmp := reflect.New(rv.Type()).Elem()
		tmp.Set(rv)
		rv = tmp
	}
	return c.enc(w, rv)
}

// Unmarshal decodes data into the value ptr points to. The whole input must
// be consumed.
func Unmarshal(data []byte, ptr any) error {
	r := NewReader(data)
	if err := UnmarshalFrom(r, ptr); err != nil {
		return err
	}
	return r.Finish()
}

// UnmarshalFrom decodes one value from r, leaving the rest of the input.
func UnmarshalFrom(r *Reader, ptr any) error {
	rv := reflect.ValueOf(ptr)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("%w: Unmarshal needs a non-nil pointer, got %T", ErrTypeMismatch, ptr)
	}
	return unmarshalVal(r, rv.Elem())
}

func unmarshalVal(r *Reader, v reflect.Value) error {
	c, err := codecOf(v.Type())
	if err != nil {
		return err
	}
	return c.dec(r, v)
}
