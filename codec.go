package stdb

import (
	"fmt"
	"reflect"
	"sync"
)

// codec encodes and decodes values of one Go type. Values handed to enc and
// dec are always addressable.
type codec struct {
	typ reflect.Type
	enc func(w *Writer, v reflect.Value) error
	dec func(r *Reader, v reflect.Value) error
}

var codecCache sync.Map // reflect.Type -> *codec

func codecOf(rt reflect.Type) (*codec, error) {
	if v, ok := codecCache.Load(rt); ok {
		return v.(*codec), nil
	}
	b := codecBuilder{building: make(map[reflect.Type]*codec)}
	c, err := b.build(rt)
	if err != nil {
		return nil, err
	}
	for t, bc := range b.building {
		codecCache.LoadOrStore(t, bc)
	}
	actual, _ := codecCache.Load(rt)
	if actual == nil {
		return c, nil
	}
	return actual.(*codec), nil
}

type codecBuilder struct {
	building map[reflect.Type]*codec
}

func (b *codecBuilder) build(rt reflect.Type) (*codec, error) {
	if v, ok := codecCache.Load(rt); ok {
		return v.(*codec), nil
	}
	if c := b.building[rt]; c != nil {
		return c, nil
	}
	c := &codec{typ: rt}
	b.building[rt] = c
	if err := b.fill(c, rt); err != nil {
		delete(b.building, rt)
		return nil, err
	}
	return c, nil
}

func (b *codecBuilder) fill(c *codec, rt reflect.Type) error {
	if rt.Kind() == reflect.Pointer && rt.Implements(marshalerType) && rt.Implements(unmarshalerType) {
		c.enc = func(w *Writer, v reflect.Value) error {
			if v.IsNil() {
				return fmt.Errorf("%w: nil %v", ErrTypeMismatch, rt)
			}
			return v.Interface().(BSATNMarshaler).MarshalBSATN(w)
		}
		c.dec = func(r *Reader, v reflect.Value) error {
			if v.IsNil() {
				v.Set(reflect.New(rt.Elem()))
			}
			return v.Interface().(BSATNUnmarshaler).UnmarshalBSATN(r)
		}
		return nil
	}
	if pt := reflect.PointerTo(rt); rt.Kind() != reflect.Interface && pt.Implements(marshalerType) && pt.Implements(unmarshalerType) {
		c.enc = func(w *Writer, v reflect.Value) error {
			return v.Addr().Interface().(BSATNMarshaler).MarshalBSATN(w)
		}
		c.dec = func(r *Reader, v reflect.Value) error {
			return v.Addr().Interface().(BSATNUnmarshaler).UnmarshalBSATN(r)
		}
		return nil
	}

	switch rt {
	case u128Type:
		c.enc = func(w *Writer, v reflect.Value) error {
			w.PutU128(v.Interface().(U128))
			return nil
		}
		c.dec = func(r *Reader, v reflect.Value) error {
			n, err := r.U128()
			v.Set(reflect.ValueOf(n))
			return err
		}
		return nil
	case i128Type:
		c.enc = func(w *Writer, v reflect.Value) error {
			w.PutI128(v.Interface().(I128))
			return nil
		}
		c.dec = func(r *Reader, v reflect.Value) error {
			n, err := r.I128()
			v.Set(reflect.ValueOf(n))
			return err
		}
		return nil
	case u256Type:
		c.enc = func(w *Writer, v reflect.Value) error {
			w.PutU256(v.Interface().(U256))
			return nil
		}
		c.dec = func(r *Reader, v reflect.Value) error {
			n, err := r.U256()
			v.Set(reflect.ValueOf(n))
			return err
		}
		return nil
	case i256Type:
		c.enc = func(w *Writer, v reflect.Value) error {
			w.PutI256(v.Interface().(I256))
			return nil
		}
		c.dec = func(r *Reader, v reflect.Value) error {
			n, err := r.I256()
			v.Set(reflect.ValueOf(n))
			return err
		}
		return nil
	}

	if info := sumOf(rt); info != nil {
		if info.enum {
			return b.fillEnum(c, info)
		}
		return b.fillSum(c, info)
	}

	switch rt.Kind() {
	case reflect.Bool:
		c.enc = func(w *Writer, v reflect.Value) error {
			w.PutBool(v.Bool())
			return nil
		}
		c.dec = func(r *Reader, v reflect.Value) error {
			x, err := r.Bool()
			v.SetBool(x)
			return err
		}
	case reflect.Int8:
		c.enc = func(w *Writer, v reflect.Value) error {
			w.PutI8(int8(v.Int()))
			return nil
		}
		c.dec = func(r *Reader, v reflect.Value) error {
			x, err := r.I8()
			v.SetInt(int64(x))
			return err
		}
	case reflect.Int16:
		c.enc = func(w *Writer, v reflect.Value) error {
			w.PutI16(int16(v.Int()))
			return nil
		}
		c.dec = func(r *Reader, v reflect.Value) error {
			x, err := r.I16()
			v.SetInt(int64(x))
			return err
		}
	case reflect.Int32:
		c.enc = func(w *Writer, v reflect.Value) error {
			w.PutI32(int32(v.Int()))
			return nil
		}
		c.dec = func(r *Reader, v reflect.Value) error {
			x, err := r.I32()
			v.SetInt(int64(x))
			return err
		}
	case reflect.Int64, reflect.Int:
		c.enc = func(w *Writer, v reflect.Value) error {
			w.PutI64(v.Int())
			return nil
		}
		c.dec = func(r *Reader, v reflect.Value) error {
			x, err := r.I64()
			if err == nil && v.OverflowInt(x) {
				return fmt.Errorf("%w: %d overflows %v", ErrTypeMismatch, x, rt)
			}
			v.SetInt(x)
			return err
		}
	case reflect.Uint8:
		c.enc = func(w *Writer, v reflect.Value) error {
			w.PutU8(uint8(v.Uint()))
			return nil
		}
		c.dec = func(r *Reader, v reflect.Value) error {
			x, err := r.U8()
			v.SetUint(uint64(x))
			return err
		}
	case reflect.Uint16:
		c.enc = func(w *Writer, v reflect.Value) error {
			w.PutU16(uint16(v.Uint()))
			return nil
		}
		c.dec = func(r *Reader, v reflect.Value) error {
			x, err := r.U16()
			v.SetUint(uint64(x))
			return err
		}
	case reflect.Uint32:
		c.enc = func(w *Writer, v reflect.Value) error {
			w.PutU32(uint32(v.Uint()))
			return nil
		}
		c.dec = func(r *Reader, v reflect.Value) error {
			x, err := r.U32()
			v.SetUint(uint64(x))
			return err
		}
	case reflect.Uint64, reflect.Uint:
		c.enc = func(w *Writer, v reflect.Value) error {
			w.PutU64(v.Uint())
			return nil
		}
		c.dec = func(r *Reader, v reflect.Value) error {
			x, err := r.U64()
			if err == nil && v.OverflowUint(x) {
				return fmt.Errorf("%w: %d overflows %v", ErrTypeMismatch, x, rt)
			}
			v.SetUint(x)
			return err
		}
	case reflect.Float32:
		c.enc = func(w *Writer, v reflect.Value) error {
			w.PutF32(float32(v.Float()))
			return nil
		}
		c.dec = func(r *Reader, v reflect.Value) error {
			x, err := r.F32()
			v.SetFloat(float64(x))
			return err
		}
	case reflect.Float64:
		c.enc = func(w *Writer, v reflect.Value) error {
			w.PutF64(v.Float())
			return nil
		}
		c.dec = func(r *Reader, v reflect.Value) error {
			x, err := r.F64()
			v.SetFloat(x)
			return err
		}
	case reflect.String:
		c.enc = func(w *Writer, v reflect.Value) error {
			w.PutString(v.String())
			return nil
		}
		c.dec = func(r *Reader, v reflect.Value) error {
			s, err := r.String()
			v.SetString(s)
			return err
		}
	case reflect.Slice:
		if rt.Elem() == byteType {
			c.enc = func(w *Writer, v reflect.Value) error {
				w.PutBytes(v.Bytes())
				return nil
			}
			c.dec = func(r *Reader, v reflect.Value) error {
				data, err := r.Bytes()
				if err != nil {
					return err
				}
				if len(data) == 0 {
					data = nil
				}
				v.SetBytes(data)
				return nil
			}
			return nil
		}
		ec, err := b.build(rt.Elem())
		if err != nil {
			return err
		}
		c.enc = func(w *Writer, v reflect.Value) error {
			n := v.Len()
			w.PutLen(n)
			for i := range n {
				if err := ec.enc(w, v.Index(i)); err != nil {
					return err
				}
			}
			return nil
		}
		c.dec = func(r *Reader, v reflect.Value) error {
			n, err := r.Len()
			if err != nil {
				return err
			}
			if n == 0 {
				v.SetZero()
				return nil
			}
			s := reflect.MakeSlice(rt, 0, r.capHint(n))
			zero := reflect.Zero(rt.Elem())
			for i := range n {
				s = reflect.Append(s, zero)
				if err := ec.dec(r, s.Index(i)); err != nil {
					return err
				}
			}
			v.Set(s)
			return nil
		}
	case reflect.Array:
		ec, err := b.build(rt.Elem())
		if err != nil {
			return err
		}
		size := rt.Len()
		c.enc = func(w *Writer, v reflect.Value) error {
			w.PutLen(size)
			for i := range size {
				if err := ec.enc(w, v.Index(i)); err != nil {
					return err
				}
			}
			return nil
		}
		c.dec = func(r *Reader, v reflect.Value) error {
			off := r.Off()
			n, err := r.Len()
			if err != nil {
				return err
			}
			if n != size {
				return dataErrf(r.Orig, off, ErrLengthMismatch, "%d elements, %v holds %d", n, rt, size)
			}
			for i := range size {
				if err := ec.dec(r, v.Index(i)); err != nil {
					return err
				}
			}
			return nil
		}
	case reflect.Pointer:
		ec, err := b.build(rt.Elem())
		if err != nil {
			return err
		}
		c.enc = func(w *Writer, v reflect.Value) error {
			if v.IsNil() {
				w.PutU8(0)
				return nil
			}
			w.PutU8(1)
			return ec.enc(w, v.Elem())
		}
		c.dec = func(r *Reader, v reflect.Value) error {
			present, err := r.OptionTag()
			if err != nil {
				return err
			}
			if !present {
				v.SetZero()
				return nil
			}
			p := reflect.New(rt.Elem())
			if err := ec.dec(r, p.Elem()); err != nil {
				return err
			}
			v.Set(p)
			return nil
		}
	case reflect.Struct:
		fields := structFields(rt)
		fcs := make([]*codec, len(fields))
		for i, f := range fields {
			fc, err := b.build(f.typ)
			if err != nil {
				return fmt.Errorf("%v.%s: %w", rt, f.name, err)
			}
			fcs[i] = fc
		}
		c.enc = func(w *Writer, v reflect.Value) error {
			for i, f := range fields {
				if err := fcs[i].enc(w, v.FieldByIndex(f.index)); err != nil {
					return err
				}
			}
			return nil
		}
		c.dec = func(r *Reader, v reflect.Value) error {
			for i, f := range fields {
				if err := fcs[i].dec(r, v.FieldByIndex(f.index)); err != nil {
					return err
				}
			}
			return nil
		}
	default:
		return fmt.Errorf("%w: %v", ErrUnsupportedType, rt)
	}
	return nil
}

func (b *codecBuilder) fillEnum(c *codec, info *sumInfo) error {
	n := len(info.names)
	c.enc = func(w *Writer, v reflect.Value) error {
		tag := v.Uint()
		if tag >= uint64(n) {
			return fmt.Errorf("%w: %s has no variant %d", ErrTypeMismatch, info.name, tag)
		}
		w.PutTag(uint8(tag))
		return nil
	}
	c.dec = func(r *Reader, v reflect.Value) error {
		tag, err := r.Tag(n)
		if err != nil {
			return err
		}
		v.SetUint(uint64(tag))
		return nil
	}
	return nil
}

func (b *codecBuilder) fillSum(c *codec, info *sumInfo) error {
	ccs := make([]*codec, len(info.cases))
	for i, ct := range info.cases {
		cc, err := b.build(ct)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", info.name, info.names[i], err)
		}
		ccs[i] = cc
	}
	c.enc = func(w *Writer, v reflect.Value) error {
		if v.IsNil() {
			return fmt.Errorf("%w: nil %s", ErrTypeMismatch, info.name)
		}
		payload := v.Elem()
		tag, ok := info.tags[payload.Type()]
		if !ok {
			return fmt.Errorf("%w: %v is not a variant of %s", ErrTypeMismatch, payload.Type(), info.name)
		}
		w.PutTag(tag)
		tmp := reflect.New(payload.Type()).Elem()
		tmp.Set(payload)
		return ccs[tag].enc(w, tmp)
	}
	c.dec = func(r *Reader, v reflect.Value) error {
		tag, err := r.Tag(len(ccs))
		if err != nil {
			return err
		}
		tmp := reflect.New(info.cases[tag]).Elem()
		if err := ccs[tag].dec(r, tmp); err != nil {
			return err
		}
		v.Set(tmp)
		return nil
	}
	return nil
}
