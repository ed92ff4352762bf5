package stdb

import (
	"fmt"
)

// Encode encodes a dynamic value of type ty. References in ty are resolved
// through ts, which may be nil when ty has none.
func Encode(ts *Typespace, ty *AlgebraicType, v any) ([]byte, error) {
	var w Writer
	err := EncodeTo(&w, ts, ty, v)
	if err != nil {
		return nil, err
	}
	return w.Buf, nil
}

// Decode decodes a whole dynamic value of type ty. Trailing bytes are an error.
func Decode(ts *Typespace, ty *AlgebraicType, data []byte) (any, error) {
	r := NewReader(data)
	v, err := DecodeFrom(r, ts, ty)
	if err != nil {
		return nil, err
	}
	if err := r.Finish(); err != nil {
		return nil, err
	}
	return v, nil
}

func mismatch(ty *AlgebraicType, v any) error {
	return fmt.Errorf("%w: %v cannot hold %T", ErrTypeMismatch, ty, v)
}

func EncodeTo(w *Writer, ts *Typespace, ty *AlgebraicType, v any) error {
	switch ty.Kind {
	case KindRef:
		rt, err := ts.Resolve(ty)
		if err != nil {
			return err
		}
		return EncodeTo(w, ts, rt, v)
	case KindBool:
		b, ok := v.(bool)
		if !ok {
			return mismatch(ty, v)
		}
		w.PutBool(b)
	case KindU8:
		n, ok := v.(uint8)
		if !ok {
			return mismatch(ty, v)
		}
		w.PutU8(n)
	case KindU16:
		n, ok := v.(uint16)
		if !ok {
			return mismatch(ty, v)
		}
		w.PutU16(n)
	case KindU32:
		n, ok := v.(uint32)
		if !ok {
			return mismatch(ty, v)
		}
		w.PutU32(n)
	case KindU64:
		n, ok := v.(uint64)
		if !ok {
			return mismatch(ty, v)
		}
		w.PutU64(n)
	case KindI8:
		n, ok := v.(int8)
		if !ok {
			return mismatch(ty, v)
		}
		w.PutI8(n)
	case KindI16:
		n, ok := v.(int16)
		if !ok {
			return mismatch(ty, v)
		}
		w.PutI16(n)
	case KindI32:
		n, ok := v.(int32)
		if !ok {
			return mismatch(ty, v)
		}
		w.PutI32(n)
	case KindI64:
		n, ok := v.(int64)
		if !ok {
			return mismatch(ty, v)
		}
		w.PutI64(n)
	case KindU128:
		n, ok := v.(U128)
		if !ok {
			return mismatch(ty, v)
		}
		w.PutU128(n)
	case KindI128:
		n, ok := v.(I128)
		if !ok {
			return mismatch(ty, v)
		}
		w.PutI128(n)
	case KindU256:
		n, ok := v.(U256)
		if !ok {
			return mismatch(ty, v)
		}
		w.PutU256(n)
	case KindI256:
		n, ok := v.(I256)
		if !ok {
			return mismatch(ty, v)
		}
		w.PutI256(n)
	case KindF32:
		f, ok := v.(float32)
		if !ok {
			return mismatch(ty, v)
		}
		w.PutF32(f)
	case KindF64:
		f, ok := v.(float64)
		if !ok {
			return mismatch(ty, v)
		}
		w.PutF64(f)
	case KindString:
		s, ok := v.(string)
		if !ok {
			return mismatch(ty, v)
		}
		w.PutString(s)
	case KindArray:
		if ty.Elem.Kind == KindU8 {
			if b, ok := v.([]byte); ok {
				w.PutBytes(b)
				return nil
			}
		}
		elems, ok := v.(ArrayValue)
		if !ok {
			return mismatch(ty, v)
		}
		w.PutLen(len(elems))
		for i, e := range elems {
			if err := EncodeTo(w, ts, ty.Elem, e); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}
	case KindOption:
		o, ok := v.(OptionValue)
		if !ok {
			return mismatch(ty, v)
		}
		if !o.Some {
			w.PutU8(0)
			return nil
		}
		w.PutU8(1)
		return EncodeTo(w, ts, ty.Elem, o.Value)
	case KindProduct:
		fields, ok := v.(ProductValue)
		if !ok && v == nil && len(ty.Elements) == 0 {
			return nil
		}
		if !ok || len(fields) != len(ty.Elements) {
			return mismatch(ty, v)
		}
		for i, e := range ty.Elements {
			if err := EncodeTo(w, ts, e.Type, fields[i]); err != nil {
				return fmt.Errorf("%s: %w", elementLabel(e, i), err)
			}
		}
	case KindSum:
		s, ok := v.(SumValue)
		if !ok || int(s.Tag) >= len(ty.Elements) {
			return mismatch(ty, v)
		}
		w.PutTag(s.Tag)
		e := ty.Elements[s.Tag]
		if err := EncodeTo(w, ts, e.Type, s.Value); err != nil {
			return fmt.Errorf("%s: %w", elementLabel(e, int(s.Tag)), err)
		}
	default:
		return fmt.Errorf("%w: kind %v", ErrUnsupportedType, ty.Kind)
	}
	return nil
}

func elementLabel(e Element, i int) string {
	if e.Name != "" {
		return e.Name
	}
	return fmt.Sprintf("#%d", i)
}

func DecodeFrom(r *Reader, ts *Typespace, ty *AlgebraicType) (any, error) {
	switch ty.Kind {
	case KindRef:
		rt, err := ts.Resolve(ty)
		if err != nil {
			return nil, err
		}
		return DecodeFrom(r, ts, rt)
	case KindBool:
		return r.Bool()
	case KindU8:
		return r.U8()
	case KindU16:
		return r.U16()
	case KindU32:
		return r.U32()
	case KindU64:
		return r.U64()
	case KindI8:
		return r.I8()
	case KindI16:
		return r.I16()
	case KindI32:
		return r.I32()
	case KindI64:
		return r.I64()
	case KindU128:
		return r.U128()
	case KindI128:
		return r.I128()
	case KindU256:
		return r.U256()
	case KindI256:
		return r.I256()
	case KindF32:
		return r.F32()
	case KindF64:
		return r.F64()
	case KindString:
		return r.String()
	case KindArray:
		if ty.Elem.Kind == KindU8 {
			return r.Bytes()
		}
		n, err := r.Len()
		if err != nil {
			return nil, err
		}
		elems := make(ArrayValue, 0, r.capHint(n))
		for range n {
			e, err := DecodeFrom(r, ts, ty.Elem)
			if err != nil {
				return nil, err
			}
			elems = append(elems, e)
		}
		return elems, nil
	case KindOption:
		present, err := r.OptionTag()
		if err != nil {
			return nil, err
		}
		if !present {
			return None, nil
		}
		v, err := DecodeFrom(r, ts, ty.Elem)
		if err != nil {
			return nil, err
		}
		return Some(v), nil
	case KindProduct:
		fields := make(ProductValue, len(ty.Elements))
		for i, e := range ty.Elements {
			v, err := DecodeFrom(r, ts, e.Type)
			if err != nil {
				return nil, err
			}
			fields[i] = v
		}
		return fields, nil
	case KindSum:
		tag, err := r.Tag(len(ty.Elements))
		if err != nil {
			return nil, err
		}
		v, err := DecodeFrom(r, ts, ty.Elements[tag].Type)
		if err != nil {
			return nil, err
		}
		return SumValue{Tag: tag, Value: v}, nil
	default:
		return nil, fmt.Errorf("%w: kind %v", ErrUnsupportedType, ty.Kind)
	}
}

// Skip advances r past one value of type ty without materializing it.
func Skip(r *Reader, ts *Typespace, ty *AlgebraicType) error {
	if n := ty.FixedSize(); n > 0 {
		if ty.Kind == KindBool {
			_, err := r.Bool()
			return err
		}
		_, err := r.Raw(n)
		return err
	}
	switch ty.Kind {
	case KindRef:
		rt, err := ts.Resolve(ty)
		if err != nil {
			return err
		}
		return Skip(r, ts, rt)
	case KindString:
		_, err := r.String()
		return err
	case KindArray:
		n, err := r.Len()
		if err != nil {
			return err
		}
		if size := ty.Elem.FixedSize(); size > 0 && ty.Elem.Kind != KindBool {
			_, err := r.Raw(n * size)
			return err
		}
		for range n {
			if err := Skip(r, ts, ty.Elem); err != nil {
				return err
			}
		}
	case KindOption:
		present, err := r.OptionTag()
		if err != nil || !present {
			return err
		}
		return Skip(r, ts, ty.Elem)
	case KindProduct:
		for _, e := range ty.Elements {
			if err := Skip(r, ts, e.Type); err != nil {
				return err
			}
		}
	case KindSum:
		tag, err := r.Tag(len(ty.Elements))
		if err != nil {
			return err
		}
		return Skip(r, ts, ty.Elements[tag].Type)
	default:
		return fmt.Errorf("%w: kind %v", ErrUnsupportedType, ty.Kind)
	}
	return nil
}

// ColumnBytes returns the encoding of column col within an encoded row of
// product type rowType. The result aliases row.
func ColumnBytes(ts *Typespace, rowType *AlgebraicType, row []byte, col int) ([]byte, error) {
	pt, err := ts.Resolve(rowType)
	if err != nil {
		return nil, err
	}
	if pt.Kind != KindProduct || col < 0 || col >= len(pt.Elements) {
		return nil, fmt.Errorf("%w: column %d of %v", ErrUnknownColumn, col, pt)
	}
	r := NewReader(row)
	for i := 0; i < col; i++ {
		if err := Skip(r, ts, pt.Elements[i].Type); err != nil {
			return nil, err
		}
	}
	start := r.Off()
	if err := Skip(r, ts, pt.Elements[col].Type); err != nil {
		return nil, err
	}
	return row[start:r.Off()], nil
}
