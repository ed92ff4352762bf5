package sandbox

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strconv"

	"github.com/go-json-experiment/json/jsontext"

	"github.com/andreyvit/stdb"
)

// JSON mapping of dynamic values:
//
//	integers up to 64 bits    numbers
//	wider integers            decimal strings
//	array<u8>                 hex string
//	option                    null or the value
//	product                   object keyed by element name, "_<i>" if unnamed
//	sum                       object with one key, the variant name
var ErrBadJSON = errors.New("invalid JSON value")

func elementKey(e stdb.Element, i int) string {
	if e.Name != "" {
		return e.Name
	}
	return "_" + strconv.Itoa(i)
}

func writeValue(enc *jsontext.Encoder, ts *stdb.Typespace, ty *stdb.AlgebraicType, v any) error {
	if ty.Kind == stdb.KindRef {
		rt, err := ts.Resolve(ty)
		if err != nil {
			return err
		}
		ty = rt
	}
	switch v := v.(type) {
	case bool:
		return enc.WriteToken(jsontext.Bool(v))
	case int8:
		return enc.WriteToken(jsontext.Int(int64(v)))
	case int16:
		return enc.WriteToken(jsontext.Int(int64(v)))
	case int32:
		return enc.WriteToken(jsontext.Int(int64(v)))
	case int64:
		return enc.WriteToken(jsontext.Int(v))
	case uint8:
		return enc.WriteToken(jsontext.Uint(uint64(v)))
	case uint16:
		return enc.WriteToken(jsontext.Uint(uint64(v)))
	case uint32:
		return enc.WriteToken(jsontext.Uint(uint64(v)))
	case uint64:
		return enc.WriteToken(jsontext.Uint(v))
	case float32:
		return enc.WriteToken(jsontext.Float(float64(v)))
	case float64:
		return enc.WriteToken(jsontext.Float(v))
	case string:
		return enc.WriteToken(jsontext.String(v))
	case stdb.U128:
		return enc.WriteToken(jsontext.String(v.String()))
	case stdb.I128:
		return enc.WriteToken(jsontext.String(v.String()))
	case stdb.U256:
		return enc.WriteToken(jsontext.String(v.Dec()))
	case stdb.I256:
		return enc.WriteToken(jsontext.String(v.String()))
	case []byte:
		return enc.WriteToken(jsontext.String(hex.EncodeToString(v)))
	case stdb.ArrayValue:
		if ty.Kind != stdb.KindArray {
			return fmt.Errorf("%w: array for %v", stdb.ErrTypeMismatch, ty)
		}
		if err := enc.WriteToken(jsontext.BeginArray); err != nil {
			return err
		}
		for _, e := range v {
			if err := writeValue(enc, ts, ty.Elem, e); err != nil {
				return err
			}
		}
		return enc.WriteToken(jsontext.EndArray)
	case stdb.OptionValue:
		if !v.Some {
			return enc.WriteToken(jsontext.Null)
		}
		return writeValue(enc, ts, ty.Elem, v.Value)
	case stdb.ProductValue:
		if len(v) != len(ty.Elements) {
			return fmt.Errorf("%w: %d fields for %v", stdb.ErrTypeMismatch, len(v), ty)
		}
		if err := enc.WriteToken(jsontext.BeginObject); err != nil {
			return err
		}
		for i, e := range ty.Elements {
			if err := enc.WriteToken(jsontext.String(elementKey(e, i))); err != nil {
				return err
			}
			if err := writeValue(enc, ts, e.Type, v[i]); err != nil {
				return err
			}
		}
		return enc.WriteToken(jsontext.EndObject)
	case stdb.SumValue:
		if int(v.Tag) >= len(ty.Elements) {
			return fmt.Errorf("%w: tag %d for %v", stdb.ErrInvalidTag, v.Tag, ty)
		}
		e := ty.Elements[v.Tag]
		if err := enc.WriteToken(jsontext.BeginObject); err != nil {
			return err
		}
		if err := enc.WriteToken(jsontext.String(elementKey(e, int(v.Tag)))); err != nil {
			return err
		}
		if err := writeValue(enc, ts, e.Type, v.Value); err != nil {
			return err
		}
		return enc.WriteToken(jsontext.EndObject)
	default:
		return fmt.Errorf("%w: %T", stdb.ErrUnsupportedType, v)
	}
}

// RowJSON renders one BSATN-encoded value of type ty as JSON.
func RowJSON(ts *stdb.Typespace, ty *stdb.AlgebraicType, data []byte) (jsontext.Value, error) {
	v, err := stdb.Decode(ts, ty, data)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := jsontext.NewEncoder(&buf)
	if err := writeValue(enc, ts, ty, v); err != nil {
		return nil, err
	}
	return jsontext.Value(bytes.TrimSpace(buf.Bytes())), nil
}

// EncodeJSON parses a JSON value of type ty and returns its BSATN encoding.
func EncodeJSON(ts *stdb.Typespace, ty *stdb.AlgebraicType, in jsontext.Value) ([]byte, error) {
	dec := jsontext.NewDecoder(bytes.NewReader(in))
	v, err := readValue(dec, ts, ty)
	if err != nil {
		if !errors.Is(err, ErrBadJSON) {
			err = fmt.Errorf("%w: %w", ErrBadJSON, err)
		}
		return nil, err
	}
	if _, err := dec.ReadToken(); err != io.EOF {
		return nil, badJSON(ty, "trailing data")
	}
	return stdb.Encode(ts, ty, v)
}

func badJSON(ty *stdb.AlgebraicType, format string, args ...any) error {
	return fmt.Errorf("%w for %v: %s", ErrBadJSON, ty, fmt.Sprintf(format, args...))
}

func readValue(dec *jsontext.Decoder, ts *stdb.Typespace, ty *stdb.AlgebraicType) (any, error) {
	if ty.Kind == stdb.KindRef {
		rt, err := ts.Resolve(ty)
		if err != nil {
			return nil, err
		}
		ty = rt
	}

	if ty.Kind == stdb.KindOption {
		if dec.PeekKind() == 'n' {
			if _, err := dec.ReadToken(); err != nil {
				return nil, err
			}
			return stdb.None, nil
		}
		v, err := readValue(dec, ts, ty.Elem)
		if err != nil {
			return nil, err
		}
		return stdb.Some(v), nil
	}

	switch ty.Kind {
	case stdb.KindArray:
		if ty.Elem.Kind == stdb.KindU8 {
			s, err := readString(dec, ty)
			if err != nil {
				return nil, err
			}
			b, err := hex.DecodeString(s)
			if err != nil {
				return nil, badJSON(ty, "%v", err)
			}
			return b, nil
		}
		if err := expectDelim(dec, ty, '['); err != nil {
			return nil, err
		}
		elems := stdb.ArrayValue{}
		for dec.PeekKind() != ']' {
			e, err := readValue(dec, ts, ty.Elem)
			if err != nil {
				return nil, err
			}
			elems = append(elems, e)
		}
		_, err := dec.ReadToken()
		return elems, err

	case stdb.KindProduct:
		if err := expectDelim(dec, ty, '{'); err != nil {
			return nil, err
		}
		fields := make(stdb.ProductValue, len(ty.Elements))
		seen := make([]bool, len(ty.Elements))
		for dec.PeekKind() != '}' {
			key, err := readString(dec, ty)
			if err != nil {
				return nil, err
			}
			i := elementIndex(ty, key)
			if i < 0 {
				return nil, badJSON(ty, "unknown field %q", key)
			}
			if seen[i] {
				return nil, badJSON(ty, "duplicate field %q", key)
			}
			if fields[i], err = readValue(dec, ts, ty.Elements[i].Type); err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			seen[i] = true
		}
		if _, err := dec.ReadToken(); err != nil {
			return nil, err
		}
		for i, ok := range seen {
			if ok {
				continue
			}
			// an absent option field means none
			if ft, err := ts.Resolve(ty.Elements[i].Type); err == nil && ft.Kind == stdb.KindOption {
				fields[i] = stdb.None
				continue
			}
			return nil, badJSON(ty, "missing field %q", elementKey(ty.Elements[i], i))
		}
		return fields, nil

	case stdb.KindSum:
		if err := expectDelim(dec, ty, '{'); err != nil {
			return nil, err
		}
		key, err := readString(dec, ty)
		if err != nil {
			return nil, err
		}
		i := elementIndex(ty, key)
		if i < 0 {
			return nil, badJSON(ty, "unknown variant %q", key)
		}
		v, err := readValue(dec, ts, ty.Elements[i].Type)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		if dec.PeekKind() != '}' {
			return nil, badJSON(ty, "a sum takes exactly one variant")
		}
		if _, err := dec.ReadToken(); err != nil {
			return nil, err
		}
		return stdb.SumValue{Tag: uint8(i), Value: v}, nil
	}

	tok, err := dec.ReadToken()
	if err != nil {
		return nil, err
	}
	switch ty.Kind {
	case stdb.KindBool:
		switch tok.Kind() {
		case 't':
			return true, nil
		case 'f':
			return false, nil
		}
	case stdb.KindString:
		if tok.Kind() == '"' {
			return tok.String(), nil
		}
	case stdb.KindF32, stdb.KindF64:
		if tok.Kind() == '0' {
			bits := 64
			if ty.Kind == stdb.KindF32 {
				bits = 32
			}
			f, err := strconv.ParseFloat(tok.String(), bits)
			if err != nil {
				return nil, badJSON(ty, "%v", err)
			}
			if bits == 32 {
				return float32(f), nil
			}
			return f, nil
		}
	default:
		if ty.IsInteger() && (tok.Kind() == '0' || tok.Kind() == '"') {
			return parseInteger(ty, tok.String())
		}
	}
	return nil, badJSON(ty, "unexpected %v", tok.Kind())
}

func parseInteger(ty *stdb.AlgebraicType, s string) (any, error) {
	switch ty.Kind {
	case stdb.KindI8, stdb.KindI16, stdb.KindI32, stdb.KindI64:
		bits := map[stdb.Kind]int{stdb.KindI8: 8, stdb.KindI16: 16, stdb.KindI32: 32, stdb.KindI64: 64}[ty.Kind]
		n, err := strconv.ParseInt(s, 10, bits)
		if err != nil {
			return nil, badJSON(ty, "%v", err)
		}
		switch ty.Kind {
		case stdb.KindI8:
			return int8(n), nil
		case stdb.KindI16:
			return int16(n), nil
		case stdb.KindI32:
			return int32(n), nil
		}
		return n, nil
	case stdb.KindU8, stdb.KindU16, stdb.KindU32, stdb.KindU64:
		bits := map[stdb.Kind]int{stdb.KindU8: 8, stdb.KindU16: 16, stdb.KindU32: 32, stdb.KindU64: 64}[ty.Kind]
		n, err := strconv.ParseUint(s, 10, bits)
		if err != nil {
			return nil, badJSON(ty, "%v", err)
		}
		switch ty.Kind {
		case stdb.KindU8:
			return uint8(n), nil
		case stdb.KindU16:
			return uint16(n), nil
		case stdb.KindU32:
			return uint32(n), nil
		}
		return n, nil
	}

	b, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, badJSON(ty, "%q is not an integer", s)
	}
	var v any
	var err error
	switch ty.Kind {
	case stdb.KindU128:
		v, err = stdb.U128FromBig(b)
	case stdb.KindI128:
		v, err = stdb.I128FromBig(b)
	case stdb.KindU256:
		v, err = stdb.U256FromBig(b)
	case stdb.KindI256:
		v, err = stdb.I256FromBig(b)
	}
	if err != nil {
		return nil, badJSON(ty, "%v", err)
	}
	return v, nil
}

func readString(dec *jsontext.Decoder, ty *stdb.AlgebraicType) (string, error) {
	tok, err := dec.ReadToken()
	if err != nil {
		return "", err
	}
	if tok.Kind() != '"' {
		return "", badJSON(ty, "expected a string, got %v", tok.Kind())
	}
	return tok.String(), nil
}

func expectDelim(dec *jsontext.Decoder, ty *stdb.AlgebraicType, delim jsontext.Kind) error {
	tok, err := dec.ReadToken()
	if err != nil {
		return err
	}
	if tok.Kind() != delim {
		return badJSON(ty, "expected %v, got %v", delim, tok.Kind())
	}
	return nil
}

func elementIndex(ty *stdb.AlgebraicType, key string) int {
	for i, e := range ty.Elements {
		if elementKey(e, i) == key {
			return i
		}
	}
	return -1
}
