package stdb

import (
	"errors"
	"fmt"
	"strings"
)

// Decoding errors. DataError wraps one of these.
var (
	ErrSizeMismatch   = errors.New("not enough data")
	ErrInvalidTag     = errors.New("invalid discriminant")
	ErrInvalidUTF8    = errors.New("invalid utf-8")
	ErrInvalidBool    = errors.New("invalid bool")
	ErrTrailingBytes  = errors.New("trailing bytes")
	ErrLengthMismatch = errors.New("array length mismatch")
)

// ErrTypeMismatch is returned when encoding a value that does not have the
// shape of its algebraic type.
var ErrTypeMismatch = errors.New("value does not match type")

// Registration errors. RegistrationError wraps one of these.
var (
	ErrDuplicatePrimaryKey  = errors.New("table already has a primary key")
	ErrAutoIncNotInteger    = errors.New("auto-increment column must have an integer type")
	ErrAutoIncNotPrimaryKey = errors.New("auto-increment column must be the primary key")
	ErrUnknownColumn        = errors.New("unknown field")
	ErrDuplicateTable       = errors.New("duplicate table")
	ErrDuplicateIndex       = errors.New("duplicate index")
	ErrDuplicateReducer     = errors.New("duplicate reducer")
	ErrUnsupportedType      = errors.New("unsupported type")
	ErrDirectRecursion      = errors.New("type contains itself by value")
	ErrDanglingRef          = errors.New("type reference out of range")
)

// Runtime errors of the table access layer.
var (
	ErrInvalidTableID = errors.New("host returned table id 0")
	ErrNoPrimaryKey   = errors.New("table has no primary key")
	ErrUnknownReducer = errors.New("unknown reducer")
)

// Handle protocol violations. ProtocolError wraps one of these.
var (
	ErrBufferConsumed = errors.New("buffer already consumed")
	ErrBufferLength   = errors.New("buffer length mismatch")
	ErrIterDropped    = errors.New("iterator already dropped")
)

type DataError struct {
	Data []byte
	Off  int
	Err  error
	Msg  string
}

func dataErrf(data []byte, off int, err error, format string, args ...any) error {
	return &DataError{data, off, err, fmt.Sprintf(format, args...)}
}

func (e *DataError) Unwrap() error {
	return e.Err
}

func (e *DataError) Error() string {
	const prefixLen = 64
	const suffixLen = 32
	n := len(e.Data)
	if n <= prefixLen+suffixLen {
		if e.Err != nil {
			return fmt.Sprintf("%v at offset %d: %s: (%d) %x", e.Err, e.Off, e.Msg, n, e.Data)
		} else {
			return fmt.Sprintf("%s at offset %d: (%d) %x", e.Msg, e.Off, n, e.Data)
		}
	} else {
		p, s := e.Data[:prefixLen], e.Data[n-suffixLen:]
		if e.Err != nil {
			return fmt.Sprintf("%v at offset %d: %s: (%d) %x...%x", e.Err, e.Off, e.Msg, n, p, s)
		} else {
			return fmt.Sprintf("%s at offset %d: (%d) %x...%x", e.Msg, e.Off, n, p, s)
		}
	}
}

type TableError struct {
	Table  *Table
	Op     string
	Column string
	Msg    string
	Err    error
}

func tableErrf(tbl *Table, op string, err error, format string, args ...any) error {
	return &TableError{Table: tbl, Op: op, Msg: fmt.Sprintf(format, args...), Err: err}
}

func (e *TableError) Unwrap() error {
	return e.Err
}

func (e *TableError) Error() string {
	var buf strings.Builder
	buf.WriteString(e.Table.Name())
	if e.Column != "" {
		buf.WriteByte('.')
		buf.WriteString(e.Column)
	}
	if e.Op != "" {
		buf.WriteString(": ")
		buf.WriteString(e.Op)
	}
	if e.Msg != "" {
		buf.WriteString(": ")
		buf.WriteString(e.Msg)
	}
	if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}

// RegistrationError describes a schema defect found while defining tables,
// sums or reducers. Definitions panic with it.
type RegistrationError struct {
	Table  string
	Column string
	Err    error
	Msg    string
}

func regErrf(table, column string, err error, format string, args ...any) *RegistrationError {
	return &RegistrationError{table, column, err, fmt.Sprintf(format, args...)}
}

func (e *RegistrationError) Unwrap() error {
	return e.Err
}

func (e *RegistrationError) Error() string {
	var buf strings.Builder
	buf.WriteString(e.Table)
	if e.Column != "" {
		buf.WriteByte('.')
		buf.WriteString(e.Column)
	}
	buf.WriteString(": ")
	buf.WriteString(e.Err.Error())
	if e.Msg != "" {
		buf.WriteString(": ")
		buf.WriteString(e.Msg)
	}
	return buf.String()
}

// ProtocolError reports misuse of a host handle.
type ProtocolError struct {
	Handle uint32
	Kind   string
	Err    error
	Msg    string
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

func (e *ProtocolError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("%s %d: %v: %s", e.Kind, e.Handle, e.Err, e.Msg)
	}
	return fmt.Sprintf("%s %d: %v", e.Kind, e.Handle, e.Err)
}
