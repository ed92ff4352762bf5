package stdb

import "strconv"

// Errno is a status code returned by a host call. Zero means success; every
// other value is an error.
type Errno uint16

const (
	ErrnoOK                     Errno = 0
	ErrnoHostCallFailure        Errno = 1
	ErrnoNotInTransaction       Errno = 2
	ErrnoBsatnDecodeError       Errno = 3
	ErrnoNoSuchTable            Errno = 4
	ErrnoNoSuchIndex            Errno = 5
	ErrnoNoSuchIter             Errno = 6
	ErrnoNoSuchConsoleTimer     Errno = 7
	ErrnoNoSuchBytes            Errno = 8
	ErrnoNoSpace                Errno = 9
	ErrnoBufferTooSmall         Errno = 11
	ErrnoUniqueAlreadyExists    Errno = 12
	ErrnoScheduleAtDelayTooLong Errno = 13
	ErrnoIndexNotUnique         Errno = 14
	ErrnoNoSuchRow              Errno = 15
	ErrnoNoSuchColumn           Errno = 16
)

var errnoTexts = map[Errno]string{
	ErrnoOK:                     "ok",
	ErrnoHostCallFailure:        "host call failed",
	ErrnoNotInTransaction:       "not in a transaction",
	ErrnoBsatnDecodeError:       "host failed to decode bsatn",
	ErrnoNoSuchTable:            "no such table",
	ErrnoNoSuchIndex:            "no such index",
	ErrnoNoSuchIter:             "no such iterator",
	ErrnoNoSuchConsoleTimer:     "no such console timer",
	ErrnoNoSuchBytes:            "no such buffer",
	ErrnoNoSpace:                "no space left",
	ErrnoBufferTooSmall:         "buffer too small",
	ErrnoUniqueAlreadyExists:    "value with the given unique identifier already exists",
	ErrnoScheduleAtDelayTooLong: "scheduling delay too long",
	ErrnoIndexNotUnique:         "index is not unique",
	ErrnoNoSuchRow:              "no such row",
	ErrnoNoSuchColumn:           "no such column",
}

func (e Errno) Error() string {
	if s, ok := errnoTexts[e]; ok {
		return s
	}
	return "host error " + strconv.Itoa(int(e))
}

// Err returns nil for ErrnoOK and e otherwise.
func (e Errno) Err() error {
	if e == ErrnoOK {
		return nil
	}
	return e
}
