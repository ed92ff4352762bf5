package stdb

import (
	"fmt"
	"reflect"
)

// ScheduleReducer asks the host to call the named reducer after delay, with
// args encoded as that reducer's argument type.
func (db *DB) ScheduleReducer(name string, delay TimeDuration, args any) (ScheduleID, error) {
	rd := db.schema.reducersByName[name]
	if rd == nil {
		return 0, fmt.Errorf("%w %q", ErrUnknownReducer, name)
	}
	if delay < 0 {
		delay = 0
	}
	argVal := reflect.ValueOf(args)
	if argVal.Kind() == reflect.Pointer && argVal.Type().Elem() == rd.argsType {
		argVal = argVal.Elem()
	}
	if !argVal.IsValid() || argVal.Type() != rd.argsType {
		return 0, fmt.Errorf("%w: reducer %s takes %v, got %T", ErrTypeMismatch, name, rd.argsType, args)
	}
	var w Writer
	if err := marshalVal(&w, argVal); err != nil {
		return 0, fmt.Errorf("reducer %s: %w", name, err)
	}
	id, errno := db.host.ScheduleReducer(name, w.Buf, delay)
	if errno != ErrnoOK {
		return 0, fmt.Errorf("schedule %s: %w", name, errno)
	}
	return id, nil
}

// CancelReducer cancels a scheduled call. Cancelling a call that already ran
// is not an error.
func (db *DB) CancelReducer(id ScheduleID) error {
	return db.host.CancelReducer(id).Err()
}
