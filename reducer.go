package stdb

import (
	"fmt"
	"reflect"
)

// Lifecycle marks reducers the host calls on its own.
type Lifecycle uint8

const (
	LifecycleNone Lifecycle = iota
	LifecycleInit
	LifecycleClientConnected
	LifecycleClientDisconnected
)

var lifecycleNames = [...]string{"", "__init__", "__identity_connected__", "__identity_disconnected__"}

func (l Lifecycle) String() string {
	if int(l) < len(lifecycleNames) {
		if l == LifecycleNone {
			return "none"
		}
		return lifecycleNames[l]
	}
	return fmt.Sprintf("lifecycle(%d)", uint8(l))
}

// NoArgs is the argument type of reducers that take no arguments.
type NoArgs struct{}

// Reducer is a registered transactional entry point.
type Reducer struct {
	schema    *Schema
	name      string
	id        uint32
	lifecycle Lifecycle
	argsType  reflect.Type
	params    *AlgebraicType
	codec     *codec
	fn        func(ctx *ReducerContext, args reflect.Value) error
}

func (rd *Reducer) Name() string {
	return rd.name
}

// ID is the reducer's position in the module description; the host calls
// reducers by it.
func (rd *Reducer) ID() uint32 {
	return rd.id
}

func (rd *Reducer) Lifecycle() Lifecycle {
	return rd.lifecycle
}

// Params is the product type of the reducer's arguments.
func (rd *Reducer) Params() *AlgebraicType {
	return rd.params
}

func (rd *Reducer) ArgsType() reflect.Type {
	return rd.argsType
}

func (rd *Reducer) String() string {
	return rd.name
}

// AddReducer registers fn as the reducer called name. Args must be a struct;
// its fields are the reducer's parameters in order.
func AddReducer[Args any](scm *Schema, name string, fn func(ctx *ReducerContext, args *Args) error) *Reducer {
	return addReducer(scm, name, LifecycleNone, reflect.TypeFor[Args](), func(ctx *ReducerContext, args reflect.Value) error {
		return fn(ctx, args.Addr().Interface().(*Args))
	})
}

// OnInit registers the reducer the host calls once when the module is first
// published.
func OnInit(scm *Schema, fn func(ctx *ReducerContext) error) *Reducer {
	return addLifecycle(scm, LifecycleInit, fn)
}

func OnClientConnected(scm *Schema, fn func(ctx *ReducerContext) error) *Reducer {
	return addLifecycle(scm, LifecycleClientConnected, fn)
}

func OnClientDisconnected(scm *Schema, fn func(ctx *ReducerContext) error) *Reducer {
	return addLifecycle(scm, LifecycleClientDisconnected, fn)
}

func addLifecycle(scm *Schema, lc Lifecycle, fn func(ctx *ReducerContext) error) *Reducer {
	for _, rd := range scm.reducers {
		if rd.lifecycle == lc {
			panic(regErrf(lifecycleNames[lc], "", ErrDuplicateReducer, "lifecycle reducer already registered"))
		}
	}
	rd := addReducer(scm, lifecycleNames[lc], lc, reflect.TypeFor[NoArgs](), func(ctx *ReducerContext, _ reflect.Value) error {
		return fn(ctx)
	})
	return rd
}

func addReducer(scm *Schema, name string, lc Lifecycle, argsType reflect.Type, fn func(*ReducerContext, reflect.Value) error) *Reducer {
	scm.ensureOpen("reducer " + name)
	if name == "" {
		panic(regErrf(name, "", ErrUnsupportedType, "reducer name is empty"))
	}
	if scm.reducersByName[name] != nil {
		panic(regErrf(name, "", ErrDuplicateReducer, ""))
	}
	if argsType.Kind() != reflect.Struct {
		panic(regErrf(name, "", ErrUnsupportedType, "arguments must be a struct, got %v", argsType))
	}
	ts := scm.typespace
	at, err := ts.TypeOf(argsType)
	if err != nil {
		panic(regErrf(name, "", ErrUnsupportedType, "%v", err))
	}
	if err := ts.Validate(); err != nil {
		panic(&RegistrationError{Table: name, Err: err})
	}
	c, err := codecOf(argsType)
	if err != nil {
		panic(regErrf(name, "", ErrUnsupportedType, "%v", err))
	}
	rd := &Reducer{
		schema:    scm,
		name:      name,
		id:        uint32(len(scm.reducers)),
		lifecycle: lc,
		argsType:  argsType,
		params:    must(ts.Resolve(at)),
		codec:     c,
		fn:        fn,
	}
	scm.reducers = append(scm.reducers, rd)
	scm.reducersByName[name] = rd
	return rd
}

// Module is what a host loads: a self-description and a way to call
// reducers. *Schema implements it.
type Module interface {
	DescribeModule() ([]byte, error)
	CallReducer(host Host, id uint32, sender Identity, conn ConnectionID, ts Timestamp, args []byte) error
}

var _ Module = (*Schema)(nil)

// CallReducer runs reducer id with BSATN-encoded args. A zero conn means
// the call did not come from a client connection.
//
// A panic inside the reducer becomes an error, except for *Trap, which
// propagates to the host unchanged.
func (scm *Schema) CallReducer(host Host, id uint32, sender Identity, conn ConnectionID, ts Timestamp, args []byte) error {
	scm.seal()
	if int(id) >= len(scm.reducers) {
		return fmt.Errorf("%w: id %d", ErrUnknownReducer, id)
	}
	db := NewDB(host, scm, Options{})
	var connPtr *ConnectionID
	if !conn.IsZero() {
		connPtr = &conn
	}
	return scm.reducers[id].Call(db, sender, connPtr, ts, args)
}

// Call decodes args and runs the reducer against db.
func (rd *Reducer) Call(db *DB, sender Identity, conn *ConnectionID, ts Timestamp, args []byte) (err error) {
	argVal := reflect.New(rd.argsType).Elem()
	r := NewReader(args)
	if err := rd.codec.dec(r, argVal); err != nil {
		return fmt.Errorf("reducer %s: decoding arguments: %w", rd.name, err)
	}
	if err := r.Finish(); err != nil {
		return fmt.Errorf("reducer %s: decoding arguments: %w", rd.name, err)
	}

	ctx := &ReducerContext{
		Sender:       sender,
		ConnectionID: conn,
		Timestamp:    ts,
		DB:           db,
		reducer:      rd,
	}
	defer func() {
		if e := recover(); e != nil {
			if t, ok := e.(*Trap); ok {
				panic(t)
			}
			if pe, ok := e.(error); ok {
				err = fmt.Errorf("reducer %s panicked: %w", rd.name, pe)
			} else {
				err = fmt.Errorf("reducer %s panicked: %v", rd.name, e)
			}
		}
	}()
	return rd.fn(ctx, argVal)
}

var registered Module

// SetModule installs the module served by the wasm entry points. Call it
// from an init function.
func SetModule(m Module) {
	registered = m
}
