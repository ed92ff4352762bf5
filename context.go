package stdb

import (
	"context"
	"log/slog"
)

// ReducerContext describes one reducer call.
type ReducerContext struct {
	// Sender is the identity of the caller.
	Sender Identity

	// ConnectionID is nil for calls not made over a client connection, such
	// as scheduled and init calls.
	ConnectionID *ConnectionID

	Timestamp Timestamp
	DB        *DB

	reducer *Reducer
	rng     *Rng
}

// Rng returns the call's random generator, seeded from Timestamp on first use.
func (ctx *ReducerContext) Rng() *Rng {
	if ctx.rng == nil {
		ctx.rng = NewRng(ctx.Timestamp)
	}
	return ctx.rng
}

// Reducer returns the reducer being called, or nil outside CallReducer.
func (ctx *ReducerContext) Reducer() *Reducer {
	return ctx.reducer
}

func (ctx *ReducerContext) Logger() *slog.Logger {
	var l *slog.Logger
	if ctx.DB != nil {
		l = ctx.DB.logger
	} else {
		l = slog.Default()
	}
	if ctx.reducer != nil {
		l = l.With("reducer", ctx.reducer.name)
	}
	return l
}

type reducerCtxKey struct{}

// Context returns a context.Context carrying ctx, for code that takes one.
func (ctx *ReducerContext) Context() context.Context {
	return context.WithValue(context.Background(), reducerCtxKey{}, ctx)
}

// FromContext returns the ReducerContext carried by c, or nil.
func FromContext(c context.Context) *ReducerContext {
	rc, _ := c.Value(reducerCtxKey{}).(*ReducerContext)
	return rc
}
