package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fulldump/box"
	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"

	"github.com/andreyvit/stdb"
	"github.com/andreyvit/stdb/hostsim"
)

var ErrNotFound = errors.New("not found")

func AccessLog(l *slog.Logger) box.I {
	return func(next box.H) box.H {
		return func(ctx context.Context) {
			r := box.GetRequest(ctx)
			now := time.Now()
			defer func() {
				attrs := []any{"method", r.Method, "url", r.URL.String(), "remote", formatRemoteAddr(r), "elapsed", time.Since(now)}
				if err := box.GetError(ctx); err != nil {
					attrs = append(attrs, "err", err)
				}
				l.Info("http", attrs...)
			}()

			next(ctx)
		}
	}
}

func formatRemoteAddr(r *http.Request) string {
	xorigin := strings.TrimSpace(strings.Split(
		r.Header.Get("X-Forwarded-For"), ",")[0])
	if xorigin != "" {
		return xorigin
	}
	if i := strings.LastIndex(r.RemoteAddr, ":"); i >= 0 {
		return r.RemoteAddr[:i]
	}
	return r.RemoteAddr
}

// RecoverFromPanic turns a handler panic into a 500 response.
func RecoverFromPanic(next box.H) box.H {
	return func(ctx context.Context) {
		defer func() {
			if e := recover(); e != nil {
				box.SetError(ctx, fmt.Errorf("panic: %v", e))
			}
		}()
		next(ctx)
	}
}

type PrettyError struct {
	Message     string `json:"message"`
	Description string `json:"description"`
}

// statusWriter remembers whether a response has been started.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	if w.status != 0 {
		return
	}
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

func PrettyErrorInterceptor(next box.H) box.H {
	return func(ctx context.Context) {
		c := box.GetBoxContext(ctx)
		sw := &statusWriter{ResponseWriter: c.Response}
		c.Response = sw

		next(ctx)

		err := box.GetError(ctx)
		if err == nil || sw.status != 0 {
			return
		}
		status, description := classify(err)
		sw.WriteHeader(status)
		json.MarshalWrite(sw, map[string]PrettyError{
			"error": {Message: err.Error(), Description: description},
		})
	}
}

func classify(err error) (int, string) {
	var syntax *jsontext.SyntacticError
	var semantic *json.SemanticError
	var reducerErr *ReducerError
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, "resource not found"
	case errors.Is(err, hostsim.ErrUnknownTable), errors.Is(err, stdb.ErrUnknownReducer):
		return http.StatusNotFound, "no such table or reducer"
	case errors.Is(err, ErrUnknownConnection):
		return http.StatusNotFound, "no such connection"
	case errors.Is(err, hostsim.ErrNotLoaded):
		return http.StatusServiceUnavailable, "module not loaded"
	case errors.As(err, &syntax):
		return http.StatusBadRequest, "Malformed JSON"
	case errors.Is(err, ErrBadJSON), errors.As(err, &semantic), errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "bad request"
	case errors.Is(err, hostsim.ErrTrapped):
		return http.StatusInternalServerError, "module trapped"
	case errors.As(err, &reducerErr):
		return http.StatusUnprocessableEntity, "reducer failed, changes rolled back"
	}
	return http.StatusInternalServerError, "Unexpected error"
}

func notFound(ctx context.Context) error {
	return fmt.Errorf("%w: %s", ErrNotFound, box.GetRequest(ctx).URL.Path)
}
