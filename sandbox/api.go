// Package sandbox serves a hostsim host over HTTP, so a module can be poked
// at with curl: call reducers with JSON arguments, read table contents, open
// and close client connections, and watch the module console.
package sandbox

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/fulldump/box"
	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"

	"github.com/andreyvit/stdb"
	"github.com/andreyvit/stdb/hostsim"
)

const (
	IdentityHeader     = "X-Stdb-Identity"
	ConnectionIDHeader = "X-Stdb-Connection"
)

var (
	ErrUnknownConnection = errors.New("unknown connection")
	ErrBadRequest        = errors.New("bad request")
)

// ReducerError is a reducer that ran and failed; its changes were rolled
// back.
type ReducerError struct {
	Reducer string
	Err     error
}

func (e *ReducerError) Unwrap() error {
	return e.Err
}

func (e *ReducerError) Error() string {
	return fmt.Sprintf("reducer %s failed: %v", e.Reducer, e.Err)
}

type Server struct {
	host   *hostsim.Host
	logger *slog.Logger

	mu    sync.Mutex
	conns map[stdb.ConnectionID]hostsim.Caller
}

func New(host *hostsim.Host, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		host:   host,
		logger: logger,
		conns:  make(map[stdb.ConnectionID]hostsim.Caller),
	}
}

func (s *Server) Build(version string) *box.B {
	b := box.NewBox()
	b.WithInterceptors(
		AccessLog(s.logger),
		PrettyErrorInterceptor,
		RecoverFromPanic,
	)

	v1 := b.Resource("/v1")
	v1.WithInterceptors(
		box.SetResponseHeader("Content-Type", "application/json"),
	)

	v1.Resource("/module").
		WithActions(box.Get(s.describeModule))
	v1.Resource("/tables").
		WithActions(box.Get(s.listTables))
	v1.Resource("/tables/{table}").
		WithActions(box.Get(s.listRows))
	v1.Resource("/reducers/{reducer}").
		WithActions(box.Post(s.callReducer))
	v1.Resource("/connections").
		WithActions(box.Post(s.connect))
	v1.Resource("/connections/{connectionId}").
		WithActions(box.Delete(s.disconnect))
	v1.Resource("/console").
		WithActions(box.Get(s.console))
	v1.Resource("/schedule").
		WithActions(
			box.Get(s.listScheduled),
			box.ActionPost(s.runDue).WithName("runDue"),
		)
	v1.Resource("/*").
		WithActions(
			box.Get(notFound),
			box.Post(notFound),
			box.Delete(notFound),
		)

	b.Resource("/release").
		WithActions(box.Get(func() string {
			return version
		}))

	return b
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.WriteHeader(status)
	return json.MarshalWrite(w, v)
}

type tableResponse struct {
	Name   string `json:"name"`
	ID     uint32 `json:"id"`
	Rows   int    `json:"rows"`
	Public bool   `json:"public"`
}

type reducerResponse struct {
	Name      string `json:"name"`
	Params    string `json:"params"`
	Lifecycle string `json:"lifecycle,omitempty"`
}

type moduleResponse struct {
	Tables   []tableResponse   `json:"tables"`
	Reducers []reducerResponse `json:"reducers"`
}

func (s *Server) tables() []tableResponse {
	result := []tableResponse{}
	for _, t := range s.host.Tables() {
		result = append(result, tableResponse{Name: t.Name, ID: uint32(t.ID), Rows: t.Rows, Public: t.Public})
	}
	return result
}

func (s *Server) describeModule(ctx context.Context, w http.ResponseWriter) error {
	def := s.host.ModuleDef()
	if def == nil {
		return hostsim.ErrNotLoaded
	}
	resp := moduleResponse{Tables: s.tables(), Reducers: []reducerResponse{}}
	for _, rd := range def.Reducers {
		r := reducerResponse{Name: rd.Name, Params: rd.Params.String()}
		if rd.Lifecycle != stdb.LifecycleNone {
			r.Lifecycle = rd.Lifecycle.String()
		}
		resp.Reducers = append(resp.Reducers, r)
	}
	return writeJSON(w, http.StatusOK, resp)
}

func (s *Server) listTables(ctx context.Context, w http.ResponseWriter) error {
	return writeJSON(w, http.StatusOK, s.tables())
}

func (s *Server) listRows(ctx context.Context, w http.ResponseWriter) error {
	name := box.GetUrlParameter(ctx, "table")
	ts, rowType, err := s.host.RowType(name)
	if err != nil {
		return err
	}
	rows, err := s.host.Rows(name)
	if err != nil {
		return err
	}

	values := make([]jsontext.Value, 0, len(rows))
	for _, data := range rows {
		v, err := RowJSON(ts, rowType, data)
		if err != nil {
			return fmt.Errorf("table %s: %w", name, err)
		}
		values = append(values, v)
	}
	return writeJSON(w, http.StatusOK, values)
}

func (s *Server) callReducer(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	name := box.GetUrlParameter(ctx, "reducer")
	def := s.host.ModuleDef()
	if def == nil {
		return hostsim.ErrNotLoaded
	}
	_, rd := def.ReducerNamed(name)
	if rd == nil {
		return fmt.Errorf("%w %q", stdb.ErrUnknownReducer, name)
	}
	if rd.Lifecycle != stdb.LifecycleNone {
		return fmt.Errorf("%w: %s runs only on %v", ErrBadRequest, name, rd.Lifecycle)
	}
	caller, err := s.callerOf(r)
	if err != nil {
		return err
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		body = []byte("{}")
	}
	args, err := EncodeJSON(def.Typespace, rd.Params, body)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}

	start := time.Now()
	if err := s.host.CallReducer(name, caller, args); err != nil {
		if errors.Is(err, hostsim.ErrTrapped) {
			return err
		}
		return &ReducerError{Reducer: name, Err: err}
	}
	return writeJSON(w, http.StatusOK, map[string]any{
		"reducer":  name,
		"duration": time.Since(start).String(),
	})
}

// callerOf picks the identity and connection from the request headers. An
// unknown connection id is an error; no headers mean an anonymous call.
func (s *Server) callerOf(r *http.Request) (hostsim.Caller, error) {
	var caller hostsim.Caller
	if h := r.Header.Get(ConnectionIDHeader); h != "" {
		id, err := parseConnectionID(h)
		if err != nil {
			return caller, err
		}
		s.mu.Lock()
		c, ok := s.conns[id]
		s.mu.Unlock()
		if !ok {
			return caller, fmt.Errorf("%w %s", ErrUnknownConnection, h)
		}
		caller = c
	}
	if h := r.Header.Get(IdentityHeader); h != "" {
		id, err := stdb.IdentityFromHex(h)
		if err != nil {
			return caller, fmt.Errorf("%w: %s: %v", ErrBadRequest, IdentityHeader, err)
		}
		if !caller.ConnectionID.IsZero() && id != caller.Identity {
			return caller, fmt.Errorf("%w: identity does not own connection", ErrBadRequest)
		}
		caller.Identity = id
	}
	return caller, nil
}

func parseConnectionID(s string) (stdb.ConnectionID, error) {
	var id stdb.ConnectionID
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(id) {
		return id, fmt.Errorf("%w: connection id must be %d hex bytes", ErrBadRequest, len(id))
	}
	copy(id[:], b)
	return id, nil
}

type connectRequest struct {
	Identity string `json:"identity,omitempty"`
}

type connectionResponse struct {
	Identity     string `json:"identity"`
	ConnectionID string `json:"connection_id"`
}

func (s *Server) connect(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var input connectRequest
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, &input); err != nil {
			return fmt.Errorf("%w: %v", ErrBadRequest, err)
		}
	}

	var identity stdb.Identity
	if input.Identity != "" {
		if identity, err = stdb.IdentityFromHex(input.Identity); err != nil {
			return fmt.Errorf("%w: %v", ErrBadRequest, err)
		}
	} else {
		rand.Read(identity[:])
	}

	caller, err := s.host.Connect(identity)
	if err != nil {
		return &ReducerError{Reducer: "client_connected", Err: err}
	}
	s.mu.Lock()
	s.conns[caller.ConnectionID] = caller
	s.mu.Unlock()
	return writeJSON(w, http.StatusCreated, connectionResponse{
		Identity:     caller.Identity.String(),
		ConnectionID: caller.ConnectionID.String(),
	})
}

func (s *Server) disconnect(ctx context.Context, w http.ResponseWriter) error {
	id, err := parseConnectionID(box.GetUrlParameter(ctx, "connectionId"))
	if err != nil {
		return err
	}
	s.mu.Lock()
	caller, ok := s.conns[id]
	delete(s.conns, id)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w %s", ErrUnknownConnection, id)
	}
	if err := s.host.Disconnect(caller); err != nil {
		return &ReducerError{Reducer: "client_disconnected", Err: err}
	}
	return writeJSON(w, http.StatusOK, connectionResponse{
		Identity:     caller.Identity.String(),
		ConnectionID: caller.ConnectionID.String(),
	})
}

type consoleLine struct {
	Level   string `json:"level"`
	Target  string `json:"target"`
	File    string `json:"file,omitempty"`
	Line    uint32 `json:"line,omitempty"`
	Message string `json:"message"`
}

func (s *Server) console(ctx context.Context, w http.ResponseWriter) error {
	lines := []consoleLine{}
	for _, l := range s.host.Console() {
		lines = append(lines, consoleLine{
			Level:   l.Level.String(),
			Target:  l.Target,
			File:    l.Filename,
			Line:    l.Line,
			Message: l.Message,
		})
	}
	return writeJSON(w, http.StatusOK, lines)
}

type scheduledResponse struct {
	ID      uint64    `json:"id"`
	At      time.Time `json:"at"`
	Reducer string    `json:"reducer"`
}

func (s *Server) listScheduled(ctx context.Context, w http.ResponseWriter) error {
	result := []scheduledResponse{}
	for _, sc := range s.host.Scheduled() {
		result = append(result, scheduledResponse{ID: uint64(sc.ID), At: sc.At.Time(), Reducer: sc.Reducer})
	}
	return writeJSON(w, http.StatusOK, result)
}

func (s *Server) runDue(ctx context.Context, w http.ResponseWriter) error {
	n, err := s.host.RunDue()
	resp := map[string]any{"ran": n}
	if err != nil {
		resp["error"] = err.Error()
	}
	return writeJSON(w, http.StatusOK, resp)
}
