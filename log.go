package stdb

import (
	"context"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"
)

type ConsoleHandlerOptions struct {
	// Target names the log source on the host console. Defaults to "module".
	Target string
	Level  slog.Leveler
}

// ConsoleHandler is a slog.Handler writing records to the host console.
// Attributes are appended to the message as key=value pairs.
type ConsoleHandler struct {
	host   Host
	target string
	level  slog.Leveler
	prefix string
	attrs  string
}

var _ slog.Handler = (*ConsoleHandler)(nil)

func NewConsoleHandler(host Host, opt *ConsoleHandlerOptions) *ConsoleHandler {
	h := &ConsoleHandler{host: host, target: "module", level: slog.LevelInfo}
	if opt != nil {
		if opt.Target != "" {
			h.target = opt.Target
		}
		if opt.Level != nil {
			h.level = opt.Level
		}
	}
	return h
}

func (h *ConsoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *ConsoleHandler) Handle(_ context.Context, rec slog.Record) error {
	var buf strings.Builder
	buf.WriteString(rec.Message)
	buf.WriteString(h.attrs)
	rec.Attrs(func(a slog.Attr) bool {
		appendAttr(&buf, h.prefix, a)
		return true
	})

	var file string
	var line uint32
	if rec.PC != 0 {
		frame, _ := runtime.CallersFrames([]uintptr{rec.PC}).Next()
		file, line = filepath.Base(frame.File), uint32(frame.Line)
	}
	h.host.ConsoleLog(consoleLevel(rec.Level), h.target, file, line, buf.String())
	return nil
}

func (h *ConsoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	var buf strings.Builder
	buf.WriteString(h.attrs)
	for _, a := range attrs {
		appendAttr(&buf, h.prefix, a)
	}
	h2 := *h
	h2.attrs = buf.String()
	return &h2
}

func (h *ConsoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := *h
	h2.prefix = h.prefix + name + "."
	return &h2
}

func appendAttr(buf *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		if a.Key != "" {
			prefix += a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			appendAttr(buf, prefix, ga)
		}
		return
	}
	buf.WriteByte(' ')
	buf.WriteString(prefix)
	buf.WriteString(a.Key)
	buf.WriteByte('=')
	s := a.Value.String()
	if strings.ContainsAny(s, " =\"") {
		buf.WriteByte('"')
		buf.WriteString(strings.ReplaceAll(s, `"`, `\"`))
		buf.WriteByte('"')
	} else {
		buf.WriteString(s)
	}
}

func consoleLevel(l slog.Level) LogLevel {
	switch {
	case l >= slog.LevelError:
		return LogError
	case l >= slog.LevelWarn:
		return LogWarn
	case l >= slog.LevelInfo:
		return LogInfo
	case l >= slog.LevelDebug:
		return LogDebug
	default:
		return LogTrace
	}
}
