package stdb

import (
	"log/slog"
	"testing"
)

func TestConsoleHandler(t *testing.T) {
	h := newFakeHost()
	l := slog.New(NewConsoleHandler(h, &ConsoleHandlerOptions{Target: "demo"}))

	l.Debug("hidden")
	l.With("reducer", "add").Info("added", "name", "Ann Lee", "n", 3)
	l.WithGroup("req").Warn("slow", "ms", 12, slog.Group("db", "op", "scan"))
	l.Error(`bad "x"`, "err", "a=b")

	deepEq(t, h.console, []string{
		`info demo added reducer=add name="Ann Lee" n=3`,
		`warn demo slow req.ms=12 req.db.op=scan`,
		`error demo bad "x" err="a=b"`,
	})
}

func TestConsoleHandler_level(t *testing.T) {
	h := newFakeHost()
	l := slog.New(NewConsoleHandler(h, &ConsoleHandlerOptions{Level: slog.LevelDebug}))
	l.Debug("shown")
	deepEq(t, h.console, []string{"debug module shown"})

	deepEq(t, consoleLevel(slog.LevelDebug-4), LogTrace)
	deepEq(t, consoleLevel(slog.LevelError+4), LogError)
}
