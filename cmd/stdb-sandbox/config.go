package main

import (
	"fmt"
	"log/slog"
	"strings"
)

type Configuration struct {
	HttpAddr      string `usage:"HTTP address"`
	Path          string `usage:"bbolt database file, empty keeps state in memory"`
	CommitLogDir  string `usage:"commit log directory, empty disables the log"`
	IterBatchRows int    `usage:"rows per iterator batch"`
	TickMillis    int    `usage:"how often to run due scheduled reducers, in milliseconds"`
	LogLevel      string `usage:"log level: debug, info, warn or error"`
	Verbose       bool   `usage:"log every reducer call"`
	Version       bool   `usage:"show version and exit"`
	ShowConfig    bool   `usage:"print config"`
}

func Default() Configuration {
	return Configuration{
		HttpAddr:      "127.0.0.1:3000",
		IterBatchRows: 64,
		TickMillis:    250,
		LogLevel:      "info",
	}
}

func (c *Configuration) level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return l, fmt.Errorf("LogLevel: %w", err)
	}
	return l, nil
}
