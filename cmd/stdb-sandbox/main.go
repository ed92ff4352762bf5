// Command stdb-sandbox runs the demo module in an in-process host and serves
// it over HTTP.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fulldump/box"
	"github.com/fulldump/goconfig"
	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"

	"github.com/andreyvit/stdb/hostsim"
	"github.com/andreyvit/stdb/internal/demomodule"
	"github.com/andreyvit/stdb/sandbox"
)

var VERSION = "dev"

func main() {

	c := Default()
	goconfig.Read(&c)

	if c.Version {
		os.Stdout.WriteString("Version: " + VERSION + "\n")
		return
	}

	if c.ShowConfig {
		json.MarshalWrite(os.Stdout, c, jsontext.Multiline(true))
		os.Stdout.WriteString("\n")
	}

	level, err := c.level()
	if err != nil {
		slog.Error("bad configuration", "err", err)
		os.Exit(2)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	h, err := hostsim.New(hostsim.Options{
		Path:          c.Path,
		CommitLogDir:  c.CommitLogDir,
		IterBatchRows: c.IterBatchRows,
		Logger:        logger,
		Verbose:       c.Verbose,
	})
	if err != nil {
		logger.Error("cannot open host", "err", err)
		os.Exit(1)
	}
	defer h.Close()

	if err := h.Load(demomodule.Define()); err != nil {
		logger.Error("cannot load module", "err", err)
		os.Exit(1)
	}

	b := sandbox.New(h, logger).Build(VERSION)

	s := &http.Server{
		Addr:    c.HttpAddr,
		Handler: box.Box2Http(b),
	}

	ln, err := net.Listen("tcp", c.HttpAddr)
	if err != nil {
		logger.Error("cannot listen", "addr", c.HttpAddr, "err", err)
		os.Exit(1)
	}
	logger.Info("listening", "addr", c.HttpAddr, "version", VERSION)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-signalChan
		logger.Info("signal received", "signal", sig.String())
		stop()
		s.Shutdown(context.Background())
	}()

	wg := &sync.WaitGroup{}

	wg.Add(1)
	go func() {
		defer wg.Done()
		runScheduler(ctx, h, time.Duration(c.TickMillis)*time.Millisecond, logger)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := s.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("serve", "err", err)
			stop()
		}
	}()

	wg.Wait()
}

func runScheduler(ctx context.Context, h *hostsim.Host, every time.Duration, logger *slog.Logger) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := h.RunDue(); n > 0 {
				logger.Debug("ran scheduled reducers", "count", n, "err", err)
			}
		}
	}
}
