// Command engine-server wires configuration, storage, the scheduler and
// the engine handler into a running process. It exposes no transport of
// its own (HTTP/RPC transport is explicitly out of scope): the Handler it
// builds is the embeddable surface a transport layer calls into.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/coder/quartz"
	"github.com/decred/slog"

	"github.com/feltframe/holdem-core/internal/config"
	"github.com/feltframe/holdem-core/internal/scheduler"
	"github.com/feltframe/holdem-core/internal/server"
	"github.com/feltframe/holdem-core/internal/store"
)

func main() {
	var (
		dbPath     string
		debugLevel string
	)
	flag.StringVar(&dbPath, "db", "", "Path to SQLite database file (created if missing)")
	flag.StringVar(&debugLevel, "debuglevel", "info", "Logging level: trace, debug, info, warn, error")
	flag.Parse()

	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "holdem_engine.sqlite")
	}

	backend := slog.NewBackend(os.Stderr)
	log := backend.Logger("ENGINE")
	switch debugLevel {
	case "trace":
		log.SetLevel(slog.LevelTrace)
	case "debug":
		log.SetLevel(slog.LevelDebug)
	case "warn":
		log.SetLevel(slog.LevelWarn)
	case "error":
		log.SetLevel(slog.LevelError)
	default:
		log.SetLevel(slog.LevelInfo)
	}

	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	adapter, err := store.NewSQLiteAdapter(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer adapter.Close()

	handler := server.New(adapter, log, cfg)
	sched := scheduler.New(quartz.NewReal(), adapter, handler.Dispatch, backend.Logger("SCHED"))
	handler.AttachScheduler(sched)

	ctx := context.Background()
	if err := handler.Recover(ctx); err != nil {
		log.Errorf("recovery failed: %v", err)
		os.Exit(1)
	}
	log.Infof("engine server ready, db=%s", dbPath)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Infof("shutting down")
}
