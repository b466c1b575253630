// Package config loads the engine's process-wide environment configuration
// (§6 "Environment configuration"). The surface is environment values only,
// no keyword config file, so this follows the bot SDK's FromEnv shape:
// named Env* constants, a typed struct, and a constructor that applies
// defaults and parses numeric values with strconv.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Environment variable names consumed by the engine.
const (
	// EnvTaskQueueLocation names the durable task queue's backing location
	// (a DSN, path, or region string; the scheduler treats it opaquely).
	EnvTaskQueueLocation = "TASK_QUEUE_LOCATION"

	// EnvTableDefaultTurnTimeout is the per-seat action clock, in seconds.
	EnvTableDefaultTurnTimeout = "TABLE_DEFAULT_TURN_TIMEOUT"

	// EnvIdleTableCloseSeconds is how long a table may sit empty before
	// the server closes it.
	EnvIdleTableCloseSeconds = "IDLE_TABLE_CLOSE_SECONDS"

	// EnvShowdownAdmireMs is how long a resolved showdown lingers before
	// the next hand is scheduled, in milliseconds.
	EnvShowdownAdmireMs = "SHOWDOWN_ADMIRE_MS"

	// EnvWinByFoldRevealSeconds is how long a win-by-fold result lingers
	// before the next hand is scheduled.
	EnvWinByFoldRevealSeconds = "WIN_BY_FOLD_REVEAL_SECONDS"
)

// Defaults applied when the corresponding environment variable is unset.
const (
	DefaultShowdownAdmireMs        = 5000
	DefaultWinByFoldRevealSeconds  = 5
	DefaultTableDefaultTurnTimeout = 30 * time.Second
	DefaultIdleTableCloseSeconds   = 10 * time.Minute
)

// Engine is the process-wide configuration every table's TableConfig and
// the scheduler's recovery path are seeded from.
type Engine struct {
	// TaskQueueLocation is opaque to the engine; it is handed to whatever
	// durable task queue backs the scheduler in production.
	TaskQueueLocation string

	// TurnTimeout is the default action clock for a newly created table.
	TurnTimeout time.Duration

	// IdleTableClose is how long an empty table lives before closing.
	IdleTableClose time.Duration

	// ShowdownAdmire is how long a showdown result is displayed before
	// the next hand is scheduled.
	ShowdownAdmire time.Duration

	// WinByFoldReveal is how long a win-by-fold result is displayed
	// before the next hand is scheduled.
	WinByFoldReveal time.Duration
}

// FromEnv parses the engine's configuration from the process environment,
// applying the documented defaults for anything unset.
func FromEnv() (Engine, error) {
	cfg := Engine{
		TaskQueueLocation: os.Getenv(EnvTaskQueueLocation),
		TurnTimeout:       DefaultTableDefaultTurnTimeout,
		IdleTableClose:    DefaultIdleTableCloseSeconds,
		ShowdownAdmire:    DefaultShowdownAdmireMs * time.Millisecond,
		WinByFoldReveal:   DefaultWinByFoldRevealSeconds * time.Second,
	}

	if raw := os.Getenv(EnvTableDefaultTurnTimeout); raw != "" {
		secs, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Engine{}, fmt.Errorf("invalid %s value: %w", EnvTableDefaultTurnTimeout, err)
		}
		cfg.TurnTimeout = time.Duration(secs) * time.Second
	}

	if raw := os.Getenv(EnvIdleTableCloseSeconds); raw != "" {
		secs, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Engine{}, fmt.Errorf("invalid %s value: %w", EnvIdleTableCloseSeconds, err)
		}
		cfg.IdleTableClose = time.Duration(secs) * time.Second
	}

	if raw := os.Getenv(EnvShowdownAdmireMs); raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Engine{}, fmt.Errorf("invalid %s value: %w", EnvShowdownAdmireMs, err)
		}
		cfg.ShowdownAdmire = time.Duration(ms) * time.Millisecond
	}

	if raw := os.Getenv(EnvWinByFoldRevealSeconds); raw != "" {
		secs, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Engine{}, fmt.Errorf("invalid %s value: %w", EnvWinByFoldRevealSeconds, err)
		}
		cfg.WinByFoldReveal = time.Duration(secs) * time.Second
	}

	return cfg, nil
}
