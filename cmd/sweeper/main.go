// Package main is the entry point for the one-shot lifecycle sweeper.
//
// Designed to run from cron (or any external scheduler): it loads the same
// configuration as the API server, performs a single sweep of expiring and
// overdue subscriptions, prints the result as JSON on stdout, and exits.
// A non-zero exit code signals the scheduler that the sweep did not complete.
//
// The sweep itself is idempotent, so overlapping or repeated invocations are
// harmless.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"payflow/internal/config"
	"payflow/internal/db"
	"payflow/internal/external"
	"payflow/internal/scheduler"
)

// sweepTimeout bounds a whole sweep run, including notification fan-out.
const sweepTimeout = 5 * time.Minute

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("payflow sweeper starting",
		"environment", cfg.Environment,
		"notify_within_days", cfg.Sweep.NotifyWithinDays,
	)

	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting database: %w", err)
	}
	defer pool.Close()

	subRepo := db.NewSubscriptionRepo(pool, logger)

	var notifier scheduler.Notifier
	if cfg.Notifier.Enabled() {
		notifier = external.NewNotifierClient(
			&http.Client{Timeout: cfg.Notifier.Timeout},
			external.NotifierClientConfig{
				URL:       cfg.Notifier.URL,
				AuthToken: cfg.Notifier.AuthToken,
				FromName:  cfg.Notifier.FromName,
				Logger:    logger,
			},
		)
	}

	sweeper := scheduler.NewSweeper(subRepo, notifier, scheduler.SweeperConfig{
		NotifyWithin: time.Duration(cfg.Sweep.NotifyWithinDays) * 24 * time.Hour,
		Concurrency:  cfg.Sweep.Concurrency,
		DashboardURL: cfg.Server.DashboardURL,
	}, logger)

	result, err := sweeper.SweepExpiring(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}

	out, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}
