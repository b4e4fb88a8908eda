// Package main is the entry point for the payflow billing API server.
//
// It loads configuration, connects the PostgreSQL pool, wires the gateway and
// notifier clients around the billing services, mounts the HTTP routes on the
// core chassis, and serves until an OS signal (SIGINT, SIGTERM) triggers a
// graceful shutdown.
//
// Without gateway credentials the service starts in demo mode: payment
// initiation records attempts locally and auto-renewal is refused.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"payflow/internal/api/handlers"
	"payflow/internal/billing"
	"payflow/internal/config"
	"payflow/internal/core"
	"payflow/internal/db"
	"payflow/internal/external"
	"payflow/internal/scheduler"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("payflow API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
		"demo_mode", cfg.Gateway.DemoMode(),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting database: %w", err)
	}

	srv, err := buildServer(cfg, pool, logger)
	if err != nil {
		pool.Close()
		return fmt.Errorf("building server: %w", err)
	}

	return runHTTPServer(srv, cfg, logger)
}

// buildServer wires repositories, external clients, and billing services into
// a fully routed core.Server.
func buildServer(cfg *config.Config, pool *pgxpool.Pool, logger *slog.Logger) (*core.Server, error) {
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return nil, err
	}

	// Repositories.
	planRepo := db.NewPlanRepo(pool)
	paymentRepo := db.NewPaymentRepo(pool)
	subRepo := db.NewSubscriptionRepo(pool, logger)
	grants := db.NewGrantStore(pool)

	// External collaborators. The gateway client is only constructed when
	// credentials are present; in demo mode the initiator never reaches it.
	var gateway billing.PaymentGateway
	if !cfg.Gateway.DemoMode() {
		gateway = external.NewGatewayClient(
			&http.Client{Timeout: cfg.Gateway.Timeout},
			external.GatewayClientConfig{
				ShopID:    cfg.Gateway.ShopID,
				SecretKey: cfg.Gateway.SecretKey,
				BaseURL:   cfg.Gateway.BaseURL,
				Logger:    logger,
			},
		)
	}

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

	verifier := external.NewHMACVerifier(cfg.Gateway.WebhookSecret)
	if !verifier.Enabled() {
		logger.Warn("webhook secret not configured; signature verification disabled")
	}

	// Billing services.
	initiator := billing.NewInitiator(planRepo, paymentRepo, gateway, subRepo, billing.InitiatorConfig{
		DemoMode:         cfg.Gateway.DemoMode(),
		DefaultReturnURL: cfg.Server.DashboardURL,
		RenewalWindow:    time.Duration(cfg.Sweep.RenewWithinDays) * 24 * time.Hour,
	}, logger)
	reconciler := billing.NewReconciler(paymentRepo, grants, logger)
	access := billing.NewAccessChecker(subRepo, logger)
	sweeper := scheduler.NewSweeper(subRepo, notifier, scheduler.SweeperConfig{
		NotifyWithin: time.Duration(cfg.Sweep.NotifyWithinDays) * 24 * time.Hour,
		Concurrency:  cfg.Sweep.Concurrency,
		DashboardURL: cfg.Server.DashboardURL,
	}, logger)

	// Handlers.
	plansHandler := handlers.NewPlansHandler(planRepo, logger)
	paymentsHandler := handlers.NewPaymentsHandler(initiator, paymentRepo, srv.Validator, logger)
	subsHandler := handlers.NewSubscriptionsHandler(subRepo, subRepo, access, srv.Validator, logger)
	webhookHandler := handlers.NewGatewayWebhookHandler(verifier, reconciler, logger)
	adminHandler := handlers.NewAdminHandler(sweeper, initiator, srv.Validator, logger)

	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		plansHandler.RegisterRoutes,
		paymentsHandler.RegisterRoutes,
		subsHandler.RegisterRoutes,
		webhookHandler.RegisterRoutes,
		func(r chi.Router) {
			r.Route("/admin", func(ar chi.Router) {
				ar.Use(srv.AdminKeyMiddleware)
				adminHandler.RegisterRoutes(ar)
			})
		},
	)

	srv.HealthProbes = append(srv.HealthProbes, &db.PoolProbe{Pool: pool})
	srv.RegisterCloser(func() error {
		pool.Close()
		return nil
	})

	srv.MountRoutes()
	return srv, nil
}

// runHTTPServer serves the API with graceful shutdown on SIGINT/SIGTERM.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server resource shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
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

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
