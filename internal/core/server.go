// Package core provides the API chassis for the payflow billing service.
// It creates a chi router and enforces cross-cutting concerns -- security,
// logging, and error handling -- before requests reach domain-specific
// handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"payflow/internal/config"
)

// Server encapsulates all dependencies for the payflow API, allowing for
// easy injection during testing and distinct configuration for different
// environments.
type Server struct {
	Config    *config.Config
	Logger    *slog.Logger
	Validator *Validator

	// V1RouteRegistrars are invoked during MountRoutes to register domain
	// handler routes under /v1. Populated by the application entry point;
	// this indirection avoids import cycles between core and handler packages.
	V1RouteRegistrars []func(chi.Router)

	// HealthProbes are executed concurrently by the /health endpoint.
	HealthProbes []HealthProbe

	// closers are invoked during Shutdown, in registration order.
	closers []func() error

	router *chi.Mux
}

// NewServer initializes dependencies, sets up the router, and prepares the
// server for route mounting. It performs a fail-fast check on critical
// configuration.
//
// The caller is responsible for mounting routes (via MountRoutes) after
// construction. This separation allows tests to customize route registration.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(logger),
		router:    chi.NewRouter(),
	}

	return s, nil
}

// Handler returns the http.Handler interface for the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration.
// This is used internally by route-mounting methods and tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// RegisterCloser adds a cleanup function executed during Shutdown.
// Typical use: closing the database pool.
func (s *Server) RegisterCloser(fn func() error) {
	s.closers = append(s.closers, fn)
}

// Shutdown performs a graceful termination of server resources by running
// all registered closers. The first closer error is returned after all
// closers have been attempted.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown initiated")

	var firstErr error
	for _, closer := range s.closers {
		if err := closer(); err != nil {
			s.Logger.Error("error during shutdown", "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	s.Logger.Info("server shutdown complete")
	return firstErr
}
