// Package core provides the API chassis for the Observatory service: the chi
// router, the global middleware chain, and the cross-cutting concerns
// (security headers, logging, metrics, error handling, auth) that run before
// requests reach domain handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"

	"observatory/internal/config"
)

// TokenVerifier resolves a bearer token to its subject. Injected for
// testability; the production implementation is auth.TokenService.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// Server encapsulates the dependencies of the Observatory API, allowing easy
// injection during testing and distinct configuration per environment.
type Server struct {
	Config   *config.Config
	Logger   *slog.Logger
	Metrics  *Metrics
	Verifier TokenVerifier
	Clock    clockwork.Clock

	// HealthProbes are checked concurrently by the health endpoint.
	HealthProbes []HealthProbe

	// V1RouteRegistrars mount domain handler routes under /v1. Populated by
	// the application entry point to avoid import cycles between core and
	// handler packages.
	V1RouteRegistrars []func(chi.Router)

	router *chi.Mux
}

// NewServer initializes the router and performs a fail-fast check on critical
// dependencies. The caller mounts routes via MountRoutes after construction.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config: cfg,
		Logger: logger,
		Clock:  clockwork.NewRealClock(),
		router: chi.NewRouter(),
	}, nil
}

// Handler returns the http.Handler for the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown performs a graceful termination of server-owned resources.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown initiated")
	s.Logger.Info("server shutdown complete")
	return nil
}
