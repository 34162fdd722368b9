package core

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"observatory/internal/types"
)

// defaultRedactedHeaders lists header names whose values are masked in
// request logs to prevent accidental leakage of credentials.
var defaultRedactedHeaders = []string{
	"Authorization",
	"Cookie",
}

// MountRoutes defines the top-level routing hierarchy: the global middleware
// chain, the /v1 API group, and the top-level operational routes (health,
// metrics, OpenAPI spec).
func (s *Server) MountRoutes() {
	s.registerGlobalMiddleware()

	s.router.Route("/v1", s.mountV1)

	s.router.Get("/health", s.HandleHealth)
	s.router.Get("/openapi.json", s.ServeOpenAPISpec)
	if s.Metrics != nil {
		s.router.Method(http.MethodGet, "/metrics", s.Metrics.Handler())
	}

	s.router.NotFound(s.handleNotFound)
	s.router.MethodNotAllowed(s.handleMethodNotAllowed)
}

// registerGlobalMiddleware applies middleware in strict order.
//
// Ordering rationale:
//  1. Recoverer       - catches panics; outermost to catch all failures.
//  2. RequestID       - generates/propagates correlation ID for tracing.
//  3. SecurityHeaders - ensures all responses include security headers.
//  4. RequestLogger   - structured logging (redacted headers).
//  5. CORS            - browser security headers.
//  6. Metrics         - request latency and count recording.
//
// Authentication is not global: domain registrars gate their mutating route
// groups with RequireAuth, leaving reads and operational routes open.
func (s *Server) registerGlobalMiddleware() {
	s.router.Use(s.Recoverer)
	s.router.Use(RequestIDMiddleware)
	s.router.Use(s.SecurityHeadersMiddleware)
	s.router.Use(RequestLogger(s.Logger, defaultRedactedHeaders))
	s.router.Use(NewCORSMiddleware(s.corsAllowedOrigins()))
	s.router.Use(s.MetricsMiddleware)
}

// mountV1 registers all v1 endpoints. Domain handler routes are registered
// via V1RouteRegistrars, populated by the application entry point; the
// indirection avoids import cycles between core and handler packages.
func (s *Server) mountV1(r chi.Router) {
	for _, registrar := range s.V1RouteRegistrars {
		registrar(r)
	}
}

func (s *Server) corsAllowedOrigins() []string {
	if s.Config != nil && len(s.Config.Server.CORSOrigins) > 0 {
		return s.Config.Server.CORSOrigins
	}
	return []string{"*"}
}

// handleNotFound writes the standard envelope for unmatched paths so 404s
// look the same as every other error.
func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	Error(w, r, types.NewAppError(
		types.ErrCodeNotFoundRoute,
		"route not found",
		nil,
	))
}

// handleMethodNotAllowed writes the standard envelope for known paths hit
// with an unsupported method.
func (s *Server) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	Error(w, r, types.NewAppError(
		types.ErrCodeMethodNotAllowed,
		"method not allowed for this route",
		nil,
	))
}
