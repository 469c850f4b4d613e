// Package core provides the API chassis for the Floodline management API: a
// chi router with panic recovery, request correlation, structured request
// logging, admin-key auth, and the standard response envelopes.
package core

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"floodline/internal/config"
)

// defaultRequestTimeout is the soft deadline applied to request contexts.
const defaultRequestTimeout = 29 * time.Second

// RouteRegistrar mounts one handler group onto the authenticated /v1 router.
// The indirection keeps core free of handler imports.
type RouteRegistrar func(r chi.Router)

// Server bundles the chassis dependencies for the management API.
type Server struct {
	Config    *config.Config
	Logger    *slog.Logger
	Validator *Validator

	// HealthProbes are checked by GET /health.
	HealthProbes []HealthProbe

	// V1RouteRegistrars are mounted under /v1 behind admin auth.
	V1RouteRegistrars []RouteRegistrar

	router *chi.Mux
}

// NewServer creates a Server with an empty router. The caller mounts routes
// via MountRoutes after registering handlers and probes.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(logger),
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// MountRoutes registers the global middleware chain, the authenticated /v1
// group, and the public health endpoint.
//
// Middleware order: Recoverer outermost so every panic is caught, then the
// request timeout, request ID (so all later logging carries it), and the
// request logger. Admin auth applies to /v1 only.
func (s *Server) MountRoutes() {
	s.router.Use(s.Recoverer)
	s.router.Use(ContextTimeoutMiddleware(defaultRequestTimeout))
	s.router.Use(RequestIDMiddleware)
	s.router.Use(RequestLogger(s.Logger))

	s.router.Route("/v1", func(r chi.Router) {
		r.Use(s.AdminAuthMiddleware)
		for _, registrar := range s.V1RouteRegistrars {
			registrar(r)
		}
	})

	s.router.Get("/health", s.HandleHealth)
}
