// Package api exposes the wizard and admin operations over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mwrona/receiptor/internal/config"
	"github.com/mwrona/receiptor/internal/metrics"
	"github.com/mwrona/receiptor/internal/store"
	"github.com/mwrona/receiptor/internal/wizard"
)

// Server is the HTTP API server.
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	wizard     *wizard.Wizard
	store      *store.Store
	metrics    *metrics.Metrics
	config     *config.APIConfig
	logger     *slog.Logger
	version    string
}

// NewServer creates the API server. metrics may be nil when the scrape
// endpoint is disabled.
func NewServer(w *wizard.Wizard, st *store.Store, m *metrics.Metrics, cfg *config.APIConfig, version string, logger *slog.Logger) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		wizard:  w,
		store:   st,
		metrics: m,
		config:  cfg,
		logger:  logger,
		version: version,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Recoverer)
	if s.metrics != nil {
		s.router.Use(s.metrics.HTTPMiddleware)
	}

	s.router.Get("/health", s.handleHealth)
	if s.metrics != nil {
		s.router.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/wizard/templates", s.handleTemplates)
		r.Post("/wizard/{userID}/select", s.handleSelect)
		r.Get("/wizard/{userID}/stage", s.handleCurrentStage)
		r.Post("/wizard/{userID}/stage", s.handleSubmit)
		r.Delete("/wizard/{userID}", s.handleAbort)

		r.Post("/settings/{userID}/start", s.handleSettingsStart)
		r.Post("/settings/{userID}/stage", s.handleSubmit)
		r.Get("/settings/{userID}", s.handleProfile)

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.adminAuthMiddleware)

			r.Put("/limits/{userID}", s.handleSetLimit)
			r.Get("/limits/{userID}", s.handleGetLimit)
			r.Delete("/limits/{userID}", s.handleResetLimit)
			r.Delete("/limits", s.handleResetAllLimits)

			r.Put("/access/{userID}", s.handleGrantAccess)
			r.Get("/access/{userID}", s.handleAccessStatus)
		})
	})
}

// Router returns the HTTP handler, used directly in tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:         s.config.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	s.logger.Info("starting HTTP API server", "addr", s.config.ListenAddr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP API server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
