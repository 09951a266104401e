// Package api implements the HTTP JSON API.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/foxzi/equiptrack/internal/auth"
	"github.com/foxzi/equiptrack/internal/config"
	"github.com/foxzi/equiptrack/internal/ipfilter"
	"github.com/foxzi/equiptrack/internal/metrics"
	"github.com/foxzi/equiptrack/internal/predict"
	"github.com/foxzi/equiptrack/internal/session"
	"github.com/foxzi/equiptrack/internal/settings"
	"github.com/foxzi/equiptrack/internal/tenant"
	"github.com/foxzi/equiptrack/internal/workspace"
)

// Version is reported by /health
var Version = "dev"

// Deps are the components the API serves
type Deps struct {
	Resolver  *tenant.Resolver
	Pool      *workspace.Pool
	Sessions  *session.Store
	Settings  *settings.Store
	Auth      *auth.Authenticator
	OIDC      *auth.OIDCProvider // nil unless auth.mode is oidc
	Collector *metrics.Collector // may be nil
}

// Server is the HTTP API server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	deps       Deps
	config     *config.Config
	filter     *ipfilter.Filter
	logger     *slog.Logger
	startTime  time.Time
	now        func() time.Time
}

// NewServer creates a new API server
func NewServer(cfg *config.Config, deps Deps, logger *slog.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		deps:      deps,
		config:    cfg,
		filter:    ipfilter.New(cfg.Server.AllowedIPs, logger),
		logger:    logger,
		startTime: time.Now(),
		now:       time.Now,
	}

	deps.Resolver.OnRemove(s.onDatabaseRemoved)

	s.setupRoutes()
	return s
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Recoverer)
	s.router.Use(metrics.RequestMetrics(s.deps.Collector))
	s.router.Use(s.filter.HTTPMiddleware)

	// Health check (no auth required)
	s.router.Get("/health", s.handleHealth)

	if s.deps.OIDC != nil {
		s.router.Get("/auth/login", s.handleLogin)
		s.router.Get("/auth/callback", s.handleCallback)
	}
	s.router.Post("/auth/logout", s.handleLogout)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/me", s.handleMe)

		r.Route("/databases", func(r chi.Router) {
			r.Get("/", s.handleListDatabases)
			r.With(s.requireWriter).Post("/", s.handleCreateDatabase)
			r.With(s.requireWriter).Delete("/{name}", s.handleDeleteDatabase)
			r.With(s.requireWriter).Patch("/{name}", s.handleRenameDatabase)
		})

		r.Get("/session", s.handleGetSession)
		r.Put("/session", s.handlePutSession)

		r.Route("/tables", func(r chi.Router) {
			r.Get("/", s.handleListTables)
			r.Get("/{table}", s.handleGetTable)
			r.With(s.requireWriter).Put("/{table}", s.handleImportTable)
			r.With(s.requireWriter).Put("/{table}/rows", s.handleUpsertRow)
			r.With(s.requireWriter).Delete("/{table}/rows/{id}", s.handleDeleteRow)
		})

		r.Get("/maintenance", s.handleListMaintenance)
		r.With(s.requireWriter).Post("/maintenance", s.handleAddMaintenance)

		r.Get("/scans", s.handleListScans)
		r.With(s.requireWriter).Post("/scans", s.handleRecordScan)

		r.Get("/predictions", s.handlePredictions)

		r.Get("/settings/intervals", s.handleGetIntervals)
		r.With(s.requireWriter).Put("/settings/intervals", s.handlePutIntervals)

		r.Get("/search", s.handleSearch)
		r.Get("/summary", s.handleSummary)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Get("/audit", s.handleListAudit)
			r.Delete("/audit", s.handleClearAudit)
			r.Get("/admin/users", s.handleListUsers)
			r.Put("/admin/users/{email}", s.handlePutUser)
		})
	})
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:           s.config.Server.ListenAddr,
		Handler:        s.router,
		ReadTimeout:    s.config.Server.ReadTimeout,
		WriteTimeout:   s.config.Server.WriteTimeout,
		IdleTimeout:    s.config.Server.IdleTimeout,
		MaxHeaderBytes: s.config.Server.MaxHeaderBytes,
	}

	if s.filter.Enabled() {
		s.logger.Info("API IP filtering enabled", "allowed_networks", s.filter.Count())
	}
	s.logger.Info("starting HTTP API server", "addr", s.config.Server.ListenAddr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP API server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Server) predictOptions() predict.Options {
	return predict.Options{
		DefaultIntervalDays: s.config.Maintenance.DefaultIntervalDays,
		DueSoonDays:         s.config.Maintenance.DueSoonDays,
	}
}
