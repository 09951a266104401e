package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"

	"github.com/foxzi/equiptrack/internal/api"
	"github.com/foxzi/equiptrack/internal/auth"
	"github.com/foxzi/equiptrack/internal/config"
	"github.com/foxzi/equiptrack/internal/metrics"
	"github.com/foxzi/equiptrack/internal/session"
	"github.com/foxzi/equiptrack/internal/settings"
	"github.com/foxzi/equiptrack/internal/tenant"
	"github.com/foxzi/equiptrack/internal/workspace"
)

// App is the main application
type App struct {
	config        *config.Config
	logger        *slog.Logger
	roles         tenant.RoleStore
	resolver      *tenant.Resolver
	pool          *workspace.Pool
	sessions      *session.Store
	cleaner       *session.Cleaner
	collector     *metrics.Collector
	metricsServer *metrics.Server
	apiServer     *api.Server
}

// Components are the storage layers shared by the server and the CLI
type Components struct {
	Roles    tenant.RoleStore
	Resolver *tenant.Resolver
	Sessions *session.Store
	Settings *settings.Store
	Pool     *workspace.Pool
}

// Close releases every component
func (c *Components) Close() {
	c.Pool.Close()
	c.Roles.Close()
	c.Sessions.Close()
}

// OpenComponents opens the session state file, the role store and the
// database pool described by cfg
func OpenComponents(cfg *config.Config, logger *slog.Logger) (*Components, error) {
	fs := afero.NewOsFs()
	if err := fs.MkdirAll(cfg.Storage.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	sessions, err := session.NewStore(cfg.Storage.StatePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create session store: %w", err)
	}

	var roles tenant.RoleStore
	switch cfg.Storage.RoleBackend {
	case "bolt":
		roles, err = tenant.NewBoltRoleStore(sessions.DB())
		if err != nil {
			sessions.Close()
			return nil, fmt.Errorf("failed to create role store: %w", err)
		}
	default:
		roles = tenant.NewYAMLRoleStore(fs, cfg.Storage.RolesFile)
	}

	resolver := tenant.NewResolver(fs, roles, tenant.Options{
		DataDir:      cfg.Storage.DataDir,
		AdminSeesAll: cfg.AdminSeesAll(),
		Admins:       cfg.Access.Admins,
	}, logger.With("component", "tenant"))

	pool := workspace.NewPool(workspace.PoolOptions{
		IdleTTL:         cfg.Pool.IdleTTL,
		CleanupInterval: cfg.Pool.CleanupInterval,
		BusyTimeout:     cfg.Pool.BusyTimeout,
	}, logger.With("component", "pool"))

	return &Components{
		Roles:    roles,
		Resolver: resolver,
		Sessions: sessions,
		Settings: settings.NewStore(fs, cfg.Storage.SettingsFile, cfg.Maintenance.DefaultIntervalDays),
		Pool:     pool,
	}, nil
}

// statsProvider reports tenant and session counts to the metrics collector
type statsProvider struct {
	roles    tenant.RoleStore
	sessions *session.Store
}

func (p *statsProvider) Stats(ctx context.Context) (*metrics.Stats, error) {
	users, err := p.roles.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	n, err := p.sessions.Count(ctx)
	if err != nil {
		return nil, err
	}
	return &metrics.Stats{Tenants: len(users), Sessions: n}, nil
}

// New creates a new application
func New(cfg *config.Config) (*App, error) {
	logger := SetupLogger(cfg.Logging, os.Stdout)

	c, err := OpenComponents(cfg, logger)
	if err != nil {
		return nil, err
	}

	a := &App{
		config:   cfg,
		logger:   logger,
		roles:    c.Roles,
		resolver: c.Resolver,
		pool:     c.Pool,
		sessions: c.Sessions,
		cleaner: session.NewCleaner(c.Sessions, session.CleanerConfig{
			MaxAge:   cfg.Storage.SessionMaxAge,
			Interval: cfg.Storage.SessionCleanupInterval,
		}, logger.With("component", "session_cleaner")),
	}

	authn, oidcProvider, err := setupAuth(cfg, logger)
	if err != nil {
		c.Close()
		return nil, err
	}

	if cfg.Metrics.Enabled {
		m := metrics.New()
		metrics.SetGlobal(m)
		c.Pool.SetObserver(m)

		a.collector, err = metrics.NewCollector(c.Sessions.DB(), m,
			&statsProvider{roles: c.Roles, sessions: c.Sessions},
			cfg.Storage.StatePath, 0)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to create metrics collector: %w", err)
		}
		a.metricsServer = metrics.NewServerWithAllowedIPs(m, cfg.Metrics.ListenAddr, cfg.Metrics.Path,
			cfg.Metrics.AllowedIPs, logger.With("component", "metrics"))
		logger.Info("metrics enabled", "addr", cfg.Metrics.ListenAddr, "path", cfg.Metrics.Path)
	}

	a.apiServer = api.NewServer(cfg, api.Deps{
		Resolver:  c.Resolver,
		Pool:      c.Pool,
		Sessions:  c.Sessions,
		Settings:  c.Settings,
		Auth:      authn,
		OIDC:      oidcProvider,
		Collector: a.collector,
	}, logger.With("component", "api"))

	return a, nil
}

// setupAuth builds the authenticator and, in oidc mode, the OIDC provider
func setupAuth(cfg *config.Config, logger *slog.Logger) (*auth.Authenticator, *auth.OIDCProvider, error) {
	var tokens *auth.TokenIssuer
	if cfg.Auth.SessionSecret != "" {
		var err error
		tokens, err = auth.NewTokenIssuer(cfg.Auth.SessionSecret, cfg.Auth.SessionTTL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create token issuer: %w", err)
		}
	}

	var keys *auth.APIKeys
	if len(cfg.Auth.APIKeys) > 0 {
		keys = auth.NewAPIKeys(cfg.Auth.APIKeys)
		logger.Info("API keys configured", "count", keys.Len())
	}

	var trustedHeader string
	var provider *auth.OIDCProvider
	switch cfg.Auth.Mode {
	case "header":
		trustedHeader = cfg.Auth.TrustedHeader
		logger.Info("header authentication enabled", "header", trustedHeader)
	case "oidc":
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		var err error
		provider, err = auth.NewOIDCProvider(ctx, &cfg.Auth.OIDC)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("OIDC authentication enabled", "issuer", cfg.Auth.OIDC.IssuerURL)
	}

	return auth.NewAuthenticator(trustedHeader, tokens, keys), provider, nil
}

// Run starts all components and waits for shutdown
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("starting equiptrack",
		"api_addr", a.config.Server.ListenAddr,
		"data_dir", a.config.Storage.DataDir,
		"auth_mode", a.config.Auth.Mode,
		"role_backend", a.config.Storage.RoleBackend,
	)

	// Create context that listens for signals
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a.cleaner.Start(ctx)
	if a.collector != nil {
		a.collector.Start(ctx)
	}

	errCh := make(chan error, 2)

	go func() {
		if err := a.apiServer.ListenAndServe(); err != nil {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	if a.metricsServer != nil {
		go func() {
			if err := a.metricsServer.ListenAndServe(); err != nil {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		a.logger.Error("server error", "error", err)
		cancel()
	}

	return a.Shutdown(context.Background())
}

// Shutdown gracefully shuts down all components
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("api server shutdown error", "error", err)
	}
	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("metrics server shutdown error", "error", err)
		}
	}

	a.cleaner.Stop()

	// Persist counters before the state file closes
	if a.collector != nil {
		if err := a.collector.Stop(); err != nil {
			a.logger.Error("metrics collector stop error", "error", err)
		}
	}

	a.pool.Close()
	if err := a.roles.Close(); err != nil {
		a.logger.Error("role store close error", "error", err)
	}
	if err := a.sessions.Close(); err != nil {
		a.logger.Error("session store close error", "error", err)
	}

	a.logger.Info("shutdown complete")
	return nil
}

// SetupLogger creates a logger based on configuration
func SetupLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}
