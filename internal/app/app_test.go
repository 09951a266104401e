package app

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/foxzi/equiptrack/internal/config"
	"github.com/foxzi/equiptrack/internal/tenant"
)

func TestSetupLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupLogger(config.LoggingConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info("hidden")
	logger.Warn("shown", "key", "value")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info message logged at warn level")
	}
	if !strings.Contains(out, `"msg":"shown"`) || !strings.Contains(out, `"key":"value"`) {
		t.Errorf("output = %q, want JSON warn entry", out)
	}

	buf.Reset()
	SetupLogger(config.LoggingConfig{Level: "debug", Format: "text"}, &buf).Debug("details")
	if !strings.Contains(buf.String(), "msg=details") {
		t.Errorf("output = %q, want text debug entry", buf.String())
	}
}

func TestOpenComponents(t *testing.T) {
	for _, backend := range []string{"yaml", "bolt"} {
		t.Run(backend, func(t *testing.T) {
			dir := t.TempDir()
			cfg := config.Default()
			cfg.Storage.DataDir = filepath.Join(dir, "data")
			cfg.Storage.StatePath = filepath.Join(dir, "state.db")
			cfg.Storage.RolesFile = filepath.Join(dir, "roles.yaml")
			cfg.Storage.SettingsFile = filepath.Join(dir, "settings.yaml")
			cfg.Storage.RoleBackend = backend
			cfg.Access.Admins = []string{"admin@example.com"}

			c, err := OpenComponents(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
			if err != nil {
				t.Fatalf("OpenComponents() error = %v", err)
			}
			defer c.Close()

			ctx := context.Background()
			tn, err := c.Resolver.Resolve(ctx, "Admin@Example.com")
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if tn.Role != tenant.RoleAdmin {
				t.Errorf("Role = %q, want admin", tn.Role)
			}
			if _, err := c.Resolver.Resolve(ctx, "sam@example.com"); err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}

			stats, err := (&statsProvider{roles: c.Roles, sessions: c.Sessions}).Stats(ctx)
			if err != nil {
				t.Fatalf("Stats() error = %v", err)
			}
			if stats.Tenants != 2 || stats.Sessions != 0 {
				t.Errorf("Stats() = %+v, want 2 tenants and 0 sessions", stats)
			}
		})
	}
}
