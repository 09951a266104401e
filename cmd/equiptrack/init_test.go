package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/foxzi/equiptrack/internal/config"
)

func TestGenerateRandomString(t *testing.T) {
	lengths := []int{8, 16, 32, 64}

	for _, length := range lengths {
		result := generateRandomString(length)
		if len(result) != length {
			t.Errorf("generateRandomString(%d) returned string of length %d", length, len(result))
		}
	}

	s1 := generateRandomString(32)
	s2 := generateRandomString(32)
	if s1 == s2 {
		t.Error("generateRandomString should generate unique strings")
	}
}

func TestGenerateConfig(t *testing.T) {
	initListen = ":8080"
	initDataDir = "/var/lib/equiptrack"
	initAdmin = "ops@example.com"
	initAuthMode = "header"

	cfg := generateConfig("secret")

	checks := []string{
		`listen_addr: ":8080"`,
		`data_dir: "/var/lib/equiptrack"`,
		`- "ops@example.com"`,
		`mode: header`,
		`trusted_header: "X-Forwarded-Email"`,
		`session_secret: "secret"`,
	}
	for _, check := range checks {
		if !strings.Contains(cfg, check) {
			t.Errorf("Generated config missing: %s", check)
		}
	}
	if strings.Contains(cfg, "oidc:") {
		t.Error("header mode config should not contain an oidc section")
	}
}

func TestGeneratedConfigLoads(t *testing.T) {
	tmpDir := t.TempDir()
	initListen = ":8080"
	initDataDir = filepath.Join(tmpDir, "data")
	initAdmin = "ops@example.com"
	initAuthMode = "oidc"
	initIssuer = "https://sso.example.com"
	initClientID = "equiptrack"

	path := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(path, []byte(generateConfig(generateRandomString(48))), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	if cfg.Auth.Mode != "oidc" || cfg.Auth.OIDC.IssuerURL != "https://sso.example.com" {
		t.Errorf("auth = %+v", cfg.Auth)
	}
	if !cfg.IsBootstrapAdmin("OPS@example.com") {
		t.Error("ops@example.com should be a bootstrap admin")
	}
	if cfg.Storage.StatePath != filepath.Join(initDataDir, "state.db") {
		t.Errorf("StatePath = %q", cfg.Storage.StatePath)
	}
}

func TestAPIKeyEntry(t *testing.T) {
	entry := apiKeyEntry("ci@example.com", "$2a$10$abc")
	if !strings.Contains(entry, `email: "ci@example.com"`) || !strings.Contains(entry, `key_hash: "$2a$10$abc"`) {
		t.Errorf("entry = %q", entry)
	}
}
