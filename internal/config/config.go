package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/foxzi/equiptrack/internal/ipfilter"
)

// Config is the main configuration structure
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Storage     StorageConfig     `yaml:"storage"`
	Access      AccessConfig      `yaml:"access"`
	Auth        AuthConfig        `yaml:"auth"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
	Pool        PoolConfig        `yaml:"pool"`
	Metrics     MetricsConfig     `yaml:"metrics"` // Prometheus metrics configuration
	Logging     LoggingConfig     `yaml:"logging"`
}

// ServerConfig contains HTTP API settings
type ServerConfig struct {
	ListenAddr     string        `yaml:"listen_addr"`
	MaxHeaderBytes int           `yaml:"max_header_bytes"` // Max HTTP header size (default: 1MB)
	MaxUploadBytes int64         `yaml:"max_upload_bytes"` // Max import body size (default: 32MB)
	ReadTimeout    time.Duration `yaml:"read_timeout"`     // HTTP read timeout (default: 30s)
	WriteTimeout   time.Duration `yaml:"write_timeout"`    // HTTP write timeout (default: 30s)
	IdleTimeout    time.Duration `yaml:"idle_timeout"`     // HTTP idle timeout (default: 60s)
	AllowedIPs     []string      `yaml:"allowed_ips"`      // IP addresses/CIDRs allowed to access API (empty = allow all)
}

// StorageConfig contains filesystem locations
type StorageConfig struct {
	DataDir      string `yaml:"data_dir"`      // Root of per-user directories
	RolesFile    string `yaml:"roles_file"`    // YAML role store (role_backend: yaml)
	SettingsFile string `yaml:"settings_file"` // Maintenance interval settings
	StatePath    string `yaml:"state_path"`    // bbolt file for sessions (and roles with role_backend: bolt)
	RoleBackend  string `yaml:"role_backend"`  // yaml, bolt

	// Session state retention
	SessionMaxAge          time.Duration `yaml:"session_max_age"`          // Default: 720h
	SessionCleanupInterval time.Duration `yaml:"session_cleanup_interval"` // Default: 1h
}

// AccessConfig contains access policy settings
type AccessConfig struct {
	// AdminSeesAll lets admins list every database file regardless of allowed_dbs
	AdminSeesAll *bool `yaml:"admin_sees_all"`

	// Admins are promoted to the admin role on first access
	Admins []string `yaml:"admins"`
}

// AuthConfig contains authentication settings
type AuthConfig struct {
	Mode          string         `yaml:"mode"`           // header, oidc
	TrustedHeader string         `yaml:"trusted_header"` // Header set by the authenticating proxy
	SessionSecret string         `yaml:"session_secret"` // HS256 key for session tokens
	SessionTTL    time.Duration  `yaml:"session_ttl"`
	CookieSecure  bool           `yaml:"cookie_secure"`
	OIDC          OIDCConfig     `yaml:"oidc"`
	APIKeys       []APIKeyConfig `yaml:"api_keys"`
}

// OIDCConfig contains OpenID Connect settings
type OIDCConfig struct {
	IssuerURL     string   `yaml:"issuer_url"`
	ClientID      string   `yaml:"client_id"`
	ClientSecret  string   `yaml:"client_secret"`
	RedirectURL   string   `yaml:"redirect_url"`
	Scopes        []string `yaml:"scopes"`
	AllowedGroups []string `yaml:"allowed_groups"`
}

// APIKeyConfig binds a bcrypt-hashed key to an identity
type APIKeyConfig struct {
	Email   string `yaml:"email"`
	KeyHash string `yaml:"key_hash"`
}

// MaintenanceConfig contains estimator settings
type MaintenanceConfig struct {
	DefaultIntervalDays int `yaml:"default_interval_days"` // Default: 90
	DueSoonDays         int `yaml:"due_soon_days"`         // Default: 30
}

// PoolConfig contains SQLite handle pool settings
type PoolConfig struct {
	IdleTTL         time.Duration `yaml:"idle_ttl"`         // Close handles unused for this long
	CleanupInterval time.Duration `yaml:"cleanup_interval"` // How often idle handles are reaped
	BusyTimeout     time.Duration `yaml:"busy_timeout"`     // SQLite busy timeout
}

// MetricsConfig contains Prometheus metrics settings
type MetricsConfig struct {
	Enabled    bool     `yaml:"enabled"`
	ListenAddr string   `yaml:"listen_addr"` // Default: :9090
	Path       string   `yaml:"path"`        // Default: /metrics
	AllowedIPs []string `yaml:"allowed_ips"` // IP addresses/CIDRs allowed to access metrics
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Default returns a configuration with all defaults applied
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// setDefaults sets default values for configuration
func (c *Config) setDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}
	if c.Server.MaxHeaderBytes == 0 {
		c.Server.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if c.Server.MaxUploadBytes == 0 {
		c.Server.MaxUploadBytes = 32 << 20 // 32MB
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}

	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "data"
	}
	if c.Storage.RolesFile == "" {
		c.Storage.RolesFile = "roles.yaml"
	}
	if c.Storage.SettingsFile == "" {
		c.Storage.SettingsFile = "maintenance_settings.yaml"
	}
	if c.Storage.StatePath == "" {
		c.Storage.StatePath = filepath.Join(c.Storage.DataDir, "state.db")
	}
	if c.Storage.RoleBackend == "" {
		c.Storage.RoleBackend = "yaml"
	}
	if c.Storage.SessionMaxAge == 0 {
		c.Storage.SessionMaxAge = 30 * 24 * time.Hour
	}
	if c.Storage.SessionCleanupInterval == 0 {
		c.Storage.SessionCleanupInterval = time.Hour
	}

	if c.Access.AdminSeesAll == nil {
		v := true
		c.Access.AdminSeesAll = &v
	}

	if c.Auth.Mode == "" {
		c.Auth.Mode = "header"
	}
	if c.Auth.TrustedHeader == "" {
		c.Auth.TrustedHeader = "X-Forwarded-Email"
	}
	if c.Auth.SessionTTL == 0 {
		c.Auth.SessionTTL = 12 * time.Hour
	}
	if len(c.Auth.OIDC.Scopes) == 0 {
		c.Auth.OIDC.Scopes = []string{"openid", "profile", "email"}
	}

	if c.Maintenance.DefaultIntervalDays == 0 {
		c.Maintenance.DefaultIntervalDays = 90
	}
	if c.Maintenance.DueSoonDays == 0 {
		c.Maintenance.DueSoonDays = 30
	}

	if c.Pool.IdleTTL == 0 {
		c.Pool.IdleTTL = 10 * time.Minute
	}
	if c.Pool.CleanupInterval == 0 {
		c.Pool.CleanupInterval = time.Minute
	}
	if c.Pool.BusyTimeout == 0 {
		c.Pool.BusyTimeout = 5 * time.Second
	}

	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = ":9090"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir is required")
	}

	switch c.Storage.RoleBackend {
	case "yaml":
		if c.Storage.RolesFile == "" {
			return fmt.Errorf("storage.roles_file is required when role_backend is yaml")
		}
	case "bolt":
	default:
		return fmt.Errorf("storage.role_backend must be one of: yaml, bolt")
	}

	switch c.Auth.Mode {
	case "header":
		if c.Auth.TrustedHeader == "" {
			return fmt.Errorf("auth.trusted_header is required when mode is header")
		}
	case "oidc":
		if c.Auth.OIDC.IssuerURL == "" {
			return fmt.Errorf("auth.oidc.issuer_url is required when mode is oidc")
		}
		if c.Auth.OIDC.ClientID == "" {
			return fmt.Errorf("auth.oidc.client_id is required when mode is oidc")
		}
		if c.Auth.OIDC.RedirectURL == "" {
			return fmt.Errorf("auth.oidc.redirect_url is required when mode is oidc")
		}
		if c.Auth.SessionSecret == "" {
			return fmt.Errorf("auth.session_secret is required when mode is oidc")
		}
	default:
		return fmt.Errorf("auth.mode must be one of: header, oidc")
	}

	if c.Auth.SessionSecret != "" && len(c.Auth.SessionSecret) < 32 {
		return fmt.Errorf("auth.session_secret must be at least 32 characters")
	}

	for i, k := range c.Auth.APIKeys {
		if strings.TrimSpace(k.Email) == "" {
			return fmt.Errorf("auth.api_keys[%d].email is required", i)
		}
		if !strings.HasPrefix(k.KeyHash, "$2") {
			return fmt.Errorf("auth.api_keys[%d].key_hash must be a bcrypt hash", i)
		}
	}

	if c.Maintenance.DefaultIntervalDays < 1 || c.Maintenance.DefaultIntervalDays > 365 {
		return fmt.Errorf("maintenance.default_interval_days must be between 1 and 365")
	}
	if c.Maintenance.DueSoonDays < 0 {
		return fmt.Errorf("maintenance.due_soon_days must not be negative")
	}

	if err := ipfilter.Validate(c.Server.AllowedIPs); err != nil {
		return fmt.Errorf("server.allowed_ips: %w", err)
	}
	if err := ipfilter.Validate(c.Metrics.AllowedIPs); err != nil {
		return fmt.Errorf("metrics.allowed_ips: %w", err)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// AdminSeesAll reports whether admins bypass the allowed_dbs filter
func (c *Config) AdminSeesAll() bool {
	return c.Access.AdminSeesAll == nil || *c.Access.AdminSeesAll
}

// IsBootstrapAdmin reports whether email is listed in access.admins
func (c *Config) IsBootstrapAdmin(email string) bool {
	for _, a := range c.Access.Admins {
		if strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(email)) {
			return true
		}
	}
	return false
}
