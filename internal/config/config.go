// Package config provides layered configuration for the API server.
//
// Values are resolved in order of increasing priority: built-in defaults, an
// optional YAML file, then environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/capitalize-ai/localchat/pkg/logger"
)

// DefaultSessionSecret is the built-in signing key. It is public, so a
// deployment that keeps it can have its session cookies forged.
const DefaultSessionSecret = "dev-secret-key"

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultConfigPaths are searched in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/localchat/config.yaml",
}

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Ollama    OllamaConfig    `koanf:"ollama"`
	Database  DatabaseConfig  `koanf:"database"`
	Session   SessionConfig   `koanf:"session"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	CORS      CORSConfig      `koanf:"cors"`
	Logging   LoggingConfig   `koanf:"logging"`
	NATS      NATSConfig      `koanf:"nats"`
	Tracing   TracingConfig   `koanf:"tracing"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port        int           `koanf:"port"`
	ReadTimeout time.Duration `koanf:"read_timeout"`
	// WriteTimeout of zero leaves streamed generations unbounded.
	WriteTimeout time.Duration `koanf:"write_timeout"`
	IdleTimeout  time.Duration `koanf:"idle_timeout"`
}

// OllamaConfig points at the inference daemon.
type OllamaConfig struct {
	URL     string        `koanf:"url"`
	Timeout time.Duration `koanf:"timeout"`
}

// DatabaseConfig locates the SQLite file.
type DatabaseConfig struct {
	Path string `koanf:"path"`
}

// SessionConfig controls the session cookie.
type SessionConfig struct {
	Secret     string        `koanf:"secret"`
	TTL        time.Duration `koanf:"ttl"`
	CookieName string        `koanf:"cookie_name"`
	Secure     bool          `koanf:"secure"`
}

// RateLimitConfig configures httprate limits.
type RateLimitConfig struct {
	Requests      int           `koanf:"requests"`
	Window        time.Duration `koanf:"window"`
	LoginRequests int           `koanf:"login_requests"`
}

// CORSConfig lists allowed origins.
type CORSConfig struct {
	Origins []string `koanf:"origins"`
}

// LoggingConfig sets the log level and encoding ("json" or "console").
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// NATSConfig enables the optional event feed. An empty URL disables it.
type NATSConfig struct {
	URL      string `koanf:"url"`
	Token    string `koanf:"token"`
	CAFile   string `koanf:"ca_file"`
	CertFile string `koanf:"cert_file"`
	KeyFile  string `koanf:"key_file"`
}

// TracingConfig enables OTLP trace export.
type TracingConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Endpoint string `koanf:"endpoint"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         5000,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 0,
			IdleTimeout:  120 * time.Second,
		},
		Ollama: OllamaConfig{
			URL:     "http://localhost:11434",
			Timeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path: filepath.Join("instance", "app.db"),
		},
		Session: SessionConfig{
			Secret:     DefaultSessionSecret,
			TTL:        7 * 24 * time.Hour,
			CookieName: "localchat_session",
			Secure:     false,
		},
		RateLimit: RateLimitConfig{
			Requests:      120,
			Window:        time.Minute,
			LoginRequests: 10,
		},
		CORS: CORSConfig{
			Origins: []string{"http://*", "https://*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:  false,
			Endpoint: "localhost:4318",
		},
	}
}

// Load reads configuration from defaults, an optional YAML file and the environment.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := splitSliceFields(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	cfg.Database.Path = normalizePath(cfg.Database.Path)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks the settings the server cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if strings.TrimSpace(c.Ollama.URL) == "" {
		errs = append(errs, errors.New("ollama.url is required"))
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if c.Session.Secret == "" {
		errs = append(errs, errors.New("session.secret is required"))
	}
	if c.Session.TTL <= 0 {
		errs = append(errs, errors.New("session.ttl must be positive"))
	}
	if _, err := logger.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	switch logger.Format(strings.ToLower(c.Logging.Format)) {
	case logger.FormatJSON, logger.FormatConsole, "":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q must be json or console", c.Logging.Format))
	}
	return errors.Join(errs...)
}

// UsesDefaultSecret reports whether sessions are signed with DefaultSessionSecret.
func (c *Config) UsesDefaultSecret() bool {
	return c.Session.Secret == DefaultSessionSecret
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// normalizePath resolves a relative database path against the working directory.
func normalizePath(p string) string {
	if p == "" || p == ":memory:" || filepath.IsAbs(p) {
		return p
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}

// sliceConfigPaths are accepted as comma-separated strings from the environment.
var sliceConfigPaths = []string{"cors.origins"}

func splitSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		raw, ok := k.Get(path).(string)
		if !ok || raw == "" {
			continue
		}
		var parts []string
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if err := k.Set(path, parts); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

var envMappings = map[string]string{
	"port":                      "server.port",
	"server_port":               "server.port",
	"server_read_timeout":       "server.read_timeout",
	"server_write_timeout":      "server.write_timeout",
	"ollama_api_url":            "ollama.url",
	"ollama_timeout":            "ollama.timeout",
	"database_path":             "database.path",
	"secret_key":                "session.secret",
	"session_ttl":               "session.ttl",
	"session_cookie_name":       "session.cookie_name",
	"session_cookie_secure":     "session.secure",
	"rate_limit_requests":       "rate_limit.requests",
	"rate_limit_window":         "rate_limit.window",
	"rate_limit_login_requests": "rate_limit.login_requests",
	"cors_origins":              "cors.origins",
	"log_level":                 "logging.level",
	"log_format":                "logging.format",
	"nats_url":                  "nats.url",
	"nats_token":                "nats.token",
	"nats_ca_file":              "nats.ca_file",
	"nats_cert_file":            "nats.cert_file",
	"nats_key_file":             "nats.key_file",
	"tracing_enabled":           "tracing.enabled",
	"tracing_endpoint":          "tracing.endpoint",
}

// envTransformFunc maps environment variable names to config paths.
// Unmapped variables are dropped.
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
