// Package config loads toggl-mcp configuration.
//
// Precedence (highest to lowest):
//  1. Environment variables (TOGGL_API_TOKEN, LOG_LEVEL, HTTP_PORT, ...)
//  2. A .env file in the working directory
//  3. YAML config file (~/.config/toggl-mcp/config.yaml)
//  4. Hardcoded defaults
//
// Environment variables map to YAML keys by splitting on the first
// underscore:
//
//	TOGGL_API_TOKEN    -> toggl.api_token
//	TOGGL_WORKSPACE_ID -> toggl.workspace_id
//	LOG_FORMAT         -> log.format
//	HTTP_PORT          -> http.port
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"
)

const (
	DefaultBaseURL  = "https://api.track.toggl.com"
	DefaultTimeout  = 10 * time.Second
	DefaultLogLevel = "info"
	DefaultFormat   = "json"
	DefaultHTTPHost = "127.0.0.1"
	DefaultHTTPPort = 7438
)

// Config is the full process configuration.
type Config struct {
	Toggl TogglConfig `koanf:"toggl"`
	Log   LogConfig   `koanf:"log"`
	HTTP  HTTPConfig  `koanf:"http"`
}

// TogglConfig holds the remote API settings.
type TogglConfig struct {
	APIToken    Secret        `koanf:"api_token"`
	WorkspaceID int64         `koanf:"workspace_id"` // 0 resolves the default workspace
	BaseURL     string        `koanf:"base_url"`
	Timeout     time.Duration `koanf:"timeout"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json or console
}

type HTTPConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

// Secret wraps strings that should be redacted in logs and serialization.
// Use Value() to access the actual secret value.
type Secret string

// String implements fmt.Stringer. Always returns redacted value.
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "[REDACTED]"
}

// GoString implements fmt.GoStringer for %#v formatting.
func (s Secret) GoString() string {
	return "Secret([REDACTED])"
}

// Value returns the actual secret value. Use sparingly.
func (s Secret) Value() string {
	return string(s)
}

// IsSet returns true if the secret has a non-empty value.
func (s Secret) IsSet() bool {
	return s != ""
}

// MarshalJSON always returns the redacted value.
func (s Secret) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// MarshalText always returns the redacted value.
func (s Secret) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Default returns a Config populated with hardcoded defaults only.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Toggl.BaseURL == "" {
		cfg.Toggl.BaseURL = DefaultBaseURL
	}
	if cfg.Toggl.Timeout == 0 {
		cfg.Toggl.Timeout = DefaultTimeout
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultFormat
	}
	if cfg.HTTP.Host == "" {
		cfg.HTTP.Host = DefaultHTTPHost
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = DefaultHTTPPort
	}
}

// Validate rejects values that would make the server misbehave. A missing
// API token is allowed; tool calls report it instead.
func (c *Config) Validate() error {
	if c.Toggl.WorkspaceID < 0 {
		return fmt.Errorf("toggl.workspace_id must not be negative, got %d", c.Toggl.WorkspaceID)
	}
	if c.Toggl.Timeout <= 0 {
		return fmt.Errorf("toggl.timeout must be positive, got %s", c.Toggl.Timeout)
	}
	u, err := url.Parse(c.Toggl.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("toggl.base_url must be an absolute http(s) URL, got %q", c.Toggl.BaseURL)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error; got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console, got %q", c.Log.Format)
	}
	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	return nil
}
