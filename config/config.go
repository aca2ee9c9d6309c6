// Package config loads service configuration with the precedence
// defaults -> YAML file -> environment variables (prefix PARLEY).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/parleylabs/parley/groupchat"
	"github.com/parleylabs/parley/session"
)

// Config is the full service configuration.
type Config struct {
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Orchestrator bounds group-chat runs (mode, deadlines, summary).
	Orchestrator groupchat.Config `yaml:"orchestrator" env:"ORCHESTRATOR"`

	// Session selects and configures transcript persistence.
	Session SessionConfig `yaml:"session" env:"SESSION"`

	Redis    session.RedisConfig `yaml:"redis" env:"REDIS"`
	Database DatabaseConfig      `yaml:"database" env:"DATABASE"`

	// Agents declares the HTTP agents registered at startup. Not
	// overridable through the environment.
	Agents []AgentConfig `yaml:"agents" env:"-"`

	Log       LogConfig       `yaml:"log" env:"LOG"`
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig configures the HTTP listeners and request policies.
type ServerConfig struct {
	HTTPPort    int `yaml:"http_port" env:"HTTP_PORT"`
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`

	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`

	// APIKeys enables API-key auth when non-empty.
	APIKeys []string `yaml:"api_keys" env:"API_KEYS"`

	// CORSAllowedOrigins lists origins allowed by the CORS middleware.
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`

	// RateLimitRPS and RateLimitBurst configure the per-IP limiter.
	// RPS <= 0 disables rate limiting.
	RateLimitRPS   float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
}

// SessionConfig selects the transcript backend.
type SessionConfig struct {
	// Backend is one of "memory", "redis", "sqlite".
	Backend string `yaml:"backend" env:"BACKEND"`
}

// DatabaseConfig configures the SQLite session backend.
type DatabaseConfig struct {
	// Path is the SQLite database file; ":memory:" for ephemeral.
	Path string `yaml:"path" env:"PATH"`
}

// AgentConfig declares one agent to register at startup.
type AgentConfig struct {
	Name         string        `yaml:"name"`
	Type         string        `yaml:"type"`
	BaseURL      string        `yaml:"base_url"`
	APIKey       string        `yaml:"api_key"`
	Model        string        `yaml:"model"`
	SystemPrompt string        `yaml:"system_prompt"`
	Timeout      time.Duration `yaml:"timeout"`

	// Responses turns the entry into a scripted agent when non-empty;
	// the HTTP fields are then ignored. Useful for demos.
	Responses []string `yaml:"responses"`
}

// LogConfig configures zap.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" env:"LEVEL"`
	// Format is json or console.
	Format string `yaml:"format" env:"FORMAT"`
}

// TelemetryConfig configures the OTel SDK.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// DefaultConfig returns the configuration used when nothing is provided.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:        8080,
			MetricsPort:     9090,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    5 * time.Minute, // must outlive the 4m session deadline
			ShutdownTimeout: 15 * time.Second,
			RateLimitRPS:    10,
			RateLimitBurst:  20,
		},
		Orchestrator: groupchat.DefaultConfig(),
		Session:      SessionConfig{Backend: "memory"},
		Redis: session.RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		Database: DatabaseConfig{Path: "parley.db"},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			Enabled:      false,
			OTLPEndpoint: "localhost:4317",
			ServiceName:  "parley",
			SampleRate:   1.0,
		},
	}
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, "invalid metrics port")
	}
	switch c.Session.Backend {
	case "memory", "redis", "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("unknown session backend %q", c.Session.Backend))
	}
	if c.Telemetry.Enabled && c.Telemetry.OTLPEndpoint == "" {
		errs = append(errs, "telemetry enabled without otlp_endpoint")
	}
	for i, a := range c.Agents {
		if a.Name == "" {
			errs = append(errs, fmt.Sprintf("agents[%d] has no name", i))
		}
		if len(a.Responses) == 0 && a.BaseURL == "" {
			errs = append(errs, fmt.Sprintf("agent %q has neither base_url nor responses", a.Name))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
