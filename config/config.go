// Package config loads SDK configuration for tools and tests from YAML or
// TOML files and the NEBULAUTH_* environment. The client library itself is
// configured programmatically; this package only feeds it.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"nebulauth"
	"nebulauth/auth"
)

// Environment variables recognised by FromEnv and ApplyEnv.
const (
	EnvBaseURL          = "NEBULAUTH_BASE_URL"
	EnvBearerToken      = "NEBULAUTH_BEARER_TOKEN"
	EnvSigningSecret    = "NEBULAUTH_SIGNING_SECRET"
	EnvServiceSlug      = "NEBULAUTH_SERVICE_SLUG"
	EnvReplayProtection = "NEBULAUTH_REPLAY_PROTECTION"
	EnvTimeoutMS        = "NEBULAUTH_TIMEOUT_MS"

	// Live/integration test gating only; never read by the client.
	EnvLiveTest             = "NEBULAUTH_LIVE_TEST"
	EnvTestKey              = "NEBULAUTH_TEST_KEY"
	EnvTestHWID             = "NEBULAUTH_TEST_HWID"
	EnvDashboardBaseURL     = "NEBULAUTH_DASHBOARD_BASE_URL"
	EnvDashboardBearerToken = "NEBULAUTH_DASHBOARD_BEARER_TOKEN"
)

// Config mirrors nebulauth.Options plus tool-level settings. Durations are
// carried as milliseconds so YAML and TOML files stay interchangeable.
type Config struct {
	BaseURL          string `yaml:"baseUrl" toml:"BaseURL"`
	BearerToken      string `yaml:"bearerToken" toml:"BearerToken"`
	SigningSecret    string `yaml:"signingSecret" toml:"SigningSecret"`
	ServiceSlug      string `yaml:"serviceSlug" toml:"ServiceSlug"`
	ReplayProtection string `yaml:"replayProtection" toml:"ReplayProtection"`
	TimeoutMS        int64  `yaml:"timeoutMs" toml:"TimeoutMS"`
	ClockSkewMS      int64  `yaml:"clockSkewMs" toml:"ClockSkewMS"`

	Dashboard DashboardConfig `yaml:"dashboard" toml:"Dashboard"`
	Log       LogConfig       `yaml:"log" toml:"Log"`
	Telemetry TelemetryConfig `yaml:"telemetry" toml:"Telemetry"`
}

// DashboardConfig configures the dashboard facade.
type DashboardConfig struct {
	BaseURL     string `yaml:"baseUrl" toml:"BaseURL"`
	BearerToken string `yaml:"bearerToken" toml:"BearerToken"`
}

// LogConfig configures structured logging for tools.
type LogConfig struct {
	Env        string `yaml:"env" toml:"Env"`
	File       string `yaml:"file" toml:"File"`
	MaxSizeMB  int    `yaml:"maxSizeMb" toml:"MaxSizeMB"`
	MaxBackups int    `yaml:"maxBackups" toml:"MaxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays" toml:"MaxAgeDays"`
}

// TelemetryConfig configures the optional OpenTelemetry exporters.
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled" toml:"Enabled"`
	Endpoint string `yaml:"endpoint" toml:"Endpoint"`
	Insecure bool   `yaml:"insecure" toml:"Insecure"`
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	return Config{
		BaseURL:          nebulauth.DefaultBaseURL,
		ReplayProtection: "strict",
		TimeoutMS:        nebulauth.DefaultTimeout.Milliseconds(),
	}
}

// Load reads the file at path (YAML by default, TOML for .toml) on top of the
// defaults, applies the environment, and validates the result. An empty path
// yields defaults plus environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".toml":
			if err := toml.Unmarshal(raw, &cfg); err != nil {
				return Config{}, fmt.Errorf("decode toml config: %w", err)
			}
		default:
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return Config{}, fmt.Errorf("decode yaml config: %w", err)
			}
		}
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// FromEnv returns the defaults overlaid with the NEBULAUTH_* environment.
func FromEnv() (Config, error) {
	return Load("")
}

// ApplyEnv overlays any set NEBULAUTH_* variables on the config.
func (c *Config) ApplyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvBaseURL)); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv(EnvBearerToken); strings.TrimSpace(v) != "" {
		c.BearerToken = v
	}
	if v := os.Getenv(EnvSigningSecret); strings.TrimSpace(v) != "" {
		c.SigningSecret = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvServiceSlug)); v != "" {
		c.ServiceSlug = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvReplayProtection)); v != "" {
		c.ReplayProtection = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvTimeoutMS)); v != "" {
		if millis, err := strconv.ParseInt(v, 10, 64); err == nil && millis > 0 {
			c.TimeoutMS = millis
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvDashboardBaseURL)); v != "" {
		c.Dashboard.BaseURL = v
	}
	if v := os.Getenv(EnvDashboardBearerToken); strings.TrimSpace(v) != "" {
		c.Dashboard.BearerToken = v
	}
}

// Validate checks the cross-field invariants before a client is built.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return fmt.Errorf("baseUrl must not be empty")
	}
	if c.TimeoutMS <= 0 {
		return fmt.Errorf("timeoutMs must be positive")
	}
	if _, err := auth.ParseMode(c.ReplayProtection); err != nil {
		return err
	}
	// A missing signing secret with replay protection enabled is permitted
	// here: the client raises a typed SigningUnavailable on first signed call.
	return nil
}

// ClientOptions converts the file/env representation into client options.
func (c Config) ClientOptions() (nebulauth.Options, error) {
	mode, err := auth.ParseMode(c.ReplayProtection)
	if err != nil {
		return nebulauth.Options{}, err
	}
	return nebulauth.Options{
		BaseURL:          c.BaseURL,
		BearerToken:      nebulauth.Secret(c.BearerToken),
		SigningSecret:    nebulauth.Secret(c.SigningSecret),
		ServiceSlug:      c.ServiceSlug,
		ReplayProtection: mode,
		Timeout:          time.Duration(c.TimeoutMS) * time.Millisecond,
		ClockSkew:        time.Duration(c.ClockSkewMS) * time.Millisecond,
	}, nil
}

// LiveTestEnabled reports whether live integration tests are gated on.
func LiveTestEnabled() bool {
	return strings.TrimSpace(os.Getenv(EnvLiveTest)) == "1"
}
