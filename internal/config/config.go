// Package config loads formbridge settings from defaults, an optional YAML file
// and FORMBRIDGE_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/aretw0/formbridge/pkg/adapters/process"
	"github.com/aretw0/formbridge/pkg/client"
	"github.com/aretw0/formbridge/pkg/domain"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "FORMBRIDGE_"

// Store backends.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Config is the complete runtime configuration.
// Fields carry no envDefault tags: defaults come from Default, so values read
// from the YAML file are not overwritten by unset variables.
type Config struct {
	// Dir is the mapping definitions directory.
	Dir string `yaml:"dir" env:"DIR"`
	// Nulls is the null policy: literal, empty or omit.
	Nulls string `yaml:"nulls" env:"NULLS"`

	Log       LogConfig       `yaml:"log" envPrefix:"LOG_"`
	HTTP      HTTPConfig      `yaml:"http" envPrefix:"HTTP_"`
	Store     StoreConfig     `yaml:"store" envPrefix:"STORE_"`
	Dashboard DashboardConfig `yaml:"dashboard" envPrefix:"DASHBOARD_"`
	Process   ProcessConfig   `yaml:"process" envPrefix:"PROCESS_"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr" env:"ADDR"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// StoreConfig selects where drafts are kept and how they are protected.
type StoreConfig struct {
	Backend  string        `yaml:"backend" env:"BACKEND"`
	RedisURL string        `yaml:"redis_url" env:"REDIS_URL"`
	Prefix   string        `yaml:"prefix" env:"PREFIX"`
	TTL      time.Duration `yaml:"ttl" env:"TTL"`
	LockTTL  time.Duration `yaml:"lock_ttl" env:"LOCK_TTL"`

	// MaskFields are regular expressions; matching draft fields are masked at rest.
	MaskFields []string `yaml:"mask_fields" env:"MASK_FIELDS" envSeparator:","`
	// EncryptionKey enables AES-GCM encryption at rest (32 bytes, hex or base64).
	EncryptionKey string `yaml:"encryption_key" env:"ENCRYPTION_KEY"`
	// FallbackKeys decrypt drafts written before a key rotation.
	FallbackKeys []string `yaml:"fallback_keys" env:"FALLBACK_KEYS" envSeparator:","`
}

// DashboardConfig mirrors client.Config. An empty BaseURL disables submission.
type DashboardConfig struct {
	BaseURL     string        `yaml:"base_url" env:"BASE_URL"`
	Token       string        `yaml:"token" env:"TOKEN"`
	TokenHeader string        `yaml:"token_header" env:"TOKEN_HEADER"`
	Timeout     time.Duration `yaml:"timeout" env:"TIMEOUT"`
	WireFormat  string        `yaml:"wire_format" env:"WIRE_FORMAT"`
	UserAgent   string        `yaml:"user_agent" env:"USER_AGENT"`
}

// ProcessConfig delivers submissions to a local command instead of the dashboard.
type ProcessConfig struct {
	Command string        `yaml:"command" env:"COMMAND"`
	Args    []string      `yaml:"args" env:"ARGS" envSeparator:" "`
	Dir     string        `yaml:"dir" env:"DIR"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Dir:   ".",
		Nulls: "literal",
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ShutdownTimeout: 5 * time.Second,
		},
		Store: StoreConfig{
			Backend: StoreMemory,
			Prefix:  "formbridge:draft:",
			TTL:     24 * time.Hour,
			LockTTL: 30 * time.Second,
		},
		Dashboard: DashboardConfig{
			TokenHeader: "X-Dashboard-Token",
			Timeout:     15 * time.Second,
			WireFormat:  string(client.WireStandard),
			UserAgent:   "formbridge",
		},
	}
}

// Load builds the configuration. path may be empty; a missing file is an error
// only when path was given explicitly.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate checks values that cannot be caught by parsing.
func (c Config) Validate() error {
	var errs []error
	if _, err := domain.ParseNullPolicy(c.Nulls); err != nil {
		errs = append(errs, err)
	}
	switch c.Store.Backend {
	case StoreMemory:
	case StoreRedis:
		if c.Store.RedisURL == "" {
			errs = append(errs, errors.New("store.redis_url is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.Store.Backend))
	}
	if c.Dashboard.BaseURL != "" && c.Process.Command != "" {
		errs = append(errs, errors.New("configure either dashboard.base_url or process.command, not both"))
	}
	if c.Dashboard.BaseURL != "" {
		if err := c.Client().Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NullPolicy returns the parsed null policy.
func (c Config) NullPolicy() domain.NullPolicy {
	p, _ := domain.ParseNullPolicy(c.Nulls)
	return p
}

// Client converts the dashboard section to a client.Config.
func (c Config) Client() client.Config {
	return client.Config{
		BaseURL:     c.Dashboard.BaseURL,
		Token:       c.Dashboard.Token,
		TokenHeader: c.Dashboard.TokenHeader,
		Timeout:     c.Dashboard.Timeout,
		WireFormat:  client.WireFormat(c.Dashboard.WireFormat),
		UserAgent:   c.Dashboard.UserAgent,
	}
}

// Dispatcher converts the process section to a process.Config.
func (c Config) Dispatcher() process.Config {
	return process.Config{
		Command: c.Process.Command,
		Args:    c.Process.Args,
		Dir:     c.Process.Dir,
		Timeout: c.Process.Timeout,
	}
}
