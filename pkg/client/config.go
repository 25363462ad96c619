package client

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
)

// WireFormat selects the JSON shape of parameters on the wire.
type WireFormat string

const (
	// WireStandard sends {"name", "value", "direction": "Input"|"Variable"}.
	WireStandard WireFormat = "standard"
	// WireLegacy sends {"name", "value", "parameterDirection": 1, "isVariable": bool},
	// the shape older dashboard releases accept.
	WireLegacy WireFormat = "legacy"
)

// legacyDirectionIn is the parameterDirection code for input parameters.
const legacyDirectionIn = 1

// EnvPrefix is the environment prefix read by ConfigFromEnv.
const EnvPrefix = "FORMBRIDGE_DASHBOARD_"

// Config is the explicit configuration of one dashboard client.
// There is no package-level client: every caller builds its own.
type Config struct {
	// BaseURL is the dashboard API root, e.g. https://bpm.example.com/api.
	BaseURL string `env:"BASE_URL" yaml:"base_url" json:"base_url"`
	// Token is the opaque dashboard credential forwarded on every call.
	Token string `env:"TOKEN" yaml:"token" json:"-"`
	// TokenHeader is the header carrying Token.
	TokenHeader string        `env:"TOKEN_HEADER" envDefault:"X-Dashboard-Token" yaml:"token_header" json:"token_header"`
	Timeout     time.Duration `env:"TIMEOUT" envDefault:"15s" yaml:"timeout" json:"timeout"`
	WireFormat  WireFormat    `env:"WIRE_FORMAT" envDefault:"standard" yaml:"wire_format" json:"wire_format"`
	UserAgent   string        `env:"USER_AGENT" envDefault:"formbridge" yaml:"user_agent" json:"user_agent"`
}

// ConfigFromEnv loads a Config from FORMBRIDGE_DASHBOARD_* variables.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration can build a client.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("dashboard base url is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid dashboard base url %q", c.BaseURL)
	}
	switch c.WireFormat {
	case "", WireStandard, WireLegacy:
	default:
		return fmt.Errorf("unknown wire format %q", c.WireFormat)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	return nil
}
