// Package config loads the gateway configuration from YAML (or JSON with
// comments) and overlays process environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"

	"github.com/llm-gate/llm-gate/internal/json"
)

// Config is the root configuration for the gateway process.
type Config struct {
	// Host and Port define the local listen address.
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`

	// AuthDir holds one credential file per upstream account.
	AuthDir string `yaml:"auth-dir" json:"auth-dir"`

	// APIKeys, when non-empty, are required as Bearer tokens on inbound calls.
	APIKeys []string `yaml:"api-keys,omitempty" json:"api-keys,omitempty"`

	// ProxyURL routes upstream traffic through an HTTP, HTTPS or SOCKS5 proxy.
	ProxyURL string `yaml:"proxy-url,omitempty" json:"proxy-url,omitempty"`

	// QuotaRefreshInterval controls how often provider quota caches are refreshed.
	QuotaRefreshInterval Duration `yaml:"quota-refresh-interval,omitempty" json:"quota-refresh-interval,omitempty"`

	// RequestRetry bounds per-request credential retries. Default 3.
	RequestRetry int `yaml:"request-retry,omitempty" json:"request-retry,omitempty"`

	// MaxRetryInterval caps the exponential backoff between retries. Default 30s.
	MaxRetryInterval Duration `yaml:"max-retry-interval,omitempty" json:"max-retry-interval,omitempty"`

	// Selection is the credential selection strategy: round-robin (default) or fill-first.
	Selection string `yaml:"selection,omitempty" json:"selection,omitempty"`

	Logging LoggingConfig `yaml:"logging,omitempty" json:"logging,omitempty"`
	Usage   UsageConfig   `yaml:"usage,omitempty" json:"usage,omitempty"`

	// Reasoning holds the thinking-tag extraction settings, filled from env.
	Reasoning ReasoningConfig `yaml:"-" json:"-"`

	// Kiro first-token watchdog, filled from env.
	FirstTokenTimeout    time.Duration `yaml:"-" json:"-"`
	FirstTokenMaxRetries int           `yaml:"-" json:"-"`

	// Google OAuth client overrides, filled from env.
	GoogleClientID     string `yaml:"-" json:"-"`
	GoogleClientSecret string `yaml:"-" json:"-"`
}

// LoggingConfig controls the logging facade.
type LoggingConfig struct {
	Level      string `yaml:"level,omitempty" json:"level,omitempty"`
	FilePath   string `yaml:"file,omitempty" json:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max-size-mb,omitempty" json:"max-size-mb,omitempty"`
	MaxBackups int    `yaml:"max-backups,omitempty" json:"max-backups,omitempty"`
}

// UsageConfig selects the request-log backend.
type UsageConfig struct {
	// Backend is sqlite (default) or postgres.
	Backend string `yaml:"backend,omitempty" json:"backend,omitempty"`
	// Path is the SQLite database path. Default <auth-dir>/llm-gate.db.
	Path string `yaml:"path,omitempty" json:"path,omitempty"`
	// DSN is the Postgres connection string when backend is postgres.
	DSN string `yaml:"dsn,omitempty" json:"dsn,omitempty"`
	// RetentionDays bounds how long request logs are kept. Default 30.
	RetentionDays int `yaml:"retention-days,omitempty" json:"retention-days,omitempty"`
}

// Defaults used when fields are unset.
const (
	DefaultPort                 = 8317
	DefaultRequestRetry         = 3
	DefaultMaxRetryInterval     = Duration(30 * time.Second)
	DefaultQuotaRefreshInterval = Duration(10 * time.Minute)
	DefaultFirstTokenTimeout    = 15 * time.Second
	DefaultFirstTokenRetries    = 3
)

// Duration is a time.Duration that decodes from "30s"-style strings in both
// YAML and JSON. Bare integers are taken as nanoseconds.
type Duration time.Duration

// Std returns the underlying time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := parseDuration(value.Value)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		parsed, errParse := parseDuration(s)
		if errParse != nil {
			return errParse
		}
		*d = parsed
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("config: bad duration %s", b)
	}
	*d = Duration(n)
	return nil
}

func parseDuration(s string) (Duration, error) {
	if v, err := time.ParseDuration(s); err == nil {
		return Duration(v), nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Duration(n), nil
	}
	return 0, fmt.Errorf("config: bad duration %q", s)
}

// Load reads the configuration file at path, applies defaults and the
// environment overlay. A missing path yields a default config.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".json", ".jsonc", ".hujson":
			std, errStd := hujson.Standardize(data)
			if errStd != nil {
				return nil, fmt.Errorf("config: standardize %s: %w", path, errStd)
			}
			if err = json.Unmarshal(std, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		default:
			if err = yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}
	cfg.applyDefaults()
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.AuthDir == "" {
		c.AuthDir = "~/.llm-gate"
	}
	c.AuthDir = expandHome(c.AuthDir)
	if c.RequestRetry <= 0 {
		c.RequestRetry = DefaultRequestRetry
	}
	if c.MaxRetryInterval <= 0 {
		c.MaxRetryInterval = DefaultMaxRetryInterval
	}
	if c.QuotaRefreshInterval <= 0 {
		c.QuotaRefreshInterval = DefaultQuotaRefreshInterval
	}
	if c.Selection == "" {
		c.Selection = "round-robin"
	}
	if c.Usage.Backend == "" {
		c.Usage.Backend = "sqlite"
	}
	if c.Usage.Path == "" {
		c.Usage.Path = filepath.Join(c.AuthDir, "llm-gate.db")
	}
	c.FirstTokenTimeout = DefaultFirstTokenTimeout
	c.FirstTokenMaxRetries = DefaultFirstTokenRetries
	c.Reasoning = defaultReasoningConfig()
}

func (c *Config) applyEnv() {
	if v := os.Getenv("GOOGLE_CLIENT_ID"); v != "" {
		c.GoogleClientID = v
	}
	if v := os.Getenv("GOOGLE_CLIENT_SECRET"); v != "" {
		c.GoogleClientSecret = v
	}
	if v := os.Getenv("FIRST_TOKEN_TIMEOUT"); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
			c.FirstTokenTimeout = time.Duration(secs * float64(time.Second))
		}
	}
	if v := os.Getenv("FIRST_TOKEN_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.FirstTokenMaxRetries = n
		}
	}
	c.Reasoning.applyEnv()
}

// ListenAddr returns the host:port pair to bind.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func expandHome(p string) string {
	if !strings.HasPrefix(p, "~") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
