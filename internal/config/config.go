// Package config provides configuration management for the feed server.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

// ServeMode controls whether cache reads are honored.
type ServeMode string

const (
	// ModeProduction serves fresh cache entries.
	ModeProduction ServeMode = "production"
	// ModeDevelopment forces every request to regenerate. Writes still happen.
	ModeDevelopment ServeMode = "development"
)

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Environment overrides.
const (
	EnvServeMode     = "INFOVORE_SERVE_MODE"
	EnvCacheDuration = "INFOVORE_CACHE_DURATION"
	EnvDatabaseURL   = "INFOVORE_DATABASE_URL"
	EnvListen        = "INFOVORE_LISTEN"
)

const baseCfgPath = "infovore/config.yaml"

// Configuration validation errors.
var (
	ErrInvalidServeMode      = errors.New("serve_mode must be 'production' or 'development'")
	ErrInvalidCacheDuration  = errors.New("cache_duration must be a positive duration")
	ErrInvalidRequestTimeout = errors.New("request_timeout must be a positive duration")
	ErrInvalidDriver         = errors.New("database.driver must be one of: sqlite, postgres, memory")
	ErrMissingDSN            = errors.New("database.dsn is required")
	ErrMissingListen         = errors.New("listen address is required")
	ErrInvalidLogLevel       = errors.New("log.level must be one of: debug, info, warn, error")
	ErrInvalidLogFormat      = errors.New("log.format must be 'text' or 'json'")
	ErrInvalidMaxItems       = errors.New("sources.rss.max_items must be at least 1")
	ErrMissingPrefix         = errors.New("enabled sources need a prefix")
	ErrMissingBaseURL        = errors.New("sources.crates_io.base_url is required")
)

// Config represents the complete server configuration.
type Config struct {
	Listen         string         `yaml:"listen" toml:"listen"`
	ServeMode      ServeMode      `yaml:"serve_mode" toml:"serve_mode"`
	CacheDuration  string         `yaml:"cache_duration" toml:"cache_duration"`
	RequestTimeout string         `yaml:"request_timeout" toml:"request_timeout"`
	Log            LogConfig      `yaml:"log" toml:"log"`
	Database       DatabaseConfig `yaml:"database" toml:"database"`
	Sources        SourcesConfig  `yaml:"sources" toml:"sources"`
}

// LogConfig defines logging behavior.
type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// DatabaseConfig selects the cache store backend.
type DatabaseConfig struct {
	Driver string `yaml:"driver" toml:"driver"`
	DSN    string `yaml:"dsn" toml:"dsn"`
}

// SourcesConfig holds per-source settings.
type SourcesConfig struct {
	CratesIO CratesIOConfig `yaml:"crates_io" toml:"crates_io"`
	RSS      RSSConfig      `yaml:"rss" toml:"rss"`
}

// CratesIOConfig configures the crates.io source.
type CratesIOConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Prefix    string `yaml:"prefix" toml:"prefix"`
	BaseURL   string `yaml:"base_url" toml:"base_url"`
	UserAgent string `yaml:"user_agent" toml:"user_agent"`
}

// RSSConfig configures the feed mirror source.
type RSSConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Prefix    string `yaml:"prefix" toml:"prefix"`
	MaxItems  int    `yaml:"max_items" toml:"max_items"`
	UserAgent string `yaml:"user_agent" toml:"user_agent"`
	// AllowedHosts limits mirrored URLs; ".example.com" also matches
	// subdomains. Empty allows any public host.
	AllowedHosts []string `yaml:"allowed_hosts" toml:"allowed_hosts"`
	// AllowPrivateNetworks lets the mirror reach loopback, private and
	// link-local addresses.
	AllowPrivateNetworks bool `yaml:"allow_private_networks" toml:"allow_private_networks"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Listen:         ":8080",
		ServeMode:      ModeProduction,
		CacheDuration:  "30m",
		RequestTimeout: "60s",
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Database: DatabaseConfig{
			Driver: DriverSQLite,
			DSN:    filepath.Join(xdg.DataHome, "infovore", "cache.db"),
		},
		Sources: SourcesConfig{
			CratesIO: CratesIOConfig{
				Enabled:   true,
				Prefix:    "crates-io",
				BaseURL:   "https://crates.io",
				UserAgent: "infovore (+https://github.com/bryan-buckman/infovore)",
			},
			RSS: RSSConfig{
				Enabled:   true,
				Prefix:    "rss",
				MaxItems:  50,
				UserAgent: "infovore (+https://github.com/bryan-buckman/infovore)",
			},
		},
	}
}

// DefaultPath returns the config path under the XDG config home.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, baseCfgPath)
}

// Load reads the config file at path, applies environment overrides and
// validates the result. A missing file at the default path yields Default().
func Load(path string) (*Config, error) {
	usingDefault := path == ""
	if usingDefault {
		path = DefaultPath()
	}

	cfg := Default()
	if err := decodeFile(path, &cfg); err != nil {
		if !(usingDefault && errors.Is(err, os.ErrNotExist)) {
			return nil, err
		}
	}

	cfg.applyEnv(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("failed to parse TOML at %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse YAML at %s: %w", path, err)
		}
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvServeMode); ok && v != "" {
		c.ServeMode = ServeMode(v)
	}
	if v, ok := lookup(EnvCacheDuration); ok && v != "" {
		c.CacheDuration = v
	}
	if v, ok := lookup(EnvListen); ok && v != "" {
		c.Listen = v
	}
	if v, ok := lookup(EnvDatabaseURL); ok && v != "" {
		c.Database.DSN = v
		if strings.HasPrefix(v, "postgres://") || strings.HasPrefix(v, "postgresql://") {
			c.Database.Driver = DriverPostgres
		}
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return ErrMissingListen
	}

	mode, err := ParseServeMode(string(c.ServeMode))
	if err != nil {
		return err
	}
	c.ServeMode = mode

	if d, err := time.ParseDuration(c.CacheDuration); err != nil || d <= 0 {
		return fmt.Errorf("%w: %q", ErrInvalidCacheDuration, c.CacheDuration)
	}
	if d, err := time.ParseDuration(c.RequestTimeout); err != nil || d <= 0 {
		return fmt.Errorf("%w: %q", ErrInvalidRequestTimeout, c.RequestTimeout)
	}

	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
		if c.Database.DSN == "" {
			return ErrMissingDSN
		}
	case DriverMemory:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidDriver, c.Database.Driver)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		return ErrInvalidLogLevel
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return ErrInvalidLogFormat
	}

	if c.Sources.CratesIO.Enabled {
		if c.Sources.CratesIO.Prefix == "" {
			return fmt.Errorf("%w: crates_io", ErrMissingPrefix)
		}
		if c.Sources.CratesIO.BaseURL == "" {
			return ErrMissingBaseURL
		}
	}
	if c.Sources.RSS.Enabled {
		if c.Sources.RSS.Prefix == "" {
			return fmt.Errorf("%w: rss", ErrMissingPrefix)
		}
		if c.Sources.RSS.MaxItems < 1 {
			return ErrInvalidMaxItems
		}
	}
	return nil
}

// CacheTTL returns the staleness threshold of cache entries.
func (c *Config) CacheTTL() time.Duration {
	d, err := time.ParseDuration(c.CacheDuration)
	if err != nil {
		return 30 * time.Minute
	}
	return d
}

// RequestTimeoutDuration returns the per-request deadline of the HTTP server.
func (c *Config) RequestTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.RequestTimeout)
	if err != nil {
		return time.Minute
	}
	return d
}

// ParseServeMode accepts "production", "development" and the short "dev".
// An empty string means production.
func ParseServeMode(s string) (ServeMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "production", "prod":
		return ModeProduction, nil
	case "development", "dev":
		return ModeDevelopment, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidServeMode, s)
	}
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
