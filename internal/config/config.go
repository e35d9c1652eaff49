// Package config provides configuration management for the catalog.
//
// Settings come from three layers, later ones winning:
//   - built-in defaults
//   - a YAML config file
//   - CATALOG_* environment variables (and APIS_ALTERNATE_NAMES)
//
// Command-line flags are applied on top by the caller.
//
// Config file locations (priority order):
//  1. $CATALOG_CONFIG, which must exist when set
//  2. ./catalog.yaml, ./catalog.yml
//  3. $XDG_CONFIG_HOME/catalog/catalog.yaml
//  4. ~/.config/catalog/catalog.yaml
//  5. /etc/catalog/catalog.yaml
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"prosopography/internal/domain"
	"prosopography/internal/logging"
)

const (
	DefaultBaseURI  = "https://catalog.local/entity/"
	DefaultDBPath   = "./catalog.db"
	DefaultHTTPAddr = ":8080"
)

// Load finds and loads the config file, or starts from defaults if none is
// found. Environment overrides are applied in both cases.
func Load() (*Config, string, error) {
	path, err := FindConfigPath()
	if err != nil {
		return nil, "", err
	}
	if path == "" {
		cfg := DefaultConfig()
		if err := cfg.applyEnv(); err != nil {
			return nil, "", err
		}
		return cfg, "", cfg.Validate()
	}

	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, path, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.applyEnv(); err != nil {
		return nil, path, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, path, fmt.Errorf("%s: %w", path, err)
	}

	return &cfg, path, nil
}

// Save writes config to the specified path
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// DefaultConfig returns sensible defaults for a new installation
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills in missing values with defaults
func (c *Config) applyDefaults() {
	if c.Version == 0 {
		c.Version = 1
	}
	if c.BaseURI == "" {
		c.BaseURI = DefaultBaseURI
	}
	if len(c.AlternateNames) == 0 {
		c.AlternateNames = append([]string(nil), domain.DefaultAlternateNameTypes...)
	}
	if c.Database.Path == "" {
		c.Database.Path = DefaultDBPath
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = DefaultHTTPAddr
	}
	if c.HTTP.ReadTimeout == 0 {
		c.HTTP.ReadTimeout = Duration(15 * time.Second)
	}
	if c.HTTP.IdleTimeout == 0 {
		c.HTTP.IdleTimeout = Duration(60 * time.Second)
	}
	if c.HTTP.ShutdownTimeout == 0 {
		c.HTTP.ShutdownTimeout = Duration(10 * time.Second)
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = logging.FormatConsole
	}
	if c.Fixtures.Strategy == "" {
		c.Fixtures.Strategy = "merge"
	}
	if c.Fixtures.Debounce == 0 {
		c.Fixtures.Debounce = Duration(500 * time.Millisecond)
	}
}

// applyEnv overrides fields whose environment variable is set
func (c *Config) applyEnv() error {
	if err := env.Parse(c); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	for i, name := range c.AlternateNames {
		c.AlternateNames[i] = strings.TrimSpace(name)
	}
	return nil
}

// Validate reports settings that cannot work
func (c *Config) Validate() error {
	if strings.TrimSpace(c.BaseURI) == "" {
		return fmt.Errorf("base_uri must not be empty")
	}
	if c.Log.Format != logging.FormatConsole && c.Log.Format != logging.FormatJSON {
		return fmt.Errorf("log.format %q must be %q or %q", c.Log.Format, logging.FormatConsole, logging.FormatJSON)
	}
	switch c.Fixtures.Strategy {
	case "merge", "replace":
	default:
		return fmt.Errorf("fixtures.strategy %q must be merge or replace", c.Fixtures.Strategy)
	}
	return nil
}

// Summary returns a human-readable config summary
func (c *Config) Summary() string {
	summary := fmt.Sprintf("Database: %s, HTTP: %s\n", c.Database.Path, c.HTTP.Addr)
	summary += fmt.Sprintf("Base URI: %s, Alternate names: %s\n", c.BaseURI, strings.Join(c.AlternateNames, ", "))
	summary += fmt.Sprintf("Fixtures (%d, %s):", len(c.Fixtures.Paths), c.Fixtures.Strategy)
	for _, p := range c.Fixtures.Paths {
		summary += fmt.Sprintf(" %s", p)
	}
	return summary
}
