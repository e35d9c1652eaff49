package config

import (
	"time"
)

// Config is the root configuration structure
type Config struct {
	Version int `yaml:"version"`
	// BaseURI prefixes the default URI of entities saved without one
	BaseURI string `yaml:"base_uri" env:"CATALOG_BASE_URI"`
	// AlternateNames are the label types matched by the person name filter
	AlternateNames []string       `yaml:"alternate_names,omitempty" env:"APIS_ALTERNATE_NAMES" envSeparator:","`
	Database       DatabaseConfig `yaml:"database"`
	HTTP           HTTPConfig     `yaml:"http"`
	Log            LogConfig      `yaml:"log"`
	Fixtures       FixturesConfig `yaml:"fixtures"`
}

// DatabaseConfig holds database settings
type DatabaseConfig struct {
	Path string `yaml:"path" env:"CATALOG_DB_PATH"`
}

// HTTPConfig holds the read API listener settings
type HTTPConfig struct {
	Addr            string   `yaml:"addr" env:"CATALOG_HTTP_ADDR"`
	ReadTimeout     Duration `yaml:"read_timeout,omitempty"`
	IdleTimeout     Duration `yaml:"idle_timeout,omitempty"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout,omitempty"`
}

// LogConfig selects log level, format and destination
type LogConfig struct {
	Level  string `yaml:"level" env:"CATALOG_LOG_LEVEL"`
	Format string `yaml:"format" env:"CATALOG_LOG_FORMAT"`
	File   string `yaml:"file,omitempty" env:"CATALOG_LOG_FILE"`
}

// FixturesConfig names fixture files imported at startup and optionally
// re-imported whenever they change
type FixturesConfig struct {
	Paths    []string `yaml:"paths,omitempty" env:"CATALOG_FIXTURES" envSeparator:","`
	Strategy string   `yaml:"strategy,omitempty"`
	Watch    bool     `yaml:"watch,omitempty" env:"CATALOG_WATCH_FIXTURES"`
	Debounce Duration `yaml:"debounce,omitempty"`
}

// Duration wraps time.Duration for YAML unmarshaling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
