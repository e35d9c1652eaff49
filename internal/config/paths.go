package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

const (
	// EnvConfigPath names an explicit config file
	EnvConfigPath = "CATALOG_CONFIG"
	// ConfigFileName is the file looked up in the working directory and the
	// catalog config directories
	ConfigFileName = "catalog.yaml"
	// ConfigDirName is the directory under the XDG, home and /etc config roots
	ConfigDirName = "catalog"
)

// searchEnv is the environment consulted when locating the config file
type searchEnv struct {
	Explicit string `env:"CATALOG_CONFIG"`
	XDGHome  string `env:"XDG_CONFIG_HOME"`
	Home     string `env:"HOME"`
}

// SearchPaths returns the config files tried when no --config flag is given,
// most specific first: the working directory, $XDG_CONFIG_HOME/catalog,
// ~/.config/catalog and /etc/catalog. $CATALOG_CONFIG is not part of the
// search; FindConfigPath honors it on its own.
func SearchPaths() ([]string, error) {
	var e searchEnv
	if err := env.Parse(&e); err != nil {
		return nil, fmt.Errorf("failed to read config search environment: %w", err)
	}

	paths := []string{ConfigFileName, "catalog.yml"}
	if e.XDGHome != "" {
		paths = append(paths, filepath.Join(e.XDGHome, ConfigDirName, ConfigFileName))
	}
	if e.Home != "" {
		paths = append(paths, filepath.Join(e.Home, ".config", ConfigDirName, ConfigFileName))
	}
	return append(paths, filepath.Join("/etc", ConfigDirName, ConfigFileName)), nil
}

// FindConfigPath returns the config file to load, or "" when there is none.
// A $CATALOG_CONFIG naming a missing file is an error rather than a reason
// to fall back to the search paths.
func FindConfigPath() (string, error) {
	var e searchEnv
	if err := env.Parse(&e); err != nil {
		return "", fmt.Errorf("failed to read config search environment: %w", err)
	}
	if e.Explicit != "" {
		if !isFile(e.Explicit) {
			return "", fmt.Errorf("%s=%s: no such config file", EnvConfigPath, e.Explicit)
		}
		return e.Explicit, nil
	}

	paths, err := SearchPaths()
	if err != nil {
		return "", err
	}
	for _, p := range paths {
		if !isFile(p) {
			continue
		}
		if abs, err := filepath.Abs(p); err == nil {
			return abs, nil
		}
		return p, nil
	}
	return "", nil
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
