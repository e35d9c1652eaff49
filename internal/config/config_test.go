package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 1, cfg.Version)
	assert.Equal(t, DefaultBaseURI, cfg.BaseURI)
	assert.Equal(t, []string{"alternative name"}, cfg.AlternateNames)
	assert.Equal(t, DefaultDBPath, cfg.Database.Path)
	assert.Equal(t, DefaultHTTPAddr, cfg.HTTP.Addr)
	assert.Equal(t, 10*time.Second, cfg.HTTP.ShutdownTimeout.Duration())
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "merge", cfg.Fixtures.Strategy)
	assert.NoError(t, cfg.Validate())
}

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.BaseURI = "https://apis.example.org/entity/"
	cfg.AlternateNames = []string{"alternative name", "pseudonym"}
	cfg.Fixtures.Paths = []string{"fixtures/letters.yaml"}
	cfg.HTTP.ReadTimeout = Duration(3 * time.Second)
	require.NoError(t, cfg.Save(configPath))

	loaded, path, err := LoadFromPath(configPath)
	require.NoError(t, err)
	assert.Equal(t, configPath, path)
	assert.Equal(t, cfg, loaded)
}

func TestLoadAppliesDefaultsToPartialFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("base_uri: https://x.test/\nlog:\n  format: json\n"), 0644))

	cfg, _, err := LoadFromPath(configPath)
	require.NoError(t, err)
	assert.Equal(t, "https://x.test/", cfg.BaseURI)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, DefaultDBPath, cfg.Database.Path)
}

func TestLoadRejectsBadFiles(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"yaml syntax", "base_uri: [unclosed"},
		{"log format", "log:\n  format: xml\n"},
		{"strategy", "fixtures:\n  strategy: upsert\n"},
		{"duration", "http:\n  read_timeout: soon\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(configPath, []byte(tt.content), 0644))
			_, _, err := LoadFromPath(configPath)
			assert.Error(t, err)
		})
	}

	_, _, err := LoadFromPath(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read config")
}

func TestEnvironmentOverrides(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, DefaultConfig().Save(configPath))

	t.Setenv("CATALOG_BASE_URI", "https://env.test/entity/")
	t.Setenv("APIS_ALTERNATE_NAMES", "alternative name, pseudonym")
	t.Setenv("CATALOG_DB_PATH", "/var/lib/catalog.db")
	t.Setenv("CATALOG_HTTP_ADDR", "127.0.0.1:9000")
	t.Setenv("CATALOG_LOG_LEVEL", "debug")
	t.Setenv("CATALOG_FIXTURES", "a.yaml,b.toml")
	t.Setenv("CATALOG_WATCH_FIXTURES", "true")

	cfg, _, err := LoadFromPath(configPath)
	require.NoError(t, err)
	assert.Equal(t, "https://env.test/entity/", cfg.BaseURI)
	assert.Equal(t, []string{"alternative name", "pseudonym"}, cfg.AlternateNames)
	assert.Equal(t, "/var/lib/catalog.db", cfg.Database.Path)
	assert.Equal(t, "127.0.0.1:9000", cfg.HTTP.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, []string{"a.yaml", "b.toml"}, cfg.Fixtures.Paths)
	assert.True(t, cfg.Fixtures.Watch)
}

func TestLoadWithoutFile(t *testing.T) {
	tmpDir := t.TempDir()
	testChdir(t, tmpDir)
	t.Setenv("HOME", tmpDir)
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv(EnvConfigPath, "")
	t.Setenv("CATALOG_HTTP_ADDR", ":9999")

	if _, err := os.Stat(filepath.Join("/etc", ConfigDirName, ConfigFileName)); err == nil {
		t.Skip("system config present")
	}

	cfg, path, err := Load()
	require.NoError(t, err)
	assert.Empty(t, path)
	assert.Equal(t, ":9999", cfg.HTTP.Addr)
	assert.Equal(t, DefaultDBPath, cfg.Database.Path)
}

func TestFindConfigPath(t *testing.T) {
	tmpDir := t.TempDir()
	testChdir(t, tmpDir)
	t.Setenv("HOME", tmpDir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, "xdg"))
	t.Setenv(EnvConfigPath, "")

	t.Run("xdg directory", func(t *testing.T) {
		xdg := filepath.Join(tmpDir, "xdg", ConfigDirName, ConfigFileName)
		require.NoError(t, DefaultConfig().Save(xdg))
		path, err := FindConfigPath()
		require.NoError(t, err)
		assert.Equal(t, xdg, path)
	})

	t.Run("working directory wins over xdg", func(t *testing.T) {
		require.NoError(t, DefaultConfig().Save(filepath.Join(tmpDir, ConfigFileName)))
		path, err := FindConfigPath()
		require.NoError(t, err)
		assert.Equal(t, ConfigFileName, filepath.Base(path))
		assert.True(t, filepath.IsAbs(path))
		assert.NotContains(t, path, "xdg")
	})

	t.Run("explicit path wins", func(t *testing.T) {
		explicit := filepath.Join(t.TempDir(), "explicit.yaml")
		require.NoError(t, DefaultConfig().Save(explicit))
		t.Setenv(EnvConfigPath, explicit)
		path, err := FindConfigPath()
		require.NoError(t, err)
		assert.Equal(t, explicit, path)
	})

	t.Run("missing explicit path is an error", func(t *testing.T) {
		t.Setenv(EnvConfigPath, "/nonexistent/path.yaml")
		_, err := FindConfigPath()
		assert.ErrorContains(t, err, "no such config file")

		_, _, err = Load()
		assert.Error(t, err)
	})
}

func TestSearchPaths(t *testing.T) {
	t.Setenv("HOME", "/home/ada")
	t.Setenv("XDG_CONFIG_HOME", "")

	paths, err := SearchPaths()
	require.NoError(t, err)
	assert.Equal(t, []string{
		"catalog.yaml",
		"catalog.yml",
		"/home/ada/.config/catalog/catalog.yaml",
		"/etc/catalog/catalog.yaml",
	}, paths)
}

func TestDuration(t *testing.T) {
	d := Duration(5 * time.Minute)
	assert.Equal(t, 5*time.Minute, d.Duration())

	marshaled, err := d.MarshalYAML()
	require.NoError(t, err)
	assert.Equal(t, "5m0s", marshaled)
}

// testChdir changes the working directory for the duration of the test,
// restoring it on cleanup (equivalent of testing.T.Chdir, which needs Go 1.24).
func testChdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatal(err)
		}
	})
}
