package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"prosopography/internal/config"
	"prosopography/internal/domain"
	"prosopography/internal/logging"
	"prosopography/internal/repository/sqlite"
	"prosopography/internal/service"
)

// rootOptions holds the persistent flags shared by every command
type rootOptions struct {
	configPath string
	dbPath     string
	baseURI    string
	logLevel   string
	logFormat  string
	logFile    string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "A catalog of persons, places, institutions, events and works",
		Long: `catalog stores prosopographical entities in SQLite, keeps the object
permissions of collection groups in line with collection membership and
records a revision for every change.

Configuration is read from a YAML file ($CATALOG_CONFIG, ./catalog.yaml,
~/.config/catalog/config.yaml or /etc/catalog/config.yaml), then from
CATALOG_* environment variables, then from flags.

Quick Start:
  catalog import fixtures/letters.yaml    Load a fixture
  catalog search person name=mozart       Filter entities
  catalog lookup person 42                Resolve a key or URI
  catalog serve                           Start the read API`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "config file (default is found via $CATALOG_CONFIG, ./catalog.yaml, XDG, /etc)")
	flags.StringVar(&opts.dbPath, "db", "", "SQLite database path")
	flags.StringVar(&opts.baseURI, "base-uri", "", "prefix of default entity URIs")
	flags.StringVarP(&opts.logLevel, "log-level", "l", "", "log level (debug, info, warn, error)")
	flags.StringVar(&opts.logFormat, "log-format", "", "log format (console, json)")
	flags.StringVar(&opts.logFile, "log-file", "", "append logs to this file instead of stderr")

	cmd.AddCommand(
		newServeCmd(opts),
		newImportCmd(opts),
		newExportCmd(opts),
		newSearchCmd(opts),
		newLookupCmd(opts),
		newHistoryCmd(opts),
		newCollectionCmd(opts),
		newGroupCmd(opts),
		newPermsCmd(opts),
	)
	return cmd
}

// loadConfig reads the config file and environment, then applies flags
func (o *rootOptions) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if o.configPath != "" {
		cfg, _, err = config.LoadFromPath(o.configPath)
	} else {
		cfg, _, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.Database.Path = o.dbPath
	}
	if flags.Changed("base-uri") {
		cfg.BaseURI = o.baseURI
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = o.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = o.logFormat
	}
	if flags.Changed("log-file") {
		cfg.Log.File = o.logFile
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// app is the wired catalog used by a single command run
type app struct {
	cfg     *config.Config
	log     zerolog.Logger
	repo    *sqlite.Repository
	bus     *service.EventBus
	catalog *service.CatalogService
	logFile io.Closer
}

func (o *rootOptions) open(cmd *cobra.Command) (*app, error) {
	cfg, err := o.loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg}
	out := cmd.ErrOrStderr()
	if cfg.Log.File != "" {
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out = f
		a.logFile = f
	}
	a.log, err = logging.New(logging.Options{
		App:    "catalog",
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: out,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	registry := domain.DefaultRegistry()
	a.repo, err = sqlite.New(cfg.Database.Path, registry)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.bus = service.NewEventBus()
	a.catalog = service.NewCatalogService(a.repo, a.bus, service.Options{
		BaseURI:        cfg.BaseURI,
		AlternateNames: cfg.AlternateNames,
		Registry:       registry,
		Logger:         a.log,
	})
	a.log.Debug().Str("database", cfg.Database.Path).Msg("catalog opened")
	return a, nil
}

// Close releases the database and log file
func (a *app) Close() error {
	var err error
	if a.repo != nil {
		err = a.repo.Close()
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return err
}

// entity resolves a kind name and a key or URI to a stored entity
func (a *app) entity(cmd *cobra.Command, kindName, ref string) (domain.Entity, error) {
	kind, err := a.catalog.Registry().Resolve(kindName)
	if err != nil {
		return nil, err
	}
	return a.catalog.Lookup(cmd.Context(), kind, ref)
}
