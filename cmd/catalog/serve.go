package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"prosopography/internal/handler"
	"prosopography/internal/hub"
	"prosopography/internal/watcher"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		addr     string
		fixtures []string
		watch    bool
	)
	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"s"},
		Short:   "Serve the read-only HTTP API",
		Long: `Serve the read-only JSON API and the event stream.

Fixtures named in the config file or with --fixture are imported before the
server starts; with --watch they are re-imported whenever they change.

Examples:
  catalog serve --addr :8080
  catalog serve --fixture fixtures/letters.yaml --watch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			cfg := a.cfg
			if cmd.Flags().Changed("addr") {
				cfg.HTTP.Addr = addr
			}
			if cmd.Flags().Changed("watch") {
				cfg.Fixtures.Watch = watch
			}
			cfg.Fixtures.Paths = append(cfg.Fixtures.Paths, fixtures...)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			for _, path := range cfg.Fixtures.Paths {
				result, err := a.catalog.ImportFile(ctx, path, cfg.Fixtures.Strategy)
				if err != nil {
					return err
				}
				a.log.Info().
					Str("path", path).
					Int("created", result.EntitiesCreated).
					Int("updated", result.EntitiesUpdated).
					Msg("fixture imported")
			}

			events := hub.New(a.log)
			go events.Run(ctx)
			go events.Forward(ctx, a.bus)

			if cfg.Fixtures.Watch && len(cfg.Fixtures.Paths) > 0 {
				w := watcher.New(cfg.Fixtures.Paths, a.catalog, cfg.Fixtures.Strategy, a.log).
					WithDebounce(cfg.Fixtures.Debounce.Duration())
				go func() {
					if err := w.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
						a.log.Error().Err(err).Msg("fixture watcher stopped")
					}
				}()
			}

			h := handler.NewCatalogHandler(a.catalog, a.log)
			h.SetEventStream(events)

			// No write timeout: event streams stay open
			server := &http.Server{
				Addr:              cfg.HTTP.Addr,
				Handler:           h.Router(),
				ReadHeaderTimeout: cfg.HTTP.ReadTimeout.Duration(),
				ReadTimeout:       cfg.HTTP.ReadTimeout.Duration(),
				IdleTimeout:       cfg.HTTP.IdleTimeout.Duration(),
			}

			serverErr := make(chan error, 1)
			go func() {
				a.log.Info().Str("addr", cfg.HTTP.Addr).Msg("server listening")
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			select {
			case err := <-serverErr:
				return fmt.Errorf("server error: %w", err)
			case <-ctx.Done():
			}

			a.log.Info().Msg("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout.Duration())
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server shutdown: %w", err)
			}
			a.log.Info().Msg("server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address")
	cmd.Flags().StringSliceVar(&fixtures, "fixture", nil, "fixture file to import at startup (repeatable)")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "re-import fixtures when they change")
	return cmd
}
