// Package watcher re-imports fixture files when they change on disk.
package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"prosopography/internal/service"
)

// DefaultDebounce is the quiet period before a changed file is re-imported
const DefaultDebounce = 500 * time.Millisecond

// Importer loads one fixture file into the catalog
type Importer interface {
	ImportFile(ctx context.Context, path, strategy string) (*service.ImportResult, error)
}

// Watcher watches fixture files and imports each one after it changes
type Watcher struct {
	paths    []string
	importer Importer
	strategy string
	debounce time.Duration
	log      zerolog.Logger

	// imports run one at a time
	mu    sync.Mutex
	ready chan struct{}
}

// New creates a watcher for paths
func New(paths []string, importer Importer, strategy string, logger zerolog.Logger) *Watcher {
	return &Watcher{
		paths:    paths,
		importer: importer,
		strategy: strategy,
		debounce: DefaultDebounce,
		log:      logger.With().Str("component", "watcher").Logger(),
		ready:    make(chan struct{}),
	}
}

// WithDebounce sets the debounce duration
func (w *Watcher) WithDebounce(d time.Duration) *Watcher {
	if d > 0 {
		w.debounce = d
	}
	return w
}

// Ready is closed once the watched directories are registered
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

// Watch starts watching the files for changes.
// It blocks until the context is cancelled or an error occurs.
func (w *Watcher) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directories containing the files.
	// This handles files replaced by editors.
	watchedDirs := make(map[string]bool)
	fileSet := make(map[string]bool)
	for _, path := range w.paths {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", path, err)
		}
		dir := filepath.Dir(absPath)
		if !watchedDirs[dir] {
			if err := watcher.Add(dir); err != nil {
				return fmt.Errorf("failed to watch directory %s: %w", dir, err)
			}
			watchedDirs[dir] = true
		}
		fileSet[absPath] = true
		w.log.Info().Str("path", absPath).Msg("watching fixture")
	}
	close(w.ready)

	debounceTimers := make(map[string]*time.Timer)
	defer func() {
		for _, timer := range debounceTimers {
			timer.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			absPath, err := filepath.Abs(event.Name)
			if err != nil || !fileSet[absPath] {
				continue
			}

			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if timer, exists := debounceTimers[absPath]; exists {
					timer.Stop()
				}
				debounceTimers[absPath] = time.AfterFunc(w.debounce, func() {
					w.reimport(ctx, absPath)
				})
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn().Err(err).Msg("watcher error")

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (w *Watcher) reimport(ctx context.Context, path string) {
	if ctx.Err() != nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	result, err := w.importer.ImportFile(ctx, path, w.strategy)
	if err != nil {
		w.log.Error().Err(err).Str("path", path).Msg("fixture import failed")
		return
	}
	w.log.Info().
		Str("path", path).
		Int("created", result.EntitiesCreated).
		Int("updated", result.EntitiesUpdated).
		Msg("fixture re-imported")
}
