package tags

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/dotside-studios/nfc-juke/logging"
	"github.com/dotside-studios/nfc-juke/metrics"
)

// DefaultDebounce is how long the watcher waits after the last file event
// before reloading.
const DefaultDebounce = 500 * time.Millisecond

// Watcher reloads a Registry whenever its tag table changes on disk.
type Watcher struct {
	path     string
	registry *Registry
	debounce time.Duration
	logger   zerolog.Logger

	// OnReload is called after every reload attempt with the resulting error.
	OnReload func(err error)
}

// NewWatcher creates a watcher for the tag table at path.
func NewWatcher(path string, registry *Registry) *Watcher {
	return &Watcher{
		path:     filepath.Clean(path),
		registry: registry,
		debounce: DefaultDebounce,
		logger:   logging.WithComponent("tags"),
	}
}

// SetDebounce overrides the reload debounce interval.
func (w *Watcher) SetDebounce(d time.Duration) {
	if d > 0 {
		w.debounce = d
	}
}

// Reload re-reads the table now. A failed reload keeps the previous table.
func (w *Watcher) Reload() error {
	err := w.registry.ReloadFrom(w.path)
	metrics.IncTagReload(err == nil)
	metrics.SetTagsLoaded(w.registry.Len())
	if err != nil {
		w.logger.Error().
			Err(err).
			Str("event", "tags.reload_failed").
			Str("path", w.path).
			Msg("tag table reload failed, keeping previous table")
	} else {
		w.logger.Info().
			Str("event", "tags.reload_success").
			Str("path", w.path).
			Int("tags", w.registry.Len()).
			Msg("tag table reloaded")
	}
	if w.OnReload != nil {
		w.OnReload(err)
	}
	return err
}

// Run watches the directory holding the tag table until ctx is cancelled.
// The directory is watched rather than the file so that editors and atomic
// renames which replace the file are still seen.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch tag table: %w", err)
	}

	w.logger.Info().
		Str("event", "tags.watcher_started").
		Str("path", w.path).
		Msg("watching tag table for changes")

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Str("event", "tags.watcher_stopped").Msg("tag table watcher stopped")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			w.logger.Debug().
				Str("event", "tags.file_changed").
				Str("op", event.Op.String()).
				Msg("tag table changed")

			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Stop()
				timer.Reset(w.debounce)
			}
			pending = timer.C

		case <-pending:
			pending = nil
			_ = w.Reload()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error().
				Err(err).
				Str("event", "tags.watcher_error").
				Msg("tag table watcher error")
		}
	}
}
