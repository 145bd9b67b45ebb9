package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches the configuration file and reloads it on change.
// Reloads are debounced so editors that write in several steps trigger a
// single reload.
type Watcher struct {
	path     string
	debounce time.Duration
	logger   *slog.Logger
	watcher  *fsnotify.Watcher
}

// NewWatcher creates a watcher for the given configuration file.
func NewWatcher(path string, logger *slog.Logger) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("config: watch path is empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		path:     path,
		debounce: 100 * time.Millisecond,
		logger:   logger,
		watcher:  fsw,
	}, nil
}

// Watch blocks, invoking onReload with each successfully re-loaded
// configuration, until ctx is cancelled. A file change that fails to load
// or validate is logged and skipped; the previous configuration stays in
// effect.
//
// The parent directory is watched rather than the file itself, so
// rename-replace writes (the common editor save strategy) are seen.
func (w *Watcher) Watch(ctx context.Context, onReload func(*Config)) error {
	defer w.watcher.Close()

	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("config: failed to watch %q: %w", w.path, err)
	}

	w.logger.Info("configuration watcher started", "config_path", w.path)

	var timer *time.Timer
	fire := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("config: watcher events channel closed")
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case <-fire:
			cfg, err := LoadWithEnvOverrides(w.path)
			if err != nil {
				w.logger.Warn("configuration reload rejected", "error", err)
				continue
			}
			w.logger.Info("configuration reloaded", "config_path", w.path)
			onReload(cfg)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("config: watcher errors channel closed")
			}
			w.logger.Warn("configuration watcher error", "error", err)
		}
	}
}
