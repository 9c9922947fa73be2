package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// debounceWindow coalesces the burst of write events a single save can
// produce (most editors and os.WriteFile both trigger more than one).
const debounceWindow = 1 * time.Second

// Watcher reloads the configuration file on change and publishes each
// successfully validated Config to a Snapshot.
type Watcher struct {
	path     string
	snapshot *Snapshot
	log      zerolog.Logger
}

// NewWatcher creates a Watcher that keeps snapshot in sync with path.
func NewWatcher(path string, snapshot *Snapshot, logger zerolog.Logger) *Watcher {
	return &Watcher{path: path, snapshot: snapshot, log: logger.With().Str("component", "config.watcher").Logger()}
}

// Run watches the config file until ctx is cancelled. A reload that fails
// validation is logged and the previous snapshot is left in place.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer func() { _ = fsw.Close() }()

	dir := filepath.Dir(w.path)
	if err := fsw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	var debounce *time.Timer
	reload := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceWindow, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn().Err(err).Msg("fsnotify error")

		case <-reload:
			cfg, err := Load(w.path)
			if err != nil {
				w.log.Warn().Err(err).Msg("config reload rejected, keeping previous snapshot")
				continue
			}
			w.snapshot.Store(cfg)
			w.log.Info().Int("tokens", len(cfg.Tokens)).Msg("config reloaded")
		}
	}
}
