package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Store publishes the current Config. Readers never see a partially
// applied reload.
type Store struct {
	cur atomic.Pointer[Config]
}

func NewStore(cfg *Config) *Store {
	s := &Store{}
	s.cur.Store(cfg)
	return s
}

func (s *Store) Load() *Config {
	return s.cur.Load()
}

func (s *Store) Settings() Settings {
	return s.cur.Load().Settings()
}

// Watch reloads the config file whenever it changes on disk and swaps the
// result into the store. Reload errors keep the previous config. It blocks
// until ctx is done.
func (s *Store) Watch(ctx context.Context, onReload func(*Config)) error {
	path := s.Load().Path
	if path == "" {
		return fmt.Errorf("config has no path to watch")
	}
	path = filepath.Clean(path)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// editors replace the file, so watch the directory
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	logger := log.With().Str("component", "config-watch").Logger()
	logger.Info().Str("path", path).Msg("Watching config file")

	const debounce = 200 * time.Millisecond
	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				timer.Reset(debounce)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn().Err(err).Msg("Config watcher error")

		case <-timer.C:
			cfg, err := Load(path)
			if err != nil {
				logger.Error().Err(err).Msg("Failed to reload config, keeping previous")
				continue
			}
			s.cur.Store(cfg)
			logger.Info().Msg("Config reloaded")
			if onReload != nil {
				onReload(cfg)
			}
		}
	}
}
