package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

const reloadDebounce = 500 * time.Millisecond

// Watch reloads the config file whenever it changes and hands the result to
// onReload. Bursts of events are coalesced. Invalid files are logged and the
// previous configuration stays in effect. Watch blocks until ctx is done.
func Watch(ctx context.Context, path string, onReload func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Editors often replace the file, so watch the directory and filter.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}
	name := filepath.Clean(path)

	log.Info().Str("file", path).Msg("Watching config file for changes")

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != name || !event.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, func() {
				cfg, err := LoadFrom(path)
				if err != nil {
					log.Error().Err(err).Str("file", path).Msg("Failed to reload configuration, keeping existing config")
					return
				}
				log.Info().Str("file", path).Msg("Configuration reloaded")
				onReload(cfg)
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("Config file watcher error")
		}
	}
}
