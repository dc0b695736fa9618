package config

import (
	"context"
	"path/filepath"

	"apexdispatch/internal/logging"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// WatchConfig reloads the backend table whenever the viper config file changes.
func WatchConfig(v *viper.Viper, store *BackendStore) {
	if v.ConfigFileUsed() == "" {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := decode(v)
		if err != nil {
			logging.Log.WithError(err).WithField("file", e.Name).Warn("Ignoring invalid config change")
			return
		}
		store.Set(cfg.AllBackends())
		logging.Log.WithField("file", e.Name).WithField("backends", len(cfg.AllBackends())).Info("Backend configuration reloaded")
	})
	v.WatchConfig()
}

// WatchBackendsFile reloads a standalone backends file until ctx is done.
// extra are appended to the file contents on every reload.
func WatchBackendsFile(ctx context.Context, path string, extra []Backend, store *BackendStore) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// Editors replace files, so watch the directory.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		target := filepath.Clean(path)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				list, err := ReadBackendsFile(path)
				if err != nil {
					logging.Log.WithError(err).Warn("Ignoring invalid backends file")
					continue
				}
				store.Set(append(append([]Backend{}, extra...), list...))
				logging.Log.WithField("backends", len(list)).Info("Backends file reloaded")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logging.Log.WithError(err).Warn("Backends file watcher error")
			}
		}
	}()
	return nil
}
