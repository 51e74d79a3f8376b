package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ReloadDelay collapses the burst of events editors produce when saving
// into one reload.
var ReloadDelay = 200 * time.Millisecond

// Watch calls onChange with the newly read config each time cfile is
// written. Configs that fail to load are logged and skipped. Watch
// blocks until ctx is done.
func Watch(ctx context.Context, cfile string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	defer watcher.Close()

	cfile = filepath.Clean(cfile)
	// Watch the directory: editors often replace the file instead of
	// writing it in place, which drops a watch on the file itself.
	if err := watcher.Add(filepath.Dir(cfile)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", cfile, err)
	}
	slog.Info("Watching config file", "file", cfile)

	var reload <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != cfile {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				reload = time.After(ReloadDelay)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("Config watcher error", "error", err)
		case <-reload:
			reload = nil
			conf, err := ReadConfig(cfile)
			if err != nil {
				slog.Error("Ignoring invalid config change", "error", err)
				continue
			}
			slog.Info("Config file changed, reloading", "file", cfile)
			onChange(conf)
		}
	}
}
