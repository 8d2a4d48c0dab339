package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"larkgate/pkg/logging"
)

// DefaultDebounceInterval is the quiet period after the last write before a
// reload is triggered.
const DefaultDebounceInterval = 500 * time.Millisecond

// Watch reloads the config file at path whenever it is written and passes
// the freshly loaded configuration to onChange. Invalid files are logged and
// skipped. Watch blocks until ctx is cancelled.
func Watch(ctx context.Context, path string, onChange func(BrokerConfig)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory so atomic renames by editors are seen
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	logging.Info("Config", "Watching %s for changes", path)

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	reload := func() {
		cfg, err := LoadConfig(path)
		if err != nil {
			logging.Error("Config", err, "Ignoring unreadable config change")
			return
		}
		if err := cfg.Validate(); err != nil {
			logging.Error("Config", err, "Ignoring invalid config change")
			return
		}
		onChange(cfg)
	}

	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	target := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			logging.Debug("Config", "Config file changed: %s", event.Name)
			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(DefaultDebounceInterval, reload)
			mu.Unlock()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.Error("Config", err, "fsnotify error")
		}
	}
}
