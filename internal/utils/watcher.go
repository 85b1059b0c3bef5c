package utils

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// ConfigWatcher reloads the configuration file when it changes on disk and
// hands the new snapshot to the registered callback.
type ConfigWatcher struct {
	manager  *ConfigManager
	logger   *logrus.Logger
	watcher  *fsnotify.Watcher
	onReload func(*EngineConfig)
}

func NewConfigWatcher(manager *ConfigManager, onReload func(*EngineConfig), logger *logrus.Logger) (*ConfigWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory: editors and config writers replace the file,
	// which drops a watch on the file itself.
	if err := watcher.Add(filepath.Dir(manager.Path())); err != nil {
		watcher.Close()
		return nil, err
	}

	return &ConfigWatcher{
		manager:  manager,
		logger:   logger,
		watcher:  watcher,
		onReload: onReload,
	}, nil
}

// Run processes file events until the context is cancelled.
func (w *ConfigWatcher) Run(ctx context.Context) {
	defer w.watcher.Close()

	target := filepath.Clean(w.manager.Path())
	var lastReload time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			// Writers produce bursts of events; one reload per second is enough.
			if time.Since(lastReload) < time.Second {
				continue
			}
			lastReload = time.Now()

			config, err := w.manager.Load()
			if err != nil {
				w.logger.Errorf("Config reload failed, keeping previous configuration: %v", err)
				continue
			}
			w.logger.Infof("Configuration reloaded from %s", w.manager.Path())
			if w.onReload != nil {
				w.onReload(config)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Errorf("Config watcher error: %v", err)
		}
	}
}
