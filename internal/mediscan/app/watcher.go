package app

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/aussiebroadwan/mediscan/pkg/slogx"
	"github.com/fsnotify/fsnotify"
)

// ConfigWatcher re-reads the TOML overlay when it changes and applies the
// settings that can change without a restart. Today that is log_level.
type ConfigWatcher struct {
	path    string
	levels  *slog.LevelVar
	logger  *slog.Logger
	watcher *fsnotify.Watcher

	once   sync.Once
	doneCh chan struct{}
}

// NewConfigWatcher watches the directory holding path, since editors
// usually replace files rather than write them in place.
func NewConfigWatcher(path string, levels *slog.LevelVar, logger *slog.Logger) (*ConfigWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config watcher: %w", err)
	}

	path = filepath.Clean(path)
	if err := w.Add(filepath.Dir(path)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("config watcher: watch %s: %w", path, err)
	}

	return &ConfigWatcher{
		path:    path,
		levels:  levels,
		logger:  logger,
		watcher: w,
		doneCh:  make(chan struct{}),
	}, nil
}

func (cw *ConfigWatcher) Start() {
	go cw.run()
	cw.logger.Info("config watcher started", "path", cw.path)
}

// Stop closes the underlying watcher and waits for the loop to exit.
func (cw *ConfigWatcher) Stop() {
	cw.once.Do(func() {
		_ = cw.watcher.Close()
		<-cw.doneCh
		cw.logger.Info("config watcher stopped")
	})
}

func (cw *ConfigWatcher) run() {
	defer close(cw.doneCh)

	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != cw.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				cw.reload()
			}

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.logger.Warn("config watcher error", "error", err)
		}
	}
}

func (cw *ConfigWatcher) reload() {
	fc, err := readConfigFile(cw.path)
	if err != nil {
		cw.logger.Warn("config reload failed", "error", err)
		return
	}
	if fc.LogLevel == "" {
		return
	}

	next := slogx.ParseLevel(fc.LogLevel)
	if prev := cw.levels.Level(); prev != next {
		cw.levels.Set(next)
		cw.logger.Info("log level changed", "from", prev.String(), "to", next.String())
	}
}
