package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher reports changes of a single configuration file.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	logger  *slog.Logger
}

// NewWatcher starts watching path. The parent directory is watched so files replaced by
// rename, as editors and Kubernetes ConfigMaps do, are still noticed.
func NewWatcher(path string, logger *slog.Logger) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		watcher.Close()
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("unable to watch %s: %w", path, err)
	}
	return &Watcher{path: abs, watcher: watcher, logger: logger}, nil
}

// Run calls onChange for every write or re-creation of the file until ctx is done.
func (w *Watcher) Run(ctx context.Context, onChange func()) error {
	defer w.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.logger.Debug("config file changed", slog.String("file", event.Name), slog.String("op", event.Op.String()))
				onChange()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("config file watcher error", slog.Any("error", err))
		}
	}
}
