package config

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// Watch watches the directory containing path for changes to it and logs a
// notice — never a live reload. Configuration is immutable once loaded per
// DESIGN NOTES §9; a changed file on disk only takes effect on the next
// restart. Returns the underlying watcher so the caller can Close it during
// shutdown; a failure to start watching is logged and treated as
// best-effort, never fatal.
func Watch(path string) *fsnotify.Watcher {
	logger := log.WithField("component", "config")

	w, err := fsnotify.NewWatcher()
	if err != nil {
		logger.WithError(err).Warn("failed to start config file watcher")
		return nil
	}

	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		logger.WithError(err).Warn("failed to watch config directory")
		w.Close()
		return nil
	}

	abs, _ := filepath.Abs(path)
	go func() {
		for event := range w.Events {
			eventAbs, _ := filepath.Abs(event.Name)
			if eventAbs != abs {
				continue
			}
			logger.WithField("notice", true).Info("config file changed on disk, restart to apply")
		}
	}()

	return w
}
