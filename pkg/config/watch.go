package config

import (
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/pressleaf/biblio/pkg/observability"
)

// Watcher applies log level changes from the overlay file while the
// process runs. Environment variables cannot change after startup, so
// the file is the only runtime tuning channel.
type Watcher struct {
	path    string
	logger  *observability.Logger
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// WatchLogLevel watches the overlay file and adjusts the logger level
// whenever the file's log_level key changes.
func WatchLogLevel(path string, logger *observability.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	// Watch the directory rather than the file itself. Editors and
	// config managers replace files on save, which drops a direct watch.
	dir := filepath.Dir(path)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	w := &Watcher{
		path:    filepath.Clean(path),
		logger:  logger,
		watcher: fsw,
		done:    make(chan struct{}),
	}

	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	defer close(w.done)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Warn("config watcher error")
		}
	}
}

func (w *Watcher) reload() {
	level, ok, err := FileLogLevel(w.path)
	if err != nil {
		w.logger.WithError(err).Warn("failed to reload config file")
		return
	}
	if !ok {
		return
	}

	w.logger.SetLevel(level)
	w.logger.WithField("level", level.String()).Info("log level updated from config file")
}

// Close stops watching and waits for the event loop to exit
func (w *Watcher) Close() error {
	err := w.watcher.Close()
	<-w.done
	return err
}
