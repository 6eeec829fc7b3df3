package config

import (
	"github.com/fsnotify/fsnotify"
	"github.com/go-logr/logr"
)

// Watcher reloads the mutable subset of Config (currently just Logging)
// whenever the backing file changes on disk. Connection settings are not
// hot-reloaded: changing them requires a restart.
type Watcher struct {
	watcher *fsnotify.Watcher
	path    string
	log     logr.Logger
	onLevel func(level string)
}

// NewWatcher opens an fsnotify watch on path. onLevel is invoked with the
// new logging level each time the file changes and reparses cleanly.
func NewWatcher(path string, log logr.Logger, onLevel func(level string)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, err
	}
	return &Watcher{watcher: fw, path: path, log: log.WithName("config-watch"), onLevel: onLevel}, nil
}

// Run blocks, reloading on each write event until stop is closed.
func (w *Watcher) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			w.watcher.Close()
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				w.log.Error(err, "reload failed, keeping previous configuration")
				continue
			}
			w.onLevel(cfg.Logging.Level)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error(err, "watch error")
		}
	}
}
