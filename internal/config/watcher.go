package config

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"jsrecon/internal/logging"
)

// Watcher reloads the logging section when the config file changes on
// disk. Only logging is hot-reloadable; everything else is fixed for
// the dispatcher's lifetime.
type Watcher struct {
	w    *fsnotify.Watcher
	done chan struct{}
}

// WatchLogging starts watching the directory containing path. When the
// directory cannot be watched (for example, it does not exist) it
// returns a nil watcher together with the error.
func WatchLogging(path string) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, err
	}

	watcher := &Watcher{w: w, done: make(chan struct{})}
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != filepath.Base(path) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := logging.ReloadConfig(); err != nil {
					logging.BootError("config reload failed: %v", err)
				}
			case <-watcher.done:
				return
			}
		}
	}()
	return watcher, nil
}

// Close stops the watcher.
func (c *Watcher) Close() error {
	close(c.done)
	return c.w.Close()
}
