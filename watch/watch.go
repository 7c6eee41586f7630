// Package watch delivers debounced file-change batches, deciding when a
// session should reload. It contains no protocol logic of its own.
package watch

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher watches a set of directories recursively and coalesces change
// events that land within one debounce window into a single batch.
type Watcher struct {
	log      *zap.SugaredLogger
	fs       *fsnotify.Watcher
	debounce time.Duration
	changes  chan []string
	quit     chan struct{}

	closeOnce sync.Once
}

// New starts watching each dir and its subdirectories. Directories created
// later under a watched dir are picked up automatically.
func New(dirs []string, debounce time.Duration, l *zap.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	w := &Watcher{
		log:      l.Named("watcher").Sugar(),
		fs:       fsw,
		debounce: debounce,
		changes:  make(chan []string),
		quit:     make(chan struct{}),
	}
	for _, dir := range dirs {
		if err := w.addRecursive(dir); err != nil {
			fsw.Close()
			return nil, err
		}
	}
	go w.loop()
	return w, nil
}

// Changes delivers one batch of changed paths per debounce window. The
// channel closes when the watcher is closed.
func (w *Watcher) Changes() <-chan []string {
	return w.changes
}

func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.quit)
		err = w.fs.Close()
	})
	return err
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fs.Add(path); err != nil {
			return fmt.Errorf("watching %q: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) loop() {
	var pending map[string]struct{}
	var flush <-chan time.Time
	for {
		select {
		case ev, ok := <-w.fs.Events:
			if !ok {
				close(w.changes)
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.log.Debugw("fs event", "Op", ev.Op.String(), "Name", ev.Name)
			if ev.Op&fsnotify.Create != 0 {
				if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
					if err := w.addRecursive(ev.Name); err != nil {
						w.log.Debugf("watching new dir: %s", err)
					}
				}
			}
			if pending == nil {
				pending = map[string]struct{}{}
			}
			pending[ev.Name] = struct{}{}
			if flush == nil {
				flush = time.After(w.debounce)
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				close(w.changes)
				return
			}
			w.log.Debugf("watch error: %s", err)
		case <-flush:
			batch := make([]string, 0, len(pending))
			for p := range pending {
				batch = append(batch, p)
			}
			pending = nil
			flush = nil
			// The consumer may already be gone; a Close must still be able
			// to wind the loop down.
			select {
			case w.changes <- batch:
			case <-w.quit:
				close(w.changes)
				return
			}
		}
	}
}
