// Copyright (C) 2025 Flatiron Institute
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package summary

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/flatironinstitute/stan-playground/services/playground/store"
)

// Watcher rebuilds the projection when analysis files change on disk
// outside the command path (an operator editing a record by hand, a
// second process sharing the data directory). Events are debounced so a
// burst of writes triggers one rebuild.
type Watcher struct {
	store    *store.Store
	opts     Options
	debounce time.Duration

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	done    chan struct{}
	running bool
}

// NewWatcher creates a watcher over the store's analyses directory.
// A zero debounce defaults to 500ms.
func NewWatcher(s *store.Store, opts Options, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &Watcher{store: s, opts: opts, debounce: debounce}
}

// Start begins watching. Each analysis subdirectory is watched
// individually because fsnotify does not recurse; directories created
// later are picked up from their create events.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	root := w.store.AnalysesDir()
	if err := fw.Add(root); err != nil {
		fw.Close()
		return err
	}
	entries, err := os.ReadDir(root)
	if err == nil {
		for _, e := range entries {
			if e.IsDir() {
				// Best effort; a vanished directory is not fatal.
				_ = fw.Add(filepath.Join(root, e.Name()))
			}
		}
	}
	w.watcher = fw
	w.done = make(chan struct{})
	w.running = true
	go w.loop(fw, w.done)
	return nil
}

// Stop halts the watcher. Safe to call more than once.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	close(w.done)
	w.watcher.Close()
	w.running = false
}

func (w *Watcher) loop(fw *fsnotify.Watcher, done chan struct{}) {
	var timer *time.Timer
	var timerC <-chan time.Time
	for {
		select {
		case <-done:
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			if ev.Op.Has(fsnotify.Create) {
				if st, err := os.Stat(ev.Name); err == nil && st.IsDir() {
					_ = fw.Add(ev.Name)
				}
			}
			// Ignore churn from temp files used by atomic saves.
			if filepath.Base(ev.Name)[0] == '.' && ev.Op.Has(fsnotify.Create) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case <-timerC:
			timer = nil
			timerC = nil
			if err := Build(w.store, w.opts); err != nil {
				slog.Warn("summary rebuild from watcher failed", "error", err)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			slog.Warn("summary watcher error", "error", err)
		}
	}
}
