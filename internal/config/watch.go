// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// =============================================================================
// CONFIG FILE WATCHER
// =============================================================================

// DefaultDebounce coalesces editor save bursts into one reload.
const DefaultDebounce = 250 * time.Millisecond

// Watcher reloads the config file when it changes on disk.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	debounce time.Duration
	onChange func(*Config)
	onError  func(error)

	mu      sync.Mutex
	pending time.Time // zero when nothing is pending

	ctx    context.Context
	cancel context.CancelFunc
	done   sync.WaitGroup
}

// Watch starts watching path. The parent directory is watched rather than
// the file so atomic rename-over saves are seen. onChange receives each
// successfully reloaded config; onError receives load failures and watcher
// errors. Call Close to stop.
func Watch(path string, debounce time.Duration, onChange func(*Config), onError func(error)) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if onError == nil {
		onError = func(error) {}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		fsw.Close()
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		path:     abs,
		watcher:  fsw,
		debounce: debounce,
		onChange: onChange,
		onError:  onError,
		ctx:      ctx,
		cancel:   cancel,
	}

	w.done.Add(2)
	go w.processEvents()
	go w.processPending()
	return w, nil
}

// Close stops watching and waits for the goroutines to exit.
func (w *Watcher) Close() error {
	w.cancel()
	err := w.watcher.Close()
	w.done.Wait()
	return err
}

func (w *Watcher) processEvents() {
	defer w.done.Done()
	defer func() {
		if r := recover(); r != nil {
			w.onError(fmt.Errorf("config watcher panic: %v", r))
		}
	}()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.mu.Lock()
				w.pending = time.Now()
				w.mu.Unlock()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.onError(err)
		}
	}
}

func (w *Watcher) processPending() {
	defer w.done.Done()

	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.mu.Lock()
			ready := !w.pending.IsZero() && time.Since(w.pending) >= w.debounce
			if ready {
				w.pending = time.Time{}
			}
			w.mu.Unlock()

			if ready {
				w.reload()
			}
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := LoadFromPath(w.path)
	if err != nil {
		// Rename-over saves can briefly leave no file; the Create that
		// follows schedules another reload.
		w.onError(err)
		return
	}
	if w.onChange != nil {
		w.onChange(cfg)
	}
}
