// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Watcher polls one config file and reloads it when the mtime moves.
// Polling keeps the watcher working on filesystems where change
// notification is unreliable, and a one-second tick is cheap for a
// single file.
type Watcher struct {
	path     string
	interval time.Duration
	log      *slog.Logger

	mu        sync.RWMutex
	lastMod   time.Time
	current   *Config
	listeners []func(*Config)

	stopCh chan struct{}
	doneCh chan struct{}
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithWatchInterval sets the polling interval.
func WithWatchInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithWatchLogger sets the logger for reload events.
func WithWatchLogger(log *slog.Logger) WatcherOption {
	return func(w *Watcher) { w.log = log }
}

// NewWatcher loads the config at path and prepares to watch it. The
// initial load must succeed; later reload failures keep the previous
// config and log the error.
func NewWatcher(path string, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: time.Second,
		log:      slog.Default(),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	w.current = cfg
	if info, err := os.Stat(path); err == nil {
		w.lastMod = info.ModTime()
	}
	return w, nil
}

// OnChange registers a callback invoked with each successfully
// reloaded config. Register before Start.
func (w *Watcher) OnChange(fn func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, fn)
}

// Config returns the most recently loaded configuration.
func (w *Watcher) Config() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Start launches the polling goroutine. It exits when ctx is done or
// Stop is called.
func (w *Watcher) Start(ctx context.Context) {
	go func() {
		defer close(w.doneCh)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stopCh:
				return
			case <-ticker.C:
				w.poll()
			}
		}
	}()
}

// Stop halts polling and waits for the goroutine to exit.
func (w *Watcher) Stop() {
	close(w.stopCh)
	<-w.doneCh
}

func (w *Watcher) poll() {
	info, err := os.Stat(w.path)
	if err != nil {
		// Editors often replace files; the next tick sees the new one.
		return
	}

	w.mu.Lock()
	changed := info.ModTime().After(w.lastMod)
	if changed {
		w.lastMod = info.ModTime()
	}
	w.mu.Unlock()
	if !changed {
		return
	}

	cfg, err := Load(w.path)
	if err != nil {
		w.log.Error("config.reload.failed", slog.String("path", w.path), slog.Any("error", err))
		return
	}

	w.mu.Lock()
	w.current = cfg
	listeners := append([]func(*Config){}, w.listeners...)
	w.mu.Unlock()

	w.log.Info("config.reloaded", slog.String("path", w.path))
	for _, fn := range listeners {
		fn(cfg)
	}
}

// WatchConfig loads the config at path and starts watching it,
// returning the watcher and the initial config.
func WatchConfig(ctx context.Context, path string, opts ...WatcherOption) (*Watcher, *Config, error) {
	w, err := NewWatcher(path, opts...)
	if err != nil {
		return nil, nil, err
	}
	w.Start(ctx)
	return w, w.Config(), nil
}
