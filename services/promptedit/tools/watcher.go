// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"context"
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watcher hot-reloads the tool registry when its external file changes.
//
// # Description
//
// Operators tune linter and formatter commands by editing the external
// registry file; the watcher re-parses it on write and swaps the live
// registry in place. A broken edit keeps the previous registry and
// logs a warning, so a typo never takes tooling away mid-session.
//
// # Thread Safety
//
// Safe for concurrent use. Start should only be called once.
type Watcher struct {
	path     string
	registry *Registry
	watcher  *fsnotify.Watcher
	callback func()
}

// NewWatcher creates a watcher for the external registry file.
//
// # Inputs
//
//   - path: External registry file to watch.
//   - registry: The live registry to update in place.
//   - callback: Optional callback after each successful reload.
//
// # Outputs
//
//   - *Watcher: Ready-to-start watcher.
//   - error: Non-nil if watcher creation fails.
func NewWatcher(path string, registry *Registry, callback func()) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		path:     path,
		registry: registry,
		watcher:  fsw,
		callback: callback,
	}, nil
}

// Start begins watching for registry file changes.
//
// # Description
//
// Blocks until the context is cancelled. Should be run in a goroutine.
//
// # Example
//
//	w, _ := tools.NewWatcher(path, reg, nil)
//	go w.Start(ctx)
func (w *Watcher) Start(ctx context.Context) {
	if err := w.watcher.Add(w.path); err != nil {
		slog.Warn("Failed to watch tool registry file",
			"path", w.path,
			"error", err)
		return
	}

	slog.Debug("Started watching tool registry", "path", w.path)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("Tool registry watcher error", "error", err)

		case <-ctx.Done():
			slog.Debug("Tool registry watcher stopping")
			return
		}
	}
}

// handleEvent processes a single fsnotify event.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	// Only care about writes
	if event.Op&fsnotify.Write == 0 {
		return
	}

	data, err := loadExternalYAML(w.path)
	if err != nil {
		slog.Warn("Tool registry changed but could not be read, keeping previous",
			"path", w.path,
			"error", err)
		return
	}

	fresh, err := parseToolsYAML(data, w.path)
	if err != nil {
		slog.Warn("Tool registry changed but failed to parse, keeping previous",
			"path", w.path,
			"error", err)
		return
	}

	w.registry.replaceFrom(fresh)
	registryReloads.Inc()
	slog.Info("Reloaded language tool registry",
		"path", w.path,
		"language_count", len(fresh.languages))

	if w.callback != nil {
		w.callback()
	}
}

// Stop stops the watcher. Safe to call multiple times.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}
