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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

const watcherInitialYAML = `
languages:
  - name: python
    extensions: [".py"]
`

const watcherUpdatedYAML = `
languages:
  - name: ruby
    extensions: [".rb"]
`

// newWatchedRegistry writes the initial YAML and parses it into a live
// registry, returning both the file path and the registry.
func newWatchedRegistry(t *testing.T) (string, *Registry) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "tools.yaml")
	if err := os.WriteFile(path, []byte(watcherInitialYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	reg, err := parseToolsYAML([]byte(watcherInitialYAML), path)
	if err != nil {
		t.Fatalf("parseToolsYAML() error = %v", err)
	}
	return path, reg
}

func TestWatcher_HandleEvent_SwapsRegistry(t *testing.T) {
	path, reg := newWatchedRegistry(t)
	if err := os.WriteFile(path, []byte(watcherUpdatedYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	called := false
	w, err := NewWatcher(path, reg, func() { called = true })
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Stop()

	w.handleEvent(fsnotify.Event{Name: path, Op: fsnotify.Write})

	if _, ok := reg.Get("ruby"); !ok {
		t.Error("ruby missing after reload")
	}
	if _, ok := reg.Get("python"); ok {
		t.Error("python still present, reload should replace the snapshot")
	}
	if reg.LanguageForFile("x.rb") != "ruby" {
		t.Error("extension index not rebuilt on reload")
	}
	if !called {
		t.Error("reload callback not invoked")
	}
}

func TestWatcher_HandleEvent_KeepsPreviousOnBrokenYAML(t *testing.T) {
	path, reg := newWatchedRegistry(t)
	if err := os.WriteFile(path, []byte(":: not yaml {{"), 0o644); err != nil {
		t.Fatal(err)
	}

	called := false
	w, err := NewWatcher(path, reg, func() { called = true })
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Stop()

	w.handleEvent(fsnotify.Event{Name: path, Op: fsnotify.Write})

	if _, ok := reg.Get("python"); !ok {
		t.Error("python lost after a broken edit")
	}
	if called {
		t.Error("reload callback invoked for a broken edit")
	}
}

func TestWatcher_HandleEvent_IgnoresNonWrite(t *testing.T) {
	path, reg := newWatchedRegistry(t)
	if err := os.WriteFile(path, []byte(watcherUpdatedYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := NewWatcher(path, reg, nil)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Stop()

	w.handleEvent(fsnotify.Event{Name: path, Op: fsnotify.Chmod})

	if _, ok := reg.Get("python"); !ok {
		t.Error("registry changed on a non-write event")
	}
}

func TestWatcher_ReloadsOnFileWrite(t *testing.T) {
	path, reg := newWatchedRegistry(t)

	reloaded := make(chan struct{}, 1)
	w, err := NewWatcher(path, reg, func() {
		select {
		case reloaded <- struct{}{}:
		default:
		}
	})
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	// The first write can race the watch registration, so keep writing
	// until a reload lands or the deadline passes.
	fired := false
	for attempt := 0; attempt < 20 && !fired; attempt++ {
		if err := os.WriteFile(path, []byte(watcherUpdatedYAML), 0o644); err != nil {
			t.Fatal(err)
		}
		select {
		case <-reloaded:
			fired = true
		case <-time.After(250 * time.Millisecond):
		}
	}
	if !fired {
		t.Fatal("watcher never reloaded after file writes")
	}

	if _, ok := reg.Get("ruby"); !ok {
		t.Error("ruby missing after watched reload")
	}
}
