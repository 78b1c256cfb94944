// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package format

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/AleutianAI/Kodiak/services/promptedit/tools"
)

// customRegistry loads a registry from inline YAML via the external
// override path, restoring the cached default afterwards.
func customRegistry(t *testing.T, yamlBody string) *tools.Registry {
	t.Helper()

	path := filepath.Join(t.TempDir(), "tools.yaml")
	if err := os.WriteFile(path, []byte(yamlBody), 0o644); err != nil {
		t.Fatalf("writing registry yaml: %v", err)
	}
	t.Setenv(tools.EnvToolsPath, path)
	tools.ResetRegistry()
	t.Cleanup(tools.ResetRegistry)

	reg, err := tools.GetRegistry(context.Background())
	if err != nil {
		t.Fatalf("GetRegistry() error = %v", err)
	}
	return reg
}

func TestFormatFile_NoFormatterConfigured(t *testing.T) {
	reg, err := tools.GetRegistry(context.Background())
	if err != nil {
		t.Fatalf("GetRegistry() error = %v", err)
	}
	f := NewFormatter(reg)

	out := f.FormatFile(context.Background(), "notes.xyz", "raw content", nil)

	if out.Status != StatusSkipped {
		t.Errorf("status = %v, want skipped", out.Status)
	}
	if out.Changed {
		t.Error("Changed = true, want false when nothing ran")
	}
	if out.Content != "raw content" {
		t.Errorf("content = %q, want input unchanged", out.Content)
	}
}

func TestFormatFile_NoFormatterInstalled(t *testing.T) {
	reg := customRegistry(t, `
languages:
  - name: ghostlang
    extensions: [".ghost"]
    format:
      - name: ghost-fmt
        command: promptedit-no-such-formatter
        args: ["{file}"]
`)
	f := NewFormatter(reg)

	out := f.FormatFile(context.Background(), "a.ghost", "data", nil)

	if out.Status != StatusSkipped {
		t.Fatalf("status = %v, want skipped for missing tool", out.Status)
	}
	if !strings.Contains(out.Message, "ghost-fmt") {
		t.Errorf("message = %q, want it to name the tool", out.Message)
	}
	if out.Content != "data" || out.Changed {
		t.Errorf("content = %q changed = %v, want input unchanged", out.Content, out.Changed)
	}
}

func TestFormatFile_RewritesContent(t *testing.T) {
	reg := customRegistry(t, `
languages:
  - name: shlang
    extensions: [".shx"]
    format:
      - name: rewriter
        command: sh
        args: ["-c", "echo formatted > {file}"]
`)
	f := NewFormatter(reg)

	out := f.FormatFile(context.Background(), "a.shx", "original\n", nil)

	if out.Status != StatusSuccess {
		t.Fatalf("status = %v, want success (message: %s)", out.Status, out.Message)
	}
	if !out.Changed {
		t.Error("Changed = false, want true after rewrite")
	}
	if out.Content != "formatted\n" {
		t.Errorf("content = %q, want %q", out.Content, "formatted\n")
	}
	if out.Formatter != "rewriter" {
		t.Errorf("formatter = %q, want rewriter", out.Formatter)
	}
}

func TestFormatFile_UnchangedContentReportsNoChange(t *testing.T) {
	reg := customRegistry(t, `
languages:
  - name: noop
    extensions: [".noopx"]
    format:
      - name: no-op
        command: "true"
        args: []
`)
	f := NewFormatter(reg)

	out := f.FormatFile(context.Background(), "a.noopx", "already formatted\n", nil)

	if out.Status != StatusSuccess {
		t.Fatalf("status = %v, want success", out.Status)
	}
	if out.Changed {
		t.Error("Changed = true, want false for identical output")
	}
	if out.Content != "already formatted\n" {
		t.Errorf("content = %q, want input unchanged", out.Content)
	}
}

func TestFormatFile_FailedRunKeepsContent(t *testing.T) {
	reg := customRegistry(t, `
languages:
  - name: brokenfmt
    extensions: [".brokenx"]
    format:
      - name: always-fails
        command: "false"
        args: []
`)
	f := NewFormatter(reg)

	out := f.FormatFile(context.Background(), "a.brokenx", "keep me", nil)

	if out.Status != StatusFailed {
		t.Fatalf("status = %v, want failed", out.Status)
	}
	if out.Content != "keep me" || out.Changed {
		t.Errorf("content = %q changed = %v, want input unchanged", out.Content, out.Changed)
	}
}

func TestFormatFile_SkipsMissingToolForNextInList(t *testing.T) {
	reg := customRegistry(t, `
languages:
  - name: mixedfmt
    extensions: [".mixedx"]
    format:
      - name: ghost-fmt
        command: promptedit-no-such-formatter
        args: ["{file}"]
      - name: rewriter
        command: sh
        args: ["-c", "echo formatted > {file}"]
`)
	f := NewFormatter(reg)

	out := f.FormatFile(context.Background(), "a.mixedx", "original\n", nil)

	if out.Status != StatusSuccess {
		t.Fatalf("status = %v, want success from the second formatter", out.Status)
	}
	if out.Formatter != "rewriter" {
		t.Errorf("formatter = %q, want rewriter after skipping the missing tool", out.Formatter)
	}
	if out.Content != "formatted\n" {
		t.Errorf("content = %q, want %q", out.Content, "formatted\n")
	}
}

func TestFormatFile_RequestedNamesNarrowList(t *testing.T) {
	reg := customRegistry(t, `
languages:
  - name: pickfmt
    extensions: [".pickx"]
    format:
      - name: always-fails
        command: "false"
        args: []
      - name: rewriter
        command: sh
        args: ["-c", "echo formatted > {file}"]
`)
	f := NewFormatter(reg)

	out := f.FormatFile(context.Background(), "a.pickx", "original\n", []string{"rewriter"})

	if out.Status != StatusSuccess {
		t.Fatalf("status = %v, want success (message: %s)", out.Status, out.Message)
	}
	if out.Formatter != "rewriter" {
		t.Errorf("formatter = %q, want the requested rewriter", out.Formatter)
	}
}

func TestFormatFile_UnknownRequestedNameSkips(t *testing.T) {
	reg := customRegistry(t, `
languages:
  - name: strictfmt
    extensions: [".strictx"]
    format:
      - name: rewriter
        command: sh
        args: ["-c", "echo formatted > {file}"]
`)
	f := NewFormatter(reg)

	out := f.FormatFile(context.Background(), "a.strictx", "original\n", []string{"nonexistent"})

	if out.Status != StatusSkipped {
		t.Fatalf("status = %v, want skipped for unknown formatter name", out.Status)
	}
	if out.Content != "original\n" || out.Changed {
		t.Errorf("content = %q changed = %v, want input unchanged", out.Content, out.Changed)
	}
}
