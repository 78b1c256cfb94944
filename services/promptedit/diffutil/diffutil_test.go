// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package diffutil

import (
	"strings"
	"testing"
)

// =============================================================================
// Unified
// =============================================================================

func TestUnified_IdenticalBodies(t *testing.T) {
	fd, err := Unified("x.py", "a = 1\n", "a = 1\n")
	if err != nil {
		t.Fatalf("Unified() error = %v", err)
	}

	if fd.Text != "" {
		t.Errorf("diff text = %q, want empty", fd.Text)
	}
	if fd.Additions != 0 || fd.Deletions != 0 {
		t.Errorf("counts = %d/%d, want 0/0", fd.Additions, fd.Deletions)
	}
	if fd.FilePath != "x.py" {
		t.Errorf("FilePath = %q, want x.py", fd.FilePath)
	}
}

func TestUnified_BothEmpty(t *testing.T) {
	fd, err := Unified("x.py", "", "")
	if err != nil {
		t.Fatalf("Unified() error = %v", err)
	}
	if fd.Text != "" || fd.Additions != 0 || fd.Deletions != 0 {
		t.Errorf("empty-to-empty diff = %+v, want zero value", fd)
	}
}

func TestUnified_ModifiedLine(t *testing.T) {
	fd, err := Unified("x.py", "a\nb\nc\n", "a\nB\nc\n")
	if err != nil {
		t.Fatalf("Unified() error = %v", err)
	}

	for _, want := range []string{
		"--- original/x.py",
		"+++ modified/x.py",
		"-b",
		"+B",
	} {
		if !strings.Contains(fd.Text, want) {
			t.Errorf("diff missing %q:\n%s", want, fd.Text)
		}
	}
	if fd.Additions != 1 || fd.Deletions != 1 {
		t.Errorf("counts = %d/%d, want 1/1", fd.Additions, fd.Deletions)
	}
}

func TestUnified_CreateFromEmpty(t *testing.T) {
	fd, err := Unified("new.py", "", "a = 1\nb = 2\n")
	if err != nil {
		t.Fatalf("Unified() error = %v", err)
	}

	if fd.Additions != 2 || fd.Deletions != 0 {
		t.Errorf("counts = %d/%d, want 2/0", fd.Additions, fd.Deletions)
	}
	if !strings.Contains(fd.Text, "+a = 1") || !strings.Contains(fd.Text, "+b = 2") {
		t.Errorf("create diff missing added lines:\n%s", fd.Text)
	}
	if strings.Contains(fd.Text, "\n-") {
		t.Errorf("create diff contains deletions:\n%s", fd.Text)
	}
}

func TestUnified_DeleteToEmpty(t *testing.T) {
	fd, err := Unified("gone.py", "a = 1\nb = 2\nc = 3\n", "")
	if err != nil {
		t.Fatalf("Unified() error = %v", err)
	}

	if fd.Additions != 0 || fd.Deletions != 3 {
		t.Errorf("counts = %d/%d, want 0/3", fd.Additions, fd.Deletions)
	}
	for _, want := range []string{"-a = 1", "-b = 2", "-c = 3"} {
		if !strings.Contains(fd.Text, want) {
			t.Errorf("delete diff missing %q:\n%s", want, fd.Text)
		}
	}
}

func TestUnified_MissingFinalTerminator(t *testing.T) {
	fd, err := Unified("x.py", "a", "b")
	if err != nil {
		t.Fatalf("Unified() error = %v", err)
	}

	if fd.Additions != 1 || fd.Deletions != 1 {
		t.Errorf("counts = %d/%d, want 1/1", fd.Additions, fd.Deletions)
	}
	if !strings.HasSuffix(fd.Text, "\n") {
		t.Errorf("diff text not newline terminated: %q", fd.Text)
	}
}

func TestUnified_AppendedLines(t *testing.T) {
	fd, err := Unified("x.py", "a\n", "a\nb\nc\n")
	if err != nil {
		t.Fatalf("Unified() error = %v", err)
	}

	if fd.Additions != 2 || fd.Deletions != 0 {
		t.Errorf("counts = %d/%d, want 2/0", fd.Additions, fd.Deletions)
	}
}

// =============================================================================
// Rename
// =============================================================================

func TestRename_PureMove(t *testing.T) {
	diffs, err := Rename("old.py", "new.py", "x = 1\n", "x = 1\n")
	if err != nil {
		t.Fatalf("Rename() error = %v", err)
	}

	if len(diffs) != 1 {
		t.Fatalf("diff count = %d, want 1", len(diffs))
	}
	if diffs[0].FilePath != "new.py" {
		t.Errorf("FilePath = %q, want new.py", diffs[0].FilePath)
	}
	if diffs[0].Text != "" || diffs[0].Additions != 0 || diffs[0].Deletions != 0 {
		t.Errorf("pure move diff = %+v, want empty", diffs[0])
	}
}

func TestRename_ContentChanged(t *testing.T) {
	diffs, err := Rename("old.py", "new.py", "x = 1\n", "x = 2\ny = 3\n")
	if err != nil {
		t.Fatalf("Rename() error = %v", err)
	}

	if len(diffs) != 2 {
		t.Fatalf("diff count = %d, want 2", len(diffs))
	}

	removed, created := diffs[0], diffs[1]
	if removed.FilePath != "old.py" {
		t.Errorf("removed.FilePath = %q, want old.py", removed.FilePath)
	}
	if removed.Additions != 0 || removed.Deletions != 1 {
		t.Errorf("removed counts = %d/%d, want 0/1", removed.Additions, removed.Deletions)
	}
	if created.FilePath != "new.py" {
		t.Errorf("created.FilePath = %q, want new.py", created.FilePath)
	}
	if created.Additions != 2 || created.Deletions != 0 {
		t.Errorf("created counts = %d/%d, want 2/0", created.Additions, created.Deletions)
	}
}

// =============================================================================
// Statistics
// =============================================================================

func TestCountChanges_EmptyText(t *testing.T) {
	additions, deletions := countChanges("")
	if additions != 0 || deletions != 0 {
		t.Errorf("counts = %d/%d, want 0/0", additions, deletions)
	}
}

func TestScanChanges_SkipsHeaders(t *testing.T) {
	text := "--- original/x.py\n+++ modified/x.py\n@@ -1,2 +1,2 @@\n-a\n+b\n c\n"

	additions, deletions := scanChanges(text)
	if additions != 1 || deletions != 1 {
		t.Errorf("counts = %d/%d, want 1/1", additions, deletions)
	}
}
