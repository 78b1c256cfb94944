// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package diffutil computes unified diffs and change statistics between
// original and proposed file bodies.
//
// # Description
//
// Everything here is a pure function of its string inputs. Generation
// uses line-based unified diffs with "original/<path>" and
// "modified/<path>" labels; statistics come from parsing the generated
// text back, with a raw line scan as fallback. Identical inputs yield
// an empty diff and zero counts.
//
// # Thread Safety
//
// All functions are safe for concurrent use.
package diffutil

import (
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/sourcegraph/go-diff/diff"
)

// contextLines is the number of unchanged lines shown around each hunk.
const contextLines = 3

// =============================================================================
// File Diff
// =============================================================================

// FileDiff is the rendered change for one file.
type FileDiff struct {
	// FilePath is the repository-relative path the diff describes.
	FilePath string `json:"file_path"`

	// Text is the unified diff body. Empty when nothing changed.
	Text string `json:"diff"`

	// Additions counts added lines.
	Additions int `json:"additions"`

	// Deletions counts removed lines.
	Deletions int `json:"deletions"`
}

// =============================================================================
// Generation
// =============================================================================

// Unified diffs an original body against a modified body.
//
// # Description
//
// Creates render as a diff from empty (pure additions) and deletes as
// a diff to empty (pure deletions); callers pass "" for the missing
// side. Identical inputs, including empty-to-empty, produce an empty
// diff with zero counts rather than an error.
//
// # Inputs
//
//   - path: Repository-relative path used in the diff labels.
//   - original: The current body, "" for creates.
//   - modified: The proposed body, "" for deletes.
//
// # Outputs
//
//   - *FileDiff: Rendered diff with counts.
//   - error: Non-nil only if diff rendering itself fails.
func Unified(path, original, modified string) (*FileDiff, error) {
	if original == modified {
		return &FileDiff{FilePath: path}, nil
	}

	ud := difflib.UnifiedDiff{
		A:        splitKeepEnds(original),
		B:        splitKeepEnds(modified),
		FromFile: "original/" + path,
		ToFile:   "modified/" + path,
		Context:  contextLines,
	}
	text, err := difflib.GetUnifiedDiffString(ud)
	if err != nil {
		return nil, fmt.Errorf("rendering unified diff for %s: %w", path, err)
	}

	additions, deletions := countChanges(text)
	return &FileDiff{
		FilePath:  path,
		Text:      text,
		Additions: additions,
		Deletions: deletions,
	}, nil
}

// Rename renders a rename as its delete and create halves.
//
// # Description
//
// A rename with identical content is pure bookkeeping: one entry for
// the new path with an empty diff and zero counts. When the content
// also changed, the result is a deletion diff for the old path and a
// creation diff for the new path, in that order.
func Rename(oldPath, newPath, original, modified string) ([]*FileDiff, error) {
	if original == modified {
		return []*FileDiff{{FilePath: newPath}}, nil
	}

	removed, err := Unified(oldPath, original, "")
	if err != nil {
		return nil, err
	}
	created, err := Unified(newPath, "", modified)
	if err != nil {
		return nil, err
	}
	return []*FileDiff{removed, created}, nil
}

// splitKeepEnds splits a body into lines that keep their terminators.
// An empty body yields no lines and a terminated body yields exactly
// its lines, so counts against "" match the file's real line count.
// difflib.SplitLines is avoided here: it appends a terminator to the
// final fragment unconditionally, which turns every terminated body
// into an extra phantom line. A body without a final terminator still
// gets one so the rendered diff stays line-aligned.
func splitKeepEnds(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	last := len(lines) - 1
	if lines[last] == "" {
		return lines[:last]
	}
	lines[last] += "\n"
	return lines
}

// =============================================================================
// Statistics
// =============================================================================

// countChanges extracts addition and deletion counts from diff text.
//
// Parsing the text back through the diff grammar catches malformed
// output; the raw prefix scan handles anything the parser rejects.
func countChanges(text string) (additions, deletions int) {
	if text == "" {
		return 0, 0
	}

	if fd, err := diff.ParseFileDiff([]byte(text)); err == nil {
		stat := fd.Stat()
		return int(stat.Added + stat.Changed), int(stat.Deleted + stat.Changed)
	}

	return scanChanges(text)
}

// scanChanges counts +/- lines directly, skipping the file headers.
func scanChanges(text string) (additions, deletions int) {
	for _, line := range strings.Split(text, "\n") {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
		case strings.HasPrefix(line, "+"):
			additions++
		case strings.HasPrefix(line, "-"):
			deletions++
		}
	}
	return additions, deletions
}
