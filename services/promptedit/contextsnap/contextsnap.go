// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package contextsnap collects a repository snapshot for edit planning.
//
// # Description
//
// When a submit request names a repository but supplies no file list,
// the collector walks the tree and gathers what the planner's prompts
// need: relative source file paths, the contents of the first few text
// files, and a guess at the primary language. The walk honors the
// repository's .gitignore plus a set of always-ignored patterns, and
// skips binaries and oversized files.
//
// # Thread Safety
//
// Collector is safe for concurrent use.
package contextsnap

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/AleutianAI/Kodiak/services/promptedit/tools"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// DefaultMaxFiles caps the collected file list.
	DefaultMaxFiles = 200

	// DefaultMaxContentFiles caps how many files get their contents read.
	DefaultMaxContentFiles = 5

	// DefaultMaxFileBytes skips files larger than this.
	DefaultMaxFileBytes = 256 * 1024

	// sniffBytes is how much of a file is read to detect binaries.
	sniffBytes = 8192
)

// alwaysIgnored supplements the repository's .gitignore. These are
// never useful as edit-planning context.
var alwaysIgnored = []string{
	".git/",
	"node_modules/",
	"__pycache__/",
	".venv/",
	"venv/",
	"dist/",
	"build/",
	"target/",
	".idea/",
	".vscode/",
	".pytest_cache/",
	".mypy_cache/",
	"coverage/",
	"*.pyc",
	"*.min.js",
	".DS_Store",
	".gitignore",
}

// =============================================================================
// Types
// =============================================================================

// Snapshot is the collected repository context.
type Snapshot struct {
	// Files are repository-relative paths in walk order.
	Files []string

	// Contents maps a subset of Files to their full text.
	Contents map[string]string

	// Language is the majority language by file extension, or "".
	Language string

	// Truncated reports that the file cap cut the walk short.
	Truncated bool
}

// Option configures a Collector.
type Option func(*Collector)

// WithMaxFiles caps the collected file list.
func WithMaxFiles(n int) Option {
	return func(c *Collector) {
		if n > 0 {
			c.maxFiles = n
		}
	}
}

// WithMaxContentFiles caps how many file contents are read.
func WithMaxContentFiles(n int) Option {
	return func(c *Collector) {
		if n >= 0 {
			c.maxContentFiles = n
		}
	}
}

// WithMaxFileBytes sets the per-file size cutoff.
func WithMaxFileBytes(n int64) Option {
	return func(c *Collector) {
		if n > 0 {
			c.maxFileBytes = n
		}
	}
}

// WithLogger sets the collector's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Collector) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Collector walks repositories into Snapshots.
type Collector struct {
	registry        *tools.Registry
	maxFiles        int
	maxContentFiles int
	maxFileBytes    int64
	logger          *slog.Logger
}

// NewCollector creates a Collector. The registry drives language
// detection from file extensions.
func NewCollector(registry *tools.Registry, opts ...Option) *Collector {
	c := &Collector{
		registry:        registry,
		maxFiles:        DefaultMaxFiles,
		maxContentFiles: DefaultMaxContentFiles,
		maxFileBytes:    DefaultMaxFileBytes,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Collect walks root and returns its snapshot.
//
// # Description
//
// Unreadable entries are skipped with a debug log rather than aborting
// the walk; only an unusable root or a canceled context returns an
// error. File order follows the directory walk (lexical within each
// directory).
func (c *Collector) Collect(ctx context.Context, root string) (*Snapshot, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("repository root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("repository root %s is not a directory", root)
	}

	matcher := c.buildIgnore(root)
	snap := &Snapshot{Contents: make(map[string]string)}
	langCounts := make(map[string]int)

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if walkErr != nil {
			c.logger.Debug("Skipping unreadable entry",
				slog.String("path", path),
				slog.String("error", walkErr.Error()))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if path == root {
			return nil
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if matcher.MatchesPath(rel + "/") {
				return fs.SkipDir
			}
			return nil
		}
		if matcher.MatchesPath(rel) {
			return nil
		}

		fi, infoErr := d.Info()
		if infoErr != nil || fi.Size() > c.maxFileBytes {
			return nil
		}
		if c.looksBinary(path) {
			return nil
		}

		snap.Files = append(snap.Files, rel)
		langCounts[c.registry.LanguageForFile(rel)]++

		if len(snap.Contents) < c.maxContentFiles {
			if data, readErr := os.ReadFile(path); readErr == nil {
				snap.Contents[rel] = string(data)
			}
		}

		if len(snap.Files) >= c.maxFiles {
			snap.Truncated = true
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking repository: %w", err)
	}

	snap.Language = majorityLanguage(langCounts)

	c.logger.Debug("Collected repository snapshot",
		slog.String("root", root),
		slog.Int("files", len(snap.Files)),
		slog.String("language", snap.Language),
		slog.Bool("truncated", snap.Truncated))

	return snap, nil
}

// buildIgnore compiles the always-ignored patterns plus the repo's
// .gitignore when present.
func (c *Collector) buildIgnore(root string) *ignore.GitIgnore {
	lines := make([]string, 0, len(alwaysIgnored)+16)
	lines = append(lines, alwaysIgnored...)

	if data, err := os.ReadFile(filepath.Join(root, ".gitignore")); err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line != "" && !strings.HasPrefix(line, "#") {
				lines = append(lines, line)
			}
		}
	}

	return ignore.CompileIgnoreLines(lines...)
}

// looksBinary sniffs the head of a file for NUL bytes.
func (c *Collector) looksBinary(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return true
	}
	defer f.Close()

	buf := make([]byte, sniffBytes)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return true
	}
	return bytes.IndexByte(buf[:n], 0) >= 0
}

// majorityLanguage picks the most common registered language.
func majorityLanguage(counts map[string]int) string {
	best := ""
	bestCount := 0
	for lang, count := range counts {
		if lang == "" {
			continue
		}
		if count > bestCount || (count == bestCount && lang < best) {
			best = lang
			bestCount = count
		}
	}
	return best
}
