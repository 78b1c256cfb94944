// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for user-provided inputs that are used in
// file paths or subprocess calls. Using these validators prevents path
// traversal out of the repository root and NUL-byte tricks in paths that
// later reach the filesystem or external tools.
package validation

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidateRelPath validates a repository-relative file path.
//
// Valid paths:
//   - Non-empty
//   - Relative (no leading / or drive letter)
//   - No NUL bytes
//   - Do not escape their root via .. segments after cleaning
//
// Returns an error if the path is invalid.
//
// Example:
//
//	if err := validation.ValidateRelPath(edit.FilePath); err != nil {
//	    return nil, fmt.Errorf("invalid edit path: %w", err)
//	}
//	// Safe to join under the repository root
func ValidateRelPath(path string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}
	if strings.ContainsRune(path, 0) {
		return fmt.Errorf("path contains NUL byte")
	}
	if filepath.IsAbs(path) {
		return fmt.Errorf("path must be repository-relative: %s", path)
	}

	clean := filepath.Clean(path)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path escapes repository root: %s", path)
	}
	return nil
}

// ValidateRelPaths validates multiple repository-relative paths.
// Returns an error listing all invalid paths if any fail validation.
func ValidateRelPaths(paths []string) error {
	var invalid []string
	for _, p := range paths {
		if err := ValidateRelPath(p); err != nil {
			invalid = append(invalid, p)
		}
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid paths: %v", invalid)
	}
	return nil
}

// ResolveUnder joins a repository-relative path to root and verifies the
// result stays inside root. Returns the absolute target path if valid,
// or an error if invalid.
//
// Use this when you need both validation and the resolved target:
//
//	target, err := validation.ResolveUnder(repoRoot, edit.FilePath)
//	if err != nil {
//	    return err
//	}
//	// target is inside repoRoot and safe to write
func ResolveUnder(root, rel string) (string, error) {
	if err := ValidateRelPath(rel); err != nil {
		return "", err
	}

	full := filepath.Join(root, rel)
	check, err := filepath.Rel(filepath.Clean(root), full)
	if err != nil || check == ".." || strings.HasPrefix(check, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes repository root: %s", rel)
	}
	return full, nil
}
