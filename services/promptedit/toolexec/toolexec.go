// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package toolexec runs external developer tools with timeouts and
// bounded output capture.
//
// Linters, type checkers, formatters, and test commands all go through
// Execute, so timeout handling and output truncation behave the same
// everywhere a subprocess is involved.
package toolexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

// =============================================================================
// CONSTANTS AND ERRORS
// =============================================================================

// DefaultMaxOutputBytes caps captured output per stream when the spec
// does not say otherwise.
const DefaultMaxOutputBytes = 64 * 1024 // 64KB

var (
	// ErrTimeout indicates the command exceeded its deadline. The
	// partial Result is still returned alongside this error.
	ErrTimeout = errors.New("command execution timeout")

	// ErrEmptyCommand indicates a spec with no command to run.
	ErrEmptyCommand = errors.New("empty command")
)

// =============================================================================
// SPEC AND RESULT
// =============================================================================

// Spec describes a single tool invocation.
type Spec struct {
	// Command is the executable name or path.
	Command string

	// Args are the command arguments.
	Args []string

	// Dir is the working directory. Empty means the process default.
	Dir string

	// Env holds extra KEY=VALUE entries appended to the parent
	// environment.
	Env []string

	// Stdin is piped to the process when non-empty.
	Stdin string

	// Timeout bounds execution. Zero means only the caller's context
	// deadline applies.
	Timeout time.Duration

	// MaxOutputBytes caps each captured stream. Zero means
	// DefaultMaxOutputBytes.
	MaxOutputBytes int
}

// Result captures the outcome of a tool invocation.
type Result struct {
	// ExitCode is the process exit status. -1 when the process could
	// not run or was killed by a timeout.
	ExitCode int

	// Stdout is the captured standard output, possibly truncated.
	Stdout string

	// Stderr is the captured standard error, possibly truncated.
	Stderr string

	// TimedOut reports whether the deadline killed the process.
	TimedOut bool

	// Truncated reports whether either stream hit the capture limit.
	Truncated bool

	// Duration is the wall-clock execution time.
	Duration time.Duration
}

// CombinedOutput returns stdout followed by stderr.
func (r *Result) CombinedOutput() string {
	return r.Stdout + r.Stderr
}

// Succeeded reports a clean zero exit without a timeout.
func (r *Result) Succeeded() bool {
	return !r.TimedOut && r.ExitCode == 0
}

// =============================================================================
// EXECUTION
// =============================================================================

// Available reports whether a command resolves on PATH.
func Available(command string) bool {
	_, err := exec.LookPath(command)
	return err == nil
}

// Execute runs the spec and captures its outcome.
//
// Description:
//
//	Runs the command under the caller's context, tightened by the
//	spec's own timeout when set. Output is captured per stream with a
//	size cap. A timeout kills the process and returns the partial
//	Result together with ErrTimeout; the caller decides whether that
//	is a failure or a recorded outcome.
//
// Inputs:
//
//	ctx - Context for cancellation and deadline
//	spec - The invocation to run
//
// Outputs:
//
//	*Result - Captured outcome, non-nil unless spawn failed outright
//	error - ErrTimeout on deadline, otherwise spawn/IO failures
//
// Thread Safety: Safe for concurrent use. Each call owns its process.
func Execute(ctx context.Context, spec Spec) (*Result, error) {
	if spec.Command == "" {
		return nil, ErrEmptyCommand
	}

	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	maxOutput := spec.MaxOutputBytes
	if maxOutput <= 0 {
		maxOutput = DefaultMaxOutputBytes
	}

	cmd := exec.CommandContext(ctx, spec.Command, spec.Args...)
	if spec.Dir != "" {
		cmd.Dir = spec.Dir
	}
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	if spec.Stdin != "" {
		cmd.Stdin = strings.NewReader(spec.Stdin)
	}

	var stdout, stderr bytes.Buffer
	stdoutLimited := &limitedWriter{w: &stdout, limit: maxOutput}
	stderrLimited := &limitedWriter{w: &stderr, limit: maxOutput}
	cmd.Stdout = stdoutLimited
	cmd.Stderr = stderrLimited

	slog.Debug("Executing tool",
		slog.String("command", spec.Command),
		slog.Any("args", spec.Args),
		slog.Duration("timeout", spec.Timeout),
	)

	start := time.Now()
	err := cmd.Run()

	result := &Result{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		Truncated: stdoutLimited.truncated || stderrLimited.truncated,
		Duration:  time.Since(start),
	}

	// Handle context cancellation (timeout)
	if ctx.Err() == context.DeadlineExceeded {
		result.TimedOut = true
		result.ExitCode = -1
		slog.Warn("Tool execution timed out",
			slog.String("command", spec.Command),
			slog.Duration("timeout", spec.Timeout),
		)
		return result, ErrTimeout
	}

	// Extract exit code
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = -1
			return result, fmt.Errorf("command execution failed: %w", err)
		}
	} else {
		result.ExitCode = 0
	}

	return result, nil
}

// =============================================================================
// LIMITED WRITER
// =============================================================================

// limitedWriter wraps a writer with a size limit.
type limitedWriter struct {
	w         io.Writer
	limit     int
	written   int
	truncated bool
}

func (lw *limitedWriter) Write(p []byte) (n int, err error) {
	if lw.written >= lw.limit {
		lw.truncated = true
		return len(p), nil // Silently discard
	}

	remaining := lw.limit - lw.written
	if len(p) > remaining {
		p = p[:remaining]
		lw.truncated = true
	}

	n, err = lw.w.Write(p)
	lw.written += n
	return len(p), err // Return original length to avoid breaking callers
}
