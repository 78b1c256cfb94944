// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package testrun executes a repository's test suite after edits are
// applied and parses the outcome.
//
// Description:
//
//	The runner resolves a test command (caller-supplied or the
//	language's registry default), executes it in the repository root
//	under a hard timeout, and classifies the outcome: passed, failed,
//	timeout, or error. Test counts and coverage are parsed from the
//	tool output on a best-effort basis; a run that produces no
//	recognizable report still yields a structured result.
//
// Thread Safety:
//
//	Runner is safe for concurrent use.
package testrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/Kodiak/services/promptedit/toolexec"
	"github.com/AleutianAI/Kodiak/services/promptedit/tools"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// DefaultTimeout is the hard cap on one test run (30 minutes).
	DefaultTimeout = 30 * time.Minute

	// DefaultMaxOutputBytes caps captured test output per stream.
	DefaultMaxOutputBytes = 256 * 1024
)

var testrunTracer = otel.Tracer("kodiak.promptedit.testrun")

// =============================================================================
// Types
// =============================================================================

// Status classifies a test run.
type Status string

const (
	// StatusPassed means the test command exited zero.
	StatusPassed Status = "passed"

	// StatusFailed means the command exited non-zero and its output
	// contained a recognizable test report.
	StatusFailed Status = "failed"

	// StatusTimeout means the run hit the hard timeout and the process
	// was killed.
	StatusTimeout Status = "timeout"

	// StatusError means the command could not run, or exited non-zero
	// without any recognizable test report.
	StatusError Status = "error"
)

// Spec describes one test run.
type Spec struct {
	// Command is a caller-supplied command line. Empty selects the
	// registry default for Language.
	Command string

	// Paths are test paths appended to the command.
	Paths []string

	// Coverage switches to the language's coverage command and enables
	// coverage extraction from the output.
	Coverage bool

	// Language selects the registry default command. Empty falls back
	// to python.
	Language string

	// Timeout overrides DefaultTimeout when positive.
	Timeout time.Duration
}

// Result is the structured outcome of a test run.
type Result struct {
	// Status classifies the run.
	Status Status `json:"status"`

	// Passed, Failed, and Skipped are counts parsed from the output.
	// All zero when the output had no recognizable report.
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`

	// Duration is the wall-clock run time.
	Duration time.Duration `json:"-"`

	// Output is the combined captured stdout and stderr.
	Output string `json:"output"`

	// CoveragePercent is parsed from the output when coverage was
	// requested; nil when absent or unparseable.
	CoveragePercent *float64 `json:"coverage_percent,omitempty"`

	// Command is the argv that ran, for diagnostics.
	Command []string `json:"command"`
}

// =============================================================================
// Runner
// =============================================================================

// Option configures a Runner.
type Option func(*Runner)

// WithTimeout sets the default hard timeout for runs.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithLogger sets the runner's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Runner executes test commands inside a repository.
type Runner struct {
	repoRoot string
	registry *tools.Registry
	timeout  time.Duration
	logger   *slog.Logger
}

// NewRunner creates a test runner rooted at repoRoot.
//
// Inputs:
//
//	repoRoot - Working directory for test commands.
//	registry - Language tool registry supplying default commands.
//	opts - Optional configuration (WithTimeout, WithLogger).
//
// Outputs:
//
//	*Runner - The configured runner, never nil.
func NewRunner(repoRoot string, registry *tools.Registry, opts ...Option) *Runner {
	r := &Runner{
		repoRoot: repoRoot,
		registry: registry,
		timeout:  DefaultTimeout,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes one test run and returns its structured outcome.
//
// Description:
//
//	Builds the command line, runs it in the repository root with the
//	hard timeout, and classifies the exit. The process is killed at
//	the deadline; partial output captured before the kill is kept in
//	the result. A malformed custom command is the only error return.
//
// Inputs:
//
//	ctx - Context for cancellation; the spec timeout tightens it.
//	spec - The run to execute.
//
// Outputs:
//
//	*Result - Structured outcome, non-nil whenever err is nil.
//	error - Non-nil only for an unusable spec (bad custom command).
//
// Thread Safety: Safe for concurrent use.
func (r *Runner) Run(ctx context.Context, spec Spec) (*Result, error) {
	ctx, span := testrunTracer.Start(ctx, "testrun.Run")
	defer span.End()

	argv, err := r.buildCommand(spec)
	if err != nil {
		return nil, err
	}

	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = r.timeout
	}

	span.SetAttributes(
		attribute.StringSlice("command", argv),
		attribute.Bool("coverage", spec.Coverage),
	)
	r.logger.Info("Running tests",
		slog.Any("command", argv),
		slog.String("dir", r.repoRoot),
		slog.Duration("timeout", timeout))

	out, execErr := toolexec.Execute(ctx, toolexec.Spec{
		Command:        argv[0],
		Args:           argv[1:],
		Dir:            r.repoRoot,
		Timeout:        timeout,
		MaxOutputBytes: DefaultMaxOutputBytes,
	})

	result := &Result{Command: argv}
	if out != nil {
		result.Duration = out.Duration
		result.Output = out.CombinedOutput()
	}

	switch {
	case errors.Is(execErr, toolexec.ErrTimeout):
		result.Status = StatusTimeout
		result.Output = appendNote(result.Output, fmt.Sprintf("test command timed out after %s", timeout))
	case execErr != nil:
		result.Status = StatusError
		result.Output = appendNote(result.Output, execErr.Error())
	default:
		report := parseTestOutput(result.Output)
		result.Passed = report.passed
		result.Failed = report.failed
		result.Skipped = report.skipped

		switch {
		case out.ExitCode == 0:
			result.Status = StatusPassed
		case report.found:
			result.Status = StatusFailed
		default:
			result.Status = StatusError
		}

		if spec.Coverage {
			result.CoveragePercent = extractCoveragePercent(result.Output)
		}
	}

	span.SetAttributes(attribute.String("status", string(result.Status)))
	r.logger.Info("Test run finished",
		slog.String("status", string(result.Status)),
		slog.Int("passed", result.Passed),
		slog.Int("failed", result.Failed),
		slog.Duration("duration", result.Duration))

	return result, nil
}

// buildCommand resolves the argv for a run.
//
// A caller-supplied command is split shell-style. Otherwise the
// language's registry test entry supplies the command, switched to its
// coverage variant when requested, with the stock pytest call as the
// final fallback.
func (r *Runner) buildCommand(spec Spec) ([]string, error) {
	if spec.Command != "" {
		argv, err := splitCommand(spec.Command)
		if err != nil {
			return nil, fmt.Errorf("invalid test command: %w", err)
		}
		if len(argv) == 0 {
			return nil, errors.New("invalid test command: empty after splitting")
		}
		return append(argv, spec.Paths...), nil
	}

	language := spec.Language
	if language == "" {
		language = "python"
	}

	if lang, ok := r.registry.Get(language); ok && lang.Test != nil {
		command := lang.Test.Command
		args := lang.Test.Args
		if spec.Coverage {
			if lang.Test.CoverageCommand != "" {
				command = lang.Test.CoverageCommand
			}
			if len(lang.Test.CoverageArgs) > 0 {
				args = lang.Test.CoverageArgs
			}
		}
		argv := append([]string{command}, args...)
		return append(argv, spec.Paths...), nil
	}

	// No registry entry; use the stock pytest invocation.
	argv := []string{"python", "-m", "pytest"}
	if spec.Coverage {
		argv = []string{"coverage", "run", "-m", "pytest"}
	}
	return append(argv, spec.Paths...), nil
}

// appendNote attaches a runner note after any captured output.
func appendNote(output, note string) string {
	if output == "" {
		return note
	}
	return output + "\n" + note
}
