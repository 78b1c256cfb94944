// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validate checks proposed file content before it is applied.
//
// Description:
//
//	The pipeline runs three classes of check per file: an in-process
//	syntax parse (tree-sitter), an external linter, and an external type
//	checker. Syntax is authoritative: a file that does not parse skips
//	its lint and type checks. Lint and type results from tools that ran
//	are advisory. Every outcome is reported as a Result; nothing a
//	checker finds is allowed to surface as an error from the pipeline.
//
// Thread Safety:
//
//	Pipeline is safe for concurrent use. Each check creates its own
//	parser and temp files.
package validate

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/Kodiak/services/promptedit/tools"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// DefaultToolTimeout bounds one external tool invocation.
	DefaultToolTimeout = 10 * time.Second

	// DefaultMaxParallel bounds concurrent file validations.
	DefaultMaxParallel = 4

	// maxMessageBytes caps tool output carried into a Result message.
	maxMessageBytes = 500
)

var validateTracer = otel.Tracer("kodiak.promptedit.validate")

// =============================================================================
// Types
// =============================================================================

// CheckType identifies a class of check.
type CheckType string

const (
	// CheckSyntax is the in-process tree-sitter parse.
	CheckSyntax CheckType = "syntax"

	// CheckLint runs the language's configured linter.
	CheckLint CheckType = "lint"

	// CheckTypes runs the language's configured type checker.
	CheckTypes CheckType = "type"
)

// AllCheckTypes returns the check types in execution order. Syntax runs
// first so its outcome can gate the external checks.
func AllCheckTypes() []CheckType {
	return []CheckType{CheckSyntax, CheckLint, CheckTypes}
}

// Status is the outcome of one check.
type Status string

const (
	// StatusPass means the check ran and found nothing.
	StatusPass Status = "pass"

	// StatusFail means the check found authoritative problems, or the
	// configured tool could not be run at all.
	StatusFail Status = "fail"

	// StatusWarning means a tool ran and reported advisory findings.
	StatusWarning Status = "warning"

	// StatusSkipped means no checker is configured for the language and
	// check type, or a syntax failure suppressed the check.
	StatusSkipped Status = "skipped"
)

// Result is the outcome of one (file, check type) pair.
type Result struct {
	// FilePath is the file the check ran against.
	FilePath string `json:"file_path"`

	// Type is the check that produced this result.
	Type CheckType `json:"validation_type"`

	// Status is the outcome.
	Status Status `json:"status"`

	// Message carries findings or the reason a check did not run.
	Message string `json:"message,omitempty"`

	// Line is the 1-based line of the first syntax error, 0 otherwise.
	Line int `json:"line,omitempty"`

	// Tool names the external tool that produced the result. Empty for
	// the in-process syntax check.
	Tool string `json:"tool,omitempty"`
}

// FileCheck describes one file to validate.
type FileCheck struct {
	// FilePath is used for language detection and result labeling. The
	// file need not exist on disk; Content is what gets checked.
	FilePath string

	// Content is the proposed file content.
	Content string

	// Language overrides extension-based detection when non-empty.
	Language string

	// Types limits which checks run. Empty means all.
	Types []CheckType
}

// =============================================================================
// Pipeline
// =============================================================================

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithToolTimeout sets the per-invocation timeout for external tools.
func WithToolTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.toolTimeout = d
		}
	}
}

// WithMaxParallel sets how many files ValidateAll checks concurrently.
func WithMaxParallel(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxParallel = n
		}
	}
}

// WithLogger sets the logger used for tool failures.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// Pipeline validates proposed edits against a language tool registry.
type Pipeline struct {
	registry    *tools.Registry
	toolTimeout time.Duration
	maxParallel int
	logger      *slog.Logger
}

// NewPipeline creates a validation pipeline backed by the given registry.
//
// Inputs:
//
//	registry - Language tool registry. Must not be nil.
//	opts - Optional configuration (WithToolTimeout, WithMaxParallel).
//
// Outputs:
//
//	*Pipeline - The configured pipeline, never nil.
func NewPipeline(registry *tools.Registry, opts ...Option) *Pipeline {
	p := &Pipeline{
		registry:    registry,
		toolTimeout: DefaultToolTimeout,
		maxParallel: DefaultMaxParallel,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ValidateFile runs the requested checks against one file.
//
// Description:
//
//	Resolves the language, then runs syntax, lint, and type checks in
//	that order. A language with no configured checker for a requested
//	type yields a skipped result. A syntax failure suppresses the
//	remaining external checks for the file. Checker findings and tool
//	failures are reported in the results, never as panics or errors.
//
// Inputs:
//
//	ctx - Context for cancellation and tracing.
//	check - The file to validate.
//
// Outputs:
//
//	[]Result - One result per requested check type, in check order.
//
// Thread Safety: Safe for concurrent use.
func (p *Pipeline) ValidateFile(ctx context.Context, check FileCheck) []Result {
	ctx, span := validateTracer.Start(ctx, "validate.ValidateFile")
	defer span.End()

	language := check.Language
	if language == "" {
		language = p.registry.LanguageForFile(check.FilePath)
	}
	span.SetAttributes(
		attribute.String("file", check.FilePath),
		attribute.String("language", language),
	)

	types := check.Types
	if len(types) == 0 {
		types = AllCheckTypes()
	}

	lang, known := p.registry.Get(language)

	results := make([]Result, 0, len(types))
	syntaxFailed := false
	for _, ct := range orderChecks(types) {
		var res Result
		switch {
		case ct == CheckSyntax:
			res = p.checkSyntax(ctx, check.FilePath, check.Content, language)
			syntaxFailed = res.Status == StatusFail
		case syntaxFailed:
			res = Result{
				FilePath: check.FilePath,
				Type:     ct,
				Status:   StatusSkipped,
				Message:  "skipped: file has syntax errors",
			}
		case !known:
			res = Result{
				FilePath: check.FilePath,
				Type:     ct,
				Status:   StatusSkipped,
				Message:  noCheckerMessage(ct, language),
			}
		default:
			res = p.checkExternal(ctx, check.FilePath, check.Content, language, ct, checkerSpecs(lang, ct))
		}
		results = append(results, res)
	}

	return results
}

// ValidateAll validates a batch of files concurrently.
//
// Description:
//
//	Files are checked with a bounded worker group; results come back in
//	the order the files were given. Files are independent: one file's
//	failures never block another's checks.
//
// Thread Safety: Safe for concurrent use.
func (p *Pipeline) ValidateAll(ctx context.Context, checks []FileCheck) []Result {
	ctx, span := validateTracer.Start(ctx, "validate.ValidateAll")
	defer span.End()
	span.SetAttributes(attribute.Int("file_count", len(checks)))

	perFile := make([][]Result, len(checks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.maxParallel)
	for i, check := range checks {
		g.Go(func() error {
			perFile[i] = p.ValidateFile(gctx, check)
			return nil
		})
	}
	// Workers only record results; the group never returns an error.
	_ = g.Wait()

	results := make([]Result, 0, len(checks)*len(AllCheckTypes()))
	for _, rs := range perFile {
		results = append(results, rs...)
	}
	return results
}

// orderChecks returns the requested types with syntax moved first, so
// the short-circuit rule sees its outcome before external checks run.
func orderChecks(types []CheckType) []CheckType {
	ordered := make([]CheckType, 0, len(types))
	for _, ct := range types {
		if ct == CheckSyntax {
			ordered = append(ordered, ct)
		}
	}
	for _, ct := range types {
		if ct != CheckSyntax {
			ordered = append(ordered, ct)
		}
	}
	return ordered
}

// checkerSpecs returns the configured tools for a check type.
func checkerSpecs(lang *tools.LanguageTools, ct CheckType) []tools.ToolSpec {
	switch ct {
	case CheckLint:
		return lang.Lint
	case CheckTypes:
		return lang.TypeCheck
	default:
		return nil
	}
}

// noCheckerMessage explains a skip for an unregistered language.
func noCheckerMessage(ct CheckType, language string) string {
	if language == "" {
		language = "unknown language"
	}
	switch ct {
	case CheckLint:
		return "linting not configured for " + language
	case CheckTypes:
		return "type checking not configured for " + language
	default:
		return "no checker configured for " + language
	}
}
