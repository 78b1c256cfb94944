// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package format rewrites proposed file content with the language's
// code formatter before it is applied.
//
// Description:
//
//	Formatting is best effort. The first installed formatter from the
//	language's priority list runs against a temp copy of the content;
//	the rewritten file is read back. A missing formatter or a failed
//	run returns the input unchanged rather than an error, so apply is
//	never blocked on cosmetics.
//
// Thread Safety:
//
//	Formatter is safe for concurrent use. Each run stages its own temp
//	file.
package format

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/Kodiak/services/promptedit/toolexec"
	"github.com/AleutianAI/Kodiak/services/promptedit/tools"
)

// =============================================================================
// Constants
// =============================================================================

// DefaultRunTimeout bounds one formatter invocation.
const DefaultRunTimeout = 10 * time.Second

var formatTracer = otel.Tracer("kodiak.promptedit.format")

// =============================================================================
// Types
// =============================================================================

// Status is the outcome class of one formatting attempt.
type Status string

const (
	// StatusSuccess means a formatter ran cleanly.
	StatusSuccess Status = "success"

	// StatusSkipped means no requested formatter is configured or
	// installed; content passes through unchanged.
	StatusSkipped Status = "skipped"

	// StatusFailed means the formatter ran but exited non-zero or could
	// not be executed; content passes through unchanged.
	StatusFailed Status = "failed"
)

// Outcome reports one file's formatting attempt.
type Outcome struct {
	// FilePath is the file the content belongs to.
	FilePath string `json:"file_path"`

	// Formatter names the tool that ran, or "" when none did.
	Formatter string `json:"formatter,omitempty"`

	// Content is the formatted content, or the input when nothing ran
	// or the run failed.
	Content string `json:"-"`

	// Changed reports whether Content differs from the input.
	Changed bool `json:"changes_made"`

	// Status classifies the attempt.
	Status Status `json:"status"`

	// Message carries the skip reason or the tool's stderr.
	Message string `json:"message,omitempty"`
}

// =============================================================================
// Formatter
// =============================================================================

// Option configures a Formatter.
type Option func(*Formatter)

// WithRunTimeout sets the per-invocation formatter timeout.
func WithRunTimeout(d time.Duration) Option {
	return func(f *Formatter) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithLogger sets the logger used for formatter failures.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Formatter) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// Formatter runs the registry's configured code formatters.
type Formatter struct {
	registry *tools.Registry
	timeout  time.Duration
	logger   *slog.Logger
}

// NewFormatter creates a Formatter backed by the given registry.
//
// Inputs:
//
//	registry - Language tool registry. Must not be nil.
//	opts - Optional configuration (WithRunTimeout, WithLogger).
//
// Outputs:
//
//	*Formatter - The configured formatter, never nil.
func NewFormatter(registry *tools.Registry, opts ...Option) *Formatter {
	f := &Formatter{
		registry: registry,
		timeout:  DefaultRunTimeout,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FormatFile formats one file's content.
//
// Description:
//
//	Resolves the language from the file extension, narrows the
//	configured formatter list to the caller's requested names when
//	given, and runs the first formatter found on PATH. The content is
//	staged in a temp file carrying the original extension, the tool
//	rewrites it in place, and the result is read back. Changed reports
//	a content difference, so formatting already-formatted input comes
//	back unchanged.
//
// Inputs:
//
//	ctx - Context for cancellation and tracing.
//	filePath - File the content belongs to; used for language detection.
//	content - Proposed content to format.
//	requested - Formatter names to consider, in priority order. Empty
//	    means the language's full configured list.
//
// Outputs:
//
//	Outcome - Always carries usable Content; never an error. Failures
//	    and skips degrade to the input unchanged.
//
// Thread Safety: Safe for concurrent use.
func (f *Formatter) FormatFile(ctx context.Context, filePath, content string, requested []string) Outcome {
	ctx, span := formatTracer.Start(ctx, "format.FormatFile")
	defer span.End()

	out := Outcome{FilePath: filePath, Content: content}

	language := f.registry.LanguageForFile(filePath)
	span.SetAttributes(
		attribute.String("file", filePath),
		attribute.String("language", language),
	)

	specs := f.candidateSpecs(language, requested)
	if len(specs) == 0 {
		out.Status = StatusSkipped
		out.Message = noFormatterMessage(language, requested)
		return out
	}

	spec, ok := firstInstalled(specs)
	out.Formatter = spec.Name
	if !ok {
		out.Status = StatusSkipped
		out.Message = fmt.Sprintf("no formatter installed (tried %s)", joinNames(specs))
		return out
	}
	span.SetAttributes(attribute.String("formatter", spec.Name))

	formatted, err := f.runFormatter(ctx, spec, filePath, content)
	if err != nil {
		out.Status = StatusFailed
		out.Message = err.Error()
		f.logger.Warn("Formatter failed, keeping content unchanged",
			slog.String("formatter", spec.Name),
			slog.String("file", filePath),
			slog.String("error", err.Error()))
		return out
	}

	out.Status = StatusSuccess
	out.Changed = formatted != content
	if out.Changed {
		out.Content = formatted
	}
	return out
}

// candidateSpecs returns the formatter specs to try, honoring the
// caller's requested names when given.
func (f *Formatter) candidateSpecs(language string, requested []string) []tools.ToolSpec {
	lang, ok := f.registry.Get(language)
	if !ok {
		return nil
	}
	if len(requested) == 0 {
		return lang.Format
	}

	specs := make([]tools.ToolSpec, 0, len(requested))
	for _, name := range requested {
		for _, spec := range lang.Format {
			if strings.EqualFold(spec.Name, name) {
				specs = append(specs, spec)
				break
			}
		}
	}
	return specs
}

// runFormatter stages content, runs the tool in place, and reads the
// result back.
func (f *Formatter) runFormatter(ctx context.Context, spec tools.ToolSpec, filePath, content string) (string, error) {
	tmpPath, cleanup, err := stageTempFile(content, filePath)
	if err != nil {
		return "", fmt.Errorf("%s: staging temp file: %w", spec.Name, err)
	}
	defer cleanup()

	res, err := toolexec.Execute(ctx, toolexec.Spec{
		Command: spec.Command,
		Args:    spec.RenderArgs(tmpPath),
		Timeout: f.timeout,
	})
	if err != nil {
		if errors.Is(err, toolexec.ErrTimeout) {
			return "", fmt.Errorf("%s timed out after %s", spec.Name, f.timeout)
		}
		return "", fmt.Errorf("%s failed to run: %w", spec.Name, err)
	}
	if res.ExitCode != 0 {
		msg := strings.TrimSpace(res.Stderr)
		if msg == "" {
			msg = fmt.Sprintf("exit code %d", res.ExitCode)
		}
		return "", fmt.Errorf("%s: %s", spec.Name, msg)
	}

	formatted, err := os.ReadFile(tmpPath)
	if err != nil {
		return "", fmt.Errorf("%s: reading formatted output: %w", spec.Name, err)
	}
	return string(formatted), nil
}

// firstInstalled returns the first spec whose command resolves on PATH.
func firstInstalled(specs []tools.ToolSpec) (tools.ToolSpec, bool) {
	for _, spec := range specs {
		if toolexec.Available(spec.Command) {
			return spec, true
		}
	}
	return specs[0], false
}

func noFormatterMessage(language string, requested []string) string {
	if len(requested) > 0 {
		return fmt.Sprintf("none of the requested formatters (%s) are configured for %s",
			strings.Join(requested, ", "), displayLanguage(language))
	}
	return "no formatter configured for " + displayLanguage(language)
}

func displayLanguage(language string) string {
	if language == "" {
		return "unknown language"
	}
	return language
}

func joinNames(specs []tools.ToolSpec) string {
	names := make([]string, len(specs))
	for i, spec := range specs {
		names[i] = spec.Name
	}
	return strings.Join(names, ", ")
}

// stageTempFile writes content to a temp file that keeps the original
// extension, so extension-sensitive formatters pick the right mode.
func stageTempFile(content, originalPath string) (string, func(), error) {
	ext := filepath.Ext(originalPath)
	tmp, err := os.CreateTemp("", "promptedit-fmt-*"+ext)
	if err != nil {
		return "", nil, err
	}
	path := tmp.Name()
	cleanup := func() { _ = os.Remove(path) }

	if _, err := tmp.WriteString(content); err != nil {
		_ = tmp.Close()
		cleanup()
		return "", nil, err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", nil, err
	}
	return path, cleanup, nil
}
