// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package promptedit

import (
	"github.com/AleutianAI/Kodiak/services/promptedit/planner"
	"github.com/AleutianAI/Kodiak/services/promptedit/provider"
)

// SubmitRequest is the request body for POST /v1/prompt-edit/submit.
type SubmitRequest struct {
	// Prompt is the natural-language change request. Required.
	Prompt string `json:"prompt"`

	// RepoContext is the caller's repository snapshot. Optional.
	RepoContext planner.RepoContext `json:"repo_context"`

	// TargetFiles restricts the plan to specific paths. Optional.
	TargetFiles []string `json:"target_files"`

	// DryRun marks the session preview-only; apply is refused.
	DryRun bool `json:"dry_run"`

	// Provider selects the LLM backend. Default: "mock".
	Provider string `json:"llm_provider"`

	// Model overrides the provider's default model. Optional.
	Model string `json:"llm_model"`
}

// SubmitResponse is the response for POST /v1/prompt-edit/submit.
type SubmitResponse struct {
	// SessionID is the created session.
	SessionID string `json:"session_id"`

	// Status is the session status after submit.
	Status string `json:"status"`

	// Summary is the provider's plan summary.
	Summary string `json:"summary,omitempty"`

	// Edits are the accepted plan entries in provider order.
	Edits []planner.CodeEdit `json:"edits"`

	// Message is a human-readable outcome line.
	Message string `json:"message"`
}

// PreviewFileEntry is one file's diff in a preview response.
type PreviewFileEntry struct {
	// FilePath is the target path. For the removal half of a rename
	// this is the old path.
	FilePath string `json:"file_path"`

	// EditType is create, modify, delete, or rename.
	EditType string `json:"edit_type"`

	// Description is the provider's rationale for the edit.
	Description string `json:"description,omitempty"`

	// Message names the pending action for non-modify edits.
	Message string `json:"message,omitempty"`

	// Diff is the unified diff text, empty when nothing changes.
	Diff string `json:"diff"`

	// Additions is the added line count.
	Additions int `json:"additions"`

	// Deletions is the removed line count.
	Deletions int `json:"deletions"`
}

// PreviewResponse is the response for GET /v1/prompt-edit/:session_id/preview.
type PreviewResponse struct {
	// SessionID is the previewed session.
	SessionID string `json:"session_id"`

	// Status is the current session status.
	Status string `json:"status"`

	// Files are the per-file diffs in plan order.
	Files []PreviewFileEntry `json:"files"`

	// TotalAdditions sums added lines across all files.
	TotalAdditions int `json:"total_additions"`

	// TotalDeletions sums removed lines across all files.
	TotalDeletions int `json:"total_deletions"`
}

// ValidateRequest is the request body for POST /v1/prompt-edit/:session_id/validate.
type ValidateRequest struct {
	// ValidationTypes selects the checks to run (syntax, lint, type).
	// Empty means all three.
	ValidationTypes []string `json:"validation_types"`
}

// FormatRequest is the request body for POST /v1/prompt-edit/:session_id/format.
type FormatRequest struct {
	// FilePaths restricts formatting to specific paths. Empty means all.
	FilePaths []string `json:"file_paths"`

	// Formatters restricts which configured formatters may run.
	Formatters []string `json:"formatters"`
}

// ApplyRequest is the request body for POST /v1/prompt-edit/:session_id/apply.
type ApplyRequest struct {
	// FilePaths restricts the apply to specific paths. Empty means all.
	FilePaths []string `json:"file_paths"`

	// SkipValidation bypasses the syntax failure gate.
	SkipValidation bool `json:"skip_validation"`

	// AutoFormat formats each file as it is applied.
	AutoFormat bool `json:"auto_format"`
}

// ApplyResponse is the response for POST /v1/prompt-edit/:session_id/apply.
type ApplyResponse struct {
	// SessionID is the session the apply ran against.
	SessionID string `json:"session_id"`

	// Status is applied, partially_applied, or failed.
	Status string `json:"status"`

	// AppliedFiles lists paths written to disk, in plan order.
	AppliedFiles []string `json:"applied_files"`

	// FailedFiles lists paths that were not written, in plan order.
	FailedFiles []string `json:"failed_files"`

	// Errors maps each failed path to its reason.
	Errors map[string]string `json:"errors,omitempty"`

	// Message is a human-readable outcome line.
	Message string `json:"message"`
}

// TestRequest is the request body for POST /v1/prompt-edit/:session_id/test.
type TestRequest struct {
	// TestCommand overrides the registry's test tool for the repo
	// language. Optional.
	TestCommand string `json:"test_command"`

	// TestPaths narrows the run to specific paths. Optional.
	TestPaths []string `json:"test_paths"`

	// Coverage requests coverage collection when the tool supports it.
	Coverage bool `json:"coverage"`
}

// TestResponse is the response for POST /v1/prompt-edit/:session_id/test.
type TestResponse struct {
	// SessionID is the session the tests ran for.
	SessionID string `json:"session_id"`

	// Status is passed, failed, timeout, or error.
	Status string `json:"status"`

	// Passed is the parsed passing test count.
	Passed int `json:"passed"`

	// Failed is the parsed failing test count.
	Failed int `json:"failed"`

	// Skipped is the parsed skipped test count.
	Skipped int `json:"skipped"`

	// DurationMs is the wall-clock duration in milliseconds.
	DurationMs int64 `json:"duration_ms"`

	// CoveragePercent is set when coverage was requested and parsed.
	CoveragePercent *float64 `json:"coverage_percent,omitempty"`

	// Output is the captured (possibly truncated) tool output.
	Output string `json:"output"`
}

// ProvidersResponse is the response for GET /v1/prompt-edit/providers.
type ProvidersResponse struct {
	// Providers lists every registered backend.
	Providers []provider.ProviderInfo `json:"providers"`
}

// HealthResponse is the response for GET /v1/prompt-edit/health.
type HealthResponse struct {
	// Status is "healthy".
	Status string `json:"status"`

	// Service is the service name.
	Service string `json:"service"`

	// Sessions is the number of stored sessions.
	Sessions int `json:"sessions"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is the error code (optional).
	Code string `json:"code,omitempty"`

	// SessionID identifies the session the error relates to, when one
	// exists. Submit-time provider failures set this so callers can
	// retry against the pending session.
	SessionID string `json:"session_id,omitempty"`

	// Details provides additional error context (optional).
	Details string `json:"details,omitempty"`
}
