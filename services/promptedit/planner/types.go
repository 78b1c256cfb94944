// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package planner provides the session-based edit orchestration state machine.
//
// The planner turns a natural-language prompt plus repository context into a
// validated, formatted, optionally-tested set of file modifications. It owns
// the session state machine (pending, plan_generated, validated, formatted,
// applied, tested, failed) and is the sole mutator of session and edit state.
// Pipeline components (provider gateway, diff engine, validation, formatting,
// test runner) receive copies and return outcome values.
//
// Thread Safety:
//
//	All exported types in this package are designed for concurrent use.
//	Sessions are protected by internal synchronization, and at most one
//	mutating operation runs per session at a time.
package planner

import "time"

// SessionStatus represents a state in the edit session state machine.
//
// Valid transitions are enforced by the state machine. Invalid transitions
// return ErrInvalidTransition.
type SessionStatus string

const (
	// StatusPending is the initial state before a plan has been generated.
	StatusPending SessionStatus = "pending"

	// StatusPlanGenerated indicates the provider returned an edit plan.
	StatusPlanGenerated SessionStatus = "plan_generated"

	// StatusValidated indicates the validation pipeline has run over the plan.
	StatusValidated SessionStatus = "validated"

	// StatusFormatted indicates the formatting pipeline has run over the plan.
	StatusFormatted SessionStatus = "formatted"

	// StatusApplied indicates proposed content has been written to disk.
	StatusApplied SessionStatus = "applied"

	// StatusTested indicates the test runner has executed against the repo.
	StatusTested SessionStatus = "tested"

	// StatusFailed indicates an unrecoverable stage failure. Terminal.
	StatusFailed SessionStatus = "failed"
)

// String returns the string representation of the status.
func (s SessionStatus) String() string {
	return string(s)
}

// IsTerminal returns true if no further stage execution is possible.
func (s SessionStatus) IsTerminal() bool {
	return s == StatusFailed
}

// AllStatuses returns all valid session statuses.
func AllStatuses() []SessionStatus {
	return []SessionStatus{
		StatusPending,
		StatusPlanGenerated,
		StatusValidated,
		StatusFormatted,
		StatusApplied,
		StatusTested,
		StatusFailed,
	}
}

// EditType classifies what a CodeEdit does to its target file.
type EditType string

const (
	// EditCreate creates a new file; original content must be absent.
	EditCreate EditType = "create"

	// EditModify rewrites an existing file; original and proposed content
	// must both be present and must differ.
	EditModify EditType = "modify"

	// EditDelete removes a file; proposed content must be absent.
	EditDelete EditType = "delete"

	// EditRename moves a file, optionally rewriting it. Validation and
	// formatting run against the new path.
	EditRename EditType = "rename"
)

// String returns the string representation of the edit type.
func (t EditType) String() string {
	return string(t)
}

// Valid returns true for a recognized edit type.
func (t EditType) Valid() bool {
	switch t {
	case EditCreate, EditModify, EditDelete, EditRename:
		return true
	default:
		return false
	}
}

// ValidationType identifies a class of check run against an edit.
type ValidationType string

const (
	// ValidationSyntax is an in-process parse check. A syntax failure
	// blocks apply for the file unless the caller skips validation.
	ValidationSyntax ValidationType = "syntax"

	// ValidationLint is an external linter run. Advisory.
	ValidationLint ValidationType = "lint"

	// ValidationTypeCheck is an external type checker run. Advisory.
	ValidationTypeCheck ValidationType = "type"
)

// AllValidationTypes returns the validation types in execution order.
func AllValidationTypes() []ValidationType {
	return []ValidationType{ValidationSyntax, ValidationLint, ValidationTypeCheck}
}

// Valid returns true for a recognized validation type.
func (t ValidationType) Valid() bool {
	switch t {
	case ValidationSyntax, ValidationLint, ValidationTypeCheck:
		return true
	default:
		return false
	}
}

// ValidationStatus is the outcome of a single validation run.
type ValidationStatus string

const (
	// ValidationPass means the check succeeded.
	ValidationPass ValidationStatus = "pass"

	// ValidationFail means the check found authoritative problems.
	ValidationFail ValidationStatus = "fail"

	// ValidationWarning means the check found advisory problems.
	ValidationWarning ValidationStatus = "warning"

	// ValidationSkipped means no checker is configured for the language
	// and requested type, or a syntax failure suppressed the check.
	ValidationSkipped ValidationStatus = "skipped"
)

// EditValidation records the latest outcome of one (file, type) check.
//
// Records are latest-wins: re-validation supersedes prior outcomes for the
// same file and type.
type EditValidation struct {
	// FilePath is the file the check ran against.
	FilePath string `json:"file_path"`

	// Type is the validation type (syntax, lint, type).
	Type ValidationType `json:"validation_type"`

	// Status is the check outcome.
	Status ValidationStatus `json:"status"`

	// Message describes the outcome, including the failing tool if any.
	Message string `json:"message,omitempty"`

	// Line is the 1-based line of the first problem, 0 when unknown.
	Line int `json:"line,omitempty"`

	// Tool is the checker that produced this record.
	Tool string `json:"tool,omitempty"`
}

// RepoContext is the repository snapshot attached to a session.
//
// The pipeline reads file contents and language hints from it; everything
// else is pass-through for the provider prompt.
type RepoContext struct {
	// RepoPath is the repository working directory on disk.
	RepoPath string `json:"repo_path,omitempty"`

	// Files lists repository file paths relative to RepoPath.
	Files []string `json:"files,omitempty"`

	// FileContents maps a subset of Files to their contents.
	FileContents map[string]string `json:"file_contents,omitempty"`

	// Language is the dominant repository language hint.
	Language string `json:"language,omitempty"`

	// Framework is the framework hint (e.g., "gin", "fastapi").
	Framework string `json:"framework,omitempty"`

	// Additional carries free-form caller context.
	Additional string `json:"additional_context,omitempty"`
}

// IsEmpty returns true when the context carries no usable information.
func (rc RepoContext) IsEmpty() bool {
	return rc.RepoPath == "" && len(rc.Files) == 0 && len(rc.FileContents) == 0
}

// Content returns the recorded content for a path, if present.
func (rc RepoContext) Content(path string) (string, bool) {
	if rc.FileContents == nil {
		return "", false
	}
	content, ok := rc.FileContents[path]
	return content, ok
}

// SessionSnapshot is the externally visible state of a session.
type SessionSnapshot struct {
	// ID is the session identifier.
	ID string `json:"session_id"`

	// Status is the current state machine status.
	Status SessionStatus `json:"status"`

	// Prompt is the original user prompt.
	Prompt string `json:"prompt"`

	// Provider is the LLM provider name used for planning.
	Provider string `json:"llm_provider"`

	// Model is the model identifier used for planning.
	Model string `json:"llm_model"`

	// DryRun indicates the session refuses apply.
	DryRun bool `json:"dry_run"`

	// EditCount is the number of edits in the plan.
	EditCount int `json:"edit_count"`

	// AppliedCount is the number of edits written to disk.
	AppliedCount int `json:"applied_count"`

	// ValidationStatus summarizes the last validation run (pass, fail,
	// warning), empty if validation has not run.
	ValidationStatus string `json:"validation_status,omitempty"`

	// FormattingStatus summarizes the last formatting run, empty if
	// formatting has not run.
	FormattingStatus string `json:"formatting_status,omitempty"`

	// TestStatus is the last test run status (passed, failed, timeout,
	// error), empty if tests have not run.
	TestStatus string `json:"test_status,omitempty"`

	// LastError is the error that moved the session to failed, if any.
	LastError string `json:"last_error,omitempty"`

	// CreatedAt is when the session was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the session was last mutated.
	UpdatedAt time.Time `json:"updated_at"`
}

// TestOutcome records the result of the most recent test run for a session.
type TestOutcome struct {
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

	// CoveragePercent is the parsed coverage percentage, nil when
	// coverage was not requested or not parseable.
	CoveragePercent *float64 `json:"coverage_percent,omitempty"`

	// Output is the captured (possibly truncated) tool output.
	Output string `json:"output"`
}
