// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package planner

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// CodeEdit is one planned file modification within a session.
//
// Content fields are pointers because absence is meaningful: a create has
// no original content and a delete has no proposed content.
type CodeEdit struct {
	// SessionID is the owning session.
	SessionID string `json:"session_id"`

	// FilePath is the target path relative to the repository root. For
	// renames this is the new path.
	FilePath string `json:"file_path"`

	// OldPath is the pre-rename path. Set only for rename edits.
	OldPath string `json:"old_path,omitempty"`

	// EditType is create, modify, delete, or rename.
	EditType EditType `json:"edit_type"`

	// Description is the provider's human-readable rationale.
	Description string `json:"description,omitempty"`

	// OriginalContent is the content at plan time, nil for create.
	OriginalContent *string `json:"original_content,omitempty"`

	// ProposedContent is the content to write, nil for delete.
	ProposedContent *string `json:"proposed_content,omitempty"`

	// Applied flips to true once the edit is written to disk.
	Applied bool `json:"applied"`

	// Validated flips to true once validation passes with no failures.
	Validated bool `json:"validated"`

	// Formatted flips to true once a formatter has run over the content.
	Formatted bool `json:"formatted"`
}

// CheckInvariants verifies the content rules for the edit type.
//
// Description:
//
//	Enforces the plan-construction invariants: modify requires both
//	contents present and differing, create forbids original content,
//	delete forbids proposed content, rename requires an old path.
//
// Outputs:
//
//	error - Non-nil describing the first violated invariant
func (e *CodeEdit) CheckInvariants() error {
	if e.FilePath == "" {
		return fmt.Errorf("edit has no file path")
	}
	if !e.EditType.Valid() {
		return fmt.Errorf("unknown edit type %q for %s", e.EditType, e.FilePath)
	}

	switch e.EditType {
	case EditCreate:
		if e.OriginalContent != nil {
			return fmt.Errorf("create edit for %s must not carry original content", e.FilePath)
		}
		if e.ProposedContent == nil {
			return fmt.Errorf("create edit for %s must carry proposed content", e.FilePath)
		}
	case EditModify:
		if e.OriginalContent == nil || e.ProposedContent == nil {
			return fmt.Errorf("modify edit for %s must carry original and proposed content", e.FilePath)
		}
		if *e.OriginalContent == *e.ProposedContent {
			return fmt.Errorf("modify edit for %s proposes no change", e.FilePath)
		}
	case EditDelete:
		if e.ProposedContent != nil {
			return fmt.Errorf("delete edit for %s must not carry proposed content", e.FilePath)
		}
	case EditRename:
		if e.OldPath == "" {
			return fmt.Errorf("rename edit for %s must carry the old path", e.FilePath)
		}
		if e.ProposedContent == nil {
			return fmt.Errorf("rename edit for %s must carry proposed content", e.FilePath)
		}
	}
	return nil
}

// Original returns the original content, empty string when absent.
func (e *CodeEdit) Original() string {
	if e.OriginalContent == nil {
		return ""
	}
	return *e.OriginalContent
}

// Proposed returns the proposed content, empty string when absent.
func (e *CodeEdit) Proposed() string {
	if e.ProposedContent == nil {
		return ""
	}
	return *e.ProposedContent
}

// EditSession is one prompt submission and its pipeline state.
//
// Thread Safety:
//
//	EditSession uses internal synchronization for state access. Mutations
//	beyond status and bookkeeping fields are performed only by the planner
//	while holding the session via TryAcquire.
type EditSession struct {
	mu sync.RWMutex

	// ID is the unique session identifier.
	ID string `json:"session_id"`

	// Prompt is the original user instruction.
	Prompt string `json:"prompt"`

	// RepoContext is the repository snapshot at submit time.
	RepoContext RepoContext `json:"repo_context"`

	// TargetFiles optionally narrows which files the provider may edit.
	TargetFiles []string `json:"target_files,omitempty"`

	// Status is the current state machine status.
	Status SessionStatus `json:"status"`

	// Provider is the LLM provider name used for planning.
	Provider string `json:"llm_provider"`

	// Model is the model identifier used for planning.
	Model string `json:"llm_model"`

	// DryRun indicates the session refuses apply.
	DryRun bool `json:"dry_run"`

	// Edits is the generated plan in provider order.
	Edits []*CodeEdit `json:"edits"`

	// Validations holds the latest validation records, latest-wins per
	// (file, type) pair.
	Validations []EditValidation `json:"validations,omitempty"`

	// Summary is the provider's plan summary.
	Summary string `json:"summary,omitempty"`

	// ValidationStatus summarizes the last validation run.
	ValidationStatus string `json:"validation_status,omitempty"`

	// FormattingStatus summarizes the last formatting run.
	FormattingStatus string `json:"formatting_status,omitempty"`

	// TestStatus is the last test run status.
	TestStatus string `json:"test_status,omitempty"`

	// LastTest is the most recent test outcome.
	LastTest *TestOutcome `json:"last_test,omitempty"`

	// LastError preserves the error that moved the session to failed, or
	// the most recent submit-time provider error.
	LastError string `json:"last_error,omitempty"`

	// CreatedAt is when the session was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the session was last mutated.
	UpdatedAt time.Time `json:"updated_at"`

	// inProgress indicates if a mutating operation is currently running.
	inProgress bool
}

// NewSession creates a session in pending status for a prompt submission.
//
// Inputs:
//
//	prompt - The user instruction, must not be empty
//	repoContext - Repository snapshot, may be zero-valued
//
// Outputs:
//
//	*EditSession - The new session
//	error - ErrEmptyPrompt if the prompt is blank
func NewSession(prompt string, repoContext RepoContext) (*EditSession, error) {
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}

	now := time.Now()
	return &EditSession{
		ID:          uuid.NewString(),
		Prompt:      prompt,
		RepoContext: repoContext,
		Status:      StatusPending,
		Edits:       make([]*CodeEdit, 0),
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// GetStatus returns the current session status.
//
// Thread Safety: This method is safe for concurrent use.
func (s *EditSession) GetStatus() SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Status
}

// SetStatus updates the session status.
//
// Thread Safety: This method is safe for concurrent use.
func (s *EditSession) SetStatus(status SessionStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Status = status
	s.UpdatedAt = time.Now()
}

// Fail moves the session to failed and preserves the triggering error.
//
// Thread Safety: This method is safe for concurrent use.
func (s *EditSession) Fail(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Status = StatusFailed
	s.LastError = reason
	s.UpdatedAt = time.Now()
}

// SetError records an error without changing status. Used for submit-time
// provider failures where the session stays pending.
//
// Thread Safety: This method is safe for concurrent use.
func (s *EditSession) SetError(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastError = reason
	s.UpdatedAt = time.Now()
}

// TryAcquire attempts to acquire the session for a mutating operation.
//
// Returns false if another operation is in progress. Unrelated sessions
// stay concurrent; the serialization is per session, not global.
//
// Thread Safety: This method is safe for concurrent use.
func (s *EditSession) TryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inProgress {
		return false
	}
	s.inProgress = true
	s.UpdatedAt = time.Now()
	return true
}

// Release releases the session after a mutating operation.
//
// Thread Safety: This method is safe for concurrent use.
func (s *EditSession) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inProgress = false
	s.UpdatedAt = time.Now()
}

// IsTerminal returns true if the session is in a terminal status.
//
// Thread Safety: This method is safe for concurrent use.
func (s *EditSession) IsTerminal() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Status.IsTerminal()
}

// SetPlan installs the generated edits and summary.
//
// Thread Safety: This method is safe for concurrent use.
func (s *EditSession) SetPlan(edits []*CodeEdit, summary string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Edits = edits
	s.Summary = summary
	s.UpdatedAt = time.Now()
}

// GetEdits returns the plan slice. The slice is copied; the edits are
// shared pointers mutated only by the planner under the session acquire.
//
// Thread Safety: This method is safe for concurrent use.
func (s *EditSession) GetEdits() []*CodeEdit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	edits := make([]*CodeEdit, len(s.Edits))
	copy(edits, s.Edits)
	return edits
}

// EditForPath returns the edit targeting the given path, or nil.
//
// Thread Safety: This method is safe for concurrent use.
func (s *EditSession) EditForPath(path string) *CodeEdit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, edit := range s.Edits {
		if edit.FilePath == path {
			return edit
		}
	}
	return nil
}

// CopyEdits returns value copies of the plan for read-only callers.
//
// Content pointers are shared between the copy and the live edit, but
// mutations always install a fresh pointer, so a copy keeps observing
// the content it was taken with.
//
// Thread Safety: This method is safe for concurrent use.
func (s *EditSession) CopyEdits() []CodeEdit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	edits := make([]CodeEdit, len(s.Edits))
	for i, edit := range s.Edits {
		edits[i] = *edit
	}
	return edits
}

// ApplyFormat records a formatter run over a path, installing the
// rewritten content when the formatter changed it.
//
// Thread Safety: This method is safe for concurrent use.
func (s *EditSession) ApplyFormat(path, content string, changed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, edit := range s.Edits {
		if edit.FilePath != path {
			continue
		}
		if changed {
			c := content
			edit.ProposedContent = &c
		}
		edit.Formatted = true
		break
	}
	s.UpdatedAt = time.Now()
}

// MarkApplied flips the applied flag for a path.
//
// Thread Safety: This method is safe for concurrent use.
func (s *EditSession) MarkApplied(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, edit := range s.Edits {
		if edit.FilePath == path {
			edit.Applied = true
			break
		}
	}
	s.UpdatedAt = time.Now()
}

// MarkValidated records whether the latest validation run succeeded for
// a path. Re-validation overwrites the flag in either direction.
//
// Thread Safety: This method is safe for concurrent use.
func (s *EditSession) MarkValidated(path string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, edit := range s.Edits {
		if edit.FilePath == path {
			edit.Validated = ok
			break
		}
	}
	s.UpdatedAt = time.Now()
}

// SetValidationSummary records the overall outcome of the last validation run.
//
// Thread Safety: This method is safe for concurrent use.
func (s *EditSession) SetValidationSummary(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ValidationStatus = status
	s.UpdatedAt = time.Now()
}

// SetFormattingSummary records the overall outcome of the last formatting run.
//
// Thread Safety: This method is safe for concurrent use.
func (s *EditSession) SetFormattingSummary(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FormattingStatus = status
	s.UpdatedAt = time.Now()
}

// SetTestOutcome records the latest test run and its status.
//
// Thread Safety: This method is safe for concurrent use.
func (s *EditSession) SetTestOutcome(outcome *TestOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastTest = outcome
	s.TestStatus = outcome.Status
	s.UpdatedAt = time.Now()
}

// RecordValidations merges validation records latest-wins.
//
// Description:
//
//	Replaces any existing record with the same (file, type) pair and
//	appends the rest, so re-validation supersedes earlier outcomes while
//	untouched records survive.
//
// Thread Safety: This method is safe for concurrent use.
func (s *EditSession) RecordValidations(records []EditValidation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, record := range records {
		replaced := false
		for i := range s.Validations {
			if s.Validations[i].FilePath == record.FilePath && s.Validations[i].Type == record.Type {
				s.Validations[i] = record
				replaced = true
				break
			}
		}
		if !replaced {
			s.Validations = append(s.Validations, record)
		}
	}
	s.UpdatedAt = time.Now()
}

// GetValidations returns a copy of the latest validation records.
//
// Thread Safety: This method is safe for concurrent use.
func (s *EditSession) GetValidations() []EditValidation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := make([]EditValidation, len(s.Validations))
	copy(records, s.Validations)
	return records
}

// SyntaxFailed reports whether the latest syntax record for the path is a
// failure. Syntax failures block apply unless the caller skips validation.
//
// Thread Safety: This method is safe for concurrent use.
func (s *EditSession) SyntaxFailed(path string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, record := range s.Validations {
		if record.FilePath == path && record.Type == ValidationSyntax {
			return record.Status == ValidationFail
		}
	}
	return false
}

// Snapshot converts the session to its externally visible state.
//
// Thread Safety: This method is safe for concurrent use.
func (s *EditSession) Snapshot() *SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	applied := 0
	for _, edit := range s.Edits {
		if edit.Applied {
			applied++
		}
	}

	return &SessionSnapshot{
		ID:               s.ID,
		Status:           s.Status,
		Prompt:           s.Prompt,
		Provider:         s.Provider,
		Model:            s.Model,
		DryRun:           s.DryRun,
		EditCount:        len(s.Edits),
		AppliedCount:     applied,
		ValidationStatus: s.ValidationStatus,
		FormattingStatus: s.FormattingStatus,
		TestStatus:       s.TestStatus,
		LastError:        s.LastError,
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
	}
}
