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
	"errors"
	"testing"
)

func TestNewSession(t *testing.T) {
	sess, err := NewSession("rename the helpers", RepoContext{})
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}

	if sess.ID == "" {
		t.Error("ID is empty, want a generated id")
	}
	if got := sess.GetStatus(); got != StatusPending {
		t.Errorf("status = %v, want %v", got, StatusPending)
	}
	if sess.Edits == nil || len(sess.Edits) != 0 {
		t.Errorf("edits = %v, want an empty plan", sess.Edits)
	}
	if sess.CreatedAt.IsZero() || sess.UpdatedAt.IsZero() {
		t.Error("timestamps are zero, want them set")
	}
}

func TestNewSession_EmptyPrompt(t *testing.T) {
	_, err := NewSession("", RepoContext{})
	if !errors.Is(err, ErrEmptyPrompt) {
		t.Fatalf("NewSession() error = %v, want ErrEmptyPrompt", err)
	}
}

func TestCodeEdit_CheckInvariants(t *testing.T) {
	tests := []struct {
		name    string
		edit    CodeEdit
		wantErr bool
	}{
		{
			name:    "missing file path",
			edit:    CodeEdit{EditType: EditCreate, ProposedContent: strPtr("x = 1\n")},
			wantErr: true,
		},
		{
			name:    "unknown edit type",
			edit:    CodeEdit{FilePath: "a.py", EditType: EditType("overwrite")},
			wantErr: true,
		},
		{
			name:    "valid create",
			edit:    CodeEdit{FilePath: "a.py", EditType: EditCreate, ProposedContent: strPtr("x = 1\n")},
			wantErr: false,
		},
		{
			name: "create with original content",
			edit: CodeEdit{
				FilePath:        "a.py",
				EditType:        EditCreate,
				OriginalContent: strPtr("x = 1\n"),
				ProposedContent: strPtr("y = 2\n"),
			},
			wantErr: true,
		},
		{
			name:    "create without proposed content",
			edit:    CodeEdit{FilePath: "a.py", EditType: EditCreate},
			wantErr: true,
		},
		{
			name: "valid modify",
			edit: CodeEdit{
				FilePath:        "a.py",
				EditType:        EditModify,
				OriginalContent: strPtr("x = 1\n"),
				ProposedContent: strPtr("x = 2\n"),
			},
			wantErr: false,
		},
		{
			name:    "modify without original content",
			edit:    CodeEdit{FilePath: "a.py", EditType: EditModify, ProposedContent: strPtr("x = 2\n")},
			wantErr: true,
		},
		{
			name: "modify proposing no change",
			edit: CodeEdit{
				FilePath:        "a.py",
				EditType:        EditModify,
				OriginalContent: strPtr("x = 1\n"),
				ProposedContent: strPtr("x = 1\n"),
			},
			wantErr: true,
		},
		{
			name:    "valid delete",
			edit:    CodeEdit{FilePath: "a.py", EditType: EditDelete, OriginalContent: strPtr("x = 1\n")},
			wantErr: false,
		},
		{
			name:    "delete with proposed content",
			edit:    CodeEdit{FilePath: "a.py", EditType: EditDelete, ProposedContent: strPtr("x = 1\n")},
			wantErr: true,
		},
		{
			name: "valid rename",
			edit: CodeEdit{
				FilePath:        "b.py",
				EditType:        EditRename,
				OldPath:         "a.py",
				ProposedContent: strPtr("x = 1\n"),
			},
			wantErr: false,
		},
		{
			name:    "rename without old path",
			edit:    CodeEdit{FilePath: "b.py", EditType: EditRename, ProposedContent: strPtr("x = 1\n")},
			wantErr: true,
		},
		{
			name:    "rename without proposed content",
			edit:    CodeEdit{FilePath: "b.py", EditType: EditRename, OldPath: "a.py"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.edit.CheckInvariants()
			if (err != nil) != tt.wantErr {
				t.Errorf("CheckInvariants() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSession_TryAcquire(t *testing.T) {
	sess, err := NewSession("rework the parser", RepoContext{})
	if err != nil {
		t.Fatal(err)
	}

	if !sess.TryAcquire() {
		t.Fatal("first TryAcquire() = false, want true")
	}
	if sess.TryAcquire() {
		t.Error("second TryAcquire() = true, want false while held")
	}

	sess.Release()
	if !sess.TryAcquire() {
		t.Error("TryAcquire() after Release() = false, want true")
	}
}

func TestSession_Fail(t *testing.T) {
	sess, err := NewSession("rework the parser", RepoContext{})
	if err != nil {
		t.Fatal(err)
	}

	sess.Fail("provider meltdown")

	if got := sess.GetStatus(); got != StatusFailed {
		t.Errorf("status = %v, want %v", got, StatusFailed)
	}
	if !sess.IsTerminal() {
		t.Error("IsTerminal() = false, want true")
	}
	if sess.Snapshot().LastError != "provider meltdown" {
		t.Errorf("last error = %q, want the failure reason", sess.Snapshot().LastError)
	}
}

func TestSession_RecordValidations_LatestWins(t *testing.T) {
	sess, err := NewSession("clean up imports", RepoContext{})
	if err != nil {
		t.Fatal(err)
	}

	sess.RecordValidations([]EditValidation{
		{FilePath: "a.py", Type: ValidationSyntax, Status: ValidationFail, Message: "invalid syntax"},
		{FilePath: "a.py", Type: ValidationLint, Status: ValidationSkipped},
	})
	if !sess.SyntaxFailed("a.py") {
		t.Fatal("SyntaxFailed(a.py) = false after a fail record, want true")
	}

	// A later run supersedes the earlier record for the same pair.
	sess.RecordValidations([]EditValidation{
		{FilePath: "a.py", Type: ValidationSyntax, Status: ValidationPass},
	})

	records := sess.GetValidations()
	if len(records) != 2 {
		t.Fatalf("record count = %d, want 2", len(records))
	}
	for _, record := range records {
		if record.Type == ValidationSyntax && record.Status != ValidationPass {
			t.Errorf("syntax record status = %v, want %v", record.Status, ValidationPass)
		}
	}
	if sess.SyntaxFailed("a.py") {
		t.Error("SyntaxFailed(a.py) = true after a pass record, want false")
	}
}

func TestSession_SyntaxFailed_UnknownPath(t *testing.T) {
	sess, err := NewSession("clean up imports", RepoContext{})
	if err != nil {
		t.Fatal(err)
	}
	if sess.SyntaxFailed("never-validated.py") {
		t.Error("SyntaxFailed() = true with no records, want false")
	}
}

func TestSession_ApplyFormat(t *testing.T) {
	sess, err := NewSession("format the module", RepoContext{})
	if err != nil {
		t.Fatal(err)
	}
	sess.SetPlan([]*CodeEdit{{
		SessionID:       sess.ID,
		FilePath:        "a.py",
		EditType:        EditModify,
		OriginalContent: strPtr("x=1\n"),
		ProposedContent: strPtr("x =1\n"),
	}}, "plan")

	t.Run("unchanged run flips the flag only", func(t *testing.T) {
		sess.ApplyFormat("a.py", "", false)

		edit := sess.EditForPath("a.py")
		if !edit.Formatted {
			t.Error("Formatted = false, want true")
		}
		if edit.Proposed() != "x =1\n" {
			t.Errorf("proposed = %q, want the original proposal", edit.Proposed())
		}
	})

	t.Run("changed run installs the rewrite", func(t *testing.T) {
		sess.ApplyFormat("a.py", "x = 1\n", true)

		edit := sess.EditForPath("a.py")
		if edit.Proposed() != "x = 1\n" {
			t.Errorf("proposed = %q, want the formatter output", edit.Proposed())
		}
	})
}

func TestSession_CopyEdits_ObservesContentAtCopyTime(t *testing.T) {
	sess, err := NewSession("format the module", RepoContext{})
	if err != nil {
		t.Fatal(err)
	}
	sess.SetPlan([]*CodeEdit{{
		SessionID:       sess.ID,
		FilePath:        "a.py",
		EditType:        EditModify,
		OriginalContent: strPtr("x=1\n"),
		ProposedContent: strPtr("x =1\n"),
	}}, "plan")

	before := sess.CopyEdits()
	sess.ApplyFormat("a.py", "x = 1\n", true)

	// Mutations install a fresh pointer, so the copy keeps the content
	// it was taken with.
	if before[0].Proposed() != "x =1\n" {
		t.Errorf("copy proposed = %q, want the pre-format content", before[0].Proposed())
	}
	if sess.EditForPath("a.py").Proposed() != "x = 1\n" {
		t.Errorf("live proposed = %q, want the formatter output", sess.EditForPath("a.py").Proposed())
	}
}

func TestSession_Snapshot(t *testing.T) {
	sess, err := NewSession("apply the plan", RepoContext{})
	if err != nil {
		t.Fatal(err)
	}
	sess.Provider = "mock"
	sess.Model = "mock-model"
	sess.SetPlan([]*CodeEdit{
		{SessionID: sess.ID, FilePath: "a.py", EditType: EditCreate, ProposedContent: strPtr("x = 1\n")},
		{SessionID: sess.ID, FilePath: "b.py", EditType: EditCreate, ProposedContent: strPtr("y = 2\n")},
	}, "plan")
	sess.MarkApplied("a.py")

	snap := sess.Snapshot()
	if snap.ID != sess.ID {
		t.Errorf("id = %q, want %q", snap.ID, sess.ID)
	}
	if snap.EditCount != 2 {
		t.Errorf("edit count = %d, want 2", snap.EditCount)
	}
	if snap.AppliedCount != 1 {
		t.Errorf("applied count = %d, want 1", snap.AppliedCount)
	}
	if snap.Provider != "mock" || snap.Model != "mock-model" {
		t.Errorf("provider/model = %q/%q, want mock/mock-model", snap.Provider, snap.Model)
	}
}
