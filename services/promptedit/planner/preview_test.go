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
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/AleutianAI/Kodiak/services/promptedit/provider"
)

func TestPreview_ModifyShowsUnifiedDiff(t *testing.T) {
	p := newTestPlanner(t)
	id, _ := submitModifyPlan(t, p, map[string]string{"app.py": "print('hello')\n"})

	report, err := p.Preview(context.Background(), id)
	if err != nil {
		t.Fatalf("Preview() error = %v", err)
	}

	if report.Status != StatusPlanGenerated {
		t.Errorf("status = %v, want %v", report.Status, StatusPlanGenerated)
	}
	if len(report.Files) != 1 {
		t.Fatalf("file count = %d, want 1", len(report.Files))
	}

	f := report.Files[0]
	if f.FilePath != "app.py" || f.EditType != EditModify {
		t.Errorf("entry = %s/%s, want app.py/%s", f.FilePath, f.EditType, EditModify)
	}
	for _, want := range []string{"--- original/app.py", "+++ modified/app.py", "-print('hello')"} {
		if !strings.Contains(f.Diff, want) {
			t.Errorf("diff missing %q:\n%s", want, f.Diff)
		}
	}
	if f.Additions != 4 || f.Deletions != 1 {
		t.Errorf("additions/deletions = %d/%d, want 4/1", f.Additions, f.Deletions)
	}
	if report.Additions != 4 || report.Deletions != 1 {
		t.Errorf("totals = %d/%d, want 4/1", report.Additions, report.Deletions)
	}
}

func TestPreview_CreateCountsAdditions(t *testing.T) {
	p := newTestPlanner(t)
	res, err := p.Submit(context.Background(), SubmitRequest{Prompt: "add an example module"})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if len(res.Edits) != 1 {
		t.Fatalf("edit count = %d, want 1", len(res.Edits))
	}
	proposed := res.Edits[0].Proposed()

	report, err := p.Preview(context.Background(), res.SessionID)
	if err != nil {
		t.Fatalf("Preview() error = %v", err)
	}

	f := report.Files[0]
	if f.EditType != EditCreate {
		t.Errorf("edit type = %s, want %s", f.EditType, EditCreate)
	}
	// A creation is pure additions, one per proposed line.
	if want := strings.Count(proposed, "\n"); f.Additions != want {
		t.Errorf("additions = %d, want %d", f.Additions, want)
	}
	if f.Deletions != 0 {
		t.Errorf("deletions = %d, want 0", f.Deletions)
	}
	if !strings.Contains(f.Diff, "+++ modified/"+f.FilePath) {
		t.Errorf("diff missing the modified label:\n%s", f.Diff)
	}
}

func TestPreview_DeleteCountsDeletions(t *testing.T) {
	plan := &provider.EditPlan{
		Summary: "remove the module",
		Edits: []provider.ProposedEdit{{
			FilePath: "gone.py",
			EditType: "delete",
		}},
	}
	p, id := submitScripted(t, plan, RepoContext{
		FileContents: map[string]string{"gone.py": "a = 1\nb = 2\nc = 3\n"},
	})

	report, err := p.Preview(context.Background(), id)
	if err != nil {
		t.Fatalf("Preview() error = %v", err)
	}

	f := report.Files[0]
	if f.EditType != EditDelete {
		t.Errorf("edit type = %s, want %s", f.EditType, EditDelete)
	}
	if f.Additions != 0 || f.Deletions != 3 {
		t.Errorf("additions/deletions = %d/%d, want 0/3", f.Additions, f.Deletions)
	}
	if !strings.Contains(f.Diff, "-a = 1") {
		t.Errorf("diff missing the removed line:\n%s", f.Diff)
	}
}

func TestPreview_RenameEntries(t *testing.T) {
	submitRename := func(t *testing.T, content string) (*Planner, string) {
		t.Helper()
		plan := &provider.EditPlan{
			Summary: "rename the module",
			Edits: []provider.ProposedEdit{{
				FilePath: "new.py",
				EditType: "rename",
				OldPath:  "old.py",
				Content:  strPtr(content),
			}},
		}
		return submitScripted(t, plan, RepoContext{
			FileContents: map[string]string{"old.py": "x = 1\n"},
		})
	}

	t.Run("content_changed", func(t *testing.T) {
		p, id := submitRename(t, "y = 2\n")

		report, err := p.Preview(context.Background(), id)
		if err != nil {
			t.Fatalf("Preview() error = %v", err)
		}

		// A content-changing rename previews as a removal at the old
		// path and an addition at the new one.
		if len(report.Files) != 2 {
			t.Fatalf("file count = %d, want 2", len(report.Files))
		}
		oldHalf, newHalf := report.Files[0], report.Files[1]
		if oldHalf.FilePath != "old.py" || oldHalf.Deletions != 1 || oldHalf.Additions != 0 {
			t.Errorf("old half = %s %d/%d, want old.py 0/1", oldHalf.FilePath, oldHalf.Additions, oldHalf.Deletions)
		}
		if newHalf.FilePath != "new.py" || newHalf.Additions != 1 || newHalf.Deletions != 0 {
			t.Errorf("new half = %s %d/%d, want new.py 1/0", newHalf.FilePath, newHalf.Additions, newHalf.Deletions)
		}
		if oldHalf.EditType != EditRename || newHalf.EditType != EditRename {
			t.Errorf("edit types = %s/%s, want both %s", oldHalf.EditType, newHalf.EditType, EditRename)
		}
		if report.Additions != 1 || report.Deletions != 1 {
			t.Errorf("totals = %d/%d, want 1/1", report.Additions, report.Deletions)
		}
	})

	t.Run("pure_move", func(t *testing.T) {
		p, id := submitRename(t, "x = 1\n")

		report, err := p.Preview(context.Background(), id)
		if err != nil {
			t.Fatalf("Preview() error = %v", err)
		}

		// An unchanged body previews as a single entry with no hunks.
		if len(report.Files) != 1 {
			t.Fatalf("file count = %d, want 1", len(report.Files))
		}
		f := report.Files[0]
		if f.FilePath != "new.py" {
			t.Errorf("file path = %s, want new.py", f.FilePath)
		}
		if f.Diff != "" || f.Additions != 0 || f.Deletions != 0 {
			t.Errorf("entry = %d/%d with diff %q, want an empty diff", f.Additions, f.Deletions, f.Diff)
		}
	})
}

func TestPreview_AfterApplyReflectsStatus(t *testing.T) {
	p := newTestPlanner(t)
	id, _ := pipelineToApplied(t, p)

	report, err := p.Preview(context.Background(), id)
	if err != nil {
		t.Fatalf("Preview() error = %v", err)
	}
	if report.Status != StatusApplied {
		t.Errorf("status = %v, want %v", report.Status, StatusApplied)
	}
}

func TestPreview_UnknownSession(t *testing.T) {
	p := newTestPlanner(t)

	_, err := p.Preview(context.Background(), "ffffffff-0000-0000-0000-000000000000")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("Preview() error = %v, want ErrSessionNotFound", err)
	}
}
