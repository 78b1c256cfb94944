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

// pipelineToApplied drives a single-file session through validate and
// apply, returning its id and the repo root.
func pipelineToApplied(t *testing.T, p *Planner) (string, string) {
	t.Helper()

	id, root := submitModifyPlan(t, p, map[string]string{"app.py": "x = 1\n"})
	if _, err := p.Validate(context.Background(), id, nil); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	report, err := p.Apply(context.Background(), id, ApplyRequest{})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if report.Status != "applied" {
		t.Fatalf("Apply() status = %q, want applied (errors: %v)", report.Status, report.Errors)
	}
	return id, root
}

// =============================================================================
// Validate
// =============================================================================

func TestValidate_CleanPlanPasses(t *testing.T) {
	p := newTestPlanner(t)
	id, _ := submitModifyPlan(t, p, map[string]string{"app.py": "x = 1\n"})

	report, err := p.Validate(context.Background(), id, nil)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if report.Status != "pass" {
		t.Errorf("overall status = %q, want pass", report.Status)
	}
	if report.Passed != 1 || report.Failed != 0 {
		t.Errorf("passed/failed = %d/%d, want 1/0", report.Passed, report.Failed)
	}
	if report.Skipped != 2 {
		t.Errorf("skipped = %d, want 2 for unconfigured lint and type checks", report.Skipped)
	}
	if len(report.Results) != 3 {
		t.Errorf("result count = %d, want 3", len(report.Results))
	}

	snap, err := p.Status(context.Background(), id)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if snap.Status != StatusValidated {
		t.Errorf("session status = %v, want %v", snap.Status, StatusValidated)
	}
	if snap.ValidationStatus != "pass" {
		t.Errorf("validation summary = %q, want pass", snap.ValidationStatus)
	}
}

func TestValidate_SyntaxErrorFailsFileButAdvances(t *testing.T) {
	root := seedRepo(t, map[string]string{"bad.py": "x = 1\n"})
	plan := &provider.EditPlan{
		Summary: "break the file",
		Edits: []provider.ProposedEdit{{
			FilePath: "bad.py",
			EditType: "modify",
			Content:  strPtr("def broken(:\n    pass\n"),
		}},
	}
	p, id := submitScripted(t, plan, RepoContext{
		RepoPath:     root,
		Files:        []string{"bad.py"},
		FileContents: map[string]string{"bad.py": "x = 1\n"},
	})

	report, err := p.Validate(context.Background(), id, nil)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if report.Status != "fail" {
		t.Errorf("overall status = %q, want fail", report.Status)
	}
	if report.Failed != 1 {
		t.Errorf("failed = %d, want 1", report.Failed)
	}
	// The syntax failure suppresses the file's remaining checks.
	if report.Skipped != 2 {
		t.Errorf("skipped = %d, want 2", report.Skipped)
	}

	// Validation findings surface in the report, never as stage errors.
	snap, _ := p.Status(context.Background(), id)
	if snap.Status != StatusValidated {
		t.Errorf("session status = %v, want %v", snap.Status, StatusValidated)
	}
	if snap.ValidationStatus != "fail" {
		t.Errorf("validation summary = %q, want fail", snap.ValidationStatus)
	}

	sess, _ := p.store.Get(id)
	if !sess.SyntaxFailed("bad.py") {
		t.Error("SyntaxFailed(bad.py) = false, want true")
	}
}

func TestValidate_UnknownTypeRejected(t *testing.T) {
	p := newTestPlanner(t)
	id, _ := submitModifyPlan(t, p, map[string]string{"app.py": "x = 1\n"})

	_, err := p.Validate(context.Background(), id, []ValidationType{"spelling"})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("Validate() error = %v, want ErrInvalidRequest", err)
	}

	// The rejected request leaves the session where it was.
	snap, _ := p.Status(context.Background(), id)
	if snap.Status != StatusPlanGenerated {
		t.Errorf("session status = %v, want %v", snap.Status, StatusPlanGenerated)
	}
}

func TestValidate_BeforePlanRejected(t *testing.T) {
	p := newTestPlanner(t)
	sess, err := NewSession("stale", RepoContext{})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.store.Put(sess); err != nil {
		t.Fatal(err)
	}

	_, err = p.Validate(context.Background(), sess.ID, nil)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Validate() error = %v, want ErrInvalidTransition", err)
	}
}

func TestValidate_RerunAfterFormatKeepsStatus(t *testing.T) {
	p := newTestPlanner(t)
	id, _ := submitModifyPlan(t, p, map[string]string{"app.py": "x = 1\n"})

	if _, err := p.Validate(context.Background(), id, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Format(context.Background(), id, nil, nil); err != nil {
		t.Fatal(err)
	}

	// Re-validation recomputes results without moving the session back.
	report, err := p.Validate(context.Background(), id, nil)
	if err != nil {
		t.Fatalf("Validate() re-run error = %v", err)
	}
	if report.Status != "pass" {
		t.Errorf("re-run status = %q, want pass", report.Status)
	}

	snap, _ := p.Status(context.Background(), id)
	if snap.Status != StatusFormatted {
		t.Errorf("session status = %v, want %v", snap.Status, StatusFormatted)
	}
}

func TestValidate_DeleteOnlyPlanPasses(t *testing.T) {
	plan := &provider.EditPlan{
		Summary: "remove the module",
		Edits: []provider.ProposedEdit{{
			FilePath: "gone.py",
			EditType: "delete",
		}},
	}
	p, id := submitScripted(t, plan, RepoContext{
		FileContents: map[string]string{"gone.py": "x = 1\n"},
	})

	report, err := p.Validate(context.Background(), id, nil)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	// Deletions have no content to check.
	if len(report.Results) != 0 {
		t.Errorf("result count = %d, want 0", len(report.Results))
	}
	if report.Status != "pass" {
		t.Errorf("overall status = %q, want pass", report.Status)
	}

	snap, _ := p.Status(context.Background(), id)
	if snap.Status != StatusValidated {
		t.Errorf("session status = %v, want %v", snap.Status, StatusValidated)
	}
}

// =============================================================================
// Format
// =============================================================================

func TestFormat_BeforeValidateRejected(t *testing.T) {
	p := newTestPlanner(t)
	id, _ := submitModifyPlan(t, p, map[string]string{"app.py": "x = 1\n"})

	_, err := p.Format(context.Background(), id, nil, nil)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Format() error = %v, want ErrInvalidTransition", err)
	}
}

func TestFormat_NoFormatterSkipsButAdvances(t *testing.T) {
	p := newTestPlanner(t)
	id, _ := submitModifyPlan(t, p, map[string]string{"app.py": "x = 1\n"})
	if _, err := p.Validate(context.Background(), id, nil); err != nil {
		t.Fatal(err)
	}

	report, err := p.Format(context.Background(), id, nil, nil)
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}

	if report.Status != "skipped" {
		t.Errorf("overall status = %q, want skipped", report.Status)
	}
	if report.Changed != 0 {
		t.Errorf("changed = %d, want 0", report.Changed)
	}
	if len(report.Outcomes) != 1 || report.Outcomes[0].Status != "skipped" {
		t.Errorf("outcomes = %+v, want one skipped entry", report.Outcomes)
	}

	snap, _ := p.Status(context.Background(), id)
	if snap.Status != StatusFormatted {
		t.Errorf("session status = %v, want %v", snap.Status, StatusFormatted)
	}
	if snap.FormattingStatus != "skipped" {
		t.Errorf("formatting summary = %q, want skipped", snap.FormattingStatus)
	}
}

func TestFormat_RewritesProposedContent(t *testing.T) {
	reg := customRegistry(t, formatterTools)
	p := NewPlanner(reg, WithLogger(quietLogger()))
	id, _ := submitModifyPlan(t, p, map[string]string{"app.py": "x = 1\n"})
	if _, err := p.Validate(context.Background(), id, nil); err != nil {
		t.Fatal(err)
	}

	report, err := p.Format(context.Background(), id, nil, nil)
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}

	if report.Status != "success" {
		t.Fatalf("overall status = %q, want success (outcomes: %+v)", report.Status, report.Outcomes)
	}
	if report.Changed != 1 {
		t.Errorf("changed = %d, want 1", report.Changed)
	}
	outcome := report.Outcomes[0]
	if outcome.Formatter != "rewriter" || !outcome.Changed {
		t.Errorf("outcome = %+v, want rewriter with changes", outcome)
	}

	// The rewritten body replaces the proposed content in place.
	sess, _ := p.store.Get(id)
	edit := sess.EditForPath("app.py")
	if edit.Proposed() != "formatted\n" {
		t.Errorf("proposed = %q, want %q", edit.Proposed(), "formatted\n")
	}
	if !edit.Formatted {
		t.Error("Formatted = false, want true")
	}
}

func TestFormat_UnknownPathReportsFailed(t *testing.T) {
	p := newTestPlanner(t)
	id, _ := submitModifyPlan(t, p, map[string]string{"app.py": "x = 1\n"})
	if _, err := p.Validate(context.Background(), id, nil); err != nil {
		t.Fatal(err)
	}

	report, err := p.Format(context.Background(), id, []string{"nope.py"}, nil)
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}

	if report.Status != "failed" {
		t.Errorf("overall status = %q, want failed", report.Status)
	}
	if len(report.Outcomes) != 1 {
		t.Fatalf("outcome count = %d, want 1", len(report.Outcomes))
	}
	if report.Outcomes[0].FilePath != "nope.py" || report.Outcomes[0].Status != "failed" {
		t.Errorf("outcome = %+v, want a failed entry for nope.py", report.Outcomes[0])
	}
	if !strings.Contains(report.Outcomes[0].Message, "no edit") {
		t.Errorf("message = %q, want it to name the missing edit", report.Outcomes[0].Message)
	}
}

func TestFormat_DeleteEditSkipped(t *testing.T) {
	plan := &provider.EditPlan{
		Summary: "remove the module",
		Edits: []provider.ProposedEdit{{
			FilePath: "gone.py",
			EditType: "delete",
		}},
	}
	p, id := submitScripted(t, plan, RepoContext{
		FileContents: map[string]string{"gone.py": "x = 1\n"},
	})
	if _, err := p.Validate(context.Background(), id, nil); err != nil {
		t.Fatal(err)
	}

	report, err := p.Format(context.Background(), id, nil, nil)
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}

	if len(report.Outcomes) != 1 || report.Outcomes[0].Status != "skipped" {
		t.Fatalf("outcomes = %+v, want one skipped entry", report.Outcomes)
	}
	if !strings.Contains(report.Outcomes[0].Message, "delete") {
		t.Errorf("message = %q, want the delete skip reason", report.Outcomes[0].Message)
	}
}

// =============================================================================
// Test
// =============================================================================

func TestTest_RecordsPassingRun(t *testing.T) {
	p := newTestPlanner(t)
	id, _ := pipelineToApplied(t, p)

	outcome, err := p.Test(context.Background(), id, TestRequest{
		Command: "echo '=== 2 passed, 1 skipped in 0.10s ==='",
	})
	if err != nil {
		t.Fatalf("Test() error = %v", err)
	}

	if outcome.Status != "passed" {
		t.Errorf("status = %q, want passed (output: %s)", outcome.Status, outcome.Output)
	}
	if outcome.Passed != 2 || outcome.Skipped != 1 {
		t.Errorf("passed/skipped = %d/%d, want 2/1", outcome.Passed, outcome.Skipped)
	}

	snap, _ := p.Status(context.Background(), id)
	if snap.Status != StatusTested {
		t.Errorf("session status = %v, want %v", snap.Status, StatusTested)
	}
	if snap.TestStatus != "passed" {
		t.Errorf("test summary = %q, want passed", snap.TestStatus)
	}
}

func TestTest_FailingRunStillAdvances(t *testing.T) {
	p := newTestPlanner(t)
	id, _ := pipelineToApplied(t, p)

	outcome, err := p.Test(context.Background(), id, TestRequest{
		Command: "sh -c 'echo === 1 failed in 0.10s ===; exit 1'",
	})
	if err != nil {
		t.Fatalf("Test() error = %v", err)
	}

	// A failing suite is an outcome, not a stage error.
	if outcome.Status != "failed" {
		t.Errorf("status = %q, want failed (output: %s)", outcome.Status, outcome.Output)
	}
	if outcome.Failed != 1 {
		t.Errorf("failed = %d, want 1", outcome.Failed)
	}

	snap, _ := p.Status(context.Background(), id)
	if snap.Status != StatusTested {
		t.Errorf("session status = %v, want %v", snap.Status, StatusTested)
	}
}

func TestTest_BeforeApplyRejected(t *testing.T) {
	p := newTestPlanner(t)
	id, _ := submitModifyPlan(t, p, map[string]string{"app.py": "x = 1\n"})
	if _, err := p.Validate(context.Background(), id, nil); err != nil {
		t.Fatal(err)
	}

	_, err := p.Test(context.Background(), id, TestRequest{Command: "true"})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Test() error = %v, want ErrInvalidTransition", err)
	}
}

func TestTest_InvalidCommandRejected(t *testing.T) {
	p := newTestPlanner(t)
	id, _ := pipelineToApplied(t, p)

	_, err := p.Test(context.Background(), id, TestRequest{Command: "echo 'unterminated"})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("Test() error = %v, want ErrInvalidRequest", err)
	}

	// The bad request leaves the session applied.
	snap, _ := p.Status(context.Background(), id)
	if snap.Status != StatusApplied {
		t.Errorf("session status = %v, want %v", snap.Status, StatusApplied)
	}
}
