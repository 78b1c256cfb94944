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
	"fmt"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/Kodiak/pkg/telemetry"
	"github.com/AleutianAI/Kodiak/services/promptedit/format"
)

const (
	applyFileMode os.FileMode = 0644
	applyDirMode  os.FileMode = 0755
)

// ApplyRequest configures one apply run.
type ApplyRequest struct {
	// FilePaths narrows the apply to these paths. Empty applies the
	// whole plan.
	FilePaths []string

	// SkipValidation disables the syntax-failure gate.
	SkipValidation bool

	// AutoFormat formats each file after it is written to disk.
	AutoFormat bool
}

// ApplyReport summarizes one apply run.
type ApplyReport struct {
	// SessionID identifies the applied session.
	SessionID string `json:"session_id"`

	// Status is applied, partially_applied, or failed.
	Status string `json:"status"`

	// Applied lists files written (or removed) successfully.
	Applied []string `json:"applied_files"`

	// Failed lists files that were not applied.
	Failed []string `json:"failed_files"`

	// Errors maps each failed file to its reason.
	Errors map[string]string `json:"errors,omitempty"`
}

// reject records one failed file with its reason.
func (r *ApplyReport) reject(path, reason string) {
	r.Failed = append(r.Failed, path)
	if r.Errors == nil {
		r.Errors = make(map[string]string)
	}
	r.Errors[path] = reason
}

// Apply writes the session's edits to the repository working tree.
//
// Description:
//
//	Each selected edit is applied independently in plan order: a
//	conflict or write failure on one file never rolls back or blocks
//	the others. Modify and rename edits are refused when the on-disk
//	content no longer matches the recorded original; create edits are
//	refused when the file already exists; deleting an already-absent
//	file succeeds. Edits whose file failed syntax validation are
//	skipped unless SkipValidation is set. Dry-run sessions are refused
//	outright. The session advances to applied after the run even when
//	some files failed; the report carries the per-file breakdown.
//
// Inputs:
//
//	ctx - Bounds optional post-apply formatting
//	sessionID - The session to apply
//	req - Path filter and gate switches
//
// Outputs:
//
//	*ApplyReport - Per-file results and the overall status
//	error - Lookup, serialization, stage-eligibility, dry-run, or
//	        repository-path errors
func (p *Planner) Apply(ctx context.Context, sessionID string, req ApplyRequest) (report *ApplyReport, err error) {
	ctx, span := plannerTracer.Start(ctx, "planner.Apply")
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()
	span.SetAttributes(
		attribute.String("session_id", sessionID),
		attribute.Bool("skip_validation", req.SkipValidation),
		attribute.Bool("auto_format", req.AutoFormat),
	)

	sess, err := p.acquire(sessionID)
	if err != nil {
		return nil, err
	}
	defer sess.Release()
	defer p.guardStage(sess, "apply", &err)

	if sess.DryRun {
		return nil, fmt.Errorf("%w: %s", ErrDryRunApply, sessionID)
	}
	if err := p.requireStage(sess, StatusApplied); err != nil {
		return nil, err
	}
	edits := sess.GetEdits()
	if len(edits) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoEdits, sessionID)
	}
	root, err := p.repoRoot(sess)
	if err != nil {
		return nil, err
	}

	report = &ApplyReport{SessionID: sess.ID}
	selected, missing := selectEdits(edits, req.FilePaths)
	for _, path := range missing {
		report.reject(path, "session has no edit for this path")
	}

	for _, edit := range selected {
		if !req.SkipValidation && sess.SyntaxFailed(edit.FilePath) {
			report.reject(edit.FilePath, "blocked by syntax validation failure")
			continue
		}
		if reason := applyEdit(root, edit); reason != "" {
			report.reject(edit.FilePath, reason)
			continue
		}
		sess.MarkApplied(edit.FilePath)
		report.Applied = append(report.Applied, edit.FilePath)

		if req.AutoFormat && edit.EditType != EditDelete {
			p.formatApplied(ctx, sess, root, edit)
		}
	}

	switch {
	case len(report.Failed) == 0 && len(report.Applied) > 0:
		report.Status = "applied"
	case len(report.Applied) > 0:
		report.Status = "partially_applied"
	default:
		report.Status = "failed"
	}

	p.advance(sess, StatusApplied)
	p.persist(sess)

	span.SetAttributes(attribute.String("status", report.Status))
	p.logger.Info("Apply completed",
		"session_id", sess.ID,
		"status", report.Status,
		"applied", len(report.Applied),
		"failed", len(report.Failed))
	return report, nil
}

// =============================================================================
// Per-edit application
// =============================================================================

// applyEdit applies one edit under root. An empty return means success;
// a non-empty return is the human-readable failure reason.
func applyEdit(root string, edit *CodeEdit) string {
	target, err := resolveRepoPath(root, edit.FilePath)
	if err != nil {
		return err.Error()
	}

	switch edit.EditType {
	case EditDelete:
		return applyDelete(target)
	case EditCreate:
		return applyCreate(target, edit)
	case EditModify:
		return applyModify(target, edit)
	case EditRename:
		source, err := resolveRepoPath(root, edit.OldPath)
		if err != nil {
			return err.Error()
		}
		return applyRename(source, target, edit)
	default:
		return fmt.Sprintf("unknown edit type %q", edit.EditType)
	}
}

// applyDelete removes the file. A file already absent is success: the
// desired end state holds.
func applyDelete(target string) string {
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return fmt.Sprintf("removing file: %v", err)
	}
	return ""
}

// applyCreate writes a new file, refusing to clobber an existing one.
func applyCreate(target string, edit *CodeEdit) string {
	if _, err := os.Stat(target); err == nil {
		return "file already exists on disk"
	}
	return writeFileMkdir(target, edit.Proposed())
}

// applyModify rewrites an existing file after checking it still matches
// the original the plan was built against.
func applyModify(target string, edit *CodeEdit) string {
	current, err := os.ReadFile(target)
	if os.IsNotExist(err) {
		return "file no longer exists on disk"
	}
	if err != nil {
		return fmt.Sprintf("reading file: %v", err)
	}
	if string(current) != edit.Original() {
		return "file changed on disk since the plan was generated"
	}
	return writeFileMkdir(target, edit.Proposed())
}

// applyRename writes the content at the new path and removes the old
// one. The conflict check runs only when the plan recorded an original.
func applyRename(source, target string, edit *CodeEdit) string {
	if edit.OriginalContent != nil {
		current, err := os.ReadFile(source)
		if err == nil && string(current) != edit.Original() {
			return "file changed on disk since the plan was generated"
		}
	}
	if reason := writeFileMkdir(target, edit.Proposed()); reason != "" {
		return reason
	}
	if err := os.Remove(source); err != nil && !os.IsNotExist(err) {
		return fmt.Sprintf("removing old path: %v", err)
	}
	return ""
}

// writeFileMkdir writes content to target, creating parent directories.
func writeFileMkdir(target, content string) string {
	if err := os.MkdirAll(filepath.Dir(target), applyDirMode); err != nil {
		return fmt.Sprintf("creating directories: %v", err)
	}
	if err := os.WriteFile(target, []byte(content), applyFileMode); err != nil {
		return fmt.Sprintf("writing file: %v", err)
	}
	return ""
}

// formatApplied formats an already-written file and rewrites it on disk
// when the formatter changed it. Failures only log: the unformatted
// content is already applied and correct.
func (p *Planner) formatApplied(ctx context.Context, sess *EditSession, root string, edit *CodeEdit) {
	outcome := p.formatter.FormatFile(ctx, edit.FilePath, edit.Proposed(), nil)
	if outcome.Status != format.StatusSuccess {
		return
	}
	sess.ApplyFormat(edit.FilePath, outcome.Content, outcome.Changed)
	if !outcome.Changed {
		return
	}

	target, err := resolveRepoPath(root, edit.FilePath)
	if err != nil {
		return
	}
	if err := os.WriteFile(target, []byte(outcome.Content), applyFileMode); err != nil {
		p.logger.Warn("Rewriting formatted file failed",
			"session_id", sess.ID,
			"file_path", edit.FilePath,
			"error", err)
	}
}
