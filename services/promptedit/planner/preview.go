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

	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/Kodiak/pkg/telemetry"
	"github.com/AleutianAI/Kodiak/services/promptedit/diffutil"
)

// PreviewFile is one file's rendered diff.
type PreviewFile struct {
	// FilePath is the repository-relative path the diff describes. For
	// renames two entries appear, one per path.
	FilePath string `json:"file_path"`

	// EditType is the edit that produced this diff.
	EditType EditType `json:"edit_type"`

	// Description is the provider's description of the edit.
	Description string `json:"description,omitempty"`

	// Diff is the unified diff text. Empty when nothing changed.
	Diff string `json:"diff"`

	// Additions and Deletions count changed lines in this diff.
	Additions int `json:"additions"`
	Deletions int `json:"deletions"`
}

// PreviewReport is the rendered diff preview for a session.
type PreviewReport struct {
	// SessionID identifies the previewed session.
	SessionID string `json:"session_id"`

	// Status is the session status at render time.
	Status SessionStatus `json:"status"`

	// Files are the per-file diffs in plan order.
	Files []PreviewFile `json:"files"`

	// Additions and Deletions are the totals across all files.
	Additions int `json:"total_additions"`
	Deletions int `json:"total_deletions"`
}

// Preview renders unified diffs for every edit in the session's plan.
//
// Description:
//
//	Modify edits diff original against proposed content. Create edits
//	diff from empty, delete edits diff to empty, so line counts reflect
//	the real change size. Rename edits render as a removal at the old
//	path and a creation at the new one (a single empty entry when the
//	content is unchanged). Rendering is read-only: it never mutates the
//	session and runs concurrently with stage execution.
//
// Inputs:
//
//	ctx - Carries the trace span
//	sessionID - The session to preview
//
// Outputs:
//
//	*PreviewReport - Per-file diffs and aggregate line counts
//	error - ErrSessionNotFound or a diff rendering failure
//
// Thread Safety: This method is safe for concurrent use.
func (p *Planner) Preview(ctx context.Context, sessionID string) (report *PreviewReport, err error) {
	_, span := plannerTracer.Start(ctx, "planner.Preview")
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()
	span.SetAttributes(attribute.String("session_id", sessionID))

	sess, err := p.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	report = &PreviewReport{SessionID: sess.ID, Status: sess.GetStatus()}
	for _, edit := range sess.CopyEdits() {
		diffs, err := previewDiffs(&edit)
		if err != nil {
			return nil, err
		}
		for _, d := range diffs {
			report.Files = append(report.Files, PreviewFile{
				FilePath:    d.FilePath,
				EditType:    edit.EditType,
				Description: edit.Description,
				Diff:        d.Text,
				Additions:   d.Additions,
				Deletions:   d.Deletions,
			})
			report.Additions += d.Additions
			report.Deletions += d.Deletions
		}
	}

	span.SetAttributes(
		attribute.Int("file_count", len(report.Files)),
		attribute.Int("additions", report.Additions),
		attribute.Int("deletions", report.Deletions),
	)
	return report, nil
}

// previewDiffs renders the diff entries for one edit.
func previewDiffs(edit *CodeEdit) ([]*diffutil.FileDiff, error) {
	switch edit.EditType {
	case EditModify:
		d, err := diffutil.Unified(edit.FilePath, edit.Original(), edit.Proposed())
		if err != nil {
			return nil, err
		}
		return []*diffutil.FileDiff{d}, nil
	case EditCreate:
		d, err := diffutil.Unified(edit.FilePath, "", edit.Proposed())
		if err != nil {
			return nil, err
		}
		return []*diffutil.FileDiff{d}, nil
	case EditDelete:
		d, err := diffutil.Unified(edit.FilePath, edit.Original(), "")
		if err != nil {
			return nil, err
		}
		return []*diffutil.FileDiff{d}, nil
	case EditRename:
		return diffutil.Rename(edit.OldPath, edit.FilePath, edit.Original(), edit.Proposed())
	default:
		return nil, fmt.Errorf("unknown edit type %q for %s", edit.EditType, edit.FilePath)
	}
}
