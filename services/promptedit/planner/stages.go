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
	"github.com/AleutianAI/Kodiak/services/promptedit/format"
	"github.com/AleutianAI/Kodiak/services/promptedit/testrun"
	"github.com/AleutianAI/Kodiak/services/promptedit/validate"
)

// =============================================================================
// Validate
// =============================================================================

// ValidationReport aggregates one validation run.
type ValidationReport struct {
	// SessionID identifies the validated session.
	SessionID string `json:"session_id"`

	// Status is the overall outcome: fail beats warning beats pass.
	Status string `json:"overall_status"`

	// Results are the per-(file, type) records from this run.
	Results []EditValidation `json:"results"`

	// Passed, Failed, Warnings, and Skipped count the records by status.
	Passed   int `json:"passed"`
	Failed   int `json:"failed"`
	Warnings int `json:"warnings"`
	Skipped  int `json:"skipped"`
}

// Validate runs the validation pipeline over the session's plan.
//
// Description:
//
//	Every non-delete edit is checked for the requested types (all three
//	when none are given); rename edits are checked under their new path.
//	Results are recorded latest-wins on the session, per-file validated
//	flags are set to "no failures this run", and the session advances
//	plan_generated -> validated regardless of individual outcomes.
//
// Inputs:
//
//	ctx - Bounds external tool execution
//	sessionID - The session to validate
//	types - Requested validation types; empty means all
//
// Outputs:
//
//	*ValidationReport - Per-file results and aggregate counts
//	error - Lookup, serialization, or stage-eligibility errors
func (p *Planner) Validate(ctx context.Context, sessionID string, types []ValidationType) (report *ValidationReport, err error) {
	ctx, span := plannerTracer.Start(ctx, "planner.Validate")
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()
	span.SetAttributes(attribute.String("session_id", sessionID))

	sess, err := p.acquire(sessionID)
	if err != nil {
		return nil, err
	}
	defer sess.Release()
	defer p.guardStage(sess, "validate", &err)

	if err := p.requireStage(sess, StatusValidated); err != nil {
		return nil, err
	}
	edits := sess.GetEdits()
	if len(edits) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoEdits, sessionID)
	}

	if len(types) == 0 {
		types = AllValidationTypes()
	}
	checkTypes, err := toCheckTypes(types)
	if err != nil {
		return nil, err
	}

	checks := make([]validate.FileCheck, 0, len(edits))
	for _, edit := range edits {
		if edit.EditType == EditDelete {
			// Nothing to check on a deletion.
			continue
		}
		checks = append(checks, validate.FileCheck{
			FilePath: edit.FilePath,
			Content:  edit.Proposed(),
			Types:    checkTypes,
		})
	}

	results := p.validator.ValidateAll(ctx, checks)
	records := toValidationRecords(results)
	sess.RecordValidations(records)

	report = &ValidationReport{SessionID: sess.ID, Results: records}
	failedPaths := make(map[string]bool)
	for _, record := range records {
		switch record.Status {
		case ValidationPass:
			report.Passed++
		case ValidationFail:
			report.Failed++
			failedPaths[record.FilePath] = true
		case ValidationWarning:
			report.Warnings++
		case ValidationSkipped:
			report.Skipped++
		}
	}
	for _, check := range checks {
		sess.MarkValidated(check.FilePath, !failedPaths[check.FilePath])
	}

	switch {
	case report.Failed > 0:
		report.Status = "fail"
	case report.Warnings > 0:
		report.Status = "warning"
	default:
		report.Status = "pass"
	}
	sess.SetValidationSummary(report.Status)

	p.advance(sess, StatusValidated)
	p.persist(sess)

	span.SetAttributes(attribute.String("status", report.Status))
	p.logger.Info("Validation completed",
		"session_id", sess.ID,
		"status", report.Status,
		"passed", report.Passed,
		"failed", report.Failed,
		"warnings", report.Warnings,
		"skipped", report.Skipped)
	return report, nil
}

// toCheckTypes converts API validation types to pipeline check types.
func toCheckTypes(types []ValidationType) ([]validate.CheckType, error) {
	out := make([]validate.CheckType, 0, len(types))
	for _, t := range types {
		if !t.Valid() {
			return nil, fmt.Errorf("%w: unknown validation type %q", ErrInvalidRequest, t)
		}
		out = append(out, validate.CheckType(t))
	}
	return out, nil
}

// toValidationRecords converts pipeline results to session records.
func toValidationRecords(results []validate.Result) []EditValidation {
	records := make([]EditValidation, len(results))
	for i, r := range results {
		records[i] = EditValidation{
			FilePath: r.FilePath,
			Type:     ValidationType(r.Type),
			Status:   ValidationStatus(r.Status),
			Message:  r.Message,
			Line:     r.Line,
			Tool:     r.Tool,
		}
	}
	return records
}

// =============================================================================
// Format
// =============================================================================

// FormatOutcome reports formatting for one file.
type FormatOutcome struct {
	// FilePath is the file the formatter ran against.
	FilePath string `json:"file_path"`

	// Formatter is the tool that ran, empty when none did.
	Formatter string `json:"formatter,omitempty"`

	// Status is success, skipped, or failed.
	Status string `json:"status"`

	// Changed reports whether formatting rewrote the content.
	Changed bool `json:"changes_made"`

	// Message describes skips and failures.
	Message string `json:"message,omitempty"`
}

// FormatReport aggregates one formatting run.
type FormatReport struct {
	// SessionID identifies the formatted session.
	SessionID string `json:"session_id"`

	// Status is the overall outcome: failed beats success beats skipped.
	Status string `json:"status"`

	// Outcomes are the per-file results in plan order.
	Outcomes []FormatOutcome `json:"results"`

	// Changed counts files whose content the formatter rewrote.
	Changed int `json:"total_changed"`
}

// Format runs the formatting pipeline over the session's plan.
//
// Description:
//
//	Every selected non-delete edit is formatted with the first available
//	formatter from the requested list (registry defaults when the list
//	is empty). Rewritten content replaces the edit's proposed content in
//	place. Missing formatters degrade to skipped outcomes; the session
//	advances validated -> formatted regardless.
//
// Inputs:
//
//	ctx - Bounds formatter execution
//	sessionID - The session to format
//	filePaths - Optional path filter; empty selects the whole plan
//	formatters - Requested formatter names in priority order
//
// Outputs:
//
//	*FormatReport - Per-file outcomes and aggregate counts
//	error - Lookup, serialization, or stage-eligibility errors
func (p *Planner) Format(ctx context.Context, sessionID string, filePaths, formatters []string) (report *FormatReport, err error) {
	ctx, span := plannerTracer.Start(ctx, "planner.Format")
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()
	span.SetAttributes(attribute.String("session_id", sessionID))

	sess, err := p.acquire(sessionID)
	if err != nil {
		return nil, err
	}
	defer sess.Release()
	defer p.guardStage(sess, "format", &err)

	if err := p.requireStage(sess, StatusFormatted); err != nil {
		return nil, err
	}
	edits := sess.GetEdits()
	if len(edits) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoEdits, sessionID)
	}

	report = &FormatReport{SessionID: sess.ID}
	selected, missing := selectEdits(edits, filePaths)
	for _, path := range missing {
		report.Outcomes = append(report.Outcomes, FormatOutcome{
			FilePath: path,
			Status:   string(format.StatusFailed),
			Message:  "session has no edit for this path",
		})
	}

	for _, edit := range selected {
		if edit.EditType == EditDelete {
			report.Outcomes = append(report.Outcomes, FormatOutcome{
				FilePath: edit.FilePath,
				Status:   string(format.StatusSkipped),
				Message:  "delete edits have no content to format",
			})
			continue
		}

		outcome := p.formatter.FormatFile(ctx, edit.FilePath, edit.Proposed(), formatters)
		if outcome.Status == format.StatusSuccess {
			sess.ApplyFormat(edit.FilePath, outcome.Content, outcome.Changed)
			if outcome.Changed {
				report.Changed++
			}
		}
		report.Outcomes = append(report.Outcomes, FormatOutcome{
			FilePath:  edit.FilePath,
			Formatter: outcome.Formatter,
			Status:    string(outcome.Status),
			Changed:   outcome.Changed,
			Message:   outcome.Message,
		})
	}

	report.Status = overallFormatStatus(report.Outcomes)
	sess.SetFormattingSummary(report.Status)

	p.advance(sess, StatusFormatted)
	p.persist(sess)

	span.SetAttributes(attribute.String("status", report.Status))
	p.logger.Info("Formatting completed",
		"session_id", sess.ID,
		"status", report.Status,
		"changed", report.Changed,
		"file_count", len(report.Outcomes))
	return report, nil
}

// overallFormatStatus folds per-file outcomes into one summary string.
func overallFormatStatus(outcomes []FormatOutcome) string {
	anySuccess := false
	for _, outcome := range outcomes {
		switch outcome.Status {
		case string(format.StatusFailed):
			return string(format.StatusFailed)
		case string(format.StatusSuccess):
			anySuccess = true
		}
	}
	if anySuccess {
		return string(format.StatusSuccess)
	}
	return string(format.StatusSkipped)
}

// selectEdits narrows the plan to the requested paths, preserving plan
// order. With no requested paths the whole plan is selected. Requested
// paths with no matching edit are returned separately, in request order.
func selectEdits(edits []*CodeEdit, filePaths []string) (selected []*CodeEdit, missing []string) {
	if len(filePaths) == 0 {
		return edits, nil
	}

	requested := make(map[string]bool, len(filePaths))
	for _, path := range filePaths {
		requested[path] = true
	}
	for _, edit := range edits {
		if requested[edit.FilePath] {
			selected = append(selected, edit)
			delete(requested, edit.FilePath)
		}
	}
	for _, path := range filePaths {
		if requested[path] {
			missing = append(missing, path)
			delete(requested, path)
		}
	}
	return selected, missing
}

// =============================================================================
// Test
// =============================================================================

// TestRequest configures one test run.
type TestRequest struct {
	// Command overrides the registry default test command.
	Command string

	// Paths are test paths appended to the command.
	Paths []string

	// Coverage enables the coverage command variant and extraction.
	Coverage bool
}

// Test runs the session's test suite in the repository root.
//
// Description:
//
//	The command defaults from the repository language when the request
//	does not supply one. Timeouts and execution failures are terminal
//	result statuses (timeout, error), never raised errors. The outcome
//	is recorded on the session and the session advances
//	applied -> tested regardless of the result.
//
// Outputs:
//
//	*TestOutcome - Parsed counts, status, duration, and output
//	error - Lookup, serialization, stage-eligibility, or
//	        ErrInvalidRequest for an unparseable custom command
func (p *Planner) Test(ctx context.Context, sessionID string, req TestRequest) (outcome *TestOutcome, err error) {
	ctx, span := plannerTracer.Start(ctx, "planner.Test")
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()
	span.SetAttributes(
		attribute.String("session_id", sessionID),
		attribute.Bool("coverage", req.Coverage),
	)

	sess, err := p.acquire(sessionID)
	if err != nil {
		return nil, err
	}
	defer sess.Release()
	defer p.guardStage(sess, "test", &err)

	if err := p.requireStage(sess, StatusTested); err != nil {
		return nil, err
	}
	root, err := p.repoRoot(sess)
	if err != nil {
		return nil, err
	}

	runner := testrun.NewRunner(root, p.registry,
		testrun.WithTimeout(p.testTimeout),
		testrun.WithLogger(p.logger))
	result, err := runner.Run(ctx, testrun.Spec{
		Command:  req.Command,
		Paths:    req.Paths,
		Coverage: req.Coverage,
		Language: sess.RepoContext.Language,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	outcome = &TestOutcome{
		Status:          string(result.Status),
		Passed:          result.Passed,
		Failed:          result.Failed,
		Skipped:         result.Skipped,
		DurationMs:      result.Duration.Milliseconds(),
		CoveragePercent: result.CoveragePercent,
		Output:          result.Output,
	}
	sess.SetTestOutcome(outcome)

	p.advance(sess, StatusTested)
	p.persist(sess)

	span.SetAttributes(attribute.String("status", outcome.Status))
	p.logger.Info("Test run recorded",
		"session_id", sess.ID,
		"status", outcome.Status,
		"passed", outcome.Passed,
		"failed", outcome.Failed,
		"duration_ms", outcome.DurationMs)
	return outcome, nil
}
