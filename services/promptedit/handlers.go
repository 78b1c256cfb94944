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
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/AleutianAI/Kodiak/pkg/telemetry"
	"github.com/AleutianAI/Kodiak/services/promptedit/planner"
	"github.com/AleutianAI/Kodiak/services/promptedit/provider"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handlers contains the HTTP handlers for the prompt edit service.
//
// Thread Safety: Handlers is safe for concurrent use.
type Handlers struct {
	svc *Service
}

// NewHandlers creates handlers for the prompt edit service.
//
// Inputs:
//
//	svc - The prompt edit service. Must not be nil.
//
// Outputs:
//
//	*Handlers - The configured handlers.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

// getOrCreateRequestID gets or creates a request ID.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}

// requestLogger builds the request-scoped logger: request id, handler
// name, and the trace ids when a span is active on the request context.
func requestLogger(c *gin.Context, handler string) *slog.Logger {
	requestID := getOrCreateRequestID(c)
	return telemetry.LoggerWithTrace(c.Request.Context(), slog.Default()).
		With("request_id", requestID, "handler", handler)
}

// statusForError maps a planner error to an HTTP status and error code.
func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, planner.ErrSessionNotFound):
		return http.StatusNotFound, "SESSION_NOT_FOUND"
	case errors.Is(err, planner.ErrSessionBusy):
		return http.StatusConflict, "SESSION_BUSY"
	case errors.Is(err, planner.ErrInvalidTransition):
		return http.StatusConflict, "INVALID_TRANSITION"
	case errors.Is(err, planner.ErrSessionTerminal):
		return http.StatusUnprocessableEntity, "SESSION_TERMINAL"
	case errors.Is(err, planner.ErrDryRunApply):
		return http.StatusUnprocessableEntity, "DRY_RUN_SESSION"
	case errors.Is(err, planner.ErrNoEdits):
		return http.StatusUnprocessableEntity, "NO_EDITS"
	case errors.Is(err, planner.ErrNoRepoPath):
		return http.StatusUnprocessableEntity, "NO_REPO_PATH"
	case errors.Is(err, planner.ErrEmptyPrompt):
		return http.StatusBadRequest, "EMPTY_PROMPT"
	case errors.Is(err, planner.ErrInvalidRequest):
		return http.StatusBadRequest, "INVALID_REQUEST"
	case errors.Is(err, provider.ErrUnknownProvider):
		return http.StatusBadRequest, "UNKNOWN_PROVIDER"
	case errors.Is(err, planner.ErrProviderFailure):
		return http.StatusBadGateway, "PROVIDER_FAILURE"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

// respondPlannerError writes the mapped error response for a failed
// planner call.
func respondPlannerError(c *gin.Context, logger *slog.Logger, action string, err error) {
	statusCode, errCode := statusForError(err)
	if statusCode >= http.StatusInternalServerError {
		logger.Error(action+" failed", "error", err)
	} else {
		logger.Warn(action+" rejected", "error", err)
	}
	c.JSON(statusCode, ErrorResponse{
		Error: err.Error(),
		Code:  errCode,
	})
}

// providerLabel normalizes the provider name for metric labels.
func providerLabel(name string) string {
	if name == "" {
		return provider.ProviderMock
	}
	return name
}

// HandleSubmit handles POST /v1/prompt-edit/submit.
//
// Description:
//
//	Creates an edit session and asks the selected LLM provider for an
//	edit plan. Submissions that do not name a repository path pick up
//	the server's configured default, if any. On provider failure the
//	session is kept in the pending state and its id is returned in the
//	error body so the caller can inspect it before retrying.
//
// Request Body:
//
//	SubmitRequest
//
// Response:
//
//	200 OK: SubmitResponse (plan generated)
//	400 Bad Request: Empty prompt or unknown provider
//	502 Bad Gateway: Provider failed to produce a plan
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleSubmit(c *gin.Context) {
	logger := requestLogger(c, "HandleSubmit")

	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	if req.Prompt == "" {
		logger.Warn("Empty prompt")
		submitTotal.WithLabelValues(providerLabel(req.Provider), "rejected").Inc()
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Prompt is required",
			Code:  "EMPTY_PROMPT",
		})
		return
	}

	if req.RepoContext.RepoPath == "" {
		req.RepoContext.RepoPath = h.svc.DefaultRepoRoot()
	}

	logger.Info("Submitting prompt",
		"provider", providerLabel(req.Provider),
		"dry_run", req.DryRun,
		"prompt_len", len(req.Prompt),
		"target_files", len(req.TargetFiles))

	res, err := h.svc.Planner().Submit(c.Request.Context(), planner.SubmitRequest{
		Prompt:      req.Prompt,
		RepoContext: req.RepoContext,
		TargetFiles: req.TargetFiles,
		DryRun:      req.DryRun,
		Provider:    req.Provider,
		Model:       req.Model,
	})
	if err != nil {
		statusCode, errCode := statusForError(err)
		if errors.Is(err, planner.ErrProviderFailure) {
			// The session survives a provider failure; hand its id back
			// so the caller can check status or retry.
			submitTotal.WithLabelValues(providerLabel(req.Provider), "provider_error").Inc()
			logger.Error("Provider failed", "session_id", res.SessionID, "error", err)
			c.JSON(statusCode, ErrorResponse{
				Error:     err.Error(),
				Code:      errCode,
				SessionID: res.SessionID,
			})
			return
		}
		submitTotal.WithLabelValues(providerLabel(req.Provider), "rejected").Inc()
		logger.Warn("Submit rejected", "error", err)
		c.JSON(statusCode, ErrorResponse{
			Error: err.Error(),
			Code:  errCode,
		})
		return
	}

	submitTotal.WithLabelValues(providerLabel(req.Provider), "ok").Inc()
	logger.Info("Edit plan generated",
		"session_id", res.SessionID,
		"status", res.Status,
		"edit_count", len(res.Edits))

	message := fmt.Sprintf("Edit plan generated with %d file(s)", len(res.Edits))
	if req.DryRun {
		message += " (dry run)"
	}
	c.JSON(http.StatusOK, SubmitResponse{
		SessionID: res.SessionID,
		Status:    string(res.Status),
		Summary:   res.Summary,
		Edits:     res.Edits,
		Message:   message,
	})
}

// HandleStatus handles GET /v1/prompt-edit/:session_id/status.
//
// Description:
//
//	Returns a point-in-time snapshot of the session: status, edit and
//	applied counts, stage summaries, and the last error if any.
//
// Response:
//
//	200 OK: planner.SessionSnapshot
//	404 Not Found: Unknown session
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleStatus(c *gin.Context) {
	logger := requestLogger(c, "HandleStatus")

	sessionID := c.Param("session_id")
	snapshot, err := h.svc.Planner().Status(c.Request.Context(), sessionID)
	if err != nil {
		respondPlannerError(c, logger, "Status lookup", err)
		return
	}

	c.JSON(http.StatusOK, snapshot)
}

// HandlePreview handles GET /v1/prompt-edit/:session_id/preview.
//
// Description:
//
//	Renders unified diffs for every edit in the session's plan without
//	touching the repository. Create edits diff from empty and delete
//	edits diff to empty, so the line counts reflect the real change
//	size. Preview is read-only and valid in any non-failed state.
//
// Response:
//
//	200 OK: PreviewResponse
//	404 Not Found: Unknown session
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandlePreview(c *gin.Context) {
	logger := requestLogger(c, "HandlePreview")

	sessionID := c.Param("session_id")
	report, err := h.svc.Planner().Preview(c.Request.Context(), sessionID)
	if err != nil {
		respondPlannerError(c, logger, "Preview", err)
		return
	}

	files := make([]PreviewFileEntry, 0, len(report.Files))
	for _, f := range report.Files {
		files = append(files, PreviewFileEntry{
			FilePath:    f.FilePath,
			EditType:    string(f.EditType),
			Description: f.Description,
			Message:     previewMessage(f),
			Diff:        f.Diff,
			Additions:   f.Additions,
			Deletions:   f.Deletions,
		})
	}

	logger.Info("Preview rendered",
		"session_id", report.SessionID,
		"file_count", len(files),
		"additions", report.Additions,
		"deletions", report.Deletions)

	c.JSON(http.StatusOK, PreviewResponse{
		SessionID:      report.SessionID,
		Status:         string(report.Status),
		Files:          files,
		TotalAdditions: report.Additions,
		TotalDeletions: report.Deletions,
	})
}

// previewMessage names the pending action for non-modify edits.
func previewMessage(f planner.PreviewFile) string {
	switch f.EditType {
	case planner.EditCreate:
		return "File will be created: " + f.FilePath
	case planner.EditDelete:
		return "File will be deleted: " + f.FilePath
	case planner.EditRename:
		return "File will be renamed: " + f.FilePath
	default:
		return ""
	}
}

// HandleValidate handles POST /v1/prompt-edit/:session_id/validate.
//
// Description:
//
//	Runs the requested validation types (syntax, lint, type) against
//	the session's proposed content. Per-file failures are recorded in
//	the report; the session still advances so the caller can decide
//	whether to apply anyway.
//
// Request Body:
//
//	ValidateRequest
//
// Response:
//
//	200 OK: planner.ValidationReport
//	400 Bad Request: Unknown validation type
//	404 Not Found: Unknown session
//	409 Conflict: Session is not in a validatable state
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleValidate(c *gin.Context) {
	logger := requestLogger(c, "HandleValidate")

	var req ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	types := make([]planner.ValidationType, 0, len(req.ValidationTypes))
	for _, t := range req.ValidationTypes {
		types = append(types, planner.ValidationType(t))
	}

	sessionID := c.Param("session_id")
	start := time.Now()
	report, err := h.svc.Planner().Validate(c.Request.Context(), sessionID, types)
	observeStage("validate", start, err)
	if err != nil {
		respondPlannerError(c, logger, "Validation", err)
		return
	}

	logger.Info("Validation complete",
		"session_id", report.SessionID,
		"status", report.Status,
		"passed", report.Passed,
		"failed", report.Failed)

	c.JSON(http.StatusOK, report)
}

// HandleFormat handles POST /v1/prompt-edit/:session_id/format.
//
// Description:
//
//	Formats the session's proposed content in memory using the first
//	available formatter for each file's language. Files whose language
//	has no configured formatter are reported as skipped.
//
// Request Body:
//
//	FormatRequest
//
// Response:
//
//	200 OK: planner.FormatReport
//	404 Not Found: Unknown session
//	409 Conflict: Session has not been validated
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleFormat(c *gin.Context) {
	logger := requestLogger(c, "HandleFormat")

	var req FormatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	sessionID := c.Param("session_id")
	start := time.Now()
	report, err := h.svc.Planner().Format(c.Request.Context(), sessionID, req.FilePaths, req.Formatters)
	observeStage("format", start, err)
	if err != nil {
		respondPlannerError(c, logger, "Formatting", err)
		return
	}

	logger.Info("Formatting complete",
		"session_id", report.SessionID,
		"status", report.Status,
		"changed", report.Changed)

	c.JSON(http.StatusOK, report)
}

// HandleApply handles POST /v1/prompt-edit/:session_id/apply.
//
// Description:
//
//	Writes the session's edits to the repository working tree. Each
//	file is applied independently; a conflict on one file never rolls
//	back the others. Dry-run sessions are refused.
//
// Request Body:
//
//	ApplyRequest
//
// Response:
//
//	200 OK: ApplyResponse (inspect status for partial failures)
//	404 Not Found: Unknown session
//	409 Conflict: Session is not in an appliable state
//	422 Unprocessable Entity: Dry-run session or no repository path
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleApply(c *gin.Context) {
	logger := requestLogger(c, "HandleApply")

	var req ApplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	sessionID := c.Param("session_id")
	start := time.Now()
	report, err := h.svc.Planner().Apply(c.Request.Context(), sessionID, planner.ApplyRequest{
		FilePaths:      req.FilePaths,
		SkipValidation: req.SkipValidation,
		AutoFormat:     req.AutoFormat,
	})
	observeStage("apply", start, err)
	if err != nil {
		respondPlannerError(c, logger, "Apply", err)
		return
	}

	logger.Info("Apply complete",
		"session_id", report.SessionID,
		"status", report.Status,
		"applied", len(report.Applied),
		"failed", len(report.Failed))

	c.JSON(http.StatusOK, ApplyResponse{
		SessionID:    report.SessionID,
		Status:       report.Status,
		AppliedFiles: report.Applied,
		FailedFiles:  report.Failed,
		Errors:       report.Errors,
		Message:      applyMessage(report),
	})
}

// applyMessage summarizes an apply report in one line.
func applyMessage(report *planner.ApplyReport) string {
	total := len(report.Applied) + len(report.Failed)
	switch report.Status {
	case "applied":
		return fmt.Sprintf("Applied %d file(s)", len(report.Applied))
	case "partially_applied":
		return fmt.Sprintf("Applied %d of %d file(s)", len(report.Applied), total)
	default:
		return "No files were applied"
	}
}

// HandleTest handles POST /v1/prompt-edit/:session_id/test.
//
// Description:
//
//	Runs the repository's test suite after an apply. The command
//	defaults from the repository language when the request does not
//	supply one. A failing suite is a result, not an error: the
//	response carries status failed and the session still advances.
//
// Request Body:
//
//	TestRequest
//
// Response:
//
//	200 OK: TestResponse
//	400 Bad Request: Unparseable custom test command
//	404 Not Found: Unknown session
//	409 Conflict: Session has not been applied
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleTest(c *gin.Context) {
	logger := requestLogger(c, "HandleTest")

	var req TestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	sessionID := c.Param("session_id")
	start := time.Now()
	outcome, err := h.svc.Planner().Test(c.Request.Context(), sessionID, planner.TestRequest{
		Command:  req.TestCommand,
		Paths:    req.TestPaths,
		Coverage: req.Coverage,
	})
	observeStage("test", start, err)
	if err != nil {
		respondPlannerError(c, logger, "Test run", err)
		return
	}

	logger.Info("Test run complete",
		"session_id", sessionID,
		"status", outcome.Status,
		"passed", outcome.Passed,
		"failed", outcome.Failed,
		"duration_ms", outcome.DurationMs)

	c.JSON(http.StatusOK, TestResponse{
		SessionID:       sessionID,
		Status:          outcome.Status,
		Passed:          outcome.Passed,
		Failed:          outcome.Failed,
		Skipped:         outcome.Skipped,
		DurationMs:      outcome.DurationMs,
		CoveragePercent: outcome.CoveragePercent,
		Output:          outcome.Output,
	})
}

// HandleProviders handles GET /v1/prompt-edit/providers.
//
// Description:
//
//	Lists every registered LLM provider with its default model and
//	availability. Availability reflects configuration (for example a
//	missing API key), not a live connectivity check.
//
// Response:
//
//	200 OK: ProvidersResponse
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleProviders(c *gin.Context) {
	c.JSON(http.StatusOK, ProvidersResponse{
		Providers: h.svc.Planner().Providers(),
	})
}

// HandleHealth handles GET /v1/prompt-edit/health.
//
// Response:
//
//	200 OK: HealthResponse
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:   "healthy",
		Service:  "promptedit",
		Sessions: h.svc.SessionCount(),
	})
}
