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
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/Kodiak/pkg/telemetry"
	"github.com/AleutianAI/Kodiak/pkg/validation"
	"github.com/AleutianAI/Kodiak/services/promptedit/contextsnap"
	"github.com/AleutianAI/Kodiak/services/promptedit/format"
	"github.com/AleutianAI/Kodiak/services/promptedit/provider"
	"github.com/AleutianAI/Kodiak/services/promptedit/testrun"
	"github.com/AleutianAI/Kodiak/services/promptedit/tools"
	"github.com/AleutianAI/Kodiak/services/promptedit/validate"
)

var plannerTracer = otel.Tracer("kodiak.promptedit.planner")

// =============================================================================
// Planner
// =============================================================================

// Planner sequences the edit pipeline over stored sessions.
//
// Description:
//
//	The planner is the sole mutator of session and edit state. Each
//	stage call (Submit, Validate, Format, Apply, Test) claims the
//	session, runs the corresponding pipeline, records outcomes, and
//	advances the state machine when the stage's landing transition is
//	legal from the current status. Re-running a stage the session has
//	already passed recomputes that stage's results without a status
//	change.
//
// Thread Safety:
//
//	Planner is safe for concurrent use. At most one mutating stage runs
//	per session at a time; concurrent calls against a busy session fail
//	with ErrSessionBusy. Unrelated sessions proceed independently.
type Planner struct {
	store     SessionStore
	machine   *StateMachine
	providers *provider.Registry
	registry  *tools.Registry
	validator *validate.Pipeline
	formatter *format.Formatter
	collector *contextsnap.Collector

	testTimeout time.Duration
	logger      *slog.Logger
}

// Option configures a Planner.
type Option func(*Planner)

// WithStore sets the session store. Defaults to a fresh InMemoryStore.
func WithStore(store SessionStore) Option {
	return func(p *Planner) { p.store = store }
}

// WithStateMachine sets the transition table. Defaults to the shared
// DefaultStateMachine.
func WithStateMachine(machine *StateMachine) Option {
	return func(p *Planner) { p.machine = machine }
}

// WithProviders sets the provider registry. Defaults to the built-in
// registry with every backend wired.
func WithProviders(registry *provider.Registry) Option {
	return func(p *Planner) { p.providers = registry }
}

// WithTestTimeout caps test runs started through the planner.
func WithTestTimeout(d time.Duration) Option {
	return func(p *Planner) {
		if d > 0 {
			p.testTimeout = d
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Planner) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPlanner creates a planner over the given language tool registry.
//
// Inputs:
//
//	registry - Language tool catalog shared by the pipelines
//	opts - Optional configuration
//
// Outputs:
//
//	*Planner - Ready-to-use planner
func NewPlanner(registry *tools.Registry, opts ...Option) *Planner {
	p := &Planner{
		machine:     DefaultStateMachine,
		providers:   provider.DefaultRegistry(),
		registry:    registry,
		testTimeout: testrun.DefaultTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.store == nil {
		p.store = NewInMemoryStore()
	}

	p.validator = validate.NewPipeline(registry, validate.WithLogger(p.logger))
	p.formatter = format.NewFormatter(registry, format.WithLogger(p.logger))
	p.collector = contextsnap.NewCollector(registry, contextsnap.WithLogger(p.logger))
	return p
}

// Providers lists the registered provider backends for discovery.
func (p *Planner) Providers() []provider.ProviderInfo {
	return p.providers.List()
}

// SessionCount reports how many sessions the store currently holds.
func (p *Planner) SessionCount() int {
	return len(p.store.List())
}

// =============================================================================
// Submit
// =============================================================================

// SubmitRequest carries one prompt submission.
type SubmitRequest struct {
	// Prompt is the natural-language change request. Must be non-empty.
	Prompt string

	// RepoContext is the caller's repository snapshot. May be empty;
	// when it names a repo path without a file list, the planner fills
	// the list by walking the repository.
	RepoContext RepoContext

	// TargetFiles restricts the plan to specific paths.
	TargetFiles []string

	// DryRun marks the session as preview-only; apply is refused.
	DryRun bool

	// Provider selects the LLM backend. Empty selects the mock provider.
	Provider string

	// Model overrides the provider's default model.
	Model string
}

// SubmitResult reports the outcome of a prompt submission.
type SubmitResult struct {
	// SessionID is the created session. Set even when the provider
	// failed and the session stayed pending.
	SessionID string `json:"session_id"`

	// Status is the session status after submit.
	Status SessionStatus `json:"status"`

	// Summary is the provider's plan summary.
	Summary string `json:"summary,omitempty"`

	// Edits are value copies of the accepted plan, in provider order.
	Edits []CodeEdit `json:"edits"`
}

// Submit creates a session and asks the provider for an edit plan.
//
// Description:
//
//	The session is stored before the provider call so its id survives a
//	provider failure: in that case the session stays pending, the error
//	is recorded on it, and the returned error wraps ErrProviderFailure
//	alongside the provider's own sentinel. The result still carries the
//	session id. On success the plan is stored as CodeEdits (proposals
//	violating the plan invariants are dropped, never half-stored) and
//	the session moves to plan_generated.
//
// Outputs:
//
//	*SubmitResult - Session id, status, and the accepted plan
//	error - ErrEmptyPrompt, provider resolution errors, or a wrapped
//	        ErrProviderFailure
func (p *Planner) Submit(ctx context.Context, req SubmitRequest) (res *SubmitResult, err error) {
	ctx, span := plannerTracer.Start(ctx, "planner.Submit")
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()

	if strings.TrimSpace(req.Prompt) == "" {
		return nil, ErrEmptyPrompt
	}

	providerName := req.Provider
	if providerName == "" {
		providerName = provider.ProviderMock
	}
	prov, err := p.providers.Get(providerName, req.Model)
	if err != nil {
		return nil, fmt.Errorf("resolving provider: %w", err)
	}

	sess, err := NewSession(req.Prompt, req.RepoContext)
	if err != nil {
		return nil, err
	}
	sess.Provider = prov.Name()
	sess.Model = prov.Model()
	sess.DryRun = req.DryRun
	sess.TargetFiles = append([]string(nil), req.TargetFiles...)
	p.fillContext(ctx, sess)

	// Claim the session before it becomes visible through the store.
	sess.TryAcquire()
	defer sess.Release()

	if err := p.store.Put(sess); err != nil {
		return nil, fmt.Errorf("storing session: %w", err)
	}

	span.SetAttributes(
		attribute.String("session_id", sess.ID),
		attribute.String("provider", sess.Provider),
		attribute.String("model", sess.Model),
		attribute.Bool("dry_run", sess.DryRun),
	)

	plan, err := prov.Propose(ctx, p.proposeRequest(sess))
	if err != nil {
		sess.SetError(err.Error())
		p.persist(sess)
		p.logger.Warn("Provider failed, session stays pending",
			"session_id", sess.ID,
			"provider", sess.Provider,
			"error", err.Error())
		return &SubmitResult{SessionID: sess.ID, Status: sess.GetStatus()},
			fmt.Errorf("%w: %w", ErrProviderFailure, err)
	}

	edits := p.buildEdits(sess, plan)
	sess.SetPlan(edits, plan.Summary)
	if err := p.machine.Transition(sess, StatusPlanGenerated); err != nil {
		sess.Fail(err.Error())
		p.persist(sess)
		return nil, err
	}
	p.persist(sess)

	p.logger.Info("Edit plan generated",
		"session_id", sess.ID,
		"provider", sess.Provider,
		"model", sess.Model,
		"edit_count", len(edits))

	return &SubmitResult{
		SessionID: sess.ID,
		Status:    sess.GetStatus(),
		Summary:   plan.Summary,
		Edits:     sess.CopyEdits(),
	}, nil
}

// fillContext walks the repository when the caller supplied a repo path
// but no file list. Explicit caller context always wins; the collector
// never overwrites provided fields.
func (p *Planner) fillContext(ctx context.Context, sess *EditSession) {
	rc := &sess.RepoContext
	if rc.RepoPath == "" || len(rc.Files) > 0 {
		return
	}

	snap, err := p.collector.Collect(ctx, rc.RepoPath)
	if err != nil {
		p.logger.Warn("Repository snapshot failed",
			"session_id", sess.ID,
			"repo_path", rc.RepoPath,
			"error", err.Error())
		return
	}

	rc.Files = snap.Files
	if len(rc.FileContents) == 0 {
		rc.FileContents = snap.Contents
	}
	if rc.Language == "" {
		rc.Language = snap.Language
	}
}

// proposeRequest assembles the provider request from session state.
func (p *Planner) proposeRequest(sess *EditSession) *provider.ProposeRequest {
	rc := sess.RepoContext
	return &provider.ProposeRequest{
		Prompt:       sess.Prompt,
		RepoPath:     rc.RepoPath,
		Files:        rc.Files,
		FileContents: rc.FileContents,
		Language:     rc.Language,
		Framework:    rc.Framework,
		TargetFiles:  sess.TargetFiles,
	}
}

// buildEdits converts provider proposals into CodeEdits.
//
// Description:
//
//	Resolves plan-time original content (recorded context first, then
//	the repository on disk) and drops proposals that violate the plan
//	invariants, including modifies whose original cannot be resolved
//	and modifies that propose no change. Dropped proposals are logged.
func (p *Planner) buildEdits(sess *EditSession, plan *provider.EditPlan) []*CodeEdit {
	edits := make([]*CodeEdit, 0, len(plan.Edits))
	for _, proposal := range plan.Edits {
		edit := &CodeEdit{
			SessionID:   sess.ID,
			FilePath:    proposal.FilePath,
			OldPath:     proposal.OldPath,
			EditType:    EditType(proposal.EditType),
			Description: proposal.Description,
		}
		if proposal.Content != nil {
			content := *proposal.Content
			edit.ProposedContent = &content
		}

		if edit.EditType != EditCreate {
			sourcePath := edit.FilePath
			if edit.EditType == EditRename {
				sourcePath = edit.OldPath
			}
			if original, ok := p.originalFor(sess.RepoContext, sourcePath); ok {
				edit.OriginalContent = &original
			}
		}

		if err := edit.CheckInvariants(); err != nil {
			p.logger.Warn("Dropping invalid proposed edit",
				"session_id", sess.ID,
				"file_path", edit.FilePath,
				"edit_type", string(edit.EditType),
				"reason", err.Error())
			continue
		}
		edits = append(edits, edit)
	}
	return edits
}

// originalFor resolves a file's plan-time content: recorded context
// first, then the repository on disk.
func (p *Planner) originalFor(rc RepoContext, path string) (string, bool) {
	if content, ok := rc.Content(path); ok {
		return content, true
	}
	if rc.RepoPath == "" || path == "" {
		return "", false
	}

	full, err := resolveRepoPath(rc.RepoPath, path)
	if err != nil {
		return "", false
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return "", false
	}
	return string(data), true
}

// =============================================================================
// Status
// =============================================================================

// Status returns the externally visible snapshot for a session.
//
// Outputs:
//
//	*SessionSnapshot - Current state machine snapshot
//	error - ErrSessionNotFound for unknown ids
func (p *Planner) Status(ctx context.Context, sessionID string) (*SessionSnapshot, error) {
	sess, err := p.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	return sess.Snapshot(), nil
}

// =============================================================================
// Stage Plumbing
// =============================================================================

// statusRank orders the pipeline states for stage re-run checks. The
// terminal failed status is deliberately absent.
var statusRank = map[SessionStatus]int{
	StatusPending:       0,
	StatusPlanGenerated: 1,
	StatusValidated:     2,
	StatusFormatted:     3,
	StatusApplied:       4,
	StatusTested:        5,
}

// lookup fetches a session by id.
func (p *Planner) lookup(id string) (*EditSession, error) {
	sess, ok := p.store.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess, nil
}

// acquire fetches a session and claims it for a mutating stage.
// Callers must Release. Terminal sessions are rejected.
func (p *Planner) acquire(id string) (*EditSession, error) {
	sess, err := p.lookup(id)
	if err != nil {
		return nil, err
	}
	if !sess.TryAcquire() {
		return nil, fmt.Errorf("%w: %s", ErrSessionBusy, id)
	}
	if sess.IsTerminal() {
		sess.Release()
		return nil, fmt.Errorf("%w: %s", ErrSessionTerminal, id)
	}
	return sess, nil
}

// requireStage checks that a stage landing on target may run now: the
// transition must be legal from the current status, or the session must
// already have reached target (stage re-run).
func (p *Planner) requireStage(sess *EditSession, target SessionStatus) error {
	current := sess.GetStatus()
	if p.machine.CanTransition(current, target) {
		return nil
	}
	if current != StatusFailed && statusRank[current] >= statusRank[target] {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, target)
}

// advance transitions the session when the stage's landing transition
// is legal from the current status; stage re-runs leave it alone.
func (p *Planner) advance(sess *EditSession, target SessionStatus) {
	if p.machine.CanTransition(sess.GetStatus(), target) {
		_ = p.machine.Transition(sess, target)
	}
}

// guardStage converts a stage panic into a failed session. Used with a
// named error return so the caller still gets a structured error.
func (p *Planner) guardStage(sess *EditSession, stage string, err *error) {
	if r := recover(); r != nil {
		reason := fmt.Sprintf("%s stage panic: %v", stage, r)
		p.logger.Error("Stage panicked",
			"session_id", sess.ID,
			"stage", stage,
			"panic", fmt.Sprintf("%v", r))
		sess.Fail(reason)
		p.persist(sess)
		*err = errors.New(reason)
	}
}

// persist writes the session through the store. Store write failures
// are logged rather than failing the stage; the in-memory session stays
// authoritative for the rest of the process lifetime.
func (p *Planner) persist(sess *EditSession) {
	if err := p.store.Put(sess); err != nil {
		p.logger.Warn("Persisting session failed",
			"session_id", sess.ID,
			"error", err.Error())
	}
}

// repoRoot resolves and verifies the session's repository directory.
func (p *Planner) repoRoot(sess *EditSession) (string, error) {
	root := sess.RepoContext.RepoPath
	if root == "" {
		return "", fmt.Errorf("%w: %s", ErrNoRepoPath, sess.ID)
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolving repository path %s: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("repository path %s: %w", root, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("repository path %s is not a directory", root)
	}
	return abs, nil
}

// resolveRepoPath joins a repository-relative path to the root and
// rejects absolute paths and paths that escape the root.
func resolveRepoPath(root, rel string) (string, error) {
	return validation.ResolveUnder(root, rel)
}
