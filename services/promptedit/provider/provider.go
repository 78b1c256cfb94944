// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package provider turns natural-language edit prompts into structured
// edit plans by calling a configured model backend.
//
// # Description
//
// Each backend (OpenAI, Anthropic, Ollama, mock) implements the Provider
// interface. Text-completion backends share a single prompt template and
// response parser; only the transport differs. The Registry constructs
// providers lazily and caches them per (name, model) pair.
//
// # Thread Safety
//
// Providers and the Registry are safe for concurrent use.
package provider

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Provider Names
// =============================================================================

const (
	// ProviderOpenAI is the OpenAI chat-completion backend.
	ProviderOpenAI = "openai"

	// ProviderAnthropic is the Anthropic messages backend.
	ProviderAnthropic = "anthropic"

	// ProviderOllama is the local Ollama backend.
	ProviderOllama = "ollama"

	// ProviderMock is the deterministic offline backend used in tests
	// and air-gapped deployments.
	ProviderMock = "mock"
)

// =============================================================================
// Generation Parameters
// =============================================================================

// GenerationParams carries optional sampling knobs for a completion call.
// Nil fields mean "use the planning defaults".
type GenerationParams struct {
	Temperature *float32
	TopP        *float32
	TopK        *int
	MaxTokens   *int
	Stop        []string
}

const (
	// defaultPlanTemperature keeps plan generation close to deterministic.
	defaultPlanTemperature = float32(0.3)

	// defaultPlanMaxTokens bounds the size of a generated plan.
	defaultPlanMaxTokens = 4000
)

// withPlanDefaults fills unset sampling knobs with the plan-generation
// defaults. The input is copied, never mutated.
func (p GenerationParams) withPlanDefaults() GenerationParams {
	out := p
	if out.Temperature == nil {
		t := defaultPlanTemperature
		out.Temperature = &t
	}
	if out.MaxTokens == nil {
		m := defaultPlanMaxTokens
		out.MaxTokens = &m
	}
	return out
}

// =============================================================================
// Request and Plan Types
// =============================================================================

// ProposeRequest is everything a backend needs to draft an edit plan.
//
// # Description
//
// The repository fields mirror the session's repo context. FileContents
// maps relative paths to full file bodies; the prompt builder truncates
// long bodies before rendering. TargetFiles narrows the request to
// specific paths when the caller already knows where the change belongs.
type ProposeRequest struct {
	// Prompt is the user's natural-language change request.
	Prompt string

	// RepoPath is the repository root on disk (may be empty).
	RepoPath string

	// Files lists repository paths relevant to the request.
	Files []string

	// FileContents maps relative paths to file bodies.
	FileContents map[string]string

	// Language is the repository's primary language (for example "python").
	Language string

	// Framework is the dominant framework, if known.
	Framework string

	// TargetFiles restricts the plan to specific paths.
	TargetFiles []string

	// Params tunes sampling for this request.
	Params GenerationParams
}

// ProposedEdit is a single file change drafted by a backend.
//
// The JSON tags match the wire contract the system prompt demands from
// the model, so a parsed response unmarshals directly into this type.
type ProposedEdit struct {
	// FilePath is the repository-relative path the edit targets. For
	// renames this is the destination path.
	FilePath string `json:"file_path" validate:"required"`

	// EditType is one of create, modify, delete, rename.
	EditType string `json:"edit_type" validate:"required,oneof=create modify delete rename"`

	// Description explains the change in one or two sentences.
	Description string `json:"description"`

	// Content is the complete proposed file body. Nil for deletions.
	Content *string `json:"modified_content"`

	// OldPath is the source path for renames.
	OldPath string `json:"old_path,omitempty"`
}

// EditPlan is the structured output of a Propose call.
type EditPlan struct {
	// Edits lists the proposed file changes in model order.
	Edits []ProposedEdit `json:"edits"`

	// Summary is the model's one-paragraph description of the plan.
	Summary string `json:"summary"`
}

// =============================================================================
// Provider Interface
// =============================================================================

// Provider drafts structured edit plans from natural-language prompts.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Name returns the registry name of this backend.
	Name() string

	// Model returns the model identifier this provider calls.
	Model() string

	// Available reports whether the backend is ready to serve requests.
	Available() bool

	// Propose drafts an edit plan for the request. Implementations
	// return an error wrapping ErrUnavailable when the backend cannot
	// be reached and ErrInvalidResponse when the model's output cannot
	// be parsed into a plan.
	Propose(ctx context.Context, req *ProposeRequest) (*EditPlan, error)
}

// textCompleter is implemented by backends that produce a raw text
// completion from a system and user prompt. Propose is derived from it
// via proposeViaText so all text backends share one prompt and parser.
type textCompleter interface {
	Name() string
	completeText(ctx context.Context, systemPrompt, userPrompt string, params GenerationParams) (string, error)
}

// proposeViaText renders the planning prompts, runs the completion, and
// parses the response into a sanitized plan.
func proposeViaText(ctx context.Context, tc textCompleter, req *ProposeRequest) (*EditPlan, error) {
	if req == nil || req.Prompt == "" {
		return nil, fmt.Errorf("%w: empty prompt", ErrInvalidResponse)
	}

	systemPrompt := buildSystemPrompt()
	userPrompt := buildUserPrompt(req)

	raw, err := tc.completeText(ctx, systemPrompt, userPrompt, req.Params.withPlanDefaults())
	if err != nil {
		return nil, err
	}

	plan, err := ParsePlanResponse(raw)
	if err != nil {
		return nil, err
	}

	sanitizePlan(tc.Name(), plan)
	return plan, nil
}

// =============================================================================
// Plan Sanitization
// =============================================================================

var planValidate = validator.New()

// sanitizePlan drops proposed edits that fail structural validation.
//
// # Description
//
// Models occasionally emit entries with a missing path, an unknown edit
// type, or content where none is allowed. Rather than failing the whole
// plan, malformed entries are logged and removed. Deletion entries have
// their content cleared so downstream code never sees a body for them.
func sanitizePlan(backend string, plan *EditPlan) {
	kept := plan.Edits[:0]
	for _, edit := range plan.Edits {
		if err := checkEdit(edit); err != nil {
			slog.Warn("Dropping malformed proposed edit",
				"provider", backend,
				"file_path", edit.FilePath,
				"edit_type", edit.EditType,
				"reason", err.Error(),
			)
			continue
		}
		if edit.EditType == "delete" {
			edit.Content = nil
		}
		kept = append(kept, edit)
	}
	plan.Edits = kept
}

// checkEdit validates a single proposed edit against the wire contract.
func checkEdit(edit ProposedEdit) error {
	if err := planValidate.Struct(edit); err != nil {
		return err
	}

	switch edit.EditType {
	case "create", "modify":
		if edit.Content == nil || *edit.Content == "" {
			return fmt.Errorf("%s edit missing modified_content", edit.EditType)
		}
	case "rename":
		if edit.OldPath == "" {
			return fmt.Errorf("rename edit missing old_path")
		}
		if edit.Content == nil {
			return fmt.Errorf("rename edit missing modified_content")
		}
		if edit.OldPath == edit.FilePath {
			return fmt.Errorf("rename edit has identical old and new paths")
		}
	}
	return nil
}
