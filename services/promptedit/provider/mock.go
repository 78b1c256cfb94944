// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package provider

import (
	"context"
	"fmt"
)

// mockMaxTargets caps how many target files the mock plan touches.
const mockMaxTargets = 3

// MockProvider produces deterministic plans without any network calls.
//
// # Description
//
// Used by tests and air-gapped deployments. Given target files it emits
// one modify edit per file (up to mockMaxTargets); without targets it
// emits a single create edit for example.py. Output depends only on the
// request, so repeated calls yield identical plans.
type MockProvider struct {
	model string
}

// NewMockProvider creates a mock provider. Construction cannot fail.
func NewMockProvider(model string) *MockProvider {
	if model == "" {
		model = defaultModels[ProviderMock]
	}
	return &MockProvider{model: model}
}

// Name implements the Provider interface.
func (p *MockProvider) Name() string { return ProviderMock }

// Model implements the Provider interface.
func (p *MockProvider) Model() string { return p.model }

// Available implements the Provider interface.
func (p *MockProvider) Available() bool { return true }

// Propose implements the Provider interface.
func (p *MockProvider) Propose(ctx context.Context, req *ProposeRequest) (*EditPlan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req == nil || req.Prompt == "" {
		return nil, fmt.Errorf("%w: empty prompt", ErrInvalidResponse)
	}

	var edits []ProposedEdit

	if len(req.TargetFiles) > 0 {
		for i, filePath := range req.TargetFiles {
			if i >= mockMaxTargets {
				break
			}
			content := fmt.Sprintf("# Modified content for %s\n# Based on prompt: %s\n\npass\n",
				filePath, clip(req.Prompt, 50))
			edits = append(edits, ProposedEdit{
				FilePath:    filePath,
				EditType:    "modify",
				Description: fmt.Sprintf("Mock modification for %s based on: %s", filePath, clip(req.Prompt, 100)),
				Content:     &content,
			})
		}
	} else {
		content := fmt.Sprintf("\"\"\"Mock file created by prompt edit engine\"\"\"\n\n# Prompt: %s\n\ndef example_function():\n    \"\"\"Example function\"\"\"\n    pass\n",
			clip(req.Prompt, 100))
		edits = append(edits, ProposedEdit{
			FilePath:    "example.py",
			EditType:    "create",
			Description: fmt.Sprintf("Mock file creation based on: %s", clip(req.Prompt, 100)),
			Content:     &content,
		})
	}

	return &EditPlan{
		Edits:   edits,
		Summary: fmt.Sprintf("Mock edit plan: %d file(s) to be modified based on prompt.", len(edits)),
	}, nil
}

// clip truncates s to at most n bytes.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
