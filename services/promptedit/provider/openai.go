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
	"log/slog"
	"os"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// openaiSecretPath is where Podman mounts the API key secret.
const openaiSecretPath = "/run/secrets/openai_api_key"

// OpenAIProvider drafts edit plans through the OpenAI chat API.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAIProvider creates an OpenAI-backed provider.
//
// # Description
//
// The API key comes from OPENAI_API_KEY, falling back to the Podman
// secret mount. The model falls back to OPENAI_MODEL and then to the
// registry default.
//
// # Inputs
//
//   - model: Model override, or "" for the default.
//
// # Outputs
//
//   - *OpenAIProvider: Ready-to-use provider.
//   - error: Wraps ErrMissingCredentials when no API key is found.
func NewOpenAIProvider(model string) (*OpenAIProvider, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		apiKeyBytes, err := os.ReadFile(openaiSecretPath)
		if err != nil {
			slog.Error("OPENAI_API_KEY environment variable not set and secret not found",
				"path", openaiSecretPath)
			return nil, fmt.Errorf("%w: OPENAI_API_KEY not set", ErrMissingCredentials)
		}
		apiKey = strings.TrimSpace(string(apiKeyBytes))
		slog.Info("Read the OpenAI API Key from Podman Secrets")
	}

	if model == "" {
		model = os.Getenv("OPENAI_MODEL")
	}
	if model == "" {
		model = defaultModels[ProviderOpenAI]
		slog.Warn("OPENAI_MODEL not set, defaulting", "model", model)
	}

	slog.Info("Initializing OpenAI edit provider", "model", model)
	return &OpenAIProvider{
		client: openai.NewClient(apiKey),
		model:  model,
	}, nil
}

// Name implements the Provider interface.
func (p *OpenAIProvider) Name() string { return ProviderOpenAI }

// Model implements the Provider interface.
func (p *OpenAIProvider) Model() string { return p.model }

// Available implements the Provider interface.
func (p *OpenAIProvider) Available() bool { return p.client != nil }

// Propose implements the Provider interface.
func (p *OpenAIProvider) Propose(ctx context.Context, req *ProposeRequest) (*EditPlan, error) {
	return proposeViaText(ctx, p, req)
}

// completeText runs a single chat completion against the OpenAI API.
func (p *OpenAIProvider) completeText(ctx context.Context, systemPrompt, userPrompt string, params GenerationParams) (string, error) {
	slog.Debug("Generating edit plan via OpenAI", "model", p.model)

	req := openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	}
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.MaxTokens != nil {
		req.MaxCompletionTokens = *params.MaxTokens
	}
	if params.TopP != nil {
		req.TopP = *params.TopP
	}
	if len(params.Stop) > 0 {
		req.Stop = params.Stop
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		slog.Error("OpenAI API call failed", "error", err)
		return "", fmt.Errorf("%w: OpenAI API call failed: %v", ErrUnavailable, err)
	}

	if len(resp.Choices) == 0 {
		slog.Warn("OpenAI returned no choices")
		return "", fmt.Errorf("%w: OpenAI returned no choices", ErrInvalidResponse)
	}

	slog.Debug("Received plan response from OpenAI", "finish_reason", resp.Choices[0].FinishReason)
	return resp.Choices[0].Message.Content, nil
}
