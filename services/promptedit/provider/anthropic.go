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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/awnumar/memguard"
)

const (
	anthropicAPIVersion = "2023-06-01"
	anthropicBaseURL    = "https://api.anthropic.com/v1/messages"
	anthropicSecretPath = "/run/secrets/anthropic_api_key"

	// anthropicCacheThreshold is the system prompt length above which
	// prompt caching is requested. The planning prompt always exceeds
	// it, so repeated submissions reuse the cached prefix.
	anthropicCacheThreshold = 1024
)

// =============================================================================
// Wire Types
// =============================================================================

type anthropicRequest struct {
	Model     string             `json:"model"`
	Messages  []anthropicMessage `json:"messages"`
	System    []systemBlock      `json:"system,omitempty"`
	MaxTokens int                `json:"max_tokens"`

	Temperature *float32 `json:"temperature,omitempty"`
	TopP        *float32 `json:"top_p,omitempty"`
	TopK        *int     `json:"top_k,omitempty"`
	StopSeqs    []string `json:"stop_sequences,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type systemBlock struct {
	Type         string        `json:"type"`
	Text         string        `json:"text"`
	CacheControl *cacheControl `json:"cache_control,omitempty"`
}

type cacheControl struct {
	Type string `json:"type"` // Must be "ephemeral"
}

type anthropicResponse struct {
	ID      string             `json:"id"`
	Type    string             `json:"type"`
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
	Error   *anthropicError    `json:"error,omitempty"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// =============================================================================
// Provider
// =============================================================================

// AnthropicProvider drafts edit plans through the Anthropic messages API.
//
// # Description
//
// The API key is held in a memguard enclave and only decrypted for the
// duration of each request, so it never sits in plain heap memory
// between calls.
type AnthropicProvider struct {
	httpClient *http.Client
	apiKey     *memguard.Enclave
	model      string
}

// NewAnthropicProvider creates an Anthropic-backed provider.
//
// # Inputs
//
//   - model: Model override, or "" for CLAUDE_MODEL / the default.
//
// # Outputs
//
//   - *AnthropicProvider: Ready-to-use provider.
//   - error: Wraps ErrMissingCredentials when no API key is found.
func NewAnthropicProvider(model string) (*AnthropicProvider, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		if content, err := os.ReadFile(anthropicSecretPath); err == nil {
			apiKey = strings.TrimSpace(string(content))
			slog.Info("Read Anthropic API Key from Podman Secrets")
		}
	}
	if apiKey == "" {
		slog.Warn("Anthropic API Key is missing")
		return nil, fmt.Errorf("%w: ANTHROPIC_API_KEY not set", ErrMissingCredentials)
	}

	if model == "" {
		model = os.Getenv("CLAUDE_MODEL")
	}
	if model == "" {
		model = defaultModels[ProviderAnthropic]
		slog.Info("CLAUDE_MODEL not set, defaulting", "model", model)
	}

	// NewEnclave wipes the source slice after sealing.
	enclave := memguard.NewEnclave([]byte(apiKey))

	return &AnthropicProvider{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		apiKey:     enclave,
		model:      model,
	}, nil
}

// Name implements the Provider interface.
func (p *AnthropicProvider) Name() string { return ProviderAnthropic }

// Model implements the Provider interface.
func (p *AnthropicProvider) Model() string { return p.model }

// Available implements the Provider interface.
func (p *AnthropicProvider) Available() bool { return p.apiKey != nil }

// Propose implements the Provider interface.
func (p *AnthropicProvider) Propose(ctx context.Context, req *ProposeRequest) (*EditPlan, error) {
	return proposeViaText(ctx, p, req)
}

// completeText runs a single messages call against the Anthropic API.
func (p *AnthropicProvider) completeText(ctx context.Context, systemPrompt, userPrompt string, params GenerationParams) (string, error) {
	block := systemBlock{Type: "text", Text: systemPrompt}
	if len(systemPrompt) > anthropicCacheThreshold {
		block.CacheControl = &cacheControl{Type: "ephemeral"}
	}

	payload := anthropicRequest{
		Model:     p.model,
		Messages:  []anthropicMessage{{Role: "user", Content: userPrompt}},
		System:    []systemBlock{block},
		MaxTokens: defaultPlanMaxTokens,
	}
	payload.Temperature = params.Temperature
	payload.TopP = params.TopP
	payload.TopK = params.TopK
	if params.MaxTokens != nil {
		payload.MaxTokens = *params.MaxTokens
	}
	if len(params.Stop) > 0 {
		payload.StopSeqs = params.Stop
	}

	reqBodyBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", anthropicBaseURL, bytes.NewBuffer(reqBodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	keyBuf, err := p.apiKey.Open()
	if err != nil {
		return "", fmt.Errorf("%w: failed to open key enclave: %v", ErrMissingCredentials, err)
	}
	req.Header.Set("x-api-key", keyBuf.String())
	req.Header.Set("anthropic-version", anthropicAPIVersion)
	req.Header.Set("content-type", "application/json")

	slog.Debug("Sending REST request to Anthropic", "model", p.model)

	resp, err := p.httpClient.Do(req)
	keyBuf.Destroy()
	if err != nil {
		return "", fmt.Errorf("%w: Anthropic request failed: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	bodyBytes, _ := io.ReadAll(resp.Body)
	slog.Debug("Raw Anthropic response", "status", resp.StatusCode, "body_length", len(bodyBytes))

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: anthropic API returned status %d: %s",
			ErrUnavailable, resp.StatusCode, string(bodyBytes))
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		return "", fmt.Errorf("%w: failed to parse response JSON: %v", ErrInvalidResponse, err)
	}

	if apiResp.Error != nil {
		return "", fmt.Errorf("%w: anthropic API error: %s - %s",
			ErrUnavailable, apiResp.Error.Type, apiResp.Error.Message)
	}

	if len(apiResp.Content) == 0 {
		return "", fmt.Errorf("%w: received empty content from Anthropic", ErrInvalidResponse)
	}

	finalText := ""
	for _, b := range apiResp.Content {
		if b.Type == "text" {
			finalText += b.Text
		}
	}
	if finalText == "" {
		return "", fmt.Errorf("%w: received content but no text block", ErrInvalidResponse)
	}

	return finalText, nil
}
