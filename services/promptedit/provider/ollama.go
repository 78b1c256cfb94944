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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var ollamaTracer = otel.Tracer("kodiak.promptedit.provider.ollama")

// OllamaProvider drafts edit plans through a local Ollama server.
type OllamaProvider struct {
	httpClient *http.Client
	baseURL    string
	model      string
}

// Ollama API request structure
type ollamaGenerateRequest struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	System  string                 `json:"system,omitempty"`
	Stream  bool                   `json:"stream"`
	Options map[string]interface{} `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Model     string `json:"model"`
	CreatedAt string `json:"created_at"`
	Response  string `json:"response"`
	Done      bool   `json:"done"`
}

// NewOllamaProvider creates an Ollama-backed provider.
//
// # Description
//
// Requires OLLAMA_BASE_URL. The model falls back to OLLAMA_MODEL and
// then to the registry default. Plan generation on local models can be
// slow, so the HTTP client allows five minutes per request on top of
// whatever deadline the caller's context imposes.
func NewOllamaProvider(model string) (*OllamaProvider, error) {
	baseURL := os.Getenv("OLLAMA_BASE_URL")
	if baseURL == "" {
		return nil, fmt.Errorf("%w: OLLAMA_BASE_URL environment variable not set", ErrUnavailable)
	}

	if model == "" {
		model = os.Getenv("OLLAMA_MODEL")
	}
	if model == "" {
		model = defaultModels[ProviderOllama]
		slog.Warn("OLLAMA_MODEL not set, defaulting", "model", model)
	}

	baseURL = strings.TrimSuffix(baseURL, "/")
	slog.Info("Initializing Ollama edit provider", "base_url", baseURL, "model", model)
	return &OllamaProvider{
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		baseURL:    baseURL,
		model:      model,
	}, nil
}

// Name implements the Provider interface.
func (p *OllamaProvider) Name() string { return ProviderOllama }

// Model implements the Provider interface.
func (p *OllamaProvider) Model() string { return p.model }

// Available implements the Provider interface.
func (p *OllamaProvider) Available() bool { return p.baseURL != "" }

// Propose implements the Provider interface.
func (p *OllamaProvider) Propose(ctx context.Context, req *ProposeRequest) (*EditPlan, error) {
	return proposeViaText(ctx, p, req)
}

// completeText runs a single /api/generate call against Ollama.
func (p *OllamaProvider) completeText(ctx context.Context, systemPrompt, userPrompt string, params GenerationParams) (string, error) {
	ctx, span := ollamaTracer.Start(ctx, "OllamaProvider.completeText")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", p.model))

	slog.Debug("Generating edit plan via Ollama", "model", p.model)
	generateURL := p.baseURL + "/api/generate"

	options := make(map[string]interface{})
	if params.Temperature != nil {
		options["temperature"] = *params.Temperature
	}
	if params.TopK != nil {
		options["top_k"] = *params.TopK
	}
	if params.TopP != nil {
		options["top_p"] = *params.TopP
	}
	if params.MaxTokens != nil {
		options["num_predict"] = *params.MaxTokens
	}
	if len(params.Stop) > 0 {
		options["stop"] = params.Stop
	}

	payload := ollamaGenerateRequest{
		Model:   p.model,
		Prompt:  userPrompt,
		System:  systemPrompt,
		Stream:  false,
		Options: options,
	}

	reqBodyBytes, err := json.Marshal(payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("failed to marshal request to Ollama: %w", err)
	}

	// Use NewRequestWithContext to respect context cancellation/timeout
	req, err := http.NewRequestWithContext(ctx, "POST", generateURL, bytes.NewBuffer(reqBodyBytes))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("failed to create request to Ollama: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Error("Ollama API call failed", "error", err)
		return "", fmt.Errorf("%w: Ollama API call failed: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("failed to read response body from Ollama: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusNotFound {
			var errResp struct {
				Error string `json:"error"`
			}
			if err := json.Unmarshal(respBodyBytes, &errResp); err == nil &&
				strings.Contains(errResp.Error, "model") && strings.Contains(errResp.Error, "not found") {
				slog.Warn("Ollama model not found", "model", p.model)
				return "", fmt.Errorf("%w: model '%s' not found. Please run: 'ollama pull %s'",
					ErrUnavailable, p.model, p.model)
			}
		}
		slog.Error("Ollama returned an error", "status_code", resp.StatusCode, "response", string(respBodyBytes))
		return "", fmt.Errorf("%w: Ollama failed with status %d: %s",
			ErrUnavailable, resp.StatusCode, string(respBodyBytes))
	}

	var ollamaResp ollamaGenerateResponse
	if err := json.Unmarshal(respBodyBytes, &ollamaResp); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("%w: failed to parse Ollama response: %v", ErrInvalidResponse, err)
	}

	return ollamaResp.Response, nil
}
