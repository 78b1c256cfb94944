// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command kodiak manages the Kodiak prompt edit service.
//
// Kodiak turns natural-language prompts into reviewed code edits:
//   - LLM providers (OpenAI, Anthropic, Ollama, mock) propose edit plans
//   - Unified diff preview before anything touches the working tree
//   - Validation (tree-sitter syntax, lint, type), formatting, apply, test
//   - Session state machine with optional persistent storage
//
// Usage:
//
//	kodiak serve
//	kodiak serve --port 9090 --data-dir ~/.kodiak/sessions
//
// With a cloud provider:
//
//	OPENAI_API_KEY=sk-... kodiak serve
//	ANTHROPIC_API_KEY=sk-ant-... kodiak serve
//
// With Ollama:
//
//	OLLAMA_BASE_URL=http://localhost:11434 OLLAMA_MODEL=qwen2.5-coder kodiak serve
//
// Example requests:
//
//	# Health check
//	curl http://localhost:8080/v1/prompt-edit/health
//
//	# List providers
//	curl http://localhost:8080/v1/prompt-edit/providers | jq
//
//	# Submit a prompt (mock provider, dry run)
//	curl -X POST http://localhost:8080/v1/prompt-edit/submit \
//	  -H "Content-Type: application/json" \
//	  -d '{"prompt": "add input validation", "dry_run": true}'
package main

import (
	"log"
)

func main() {
	// Execute the root command. Cobra handles parsing the arguments.
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}
