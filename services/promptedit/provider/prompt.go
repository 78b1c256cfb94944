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
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// =============================================================================
// Prompt Construction
// =============================================================================

const (
	// maxPromptFiles caps the number of file paths listed in the prompt.
	maxPromptFiles = 10

	// maxPromptContents caps how many file bodies are inlined.
	maxPromptContents = 5

	// maxContentLines is the threshold above which a file body is
	// truncated to its head and tail.
	maxContentLines = 50

	// contentEdgeLines is how many lines survive at each end of a
	// truncated body.
	contentEdgeLines = 25
)

// buildSystemPrompt returns the planning instructions shared by every
// text backend. The JSON schema in the prompt matches ProposedEdit.
func buildSystemPrompt() string {
	return `You are an expert software engineer helping to plan code changes.
Your task is to analyze a user's request and generate a detailed plan for code modifications.

You should:
1. Understand the user's intent clearly
2. Identify which files need to be modified, created, or deleted
3. Provide clear descriptions of what changes are needed
4. Generate the complete modified content for each file
5. Consider best practices, code quality, and maintainability

Respond with a JSON object containing:
{
    "edits": [
        {
            "file_path": "path/to/file.py",
            "edit_type": "modify|create|delete|rename",
            "description": "Clear description of changes",
            "modified_content": "Complete file content after changes"
        }
    ],
    "summary": "Overall summary of changes"
}

For modifications, provide the complete new file content.
For new files, provide the full content to create.
For deletions, set modified_content to null.
For renames, include "old_path" with the original location.`
}

// buildUserPrompt renders the request and its repository context into
// the user half of the conversation.
//
// # Description
//
// The prompt leads with the raw request, then repository metadata, a
// capped file listing, and a capped set of inlined file bodies. Bodies
// longer than maxContentLines are reduced to their first and last
// contentEdgeLines lines with an omission marker in between, keeping
// token usage bounded on large files.
func buildUserPrompt(req *ProposeRequest) string {
	var parts []string
	parts = append(parts, fmt.Sprintf("User Request: %s\n", req.Prompt))

	if req.RepoPath != "" {
		parts = append(parts, fmt.Sprintf("Repository Path: %s", req.RepoPath))
	}
	if req.Language != "" {
		parts = append(parts, fmt.Sprintf("Primary Language: %s", req.Language))
	}
	if req.Framework != "" {
		parts = append(parts, fmt.Sprintf("Framework: %s", req.Framework))
	}

	if len(req.Files) > 0 {
		parts = append(parts, fmt.Sprintf("\nRelevant Files (%d):", len(req.Files)))
		for i, filePath := range req.Files {
			if i >= maxPromptFiles {
				break
			}
			parts = append(parts, fmt.Sprintf("  - %s", filePath))
		}
	}

	if len(req.FileContents) > 0 {
		parts = append(parts, "\nFile Contents:")
		for i, filePath := range sortedContentPaths(req) {
			if i >= maxPromptContents {
				break
			}
			parts = append(parts, fmt.Sprintf("\n--- %s ---", filePath))
			parts = append(parts, truncateBody(req.FileContents[filePath]))
		}
	}

	if len(req.TargetFiles) > 0 {
		parts = append(parts, fmt.Sprintf("\nTarget Files: %s", strings.Join(req.TargetFiles, ", ")))
	}

	return strings.Join(parts, "\n")
}

// sortedContentPaths returns FileContents keys, preferring the order of
// req.Files so the prompt stays deterministic across runs.
func sortedContentPaths(req *ProposeRequest) []string {
	seen := make(map[string]bool, len(req.FileContents))
	ordered := make([]string, 0, len(req.FileContents))

	for _, p := range req.Files {
		if _, ok := req.FileContents[p]; ok && !seen[p] {
			ordered = append(ordered, p)
			seen[p] = true
		}
	}

	// Remaining paths not mentioned in Files, sorted for stability.
	var rest []string
	for p := range req.FileContents {
		if !seen[p] {
			rest = append(rest, p)
		}
	}
	sort.Strings(rest)
	return append(ordered, rest...)
}

// truncateBody reduces long file bodies to head and tail excerpts.
func truncateBody(content string) string {
	lines := strings.Split(content, "\n")
	if len(lines) <= maxContentLines {
		return content
	}

	head := strings.Join(lines[:contentEdgeLines], "\n")
	tail := strings.Join(lines[len(lines)-contentEdgeLines:], "\n")
	omitted := len(lines) - 2*contentEdgeLines
	return fmt.Sprintf("%s\n\n... (%d lines omitted) ...\n%s", head, omitted, tail)
}

// =============================================================================
// Response Parsing
// =============================================================================

// fencedJSONPattern extracts the body of a ```json code fence.
var fencedJSONPattern = regexp.MustCompile("(?s)```json\\s*\\n(.*?)\\n```")

// ParsePlanResponse decodes a model completion into an EditPlan.
//
// # Description
//
// Accepts either a bare JSON object or a JSON object wrapped in a
// ```json markdown fence. Anything else fails with ErrInvalidResponse
// so the caller can surface the failure instead of guessing.
//
// # Inputs
//
//   - raw: The complete model output.
//
// # Outputs
//
//   - *EditPlan: The decoded plan.
//   - error: Non-nil if no JSON object could be decoded.
func ParsePlanResponse(raw string) (*EditPlan, error) {
	trimmed := strings.TrimSpace(raw)

	if strings.HasPrefix(trimmed, "{") {
		var plan EditPlan
		if err := json.Unmarshal([]byte(trimmed), &plan); err == nil {
			return &plan, nil
		}
	}

	if m := fencedJSONPattern.FindStringSubmatch(raw); m != nil {
		var plan EditPlan
		if err := json.Unmarshal([]byte(m[1]), &plan); err == nil {
			return &plan, nil
		}
	}

	return nil, fmt.Errorf("%w: no JSON object found in %d-byte completion", ErrInvalidResponse, len(raw))
}
