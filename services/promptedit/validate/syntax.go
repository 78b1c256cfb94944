// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validate

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// maxParseBytes is the largest content the syntax check will parse.
	maxParseBytes = 10 * 1024 * 1024

	// maxSyntaxErrors caps collected errors on heavily malformed input.
	maxSyntaxErrors = 10

	// maxWalkDepth prevents stack overflow on deeply nested trees.
	maxWalkDepth = 1000
)

// syntaxError is one ERROR or MISSING node found in the parse tree.
type syntaxError struct {
	line    int
	column  int
	message string
}

// =============================================================================
// Syntax Check
// =============================================================================

// checkSyntax parses content with tree-sitter and reports the first
// syntax errors found.
//
// Description:
//
//	Languages without a grammar here (json, css, html) yield a skipped
//	result; their formatters still run later. A failed parse reports
//	the first error's 1-based line in Result.Line.
func (p *Pipeline) checkSyntax(ctx context.Context, filePath, content, language string) Result {
	res := Result{FilePath: filePath, Type: CheckSyntax}

	tsLang := treeSitterLanguage(language, filePath)
	if tsLang == nil {
		res.Status = StatusSkipped
		res.Message = fmt.Sprintf("syntax parsing not available for %s", displayLanguage(language))
		return res
	}

	if len(content) > maxParseBytes {
		res.Status = StatusFail
		res.Message = fmt.Sprintf("content too large to parse: %d bytes (max %d)", len(content), maxParseBytes)
		return res
	}
	if !utf8.ValidString(content) {
		res.Status = StatusFail
		res.Message = "content is not valid UTF-8"
		return res
	}

	// New parser per call; sitter parsers are not safe to share.
	parser := sitter.NewParser()
	parser.SetLanguage(tsLang)

	source := []byte(content)
	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		res.Status = StatusFail
		res.Message = fmt.Sprintf("parse failed: %v", err)
		return res
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil || !root.HasError() {
		res.Status = StatusPass
		res.Message = "syntax is valid"
		return res
	}

	errs := collectSyntaxErrors(root, source)
	if len(errs) == 0 {
		// HasError was set but no ERROR/MISSING node surfaced; report
		// the failure without a position.
		res.Status = StatusFail
		res.Message = "syntax errors present"
		return res
	}

	first := errs[0]
	res.Status = StatusFail
	res.Line = first.line
	res.Message = fmt.Sprintf("syntax error at line %d, col %d: %s", first.line, first.column, first.message)
	if len(errs) > 1 {
		res.Message += fmt.Sprintf(" (and %d more)", len(errs)-1)
	}
	return res
}

// treeSitterLanguage maps a language name to its grammar. TypeScript
// picks the TSX grammar for .tsx files.
func treeSitterLanguage(language, filePath string) *sitter.Language {
	switch strings.ToLower(language) {
	case "go":
		return golang.GetLanguage()
	case "python":
		return python.GetLanguage()
	case "javascript":
		return javascript.GetLanguage()
	case "typescript":
		if strings.EqualFold(filepath.Ext(filePath), ".tsx") {
			return tsx.GetLanguage()
		}
		return typescript.GetLanguage()
	default:
		return nil
	}
}

func displayLanguage(language string) string {
	if language == "" {
		return "unknown language"
	}
	return language
}

// collectSyntaxErrors walks the tree and collects ERROR/MISSING nodes.
func collectSyntaxErrors(root *sitter.Node, source []byte) []syntaxError {
	errs := make([]syntaxError, 0, 4)
	walkSyntaxErrors(root, source, &errs, 0)
	return errs
}

func walkSyntaxErrors(node *sitter.Node, source []byte, errs *[]syntaxError, depth int) {
	if depth > maxWalkDepth || len(*errs) >= maxSyntaxErrors {
		return
	}

	if node.IsError() || node.IsMissing() {
		point := node.StartPoint()

		msg := "unexpected input"
		if node.IsMissing() {
			msg = fmt.Sprintf("missing %q", node.Type())
		} else if snippet := errorSnippet(node, source); snippet != "" {
			msg = fmt.Sprintf("unexpected %q", snippet)
		}

		*errs = append(*errs, syntaxError{
			line:    int(point.Row) + 1,
			column:  int(point.Column),
			message: msg,
		})
		// An ERROR node's children restate the same region.
		return
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		walkSyntaxErrors(node.Child(i), source, errs, depth+1)
	}
}

// errorSnippet extracts a short slice of source around an error node.
func errorSnippet(node *sitter.Node, source []byte) string {
	start := node.StartByte()
	end := node.EndByte()
	if end > uint32(len(source)) {
		end = uint32(len(source))
	}
	if end <= start {
		return ""
	}
	snippet := string(source[start:end])
	snippet = strings.TrimSpace(snippet)
	if idx := strings.IndexByte(snippet, '\n'); idx >= 0 {
		snippet = snippet[:idx]
	}
	const maxSnippet = 40
	if len(snippet) > maxSnippet {
		snippet = snippet[:maxSnippet] + "..."
	}
	return snippet
}
