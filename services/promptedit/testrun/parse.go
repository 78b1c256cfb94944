// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package testrun

import (
	"errors"
	"strconv"
	"strings"
)

// =============================================================================
// Command Splitting
// =============================================================================

// splitCommand splits a command line into argv, honoring single and
// double quotes and backslash escapes.
//
// Description:
//
//	Mirrors POSIX shell word splitting closely enough for test command
//	lines: whitespace separates words, quotes group them, a backslash
//	escapes the next character outside single quotes. No expansion of
//	variables or globs is performed.
func splitCommand(command string) ([]string, error) {
	var (
		argv    []string
		current strings.Builder
		inWord  bool
		quote   rune
		escaped bool
	)

	for _, r := range command {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
			inWord = true
		case r == '\\' && quote != '\'':
			escaped = true
			inWord = true
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				current.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			inWord = true
		case r == ' ' || r == '\t' || r == '\n':
			if inWord {
				argv = append(argv, current.String())
				current.Reset()
				inWord = false
			}
		default:
			current.WriteRune(r)
			inWord = true
		}
	}

	if escaped {
		return nil, errors.New("trailing backslash")
	}
	if quote != 0 {
		return nil, errors.New("unterminated quote")
	}
	if inWord {
		argv = append(argv, current.String())
	}
	return argv, nil
}

// =============================================================================
// Test Output Parsing
// =============================================================================

// outputReport holds counts parsed from test output. found reports
// whether any recognizable test report appeared at all.
type outputReport struct {
	passed  int
	failed  int
	skipped int
	found   bool
}

// parseTestOutput extracts pass/fail/skip counts from test output.
//
// Description:
//
//	Recognizes three report shapes:
//	  - pytest summary lines: "=== 5 passed, 2 failed in 0.50s ==="
//	  - go test verbose markers: "--- PASS:", "--- FAIL:", "--- SKIP:"
//	    and package lines: "ok  pkg  0.2s" / "FAIL  pkg  0.2s"
//	  - jest summary lines: "Tests: 1 failed, 2 passed, 3 total"
//	Counts accumulate across lines so multi-package runs sum up.
func parseTestOutput(output string) outputReport {
	var report outputReport

	for _, rawLine := range strings.Split(output, "\n") {
		line := strings.ToLower(strings.TrimSpace(rawLine))
		if line == "" {
			continue
		}

		switch {
		case strings.HasPrefix(line, "=") && strings.Contains(line, " in "):
			// pytest pads its summary with = signs on both sides.
			body := strings.Trim(line, "= ")
			if idx := strings.LastIndex(body, " in "); idx > 0 {
				body = body[:idx]
			}
			if countSummaryParts(body, &report) {
				report.found = true
			}

		case strings.HasPrefix(line, "tests:"):
			if countSummaryParts(strings.TrimPrefix(line, "tests:"), &report) {
				report.found = true
			}

		case strings.HasPrefix(line, "--- pass:"):
			report.passed++
			report.found = true
		case strings.HasPrefix(line, "--- fail:"):
			report.failed++
			report.found = true
		case strings.HasPrefix(line, "--- skip:"):
			report.skipped++
			report.found = true

		default:
			fields := strings.Fields(line)
			if len(fields) >= 2 && (fields[0] == "ok" || fields[0] == "fail") {
				// go test package result line; counts stay as-is but
				// the line proves a test report ran.
				report.found = true
			}
		}
	}

	return report
}

// countSummaryParts scans "N passed, M failed" style fragments and adds
// the counts to the report. Returns true when any count was read.
func countSummaryParts(body string, report *outputReport) bool {
	matched := false
	for _, part := range strings.Split(body, ",") {
		fields := strings.Fields(strings.TrimSpace(part))
		if len(fields) < 2 {
			continue
		}
		n, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		switch {
		case strings.HasPrefix(fields[1], "passed"):
			report.passed += n
			matched = true
		case strings.HasPrefix(fields[1], "failed"):
			report.failed += n
			matched = true
		case strings.HasPrefix(fields[1], "skipped"):
			report.skipped += n
			matched = true
		}
	}
	return matched
}

// =============================================================================
// Coverage Parsing
// =============================================================================

// extractCoveragePercent pulls a coverage percentage out of test output.
//
// Description:
//
//	Handles coverage.py report totals ("TOTAL  120  12  90%"), lines
//	that mention coverage explicitly ("coverage: 85.2% of statements",
//	go test -cover), and pytest-cov's "TOTAL ... 90%" table row. The
//	last percentage on a matching line wins. Returns nil when nothing
//	parseable appears.
func extractCoveragePercent(output string) *float64 {
	for _, rawLine := range strings.Split(output, "\n") {
		line := strings.ToLower(strings.TrimSpace(rawLine))
		if !strings.Contains(line, "%") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if fields[0] != "total" && !strings.Contains(line, "coverage") {
			continue
		}

		for i := len(fields) - 1; i >= 0; i-- {
			token := strings.TrimSuffix(fields[i], "%")
			if token == fields[i] {
				continue
			}
			if value, err := strconv.ParseFloat(token, 64); err == nil {
				return &value
			}
		}
	}
	return nil
}
