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
	"context"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/AleutianAI/Kodiak/services/promptedit/tools"
)

func newTestRunner(t *testing.T, dir string) *Runner {
	t.Helper()
	reg, err := tools.GetRegistry(context.Background())
	if err != nil {
		t.Fatalf("GetRegistry() error = %v", err)
	}
	return NewRunner(dir, reg)
}

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []string
		wantErr bool
	}{
		{"simple", "python -m pytest", []string{"python", "-m", "pytest"}, false},
		{"double quotes", `pytest -k "not slow"`, []string{"pytest", "-k", "not slow"}, false},
		{"single quotes", `sh -c 'echo hi'`, []string{"sh", "-c", "echo hi"}, false},
		{"escaped space", `run a\ b`, []string{"run", "a b"}, false},
		{"extra whitespace", "  go   test\t./...  ", []string{"go", "test", "./..."}, false},
		{"empty", "", nil, false},
		{"unterminated quote", `pytest "oops`, nil, true},
		{"trailing backslash", `pytest \`, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := splitCommand(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("splitCommand(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err == nil && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("splitCommand(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseTestOutput_PytestSummary(t *testing.T) {
	output := `============================= test session starts ==============================
collected 8 items

tests/test_app.py ....F..s                                               [100%]

=========================== short test summary info ============================
FAILED tests/test_app.py::test_broken - AssertionError
==================== 6 passed, 1 failed, 1 skipped in 0.52s ====================
`
	report := parseTestOutput(output)

	if !report.found {
		t.Fatal("report.found = false, want true for pytest summary")
	}
	if report.passed != 6 || report.failed != 1 || report.skipped != 1 {
		t.Errorf("counts = %d/%d/%d, want 6/1/1", report.passed, report.failed, report.skipped)
	}
}

func TestParseTestOutput_PytestWithWarnings(t *testing.T) {
	report := parseTestOutput("=== 5 passed, 2 warnings in 0.50s ===\n")

	if !report.found {
		t.Fatal("report.found = false, want true")
	}
	if report.passed != 5 || report.failed != 0 {
		t.Errorf("counts = %d/%d, want 5/0", report.passed, report.failed)
	}
}

func TestParseTestOutput_GoVerbose(t *testing.T) {
	output := `=== RUN   TestAlpha
--- PASS: TestAlpha (0.00s)
=== RUN   TestBeta
--- FAIL: TestBeta (0.01s)
=== RUN   TestGamma
--- SKIP: TestGamma (0.00s)
FAIL
FAIL	example.com/pkg	0.015s
`
	report := parseTestOutput(output)

	if !report.found {
		t.Fatal("report.found = false, want true for go test output")
	}
	if report.passed != 1 || report.failed != 1 || report.skipped != 1 {
		t.Errorf("counts = %d/%d/%d, want 1/1/1", report.passed, report.failed, report.skipped)
	}
}

func TestParseTestOutput_GoPackageLineOnly(t *testing.T) {
	report := parseTestOutput("ok  \texample.com/pkg\t0.2s\n")

	if !report.found {
		t.Error("report.found = false, want true for ok package line")
	}
	if report.passed != 0 {
		t.Errorf("passed = %d, want 0 without verbose markers", report.passed)
	}
}

func TestParseTestOutput_JestSummary(t *testing.T) {
	report := parseTestOutput("Tests:       1 failed, 4 passed, 5 total\n")

	if !report.found {
		t.Fatal("report.found = false, want true for jest summary")
	}
	if report.passed != 4 || report.failed != 1 {
		t.Errorf("counts = %d/%d, want 4/1", report.passed, report.failed)
	}
}

func TestParseTestOutput_NoReport(t *testing.T) {
	report := parseTestOutput("error: cannot find module\nsomething broke\n")

	if report.found {
		t.Error("report.found = true, want false for unrecognized output")
	}
}

func TestExtractCoveragePercent(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   float64
		found  bool
	}{
		{
			"coverage.py total row",
			"Name    Stmts  Miss  Cover\napp.py    100    10   90%\nTOTAL     120    12   90%\n",
			90, true,
		},
		{
			"go test cover",
			"ok  \texample.com/pkg\t0.2s\tcoverage: 85.2% of statements\n",
			85.2, true,
		},
		{
			"no coverage info",
			"=== 3 passed in 0.1s ===\n",
			0, false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractCoveragePercent(tt.output)
			if (got != nil) != tt.found {
				t.Fatalf("extractCoveragePercent() found = %v, want %v", got != nil, tt.found)
			}
			if got != nil && *got != tt.want {
				t.Errorf("extractCoveragePercent() = %v, want %v", *got, tt.want)
			}
		})
	}
}

func TestBuildCommand_Defaults(t *testing.T) {
	r := newTestRunner(t, t.TempDir())

	tests := []struct {
		name string
		spec Spec
		want []string
	}{
		{"python default", Spec{Language: "python"}, []string{"python", "-m", "pytest"}},
		{"python coverage", Spec{Language: "python", Coverage: true}, []string{"coverage", "run", "-m", "pytest"}},
		{"empty language falls back to python", Spec{}, []string{"python", "-m", "pytest"}},
		{"go default", Spec{Language: "go"}, []string{"go", "test", "./..."}},
		{"go coverage", Spec{Language: "go", Coverage: true}, []string{"go", "test", "-cover", "./..."}},
		{"unknown language", Spec{Language: "fortran"}, []string{"python", "-m", "pytest"}},
		{"paths appended", Spec{Language: "python", Paths: []string{"tests/unit"}}, []string{"python", "-m", "pytest", "tests/unit"}},
		{"custom command", Spec{Command: "make check", Paths: []string{"x"}}, []string{"make", "check", "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.buildCommand(tt.spec)
			if err != nil {
				t.Fatalf("buildCommand() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("buildCommand() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRun_PassedWithReport(t *testing.T) {
	r := newTestRunner(t, t.TempDir())

	result, err := r.Run(context.Background(), Spec{
		Command: `sh -c "echo === 3 passed, 1 failed in 0.5s ==="`,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.Status != StatusPassed {
		t.Errorf("status = %v, want passed (output: %s)", result.Status, result.Output)
	}
	if result.Passed != 3 || result.Failed != 1 {
		t.Errorf("counts = %d/%d, want 3/1", result.Passed, result.Failed)
	}
}

func TestRun_FailedWithReport(t *testing.T) {
	r := newTestRunner(t, t.TempDir())

	result, err := r.Run(context.Background(), Spec{
		Command: `sh -c "echo === 2 failed in 0.1s ===; exit 1"`,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.Status != StatusFailed {
		t.Errorf("status = %v, want failed", result.Status)
	}
	if result.Failed != 2 {
		t.Errorf("failed = %d, want 2", result.Failed)
	}
}

func TestRun_NonZeroWithoutReportIsError(t *testing.T) {
	r := newTestRunner(t, t.TempDir())

	result, err := r.Run(context.Background(), Spec{Command: "false"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.Status != StatusError {
		t.Errorf("status = %v, want error for unparseable failure", result.Status)
	}
}

func TestRun_TimeoutKillsProcess(t *testing.T) {
	r := newTestRunner(t, t.TempDir())

	start := time.Now()
	result, err := r.Run(context.Background(), Spec{
		Command: "sleep 5",
		Timeout: 150 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.Status != StatusTimeout {
		t.Errorf("status = %v, want timeout", result.Status)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("run took %s, want the process killed at the deadline", elapsed)
	}
	if !strings.Contains(result.Output, "timed out") {
		t.Errorf("output = %q, want a timeout note", result.Output)
	}
}

func TestRun_RunsInRepoRoot(t *testing.T) {
	dir := t.TempDir()
	r := newTestRunner(t, dir)

	result, err := r.Run(context.Background(), Spec{Command: `sh -c "pwd"`})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if !strings.Contains(result.Output, filepath.Base(dir)) {
		t.Errorf("output = %q, want it to contain the repo root %q", result.Output, dir)
	}
}

func TestRun_InvalidCustomCommand(t *testing.T) {
	r := newTestRunner(t, t.TempDir())

	if _, err := r.Run(context.Background(), Spec{Command: `pytest "unclosed`}); err == nil {
		t.Error("Run() error = nil, want an invalid-command error")
	}
}

func TestRun_CoverageExtracted(t *testing.T) {
	r := newTestRunner(t, t.TempDir())

	result, err := r.Run(context.Background(), Spec{
		Command:  `sh -c "echo === 1 passed in 0.1s ===; echo TOTAL 100 10 90%"`,
		Coverage: true,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.CoveragePercent == nil {
		t.Fatal("CoveragePercent = nil, want parsed value")
	}
	if *result.CoveragePercent != 90 {
		t.Errorf("CoveragePercent = %v, want 90", *result.CoveragePercent)
	}
}
