// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package toolexec

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestExecute_CapturesStdout(t *testing.T) {
	result, err := Execute(context.Background(), Spec{
		Command: "echo",
		Args:    []string{"hello"},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if result.ExitCode != 0 {
		t.Errorf("exit code = %d, want 0", result.ExitCode)
	}
	if result.Stdout != "hello\n" {
		t.Errorf("stdout = %q, want %q", result.Stdout, "hello\n")
	}
	if !result.Succeeded() {
		t.Errorf("Succeeded() = false, want true")
	}
	if result.Duration <= 0 {
		t.Errorf("duration = %v, want > 0", result.Duration)
	}
}

func TestExecute_NonZeroExit(t *testing.T) {
	result, err := Execute(context.Background(), Spec{
		Command: "sh",
		Args:    []string{"-c", "echo oops >&2; exit 3"},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v, want nil for non-zero exit", err)
	}

	if result.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", result.ExitCode)
	}
	if !strings.Contains(result.Stderr, "oops") {
		t.Errorf("stderr = %q, want to contain oops", result.Stderr)
	}
	if result.Succeeded() {
		t.Errorf("Succeeded() = true for exit 3")
	}
}

func TestExecute_EmptyCommand(t *testing.T) {
	_, err := Execute(context.Background(), Spec{})
	if !errors.Is(err, ErrEmptyCommand) {
		t.Errorf("Execute() error = %v, want ErrEmptyCommand", err)
	}
}

func TestExecute_MissingCommand(t *testing.T) {
	result, err := Execute(context.Background(), Spec{Command: "no-such-tool-anywhere"})
	if err == nil {
		t.Fatal("Execute() error = nil for missing command")
	}
	if errors.Is(err, ErrTimeout) {
		t.Errorf("Execute() error = %v, want spawn failure", err)
	}
	if result == nil || result.ExitCode != -1 {
		t.Errorf("result = %+v, want exit code -1", result)
	}
}

func TestExecute_Timeout(t *testing.T) {
	start := time.Now()
	result, err := Execute(context.Background(), Spec{
		Command: "sleep",
		Args:    []string{"5"},
		Timeout: 100 * time.Millisecond,
	})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Execute() error = %v, want ErrTimeout", err)
	}

	if !result.TimedOut {
		t.Errorf("TimedOut = false, want true")
	}
	if result.ExitCode != -1 {
		t.Errorf("exit code = %d, want -1", result.ExitCode)
	}
	if result.Succeeded() {
		t.Errorf("Succeeded() = true after timeout")
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("timeout took %v, process was not killed promptly", elapsed)
	}
}

func TestExecute_PipesStdin(t *testing.T) {
	result, err := Execute(context.Background(), Spec{
		Command: "cat",
		Stdin:   "ping\n",
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Stdout != "ping\n" {
		t.Errorf("stdout = %q, want %q", result.Stdout, "ping\n")
	}
}

func TestExecute_WorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "marker.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	result, err := Execute(context.Background(), Spec{
		Command: "ls",
		Dir:     dir,
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(result.Stdout, "marker.txt") {
		t.Errorf("stdout = %q, want listing with marker.txt", result.Stdout)
	}
}

func TestExecute_ExtraEnvironment(t *testing.T) {
	result, err := Execute(context.Background(), Spec{
		Command: "sh",
		Args:    []string{"-c", `printf %s "$TOOLEXEC_TEST_VAR"`},
		Env:     []string{"TOOLEXEC_TEST_VAR=hello"},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Stdout != "hello" {
		t.Errorf("stdout = %q, want %q", result.Stdout, "hello")
	}
}

func TestExecute_TruncatesOutput(t *testing.T) {
	result, err := Execute(context.Background(), Spec{
		Command:        "echo",
		Args:           []string{"0123456789ABCDEF"},
		MaxOutputBytes: 10,
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if result.Stdout != "0123456789" {
		t.Errorf("stdout = %q, want first 10 bytes", result.Stdout)
	}
	if !result.Truncated {
		t.Errorf("Truncated = false, want true")
	}
	if result.ExitCode != 0 {
		t.Errorf("exit code = %d, truncation broke the process", result.ExitCode)
	}
}

func TestResult_CombinedOutput(t *testing.T) {
	r := &Result{Stdout: "out\n", Stderr: "err\n"}
	if got := r.CombinedOutput(); got != "out\nerr\n" {
		t.Errorf("CombinedOutput() = %q, want %q", got, "out\nerr\n")
	}
}

func TestAvailable(t *testing.T) {
	if !Available("sh") {
		t.Errorf("Available(sh) = false")
	}
	if Available("no-such-tool-anywhere") {
		t.Errorf("Available(no-such-tool-anywhere) = true")
	}
}
