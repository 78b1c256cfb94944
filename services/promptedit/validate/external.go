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
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/AleutianAI/Kodiak/services/promptedit/toolexec"
	"github.com/AleutianAI/Kodiak/services/promptedit/tools"
)

// =============================================================================
// External Tool Checks
// =============================================================================

// checkExternal runs the first installed lint or type tool for a file.
//
// Description:
//
//	Content is written to a temp file carrying the original extension,
//	the tool's {file} placeholder is rendered against it, and the tool
//	runs under the pipeline's timeout. A tool that is configured but
//	not installed, times out, or cannot be spawned yields a fail result
//	naming the tool. Non-zero exits from a tool that ran are advisory
//	warnings, except where the tool's own exit contract marks real
//	errors (pylint).
func (p *Pipeline) checkExternal(ctx context.Context, filePath, content, language string, ct CheckType, specs []tools.ToolSpec) Result {
	res := Result{FilePath: filePath, Type: ct}

	if len(specs) == 0 {
		res.Status = StatusSkipped
		res.Message = noCheckerMessage(ct, language)
		return res
	}

	spec, ok := firstInstalled(specs)
	res.Tool = spec.Name
	if !ok {
		res.Status = StatusFail
		res.Message = notInstalledMessage(ct, specs)
		return res
	}

	tmpPath, cleanup, err := writeTempFile(content, filePath)
	if err != nil {
		res.Status = StatusFail
		res.Message = fmt.Sprintf("%s: staging temp file: %v", spec.Name, err)
		return res
	}
	defer cleanup()

	out, execErr := toolexec.Execute(ctx, toolexec.Spec{
		Command: spec.Command,
		Args:    spec.RenderArgs(tmpPath),
		Timeout: p.toolTimeout,
	})
	if execErr != nil {
		res.Status = StatusFail
		if errors.Is(execErr, toolexec.ErrTimeout) {
			res.Message = fmt.Sprintf("%s timed out after %s", spec.Name, p.toolTimeout)
		} else {
			res.Message = fmt.Sprintf("%s failed to run: %v", spec.Name, execErr)
		}
		p.logger.Warn("Validation tool failed",
			slog.String("tool", spec.Name),
			slog.String("file", filePath),
			slog.String("error", res.Message))
		return res
	}

	res.Status, res.Message = interpretExit(ct, spec.Name, out)
	return res
}

// firstInstalled returns the first spec whose command resolves on PATH.
// When none do, the first spec is returned with ok=false so the caller
// can still name a tool in its message.
func firstInstalled(specs []tools.ToolSpec) (tools.ToolSpec, bool) {
	for _, spec := range specs {
		if toolexec.Available(spec.Command) {
			return spec, true
		}
	}
	return specs[0], false
}

// notInstalledMessage names every configured tool that was tried.
func notInstalledMessage(ct CheckType, specs []tools.ToolSpec) string {
	names := make([]string, len(specs))
	for i, spec := range specs {
		names[i] = spec.Name
	}
	kind := "lint"
	if ct == CheckTypes {
		kind = "type check"
	}
	if len(names) == 1 {
		return fmt.Sprintf("%s tool not installed: %s", kind, names[0])
	}
	return fmt.Sprintf("no %s tool installed (tried %s)", kind, strings.Join(names, ", "))
}

// interpretExit maps a tool's exit code to a validation status.
//
// Pylint's exit code is a bit mask; codes below 16 mean findings were
// reported, 16 and above mean the run itself went wrong. Every other
// tool reports findings with any non-zero exit.
func interpretExit(ct CheckType, toolName string, out *toolexec.Result) (Status, string) {
	if out.ExitCode == 0 {
		switch ct {
		case CheckTypes:
			return StatusPass, "no type errors found"
		default:
			return StatusPass, "no lint issues found"
		}
	}

	msg := trimMessage(out.CombinedOutput())
	if msg == "" {
		msg = fmt.Sprintf("%s exited with code %d", toolName, out.ExitCode)
	}

	if toolName == "pylint" && out.ExitCode >= 16 {
		return StatusFail, msg
	}
	return StatusWarning, msg
}

// writeTempFile stages content in a temp file that keeps the original
// file's extension, so extension-sensitive tools see the right kind.
func writeTempFile(content, originalPath string) (string, func(), error) {
	ext := filepath.Ext(originalPath)
	f, err := os.CreateTemp("", "promptedit-*"+ext)
	if err != nil {
		return "", nil, err
	}
	path := f.Name()
	cleanup := func() { _ = os.Remove(path) }

	if _, err := f.WriteString(content); err != nil {
		_ = f.Close()
		cleanup()
		return "", nil, err
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, err
	}
	return path, cleanup, nil
}

// trimMessage bounds tool output carried into a result message.
func trimMessage(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxMessageBytes {
		s = s[:maxMessageBytes] + "..."
	}
	return s
}
