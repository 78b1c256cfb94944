// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package planner

import "errors"

// Sentinel errors for the planner package.
var (
	// ErrInvalidTransition indicates an invalid state transition was attempted.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrSessionNotFound indicates the requested session does not exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionBusy indicates another operation is in flight for the session.
	ErrSessionBusy = errors.New("session operation in progress")

	// ErrSessionTerminal indicates the session is in a terminal state.
	ErrSessionTerminal = errors.New("session is in a terminal state")

	// ErrProviderFailure indicates the provider could not produce a plan
	// at submit time. The session stays pending; the underlying provider
	// error is wrapped alongside this sentinel.
	ErrProviderFailure = errors.New("provider failed to produce a plan")

	// ErrEmptyPrompt indicates the submitted prompt is empty.
	ErrEmptyPrompt = errors.New("prompt must not be empty")

	// ErrNoEdits indicates the requested stage needs a generated plan.
	ErrNoEdits = errors.New("session has no generated edits")

	// ErrDryRunApply indicates apply was requested for a dry-run session.
	ErrDryRunApply = errors.New("session is dry-run, apply refused")

	// ErrNoRepoPath indicates the stage requires a repository path on disk.
	ErrNoRepoPath = errors.New("session repo context has no repository path")

	// ErrInvalidRequest indicates a malformed stage request.
	ErrInvalidRequest = errors.New("invalid request")
)
