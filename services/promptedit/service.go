// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package promptedit provides the prompt edit HTTP service.
//
// The service exposes endpoints for:
//   - Submitting a prompt and generating an edit plan
//   - Previewing per-file unified diffs
//   - Validating, formatting, applying, and testing the plan
//   - Inspecting session status and provider availability
package promptedit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/Kodiak/services/promptedit/planner"
	"github.com/AleutianAI/Kodiak/services/promptedit/tools"
)

// ServiceConfig configures the prompt edit service.
type ServiceConfig struct {
	// DataDir enables persistent session storage in BadgerDB under the
	// given directory. Empty keeps sessions in memory only.
	// Default: "" (in-memory)
	DataDir string

	// TestTimeout caps test runs started through the service.
	// Default: the test runner's built-in timeout
	TestTimeout time.Duration

	// DefaultRepoRoot is applied to submissions whose repository context
	// does not name a path. Empty leaves submissions as sent.
	// Default: "" (no defaulting)
	DefaultRepoRoot string

	// Logger is the service logger.
	// Default: slog.Default()
	Logger *slog.Logger
}

// DefaultServiceConfig returns sensible defaults.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{}
}

// Service is the prompt edit service.
//
// Thread Safety:
//
//	Service is safe for concurrent use. Per-session serialization is
//	enforced by the planner; unrelated sessions proceed independently.
type Service struct {
	planner  *planner.Planner
	store    planner.SessionStore
	logger   *slog.Logger
	repoRoot string
}

// NewService creates a prompt edit service.
//
// Description:
//
//	Loads the language tool registry, opens the session store (BadgerDB
//	when DataDir is set, in-memory otherwise), and builds the planner
//	over both. Call Close when done to release the store.
//
// Inputs:
//
//	ctx - Context for registry loading
//	cfg - Service configuration
//
// Outputs:
//
//	*Service - The configured service
//	error - Non-nil if the tool registry or session store cannot be opened
func NewService(ctx context.Context, cfg ServiceConfig) (*Service, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	registry, err := tools.GetRegistry(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading tool registry: %w", err)
	}

	var store planner.SessionStore
	if cfg.DataDir != "" {
		store, err = planner.NewBadgerStore(planner.BadgerStoreConfig{
			Path:   cfg.DataDir,
			Logger: logger,
		})
		if err != nil {
			return nil, fmt.Errorf("opening session store: %w", err)
		}
	} else {
		store = planner.NewInMemoryStore()
	}

	opts := []planner.Option{
		planner.WithStore(store),
		planner.WithLogger(logger),
	}
	if cfg.TestTimeout > 0 {
		opts = append(opts, planner.WithTestTimeout(cfg.TestTimeout))
	}

	return &Service{
		planner:  planner.NewPlanner(registry, opts...),
		store:    store,
		logger:   logger,
		repoRoot: cfg.DefaultRepoRoot,
	}, nil
}

// Planner exposes the underlying planner for direct (non-HTTP) use.
func (s *Service) Planner() *planner.Planner {
	return s.planner
}

// DefaultRepoRoot returns the configured fallback repository path, or "".
func (s *Service) DefaultRepoRoot() string {
	return s.repoRoot
}

// SessionCount reports how many sessions the store currently holds.
func (s *Service) SessionCount() int {
	return s.planner.SessionCount()
}

// Close releases the session store.
func (s *Service) Close() error {
	if closer, ok := s.store.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
