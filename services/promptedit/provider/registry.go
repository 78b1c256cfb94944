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
	"fmt"
	"sort"
	"sync"
)

// =============================================================================
// Registry
// =============================================================================

// Factory builds a provider for a specific model. An empty model means
// the backend's default.
type Factory func(model string) (Provider, error)

// defaultModels maps provider names to the model used when the caller
// does not pick one. Also used for listing backends whose construction
// failed (missing credentials do not hide the backend from discovery).
var defaultModels = map[string]string{
	ProviderOpenAI:    "gpt-4o-mini",
	ProviderAnthropic: "claude-3-5-sonnet-20240620",
	ProviderOllama:    "gpt-oss",
	ProviderMock:      "mock-model",
}

// ProviderInfo describes a registered backend for discovery endpoints.
type ProviderInfo struct {
	// Name is the registry name.
	Name string `json:"name"`

	// DefaultModel is the model used when a request does not pick one.
	DefaultModel string `json:"default_model"`

	// Available reports whether the backend constructed successfully
	// and is ready to serve requests.
	Available bool `json:"available"`
}

// Registry constructs and caches providers by (name, model).
//
// # Description
//
// Construction is lazy. The first Get for a given (name, model) pair
// runs the factory; later calls return the cached instance. A failed
// construction is not cached, so a backend that gains credentials at
// runtime becomes usable without a restart.
//
// # Thread Safety
//
// Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	instances map[string]Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		instances: make(map[string]Provider),
	}
}

// DefaultRegistry returns a registry with every built-in backend wired.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(ProviderOpenAI, func(model string) (Provider, error) { return NewOpenAIProvider(model) })
	r.Register(ProviderAnthropic, func(model string) (Provider, error) { return NewAnthropicProvider(model) })
	r.Register(ProviderOllama, func(model string) (Provider, error) { return NewOllamaProvider(model) })
	r.Register(ProviderMock, func(model string) (Provider, error) { return NewMockProvider(model), nil })
	return r
}

// Register adds or replaces the factory for a provider name.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Names returns the registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns a provider for the given name and model, constructing it
// on first use.
//
// # Inputs
//
//   - name: Registered provider name.
//   - model: Model override, or "" for the backend default.
//
// # Outputs
//
//   - Provider: Ready-to-use provider.
//   - error: ErrUnknownProvider for unregistered names, or the
//     factory's construction error.
func (r *Registry) Get(name, model string) (Provider, error) {
	key := name + "/" + model

	r.mu.RLock()
	inst, cached := r.instances[key]
	factory, known := r.factories[name]
	r.mu.RUnlock()

	if cached {
		return inst, nil
	}
	if !known {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}

	built, err := factory(model)
	if err != nil {
		return nil, fmt.Errorf("constructing provider %q: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Another goroutine may have won the construction race.
	if inst, ok := r.instances[key]; ok {
		return inst, nil
	}
	r.instances[key] = built
	return built, nil
}

// List describes every registered backend, including ones whose
// construction currently fails.
func (r *Registry) List() []ProviderInfo {
	infos := make([]ProviderInfo, 0, 4)
	for _, name := range r.Names() {
		info := ProviderInfo{
			Name:         name,
			DefaultModel: defaultModels[name],
		}
		if p, err := r.Get(name, ""); err == nil {
			info.Available = p.Available()
			if m := p.Model(); m != "" {
				info.DefaultModel = m
			}
		}
		infos = append(infos, info)
	}
	return infos
}
