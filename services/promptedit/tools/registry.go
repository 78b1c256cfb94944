// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tools maps languages to the external linters, type checkers,
// formatters, and test commands the edit pipeline invokes.
//
// Defaults ship embedded in the binary; an external YAML file named by
// PROMPTEDIT_TOOLS_PATH overrides them and can be hot-reloaded while
// the service runs.
//
// Thread Safety:
//
//	All exported functions and types are safe for concurrent use.
package tools

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// MaxYAMLFileSize is the maximum allowed external YAML size (1MB).
	MaxYAMLFileSize = 1024 * 1024

	// MaxLanguages bounds the registry to catch runaway config files.
	MaxLanguages = 100

	// EnvToolsPath names the env var pointing at an external registry.
	EnvToolsPath = "PROMPTEDIT_TOOLS_PATH"
)

// =============================================================================
// Embedded Default Registry
// =============================================================================

//go:embed tools.yaml
var defaultToolsYAML []byte

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	registryLoadErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "promptedit_tools_load_errors_total",
		Help: "Total language tool registry load errors",
	})

	registryLoadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "promptedit_tools_load_duration_seconds",
		Help:    "Duration of language tool registry loading",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5},
	})

	registryReloads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "promptedit_tools_reloads_total",
		Help: "Total hot reloads of the language tool registry",
	})
)

var toolsTracer = otel.Tracer("kodiak.promptedit.tools")

// =============================================================================
// YAML Types
// =============================================================================

// registryYAML is the root structure for YAML deserialization.
type registryYAML struct {
	Languages []languageYAML `yaml:"languages"`
}

type languageYAML struct {
	Name       string     `yaml:"name"`
	Extensions []string   `yaml:"extensions"`
	Lint       []toolYAML `yaml:"lint,omitempty"`
	TypeCheck  []toolYAML `yaml:"typecheck,omitempty"`
	Format     []toolYAML `yaml:"format,omitempty"`
	Test       *testYAML  `yaml:"test,omitempty"`
}

type toolYAML struct {
	Name    string   `yaml:"name"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

type testYAML struct {
	Command         string   `yaml:"command"`
	Args            []string `yaml:"args"`
	CoverageCommand string   `yaml:"coverage_command,omitempty"`
	CoverageArgs    []string `yaml:"coverage_args,omitempty"`
}

// =============================================================================
// Registry Types
// =============================================================================

// ToolSpec describes one external tool invocation template.
type ToolSpec struct {
	// Name identifies the tool in validation messages.
	Name string

	// Command is the executable to run.
	Command string

	// Args are the argument template; {file} is replaced per file.
	Args []string
}

// RenderArgs substitutes the {file} placeholder into the arg template.
func (t *ToolSpec) RenderArgs(filePath string) []string {
	out := make([]string, len(t.Args))
	for i, arg := range t.Args {
		out[i] = strings.ReplaceAll(arg, "{file}", filePath)
	}
	return out
}

// TestSpec describes a language's default test command.
type TestSpec struct {
	// Command is the test executable.
	Command string

	// Args are the default arguments; test paths append after them.
	Args []string

	// CoverageCommand replaces Command when coverage is requested.
	// Empty means Command is reused.
	CoverageCommand string

	// CoverageArgs replace Args when coverage is requested.
	CoverageArgs []string
}

// LanguageTools bundles every tool configured for one language.
type LanguageTools struct {
	// Name is the language identifier (e.g., "python").
	Name string

	// Extensions are the file extensions, with dots (e.g., ".py").
	Extensions []string

	// Lint lists linters in priority order.
	Lint []ToolSpec

	// TypeCheck lists type checkers in priority order.
	TypeCheck []ToolSpec

	// Format lists formatters in priority order.
	Format []ToolSpec

	// Test is the default test command, nil when none is configured.
	Test *TestSpec
}

// Registry maps languages and file extensions to their tools.
//
// Thread Safety: Safe for concurrent use. Reload swaps state under a
// write lock; readers see either the old or the new snapshot.
type Registry struct {
	mu        sync.RWMutex
	languages map[string]*LanguageTools
	extIndex  map[string]string
	loadedAt  int64
	source    string
}

// =============================================================================
// Singleton Registry
// =============================================================================

var (
	registryMu      sync.RWMutex
	registryOnce    sync.Once
	cachedRegistry  *Registry
	registryLoadErr error
)

// GetRegistry returns the cached language tool registry.
//
// Description:
//
//	Loads the registry on first call and caches it. An external file
//	named by PROMPTEDIT_TOOLS_PATH takes priority over the embedded
//	defaults; a broken external file falls back to embedded with a
//	warning rather than failing the service.
//
// Inputs:
//
//	ctx - Context for tracing. Must not be nil.
//
// Outputs:
//
//	*Registry - The loaded registry. Never nil on success.
//	error - Non-nil if even the embedded defaults fail to parse.
//
// Thread Safety: Safe for concurrent use.
func GetRegistry(ctx context.Context) (*Registry, error) {
	if ctx == nil {
		return nil, fmt.Errorf("GetRegistry: ctx must not be nil")
	}

	registryMu.RLock()
	if cachedRegistry != nil || registryLoadErr != nil {
		reg, err := cachedRegistry, registryLoadErr
		registryMu.RUnlock()
		return reg, err
	}
	registryMu.RUnlock()

	registryMu.Lock()
	defer registryMu.Unlock()

	if cachedRegistry != nil || registryLoadErr != nil {
		return cachedRegistry, registryLoadErr
	}

	registryOnce.Do(func() {
		cachedRegistry, registryLoadErr = loadRegistry(ctx)
	})

	return cachedRegistry, registryLoadErr
}

// ResetRegistry clears the cached registry so the next GetRegistry call
// reloads it. Intended for tests.
func ResetRegistry() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registryOnce = sync.Once{}
	cachedRegistry = nil
	registryLoadErr = nil
}

// =============================================================================
// Loading Logic
// =============================================================================

// loadRegistry loads the registry from the external file or the
// embedded defaults.
func loadRegistry(ctx context.Context) (*Registry, error) {
	ctx, span := toolsTracer.Start(ctx, "tools.Load")
	defer span.End()

	startTime := time.Now()
	defer func() {
		registryLoadDuration.Observe(time.Since(startTime).Seconds())
	}()

	var yamlData []byte
	source := "embedded"

	if externalPath := ExternalPath(); externalPath != "" {
		data, err := loadExternalYAML(externalPath)
		if err == nil {
			yamlData = data
			source = externalPath
			slog.Info("Loaded language tool registry from external file",
				slog.String("path", externalPath))
		} else {
			slog.Warn("External tool registry not usable, using embedded default",
				slog.String("path", externalPath),
				slog.String("error", err.Error()))
		}
	}

	if yamlData == nil {
		yamlData = defaultToolsYAML
		slog.Debug("Using embedded language tool registry")
	}

	span.SetAttributes(
		attribute.String("source", source),
		attribute.Int("yaml_size", len(yamlData)),
	)

	registry, err := parseToolsYAML(yamlData, source)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "parse failed")
		registryLoadErrors.Inc()
		return nil, fmt.Errorf("parsing language tool registry: %w", err)
	}

	slog.Info("Language tool registry loaded",
		slog.Int("language_count", len(registry.languages)),
		slog.String("source", source))

	return registry, nil
}

// ExternalPath returns the configured external registry path, or "".
func ExternalPath() string {
	if path := os.Getenv(EnvToolsPath); path != "" {
		return path
	}
	for _, loc := range []string{"./config/promptedit_tools.yaml"} {
		if _, err := os.Stat(loc); err == nil {
			absPath, _ := filepath.Abs(loc)
			return absPath
		}
	}
	return ""
}

// loadExternalYAML reads an external registry file with size checks.
func loadExternalYAML(path string) ([]byte, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if info.Size() > MaxYAMLFileSize {
		return nil, fmt.Errorf("YAML file too large: %d bytes (max %d)", info.Size(), MaxYAMLFileSize)
	}

	return os.ReadFile(absPath)
}

// parseToolsYAML parses YAML into a registry with an extension index.
func parseToolsYAML(data []byte, source string) (*Registry, error) {
	var root registryYAML
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("unmarshaling YAML: %w", err)
	}

	if len(root.Languages) > MaxLanguages {
		return nil, fmt.Errorf("too many languages: %d (max %d)", len(root.Languages), MaxLanguages)
	}

	registry := &Registry{
		languages: make(map[string]*LanguageTools, len(root.Languages)),
		extIndex:  make(map[string]string),
		loadedAt:  time.Now().UnixMilli(),
		source:    source,
	}

	for i, lang := range root.Languages {
		if lang.Name == "" {
			return nil, fmt.Errorf("language at index %d has empty name", i)
		}

		lt := &LanguageTools{
			Name:       lang.Name,
			Extensions: lang.Extensions,
			Lint:       convertTools(lang.Lint),
			TypeCheck:  convertTools(lang.TypeCheck),
			Format:     convertTools(lang.Format),
		}
		if lang.Test != nil {
			if lang.Test.Command == "" {
				return nil, fmt.Errorf("language %s has a test entry with empty command", lang.Name)
			}
			lt.Test = &TestSpec{
				Command:         lang.Test.Command,
				Args:            lang.Test.Args,
				CoverageCommand: lang.Test.CoverageCommand,
				CoverageArgs:    lang.Test.CoverageArgs,
			}
		}

		registry.languages[lang.Name] = lt
		for _, ext := range lang.Extensions {
			registry.extIndex[strings.ToLower(ext)] = lang.Name
		}
	}

	return registry, nil
}

func convertTools(in []toolYAML) []ToolSpec {
	out := make([]ToolSpec, 0, len(in))
	for _, t := range in {
		if t.Command == "" {
			continue
		}
		name := t.Name
		if name == "" {
			name = t.Command
		}
		out = append(out, ToolSpec{Name: name, Command: t.Command, Args: t.Args})
	}
	return out
}

// =============================================================================
// Registry Methods
// =============================================================================

// Get returns the tools for a language.
func (r *Registry) Get(language string) (*LanguageTools, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lt, ok := r.languages[strings.ToLower(language)]
	return lt, ok
}

// LanguageForFile returns the language for a file path, or "" when the
// extension is not registered.
func (r *Registry) LanguageForFile(filePath string) string {
	ext := strings.ToLower(filepath.Ext(filePath))
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.extIndex[ext]
}

// Languages returns all registered language names.
func (r *Registry) Languages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	langs := make([]string, 0, len(r.languages))
	for lang := range r.languages {
		langs = append(langs, lang)
	}
	return langs
}

// LoadedAt returns when the registry was loaded, in Unix milliseconds.
func (r *Registry) LoadedAt() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loadedAt
}

// Source reports where the registry content came from.
func (r *Registry) Source() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.source
}

// replaceFrom swaps this registry's contents with another's.
func (r *Registry) replaceFrom(fresh *Registry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.languages = fresh.languages
	r.extIndex = fresh.extIndex
	r.loadedAt = fresh.loadedAt
	r.source = fresh.source
}
