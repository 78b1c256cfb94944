// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds the serve command settings. Values resolve in
// three layers: compiled-in defaults, then the config file, then any
// flag the caller set explicitly.
type ServerConfig struct {
	// Port is the HTTP listen port.
	Port int `yaml:"port"`

	// Debug enables gin debug mode and per-request logging.
	Debug bool `yaml:"debug"`

	// DataDir enables persistent session storage under this directory.
	// Empty keeps sessions in memory only.
	DataDir string `yaml:"data_dir"`

	// ToolsConfig points at an external language tool registry YAML.
	ToolsConfig string `yaml:"tools_config"`

	// RepoRoot is the default repository path for submissions that do
	// not name one.
	RepoRoot string `yaml:"repo_root"`

	// TestTimeout caps test runs, as a duration string like "2m".
	// Empty uses the runner default.
	TestTimeout string `yaml:"test_timeout"`

	// DisableMetrics turns off the Prometheus /metrics endpoint.
	DisableMetrics bool `yaml:"disable_metrics"`

	// LogDir enables file logging under this directory.
	LogDir string `yaml:"log_dir"`

	// LogLevel is the minimum log level: debug, info, warn, or error.
	LogLevel string `yaml:"log_level"`
}

// defaultServerConfig returns the compiled-in defaults.
func defaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:     8080,
		LogLevel: "info",
	}
}

// defaultConfigPath returns the conventional config location, or ""
// when the home directory cannot be determined.
func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".kodiak", "kodiak.yaml")
}

// loadServerConfig reads a server config file.
//
// Description:
//
//	A missing file at the default location is not an error; the server
//	runs on defaults. A file named explicitly must exist and parse.
//
// Inputs:
//
//	path - Explicit config path, or "" for the default location.
//
// Outputs:
//
//	ServerConfig - The parsed file values. Zero value when no file.
//	error - Non-nil for an unreadable or unparseable file.
func loadServerConfig(path string) (ServerConfig, error) {
	explicit := path != ""
	if path == "" {
		path = defaultConfigPath()
	}
	if path == "" {
		return ServerConfig{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && os.IsNotExist(err) {
			return ServerConfig{}, nil
		}
		return ServerConfig{}, fmt.Errorf("reading server config %s: %w", path, err)
	}

	var cfg ServerConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return ServerConfig{}, fmt.Errorf("parsing server config %s: %w", path, err)
	}
	return cfg, nil
}

// overlayFile merges the set values of a config file over c. YAML zero
// values cannot be told apart from absent keys, so only non-zero values
// override; the booleans can only be switched on by file.
func (c *ServerConfig) overlayFile(file ServerConfig) {
	if file.Port != 0 {
		c.Port = file.Port
	}
	if file.Debug {
		c.Debug = true
	}
	if file.DataDir != "" {
		c.DataDir = file.DataDir
	}
	if file.ToolsConfig != "" {
		c.ToolsConfig = file.ToolsConfig
	}
	if file.RepoRoot != "" {
		c.RepoRoot = file.RepoRoot
	}
	if file.TestTimeout != "" {
		c.TestTimeout = file.TestTimeout
	}
	if file.DisableMetrics {
		c.DisableMetrics = true
	}
	if file.LogDir != "" {
		c.LogDir = file.LogDir
	}
	if file.LogLevel != "" {
		c.LogLevel = file.LogLevel
	}
}
