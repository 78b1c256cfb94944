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
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	cfgFile          string
	servePort        int
	serveDebug       bool
	serveDataDir     string
	serveToolsConfig string
	serveRepoRoot    string
	serveTestTimeout string
	serveNoMetrics   bool

	rootCmd = &cobra.Command{
		Use:   "kodiak",
		Short: "Prompt-driven code editing with plan, preview, and apply stages",
		Long: `Kodiak hosts the prompt edit pipeline: submit a natural-language
				prompt, let an LLM provider propose per-file edits, then preview,
				validate, format, apply, and test them through a session state
				machine. Nothing touches the working tree before apply.`,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the Kodiak prompt edit API server",
		Run:   runServe, // Defined in serve.go
	}
)

// init runs when the Go program starts
func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&cfgFile, "config", "c", "",
		"Path to a server config YAML (flags override file values)")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8080, "Port to listen on")
	serveCmd.Flags().BoolVar(&serveDebug, "debug", false,
		"Enable debug mode (gin debug log, per-request logging)")
	serveCmd.Flags().StringVar(&serveDataDir, "data-dir", "",
		"Directory for persistent session storage (empty keeps sessions in memory)")
	serveCmd.Flags().StringVar(&serveToolsConfig, "tools-config", "",
		"External language tool registry YAML (hot reloaded on change)")
	serveCmd.Flags().StringVar(&serveRepoRoot, "repo-root", "",
		"Default repository path for submissions that do not name one")
	serveCmd.Flags().StringVar(&serveTestTimeout, "test-timeout", "",
		"Cap on test runs, e.g. '2m' (empty uses the runner default)")
	serveCmd.Flags().BoolVar(&serveNoMetrics, "no-metrics", false,
		"Disable the Prometheus /metrics endpoint")
}
