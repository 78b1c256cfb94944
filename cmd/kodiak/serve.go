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
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/Kodiak/pkg/logging"
	"github.com/AleutianAI/Kodiak/pkg/telemetry"
	"github.com/AleutianAI/Kodiak/services/promptedit"
	"github.com/AleutianAI/Kodiak/services/promptedit/tools"
)

// runServe boots the prompt edit API server and blocks until shutdown.
func runServe(cmd *cobra.Command, args []string) {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		log.Fatalf("Error resolving server config: %v", err)
	}
	testTimeout, err := parseTestTimeout(cfg.TestTimeout)
	if err != nil {
		log.Fatalf("Error in server config: %v", err)
	}

	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.LogLevel),
		LogDir:  cfg.LogDir,
		Service: "promptedit",
		JSON:    true,
	})
	slog.SetDefault(logger.Slog())

	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Telemetry must come up before the router so the otelgin middleware
	// picks up the configured tracer provider.
	tcfg := telemetry.DefaultConfig()
	tcfg.ServiceName = "kodiak-promptedit"
	shutdownTelemetry, err := telemetry.Init(context.Background(), tcfg)
	if err != nil {
		log.Fatalf("Failed to initialize telemetry: %v", err)
	}

	if cfg.ToolsConfig != "" {
		if err := os.Setenv(tools.EnvToolsPath, cfg.ToolsConfig); err != nil {
			log.Fatalf("Failed to set %s: %v", tools.EnvToolsPath, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc, err := promptedit.NewService(ctx, promptedit.ServiceConfig{
		DataDir:         cfg.DataDir,
		TestTimeout:     testTimeout,
		DefaultRepoRoot: cfg.RepoRoot,
		Logger:          logger.Slog(),
	})
	if err != nil {
		log.Fatalf("Failed to create prompt edit service: %v", err)
	}

	startToolsWatcher(ctx)

	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.Debug {
		router.Use(gin.Logger())
	}
	router.Use(otelgin.Middleware("kodiak-promptedit"))

	v1 := router.Group("/v1")
	promptedit.RegisterRoutes(v1, promptedit.NewHandlers(svc))

	if !cfg.DisableMetrics {
		if handler := telemetry.MetricsHandler(); handler != nil {
			router.GET("/metrics", gin.WrapH(handler))
		}
	}

	printBanner(cfg.Port)

	// Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		slog.Info("Shutting down Kodiak prompt edit server")
		cancel()
		if err := svc.Close(); err != nil {
			slog.Warn("Session store close error", "error", err)
		}
		if err := shutdownTelemetry(context.Background()); err != nil {
			slog.Warn("Telemetry shutdown error", "error", err)
		}
		_ = logger.Close()
		os.Exit(0)
	}()

	addr := fmt.Sprintf(":%d", cfg.Port)
	slog.Info("Starting Kodiak prompt edit server",
		"address", addr,
		"data_dir", cfg.DataDir,
		"repo_root", cfg.RepoRoot,
		"debug", cfg.Debug)
	if err := router.Run(addr); err != nil {
		slog.Error("Failed to start server", "error", err)
		os.Exit(1)
	}
}

// resolveConfig builds the effective server configuration: compiled-in
// defaults, overlaid by the config file when present, overlaid by every
// flag the caller set explicitly.
func resolveConfig(cmd *cobra.Command) (ServerConfig, error) {
	cfg := defaultServerConfig()

	fileCfg, err := loadServerConfig(cfgFile)
	if err != nil {
		return ServerConfig{}, err
	}
	cfg.overlayFile(fileCfg)

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Port = servePort
	}
	if flags.Changed("debug") {
		cfg.Debug = serveDebug
	}
	if flags.Changed("data-dir") {
		cfg.DataDir = serveDataDir
	}
	if flags.Changed("tools-config") {
		cfg.ToolsConfig = serveToolsConfig
	}
	if flags.Changed("repo-root") {
		cfg.RepoRoot = serveRepoRoot
	}
	if flags.Changed("test-timeout") {
		cfg.TestTimeout = serveTestTimeout
	}
	if flags.Changed("no-metrics") {
		cfg.DisableMetrics = serveNoMetrics
	}
	return cfg, nil
}

// parseTestTimeout parses the configured test run cap. Empty means the
// runner default.
func parseTestTimeout(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid test timeout %q: %w", raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("test timeout must be positive, got %q", raw)
	}
	return d, nil
}

// startToolsWatcher hot-reloads the language tool registry when an
// external registry file is in use. Best effort: a watcher failure
// leaves the already-loaded registry in place.
func startToolsWatcher(ctx context.Context) {
	path := tools.ExternalPath()
	if path == "" {
		return
	}
	registry, err := tools.GetRegistry(ctx)
	if err != nil {
		return
	}
	watcher, err := tools.NewWatcher(path, registry, nil)
	if err != nil {
		slog.Warn("Tool registry watcher unavailable", "path", path, "error", err)
		return
	}
	go watcher.Start(ctx)
}

// printBanner prints the startup banner with quick-start examples.
func printBanner(port int) {
	banner := `
╔═══════════════════════════════════════════════════════════════════╗
║                     KODIAK PROMPT EDIT SERVER                     ║
╠═══════════════════════════════════════════════════════════════════╣
║                                                                   ║
║  Prompt-driven code editing: plan, preview, validate, format,     ║
║  apply, test. Nothing touches the working tree before apply.      ║
║                                                                   ║
║  Quick Start:                                                     ║
║  ┌─────────────────────────────────────────────────────────────┐  ║
║  │ # Health check                                              │  ║
║  │ curl http://localhost:%d/v1/prompt-edit/health            │  ║
║  │                                                             │  ║
║  │ # Submit a prompt (mock provider, dry run)                  │  ║
║  │ curl -X POST http://localhost:%d/v1/prompt-edit/submit \  │  ║
║  │   -H "Content-Type: application/json" \                     │  ║
║  │   -d '{"prompt": "add input validation", "dry_run": true}'  │  ║
║  └─────────────────────────────────────────────────────────────┘  ║
║                                                                   ║
║  Endpoints:                                                       ║
║  ├── POST /v1/prompt-edit/submit                                  ║
║  ├── GET  /v1/prompt-edit/:id/status, /:id/preview                ║
║  ├── POST /v1/prompt-edit/:id/validate, /format, /apply, /test    ║
║  └── GET  /v1/prompt-edit/providers, /health                      ║
║                                                                   ║
║  Press Ctrl+C to stop                                             ║
╚═══════════════════════════════════════════════════════════════════╝
`
	fmt.Printf(banner, port, port)
}
