// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command govern starts the Aleutian Govern API server.
//
// Aleutian Govern is the match orchestration layer of the governance
// platform: it deduplicates match requests by content fingerprint,
// fans requests out to the matching strategies, enriches results with
// business-impact scoring, and tracks per-rule match history.
//
// Usage:
//
//	go run ./cmd/govern serve
//	go run ./cmd/govern serve --config govern.yaml
//
// Example requests:
//
//	# Health check
//	curl http://localhost:8085/health
//
//	# Match a governance rule against a library
//	curl -X POST http://localhost:8085/v1/govern/match \
//	  -H "Content-Type: application/json" \
//	  -d '{"entity": {"id": "rule-1", "definition": "mask PII in exports"}, "library_id": "lib-1"}'
//
//	# Service statistics
//	curl http://localhost:8085/v1/govern/stats | jq
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/AleutianGovern/pkg/logging"
	"github.com/AleutianAI/AleutianGovern/services/govern"
	"github.com/AleutianAI/AleutianGovern/services/govern/cache"
	"github.com/AleutianAI/AleutianGovern/services/govern/capability"
	"github.com/AleutianAI/AleutianGovern/services/govern/config"
	"github.com/AleutianAI/AleutianGovern/services/govern/telemetry"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:     "govern",
		Short:   "Aleutian Govern match orchestration server",
		Version: version,
	}

	var configPath string
	var debug bool
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the govern API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), configPath, debug)
		},
	}
	serveCmd.Flags().StringVar(&configPath, "config", "", "Path to YAML config file")
	serveCmd.Flags().BoolVar(&debug, "debug", false, "Enable debug mode")
	root.AddCommand(serveCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, configPath string, debug bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logLevel := cfg.Logging.Level
	if debug {
		logLevel = "debug"
	}
	if err := logging.Setup(logging.Config{
		Level:   logLevel,
		JSON:    cfg.Logging.JSON,
		Service: "govern",
	}); err != nil {
		return err
	}

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			slog.Error("telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}()

	client, err := capability.NewHTTPClient(capability.HTTPClientConfig{
		BaseURL:       cfg.Capability.BaseURL,
		Timeout:       time.Duration(cfg.Capability.TimeoutSeconds) * time.Second,
		RatePerSecond: cfg.Capability.RatePerSecond,
		Retry:         retryPolicy(cfg),
	})
	if err != nil {
		return fmt.Errorf("creating capability client: %w", err)
	}

	results, err := buildResultCache(cfg)
	if err != nil {
		return err
	}

	svc := govern.NewService(client, results, govern.ServiceConfig{
		DefaultTTL:       cfg.DefaultTTL(),
		HistoryCapacity:  cfg.History.Capacity,
		VectorDimensions: cfg.Vectors.Dimensions,
		StrategyTimeout:  cfg.StrategyTimeout(),
		Weights:          cfg.Weights(),
	})
	defer svc.Close()

	if debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.Telemetry.ServiceName))
	if debug {
		router.Use(gin.Logger())
	}

	handlers := govern.NewHandlers(svc)
	v1 := router.Group("/v1")
	govern.RegisterRoutes(v1, handlers)
	router.GET("/health", handlers.Health)
	router.GET("/ready", handlers.Ready)

	server := &http.Server{Addr: cfg.Server.ListenAddr, Handler: router}

	metricsServer := startMetricsServer(cfg.Server.MetricsAddr)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting Aleutian Govern server",
			slog.String("address", cfg.Server.ListenAddr),
			slog.String("capability", cfg.Capability.BaseURL),
			slog.String("version", version),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-quit:
		slog.Info("shutting down", slog.String("signal", sig.String()))
	case <-ctx.Done():
		slog.Info("shutting down", slog.String("reason", "context canceled"))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace())
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	if metricsServer != nil {
		_ = metricsServer.Shutdown(shutdownCtx)
	}
	slog.Info("server stopped")
	return nil
}

// retryPolicy converts the config retry block.
func retryPolicy(cfg *config.Config) capability.RetryPolicy {
	r := cfg.Capability.Retry
	policy := capability.DefaultRetryPolicy()
	if r.MaxAttempts > 0 {
		policy.MaxAttempts = r.MaxAttempts
	}
	if r.InitialBackoffMs > 0 {
		policy.InitialBackoff = msDuration(r.InitialBackoffMs)
	}
	if r.MaxBackoffMs > 0 {
		policy.MaxBackoff = msDuration(r.MaxBackoffMs)
	}
	return policy
}

// buildResultCache selects the persistent Badger cache when a path is
// configured, the in-memory cache otherwise.
func buildResultCache(cfg *config.Config) (cache.ResultCache, error) {
	if cfg.Cache.BadgerPath != "" {
		bc, err := cache.NewBadgerCache(cfg.Cache.BadgerPath)
		if err != nil {
			return nil, fmt.Errorf("opening badger cache at %s: %w", cfg.Cache.BadgerPath, err)
		}
		slog.Info("using persistent match cache", slog.String("path", cfg.Cache.BadgerPath))
		return bc, nil
	}
	return cache.NewMatchCache(cache.MatchCacheConfig{
		SweepInterval: msDuration(cfg.Cache.SweepIntervalSeconds * 1000),
	}), nil
}

func msDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// startMetricsServer serves /metrics on its own listener. Returns nil
// when metrics are disabled.
func startMetricsServer(addr string) *http.Server {
	if addr == "" {
		return nil
	}
	handler := telemetry.MetricsHandler()
	if handler == nil {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		slog.Info("metrics listening", slog.String("address", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", slog.String("error", err.Error()))
		}
	}()
	return server
}
