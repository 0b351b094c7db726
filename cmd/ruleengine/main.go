// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command ruleengine starts the rule evaluation HTTP server: it loads
// the rule source named by RULES_PATH, compiles and hot-watches it via
// the Model Manager, and serves /evaluate, /healthz and /metrics.
//
// Usage:
//
//	RULES_PATH=./rules.json go run ./cmd/ruleengine -port 8080
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/arcflow-systems/ruleforge/services/ruleengine/basecond"
	"github.com/arcflow-systems/ruleforge/services/ruleengine/cache"
	"github.com/arcflow-systems/ruleforge/services/ruleengine/config"
	"github.com/arcflow-systems/ruleforge/services/ruleengine/eval"
	"github.com/arcflow-systems/ruleforge/services/ruleengine/event"
	"github.com/arcflow-systems/ruleforge/services/ruleengine/manager"
	"github.com/arcflow-systems/ruleforge/services/ruleengine/model"
	"github.com/arcflow-systems/ruleforge/services/ruleengine/rulesource"
)

func main() {
	port := flag.Int("port", 8080, "Port to listen on")
	debug := flag.Bool("debug", false, "Enable debug mode")
	flag.Parse()

	logger := slog.Default()

	if *debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Error("config load failed", "error", err)
		os.Exit(1)
	}

	otelShutdown, err := setupObservability(*debug)
	if err != nil {
		logger.Error("observability init failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			logger.Warn("otel shutdown failed", "error", err)
		}
	}()

	cacheBackend, err := cache.New(cfg, logger)
	if err != nil {
		logger.Error("cache init failed", "error", err)
		os.Exit(1)
	}
	defer cacheBackend.Close()

	bc := basecond.New(cacheBackend, cfg.CacheTTL, logger)
	evaluator := eval.New(bc, eval.Config{
		IntersectionCardinalityThreshold: cfg.IntersectionCardinalityThreshold,
	}, logger)

	if cfg.RulesPath == "" {
		logger.Error("RULES_PATH must be set")
		os.Exit(1)
	}

	warmup := func(m *model.Model) error {
		result := evaluator.Evaluate(context.Background(), m, event.Event{
			ID:         "warmup",
			Attributes: map[string]any{},
		})
		if result.Error != nil {
			return result.Error
		}
		return nil
	}

	mgr, err := manager.New(rulesource.NewFileSource(cfg.RulesPath), cfg.ModelWatchInterval, logger, warmup)
	if err != nil {
		logger.Error("initial model compile failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mgr.Start(ctx)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("ruleforge"))
	if *debug {
		router.Use(gin.Logger())
	}

	router.POST("/evaluate", evaluateHandler(evaluator, mgr))
	router.GET("/healthz", healthzHandler(mgr))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", *port),
		Handler: router,
	}

	go func() {
		<-quit
		logger.Info("shutting down ruleengine server")
		cancel()
		mgr.Shutdown()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", "error", err)
		}
	}()

	logger.Info("starting ruleengine server", "address", srv.Addr, "rules_path", cfg.RulesPath)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func evaluateHandler(evaluator *eval.Evaluator, mgr *manager.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var ev event.Event
		if err := c.ShouldBindJSON(&ev); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		m := mgr.Current()
		result := evaluator.Evaluate(c.Request.Context(), m, ev)
		if result.Error != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"event_id": result.EventID,
				"error":    result.Error.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func healthzHandler(mgr *manager.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		m := mgr.Current()
		// A non-empty LastError means the most recent recompile attempt
		// failed; the model being served is still the last good one, so
		// the response stays 200 with the error surfaced for visibility.
		c.JSON(http.StatusOK, gin.H{
			"built_at":             m.BuiltAt,
			"unique_combinations":  m.Stats.UniqueCombinations,
			"logical_rules":        m.Stats.LogicalRules,
			"last_recompile_error": mgr.LastError(),
		})
	}
}
