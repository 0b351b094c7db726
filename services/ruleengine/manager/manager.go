// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package manager implements the model manager: an atomically
// hot-swappable holder of the current engine model, a background watcher
// that recompiles on change, and a warmup hook invoked after every
// successful swap. The watch loop listens for fsnotify events when the
// source is a file, with token polling as the always-on fallback for
// sources (and platforms) where the notification channel is unreliable.
package manager

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/arcflow-systems/ruleforge/services/ruleengine/compiler"
	"github.com/arcflow-systems/ruleforge/services/ruleengine/engerr"
	"github.com/arcflow-systems/ruleforge/services/ruleengine/metrics"
	"github.com/arcflow-systems/ruleforge/services/ruleengine/model"
	"github.com/arcflow-systems/ruleforge/services/ruleengine/rulesource"
)

// WarmupFunc is invoked with the newly published model after a
// successful swap. A warmup failure is logged but never undoes the swap.
type WarmupFunc func(m *model.Model) error

// Manager holds the current Engine Model behind an atomic pointer and
// watches a rulesource.Source for changes.
type Manager struct {
	source rulesource.Source
	logger *slog.Logger
	warmup WarmupFunc

	watchInterval time.Duration

	current atomic.Pointer[model.Model]
	lastErr atomic.Pointer[string]

	lastToken string
	watcher   *fsnotify.Watcher
	watchPath string

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New compiles the initial model from source and returns a Manager ready
// to Start. A failure here is fatal — there is no "previous model" to
// fall back to yet.
func New(source rulesource.Source, watchInterval time.Duration, logger *slog.Logger, warmup WarmupFunc) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if watchInterval <= 0 {
		watchInterval = 10 * time.Second
	}

	m := &Manager{
		source:        source,
		logger:        logger,
		warmup:        warmup,
		watchInterval: watchInterval,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}

	ctx := context.Background()
	docs, err := source.Load(ctx)
	if err != nil {
		return nil, &engerr.ModelLoadError{Err: &engerr.CompilationError{Stage: "manager.initial_load", Message: err.Error()}}
	}
	initial, warnings, err := compiler.Compile(logger, docs)
	if err != nil {
		return nil, &engerr.ModelLoadError{Err: err}
	}
	for _, w := range warnings {
		logger.Warn("rule model compiled with warnings", "rule_code", w.RuleCode, "message", w.Message)
	}
	m.current.Store(initial)

	if tok, err := source.Token(ctx); err == nil {
		m.lastToken = tok
	}

	if fs, ok := source.(*rulesource.FileSource); ok {
		m.watchPath = fs.Path
	}

	return m, nil
}

// Current returns the currently published model in O(1) with no
// locking.
func (m *Manager) Current() *model.Model {
	return m.current.Load()
}

// LastError returns the most recent recompile failure, or "" if the last
// attempt (or the manager has never attempted one since start) succeeded.
func (m *Manager) LastError() string {
	if p := m.lastErr.Load(); p != nil {
		return *p
	}
	return ""
}

// Start launches the background watcher. It is safe to call Start once;
// callers must call Shutdown to stop it.
func (m *Manager) Start(ctx context.Context) {
	if m.watchPath != "" {
		if w, err := fsnotify.NewWatcher(); err == nil {
			if err := w.Add(m.watchPath); err == nil {
				m.watcher = w
			} else {
				m.logger.Warn("manager: fsnotify watch failed, falling back to polling only", "error", err)
				_ = w.Close()
			}
		} else {
			m.logger.Warn("manager: fsnotify unavailable, falling back to polling only", "error", err)
		}
	}

	go m.watchLoop(ctx)
}

// Shutdown stops the watcher and waits for its goroutine to exit.
func (m *Manager) Shutdown() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	<-m.doneCh
	if m.watcher != nil {
		_ = m.watcher.Close()
	}
}

func (m *Manager) watchLoop(ctx context.Context) {
	defer close(m.doneCh)

	ticker := time.NewTicker(m.watchInterval)
	defer ticker.Stop()

	var fsEvents <-chan fsnotify.Event
	if m.watcher != nil {
		fsEvents = m.watcher.Events
	}

	for {
		select {
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.pollAndMaybeRecompile(ctx)
		case ev, ok := <-fsEvents:
			if !ok {
				fsEvents = nil
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				m.pollAndMaybeRecompile(ctx)
			}
		}
	}
}

func (m *Manager) pollAndMaybeRecompile(ctx context.Context) {
	tok, err := m.source.Token(ctx)
	if err != nil {
		m.logger.Warn("manager: token check failed, keeping current model", "error", err)
		return
	}
	if tok == m.lastToken {
		return
	}
	m.lastToken = tok
	m.recompile(ctx)
}

func (m *Manager) recompile(ctx context.Context) {
	docs, err := m.source.Load(ctx)
	if err != nil {
		m.recordFailure(fmt.Sprintf("load: %v", err))
		return
	}

	newModel, warnings, err := compiler.Compile(m.logger, docs)
	if err != nil {
		m.recordFailure(err.Error())
		return
	}
	for _, w := range warnings {
		m.logger.Warn("rule model compiled with warnings", "rule_code", w.RuleCode, "message", w.Message)
	}

	m.current.Store(newModel)
	m.lastErr.Store(nil)
	metrics.ModelSwapsTotal.WithLabelValues("success").Inc()
	metrics.CompileCombinations.Set(float64(newModel.Stats.UniqueCombinations))
	m.logger.Info("rule model hot-swapped", "unique_combinations", newModel.Stats.UniqueCombinations, "logical_rules", newModel.Stats.LogicalRules)

	if m.warmup != nil {
		if err := m.warmup(newModel); err != nil {
			m.logger.Warn("manager: warmup callback failed after swap, model remains published", "error", err)
		}
	}
}

func (m *Manager) recordFailure(msg string) {
	m.lastErr.Store(&msg)
	metrics.ModelSwapsTotal.WithLabelValues("failure").Inc()
	m.logger.Error("manager: recompile failed, keeping previous model", "error", msg)
}
