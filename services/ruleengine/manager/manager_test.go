// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package manager

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arcflow-systems/ruleforge/services/ruleengine/model"
	"github.com/arcflow-systems/ruleforge/services/ruleengine/rulesource"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memSource is an in-memory rulesource.Source double for tests: Token
// changes whenever the test swaps in new docs via set.
type memSource struct {
	mu    sync.Mutex
	docs  []rulesource.RuleDoc
	token string
	err   error
}

func newMemSource(docs []rulesource.RuleDoc) *memSource {
	return &memSource{docs: docs, token: "v1"}
}

func (s *memSource) Load(context.Context) ([]rulesource.RuleDoc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.docs, nil
}

func (s *memSource) Token(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, nil
}

func (s *memSource) set(token string, docs []rulesource.RuleDoc, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.docs = docs
	s.err = err
}

func cond(t *testing.T, field, op string, v any) rulesource.Condition {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return rulesource.Condition{Field: field, Operator: op, Value: b}
}

func TestNewCompilesInitialModel(t *testing.T) {
	src := newMemSource([]rulesource.RuleDoc{
		{RuleCode: "R1", Conditions: []rulesource.Condition{cond(t, "country", "EQUAL_TO", "US")}},
	})
	m, err := New(src, time.Hour, testLogger(), nil)
	require.NoError(t, err)
	require.Equal(t, 1, m.Current().Stats.LogicalRules)
}

func TestNewFailsFatallyOnInvalidInitialRules(t *testing.T) {
	src := newMemSource([]rulesource.RuleDoc{
		{RuleCode: "", Conditions: []rulesource.Condition{cond(t, "country", "EQUAL_TO", "US")}},
	})
	_, err := New(src, time.Hour, testLogger(), nil)
	require.Error(t, err)
}

func TestRecompileSwapsModelOnTokenChange(t *testing.T) {
	src := newMemSource([]rulesource.RuleDoc{
		{RuleCode: "R1", Conditions: []rulesource.Condition{cond(t, "country", "EQUAL_TO", "US")}},
	})
	m, err := New(src, 10*time.Millisecond, testLogger(), nil)
	require.NoError(t, err)

	first := m.Current()

	src.set("v2", []rulesource.RuleDoc{
		{RuleCode: "R1", Conditions: []rulesource.Condition{cond(t, "country", "EQUAL_TO", "US")}},
		{RuleCode: "R2", Conditions: []rulesource.Condition{cond(t, "country", "EQUAL_TO", "FR")}},
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)
	defer func() { cancel(); m.Shutdown() }()

	require.Eventually(t, func() bool {
		return m.Current() != first
	}, time.Second, 5*time.Millisecond)

	require.Equal(t, 2, m.Current().Stats.LogicalRules)
}

func TestRecompileFailureKeepsPreviousModel(t *testing.T) {
	src := newMemSource([]rulesource.RuleDoc{
		{RuleCode: "R1", Conditions: []rulesource.Condition{cond(t, "country", "EQUAL_TO", "US")}},
	})
	m, err := New(src, 10*time.Millisecond, testLogger(), nil)
	require.NoError(t, err)
	first := m.Current()

	src.set("v2", nil, errors.New("source unavailable"))

	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)
	defer func() { cancel(); m.Shutdown() }()

	require.Eventually(t, func() bool {
		return m.LastError() != ""
	}, time.Second, 5*time.Millisecond)

	require.Same(t, first, m.Current())
}

func TestWarmupFailureDoesNotUndoSwap(t *testing.T) {
	src := newMemSource([]rulesource.RuleDoc{
		{RuleCode: "R1", Conditions: []rulesource.Condition{cond(t, "country", "EQUAL_TO", "US")}},
	})

	var warmupCalled int32
	warmup := func(m *model.Model) error {
		warmupCalled++
		return errors.New("warmup boom")
	}

	mgr, err := New(src, 10*time.Millisecond, testLogger(), warmup)
	require.NoError(t, err)
	first := mgr.Current()

	src.set("v2", []rulesource.RuleDoc{
		{RuleCode: "R1", Conditions: []rulesource.Condition{cond(t, "country", "EQUAL_TO", "US")}},
		{RuleCode: "R2", Conditions: []rulesource.Condition{cond(t, "country", "EQUAL_TO", "FR")}},
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	mgr.Start(ctx)
	defer func() { cancel(); mgr.Shutdown() }()

	require.Eventually(t, func() bool {
		return mgr.Current() != first
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, 2, mgr.Current().Stats.LogicalRules)
}
