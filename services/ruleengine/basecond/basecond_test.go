// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package basecond

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arcflow-systems/ruleforge/internal/bitmap"
	"github.com/arcflow-systems/ruleforge/services/ruleengine/cache"
	"github.com/arcflow-systems/ruleforge/services/ruleengine/compiler"
	"github.com/arcflow-systems/ruleforge/services/ruleengine/event"
	"github.com/arcflow-systems/ruleforge/services/ruleengine/model"
	"github.com/arcflow-systems/ruleforge/services/ruleengine/rulesource"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func rawJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func buildModel(t *testing.T, docs []rulesource.RuleDoc) *model.Model {
	t.Helper()
	m, _, err := compiler.Compile(testLogger(), docs)
	require.NoError(t, err)
	return m
}

func TestEvaluateMatchesStaticPredicateViaCache(t *testing.T) {
	docs := []rulesource.RuleDoc{
		{
			RuleCode: "R1",
			Conditions: []rulesource.Condition{
				{Field: "country", Operator: "EQUAL_TO", Value: rawJSON(t, "US")},
			},
		},
	}
	m := buildModel(t, docs)

	c := cache.NewLRU(100, time.Minute, false)
	ev := New(c, time.Minute, testLogger())

	enc := event.Encode(m.FieldDict, m.ValueDict, event.Event{
		Attributes: map[string]any{"country": "US"},
	})

	res := ev.Evaluate(context.Background(), m, enc)
	require.False(t, res.FromCache, "first call must be a cache miss")
	require.Equal(t, 1, res.EligibleCombinations.Cardinality())
	require.True(t, res.EligibleCombinations.Contains(0))

	res2 := ev.Evaluate(context.Background(), m, enc)
	require.True(t, res2.FromCache, "second identical call must hit the cache")
	require.Equal(t, 1, res2.EligibleCombinations.Cardinality())
}

func TestEvaluateExcludesSetWhoseStaticPredicateFails(t *testing.T) {
	docs := []rulesource.RuleDoc{
		{
			RuleCode: "R1",
			Conditions: []rulesource.Condition{
				{Field: "country", Operator: "EQUAL_TO", Value: rawJSON(t, "US")},
			},
		},
	}
	m := buildModel(t, docs)

	c := cache.NewLRU(100, time.Minute, false)
	ev := New(c, time.Minute, testLogger())

	enc := event.Encode(m.FieldDict, m.ValueDict, event.Event{
		Attributes: map[string]any{"country": "FR"},
	})

	res := ev.Evaluate(context.Background(), m, enc)
	require.Equal(t, 0, res.EligibleCombinations.Cardinality())
}

// gatedCache blocks every Get on a gate channel so a test can hold many
// evaluations at the miss point simultaneously, then release them at once
// to exercise the singleflight coalescing. Put is slowed so the flight
// stays open long enough for every released goroutine to join it.
type gatedCache struct {
	inner cache.Cache
	gate  chan struct{}
	gets  atomic.Int32
	puts  atomic.Int32
}

func (g *gatedCache) Get(ctx context.Context, key string) (*cache.Entry, bool, error) {
	g.gets.Add(1)
	<-g.gate
	return g.inner.Get(ctx, key)
}

func (g *gatedCache) Put(ctx context.Context, key string, bm *bitmap.Set, ttl time.Duration) error {
	g.puts.Add(1)
	time.Sleep(100 * time.Millisecond)
	return g.inner.Put(ctx, key, bm, ttl)
}

func (g *gatedCache) Stats() cache.Stats { return g.inner.Stats() }
func (g *gatedCache) Close() error       { return g.inner.Close() }

func TestEvaluateCoalescesConcurrentMisses(t *testing.T) {
	docs := []rulesource.RuleDoc{
		{
			RuleCode: "R1",
			Conditions: []rulesource.Condition{
				{Field: "country", Operator: "EQUAL_TO", Value: rawJSON(t, "US")},
			},
		},
	}
	m := buildModel(t, docs)

	gc := &gatedCache{inner: cache.NewLRU(100, time.Minute, false), gate: make(chan struct{})}
	ev := New(gc, time.Minute, testLogger())

	enc := event.Encode(m.FieldDict, m.ValueDict, event.Event{
		Attributes: map[string]any{"country": "US"},
	})

	const goroutines = 32
	var wg sync.WaitGroup
	results := make([]EligibilityResult, goroutines)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = ev.Evaluate(context.Background(), m, enc)
		}(i)
	}

	// Wait until every goroutine is parked inside the cache Get, so all of
	// them miss and race into the same flight when the gate opens.
	require.Eventually(t, func() bool {
		return gc.gets.Load() == goroutines
	}, time.Second, time.Millisecond)
	close(gc.gate)
	wg.Wait()

	require.Equal(t, int32(1), gc.puts.Load(), "concurrent misses for one fingerprint must produce exactly one computation")
	for _, res := range results {
		require.Equal(t, 1, res.EligibleCombinations.Cardinality())
	}
}

func TestEvaluateNoApplicableSetReturnsOnlyUnconditionalCombinations(t *testing.T) {
	docs := []rulesource.RuleDoc{
		{
			RuleCode: "R1",
			Conditions: []rulesource.Condition{
				{Field: "country", Operator: "EQUAL_TO", Value: rawJSON(t, "US")},
			},
		},
	}
	m := buildModel(t, docs)

	c := cache.NewLRU(100, time.Minute, false)
	ev := New(c, time.Minute, testLogger())

	enc := event.Encode(m.FieldDict, m.ValueDict, event.Event{
		Attributes: map[string]any{"unrelated_field": "value"},
	})

	// "country" is absent, so R1's base set is inapplicable. Nothing has
	// verified its static predicate, so its combination must not come back
	// eligible — only combinations with no static predicate at all (none,
	// here) would.
	res := ev.Evaluate(context.Background(), m, enc)
	require.Equal(t, m.UnconditionalCombination.Cardinality(), res.EligibleCombinations.Cardinality())
	require.Equal(t, 0, res.EligibleCombinations.Cardinality())
}
