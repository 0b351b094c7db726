// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package eval

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arcflow-systems/ruleforge/services/ruleengine/basecond"
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

func newEvaluator(t *testing.T) *Evaluator {
	t.Helper()
	c := cache.NewLRU(100, time.Minute, false)
	bc := basecond.New(c, time.Minute, testLogger())
	return New(bc, Config{}, testLogger())
}

func TestEvaluateMatchesSimpleStaticRule(t *testing.T) {
	docs := []rulesource.RuleDoc{
		{
			RuleCode: "R1",
			Priority: 10,
			Conditions: []rulesource.Condition{
				{Field: "country", Operator: "EQUAL_TO", Value: rawJSON(t, "US")},
			},
		},
	}
	m, _, err := compiler.Compile(testLogger(), docs)
	require.NoError(t, err)

	ev := newEvaluator(t)
	result := ev.Evaluate(context.Background(), m, event.Event{
		ID:         "evt-1",
		Attributes: map[string]any{"country": "US"},
	})

	require.Nil(t, result.Error)
	require.Len(t, result.MatchedRules, 1)
	require.Equal(t, "R1", result.MatchedRules[0].Code)
}

func TestEvaluateNonMatchingStaticRuleYieldsNoMatches(t *testing.T) {
	docs := []rulesource.RuleDoc{
		{
			RuleCode: "R1",
			Conditions: []rulesource.Condition{
				{Field: "country", Operator: "EQUAL_TO", Value: rawJSON(t, "US")},
			},
		},
	}
	m, _, err := compiler.Compile(testLogger(), docs)
	require.NoError(t, err)

	ev := newEvaluator(t)
	result := ev.Evaluate(context.Background(), m, event.Event{
		ID:         "evt-2",
		Attributes: map[string]any{"country": "FR"},
	})

	require.Nil(t, result.Error)
	require.Empty(t, result.MatchedRules)
}

func TestEvaluateAbsentStaticFieldYieldsNoMatches(t *testing.T) {
	docs := []rulesource.RuleDoc{
		{
			RuleCode: "R1",
			Conditions: []rulesource.Condition{
				{Field: "country", Operator: "EQUAL_TO", Value: rawJSON(t, "US")},
			},
		},
	}
	m, _, err := compiler.Compile(testLogger(), docs)
	require.NoError(t, err)

	ev := newEvaluator(t)
	// "country" never appears in this event at all, so R1's base set is
	// inapplicable and basecond falls back to the global fallback path.
	// That fallback must not be mistaken for "static predicate verified".
	result := ev.Evaluate(context.Background(), m, event.Event{
		ID:         "evt-absent",
		Attributes: map[string]any{"unrelated_field": "value"},
	})

	require.Nil(t, result.Error)
	require.Empty(t, result.MatchedRules)
}

func TestEvaluateCombinesStaticAndDynamicPredicates(t *testing.T) {
	docs := []rulesource.RuleDoc{
		{
			RuleCode: "R1",
			Conditions: []rulesource.Condition{
				{Field: "country", Operator: "EQUAL_TO", Value: rawJSON(t, "US")},
				{Field: "description", Operator: "CONTAINS", Value: rawJSON(t, "urgent")},
			},
		},
	}
	m, _, err := compiler.Compile(testLogger(), docs)
	require.NoError(t, err)

	ev := newEvaluator(t)

	noMatch := ev.Evaluate(context.Background(), m, event.Event{
		ID:         "evt-3",
		Attributes: map[string]any{"country": "US", "description": "routine ticket"},
	})
	require.Empty(t, noMatch.MatchedRules)

	match := ev.Evaluate(context.Background(), m, event.Event{
		ID:         "evt-4",
		Attributes: map[string]any{"country": "US", "description": "urgent issue"},
	})
	require.Len(t, match.MatchedRules, 1)
	require.Equal(t, "R1", match.MatchedRules[0].Code)
}

func TestEvaluateSelectsHighestPriorityFirst(t *testing.T) {
	docs := []rulesource.RuleDoc{
		{
			RuleCode: "LOW",
			Priority: 1,
			Conditions: []rulesource.Condition{
				{Field: "country", Operator: "EQUAL_TO", Value: rawJSON(t, "US")},
			},
		},
		{
			RuleCode: "HIGH",
			Priority: 100,
			Conditions: []rulesource.Condition{
				{Field: "country", Operator: "EQUAL_TO", Value: rawJSON(t, "US")},
			},
		},
	}
	m, _, err := compiler.Compile(testLogger(), docs)
	require.NoError(t, err)

	ev := newEvaluator(t)
	result := ev.Evaluate(context.Background(), m, event.Event{
		ID:         "evt-5",
		Attributes: map[string]any{"country": "US"},
	})

	require.Len(t, result.MatchedRules, 2)
	require.Equal(t, "HIGH", result.MatchedRules[0].Code)
	require.Equal(t, "LOW", result.MatchedRules[1].Code)
}

func TestEvaluateRespectsMaxMatches(t *testing.T) {
	docs := []rulesource.RuleDoc{
		{
			RuleCode: "A",
			Conditions: []rulesource.Condition{
				{Field: "country", Operator: "EQUAL_TO", Value: rawJSON(t, "US")},
			},
		},
		{
			RuleCode: "B",
			Conditions: []rulesource.Condition{
				{Field: "country", Operator: "EQUAL_TO", Value: rawJSON(t, "US")},
			},
		},
	}
	m, _, err := compiler.Compile(testLogger(), docs)
	require.NoError(t, err)

	c := cache.NewLRU(100, time.Minute, false)
	bc := basecond.New(c, time.Minute, testLogger())
	ev := New(bc, Config{MaxMatches: 1}, testLogger())

	result := ev.Evaluate(context.Background(), m, event.Event{
		ID:         "evt-6",
		Attributes: map[string]any{"country": "US"},
	})
	require.Len(t, result.MatchedRules, 1)
}

func TestEvaluateOverlappingDisjunctionsMatchBothRules(t *testing.T) {
	docs := []rulesource.RuleDoc{
		{
			RuleCode: "R1",
			Conditions: []rulesource.Condition{
				{Field: "status", Operator: "EQUAL_TO", Value: rawJSON(t, "ACTIVE")},
				{Field: "country", Operator: "IS_ANY_OF", Value: rawJSON(t, []string{"US", "CA"})},
			},
		},
		{
			RuleCode: "R2",
			Conditions: []rulesource.Condition{
				{Field: "status", Operator: "EQUAL_TO", Value: rawJSON(t, "ACTIVE")},
				{Field: "country", Operator: "IS_ANY_OF", Value: rawJSON(t, []string{"US", "UK"})},
			},
		},
	}
	m, _, err := compiler.Compile(testLogger(), docs)
	require.NoError(t, err)

	ev := newEvaluator(t)
	result := ev.Evaluate(context.Background(), m, event.Event{
		ID:         "evt-s2",
		Attributes: map[string]any{"status": "ACTIVE", "country": "US"},
	})

	require.Len(t, result.MatchedRules, 2)
	codes := []string{result.MatchedRules[0].Code, result.MatchedRules[1].Code}
	require.ElementsMatch(t, []string{"R1", "R2"}, codes)
}

func TestEvaluateNumericBetween(t *testing.T) {
	docs := []rulesource.RuleDoc{
		{
			RuleCode: "R1",
			Conditions: []rulesource.Condition{
				{Field: "age", Operator: "BETWEEN", Value: rawJSON(t, []float64{18, 65})},
			},
		},
	}
	m, _, err := compiler.Compile(testLogger(), docs)
	require.NoError(t, err)

	ev := newEvaluator(t)
	cases := []struct {
		age  float64
		want int
	}{
		{17, 0}, {18, 1}, {30, 1}, {65, 1}, {66, 0},
	}
	for _, c := range cases {
		result := ev.Evaluate(context.Background(), m, event.Event{
			Attributes: map[string]any{"age": c.age},
		})
		require.Len(t, result.MatchedRules, c.want, "age=%v", c.age)
	}
}

func TestEvaluateRegexOnOriginalCase(t *testing.T) {
	docs := []rulesource.RuleDoc{
		{
			RuleCode: "R1",
			Conditions: []rulesource.Condition{
				{Field: "email", Operator: "REGEX", Value: rawJSON(t, `.*@company\.com`)},
			},
		},
	}
	m, _, err := compiler.Compile(testLogger(), docs)
	require.NoError(t, err)

	ev := newEvaluator(t)

	match := ev.Evaluate(context.Background(), m, event.Event{
		Attributes: map[string]any{"email": "u@company.com"},
	})
	require.Len(t, match.MatchedRules, 1)

	noMatch := ev.Evaluate(context.Background(), m, event.Event{
		Attributes: map[string]any{"email": "u@other.com"},
	})
	require.Empty(t, noMatch.MatchedRules)
}

func TestEvaluateDynamicOperatorOnDictionaryKnownValue(t *testing.T) {
	// "urgent" uppercases to a value the dictionary knows (via R1), so the
	// encoder substitutes a value id; R2's CONTAINS must still see the
	// original string.
	docs := []rulesource.RuleDoc{
		{
			RuleCode: "R1",
			Conditions: []rulesource.Condition{
				{Field: "tag", Operator: "EQUAL_TO", Value: rawJSON(t, "urgent")},
			},
		},
		{
			RuleCode: "R2",
			Conditions: []rulesource.Condition{
				{Field: "tag", Operator: "CONTAINS", Value: rawJSON(t, "urg")},
			},
		},
	}
	m, _, err := compiler.Compile(testLogger(), docs)
	require.NoError(t, err)

	ev := newEvaluator(t)
	result := ev.Evaluate(context.Background(), m, event.Event{
		Attributes: map[string]any{"tag": "urgent"},
	})

	codes := make([]string, len(result.MatchedRules))
	for i, r := range result.MatchedRules {
		codes[i] = r.Code
	}
	require.ElementsMatch(t, []string{"R1", "R2"}, codes)
}

func TestEvaluateCacheToggleDoesNotChangeResults(t *testing.T) {
	docs := []rulesource.RuleDoc{
		{
			RuleCode: "R1",
			Conditions: []rulesource.Condition{
				{Field: "status", Operator: "EQUAL_TO", Value: rawJSON(t, "ACTIVE")},
				{Field: "age", Operator: "GREATER_THAN", Value: rawJSON(t, 18)},
			},
		},
		{
			RuleCode: "R2",
			Conditions: []rulesource.Condition{
				{Field: "status", Operator: "NOT_EQUAL_TO", Value: rawJSON(t, "CLOSED")},
			},
		},
	}
	m, _, err := compiler.Compile(testLogger(), docs)
	require.NoError(t, err)

	withCache := newEvaluator(t)
	noCache := New(basecond.New(cache.NoOp{}, time.Minute, testLogger()), Config{}, testLogger())

	events := []map[string]any{
		{"status": "ACTIVE", "age": float64(30)},
		{"status": "ACTIVE", "age": float64(10)},
		{"status": "OPEN"},
		{"status": "CLOSED", "age": float64(50)},
	}
	for _, attrs := range events {
		a := withCache.Evaluate(context.Background(), m, event.Event{Attributes: attrs})
		// Twice, so the second call exercises the cache-hit path too.
		a2 := withCache.Evaluate(context.Background(), m, event.Event{Attributes: attrs})
		b := noCache.Evaluate(context.Background(), m, event.Event{Attributes: attrs})
		require.Equal(t, b.MatchedRules, a.MatchedRules, "attrs=%v", attrs)
		require.Equal(t, b.MatchedRules, a2.MatchedRules, "attrs=%v", attrs)
	}
}

func TestMatchResultWireFormat(t *testing.T) {
	result := MatchResult{
		EventID: "evt-wire",
		MatchedRules: []model.RuleRef{
			{Code: "R1", Priority: 5, Description: "high value"},
		},
		EvaluationNanos:     42,
		PredicatesEvaluated: 3,
		RulesEvaluated:      2,
	}

	data, err := json.Marshal(result)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))

	require.Equal(t, "evt-wire", decoded["event_id"])
	require.Equal(t, float64(42), decoded["evaluation_nanos"])
	require.Equal(t, float64(3), decoded["predicates_evaluated"])
	require.Equal(t, float64(2), decoded["rules_evaluated"])
	require.NotContains(t, decoded, "error", "omitted when nil")

	rules, ok := decoded["matched_rules"].([]any)
	require.True(t, ok)
	require.Len(t, rules, 1)
	first, ok := rules[0].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "R1", first["rule_code"])
	require.Equal(t, float64(5), first["priority"])
	require.Equal(t, "high value", first["description"])
}

func TestEvaluateReusesPoolsAcrossCalls(t *testing.T) {
	docs := []rulesource.RuleDoc{
		{
			RuleCode: "R1",
			Conditions: []rulesource.Condition{
				{Field: "country", Operator: "EQUAL_TO", Value: rawJSON(t, "US")},
			},
		},
	}
	m, _, err := compiler.Compile(testLogger(), docs)
	require.NoError(t, err)

	ev := newEvaluator(t)
	for i := 0; i < 5; i++ {
		result := ev.Evaluate(context.Background(), m, event.Event{
			Attributes: map[string]any{"country": "US"},
		})
		require.Len(t, result.MatchedRules, 1)
	}

	stats := ev.stateFor(m).counters.Stats()
	require.Equal(t, int64(5), stats.Acquires)
	require.GreaterOrEqual(t, stats.ReuseRate, 0.0)
}
