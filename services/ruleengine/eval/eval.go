// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package eval implements the rule evaluator: the per-event pipeline —
// encode, filter eligibility, evaluate dynamic predicates with the
// adaptive intersection strategy, detect matches via counters, select
// and truncate. The per-event stages (encoding, eligibility filtering,
// predicate evaluation, match detection) are sequenced by the call's
// linear control flow rather than a literal state type; there is nothing
// a concurrent caller could observe mid-transition, and a panic or
// evaluation failure takes the same early-return path to the final
// result any stage would on error.
package eval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/arcflow-systems/ruleforge/internal/bitmap"
	"github.com/arcflow-systems/ruleforge/services/ruleengine/basecond"
	"github.com/arcflow-systems/ruleforge/services/ruleengine/engerr"
	"github.com/arcflow-systems/ruleforge/services/ruleengine/event"
	"github.com/arcflow-systems/ruleforge/services/ruleengine/metrics"
	"github.com/arcflow-systems/ruleforge/services/ruleengine/model"
	"github.com/arcflow-systems/ruleforge/services/ruleengine/pool"
	"github.com/arcflow-systems/ruleforge/services/ruleengine/predicate"
	"github.com/arcflow-systems/ruleforge/services/ruleengine/tracing"
)

// Config tunes the evaluator's hot path; the zero-value Config is usable
// (unbounded matches, 128-entry intersection threshold).
type Config struct {
	// MaxMatches truncates the sorted match list when > 0; 0 means
	// unbounded.
	MaxMatches int
	// IntersectionCardinalityThreshold is the adaptive-intersection-
	// strategy cutover point; 0 selects the default of 128.
	IntersectionCardinalityThreshold uint32
}

const defaultIntersectionThreshold = 128

// MatchResult is the output of one evaluation. The json tags are the
// wire format served by the /evaluate endpoint and printed by rulectl.
type MatchResult struct {
	EventID             string                  `json:"event_id"`
	MatchedRules        []model.RuleRef         `json:"matched_rules"`
	EvaluationNanos     int64                   `json:"evaluation_nanos"`
	PredicatesEvaluated uint32                  `json:"predicates_evaluated"`
	RulesEvaluated      uint32                  `json:"rules_evaluated"`
	Error               *engerr.EvaluationError `json:"error,omitempty"`
}

// Evaluator runs the match pipeline against whatever engine model it is
// given per call.
// Like basecond.Evaluator, it carries no reference to "the current
// model" itself — the Model Manager owns that — but it does cache the
// per-model object pools and the static-predicate seed counts, rebuilt
// lazily whenever the model pointer it sees changes.
type Evaluator struct {
	basecond *basecond.Evaluator
	cfg      Config
	log      *slog.Logger

	mu    sync.RWMutex
	state *modelState
}

// modelState bundles everything derived from one *model.Model that would
// be wasteful to recompute per event: the object pools (sized to that
// model's combination count) and, for every combination belonging to a
// base set, how many of its predicates are already guaranteed true by an
// eligibility bitmap that includes it (static predicates implied by the
// eligibility filter are not re-evaluated on the hot path).
type modelState struct {
	model       *model.Model
	counters    *pool.Pool[pool.Counters]
	touched     *pool.Pool[*pool.TouchedSet]
	scratch     *pool.Pool[*bitmap.Set]
	staticCount []int32
}

func buildModelState(m *model.Model) *modelState {
	staticCount := make([]int32, m.NumCombinations())
	for _, bs := range m.BaseSets {
		n := int32(len(bs.StaticPredicateIDs))
		if n == 0 {
			continue
		}
		bs.AffectedCombinations.Iterate(func(c uint32) bool {
			staticCount[c] += n
			return true
		})
	}
	return &modelState{
		model:       m,
		counters:    pool.NewCounterPool(m.NumCombinations()),
		touched:     pool.NewTouchedSetPool(),
		scratch:     pool.NewBitmapPool(),
		staticCount: staticCount,
	}
}

// New builds an Evaluator. bc supplies the eligibility filter; a fresh
// basecond.Evaluator should be built once per result-cache backend and
// shared across calls, exactly like this type itself.
func New(bc *basecond.Evaluator, cfg Config, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.IntersectionCardinalityThreshold == 0 {
		cfg.IntersectionCardinalityThreshold = defaultIntersectionThreshold
	}
	return &Evaluator{basecond: bc, cfg: cfg, log: logger}
}

func (e *Evaluator) stateFor(m *model.Model) *modelState {
	e.mu.RLock()
	if e.state != nil && e.state.model == m {
		s := e.state
		e.mu.RUnlock()
		return s
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil || e.state.model != m {
		e.state = buildModelState(m)
	}
	return e.state
}

// Evaluate runs the full per-event pipeline for ev against m.
func (e *Evaluator) Evaluate(ctx context.Context, m *model.Model, ev event.Event) MatchResult {
	result, _ := e.evaluate(ctx, m, ev, nil)
	return result
}

// EvaluateTraced runs the same pipeline but additionally drives a trace
// collector at the given level, returning the resulting Trace alongside
// the MatchResult. This is the entry point rulectl's "explain" command
// uses; the hot /evaluate path calls Evaluate instead so a disabled
// collector never costs anything.
func (e *Evaluator) EvaluateTraced(ctx context.Context, m *model.Model, ev event.Event, level tracing.Level) (MatchResult, tracing.Trace) {
	ctx, collector := tracing.New(ctx, level, ev.ID)
	result, matchedCodes := e.evaluate(ctx, m, ev, collector)
	return result, collector.Finish(matchedCodes)
}

func (e *Evaluator) evaluate(ctx context.Context, m *model.Model, ev event.Event, collector *tracing.Collector) (result MatchResult, matchedCodes []string) {
	start := time.Now()
	st := e.stateFor(m)

	counters := st.counters.Acquire()
	touched := st.touched.Acquire()
	scratch := st.scratch.Acquire()

	defer func() {
		touched.Each(func(c uint32) { counters[c] = 0 })
		st.counters.Release(counters)
		st.touched.Release(touched)
		st.scratch.Release(scratch)

		result.EvaluationNanos = time.Since(start).Nanoseconds()
		metrics.EvalDuration.Observe(time.Since(start).Seconds())
		metrics.EvalMatchesTotal.Observe(float64(len(result.MatchedRules)))
	}()

	defer func() {
		if r := recover(); r != nil {
			eventID := ev.ID
			result = MatchResult{
				EventID: eventID,
				Error: &engerr.EvaluationError{
					EventID: eventID,
					Kind:    engerr.RegexPanic,
					Message: fmt.Sprintf("%v", r),
				},
			}
			e.log.Error("rule evaluation panicked", "event_id", eventID, "panic", r)
			metrics.EvalErrorsTotal.WithLabelValues(engerr.RegexPanic.String()).Inc()
		}
	}()

	enc := event.Encode(m.FieldDict, m.ValueDict, ev)
	elig := e.basecond.Evaluate(ctx, m, enc)

	seedStaticCounters(elig.EligibleCombinations, st.staticCount, counters, touched)

	predicatesEvaluated := elig.PredicatesEvaluated
	threshold := int(e.cfg.IntersectionCardinalityThreshold)

	for _, pid := range m.SortedPredicates {
		p := &m.Predicates[pid]
		if p.IsStatic() {
			continue // already folded into the E-derived seed above
		}
		if !enc.HasField(p.FieldID) {
			continue
		}

		val, present, isNull := enc.Lookup(p.FieldID)
		outcome := p.Eval(val, present, isNull)
		predicatesEvaluated++
		if collector != nil {
			collector.RecordPredicate(uint32(pid), p.FieldID, outcome == predicate.True, val.Canonical(), p.Value.Canonical())
		}
		if outcome != predicate.True {
			continue
		}

		applyPosting(m.PredicateToCombinations[pid], elig.EligibleCombinations, scratch, threshold, counters, touched)
	}

	var matches []model.RuleRef
	var rulesEvaluated uint32
	touched.Each(func(c uint32) {
		refs := m.CombinationRuleCodes[c]
		rulesEvaluated += uint32(len(refs))
		if int(counters[c]) == m.CombinationRequiredCount[c] {
			matches = append(matches, refs...)
		}
	})

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Priority != matches[j].Priority {
			return matches[i].Priority > matches[j].Priority
		}
		return matches[i].Code < matches[j].Code
	})
	if e.cfg.MaxMatches > 0 && len(matches) > e.cfg.MaxMatches {
		matches = matches[:e.cfg.MaxMatches]
	}

	result = MatchResult{
		EventID:             enc.EventID,
		MatchedRules:        matches,
		PredicatesEvaluated: predicatesEvaluated,
		RulesEvaluated:      rulesEvaluated,
	}
	matchedCodes = make([]string, len(matches))
	for i, ref := range matches {
		matchedCodes[i] = ref.Code
	}
	return
}

// seedStaticCounters pre-credits every eligible combination that belongs
// to a base set with its static-predicate count: the eligibility filter
// already verified those predicates hold, so re-running predicate.Eval
// for them would only repeat work the cache lookup paid for.
func seedStaticCounters(eligible *bitmap.Set, staticCount []int32, counters pool.Counters, touched *pool.TouchedSet) {
	eligible.Iterate(func(c uint32) bool {
		if n := staticCount[c]; n > 0 {
			counters[c] += uint16(n)
			touched.Add(c)
		}
		return true
	})
}

// applyPosting implements the adaptive intersection strategy: below the
// cardinality threshold, scan the posting list and probe the eligibility
// bitmap; at or above it, materialize the intersection into scratch once
// and iterate that instead.
func applyPosting(posting, eligible, scratch *bitmap.Set, threshold int, counters pool.Counters, touched *pool.TouchedSet) {
	if posting.Cardinality() < threshold {
		posting.Iterate(func(c uint32) bool {
			if eligible.Contains(c) {
				counters[c]++
				touched.Add(c)
			}
			return true
		})
		return
	}

	bitmap.AndInto(posting, eligible, scratch)
	scratch.Iterate(func(c uint32) bool {
		counters[c]++
		touched.Add(c)
		return true
	})
}
