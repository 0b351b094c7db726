// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package basecond implements the base-condition evaluator: selecting
// which base sets apply to an event, building its cache fingerprint, and
// resolving the eligible-combinations bitmap through the result cache
// with at-most-one-build-per-key coalescing.
//
// The coalescing guarantee lives here, keyed by fingerprint, rather than
// inside every cache backend — it holds regardless of which backend a
// Config selects.
package basecond

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/arcflow-systems/ruleforge/internal/bitmap"
	"github.com/arcflow-systems/ruleforge/services/ruleengine/cache"
	"github.com/arcflow-systems/ruleforge/services/ruleengine/event"
	"github.com/arcflow-systems/ruleforge/services/ruleengine/model"
	"github.com/arcflow-systems/ruleforge/services/ruleengine/predicate"
)

// EligibilityResult is the output of one eligibility evaluation.
type EligibilityResult struct {
	EligibleCombinations *bitmap.Set
	PredicatesEvaluated  uint32
	FromCache            bool
	Nanos                uint64
}

// Evaluator holds the result cache and coalescing group used across
// evaluations against one Engine Model. It is stateless with respect to
// the model itself — callers pass the current model on every call, so a
// Model Manager hot-swap needs no coordination with this type.
type Evaluator struct {
	cache cache.Cache
	group singleflight.Group
	ttl   time.Duration
	log   *slog.Logger
}

// New builds an Evaluator backed by c, caching eligibility results with
// the given default TTL.
func New(c cache.Cache, ttl time.Duration, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{cache: c, ttl: ttl, log: logger}
}

// Evaluate resolves the eligible-combinations bitmap for the
// already-encoded event enc against m: select applicable base sets,
// fingerprint, consult the cache, compute on miss.
func (e *Evaluator) Evaluate(ctx context.Context, m *model.Model, enc *event.Encoded) EligibilityResult {
	start := time.Now()

	applicable := e.applicableSets(m, enc)
	if len(applicable) == 0 {
		// No base set applies to this event (every set has at least one
		// static-predicate field absent). Nothing has actually verified
		// a static predicate holds here, so the only combinations safe to
		// call eligible are the ones that never had a static predicate to
		// begin with — not every combination in the model.
		return EligibilityResult{
			EligibleCombinations: m.UnconditionalCombination,
			FromCache:            false,
			Nanos:                uint64(time.Since(start).Nanoseconds()),
		}
	}

	sort.SliceStable(applicable, func(i, j int) bool {
		return applicable[i].AvgSelectivity < applicable[j].AvgSelectivity
	})

	fp := fingerprint(m, applicable, enc)
	key := fingerprintKey(fp)

	if entry, hit, err := e.cache.Get(ctx, key); err == nil && hit {
		// A cache hit means no static predicate was actually
		// re-evaluated this call — the result was pulled straight from
		// the prior computation — so PredicatesEvaluated stays 0 here;
		// static predicates are only counted on the miss path below.
		return EligibilityResult{
			EligibleCombinations: entry.Bitmap,
			FromCache:            true,
			Nanos:                uint64(time.Since(start).Nanoseconds()),
		}
	} else if err != nil {
		e.log.Warn("basecond cache get failed, falling back to compute", "error", err)
	}

	result, _, _ := e.group.Do(key, func() (any, error) {
		return e.compute(ctx, m, enc, applicable, key), nil
	})
	bm := result.(*bitmap.Set)

	return EligibilityResult{
		EligibleCombinations: bm,
		PredicatesEvaluated:  staticPredicateCount(applicable),
		FromCache:            false,
		Nanos:                uint64(time.Since(start).Nanoseconds()),
	}
}

// applicableSets selects the base sets whose static predicates can all
// be checked: a set is applicable iff every field its static predicates
// reference is present in the event.
func (e *Evaluator) applicableSets(m *model.Model, enc *event.Encoded) []model.BaseSet {
	var out []model.BaseSet
	for _, bs := range m.BaseSets {
		if setApplicable(m, bs, enc) {
			out = append(out, bs)
		}
	}
	return out
}

func setApplicable(m *model.Model, bs model.BaseSet, enc *event.Encoded) bool {
	for _, pid := range bs.StaticPredicateIDs {
		fieldID := m.Predicates[pid].FieldID
		if !enc.HasField(fieldID) {
			return false
		}
	}
	return true
}

// compute is the cache-miss path: union the applicable sets' affected
// combinations, then remove any set whose static predicates fail the
// event.
func (e *Evaluator) compute(ctx context.Context, m *model.Model, enc *event.Encoded, applicable []model.BaseSet, key string) *bitmap.Set {
	result := bitmap.New()
	for _, bs := range applicable {
		result.Or(bs.AffectedCombinations)
	}

	for _, bs := range applicable {
		if !staticPredicatesHold(m, bs, enc) {
			result.Subtract(bs.AffectedCombinations)
		}
	}

	// Combinations with zero static predicates never produced a base set
	// and are eligible for every event; fold them in before caching so
	// the cached entry is already complete.
	result.Or(m.UnconditionalCombination)

	if err := e.cache.Put(ctx, key, result, e.ttl); err != nil {
		e.log.Warn("basecond cache put failed", "error", err)
	}
	return result
}

func staticPredicatesHold(m *model.Model, bs model.BaseSet, enc *event.Encoded) bool {
	for _, pid := range bs.StaticPredicateIDs {
		p := &m.Predicates[pid]
		val, present, isNull := enc.Lookup(p.FieldID)
		if p.Eval(val, present, isNull) != predicate.True {
			return false
		}
	}
	return true
}

func staticPredicateCount(applicable []model.BaseSet) uint32 {
	var n uint32
	for _, bs := range applicable {
		n += uint32(len(bs.StaticPredicateIDs))
	}
	return n
}
