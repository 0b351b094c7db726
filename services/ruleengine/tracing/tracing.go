// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tracing implements the trace collector: a four-level, opt-in
// recorder of per-predicate outcomes for one evaluation, with an otel
// span at the top level when tracing is FULL. One package-scope
// otel.Tracer, a span per call, span attributes set from the result
// rather than threaded through every internal function.
package tracing

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Level is the trace verbosity.
type Level uint8

const (
	// None disables tracing entirely; the hot path must short-circuit
	// before doing any collector work at this level.
	None Level = iota
	// RuleOnly records only which rules matched, no predicate detail.
	RuleOnly
	// Standard additionally records per-predicate pass/fail outcomes,
	// without the actual field values compared.
	Standard
	// Full additionally records the actual values compared, and opens an
	// otel span for the evaluation.
	Full
)

// MarshalJSON renders the level by name ("FULL") rather than ordinal.
func (l Level) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

func (l Level) String() string {
	switch l {
	case None:
		return "NONE"
	case RuleOnly:
		return "RULE_ONLY"
	case Standard:
		return "STANDARD"
	case Full:
		return "FULL"
	default:
		return "UNKNOWN"
	}
}

// PredicateOutcome is one entry in a Standard/Full trace's predicate
// snapshot.
type PredicateOutcome struct {
	PredicateID  uint32 `json:"predicate_id"`
	FieldID      uint32 `json:"field_id"`
	Matched      bool   `json:"matched"`
	EventValue   string `json:"event_value,omitempty"`     // only populated at Full
	PredicateVal string `json:"predicate_value,omitempty"` // only populated at Full
}

// Trace is the per-event collector output. Collector.Finish returns the
// zero value (Level == None, no fields populated) whenever the
// collector's level was None, and withholds the predicate snapshot when
// no rule matched (conditional emission).
type Trace struct {
	Level        Level              `json:"level"`
	EventID      string             `json:"event_id,omitempty"`
	MatchedRules []string           `json:"matched_rules,omitempty"`
	Predicates   []PredicateOutcome `json:"predicates,omitempty"`
}

var tracer = otel.Tracer("ruleforge.eval")

// Collector accumulates one evaluation's trace data at the configured
// level. The zero value is not usable; build one with New per evaluation
// call (it is cheap: at None, every method is a no-op before any
// allocation happens, satisfying the "0% overhead" target).
type Collector struct {
	level   Level
	eventID string
	span    trace.Span
	preds   []PredicateOutcome
}

// New starts a collector for one evaluation at level. At Full, this opens
// an otel span on ctx; the returned context must be used for the rest of
// the evaluation so the span is the active one. At every other level ctx
// is returned unchanged.
func New(ctx context.Context, level Level, eventID string) (context.Context, *Collector) {
	c := &Collector{level: level, eventID: eventID}
	if level == None {
		return ctx, c
	}
	if level == Full {
		ctx, c.span = tracer.Start(ctx, "eval.Evaluate", trace.WithAttributes(
			attribute.String("event_id", eventID),
		))
	}
	return ctx, c
}

// RecordPredicate appends one predicate outcome to the snapshot. No-op
// below Standard.
func (c *Collector) RecordPredicate(predicateID, fieldID uint32, matched bool, eventVal, predicateVal string) {
	if c.level < Standard {
		return
	}
	outcome := PredicateOutcome{PredicateID: predicateID, FieldID: fieldID, Matched: matched}
	if c.level == Full {
		outcome.EventValue = eventVal
		outcome.PredicateVal = predicateVal
	}
	c.preds = append(c.preds, outcome)
}

// Finish closes any open span and returns the accumulated Trace. The
// predicate snapshot is only attached if at least one rule matched;
// matchedRules is still recorded at RuleOnly and above regardless, since
// "which rules matched" is the cheapest, always-useful signal RULE_ONLY
// promises.
func (c *Collector) Finish(matchedRules []string) Trace {
	if c.span != nil {
		c.span.SetAttributes(
			attribute.Int("matched_rule_count", len(matchedRules)),
			attribute.Int("predicates_recorded", len(c.preds)),
		)
		c.span.End()
	}
	if c.level == None {
		return Trace{}
	}

	t := Trace{Level: c.level, EventID: c.eventID, MatchedRules: matchedRules}
	if len(matchedRules) > 0 {
		t.Predicates = c.preds
	}
	return t
}
