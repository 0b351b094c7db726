// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package model defines the engine model: the immutable, compiled
// artifact the compiler produces and the model manager publishes. Every
// slice and map here is built once by package compiler and never mutated
// again — evaluators read it concurrently with no locking.
package model

import (
	"time"

	"github.com/arcflow-systems/ruleforge/internal/bitmap"
	"github.com/arcflow-systems/ruleforge/services/ruleengine/dictionary"
	"github.com/arcflow-systems/ruleforge/services/ruleengine/predicate"
)

// CombinationID indexes Model.CombinationPredicates and its sibling
// parallel slices.
type CombinationID uint32

// RuleRef names one logical rule sharing a physical combination. The
// json tags match the matched_rules entries in evaluation results.
type RuleRef struct {
	Code        string `json:"rule_code"`
	Priority    int32  `json:"priority"`
	Description string `json:"description,omitempty"`
}

// BaseSet is a base-condition set: a group of combinations that share
// the exact same static-predicate subset, addressed by a canonical hash.
// See basecond.Evaluator for the runtime half.
type BaseSet struct {
	ID                   int
	StaticPredicateIDs   []predicate.ID // sorted ascending
	Hash                 uint64
	AffectedCombinations *bitmap.Set
	AvgSelectivity       float32
}

// Stats records the compile-time metrics the builder produces.
type Stats struct {
	LogicalRules              int
	TotalExpandedCombinations int
	UniqueCombinations        int
	DeduplicationRate         float64
	NumPredicates             int
	AvgSelectivity            float64
	CompileNanos              int64
}

// Model is the immutable, compiled engine model. It is built once by
// package compiler and never mutated; the Model Manager publishes *Model
// values via an atomic pointer swap, and evaluators hold a reference for
// the lifetime of one call.
type Model struct {
	FieldDict *dictionary.Dictionary
	ValueDict *dictionary.Dictionary

	Predicates []predicate.Predicate // indexed by predicate.ID

	CombinationPredicates    [][]predicate.ID // indexed by CombinationID, sorted ascending
	CombinationRequiredCount []int            // == len(CombinationPredicates[c])
	CombinationRuleCodes     [][]RuleRef

	FieldToPredicates       map[uint32][]predicate.ID
	PredicateToCombinations []*bitmap.Set // posting lists, indexed by predicate.ID

	SortedPredicates []predicate.ID // ascending by Weight

	BaseSets                 []BaseSet
	UnconditionalCombination *bitmap.Set // combinations with zero static predicates: eligible for every event

	Stats Stats

	// BuiltAt records when this model was compiled, surfaced for
	// diagnostics (the /healthz handler).
	BuiltAt time.Time
}

// NumCombinations returns the number of physical combinations in the
// model, i.e. the width the evaluator's per-thread counter array must be
// sized to.
func (m *Model) NumCombinations() int {
	return len(m.CombinationPredicates)
}
