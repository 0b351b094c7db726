// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package compiler

import (
	"slices"
	"strconv"
	"strings"

	"github.com/arcflow-systems/ruleforge/services/ruleengine/model"
	"github.com/arcflow-systems/ruleforge/services/ruleengine/predicate"
	"github.com/arcflow-systems/ruleforge/services/ruleengine/rulesource"
)

// combination is a physical conjunction of predicate ids, identified by
// its canonical (sorted) id vector, plus the rule refs that share it.
type combination struct {
	PredicateIDs []predicate.ID // sorted ascending
	RuleCodes    []model.RuleRef
}

// expandResult carries the expansion output plus the counts Stats needs
// (total expanded vs. unique, for the deduplication rate).
type expandResult struct {
	Combinations []combination
	TotalBefore  int // count before dedup
}

// expand computes, for each factoredRule, the Cartesian product over its
// IS_ANY_OF conditions (every other condition contributes a
// single-element list), canonicalizes each product element's
// predicate-id vector, and deduplicates across all rules.
func expand(rules []factoredRule, reg *predicateRegistry) expandResult {
	dedup := make(map[string]int) // canonical key -> index into out
	var out []combination
	total := 0

	for _, fr := range rules {
		var fixed []predicate.ID
		var disjunctions [][]predicate.ID // one []ID per IS_ANY_OF condition, one id per possible value

		for _, c := range fr.Conditions {
			if c.Op != predicate.IsAnyOf {
				fixed = append(fixed, reg.buildFixed(c))
				continue
			}

			values := disjunctionValues(c)
			if len(values) == 1 {
				// A single-value disjunction is just an equality: rewrite it
				// the same way a chosen product element would be, so it
				// deduplicates against combinations expanded from wider
				// disjunctions over the same field.
				if values[0].isNum {
					fixed = append(fixed, reg.buildChosenEqualNumber(c.Field, values[0].num))
				} else {
					fixed = append(fixed, reg.buildChosenEqualString(c.Field, values[0].str))
				}
				continue
			}

			var ids []predicate.ID
			for _, v := range values {
				if v.isNum {
					ids = append(ids, reg.buildChosenEqualNumber(c.Field, v.num))
				} else {
					ids = append(ids, reg.buildChosenEqualString(c.Field, v.str))
				}
			}
			disjunctions = append(disjunctions, ids)
		}

		for _, picked := range cartesianProduct(disjunctions) {
			ids := append(append([]predicate.ID(nil), fixed...), picked...)
			ids = canonicalSort(ids)
			total++

			key := combinationKey(ids)
			if idx, ok := dedup[key]; ok {
				out[idx].RuleCodes = append(out[idx].RuleCodes, refsToModel(fr.Refs)...)
				continue
			}
			dedup[key] = len(out)
			out = append(out, combination{PredicateIDs: ids, RuleCodes: refsToModel(fr.Refs)})
		}
	}

	return expandResult{Combinations: out, TotalBefore: total}
}

type disjunctValue struct {
	str   string
	num   float64
	isNum bool
}

func disjunctionValues(c rulesource.ValidatedCondition) []disjunctValue {
	if c.IsNumList {
		out := make([]disjunctValue, len(c.NumList))
		for i, n := range c.NumList {
			out[i] = disjunctValue{num: n, isNum: true}
		}
		return out
	}
	out := make([]disjunctValue, len(c.List))
	for i, s := range c.List {
		out[i] = disjunctValue{str: s}
	}
	return out
}

// cartesianProduct returns every way to pick exactly one id from each
// input slice. A nil input (no disjunctions at all) yields one empty
// combination, so callers always get at least one product element.
func cartesianProduct(lists [][]predicate.ID) [][]predicate.ID {
	result := [][]predicate.ID{{}}
	for _, list := range lists {
		var next [][]predicate.ID
		for _, prefix := range result {
			for _, id := range list {
				combo := append(append([]predicate.ID(nil), prefix...), id)
				next = append(next, combo)
			}
		}
		result = next
	}
	return result
}

// canonicalSort sorts ascending and drops duplicate ids. Two conditions
// on one rule can intern to the same predicate; keeping the duplicate
// would inflate the combination's required count past the number of
// distinct predicates that can ever evaluate true for it.
func canonicalSort(ids []predicate.ID) []predicate.ID {
	slices.Sort(ids)
	return slices.Compact(ids)
}

func combinationKey(ids []predicate.ID) string {
	var b strings.Builder
	for i, id := range ids {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatUint(uint64(id), 10))
	}
	return b.String()
}

func refsToModel(refs []ruleRef) []model.RuleRef {
	out := make([]model.RuleRef, len(refs))
	for i, r := range refs {
		out[i] = model.RuleRef{Code: r.Code, Priority: r.Priority, Description: r.Description}
	}
	return out
}
