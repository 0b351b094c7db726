// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package compiler turns validated rule documents into an immutable
// engine model: factorize shared disjunctions, expand rules into
// physical combinations, profile predicate selectivity, extract
// base-condition sets, and assemble the final model. Compile is the
// single entry point; everything else in this package is an internal
// pipeline stage.
package compiler

import (
	"sort"
	"strconv"
	"strings"

	"github.com/arcflow-systems/ruleforge/services/ruleengine/predicate"
	"github.com/arcflow-systems/ruleforge/services/ruleengine/rulesource"
)

// ruleRef names one original logical rule, carried through factorization
// and combination expansion so multiple rule codes can end up attached to
// one physical combination.
type ruleRef struct {
	Code        string
	Priority    int32
	Description string
}

// factoredRule is a logical rule after factorization: zero or more non-disjunctive
// conditions, zero or more IS_ANY_OF conditions, and the set of original
// rule refs it represents (more than one only when the factorizer merged
// a group of rules that shared everything but one identical disjunction).
type factoredRule struct {
	Refs       []ruleRef
	Conditions []rulesource.ValidatedCondition
}

// factorize groups rules by the order-independent set of their
// non-IS_ANY_OF conditions. Within a group, if every rule disjuncts on
// the same single field with an identical value set, the group collapses
// into one factoredRule sharing that one IS_ANY_OF condition; otherwise
// every rule in the group is kept as its own factoredRule, unmodified,
// so factorization never changes which events match.
func factorize(rules []rulesource.ValidatedRule) []factoredRule {
	groups := make(map[string][]rulesource.ValidatedRule)
	var order []string
	for _, r := range rules {
		key := nonDisjunctiveKey(r.Conditions)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], r)
	}

	var out []factoredRule
	for _, key := range order {
		group := groups[key]
		if len(group) == 1 {
			out = append(out, factoredRule{
				Refs:       []ruleRef{refOf(group[0])},
				Conditions: group[0].Conditions,
			})
			continue
		}

		field, values, ok := sharedSingleDisjunction(group)
		if !ok {
			for _, r := range group {
				out = append(out, factoredRule{Refs: []ruleRef{refOf(r)}, Conditions: r.Conditions})
			}
			continue
		}

		refs := make([]ruleRef, len(group))
		for i, r := range group {
			refs[i] = refOf(r)
		}
		shared := nonDisjunctiveConditions(group[0].Conditions)
		merged := append(append([]rulesource.ValidatedCondition(nil), shared...), rulesource.ValidatedCondition{
			Field: field, Op: predicate.IsAnyOf, List: values.List, NumList: values.NumList, IsNumList: values.IsNumList,
		})
		out = append(out, factoredRule{Refs: refs, Conditions: merged})
	}
	return out
}

func refOf(r rulesource.ValidatedRule) ruleRef {
	return ruleRef{Code: r.RuleCode, Priority: r.Priority, Description: r.Description}
}

func nonDisjunctiveConditions(conds []rulesource.ValidatedCondition) []rulesource.ValidatedCondition {
	var out []rulesource.ValidatedCondition
	for _, c := range conds {
		if c.Op != predicate.IsAnyOf {
			out = append(out, c)
		}
	}
	return out
}

// nonDisjunctiveKey builds an order-independent grouping key over a
// rule's non-IS_ANY_OF conditions.
func nonDisjunctiveKey(conds []rulesource.ValidatedCondition) string {
	parts := make([]string, 0, len(conds))
	for _, c := range conds {
		if c.Op == predicate.IsAnyOf {
			continue
		}
		parts = append(parts, conditionKey(c))
	}
	sort.Strings(parts)
	return strings.Join(parts, "|")
}

func conditionKey(c rulesource.ValidatedCondition) string {
	var b strings.Builder
	b.WriteString(c.Field)
	b.WriteByte(':')
	b.WriteString(c.Op.String())
	b.WriteByte(':')
	switch {
	case c.IsNumber:
		b.WriteString(strconv.FormatFloat(c.Num, 'g', -1, 64))
	case c.IsBool:
		b.WriteString(strconv.FormatBool(c.Bool))
	case len(c.List) > 0 || len(c.NumList) > 0:
		sortedList := append([]string(nil), c.List...)
		sort.Strings(sortedList)
		b.WriteString(strings.Join(sortedList, ","))
		sortedNums := append([]float64(nil), c.NumList...)
		sort.Float64s(sortedNums)
		for _, n := range sortedNums {
			b.WriteString(strconv.FormatFloat(n, 'g', -1, 64))
			b.WriteByte(',')
		}
	case c.Op == predicate.Between:
		b.WriteString(strconv.FormatFloat(c.Lo, 'g', -1, 64))
		b.WriteByte(',')
		b.WriteString(strconv.FormatFloat(c.Hi, 'g', -1, 64))
	default:
		b.WriteString(c.Str)
	}
	return b.String()
}

// sharedSingleDisjunction reports whether every rule in group carries
// exactly one IS_ANY_OF condition, all on the same field, with identical
// (canonicalized) value sets. Returns the shared field and value set.
func sharedSingleDisjunction(group []rulesource.ValidatedRule) (string, rulesource.ValidatedCondition, bool) {
	var field string
	var first rulesource.ValidatedCondition
	for i, r := range group {
		var disj []rulesource.ValidatedCondition
		for _, c := range r.Conditions {
			if c.Op == predicate.IsAnyOf {
				disj = append(disj, c)
			}
		}
		if len(disj) != 1 {
			return "", rulesource.ValidatedCondition{}, false
		}
		if i == 0 {
			field = disj[0].Field
			first = disj[0]
			continue
		}
		if disj[0].Field != field || !sameValueSet(first, disj[0]) {
			return "", rulesource.ValidatedCondition{}, false
		}
	}
	return field, first, true
}

func sameValueSet(a, b rulesource.ValidatedCondition) bool {
	al := append([]string(nil), a.List...)
	bl := append([]string(nil), b.List...)
	sort.Strings(al)
	sort.Strings(bl)
	if len(al) != len(bl) {
		return false
	}
	for i := range al {
		if al[i] != bl[i] {
			return false
		}
	}
	an := append([]float64(nil), a.NumList...)
	bn := append([]float64(nil), b.NumList...)
	sort.Float64s(an)
	sort.Float64s(bn)
	if len(an) != len(bn) {
		return false
	}
	for i := range an {
		if an[i] != bn[i] {
			return false
		}
	}
	return true
}
