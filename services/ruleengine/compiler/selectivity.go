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
	"sort"

	"github.com/arcflow-systems/ruleforge/services/ruleengine/predicate"
)

// profileSelectivity assigns per-field base selectivity from distinct
// static values observed, per-predicate selectivity and cost from the
// operator, and weight = (1-selectivity)*cost. preds is mutated in
// place; the returned ids are sorted ascending by weight for the
// evaluator's ordered pass.
func profileSelectivity(preds []predicate.Predicate) []predicate.ID {
	distinctValues := make(map[uint32]map[string]bool)

	for _, p := range preds {
		if !p.Op.IsStatic() {
			continue
		}
		set, ok := distinctValues[p.FieldID]
		if !ok {
			set = make(map[string]bool)
			distinctValues[p.FieldID] = set
		}
		switch p.Value.Kind {
		case predicate.KindIntList:
			for _, id := range p.Value.IDs {
				set[predicate.ValueInt(id).Canonical()] = true
			}
		default:
			set[p.Value.Canonical()] = true
		}
	}

	for i := range preds {
		p := &preds[i]
		base := float32(1.0)
		if n, ok := distinctValues[p.FieldID]; ok {
			denom := len(n)
			if denom < 2 {
				denom = 2
			}
			base = 1.0 / float32(denom)
		}
		sel := clamp(base*p.Op.SelectivityFactor(), 0.01, 0.99)
		p.Selectivity = sel
		p.Weight = (1 - sel) * p.Op.Cost()
	}

	ids := make([]predicate.ID, len(preds))
	for i := range preds {
		ids[i] = predicate.ID(i)
	}
	sort.Slice(ids, func(i, j int) bool {
		return preds[ids[i]].Weight < preds[ids[j]].Weight
	})
	return ids
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
