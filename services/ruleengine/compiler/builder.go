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
	"log/slog"
	"time"

	"github.com/arcflow-systems/ruleforge/internal/bitmap"
	"github.com/arcflow-systems/ruleforge/services/ruleengine/model"
	"github.com/arcflow-systems/ruleforge/services/ruleengine/predicate"
)

// assemble stitches the predicateRegistry, the deduplicated
// combinations, the selectivity ordering and the base sets into one
// immutable Model.
func assemble(logger *slog.Logger, reg *predicateRegistry, er expandResult, sortedPreds []predicate.ID, logicalRules int, start time.Time) *model.Model {
	combos := er.Combinations
	baseSets, unconditional := extractBaseSets(logger, combos, reg.preds)

	combinationPredicates := make([][]predicate.ID, len(combos))
	combinationRuleCodes := make([][]model.RuleRef, len(combos))
	fieldToPredicates := make(map[uint32][]predicate.ID)
	predicateToCombinations := make([]*bitmap.Set, len(reg.preds))
	for i := range predicateToCombinations {
		predicateToCombinations[i] = bitmap.New()
	}

	for idx, c := range combos {
		combinationPredicates[idx] = c.PredicateIDs
		combinationRuleCodes[idx] = c.RuleCodes
		for _, pid := range c.PredicateIDs {
			predicateToCombinations[pid].Add(uint32(idx))
		}
	}

	for pid := range reg.preds {
		fieldID := reg.preds[pid].FieldID
		fieldToPredicates[fieldID] = append(fieldToPredicates[fieldID], predicate.ID(pid))
	}

	combinationRequiredCount := make([]int, len(combos))
	for idx, c := range combos {
		combinationRequiredCount[idx] = len(c.PredicateIDs)
	}

	totalValues := 0
	for _, bs := range baseSets {
		totalValues += int(bs.AffectedCombinations.Cardinality())
	}

	dedupRate := 0.0
	if er.TotalBefore > 0 {
		dedupRate = 1.0 - float64(len(combos))/float64(er.TotalBefore)
	}

	avgSel := 0.0
	if len(reg.preds) > 0 {
		var sum float32
		for _, p := range reg.preds {
			sum += p.Selectivity
		}
		avgSel = float64(sum) / float64(len(reg.preds))
	}

	m := &model.Model{
		FieldDict:                reg.fieldDict,
		ValueDict:                reg.valueDict,
		Predicates:               reg.preds,
		CombinationPredicates:    combinationPredicates,
		CombinationRequiredCount: combinationRequiredCount,
		CombinationRuleCodes:     combinationRuleCodes,
		FieldToPredicates:        fieldToPredicates,
		PredicateToCombinations:  predicateToCombinations,
		SortedPredicates:         sortedPreds,
		BaseSets:                 baseSets,
		UnconditionalCombination: unconditional,
		Stats: model.Stats{
			LogicalRules:              logicalRules,
			TotalExpandedCombinations: er.TotalBefore,
			UniqueCombinations:        len(combos),
			DeduplicationRate:         dedupRate,
			NumPredicates:             len(reg.preds),
			AvgSelectivity:            avgSel,
			CompileNanos:              time.Since(start).Nanoseconds(),
		},
		BuiltAt: time.Now(),
	}

	reg.fieldDict.Freeze()
	reg.valueDict.Freeze()
	return m
}
