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
	"testing"

	"github.com/arcflow-systems/ruleforge/services/ruleengine/predicate"
)

func TestProfileSelectivityRarerFieldGetsLowerSelectivity(t *testing.T) {
	preds := []predicate.Predicate{
		{FieldID: 1, Op: predicate.EqualTo, Value: predicate.ValueString("A")},
		{FieldID: 1, Op: predicate.EqualTo, Value: predicate.ValueString("B")},
		{FieldID: 1, Op: predicate.EqualTo, Value: predicate.ValueString("C")},
		{FieldID: 2, Op: predicate.EqualTo, Value: predicate.ValueString("X")},
	}
	profileSelectivity(preds)

	if preds[0].Selectivity >= preds[3].Selectivity {
		t.Fatalf("field with more distinct values should have lower selectivity: field1=%v field2=%v", preds[0].Selectivity, preds[3].Selectivity)
	}
}

func TestProfileSelectivitySortsCheapEqualityBeforeRegex(t *testing.T) {
	preds := []predicate.Predicate{
		{FieldID: 1, Op: predicate.EqualTo, Value: predicate.ValueString("A")},
		{FieldID: 1, Op: predicate.Regex, Value: predicate.ValueString("A.*")},
	}
	sorted := profileSelectivity(preds)
	// EQUAL_TO has a lower cost and selectivity factor than REGEX;
	// ascending-by-weight ordering should put the cheap equality check first.
	if sorted[0] != 0 {
		t.Fatalf("expected EQUAL_TO predicate to sort first by weight, got order %v", sorted)
	}
}

func TestProfileSelectivityClampsToRange(t *testing.T) {
	preds := []predicate.Predicate{
		{FieldID: 1, Op: predicate.IsAnyOf, Value: predicate.ValueIntList([]int64{1})},
	}
	profileSelectivity(preds)
	if preds[0].Selectivity < 0.01 || preds[0].Selectivity > 0.99 {
		t.Fatalf("expected selectivity clamped to [0.01, 0.99], got %v", preds[0].Selectivity)
	}
}
