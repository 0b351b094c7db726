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

	"github.com/arcflow-systems/ruleforge/services/ruleengine/engerr"
	"github.com/arcflow-systems/ruleforge/services/ruleengine/metrics"
	"github.com/arcflow-systems/ruleforge/services/ruleengine/model"
	"github.com/arcflow-systems/ruleforge/services/ruleengine/rulesource"
)

// Compile runs the full pipeline: validate, factorize, expand, profile
// selectivity, extract base conditions and assemble the immutable Model.
// Any rule validation failure is fatal to the whole attempt — a failed
// recompile leaves the caller's existing model untouched; Compile never
// returns a partial Model alongside an error.
func Compile(logger *slog.Logger, docs []rulesource.RuleDoc) (*model.Model, []engerr.ValidationWarning, error) {
	start := time.Now()

	validated, warnings, err := rulesource.Validate(docs)
	if err != nil {
		metrics.CompileFailuresTotal.WithLabelValues("validate").Inc()
		return nil, nil, err
	}

	factored := factorize(validated)

	reg := newPredicateRegistry()
	er := expand(factored, reg)

	sortedPreds := profileSelectivity(reg.preds)

	m := assemble(logger, reg, er, sortedPreds, len(validated), start)
	metrics.CompileDuration.Observe(time.Since(start).Seconds())

	logger.Info("rule model compiled",
		"logical_rules", m.Stats.LogicalRules,
		"unique_combinations", m.Stats.UniqueCombinations,
		"total_expanded", m.Stats.TotalExpandedCombinations,
		"dedup_rate", m.Stats.DeduplicationRate,
		"num_predicates", m.Stats.NumPredicates,
		"base_sets", len(m.BaseSets),
		"compile_nanos", m.Stats.CompileNanos,
	)

	return m, warnings, nil
}
