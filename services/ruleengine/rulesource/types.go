// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package rulesource decodes and validates the rule-source format
// (JSON, with an optional YAML variant for local authoring) ahead of
// compilation. Decoding never touches the compiler's dictionaries —
// rulesource only produces validated, still-stringly-typed RuleDocs;
// package compiler does the dictionary encoding.
package rulesource

import "encoding/json"

// RuleDoc is one logical rule as authored. YAML sources are converted to
// JSON before decoding (see yamlToJSON), so json tags cover both
// formats.
type RuleDoc struct {
	RuleCode    string      `json:"rule_code" validate:"required"`
	Description string      `json:"description,omitempty"`
	Priority    int32       `json:"priority,omitempty"`
	Enabled     *bool       `json:"enabled,omitempty"`
	Conditions  []Condition `json:"conditions" validate:"dive"`
}

// IsEnabled returns the rule's effective enabled flag, defaulting to true
// when the field was omitted.
func (r *RuleDoc) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// Condition is one (field, operator, value) clause. Value is kept as raw
// JSON because its shape depends on Operator (scalar, array, or a
// 2-element [lo, hi] range) — rulesource.Validate decodes it into a typed
// ValidatedCondition once the operator is known.
type Condition struct {
	Field    string          `json:"field" validate:"required"`
	Operator string          `json:"operator" validate:"required"`
	Value    json.RawMessage `json:"value"`
}
