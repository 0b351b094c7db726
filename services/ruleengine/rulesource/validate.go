// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rulesource

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/arcflow-systems/ruleforge/services/ruleengine/engerr"
	"github.com/arcflow-systems/ruleforge/services/ruleengine/predicate"
)

// ValidatedCondition is a Condition after operator parsing and
// operator-shaped value decoding. The compiler's factorizer/expander
// consume ValidatedConditions directly; no further JSON handling occurs
// past this package.
type ValidatedCondition struct {
	Field string
	Op    predicate.Operator

	// Exactly one of the following is populated, selected by Op:
	Str       string    // EQUAL_TO/NOT_EQUAL_TO (string) / CONTAINS / STARTS_WITH / ENDS_WITH / REGEX
	Num       float64   // EQUAL_TO/NOT_EQUAL_TO (number) / numeric comparisons
	Bool      bool      // EQUAL_TO/NOT_EQUAL_TO (bool)
	IsNumber  bool      // disambiguates Num vs Str for EQUAL_TO/NOT_EQUAL_TO
	IsBool    bool      // disambiguates Bool for EQUAL_TO/NOT_EQUAL_TO
	List      []string  // IS_ANY_OF/IS_NONE_OF over strings
	NumList   []float64 // IS_ANY_OF/IS_NONE_OF over numbers
	IsNumList bool
	Lo, Hi    float64 // BETWEEN
}

// ValidatedRule is a RuleDoc after semantic validation, ready for the
// compiler's Factorizer.
type ValidatedRule struct {
	RuleCode    string
	Description string
	Priority    int32
	Conditions  []ValidatedCondition
}

// Validate runs semantic validation over decoded rule documents.
// Disabled rules are silently dropped, not reported as warnings or
// errors. Rule-code uniqueness is checked across enabled rules only.
//
// Returns the valid, enabled rules plus any ValidationWarnings when err is
// nil. Any validation failure returns a non-nil *engerr.CompilationErrors
// aggregating one entry per failing rule; the caller (compiler.Compile)
// must treat that as fatal to this compile attempt.
func Validate(docs []RuleDoc) ([]ValidatedRule, []engerr.ValidationWarning, error) {
	var (
		valid    []ValidatedRule
		warnings []engerr.ValidationWarning
		failures []*engerr.CompilationError
		seen     = make(map[string]bool)
		fieldUse = make(map[string]int)
	)

	for _, doc := range docs {
		if !doc.IsEnabled() {
			continue
		}
		if doc.RuleCode == "" {
			failures = append(failures, &engerr.CompilationError{
				Stage: "rulesource.validate", Message: "rule_code is required",
			})
			continue
		}
		if seen[doc.RuleCode] {
			failures = append(failures, &engerr.CompilationError{
				Stage: "rulesource.validate", Message: "duplicate rule_code among enabled rules", RuleCode: doc.RuleCode,
			})
			continue
		}
		if len(doc.Conditions) == 0 {
			failures = append(failures, &engerr.CompilationError{
				Stage: "rulesource.validate", Message: "conditions must be non-empty", RuleCode: doc.RuleCode,
			})
			continue
		}

		conds, condErrs := validateConditions(doc.RuleCode, doc.Conditions)
		if len(condErrs) > 0 {
			failures = append(failures, condErrs...)
			continue
		}

		seen[doc.RuleCode] = true
		ruleFields := make(map[string]bool, len(conds))
		for _, c := range conds {
			f := normalizeFieldName(c.Field)
			if !ruleFields[f] {
				ruleFields[f] = true
				fieldUse[f]++
			}
		}
		valid = append(valid, ValidatedRule{
			RuleCode:    doc.RuleCode,
			Description: doc.Description,
			Priority:    doc.Priority,
			Conditions:  conds,
		})
	}

	if len(failures) > 0 {
		return nil, nil, &engerr.CompilationErrors{Errors: failures}
	}

	for field, count := range fieldUse {
		if count == 1 {
			warnings = append(warnings, engerr.ValidationWarning{
				Message: fmt.Sprintf("field %s is referenced by only one rule", field),
			})
		}
	}

	return valid, warnings, nil
}

func validateConditions(ruleCode string, raw []Condition) ([]ValidatedCondition, []*engerr.CompilationError) {
	var out []ValidatedCondition
	var errs []*engerr.CompilationError

	for _, c := range raw {
		op, ok := predicate.ParseOperator(c.Operator)
		if !ok {
			errs = append(errs, &engerr.CompilationError{
				Stage: "rulesource.validate", Message: "unknown operator " + c.Operator,
				RuleCode: ruleCode, Field: c.Field,
			})
			continue
		}

		vc := ValidatedCondition{Field: normalizeFieldName(c.Field), Op: op}

		switch op {
		case predicate.IsNull, predicate.IsNotNull:
			// value ignored

		case predicate.IsAnyOf, predicate.IsNoneOf:
			if err := decodeList(&vc, c.Value); err != nil {
				errs = append(errs, &engerr.CompilationError{
					Stage: "rulesource.validate", Message: err.Error(), RuleCode: ruleCode, Field: c.Field,
				})
				continue
			}
			if len(vc.List) == 0 && len(vc.NumList) == 0 {
				errs = append(errs, &engerr.CompilationError{
					Stage: "rulesource.validate", Message: "value list must be non-empty", RuleCode: ruleCode, Field: c.Field,
				})
				continue
			}

		case predicate.Between:
			bounds, err := decodeRange(c.Value)
			if err != nil {
				errs = append(errs, &engerr.CompilationError{
					Stage: "rulesource.validate", Message: err.Error(), RuleCode: ruleCode, Field: c.Field,
				})
				continue
			}
			vc.Lo, vc.Hi = bounds[0], bounds[1]

		case predicate.GreaterThan, predicate.GreaterThanOrEqual, predicate.LessThan, predicate.LessThanOrEqual:
			n, err := decodeNumber(c.Value)
			if err != nil {
				errs = append(errs, &engerr.CompilationError{
					Stage: "rulesource.validate", Message: err.Error(), RuleCode: ruleCode, Field: c.Field,
				})
				continue
			}
			vc.Num = n

		case predicate.Contains, predicate.StartsWith, predicate.EndsWith, predicate.Regex:
			s, err := decodeString(c.Value)
			if err != nil {
				errs = append(errs, &engerr.CompilationError{
					Stage: "rulesource.validate", Message: "operator requires a string value: " + err.Error(),
					RuleCode: ruleCode, Field: c.Field,
				})
				continue
			}
			if op == predicate.Regex {
				if _, err := regexp.Compile(s); err != nil {
					errs = append(errs, &engerr.CompilationError{
						Stage: "rulesource.validate", Message: "invalid regex pattern: " + err.Error(),
						RuleCode: ruleCode, Field: c.Field,
					})
					continue
				}
			}
			vc.Str = s

		case predicate.EqualTo, predicate.NotEqualTo:
			if err := decodeScalar(&vc, c.Value); err != nil {
				errs = append(errs, &engerr.CompilationError{
					Stage: "rulesource.validate", Message: err.Error(), RuleCode: ruleCode, Field: c.Field,
				})
				continue
			}
		}

		out = append(out, vc)
	}
	return out, errs
}

func normalizeFieldName(field string) string {
	return strings.ToUpper(strings.ReplaceAll(field, "-", "_"))
}

func decodeScalar(vc *ValidatedCondition, raw json.RawMessage) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("invalid scalar value: %w", err)
	}
	switch t := v.(type) {
	case string:
		vc.Str = t
	case float64:
		vc.Num = t
		vc.IsNumber = true
	case bool:
		vc.Bool = t
		vc.IsBool = true
	default:
		return fmt.Errorf("unsupported scalar value type %T", v)
	}
	return nil
}

func decodeString(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("non-string value: %w", err)
	}
	return s, nil
}

func decodeNumber(raw json.RawMessage) (float64, error) {
	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, fmt.Errorf("non-numeric value: %w", err)
	}
	return n, nil
}

func decodeRange(raw json.RawMessage) ([2]float64, error) {
	var arr []float64
	if err := json.Unmarshal(raw, &arr); err != nil {
		return [2]float64{}, fmt.Errorf("BETWEEN value must be a 2-element numeric array: %w", err)
	}
	if len(arr) != 2 {
		return [2]float64{}, fmt.Errorf("BETWEEN value must have exactly 2 elements, got %d", len(arr))
	}
	return [2]float64{arr[0], arr[1]}, nil
}

func decodeList(vc *ValidatedCondition, raw json.RawMessage) error {
	var generic []any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return fmt.Errorf("value must be an array: %w", err)
	}
	for _, v := range generic {
		switch t := v.(type) {
		case string:
			vc.List = append(vc.List, t)
		case float64:
			vc.NumList = append(vc.NumList, t)
			vc.IsNumList = true
		default:
			return fmt.Errorf("unsupported list element type %T", v)
		}
	}
	return nil
}
