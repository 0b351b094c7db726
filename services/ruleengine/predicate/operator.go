// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package predicate

// Operator identifies a condition's comparison kind. Dispatch over
// Operator is a plain switch on the hot path rather than virtual calls
// through an interface per operator.
type Operator uint8

const (
	EqualTo Operator = iota
	NotEqualTo
	IsAnyOf
	IsNoneOf
	GreaterThan
	GreaterThanOrEqual
	LessThan
	LessThanOrEqual
	Between
	Contains
	StartsWith
	EndsWith
	Regex
	IsNull
	IsNotNull

	numOperators
)

var operatorNames = [numOperators]string{
	EqualTo:            "EQUAL_TO",
	NotEqualTo:         "NOT_EQUAL_TO",
	IsAnyOf:            "IS_ANY_OF",
	IsNoneOf:           "IS_NONE_OF",
	GreaterThan:        "GREATER_THAN",
	GreaterThanOrEqual: "GREATER_THAN_OR_EQUAL",
	LessThan:           "LESS_THAN",
	LessThanOrEqual:    "LESS_THAN_OR_EQUAL",
	Between:            "BETWEEN",
	Contains:           "CONTAINS",
	StartsWith:         "STARTS_WITH",
	EndsWith:           "ENDS_WITH",
	Regex:              "REGEX",
	IsNull:             "IS_NULL",
	IsNotNull:          "IS_NOT_NULL",
}

// String returns the wire-format operator name.
func (o Operator) String() string {
	if o >= numOperators {
		return "UNKNOWN"
	}
	return operatorNames[o]
}

// ParseOperator maps a wire-format operator string to an Operator. The
// second return value is false for any unrecognized string, which the
// rule-source validator turns into a CompilationError.
func ParseOperator(s string) (Operator, bool) {
	for op, name := range operatorNames {
		if name == s {
			return Operator(op), true
		}
	}
	return 0, false
}

// IsStatic reports whether the operator is eligible for the base-condition
// cache: equality, set membership, numeric comparisons, nullity. Dynamic
// operators (string matching, regex) must be re-evaluated per event and
// are never part of a base set.
func (o Operator) IsStatic() bool {
	switch o {
	case EqualTo, NotEqualTo, IsAnyOf, IsNoneOf, IsNull, IsNotNull,
		GreaterThan, GreaterThanOrEqual, LessThan, LessThanOrEqual, Between:
		return true
	default:
		return false
	}
}

// IsNumeric reports whether the operator compares operands as float64.
func (o Operator) IsNumeric() bool {
	switch o {
	case GreaterThan, GreaterThanOrEqual, LessThan, LessThanOrEqual, Between:
		return true
	default:
		return false
	}
}

// SelectivityFactor returns the operator factor used in the selectivity
// formula: selectivity = clamp(base * factor, 0.01, 0.99).
func (o Operator) SelectivityFactor() float32 {
	switch o {
	case EqualTo:
		return 1.0
	case IsAnyOf:
		return 1.3
	case GreaterThan, LessThan, GreaterThanOrEqual, LessThanOrEqual:
		return 2.0
	case Between:
		return 1.5
	case Contains:
		return 1.2
	case Regex:
		return 1.1
	default:
		return 1.0
	}
}

// Cost returns the relative evaluation cost used in the weight formula:
// weight = (1 - selectivity) * cost.
func (o Operator) Cost() float32 {
	switch o {
	case EqualTo, NotEqualTo:
		return 1.0
	case GreaterThan, GreaterThanOrEqual, LessThan, LessThanOrEqual, Between:
		return 1.5
	case Contains, StartsWith, EndsWith:
		return 3.0
	case Regex:
		return 10.0
	default:
		return 1.0
	}
}
