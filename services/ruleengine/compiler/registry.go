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
	"regexp"
	"sort"
	"strings"

	"github.com/arcflow-systems/ruleforge/services/ruleengine/dictionary"
	"github.com/arcflow-systems/ruleforge/services/ruleengine/predicate"
	"github.com/arcflow-systems/ruleforge/services/ruleengine/rulesource"
)

// predicateRegistry interns Predicates by identity key (field, operator,
// canonical value) while the compiler is building the model. It owns the
// field and value dictionaries so every component downstream shares the
// same id space.
type predicateRegistry struct {
	fieldDict *dictionary.Dictionary
	valueDict *dictionary.Dictionary
	byKey     map[string]predicate.ID
	preds     []predicate.Predicate
}

func newPredicateRegistry() *predicateRegistry {
	return &predicateRegistry{
		fieldDict: dictionary.New(),
		valueDict: dictionary.New(),
		byKey:     make(map[string]predicate.ID),
	}
}

func (r *predicateRegistry) intern(p predicate.Predicate) predicate.ID {
	key := p.IdentityKey()
	if id, ok := r.byKey[key]; ok {
		return id
	}
	id := predicate.ID(len(r.preds))
	r.preds = append(r.preds, p)
	r.byKey[key] = id
	return id
}

// buildFixed converts one non-disjunctive ValidatedCondition into an
// interned predicate id.
func (r *predicateRegistry) buildFixed(c rulesource.ValidatedCondition) predicate.ID {
	fieldID := r.fieldDict.Encode(c.Field)
	p := predicate.Predicate{FieldID: fieldID, Op: c.Op}

	switch c.Op {
	case predicate.IsNull, predicate.IsNotNull:
		// Value left zero; identity depends only on (field, op).

	case predicate.EqualTo, predicate.NotEqualTo:
		p.Value = r.scalarValue(c)

	case predicate.GreaterThan, predicate.GreaterThanOrEqual, predicate.LessThan, predicate.LessThanOrEqual:
		p.Value = predicate.ValueFloat(c.Num)

	case predicate.Between:
		p.Value = predicate.ValueFloatRange(c.Lo, c.Hi)
		p.PreCompiled.Lo, p.PreCompiled.Hi = c.Lo, c.Hi

	case predicate.IsAnyOf, predicate.IsNoneOf:
		p.Value, p.PreCompiled.SortedInts = r.listValue(c)

	case predicate.Contains, predicate.StartsWith, predicate.EndsWith:
		p.Value = predicate.ValueString(c.Str) // original case, never uppercased

	case predicate.Regex:
		p.Value = predicate.ValueString(c.Str)
		// Full-match semantics: the pattern must cover the whole event
		// string, not merely occur somewhere in it. The raw pattern was
		// already validated compilable in rulesource.Validate.
		p.PreCompiled.Regex = regexp.MustCompile(`\A(?:` + c.Str + `)\z`)
	}

	return r.intern(p)
}

// buildChosenEqualString converts one chosen element of a disjunction
// into an EQUAL_TO predicate: each product element fixes exactly one
// value per disjunction, rewritten as EQUAL_TO(field, value).
func (r *predicateRegistry) buildChosenEqualString(field, value string) predicate.ID {
	fieldID := r.fieldDict.Encode(field)
	valueID := r.valueDict.Encode(strings.ToUpper(value))
	p := predicate.Predicate{FieldID: fieldID, Op: predicate.EqualTo, Value: predicate.ValueIntID(valueID)}
	return r.intern(p)
}

func (r *predicateRegistry) buildChosenEqualNumber(field string, value float64) predicate.ID {
	fieldID := r.fieldDict.Encode(field)
	p := predicate.Predicate{FieldID: fieldID, Op: predicate.EqualTo, Value: predicate.ValueFloat(value)}
	return r.intern(p)
}

// scalarValue builds the predicate.Value for an EQUAL_TO/NOT_EQUAL_TO
// condition, dictionary-encoding string operands (uppercased first, for
// case-insensitive comparison) and leaving numeric/bool operands as-is.
func (r *predicateRegistry) scalarValue(c rulesource.ValidatedCondition) predicate.Value {
	switch {
	case c.IsNumber:
		return predicate.ValueFloat(c.Num)
	case c.IsBool:
		return predicate.ValueBool(c.Bool)
	default:
		id := r.valueDict.Encode(strings.ToUpper(c.Str))
		return predicate.ValueIntID(id)
	}
}

// listValue builds the canonical IntList Value plus its sorted int64 form
// for IS_ANY_OF/IS_NONE_OF, dictionary-encoding string members.
func (r *predicateRegistry) listValue(c rulesource.ValidatedCondition) (predicate.Value, []int64) {
	var ids []int64
	if c.IsNumList {
		for _, n := range c.NumList {
			ids = append(ids, int64(n))
		}
	} else {
		for _, s := range c.List {
			ids = append(ids, int64(r.valueDict.Encode(strings.ToUpper(s))))
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	v := predicate.ValueIntList(ids)
	return v, v.IDs
}
