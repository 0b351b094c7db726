// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package event

import (
	"strings"

	"github.com/google/uuid"

	"github.com/arcflow-systems/ruleforge/services/ruleengine/dictionary"
	"github.com/arcflow-systems/ruleforge/services/ruleengine/predicate"
)

// Encode flattens and resolves one event. fieldDict and valueDict are the frozen
// dictionaries off the currently published Engine Model; Encode never
// mutates them (Encode-after-Freeze panics, so a frozen dictionary's
// GetID is the only call made here).
func Encode(fieldDict, valueDict *dictionary.Dictionary, ev Event) *Encoded {
	flat := make(map[string]any)
	flatten(ev.Attributes, "", flat)

	fields := make(map[uint32]fieldState, len(flat))
	upperCache := make(map[string]string, len(flat))

	for key, raw := range flat {
		fieldID := fieldDict.GetID(normalizeKey(key))
		if fieldID == dictionary.Absent {
			continue // unknown field: no rule can reference it
		}

		if raw == nil {
			fields[fieldID] = fieldState{isNull: true}
			continue
		}

		switch v := raw.(type) {
		case string:
			upper, ok := upperCache[v]
			if !ok {
				upper = strings.ToUpper(v)
				upperCache[v] = upper
			}
			if id := valueDict.GetID(upper); id != dictionary.Absent {
				// Substitute the dictionary id for equality operators, but
				// keep the original (non-normalized) string alongside it —
				// CONTAINS/STARTS_WITH/ENDS_WITH/REGEX match on original
				// case even when the uppercased form is a known value.
				val := predicate.ValueIntID(id)
				val.S = v
				fields[fieldID] = fieldState{value: val}
			} else {
				fields[fieldID] = fieldState{value: predicate.ValueString(v)}
			}
		case bool:
			fields[fieldID] = fieldState{value: predicate.ValueBool(v)}
		case float64:
			fields[fieldID] = fieldState{value: predicate.ValueFloat(v)}
		case int:
			fields[fieldID] = fieldState{value: predicate.ValueFloat(float64(v))}
		case int64:
			fields[fieldID] = fieldState{value: predicate.ValueFloat(float64(v))}
		case float32:
			fields[fieldID] = fieldState{value: predicate.ValueFloat(float64(v))}
		default:
			// Unsupported attribute type: treated as absent, same as an
			// unknown field name.
		}
	}

	id := ev.ID
	if id == "" {
		id = uuid.NewString()
	}
	return &Encoded{EventID: id, fields: fields}
}

// flatten walks attrs recursively, joining nested map keys with "." so
// { "user": { "country": "US" } } becomes the single key "user.country".
func flatten(attrs map[string]any, prefix string, out map[string]any) {
	for k, v := range attrs {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok {
			flatten(nested, key, out)
			continue
		}
		out[key] = v
	}
}

// normalizeKey applies the same UPPER-SNAKE normalization the compiler
// applies to rule field names (rulesource.normalizeFieldName), so an
// event attribute key resolves against the same dictionary entry a rule
// referencing it would.
func normalizeKey(key string) string {
	return strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
}
