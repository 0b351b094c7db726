// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package event implements the event encoder: flattening nested
// attribute maps to dotted UPPER-SNAKE keys and resolving each attribute
// to the compiled model's dictionaries. Encode builds a new Encoded on
// every call; the result is not cached on the Event, so an event passed
// to several evaluations is flattened and resolved once per evaluation.
package event

import (
	"github.com/arcflow-systems/ruleforge/services/ruleengine/predicate"
)

// Event is the wire-level input to the evaluator: an id, an optional
// type, and a free-form nested attribute bag.
type Event struct {
	ID         string         `json:"event_id"`
	Type       string         `json:"event_type,omitempty"`
	Attributes map[string]any `json:"attributes"`
}

// fieldState is one resolved attribute: either a usable Value, or a
// marker that the attribute was present but explicitly null.
type fieldState struct {
	value  predicate.Value
	isNull bool
}

// Encoded is the dictionary-resolved form of an Event. It is built once
// per Encode call and read by every predicate evaluation that uses it.
type Encoded struct {
	EventID string
	fields  map[uint32]fieldState
}

// Lookup returns the resolved value for fieldID, along with whether the
// field was present in the event at all and whether it was explicitly
// null. Absent fields return present=false; predicate.Eval applies each
// operator's missing-field rule in that case.
func (e *Encoded) Lookup(fieldID uint32) (value predicate.Value, present, isNull bool) {
	fs, ok := e.fields[fieldID]
	if !ok {
		return predicate.Value{}, false, false
	}
	return fs.value, true, fs.isNull
}

// NumFields returns the count of attributes that resolved to a known
// field id.
func (e *Encoded) NumFields() int {
	return len(e.fields)
}

// HasField reports whether fieldID was present (set or explicit null) in
// the source event.
func (e *Encoded) HasField(fieldID uint32) bool {
	_, ok := e.fields[fieldID]
	return ok
}
