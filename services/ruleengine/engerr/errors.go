// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engerr holds the engine's error kinds, shared across
// rulesource, compiler, eval, cache, and manager so callers can
// errors.As a single set of types regardless of which component raised
// them.
package engerr

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CompilationError is raised by the rule-source loader and compiler on
// invalid or rejected input. It is fatal to the recompile
// attempt in progress; the Model Manager retains the previously-published
// model when this is returned from a recompile.
type CompilationError struct {
	Stage    string // e.g. "rulesource.validate", "compiler.expand"
	Message  string
	RuleCode string // empty if not attributable to one rule
	Field    string // empty if not attributable to one field
}

func (e *CompilationError) Error() string {
	switch {
	case e.RuleCode != "" && e.Field != "":
		return fmt.Sprintf("%s: %s (rule=%s field=%s)", e.Stage, e.Message, e.RuleCode, e.Field)
	case e.RuleCode != "":
		return fmt.Sprintf("%s: %s (rule=%s)", e.Stage, e.Message, e.RuleCode)
	default:
		return fmt.Sprintf("%s: %s", e.Stage, e.Message)
	}
}

// EvaluationErrorKind enumerates the ways a single evaluation can fail
// without affecting the model or other events.
type EvaluationErrorKind uint8

const (
	RegexPanic EvaluationErrorKind = iota
	TypeCoercionFailure
	InternalInvariant
)

func (k EvaluationErrorKind) String() string {
	switch k {
	case RegexPanic:
		return "RegexPanic"
	case TypeCoercionFailure:
		return "TypeCoercionFailure"
	case InternalInvariant:
		return "InternalInvariant"
	default:
		return "Unknown"
	}
}

// MarshalJSON renders the kind by name, so a serialized evaluation
// result carries "RegexPanic" rather than an opaque ordinal.
func (k EvaluationErrorKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// EvaluationError is attached to a MatchResult when a single evaluation
// fails. It never crosses the public API as a Go error return — the hot
// path encodes every recoverable failure in the result instead.
type EvaluationError struct {
	EventID string              `json:"event_id"`
	Kind    EvaluationErrorKind `json:"kind"`
	Message string              `json:"message,omitempty"`
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluation error for event %s: %s: %s", e.EventID, e.Kind, e.Message)
}

// CacheErrorKind enumerates result-cache failure modes, all of which
// degrade to a cache miss rather than failing the evaluation.
type CacheErrorKind uint8

const (
	BackendUnavailable CacheErrorKind = iota
	Timeout
	SerializationFailure
)

func (k CacheErrorKind) String() string {
	switch k {
	case BackendUnavailable:
		return "BackendUnavailable"
	case Timeout:
		return "Timeout"
	case SerializationFailure:
		return "SerializationFailure"
	default:
		return "Unknown"
	}
}

// CacheError wraps a cache-backend failure. Callers (basecond.Evaluator)
// log it as a warning on every occurrence, with no rate limiting, and
// proceed as if the lookup had missed.
type CacheError struct {
	Kind CacheErrorKind
	Err  error
}

func (e *CacheError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cache error (%s): %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("cache error (%s)", e.Kind)
}

func (e *CacheError) Unwrap() error { return e.Err }

// ModelLoadError is raised when the initial compile fails at process
// startup, where there is no previously-good model to fall back to.
// Callers of manager.New should treat this as fatal and refuse to start.
type ModelLoadError struct {
	Err error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("initial model load failed: %v", e.Err)
}

func (e *ModelLoadError) Unwrap() error { return e.Err }

// CompilationErrors aggregates one CompilationError per failing rule, so
// a single compile attempt surfaces every broken rule at once. Any
// non-empty CompilationErrors is fatal to the recompile attempt.
type CompilationErrors struct {
	Errors []*CompilationError
}

func (e *CompilationErrors) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%d rule(s) failed validation: %s", len(e.Errors), strings.Join(msgs, "; "))
}

// Unwrap exposes the individual errors for errors.Is/errors.As (Go 1.20+
// multi-error unwrapping).
func (e *CompilationErrors) Unwrap() []error {
	out := make([]error, len(e.Errors))
	for i, err := range e.Errors {
		out[i] = err
	}
	return out
}

// ValidationWarning is a non-fatal advisory surfaced alongside a
// successfully compiled model (e.g. a field referenced by only one rule).
type ValidationWarning struct {
	RuleCode string
	Message  string
}

func (w ValidationWarning) String() string {
	if w.RuleCode == "" {
		return w.Message
	}
	return fmt.Sprintf("%s: %s", w.RuleCode, w.Message)
}
