// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"context"
	"time"

	"github.com/arcflow-systems/ruleforge/internal/bitmap"
)

// NoOp never stores anything: every Get misses, every Put is a no-op.
// Useful when base-condition recomputation is cheap enough that caching
// only adds memory pressure, or for benchmarking the evaluator without
// cache effects.
type NoOp struct{}

func (NoOp) Get(context.Context, string) (*Entry, bool, error) { return nil, false, nil }
func (NoOp) Put(context.Context, string, *bitmap.Set, time.Duration) error { return nil }
func (NoOp) Stats() Stats                                      { return Stats{} }
func (NoOp) Close() error                                      { return nil }
