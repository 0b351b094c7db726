// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pool

import "github.com/arcflow-systems/ruleforge/internal/bitmap"

// Counters is the per-evaluation counter array: one uint16 per
// combination, incremented as its predicates evaluate true.
type Counters []uint16

// TouchedSet tracks which combination ids were touched during one
// evaluation, so match detection only walks combinations that could
// possibly have matched instead of the full counter array.
type TouchedSet struct {
	ids  []uint32
	seen map[uint32]bool
}

// Add records c as touched, once.
func (t *TouchedSet) Add(c uint32) {
	if t.seen[c] {
		return
	}
	t.seen[c] = true
	t.ids = append(t.ids, c)
}

// Each calls fn once per distinct touched id, in the order first added.
func (t *TouchedSet) Each(fn func(uint32)) {
	for _, id := range t.ids {
		fn(id)
	}
}

// Len returns the number of distinct touched ids.
func (t *TouchedSet) Len() int {
	return len(t.ids)
}

// NewCounterPool builds the pool for per-evaluation counter arrays, sized
// to the current model's combination count. Callers must rebuild the pool
// whenever the Model Manager swaps in a model with a different
// NumCombinations, since a stale, undersized array would silently
// under-count.
func NewCounterPool(numCombinations int) *Pool[Counters] {
	return New(
		func() Counters { return make(Counters, numCombinations) },
		func(c Counters) {
			for i := range c {
				c[i] = 0
			}
		},
	)
}

// NewTouchedSetPool builds the pool for per-evaluation touched-id sets.
func NewTouchedSetPool() *Pool[*TouchedSet] {
	return New(
		func() *TouchedSet { return &TouchedSet{seen: make(map[uint32]bool)} },
		func(t *TouchedSet) {
			t.ids = t.ids[:0]
			for k := range t.seen {
				delete(t.seen, k)
			}
		},
	)
}

// NewBitmapPool builds the pool for per-thread intersection scratch
// bitmaps, used by the evaluator's adaptive intersection strategy when a
// posting list is large enough to warrant materializing its intersection
// with the eligibility bitmap instead of a linear membership scan.
func NewBitmapPool() *Pool[*bitmap.Set] {
	return New(
		func() *bitmap.Set { return bitmap.New() },
		func(b *bitmap.Set) { b.Clear() },
	)
}
