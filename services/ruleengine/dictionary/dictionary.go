// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dictionary implements the compiler's bijective string<->id
// mapping (field names and field values), frozen once the engine model
// is built so evaluator reads never allocate or take a lock.
package dictionary

import "sync"

// Absent is the sentinel id returned for a lookup that misses.
const Absent uint32 = ^uint32(0)

// Dictionary is a dense string<->id map. Ids are assigned in insertion
// order starting at 0. Dictionary is safe for concurrent use: writes are
// guarded by a mutex while the compiler is building the model; once
// Freeze is called, Encode becomes equivalent to GetID (no further
// inserts), and reads take no lock.
//
// Thread Safety: concurrent reads are always safe. Concurrent Encode
// calls before Freeze are safe but not wait-free; call Freeze before
// handing the Dictionary to evaluator goroutines to get the lock-free
// read path the hot path requires.
type Dictionary struct {
	mu     sync.RWMutex
	toID   map[string]uint32
	toStr  []string
	frozen bool
}

// New returns an empty, unfrozen Dictionary.
func New() *Dictionary {
	return &Dictionary{toID: make(map[string]uint32)}
}

// Encode returns the id for s, inserting a new dense id if s has not been
// seen before. Encode panics if called after Freeze — the compiler is the
// only writer and must finish building before the model is published.
func (d *Dictionary) Encode(s string) uint32 {
	d.mu.RLock()
	if id, ok := d.toID[s]; ok {
		d.mu.RUnlock()
		return id
	}
	d.mu.RUnlock()

	d.mu.Lock()
	defer d.mu.Unlock()
	if id, ok := d.toID[s]; ok {
		return id
	}
	if d.frozen {
		panic("dictionary: Encode called after Freeze")
	}
	id := uint32(len(d.toStr))
	d.toStr = append(d.toStr, s)
	d.toID[s] = id
	return id
}

// GetID returns the id for s, or Absent if s has never been encoded.
// GetID never allocates and never inserts.
func (d *Dictionary) GetID(s string) uint32 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if id, ok := d.toID[s]; ok {
		return id
	}
	return Absent
}

// Decode returns the string for id, and false if id is out of range.
func (d *Dictionary) Decode(id uint32) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if int(id) >= len(d.toStr) {
		return "", false
	}
	return d.toStr[id], true
}

// Size returns the number of distinct strings encoded.
func (d *Dictionary) Size() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.toStr)
}

// Freeze marks the dictionary read-only. Called once by the compiler
// immediately before the Engine Model is published. Idempotent.
func (d *Dictionary) Freeze() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frozen = true
}

// Frozen reports whether Freeze has been called.
func (d *Dictionary) Frozen() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.frozen
}
