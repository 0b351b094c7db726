// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package bitmap wraps a RoaringBitmap/roaring/v2 bitmap behind the small
// surface the engine actually needs: posting lists
// (predicate -> combinations) and eligibility sets (the combinations a
// given event still has a chance of matching). Callers never see the
// underlying roaring.Bitmap type, which keeps the compressed-container
// choice swappable without touching compiler/eval code.
package bitmap

import (
	"bytes"
	"io"

	"github.com/RoaringBitmap/roaring/v2"
)

// Set is a compressed, mutable set of non-negative integer ids (predicate
// ids, combination ids, etc). The zero value is not usable; use New.
//
// Thread Safety: a Set is not safe for concurrent mutation. Readers that
// need to hand out a Set to other goroutines must Clone it first (cached
// eligibility bitmaps are cloned before leaving the cache, per the
// "defensive copy" requirement on cached bitmaps).
type Set struct {
	rb *roaring.Bitmap
}

// New returns an empty Set.
func New() *Set {
	return &Set{rb: roaring.NewBitmap()}
}

// Of returns a Set containing exactly the given ids.
func Of(ids ...uint32) *Set {
	return &Set{rb: roaring.BitmapOf(ids...)}
}

// Add inserts id into the set. No-op if already present.
func (s *Set) Add(id uint32) {
	s.rb.Add(id)
}

// Remove deletes id from the set. No-op if absent.
func (s *Set) Remove(id uint32) {
	s.rb.Remove(id)
}

// Contains reports whether id is a member of the set.
func (s *Set) Contains(id uint32) bool {
	return s.rb.Contains(id)
}

// Cardinality returns the number of members.
func (s *Set) Cardinality() int {
	return int(s.rb.GetCardinality())
}

// IsEmpty reports whether the set has no members.
func (s *Set) IsEmpty() bool {
	return s.rb.IsEmpty()
}

// Clear removes all members, retaining the underlying container capacity
// for reuse (callers keeping a Set in a pool should Clear rather than
// discard it).
func (s *Set) Clear() {
	s.rb.Clear()
}

// Clone returns an independent deep copy.
func (s *Set) Clone() *Set {
	return &Set{rb: s.rb.Clone()}
}

// Iterate calls fn once per member in ascending order. fn returning false
// stops iteration early.
func (s *Set) Iterate(fn func(id uint32) bool) {
	it := s.rb.Iterator()
	for it.HasNext() {
		if !fn(it.Next()) {
			return
		}
	}
}

// ToSlice materializes the set as a sorted slice of ids.
func (s *Set) ToSlice() []uint32 {
	return s.rb.ToArray()
}

// Or unions other into the receiver in place.
func (s *Set) Or(other *Set) {
	s.rb.Or(other.rb)
}

// AndInPlace intersects the receiver with other in place.
func (s *Set) AndInPlace(other *Set) {
	s.rb.And(other.rb)
}

// Subtract removes every member of other from the receiver in place
// (set difference, a.k.a. AND NOT). Used by the base-condition evaluator
// to drop a base set's combinations once its static predicates fail the
// event.
func (s *Set) Subtract(other *Set) {
	s.rb.AndNot(other.rb)
}

// AndInto computes a ∩ b and writes the result into out, which is cleared
// first. out may be reused across calls (the adaptive intersection
// strategy in the evaluator's counter pass reuses a single per-thread
// scratch Set across many predicates per event), avoiding an allocation
// per intersection the way a fresh a.And(b) clone would require.
func AndInto(a, b, out *Set) {
	out.rb.Clear()
	out.rb.Or(a.rb)
	out.rb.And(b.rb)
}

// AndCardinality returns |a ∩ b| without materializing the intersection.
func AndCardinality(a, b *Set) int {
	return int(a.rb.AndCardinality(b.rb))
}

// WriteTo serializes the set for a cache backend that stores raw bytes
// (the badger-backed remote cache persists fingerprint -> serialized
// bitmap entries this way).
func (s *Set) WriteTo(w io.Writer) (int64, error) {
	return s.rb.WriteTo(w)
}

// FromBytes deserializes a Set previously produced by WriteTo.
func FromBytes(data []byte) (*Set, error) {
	rb := roaring.NewBitmap()
	if _, err := rb.ReadFrom(bytes.NewReader(data)); err != nil {
		return nil, err
	}
	return &Set{rb: rb}, nil
}

// Bytes serializes the set to a new byte slice.
func (s *Set) Bytes() []byte {
	var buf bytes.Buffer
	_, _ = s.rb.WriteTo(&buf)
	return buf.Bytes()
}

// Range returns a Set containing every integer in [0, n).
func Range(n uint32) *Set {
	s := New()
	s.rb.AddRange(uint64(0), uint64(n))
	return s
}
