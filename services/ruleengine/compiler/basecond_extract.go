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
	"encoding/binary"
	"log/slog"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/arcflow-systems/ruleforge/internal/bitmap"
	"github.com/arcflow-systems/ruleforge/services/ruleengine/model"
	"github.com/arcflow-systems/ruleforge/services/ruleengine/predicate"
)

// extractBaseSets groups combinations by the canonical hash of their
// static predicate subset. Combinations with zero static predicates
// produce no base set — they are tracked separately as "eligible for all
// events" via unconditional.
func extractBaseSets(logger *slog.Logger, combos []combination, preds []predicate.Predicate) (baseSets []model.BaseSet, unconditional *bitmap.Set) {
	type bucket struct {
		staticIDs []predicate.ID
		members   *bitmap.Set
	}
	byHash := make(map[uint64]*bucket)
	unconditional = bitmap.New()

	for idx, c := range combos {
		static := staticSubset(c.PredicateIDs, preds)
		if len(static) == 0 {
			unconditional.Add(uint32(idx))
			continue
		}

		h := canonicalHash(static, preds, false)
		b, ok := byHash[h]
		if ok && !sameIDs(b.staticIDs, static) {
			// Collision: two distinct static subsets landed on one hash.
			// Recompute with the alternate hash, then keep probing until
			// the bucket is empty or holds this exact static set — two
			// distinct sets must never merge into one base set, even if
			// the alternate hash collides as well.
			logger.Warn("base-condition hash collision detected, using alternate hash", "hash", h)
			h = canonicalHash(static, preds, true)
			for {
				b, ok = byHash[h]
				if !ok || sameIDs(b.staticIDs, static) {
					break
				}
				logger.Warn("alternate base-condition hash also collided, probing", "hash", h)
				h++
			}
		}
		if !ok {
			b = &bucket{staticIDs: static, members: bitmap.New()}
			byHash[h] = b
		}
		b.members.Add(uint32(idx))
	}

	hashes := make([]uint64, 0, len(byHash))
	for h := range byHash {
		hashes = append(hashes, h)
	}
	sort.Slice(hashes, func(i, j int) bool { return hashes[i] < hashes[j] })

	for i, h := range hashes {
		b := byHash[h]
		baseSets = append(baseSets, model.BaseSet{
			ID:                   i,
			StaticPredicateIDs:   b.staticIDs,
			Hash:                 h,
			AffectedCombinations: b.members,
			AvgSelectivity:       avgSelectivity(b.staticIDs, preds),
		})
	}
	return baseSets, unconditional
}

func staticSubset(ids []predicate.ID, preds []predicate.Predicate) []predicate.ID {
	var out []predicate.ID
	for _, id := range ids {
		if preds[id].IsStatic() {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// canonicalHash computes an xxhash64 over (field_id, op ordinal,
// canonical value) per predicate in sorted order. alt selects a distinct
// seed for the collision-fallback rehash.
func canonicalHash(ids []predicate.ID, preds []predicate.Predicate, alt bool) uint64 {
	seed := uint64(0)
	if alt {
		seed = 0x9E3779B97F4A7C15
	}
	h := xxhash.NewWithSeed(seed)
	var buf [8]byte
	for _, id := range ids {
		p := preds[id]
		binary.LittleEndian.PutUint32(buf[:4], p.FieldID)
		_, _ = h.Write(buf[:4])
		buf[0] = byte(p.Op)
		_, _ = h.Write(buf[:1])
		_, _ = h.Write([]byte(p.Value.Canonical()))
	}
	return h.Sum64()
}

func sameIDs(a, b []predicate.ID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func avgSelectivity(ids []predicate.ID, preds []predicate.Predicate) float32 {
	if len(ids) == 0 {
		return 1.0
	}
	var sum float32
	for _, id := range ids {
		sum += preds[id].Selectivity
	}
	return sum / float32(len(ids))
}
