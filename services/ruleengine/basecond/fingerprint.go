// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package basecond

import (
	"encoding/binary"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/arcflow-systems/ruleforge/services/ruleengine/event"
	"github.com/arcflow-systems/ruleforge/services/ruleengine/model"
	"github.com/arcflow-systems/ruleforge/services/ruleengine/predicate"
)

// fingerprintSeedA/B are the two distinct xxhash seeds combined into the
// 128-bit cache key: hashing the same canonical byte sequence twice
// under different seeds gives a key that is stable across processes for
// a given model without pulling in a second hash function.
const (
	fingerprintSeedA = 0x1000000000000001
	fingerprintSeedB = 0x9E3779B97F4A7C15
)

// referencedFields returns the sorted, deduplicated set of field ids any
// applicable set's static predicates touch.
func referencedFields(m *model.Model, applicable []model.BaseSet) []uint32 {
	seen := make(map[uint32]struct{})
	for _, bs := range applicable {
		for _, pid := range bs.StaticPredicateIDs {
			seen[m.Predicates[pid].FieldID] = struct{}{}
		}
	}
	out := make([]uint32, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// fingerprint computes the cache key: the sorted union of referenced
// (field_id, value) pairs from the encoded event, concatenated with the
// sorted union of static predicate ids across applicable sets, hashed
// twice under distinct seeds into a 128-bit key.
func fingerprint(m *model.Model, applicable []model.BaseSet, enc *event.Encoded) [2]uint64 {
	fields := referencedFields(m, applicable)

	var buf strings.Builder
	for _, fid := range fields {
		val, present, isNull := enc.Lookup(fid)
		buf.WriteString(strconv.FormatUint(uint64(fid), 10))
		buf.WriteByte(':')
		switch {
		case !present:
			buf.WriteString("absent")
		case isNull:
			buf.WriteString("null")
		default:
			buf.WriteString(val.Canonical())
		}
		buf.WriteByte('|')
	}

	predIDs := unionStaticPredicateIDs(applicable)
	idBytes := make([]byte, 4)
	for _, pid := range predIDs {
		binary.LittleEndian.PutUint32(idBytes, uint32(pid))
		buf.Write(idBytes)
	}

	canonical := buf.String()
	a := xxhash.NewWithSeed(fingerprintSeedA)
	a.WriteString(canonical)
	b := xxhash.NewWithSeed(fingerprintSeedB)
	b.WriteString(canonical)
	return [2]uint64{a.Sum64(), b.Sum64()}
}

func unionStaticPredicateIDs(applicable []model.BaseSet) []predicate.ID {
	seen := make(map[predicate.ID]struct{})
	for _, bs := range applicable {
		for _, pid := range bs.StaticPredicateIDs {
			seen[pid] = struct{}{}
		}
	}
	out := make([]predicate.ID, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// fingerprintKey renders the 128-bit fingerprint as the string key the
// cache contract uses.
func fingerprintKey(fp [2]uint64) string {
	var b strings.Builder
	b.Grow(33)
	writeHex(&b, fp[0])
	b.WriteByte('-')
	writeHex(&b, fp[1])
	return b.String()
}

func writeHex(b *strings.Builder, v uint64) {
	const hexDigits = "0123456789abcdef"
	var tmp [16]byte
	for i := 15; i >= 0; i-- {
		tmp[i] = hexDigits[v&0xf]
		v >>= 4
	}
	b.Write(tmp[:])
}
