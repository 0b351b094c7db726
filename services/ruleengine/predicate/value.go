// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package predicate

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Kind discriminates the Value sum type.
type Kind uint8

const (
	KindIntID Kind = iota
	KindInt
	KindFloat
	KindBool
	KindString
	KindIntList
	KindFloatRange
)

// Value is a tagged union holding exactly one of the kinds named by Kind.
// Dispatch is a switch on Kind, never an interface type-assertion chain,
// which keeps predicate evaluation free of virtual calls.
type Value struct {
	Kind Kind

	ID     uint32  // KindIntID: a dictionary value id (dictionary-encoded EQUAL_TO/NOT_EQUAL_TO string operands)
	I      int64   // KindInt
	F      float64 // KindFloat
	B      bool    // KindBool
	S      string  // KindString: original, non-uppercased string; also carried alongside KindIntID for event values
	IDs    []int64 // KindIntList, sorted ascending (IS_ANY_OF/IS_NONE_OF)
	Lo, Hi float64 // KindFloatRange (BETWEEN bounds, inclusive)
}

func ValueIntID(id uint32) Value        { return Value{Kind: KindIntID, ID: id} }
func ValueInt(i int64) Value            { return Value{Kind: KindInt, I: i} }
func ValueFloat(f float64) Value        { return Value{Kind: KindFloat, F: f} }
func ValueBool(b bool) Value            { return Value{Kind: KindBool, B: b} }
func ValueString(s string) Value        { return Value{Kind: KindString, S: s} }
func ValueFloatRange(lo, hi float64) Value {
	return Value{Kind: KindFloatRange, Lo: lo, Hi: hi}
}

// ValueIntList returns an IntList value with ids canonicalized (sorted,
// deduplicated) so that two logically-equal value sets always produce
// byte-identical canonical forms for predicate-identity comparison.
func ValueIntList(ids []int64) Value {
	cp := append([]int64(nil), ids...)
	sort.Slice(cp, func(i, j int) bool { return cp[i] < cp[j] })
	out := cp[:0]
	var last int64
	haveLast := false
	for _, v := range cp {
		if haveLast && v == last {
			continue
		}
		out = append(out, v)
		last = v
		haveLast = true
	}
	return Value{Kind: KindIntList, IDs: out}
}

// Canonical returns a deterministic string encoding of the value, used
// as part of a predicate's identity key (two predicates are logically
// equal iff field, operator, and canonical value agree) and fed into the
// xxhash-based canonical hash for base-condition-set grouping.
func (v Value) Canonical() string {
	var b strings.Builder
	switch v.Kind {
	case KindIntID:
		b.WriteString("id:")
		b.WriteString(strconv.FormatUint(uint64(v.ID), 10))
	case KindInt:
		b.WriteString("i:")
		b.WriteString(strconv.FormatInt(v.I, 10))
	case KindFloat:
		b.WriteString("f:")
		b.WriteString(strconv.FormatFloat(v.F, 'g', -1, 64))
	case KindBool:
		b.WriteString("b:")
		b.WriteString(strconv.FormatBool(v.B))
	case KindString:
		b.WriteString("s:")
		b.WriteString(v.S)
	case KindIntList:
		b.WriteString("l:")
		for i, id := range v.IDs {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.FormatInt(id, 10))
		}
	case KindFloatRange:
		fmt.Fprintf(&b, "r:%s..%s",
			strconv.FormatFloat(v.Lo, 'g', -1, 64),
			strconv.FormatFloat(v.Hi, 'g', -1, 64))
	}
	return b.String()
}

// Equal reports whether two values are canonically identical.
func (v Value) Equal(other Value) bool {
	return v.Kind == other.Kind && v.Canonical() == other.Canonical()
}
