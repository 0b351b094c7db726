// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cache implements the result cache: a backend-agnostic
// contract for eligibility bitmaps keyed by event fingerprint, with four
// interchangeable backends. At-most-one-build-per-key coalescing is
// layered in front of this contract by package basecond (via
// singleflight), not duplicated inside every backend.
package cache

import (
	"context"
	"time"

	"github.com/arcflow-systems/ruleforge/internal/bitmap"
)

// Entry is one cached eligibility result.
type Entry struct {
	Bitmap    *bitmap.Set
	CreatedAt time.Time
	HitCount  int64
}

// Stats is a point-in-time snapshot of one backend's counters.
type Stats struct {
	Requests    int64
	Hits        int64
	Misses      int64
	Evictions   int64
	CurrentSize int64
	HitRate     float64
	AvgGetNanos int64
	AvgPutNanos int64
}

// Cache is the backend-agnostic contract every variant implements. Get
// returns a defensive copy of the stored bitmap — callers may mutate the
// returned Entry.Bitmap freely without affecting the cache's internal
// state. Put stores with the given TTL; a zero TTL means "use the
// backend's default".
type Cache interface {
	Get(ctx context.Context, key string) (*Entry, bool, error)
	Put(ctx context.Context, key string, bm *bitmap.Set, ttl time.Duration) error
	Stats() Stats
	Close() error
}

func cloneEntry(e *Entry) *Entry {
	if e == nil {
		return nil
	}
	return &Entry{
		Bitmap:    e.Bitmap.Clone(),
		CreatedAt: e.CreatedAt,
		HitCount:  e.HitCount,
	}
}
