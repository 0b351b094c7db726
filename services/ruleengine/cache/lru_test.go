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
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arcflow-systems/ruleforge/internal/bitmap"
)

func TestLRUPutThenGetHits(t *testing.T) {
	c := NewLRU(10, time.Minute, true)
	bm := bitmap.New()
	bm.Add(1)
	bm.Add(5)

	require.NoError(t, c.Put(context.Background(), "k1", bm, 0))

	got, ok, err := c.Get(context.Background(), "k1")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, got.Bitmap.Contains(1))
	require.True(t, got.Bitmap.Contains(5))

	stats := c.Stats()
	require.Equal(t, int64(1), stats.Hits)
	require.Equal(t, int64(0), stats.Misses)
}

func TestLRUGetMissOnUnknownKey(t *testing.T) {
	c := NewLRU(10, time.Minute, true)
	_, ok, err := c.Get(context.Background(), "nope")
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, int64(1), c.Stats().Misses)
}

func TestLRUEvictsOldestOnOverflow(t *testing.T) {
	c := NewLRU(2, time.Minute, true)
	bm := bitmap.New()

	require.NoError(t, c.Put(context.Background(), "a", bm, 0))
	require.NoError(t, c.Put(context.Background(), "b", bm, 0))
	require.NoError(t, c.Put(context.Background(), "c", bm, 0))

	_, ok, _ := c.Get(context.Background(), "a")
	require.False(t, ok, "oldest entry should have been evicted")

	_, ok, _ = c.Get(context.Background(), "c")
	require.True(t, ok)

	require.Equal(t, int64(1), c.Stats().Evictions)
}

func TestLRUExpiresEntriesPastTTL(t *testing.T) {
	c := NewLRU(10, time.Millisecond, true)
	bm := bitmap.New()
	require.NoError(t, c.Put(context.Background(), "k", bm, time.Millisecond))

	time.Sleep(5 * time.Millisecond)

	_, ok, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLRUGetReturnsDefensiveCopy(t *testing.T) {
	c := NewLRU(10, time.Minute, true)
	bm := bitmap.New()
	bm.Add(1)
	require.NoError(t, c.Put(context.Background(), "k", bm, 0))

	got, _, _ := c.Get(context.Background(), "k")
	got.Bitmap.Add(99)

	got2, _, _ := c.Get(context.Background(), "k")
	require.False(t, got2.Bitmap.Contains(99), "mutating a returned entry must not affect cached state")
}

func TestNoOpAlwaysMisses(t *testing.T) {
	var c NoOp
	bm := bitmap.New()
	require.NoError(t, c.Put(context.Background(), "k", bm, 0))

	_, ok, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, Stats{}, c.Stats())
	require.NoError(t, c.Close())
}
