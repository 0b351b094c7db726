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
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/arcflow-systems/ruleforge/internal/bitmap"
	"github.com/arcflow-systems/ruleforge/services/ruleengine/metrics"
)

type lruEntry struct {
	key       string
	entry     *Entry
	expiresAt time.Time
}

// LRU is the simplest of the four backends: an exact LRU over a
// doubly-linked list plus a map, size-bounded and TTL-enforced.
type LRU struct {
	mu          sync.Mutex
	ll          *list.List
	index       map[string]*list.Element
	maxSize     int64
	ttl         time.Duration
	recordStats bool

	requests, hits, misses, evictions, puts int64
	getNanosTotal, putNanosTotal            int64
}

// NewLRU returns an LRU bounded to maxSize entries with the given
// default TTL.
func NewLRU(maxSize int64, ttl time.Duration, recordStats bool) *LRU {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &LRU{
		ll:          list.New(),
		index:       make(map[string]*list.Element),
		maxSize:     maxSize,
		ttl:         ttl,
		recordStats: recordStats,
	}
}

func (c *LRU) Get(_ context.Context, key string) (*Entry, bool, error) {
	start := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	c.requests++
	el, ok := c.index[key]
	if !ok {
		c.misses++
		c.recordGet(start, "miss")
		return nil, false, nil
	}
	le := el.Value.(*lruEntry)
	if time.Now().After(le.expiresAt) {
		c.removeElement(el)
		c.misses++
		c.recordGet(start, "miss")
		return nil, false, nil
	}

	c.ll.MoveToFront(el)
	le.entry.HitCount++
	c.hits++
	c.recordGet(start, "hit")
	return cloneEntry(le.entry), true, nil
}

func (c *LRU) Put(_ context.Context, key string, bm *bitmap.Set, ttl time.Duration) error {
	start := time.Now()
	if ttl <= 0 {
		ttl = c.ttl
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[key]; ok {
		le := el.Value.(*lruEntry)
		le.entry = &Entry{Bitmap: bm.Clone(), CreatedAt: time.Now()}
		le.expiresAt = time.Now().Add(ttl)
		c.ll.MoveToFront(el)
		c.recordPut(start)
		return nil
	}

	le := &lruEntry{key: key, entry: &Entry{Bitmap: bm.Clone(), CreatedAt: time.Now()}, expiresAt: time.Now().Add(ttl)}
	el := c.ll.PushFront(le)
	c.index[key] = el

	for int64(c.ll.Len()) > c.maxSize {
		c.evictOldest()
	}
	c.recordPut(start)
	return nil
}

func (c *LRU) evictOldest() {
	el := c.ll.Back()
	if el == nil {
		return
	}
	c.removeElement(el)
	c.evictions++
	if c.recordStats {
		metrics.CacheEvictionsTotal.WithLabelValues("lru").Inc()
	}
}

func (c *LRU) removeElement(el *list.Element) {
	le := el.Value.(*lruEntry)
	c.ll.Remove(el)
	delete(c.index, le.key)
}

func (c *LRU) recordGet(start time.Time, outcome string) {
	c.getNanosTotal += time.Since(start).Nanoseconds()
	if c.recordStats {
		metrics.CacheRequestsTotal.WithLabelValues("lru", outcome).Inc()
		metrics.CacheGetDuration.WithLabelValues("lru").Observe(time.Since(start).Seconds())
		metrics.CacheSize.WithLabelValues("lru").Set(float64(c.ll.Len()))
	}
}

func (c *LRU) recordPut(start time.Time) {
	c.puts++
	c.putNanosTotal += time.Since(start).Nanoseconds()
	if c.recordStats {
		metrics.CachePutDuration.WithLabelValues("lru").Observe(time.Since(start).Seconds())
		metrics.CacheSize.WithLabelValues("lru").Set(float64(c.ll.Len()))
	}
}

func (c *LRU) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Stats{
		Requests:    c.requests,
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		CurrentSize: int64(c.ll.Len()),
	}
	if c.requests > 0 {
		s.HitRate = float64(c.hits) / float64(c.requests)
		s.AvgGetNanos = c.getNanosTotal / c.requests
	}
	if c.puts > 0 {
		s.AvgPutNanos = c.putNanosTotal / c.puts
	}
	return s
}

func (c *LRU) Close() error { return nil }
