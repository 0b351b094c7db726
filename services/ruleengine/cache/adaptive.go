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
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/arcflow-systems/ruleforge/internal/bitmap"
	"github.com/arcflow-systems/ruleforge/services/ruleengine/metrics"
)

// Adaptive is the size-adaptive, TinyLFU-admission backend, built
// directly on ristretto — both the "CAFFEINE-like" and "ADAPTIVE"
// CACHE_TYPE values select it, since ristretto's admission policy
// already implements the W-TinyLFU scheme Caffeine popularized.
type Adaptive struct {
	rc          *ristretto.Cache[string, *Entry]
	defaultTTL  time.Duration
	recordStats bool

	low, high float64
	minSize   int64
	maxSize   int64
	curMax    atomic.Int64

	stopOnce sync.Once
	stopCh   chan struct{}
	logger   *slog.Logger
}

// NewAdaptive builds a ristretto-backed cache with the given starting
// max size, tuning thresholds and interval, and starts the tuning loop
// as a background goroutine owned by this backend's lifecycle.
func NewAdaptive(maxSize int64, ttl time.Duration, low, high float64, tuningInterval time.Duration, recordStats bool, logger *slog.Logger) (*Adaptive, error) {
	if logger == nil {
		logger = slog.Default()
	}
	rc, err := ristretto.NewCache(&ristretto.Config[string, *Entry]{
		NumCounters: maxSize * 10,
		MaxCost:     maxSize,
		BufferItems: 64,
		Metrics:     true,
	})
	if err != nil {
		return nil, err
	}

	a := &Adaptive{
		rc:          rc,
		defaultTTL:  ttl,
		recordStats: recordStats,
		low:         low,
		high:        high,
		minSize:     maxSize / 10,
		maxSize:     maxSize * 10,
		stopCh:      make(chan struct{}),
		logger:      logger,
	}
	if a.minSize < 1 {
		a.minSize = 1
	}
	a.curMax.Store(maxSize)

	if tuningInterval > 0 {
		go a.tuningLoop(tuningInterval)
	}
	return a, nil
}

func (a *Adaptive) Get(_ context.Context, key string) (*Entry, bool, error) {
	start := time.Now()
	v, ok := a.rc.Get(key)
	if a.recordStats {
		outcome := "miss"
		if ok {
			outcome = "hit"
		}
		metrics.CacheRequestsTotal.WithLabelValues("adaptive", outcome).Inc()
		metrics.CacheGetDuration.WithLabelValues("adaptive").Observe(time.Since(start).Seconds())
	}
	if !ok {
		return nil, false, nil
	}
	v.HitCount++
	return cloneEntry(v), true, nil
}

func (a *Adaptive) Put(_ context.Context, key string, bm *bitmap.Set, ttl time.Duration) error {
	start := time.Now()
	if ttl <= 0 {
		ttl = a.defaultTTL
	}
	entry := &Entry{Bitmap: bm.Clone(), CreatedAt: time.Now()}
	a.rc.SetWithTTL(key, entry, 1, ttl)
	a.rc.Wait()
	if a.recordStats {
		metrics.CachePutDuration.WithLabelValues("adaptive").Observe(time.Since(start).Seconds())
		metrics.CacheSize.WithLabelValues("adaptive").Set(float64(a.rc.Metrics.CostAdded() - a.rc.Metrics.CostEvicted()))
	}
	return nil
}

func (a *Adaptive) Stats() Stats {
	m := a.rc.Metrics
	hits := int64(m.Hits())
	misses := int64(m.Misses())
	requests := hits + misses
	s := Stats{
		Requests:    requests,
		Hits:        hits,
		Misses:      misses,
		Evictions:   int64(m.KeysEvicted()),
		CurrentSize: int64(m.CostAdded() - m.CostEvicted()),
		HitRate:     m.Ratio(),
	}
	return s
}

func (a *Adaptive) Close() error {
	a.stopOnce.Do(func() { close(a.stopCh) })
	a.rc.Close()
	return nil
}

// tuningLoop periodically compares the hit rate to {low, high} and
// grows/shrinks the cost bound accordingly.
func (a *Adaptive) tuningLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-a.stopCh:
			return
		case <-ticker.C:
			a.tune()
		}
	}
}

func (a *Adaptive) tune() {
	m := a.rc.Metrics
	hitRate := m.Ratio()
	cur := a.curMax.Load()
	used := int64(m.CostAdded() - m.CostEvicted())

	switch {
	case hitRate < a.low && used >= cur:
		// Growth requires the cache to be full at its current bound: a
		// low hit rate on a half-empty cache is a working-set problem
		// more capacity cannot fix.
		next := int64(float64(cur) * 1.5)
		if next > a.maxSize {
			next = a.maxSize
		}
		if next != cur {
			a.rc.UpdateMaxCost(next)
			a.curMax.Store(next)
			a.logger.Info("adaptive cache grown", "hit_rate", hitRate, "old_max", cur, "new_max", next)
		}
	case hitRate > a.high:
		next := int64(float64(cur) / 1.5)
		if next < a.minSize {
			next = a.minSize
		}
		if next != cur {
			a.rc.UpdateMaxCost(next)
			a.curMax.Store(next)
			a.logger.Info("adaptive cache shrunk", "hit_rate", hitRate, "old_max", cur, "new_max", next)
		}
	}
}
