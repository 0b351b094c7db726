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
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/arcflow-systems/ruleforge/internal/bitmap"
	"github.com/arcflow-systems/ruleforge/services/ruleengine/engerr"
	"github.com/arcflow-systems/ruleforge/services/ruleengine/metrics"
)

// remoteKeyPrefix namespaces this engine's entries within a BadgerDB
// instance that might, in principle, be shared with other storage uses.
// Versioned so a future on-disk format change doesn't collide with old
// entries.
const remoteKeyPrefix = "ruleforge/eligibility/v1/"

// Remote implements the same contract over serialized bitmaps in an
// embedded BadgerDB instance. BadgerDB's native TTL does the expiry
// work and keys are namespaced and versioned. If Open fails, NewRemote
// returns the error; nothing falls back to NoOp.
type Remote struct {
	db          *badger.DB
	defaultTTL  time.Duration
	recordStats bool

	requests, hits, misses, evictions atomic.Int64
	getNanosTotal, putNanosTotal      atomic.Int64
}

// NewRemote opens (or creates) a BadgerDB instance rooted at dir.
func NewRemote(dir string, ttl time.Duration, recordStats bool) (*Remote, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, &engerr.CacheError{Kind: engerr.BackendUnavailable, Err: fmt.Errorf("open badger at %s: %w", dir, err)}
	}
	return &Remote{db: db, defaultTTL: ttl, recordStats: recordStats}, nil
}

func (r *Remote) Get(_ context.Context, key string) (*Entry, bool, error) {
	start := time.Now()
	r.requests.Add(1)

	var raw []byte
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(remoteKey(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return errCacheMiss
		}
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})

	if errors.Is(err, errCacheMiss) {
		r.misses.Add(1)
		r.recordGet(start, "miss")
		return nil, false, nil
	}
	if err != nil {
		r.recordGet(start, "miss")
		return nil, false, &engerr.CacheError{Kind: engerr.BackendUnavailable, Err: err}
	}

	bm, err := bitmap.FromBytes(raw)
	if err != nil {
		return nil, false, &engerr.CacheError{Kind: engerr.SerializationFailure, Err: err}
	}

	r.hits.Add(1)
	r.recordGet(start, "hit")
	return &Entry{Bitmap: bm, CreatedAt: time.Now()}, true, nil
}

func (r *Remote) Put(_ context.Context, key string, bm *bitmap.Set, ttl time.Duration) error {
	start := time.Now()
	if ttl <= 0 {
		ttl = r.defaultTTL
	}

	err := r.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(remoteKey(key), bm.Bytes())
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		return &engerr.CacheError{Kind: engerr.BackendUnavailable, Err: err}
	}
	r.recordPut(start)
	return nil
}

func (r *Remote) recordGet(start time.Time, outcome string) {
	r.getNanosTotal.Add(time.Since(start).Nanoseconds())
	if r.recordStats {
		metrics.CacheRequestsTotal.WithLabelValues("remote", outcome).Inc()
		metrics.CacheGetDuration.WithLabelValues("remote").Observe(time.Since(start).Seconds())
	}
}

func (r *Remote) recordPut(start time.Time) {
	r.putNanosTotal.Add(time.Since(start).Nanoseconds())
	if r.recordStats {
		metrics.CachePutDuration.WithLabelValues("remote").Observe(time.Since(start).Seconds())
	}
}

func (r *Remote) Stats() Stats {
	requests := r.requests.Load()
	hits := r.hits.Load()
	s := Stats{
		Requests:  requests,
		Hits:      hits,
		Misses:    r.misses.Load(),
		Evictions: r.evictions.Load(),
	}
	if requests > 0 {
		s.HitRate = float64(hits) / float64(requests)
		s.AvgGetNanos = r.getNanosTotal.Load() / requests
	}
	lsm, vlog := r.db.Size()
	s.CurrentSize = lsm + vlog
	return s
}

func (r *Remote) Close() error {
	return r.db.Close()
}

func remoteKey(key string) []byte {
	return []byte(remoteKeyPrefix + key)
}

// errCacheMiss distinguishes "key absent" from a genuine storage failure
// inside a View transaction.
var errCacheMiss = errors.New("cache miss")
