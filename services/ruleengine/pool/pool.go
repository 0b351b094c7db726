// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pool implements the object pools the evaluator's hot path
// reuses across events: the per-combination counter array, the
// touched-id set, and the per-thread intersection scratch bitmap. Built
// on sync.Pool, which already gives each goroutine a per-P local stack
// with a shared pool as the overflow tier.
package pool

import "sync"

// Stats reports the pool's usage counters.
type Stats struct {
	Acquires         int64
	Releases         int64
	NewAllocations   int64
	OverflowAcquires int64
	ReuseRate        float64
}

// Pool is a generic, instrumented wrapper around sync.Pool. newFn
// allocates a fresh T; reset restores a reused T to its zero-value shape
// before handing it back from Acquire.
type Pool[T any] struct {
	pool  sync.Pool
	reset func(T)

	mu               sync.Mutex
	acquires         int64
	releases         int64
	newAllocations   int64
	overflowAcquires int64
}

// New builds a Pool whose New function is newFn and whose Acquire always
// returns a T reset via reset.
func New[T any](newFn func() T, reset func(T)) *Pool[T] {
	p := &Pool[T]{reset: reset}
	p.pool.New = func() any {
		p.mu.Lock()
		p.newAllocations++
		// sync.Pool's New is only invoked when both the per-P local
		// store and the shared victim cache are empty, so every New
		// call is also an overflow acquire.
		p.overflowAcquires++
		p.mu.Unlock()
		return newFn()
	}
	return p
}

// Acquire returns a reset T, allocating a new one only when the pool is
// empty.
func (p *Pool[T]) Acquire() T {
	p.mu.Lock()
	p.acquires++
	p.mu.Unlock()

	v := p.pool.Get().(T)
	p.reset(v)
	return v
}

// Release resets v and returns it to the pool.
func (p *Pool[T]) Release(v T) {
	p.reset(v)
	p.mu.Lock()
	p.releases++
	p.mu.Unlock()
	p.pool.Put(v)
}

// Stats returns a snapshot of the pool's counters.
func (p *Pool[T]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	rate := 0.0
	if p.acquires > 0 {
		rate = 1 - float64(p.newAllocations)/float64(p.acquires)
	}
	return Stats{
		Acquires:         p.acquires,
		Releases:         p.releases,
		NewAllocations:   p.newAllocations,
		OverflowAcquires: p.overflowAcquires,
		ReuseRate:        rate,
	}
}
