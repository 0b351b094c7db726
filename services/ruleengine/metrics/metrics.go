// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package metrics declares the prometheus collectors shared by the
// compiler, cache, and evaluator. Everything registers against the
// default registerer via promauto, so a plain promhttp handler serves
// the lot.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CompileDuration records wall-clock time per successful Compile call.
	CompileDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ruleforge",
		Subsystem: "compiler",
		Name:      "compile_duration_seconds",
		Help:      "Wall-clock duration of a successful rule model compile",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})

	// CompileCombinations records the unique combination count produced by
	// each compile, for tracking model growth over time.
	CompileCombinations = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ruleforge",
		Subsystem: "compiler",
		Name:      "unique_combinations",
		Help:      "Number of unique physical combinations in the currently published model",
	})

	// CompileFailuresTotal counts failed compile attempts by stage.
	CompileFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ruleforge",
		Subsystem: "compiler",
		Name:      "failures_total",
		Help:      "Total failed compile attempts",
	}, []string{"stage"})

	// CacheRequestsTotal counts cache Get calls by backend and outcome
	// (hit, miss).
	CacheRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ruleforge",
		Subsystem: "cache",
		Name:      "requests_total",
		Help:      "Total cache get requests by backend and outcome",
	}, []string{"backend", "outcome"})

	// CacheEvictionsTotal counts entries evicted by backend.
	CacheEvictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ruleforge",
		Subsystem: "cache",
		Name:      "evictions_total",
		Help:      "Total cache entries evicted by backend",
	}, []string{"backend"})

	// CacheSize tracks the current entry count by backend.
	CacheSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "ruleforge",
		Subsystem: "cache",
		Name:      "current_size",
		Help:      "Current cache entry count by backend",
	}, []string{"backend"})

	// CacheGetDuration and CachePutDuration measure per-operation latency
	// by backend.
	CacheGetDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ruleforge",
		Subsystem: "cache",
		Name:      "get_duration_seconds",
		Help:      "Cache get latency by backend",
		Buckets:   prometheus.ExponentialBuckets(0.000001, 4, 10),
	}, []string{"backend"})

	CachePutDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ruleforge",
		Subsystem: "cache",
		Name:      "put_duration_seconds",
		Help:      "Cache put latency by backend",
		Buckets:   prometheus.ExponentialBuckets(0.000001, 4, 10),
	}, []string{"backend"})

	// EvalDuration measures one full rule evaluation, end to end.
	EvalDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ruleforge",
		Subsystem: "eval",
		Name:      "evaluation_duration_seconds",
		Help:      "End-to-end rule evaluation duration per event",
		Buckets:   prometheus.ExponentialBuckets(0.000001, 4, 12),
	})

	// EvalMatchesTotal counts how many rules matched per evaluation,
	// bucketed, to see the typical fan-out.
	EvalMatchesTotal = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ruleforge",
		Subsystem: "eval",
		Name:      "matched_rules",
		Help:      "Number of rules matched per evaluated event",
		Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100},
	})

	// EvalErrorsTotal counts evaluations that failed with an
	// EvaluationError, by kind.
	EvalErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ruleforge",
		Subsystem: "eval",
		Name:      "errors_total",
		Help:      "Total evaluations that failed, by error kind",
	}, []string{"kind"})

	// ModelSwapsTotal counts successful/failed Model Manager hot-swaps.
	ModelSwapsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ruleforge",
		Subsystem: "manager",
		Name:      "swaps_total",
		Help:      "Total model hot-swap attempts by outcome",
	}, []string{"outcome"})
)
