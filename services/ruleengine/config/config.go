// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the engine's environment knobs into one immutable
// Config, parsed once at process startup. Nothing downstream re-reads the
// environment on the hot path.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Cache backend selectors for CACHE_TYPE. CaffeineLike and Adaptive both
// select the ristretto-backed TinyLFU-admission backend: ristretto's
// admission policy is the W-TinyLFU scheme Caffeine is named for, so the
// two names map to one implementation.
const (
	CacheTypeInMemory     = "IN_MEMORY"
	CacheTypeCaffeineLike = "CAFFEINE-like"
	CacheTypeAdaptive     = "ADAPTIVE"
	CacheTypeRemote       = "REMOTE"
	CacheTypeNoOp         = "NO_OP"
)

const (
	defaultCacheMaxSize                     = 100_000
	defaultCacheTTL                         = 5 * time.Minute
	defaultCacheLowThreshold                = 0.50
	defaultCacheHighThreshold               = 0.90
	defaultCacheTuningInterval              = 60 * time.Second
	defaultModelWatchInterval               = 10 * time.Second
	defaultIntersectionCardinalityThreshold = 128
	defaultRemoteCacheDir                   = "./ruleforge-cache"
)

// Config is the engine's full runtime configuration, immutable once
// loaded.
type Config struct {
	CacheType           string
	CacheMaxSize        int64
	CacheTTL            time.Duration
	CacheRecordStats    bool
	CacheLowThreshold   float64
	CacheHighThreshold  float64
	CacheTuningInterval time.Duration
	RemoteCacheDir      string

	ModelWatchInterval time.Duration

	IntersectionCardinalityThreshold uint32

	// RulesPath is the rule-source file the Model Manager loads and
	// watches. It has no default — cmd/ruleengine treats an unset value
	// as fatal at startup, since there is nothing to compile a model from.
	RulesPath string
}

// Load reads the environment knobs, applying defaults for anything
// unset or unparsable. Load never returns an error for a missing
// variable — only a malformed CACHE_TYPE value is rejected, since every
// other knob has a safe numeric default.
func Load() (*Config, error) {
	cfg := &Config{
		CacheType:                        getEnv("CACHE_TYPE", CacheTypeInMemory),
		CacheMaxSize:                     getEnvInt64("CACHE_MAX_SIZE", defaultCacheMaxSize),
		CacheTTL:                         getEnvDuration("CACHE_TTL_SECONDS", "CACHE_TTL_MINUTES", defaultCacheTTL),
		CacheRecordStats:                 getEnvBool("CACHE_RECORD_STATS", true),
		CacheLowThreshold:                getEnvFloat("CACHE_LOW_THRESHOLD", defaultCacheLowThreshold),
		CacheHighThreshold:               getEnvFloat("CACHE_HIGH_THRESHOLD", defaultCacheHighThreshold),
		CacheTuningInterval:              getEnvSeconds("CACHE_TUNING_INTERVAL_SECONDS", defaultCacheTuningInterval),
		RemoteCacheDir:                   getEnv("CACHE_REMOTE_DIR", defaultRemoteCacheDir),
		ModelWatchInterval:               getEnvSeconds("MODEL_WATCH_INTERVAL_SECONDS", defaultModelWatchInterval),
		IntersectionCardinalityThreshold: uint32(getEnvInt64("INTERSECTION_CARDINALITY_THRESHOLD", defaultIntersectionCardinalityThreshold)),
		RulesPath:                        getEnv("RULES_PATH", ""),
	}

	switch cfg.CacheType {
	case CacheTypeInMemory, CacheTypeCaffeineLike, CacheTypeAdaptive, CacheTypeRemote, CacheTypeNoOp:
	default:
		return nil, fmt.Errorf("config: unknown CACHE_TYPE %q", cfg.CacheType)
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getEnvInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getEnvSeconds(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return time.Duration(n) * time.Second
}

// getEnvDuration supports both a *_SECONDS and a *_MINUTES variant of the
// same knob. Seconds takes precedence if both are set.
func getEnvDuration(secondsKey, minutesKey string, def time.Duration) time.Duration {
	if v := os.Getenv(secondsKey); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv(minutesKey); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.Duration(n) * time.Minute
		}
	}
	return def
}
