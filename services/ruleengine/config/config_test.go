// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("CACHE_TYPE", "")
	t.Setenv("CACHE_MAX_SIZE", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.CacheType != CacheTypeInMemory {
		t.Fatalf("expected default cache type IN_MEMORY, got %s", cfg.CacheType)
	}
	if cfg.CacheMaxSize != defaultCacheMaxSize {
		t.Fatalf("expected default cache max size, got %d", cfg.CacheMaxSize)
	}
	if cfg.IntersectionCardinalityThreshold != defaultIntersectionCardinalityThreshold {
		t.Fatalf("expected default intersection threshold 128, got %d", cfg.IntersectionCardinalityThreshold)
	}
}

func TestLoadRejectsUnknownCacheType(t *testing.T) {
	t.Setenv("CACHE_TYPE", "BOGUS")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for unknown CACHE_TYPE")
	}
}

func TestLoadTTLSecondsTakesPrecedenceOverMinutes(t *testing.T) {
	t.Setenv("CACHE_TTL_SECONDS", "30")
	t.Setenv("CACHE_TTL_MINUTES", "10")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.CacheTTL != 30*time.Second {
		t.Fatalf("expected 30s TTL from the seconds variant, got %v", cfg.CacheTTL)
	}
}

func TestLoadMinutesFallback(t *testing.T) {
	t.Setenv("CACHE_TTL_SECONDS", "")
	t.Setenv("CACHE_TTL_MINUTES", "2")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.CacheTTL != 2*time.Minute {
		t.Fatalf("expected 2m TTL from the minutes variant, got %v", cfg.CacheTTL)
	}
}
