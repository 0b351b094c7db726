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
	"fmt"
	"log/slog"

	"github.com/arcflow-systems/ruleforge/services/ruleengine/config"
)

// New dispatches on cfg.CacheType and returns the matching backend.
// CAFFEINE-like and ADAPTIVE both resolve to the ristretto-backed
// Adaptive implementation — ristretto's own admission policy already
// implements the W-TinyLFU scheme Caffeine is named for, so a second,
// separately-tuned backend would duplicate it under a different label.
func New(cfg *config.Config, logger *slog.Logger) (Cache, error) {
	switch cfg.CacheType {
	case config.CacheTypeInMemory:
		return NewLRU(cfg.CacheMaxSize, cfg.CacheTTL, cfg.CacheRecordStats), nil

	case config.CacheTypeCaffeineLike, config.CacheTypeAdaptive:
		return NewAdaptive(
			cfg.CacheMaxSize,
			cfg.CacheTTL,
			cfg.CacheLowThreshold,
			cfg.CacheHighThreshold,
			cfg.CacheTuningInterval,
			cfg.CacheRecordStats,
			logger,
		)

	case config.CacheTypeRemote:
		return NewRemote(cfg.RemoteCacheDir, cfg.CacheTTL, cfg.CacheRecordStats)

	case config.CacheTypeNoOp:
		return NoOp{}, nil

	default:
		return nil, fmt.Errorf("cache: unknown CACHE_TYPE %q", cfg.CacheType)
	}
}
