// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// cachedump inspects the Result Cache's remote BadgerDB backend.
//
// The remote cache backend (services/ruleengine/cache.Remote) persists
// eligibility bitmaps, keyed by event fingerprint, in BadgerDB. This tool
// opens the database read-only and prints a human-readable summary: the
// fingerprint key, TTL remaining, and the eligible-combination count and
// raw size of each entry.
//
// Usage:
//
//	cachedump [--path /path/to/cache/dir]
//
// If --path is not given, reads CACHE_REMOTE_DIR from the environment,
// falling back to ./ruleforge-cache.
//
// Exit codes:
//
//	0 — success (including "empty cache", which prints a message and exits 0)
//	1 — error opening or reading the database
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"

	"github.com/arcflow-systems/ruleforge/internal/bitmap"
)

// cacheKeyPrefix must match cache/remote.go's remoteKeyPrefix exactly.
const cacheKeyPrefix = "ruleforge/eligibility/v1/"

func main() {
	pathFlag := flag.String("path", "", "Path to the eligibility cache BadgerDB directory (overrides CACHE_REMOTE_DIR env var)")
	flag.Parse()

	dbPath := *pathFlag
	if dbPath == "" {
		dbPath = os.Getenv("CACHE_REMOTE_DIR")
	}
	if dbPath == "" {
		dbPath = "./ruleforge-cache"
	}

	fmt.Printf("Eligibility cache path: %s\n", dbPath)

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("Cache directory does not exist. The engine has not written any eligibility entries yet.")
		os.Exit(0)
	}

	opts := dgbadger.DefaultOptions(dbPath).WithLogger(nil).WithReadOnly(true)
	db, err := dgbadger.Open(opts)
	if err != nil {
		fatalf("open BadgerDB at %s: %v", dbPath, err)
	}
	defer func() { _ = db.Close() }()

	type entry struct {
		key         string
		fingerprint string
		expiresAt   time.Time
		hasExpiry   bool
		cardinality int
		rawSize     int
		decodeErr   error
	}

	var entries []entry

	err = db.View(func(txn *dgbadger.Txn) error {
		iterOpts := dgbadger.DefaultIteratorOptions
		iterOpts.PrefetchValues = true
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		prefix := []byte(cacheKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := string(item.Key())
			fp := strings.TrimPrefix(key, cacheKeyPrefix)

			e := entry{key: key, fingerprint: fp}
			if expiresAt := item.ExpiresAt(); expiresAt > 0 {
				e.hasExpiry = true
				e.expiresAt = time.Unix(int64(expiresAt), 0)
			}

			raw, err := item.ValueCopy(nil)
			if err != nil {
				e.decodeErr = fmt.Errorf("copy value: %w", err)
				entries = append(entries, e)
				continue
			}
			e.rawSize = len(raw)

			bm, err := bitmap.FromBytes(raw)
			if err != nil {
				e.decodeErr = fmt.Errorf("decode bitmap: %w", err)
			} else {
				e.cardinality = bm.Cardinality()
			}

			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		fatalf("read BadgerDB: %v", err)
	}

	if len(entries) == 0 {
		fmt.Println("\nNo eligibility cache entries found.")
		os.Exit(0)
	}

	fmt.Printf("\nFound %d cache entr%s:\n", len(entries), plural(len(entries), "y", "ies"))
	fmt.Println(strings.Repeat("─", 80))

	for i, e := range entries {
		fmt.Printf("\n[%d] Fingerprint: %s\n", i+1, e.fingerprint)

		if e.hasExpiry {
			remaining := time.Until(e.expiresAt)
			if remaining < 0 {
				fmt.Printf("    TTL:         EXPIRED (%s ago)\n", (-remaining).Round(time.Second))
			} else {
				fmt.Printf("    TTL:         %s remaining (expires %s)\n",
					remaining.Round(time.Second),
					e.expiresAt.Format("2006-01-02 15:04:05 MST"),
				)
			}
		} else {
			fmt.Printf("    TTL:         no expiry set\n")
		}

		fmt.Printf("    Raw size:    %s\n", formatBytes(e.rawSize))

		if e.decodeErr != nil {
			fmt.Printf("    DECODE ERROR: %v\n", e.decodeErr)
			continue
		}
		fmt.Printf("    Eligible combinations: %d\n", e.cardinality)
	}

	fmt.Printf("\n%s\n", strings.Repeat("─", 80))
	fmt.Printf("Summary: %d entr%s, cache path: %s\n",
		len(entries), plural(len(entries), "y", "ies"), dbPath)
}

func formatBytes(n int) string {
	switch {
	case n >= 1024*1024:
		return fmt.Sprintf("%.1f MB (%d bytes)", float64(n)/1024/1024, n)
	case n >= 1024:
		return fmt.Sprintf("%.1f KB (%d bytes)", float64(n)/1024, n)
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}

func plural(n int, singular, pluralSuffix string) string {
	if n == 1 {
		return singular
	}
	return pluralSuffix
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "cachedump: "+format+"\n", args...)
	os.Exit(1)
}
