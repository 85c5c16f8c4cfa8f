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
	"testing"
	"time"

	"github.com/AleutianAI/AleutianGovern/services/govern/datatypes"
)

func newTestCache(t *testing.T) *MatchCache {
	t.Helper()
	c := NewMatchCache(MatchCacheConfig{}) // no background sweep in tests
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func sampleResults(entityID string) []datatypes.MatchResult {
	return []datatypes.MatchResult{
		{EntityID: entityID, PatternID: "p-1", Confidence: 0.9},
		{EntityID: entityID, PatternID: "p-2", Confidence: 0.7},
	}
}

func TestMatchCacheStoreLookup(t *testing.T) {
	c := newTestCache(t)
	fp := datatypes.Fingerprint("aaaa111122223333")

	c.Store(fp, "rule-1", sampleResults("rule-1"), 5*time.Minute)

	entry, ok := c.Lookup(fp)
	if !ok {
		t.Fatal("expected cache hit")
	}
	if len(entry.Results) != 2 {
		t.Errorf("results = %d, want 2", len(entry.Results))
	}
	if entry.EntityID != "rule-1" {
		t.Errorf("entity id = %q, want rule-1", entry.EntityID)
	}
}

func TestMatchCacheZeroTTLNeverServed(t *testing.T) {
	c := newTestCache(t)
	fp := datatypes.Fingerprint("bbbb111122223333")

	c.Store(fp, "rule-1", sampleResults("rule-1"), 0)

	if _, ok := c.Lookup(fp); ok {
		t.Error("ttl=0 entry must never be served, even immediately")
	}
}

func TestMatchCacheLazyExpiry(t *testing.T) {
	c := newTestCache(t)
	fp := datatypes.Fingerprint("cccc111122223333")

	c.Store(fp, "rule-1", sampleResults("rule-1"), 15*time.Millisecond)

	if _, ok := c.Lookup(fp); !ok {
		t.Fatal("entry should be fresh immediately after store")
	}

	time.Sleep(30 * time.Millisecond)

	if _, ok := c.Lookup(fp); ok {
		t.Error("expired entry should be treated as absent")
	}

	stats := c.Stats()
	if stats.Evictions == 0 {
		t.Error("lazy lookup should have evicted the expired entry")
	}
	if stats.Entries != 0 {
		t.Errorf("entries = %d, want 0 after eviction", stats.Entries)
	}
}

func TestMatchCacheStoreRefreshesEntry(t *testing.T) {
	c := newTestCache(t)
	fp := datatypes.Fingerprint("dddd111122223333")

	c.Store(fp, "rule-1", sampleResults("rule-1")[:1], 5*time.Minute)
	c.Store(fp, "rule-1", sampleResults("rule-1"), 5*time.Minute)

	entry, ok := c.Lookup(fp)
	if !ok {
		t.Fatal("expected cache hit")
	}
	if len(entry.Results) != 2 {
		t.Errorf("store should replace the entry wholesale, got %d results", len(entry.Results))
	}
	if c.Stats().Entries != 1 {
		t.Errorf("entries = %d, want 1", c.Stats().Entries)
	}
}

func TestMatchCacheInvalidateEntity(t *testing.T) {
	c := newTestCache(t)

	c.Store("fp-1", "rule-1", sampleResults("rule-1"), 5*time.Minute)
	c.Store("fp-2", "rule-1", sampleResults("rule-1"), 5*time.Minute)
	c.Store("fp-3", "rule-2", sampleResults("rule-2"), 5*time.Minute)

	removed := c.InvalidateEntity("rule-1")
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
	if _, ok := c.Lookup("fp-1"); ok {
		t.Error("fp-1 should be gone")
	}
	if _, ok := c.Lookup("fp-3"); !ok {
		t.Error("rule-2 entry should survive rule-1 invalidation")
	}
}

func TestMatchCacheSweep(t *testing.T) {
	c := newTestCache(t)

	c.Store("fp-1", "rule-1", sampleResults("rule-1"), 10*time.Millisecond)
	c.Store("fp-2", "rule-2", sampleResults("rule-2"), 5*time.Minute)

	time.Sleep(25 * time.Millisecond)
	c.sweep()

	stats := c.Stats()
	if stats.Entries != 1 {
		t.Errorf("entries after sweep = %d, want 1", stats.Entries)
	}
}

func TestMatchCacheConcurrentAccess(t *testing.T) {
	c := newTestCache(t)
	done := make(chan struct{})

	for i := 0; i < 8; i++ {
		go func(n int) {
			defer func() { done <- struct{}{} }()
			fp := datatypes.Fingerprint(string(rune('a'+n)) + "fp")
			for j := 0; j < 200; j++ {
				c.Store(fp, "rule-1", sampleResults("rule-1"), time.Minute)
				c.Lookup(fp)
			}
		}(i)
	}
	for i := 0; i < 8; i++ {
		<-done
	}
}
