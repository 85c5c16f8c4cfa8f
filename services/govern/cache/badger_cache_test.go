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

func newTestBadgerCache(t *testing.T) *BadgerCache {
	t.Helper()
	c, err := NewBadgerCache(t.TempDir())
	if err != nil {
		t.Fatalf("opening badger cache: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestBadgerCacheStoreAndLookup(t *testing.T) {
	c := newTestBadgerCache(t)
	results := []datatypes.MatchResult{{EntityID: "rule-1", PatternID: "p-1", Confidence: 0.8}}

	c.Store("fp-1", "rule-1", results, time.Minute)

	entry, ok := c.Lookup("fp-1")
	if !ok {
		t.Fatal("expected hit after store")
	}
	if entry.EntityID != "rule-1" || len(entry.Results) != 1 {
		t.Errorf("entry = %+v", entry)
	}
	if entry.Results[0].Confidence != 0.8 {
		t.Errorf("confidence = %v, want 0.8", entry.Results[0].Confidence)
	}
}

func TestBadgerCacheMiss(t *testing.T) {
	c := newTestBadgerCache(t)
	if _, ok := c.Lookup("fp-unknown"); ok {
		t.Fatal("expected miss for unknown fingerprint")
	}
	stats := c.Stats()
	if stats.Misses != 1 {
		t.Errorf("misses = %d, want 1", stats.Misses)
	}
}

func TestBadgerCacheExpiry(t *testing.T) {
	c := newTestBadgerCache(t)
	c.Store("fp-1", "rule-1", []datatypes.MatchResult{{PatternID: "p-1"}}, 10*time.Millisecond)

	time.Sleep(25 * time.Millisecond)

	if _, ok := c.Lookup("fp-1"); ok {
		t.Fatal("expired entry must not be served")
	}
}

func TestBadgerCacheInvalidateEntity(t *testing.T) {
	c := newTestBadgerCache(t)
	c.Store("fp-1", "rule-1", []datatypes.MatchResult{{PatternID: "p-1"}}, time.Minute)
	c.Store("fp-2", "rule-1", []datatypes.MatchResult{{PatternID: "p-2"}}, time.Minute)
	c.Store("fp-3", "rule-2", []datatypes.MatchResult{{PatternID: "p-3"}}, time.Minute)

	if removed := c.InvalidateEntity("rule-1"); removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
	if _, ok := c.Lookup("fp-1"); ok {
		t.Error("fp-1 should be gone")
	}
	if _, ok := c.Lookup("fp-3"); !ok {
		t.Error("other entity's entry must survive")
	}
}
