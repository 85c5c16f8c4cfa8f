// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package history

import (
	"fmt"
	"sync"
	"testing"

	"github.com/AleutianAI/AleutianGovern/services/govern/datatypes"
)

func result(patternID string) datatypes.MatchResult {
	return datatypes.MatchResult{EntityID: "rule-1", PatternID: patternID, Confidence: 0.8}
}

func TestTrackerRecordAndRecent(t *testing.T) {
	tr := NewTracker(10)

	tr.Record("rule-1", []datatypes.MatchResult{result("p-1"), result("p-2")})

	recent := tr.Recent("rule-1")
	if len(recent) != 2 {
		t.Fatalf("recent = %d results, want 2", len(recent))
	}
	if recent[0].PatternID != "p-1" || recent[1].PatternID != "p-2" {
		t.Error("ordering should reflect insertion order")
	}
}

func TestTrackerCapacityBound(t *testing.T) {
	tr := NewTracker(100)

	for i := 0; i < 150; i++ {
		tr.Record("rule-1", []datatypes.MatchResult{result(fmt.Sprintf("p-%03d", i))})
	}

	recent := tr.Recent("rule-1")
	if len(recent) != 100 {
		t.Fatalf("recent = %d results, want exactly 100", len(recent))
	}
	// Oldest 50 evicted: first survivor is p-050, newest is p-149.
	if recent[0].PatternID != "p-050" {
		t.Errorf("oldest survivor = %s, want p-050", recent[0].PatternID)
	}
	if recent[99].PatternID != "p-149" {
		t.Errorf("newest = %s, want p-149", recent[99].PatternID)
	}
}

func TestTrackerUnknownEntity(t *testing.T) {
	tr := NewTracker(10)
	if got := tr.Recent("nope"); got != nil {
		t.Errorf("unknown entity should return nil, got %v", got)
	}
	if tr.Len("nope") != 0 {
		t.Error("unknown entity length should be 0")
	}
}

func TestTrackerClear(t *testing.T) {
	tr := NewTracker(10)
	tr.Record("rule-1", []datatypes.MatchResult{result("p-1")})
	tr.Clear("rule-1")
	if tr.Len("rule-1") != 0 {
		t.Error("history should be empty after clear")
	}
}

func TestTrackerConcurrentEntities(t *testing.T) {
	tr := NewTracker(50)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			entityID := fmt.Sprintf("rule-%d", n%4)
			for j := 0; j < 100; j++ {
				tr.Record(entityID, []datatypes.MatchResult{result(fmt.Sprintf("p-%d-%d", n, j))})
				tr.Recent(entityID)
			}
		}(i)
	}
	wg.Wait()

	for n := 0; n < 4; n++ {
		entityID := fmt.Sprintf("rule-%d", n)
		if got := tr.Len(entityID); got != 50 {
			t.Errorf("entity %s len = %d, want capacity 50", entityID, got)
		}
	}
}

func TestRingBufferWrap(t *testing.T) {
	r := newRingBuffer[int](3)
	for i := 1; i <= 5; i++ {
		r.push(i)
	}
	got := r.slice()
	want := []int{3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("slice len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("slice[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}
