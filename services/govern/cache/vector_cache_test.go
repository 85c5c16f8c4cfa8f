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
	"sync/atomic"
	"testing"

	"github.com/AleutianAI/AleutianGovern/services/govern/datatypes"
)

func TestVectorCacheComputesOnce(t *testing.T) {
	c := NewSemanticVectorCache(4)
	entity := datatypes.Entity{ID: "rule-1", Definition: "deny all"}

	var calls atomic.Int32
	embed := func(ctx context.Context, e datatypes.Entity) (datatypes.SemanticVector, error) {
		calls.Add(1)
		return datatypes.SemanticVector{Values: []float64{1, 2, 3, 4}}, nil
	}

	v1 := c.GetOrCompute(context.Background(), entity, embed)
	v2 := c.GetOrCompute(context.Background(), entity, embed)

	if calls.Load() != 1 {
		t.Errorf("embed calls = %d, want 1", calls.Load())
	}
	if v1.ContentHash != v2.ContentHash {
		t.Error("cached vector should share content hash")
	}
	if v1.Dimensions != 4 {
		t.Errorf("dimensions = %d, want 4", v1.Dimensions)
	}
}

func TestVectorCacheRecomputesOnContentChange(t *testing.T) {
	c := NewSemanticVectorCache(4)

	var calls atomic.Int32
	embed := func(ctx context.Context, e datatypes.Entity) (datatypes.SemanticVector, error) {
		calls.Add(1)
		return datatypes.SemanticVector{Values: []float64{float64(calls.Load()), 0, 0, 0}}, nil
	}

	entity := datatypes.Entity{ID: "rule-1", Definition: "deny all"}
	c.GetOrCompute(context.Background(), entity, embed)

	entity.Definition = "allow all"
	v := c.GetOrCompute(context.Background(), entity, embed)

	if calls.Load() != 2 {
		t.Errorf("embed calls = %d, want 2 after content change", calls.Load())
	}
	if v.Values[0] != 2 {
		t.Error("stale vector served after content change")
	}
}

func TestVectorCacheZeroVectorFallback(t *testing.T) {
	c := NewSemanticVectorCache(8)
	entity := datatypes.Entity{ID: "rule-1", Definition: "deny all"}

	var calls atomic.Int32
	failing := func(ctx context.Context, e datatypes.Entity) (datatypes.SemanticVector, error) {
		calls.Add(1)
		return datatypes.SemanticVector{}, errors.New("embedding service down")
	}

	v := c.GetOrCompute(context.Background(), entity, failing)
	if !v.IsZero() {
		t.Error("failed embed should return the zero-vector fallback")
	}
	if v.Dimensions != 8 {
		t.Errorf("fallback dimensions = %d, want 8", v.Dimensions)
	}

	// Fallback must not be cached; the next call retries.
	c.GetOrCompute(context.Background(), entity, failing)
	if calls.Load() != 2 {
		t.Errorf("embed calls = %d, want 2 (fallback not cached)", calls.Load())
	}
	if c.Len() != 0 {
		t.Errorf("cache len = %d, want 0", c.Len())
	}
}

func TestVectorCacheInvalidate(t *testing.T) {
	c := NewSemanticVectorCache(4)
	entity := datatypes.Entity{ID: "rule-1", Definition: "deny all"}

	embed := func(ctx context.Context, e datatypes.Entity) (datatypes.SemanticVector, error) {
		return datatypes.SemanticVector{Values: []float64{1, 1, 1, 1}}, nil
	}

	c.GetOrCompute(context.Background(), entity, embed)
	c.Invalidate("rule-1")

	if _, ok := c.Get("rule-1"); ok {
		t.Error("vector should be gone after invalidate")
	}
}
