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
	"log/slog"
	"sync"

	"github.com/AleutianAI/AleutianGovern/services/govern/datatypes"
	"github.com/AleutianAI/AleutianGovern/services/govern/keyer"
)

// EmbedFunc computes an embedding for an entity. Implemented by the
// matching capability client.
type EmbedFunc func(ctx context.Context, entity datatypes.Entity) (datatypes.SemanticVector, error)

// SemanticVectorCache memoizes embedding vectors per entity.
//
// # Description
//
// A cached vector is reused while the entity's content hash is
// unchanged; a content change triggers recomputation. When embedding
// fails the cache returns the documented zero-vector fallback and logs
// the failure instead of propagating the error, so downstream
// strategies proceed with a degraded semantic score rather than
// failing the request.
//
// # Thread Safety
//
// All methods are safe for concurrent use.
type SemanticVectorCache struct {
	mu         sync.RWMutex
	vectors    map[string]datatypes.SemanticVector
	dimensions int
}

// NewSemanticVectorCache creates a vector cache.
//
// # Inputs
//
//   - dimensions: Embedding dimensionality used for the zero-vector
//     fallback. Must match the deployment's embedding model.
func NewSemanticVectorCache(dimensions int) *SemanticVectorCache {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &SemanticVectorCache{
		vectors:    make(map[string]datatypes.SemanticVector),
		dimensions: dimensions,
	}
}

// Get returns the cached vector for an entity id, if any.
func (c *SemanticVectorCache) Get(entityID string) (datatypes.SemanticVector, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.vectors[entityID]
	return v, ok
}

// GetOrCompute returns the vector for an entity, computing it on a miss
// or when the cached vector's content hash is stale.
//
// # Failure Semantics
//
// If embed fails the zero-vector fallback is returned and the failure
// is logged and counted; the fallback is not cached, so the next call
// retries the embedding.
func (c *SemanticVectorCache) GetOrCompute(ctx context.Context, entity datatypes.Entity, embed EmbedFunc) datatypes.SemanticVector {
	contentHash := keyer.ContentHash(entity)

	c.mu.RLock()
	cached, ok := c.vectors[entity.ID]
	c.mu.RUnlock()

	if ok && cached.ContentHash == contentHash {
		vectorCacheHits.Inc()
		return cached
	}
	vectorCacheMisses.Inc()

	vec, err := embed(ctx, entity)
	if err != nil {
		embedFailures.Inc()
		slog.Warn("embedding failed, using zero-vector fallback",
			slog.String("entity_id", entity.ID),
			slog.String("error", err.Error()),
		)
		return c.zeroVector(contentHash)
	}
	vec.ContentHash = contentHash
	if vec.Dimensions == 0 {
		vec.Dimensions = len(vec.Values)
	}

	c.mu.Lock()
	c.vectors[entity.ID] = vec
	c.mu.Unlock()
	return vec
}

// Invalidate removes the cached vector for an entity.
func (c *SemanticVectorCache) Invalidate(entityID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.vectors, entityID)
}

// Len returns the number of cached vectors.
func (c *SemanticVectorCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.vectors)
}

// zeroVector is the documented embedding fallback.
func (c *SemanticVectorCache) zeroVector(contentHash string) datatypes.SemanticVector {
	return datatypes.SemanticVector{
		Values:      make([]float64, c.dimensions),
		Dimensions:  c.dimensions,
		ContentHash: contentHash,
	}
}
