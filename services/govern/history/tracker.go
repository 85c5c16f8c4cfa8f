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
	"sync"

	"github.com/AleutianAI/AleutianGovern/services/govern/datatypes"
)

// DefaultCapacity is the per-entity history bound.
const DefaultCapacity = 100

// Tracker maintains a bounded FIFO of recent match results per entity.
//
// # Description
//
// Insertion beyond capacity evicts the oldest entries first; ordering
// reflects insertion order, not confidence.
//
// # Thread Safety
//
// Concurrent Record calls for different entity ids do not block each
// other; calls for the same entity id serialize on a per-entity mutex,
// so readers never observe interleaved partial writes.
type Tracker struct {
	mu       sync.RWMutex
	rings    map[string]*entityRing
	capacity int
}

// entityRing is one entity's history with its own lock.
type entityRing struct {
	mu   sync.Mutex
	ring *ringBuffer[datatypes.MatchResult]
}

// NewTracker creates a tracker with the given per-entity capacity.
// capacity <= 0 uses DefaultCapacity.
func NewTracker(capacity int) *Tracker {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Tracker{
		rings:    make(map[string]*entityRing),
		capacity: capacity,
	}
}

// Record appends results to an entity's history.
func (t *Tracker) Record(entityID string, results []datatypes.MatchResult) {
	if len(results) == 0 {
		return
	}

	er := t.ringFor(entityID)
	er.mu.Lock()
	defer er.mu.Unlock()
	for _, r := range results {
		er.ring.push(r)
	}
}

// Recent returns an entity's history oldest-first. The result is a
// copy.
func (t *Tracker) Recent(entityID string) []datatypes.MatchResult {
	t.mu.RLock()
	er, ok := t.rings[entityID]
	t.mu.RUnlock()
	if !ok {
		return nil
	}

	er.mu.Lock()
	defer er.mu.Unlock()
	return er.ring.slice()
}

// Clear drops an entity's history.
func (t *Tracker) Clear(entityID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.rings, entityID)
}

// Len returns the number of stored results for an entity.
func (t *Tracker) Len(entityID string) int {
	t.mu.RLock()
	er, ok := t.rings[entityID]
	t.mu.RUnlock()
	if !ok {
		return 0
	}

	er.mu.Lock()
	defer er.mu.Unlock()
	return er.ring.len()
}

// ringFor returns the entity's ring, creating it if needed.
func (t *Tracker) ringFor(entityID string) *entityRing {
	t.mu.RLock()
	er, ok := t.rings[entityID]
	t.mu.RUnlock()
	if ok {
		return er
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if er, ok = t.rings[entityID]; ok {
		return er
	}
	er = &entityRing{ring: newRingBuffer[datatypes.MatchResult](t.capacity)}
	t.rings[entityID] = er
	return er
}
