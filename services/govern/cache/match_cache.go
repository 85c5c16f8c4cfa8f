// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cache provides the match result cache and the semantic vector
// cache of the Govern service.
//
// Both caches are process-wide, injected objects owned by the
// orchestrator, not ambient singletons. Entries expire lazily: an entry
// older than its TTL is treated as absent on lookup and removed by the
// next cleanup sweep.
package cache

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianGovern/services/govern/datatypes"
)

// Entry is one cached match result set.
type Entry struct {
	// EntityID is the entity the results belong to, kept for
	// entity-scoped invalidation.
	EntityID string `json:"entity_id"`

	// Results is the immutable result set.
	Results []datatypes.MatchResult `json:"results"`

	// CreatedAt is the store time.
	CreatedAt time.Time `json:"created_at"`

	// TTL is the entry lifetime. An entry is usable only while
	// now - CreatedAt < TTL.
	TTL time.Duration `json:"ttl"`
}

// Expired reports whether the entry is past its TTL at the given time.
func (e *Entry) Expired(now time.Time) bool {
	return now.Sub(e.CreatedAt) >= e.TTL
}

// Stats are point-in-time cache statistics.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Entries   int   `json:"entries"`
}

// ResultCache is the interface the orchestrator depends on. MatchCache
// is the in-memory implementation; BadgerCache persists across
// restarts.
type ResultCache interface {
	// Lookup returns the entry for a fingerprint, treating expired
	// entries as absent.
	Lookup(fp datatypes.Fingerprint) (*Entry, bool)

	// Store replaces the entry for a fingerprint.
	Store(fp datatypes.Fingerprint, entityID string, results []datatypes.MatchResult, ttl time.Duration)

	// Invalidate removes the entry for a fingerprint.
	Invalidate(fp datatypes.Fingerprint)

	// InvalidateEntity removes every entry recorded for an entity.
	InvalidateEntity(entityID string) int

	// Stats returns cache statistics.
	Stats() Stats

	// Close releases resources and stops background work.
	Close() error
}

// MatchCache is the in-memory ResultCache.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Entry values are replaced
// wholesale under the write lock, so readers observe either the old or
// the new result set, never a partial write.
type MatchCache struct {
	mu       sync.RWMutex
	entries  map[datatypes.Fingerprint]*Entry
	byEntity map[string]map[datatypes.Fingerprint]struct{}

	hits      int64
	misses    int64
	evictions int64

	sweepEvery time.Duration
	stop       chan struct{}
	stopOnce   sync.Once
}

// MatchCacheConfig configures the in-memory cache.
type MatchCacheConfig struct {
	// SweepInterval is how often expired entries are physically
	// removed. Zero disables the background sweep; expiry stays lazy.
	SweepInterval time.Duration
}

// DefaultMatchCacheConfig returns production defaults.
func DefaultMatchCacheConfig() MatchCacheConfig {
	return MatchCacheConfig{SweepInterval: time.Minute}
}

// NewMatchCache creates an in-memory match cache.
//
// # Description
//
// When cfg.SweepInterval > 0 a janitor goroutine removes expired
// entries periodically. Call Close to stop it.
func NewMatchCache(cfg MatchCacheConfig) *MatchCache {
	c := &MatchCache{
		entries:    make(map[datatypes.Fingerprint]*Entry),
		byEntity:   make(map[string]map[datatypes.Fingerprint]struct{}),
		sweepEvery: cfg.SweepInterval,
		stop:       make(chan struct{}),
	}
	if c.sweepEvery > 0 {
		go c.janitor()
	}
	return c
}

// Lookup returns the entry for a fingerprint.
//
// # Description
//
// Expired entries are treated as absent and removed. The returned
// entry's result slice must not be mutated by callers.
func (c *MatchCache) Lookup(fp datatypes.Fingerprint) (*Entry, bool) {
	c.mu.RLock()
	entry, ok := c.entries[fp]
	c.mu.RUnlock()

	if !ok {
		c.recordMiss()
		return nil, false
	}
	if entry.Expired(time.Now()) {
		c.mu.Lock()
		// Re-check under the write lock; a concurrent Store may have
		// refreshed the entry.
		if cur, still := c.entries[fp]; still && cur.Expired(time.Now()) {
			c.removeLocked(fp, cur)
			c.evictions++
			matchCacheEvictions.Inc()
		}
		c.mu.Unlock()
		c.recordMiss()
		return nil, false
	}

	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
	matchCacheHits.Inc()
	return entry, true
}

// Store replaces the entry for a fingerprint.
func (c *MatchCache) Store(fp datatypes.Fingerprint, entityID string, results []datatypes.MatchResult, ttl time.Duration) {
	entry := &Entry{
		EntityID:  entityID,
		Results:   results,
		CreatedAt: time.Now(),
		TTL:       ttl,
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.entries[fp]; ok && old.EntityID != entityID {
		c.removeFromIndexLocked(fp, old.EntityID)
	}
	c.entries[fp] = entry
	fps, ok := c.byEntity[entityID]
	if !ok {
		fps = make(map[datatypes.Fingerprint]struct{})
		c.byEntity[entityID] = fps
	}
	fps[fp] = struct{}{}
}

// Invalidate removes the entry for a fingerprint.
func (c *MatchCache) Invalidate(fp datatypes.Fingerprint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.entries[fp]; ok {
		c.removeLocked(fp, entry)
	}
}

// InvalidateEntity removes every entry for an entity.
//
// # Outputs
//
//   - int: Number of entries removed.
func (c *MatchCache) InvalidateEntity(entityID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	fps, ok := c.byEntity[entityID]
	if !ok {
		return 0
	}
	n := 0
	for fp := range fps {
		if entry, found := c.entries[fp]; found {
			c.removeLocked(fp, entry)
			n++
		}
	}
	delete(c.byEntity, entityID)
	return n
}

// Stats returns cache statistics.
func (c *MatchCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Entries:   len(c.entries),
	}
}

// Close stops the janitor goroutine.
func (c *MatchCache) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })
	return nil
}

func (c *MatchCache) recordMiss() {
	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
	matchCacheMisses.Inc()
}

// removeLocked deletes an entry and its index record. Must hold the
// write lock.
func (c *MatchCache) removeLocked(fp datatypes.Fingerprint, entry *Entry) {
	delete(c.entries, fp)
	c.removeFromIndexLocked(fp, entry.EntityID)
}

func (c *MatchCache) removeFromIndexLocked(fp datatypes.Fingerprint, entityID string) {
	if fps, ok := c.byEntity[entityID]; ok {
		delete(fps, fp)
		if len(fps) == 0 {
			delete(c.byEntity, entityID)
		}
	}
}

// janitor periodically removes expired entries.
func (c *MatchCache) janitor() {
	ticker := time.NewTicker(c.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

// sweep removes all expired entries.
func (c *MatchCache) sweep() {
	now := time.Now()

	c.mu.Lock()
	removed := 0
	for fp, entry := range c.entries {
		if entry.Expired(now) {
			c.removeLocked(fp, entry)
			c.evictions++
			removed++
		}
	}
	remaining := len(c.entries)
	c.mu.Unlock()

	if removed > 0 {
		matchCacheEvictions.Add(float64(removed))
		slog.Debug("match cache sweep",
			slog.Int("removed", removed),
			slog.Int("remaining", remaining),
		)
	}
}

// cacheKey renders a fingerprint for logging.
func cacheKey(fp datatypes.Fingerprint) string {
	return fmt.Sprintf("match/%s", fp)
}
