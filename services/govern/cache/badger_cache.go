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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/AleutianGovern/services/govern/datatypes"
)

// BadgerCache is a persistent ResultCache backed by Badger.
//
// # Description
//
// Substitute for the in-memory MatchCache when match results should
// survive restarts. Entries carry their own CreatedAt/TTL so the lazy
// expiry contract is identical; Badger's native TTL additionally
// garbage-collects expired values.
//
// # Thread Safety
//
// Safe for concurrent use; Badger transactions provide atomic value
// replacement per key.
type BadgerCache struct {
	db *badger.DB

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// NewBadgerCache opens (or creates) a Badger-backed match cache at the
// given path.
func NewBadgerCache(path string) (*BadgerCache, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger cache at %s: %w", path, err)
	}
	return &BadgerCache{db: db}, nil
}

// Lookup returns the entry for a fingerprint, treating expired entries
// as absent.
func (c *BadgerCache) Lookup(fp datatypes.Fingerprint) (*Entry, bool) {
	var entry Entry
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(cacheKey(fp)))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			slog.Warn("badger cache lookup failed",
				slog.String("fingerprint", string(fp)),
				slog.String("error", err.Error()),
			)
		}
		c.misses.Add(1)
		matchCacheMisses.Inc()
		return nil, false
	}
	if entry.Expired(time.Now()) {
		c.Invalidate(fp)
		c.evictions.Add(1)
		c.misses.Add(1)
		matchCacheEvictions.Inc()
		matchCacheMisses.Inc()
		return nil, false
	}
	c.hits.Add(1)
	matchCacheHits.Inc()
	return &entry, true
}

// Store replaces the entry for a fingerprint.
func (c *BadgerCache) Store(fp datatypes.Fingerprint, entityID string, results []datatypes.MatchResult, ttl time.Duration) {
	entry := Entry{
		EntityID:  entityID,
		Results:   results,
		CreatedAt: time.Now(),
		TTL:       ttl,
	}
	payload, err := json.Marshal(&entry)
	if err != nil {
		slog.Error("badger cache encode failed",
			slog.String("fingerprint", string(fp)),
			slog.String("error", err.Error()),
		)
		return
	}

	err = c.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(cacheKey(fp)), payload)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		if err := txn.SetEntry(e); err != nil {
			return err
		}
		// Entity index key for InvalidateEntity.
		return txn.Set(entityKey(entityID, fp), nil)
	})
	if err != nil {
		slog.Error("badger cache store failed",
			slog.String("fingerprint", string(fp)),
			slog.String("error", err.Error()),
		)
	}
}

// Invalidate removes the entry for a fingerprint.
func (c *BadgerCache) Invalidate(fp datatypes.Fingerprint) {
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(cacheKey(fp)))
	})
	if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		slog.Warn("badger cache invalidate failed",
			slog.String("fingerprint", string(fp)),
			slog.String("error", err.Error()),
		)
	}
}

// InvalidateEntity removes every entry recorded for an entity.
func (c *BadgerCache) InvalidateEntity(entityID string) int {
	removed := 0
	prefix := []byte("entity/" + entityID + "/")

	err := c.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()

		var indexKeys [][]byte
		var fps []datatypes.Fingerprint
		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().KeyCopy(nil)
			indexKeys = append(indexKeys, key)
			fps = append(fps, datatypes.Fingerprint(key[len(prefix):]))
		}
		for i, key := range indexKeys {
			if err := txn.Delete(key); err != nil {
				return err
			}
			if err := txn.Delete([]byte(cacheKey(fps[i]))); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		slog.Warn("badger cache entity invalidate failed",
			slog.String("entity_id", entityID),
			slog.String("error", err.Error()),
		)
	}
	return removed
}

// Stats returns cache statistics. Entries reports live match keys.
func (c *BadgerCache) Stats() Stats {
	entries := 0
	_ = c.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte("match/")})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			entries++
		}
		return nil
	})
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Entries:   entries,
	}
}

// Close closes the underlying database.
func (c *BadgerCache) Close() error {
	return c.db.Close()
}

// entityKey builds the entity index key for a stored entry.
func entityKey(entityID string, fp datatypes.Fingerprint) []byte {
	return []byte("entity/" + entityID + "/" + string(fp))
}

var _ ResultCache = (*BadgerCache)(nil)
var _ ResultCache = (*MatchCache)(nil)
