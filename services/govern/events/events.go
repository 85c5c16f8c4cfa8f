// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package events is the structured observability channel of the Govern
// service. Instead of fire-and-forget logging, the orchestration layer
// emits typed events that the embedding application can subscribe to.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type identifies an event kind.
type Type string

const (
	// TypeCacheHit fires when a match is served from the cache.
	TypeCacheHit Type = "cache_hit"

	// TypeCacheMiss fires on a cache miss or bypass.
	TypeCacheMiss Type = "cache_miss"

	// TypeStrategyFailed fires when one strategy fails or times out.
	TypeStrategyFailed Type = "strategy_failed"

	// TypeEnrichmentFallback fires when remote enrichment failed (or
	// returned partial fields) and local heuristics were used.
	TypeEnrichmentFallback Type = "enrichment_fallback"

	// TypeMatchCompleted fires when an orchestrated match finishes.
	TypeMatchCompleted Type = "match_completed"
)

// Event is one observability record.
type Event struct {
	// ID uniquely identifies the event.
	ID string `json:"id"`

	// Type is the event kind.
	Type Type `json:"type"`

	// Timestamp is the emission time.
	Timestamp time.Time `json:"timestamp"`

	// EntityID is the governance rule involved, if any.
	EntityID string `json:"entity_id,omitempty"`

	// Fingerprint is the request identity involved, if any.
	Fingerprint string `json:"fingerprint,omitempty"`

	// Strategy is the strategy involved (strategy_failed only).
	Strategy string `json:"strategy,omitempty"`

	// Error is the failure message, if any.
	Error string `json:"error,omitempty"`

	// Attrs carries additional string attributes.
	Attrs map[string]string `json:"attrs,omitempty"`
}

// Handler processes events.
type Handler func(event Event)

// Emitter broadcasts events to subscribers.
//
// # Thread Safety
//
// Safe for concurrent use. Handlers run synchronously on the emitting
// goroutine and must not block.
type Emitter struct {
	mu            sync.RWMutex
	subscriptions map[string]subscription
}

type subscription struct {
	handler Handler
	types   map[Type]bool // nil = all types
}

// NewEmitter creates an event emitter with no subscribers.
func NewEmitter() *Emitter {
	return &Emitter{subscriptions: make(map[string]subscription)}
}

// Subscribe registers a handler for the given event types (none = all).
//
// # Outputs
//
//   - string: Subscription ID for Unsubscribe.
func (e *Emitter) Subscribe(handler Handler, types ...Type) string {
	var filter map[Type]bool
	if len(types) > 0 {
		filter = make(map[Type]bool, len(types))
		for _, t := range types {
			filter[t] = true
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	id := uuid.NewString()
	e.subscriptions[id] = subscription{handler: handler, types: filter}
	return id
}

// Unsubscribe removes a subscription.
func (e *Emitter) Unsubscribe(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.subscriptions[id]; !ok {
		return false
	}
	delete(e.subscriptions, id)
	return true
}

// Emit broadcasts an event to matching subscribers. The event's ID and
// Timestamp are filled in if unset.
func (e *Emitter) Emit(event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	e.mu.RLock()
	subs := make([]subscription, 0, len(e.subscriptions))
	for _, sub := range e.subscriptions {
		subs = append(subs, sub)
	}
	e.mu.RUnlock()

	for _, sub := range subs {
		if sub.types == nil || sub.types[event.Type] {
			sub.handler(event)
		}
	}
}
