// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package govern

import (
	"github.com/AleutianAI/AleutianGovern/services/govern/cache"
	"github.com/AleutianAI/AleutianGovern/services/govern/datatypes"
)

// MatchRequest is the wire payload of POST /v1/govern/match.
type MatchRequest struct {
	// Entity is the governance rule to match.
	Entity datatypes.Entity `json:"entity" binding:"required"`

	// LibraryID selects the pattern library to match against.
	LibraryID string `json:"library_id" binding:"required"`

	// Context carries business metadata for contextual matching and
	// enrichment.
	Context datatypes.BusinessContext `json:"context"`

	// Configuration tunes strategies, weights and caching. Omitted
	// means service defaults.
	Configuration *datatypes.MatchConfiguration `json:"configuration,omitempty"`
}

// InvalidateRequest is the wire payload of POST /v1/govern/invalidate.
// Exactly one of Fingerprint or EntityID must be set.
type InvalidateRequest struct {
	// Fingerprint drops a single cache entry.
	Fingerprint string `json:"fingerprint,omitempty"`

	// EntityID drops every cache entry, the cached vector and the
	// match history of one entity.
	EntityID string `json:"entity_id,omitempty"`
}

// StatsResponse is the wire payload of GET /v1/govern/stats.
type StatsResponse struct {
	// Cache reports match cache counters.
	Cache cache.Stats `json:"cache"`

	// VectorCacheEntries is the number of memoized embeddings.
	VectorCacheEntries int `json:"vector_cache_entries"`

	// UptimeSeconds is seconds since service start.
	UptimeSeconds int64 `json:"uptime_seconds"`
}

// ErrorResponse is the JSON error envelope of every non-2xx response.
type ErrorResponse struct {
	// Error is a human-readable message.
	Error string `json:"error"`

	// Code is a stable machine-readable error code.
	Code string `json:"code,omitempty"`
}
