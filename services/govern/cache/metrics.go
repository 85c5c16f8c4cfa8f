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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for cache operations.
var (
	matchCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "govern_match_cache_hits_total",
		Help: "Match cache lookups served from cache",
	})

	matchCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "govern_match_cache_misses_total",
		Help: "Match cache lookups that missed or hit an expired entry",
	})

	matchCacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "govern_match_cache_evictions_total",
		Help: "Match cache entries removed by expiry",
	})

	vectorCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "govern_vector_cache_hits_total",
		Help: "Semantic vector cache hits",
	})

	vectorCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "govern_vector_cache_misses_total",
		Help: "Semantic vector cache misses and stale-content recomputes",
	})

	embedFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "govern_embed_failures_total",
		Help: "Embedding calls that failed and fell back to the zero vector",
	})
)
