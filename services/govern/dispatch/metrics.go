// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	dispatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "govern_dispatch_duration_seconds",
		Help:    "Wall-clock duration of strategy fan-out and merge.",
		Buckets: prometheus.DefBuckets,
	})

	strategyDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "govern_strategy_duration_seconds",
		Help:    "Duration of individual strategy invocations.",
		Buckets: prometheus.DefBuckets,
	}, []string{"strategy"})

	strategyFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "govern_strategy_failures_total",
		Help: "Strategy invocations that failed or timed out.",
	}, []string{"strategy", "reason"})

	dispatchDegraded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "govern_dispatch_degraded_total",
		Help: "Dispatches that completed with at least one failed strategy.",
	})
)
