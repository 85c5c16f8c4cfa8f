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
	"sort"

	"github.com/AleutianAI/AleutianGovern/services/govern/capability"
	"github.com/AleutianAI/AleutianGovern/services/govern/datatypes"
)

// candidate accumulates one pattern's contributions across strategies.
type candidate struct {
	patternID  string
	strategies []datatypes.Strategy
	similarity map[datatypes.Strategy]float64
	evidence   []string
	metadata   map[string]string
	weighted   float64
	weightSum  float64
}

// merge combines per-strategy candidates into one result set.
//
// # Description
//
// A pattern reported by several strategies gets the weighted mean of
// their confidences. Evidence is unioned, metadata merged with the
// highest-priority strategy winning conflicts, and the result's
// Strategy field names the highest-priority contributor. Results below
// the similarity threshold are dropped; the rest are sorted by
// confidence descending, ties broken by strategy priority and then
// pattern id, and truncated to MaxMatches.
func (d *Dispatcher) merge(entityID string, perStrategy map[datatypes.Strategy][]capability.RawMatch, config datatypes.MatchConfiguration) []datatypes.MatchResult {
	candidates := make(map[string]*candidate)

	// Strategies are visited in priority order so that metadata merge
	// conflicts resolve the same way on every call.
	strategies := make([]datatypes.Strategy, 0, len(perStrategy))
	for s := range perStrategy {
		strategies = append(strategies, s)
	}
	sort.Slice(strategies, func(i, j int) bool {
		return datatypes.StrategyPriority(strategies[i]) > datatypes.StrategyPriority(strategies[j])
	})

	for _, strategy := range strategies {
		weight := d.effectiveWeight(strategy, config)
		if weight <= 0 {
			continue
		}
		for _, raw := range perStrategy[strategy] {
			c, ok := candidates[raw.PatternID]
			if !ok {
				c = &candidate{
					patternID:  raw.PatternID,
					similarity: make(map[datatypes.Strategy]float64),
				}
				candidates[raw.PatternID] = c
			}
			c.strategies = append(c.strategies, strategy)
			c.similarity[strategy] = raw.Confidence
			c.evidence = appendUnique(c.evidence, raw.Evidence)
			c.weighted += weight * raw.Confidence
			c.weightSum += weight
			for k, v := range raw.Metadata {
				if c.metadata == nil {
					c.metadata = make(map[string]string)
				}
				if _, exists := c.metadata[k]; !exists {
					c.metadata[k] = v
				}
			}
		}
	}

	results := make([]datatypes.MatchResult, 0, len(candidates))
	for _, c := range candidates {
		if c.weightSum <= 0 {
			continue
		}
		confidence := c.weighted / c.weightSum
		if confidence < config.SimilarityThreshold {
			continue
		}
		results = append(results, datatypes.MatchResult{
			EntityID:   entityID,
			PatternID:  c.patternID,
			Strategy:   c.strategies[0],
			Strategies: c.strategies,
			Confidence: confidence,
			Similarity: c.similarity,
			Evidence:   c.evidence,
			Type:       c.metadata[datatypes.MetaMatchType],
			Metadata:   c.metadata,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Confidence != results[j].Confidence {
			return results[i].Confidence > results[j].Confidence
		}
		pi := datatypes.StrategyPriority(results[i].Strategy)
		pj := datatypes.StrategyPriority(results[j].Strategy)
		if pi != pj {
			return pi > pj
		}
		return results[i].PatternID < results[j].PatternID
	})

	if config.MaxMatches > 0 && len(results) > config.MaxMatches {
		results = results[:config.MaxMatches]
	}
	return results
}

// effectiveWeight resolves a strategy's merge weight: request override
// first, deployment default otherwise.
func (d *Dispatcher) effectiveWeight(s datatypes.Strategy, config datatypes.MatchConfiguration) float64 {
	if w, ok := config.Weights[s]; ok {
		return w
	}
	return d.weights[s]
}

// appendUnique appends the new items not already present.
func appendUnique(existing []string, items []string) []string {
	for _, item := range items {
		found := false
		for _, have := range existing {
			if have == item {
				found = true
				break
			}
		}
		if !found {
			existing = append(existing, item)
		}
	}
	return existing
}
