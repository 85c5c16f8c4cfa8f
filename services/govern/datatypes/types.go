// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes contains the shared value types of the Govern match
// orchestration service: governance rules (entities), match libraries,
// match configurations, and match results.
//
// Types in this package are plain data. Behavior lives in the service
// packages (keyer, cache, dispatch, enrich, history).
package datatypes

import "fmt"

// Strategy identifies one matching technique.
type Strategy string

const (
	// StrategySyntactic matches on normalized rule text.
	StrategySyntactic Strategy = "syntactic"

	// StrategySemantic matches on embedding vectors.
	StrategySemantic Strategy = "semantic"

	// StrategyFuzzy matches on edit distance over raw text.
	StrategyFuzzy Strategy = "fuzzy"

	// StrategyContextual matches using the business context.
	StrategyContextual Strategy = "contextual"

	// StrategyBehavioral matches against recent match history.
	StrategyBehavioral Strategy = "behavioral"

	// StrategyHybrid runs all base strategies and merges by weight.
	StrategyHybrid Strategy = "hybrid"
)

// BaseStrategies are the strategies run when a configuration does not
// select an explicit subset (and for hybrid selection). Behavioral is
// opt-in because it requires accumulated history.
var BaseStrategies = []Strategy{
	StrategySyntactic,
	StrategySemantic,
	StrategyFuzzy,
	StrategyContextual,
}

// StrategyPriority returns the tie-break priority of a strategy.
// Higher wins. Ordering: semantic > contextual > fuzzy > syntactic >
// behavioral.
func StrategyPriority(s Strategy) int {
	switch s {
	case StrategySemantic:
		return 5
	case StrategyContextual:
		return 4
	case StrategyFuzzy:
		return 3
	case StrategySyntactic:
		return 2
	case StrategyBehavioral:
		return 1
	default:
		return 0
	}
}

// Condition is one structural condition of a governance rule.
type Condition struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

// Entity is the governance rule being matched or validated.
//
// # Thread Safety
//
// Entities are immutable once passed into the service for a given
// request. Lifecycle is owned by the external rule-management system.
type Entity struct {
	// ID uniquely identifies the rule.
	ID string `json:"id" binding:"required"`

	// Definition is the textual or structured rule body.
	Definition string `json:"definition"`

	// Metadata carries descriptive key-value attributes.
	Metadata map[string]string `json:"metadata,omitempty"`

	// Conditions are the structural conditions of the rule.
	Conditions []Condition `json:"conditions,omitempty"`

	// Dependencies lists rule IDs this rule depends on.
	Dependencies []string `json:"dependencies,omitempty"`

	// AIEnhanced marks rules generated or modified by an AI system.
	AIEnhanced bool `json:"ai_enhanced,omitempty"`

	// Validated marks rules reviewed by a human.
	Validated bool `json:"validated,omitempty"`

	// ParallelExecution marks rules evaluated concurrently at runtime.
	ParallelExecution bool `json:"parallel_execution,omitempty"`

	// ThreadSafe marks parallel rules known to be safe.
	ThreadSafe bool `json:"thread_safe,omitempty"`

	// EstimatedExecMs is the estimated rule execution time.
	EstimatedExecMs int64 `json:"estimated_exec_ms,omitempty"`
}

// MatchLibrary identifies a collection of candidate patterns to match
// against. Read-only from the service's perspective.
type MatchLibrary struct {
	ID   string `json:"id" binding:"required"`
	Name string `json:"name,omitempty"`
}

// BusinessContext carries the caller's business metadata for contextual
// matching and enrichment.
//
// Fields are closed and versioned. Extensions is the single escape hatch
// for forward compatibility.
type BusinessContext struct {
	// Domain is the business domain of the rule (e.g. "finance").
	Domain string `json:"domain,omitempty"`

	// BusinessCriticality is one of "", "low", "medium", "high", "critical".
	BusinessCriticality string `json:"business_criticality,omitempty"`

	// Environment is the deployment environment of the rule.
	Environment string `json:"environment,omitempty"`

	// Extensions carries forward-compatible string attributes.
	Extensions map[string]string `json:"extensions,omitempty"`
}

// MatchConfiguration is the caller-supplied matching configuration.
type MatchConfiguration struct {
	// Strategies selects the strategies to run. Empty or containing
	// StrategyHybrid means all base strategies.
	Strategies []Strategy `json:"strategies,omitempty"`

	// Weights are per-strategy merge weights. Missing strategies use
	// service defaults. Each weight must be >= 0 and the active total
	// must be positive.
	Weights map[Strategy]float64 `json:"weights,omitempty"`

	// SimilarityThreshold drops merged matches below this confidence.
	SimilarityThreshold float64 `json:"similarity_threshold" validate:"gte=0,lte=1"`

	// MaxMatches truncates the merged result set. Must be > 0.
	MaxMatches int `json:"max_matches" validate:"gt=0"`

	// BypassCache forces a fresh dispatch; the refreshed results are
	// still stored so later non-bypass calls stay warm.
	BypassCache bool `json:"bypass_cache,omitempty"`

	// CacheTTLSeconds overrides the service default TTL when > 0.
	CacheTTLSeconds int `json:"cache_ttl_seconds,omitempty" validate:"gte=0"`

	// Feature toggles. Nil means enabled, so a caller that omits them
	// gets every selected strategy; an explicit false removes the
	// strategy from the active set even when selected.
	EnableSemantic        *bool `json:"enable_semantic,omitempty"`
	EnableFuzzy           *bool `json:"enable_fuzzy,omitempty"`
	EnableContextual      *bool `json:"enable_contextual,omitempty"`
	EnableExplanations    bool  `json:"enable_explanations,omitempty"`
	EnableRecommendations bool  `json:"enable_recommendations,omitempty"`
}

// SemanticEnabled reports the effective semantic toggle.
func (c MatchConfiguration) SemanticEnabled() bool {
	return c.EnableSemantic == nil || *c.EnableSemantic
}

// FuzzyEnabled reports the effective fuzzy toggle.
func (c MatchConfiguration) FuzzyEnabled() bool {
	return c.EnableFuzzy == nil || *c.EnableFuzzy
}

// ContextualEnabled reports the effective contextual toggle.
func (c MatchConfiguration) ContextualEnabled() bool {
	return c.EnableContextual == nil || *c.EnableContextual
}

// DefaultMatchConfiguration returns a configuration that runs all base
// strategies with service-default weights.
func DefaultMatchConfiguration() MatchConfiguration {
	return MatchConfiguration{
		SimilarityThreshold: 0.5,
		MaxMatches:          10,
	}
}

// DefaultWeights returns the default per-strategy merge weights.
//
// The values are tunable deployment defaults, not contracts; override
// them per request via MatchConfiguration.Weights or per deployment via
// service config.
func DefaultWeights() map[Strategy]float64 {
	return map[Strategy]float64{
		StrategySemantic:   0.4,
		StrategySyntactic:  0.3,
		StrategyFuzzy:      0.2,
		StrategyContextual: 0.1,
		StrategyBehavioral: 0.1,
	}
}

// CheckWeights verifies that every configured weight is non-negative and
// that the total weight across the given active strategies is positive.
func (c MatchConfiguration) CheckWeights(active []Strategy, defaults map[Strategy]float64) error {
	for s, w := range c.Weights {
		if w < 0 {
			return fmt.Errorf("weight for strategy %q is negative: %v", s, w)
		}
	}
	total := 0.0
	for _, s := range active {
		if w, ok := c.Weights[s]; ok {
			total += w
		} else {
			total += defaults[s]
		}
	}
	if total <= 0 {
		return fmt.Errorf("total weight across active strategies must be positive, got %v", total)
	}
	return nil
}

// Fingerprint is the stable content-derived identity of a
// (entity, library, configuration) triple. Used as the cache key.
type Fingerprint string

// SemanticVector is a fixed-dimension embedding for one entity version.
type SemanticVector struct {
	// Values holds the embedding components.
	Values []float64 `json:"values"`

	// Dimensions is the embedding dimensionality.
	Dimensions int `json:"dimensions"`

	// ContentHash is the entity content hash the vector was computed
	// from. A differing hash means the vector is stale.
	ContentHash string `json:"content_hash"`
}

// IsZero reports whether the vector is the documented fallback value.
func (v SemanticVector) IsZero() bool {
	for _, f := range v.Values {
		if f != 0 {
			return false
		}
	}
	return true
}

// Risk factor tags attached by enrichment. The set is never empty; a
// match with no triggered rule carries RiskMinimal.
const (
	RiskLowConfidence        = "low_confidence"
	RiskSecurity             = "security_risk"
	RiskUnvalidatedAIRule    = "unvalidated_ai_rule"
	RiskHighComplexity       = "high_complexity"
	RiskConcurrency          = "concurrency_risk"
	RiskPerformanceImpact    = "performance_impact"
	RiskDependencyComplexity = "dependency_complexity"
	RiskMinimal              = "minimal_risk"
)

// Well-known match metadata keys supplied by the matching capability.
const (
	// MetaMatchType is the match type, e.g. "security" or "compliance".
	MetaMatchType = "match_type"

	// MetaPatternText is the candidate pattern's text.
	MetaPatternText = "pattern_text"

	// MetaPatternComplexity is "low", "medium" or "high".
	MetaPatternComplexity = "pattern_complexity"

	// MetaRequiresMLModel is "true" when the pattern needs an ML model.
	MetaRequiresMLModel = "requires_ml_model"
)

// MatchResult is one candidate match, immutable after creation.
type MatchResult struct {
	// EntityID is the matched governance rule.
	EntityID string `json:"entity_id"`

	// PatternID is the candidate pattern from the match library.
	PatternID string `json:"pattern_id"`

	// Strategy is the highest-priority strategy that produced the match.
	Strategy Strategy `json:"strategy"`

	// Strategies lists every strategy that returned the pattern.
	Strategies []Strategy `json:"strategies,omitempty"`

	// Confidence is the merged confidence in [0, 1].
	Confidence float64 `json:"confidence"`

	// Similarity holds per-strategy similarity scores.
	Similarity map[Strategy]float64 `json:"similarity,omitempty"`

	// Evidence is the union of supporting evidence across strategies.
	Evidence []string `json:"evidence,omitempty"`

	// Type is the match type reported by the capability (see
	// MetaMatchType), e.g. "security" or "compliance".
	Type string `json:"type,omitempty"`

	// BusinessImpact is the enriched impact score in [0, 1].
	BusinessImpact float64 `json:"business_impact"`

	// ImplementationComplexity is the enriched complexity score in [0, 1].
	ImplementationComplexity float64 `json:"implementation_complexity"`

	// RiskFactors is the enriched risk tag set. Never empty after
	// enrichment.
	RiskFactors []string `json:"risk_factors"`

	// Explanation is optional human-readable reasoning.
	Explanation string `json:"explanation,omitempty"`

	// Metadata carries capability-supplied attributes.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// MatchResponse is the result of one orchestrated match call.
type MatchResponse struct {
	// Results are the merged, enriched matches, confidence-descending.
	Results []MatchResult `json:"results"`

	// Cached is true when the response was served from the match cache.
	Cached bool `json:"cached"`

	// ProcessingTimeMs is wall-clock dispatch+enrich time. Zero for
	// cache hits.
	ProcessingTimeMs int64 `json:"processing_time_ms"`

	// Degraded is true when at least one strategy failed but others
	// completed.
	Degraded bool `json:"degraded,omitempty"`

	// FailedStrategies lists the strategies that failed or timed out.
	FailedStrategies []Strategy `json:"failed_strategies,omitempty"`

	// Fingerprint is the request identity used as the cache key.
	Fingerprint Fingerprint `json:"fingerprint"`

	// RequestID correlates logs, traces and events for the call.
	RequestID string `json:"request_id,omitempty"`
}
