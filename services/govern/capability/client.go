// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package capability defines the boundary to the external Matching &
// Enrichment Service and its HTTP implementation.
//
// The service's matching algorithms (semantic similarity, fuzzy
// edit-distance, clustering) are external capabilities; this package
// only calls them correctly, safely, and efficiently.
package capability

import (
	"context"

	"github.com/AleutianAI/AleutianGovern/services/govern/datatypes"
)

// RawMatch is one candidate match as returned by the capability.
type RawMatch struct {
	// PatternID is the candidate pattern identifier.
	PatternID string `json:"pattern_id"`

	// Confidence is the strategy's confidence in [0, 1].
	Confidence float64 `json:"confidence"`

	// Evidence is supporting evidence for the match.
	Evidence []string `json:"evidence,omitempty"`

	// Metadata carries pattern attributes (see datatypes.Meta* keys).
	Metadata map[string]string `json:"metadata,omitempty"`
}

// MatchBatch is the result of one strategy invocation.
type MatchBatch struct {
	Matches []RawMatch `json:"matches"`

	// Partial is true when the capability could only evaluate part of
	// the library.
	Partial bool `json:"partial,omitempty"`
}

// MatchOptions is the strategy-specific payload for a match call.
type MatchOptions struct {
	// Threshold is the caller's similarity threshold, forwarded so the
	// capability can prune early.
	Threshold float64 `json:"threshold,omitempty"`

	// MaxResults caps the candidates returned per strategy.
	MaxResults int `json:"max_results,omitempty"`

	// Vector is the entity embedding (semantic strategy only).
	Vector []float64 `json:"vector,omitempty"`

	// Context is the business context (contextual strategy only).
	Context *datatypes.BusinessContext `json:"context,omitempty"`

	// History is recent match history (behavioral strategy only).
	History []datatypes.MatchResult `json:"history,omitempty"`

	// Explanations requests per-match explanation text.
	Explanations bool `json:"explanations,omitempty"`
}

// Enrichment is the capability's enrichment of one match. Nil fields
// mean the capability did not supply a value; local heuristics fill
// the gaps.
type Enrichment struct {
	BusinessImpact           *float64 `json:"business_impact,omitempty"`
	ImplementationComplexity *float64 `json:"implementation_complexity,omitempty"`
	RiskFactors              []string `json:"risk_factors,omitempty"`
	Explanation              string   `json:"explanation,omitempty"`
}

// Client is the Matching & Enrichment Service boundary.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use; the dispatcher
// fans out strategy calls in parallel.
type Client interface {
	// Match runs one strategy against a library.
	Match(ctx context.Context, strategy datatypes.Strategy, entity datatypes.Entity, libraryID string, opts MatchOptions) (*MatchBatch, error)

	// Embed computes the entity's semantic vector.
	Embed(ctx context.Context, entity datatypes.Entity) (datatypes.SemanticVector, error)

	// Enrich scores one match. Implementations may return a partial
	// Enrichment; nil pointer fields are filled locally.
	Enrich(ctx context.Context, match datatypes.MatchResult, entity datatypes.Entity, bctx datatypes.BusinessContext) (*Enrichment, error)

	// Ping reports whether the capability is reachable.
	Ping(ctx context.Context) error
}
