// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package enrich post-processes merged matches with business-impact,
// implementation-complexity and risk-factor scores.
//
// Remote enrichment is preferred; local heuristics fill whatever the
// capability did not supply. Enrichment never fails a request.
package enrich

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianGovern/services/govern/capability"
	"github.com/AleutianAI/AleutianGovern/services/govern/datatypes"
	"github.com/AleutianAI/AleutianGovern/services/govern/events"
)

// DefaultConcurrency bounds parallel remote enrichment calls per
// request.
const DefaultConcurrency = 4

var enrichFallbacks = promauto.NewCounter(prometheus.CounterOpts{
	Name: "govern_enrich_fallbacks_total",
	Help: "Matches whose enrichment used local heuristics for at least one field.",
})

// Enricher fills the enrichment fields of match results.
//
// # Thread Safety
//
// Safe for concurrent use.
type Enricher struct {
	client      capability.Client
	emitter     *events.Emitter
	concurrency int
}

// NewEnricher creates an enricher.
//
// # Inputs
//
//   - client: Remote enrichment boundary. May be nil, in which case all
//     fields come from local heuristics.
//   - emitter: Event emitter for fallback events. May be nil.
func NewEnricher(client capability.Client, emitter *events.Emitter) *Enricher {
	return &Enricher{
		client:      client,
		emitter:     emitter,
		concurrency: DefaultConcurrency,
	}
}

// Enrich fills one match's enrichment fields. Remote fields win when
// present; local heuristics fill the gaps.
func (e *Enricher) Enrich(ctx context.Context, match datatypes.MatchResult, entity datatypes.Entity, bctx datatypes.BusinessContext) datatypes.MatchResult {
	var remote *capability.Enrichment
	if e.client != nil {
		var err error
		remote, err = e.client.Enrich(ctx, match, entity, bctx)
		if err != nil {
			slog.Debug("remote enrichment failed, falling back to heuristics",
				slog.String("entity_id", entity.ID),
				slog.String("pattern_id", match.PatternID),
				slog.String("error", err.Error()),
			)
			remote = nil
		}
	}

	fellBack := false

	if remote != nil && remote.BusinessImpact != nil {
		match.BusinessImpact = clamp01(*remote.BusinessImpact)
	} else {
		match.BusinessImpact = businessImpactHeuristic(match, bctx)
		fellBack = true
	}

	if remote != nil && remote.ImplementationComplexity != nil {
		match.ImplementationComplexity = clamp01(*remote.ImplementationComplexity)
	} else {
		match.ImplementationComplexity = complexityHeuristic(match, entity)
		fellBack = true
	}

	if remote != nil && len(remote.RiskFactors) > 0 {
		match.RiskFactors = remote.RiskFactors
	} else {
		match.RiskFactors = riskFactorsHeuristic(match, entity)
		fellBack = true
	}

	if remote != nil && remote.Explanation != "" && match.Explanation == "" {
		match.Explanation = remote.Explanation
	}

	if fellBack {
		enrichFallbacks.Inc()
		if e.emitter != nil {
			e.emitter.Emit(events.Event{
				Type:     events.TypeEnrichmentFallback,
				EntityID: entity.ID,
				Attrs:    map[string]string{"pattern_id": match.PatternID},
			})
		}
	}
	return match
}

// EnrichAll enriches a result slice in place order, running remote
// calls with bounded concurrency. It never returns an error; a failed
// remote call degrades that match to local heuristics.
func (e *Enricher) EnrichAll(ctx context.Context, results []datatypes.MatchResult, entity datatypes.Entity, bctx datatypes.BusinessContext) []datatypes.MatchResult {
	if len(results) == 0 {
		return results
	}

	enriched := make([]datatypes.MatchResult, len(results))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, match := range results {
		g.Go(func() error {
			enriched[i] = e.Enrich(ctx, match, entity, bctx)
			return nil
		})
	}
	// Workers never return errors; Wait only joins them.
	_ = g.Wait()
	return enriched
}
