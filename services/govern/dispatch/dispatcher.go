// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dispatch fans a match request out to the active strategies
// concurrently and merges their candidates into one weighted result
// set.
//
// Fault isolation is per strategy: a failed or timed-out strategy is
// dropped from the merge and reported as degraded; only total failure
// surfaces as ErrMatchingUnavailable.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianGovern/services/govern/cache"
	"github.com/AleutianAI/AleutianGovern/services/govern/capability"
	"github.com/AleutianAI/AleutianGovern/services/govern/datatypes"
	"github.com/AleutianAI/AleutianGovern/services/govern/events"
	"github.com/AleutianAI/AleutianGovern/services/govern/history"
)

var tracer = otel.Tracer("aleutian.govern.dispatch")

// DefaultStrategyTimeout bounds a single strategy invocation.
const DefaultStrategyTimeout = 10 * time.Second

// Outcome is the merged result of one dispatch.
type Outcome struct {
	// Results are the merged matches, confidence-descending, already
	// filtered by threshold and truncated to MaxMatches.
	Results []datatypes.MatchResult

	// Failed lists the strategies that failed or timed out.
	Failed []datatypes.Strategy

	// Degraded is true when some, but not all, strategies failed.
	Degraded bool
}

// Dispatcher runs the active strategies concurrently and merges their
// candidates.
//
// # Thread Safety
//
// Safe for concurrent use. Per-request state lives on the stack of
// each Dispatch call.
type Dispatcher struct {
	client          capability.Client
	vectors         *cache.SemanticVectorCache
	history         *history.Tracker
	weights         map[datatypes.Strategy]float64
	strategyTimeout time.Duration
	emitter         *events.Emitter
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithWeights overrides the deployment-default merge weights.
func WithWeights(weights map[datatypes.Strategy]float64) Option {
	return func(d *Dispatcher) {
		if len(weights) > 0 {
			d.weights = weights
		}
	}
}

// WithStrategyTimeout bounds a single strategy invocation.
func WithStrategyTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.strategyTimeout = timeout
		}
	}
}

// WithEmitter attaches an event emitter for strategy failure events.
func WithEmitter(emitter *events.Emitter) Option {
	return func(d *Dispatcher) { d.emitter = emitter }
}

// NewDispatcher creates a dispatcher.
//
// # Inputs
//
//   - client: Matching capability boundary. Must not be nil.
//   - vectors: Semantic vector cache used by the semantic strategy.
//   - tracker: History tracker feeding the behavioral strategy.
func NewDispatcher(client capability.Client, vectors *cache.SemanticVectorCache, tracker *history.Tracker, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		client:          client,
		vectors:         vectors,
		history:         tracker,
		weights:         datatypes.DefaultWeights(),
		strategyTimeout: DefaultStrategyTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ActiveStrategies resolves the strategies a configuration selects.
//
// # Description
//
// An empty selection, or one containing StrategyHybrid, expands to the
// base strategy set. Feature toggles then remove disabled strategies.
// Behavioral runs only when explicitly selected, since it needs
// accumulated history to be useful.
func ActiveStrategies(config datatypes.MatchConfiguration) []datatypes.Strategy {
	selected := config.Strategies
	if len(selected) == 0 {
		selected = datatypes.BaseStrategies
	} else {
		for _, s := range selected {
			if s == datatypes.StrategyHybrid {
				// Hybrid expands to the base set plus any other
				// explicitly listed strategies (e.g. behavioral).
				expanded := make([]datatypes.Strategy, 0, len(datatypes.BaseStrategies)+len(selected))
				expanded = append(expanded, datatypes.BaseStrategies...)
				for _, other := range selected {
					if other != datatypes.StrategyHybrid {
						expanded = append(expanded, other)
					}
				}
				selected = expanded
				break
			}
		}
	}

	seen := make(map[datatypes.Strategy]bool, len(selected))
	active := make([]datatypes.Strategy, 0, len(selected))
	for _, s := range selected {
		if seen[s] || !enabled(s, config) {
			continue
		}
		seen[s] = true
		active = append(active, s)
	}
	return active
}

// enabled applies the configuration's feature toggles. Omitted toggles
// count as enabled.
func enabled(s datatypes.Strategy, config datatypes.MatchConfiguration) bool {
	switch s {
	case datatypes.StrategySemantic:
		return config.SemanticEnabled()
	case datatypes.StrategyFuzzy:
		return config.FuzzyEnabled()
	case datatypes.StrategyContextual:
		return config.ContextualEnabled()
	case datatypes.StrategySyntactic, datatypes.StrategyBehavioral:
		return true
	default:
		return false
	}
}

// strategyResult is one strategy's contribution to the merge.
type strategyResult struct {
	strategy datatypes.Strategy
	batch    *capability.MatchBatch
	err      error
}

// Dispatch runs the active strategies concurrently and merges their
// candidates.
//
// # Outputs
//
//   - *Outcome: Merged results plus degradation state.
//   - error: ErrMatchingUnavailable when every strategy failed, or the
//     context error when the caller's deadline expired before any
//     strategy completed.
func (d *Dispatcher) Dispatch(ctx context.Context, entity datatypes.Entity, libraryID string, bctx datatypes.BusinessContext, config datatypes.MatchConfiguration) (*Outcome, error) {
	ctx, span := tracer.Start(ctx, "Dispatcher.Dispatch")
	defer span.End()
	span.SetAttributes(
		attribute.String("govern.entity_id", entity.ID),
		attribute.String("govern.library_id", libraryID),
	)

	start := time.Now()
	defer func() { dispatchDuration.Observe(time.Since(start).Seconds()) }()

	active := ActiveStrategies(config)
	if len(active) == 0 {
		return nil, fmt.Errorf("no strategies active after applying feature toggles")
	}
	span.SetAttributes(attribute.Int("govern.active_strategies", len(active)))

	results := make(chan strategyResult, len(active))
	var wg sync.WaitGroup
	for _, strategy := range active {
		wg.Add(1)
		go func(s datatypes.Strategy) {
			defer wg.Done()
			batch, err := d.runStrategy(ctx, s, entity, libraryID, bctx, config)
			results <- strategyResult{strategy: s, batch: batch, err: err}
		}(strategy)
	}
	wg.Wait()
	close(results)

	perStrategy := make(map[datatypes.Strategy][]capability.RawMatch, len(active))
	var failed []datatypes.Strategy
	for res := range results {
		if res.err != nil {
			failed = append(failed, res.strategy)
			strategyFailures.WithLabelValues(string(res.strategy), failureReason(res.err)).Inc()
			slog.Warn("strategy failed",
				slog.String("strategy", string(res.strategy)),
				slog.String("entity_id", entity.ID),
				slog.String("error", res.err.Error()),
			)
			if d.emitter != nil {
				d.emitter.Emit(events.Event{
					Type:     events.TypeStrategyFailed,
					EntityID: entity.ID,
					Strategy: string(res.strategy),
					Error:    res.err.Error(),
				})
			}
			continue
		}
		perStrategy[res.strategy] = res.batch.Matches
	}

	if len(perStrategy) == 0 {
		if err := ctx.Err(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		span.SetStatus(codes.Error, ErrMatchingUnavailable.Error())
		return nil, fmt.Errorf("all %d strategies failed: %w", len(active), ErrMatchingUnavailable)
	}

	// Failed strategies are sorted so responses are deterministic.
	sort.Slice(failed, func(i, j int) bool { return failed[i] < failed[j] })

	outcome := &Outcome{
		Results:  d.merge(entity.ID, perStrategy, config),
		Failed:   failed,
		Degraded: len(failed) > 0,
	}
	if outcome.Degraded {
		dispatchDegraded.Inc()
	}
	span.SetAttributes(
		attribute.Int("govern.result_count", len(outcome.Results)),
		attribute.Bool("govern.degraded", outcome.Degraded),
	)
	return outcome, nil
}

// runStrategy invokes one strategy with its specific payload under the
// per-strategy timeout.
func (d *Dispatcher) runStrategy(ctx context.Context, strategy datatypes.Strategy, entity datatypes.Entity, libraryID string, bctx datatypes.BusinessContext, config datatypes.MatchConfiguration) (*capability.MatchBatch, error) {
	ctx, cancel := context.WithTimeout(ctx, d.strategyTimeout)
	defer cancel()

	start := time.Now()
	defer func() {
		strategyDuration.WithLabelValues(string(strategy)).Observe(time.Since(start).Seconds())
	}()

	opts := capability.MatchOptions{
		Threshold:    config.SimilarityThreshold,
		MaxResults:   config.MaxMatches,
		Explanations: config.EnableExplanations,
	}

	switch strategy {
	case datatypes.StrategySemantic:
		vec := d.vectors.GetOrCompute(ctx, entity, d.client.Embed)
		opts.Vector = vec.Values
	case datatypes.StrategyContextual:
		opts.Context = &bctx
	case datatypes.StrategyBehavioral:
		opts.History = d.history.Recent(entity.ID)
	}

	return d.client.Match(ctx, strategy, entity, libraryID, opts)
}

// failureReason classifies a strategy failure for metrics. Only the
// strategy's own error matters; an expired dispatch context must not
// relabel failures that happened for other reasons.
func failureReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}
