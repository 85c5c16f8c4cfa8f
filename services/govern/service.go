// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package govern is the match orchestration service: it resolves the
// request fingerprint against the cache, dispatches the active
// strategies, enriches the merged results and maintains cache and
// history.
package govern

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/AleutianGovern/services/govern/cache"
	"github.com/AleutianAI/AleutianGovern/services/govern/capability"
	"github.com/AleutianAI/AleutianGovern/services/govern/datatypes"
	"github.com/AleutianAI/AleutianGovern/services/govern/dispatch"
	"github.com/AleutianAI/AleutianGovern/services/govern/enrich"
	"github.com/AleutianAI/AleutianGovern/services/govern/events"
	"github.com/AleutianAI/AleutianGovern/services/govern/history"
	"github.com/AleutianAI/AleutianGovern/services/govern/keyer"
)

var tracer = otel.Tracer("aleutian.govern.service")

// DefaultTTL is the cache lifetime applied when a request does not
// override it.
const DefaultTTL = 300 * time.Second

var matchRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "govern_match_requests_total",
	Help: "Orchestrated match calls by cache outcome.",
}, []string{"outcome"})

// ServiceConfig tunes the orchestrator.
type ServiceConfig struct {
	// DefaultTTL is the cache lifetime when requests do not override
	// it. Zero means DefaultTTL.
	DefaultTTL time.Duration

	// HistoryCapacity bounds per-entity history. Zero means the
	// tracker default.
	HistoryCapacity int

	// VectorDimensions is the embedding dimensionality.
	VectorDimensions int

	// StrategyTimeout bounds one strategy invocation.
	StrategyTimeout time.Duration

	// Weights overrides the default per-strategy merge weights.
	Weights map[datatypes.Strategy]float64
}

// Service is the top-level orchestrator.
//
// # Description
//
// Service exclusively owns the caches and history rings of its
// process. Concurrent identical non-bypass requests are collapsed into
// one dispatch via singleflight; every caller receives the same
// result.
//
// # Thread Safety
//
// All methods are safe for concurrent use.
type Service struct {
	client     capability.Client
	results    cache.ResultCache
	vectors    *cache.SemanticVectorCache
	history    *history.Tracker
	dispatcher *dispatch.Dispatcher
	enricher   *enrich.Enricher
	emitter    *events.Emitter
	validate   *validator.Validate
	group      singleflight.Group
	defaultTTL time.Duration
	started    time.Time
}

// NewService wires the orchestrator.
//
// # Inputs
//
//   - client: Matching capability boundary. Must not be nil.
//   - results: Result cache. Nil means a fresh in-memory MatchCache.
//   - cfg: Tuning knobs; zero values take defaults.
func NewService(client capability.Client, results cache.ResultCache, cfg ServiceConfig) *Service {
	if results == nil {
		results = cache.NewMatchCache(cache.DefaultMatchCacheConfig())
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultTTL
	}

	vectors := cache.NewSemanticVectorCache(cfg.VectorDimensions)
	tracker := history.NewTracker(cfg.HistoryCapacity)
	emitter := events.NewEmitter()

	dispatcherOpts := []dispatch.Option{dispatch.WithEmitter(emitter)}
	if cfg.StrategyTimeout > 0 {
		dispatcherOpts = append(dispatcherOpts, dispatch.WithStrategyTimeout(cfg.StrategyTimeout))
	}
	if len(cfg.Weights) > 0 {
		dispatcherOpts = append(dispatcherOpts, dispatch.WithWeights(cfg.Weights))
	}

	return &Service{
		client:     client,
		results:    results,
		vectors:    vectors,
		history:    tracker,
		dispatcher: dispatch.NewDispatcher(client, vectors, tracker, dispatcherOpts...),
		enricher:   enrich.NewEnricher(client, emitter),
		emitter:    emitter,
		validate:   validator.New(),
		defaultTTL: cfg.DefaultTTL,
		started:    time.Now(),
	}
}

// Events returns the service's event emitter for subscription.
func (s *Service) Events() *events.Emitter { return s.emitter }

// Match orchestrates one match call: cache resolve, strategy dispatch,
// enrichment, cache and history update.
//
// # Outputs
//
//   - *datatypes.MatchResponse: Merged, enriched results plus timing
//     and degradation metadata.
//   - error: ErrInvalidConfiguration, ErrMatchingUnavailable, or a
//     context error.
func (s *Service) Match(ctx context.Context, req MatchRequest) (*datatypes.MatchResponse, error) {
	ctx, span := tracer.Start(ctx, "Service.Match")
	defer span.End()
	span.SetAttributes(
		attribute.String("govern.entity_id", req.Entity.ID),
		attribute.String("govern.library_id", req.LibraryID),
	)

	config, err := s.resolveConfig(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	fp := keyer.Fingerprint(req.Entity, req.LibraryID, config)
	span.SetAttributes(attribute.String("govern.fingerprint", string(fp)))

	if !config.BypassCache {
		if entry, ok := s.results.Lookup(fp); ok {
			matchRequests.WithLabelValues("hit").Inc()
			s.emitter.Emit(events.Event{
				Type:        events.TypeCacheHit,
				EntityID:    req.Entity.ID,
				Fingerprint: string(fp),
			})
			span.SetAttributes(attribute.Bool("govern.cached", true))
			return &datatypes.MatchResponse{
				Results:     entry.Results,
				Cached:      true,
				Fingerprint: fp,
			}, nil
		}
		matchRequests.WithLabelValues("miss").Inc()
	} else {
		matchRequests.WithLabelValues("bypass").Inc()
	}
	s.emitter.Emit(events.Event{
		Type:        events.TypeCacheMiss,
		EntityID:    req.Entity.ID,
		Fingerprint: string(fp),
	})

	if config.BypassCache {
		// Bypass demands its own fresh dispatch; never piggyback on an
		// in-flight call.
		return s.dispatchAndStore(ctx, req, config, fp)
	}

	resp, err, shared := s.group.Do(string(fp), func() (any, error) {
		return s.dispatchAndStore(ctx, req, config, fp)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if shared {
		slog.Debug("collapsed duplicate in-flight match",
			slog.String("fingerprint", string(fp)),
		)
	}
	// Collapsed callers share one response struct; hand each caller its
	// own copy so per-request fields like RequestID never cross calls.
	out := *resp.(*datatypes.MatchResponse)
	return &out, nil
}

// dispatchAndStore runs the uncached path: dispatch, enrich, store,
// record history.
func (s *Service) dispatchAndStore(ctx context.Context, req MatchRequest, config datatypes.MatchConfiguration, fp datatypes.Fingerprint) (*datatypes.MatchResponse, error) {
	start := time.Now()

	outcome, err := s.dispatcher.Dispatch(ctx, req.Entity, req.LibraryID, req.Context, config)
	if err != nil {
		return nil, err
	}

	results := s.enricher.EnrichAll(ctx, outcome.Results, req.Entity, req.Context)

	ttl := s.defaultTTL
	if config.CacheTTLSeconds > 0 {
		ttl = time.Duration(config.CacheTTLSeconds) * time.Second
	}
	s.results.Store(fp, req.Entity.ID, results, ttl)
	s.history.Record(req.Entity.ID, results)

	elapsed := time.Since(start)
	s.emitter.Emit(events.Event{
		Type:        events.TypeMatchCompleted,
		EntityID:    req.Entity.ID,
		Fingerprint: string(fp),
		Attrs: map[string]string{
			"results":  fmt.Sprintf("%d", len(results)),
			"degraded": fmt.Sprintf("%t", outcome.Degraded),
		},
	})

	return &datatypes.MatchResponse{
		Results:          results,
		Cached:           false,
		ProcessingTimeMs: elapsed.Milliseconds(),
		Degraded:         outcome.Degraded,
		FailedStrategies: outcome.Failed,
		Fingerprint:      fp,
	}, nil
}

// resolveConfig applies defaults and validates the request
// configuration.
func (s *Service) resolveConfig(req MatchRequest) (datatypes.MatchConfiguration, error) {
	if req.Entity.ID == "" {
		return datatypes.MatchConfiguration{}, fmt.Errorf("%w: entity id is required", ErrInvalidEntity)
	}
	if req.LibraryID == "" {
		return datatypes.MatchConfiguration{}, fmt.Errorf("%w: library id is required", ErrInvalidEntity)
	}

	config := datatypes.DefaultMatchConfiguration()
	if req.Configuration != nil {
		config = *req.Configuration
	}

	if err := s.validate.Struct(config); err != nil {
		return config, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}
	active := dispatch.ActiveStrategies(config)
	if len(active) == 0 {
		return config, fmt.Errorf("%w: no strategies active", ErrInvalidConfiguration)
	}
	if err := config.CheckWeights(active, datatypes.DefaultWeights()); err != nil {
		return config, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}
	return config, nil
}

// CachedEntry returns the cache entry for a fingerprint.
func (s *Service) CachedEntry(fp datatypes.Fingerprint) (*cache.Entry, error) {
	entry, ok := s.results.Lookup(fp)
	if !ok {
		return nil, fmt.Errorf("%w: no cache entry for fingerprint %s", ErrNotFound, fp)
	}
	return entry, nil
}

// History returns an entity's recorded match history, oldest first.
func (s *Service) History(entityID string) ([]datatypes.MatchResult, error) {
	results := s.history.Recent(entityID)
	if len(results) == 0 {
		return nil, fmt.Errorf("%w: no history for entity %s", ErrNotFound, entityID)
	}
	return results, nil
}

// Invalidate drops cached state per the request: a single fingerprint,
// or everything associated with one entity (cache entries, the
// memoized vector and the history ring).
//
// # Outputs
//
//   - int: Number of cache entries removed.
func (s *Service) Invalidate(req InvalidateRequest) (int, error) {
	switch {
	case req.Fingerprint != "" && req.EntityID != "":
		return 0, fmt.Errorf("%w: set exactly one of fingerprint or entity_id", ErrInvalidEntity)
	case req.Fingerprint != "":
		s.results.Invalidate(datatypes.Fingerprint(req.Fingerprint))
		return 1, nil
	case req.EntityID != "":
		n := s.results.InvalidateEntity(req.EntityID)
		s.vectors.Invalidate(req.EntityID)
		s.history.Clear(req.EntityID)
		return n, nil
	default:
		return 0, fmt.Errorf("%w: set exactly one of fingerprint or entity_id", ErrInvalidEntity)
	}
}

// Stats reports service statistics.
func (s *Service) Stats() StatsResponse {
	return StatsResponse{
		Cache:              s.results.Stats(),
		VectorCacheEntries: s.vectors.Len(),
		UptimeSeconds:      int64(time.Since(s.started).Seconds()),
	}
}

// Ready reports whether the matching capability is reachable.
func (s *Service) Ready(ctx context.Context) error {
	return s.client.Ping(ctx)
}

// Close releases cache resources.
func (s *Service) Close() error {
	return s.results.Close()
}
