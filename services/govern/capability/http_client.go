// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package capability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/AleutianGovern/services/govern/datatypes"
)

var tracer = otel.Tracer("aleutian.govern.capability")

// RetryPolicy bounds retries within a single capability call.
//
// The orchestrator never retries a whole match() call; transient
// failures are retried here, inside one strategy invocation, and then
// counted as a strategy failure.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts (1 = no retry).
	MaxAttempts int

	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the exponential backoff.
	MaxBackoff time.Duration
}

// DefaultRetryPolicy returns the production retry policy: one retry
// with jittered exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    2,
		InitialBackoff: 250 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
	}
}

// HTTPClientConfig configures the HTTP capability client.
type HTTPClientConfig struct {
	// BaseURL is the capability service root, e.g. "http://matcher:8090".
	BaseURL string

	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration

	// Retry bounds retries within one call.
	Retry RetryPolicy

	// RatePerSecond limits outbound calls. Zero disables limiting.
	RatePerSecond float64
}

// DefaultHTTPClientConfig returns production defaults.
func DefaultHTTPClientConfig(baseURL string) HTTPClientConfig {
	return HTTPClientConfig{
		BaseURL:       baseURL,
		Timeout:       30 * time.Second,
		Retry:         DefaultRetryPolicy(),
		RatePerSecond: 50,
	}
}

// HTTPClient calls the Matching & Enrichment Service over HTTP/JSON.
//
// # Thread Safety
//
// Safe for concurrent use.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	retry      RetryPolicy
	limiter    *rate.Limiter
}

// NewHTTPClient creates an HTTP capability client.
func NewHTTPClient(cfg HTTPClientConfig) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("capability base URL not set")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryPolicy()
	}

	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), int(cfg.RatePerSecond))
	}

	return &HTTPClient{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		retry:      cfg.Retry,
		limiter:    limiter,
	}, nil
}

// matchRequest is the wire payload for a strategy invocation.
type matchRequest struct {
	Strategy  datatypes.Strategy `json:"strategy"`
	Entity    datatypes.Entity   `json:"entity"`
	LibraryID string             `json:"library_id"`
	Options   MatchOptions       `json:"options"`
}

// embedRequest is the wire payload for an embedding call.
type embedRequest struct {
	Entity datatypes.Entity `json:"entity"`
}

type embedResponse struct {
	Vector     []float64 `json:"vector"`
	Dimensions int       `json:"dimensions"`
}

// enrichRequest is the wire payload for an enrichment call.
type enrichRequest struct {
	Match   datatypes.MatchResult     `json:"match"`
	Entity  datatypes.Entity          `json:"entity"`
	Context datatypes.BusinessContext `json:"context"`
}

// Match runs one strategy against a library.
func (c *HTTPClient) Match(ctx context.Context, strategy datatypes.Strategy, entity datatypes.Entity, libraryID string, opts MatchOptions) (*MatchBatch, error) {
	ctx, span := tracer.Start(ctx, "HTTPClient.Match")
	defer span.End()
	span.SetAttributes(
		attribute.String("govern.strategy", string(strategy)),
		attribute.String("govern.entity_id", entity.ID),
		attribute.String("govern.library_id", libraryID),
	)

	var batch MatchBatch
	err := c.doJSON(ctx, "/v1/match", matchRequest{
		Strategy:  strategy,
		Entity:    entity,
		LibraryID: libraryID,
		Options:   opts,
	}, &batch)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%s match call: %w", strategy, err)
	}
	span.SetAttributes(attribute.Int("govern.match_count", len(batch.Matches)))
	return &batch, nil
}

// Embed computes the entity's semantic vector.
func (c *HTTPClient) Embed(ctx context.Context, entity datatypes.Entity) (datatypes.SemanticVector, error) {
	ctx, span := tracer.Start(ctx, "HTTPClient.Embed")
	defer span.End()
	span.SetAttributes(attribute.String("govern.entity_id", entity.ID))

	var resp embedResponse
	if err := c.doJSON(ctx, "/v1/embed", embedRequest{Entity: entity}, &resp); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return datatypes.SemanticVector{}, fmt.Errorf("embed call: %w", err)
	}
	return datatypes.SemanticVector{Values: resp.Vector, Dimensions: resp.Dimensions}, nil
}

// Enrich scores one match.
func (c *HTTPClient) Enrich(ctx context.Context, match datatypes.MatchResult, entity datatypes.Entity, bctx datatypes.BusinessContext) (*Enrichment, error) {
	ctx, span := tracer.Start(ctx, "HTTPClient.Enrich")
	defer span.End()
	span.SetAttributes(
		attribute.String("govern.entity_id", entity.ID),
		attribute.String("govern.pattern_id", match.PatternID),
	)

	var enrichment Enrichment
	err := c.doJSON(ctx, "/v1/enrich", enrichRequest{
		Match:   match,
		Entity:  entity,
		Context: bctx,
	}, &enrichment)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("enrich call: %w", err)
	}
	return &enrichment, nil
}

// Ping checks capability reachability via its health endpoint.
func (c *HTTPClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/health", nil)
	if err != nil {
		return fmt.Errorf("building health request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("capability unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("capability health returned status %d", resp.StatusCode)
	}
	return nil
}

// doJSON posts a JSON payload and decodes the JSON response, retrying
// transient failures per the retry policy.
func (c *HTTPClient) doJSON(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	var lastErr error
	backoff := c.retry.InitialBackoff

	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		if attempt > 1 {
			slog.Warn("retrying capability call",
				slog.String("path", path),
				slog.Int("attempt", attempt),
				slog.Int("max_attempts", c.retry.MaxAttempts),
				slog.String("error", lastErr.Error()),
			)
			// Jittered exponential backoff.
			delay := backoff + time.Duration(rand.Int63n(int64(backoff)/2+1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			backoff *= 2
			if backoff > c.retry.MaxBackoff {
				backoff = c.retry.MaxBackoff
			}
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		lastErr = c.attempt(ctx, path, body, out)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !retryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

// httpStatusError marks responses that may be retried (5xx).
type httpStatusError struct {
	status int
	body   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("capability returned status %d: %s", e.status, e.body)
}

// decodeError marks a malformed 200 response. A retry would decode
// the same payload and fail identically.
type decodeError struct {
	err error
}

func (e *decodeError) Error() string {
	return fmt.Sprintf("decoding capability response: %v", e.err)
}

func (e *decodeError) Unwrap() error { return e.err }

// retryable reports whether an attempt error is transient.
func retryable(err error) bool {
	if se, ok := err.(*httpStatusError); ok {
		return se.status >= 500
	}
	if _, ok := err.(*decodeError); ok {
		return false
	}
	// Network-level errors are retryable.
	return true
}

// attempt performs a single POST round trip.
func (c *HTTPClient) attempt(ctx context.Context, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("capability request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &httpStatusError{status: resp.StatusCode, body: string(snippet)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &decodeError{err: err}
	}
	return nil
}

var _ Client = (*HTTPClient)(nil)
