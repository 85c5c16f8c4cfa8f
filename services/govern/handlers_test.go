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
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianGovern/services/govern/datatypes"
)

func newTestRouter(t *testing.T, client *fakeCapability) (*gin.Engine, *Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc := NewService(client, nil, ServiceConfig{})
	t.Cleanup(func() { svc.Close() })

	h := NewHandlers(svc)
	router := gin.New()
	v1 := router.Group("/v1")
	RegisterRoutes(v1, h)
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
	return router, svc
}

func postJSON(router *gin.Engine, path string, payload any) *httptest.ResponseRecorder {
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func getPath(router *gin.Engine, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestMatchEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, scenarioCapability())

	w := postJSON(router, "/v1/govern/match", scenarioRequest())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp datatypes.MatchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Cached)
	assert.Len(t, resp.Results, 3)
	assert.NotEmpty(t, resp.RequestID)
	assert.NotEmpty(t, resp.Fingerprint)

	// Replay hits the cache.
	w = postJSON(router, "/v1/govern/match", scenarioRequest())
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Cached)
}

func TestMatchEndpointOmittedTogglesRunSelectedStrategies(t *testing.T) {
	router, _ := newTestRouter(t, scenarioCapability())

	// A caller-written body: explicit strategy selection, no toggle
	// fields at all. Both selected strategies must run.
	body := []byte(`{
		"entity": {"id": "rule-e1", "definition": "mask PII in exports"},
		"library_id": "lib-l1",
		"configuration": {
			"strategies": ["semantic", "fuzzy"],
			"similarity_threshold": 0.6,
			"max_matches": 5
		}
	}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/govern/match", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp datatypes.MatchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Results, 3, "semantic and fuzzy matches must both survive")

	// The hand-written body and the typed scenario request are the same
	// request, so the replay is a cache hit.
	w = postJSON(router, "/v1/govern/match", scenarioRequest())
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Cached)
}

func TestMatchEndpointConcurrentCallersGetOwnRequestID(t *testing.T) {
	client := scenarioCapability()
	client.gate = make(chan struct{})
	router, _ := newTestRouter(t, client)

	recorders := make([]*httptest.ResponseRecorder, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			recorders[i] = postJSON(router, "/v1/govern/match", scenarioRequest())
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(client.gate)
	wg.Wait()

	var ids []string
	for _, w := range recorders {
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var resp datatypes.MatchResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.NotEmpty(t, resp.RequestID)
		ids = append(ids, resp.RequestID)
	}
	assert.NotEqual(t, ids[0], ids[1], "each caller keeps its own request id")
}

func TestMatchEndpointRejectsBadBody(t *testing.T) {
	router, _ := newTestRouter(t, newFakeCapability())

	req := httptest.NewRequest(http.MethodPost, "/v1/govern/match", bytes.NewReader([]byte("{not json")))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &errResp))
	assert.Equal(t, "INVALID_REQUEST", errResp.Code)
}

func TestMatchEndpointInvalidConfiguration(t *testing.T) {
	router, _ := newTestRouter(t, newFakeCapability())

	req := scenarioRequest()
	req.Configuration.MaxMatches = 0
	w := postJSON(router, "/v1/govern/match", req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &errResp))
	assert.Equal(t, "INVALID_CONFIGURATION", errResp.Code)
}

func TestMatchEndpointCapabilityDown(t *testing.T) {
	client := newFakeCapability()
	client.errs[datatypes.StrategySemantic] = errors.New("down")
	client.errs[datatypes.StrategyFuzzy] = errors.New("down")
	router, _ := newTestRouter(t, client)

	w := postJSON(router, "/v1/govern/match", scenarioRequest())

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &errResp))
	assert.Equal(t, "MATCHING_UNAVAILABLE", errResp.Code)
}

func TestCacheEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, scenarioCapability())

	w := postJSON(router, "/v1/govern/match", scenarioRequest())
	require.Equal(t, http.StatusOK, w.Code)
	var resp datatypes.MatchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	w = getPath(router, "/v1/govern/cache/"+string(resp.Fingerprint))
	assert.Equal(t, http.StatusOK, w.Code)

	w = getPath(router, "/v1/govern/cache/deadbeefdeadbeef")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHistoryEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, scenarioCapability())

	postJSON(router, "/v1/govern/match", scenarioRequest())

	w := getPath(router, "/v1/govern/history/rule-e1")
	require.Equal(t, http.StatusOK, w.Code)

	w = getPath(router, "/v1/govern/history/rule-unknown")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestInvalidateEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, scenarioCapability())

	postJSON(router, "/v1/govern/match", scenarioRequest())

	w := postJSON(router, "/v1/govern/invalidate", InvalidateRequest{EntityID: "rule-e1"})
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]int
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body["removed"])

	w = postJSON(router, "/v1/govern/invalidate", InvalidateRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, scenarioCapability())

	postJSON(router, "/v1/govern/match", scenarioRequest())
	postJSON(router, "/v1/govern/match", scenarioRequest())

	w := getPath(router, "/v1/govern/stats")
	require.Equal(t, http.StatusOK, w.Code)

	var stats StatsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.Cache.Hits)
	assert.Equal(t, 1, stats.Cache.Entries)
}

func TestHealthAndReady(t *testing.T) {
	client := newFakeCapability()
	router, _ := newTestRouter(t, client)

	assert.Equal(t, http.StatusOK, getPath(router, "/health").Code)
	assert.Equal(t, http.StatusOK, getPath(router, "/ready").Code)

	client.pingErr = errors.New("connection refused")
	assert.Equal(t, http.StatusServiceUnavailable, getPath(router, "/ready").Code)
}
