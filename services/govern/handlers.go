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
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianGovern/services/govern/datatypes"
)

// Handlers holds the HTTP handlers of the govern service.
type Handlers struct {
	service *Service
}

// NewHandlers creates the handler set.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// Match handles POST /v1/govern/match.
func (h *Handlers) Match(c *gin.Context) {
	requestID := uuid.NewString()

	var req MatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid request body: " + err.Error(),
			Code:  "INVALID_REQUEST",
		})
		return
	}

	resp, err := h.service.Match(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, requestID, err)
		return
	}
	resp.RequestID = requestID

	slog.Info("match completed",
		slog.String("request_id", requestID),
		slog.String("entity_id", req.Entity.ID),
		slog.String("library_id", req.LibraryID),
		slog.Bool("cached", resp.Cached),
		slog.Bool("degraded", resp.Degraded),
		slog.Int("results", len(resp.Results)),
		slog.Int64("processing_time_ms", resp.ProcessingTimeMs),
	)
	c.JSON(http.StatusOK, resp)
}

// CacheEntry handles GET /v1/govern/cache/:fingerprint.
func (h *Handlers) CacheEntry(c *gin.Context) {
	fp := datatypes.Fingerprint(c.Param("fingerprint"))
	entry, err := h.service.CachedEntry(fp)
	if err != nil {
		h.writeError(c, "", err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

// History handles GET /v1/govern/history/:entity_id.
func (h *Handlers) History(c *gin.Context) {
	results, err := h.service.History(c.Param("entity_id"))
	if err != nil {
		h.writeError(c, "", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"entity_id": c.Param("entity_id"),
		"results":   results,
	})
}

// Invalidate handles POST /v1/govern/invalidate.
func (h *Handlers) Invalidate(c *gin.Context) {
	var req InvalidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid request body: " + err.Error(),
			Code:  "INVALID_REQUEST",
		})
		return
	}

	removed, err := h.service.Invalidate(req)
	if err != nil {
		h.writeError(c, "", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// Stats handles GET /v1/govern/stats.
func (h *Handlers) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.Stats())
}

// Health handles GET /health.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready handles GET /ready: healthy only when the matching capability
// is reachable.
func (h *Handlers) Ready(c *gin.Context) {
	if err := h.service.Ready(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: "matching capability unreachable: " + err.Error(),
			Code:  "NOT_READY",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// writeError maps service errors to HTTP responses.
func (h *Handlers) writeError(c *gin.Context, requestID string, err error) {
	var status int
	var code string
	switch {
	case errors.Is(err, ErrInvalidConfiguration):
		status, code = http.StatusBadRequest, "INVALID_CONFIGURATION"
	case errors.Is(err, ErrInvalidEntity):
		status, code = http.StatusBadRequest, "INVALID_ENTITY"
	case errors.Is(err, ErrNotFound):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, ErrMatchingUnavailable):
		status, code = http.StatusServiceUnavailable, "MATCHING_UNAVAILABLE"
	default:
		status, code = http.StatusInternalServerError, "INTERNAL_ERROR"
	}

	if status >= 500 {
		slog.Error("request failed",
			slog.String("request_id", requestID),
			slog.Int("status", status),
			slog.String("error", err.Error()),
		)
	}
	c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
}
