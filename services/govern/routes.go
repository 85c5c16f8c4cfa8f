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

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts the govern API under the given group.
//
// Routes:
//
//	POST /govern/match
//	GET  /govern/cache/:fingerprint
//	GET  /govern/history/:entity_id
//	POST /govern/invalidate
//	GET  /govern/stats
func RegisterRoutes(rg *gin.RouterGroup, h *Handlers) {
	g := rg.Group("/govern")
	g.POST("/match", h.Match)
	g.GET("/cache/:fingerprint", h.CacheEntry)
	g.GET("/history/:entity_id", h.History)
	g.POST("/invalidate", h.Invalidate)
	g.GET("/stats", h.Stats)
}
