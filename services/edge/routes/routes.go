// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jinterlante1206/AleutianRelay/services/cache"
	"github.com/jinterlante1206/AleutianRelay/services/edge/connections"
	"github.com/jinterlante1206/AleutianRelay/services/edge/handlers"
	"github.com/jinterlante1206/AleutianRelay/services/edge/observability"
	"github.com/jinterlante1206/AleutianRelay/services/streams"
)

func SetupRoutes(router *gin.Engine, store cache.Store, producer streams.Producer,
	registry *connections.Manager, metrics *observability.RelayMetrics, inboundChannel string) {

	router.GET("/health", handlers.HealthCheck)
	router.GET("/test", handlers.APIOnline)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	{
		v1.POST("/token", handlers.GenerateToken(store, metrics))
		v1.POST("/refresh_token", handlers.RefreshToken(store))
		v1.GET("/chat/ws", handlers.HandleChatWebSocket(producer, registry, metrics, inboundChannel))
		// Session administration routes
		sessions := v1.Group("/sessions")
		{
			sessions.GET("/:token/history", handlers.GetSessionHistory(store))
		}
	}
}
