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

	"github.com/AleutianAI/FocusLocal/services/focus/handlers"
	"github.com/AleutianAI/FocusLocal/services/focus/middleware"
	"github.com/AleutianAI/FocusLocal/services/focus/store"
)

// Deps carries the injected components the routes are wired with. The
// idempotency cache and rate limiter are constructed at process start and
// owned by main; they are deliberately not ambient global state.
type Deps struct {
	Store       store.SessionStore
	Auth        middleware.AuthProvider
	Idempotency *middleware.IdempotencyCache
	Limiter     *middleware.RateLimiter
	Clock       handlers.Clock
}

// SetupRoutes registers all endpoints on the router.
//
// The gate order on mutations is rate limiter, then auth, then idempotency:
// volume abuse is rejected before any work, and replayed responses are only
// served to authenticated callers.
func SetupRoutes(router *gin.Engine, deps Deps) {
	clock := deps.Clock
	if clock == nil {
		clock = handlers.SystemClock
	}

	router.GET("/healthz", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	v1.Use(middleware.RateLimit(deps.Limiter))
	v1.Use(middleware.AuthMiddleware(deps.Auth))
	{
		sessions := v1.Group("/sessions")
		{
			sessions.POST("", middleware.Idempotency(deps.Idempotency),
				handlers.CreateSession(deps.Store, clock))
			sessions.PATCH("/:id", middleware.Idempotency(deps.Idempotency),
				handlers.TransitionSession(deps.Store, clock))
			sessions.GET("", handlers.ListSessions(deps.Store))
			sessions.GET("/:id", handlers.GetSession(deps.Store))
			sessions.DELETE("/:id", handlers.DeleteSession(deps.Store))
		}
	}
}
