// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/FocusLocal/services/focus/observability"
)

const (
	// DefaultRequestsPerMinute is the per-client mutation budget.
	DefaultRequestsPerMinute = 60

	// DefaultBurst allows short bursts above the sustained rate, which
	// covers a bootstrap fetch followed by an immediate transition.
	DefaultBurst = 10

	// clientIdleEviction is how long an idle client entry survives before
	// the sweep reclaims it.
	clientIdleEviction = 10 * time.Minute

	// limiterSweepInterval bounds how often the idle sweep runs.
	limiterSweepInterval = time.Minute
)

// clientLimiter pairs a token bucket with its last activity time.
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter tracks one token bucket per client IP.
//
// # Description
//
// Rejects bursts above a fixed request budget with 429. This is independent
// of the idempotency cache: idempotency protects against duplicate intent
// while rate limiting protects against volume. State is process-local with
// lazy expiry sweeps on access, best-effort by design.
//
// # Thread Safety
//
// All methods are safe for concurrent use.
type RateLimiter struct {
	mu        sync.Mutex
	clients   map[string]*clientLimiter
	limit     rate.Limit
	burst     int
	lastSweep time.Time
	now       func() time.Time
}

// NewRateLimiter creates a limiter allowing requestsPerMinute sustained
// requests per client with the given burst. Non-positive inputs fall back
// to the defaults.
func NewRateLimiter(requestsPerMinute, burst int) *RateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = DefaultRequestsPerMinute
	}
	if burst <= 0 {
		burst = DefaultBurst
	}
	return &RateLimiter{
		clients: make(map[string]*clientLimiter),
		limit:   rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:   burst,
		now:     time.Now,
	}
}

// Allow reports whether the client identified by key may proceed.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.sweepLocked()

	entry, ok := rl.clients[key]
	if !ok {
		entry = &clientLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[key] = entry
	}
	entry.lastSeen = rl.now()
	return entry.limiter.Allow()
}

// ClientCount reports the number of tracked clients (for tests and metrics).
func (rl *RateLimiter) ClientCount() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// sweepLocked evicts idle clients, at most once per sweep interval.
// Caller must hold rl.mu.
func (rl *RateLimiter) sweepLocked() {
	now := rl.now()
	if now.Sub(rl.lastSweep) < limiterSweepInterval {
		return
	}
	rl.lastSweep = now
	for key, entry := range rl.clients {
		if now.Sub(entry.lastSeen) > clientIdleEviction {
			delete(rl.clients, key)
		}
	}
}

// RateLimit creates a Gin middleware gating requests per client IP.
//
// Rejected requests receive 429 with a Retry-After hint. The client is
// expected to back off and retry; its idempotency key keeps the retried
// mutation safe.
func RateLimit(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Allow(c.ClientIP()) {
			if m := observability.DefaultMetrics; m != nil {
				m.RateLimitedTotal.Inc()
			}
			c.Header("Retry-After", strconv.Itoa(int(time.Minute/time.Second)))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
