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
	"bytes"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/FocusLocal/services/focus/observability"
)

// IdempotencyKeyHeader is the request header carrying the client's
// idempotency key. Its absence degrades to non-idempotent behavior: the
// request is processed normally with duplicate risk.
const IdempotencyKeyHeader = "Idempotency-Key"

// idempotentReplayHeader marks responses served from the cache.
const idempotentReplayHeader = "X-Idempotent-Replay"

const (
	// DefaultIdempotencyTTL is how long a handled key short-circuits retries.
	DefaultIdempotencyTTL = 10 * time.Minute

	// defaultSweepInterval bounds how often expired entries are collected.
	defaultSweepInterval = time.Minute

	// maxCachedBodyBytes caps the stored response size. Responses larger
	// than this are not cached; a replayed key then re-executes.
	maxCachedBodyBytes = 64 * 1024
)

// cachedResponse is one recorded mutation outcome.
type cachedResponse struct {
	status      int
	contentType string
	body        []byte
	storedAt    time.Time
}

// IdempotencyCache is a bounded, time-windowed map from idempotency key to
// the response of the mutation that first carried it.
//
// # Description
//
// A repeated key within the TTL short-circuits to the original success
// response without re-executing the transition. This protects against
// duplicate submits from double-clicks and retry storms. The cache is
// process-local and best-effort: it does not survive restarts, which is
// acceptable for a single-instance deployment.
//
// Expired entries are collected by a lazy sweep on access, bounded to at
// most once per sweep interval. Construct one per process and inject it;
// this is deliberately not ambient global state so a shared store can be
// swapped in for a multi-instance deployment.
//
// # Thread Safety
//
// All methods are safe for concurrent use.
type IdempotencyCache struct {
	mu        sync.Mutex
	entries   map[string]cachedResponse
	ttl       time.Duration
	lastSweep time.Time
	now       func() time.Time
}

// NewIdempotencyCache creates a cache with the given TTL.
// A non-positive TTL falls back to DefaultIdempotencyTTL.
func NewIdempotencyCache(ttl time.Duration) *IdempotencyCache {
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	return &IdempotencyCache{
		entries: make(map[string]cachedResponse),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Lookup returns the recorded response for key, if present and fresh.
func (ic *IdempotencyCache) Lookup(key string) (cachedResponse, bool) {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	ic.sweepLocked()

	entry, ok := ic.entries[key]
	if !ok {
		return cachedResponse{}, false
	}
	if ic.now().Sub(entry.storedAt) > ic.ttl {
		delete(ic.entries, key)
		return cachedResponse{}, false
	}
	return entry, true
}

// Record stores the outcome of a handled mutation under key.
func (ic *IdempotencyCache) Record(key string, entry cachedResponse) {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	entry.storedAt = ic.now()
	ic.entries[key] = entry
}

// Len reports the current number of cached entries (for tests and metrics).
func (ic *IdempotencyCache) Len() int {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	return len(ic.entries)
}

// sweepLocked removes expired entries, at most once per sweep interval.
// Caller must hold ic.mu.
func (ic *IdempotencyCache) sweepLocked() {
	now := ic.now()
	if now.Sub(ic.lastSweep) < defaultSweepInterval {
		return
	}
	ic.lastSweep = now
	for key, entry := range ic.entries {
		if now.Sub(entry.storedAt) > ic.ttl {
			delete(ic.entries, key)
		}
	}
}

// bodyCapture wraps the Gin response writer to retain a copy of the
// response body for replay.
type bodyCapture struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *bodyCapture) Write(b []byte) (int, error) {
	if w.buf.Len() < maxCachedBodyBytes {
		w.buf.Write(b)
	}
	return w.ResponseWriter.Write(b)
}

func (w *bodyCapture) WriteString(s string) (int, error) {
	if w.buf.Len() < maxCachedBodyBytes {
		w.buf.WriteString(s)
	}
	return w.ResponseWriter.WriteString(s)
}

// Idempotency creates a Gin middleware that replays previously handled
// mutations.
//
// # Description
//
// Reads the Idempotency-Key header. Without a key the request passes
// through untouched. With a key, a cache hit replays the original status
// and body (marked with X-Idempotent-Replay: true) without invoking the
// handler; a miss runs the handler, then records 2xx responses for the
// TTL window. Failed requests are never recorded, so a retry after an
// error re-executes the transition.
//
// Idempotency protects against duplicate intent. Volume abuse is the rate
// limiter's job; the two gates are independent.
func Idempotency(cache *IdempotencyCache) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(IdempotencyKeyHeader)
		if key == "" {
			c.Next()
			return
		}

		// Scope cached entries to the authenticated caller so one user's
		// key can never replay another user's session row.
		if auth := GetAuthInfo(c); auth != nil {
			key = auth.UserID + ":" + key
		}

		if entry, ok := cache.Lookup(key); ok {
			if m := observability.DefaultMetrics; m != nil {
				m.IdempotentReplaysTotal.Inc()
			}
			c.Header(idempotentReplayHeader, "true")
			c.Data(entry.status, entry.contentType, entry.body)
			c.Abort()
			return
		}

		capture := &bodyCapture{ResponseWriter: c.Writer}
		c.Writer = capture
		c.Next()
		c.Writer = capture.ResponseWriter

		status := capture.Status()
		if status >= http.StatusOK && status < http.StatusMultipleChoices &&
			capture.buf.Len() <= maxCachedBodyBytes {
			cache.Record(key, cachedResponse{
				status:      status,
				contentType: capture.Header().Get("Content-Type"),
				body:        append([]byte(nil), capture.buf.Bytes()...),
			})
		}
	}
}
