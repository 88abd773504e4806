// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers implements the HTTP handlers of the focus service.
//
// The session transition handler is stateless per request: it reads the
// current row, computes the requested transition from the server clock,
// writes back, and returns the canonical state. All time accounting lives
// in the engine package.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/FocusLocal/services/focus/datatypes"
	"github.com/AleutianAI/FocusLocal/services/focus/engine"
	"github.com/AleutianAI/FocusLocal/services/focus/middleware"
	"github.com/AleutianAI/FocusLocal/services/focus/observability"
	"github.com/AleutianAI/FocusLocal/services/focus/store"
)

// Clock supplies the authoritative server time. Injectable for tests.
type Clock func() time.Time

// SystemClock reads the wall clock in UTC.
func SystemClock() time.Time {
	return time.Now().UTC()
}

// HealthCheck reports service liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// requireAuth pulls the authenticated identity set by the auth middleware.
// Returns nil after writing a 401 when the request is unauthenticated.
func requireAuth(c *gin.Context) *middleware.AuthInfo {
	info := middleware.GetAuthInfo(c)
	if info == nil || info.UserID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil
	}
	return info
}

// metrics returns the process metrics instance, or nil when metrics were
// not initialized (unit tests).
func metrics() *observability.SessionMetrics {
	return observability.DefaultMetrics
}

// CreateSession handles POST /v1/sessions.
//
// # Description
//
// Validates the creation request, stamps the authoritative start time from
// the server clock, derives the expected end for planned sessions, and
// inserts the row as active. Returns 201 with the canonical session.
func CreateSession(st store.SessionStore, clock Clock) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := requireAuth(c)
		if auth == nil {
			return
		}

		var req datatypes.CreateSessionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		now := clock()
		s := datatypes.Session{
			ID:                     uuid.NewString(),
			UserID:                 auth.UserID,
			Goal:                   req.Goal,
			SessionType:            datatypes.SessionType(req.SessionType),
			PlannedDurationMinutes: req.DurationMinutes,
			StartTime:              now,
			Status:                 datatypes.StatusActive,
			Notes:                  req.Notes,
			Tags:                   req.Tags,
			CreatedAt:              now,
			UpdatedAt:              now,
		}
		if req.DurationMinutes > 0 {
			expected := now.Add(time.Duration(req.DurationMinutes) * time.Minute)
			s.ExpectedEndTime = &expected
		}

		if err := st.Insert(c.Request.Context(), s); err != nil {
			slog.Error("focus.handlers: failed to insert session",
				"session_id", s.ID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
			return
		}

		slog.Info("focus.handlers: session created",
			"session_id", s.ID, "user_id", s.UserID,
			"session_type", s.SessionType, "planned_minutes", s.PlannedDurationMinutes)
		if m := metrics(); m != nil {
			m.SessionsCreatedTotal.WithLabelValues(string(s.SessionType)).Inc()
			m.ActiveSessions.Inc()
		}
		c.JSON(http.StatusCreated, s)
	}
}

// TransitionSession handles PATCH /v1/sessions/:id.
//
// # Description
//
// Loads the row, verifies owner match, applies the requested transition
// against the server clock, persists, and returns the canonical row.
//
// # Status Codes
//
//   - 200: transition applied (or idempotent terminal no-op)
//   - 400: malformed body or unknown action
//   - 401: unauthenticated or owner mismatch
//   - 404: no row for id
//   - 409: transition precondition failed (pause off-active, resume off-paused)
//   - 500: storage failure
func TransitionSession(st store.SessionStore, clock Clock) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := requireAuth(c)
		if auth == nil {
			return
		}
		id := c.Param("id")

		var req datatypes.TransitionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			countTransition(req.Action, "invalid")
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		s, err := st.Get(c.Request.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			countTransition(req.Action, "not_found")
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		if err != nil {
			slog.Error("focus.handlers: failed to read session", "session_id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read session"})
			return
		}
		if s.UserID != auth.UserID {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		wasTerminal := s.Status.Terminal()
		next, err := engine.Apply(s, req, clock())
		if err != nil {
			countTransition(req.Action, "invalid")
			switch {
			case errors.Is(err, engine.ErrNotActive), errors.Is(err, engine.ErrNotPaused):
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			default:
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			}
			return
		}

		if err := st.Update(c.Request.Context(), next); err != nil {
			slog.Error("focus.handlers: failed to update session",
				"session_id", id, "action", req.Action, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update session"})
			return
		}

		slog.Info("focus.handlers: session transition applied",
			"session_id", id, "action", req.Action,
			"status", next.Status, "elapsed_seconds", next.ElapsedSeconds)
		countTransition(req.Action, "success")
		if m := metrics(); m != nil && !wasTerminal && next.Status.Terminal() {
			m.ActiveSessions.Dec()
			m.SessionsFinishedTotal.WithLabelValues(string(next.CompletionType)).Inc()
			m.SessionElapsedSeconds.Observe(float64(next.ElapsedSeconds))
		}
		c.JSON(http.StatusOK, next)
	}
}

// GetSession handles GET /v1/sessions/:id.
func GetSession(st store.SessionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := requireAuth(c)
		if auth == nil {
			return
		}

		s, err := st.Get(c.Request.Context(), c.Param("id"))
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		if err != nil {
			slog.Error("focus.handlers: failed to read session",
				"session_id", c.Param("id"), "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read session"})
			return
		}
		if s.UserID != auth.UserID {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.JSON(http.StatusOK, s)
	}
}

// ListSessions handles GET /v1/sessions.
//
// Query parameters: from, to (RFC 3339), limit, offset. Finished rows below
// the discard threshold never appear; that filter lives in the store.
func ListSessions(st store.SessionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := requireAuth(c)
		if auth == nil {
			return
		}

		q, err := parseListQuery(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		rows, err := st.List(c.Request.Context(), auth.UserID, q)
		if err != nil {
			slog.Error("focus.handlers: failed to list sessions",
				"user_id", auth.UserID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list sessions"})
			return
		}
		c.JSON(http.StatusOK, datatypes.ListSessionsResponse{
			Sessions: rows,
			Total:    len(rows),
		})
	}
}

// DeleteSession handles DELETE /v1/sessions/:id.
func DeleteSession(st store.SessionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := requireAuth(c)
		if auth == nil {
			return
		}
		id := c.Param("id")

		s, err := st.Get(c.Request.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read session"})
			return
		}
		if s.UserID != auth.UserID {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		if err := st.Delete(c.Request.Context(), id); err != nil {
			slog.Error("focus.handlers: failed to delete session", "session_id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete session"})
			return
		}
		if m := metrics(); m != nil && !s.Status.Terminal() {
			m.ActiveSessions.Dec()
		}
		slog.Info("focus.handlers: session deleted", "session_id", id, "user_id", auth.UserID)
		c.JSON(http.StatusOK, gin.H{"status": "success", "deleted_session_id": id})
	}
}

func countTransition(action, status string) {
	if m := metrics(); m != nil {
		m.TransitionsTotal.WithLabelValues(action, status).Inc()
	}
}

func parseListQuery(c *gin.Context) (datatypes.ListSessionsQuery, error) {
	var q datatypes.ListSessionsQuery

	if raw := c.Query("from"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return q, errors.New("invalid 'from' timestamp, want RFC 3339")
		}
		q.From = &ts
	}
	if raw := c.Query("to"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return q, errors.New("invalid 'to' timestamp, want RFC 3339")
		}
		q.To = &ts
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return q, errors.New("invalid 'limit'")
		}
		q.Limit = n
	}
	if raw := c.Query("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return q, errors.New("invalid 'offset'")
		}
		q.Offset = n
	}
	return q, nil
}
