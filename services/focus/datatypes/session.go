// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides data structures for the focus service.
//
// This file contains the authoritative Session row plus the request and
// response types for the session endpoints. The Session row is shared with
// the CLI client, which deserializes the same JSON shape.
package datatypes

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Domain Constants
// =============================================================================

const (
	// DiscardThresholdSeconds is the minimum elapsed time for a finished
	// session to appear in history queries. Sessions stopped earlier than
	// this are kept as rows but excluded from list results.
	DiscardThresholdSeconds = 300

	// OpenSessionCapSeconds is the hard ceiling for open-ended sessions.
	// An open session reaching this cap is auto-stopped by the client.
	OpenSessionCapSeconds = 4 * 60 * 60

	// CompletionToleranceSeconds is the window around the expected end time
	// within which a finished session still classifies as "completed".
	// Absorbs network and tick latency so a session ending within a minute
	// of plan is not misclassified.
	CompletionToleranceSeconds = 60

	// MaxGoalBytes caps the goal string size.
	MaxGoalBytes = 1024

	// MaxNotesBytes caps the notes string size.
	MaxNotesBytes = 16 * 1024

	// MaxPlannedMinutes caps the planned duration of a session.
	MaxPlannedMinutes = 240

	// MaxTags caps the number of tags on a session.
	MaxTags = 16
)

// =============================================================================
// Enumerations
// =============================================================================

// SessionType identifies the timing mode of a session.
type SessionType string

const (
	SessionTimeBoxed SessionType = "time-boxed"
	SessionOpen      SessionType = "open"
	SessionPomodoro  SessionType = "pomodoro"
)

// Valid reports whether t is a known session type.
func (t SessionType) Valid() bool {
	switch t {
	case SessionTimeBoxed, SessionOpen, SessionPomodoro:
		return true
	}
	return false
}

// RequiresDuration reports whether this session type needs a planned duration.
func (t SessionType) RequiresDuration() bool {
	return t == SessionTimeBoxed || t == SessionPomodoro
}

// Status is the lifecycle state of a session row.
type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusStopped   Status = "stopped"
)

// Terminal reports whether the status is a terminal state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusStopped
}

// CompletionType classifies how a session ended relative to its plan.
// Empty while the session is active or paused.
type CompletionType string

const (
	CompletionCompleted CompletionType = "completed"
	CompletionPremature CompletionType = "premature"
	CompletionOvertime  CompletionType = "overtime"
)

// Action is a requested server-side transition.
type Action string

const (
	ActionPause      Action = "pause"
	ActionResume     Action = "resume"
	ActionComplete   Action = "complete"
	ActionStop       Action = "stop"
	ActionUpdateMeta Action = "updateMeta"
)

// =============================================================================
// Session Row
// =============================================================================

// Session is the authoritative record of one timed focus-work session.
//
// # Description
//
// Exactly one row exists per logical session. Timestamps are UTC. While the
// session is active, ElapsedSeconds is computable as floor((now-StartTime)/1s)
// because resume shifts StartTime forward by the paused duration instead of
// keeping a separate pause accumulator.
//
// # Invariants
//
//   - ElapsedSeconds never decreases across any transition.
//   - CompletionType is empty while Status is active or paused.
//   - StartTime only moves forward in time, never backward.
type Session struct {
	ID                     string         `json:"id"`
	UserID                 string         `json:"user_id"`
	Goal                   string         `json:"goal"`
	SessionType            SessionType    `json:"session_type"`
	PlannedDurationMinutes int            `json:"planned_duration_minutes,omitempty"`
	StartTime              time.Time      `json:"start_time"`
	ExpectedEndTime        *time.Time     `json:"expected_end_time,omitempty"`
	EndTime                *time.Time     `json:"end_time,omitempty"`
	ElapsedSeconds         int64          `json:"elapsed_seconds"`
	Status                 Status         `json:"status"`
	CompletionType         CompletionType `json:"completion_type,omitempty"`
	DeepWorkQuality        int            `json:"deep_work_quality,omitempty"`
	Notes                  string         `json:"notes,omitempty"`
	Tags                   []string       `json:"tags,omitempty"`
	CreatedAt              time.Time      `json:"created_at"`
	UpdatedAt              time.Time      `json:"updated_at"`
}

// =============================================================================
// Shared Validator Instance
// =============================================================================

// sessionValidate is the validator instance for session datatypes.
// Initialized in init() with custom validators.
var sessionValidate *validator.Validate

func init() {
	sessionValidate = validator.New()
	_ = sessionValidate.RegisterValidation("sessiontype", validateSessionType)
	_ = sessionValidate.RegisterValidation("maxgoalbytes", validateMaxGoalBytes)
	_ = sessionValidate.RegisterValidation("maxnotesbytes", validateMaxNotesBytes)
}

// validateSessionType validates that the field is a known SessionType.
func validateSessionType(fl validator.FieldLevel) bool {
	return SessionType(fl.Field().String()).Valid()
}

// validateMaxGoalBytes checks byte length (not rune count) so oversized
// payloads are rejected before they reach storage.
func validateMaxGoalBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxGoalBytes
}

func validateMaxNotesBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxNotesBytes
}

// =============================================================================
// Request Types
// =============================================================================

// CreateSessionRequest is the body for POST /v1/sessions.
//
// # Validation
//
// Uses go-playground/validator:
//   - Goal: required, non-empty, max 1KB
//   - SessionType: required, one of time-boxed | open | pomodoro
//   - DurationMinutes: 0-240; required semantics for time-boxed/pomodoro are
//     enforced in Validate(), not by tag, since they depend on SessionType
//   - Tags: max 16 entries; the server does not deduplicate
type CreateSessionRequest struct {
	Goal            string   `json:"goal" validate:"required,maxgoalbytes"`
	SessionType     string   `json:"session_type" validate:"required,sessiontype"`
	DurationMinutes int      `json:"duration_minutes,omitempty" validate:"gte=0,lte=240"`
	Notes           string   `json:"notes,omitempty" validate:"maxnotesbytes"`
	Tags            []string `json:"tags,omitempty" validate:"max=16,dive,min=1,max=64"`
}

// Validate checks structural constraints plus the cross-field rule that
// time-boxed and pomodoro sessions carry a positive planned duration.
func (r *CreateSessionRequest) Validate() error {
	if err := sessionValidate.Struct(r); err != nil {
		return err
	}
	if SessionType(r.SessionType).RequiresDuration() && r.DurationMinutes <= 0 {
		return ErrDurationRequired
	}
	return nil
}

// TransitionRequest is the body for PATCH /v1/sessions/{id}.
//
// Action selects the transition; the meta fields are only read for
// complete/stop/updateMeta. Pointer fields distinguish "absent" from
// "set to zero value" so a PATCH can clear or skip individual fields.
type TransitionRequest struct {
	Action          string    `json:"action" validate:"required"`
	Notes           *string   `json:"notes,omitempty"`
	DeepWorkQuality *int      `json:"deep_work_quality,omitempty"`
	Tags            *[]string `json:"tags,omitempty"`
}

// Validate checks the action name and the optional meta fields.
func (r *TransitionRequest) Validate() error {
	if err := sessionValidate.Struct(r); err != nil {
		return err
	}
	switch Action(r.Action) {
	case ActionPause, ActionResume, ActionComplete, ActionStop, ActionUpdateMeta:
	default:
		return ErrInvalidAction
	}
	if r.DeepWorkQuality != nil && (*r.DeepWorkQuality < 1 || *r.DeepWorkQuality > 10) {
		return ErrQualityOutOfRange
	}
	if r.Notes != nil && len(*r.Notes) > MaxNotesBytes {
		return ErrNotesTooLarge
	}
	if r.Tags != nil && len(*r.Tags) > MaxTags {
		return ErrTooManyTags
	}
	return nil
}

// ListSessionsQuery carries the query parameters for GET /v1/sessions.
type ListSessionsQuery struct {
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

// ListSessionsResponse is the body for GET /v1/sessions.
type ListSessionsResponse struct {
	Sessions []Session `json:"sessions"`
	Total    int       `json:"total"`
}
