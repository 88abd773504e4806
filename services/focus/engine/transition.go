// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine implements the authoritative session transition table.
//
// # Description
//
// All functions are pure: they take the current row and a wall-clock instant
// and return the next row. The HTTP layer owns reading and writing rows; this
// package owns the time accounting.
//
// # Start-Time Shift
//
// Elapsed time is always computable as floor((now-StartTime)/1s) while a
// session is active. On resume, StartTime is shifted forward to
// now - elapsed*1s, which keeps that property without a separate paused
// duration accumulator, across arbitrarily many pause/resume cycles.
//
// # Thread Safety
//
// Pure functions, safe for concurrent use.
package engine

import (
	"fmt"
	"time"

	"github.com/AleutianAI/FocusLocal/services/focus/datatypes"
)

// Transition errors. The HTTP layer maps these to status codes.
var (
	// ErrNotActive is returned when pause is requested off-state.
	ErrNotActive = fmt.Errorf("session is not active")

	// ErrNotPaused is returned when resume is requested off-state.
	ErrNotPaused = fmt.Errorf("session is not paused")
)

// ElapsedSeconds computes whole elapsed seconds since start, clamped at zero.
func ElapsedSeconds(now, start time.Time) int64 {
	d := now.Sub(start)
	if d < 0 {
		return 0
	}
	return int64(d / time.Second)
}

// ShiftedStart returns the start time that makes elapsed recomputable as
// floor((now-start)/1s) after a resume.
func ShiftedStart(now time.Time, elapsedSeconds int64) time.Time {
	return now.Add(-time.Duration(elapsedSeconds) * time.Second)
}

// Classify determines how a finished session relates to its planned end.
//
// # Description
//
// A nil expected end (open sessions) always classifies as completed. Otherwise
// the actual end is compared against the expected end with a tolerance of
// CompletionToleranceSeconds on both sides, so a session finishing within a
// minute of plan is not misclassified by network or tick latency.
//
// # Inputs
//
//   - expectedEnd: Planned end time, or nil when none was set.
//   - actualEnd: Wall-clock instant the session ended.
//
// # Outputs
//
//   - datatypes.CompletionType: completed, premature, or overtime.
func Classify(expectedEnd *time.Time, actualEnd time.Time) datatypes.CompletionType {
	if expectedEnd == nil {
		return datatypes.CompletionCompleted
	}
	tolerance := time.Duration(datatypes.CompletionToleranceSeconds) * time.Second
	diff := actualEnd.Sub(*expectedEnd)
	switch {
	case diff < -tolerance:
		return datatypes.CompletionPremature
	case diff > tolerance:
		return datatypes.CompletionOvertime
	default:
		return datatypes.CompletionCompleted
	}
}

// Apply executes one transition against a session row.
//
// # Description
//
// Implements the transition table:
//
//	action     | precondition  | elapsed                  | status    | extra
//	pause      | status=active | floor((now-start)/1s)    | paused    | -
//	resume     | status=paused | unchanged                | active    | start = now - elapsed*1s
//	complete   | any           | floor((now-start)/1s)    | completed | end=now, classify
//	stop       | any           | floor((now-start)/1s)    | stopped   | end=now, classify
//	updateMeta | any           | unchanged                | unchanged | merge notes/quality/tags
//
// ElapsedSeconds is clamped so it never decreases across any transition.
// Complete and stop on an already-terminal row are idempotent no-ops: the row
// is returned unchanged rather than re-finalized, which preserves elapsed
// monotonicity when a finalize request is retried after a long delay.
//
// # Inputs
//
//   - s: Current row. Not mutated; a copy is transformed.
//   - req: The validated transition request.
//   - now: Authoritative server clock reading.
//
// # Outputs
//
//   - datatypes.Session: The next row.
//   - error: ErrNotActive/ErrNotPaused on precondition failure, or
//     datatypes.ErrInvalidAction for unknown actions.
func Apply(s datatypes.Session, req datatypes.TransitionRequest, now time.Time) (datatypes.Session, error) {
	next := s
	next.UpdatedAt = now

	switch datatypes.Action(req.Action) {
	case datatypes.ActionPause:
		if s.Status != datatypes.StatusActive {
			return s, ErrNotActive
		}
		next.ElapsedSeconds = clampElapsed(s.ElapsedSeconds, ElapsedSeconds(now, s.StartTime))
		next.Status = datatypes.StatusPaused

	case datatypes.ActionResume:
		if s.Status != datatypes.StatusPaused {
			return s, ErrNotPaused
		}
		next.StartTime = ShiftedStart(now, s.ElapsedSeconds)
		next.Status = datatypes.StatusActive

	case datatypes.ActionComplete:
		if s.Status.Terminal() {
			return s, nil
		}
		finalize(&next, s, now, datatypes.StatusCompleted)
		mergeMeta(&next, req)

	case datatypes.ActionStop:
		if s.Status.Terminal() {
			return s, nil
		}
		finalize(&next, s, now, datatypes.StatusStopped)
		mergeMeta(&next, req)

	case datatypes.ActionUpdateMeta:
		mergeMeta(&next, req)

	default:
		return s, datatypes.ErrInvalidAction
	}

	return next, nil
}

// finalize freezes elapsed time, stamps the end, and classifies the outcome.
// A paused session keeps its frozen elapsed count; an active one is charged
// up to now.
func finalize(next *datatypes.Session, s datatypes.Session, now time.Time, status datatypes.Status) {
	if s.Status == datatypes.StatusActive {
		next.ElapsedSeconds = clampElapsed(s.ElapsedSeconds, ElapsedSeconds(now, s.StartTime))
	}
	end := now
	next.EndTime = &end
	next.Status = status
	next.CompletionType = Classify(s.ExpectedEndTime, now)
}

// mergeMeta copies the optional metadata fields into the row. Absent pointer
// fields leave the row untouched; tags are replaced wholesale and never
// deduplicated.
func mergeMeta(next *datatypes.Session, req datatypes.TransitionRequest) {
	if req.Notes != nil {
		next.Notes = *req.Notes
	}
	if req.DeepWorkQuality != nil {
		next.DeepWorkQuality = *req.DeepWorkQuality
	}
	if req.Tags != nil {
		next.Tags = append([]string(nil), (*req.Tags)...)
	}
}

func clampElapsed(prev, computed int64) int64 {
	if computed < prev {
		return prev
	}
	return computed
}
