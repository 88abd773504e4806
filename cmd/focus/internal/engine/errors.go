// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import "errors"

// Machine precondition errors.
var (
	// ErrNoSession is returned when a command needs a live session and the
	// machine has none.
	ErrNoSession = errors.New("no session in progress")

	// ErrSessionActive is returned when starting while a session is already
	// in progress. One session at a time.
	ErrSessionActive = errors.New("a session is already in progress")

	// ErrBelowDiscardThreshold signals that stopping now would discard the
	// session from history. Callers should confirm before forcing the stop.
	ErrBelowDiscardThreshold = errors.New("session is below the discard threshold")

	// ErrNothingToSave is returned by a save when no completed session is
	// waiting to be written.
	ErrNothingToSave = errors.New("no completed session pending save")

	// ErrWrongState is returned when a transition does not apply to the
	// machine's current state.
	ErrWrongState = errors.New("transition not valid in the current state")
)

// Server response errors. The API client maps HTTP status codes onto these
// so callers branch on sentinels instead of status integers.
var (
	ErrValidation   = errors.New("the server rejected the request")
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("session not found on the server")
	ErrConflict     = errors.New("the session is not in the right state on the server")
	ErrRateLimited  = errors.New("rate limited by the server")
	ErrServer       = errors.New("server error")
)
