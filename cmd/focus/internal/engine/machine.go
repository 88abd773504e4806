// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine drives the client side of a focus session.
//
// The machine mirrors the server's session lifecycle locally so the CLI can
// render state without a network round trip, survive crashes through the
// snapshot store, and defer the final completion write when the user
// finishes a session offline. The server remains authoritative: every
// transition that reaches it returns the canonical row and the machine
// adopts it.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/AleutianAI/FocusLocal/services/focus/datatypes"
)

// State is the machine's position in the session lifecycle.
type State string

const (
	StateIdle      State = "idle"
	StateActive    State = "active"
	StatePaused    State = "paused"
	StateCompleted State = "completed"
	StateStopped   State = "stopped"
)

// TickEvent reports what a tick did.
type TickEvent int

const (
	// TickNone: the machine is not running, nothing happened.
	TickNone TickEvent = iota

	// TickAdvanced: one second of work was counted.
	TickAdvanced

	// TickAutoCompleted: a planned session hit its duration and was
	// completed locally. The pending save still has to be flushed.
	TickAutoCompleted

	// TickCapReached: an open session hit the hard cap. The caller should
	// stop it on the server.
	TickCapReached
)

// Machine is the client session state machine.
//
// # Description
//
// Transitions are optimistic: the local state moves first and is rolled
// back if the server rejects the call, so the CLI never shows a state the
// server then contradicts for longer than one round trip. Every local
// change is snapshotted before the network call, which is what makes crash
// recovery work: the snapshot always holds the most recent intent.
//
// # Thread Safety
//
// All methods are safe for concurrent use. The tick loop and command
// handlers may run on different goroutines.
type Machine struct {
	mu        sync.Mutex
	api       SessionAPI
	snapshots SnapshotStore
	clock     func() time.Time

	state State
	snap  Snapshot
}

// NewMachine builds an idle machine. A nil clock uses wall time in UTC.
func NewMachine(api SessionAPI, snapshots SnapshotStore, clock func() time.Time) *Machine {
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &Machine{
		api:       api,
		snapshots: snapshots,
		clock:     clock,
		state:     StateIdle,
	}
}

// State returns the machine's current lifecycle state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Current returns a copy of the tracked session, and whether one exists.
func (m *Machine) Current() (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateIdle {
		return Snapshot{}, false
	}
	return m.snap, true
}

// localElapsed computes the seconds of work accumulated so far, never less
// than the last tick count. For a running session the wall clock wins when
// it is ahead, which covers process restarts and missed ticks. Clamped to
// the session's cap.
//
// Caller must hold m.mu.
func (m *Machine) localElapsed() int64 {
	elapsed := m.snap.ElapsedSeconds
	if m.state == StateActive {
		if fromClock := int64(m.clock().Sub(m.snap.StartTime) / time.Second); fromClock > elapsed {
			elapsed = fromClock
		}
	}
	if ceiling := m.snap.capSeconds(); elapsed > ceiling {
		elapsed = ceiling
	}
	return elapsed
}

// Start begins a new session on the server.
//
// Fails with ErrSessionActive while another session is in progress or a
// finished one is still waiting to be saved. One session at a time.
func (m *Machine) Start(ctx context.Context, req datatypes.CreateSessionRequest) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateActive || m.state == StatePaused || m.snap.NeedsSave {
		return Snapshot{}, ErrSessionActive
	}
	if err := req.Validate(); err != nil {
		return Snapshot{}, err
	}

	row, err := m.api.Create(ctx, req, NewIdempotencyKey("create"))
	if err != nil {
		return Snapshot{}, err
	}

	m.snap = fromSession(row)
	m.state = StateActive
	if err := m.snapshots.Set(m.snap); err != nil {
		slog.Warn("focus.engine: failed to write snapshot", "session_id", m.snap.ID, "error", err)
	}
	return m.snap, nil
}

// Pause suspends the running session.
func (m *Machine) Pause(ctx context.Context) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateActive {
		return Snapshot{}, ErrWrongState
	}

	prev := m.snap
	m.snap.ElapsedSeconds = m.localElapsed()
	m.snap.Status = datatypes.StatusPaused
	m.state = StatePaused
	m.persistLocked()

	row, err := m.api.Transition(ctx, m.snap.ID,
		datatypes.TransitionRequest{Action: string(datatypes.ActionPause)},
		NewIdempotencyKey("pause"))
	if err != nil {
		m.rollbackLocked(prev, StateActive)
		return Snapshot{}, err
	}
	m.adoptLocked(row)
	return m.snap, nil
}

// Resume restarts a paused session. The server shifts the start time so
// pause gaps are never charged; the machine adopts the shifted row.
func (m *Machine) Resume(ctx context.Context) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StatePaused {
		return Snapshot{}, ErrWrongState
	}

	prev := m.snap
	m.snap.StartTime = m.clock().Add(-time.Duration(m.snap.ElapsedSeconds) * time.Second)
	m.snap.Status = datatypes.StatusActive
	m.state = StateActive
	m.persistLocked()

	row, err := m.api.Transition(ctx, m.snap.ID,
		datatypes.TransitionRequest{Action: string(datatypes.ActionResume)},
		NewIdempotencyKey("resume"))
	if err != nil {
		m.rollbackLocked(prev, StatePaused)
		return Snapshot{}, err
	}
	m.adoptLocked(row)
	return m.snap, nil
}

// Stop ends the session early on the server.
//
// Below the discard threshold the stop is refused with
// ErrBelowDiscardThreshold unless force is set, giving the caller room to
// confirm that the session will vanish from history.
func (m *Machine) Stop(ctx context.Context, force bool) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateActive && m.state != StatePaused {
		return Snapshot{}, ErrWrongState
	}
	if !force && m.localElapsed() < datatypes.DiscardThresholdSeconds {
		return Snapshot{}, ErrBelowDiscardThreshold
	}

	row, err := m.api.Transition(ctx, m.snap.ID,
		datatypes.TransitionRequest{Action: string(datatypes.ActionStop)},
		NewIdempotencyKey("stop"))
	if err != nil {
		return Snapshot{}, err
	}

	m.snap = fromSession(row)
	m.state = StateStopped
	m.clearSnapshotLocked()
	return m.snap, nil
}

// CompleteLocal finishes the session without touching the network.
//
// # Description
//
// The session freezes exactly as the user sees it: status completed, end
// time now, elapsed locked in, and NeedsSave set. The authoritative server
// write happens later through SaveCompleted, possibly after a restart.
// This is the path that makes completion instant and offline-safe.
func (m *Machine) CompleteLocal() (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateActive && m.state != StatePaused {
		return Snapshot{}, ErrWrongState
	}

	now := m.clock()
	m.snap.ElapsedSeconds = m.localElapsed()
	m.snap.Status = datatypes.StatusCompleted
	m.snap.EndTime = &now
	m.snap.NeedsSave = true
	m.state = StateCompleted
	m.persistLocked()

	slog.Info("focus.engine: session completed locally, save pending",
		"session_id", m.snap.ID, "elapsed_seconds", m.snap.ElapsedSeconds)
	return m.snap, nil
}

// SaveCompleted flushes a locally completed session to the server.
//
// On success the snapshot is cleared and the machine holds the canonical
// terminal row. On failure the pending snapshot survives untouched so the
// save can be retried, including from a fresh process.
func (m *Machine) SaveCompleted(ctx context.Context) (datatypes.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.snap.NeedsSave {
		return datatypes.Session{}, ErrNothingToSave
	}

	req := datatypes.TransitionRequest{Action: string(datatypes.ActionComplete)}
	if m.snap.Notes != "" {
		notes := m.snap.Notes
		req.Notes = &notes
	}
	if m.snap.DeepWorkQuality != 0 {
		quality := m.snap.DeepWorkQuality
		req.DeepWorkQuality = &quality
	}
	if len(m.snap.Tags) > 0 {
		tags := append([]string(nil), m.snap.Tags...)
		req.Tags = &tags
	}

	row, err := m.api.Transition(ctx, m.snap.ID, req, NewIdempotencyKey("complete"))
	if err != nil {
		return datatypes.Session{}, err
	}

	m.snap = fromSession(row)
	m.state = StateCompleted
	m.clearSnapshotLocked()
	slog.Info("focus.engine: pending save flushed",
		"session_id", row.ID, "completion_type", row.CompletionType)
	return row, nil
}

// UpdateMeta attaches notes, a quality rating, or tags to the session.
//
// While a completed session is waiting to be saved the update is merged
// into the pending snapshot only; the deferred completion write will carry
// it. Otherwise the update goes straight to the server.
func (m *Machine) UpdateMeta(ctx context.Context, notes *string, quality *int, tags *[]string) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateIdle {
		return Snapshot{}, ErrNoSession
	}

	if m.snap.NeedsSave {
		m.mergeMetaLocked(notes, quality, tags)
		m.persistLocked()
		return m.snap, nil
	}

	row, err := m.api.Transition(ctx, m.snap.ID,
		datatypes.TransitionRequest{
			Action:          string(datatypes.ActionUpdateMeta),
			Notes:           notes,
			DeepWorkQuality: quality,
			Tags:            tags,
		},
		NewIdempotencyKey("updateMeta"))
	if err != nil {
		return Snapshot{}, err
	}
	m.adoptLocked(row)
	return m.snap, nil
}

// Tick advances the running session by one second.
//
// Elapsed time never decreases and never exceeds the session's cap. When
// the cap is reached a planned session is completed locally, exactly once;
// an open session reports TickCapReached so the caller can stop it on the
// server.
func (m *Machine) Tick() TickEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateActive {
		return TickNone
	}

	ceiling := m.snap.capSeconds()
	if next := m.snap.ElapsedSeconds + 1; next < ceiling {
		m.snap.ElapsedSeconds = next
		m.persistLocked()
		return TickAdvanced
	}
	m.snap.ElapsedSeconds = ceiling

	if m.snap.SessionType.RequiresDuration() {
		now := m.clock()
		m.snap.Status = datatypes.StatusCompleted
		m.snap.EndTime = &now
		m.snap.NeedsSave = true
		m.state = StateCompleted
		m.persistLocked()
		slog.Info("focus.engine: planned duration reached, completed locally",
			"session_id", m.snap.ID, "elapsed_seconds", m.snap.ElapsedSeconds)
		return TickAutoCompleted
	}

	m.persistLocked()
	return TickCapReached
}

// mergeMetaLocked folds a metadata update into the snapshot. Tags replace
// wholesale, matching the server's updateMeta semantics.
// Caller must hold m.mu.
func (m *Machine) mergeMetaLocked(notes *string, quality *int, tags *[]string) {
	if notes != nil {
		m.snap.Notes = *notes
	}
	if quality != nil {
		m.snap.DeepWorkQuality = *quality
	}
	if tags != nil {
		m.snap.Tags = append([]string(nil), (*tags)...)
	}
}

// adoptLocked replaces local state with the server's canonical row.
// Caller must hold m.mu.
func (m *Machine) adoptLocked(row datatypes.Session) {
	m.snap = fromSession(row)
	switch row.Status {
	case datatypes.StatusActive:
		m.state = StateActive
	case datatypes.StatusPaused:
		m.state = StatePaused
	case datatypes.StatusCompleted:
		m.state = StateCompleted
	case datatypes.StatusStopped:
		m.state = StateStopped
	}
	m.persistLocked()
}

// rollbackLocked restores the pre-transition state after a server rejection.
// Caller must hold m.mu.
func (m *Machine) rollbackLocked(prev Snapshot, state State) {
	m.snap = prev
	m.state = state
	m.persistLocked()
}

// persistLocked writes the snapshot, logging rather than failing: a
// snapshot miss degrades crash recovery but must not break the session.
// Caller must hold m.mu.
func (m *Machine) persistLocked() {
	if err := m.snapshots.Set(m.snap); err != nil {
		slog.Warn("focus.engine: failed to write snapshot",
			"session_id", m.snap.ID, "error", err)
	}
}

// clearSnapshotLocked removes the snapshot once the session is settled on
// the server. Caller must hold m.mu.
func (m *Machine) clearSnapshotLocked() {
	if err := m.snapshots.Delete(); err != nil {
		slog.Warn("focus.engine: failed to clear snapshot",
			"session_id", m.snap.ID, "error", err)
	}
}
