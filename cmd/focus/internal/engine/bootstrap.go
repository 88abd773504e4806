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

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/AleutianAI/FocusLocal/services/focus/datatypes"
)

// BootstrapOutcome describes how startup reconciliation resolved.
type BootstrapOutcome int

const (
	// BootstrapNoSession: no snapshot, nothing in progress.
	BootstrapNoSession BootstrapOutcome = iota

	// BootstrapPendingSave: a locally completed session is waiting for its
	// authoritative write. Restored without any network traffic.
	BootstrapPendingSave

	// BootstrapReconciled: the snapshot matched a live server row and the
	// machine resumed from the reconciled state.
	BootstrapReconciled

	// BootstrapCleared: the snapshot pointed at a session the server no
	// longer has, or one already finished elsewhere. Snapshot removed.
	BootstrapCleared

	// BootstrapOffline: the server could not be reached, so the machine
	// restored the snapshot as-is and will reconcile on the next call.
	BootstrapOffline
)

// Bootstrap recovers the machine's state after a process start.
//
// # Description
//
// Reads the snapshot and reconciles it with the server. A pending save is
// restored without touching the network: the snapshot already carries
// everything the deferred completion write needs, and contacting the server
// first could only lose that. For a live session the server row wins, with
// one exception: elapsed time is taken as the larger of the server's count
// and the wall-clock span since the row's start time, so the downtime
// between crash and restart is counted for a session that was running.
//
// # Outputs
//
//   - BootstrapOutcome: how the recovery resolved.
//   - error: non-nil only for local storage failures. Network failures
//     degrade to BootstrapOffline instead.
func (m *Machine) Bootstrap(ctx context.Context) (BootstrapOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap, err := m.snapshots.Get()
	if errors.Is(err, ErrNoSnapshot) {
		m.state = StateIdle
		return BootstrapNoSession, nil
	}
	if err != nil {
		return BootstrapNoSession, err
	}

	if snap.NeedsSave {
		m.snap = snap
		m.state = StateCompleted
		slog.Info("focus.engine: restored a session pending save",
			"session_id", snap.ID, "elapsed_seconds", snap.ElapsedSeconds)
		return BootstrapPendingSave, nil
	}

	row, err := m.api.Get(ctx, snap.ID)
	if errors.Is(err, ErrNotFound) {
		slog.Warn("focus.engine: snapshot refers to a session the server does not have",
			"session_id", snap.ID)
		m.snap = snap
		m.clearSnapshotLocked()
		m.snap = Snapshot{}
		m.state = StateIdle
		return BootstrapCleared, nil
	}
	if err != nil {
		slog.Warn("focus.engine: server unreachable, restoring local state",
			"session_id", snap.ID, "error", err)
		m.snap = snap
		if snap.Status == datatypes.StatusPaused {
			m.state = StatePaused
		} else {
			m.state = StateActive
		}
		return BootstrapOffline, nil
	}

	switch row.Status {
	case datatypes.StatusActive:
		m.snap = fromSession(row)
		m.state = StateActive
		// Count the downtime: the session kept running while this process
		// was gone.
		if fromClock := int64(m.clock().Sub(row.StartTime) / time.Second); fromClock > m.snap.ElapsedSeconds {
			m.snap.ElapsedSeconds = fromClock
		}
		if ceiling := m.snap.capSeconds(); m.snap.ElapsedSeconds > ceiling {
			m.snap.ElapsedSeconds = ceiling
		}
		m.persistLocked()
		return BootstrapReconciled, nil

	case datatypes.StatusPaused:
		m.snap = fromSession(row)
		m.state = StatePaused
		m.persistLocked()
		return BootstrapReconciled, nil

	default:
		// Finished elsewhere. Nothing left to track.
		slog.Info("focus.engine: session already finished on the server",
			"session_id", row.ID, "status", row.Status)
		m.snap = snap
		m.clearSnapshotLocked()
		m.snap = Snapshot{}
		m.state = StateIdle
		return BootstrapCleared, nil
	}
}
