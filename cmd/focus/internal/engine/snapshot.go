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
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/FocusLocal/services/focus/datatypes"
)

// ErrNoSnapshot is returned when no snapshot is on disk.
var ErrNoSnapshot = errors.New("no snapshot stored")

// Snapshot is the client's crash-recovery record of the session in
// progress. It is written on every local state change and deleted once the
// session reaches its final resting place on the server.
//
// NeedsSave marks a session the user finished locally whose authoritative
// completion write has not happened yet. A snapshot with NeedsSave set is
// restored without touching the network; everything the final write needs
// is carried here.
type Snapshot struct {
	ID                     string                `json:"id"`
	Goal                   string                `json:"goal"`
	SessionType            datatypes.SessionType `json:"session_type"`
	PlannedDurationMinutes int                   `json:"planned_duration_minutes,omitempty"`
	Status                 datatypes.Status      `json:"status"`
	StartTime              time.Time             `json:"start_time"`
	ExpectedEndTime        *time.Time            `json:"expected_end_time,omitempty"`
	EndTime                *time.Time            `json:"end_time,omitempty"`
	ElapsedSeconds         int64                 `json:"elapsed_seconds"`
	NeedsSave              bool                  `json:"needs_save"`
	Notes                  string                `json:"notes,omitempty"`
	DeepWorkQuality        int                   `json:"deep_work_quality,omitempty"`
	Tags                   []string              `json:"tags,omitempty"`
}

// fromSession builds a snapshot from the server's canonical row.
func fromSession(s datatypes.Session) Snapshot {
	return Snapshot{
		ID:                     s.ID,
		Goal:                   s.Goal,
		SessionType:            s.SessionType,
		PlannedDurationMinutes: s.PlannedDurationMinutes,
		Status:                 s.Status,
		StartTime:              s.StartTime,
		ExpectedEndTime:        s.ExpectedEndTime,
		EndTime:                s.EndTime,
		ElapsedSeconds:         s.ElapsedSeconds,
		Notes:                  s.Notes,
		DeepWorkQuality:        s.DeepWorkQuality,
		Tags:                   s.Tags,
	}
}

// capSeconds returns the auto-transition ceiling for the snapshotted
// session: the planned duration for time-boxed and pomodoro sessions, the
// hard cap for open ones.
func (s Snapshot) capSeconds() int64 {
	if s.SessionType.RequiresDuration() && s.PlannedDurationMinutes > 0 {
		return int64(s.PlannedDurationMinutes) * 60
	}
	return datatypes.OpenSessionCapSeconds
}

// SnapshotStore persists the single in-progress snapshot.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type SnapshotStore interface {
	// Get reads the stored snapshot. Returns ErrNoSnapshot if absent.
	Get() (Snapshot, error)

	// Set overwrites the stored snapshot.
	Set(s Snapshot) error

	// Delete removes the stored snapshot. Removing an absent snapshot is
	// not an error.
	Delete() error

	// Close releases the underlying database.
	Close() error
}

// =============================================================================
// Badger Implementation
// =============================================================================

// snapshotKey is the fixed key for the one in-progress session. The CLI
// tracks a single session at a time, so the store holds at most one row.
var snapshotKey = []byte("snapshot/current")

// BadgerSnapshotStore is the badger/v4 backed SnapshotStore. Durable
// synchronous writes: a snapshot that did not reach disk protects nothing.
type BadgerSnapshotStore struct {
	db *badger.DB
}

// OpenSnapshotStore opens the snapshot database at dir. An empty dir opens
// an in-memory store for tests.
func OpenSnapshotStore(dir string) (*BadgerSnapshotStore, error) {
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("create snapshot directory %s: %w", dir, err)
		}
		opts = badger.DefaultOptions(dir).WithSyncWrites(true)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open snapshot database: %w", err)
	}
	return &BadgerSnapshotStore{db: db}, nil
}

// Get implements SnapshotStore.
func (b *BadgerSnapshotStore) Get() (Snapshot, error) {
	var snap Snapshot
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(snapshotKey)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNoSnapshot
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &snap)
		})
	})
	if err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// Set implements SnapshotStore.
func (b *BadgerSnapshotStore) Set(s Snapshot) error {
	val, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(snapshotKey, val)
	})
}

// Delete implements SnapshotStore.
func (b *BadgerSnapshotStore) Delete() error {
	return b.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(snapshotKey)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

// Close implements SnapshotStore.
func (b *BadgerSnapshotStore) Close() error {
	return b.db.Close()
}

var _ SnapshotStore = (*BadgerSnapshotStore)(nil)
