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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/FocusLocal/services/focus/datatypes"
)

func newTestSnapshotStore(t *testing.T) *BadgerSnapshotStore {
	t.Helper()
	s, err := OpenSnapshotStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSnapshotStore_Roundtrip(t *testing.T) {
	s := newTestSnapshotStore(t)
	start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(25 * time.Minute)

	in := Snapshot{
		ID:                     "sess-1",
		Goal:                   "write the report",
		SessionType:            datatypes.SessionTimeBoxed,
		PlannedDurationMinutes: 25,
		Status:                 datatypes.StatusCompleted,
		StartTime:              start,
		ExpectedEndTime:        &end,
		EndTime:                &end,
		ElapsedSeconds:         1500,
		NeedsSave:              true,
		Notes:                  "good run",
		DeepWorkQuality:        8,
		Tags:                   []string{"writing"},
	}
	require.NoError(t, s.Set(in))

	got, err := s.Get()
	require.NoError(t, err)
	assert.Equal(t, in.ID, got.ID)
	assert.True(t, got.NeedsSave)
	assert.Equal(t, int64(1500), got.ElapsedSeconds)
	assert.Equal(t, "good run", got.Notes)
	require.NotNil(t, got.EndTime)
	assert.True(t, got.EndTime.Equal(end))
}

func TestSnapshotStore_GetMissing(t *testing.T) {
	s := newTestSnapshotStore(t)
	_, err := s.Get()
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestSnapshotStore_SetOverwrites(t *testing.T) {
	s := newTestSnapshotStore(t)
	require.NoError(t, s.Set(Snapshot{ID: "sess-1", ElapsedSeconds: 10}))
	require.NoError(t, s.Set(Snapshot{ID: "sess-1", ElapsedSeconds: 11}))

	got, err := s.Get()
	require.NoError(t, err)
	assert.Equal(t, int64(11), got.ElapsedSeconds)
}

func TestSnapshotStore_DeleteIsIdempotent(t *testing.T) {
	s := newTestSnapshotStore(t)
	require.NoError(t, s.Delete())

	require.NoError(t, s.Set(Snapshot{ID: "sess-1"}))
	require.NoError(t, s.Delete())
	_, err := s.Get()
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestSnapshot_CapSeconds(t *testing.T) {
	tests := []struct {
		name string
		snap Snapshot
		want int64
	}{
		{"time-boxed 25m", Snapshot{SessionType: datatypes.SessionTimeBoxed, PlannedDurationMinutes: 25}, 1500},
		{"pomodoro 50m", Snapshot{SessionType: datatypes.SessionPomodoro, PlannedDurationMinutes: 50}, 3000},
		{"open hits the hard cap", Snapshot{SessionType: datatypes.SessionOpen}, 14400},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.snap.capSeconds())
		})
	}
}
