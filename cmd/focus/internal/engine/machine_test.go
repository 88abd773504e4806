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
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/FocusLocal/services/focus/datatypes"
	transitions "github.com/AleutianAI/FocusLocal/services/focus/engine"
)

// testClock is a hand-cranked clock shared by the machine and the fake API.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeAPI backs SessionAPI with the server's real transition semantics so
// machine tests exercise both halves of the protocol.
type fakeAPI struct {
	mu       sync.Mutex
	clock    *testClock
	sessions map[string]datatypes.Session
	nextID   int
	failWith error
	getCalls int
	txnCalls int
}

func newFakeAPI(clock *testClock) *fakeAPI {
	return &fakeAPI{clock: clock, sessions: make(map[string]datatypes.Session)}
}

func (f *fakeAPI) failNext(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failWith = err
}

func (f *fakeAPI) takeFailure() error {
	err := f.failWith
	f.failWith = nil
	return err
}

func (f *fakeAPI) Create(_ context.Context, req datatypes.CreateSessionRequest, _ string) (datatypes.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.takeFailure(); err != nil {
		return datatypes.Session{}, err
	}

	f.nextID++
	now := f.clock.Now()
	s := datatypes.Session{
		ID:                     fmt.Sprintf("sess-%d", f.nextID),
		UserID:                 "local-user",
		Goal:                   req.Goal,
		SessionType:            datatypes.SessionType(req.SessionType),
		PlannedDurationMinutes: req.DurationMinutes,
		StartTime:              now,
		Status:                 datatypes.StatusActive,
		Tags:                   req.Tags,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if req.DurationMinutes > 0 {
		expected := now.Add(time.Duration(req.DurationMinutes) * time.Minute)
		s.ExpectedEndTime = &expected
	}
	f.sessions[s.ID] = s
	return s, nil
}

func (f *fakeAPI) Transition(_ context.Context, id string, req datatypes.TransitionRequest, _ string) (datatypes.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txnCalls++
	if err := f.takeFailure(); err != nil {
		return datatypes.Session{}, err
	}

	row, ok := f.sessions[id]
	if !ok {
		return datatypes.Session{}, ErrNotFound
	}
	next, err := transitions.Apply(row, req, f.clock.Now())
	if err != nil {
		if errors.Is(err, transitions.ErrNotActive) || errors.Is(err, transitions.ErrNotPaused) {
			return datatypes.Session{}, fmt.Errorf("%w: %s", ErrConflict, err)
		}
		return datatypes.Session{}, fmt.Errorf("%w: %s", ErrValidation, err)
	}
	f.sessions[id] = next
	return next, nil
}

func (f *fakeAPI) Get(_ context.Context, id string) (datatypes.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if err := f.takeFailure(); err != nil {
		return datatypes.Session{}, err
	}
	row, ok := f.sessions[id]
	if !ok {
		return datatypes.Session{}, ErrNotFound
	}
	return row, nil
}

type machineFixture struct {
	machine *Machine
	api     *fakeAPI
	store   *BadgerSnapshotStore
	clock   *testClock
}

func newMachineFixture(t *testing.T) *machineFixture {
	t.Helper()
	clock := newTestClock()
	api := newFakeAPI(clock)
	store := newTestSnapshotStore(t)
	return &machineFixture{
		machine: NewMachine(api, store, clock.Now),
		api:     api,
		store:   store,
		clock:   clock,
	}
}

func (fx *machineFixture) start(t *testing.T, sessionType string, minutes int) Snapshot {
	t.Helper()
	snap, err := fx.machine.Start(context.Background(), datatypes.CreateSessionRequest{
		Goal:            "test goal",
		SessionType:     sessionType,
		DurationMinutes: minutes,
	})
	require.NoError(t, err)
	return snap
}

// =============================================================================
// Lifecycle Tests
// =============================================================================

func TestMachine_StartPersistsSnapshot(t *testing.T) {
	fx := newMachineFixture(t)
	snap := fx.start(t, "time-boxed", 25)

	assert.Equal(t, StateActive, fx.machine.State())
	require.NotNil(t, snap.ExpectedEndTime)

	stored, err := fx.store.Get()
	require.NoError(t, err)
	assert.Equal(t, snap.ID, stored.ID)
	assert.False(t, stored.NeedsSave)
}

func TestMachine_StartRejectsSecondSession(t *testing.T) {
	fx := newMachineFixture(t)
	fx.start(t, "open", 0)

	_, err := fx.machine.Start(context.Background(), datatypes.CreateSessionRequest{
		Goal: "another", SessionType: "open",
	})
	assert.ErrorIs(t, err, ErrSessionActive)
}

func TestMachine_StartValidatesBeforeNetwork(t *testing.T) {
	fx := newMachineFixture(t)
	_, err := fx.machine.Start(context.Background(), datatypes.CreateSessionRequest{
		Goal: "g", SessionType: "pomodoro",
	})
	assert.ErrorIs(t, err, datatypes.ErrDurationRequired)
	assert.Equal(t, 0, fx.api.txnCalls)
}

func TestMachine_PauseResumeDoesNotChargeTheGap(t *testing.T) {
	fx := newMachineFixture(t)
	fx.start(t, "open", 0)

	fx.clock.Advance(10 * time.Minute)
	snap, err := fx.machine.Pause(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatePaused, fx.machine.State())
	assert.Equal(t, int64(600), snap.ElapsedSeconds)

	fx.clock.Advance(3 * time.Hour)
	snap, err = fx.machine.Resume(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateActive, fx.machine.State())
	assert.Equal(t, int64(600), snap.ElapsedSeconds)

	// The server shifted the start so elapsed keeps counting from 600.
	fx.clock.Advance(30 * time.Second)
	current, ok := fx.machine.Current()
	require.True(t, ok)
	assert.Equal(t, snap.StartTime, current.StartTime)
}

func TestMachine_PauseRollsBackOnServerError(t *testing.T) {
	fx := newMachineFixture(t)
	fx.start(t, "open", 0)
	fx.clock.Advance(time.Minute)

	fx.api.failNext(fmt.Errorf("%w: boom", ErrServer))
	_, err := fx.machine.Pause(context.Background())
	require.ErrorIs(t, err, ErrServer)

	assert.Equal(t, StateActive, fx.machine.State())
	stored, err := fx.store.Get()
	require.NoError(t, err)
	assert.Equal(t, datatypes.StatusActive, stored.Status)
}

func TestMachine_PauseRequiresActive(t *testing.T) {
	fx := newMachineFixture(t)
	_, err := fx.machine.Pause(context.Background())
	assert.ErrorIs(t, err, ErrWrongState)

	fx.start(t, "open", 0)
	_, err = fx.machine.Resume(context.Background())
	assert.ErrorIs(t, err, ErrWrongState)
}

// =============================================================================
// Stop Tests
// =============================================================================

func TestMachine_StopBelowThresholdNeedsForce(t *testing.T) {
	fx := newMachineFixture(t)
	fx.start(t, "open", 0)
	fx.clock.Advance(299 * time.Second)

	_, err := fx.machine.Stop(context.Background(), false)
	assert.ErrorIs(t, err, ErrBelowDiscardThreshold)
	assert.Equal(t, StateActive, fx.machine.State())

	snap, err := fx.machine.Stop(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, StateStopped, fx.machine.State())
	assert.Equal(t, datatypes.StatusStopped, snap.Status)

	_, err = fx.store.Get()
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestMachine_StopAtThresholdNeedsNoForce(t *testing.T) {
	fx := newMachineFixture(t)
	fx.start(t, "open", 0)
	fx.clock.Advance(300 * time.Second)

	snap, err := fx.machine.Stop(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, int64(300), snap.ElapsedSeconds)
}

// =============================================================================
// Deferred Completion Tests
// =============================================================================

func TestMachine_CompleteLocalNeedsNoNetwork(t *testing.T) {
	fx := newMachineFixture(t)
	fx.start(t, "time-boxed", 25)
	fx.clock.Advance(25 * time.Minute)

	callsBefore := fx.api.txnCalls
	snap, err := fx.machine.CompleteLocal()
	require.NoError(t, err)

	assert.Equal(t, fx.api.txnCalls, callsBefore)
	assert.True(t, snap.NeedsSave)
	assert.Equal(t, int64(1500), snap.ElapsedSeconds)
	assert.Equal(t, StateCompleted, fx.machine.State())

	stored, err := fx.store.Get()
	require.NoError(t, err)
	assert.True(t, stored.NeedsSave)
}

func TestMachine_SaveCompletedFlushesAndClears(t *testing.T) {
	fx := newMachineFixture(t)
	fx.start(t, "time-boxed", 25)
	fx.clock.Advance(25 * time.Minute)

	_, err := fx.machine.CompleteLocal()
	require.NoError(t, err)

	notes := "solid block"
	quality := 8
	_, err = fx.machine.UpdateMeta(context.Background(), &notes, &quality, nil)
	require.NoError(t, err)

	row, err := fx.machine.SaveCompleted(context.Background())
	require.NoError(t, err)
	assert.Equal(t, datatypes.StatusCompleted, row.Status)
	assert.Equal(t, datatypes.CompletionCompleted, row.CompletionType)
	assert.Equal(t, "solid block", row.Notes)
	assert.Equal(t, 8, row.DeepWorkQuality)

	_, err = fx.store.Get()
	assert.ErrorIs(t, err, ErrNoSnapshot)

	_, err = fx.machine.SaveCompleted(context.Background())
	assert.ErrorIs(t, err, ErrNothingToSave)
}

func TestMachine_SaveCompletedKeepsSnapshotOnFailure(t *testing.T) {
	fx := newMachineFixture(t)
	fx.start(t, "time-boxed", 25)
	fx.clock.Advance(25 * time.Minute)
	_, err := fx.machine.CompleteLocal()
	require.NoError(t, err)

	fx.api.failNext(fmt.Errorf("%w: connection refused", ErrServer))
	_, err = fx.machine.SaveCompleted(context.Background())
	require.ErrorIs(t, err, ErrServer)

	// The pending save survives for a later retry.
	stored, storeErr := fx.store.Get()
	require.NoError(t, storeErr)
	assert.True(t, stored.NeedsSave)

	_, err = fx.machine.SaveCompleted(context.Background())
	require.NoError(t, err)
}

func TestMachine_UpdateMetaDeferredWhilePendingSave(t *testing.T) {
	fx := newMachineFixture(t)
	fx.start(t, "time-boxed", 25)
	fx.clock.Advance(25 * time.Minute)
	_, err := fx.machine.CompleteLocal()
	require.NoError(t, err)

	callsBefore := fx.api.txnCalls
	tags := []string{"writing", "morning"}
	snap, err := fx.machine.UpdateMeta(context.Background(), nil, nil, &tags)
	require.NoError(t, err)

	assert.Equal(t, callsBefore, fx.api.txnCalls, "deferred update must not hit the server")
	assert.Equal(t, tags, snap.Tags)
}

func TestMachine_UpdateMetaLiveGoesToServer(t *testing.T) {
	fx := newMachineFixture(t)
	snap := fx.start(t, "open", 0)

	notes := "switching tasks"
	updated, err := fx.machine.UpdateMeta(context.Background(), &notes, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "switching tasks", updated.Notes)

	row, err := fx.api.Get(context.Background(), snap.ID)
	require.NoError(t, err)
	assert.Equal(t, "switching tasks", row.Notes)
}

// =============================================================================
// Tick Tests
// =============================================================================

func TestMachine_TickAutoCompletesPlannedSessionOnce(t *testing.T) {
	fx := newMachineFixture(t)
	fx.start(t, "time-boxed", 25)

	// Crank up to one second short of the planned duration.
	for i := 0; i < 1499; i++ {
		assert.Equal(t, TickAdvanced, fx.machine.Tick())
	}
	current, _ := fx.machine.Current()
	assert.Equal(t, int64(1499), current.ElapsedSeconds)

	assert.Equal(t, TickAutoCompleted, fx.machine.Tick())
	current, _ = fx.machine.Current()
	assert.Equal(t, int64(1500), current.ElapsedSeconds)
	assert.True(t, current.NeedsSave)
	assert.Equal(t, StateCompleted, fx.machine.State())

	// Once completed, further ticks are inert.
	assert.Equal(t, TickNone, fx.machine.Tick())
	current, _ = fx.machine.Current()
	assert.Equal(t, int64(1500), current.ElapsedSeconds)
}

func TestMachine_TickReportsOpenSessionCap(t *testing.T) {
	fx := newMachineFixture(t)
	fx.start(t, "open", 0)

	// Jump near the hard cap instead of cranking fourteen thousand ticks.
	fx.machine.mu.Lock()
	fx.machine.snap.ElapsedSeconds = datatypes.OpenSessionCapSeconds - 1
	fx.machine.mu.Unlock()

	assert.Equal(t, TickCapReached, fx.machine.Tick())
	assert.Equal(t, StateActive, fx.machine.State(), "open sessions stop via the server, not locally")

	current, _ := fx.machine.Current()
	assert.Equal(t, int64(datatypes.OpenSessionCapSeconds), current.ElapsedSeconds)
}

func TestMachine_TickNeverExceedsCap(t *testing.T) {
	fx := newMachineFixture(t)
	fx.start(t, "open", 0)

	fx.machine.mu.Lock()
	fx.machine.snap.ElapsedSeconds = datatypes.OpenSessionCapSeconds
	fx.machine.mu.Unlock()

	for i := 0; i < 5; i++ {
		fx.machine.Tick()
	}
	current, _ := fx.machine.Current()
	assert.Equal(t, int64(datatypes.OpenSessionCapSeconds), current.ElapsedSeconds)
}

func TestMachine_TickWhileIdleOrPaused(t *testing.T) {
	fx := newMachineFixture(t)
	assert.Equal(t, TickNone, fx.machine.Tick())

	fx.start(t, "open", 0)
	fx.clock.Advance(time.Minute)
	_, err := fx.machine.Pause(context.Background())
	require.NoError(t, err)
	assert.Equal(t, TickNone, fx.machine.Tick())
}
