// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/AleutianAI/FocusLocal/cmd/focus/config"
	"github.com/AleutianAI/FocusLocal/cmd/focus/internal/engine"
	"github.com/AleutianAI/FocusLocal/pkg/logging"
	"github.com/AleutianAI/FocusLocal/services/focus/datatypes"
)

// session holds everything a command needs: the machine already
// bootstrapped from the snapshot, plus the raw API client for reads the
// machine does not cover.
type session struct {
	machine   *engine.Machine
	api       *engine.HTTPSessionAPI
	snapshots *engine.BadgerSnapshotStore
	logger    *logging.Logger
	outcome   engine.BootstrapOutcome
}

func (s *session) close() {
	if err := s.snapshots.Close(); err != nil {
		fmt.Printf("Warning: could not close the snapshot store: %v\n", err)
	}
	_ = s.logger.Close()
}

// openSession wires the API client, snapshot store, and state machine from
// the loaded config, then runs startup reconciliation.
//
// Stdout belongs to the command output, so the machine's structured logs go
// to a file under the snapshot directory instead.
func openSession(ctx context.Context) (*session, error) {
	cfg := config.Global

	logger := logging.New(logging.Config{
		Level:   logging.LevelInfo,
		LogDir:  filepath.Join(cfg.Snapshot.Dir, "logs"),
		Service: "focus-cli",
		Quiet:   true,
	})
	slog.SetDefault(logger.Slog())

	api := engine.NewHTTPSessionAPI(
		cfg.Server.BaseURL,
		cfg.Server.APIToken,
		time.Duration(cfg.Server.TimeoutSeconds)*time.Second,
	)
	snapshots, err := engine.OpenSnapshotStore(cfg.Snapshot.Dir)
	if err != nil {
		_ = logger.Close()
		return nil, fmt.Errorf("could not open the snapshot store: %w", err)
	}

	machine := engine.NewMachine(api, snapshots, nil)
	outcome, err := machine.Bootstrap(ctx)
	if err != nil {
		_ = snapshots.Close()
		_ = logger.Close()
		return nil, fmt.Errorf("could not recover local state: %w", err)
	}
	if outcome == engine.BootstrapPendingSave {
		fmt.Println("A finished session is waiting to be saved. Run 'focus save' to flush it.")
	}
	if outcome == engine.BootstrapOffline {
		fmt.Println("Warning: the focus server is unreachable, working from the local snapshot.")
	}

	return &session{machine: machine, api: api, snapshots: snapshots, logger: logger, outcome: outcome}, nil
}

// formatElapsed renders seconds as h:mm:ss, dropping the hour when zero.
func formatElapsed(seconds int64) string {
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// printSnapshot renders the machine's view of the session in progress.
func printSnapshot(snap engine.Snapshot, state engine.State) {
	fmt.Printf("Session:  %s\n", snap.ID)
	fmt.Printf("Goal:     %s\n", snap.Goal)
	fmt.Printf("Type:     %s", snap.SessionType)
	if snap.PlannedDurationMinutes > 0 {
		fmt.Printf(" (%d min)", snap.PlannedDurationMinutes)
	}
	fmt.Println()
	fmt.Printf("State:    %s", state)
	if snap.NeedsSave {
		fmt.Print(" (save pending)")
	}
	fmt.Println()
	fmt.Printf("Elapsed:  %s\n", formatElapsed(snap.ElapsedSeconds))
	if len(snap.Tags) > 0 {
		fmt.Printf("Tags:     %v\n", snap.Tags)
	}
	if snap.Notes != "" {
		fmt.Printf("Notes:    %s\n", snap.Notes)
	}
}

// printRow renders one canonical server row for history output.
func printRow(row datatypes.Session) {
	end := "running"
	if row.EndTime != nil {
		end = row.EndTime.Local().Format("15:04")
	}
	line := fmt.Sprintf("%s  %s - %s  %8s  %-10s  %s",
		row.StartTime.Local().Format("2006-01-02"),
		row.StartTime.Local().Format("15:04"),
		end,
		formatElapsed(row.ElapsedSeconds),
		row.Status,
		row.Goal,
	)
	if row.CompletionType != "" && row.CompletionType != datatypes.CompletionCompleted {
		line += fmt.Sprintf(" [%s]", row.CompletionType)
	}
	fmt.Println(line)
}
