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
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/FocusLocal/cmd/focus/internal/engine"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Watch the running session tick in the foreground",
	Long: `Attach to the session in progress and count it down second by
second. A planned session completes itself when the duration is up; an
open session is stopped at the four hour cap. Ctrl-C detaches without
touching the session.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer sess.close()

		if sess.machine.State() != engine.StateActive {
			return fmt.Errorf("no running session to watch, start one first")
		}
		return watch(cmd.Context(), sess)
	},
}

// watch drives the tick loop until the session ends or the user detaches.
func watch(ctx context.Context, sess *session) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The ticker is torn down before any terminal handling so a finishing
	// session can never observe another tick.
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nDetached. The session keeps running.")
			return nil
		case <-ticker.C:
			switch sess.machine.Tick() {
			case engine.TickAdvanced:
				snap, _ := sess.machine.Current()
				fmt.Printf("\r%s  %s", formatElapsed(snap.ElapsedSeconds), snap.Goal)

			case engine.TickAutoCompleted:
				ticker.Stop()
				fmt.Println("\nTime is up.")
				row, err := sess.machine.SaveCompleted(context.Background())
				if err != nil {
					fmt.Printf("The save failed: %v\nRun 'focus save' to retry.\n", err)
					return nil
				}
				fmt.Printf("Completed after %s (%s)\n",
					formatElapsed(row.ElapsedSeconds), row.CompletionType)
				return nil

			case engine.TickCapReached:
				ticker.Stop()
				fmt.Println("\nHit the four hour cap.")
				snap, err := sess.machine.Stop(context.Background(), true)
				if err != nil {
					fmt.Printf("The stop failed: %v\nThe session is still open on the server.\n", err)
					return nil
				}
				fmt.Printf("Stopped after %s\n", formatElapsed(snap.ElapsedSeconds))
				return nil

			case engine.TickNone:
				return nil
			}
		}
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
}
