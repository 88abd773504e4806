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
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/FocusLocal/cmd/focus/config"
	"github.com/AleutianAI/FocusLocal/cmd/focus/internal/engine"
	"github.com/AleutianAI/FocusLocal/services/focus/datatypes"
)

var (
	startType    string
	startMinutes int
	startTags    []string

	stopForce bool

	noteText    string
	noteQuality int
	noteTags    []string
)

var startCmd = &cobra.Command{
	Use:   "start [goal]",
	Short: "Start a new focus session",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer sess.close()

		req := datatypes.CreateSessionRequest{
			Goal:            strings.Join(args, " "),
			SessionType:     startType,
			DurationMinutes: startMinutes,
			Tags:            startTags,
		}
		if req.SessionType == "" {
			req.SessionType = config.Global.Defaults.SessionType
		}
		if req.DurationMinutes == 0 && datatypes.SessionType(req.SessionType).RequiresDuration() {
			req.DurationMinutes = config.Global.Defaults.DurationMinutes
		}

		snap, err := sess.machine.Start(cmd.Context(), req)
		if errors.Is(err, engine.ErrSessionActive) {
			return fmt.Errorf("a session is already in progress, finish it first ('focus status' to see it)")
		}
		if err != nil {
			return err
		}

		fmt.Printf("Started %s session %s\n", snap.SessionType, snap.ID)
		if snap.ExpectedEndTime != nil {
			fmt.Printf("Planned until %s\n", snap.ExpectedEndTime.Local().Format("15:04"))
		}
		return nil
	},
}

var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause the running session",
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer sess.close()

		snap, err := sess.machine.Pause(cmd.Context())
		if errors.Is(err, engine.ErrWrongState) {
			return errors.New("no running session to pause")
		}
		if err != nil {
			return err
		}
		fmt.Printf("Paused at %s\n", formatElapsed(snap.ElapsedSeconds))
		return nil
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume a paused session",
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer sess.close()

		snap, err := sess.machine.Resume(cmd.Context())
		if errors.Is(err, engine.ErrWrongState) {
			return errors.New("no paused session to resume")
		}
		if err != nil {
			return err
		}
		fmt.Printf("Resumed at %s\n", formatElapsed(snap.ElapsedSeconds))
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the session early",
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer sess.close()

		snap, err := sess.machine.Stop(cmd.Context(), stopForce)
		if errors.Is(err, engine.ErrBelowDiscardThreshold) {
			if !confirm("This session is under 5 minutes and will not appear in history. Stop anyway?") {
				fmt.Println("Kept running.")
				return nil
			}
			snap, err = sess.machine.Stop(cmd.Context(), true)
		}
		if errors.Is(err, engine.ErrWrongState) {
			return errors.New("no session to stop")
		}
		if err != nil {
			return err
		}
		fmt.Printf("Stopped after %s (%s)\n", formatElapsed(snap.ElapsedSeconds), snap.Status)
		return nil
	},
}

var completeCmd = &cobra.Command{
	Use:   "complete",
	Short: "Finish the session and save it",
	Long: `Finish the session. The finish is recorded locally first, so it
works offline; the authoritative save is attempted immediately and can be
retried with 'focus save' if the server is unreachable.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer sess.close()

		if _, err := sess.machine.CompleteLocal(); err != nil {
			if errors.Is(err, engine.ErrWrongState) {
				return errors.New("no session to complete")
			}
			return err
		}

		row, err := sess.machine.SaveCompleted(cmd.Context())
		if err != nil {
			fmt.Printf("Completed locally, but the save failed: %v\n", err)
			fmt.Println("Run 'focus save' to retry.")
			return nil
		}
		fmt.Printf("Completed after %s (%s)\n", formatElapsed(row.ElapsedSeconds), row.CompletionType)
		return nil
	},
}

var saveCmd = &cobra.Command{
	Use:   "save",
	Short: "Flush a completed session that has not reached the server yet",
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer sess.close()

		row, err := sess.machine.SaveCompleted(cmd.Context())
		if errors.Is(err, engine.ErrNothingToSave) {
			fmt.Println("Nothing to save.")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Printf("Saved session %s (%s)\n", row.ID, row.CompletionType)
		return nil
	},
}

var noteCmd = &cobra.Command{
	Use:   "note",
	Short: "Attach notes, a quality rating, or tags to the session",
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer sess.close()

		var notes *string
		if cmd.Flags().Changed("text") {
			notes = &noteText
		}
		var quality *int
		if cmd.Flags().Changed("quality") {
			quality = &noteQuality
		}
		var tags *[]string
		if cmd.Flags().Changed("tag") {
			tags = &noteTags
		}
		if notes == nil && quality == nil && tags == nil {
			return errors.New("nothing to update, pass --text, --quality, or --tag")
		}

		snap, err := sess.machine.UpdateMeta(cmd.Context(), notes, quality, tags)
		if errors.Is(err, engine.ErrNoSession) {
			return errors.New("no session to annotate")
		}
		if err != nil {
			return err
		}
		if snap.NeedsSave {
			fmt.Println("Noted. The update will be written with the pending save.")
		} else {
			fmt.Println("Noted.")
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the session in progress",
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer sess.close()

		snap, ok := sess.machine.Current()
		if !ok {
			fmt.Println("No session in progress.")
			return nil
		}
		printSnapshot(snap, sess.machine.State())
		return nil
	},
}

// confirm asks a yes/no question on stdin.
func confirm(question string) bool {
	fmt.Printf("%s [y/N]: ", question)
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

func init() {
	startCmd.Flags().StringVarP(&startType, "type", "t", "",
		"session type: time-boxed, open, or pomodoro")
	startCmd.Flags().IntVarP(&startMinutes, "minutes", "m", 0,
		"planned duration in minutes")
	startCmd.Flags().StringSliceVar(&startTags, "tag", nil,
		"tag the session (repeatable)")

	stopCmd.Flags().BoolVarP(&stopForce, "force", "f", false,
		"stop without confirmation even under the discard threshold")

	noteCmd.Flags().StringVar(&noteText, "text", "", "notes text")
	noteCmd.Flags().IntVar(&noteQuality, "quality", 0, "deep work quality, 1-10")
	noteCmd.Flags().StringSliceVar(&noteTags, "tag", nil, "replace the tags (repeatable)")

	rootCmd.AddCommand(startCmd, pauseCmd, resumeCmd, stopCmd,
		completeCmd, saveCmd, noteCmd, statusCmd)
}
