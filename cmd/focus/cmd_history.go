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
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/FocusLocal/cmd/focus/config"
	"github.com/AleutianAI/FocusLocal/cmd/focus/internal/engine"
	"github.com/AleutianAI/FocusLocal/services/focus/datatypes"
)

var (
	historyDays  int
	historyLimit int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past sessions",
	Long: `List past sessions from the server, newest first. Sessions
stopped under five minutes were discarded and do not appear.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Global
		api := engine.NewHTTPSessionAPI(
			cfg.Server.BaseURL,
			cfg.Server.APIToken,
			time.Duration(cfg.Server.TimeoutSeconds)*time.Second,
		)

		q := datatypes.ListSessionsQuery{Limit: historyLimit}
		if historyDays > 0 {
			from := time.Now().UTC().AddDate(0, 0, -historyDays)
			q.From = &from
		}

		resp, err := api.List(cmd.Context(), q)
		if err != nil {
			return err
		}
		if resp.Total == 0 {
			fmt.Println("No sessions yet.")
			return nil
		}
		for _, row := range resp.Sessions {
			printRow(row)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyDays, "days", "d", 7,
		"how many days back to list (0 for everything)")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 0,
		"maximum rows to list")
	rootCmd.AddCommand(historyCmd)
}
