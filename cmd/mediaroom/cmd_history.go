/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/mediaroom/internal/db"
	"github.com/friendsincode/mediaroom/internal/store"
)

var (
	historyLocation string
	historyLimit    int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print proof-of-play records for a location",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historyLocation, "location", "", "Location id (required)")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 50, "Maximum number of records")
	_ = historyCmd.MarkFlagRequired("location")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	database, err := db.Connect(cfg)
	if err != nil {
		return err
	}
	defer db.Close(database)

	records, err := store.NewPlayStore(database).Recent(cmd.Context(), historyLocation, historyLimit)
	if err != nil {
		return fmt.Errorf("query history: %w", err)
	}
	if len(records) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "no plays recorded for %s\n", historyLocation)
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tSCHEDULED\tKIND\tCAMPAIGN\tSEEK\tERROR")
	for _, rec := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			rec.StartedAt.Local().Format("2006-01-02 15:04:05"),
			rec.ScheduledStart.Local().Format("15:04:05"),
			rec.Kind, rec.Campaign,
			(time.Duration(rec.SeekMS) * time.Millisecond).String(),
			rec.Error)
	}
	return tw.Flush()
}
