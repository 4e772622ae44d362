/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/mediaroom/internal/config"
	"github.com/friendsincode/mediaroom/internal/player"
	"github.com/friendsincode/mediaroom/internal/playlist"
	"github.com/friendsincode/mediaroom/internal/server"
	"github.com/friendsincode/mediaroom/internal/slotsource"
)

var (
	playlistLocation string
	playlistDate     string
	playlistAt       string
)

var playlistCmd = &cobra.Command{
	Use:   "playlist",
	Short: "Build and print a location's playlist",
	Long: `Fetch the slots for a location, build the day's playlist and show
where a screen starting at the given time would begin.

Examples:
  # Today's playlist as of now
  mediaroom playlist --location lobby

  # What a screen switched on at 07:30 on Christmas Eve would show
  mediaroom playlist --location lobby --date 2025-12-24 --at 07:30
`,
	RunE: runPlaylist,
}

func init() {
	playlistCmd.Flags().StringVar(&playlistLocation, "location", "", "Location id (required)")
	playlistCmd.Flags().StringVar(&playlistDate, "date", "", "Calendar date YYYY-MM-DD (default today)")
	playlistCmd.Flags().StringVar(&playlistAt, "at", "", "Time of day to evaluate, e.g. 14:30 (default now)")
	_ = playlistCmd.MarkFlagRequired("location")
	rootCmd.AddCommand(playlistCmd)
}

func runPlaylist(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	opts, err := locationOptions(playlistLocation)
	if err != nil {
		return err
	}

	day, at, err := resolveInstant(playlistDate, playlistAt, time.Now(), opts.Location)
	if err != nil {
		return err
	}

	source, err := server.NewSource(cfg, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.APITimeout+5*time.Second)
	defer cancel()
	slots, err := source.Fetch(ctx, playlistLocation, day)
	if err != nil {
		return fmt.Errorf("fetch slots: %w", err)
	}

	items, stats := playlist.BuildWithStats(slots, day, opts, logger)
	fmt.Fprintf(cmd.OutOrStdout(), "%s on %s: %d slots, %d items\n", playlistLocation, slotsource.DateParam(day), stats.Input, stats.Items)
	for reason, n := range stats.Dropped {
		fmt.Fprintf(cmd.OutOrStdout(), "  dropped %d (%s)\n", n, reason)
	}

	d := player.Decide(items, at)
	printPlaylist(cmd.OutOrStdout(), items, d)
	fmt.Fprintf(cmd.OutOrStdout(), "\nat %s: %s\n", at.Format("2006-01-02 15:04:05 MST"), describeDecision(items, d))
	return nil
}

// locationOptions applies configured per-location overrides.
func locationOptions(locationID string) (playlist.Options, error) {
	base := cfg.PlaylistOptions()
	locations, err := cfg.ResolveLocations()
	if err != nil {
		return base, err
	}
	for _, loc := range locations {
		if loc.ID == locationID {
			return loc.Options(base)
		}
	}
	return config.LocationConfig{ID: locationID}.Options(base)
}

// resolveInstant turns the --date and --at flags into the cycle day (midnight)
// and the instant to evaluate.
func resolveInstant(date, at string, now time.Time, loc *time.Location) (time.Time, time.Time, error) {
	now = now.In(loc)
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	if date != "" {
		parsed, err := time.ParseInLocation("2006-01-02", date, loc)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --date %q: %w", date, err)
		}
		day = parsed
	}

	instant := now
	switch {
	case at != "":
		tod, err := playlist.ParseTimeOfDayIn(at, loc)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --at %q: %w", at, err)
		}
		instant = tod.On(day)
	case date != "":
		instant = day
	}
	return day, instant, nil
}

func printPlaylist(w io.Writer, items []playlist.Item, d player.Decision) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\t#\tSTART\tEND\tKIND\tNAME\tMEDIA")
	for i, it := range items {
		marker := ""
		if i == d.Index {
			marker = ">"
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
			marker, i+1,
			it.Start.Format("01-02 15:04:05"),
			it.End.Format("01-02 15:04:05"),
			it.Kind, it.Slot.DisplayName(), it.Slot.MediaFile)
	}
	_ = tw.Flush()
}

func describeDecision(items []playlist.Item, d player.Decision) string {
	switch d.Phase {
	case player.PhaseEmpty:
		return "nothing to play"
	case player.PhasePending:
		return fmt.Sprintf("waiting for item %d / %d (%s) at %s", d.Index+1, len(items), items[d.Index].Slot.DisplayName(), items[d.Index].Start.Format("15:04:05"))
	default:
		out := fmt.Sprintf("playing item %d / %d (%s)", d.Index+1, len(items), items[d.Index].Slot.DisplayName())
		if d.Seek > 0 {
			out += fmt.Sprintf(" from %s", d.Seek.Round(time.Second))
		}
		if !d.InWindow {
			out += ", outside its window"
		}
		return out
	}
}
