/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playlist

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultCycleBoundary is the wall-clock time at which a daily schedule wraps.
var DefaultCycleBoundary = TimeOfDay{Hour: 8}

// DefaultItemDuration replaces non-positive durations.
const DefaultItemDuration = 15 * time.Second

// Drop reasons reported in BuildStats.
const (
	DropNoMedia     = "no_media"
	DropNoStartTime = "no_start_time"
	DropUnparseable = "unparseable"
	DropOutOfRange  = "out_of_range"
)

// Options configure playlist construction.
type Options struct {
	// CycleBoundary ends the last item of the day. The zero value is midnight.
	CycleBoundary   TimeOfDay
	DefaultDuration time.Duration
	// Location anchors slot times. Defaults to now's location.
	Location *time.Location
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		CycleBoundary:   DefaultCycleBoundary,
		DefaultDuration: DefaultItemDuration,
	}
}

// Item is a slot placed on a concrete day.
type Item struct {
	Slot     Slot          `json:"slot"`
	Start    time.Time     `json:"start"`
	End      time.Time     `json:"end"`
	Duration time.Duration `json:"duration"`
	Kind     Kind          `json:"kind"`
}

// Key identifies an item by its start instant and media reference.
func (it Item) Key() string {
	return fmt.Sprintf("%d|%s", it.Start.UnixMilli(), it.Slot.MediaFile)
}

// Contains reports whether ts falls inside [Start, End).
func (it Item) Contains(ts time.Time) bool {
	return !ts.Before(it.Start) && ts.Before(it.End)
}

// BuildStats summarises one Build call.
type BuildStats struct {
	Input   int            `json:"input"`
	Items   int            `json:"items"`
	Dropped map[string]int `json:"dropped,omitempty"`
}

// Build turns raw slots into an ordered playlist for the calendar day of now.
func Build(slots []Slot, now time.Time, opts Options, logger zerolog.Logger) []Item {
	items, _ := BuildWithStats(slots, now, opts, logger)
	return items
}

// BuildWithStats is Build plus a count of what was dropped and why.
func BuildWithStats(slots []Slot, now time.Time, opts Options, logger zerolog.Logger) ([]Item, BuildStats) {
	stats := BuildStats{Input: len(slots), Dropped: map[string]int{}}

	loc := opts.Location
	if loc == nil {
		loc = now.Location()
	}
	def := opts.DefaultDuration
	if def <= 0 {
		def = DefaultItemDuration
	}
	day := now.In(loc)

	var items []Item
	for _, slot := range slots {
		if strings.TrimSpace(slot.MediaFile) == "" {
			stats.Dropped[DropNoMedia]++
			continue
		}

		var tod TimeOfDay
		switch {
		case !slot.StartAt.IsZero():
			tod = FromTime(slot.StartAt, loc)
		case strings.TrimSpace(slot.SlotStartTime) == "":
			stats.Dropped[DropNoStartTime]++
			continue
		default:
			parsed, err := ParseTimeOfDayIn(slot.SlotStartTime, loc)
			if err != nil {
				reason := DropUnparseable
				if errors.Is(err, ErrOutOfRange) {
					reason = DropOutOfRange
				}
				stats.Dropped[reason]++
				logger.Warn().
					Err(err).
					Str("slot_id", slot.ID).
					Str("slot_start_time", slot.SlotStartTime).
					Msg("dropping slot with invalid start time")
				continue
			}
			tod = parsed
		}

		items = append(items, Item{
			Slot:  slot,
			Start: tod.On(day),
			Kind:  Classify(slot.MediaFile),
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Start.Before(items[j].Start)
	})

	for i := range items {
		if i+1 < len(items) {
			items[i].End = items[i+1].Start
		} else {
			boundary := opts.CycleBoundary.On(items[i].Start)
			if !boundary.After(items[i].Start) {
				boundary = boundary.AddDate(0, 0, 1)
			}
			items[i].End = boundary
		}

		items[i].Duration = items[i].End.Sub(items[i].Start)
		if items[i].Duration <= 0 {
			items[i].Duration = def
			items[i].End = items[i].Start.Add(def)
		}
	}

	stats.Items = len(items)
	return items, stats
}

// Equal reports whether two playlists schedule the same media at the same times.
func Equal(a, b []Item) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Key() != b[i].Key() || !a[i].End.Equal(b[i].End) || a[i].Kind != b[i].Kind {
			return false
		}
	}
	return true
}

// Shift re-anchors a playlist by whole calendar days.
func Shift(items []Item, days int) []Item {
	if len(items) == 0 {
		return nil
	}
	out := make([]Item, len(items))
	for i, it := range items {
		it.Start = it.Start.AddDate(0, 0, days)
		it.End = it.End.AddDate(0, 0, days)
		it.Duration = it.End.Sub(it.Start)
		out[i] = it
	}
	return out
}

// Placement is where playback should begin for a given instant.
type Placement struct {
	// Index is -1 for an empty playlist.
	Index int
	// InWindow is set when now falls inside the item's window.
	InWindow bool
	// Future is set when the item has not started yet.
	Future bool
}

// Locate finds the item active at now, or else the next item to start, or
// else the first item.
func Locate(items []Item, now time.Time) Placement {
	if len(items) == 0 {
		return Placement{Index: -1}
	}
	for i, it := range items {
		if it.Contains(now) {
			return Placement{Index: i, InWindow: true}
		}
	}
	for i, it := range items {
		if it.Start.After(now) {
			return Placement{Index: i, Future: true}
		}
	}
	return Placement{Index: 0}
}
