/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package player

import (
	"fmt"
	"time"

	"github.com/friendsincode/mediaroom/internal/playlist"
)

// ItemView is the public description of the current item.
type ItemView struct {
	SlotID      string        `json:"slot_id,omitempty"`
	Name        string        `json:"name"`
	Kind        playlist.Kind `json:"kind"`
	Reference   string        `json:"reference"`
	ResolvedRef string        `json:"resolved_reference,omitempty"`
	Start       time.Time     `json:"start"`
	End         time.Time     `json:"end"`
}

// Snapshot is a point-in-time copy of driver state, safe to read from any goroutine.
type Snapshot struct {
	LocationID  string        `json:"location_id"`
	Phase       Phase         `json:"phase"`
	Index       int           `json:"index"`
	Total       int           `json:"total"`
	Position    string        `json:"position,omitempty"`
	Item        *ItemView     `json:"item,omitempty"`
	InWindow    bool          `json:"in_window"`
	SeekOffset  time.Duration `json:"seek_offset"`
	ActiveSince time.Time     `json:"active_since,omitempty"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

func (d *Driver) publishSnapshot() {
	s := &Snapshot{
		LocationID: d.locationID,
		Phase:      d.phase,
		Index:      d.index,
		Total:      len(d.items),
		UpdatedAt:  d.clock.Now(),
	}
	if d.index >= 0 && d.index < len(d.items) && d.phase != PhaseStopped {
		item := d.items[d.index]
		s.Position = positionLabel(d.index, len(d.items))
		s.Item = &ItemView{
			SlotID:      item.Slot.ID,
			Name:        item.Slot.DisplayName(),
			Kind:        item.Kind,
			Reference:   item.Slot.MediaFile,
			ResolvedRef: d.resolved,
			Start:       item.Start,
			End:         item.End,
		}
		if d.phase == PhaseActive {
			s.ActiveSince = d.activeSince
			s.SeekOffset = d.activeSeek
		}
	}
	d.snap.Store(s)
}

// Snapshot returns the latest published state. InWindow is evaluated at call time.
func (d *Driver) Snapshot() Snapshot {
	s := *d.snap.Load()
	if s.Item != nil {
		item := *s.Item
		s.Item = &item
		now := d.clock.Now()
		s.InWindow = !now.Before(item.Start) && now.Before(item.End)
	}
	return s
}

// Playlist returns the playlist the driver is currently playing.
func (d *Driver) Playlist() []playlist.Item {
	p := d.plist.Load()
	if p == nil {
		return nil
	}
	return *p
}

func positionLabel(index, total int) string {
	return fmt.Sprintf("%d / %d", index+1, total)
}
