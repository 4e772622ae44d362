/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/friendsincode/mediaroom/internal/playlist"
)

// SlotSnapshot is the last slot list successfully fetched for a location and date.
type SlotSnapshot struct {
	ID         string          `gorm:"type:uuid;primaryKey"`
	LocationID string          `gorm:"type:varchar(128);uniqueIndex:idx_snapshot_location_date"`
	Date       string          `gorm:"type:varchar(10);uniqueIndex:idx_snapshot_location_date"`
	Source     string          `gorm:"type:varchar(32)"`
	Slots      []playlist.Slot `gorm:"serializer:json"`
	FetchedAt  time.Time
	UpdatedAt  time.Time
}

// BeforeCreate assigns an id.
func (s *SlotSnapshot) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// PlayRecord is one proof-of-play entry: an item becoming active on a location.
type PlayRecord struct {
	ID             string    `gorm:"type:uuid;primaryKey" json:"id"`
	LocationID     string    `gorm:"type:varchar(128);index:idx_play_location_started" json:"location_id"`
	SlotID         string    `gorm:"type:varchar(128)" json:"slot_id"`
	Campaign       string    `json:"campaign,omitempty"`
	MediaFile      string    `json:"media_file"`
	Kind           string    `gorm:"type:varchar(16)" json:"kind"`
	ScheduledStart time.Time `json:"scheduled_start"`
	ScheduledEnd   time.Time `json:"scheduled_end"`
	StartedAt      time.Time `gorm:"index:idx_play_location_started" json:"started_at"`
	SeekMS         int64     `json:"seek_ms"`
	InWindow       bool      `json:"in_window"`
	Error          string    `json:"error,omitempty"`
	InstanceID     string    `gorm:"type:varchar(128)" json:"instance_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// BeforeCreate assigns an id.
func (p *PlayRecord) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// All lists every persisted model, in migration order.
func All() []any {
	return []any{
		&SlotSnapshot{},
		&PlayRecord{},
	}
}
