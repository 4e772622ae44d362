/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package store persists slot snapshots and proof-of-play records.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/friendsincode/mediaroom/internal/models"
	"github.com/friendsincode/mediaroom/internal/playlist"
)

// ErrNoSnapshot is returned when nothing was ever stored for a location.
var ErrNoSnapshot = errors.New("no snapshot stored")

// SnapshotStore keeps the last good slot list per location and date so a room
// can keep playing through backend outages and restarts.
type SnapshotStore struct {
	db *gorm.DB
}

// NewSnapshotStore creates a snapshot store.
func NewSnapshotStore(db *gorm.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// Save upserts the slot list for locationID on date.
func (s *SnapshotStore) Save(ctx context.Context, locationID, date, source string, slots []playlist.Slot) error {
	if slots == nil {
		slots = []playlist.Slot{}
	}
	now := time.Now().UTC()
	snap := models.SlotSnapshot{
		LocationID: locationID,
		Date:       date,
		Source:     source,
		Slots:      slots,
		FetchedAt:  now,
		UpdatedAt:  now,
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "location_id"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{"source", "slots", "fetched_at", "updated_at"}),
	}).Create(&snap).Error
	if err != nil {
		return fmt.Errorf("save snapshot %s/%s: %w", locationID, date, err)
	}
	return nil
}

// Latest returns the snapshot for date, or the most recent one stored for
// the location when that date was never fetched.
func (s *SnapshotStore) Latest(ctx context.Context, locationID, date string) (*models.SlotSnapshot, error) {
	var snap models.SlotSnapshot

	err := s.db.WithContext(ctx).
		Where("location_id = ? AND date = ?", locationID, date).
		First(&snap).Error
	if err == nil {
		return &snap, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("load snapshot %s/%s: %w", locationID, date, err)
	}

	err = s.db.WithContext(ctx).
		Where("location_id = ?", locationID).
		Order("date DESC").
		First(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("load latest snapshot %s: %w", locationID, err)
	}
	return &snap, nil
}

// Prune removes snapshots older than the given date string (YYYY-MM-DD).
func (s *SnapshotStore) Prune(ctx context.Context, before string) (int64, error) {
	res := s.db.WithContext(ctx).Where("date < ?", before).Delete(&models.SlotSnapshot{})
	if res.Error != nil {
		return 0, fmt.Errorf("prune snapshots: %w", res.Error)
	}
	return res.RowsAffected, nil
}
