/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/friendsincode/mediaroom/internal/models"
)

// PlayStore persists proof-of-play history.
type PlayStore struct {
	db *gorm.DB
}

// NewPlayStore creates a play store.
func NewPlayStore(db *gorm.DB) *PlayStore {
	return &PlayStore{db: db}
}

// Record inserts a play record.
func (s *PlayStore) Record(ctx context.Context, rec *models.PlayRecord) error {
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("record play: %w", err)
	}
	return nil
}

// MarkError attaches a media error to the most recent play of slotID at the
// location scheduled at scheduled. A zero scheduled matches any play of the
// slot. It returns false when no matching play exists.
func (s *PlayStore) MarkError(ctx context.Context, locationID, slotID string, scheduled time.Time, reason string) (bool, error) {
	var rec models.PlayRecord
	q := s.db.WithContext(ctx).Where("location_id = ? AND slot_id = ?", locationID, slotID)
	if !scheduled.IsZero() {
		q = q.Where("scheduled_start = ?", scheduled)
	}
	res := q.Order("started_at DESC").
		Limit(1).
		Find(&rec)
	if res.Error != nil {
		return false, fmt.Errorf("find play: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	if err := s.db.WithContext(ctx).Model(&rec).Update("error", reason).Error; err != nil {
		return false, fmt.Errorf("mark play error: %w", err)
	}
	return true, nil
}

// Recent returns the latest plays for a location, newest first.
func (s *PlayStore) Recent(ctx context.Context, locationID string, limit int) ([]models.PlayRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var recs []models.PlayRecord
	if err := s.db.WithContext(ctx).
		Where("location_id = ?", locationID).
		Order("started_at DESC").
		Limit(limit).
		Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list plays: %w", err)
	}
	return recs, nil
}
