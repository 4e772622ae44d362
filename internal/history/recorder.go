/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package history keeps the proof-of-play log: which item each location
// actually started, when, and whether its media failed.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/mediaroom/internal/events"
	"github.com/friendsincode/mediaroom/internal/models"
)

// Store is the persistence the recorder writes to.
type Store interface {
	Record(ctx context.Context, rec *models.PlayRecord) error
	MarkError(ctx context.Context, locationID, slotID string, scheduled time.Time, reason string) (bool, error)
}

type entry struct {
	eventType events.EventType
	payload   events.Payload
}

type pendingError struct {
	slotID string
	reason string
}

// Recorder is an events.Publisher that persists now-playing and media-error
// events published by local drivers. Events are queued and written by Run.
type Recorder struct {
	store      Store
	instanceID string
	logger     zerolog.Logger
	queue      chan entry

	// Errors reported before their play was recorded, keyed by location.
	pending map[string]pendingError
}

// NewRecorder creates a recorder with a bounded queue.
func NewRecorder(store Store, instanceID string, logger zerolog.Logger) *Recorder {
	return &Recorder{
		store:      store,
		instanceID: instanceID,
		logger:     logger.With().Str("component", "history").Logger(),
		queue:      make(chan entry, 256),
		pending:    make(map[string]pendingError),
	}
}

// Publish implements events.Publisher. It never blocks; when the queue is
// full the event is dropped and logged.
func (r *Recorder) Publish(eventType events.EventType, payload events.Payload) {
	if eventType != events.EventNowPlaying && eventType != events.EventMediaError {
		return
	}
	select {
	case r.queue <- entry{eventType: eventType, payload: payload}:
	default:
		r.logger.Warn().Str("event_type", string(eventType)).Msg("history queue full, dropping event")
	}
}

// Run writes queued events until ctx is cancelled, then drains what is left.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			r.drain()
			return nil
		case e := <-r.queue:
			r.handle(ctx, e)
		}
	}
}

func (r *Recorder) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case e := <-r.queue:
			r.handle(ctx, e)
		default:
			return
		}
	}
}

func (r *Recorder) handle(ctx context.Context, e entry) {
	var err error
	switch e.eventType {
	case events.EventNowPlaying:
		err = r.recordPlay(ctx, e.payload)
	case events.EventMediaError:
		err = r.recordError(ctx, e.payload)
	}
	if err != nil {
		r.logger.Error().Err(err).Str("event_type", string(e.eventType)).Msg("failed to persist history")
	}
}

func (r *Recorder) recordPlay(ctx context.Context, p events.Payload) error {
	rec := &models.PlayRecord{
		LocationID:     str(p, "location_id"),
		SlotID:         str(p, "slot_id"),
		Campaign:       str(p, "campaign"),
		MediaFile:      str(p, "media"),
		Kind:           str(p, "kind"),
		ScheduledStart: ts(p, "starts_at"),
		ScheduledEnd:   ts(p, "ends_at"),
		StartedAt:      ts(p, "started_at"),
		SeekMS:         i64(p, "seek_ms"),
		InWindow:       boolean(p, "in_window"),
		InstanceID:     r.instanceID,
	}
	if rec.LocationID == "" {
		return fmt.Errorf("now playing event without location")
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now()
	}
	if pe, ok := r.pending[rec.LocationID]; ok {
		delete(r.pending, rec.LocationID)
		if pe.slotID == rec.SlotID {
			rec.Error = pe.reason
		}
	}
	return r.store.Record(ctx, rec)
}

func (r *Recorder) recordError(ctx context.Context, p events.Payload) error {
	loc, slot, reason := str(p, "location_id"), str(p, "slot_id"), str(p, "error")
	if loc == "" {
		return fmt.Errorf("media error event without location")
	}

	// A resolve failure is reported before the play itself is published.
	// Errors for the play already recorded (load failures) attach directly.
	ok, err := r.store.MarkError(ctx, loc, slot, ts(p, "scheduled"), reason)
	if err != nil {
		return err
	}
	if !ok {
		r.pending[loc] = pendingError{slotID: slot, reason: reason}
	}
	return nil
}

func str(p events.Payload, key string) string {
	switch v := p[key].(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	}
	return ""
}

func ts(p events.Payload, key string) time.Time {
	switch v := p[key].(type) {
	case time.Time:
		return v
	case string:
		t, _ := time.Parse(time.RFC3339Nano, v)
		return t
	}
	return time.Time{}
}

func i64(p events.Payload, key string) int64 {
	switch v := p[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

func boolean(p events.Payload, key string) bool {
	v, _ := p[key].(bool)
	return v
}
