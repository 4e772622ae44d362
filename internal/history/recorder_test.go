package history

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/mediaroom/internal/events"
	"github.com/friendsincode/mediaroom/internal/models"
)

type memoryStore struct {
	mu   sync.Mutex
	recs []*models.PlayRecord
}

func (m *memoryStore) Record(_ context.Context, rec *models.PlayRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, rec)
	return nil
}

func (m *memoryStore) MarkError(_ context.Context, loc, slot string, scheduled time.Time, reason string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.recs) - 1; i >= 0; i-- {
		r := m.recs[i]
		if r.LocationID == loc && r.SlotID == slot && (scheduled.IsZero() || r.ScheduledStart.Equal(scheduled)) {
			r.Error = reason
			return true, nil
		}
	}
	return false, nil
}

func nowPlaying(slot string, start time.Time) events.Payload {
	return events.Payload{
		"location_id": "lobby",
		"slot_id":     slot,
		"campaign":    "Campaign " + slot,
		"media":       slot + ".mp4",
		"kind":        "video",
		"starts_at":   start,
		"ends_at":     start.Add(time.Minute),
		"started_at":  start.Add(20 * time.Second),
		"seek_ms":     int64(20000),
		"in_window":   true,
	}
}

func TestRecorderPersistsPlays(t *testing.T) {
	st := &memoryStore{}
	rec := NewRecorder(st, "node-1", zerolog.Nop())
	ctx := context.Background()
	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	rec.Publish(events.EventNowPlaying, nowPlaying("a", start))
	rec.Publish(events.EventPlayerPhase, events.Payload{"location_id": "lobby"})
	rec.handle(ctx, <-rec.queue)

	select {
	case e := <-rec.queue:
		t.Fatalf("unrelated event queued: %v", e.eventType)
	default:
	}

	if len(st.recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(st.recs))
	}
	r := st.recs[0]
	if r.SlotID != "a" || r.SeekMS != 20000 || !r.InWindow || r.InstanceID != "node-1" || !r.ScheduledStart.Equal(start) {
		t.Fatalf("unexpected record: %+v", r)
	}
}

func TestRecorderAttachesErrors(t *testing.T) {
	st := &memoryStore{}
	rec := NewRecorder(st, "", zerolog.Nop())
	ctx := context.Background()
	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	// load failure after the play was recorded
	rec.handle(ctx, entry{events.EventNowPlaying, nowPlaying("a", start)})
	rec.handle(ctx, entry{events.EventMediaError, events.Payload{
		"location_id": "lobby", "slot_id": "a", "scheduled": start, "error": "decode failed",
	}})
	if st.recs[0].Error != "decode failed" {
		t.Fatalf("error not attached: %+v", st.recs[0])
	}

	// resolve failure reported before the play
	next := start.Add(time.Minute)
	rec.handle(ctx, entry{events.EventMediaError, events.Payload{
		"location_id": "lobby", "slot_id": "b", "scheduled": next, "error": "no signer",
	}})
	rec.handle(ctx, entry{events.EventNowPlaying, nowPlaying("b", next)})
	if len(st.recs) != 2 || st.recs[1].Error != "no signer" {
		t.Fatalf("pending error not applied: %+v", st.recs)
	}

	// pending error for a different slot is discarded
	rec.handle(ctx, entry{events.EventMediaError, events.Payload{
		"location_id": "lobby", "slot_id": "zzz", "error": "stale",
	}})
	rec.handle(ctx, entry{events.EventNowPlaying, nowPlaying("c", next.Add(time.Minute))})
	if st.recs[2].Error != "" {
		t.Fatalf("unrelated error applied: %+v", st.recs[2])
	}
}

func TestRecorderRunDrainsOnCancel(t *testing.T) {
	st := &memoryStore{}
	rec := NewRecorder(st, "", zerolog.Nop())
	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		rec.Publish(events.EventNowPlaying, nowPlaying("a", start.Add(time.Duration(i)*time.Minute)))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := rec.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(st.recs) != 3 {
		t.Fatalf("expected queued plays to be drained, got %d", len(st.recs))
	}
}
