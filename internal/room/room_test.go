package room

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/friendsincode/mediaroom/internal/config"
	"github.com/friendsincode/mediaroom/internal/events"
	"github.com/friendsincode/mediaroom/internal/models"
	"github.com/friendsincode/mediaroom/internal/player"
	"github.com/friendsincode/mediaroom/internal/playlist"
	"github.com/friendsincode/mediaroom/internal/store"
)

type stubSource struct {
	mu    sync.Mutex
	slots []playlist.Slot
	err   error
	dates []string
}

func (s *stubSource) Name() string { return "stub" }

func (s *stubSource) Fetch(_ context.Context, _ string, date time.Time) ([]playlist.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dates = append(s.dates, date.Format("2006-01-02"))
	return s.slots, s.err
}

func (s *stubSource) fetchedDates() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.dates...)
}

type idleTimer struct{}

func (idleTimer) Stop() bool { return true }

// frozenClock never fires timers, so the driver only reacts to updates.
type frozenClock struct{ now time.Time }

func (c frozenClock) Now() time.Time                               { return c.now }
func (c frozenClock) AfterFunc(time.Duration, func()) player.Timer { return idleTimer{} }

var testNow = time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)

func testSlots() []playlist.Slot {
	return []playlist.Slot{
		{ID: "a", MediaFile: "https://cdn.example.com/a.png", SlotStartTime: "09:00"},
		{ID: "b", MediaFile: "https://cdn.example.com/b.png", SlotStartTime: "10:00"},
		{ID: "c", MediaFile: "https://cdn.example.com/c.png", SlotStartTime: "11:00"},
	}
}

func openSnapshots(t *testing.T) *store.SnapshotStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store.NewSnapshotStore(db)
}

func newTestRoom(t *testing.T, src *stubSource, snaps Snapshots, pub events.Publisher) *Room {
	t.Helper()
	opts := playlist.DefaultOptions()
	opts.Location = time.UTC
	r, err := New(config.LocationConfig{ID: "lobby", Name: "Lobby"}, opts, Deps{
		Source:    src,
		Snapshots: snaps,
		Publisher: pub,
		Clock:     frozenClock{now: testNow},
		Logger:    zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("new room: %v", err)
	}
	return r
}

func TestNewRequiresSource(t *testing.T) {
	if _, err := New(config.LocationConfig{ID: "x"}, playlist.DefaultOptions(), Deps{}); err == nil {
		t.Fatal("expected error without a source")
	}
}

func TestRefreshSavesSnapshot(t *testing.T) {
	snaps := openSnapshots(t)
	src := &stubSource{slots: testSlots()}
	bus := events.NewBus()
	updated := bus.Subscribe(events.EventPlaylistUpdated)
	r := newTestRoom(t, src, snaps, bus)

	if err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if got := src.fetchedDates(); len(got) != 1 || got[0] != "2025-03-01" {
		t.Fatalf("unexpected fetch dates: %v", got)
	}

	snap, err := snaps.Latest(context.Background(), "lobby", "2025-03-01")
	if err != nil || len(snap.Slots) != 3 || snap.Source != "stub" {
		t.Fatalf("snapshot not saved: %+v %v", snap, err)
	}

	st := r.Status()
	if st.LastSource != "stub" || st.Build.Items != 3 || st.CycleDay != "2025-03-01" {
		t.Fatalf("unexpected status: %+v", st)
	}

	select {
	case p := <-updated:
		if p["items"] != 3 || p["source"] != "stub" {
			t.Fatalf("unexpected payload: %v", p)
		}
	case <-time.After(time.Second):
		t.Fatal("playlist.updated not published")
	}
}

func TestRefreshFallsBackToSnapshot(t *testing.T) {
	snaps := openSnapshots(t)
	if err := snaps.Save(context.Background(), "lobby", "2025-02-28", "stub", testSlots()[:2]); err != nil {
		t.Fatalf("seed: %v", err)
	}

	r := newTestRoom(t, &stubSource{err: errors.New("backend down")}, snaps, nil)
	if err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh should fall back, got %v", err)
	}
	st := r.Status()
	if st.LastSource != "snapshot" || st.Build.Items != 2 {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestRefreshFailureKeepsPlaylist(t *testing.T) {
	bus := events.NewBus()
	failed := bus.Subscribe(events.EventRefreshFailed)
	r := newTestRoom(t, &stubSource{err: errors.New("backend down")}, openSnapshots(t), bus)

	if err := r.Refresh(context.Background()); err == nil {
		t.Fatal("expected refresh error")
	}
	if st := r.Status(); st.LastError == "" || st.LastSource != "" {
		t.Fatalf("unexpected status: %+v", st)
	}
	select {
	case p := <-failed:
		if p["location_id"] != "lobby" {
			t.Fatalf("unexpected payload: %v", p)
		}
	case <-time.After(time.Second):
		t.Fatal("refresh_failed not published")
	}
}

func TestRunDeliversPlaylistToDriver(t *testing.T) {
	r := newTestRoom(t, &stubSource{slots: testSlots()}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Run(ctx)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for len(r.Driver().Playlist()) != 3 {
		if time.Now().After(deadline) {
			cancel()
			t.Fatal("driver never received the playlist")
		}
		time.Sleep(5 * time.Millisecond)
	}

	snap := r.Driver().Snapshot()
	if snap.Phase != player.PhaseActive || snap.Index != 1 || snap.Position != "2 / 3" {
		t.Fatalf("unexpected driver state: %+v", snap)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("room did not stop")
	}
	if r.Driver().Snapshot().Phase != player.PhaseStopped {
		t.Fatal("driver not stopped with the room")
	}
}

func TestCycleHookKeepsLatestDay(t *testing.T) {
	r := newTestRoom(t, &stubSource{}, nil, nil)

	r.onCycle(time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC))
	r.onCycle(time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC))

	day := <-r.cycles
	r.setCycleDay(day)
	if got := r.Status().CycleDay; got != "2025-03-03" {
		t.Fatalf("expected latest cycle day, got %s", got)
	}
}
