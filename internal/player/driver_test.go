/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package player

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/friendsincode/mediaroom/internal/events"
	"github.com/friendsincode/mediaroom/internal/playlist"
	"github.com/rs/zerolog"
)

type fakeTimer struct {
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

type fakeClock struct {
	mu        sync.Mutex
	now       time.Time
	timers    []*fakeTimer
	lastDelay time.Duration
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	c.lastDelay = d
	return &fakeTimerHandle{clock: c, timer: t}
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	for _, t := range due {
		t.f()
	}
}

func (c *fakeClock) live() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type fakeTimerHandle struct {
	clock *fakeClock
	timer *fakeTimer
}

func (h *fakeTimerHandle) Stop() bool {
	h.clock.mu.Lock()
	defer h.clock.mu.Unlock()
	active := !h.timer.stopped && !h.timer.fired
	h.timer.stopped = true
	return active
}

type fakeRenderer struct {
	mu    sync.Mutex
	calls []string
	ready func(error)
}

func (r *fakeRenderer) record(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, fmt.Sprintf(format, args...))
}

func (r *fakeRenderer) Empty()                     { r.record("empty") }
func (r *fakeRenderer) Waiting(item playlist.Item) { r.record("waiting:%s", item.Slot.MediaFile) }
func (r *fakeRenderer) LoadVideo(item playlist.Item, src string, ready func(error)) {
	r.mu.Lock()
	r.ready = ready
	r.mu.Unlock()
	r.record("load:%s", src)
}
func (r *fakeRenderer) PlayVideo(item playlist.Item, offset time.Duration) {
	r.record("play:%s@%s", item.Slot.MediaFile, offset)
}
func (r *fakeRenderer) ShowEmbed(item playlist.Item, src string) { r.record("embed:%s", src) }
func (r *fakeRenderer) ShowImage(item playlist.Item, src string) { r.record("image:%s", src) }
func (r *fakeRenderer) ShowUnsupported(item playlist.Item, reason string) {
	r.record("unsupported:%s", item.Slot.MediaFile)
}
func (r *fakeRenderer) Release() { r.record("release") }

func (r *fakeRenderer) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *fakeRenderer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

func (r *fakeRenderer) Ready(err error) {
	r.mu.Lock()
	ready := r.ready
	r.mu.Unlock()
	ready(err)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.EventType
}

func (p *recordingPublisher) Publish(t events.EventType, _ events.Payload) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, t)
}

func (p *recordingPublisher) count(t events.EventType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e == t {
			n++
		}
	}
	return n
}

func day(hour, minute int) time.Time {
	return time.Date(2025, 3, 1, hour, minute, 0, 0, time.UTC)
}

func buildAt(now time.Time, slots ...playlist.Slot) []playlist.Item {
	opts := playlist.DefaultOptions()
	opts.Location = time.UTC
	return playlist.Build(slots, now, opts, zerolog.Nop())
}

// pump delivers queued timer firings and ready signals the way Run would.
func pump(d *Driver) {
	for {
		select {
		case k := <-d.fires:
			d.handleFire(k)
		case r := <-d.readies:
			d.handleReady(r)
		default:
			return
		}
	}
}

func newTestDriver(now time.Time, opts ...Option) (*Driver, *fakeClock, *fakeRenderer) {
	clock := newFakeClock(now)
	r := &fakeRenderer{}
	opts = append([]Option{WithClock(clock)}, opts...)
	return New("loc-1", r, zerolog.Nop(), opts...), clock, r
}

func expectCalls(t *testing.T, r *fakeRenderer, want ...string) {
	t.Helper()
	got := r.Calls()
	if len(got) != len(want) {
		t.Fatalf("renderer calls: got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("renderer calls: got %v want %v", got, want)
		}
	}
}

func TestDriverResumesInsideWindow(t *testing.T) {
	now := day(9, 2)
	d, clock, r := newTestDriver(now)

	items := buildAt(now,
		playlist.Slot{MediaFile: "a.mp4", SlotStartTime: "09:00"},
		playlist.Slot{MediaFile: "b.jpg", SlotStartTime: "09:05"},
	)
	d.handleUpdate(items)

	expectCalls(t, r, "load:a.mp4")
	snap := d.Snapshot()
	if snap.Phase != PhaseActive || snap.Index != 0 || snap.SeekOffset != 2*time.Minute {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if !snap.InWindow || snap.Position != "1 / 2" {
		t.Fatalf("unexpected window/position: %+v", snap)
	}
	if clock.lastDelay != 3*time.Minute {
		t.Fatalf("transition delay %v want 3m", clock.lastDelay)
	}

	r.Ready(nil)
	pump(d)
	expectCalls(t, r, "load:a.mp4", "play:a.mp4@2m0s")

	clock.Advance(3 * time.Minute)
	pump(d)
	expectCalls(t, r, "load:a.mp4", "play:a.mp4@2m0s", "image:b.jpg")
	if snap := d.Snapshot(); snap.Index != 1 || snap.SeekOffset != 0 {
		t.Fatalf("unexpected snapshot after transition: %+v", snap)
	}
}

func TestDriverSeekOnlyForVideos(t *testing.T) {
	now := day(9, 2)
	d, _, r := newTestDriver(now)

	d.handleUpdate(buildAt(now, playlist.Slot{MediaFile: "poster.png", SlotStartTime: "09:00"}))
	expectCalls(t, r, "image:poster.png")
	if snap := d.Snapshot(); snap.SeekOffset != 0 {
		t.Fatalf("images must not seek, got %v", snap.SeekOffset)
	}
}

func TestDriverWaitsForFutureStart(t *testing.T) {
	now := day(8, 30)
	d, clock, r := newTestDriver(now)

	d.handleUpdate(buildAt(now,
		playlist.Slot{MediaFile: "a.mp4", SlotStartTime: "09:00"},
		playlist.Slot{MediaFile: "b.mp4", SlotStartTime: "10:00"},
	))

	expectCalls(t, r, "waiting:a.mp4")
	if snap := d.Snapshot(); snap.Phase != PhasePending || snap.InWindow {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	clock.Advance(30 * time.Minute)
	pump(d)
	expectCalls(t, r, "waiting:a.mp4", "load:a.mp4")

	r.Ready(nil)
	pump(d)
	expectCalls(t, r, "waiting:a.mp4", "load:a.mp4", "play:a.mp4@0s")
}

func TestDriverWrapsCycleAndShiftsPlaylist(t *testing.T) {
	now := day(12, 0)
	var hookDay time.Time
	pub := &recordingPublisher{}
	d, clock, r := newTestDriver(now,
		WithCycleHook(func(day time.Time) { hookDay = day }),
		WithPublisher(pub),
	)

	d.handleUpdate(buildAt(now,
		playlist.Slot{MediaFile: "a.png", SlotStartTime: "09:00"},
		playlist.Slot{MediaFile: "b.png", SlotStartTime: "10:00"},
		playlist.Slot{MediaFile: "c.png", SlotStartTime: "11:00"},
	))
	if snap := d.Snapshot(); snap.Index != 2 {
		t.Fatalf("expected last item active, got %+v", snap)
	}

	// The last item runs until the 08:00 cycle boundary the next morning.
	clock.Advance(20 * time.Hour)
	pump(d)

	// The first slot of the new day has not started yet.
	expectCalls(t, r, "image:c.png", "waiting:a.png")
	if snap := d.Snapshot(); snap.Index != 0 || snap.Phase != PhasePending || snap.InWindow {
		t.Fatalf("expected wrap to wait for the first item, got %+v", snap)
	}

	clock.Advance(time.Hour)
	pump(d)
	expectCalls(t, r, "image:c.png", "waiting:a.png", "image:a.png")
	if snap := d.Snapshot(); snap.Index != 0 || snap.Phase != PhaseActive || !snap.InWindow {
		t.Fatalf("expected first item active at 09:00, got %+v", snap)
	}

	next := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)
	if !hookDay.Equal(next) {
		t.Fatalf("cycle hook day %v want %v", hookDay, next)
	}
	if first := d.Playlist()[0]; !first.Start.Equal(time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("playlist not shifted: %v", first.Start)
	}
	if pub.count(events.EventCycleWrapped) != 1 {
		t.Fatalf("expected one cycle event")
	}
}

func TestDriverWrapDoesNotLoadVideoBeforeItsSlot(t *testing.T) {
	now := day(12, 0)
	d, clock, r := newTestDriver(now)

	d.handleUpdate(buildAt(now,
		playlist.Slot{MediaFile: "a.mp4", SlotStartTime: "10:00"},
		playlist.Slot{MediaFile: "b.png", SlotStartTime: "11:00"},
	))

	clock.Advance(20 * time.Hour)
	pump(d)
	expectCalls(t, r, "image:b.png", "waiting:a.mp4")
	if clock.lastDelay != 2*time.Hour {
		t.Fatalf("start delay %v want 2h", clock.lastDelay)
	}

	clock.Advance(2 * time.Hour)
	pump(d)
	expectCalls(t, r, "image:b.png", "waiting:a.mp4", "load:a.mp4")
	if snap := d.Snapshot(); snap.Phase != PhaseActive || snap.SeekOffset != 0 {
		t.Fatalf("unexpected snapshot at 10:00: %+v", snap)
	}
}

func TestDriverRebuildWaitsForFutureItem(t *testing.T) {
	now := day(9, 6)
	d, _, r := newTestDriver(now)

	d.handleUpdate(buildAt(now,
		playlist.Slot{MediaFile: "a.png", SlotStartTime: "09:00"},
		playlist.Slot{MediaFile: "b.png", SlotStartTime: "09:05"},
	))
	expectCalls(t, r, "image:b.png")

	// The active slot moved later in the day.
	d.handleUpdate(buildAt(now,
		playlist.Slot{MediaFile: "a.png", SlotStartTime: "09:00"},
		playlist.Slot{MediaFile: "b.png", SlotStartTime: "09:30"},
	))
	expectCalls(t, r, "image:b.png", "waiting:b.png")
	if snap := d.Snapshot(); snap.Phase != PhasePending || snap.Index != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestDriverStaleWindowAdvancesAtMinimumDelay(t *testing.T) {
	built := day(12, 0)
	now := time.Date(2025, 3, 2, 9, 30, 0, 0, time.UTC)
	d, clock, r := newTestDriver(now)

	d.handleUpdate(buildAt(built,
		playlist.Slot{MediaFile: "a.png", SlotStartTime: "09:00"},
		playlist.Slot{MediaFile: "b.png", SlotStartTime: "10:00"},
	))

	expectCalls(t, r, "image:a.png")
	if clock.lastDelay != MinTransitionDelay {
		t.Fatalf("delay %v want %v", clock.lastDelay, MinTransitionDelay)
	}
}

func TestDriverEmbedNotReloadedWhenUnchanged(t *testing.T) {
	now := day(9, 0)
	d, clock, r := newTestDriver(now)

	d.handleUpdate(buildAt(now,
		playlist.Slot{MediaFile: "https://signage.example.com/embed/player/loc-2", SlotStartTime: "09:00"},
		playlist.Slot{MediaFile: "https://signage.example.com/embed/player/loc-2", SlotStartTime: "09:10"},
		playlist.Slot{MediaFile: "logo.png", SlotStartTime: "09:20"},
		playlist.Slot{MediaFile: "https://signage.example.com/embed/player/loc-2", SlotStartTime: "09:30"},
	))

	clock.Advance(10 * time.Minute)
	pump(d)
	clock.Advance(10 * time.Minute)
	pump(d)
	clock.Advance(10 * time.Minute)
	pump(d)

	expectCalls(t, r,
		"embed:https://signage.example.com/embed/player/loc-2",
		"image:logo.png",
		"embed:https://signage.example.com/embed/player/loc-2",
	)
	if snap := d.Snapshot(); snap.Index != 3 {
		t.Fatalf("expected index 3, got %d", snap.Index)
	}
}

func TestDriverMediaErrorsAreNotFatal(t *testing.T) {
	now := day(9, 0)
	pub := &recordingPublisher{}
	resolver := ResolverFunc(func(_ context.Context, ref string) (string, error) {
		if ref == "missing.mp4" {
			return "", errors.New("object not found")
		}
		return ref, nil
	})
	d, clock, r := newTestDriver(now, WithResolver(resolver), WithPublisher(pub))

	d.handleUpdate(buildAt(now,
		playlist.Slot{MediaFile: "missing.mp4", SlotStartTime: "09:00"},
		playlist.Slot{MediaFile: "broken.mp4", SlotStartTime: "09:01"},
		playlist.Slot{MediaFile: "ok.png", SlotStartTime: "09:02"},
	))
	expectCalls(t, r, "unsupported:missing.mp4")

	clock.Advance(time.Minute)
	pump(d)
	r.Ready(errors.New("decode failed"))
	pump(d)
	expectCalls(t, r, "unsupported:missing.mp4", "load:broken.mp4", "unsupported:broken.mp4")

	clock.Advance(time.Minute)
	pump(d)
	expectCalls(t, r, "unsupported:missing.mp4", "load:broken.mp4", "unsupported:broken.mp4", "image:ok.png")

	if got := pub.count(events.EventMediaError); got != 2 {
		t.Fatalf("media error events: got %d want 2", got)
	}
}

func TestDriverIgnoresStaleSignals(t *testing.T) {
	now := day(9, 0)
	d, clock, r := newTestDriver(now)

	d.handleUpdate(buildAt(now,
		playlist.Slot{MediaFile: "a.mp4", SlotStartTime: "09:00"},
		playlist.Slot{MediaFile: "b.png", SlotStartTime: "09:05"},
	))
	oldTask := d.task
	oldReady := r.ready

	// Rebuilt schedule replaces the first item.
	d.handleUpdate(buildAt(now,
		playlist.Slot{MediaFile: "c.png", SlotStartTime: "09:00"},
		playlist.Slot{MediaFile: "b.png", SlotStartTime: "09:05"},
	))
	if clock.live() != 1 {
		t.Fatalf("expected exactly one live timer, got %d", clock.live())
	}

	d.handleFire(oldTask)
	oldReady(nil)
	pump(d)

	expectCalls(t, r, "load:a.mp4", "image:c.png")
	if snap := d.Snapshot(); snap.Index != 0 {
		t.Fatalf("stale firing moved the index: %+v", snap)
	}
}

func TestDriverRebuildKeepsIndexAndIgnoresIdenticalPlaylists(t *testing.T) {
	now := day(9, 6)
	d, _, r := newTestDriver(now)

	slots := []playlist.Slot{
		{MediaFile: "a.png", SlotStartTime: "09:00"},
		{MediaFile: "b.png", SlotStartTime: "09:05"},
		{MediaFile: "c.png", SlotStartTime: "09:10"},
	}
	d.handleUpdate(buildAt(now, slots...))
	d.handleUpdate(buildAt(now, slots...))
	expectCalls(t, r, "image:b.png")

	slots[1].MediaFile = "b2.png"
	d.handleUpdate(buildAt(now, slots...))
	expectCalls(t, r, "image:b.png", "image:b2.png")

	d.handleUpdate(buildAt(now, slots[0]))
	expectCalls(t, r, "image:b.png", "image:b2.png", "image:a.png")
	if snap := d.Snapshot(); snap.Index != 0 || snap.Total != 1 {
		t.Fatalf("out of range index should reset to 0: %+v", snap)
	}
}

func TestDriverEmptyPlaylist(t *testing.T) {
	now := day(9, 2)
	d, _, r := newTestDriver(now)

	d.handleUpdate(nil)
	expectCalls(t, r, "empty")
	if snap := d.Snapshot(); snap.Phase != PhaseEmpty || snap.Item != nil {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	// Initialization still happens on the first non-empty playlist.
	d.handleUpdate(buildAt(now, playlist.Slot{MediaFile: "a.mp4", SlotStartTime: "09:00"}))
	expectCalls(t, r, "empty", "load:a.mp4")
	if snap := d.Snapshot(); snap.SeekOffset != 2*time.Minute {
		t.Fatalf("expected resume seek, got %v", snap.SeekOffset)
	}

	d.handleUpdate(nil)
	d.handleUpdate(buildAt(now, playlist.Slot{MediaFile: "z.mp4", SlotStartTime: "09:00"}))
	expectCalls(t, r, "empty", "load:a.mp4", "empty", "load:z.mp4")
	if snap := d.Snapshot(); snap.SeekOffset != 0 || snap.Index != 0 {
		t.Fatalf("resume logic must not run twice: %+v", snap)
	}
}

func TestDriverEmptyPlaylistResumesAtCurrentItem(t *testing.T) {
	now := day(9, 2)
	pub := &recordingPublisher{}
	d, clock, r := newTestDriver(now, WithPublisher(pub))

	slots := []playlist.Slot{
		{MediaFile: "a.png", SlotStartTime: "09:00"},
		{MediaFile: "b.png", SlotStartTime: "09:10"},
		{MediaFile: "c.png", SlotStartTime: "09:20"},
		{MediaFile: "d.mp4", SlotStartTime: "09:30"},
	}
	d.handleUpdate(buildAt(now, slots...))
	d.handleUpdate(nil)

	clock.Advance(33 * time.Minute)
	pump(d)
	d.handleUpdate(buildAt(clock.Now(), slots...))
	pump(d)

	// Items whose windows closed while the playlist was empty are skipped.
	expectCalls(t, r, "image:a.png", "empty", "load:d.mp4")
	snap := d.Snapshot()
	if snap.Phase != PhaseActive || snap.Index != 3 || !snap.InWindow {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.SeekOffset != 0 {
		t.Fatalf("resume seek applied twice: %v", snap.SeekOffset)
	}
	if got := pub.count(events.EventNowPlaying); got != 2 {
		t.Fatalf("now playing events: got %d want 2", got)
	}
}

func TestDriverEmptyPlaylistWaitsForNextItem(t *testing.T) {
	now := day(7, 0)
	d, clock, r := newTestDriver(now)

	d.handleUpdate(nil)
	clock.Advance(time.Hour)

	d.handleUpdate(buildAt(clock.Now(), playlist.Slot{MediaFile: "a.png", SlotStartTime: "08:00"}))
	expectCalls(t, r, "empty", "image:a.png")

	d.handleUpdate(nil)
	d.handleUpdate(buildAt(clock.Now(),
		playlist.Slot{MediaFile: "a.png", SlotStartTime: "08:30"},
		playlist.Slot{MediaFile: "b.png", SlotStartTime: "09:00"},
	))
	expectCalls(t, r, "empty", "image:a.png", "empty", "waiting:a.png")
	if snap := d.Snapshot(); snap.Phase != PhasePending || snap.Index != 0 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestDriverStopReleasesRenderer(t *testing.T) {
	now := day(9, 2)
	d, clock, r := newTestDriver(now)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- d.Run(ctx) }()

	d.Update(buildAt(now, playlist.Slot{MediaFile: "a.png", SlotStartTime: "09:00"}))

	deadline := time.After(2 * time.Second)
	for d.Snapshot().Phase != PhaseActive {
		select {
		case <-deadline:
			t.Fatalf("driver never became active")
		case <-time.After(5 * time.Millisecond):
		}
	}

	d.Stop()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("driver did not stop")
	}

	expectCalls(t, r, "image:a.png", "release")
	if snap := d.Snapshot(); snap.Phase != PhaseStopped {
		t.Fatalf("phase %q want stopped", snap.Phase)
	}
	if clock.live() != 0 {
		t.Fatalf("stop must cancel the outstanding task")
	}
}

func TestDecide(t *testing.T) {
	items := buildAt(day(9, 0),
		playlist.Slot{MediaFile: "a.mp4", SlotStartTime: "09:00"},
		playlist.Slot{MediaFile: "b.mp4", SlotStartTime: "09:00:01"},
	)

	// 09:00:00.5 is inside a one-second window; seek clamps to duration minus headroom.
	got := Decide(items, day(9, 0).Add(950*time.Millisecond))
	if got.Phase != PhaseActive || got.Seek != 900*time.Millisecond {
		t.Fatalf("unexpected decision: %+v", got)
	}

	if got := Decide(nil, day(9, 0)); got.Phase != PhaseEmpty || got.Index != -1 {
		t.Fatalf("unexpected decision for empty playlist: %+v", got)
	}
}
