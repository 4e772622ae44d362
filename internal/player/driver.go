/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package player

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/friendsincode/mediaroom/internal/events"
	"github.com/friendsincode/mediaroom/internal/playlist"
	"github.com/friendsincode/mediaroom/internal/telemetry"
	"github.com/rs/zerolog"
)

// MinTransitionDelay bounds how quickly the driver advances past an item
// whose window has already elapsed.
const MinTransitionDelay = 500 * time.Millisecond

// seekHeadroom keeps a resumed video from being seeked onto its last frame.
const seekHeadroom = 100 * time.Millisecond

// Phase is the driver's playback state.
type Phase string

const (
	PhaseUninitialized Phase = "uninitialized"
	PhaseEmpty         Phase = "empty"
	PhasePending       Phase = "pending"
	PhaseActive        Phase = "active"
	PhaseStopped       Phase = "stopped"
)

// Decision is where a fresh driver starts for a playlist at a given instant.
type Decision struct {
	Phase    Phase
	Index    int
	Seek     time.Duration
	InWindow bool
}

// Decide computes the initial placement: the item playing now (resuming
// videos mid-item), else the next item to start, else the first item.
func Decide(items []playlist.Item, now time.Time) Decision {
	p := playlist.Locate(items, now)
	switch {
	case p.Index < 0:
		return Decision{Phase: PhaseEmpty, Index: -1}
	case p.InWindow:
		d := Decision{Phase: PhaseActive, Index: p.Index, InWindow: true}
		if it := items[p.Index]; it.Kind == playlist.KindVideo {
			d.Seek = clampSeek(now.Sub(it.Start), it.Duration)
		}
		return d
	case p.Future:
		return Decision{Phase: PhasePending, Index: p.Index}
	default:
		return Decision{Phase: PhaseActive, Index: 0}
	}
}

func clampSeek(offset, duration time.Duration) time.Duration {
	limit := duration - seekHeadroom
	if limit < 0 {
		limit = 0
	}
	if offset > limit {
		offset = limit
	}
	if offset < 0 {
		offset = 0
	}
	return offset
}

// CycleHook is called from the driver loop after the playlist wraps and has
// been moved forward one day. day is midnight of the new cycle day. It must
// not block.
type CycleHook func(day time.Time)

// Option configures a Driver.
type Option func(*Driver)

// WithClock replaces the system clock.
func WithClock(c Clock) Option {
	return func(d *Driver) { d.clock = c }
}

// WithResolver sets how media references become screen URLs.
func WithResolver(r Resolver) Option {
	return func(d *Driver) { d.resolver = r }
}

// WithPublisher sets where now-playing and error events go.
func WithPublisher(p events.Publisher) Option {
	return func(d *Driver) { d.publisher = p }
}

// WithCycleHook registers a callback for cycle wraps.
func WithCycleHook(h CycleHook) Option {
	return func(d *Driver) { d.onCycle = h }
}

type taskKind int

const (
	taskStart taskKind = iota + 1
	taskTransition
)

// taskKey identifies the single outstanding timer.
type taskKey struct {
	seq  uint64
	item string
	kind taskKind
}

type readyResult struct {
	seq uint64
	err error
}

// Driver owns the playback state of one location.
type Driver struct {
	locationID string
	renderer   Renderer
	clock      Clock
	resolver   Resolver
	publisher  events.Publisher
	onCycle    CycleHook
	logger     zerolog.Logger

	updates chan []playlist.Item
	fires   chan taskKey
	readies chan readyResult
	stopCh  chan struct{}
	done    chan struct{}
	stop    sync.Once
	runCtx  context.Context

	// Loop-owned state.
	items       []playlist.Item
	phase       Phase
	index       int
	initialized bool
	seq         uint64
	task        taskKey
	timer       Timer
	loadSeq     uint64
	pendingSeek time.Duration
	loadedEmbed string
	resolved    string
	activeSince time.Time
	activeSeek  time.Duration

	snap  atomic.Pointer[Snapshot]
	plist atomic.Pointer[[]playlist.Item]
}

// New creates a driver. Call Run to start it.
func New(locationID string, renderer Renderer, logger zerolog.Logger, opts ...Option) *Driver {
	d := &Driver{
		locationID: locationID,
		renderer:   renderer,
		clock:      RealClock{},
		resolver:   IdentityResolver,
		logger:     logger.With().Str("component", "driver").Str("location", locationID).Logger(),
		updates:    make(chan []playlist.Item, 1),
		fires:      make(chan taskKey, 4),
		readies:    make(chan readyResult, 4),
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
		runCtx:     context.Background(),
		phase:      PhaseUninitialized,
		index:      -1,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.publishSnapshot()
	return d
}

// LocationID returns the location this driver plays.
func (d *Driver) LocationID() string { return d.locationID }

// Update hands the driver a freshly built playlist. Only the latest pending
// playlist is kept.
func (d *Driver) Update(items []playlist.Item) {
	for {
		select {
		case d.updates <- items:
			return
		default:
		}
		select {
		case <-d.updates:
		default:
		}
	}
}

// Stop ends the loop and releases the renderer.
func (d *Driver) Stop() {
	d.stop.Do(func() { close(d.stopCh) })
}

// Done is closed once Run has returned.
func (d *Driver) Done() <-chan struct{} { return d.done }

// Run processes playlist updates, timers and ready signals until ctx is
// cancelled or Stop is called.
func (d *Driver) Run(ctx context.Context) error {
	d.runCtx = ctx
	defer close(d.done)
	defer d.shutdown()

	d.logger.Debug().Msg("driver started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.stopCh:
			return nil
		case items := <-d.updates:
			d.handleUpdate(items)
		case key := <-d.fires:
			d.handleFire(key)
		case r := <-d.readies:
			d.handleReady(r)
		}
	}
}

func (d *Driver) handleUpdate(items []playlist.Item) {
	if d.phase == PhaseStopped {
		return
	}

	if !d.initialized {
		d.setPlaylist(items)
		if len(items) == 0 {
			d.enterEmpty()
			return
		}
		d.initialize()
		return
	}

	if playlist.Equal(d.items, items) {
		return
	}

	wasEmpty := d.phase == PhaseEmpty
	d.setPlaylist(items)
	if len(items) == 0 {
		d.enterEmpty()
		return
	}

	now := d.clock.Now()
	if wasEmpty {
		// Placed like a first load, but the resume seek only ever applies once.
		decision := Decide(items, now)
		d.logger.Info().
			Str("phase", string(decision.Phase)).
			Int("index", decision.Index).
			Int("items", len(items)).
			Msg("playback resumed after empty playlist")
		d.place(decision.Index, now)
		return
	}

	idx := d.index
	if idx < 0 || idx >= len(items) {
		idx = 0
	}
	d.place(idx, now)
}

// place shows item idx, or waits for it when its window has not opened yet.
func (d *Driver) place(idx int, now time.Time) {
	if d.items[idx].Start.After(now) {
		d.enterPending(idx, now)
		return
	}
	d.activate(idx, 0)
}

func (d *Driver) initialize() {
	now := d.clock.Now()
	decision := Decide(d.items, now)
	d.initialized = true

	d.logger.Info().
		Str("phase", string(decision.Phase)).
		Int("index", decision.Index).
		Dur("seek", decision.Seek).
		Int("items", len(d.items)).
		Msg("playback initialized")

	if decision.Phase == PhasePending {
		d.enterPending(decision.Index, now)
		return
	}
	d.activate(decision.Index, decision.Seek)
}

func (d *Driver) enterEmpty() {
	d.cancelTask()
	d.index = -1
	d.loadedEmbed = ""
	d.resolved = ""
	d.setPhase(PhaseEmpty)
	d.renderer.Empty()
	d.publishSnapshot()
}

func (d *Driver) enterPending(idx int, now time.Time) {
	d.cancelTask()
	d.seq++
	d.index = idx
	d.resolved = ""
	d.setPhase(PhasePending)

	item := d.items[idx]
	d.renderer.Waiting(item)
	d.arm(taskStart, item, item.Start.Sub(now))
	d.publishSnapshot()
}

func (d *Driver) activate(idx int, seek time.Duration) {
	d.cancelTask()
	d.seq++
	d.index = idx
	d.loadSeq = 0
	d.pendingSeek = 0
	d.setPhase(PhaseActive)

	item := d.items[idx]
	now := d.clock.Now()
	d.activeSince = now
	d.activeSeek = seek

	src, err := d.resolver.Resolve(d.runCtx, item.Slot.MediaFile)
	switch {
	case err != nil:
		d.resolved = ""
		d.loadedEmbed = ""
		d.mediaError(item, err)
		d.renderer.ShowUnsupported(item, "media unavailable")
	case item.Kind == playlist.KindVideo:
		d.resolved = src
		d.loadedEmbed = ""
		d.loadSeq = d.seq
		d.pendingSeek = seek
		d.renderer.LoadVideo(item, src, d.readyFunc(d.seq))
	case item.Kind == playlist.KindEmbed:
		d.resolved = src
		if src != d.loadedEmbed {
			d.renderer.ShowEmbed(item, src)
			d.loadedEmbed = src
		}
	case item.Kind == playlist.KindImage:
		d.resolved = src
		d.loadedEmbed = ""
		d.renderer.ShowImage(item, src)
	default:
		d.resolved = src
		d.loadedEmbed = ""
		d.renderer.ShowUnsupported(item, "unsupported media type")
	}

	delay := item.End.Sub(now)
	if delay < MinTransitionDelay {
		delay = MinTransitionDelay
	}
	d.arm(taskTransition, item, delay)

	d.publishNowPlaying(item, now, seek)
	d.publishSnapshot()
}

func (d *Driver) handleFire(key taskKey) {
	if d.phase == PhaseStopped || key != d.task {
		return
	}
	d.timer = nil
	d.task = taskKey{}

	switch key.kind {
	case taskStart:
		d.activate(d.index, 0)
	case taskTransition:
		next := (d.index + 1) % len(d.items)
		if next == 0 {
			d.wrap()
		}
		d.place(next, d.clock.Now())
	}
}

// wrap moves the playlist to the next cycle day so the repeating schedule
// stays aligned with the wall clock.
func (d *Driver) wrap() {
	d.setPlaylist(playlist.Shift(d.items, 1))
	telemetry.CycleWraps.WithLabelValues(d.locationID).Inc()

	first := d.items[0].Start
	y, m, dd := first.Date()
	day := time.Date(y, m, dd, 0, 0, 0, 0, first.Location())

	d.logger.Debug().Time("cycle_day", day).Msg("playlist cycle wrapped")
	d.publish(events.EventCycleWrapped, events.Payload{
		"location_id": d.locationID,
		"cycle_day":   day.Format("2006-01-02"),
	})
	if d.onCycle != nil {
		d.onCycle(day)
	}
}

func (d *Driver) handleReady(r readyResult) {
	if d.phase != PhaseActive || r.seq == 0 || r.seq != d.loadSeq {
		return
	}
	d.loadSeq = 0
	item := d.items[d.index]

	if r.err != nil {
		d.mediaError(item, r.err)
		d.renderer.ShowUnsupported(item, "media failed to load")
		return
	}

	seek := d.pendingSeek
	d.pendingSeek = 0
	d.renderer.PlayVideo(item, seek)
}

func (d *Driver) readyFunc(seq uint64) func(error) {
	var once sync.Once
	return func(err error) {
		once.Do(func() {
			select {
			case d.readies <- readyResult{seq: seq, err: err}:
			case <-d.done:
			}
		})
	}
}

func (d *Driver) arm(kind taskKind, item playlist.Item, delay time.Duration) {
	if delay < 0 {
		delay = 0
	}
	key := taskKey{seq: d.seq, item: item.Key(), kind: kind}
	d.task = key
	d.timer = d.clock.AfterFunc(delay, func() {
		select {
		case d.fires <- key:
		case <-d.done:
		}
	})
}

func (d *Driver) cancelTask() {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = nil
	d.task = taskKey{}
}

func (d *Driver) shutdown() {
	d.cancelTask()
	d.loadSeq = 0
	d.setPhase(PhaseStopped)
	d.renderer.Release()
	d.publishSnapshot()
	d.logger.Debug().Msg("driver stopped")
}

func (d *Driver) setPhase(p Phase) {
	if d.phase != p {
		telemetry.DriverTransitions.WithLabelValues(string(p)).Inc()
		d.publish(events.EventPlayerPhase, events.Payload{
			"location_id": d.locationID,
			"phase":       string(p),
			"previous":    string(d.phase),
		})
	}
	d.phase = p
}

func (d *Driver) setPlaylist(items []playlist.Item) {
	d.items = items
	cp := append([]playlist.Item(nil), items...)
	d.plist.Store(&cp)
}

func (d *Driver) mediaError(item playlist.Item, err error) {
	telemetry.MediaErrors.WithLabelValues(string(item.Kind)).Inc()
	d.logger.Warn().
		Err(err).
		Str("slot_id", item.Slot.ID).
		Str("media", item.Slot.MediaFile).
		Str("kind", string(item.Kind)).
		Msg("media error")
	d.publish(events.EventMediaError, events.Payload{
		"location_id": d.locationID,
		"slot_id":     item.Slot.ID,
		"media":       item.Slot.MediaFile,
		"kind":        string(item.Kind),
		"scheduled":   item.Start,
		"error":       err.Error(),
	})
}

func (d *Driver) publishNowPlaying(item playlist.Item, now time.Time, seek time.Duration) {
	d.publish(events.EventNowPlaying, events.Payload{
		"location_id": d.locationID,
		"index":       d.index,
		"position":    d.index + 1,
		"total":       len(d.items),
		"slot_id":     item.Slot.ID,
		"campaign":    item.Slot.DisplayName(),
		"media":       item.Slot.MediaFile,
		"resolved":    d.resolved,
		"kind":        string(item.Kind),
		"starts_at":   item.Start,
		"ends_at":     item.End,
		"started_at":  now,
		"seek_ms":     seek.Milliseconds(),
		"in_window":   item.Contains(now),
	})
}

func (d *Driver) publish(t events.EventType, p events.Payload) {
	if d.publisher != nil {
		d.publisher.Publish(t, p)
	}
}
