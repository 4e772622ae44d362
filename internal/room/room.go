/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package room ties one location's slot source, playlist builder, playback
// driver and screens together.
package room

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/friendsincode/mediaroom/internal/cache"
	"github.com/friendsincode/mediaroom/internal/config"
	"github.com/friendsincode/mediaroom/internal/events"
	"github.com/friendsincode/mediaroom/internal/models"
	"github.com/friendsincode/mediaroom/internal/player"
	"github.com/friendsincode/mediaroom/internal/playlist"
	"github.com/friendsincode/mediaroom/internal/screen"
	"github.com/friendsincode/mediaroom/internal/slotsource"
	"github.com/friendsincode/mediaroom/internal/store"
	"github.com/friendsincode/mediaroom/internal/telemetry"
)

// DefaultRefreshInterval is how often slots are re-fetched.
const DefaultRefreshInterval = 5 * time.Minute

// Snapshots is the last-known-good slot storage a room falls back to.
type Snapshots interface {
	Save(ctx context.Context, locationID, date, source string, slots []playlist.Slot) error
	Latest(ctx context.Context, locationID, date string) (*models.SlotSnapshot, error)
}

// Deps are the shared services a room is built from. Only Source is required.
type Deps struct {
	Source          slotsource.Source
	Cache           *cache.Cache
	Snapshots       Snapshots
	Resolver        player.Resolver
	Publisher       events.Publisher
	Clock           player.Clock
	RefreshInterval time.Duration
	Logger          zerolog.Logger
}

// Status describes a room for the API.
type Status struct {
	ID          string              `json:"id"`
	Name        string              `json:"name,omitempty"`
	CycleDay    string              `json:"cycle_day"`
	LastRefresh time.Time           `json:"last_refresh,omitempty"`
	LastSource  string              `json:"last_source,omitempty"`
	LastError   string              `json:"last_error,omitempty"`
	Build       playlist.BuildStats `json:"build"`
	Screens     int                 `json:"screens"`
	Player      player.Snapshot     `json:"player"`
}

// Room plays one location.
type Room struct {
	loc      config.LocationConfig
	opts     playlist.Options
	deps     Deps
	interval time.Duration
	logger   zerolog.Logger

	driver *player.Driver
	hub    *screen.Hub
	cycles chan time.Time

	refreshMu sync.Mutex // serialises refreshes

	mu          sync.RWMutex
	cycleDay    time.Time
	lastRefresh time.Time
	lastSource  string
	lastErr     string
	lastStats   playlist.BuildStats
}

// New creates a room. Call Run to start playback.
func New(loc config.LocationConfig, opts playlist.Options, deps Deps) (*Room, error) {
	if deps.Source == nil {
		return nil, errors.New("room: slot source is required")
	}
	if deps.Clock == nil {
		deps.Clock = player.RealClock{}
	}
	if deps.Resolver == nil {
		deps.Resolver = player.IdentityResolver
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}

	interval := deps.RefreshInterval
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}

	logger := deps.Logger.With().Str("component", "room").Str("location", loc.ID).Logger()
	r := &Room{
		loc:      loc,
		opts:     opts,
		deps:     deps,
		interval: interval,
		logger:   logger,
		cycles:   make(chan time.Time, 1),
	}
	r.cycleDay = r.calendarDay(deps.Clock.Now())

	r.hub = screen.NewHub(loc.ID, deps.Publisher, deps.Logger)
	r.driver = player.New(loc.ID, r.hub, deps.Logger,
		player.WithClock(deps.Clock),
		player.WithResolver(deps.Resolver),
		player.WithPublisher(deps.Publisher),
		player.WithCycleHook(r.onCycle),
	)
	r.hub.SetPlaylistSource(r.driver.Playlist)
	return r, nil
}

// ID returns the location id.
func (r *Room) ID() string { return r.loc.ID }

// Driver exposes the playback driver.
func (r *Room) Driver() *player.Driver { return r.driver }

// Hub exposes the screen hub.
func (r *Room) Hub() *screen.Hub { return r.hub }

// Run starts the driver, performs the initial refresh and keeps refreshing
// until ctx is cancelled.
func (r *Room) Run(ctx context.Context) error {
	driverDone := make(chan struct{})
	go func() {
		defer close(driverDone)
		if err := r.driver.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Error().Err(err).Msg("driver stopped")
		}
	}()
	defer func() {
		r.driver.Stop()
		<-driverDone
		r.hub.CloseAll()
	}()

	r.logger.Info().Str("cycle_day", slotsource.DateParam(r.CycleDay())).Msg("room started")
	if err := r.Refresh(ctx); err != nil {
		r.logger.Warn().Err(err).Msg("initial refresh failed")
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("room stopped")
			return nil
		case day := <-r.cycles:
			r.setCycleDay(day)
			if err := r.Refresh(ctx); err != nil {
				r.logger.Warn().Err(err).Msg("refresh after cycle wrap failed")
			}
		case <-ticker.C:
			r.realign()
			if err := r.Refresh(ctx); err != nil {
				r.logger.Warn().Err(err).Msg("periodic refresh failed")
			}
		}
	}
}

// Refresh fetches the slots for the current cycle day and hands the rebuilt
// playlist to the driver. On failure the current playlist stays in place.
func (r *Room) Refresh(ctx context.Context) error {
	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()

	day := r.CycleDay()
	date := slotsource.DateParam(day)

	ctx, span := telemetry.StartSpan(ctx, "room.refresh",
		attribute.String("location", r.loc.ID),
		attribute.String("date", date),
	)
	defer span.End()

	slots, source, err := r.loadSlots(ctx, day)
	if err != nil {
		telemetry.RecordError(span, err)
		r.mu.Lock()
		r.lastErr = err.Error()
		r.mu.Unlock()
		r.publish(events.EventRefreshFailed, events.Payload{
			"location_id": r.loc.ID,
			"date":        date,
			"error":       err.Error(),
		})
		return err
	}

	items, stats := playlist.BuildWithStats(slots, day, r.opts, r.logger)
	telemetry.PlaylistBuilds.WithLabelValues(r.loc.ID).Inc()
	telemetry.PlaylistItems.WithLabelValues(r.loc.ID).Set(float64(len(items)))
	for reason, n := range stats.Dropped {
		telemetry.SlotsDropped.WithLabelValues(r.loc.ID, reason).Add(float64(n))
	}
	span.SetAttributes(attribute.Int("items", len(items)), attribute.String("source", source))

	r.driver.Update(items)

	r.mu.Lock()
	r.lastRefresh = r.deps.Clock.Now()
	r.lastSource = source
	r.lastErr = ""
	r.lastStats = stats
	r.mu.Unlock()

	r.logger.Debug().
		Str("date", date).
		Str("source", source).
		Int("slots", stats.Input).
		Int("items", stats.Items).
		Msg("playlist refreshed")
	r.publish(events.EventPlaylistUpdated, events.Payload{
		"location_id": r.loc.ID,
		"date":        date,
		"source":      source,
		"items":       len(items),
		"dropped":     stats.Input - stats.Items,
	})
	return nil
}

// ForceRefresh drops cached slots before refreshing.
func (r *Room) ForceRefresh(ctx context.Context) error {
	if err := r.deps.Cache.InvalidateLocation(ctx, r.loc.ID); err != nil {
		r.logger.Debug().Err(err).Msg("cache invalidation failed")
	}
	return r.Refresh(ctx)
}

// loadSlots walks cache, source, then the stored snapshot.
func (r *Room) loadSlots(ctx context.Context, day time.Time) ([]playlist.Slot, string, error) {
	if slots, ok := r.deps.Cache.GetSlots(ctx, r.loc.ID, day); ok {
		return slots, "cache", nil
	}

	date := slotsource.DateParam(day)
	slots, fetchErr := r.deps.Source.Fetch(ctx, r.loc.ID, day)
	if fetchErr == nil {
		if err := r.deps.Cache.SetSlots(ctx, r.loc.ID, day, slots); err != nil {
			r.logger.Debug().Err(err).Msg("cache store failed")
		}
		if r.deps.Snapshots != nil {
			if err := r.deps.Snapshots.Save(ctx, r.loc.ID, date, r.deps.Source.Name(), slots); err != nil {
				r.logger.Warn().Err(err).Msg("snapshot save failed")
			}
		}
		return slots, r.deps.Source.Name(), nil
	}

	r.logger.Warn().Err(fetchErr).Str("date", date).Msg("slot fetch failed")
	if r.deps.Snapshots == nil {
		return nil, "", fetchErr
	}

	snap, err := r.deps.Snapshots.Latest(ctx, r.loc.ID, date)
	if err != nil {
		if !errors.Is(err, store.ErrNoSnapshot) {
			r.logger.Warn().Err(err).Msg("snapshot load failed")
		}
		return nil, "", fetchErr
	}
	r.logger.Info().Str("snapshot_date", snap.Date).Msg("using stored snapshot")
	return snap.Slots, "snapshot", nil
}

// onCycle runs on the driver goroutine and must not block.
func (r *Room) onCycle(day time.Time) {
	for {
		select {
		case r.cycles <- day:
			return
		default:
		}
		select {
		case <-r.cycles:
		default:
		}
	}
}

// realign re-anchors an idle room on today's date; a playing room only
// advances its cycle day when the driver wraps.
func (r *Room) realign() {
	switch r.driver.Snapshot().Phase {
	case player.PhaseEmpty, player.PhaseUninitialized:
		r.setCycleDay(r.calendarDay(r.deps.Clock.Now()))
	}
}

func (r *Room) setCycleDay(day time.Time) {
	day = r.calendarDay(day)
	r.mu.Lock()
	changed := !day.Equal(r.cycleDay)
	r.cycleDay = day
	r.mu.Unlock()
	if changed {
		r.logger.Info().Str("cycle_day", slotsource.DateParam(day)).Msg("cycle day advanced")
	}
}

// CycleDay returns midnight of the day the playlist is anchored on.
func (r *Room) CycleDay() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cycleDay
}

func (r *Room) calendarDay(ts time.Time) time.Time {
	ts = ts.In(r.opts.Location)
	y, m, d := ts.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, r.opts.Location)
}

// Status returns the room's current state.
func (r *Room) Status() Status {
	r.mu.RLock()
	st := Status{
		ID:          r.loc.ID,
		Name:        r.loc.Name,
		CycleDay:    slotsource.DateParam(r.cycleDay),
		LastRefresh: r.lastRefresh,
		LastSource:  r.lastSource,
		LastError:   r.lastErr,
		Build:       r.lastStats,
	}
	r.mu.RUnlock()

	st.Screens = r.hub.Clients()
	st.Player = r.driver.Snapshot()
	return st
}

func (r *Room) publish(t events.EventType, p events.Payload) {
	if r.deps.Publisher != nil {
		r.deps.Publisher.Publish(t, p)
	}
}
