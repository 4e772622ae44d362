/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package room

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/friendsincode/mediaroom/internal/config"
)

// ErrTooManyRooms is returned when MaxRooms rooms are already running.
var ErrTooManyRooms = errors.New("room limit reached")

// Factory builds a room for a location.
type Factory func(loc config.LocationConfig) (*Room, error)

type running struct {
	room   *Room
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager tracks rooms per location.
type Manager struct {
	factory    Factory
	maxRooms   int
	configured map[string]config.LocationConfig
	logger     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	rooms map[string]*running
}

// NewManager creates a room manager. Configured locations provide per-room
// overrides; other ids get a room with defaults on first use.
func NewManager(factory Factory, configured []config.LocationConfig, maxRooms int, logger zerolog.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		factory:    factory,
		maxRooms:   maxRooms,
		configured: make(map[string]config.LocationConfig, len(configured)),
		logger:     logger.With().Str("component", "rooms").Logger(),
		ctx:        ctx,
		cancel:     cancel,
		rooms:      make(map[string]*running),
	}
	for _, loc := range configured {
		m.configured[loc.ID] = loc
	}
	return m
}

// StartConfigured starts a room for every configured location.
func (m *Manager) StartConfigured() error {
	ids := make([]string, 0, len(m.configured))
	for id := range m.configured {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if _, err := m.Ensure(id); err != nil {
			return err
		}
	}
	return nil
}

// Ensure starts or reuses the room for locationID.
func (m *Manager) Ensure(locationID string) (*Room, error) {
	if locationID == "" {
		return nil, errors.New("location id is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if r, ok := m.rooms[locationID]; ok {
		return r.room, nil
	}
	if m.ctx.Err() != nil {
		return nil, errors.New("room manager is shut down")
	}
	if m.maxRooms > 0 && len(m.rooms) >= m.maxRooms {
		return nil, fmt.Errorf("%w (%d)", ErrTooManyRooms, m.maxRooms)
	}

	loc, ok := m.configured[locationID]
	if !ok {
		loc = config.LocationConfig{ID: locationID}
	}
	r, err := m.factory(loc)
	if err != nil {
		return nil, fmt.Errorf("create room %s: %w", locationID, err)
	}

	ctx, cancel := context.WithCancel(m.ctx)
	run := &running{room: r, cancel: cancel, done: make(chan struct{})}
	m.rooms[locationID] = run

	go func() {
		defer close(run.done)
		if err := r.Run(ctx); err != nil {
			m.logger.Error().Err(err).Str("location", locationID).Msg("room exited")
		}
	}()

	m.logger.Info().Str("location", locationID).Bool("configured", ok).Int("rooms", len(m.rooms)).Msg("room started")
	return r, nil
}

// Get returns a running room.
func (m *Manager) Get(locationID string) (*Room, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[locationID]
	if !ok {
		return nil, false
	}
	return r.room, true
}

// List returns the running rooms ordered by location id.
func (m *Manager) List() []*Room {
	m.mu.Lock()
	out := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		out = append(out, r.room)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Stop stops the room for a location.
func (m *Manager) Stop(locationID string) {
	m.mu.Lock()
	r, ok := m.rooms[locationID]
	delete(m.rooms, locationID)
	m.mu.Unlock()

	if !ok {
		return
	}
	r.cancel()
	<-r.done
}

// Shutdown stops all rooms and waits for them, or for ctx to expire.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.cancel()

	m.mu.Lock()
	rooms := make([]*running, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.rooms = make(map[string]*running)
	m.mu.Unlock()

	for _, r := range rooms {
		select {
		case <-r.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
