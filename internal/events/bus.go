/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import "sync"

// EventType enumerates event categories.
type EventType string

const (
	EventNowPlaying      EventType = "now_playing"
	EventHealth          EventType = "health"
	EventPlayerPhase     EventType = "player.phase"
	EventMediaError      EventType = "player.media_error"
	EventCycleWrapped    EventType = "player.cycle"
	EventPlaylistUpdated EventType = "playlist.updated"
	EventRefreshFailed   EventType = "playlist.refresh_failed"

	// Screen session events
	EventScreenConnect    EventType = "screen.connect"
	EventScreenDisconnect EventType = "screen.disconnect"
)

// All lists every event type, in the order the event stream documents them.
var All = []EventType{
	EventNowPlaying,
	EventHealth,
	EventPlayerPhase,
	EventMediaError,
	EventCycleWrapped,
	EventPlaylistUpdated,
	EventRefreshFailed,
	EventScreenConnect,
	EventScreenDisconnect,
}

// Payload generic event payload.
type Payload map[string]any

// Subscriber receives event payloads.
type Subscriber chan Payload

// Publisher is anything events can be published to.
type Publisher interface {
	Publish(eventType EventType, payload Payload)
}

// Bus implements a simple in-process pubsub.
type Bus struct {
	mu   sync.RWMutex
	subs map[EventType][]Subscriber
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[EventType][]Subscriber)}
}

// Subscribe registers a subscriber for event type.
func (b *Bus) Subscribe(eventType EventType) Subscriber {
	ch := make(Subscriber, 16)
	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], ch)
	b.mu.Unlock()
	return ch
}

// Publish sends payload to subscribers. Slow subscribers miss events.
func (b *Bus) Publish(eventType EventType, payload Payload) {
	b.mu.RLock()
	subs := append([]Subscriber(nil), b.subs[eventType]...)
	b.mu.RUnlock()
	for _, sub := range subs {
		select {
		case sub <- payload:
		default:
		}
	}
}

// Unsubscribe removes the subscriber.
func (b *Bus) Unsubscribe(eventType EventType, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[eventType]
	for i, candidate := range subs {
		if candidate == sub {
			subs = append(subs[:i], subs[i+1:]...)
			close(sub)
			break
		}
	}
	b.subs[eventType] = subs
}

type fanout []Publisher

func (f fanout) Publish(eventType EventType, payload Payload) {
	for _, p := range f {
		p.Publish(eventType, payload)
	}
}

// Fanout returns a publisher that forwards to every non-nil publisher.
func Fanout(pubs ...Publisher) Publisher {
	out := make(fanout, 0, len(pubs))
	for _, p := range pubs {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}
