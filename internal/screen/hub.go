/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package screen fans driver decisions out to the browser screens of a
// location over WebSocket and collects their media-ready acknowledgements.
package screen

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/mediaroom/internal/events"
	"github.com/friendsincode/mediaroom/internal/playlist"
	"github.com/friendsincode/mediaroom/internal/telemetry"
)

// Command types sent to screens.
const (
	CmdEmpty       = "empty"
	CmdWaiting     = "waiting"
	CmdVideoLoad   = "video.load"
	CmdVideoPlay   = "video.play"
	CmdEmbed       = "embed"
	CmdImage       = "image"
	CmdUnsupported = "unsupported"
	CmdRelease     = "release"
)

// DefaultLoadTimeout bounds how long a video load waits for any screen to ack.
const DefaultLoadTimeout = 15 * time.Second

// ErrLoadTimeout is reported to the driver when no screen acknowledged a load.
var ErrLoadTimeout = errors.New("no screen acknowledged media load")

// ItemInfo describes the item a command refers to.
type ItemInfo struct {
	SlotID   string        `json:"slot_id,omitempty"`
	Name     string        `json:"name"`
	Kind     playlist.Kind `json:"kind"`
	Start    time.Time     `json:"start"`
	End      time.Time     `json:"end"`
	Index    int           `json:"index"`
	Total    int           `json:"total"`
	Position string        `json:"position,omitempty"`
}

// Command is one instruction to a screen.
type Command struct {
	Type       string    `json:"type"`
	Seq        uint64    `json:"seq,omitempty"`
	LocationID string    `json:"location_id"`
	Item       *ItemInfo `json:"item,omitempty"`
	Src        string    `json:"src,omitempty"`
	OffsetMS   int64     `json:"offset_ms,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Muted      bool      `json:"muted,omitempty"` // videos autoplay muted and inline
	SentAt     time.Time `json:"sent_at"`
}

// Ack is a screen's answer to a video.load command.
type Ack struct {
	Op      string `json:"op"` // "ready" or "error"
	Seq     uint64 `json:"seq"`
	Message string `json:"message,omitempty"`
}

type pendingLoad struct {
	ready func(error)
	timer *time.Timer
}

type client struct {
	id   string
	send chan Command
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub is the player.Renderer for one location. It is safe for concurrent use.
type Hub struct {
	locationID  string
	logger      zerolog.Logger
	publisher   events.Publisher
	loadTimeout time.Duration
	now         func() time.Time

	mu       sync.Mutex
	clients  map[*client]struct{}
	seq      uint64
	state    *Command // last visible command, replayed to late joiners
	loading  *Command // outstanding video.load
	pending  map[uint64]*pendingLoad
	playlist func() []playlist.Item
}

// NewHub creates a hub for locationID. publisher may be nil.
func NewHub(locationID string, publisher events.Publisher, logger zerolog.Logger) *Hub {
	return &Hub{
		locationID:  locationID,
		logger:      logger.With().Str("component", "screen").Str("location", locationID).Logger(),
		publisher:   publisher,
		loadTimeout: DefaultLoadTimeout,
		now:         time.Now,
		clients:     make(map[*client]struct{}),
		pending:     make(map[uint64]*pendingLoad),
	}
}

// SetPlaylistSource lets the hub label items with their playlist position.
func (h *Hub) SetPlaylistSource(fn func() []playlist.Item) {
	h.mu.Lock()
	h.playlist = fn
	h.mu.Unlock()
}

// Clients returns the number of connected screens.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Empty implements player.Renderer.
func (h *Hub) Empty() {
	h.show(Command{Type: CmdEmpty})
}

// Waiting implements player.Renderer.
func (h *Hub) Waiting(item playlist.Item) {
	h.show(Command{Type: CmdWaiting, Item: h.info(item)})
}

// LoadVideo implements player.Renderer. With no screen connected the load
// is acknowledged immediately so the timeline keeps running headless.
func (h *Hub) LoadVideo(item playlist.Item, src string, ready func(error)) {
	h.mu.Lock()
	h.clearPendingLocked()
	h.seq++
	cmd := h.stampLocked(Command{Type: CmdVideoLoad, Seq: h.seq, Item: h.infoLocked(item), Src: src, Muted: true})
	h.loading = &cmd

	if len(h.clients) == 0 {
		h.mu.Unlock()
		ready(nil)
		return
	}

	seq := h.seq
	h.pending[seq] = &pendingLoad{
		ready: ready,
		timer: time.AfterFunc(h.loadTimeout, func() { h.resolve(seq, ErrLoadTimeout) }),
	}
	h.broadcastLocked(cmd)
	h.mu.Unlock()
}

// PlayVideo implements player.Renderer.
func (h *Hub) PlayVideo(item playlist.Item, offset time.Duration) {
	h.mu.Lock()
	src := ""
	if h.loading != nil {
		src = h.loading.Src
	}
	h.loading = nil
	h.mu.Unlock()

	h.show(Command{Type: CmdVideoPlay, Item: h.info(item), Src: src, OffsetMS: offset.Milliseconds(), Muted: true})
}

// ShowEmbed implements player.Renderer.
func (h *Hub) ShowEmbed(item playlist.Item, src string) {
	h.show(Command{Type: CmdEmbed, Item: h.info(item), Src: src})
}

// ShowImage implements player.Renderer.
func (h *Hub) ShowImage(item playlist.Item, src string) {
	h.show(Command{Type: CmdImage, Item: h.info(item), Src: src})
}

// ShowUnsupported implements player.Renderer.
func (h *Hub) ShowUnsupported(item playlist.Item, reason string) {
	h.show(Command{Type: CmdUnsupported, Item: h.info(item), Src: item.Slot.MediaFile, Reason: reason})
}

// Release implements player.Renderer.
func (h *Hub) Release() {
	h.mu.Lock()
	h.clearPendingLocked()
	h.loading = nil
	h.mu.Unlock()

	h.show(Command{Type: CmdRelease})
}

// HandleAck routes a screen's answer to the pending load. The first answer
// for a sequence number wins; later ones are ignored.
func (h *Hub) HandleAck(ack Ack) {
	switch ack.Op {
	case "ready":
		h.resolve(ack.Seq, nil)
	case "error":
		reason := ack.Message
		if reason == "" {
			reason = "unknown"
		}
		h.resolve(ack.Seq, fmt.Errorf("screen reported load error: %s", reason))
	}
}

func (h *Hub) resolve(seq uint64, err error) {
	h.mu.Lock()
	p, ok := h.pending[seq]
	if ok {
		delete(h.pending, seq)
		p.timer.Stop()
	}
	h.mu.Unlock()

	if ok {
		p.ready(err)
	}
}

// show replaces the visible state and broadcasts it.
func (h *Hub) show(cmd Command) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq++
	cmd.Seq = h.seq
	cmd = h.stampLocked(cmd)
	if cmd.Type != CmdVideoPlay {
		h.loading = nil
	}
	h.state = &cmd
	h.broadcastLocked(cmd)
}

func (h *Hub) stampLocked(cmd Command) Command {
	cmd.LocationID = h.locationID
	cmd.SentAt = h.now()
	return cmd
}

func (h *Hub) clearPendingLocked() {
	for seq, p := range h.pending {
		p.timer.Stop()
		delete(h.pending, seq)
	}
}

func (h *Hub) broadcastLocked(cmd Command) {
	for c := range h.clients {
		select {
		case c.send <- cmd:
		default:
			h.logger.Warn().Str("screen", c.id).Msg("screen send buffer full, disconnecting")
			delete(h.clients, c)
			c.close()
			h.clientGaugeLocked()
		}
	}
}

// replayLocked returns the commands a screen joining now needs to catch up.
func (h *Hub) replayLocked() []Command {
	var out []Command
	if h.state != nil {
		cmd := *h.state
		if cmd.Type == CmdVideoPlay {
			cmd.OffsetMS += h.now().Sub(cmd.SentAt).Milliseconds()
		}
		out = append(out, cmd)
	}
	if h.loading != nil {
		out = append(out, *h.loading)
	}
	return out
}

func (h *Hub) attach(id string) *client {
	c := &client{id: id, send: make(chan Command, 32)}

	h.mu.Lock()
	for _, cmd := range h.replayLocked() {
		c.send <- cmd
	}
	h.clients[c] = struct{}{}
	h.clientGaugeLocked()
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Info().Str("screen", id).Int("screens", count).Msg("screen connected")
	h.publish(events.EventScreenConnect, events.Payload{"location_id": h.locationID, "screen_id": id, "screens": count})
	return c
}

func (h *Hub) detach(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		c.close()
		h.clientGaugeLocked()
	}
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Info().Str("screen", c.id).Int("screens", count).Msg("screen disconnected")
	h.publish(events.EventScreenDisconnect, events.Payload{"location_id": h.locationID, "screen_id": c.id, "screens": count})
}

// CloseAll disconnects every screen.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
	h.clientGaugeLocked()
}

func (h *Hub) clientGaugeLocked() {
	telemetry.ScreensConnected.WithLabelValues(h.locationID).Set(float64(len(h.clients)))
}

func (h *Hub) info(item playlist.Item) *ItemInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.infoLocked(item)
}

func (h *Hub) infoLocked(item playlist.Item) *ItemInfo {
	info := &ItemInfo{
		SlotID: item.Slot.ID,
		Name:   item.Slot.DisplayName(),
		Kind:   item.Kind,
		Start:  item.Start,
		End:    item.End,
		Index:  -1,
	}
	if h.playlist == nil {
		return info
	}
	items := h.playlist()
	key := item.Key()
	for i := range items {
		if items[i].Key() == key {
			info.Index = i
			info.Total = len(items)
			info.Position = fmt.Sprintf("%d / %d", i+1, len(items))
			break
		}
	}
	return info
}

func (h *Hub) publish(t events.EventType, p events.Payload) {
	if h.publisher != nil {
		h.publisher.Publish(t, p)
	}
}
