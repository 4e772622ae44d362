/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus relays player events between mediaroom instances.
//
// Every implementation delivers to local subscribers through an in-process
// events.Bus. Distributed implementations additionally forward each event to
// the other instances and republish what they receive locally, skipping
// messages that originated from this node.
package eventbus

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/friendsincode/mediaroom/internal/config"
	"github.com/friendsincode/mediaroom/internal/events"
)

// Bus is the event bus surface used by the rest of the service.
type Bus interface {
	events.Publisher
	Subscribe(eventType events.EventType) events.Subscriber
	Unsubscribe(eventType events.EventType, sub events.Subscriber)
	Close() error
}

// New builds the bus selected by cfg.Bus.
func New(cfg *config.Config, logger zerolog.Logger) (Bus, error) {
	nodeID := cfg.InstanceID
	if nodeID == "" {
		nodeID = generateNodeID()
	}
	logger = logger.With().Str("component", "eventbus").Str("bus", string(cfg.Bus)).Logger()

	switch cfg.Bus {
	case config.BusRedis:
		rc := DefaultRedisConfig()
		rc.Addr = cfg.RedisAddr
		rc.Password = cfg.RedisPassword
		rc.DB = cfg.RedisDB
		return NewRedisBus(rc, nodeID, logger)
	case config.BusNATS:
		nc := DefaultNATSConfig()
		nc.URL = cfg.NATSURL
		return NewNATSBus(nc, nodeID, logger)
	case config.BusMemory, "":
		return NewMemoryBus(), nil
	default:
		return nil, fmt.Errorf("unknown event bus %q", cfg.Bus)
	}
}

// MemoryBus is a single-instance bus.
type MemoryBus struct {
	*events.Bus
}

// NewMemoryBus creates an in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{Bus: events.NewBus()}
}

// Close implements Bus.
func (m *MemoryBus) Close() error { return nil }

// wireMessage is the envelope exchanged between instances.
type wireMessage struct {
	EventType events.EventType `json:"event_type"`
	Payload   events.Payload   `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
	NodeID    string           `json:"node_id"`
	MessageID string           `json:"message_id"`
}

func marshalMessage(eventType events.EventType, payload events.Payload, nodeID string) ([]byte, error) {
	return json.Marshal(wireMessage{
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		NodeID:    nodeID,
		MessageID: uuid.NewString(),
	})
}

func unmarshalMessage(data []byte) (*wireMessage, error) {
	var msg wireMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal bus message: %w", err)
	}
	if msg.EventType == "" {
		return nil, fmt.Errorf("unmarshal bus message: missing event type")
	}
	return &msg, nil
}

func generateNodeID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "node"
	}
	return host + "-" + uuid.NewString()[:8]
}

// subject maps an event type onto a channel or subject name.
func subject(prefix string, eventType events.EventType) string {
	return prefix + string(eventType)
}
