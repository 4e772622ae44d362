package eventbus

import (
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/friendsincode/mediaroom/internal/config"
	"github.com/friendsincode/mediaroom/internal/events"
)

func TestNewSelectsMemoryBus(t *testing.T) {
	bus, err := New(&config.Config{Bus: config.BusMemory}, zerolog.Nop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer bus.Close()

	if _, ok := bus.(*MemoryBus); !ok {
		t.Fatalf("expected *MemoryBus, got %T", bus)
	}

	sub := bus.Subscribe(events.EventNowPlaying)
	bus.Publish(events.EventNowPlaying, events.Payload{"index": 2})

	select {
	case p := <-sub:
		if p["index"] != 2 {
			t.Fatalf("unexpected payload: %v", p)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestNewRejectsUnknownBus(t *testing.T) {
	if _, err := New(&config.Config{Bus: "carrier-pigeon"}, zerolog.Nop()); err == nil {
		t.Fatal("expected error for unknown bus")
	}
}

func TestWireMessageRoundTrip(t *testing.T) {
	data, err := marshalMessage(events.EventMediaError, events.Payload{"location_id": "lobby"}, "node-a")
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	msg, err := unmarshalMessage(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.EventType != events.EventMediaError || msg.NodeID != "node-a" || msg.MessageID == "" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if msg.Payload["location_id"] != "lobby" {
		t.Fatalf("payload lost: %v", msg.Payload)
	}

	if _, err := unmarshalMessage([]byte(`{"payload":{}}`)); err == nil {
		t.Fatal("expected error for message without event type")
	}
}

func TestNATSRelaySkipsOwnMessages(t *testing.T) {
	nb := &NATSBus{Bus: events.NewBus(), logger: zerolog.Nop(), nodeID: "node-a"}
	sub := nb.Subscribe(events.EventPlaylistUpdated)

	own, _ := marshalMessage(events.EventPlaylistUpdated, events.Payload{"from": "a"}, "node-a")
	remote, _ := marshalMessage(events.EventPlaylistUpdated, events.Payload{"from": "b"}, "node-b")

	nb.handleMessage(&nats.Msg{Subject: natsSubjectPrefix + "playlist.updated", Data: own})
	nb.handleMessage(&nats.Msg{Subject: natsSubjectPrefix + "playlist.updated", Data: []byte("garbage")})
	nb.handleMessage(&nats.Msg{Subject: natsSubjectPrefix + "playlist.updated", Data: remote})

	select {
	case p := <-sub:
		if p["from"] != "b" {
			t.Fatalf("expected remote event, got %v", p)
		}
	case <-time.After(time.Second):
		t.Fatal("remote event not relayed")
	}
	select {
	case p := <-sub:
		t.Fatalf("unexpected extra event: %v", p)
	default:
	}
}

func TestRedisCircuitBreaker(t *testing.T) {
	rb := &RedisBus{Bus: events.NewBus(), logger: zerolog.Nop(), maxFails: 2, checkInterval: time.Hour}

	rb.handleFailure()
	if rb.fallbackActive() {
		t.Fatal("fallback tripped too early")
	}
	rb.handleFailure()
	if !rb.fallbackActive() {
		t.Fatal("expected fallback after max failures")
	}
	if err := rb.tryReconnect(); err == nil {
		t.Fatal("expected reconnect to wait for the check interval")
	}
}
