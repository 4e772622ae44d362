package cache

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/mediaroom/internal/playlist"
)

func TestSlotsKey(t *testing.T) {
	date := time.Date(2025, 3, 1, 23, 59, 0, 0, time.UTC)
	if got := SlotsKey("lobby", date); got != "mediaroom:cache:slots:lobby:2025-03-01" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestDisabledCacheMisses(t *testing.T) {
	c := New(Config{}, zerolog.Nop())
	if c.IsAvailable() {
		t.Fatal("cache without address should be disabled")
	}

	ctx := context.Background()
	date := time.Now()
	if err := c.SetSlots(ctx, "lobby", date, []playlist.Slot{{MediaFile: "a.mp4"}}); err != nil {
		t.Fatalf("set on disabled cache: %v", err)
	}
	if _, ok := c.GetSlots(ctx, "lobby", date); ok {
		t.Fatal("disabled cache must miss")
	}
	if err := c.InvalidateLocation(ctx, "lobby"); err != nil {
		t.Fatalf("invalidate on disabled cache: %v", err)
	}
}

func TestNilCacheIsSafe(t *testing.T) {
	var c *Cache
	if _, ok := c.GetSlots(context.Background(), "lobby", time.Now()); ok {
		t.Fatal("nil cache must miss")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close nil cache: %v", err)
	}
}
