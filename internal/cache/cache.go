/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package cache provides a Redis-based cache for fetched slot lists.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/mediaroom/internal/playlist"
	"github.com/friendsincode/mediaroom/internal/telemetry"
)

// DefaultSlotsTTL is how long a fetched slot list is served from cache.
const DefaultSlotsTTL = 2 * time.Minute

// KeySlots prefixes slot list keys: + location_id + ":" + date
const KeySlots = "mediaroom:cache:slots:"

// Config contains cache configuration.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SlotsTTL      time.Duration

	// DisableOnError turns the cache off after the first Redis error.
	DisableOnError bool
}

// DefaultConfig returns default cache configuration.
func DefaultConfig() Config {
	return Config{
		RedisAddr:      "localhost:6379",
		SlotsTTL:       DefaultSlotsTTL,
		DisableOnError: true,
	}
}

// Cache provides Redis-backed caching with graceful fallback. A nil or
// disabled Cache misses on every lookup.
type Cache struct {
	client *redis.Client
	logger zerolog.Logger
	config Config

	mu       sync.RWMutex
	disabled bool
}

// New creates a cache. An unreachable Redis yields a disabled cache, not an error.
func New(cfg Config, logger zerolog.Logger) *Cache {
	logger = logger.With().Str("component", "cache").Logger()
	if cfg.SlotsTTL <= 0 {
		cfg.SlotsTTL = DefaultSlotsTTL
	}
	if cfg.RedisAddr == "" {
		logger.Debug().Msg("no Redis address configured, running without slot cache")
		return &Cache{logger: logger, config: cfg, disabled: true}
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("Redis cache unavailable, running without caching")
		_ = client.Close()
		return &Cache{logger: logger, config: cfg, disabled: true}
	}

	logger.Info().Str("addr", cfg.RedisAddr).Msg("Redis cache initialized")
	return &Cache{client: client, logger: logger, config: cfg}
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	if c != nil && c.client != nil {
		return c.client.Close()
	}
	return nil
}

// IsAvailable returns true if the cache is operational.
func (c *Cache) IsAvailable() bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.disabled && c.client != nil
}

func (c *Cache) handleError(err error, operation string) {
	if err == nil || errors.Is(err, redis.Nil) {
		return
	}

	c.logger.Debug().Err(err).Str("operation", operation).Msg("cache operation failed")

	if c.config.DisableOnError {
		c.mu.Lock()
		c.disabled = true
		c.mu.Unlock()
		c.logger.Warn().Msg("disabling cache due to Redis error")
	}
}

// SlotsKey returns the cache key for a location's slot list on a date.
func SlotsKey(locationID string, date time.Time) string {
	return KeySlots + locationID + ":" + date.Format("2006-01-02")
}

// GetSlots returns the cached slot list, if any.
func (c *Cache) GetSlots(ctx context.Context, locationID string, date time.Time) ([]playlist.Slot, bool) {
	if !c.IsAvailable() {
		return nil, false
	}

	data, err := c.client.Get(ctx, SlotsKey(locationID, date)).Bytes()
	if errors.Is(err, redis.Nil) {
		telemetry.CacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	}
	if err != nil {
		c.handleError(err, "get")
		telemetry.CacheLookups.WithLabelValues("error").Inc()
		return nil, false
	}

	var slots []playlist.Slot
	if err := json.Unmarshal(data, &slots); err != nil {
		c.logger.Debug().Err(err).Str("location", locationID).Msg("failed to unmarshal cached slots")
		telemetry.CacheLookups.WithLabelValues("error").Inc()
		return nil, false
	}

	telemetry.CacheLookups.WithLabelValues("hit").Inc()
	return slots, true
}

// SetSlots stores a slot list for the configured TTL.
func (c *Cache) SetSlots(ctx context.Context, locationID string, date time.Time, slots []playlist.Slot) error {
	if !c.IsAvailable() {
		return nil
	}

	data, err := json.Marshal(slots)
	if err != nil {
		return fmt.Errorf("marshal slots: %w", err)
	}

	if err := c.client.Set(ctx, SlotsKey(locationID, date), data, c.config.SlotsTTL).Err(); err != nil {
		c.handleError(err, "set")
		return err
	}
	return nil
}

// InvalidateLocation drops every cached date for a location.
func (c *Cache) InvalidateLocation(ctx context.Context, locationID string) error {
	if !c.IsAvailable() {
		return nil
	}

	var cursor uint64
	pattern := KeySlots + locationID + ":*"
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			c.handleError(err, "scan")
			return err
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				c.handleError(err, "delete")
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}
