/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/friendsincode/mediaroom/internal/playlist"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// SlotSource selects where slot lists come from.
type SlotSource string

const (
	SourceAPI  SlotSource = "api"
	SourceFile SlotSource = "file"
)

// EventBus selects the cross-instance event transport.
type EventBus string

const (
	BusMemory EventBus = "memory"
	BusRedis  EventBus = "redis"
	BusNATS   EventBus = "nats"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int
	BaseURL     string // Public base URL used in share links and embed codes

	// Backend API
	APIBaseURL   string
	APIToken     string
	APITimeout   time.Duration
	AssetBaseURL string // Origin prepended to relative media paths

	// Slot sources and locations
	Source          SlotSource
	SlotsFile       string
	Locations       []string
	LocationsFile   string
	RefreshInterval time.Duration
	MaxRooms        int

	// Playlist
	CycleBoundary   playlist.TimeOfDay
	DefaultDuration time.Duration
	Timezone        string
	Location        *time.Location

	// Storage
	DBBackend DatabaseBackend
	DBDSN     string

	// Redis cache and bus
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	Bus     EventBus
	NATSURL string

	// S3 object storage for private media
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Region          string
	S3Bucket          string
	S3Endpoint        string // For S3-compatible services (MinIO, Spaces, etc.)
	S3UsePathStyle    bool
	S3PresignTTL      time.Duration

	// Auth
	JWTSigningKey     string
	JWTTTL            time.Duration
	AdminUser         string
	AdminPasswordHash string

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	InstanceID string
}

// Load reads .env files and environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnvAny([]string{"MEDIAROOM_ENV"}, "development"),
		HTTPBind:    getEnvAny([]string{"MEDIAROOM_HTTP_BIND"}, "0.0.0.0"),
		HTTPPort:    getEnvIntAny([]string{"MEDIAROOM_HTTP_PORT", "PORT"}, 8080),
		BaseURL:     strings.TrimRight(getEnvAny([]string{"MEDIAROOM_BASE_URL"}, ""), "/"),

		APIBaseURL:   strings.TrimRight(getEnvAny([]string{"MEDIAROOM_API_BASE_URL", "VITE_API_BASE_URL"}, ""), "/"),
		APIToken:     getEnvAny([]string{"MEDIAROOM_API_TOKEN"}, ""),
		APITimeout:   getEnvDurationAny([]string{"MEDIAROOM_API_TIMEOUT"}, 10*time.Second),
		AssetBaseURL: strings.TrimRight(getEnvAny([]string{"MEDIAROOM_ASSET_BASE_URL", "VITE_BACKEND_ASSET_URL"}, ""), "/"),

		Source:          SlotSource(getEnvAny([]string{"MEDIAROOM_SOURCE"}, string(SourceAPI))),
		SlotsFile:       getEnvAny([]string{"MEDIAROOM_SLOTS_FILE"}, "slots.yaml"),
		Locations:       splitList(getEnvAny([]string{"MEDIAROOM_LOCATIONS"}, "")),
		LocationsFile:   getEnvAny([]string{"MEDIAROOM_LOCATIONS_FILE"}, ""),
		RefreshInterval: getEnvDurationAny([]string{"MEDIAROOM_REFRESH_INTERVAL"}, 5*time.Minute),
		MaxRooms:        getEnvIntAny([]string{"MEDIAROOM_MAX_ROOMS"}, 64),

		DefaultDuration: getEnvDurationAny([]string{"MEDIAROOM_DEFAULT_DURATION"}, playlist.DefaultItemDuration),
		Timezone:        getEnvAny([]string{"MEDIAROOM_TIMEZONE", "TZ"}, "Local"),

		DBBackend: DatabaseBackend(getEnvAny([]string{"MEDIAROOM_DB_BACKEND"}, string(DatabaseSQLite))),
		DBDSN:     getEnvAny([]string{"MEDIAROOM_DB_DSN"}, "mediaroom.db"),

		RedisAddr:     getEnvAny([]string{"MEDIAROOM_REDIS_ADDR"}, ""),
		RedisPassword: getEnvAny([]string{"MEDIAROOM_REDIS_PASSWORD"}, ""),
		RedisDB:       getEnvIntAny([]string{"MEDIAROOM_REDIS_DB"}, 0),
		CacheTTL:      getEnvDurationAny([]string{"MEDIAROOM_CACHE_TTL"}, 2*time.Minute),

		Bus:     EventBus(getEnvAny([]string{"MEDIAROOM_EVENT_BUS"}, string(BusMemory))),
		NATSURL: getEnvAny([]string{"MEDIAROOM_NATS_URL", "NATS_URL"}, "nats://127.0.0.1:4222"),

		S3AccessKeyID:     getEnvAny([]string{"MEDIAROOM_S3_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID"}, ""),
		S3SecretAccessKey: getEnvAny([]string{"MEDIAROOM_S3_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY"}, ""),
		S3Region:          getEnvAny([]string{"MEDIAROOM_S3_REGION", "AWS_REGION"}, "us-east-1"),
		S3Bucket:          getEnvAny([]string{"MEDIAROOM_S3_BUCKET", "S3_BUCKET"}, ""),
		S3Endpoint:        getEnvAny([]string{"MEDIAROOM_S3_ENDPOINT", "S3_ENDPOINT"}, ""),
		S3UsePathStyle:    getEnvBoolAny([]string{"MEDIAROOM_S3_USE_PATH_STYLE", "S3_USE_PATH_STYLE"}, false),
		S3PresignTTL:      getEnvDurationAny([]string{"MEDIAROOM_S3_PRESIGN_TTL"}, 6*time.Hour),

		JWTSigningKey:     getEnvAny([]string{"MEDIAROOM_JWT_SIGNING_KEY"}, ""),
		JWTTTL:            getEnvDurationAny([]string{"MEDIAROOM_JWT_TTL"}, 12*time.Hour),
		AdminUser:         getEnvAny([]string{"MEDIAROOM_ADMIN_USER"}, "admin"),
		AdminPasswordHash: getEnvAny([]string{"MEDIAROOM_ADMIN_PASSWORD_HASH"}, ""),

		TracingEnabled:    getEnvBoolAny([]string{"MEDIAROOM_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"MEDIAROOM_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"MEDIAROOM_TRACING_SAMPLE_RATE"}, 1.0),

		InstanceID: getEnvAny([]string{"MEDIAROOM_INSTANCE_ID", "HOSTNAME"}, ""),
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.Source != SourceAPI && cfg.Source != SourceFile {
		return nil, fmt.Errorf("unsupported slot source %q", cfg.Source)
	}
	if cfg.Source == SourceAPI && cfg.APIBaseURL == "" {
		return nil, fmt.Errorf("MEDIAROOM_API_BASE_URL must be provided when MEDIAROOM_SOURCE=api")
	}

	if cfg.Bus != BusMemory && cfg.Bus != BusRedis && cfg.Bus != BusNATS {
		return nil, fmt.Errorf("unsupported event bus %q", cfg.Bus)
	}
	if cfg.Bus == BusRedis && cfg.RedisAddr == "" {
		return nil, fmt.Errorf("MEDIAROOM_REDIS_ADDR must be provided when MEDIAROOM_EVENT_BUS=redis")
	}

	boundary, err := playlist.ParseTimeOfDayIn(getEnvAny([]string{"MEDIAROOM_CYCLE_BOUNDARY"}, "08:00"), time.UTC)
	if err != nil {
		return nil, fmt.Errorf("MEDIAROOM_CYCLE_BOUNDARY: %w", err)
	}
	cfg.CycleBoundary = boundary

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("MEDIAROOM_TIMEZONE: %w", err)
	}
	cfg.Location = loc

	if cfg.DefaultDuration <= 0 {
		return nil, fmt.Errorf("MEDIAROOM_DEFAULT_DURATION must be positive")
	}
	if cfg.RefreshInterval < time.Second {
		return nil, fmt.Errorf("MEDIAROOM_REFRESH_INTERVAL must be at least 1s")
	}

	if cfg.AssetBaseURL == "" && cfg.APIBaseURL != "" {
		if u, err := url.Parse(cfg.APIBaseURL); err == nil && u.Scheme != "" && u.Host != "" {
			cfg.AssetBaseURL = u.Scheme + "://" + u.Host
		}
	}

	if strings.EqualFold(cfg.Environment, "production") && cfg.JWTSigningKey == "" {
		return nil, fmt.Errorf("MEDIAROOM_JWT_SIGNING_KEY must be provided in production")
	}

	return cfg, nil
}

// PlaylistOptions returns the builder options derived from the configuration.
func (c *Config) PlaylistOptions() playlist.Options {
	return playlist.Options{
		CycleBoundary:   c.CycleBoundary,
		DefaultDuration: c.DefaultDuration,
		Location:        c.Location,
	}
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.HTTPBind, c.HTTPPort)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// getEnvAny returns the first non-empty environment variable value from keys, or def.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvDurationAny accepts Go duration strings ("90s") or bare seconds ("90").
func getEnvDurationAny(keys []string, def time.Duration) time.Duration {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			if parsed, err := time.ParseDuration(v); err == nil {
				return parsed
			}
			if secs, err := strconv.Atoi(v); err == nil {
				return time.Duration(secs) * time.Second
			}
		}
	}
	return def
}
