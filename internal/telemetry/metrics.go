/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Playlist metrics
var (
	PlaylistBuilds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediaroom_playlist_builds_total",
			Help: "Total number of playlist builds",
		},
		[]string{"location"},
	)

	PlaylistItems = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mediaroom_playlist_items",
			Help: "Number of items in the current playlist",
		},
		[]string{"location"},
	)

	SlotsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediaroom_slots_dropped_total",
			Help: "Slots excluded from a playlist, by reason",
		},
		[]string{"location", "reason"},
	)
)

// Driver metrics
var (
	DriverTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediaroom_driver_transitions_total",
			Help: "Driver phase transitions",
		},
		[]string{"phase"},
	)

	MediaErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediaroom_media_errors_total",
			Help: "Media resolve and load failures, by kind",
		},
		[]string{"kind"},
	)

	CycleWraps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediaroom_cycle_wraps_total",
			Help: "Times a playlist cycle wrapped to its first item",
		},
		[]string{"location"},
	)
)

// Slot source metrics
var (
	SlotFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediaroom_slot_fetches_total",
			Help: "Slot fetches by source and result",
		},
		[]string{"source", "result"},
	)

	SlotFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mediaroom_slot_fetch_duration_seconds",
			Help:    "Slot fetch duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"source"},
	)
)

// Screen metrics
var (
	ScreensConnected = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mediaroom_screens_connected",
			Help: "Connected screens per location",
		},
		[]string{"location"},
	)

	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mediaroom_websocket_connections",
			Help: "Open WebSocket connections of any kind",
		},
	)
)

// Database metrics
var (
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mediaroom_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"operation", "table"},
	)

	DBErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediaroom_db_errors_total",
			Help: "Database operation errors",
		},
		[]string{"operation", "table"},
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mediaroom_db_connections_open",
			Help: "Number of open database connections",
		},
	)
)

// Cache metrics
var (
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediaroom_cache_lookups_total",
			Help: "Slot cache lookups by result",
		},
		[]string{"result"},
	)
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediaroom_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mediaroom_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mediaroom_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Handler exposes metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
