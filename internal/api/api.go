/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	ws "nhooyr.io/websocket"

	"github.com/friendsincode/mediaroom/internal/auth"
	"github.com/friendsincode/mediaroom/internal/events"
	"github.com/friendsincode/mediaroom/internal/models"
	"github.com/friendsincode/mediaroom/internal/room"
	"github.com/friendsincode/mediaroom/internal/telemetry"
)

// Rooms is the subset of the room manager the API needs.
type Rooms interface {
	Ensure(locationID string) (*room.Room, error)
	Get(locationID string) (*room.Room, bool)
	List() []*room.Room
}

// History reads proof-of-play records.
type History interface {
	Recent(ctx context.Context, locationID string, limit int) ([]models.PlayRecord, error)
}

// EventSource is what the event stream subscribes to.
type EventSource interface {
	Subscribe(eventType events.EventType) events.Subscriber
	Unsubscribe(eventType events.EventType, sub events.Subscriber)
}

// API exposes HTTP handlers.
type API struct {
	rooms     Rooms
	history   History
	bus       EventSource
	authn     *auth.Authenticator
	jwtSecret []byte
	logger    zerolog.Logger
}

// New creates the API router wrapper. history and authn may be nil.
func New(rooms Rooms, history History, bus EventSource, authn *auth.Authenticator, jwtSecret []byte, logger zerolog.Logger) *API {
	return &API{
		rooms:     rooms,
		history:   history,
		bus:       bus,
		authn:     authn,
		jwtSecret: jwtSecret,
		logger:    logger.With().Str("component", "api").Logger(),
	}
}

// Routes registers API routes on the router.
func (a *API) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)
		r.Post("/auth/login", a.handleLogin)

		r.Route("/locations", func(r chi.Router) {
			r.Get("/", a.handleLocationsList)
			r.Route("/{locationID}", func(r chi.Router) {
				r.Get("/", a.handleLocationGet)
				r.Get("/playlist", a.handlePlaylist)
				r.Get("/now", a.handleNow)
				r.Get("/history", a.handleHistory)
				r.With(a.authMiddleware(), auth.RequireRole(auth.RoleOperator)).Post("/refresh", a.handleRefresh)
			})
		})

		r.Group(func(pr chi.Router) {
			pr.Use(a.authMiddleware())
			pr.Get("/events", a.handleEvents)
		})
	})
}

func (a *API) authMiddleware() func(http.Handler) http.Handler {
	return auth.Middleware(a.jwtSecret)
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if a.authn == nil {
		writeError(w, http.StatusServiceUnavailable, "login_disabled")
		return
	}

	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	token, expires, err := a.authn.Login(req.Username, req.Password)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		a.logger.Warn().Str("username", req.Username).Str("remote", r.RemoteAddr).Msg("login rejected")
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	case errors.Is(err, auth.ErrLoginDisabled):
		writeError(w, http.StatusServiceUnavailable, "login_disabled")
		return
	case err != nil:
		a.logger.Error().Err(err).Msg("issue token failed")
		writeError(w, http.StatusInternalServerError, "token_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"expires_at": expires.UTC(),
	})
}

type locationSummary struct {
	ID          string    `json:"id"`
	Name        string    `json:"name,omitempty"`
	Phase       string    `json:"phase"`
	Position    string    `json:"position,omitempty"`
	Screens     int       `json:"screens"`
	CycleDay    string    `json:"cycle_day"`
	LastRefresh time.Time `json:"last_refresh,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
}

func (a *API) handleLocationsList(w http.ResponseWriter, r *http.Request) {
	rooms := a.rooms.List()
	out := make([]locationSummary, 0, len(rooms))
	for _, rm := range rooms {
		st := rm.Status()
		out = append(out, locationSummary{
			ID:          st.ID,
			Name:        st.Name,
			Phase:       string(st.Player.Phase),
			Position:    st.Player.Position,
			Screens:     st.Screens,
			CycleDay:    st.CycleDay,
			LastRefresh: st.LastRefresh,
			LastError:   st.LastError,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleLocationGet(w http.ResponseWriter, r *http.Request) {
	rm, ok := a.room(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, rm.Status())
}

type playlistEntry struct {
	Index    int       `json:"index"`
	SlotID   string    `json:"slot_id,omitempty"`
	Name     string    `json:"name"`
	Media    string    `json:"media"`
	Kind     string    `json:"kind"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Duration float64   `json:"duration_seconds"`
	Current  bool      `json:"current"`
}

func (a *API) handlePlaylist(w http.ResponseWriter, r *http.Request) {
	rm, ok := a.room(w, r)
	if !ok {
		return
	}

	items := rm.Driver().Playlist()
	snap := rm.Driver().Snapshot()
	out := make([]playlistEntry, 0, len(items))
	for i, it := range items {
		out = append(out, playlistEntry{
			Index:    i,
			SlotID:   it.Slot.ID,
			Name:     it.Slot.DisplayName(),
			Media:    it.Slot.MediaFile,
			Kind:     string(it.Kind),
			Start:    it.Start,
			End:      it.End,
			Duration: it.Duration.Seconds(),
			Current:  snap.Item != nil && i == snap.Index,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"location_id": rm.ID(),
		"cycle_day":   rm.Status().CycleDay,
		"items":       out,
	})
}

func (a *API) handleNow(w http.ResponseWriter, r *http.Request) {
	rm, ok := a.room(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, rm.Driver().Snapshot())
}

func (a *API) handleHistory(w http.ResponseWriter, r *http.Request) {
	if a.history == nil {
		writeError(w, http.StatusServiceUnavailable, "history_unavailable")
		return
	}
	locationID := chi.URLParam(r, "locationID")

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit")
			return
		}
		limit = n
	}

	records, err := a.history.Recent(r.Context(), locationID, limit)
	if err != nil {
		a.logger.Error().Err(err).Str("location", locationID).Msg("history query failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	locationID := chi.URLParam(r, "locationID")
	rm, err := a.rooms.Ensure(locationID)
	if err != nil {
		if errors.Is(err, room.ErrTooManyRooms) {
			writeError(w, http.StatusServiceUnavailable, "room_limit_reached")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_location")
		return
	}

	if err := rm.ForceRefresh(r.Context()); err != nil {
		a.logger.Warn().Err(err).Str("location", locationID).Msg("forced refresh failed")
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"error":  "refresh_failed",
			"detail": err.Error(),
		})
		return
	}

	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		a.logger.Info().Str("location", locationID).Str("user", claims.Username).Msg("playlist refreshed by operator")
	}
	writeJSON(w, http.StatusOK, rm.Status())
}

func (a *API) room(w http.ResponseWriter, r *http.Request) (*room.Room, bool) {
	locationID := chi.URLParam(r, "locationID")
	rm, ok := a.rooms.Get(locationID)
	if !ok {
		writeError(w, http.StatusNotFound, "location_not_running")
		return nil, false
	}
	return rm, true
}

// handleEvents streams bus events over a WebSocket.
func (a *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.Accept(w, r, &ws.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		a.logger.Error().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(ws.StatusInternalError, "server error")

	telemetry.WebSocketConnections.Inc()
	defer telemetry.WebSocketConnections.Dec()

	// The stream is write-only; CloseRead cancels ctx when the client goes away.
	ctx := conn.CloseRead(r.Context())

	eventTypes := parseEventTypes(r.URL.Query().Get("types"))
	if len(eventTypes) == 0 {
		eventTypes = []events.EventType{events.EventNowPlaying, events.EventPlayerPhase}
	}

	subscribers := make([]events.Subscriber, 0, len(eventTypes))
	for _, eventType := range eventTypes {
		subscribers = append(subscribers, a.bus.Subscribe(eventType))
	}
	defer func() {
		for i, eventType := range eventTypes {
			a.bus.Unsubscribe(eventType, subscribers[i])
		}
	}()

	location := r.URL.Query().Get("location")

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(ws.StatusNormalClosure, "context cancelled")
			return
		case <-ticker.C:
			if err := conn.Write(ctx, ws.MessageText, []byte(`{"type":"ping"}`)); err != nil {
				a.logger.Debug().Err(err).Msg("websocket ping failed")
				conn.Close(ws.StatusInternalError, "write failed")
				return
			}
		default:
			sent := false
			for i, sub := range subscribers {
				select {
				case payload, ok := <-sub:
					if !ok {
						continue
					}
					if location != "" && payload["location_id"] != location {
						continue
					}
					if err := writeEvent(ctx, conn, eventTypes[i], payload); err != nil {
						a.logger.Debug().Err(err).Msg("websocket write failed")
						conn.Close(ws.StatusInternalError, "write failed")
						return
					}
					sent = true
				default:
				}
			}
			if !sent {
				time.Sleep(100 * time.Millisecond)
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *ws.Conn, eventType events.EventType, payload events.Payload) error {
	data := map[string]any{
		"type":    eventType,
		"payload": payload,
	}
	bytes, err := json.Marshal(data)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return conn.Write(ctx, ws.MessageText, bytes)
}

func parseEventTypes(raw string) []events.EventType {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]events.EventType, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, events.EventType(part))
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
