/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package screen

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	ws "nhooyr.io/websocket"

	"github.com/friendsincode/mediaroom/internal/telemetry"
)

const (
	pingInterval = 15 * time.Second
	writeTimeout = 5 * time.Second
)

// ServeWS upgrades the request and streams commands to the screen until it
// disconnects. The screen may name itself with ?screen=<id>.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.Accept(w, r, &ws.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(ws.StatusInternalError, "server error")

	telemetry.WebSocketConnections.Inc()
	defer telemetry.WebSocketConnections.Dec()

	id := r.URL.Query().Get("screen")
	if id == "" {
		id = uuid.NewString()
	}

	c := h.attach(id)
	defer h.detach(c)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Read acks from the screen
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				if ws.CloseStatus(err) != ws.StatusNormalClosure && ctx.Err() == nil {
					h.logger.Debug().Err(err).Str("screen", id).Msg("websocket read error")
				}
				return
			}

			var ack Ack
			if err := json.Unmarshal(data, &ack); err != nil {
				h.logger.Warn().Err(err).Str("screen", id).Msg("invalid websocket message")
				continue
			}
			h.HandleAck(ack)
		}
	}()

	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(ws.StatusNormalClosure, "context cancelled")
			return

		case <-done:
			conn.Close(ws.StatusNormalClosure, "screen disconnected")
			return

		case <-pingTicker.C:
			pingCtx, pingCancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Ping(pingCtx)
			pingCancel()
			if err != nil {
				h.logger.Debug().Err(err).Str("screen", id).Msg("ping failed")
				conn.Close(ws.StatusGoingAway, "ping failed")
				return
			}

		case cmd, ok := <-c.send:
			if !ok {
				conn.Close(ws.StatusGoingAway, "screen dropped")
				return
			}
			data, err := json.Marshal(cmd)
			if err != nil {
				h.logger.Error().Err(err).Msg("marshal command")
				continue
			}
			writeCtx, writeCancel := context.WithTimeout(ctx, writeTimeout)
			err = conn.Write(writeCtx, ws.MessageText, data)
			writeCancel()
			if err != nil {
				h.logger.Debug().Err(err).Str("screen", id).Msg("send command failed")
				conn.Close(ws.StatusInternalError, "send failed")
				return
			}
		}
	}
}

// ServeHTTP makes the hub mountable as a handler.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.ServeWS(w, r)
}
