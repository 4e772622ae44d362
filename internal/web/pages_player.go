/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package web

import (
	"fmt"
	"html/template"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
)

const maxLocationIDLen = 128

// playerView feeds the shared stage partial.
type playerView struct {
	LocationID  string
	Name        string
	ScreenWS    string
	ShowOverlay bool
}

func (h *Handler) playerView(r *http.Request, overlayDefault bool) (playerView, bool) {
	id := chi.URLParam(r, "locationID")
	if id == "" || len(id) > maxLocationIDLen {
		return playerView{}, false
	}

	overlay := overlayDefault
	switch r.URL.Query().Get("overlay") {
	case "0", "false", "off":
		overlay = false
	case "1", "true", "on":
		overlay = true
	}

	return playerView{
		LocationID:  id,
		Name:        h.displayName(id),
		ScreenWS:    "/ws/screen/" + url.PathEscape(id),
		ShowOverlay: overlay,
	}, true
}

func (h *Handler) displayName(id string) string {
	if name, ok := h.names[id]; ok {
		return name
	}
	return id
}

// Player renders the full-screen player for a location.
func (h *Handler) Player(w http.ResponseWriter, r *http.Request) {
	view, ok := h.playerView(r, true)
	if !ok {
		http.Error(w, "Location not found", http.StatusNotFound)
		return
	}
	h.Render(w, r, "pages/player", PageData{
		Title:     view.Name,
		BodyClass: "player-page",
		Data:      view,
	})
}

// EmbedPlayer renders the player sized to its container, for iframes.
func (h *Handler) EmbedPlayer(w http.ResponseWriter, r *http.Request) {
	view, ok := h.playerView(r, false)
	if !ok {
		http.Error(w, "Location not found", http.StatusNotFound)
		return
	}
	h.Render(w, r, "pages/embed/player", PageData{
		Title:     view.Name,
		BodyClass: "embed-page",
		Data:      view,
	})
}

// Share renders the player link and a copyable iframe embed code.
func (h *Handler) Share(w http.ResponseWriter, r *http.Request) {
	view, ok := h.playerView(r, false)
	if !ok {
		http.Error(w, "Location not found", http.StatusNotFound)
		return
	}

	base := h.baseURL
	if base == "" {
		scheme := "http"
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			scheme = "https"
		}
		base = scheme + "://" + r.Host
	}
	escaped := url.PathEscape(view.LocationID)
	playerURL := base + "/player/" + escaped
	embedURL := base + "/embed/player/" + escaped
	code := fmt.Sprintf(`<iframe src="%s" width="1280" height="720" frameborder="0" allow="autoplay; fullscreen" allowfullscreen></iframe>`,
		template.HTMLEscapeString(embedURL))

	h.Render(w, r, "pages/share", PageData{
		Title:     view.Name + " - Share",
		BodyClass: "share-page",
		Data: map[string]any{
			"Name":      view.Name,
			"PlayerURL": playerURL,
			"EmbedCode": code,
			"EmbedHTML": template.HTML(code),
		},
	})
}
