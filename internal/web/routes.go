/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes registers the player pages on the given router.
func (h *Handler) Routes(r chi.Router) {
	r.Handle("/static/*", h.StaticHandler())

	r.Get("/favicon.ico", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "public, max-age=86400")
		w.Write([]byte(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 32 32"><rect x="3" y="6" width="26" height="18" rx="2" fill="#6366f1"/><rect x="12" y="26" width="8" height="2" fill="#6366f1"/></svg>`))
	})

	r.Get("/player/{locationID}", h.Player)
	r.Get("/player/{locationID}/share", h.Share)
	r.Get("/embed/player/{locationID}", h.EmbedPlayer)
}
