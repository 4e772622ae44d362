/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package web

import (
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/friendsincode/mediaroom/internal/config"
	"github.com/friendsincode/mediaroom/internal/version"
)

// Handler serves the player pages with server-rendered templates.
type Handler struct {
	logger    zerolog.Logger
	baseURL   string                        // Public base URL used in share links
	names     map[string]string             // Configured location display names
	templates map[string]*template.Template // Each page gets its own template set
}

// PageData holds common data passed to all templates.
type PageData struct {
	Title     string
	BodyClass string
	Version   string
	Data      any
}

// NewHandler creates a new web handler.
func NewHandler(baseURL string, locations []config.LocationConfig, logger zerolog.Logger) (*Handler, error) {
	h := &Handler{
		logger:  logger.With().Str("component", "web").Logger(),
		baseURL: strings.TrimRight(baseURL, "/"),
		names:   make(map[string]string, len(locations)),
	}
	for _, loc := range locations {
		if loc.Name != "" {
			h.names[loc.ID] = loc.Name
		}
	}

	if err := h.loadTemplates(); err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}
	return h, nil
}

func (h *Handler) loadTemplates() error {
	h.templates = make(map[string]*template.Template)

	var layoutFiles, partialFiles, pageFiles []string
	err := fs.WalkDir(TemplateFS, "templates", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".html") {
			return nil
		}

		switch {
		case strings.HasPrefix(path, "templates/layouts/"):
			layoutFiles = append(layoutFiles, path)
		case strings.HasPrefix(path, "templates/partials/"):
			partialFiles = append(partialFiles, path)
		case strings.HasPrefix(path, "templates/pages/"):
			pageFiles = append(pageFiles, path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	// Each page gets its own set with every layout and partial.
	shared := append(append([]string{}, layoutFiles...), partialFiles...)
	for _, pagePath := range pageFiles {
		tmpl := template.New("")
		for _, path := range append(shared, pagePath) {
			content, err := fs.ReadFile(TemplateFS, path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			if _, err := tmpl.New(templateName(path)).Parse(string(content)); err != nil {
				return fmt.Errorf("parse %s: %w", path, err)
			}
		}

		pageName := templateName(pagePath)
		h.templates[pageName] = tmpl
		h.logger.Debug().Str("template", pageName).Msg("loaded template")
	}
	return nil
}

func templateName(path string) string {
	return strings.TrimSuffix(strings.TrimPrefix(path, "templates/"), ".html")
}

// Render executes a page template.
func (h *Handler) Render(w http.ResponseWriter, r *http.Request, name string, data PageData) {
	data.Version = version.Version

	tmpl, ok := h.templates[name]
	if !ok {
		h.logger.Error().Str("template", name).Msg("template not found")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, name, data); err != nil {
		h.logger.Error().Err(err).Str("template", name).Msg("template render failed")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// staticResponseWriter wraps http.ResponseWriter to force correct MIME types
type staticResponseWriter struct {
	http.ResponseWriter
	contentType string
	wroteHeader bool
}

func (w *staticResponseWriter) WriteHeader(code int) {
	if !w.wroteHeader && w.contentType != "" {
		w.Header().Set("Content-Type", w.contentType)
	}
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *staticResponseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

// StaticHandler returns an http.Handler for static files.
func (h *Handler) StaticHandler() http.Handler {
	fsys, _ := fs.Sub(StaticFS, "static")
	fileServer := http.FileServer(http.FS(fsys))
	return http.StripPrefix("/static/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var contentType string
		switch {
		case strings.HasSuffix(r.URL.Path, ".css"):
			contentType = "text/css; charset=utf-8"
		case strings.HasSuffix(r.URL.Path, ".js"):
			contentType = "application/javascript; charset=utf-8"
		}

		w.Header().Set("Cache-Control", "public, max-age=300")
		sw := &staticResponseWriter{ResponseWriter: w, contentType: contentType}
		fileServer.ServeHTTP(sw, r)
	}))
}
