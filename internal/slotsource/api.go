/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package slotsource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/friendsincode/mediaroom/internal/playlist"
	"github.com/friendsincode/mediaroom/internal/version"
)

// maxResponseBytes caps how much of a backend response is read.
const maxResponseBytes = 8 << 20

// APISource reads slots from the advertising backend:
// GET {base}/location/{id}?date=YYYY-MM-DD with a bearer token.
type APISource struct {
	baseURL string
	token   string
	client  *http.Client
	logger  zerolog.Logger
}

// NewAPISource creates a backend client. The transport is traced.
func NewAPISource(baseURL, token string, timeout time.Duration, logger zerolog.Logger) *APISource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &APISource{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger.With().Str("component", "slotsource").Str("source", "api").Logger(),
	}
}

// Name implements Source.
func (s *APISource) Name() string { return "api" }

type slotsResponse struct {
	Slots []playlist.Slot `json:"slots"`
}

// Fetch implements Source.
func (s *APISource) Fetch(ctx context.Context, locationID string, date time.Time) ([]playlist.Slot, error) {
	endpoint := fmt.Sprintf("%s/location/%s?%s",
		s.baseURL,
		url.PathEscape(locationID),
		url.Values{"date": {DateParam(date)}}.Encode(),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "mediaroom/"+version.Version)
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch slots for %s: %w", locationID, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrLocationNotFound, locationID)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("fetch slots for %s: unexpected status %d: %s", locationID, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var body slotsResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode slots for %s: %w", locationID, err)
	}

	s.logger.Debug().
		Str("location", locationID).
		Str("date", DateParam(date)).
		Int("slots", len(body.Slots)).
		Msg("fetched slots")
	return body.Slots, nil
}
