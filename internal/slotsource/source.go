/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package slotsource fetches the day's slot list for a location.
package slotsource

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/friendsincode/mediaroom/internal/playlist"
	"github.com/friendsincode/mediaroom/internal/telemetry"
)

// ErrLocationNotFound is returned when the source does not know the location.
var ErrLocationNotFound = errors.New("location not found")

// Source supplies slot lists per location and calendar date.
type Source interface {
	Name() string
	Fetch(ctx context.Context, locationID string, date time.Time) ([]playlist.Slot, error)
}

// DateParam formats a date the way the backend expects it.
func DateParam(date time.Time) string {
	return date.Format("2006-01-02")
}

type instrumented struct {
	Source
}

// WithTelemetry wraps a source with fetch metrics and a tracing span.
func WithTelemetry(src Source) Source {
	return instrumented{Source: src}
}

// Lister is implemented by sources that know their locations up front.
type Lister interface {
	Locations() ([]string, error)
}

// Locations lists the locations src knows about, looking through
// instrumentation. Sources that cannot list return nil.
func Locations(src Source) ([]string, error) {
	if in, ok := src.(instrumented); ok {
		src = in.Source
	}
	lister, ok := src.(Lister)
	if !ok {
		return nil, nil
	}
	return lister.Locations()
}

func (s instrumented) Fetch(ctx context.Context, locationID string, date time.Time) ([]playlist.Slot, error) {
	ctx, span := telemetry.StartSpan(ctx, "slotsource.fetch",
		attribute.String("source", s.Name()),
		attribute.String("location", locationID),
		attribute.String("date", DateParam(date)),
	)
	defer span.End()

	start := time.Now()
	slots, err := s.Source.Fetch(ctx, locationID, date)
	telemetry.SlotFetchDuration.WithLabelValues(s.Name()).Observe(time.Since(start).Seconds())

	result := "ok"
	switch {
	case errors.Is(err, ErrLocationNotFound):
		result = "not_found"
	case err != nil:
		result = "error"
	}
	telemetry.SlotFetches.WithLabelValues(s.Name(), result).Inc()
	telemetry.RecordError(span, err)
	span.SetAttributes(attribute.Int("slots", len(slots)))

	return slots, err
}
