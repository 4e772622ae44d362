/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package slotsource

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/friendsincode/mediaroom/internal/playlist"
)

// FileSource serves slots from a YAML file, re-read on every fetch:
//
//	locations:
//	  lobby:
//	    slots:
//	      - campaignName: Summer Sale
//	        mediaFile: https://cdn.example.com/summer.mp4
//	        slotStartTime: "9:00 AM"
//	    dates:
//	      "2025-12-24":
//	        - mediaFile: xmas.png
//	          slotStartTime: "09:00"
type FileSource struct {
	path string
}

type fileLocation struct {
	Slots []playlist.Slot            `yaml:"slots"`
	Dates map[string][]playlist.Slot `yaml:"dates"`
}

type slotsFile struct {
	Locations map[string]fileLocation `yaml:"locations"`
}

// NewFileSource creates a source backed by path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Name implements Source.
func (s *FileSource) Name() string { return "file" }

// Fetch implements Source. A date-specific list replaces the default list.
func (s *FileSource) Fetch(_ context.Context, locationID string, date time.Time) ([]playlist.Slot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read slots file: %w", err)
	}

	var file slotsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse slots file: %w", err)
	}

	loc, ok := file.Locations[locationID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocationNotFound, locationID)
	}
	if dated, ok := loc.Dates[DateParam(date)]; ok {
		return dated, nil
	}
	return loc.Slots, nil
}

// Locations lists the location ids defined in the file.
func (s *FileSource) Locations() ([]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read slots file: %w", err)
	}
	var file slotsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse slots file: %w", err)
	}
	ids := make([]string, 0, len(file.Locations))
	for id := range file.Locations {
		ids = append(ids, id)
	}
	return ids, nil
}
