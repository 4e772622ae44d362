/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/friendsincode/mediaroom/internal/playlist"
)

// LocationConfig carries per-location overrides.
type LocationConfig struct {
	ID              string        `yaml:"id"`
	Name            string        `yaml:"name,omitempty"`
	Timezone        string        `yaml:"timezone,omitempty"`
	CycleBoundary   string        `yaml:"cycle_boundary,omitempty"`
	DefaultDuration time.Duration `yaml:"default_duration,omitempty"`
}

type locationsFile struct {
	Locations []LocationConfig `yaml:"locations"`
}

// LoadLocations reads location overrides from a YAML file.
func LoadLocations(path string) ([]LocationConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read locations file: %w", err)
	}

	var file locationsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse locations file: %w", err)
	}

	seen := make(map[string]bool, len(file.Locations))
	for i, loc := range file.Locations {
		if loc.ID == "" {
			return nil, fmt.Errorf("location %d: id is required", i)
		}
		if seen[loc.ID] {
			return nil, fmt.Errorf("location %q listed twice", loc.ID)
		}
		seen[loc.ID] = true
	}
	return file.Locations, nil
}

// ResolveLocations merges MEDIAROOM_LOCATIONS with the locations file.
// File entries win for ids present in both.
func (c *Config) ResolveLocations() ([]LocationConfig, error) {
	var out []LocationConfig
	index := map[string]int{}

	for _, id := range c.Locations {
		if _, ok := index[id]; ok {
			continue
		}
		index[id] = len(out)
		out = append(out, LocationConfig{ID: id})
	}

	if c.LocationsFile != "" {
		fromFile, err := LoadLocations(c.LocationsFile)
		if err != nil {
			return nil, err
		}
		for _, loc := range fromFile {
			if i, ok := index[loc.ID]; ok {
				out[i] = loc
				continue
			}
			index[loc.ID] = len(out)
			out = append(out, loc)
		}
	}
	return out, nil
}

// Options applies the location's overrides on top of base.
func (l LocationConfig) Options(base playlist.Options) (playlist.Options, error) {
	opts := base
	if l.Timezone != "" {
		loc, err := time.LoadLocation(l.Timezone)
		if err != nil {
			return opts, fmt.Errorf("location %q timezone: %w", l.ID, err)
		}
		opts.Location = loc
	}
	if l.CycleBoundary != "" {
		tod, err := playlist.ParseTimeOfDayIn(l.CycleBoundary, time.UTC)
		if err != nil {
			return opts, fmt.Errorf("location %q cycle boundary: %w", l.ID, err)
		}
		opts.CycleBoundary = tod
	}
	if l.DefaultDuration > 0 {
		opts.DefaultDuration = l.DefaultDuration
	}
	return opts, nil
}
