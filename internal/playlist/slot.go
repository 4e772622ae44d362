/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playlist

import (
	"encoding/json"
	"fmt"
	"time"
)

// Slot is one scheduled media entry as delivered by the backend.
type Slot struct {
	ID            string         `json:"id,omitempty" yaml:"id,omitempty"`
	CampaignName  string         `json:"campaignName,omitempty" yaml:"campaignName,omitempty"`
	MediaFile     string         `json:"mediaFile" yaml:"mediaFile"`
	SlotStartTime string         `json:"slotStartTime,omitempty" yaml:"slotStartTime,omitempty"`
	StartAt       time.Time      `json:"startAt,omitempty" yaml:"startAt,omitempty"`
	Extra         map[string]any `json:"-" yaml:",inline"`
}

// DisplayName returns the campaign name, or the slot id when the campaign is unnamed.
func (s Slot) DisplayName() string {
	if s.CampaignName != "" {
		return s.CampaignName
	}
	return s.ID
}

var slotKnownKeys = map[string]bool{
	"id":            true,
	"_id":           true,
	"campaignName":  true,
	"mediaFile":     true,
	"slotStartTime": true,
	"startAt":       true,
}

// UnmarshalJSON accepts the backend's loose slot encoding. slotStartTime may
// be a string or epoch milliseconds; everything unrecognised lands in Extra.
func (s *Slot) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*s = Slot{}
	for _, key := range []string{"id", "_id"} {
		if v, ok := raw[key]; ok && s.ID == "" {
			s.ID = looseString(v)
		}
	}
	if v, ok := raw["campaignName"]; ok {
		s.CampaignName = looseString(v)
	}
	if v, ok := raw["mediaFile"]; ok {
		s.MediaFile = looseString(v)
	}
	if v, ok := raw["slotStartTime"]; ok && string(v) != "null" {
		var ms float64
		if err := json.Unmarshal(v, &ms); err == nil {
			s.StartAt = time.UnixMilli(int64(ms))
		} else {
			s.SlotStartTime = looseString(v)
		}
	}
	if v, ok := raw["startAt"]; ok && string(v) != "null" {
		var ts time.Time
		if err := json.Unmarshal(v, &ts); err != nil {
			return fmt.Errorf("startAt: %w", err)
		}
		s.StartAt = ts
	}

	for key, v := range raw {
		if slotKnownKeys[key] {
			continue
		}
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			continue
		}
		if s.Extra == nil {
			s.Extra = make(map[string]any)
		}
		s.Extra[key] = val
	}
	return nil
}

// MarshalJSON flattens Extra back next to the known fields.
func (s Slot) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.Extra)+5)
	for k, v := range s.Extra {
		out[k] = v
	}
	if s.ID != "" {
		out["id"] = s.ID
	}
	if s.CampaignName != "" {
		out["campaignName"] = s.CampaignName
	}
	out["mediaFile"] = s.MediaFile
	if s.SlotStartTime != "" {
		out["slotStartTime"] = s.SlotStartTime
	}
	if !s.StartAt.IsZero() {
		out["startAt"] = s.StartAt
	}
	return json.Marshal(out)
}

func looseString(v json.RawMessage) string {
	var str string
	if err := json.Unmarshal(v, &str); err == nil {
		return str
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err == nil {
		return n.String()
	}
	return ""
}
