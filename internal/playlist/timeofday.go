/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playlist

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrUnparseable is returned when no time-of-day format matches.
	ErrUnparseable = errors.New("unparseable time of day")
	// ErrOutOfRange is returned when a format matched but a component is out of range.
	ErrOutOfRange = errors.New("time of day out of range")
)

// TimeOfDay is a wall-clock time without a date.
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

// Valid reports whether every component is within its clock range.
func (t TimeOfDay) Valid() bool {
	return t.Hour >= 0 && t.Hour <= 23 &&
		t.Minute >= 0 && t.Minute <= 59 &&
		t.Second >= 0 && t.Second <= 59
}

// On anchors the time of day to day's calendar date in day's location.
func (t TimeOfDay) On(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, t.Hour, t.Minute, t.Second, 0, day.Location())
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

// Offset returns the time of day as a duration since midnight.
func (t TimeOfDay) Offset() time.Duration {
	return time.Duration(t.Hour)*time.Hour + time.Duration(t.Minute)*time.Minute + time.Duration(t.Second)*time.Second
}

// FromTime extracts the clock fields of ts in loc.
func FromTime(ts time.Time, loc *time.Location) TimeOfDay {
	if loc != nil {
		ts = ts.In(loc)
	}
	h, m, s := ts.Clock()
	return TimeOfDay{Hour: h, Minute: m, Second: s}
}

// timeParser is one format attempt. ok is false when the format does not apply.
type timeParser struct {
	name  string
	parse func(raw string, loc *time.Location) (tod TimeOfDay, ok bool)
}

// parsers are tried in order; the first one that recognises the input wins.
var parsers = []timeParser{
	{name: "12h", parse: parseTwelveHour},
	{name: "iso8601", parse: parseISO},
	{name: "24h", parse: parseTwentyFourHour},
}

var twelveHourPattern = regexp.MustCompile(`(?i)^(\d{1,2}):(\d{2})(?::(\d{2}))?\s*(AM|PM)$`)

func parseTwelveHour(raw string, _ *time.Location) (TimeOfDay, bool) {
	m := twelveHourPattern.FindStringSubmatch(raw)
	if m == nil {
		return TimeOfDay{}, false
	}
	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	second := 0
	if m[3] != "" {
		second, _ = strconv.Atoi(m[3])
	}
	switch strings.ToUpper(m[4]) {
	case "PM":
		if hour >= 1 && hour <= 11 {
			hour += 12
		}
	case "AM":
		if hour == 12 {
			hour = 0
		}
	}
	return TimeOfDay{Hour: hour, Minute: minute, Second: second}, true
}

var isoLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

func parseISO(raw string, loc *time.Location) (TimeOfDay, bool) {
	if !strings.Contains(raw, "T") {
		return TimeOfDay{}, false
	}
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range isoLayouts {
		ts, err := time.ParseInLocation(layout, raw, loc)
		if err == nil {
			return FromTime(ts, loc), true
		}
	}
	return TimeOfDay{}, false
}

var clockComponentPattern = regexp.MustCompile(`^\d*(?:\.\d*)?$`)

// clockLimits are the inclusive maxima of hour, minute and second.
var clockLimits = [3]int{23, 59, 59}

// parseTwentyFourHour accepts "H:MM" and "H:MM:SS". An empty minute or second
// reads as zero and fractional components are truncated, so "9:" and
// "14:30:00.000" both parse.
func parseTwentyFourHour(raw string, _ *time.Location) (TimeOfDay, bool) {
	parts := strings.Split(raw, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return TimeOfDay{}, false
	}
	values := make([]int, 3)
	for i, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			if i == 0 {
				return TimeOfDay{}, false
			}
			continue
		}
		if !clockComponentPattern.MatchString(part) {
			return TimeOfDay{}, false
		}
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return TimeOfDay{}, false
		}
		n := int(v)
		// 59.5 seconds is past the limit even though it truncates to 59.
		if n == clockLimits[i] && v > float64(n) {
			n++
		}
		values[i] = n
	}
	return TimeOfDay{Hour: values[0], Minute: values[1], Second: values[2]}, true
}

// ParseTimeOfDay parses a slot start time in local time.
func ParseTimeOfDay(raw string) (TimeOfDay, error) {
	return ParseTimeOfDayIn(raw, time.Local)
}

// ParseTimeOfDayIn parses a slot start time. Zoned ISO-8601 values are
// converted into loc before the clock fields are taken.
func ParseTimeOfDayIn(raw string, loc *time.Location) (TimeOfDay, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return TimeOfDay{}, fmt.Errorf("%w: empty value", ErrUnparseable)
	}
	for _, p := range parsers {
		tod, ok := p.parse(raw, loc)
		if !ok {
			continue
		}
		if !tod.Valid() {
			return TimeOfDay{}, fmt.Errorf("%w: %q (%s)", ErrOutOfRange, raw, p.name)
		}
		return tod, nil
	}
	return TimeOfDay{}, fmt.Errorf("%w: %q", ErrUnparseable, raw)
}

// MustTimeOfDay parses a 24-hour value and panics on failure. Intended for
// constants and tests.
func MustTimeOfDay(raw string) TimeOfDay {
	tod, err := ParseTimeOfDayIn(raw, time.UTC)
	if err != nil {
		panic(err)
	}
	return tod
}
