package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ClockTime is a wall-clock time of day in minutes since local midnight.
// 24:00 is allowed as the end of a window.
type ClockTime int

// ParseClock parses "HH:MM".
func ParseClock(s string) (ClockTime, error) {
	var h, m int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid clock time %q: %w", s, err)
	}
	if h < 0 || m < 0 || m > 59 || h > 24 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	return ClockTime(h*60 + m), nil
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

func (c ClockTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *ClockTime) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// WorkWindow is a span of working time within one local day.
type WorkWindow struct {
	Start ClockTime `json:"start"`
	End   ClockTime `json:"end"`
}

// WeekHours maps each weekday to its ordered work windows. In JSON the keys
// are lowercase weekday names ("monday").
type WeekHours map[time.Weekday][]WorkWindow

func (w WeekHours) MarshalJSON() ([]byte, error) {
	m := make(map[string][]WorkWindow, len(w))
	for day, windows := range w {
		m[strings.ToLower(day.String())] = windows
	}
	return json.Marshal(m)
}

func (w *WeekHours) UnmarshalJSON(b []byte) error {
	var m map[string][]WorkWindow
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	out := make(WeekHours, len(m))
	for name, windows := range m {
		day, ok := parseWeekday(name)
		if !ok {
			return fmt.Errorf("invalid weekday %q", name)
		}
		out[day] = windows
	}
	*w = out
	return nil
}

func parseWeekday(s string) (time.Weekday, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || s == name[:3] {
			return d, true
		}
	}
	return 0, false
}

// Policy is per-user scheduling configuration.
type Policy struct {
	Timezone                 string     `json:"timezone"`
	WorkHours                WeekHours  `json:"work_hours"`
	Blackouts                []Interval `json:"blackouts,omitempty"`
	DefaultMinSessionMinutes int        `json:"default_min_session_minutes"`
	DefaultMaxSessionMinutes int        `json:"default_max_session_minutes"`
	// SessionGapMinutes separates consecutive sessions of one task that
	// share a free window.
	SessionGapMinutes int `json:"session_gap_minutes,omitempty"`
}

// DefaultPolicy is Monday to Friday, 09:00-17:00 UTC, 30-120 minute sessions.
func DefaultPolicy() Policy {
	day := []WorkWindow{{Start: 9 * 60, End: 17 * 60}}
	return Policy{
		Timezone: "UTC",
		WorkHours: WeekHours{
			time.Monday:    day,
			time.Tuesday:   day,
			time.Wednesday: day,
			time.Thursday:  day,
			time.Friday:    day,
		},
		DefaultMinSessionMinutes: 30,
		DefaultMaxSessionMinutes: 120,
	}
}

// Location resolves the policy timezone. Empty means UTC.
func (p Policy) Location() (*time.Location, error) {
	if p.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return nil, &ValidationError{Field: "timezone", Msg: err.Error()}
	}
	return loc, nil
}

// Validate checks windows, blackouts and session defaults.
func (p Policy) Validate() error {
	if _, err := p.Location(); err != nil {
		return err
	}
	for day, windows := range p.WorkHours {
		for i, w := range windows {
			if w.End <= w.Start {
				return &ValidationError{Field: "work_hours",
					Msg: fmt.Sprintf("%s window %d: end %s is not after start %s", day, i, w.End, w.Start)}
			}
			if w.End > 24*60 {
				return &ValidationError{Field: "work_hours", Msg: fmt.Sprintf("%s window %d ends after 24:00", day, i)}
			}
		}
	}
	for i, b := range p.Blackouts {
		if b.End.Before(b.Start) {
			return &ValidationError{Field: "blackouts", Msg: fmt.Sprintf("blackout %d ends before it starts", i)}
		}
	}
	if p.DefaultMinSessionMinutes < 0 || p.DefaultMaxSessionMinutes < 0 || p.SessionGapMinutes < 0 {
		return &ValidationError{Field: "session_minutes", Msg: "must be >= 0"}
	}
	if p.DefaultMaxSessionMinutes > 0 && p.DefaultMaxSessionMinutes < p.DefaultMinSessionMinutes {
		return &ValidationError{Field: "default_max_session_minutes", Msg: "is below default_min_session_minutes"}
	}
	return nil
}
