package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Priority is an ordinal; higher values are more important.
type Priority int

const (
	PriorityLow      Priority = 1
	PriorityNormal   Priority = 2
	PriorityHigh     Priority = 3
	PriorityCritical Priority = 4
)

var priorityNames = map[string]Priority{
	"low":      PriorityLow,
	"normal":   PriorityNormal,
	"high":     PriorityHigh,
	"critical": PriorityCritical,
}

// ParsePriority accepts a priority name or a non-negative integer.
func ParsePriority(s string) (Priority, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if p, ok := priorityNames[s]; ok {
		return p, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid priority %q (valid: low, normal, high, critical or a non-negative integer)", s)
	}
	return Priority(n), nil
}

func (p Priority) String() string {
	for name, v := range priorityNames {
		if v == p {
			return name
		}
	}
	return strconv.Itoa(int(p))
}

// UnmarshalJSON accepts either a number or a priority name.
func (p *Priority) UnmarshalJSON(b []byte) error {
	var n int
	if err := json.Unmarshal(b, &n); err == nil {
		if n < 0 {
			return fmt.Errorf("priority must be >= 0, got %d", n)
		}
		*p = Priority(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("priority: %w", err)
	}
	v, err := ParsePriority(s)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Duration is a time.Duration that travels as a Go duration string ("1h30m").
// Bare numbers are read as minutes.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var n float64
	if err := json.Unmarshal(b, &n); err == nil {
		*d = Duration(time.Duration(n * float64(time.Minute)))
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration: %w", err)
	}
	v, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Task is a unit of work that needs time on the calendar. Tasks are owned
// by the task-management collaborator; the scheduler only reads snapshots.
type Task struct {
	ID                string     `json:"id"`
	Title             string     `json:"title"`
	Deadline          *time.Time `json:"deadline,omitempty"`
	EstimatedDuration Duration   `json:"estimated_duration"`
	Priority          Priority   `json:"priority"`
	MinSessionMinutes int        `json:"min_session_minutes,omitempty"`
	MaxSessionMinutes int        `json:"max_session_minutes,omitempty"`
	EarliestStart     *time.Time `json:"earliest_start,omitempty"`
	LinkID            string     `json:"link_id,omitempty"`
}

// Estimate returns the estimated duration as a time.Duration.
func (t Task) Estimate() time.Duration {
	return time.Duration(t.EstimatedDuration)
}

// Validate checks the task's own fields. Session bounds that depend on
// policy defaults are checked by the allocator.
func (t Task) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return &ValidationError{Field: "id", Msg: "task id is required"}
	}
	if t.Estimate() <= 0 {
		return &ValidationError{Record: t.ID, Field: "estimated_duration", Msg: "must be positive"}
	}
	if t.MinSessionMinutes < 0 || t.MaxSessionMinutes < 0 {
		return &ValidationError{Record: t.ID, Field: "session_minutes", Msg: "must be >= 0"}
	}
	if t.MinSessionMinutes > 0 && t.MaxSessionMinutes > 0 && t.MaxSessionMinutes < t.MinSessionMinutes {
		return &ValidationError{Record: t.ID, Field: "max_session_minutes",
			Msg: fmt.Sprintf("max %d is below min %d", t.MaxSessionMinutes, t.MinSessionMinutes)}
	}
	if t.MinSessionMinutes > 0 && time.Duration(t.MinSessionMinutes)*time.Minute > t.Estimate() {
		return &ValidationError{Record: t.ID, Field: "min_session_minutes",
			Msg: fmt.Sprintf("min session %dm exceeds estimate %s", t.MinSessionMinutes, t.Estimate())}
	}
	if t.Deadline != nil && t.EarliestStart != nil && !t.Deadline.After(*t.EarliestStart) {
		return &ValidationError{Record: t.ID, Field: "deadline", Msg: "must be after earliest_start"}
	}
	return nil
}
