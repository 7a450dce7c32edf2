// Package model defines the core scheduling data types.
package model

import "time"

// Source is the origin kind of a Timeblock. It never changes after creation.
type Source string

const (
	SourceTask     Source = "task"
	SourceCalendar Source = "calendar"
	SourceBusy     Source = "busy"
)

// Provider tags blocks that came from an external calendar.
// The empty Provider means the block was generated internally.
type Provider string

const (
	ProviderGoogle   Provider = "google"
	ProviderOutlook  Provider = "outlook"
	ProviderApple    Provider = "apple"
	ProviderInternal Provider = "internal"
)

// ValidSources are the allowed block sources.
var ValidSources = map[Source]bool{
	SourceTask:     true,
	SourceCalendar: true,
	SourceBusy:     true,
}

// ValidProviders are the allowed provider tags. The empty tag is allowed.
var ValidProviders = map[Provider]bool{
	"":               true,
	ProviderGoogle:   true,
	ProviderOutlook:  true,
	ProviderApple:    true,
	ProviderInternal: true,
}

// Timeblock is the canonical unit of time on the feed.
type Timeblock struct {
	ID       string    `json:"id"`
	Source   Source    `json:"source"`
	Provider Provider  `json:"provider,omitempty"`
	Title    string    `json:"title"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	IsAllDay bool      `json:"is_all_day"`
	ReadOnly bool      `json:"readonly"`
	LinkID   string    `json:"link_id,omitempty"`

	// TaskID ties a task-derived block to its task. It is not part of the
	// public feed shape.
	TaskID string `json:"-"`
}

// Interval returns the [Start, End) span of the block.
func (b Timeblock) Interval() Interval {
	return Interval{Start: b.Start, End: b.End}
}

// Duration returns End - Start.
func (b Timeblock) Duration() time.Duration {
	return b.End.Sub(b.Start)
}

// Fixed reports whether the scheduler must treat the block as immovable.
func (b Timeblock) Fixed() bool {
	return b.Source != SourceTask || b.ReadOnly
}
