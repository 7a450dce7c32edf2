// Package normalize converts task, calendar and busy records into canonical
// Timeblocks.
package normalize

import (
	"fmt"

	"github.com/rcliao/timeblock/internal/model"
)

// Record is a raw input of one of the three source kinds. The set of
// implementations is closed: TaskRecord, CalendarRecord and BusyRecord.
type Record interface {
	Source() model.Source
	RecordID() string
	sealed()
}

// TaskRecord is an existing session of a task on the timeline. Pinned
// sessions were fixed by the user and are not moved by the scheduler.
type TaskRecord struct {
	ID     string
	TaskID string
	Title  string
	Start  string
	End    string
	Pinned bool
	LinkID string
}

// CalendarRecord is an event from an external (or internal) calendar.
// Start and End are RFC3339 instants, or YYYY-MM-DD dates when AllDay.
type CalendarRecord struct {
	ID       string
	Provider model.Provider
	Title    string
	Start    string
	End      string
	AllDay   bool
	LinkID   string
}

// BusyRecord is an opaque busy interval, e.g. from a free/busy query.
type BusyRecord struct {
	ID       string
	Provider model.Provider
	Title    string
	Start    string
	End      string
	AllDay   bool
}

func (TaskRecord) Source() model.Source     { return model.SourceTask }
func (CalendarRecord) Source() model.Source { return model.SourceCalendar }
func (BusyRecord) Source() model.Source     { return model.SourceBusy }

func (r TaskRecord) RecordID() string     { return r.ID }
func (r CalendarRecord) RecordID() string { return r.ID }
func (r BusyRecord) RecordID() string     { return r.ID }

func (TaskRecord) sealed()     {}
func (CalendarRecord) sealed() {}
func (BusyRecord) sealed()     {}

// RawRecord is the JSON wire form of a Record, discriminated by Source.
type RawRecord struct {
	Source   model.Source   `json:"source"`
	ID       string         `json:"id"`
	TaskID   string         `json:"task_id,omitempty"`
	Provider model.Provider `json:"provider,omitempty"`
	Title    string         `json:"title"`
	Start    string         `json:"start"`
	End      string         `json:"end"`
	AllDay   bool           `json:"all_day,omitempty"`
	Pinned   bool           `json:"pinned,omitempty"`
	LinkID   string         `json:"link_id,omitempty"`
}

// Record converts the wire form into its typed variant.
func (r RawRecord) Record() (Record, error) {
	switch r.Source {
	case model.SourceTask:
		return TaskRecord{ID: r.ID, TaskID: r.TaskID, Title: r.Title, Start: r.Start, End: r.End,
			Pinned: r.Pinned, LinkID: r.LinkID}, nil
	case model.SourceCalendar:
		return CalendarRecord{ID: r.ID, Provider: r.Provider, Title: r.Title, Start: r.Start, End: r.End,
			AllDay: r.AllDay, LinkID: r.LinkID}, nil
	case model.SourceBusy:
		return BusyRecord{ID: r.ID, Provider: r.Provider, Title: r.Title, Start: r.Start, End: r.End,
			AllDay: r.AllDay}, nil
	default:
		return nil, &model.ValidationError{Record: r.ID, Field: "source", Msg: fmt.Sprintf("unknown source %q", r.Source)}
	}
}

// Raw converts a typed record back into its wire form.
func Raw(rec Record) RawRecord {
	switch r := rec.(type) {
	case TaskRecord:
		return RawRecord{Source: model.SourceTask, ID: r.ID, TaskID: r.TaskID, Title: r.Title,
			Start: r.Start, End: r.End, Pinned: r.Pinned, LinkID: r.LinkID}
	case CalendarRecord:
		return RawRecord{Source: model.SourceCalendar, ID: r.ID, Provider: r.Provider, Title: r.Title,
			Start: r.Start, End: r.End, AllDay: r.AllDay, LinkID: r.LinkID}
	case BusyRecord:
		return RawRecord{Source: model.SourceBusy, ID: r.ID, Provider: r.Provider, Title: r.Title,
			Start: r.Start, End: r.End, AllDay: r.AllDay}
	}
	return RawRecord{}
}
