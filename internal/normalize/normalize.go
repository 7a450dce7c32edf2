package normalize

import (
	"fmt"
	"strings"
	"time"

	"github.com/rcliao/timeblock/internal/model"
)

const dateLayout = "2006-01-02"

// Normalizer turns raw records into Timeblocks. All-day records are
// expanded to local midnight boundaries in the user's timezone.
type Normalizer struct {
	loc *time.Location
}

// New returns a Normalizer for the given location (UTC when nil).
func New(loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.UTC
	}
	return &Normalizer{loc: loc}
}

// ForPolicy returns a Normalizer for the policy's timezone.
func ForPolicy(p model.Policy) (*Normalizer, error) {
	loc, err := p.Location()
	if err != nil {
		return nil, err
	}
	return New(loc), nil
}

// Normalize converts one record. It is a pure transform.
func (n *Normalizer) Normalize(rec Record) (model.Timeblock, error) {
	switch r := rec.(type) {
	case TaskRecord:
		if r.TaskID == "" {
			return model.Timeblock{}, &model.ValidationError{Record: r.ID, Field: "task_id", Msg: "is required"}
		}
		b, err := n.block(r.ID, model.SourceTask, "", r.Title, r.Start, r.End, false)
		if err != nil {
			return model.Timeblock{}, err
		}
		b.ReadOnly = r.Pinned
		b.LinkID = r.LinkID
		b.TaskID = r.TaskID
		return b, nil
	case CalendarRecord:
		b, err := n.block(r.ID, model.SourceCalendar, r.Provider, r.Title, r.Start, r.End, r.AllDay)
		if err != nil {
			return model.Timeblock{}, err
		}
		b.ReadOnly = true
		b.LinkID = r.LinkID
		return b, nil
	case BusyRecord:
		title := r.Title
		if title == "" {
			title = "Busy"
		}
		b, err := n.block(r.ID, model.SourceBusy, r.Provider, title, r.Start, r.End, r.AllDay)
		if err != nil {
			return model.Timeblock{}, err
		}
		b.ReadOnly = true
		return b, nil
	case nil:
		return model.Timeblock{}, &model.ValidationError{Msg: "nil record"}
	default:
		return model.Timeblock{}, &model.ValidationError{Record: rec.RecordID(), Field: "source",
			Msg: fmt.Sprintf("unsupported record type %T", rec)}
	}
}

// RecordError ties a normalization failure to the offending record.
type RecordError struct {
	Index int
	ID    string
	Err   error
}

func (e RecordError) Error() string {
	return fmt.Sprintf("record %d (%s): %v", e.Index, e.ID, e.Err)
}

func (e RecordError) Unwrap() error { return e.Err }

// NormalizeAll converts every record, skipping the ones that fail. Valid
// blocks keep input order.
func (n *Normalizer) NormalizeAll(recs []Record) ([]model.Timeblock, []RecordError) {
	blocks := make([]model.Timeblock, 0, len(recs))
	var errs []RecordError
	for i, rec := range recs {
		b, err := n.Normalize(rec)
		if err != nil {
			id := ""
			if rec != nil {
				id = rec.RecordID()
			}
			errs = append(errs, RecordError{Index: i, ID: id, Err: err})
			continue
		}
		blocks = append(blocks, b)
	}
	return blocks, errs
}

func (n *Normalizer) block(id string, src model.Source, provider model.Provider, title, start, end string, allDay bool) (model.Timeblock, error) {
	if strings.TrimSpace(id) == "" {
		return model.Timeblock{}, &model.ValidationError{Field: "id", Msg: "is required"}
	}
	if !model.ValidProviders[provider] {
		return model.Timeblock{}, &model.ValidationError{Record: id, Field: "provider", Msg: fmt.Sprintf("unknown provider %q", provider)}
	}

	var (
		s, e time.Time
		err  error
	)
	if allDay {
		s, e, err = n.allDaySpan(id, start, end)
	} else {
		s, err = parseInstant(id, "start", start)
		if err == nil {
			e, err = parseInstant(id, "end", end)
		}
	}
	if err != nil {
		return model.Timeblock{}, err
	}
	if e.Before(s) {
		return model.Timeblock{}, &model.ValidationError{Record: id, Field: "end", Msg: "is before start"}
	}

	return model.Timeblock{
		ID:       id,
		Source:   src,
		Provider: provider,
		Title:    title,
		Start:    s,
		End:      e,
		IsAllDay: allDay,
	}, nil
}

func parseInstant(id, field, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, &model.ValidationError{Record: id, Field: field, Msg: "is missing"}
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, &model.ValidationError{Record: id, Field: field, Msg: fmt.Sprintf("unparsable instant %q", raw)}
	}
	return t.UTC(), nil
}

// allDaySpan maps a date (or date range, end exclusive) to local midnights.
// A full timestamp is accepted and truncated to its local date.
func (n *Normalizer) allDaySpan(id, start, end string) (time.Time, time.Time, error) {
	s, err := n.parseDate(id, "start", start)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	e := s.AddDate(0, 0, 1)
	if strings.TrimSpace(end) != "" {
		e, err = n.parseDate(id, "end", end)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		if e.Equal(s) {
			e = s.AddDate(0, 0, 1)
		}
	}
	return s.UTC(), e.UTC(), nil
}

func (n *Normalizer) parseDate(id, field, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, &model.ValidationError{Record: id, Field: field, Msg: "is missing"}
	}
	if d, err := time.ParseInLocation(dateLayout, raw, n.loc); err == nil {
		return d, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, &model.ValidationError{Record: id, Field: field, Msg: fmt.Sprintf("unparsable date %q", raw)}
	}
	t = t.In(n.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, n.loc), nil
}
