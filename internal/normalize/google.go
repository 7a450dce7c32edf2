package normalize

import (
	"encoding/json"
	"fmt"
	"io"

	"google.golang.org/api/calendar/v3"

	"github.com/rcliao/timeblock/internal/model"
)

// FromGoogleEvent maps a Google Calendar event to a CalendarRecord. The
// second result is false for events that do not occupy time: cancelled
// events and events marked transparent ("show as available").
func FromGoogleEvent(ev *calendar.Event) (CalendarRecord, bool) {
	if ev == nil || ev.Status == "cancelled" || ev.Transparency == "transparent" {
		return CalendarRecord{}, false
	}
	rec := CalendarRecord{
		ID:       ev.Id,
		Provider: model.ProviderGoogle,
		Title:    ev.Summary,
	}
	if ev.Start != nil {
		if ev.Start.Date != "" {
			rec.AllDay = true
			rec.Start = ev.Start.Date
		} else {
			rec.Start = ev.Start.DateTime
		}
	}
	if ev.End != nil {
		if rec.AllDay {
			rec.End = ev.End.Date
		} else {
			rec.End = ev.End.DateTime
		}
	}
	return rec, true
}

// DecodeGoogleEvents reads an Events list payload, as returned by the
// Calendar API events.list endpoint, and maps its items to records.
func DecodeGoogleEvents(r io.Reader) ([]Record, error) {
	var events calendar.Events
	if err := json.NewDecoder(r).Decode(&events); err != nil {
		return nil, fmt.Errorf("decode google events: %w", err)
	}
	recs := make([]Record, 0, len(events.Items))
	for _, ev := range events.Items {
		if rec, ok := FromGoogleEvent(ev); ok {
			recs = append(recs, rec)
		}
	}
	return recs, nil
}
