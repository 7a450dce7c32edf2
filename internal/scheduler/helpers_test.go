package scheduler

import (
	"time"

	"github.com/rcliao/timeblock/internal/model"
)

// monday is 2025-03-03, a Monday.
var monday = time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return monday.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func span(a, b time.Time) model.Interval {
	return model.Interval{Start: a, End: b}
}

func ptr(t time.Time) *time.Time { return &t }

func newTask(id string, est time.Duration) model.Task {
	return model.Task{ID: id, Title: id, EstimatedDuration: model.Duration(est), Priority: model.PriorityNormal}
}

func dayHorizon() model.Interval {
	return span(monday, monday.Add(24*time.Hour))
}

func fixedBlock(id string, src model.Source, a, b time.Time) model.Timeblock {
	return model.Timeblock{ID: id, Source: src, Title: id, Start: a, End: b, ReadOnly: true}
}
