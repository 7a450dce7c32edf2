package scheduler

import (
	"errors"
	"testing"

	"github.com/rcliao/timeblock/internal/model"
)

func TestResolveFixedSameSourceOverlap(t *testing.T) {
	_, err := ResolveFixed([]model.Timeblock{
		fixedBlock("b1", model.SourceBusy, at(9, 0), at(11, 0)),
		fixedBlock("b2", model.SourceBusy, at(10, 0), at(12, 0)),
	})
	if !errors.Is(err, model.ErrOverlap) {
		t.Fatalf("expected overlap error, got %v", err)
	}
	var oe *model.OverlapError
	if !errors.As(err, &oe) || oe.A.ID != "b1" || oe.B.ID != "b2" {
		t.Errorf("expected b1/b2 in error, got %v", err)
	}
}

func TestResolveFixedChecksPerSource(t *testing.T) {
	// The busy block sorted between them does not hide the calendar overlap.
	_, err := ResolveFixed([]model.Timeblock{
		fixedBlock("b1", model.SourceCalendar, at(9, 0), at(17, 0)),
		fixedBlock("b2", model.SourceBusy, at(9, 30), at(10, 0)),
		fixedBlock("b3", model.SourceCalendar, at(12, 0), at(13, 0)),
	})
	var oe *model.OverlapError
	if !errors.As(err, &oe) || oe.A.ID != "b1" || oe.B.ID != "b3" {
		t.Fatalf("expected b1/b3 overlap, got %v", err)
	}
}

func TestResolveFixedAllowsCrossSourceAndTouching(t *testing.T) {
	out, err := ResolveFixed([]model.Timeblock{
		fixedBlock("meet", model.SourceCalendar, at(10, 0), at(11, 0)),
		fixedBlock("busy", model.SourceBusy, at(10, 30), at(11, 30)),
		fixedBlock("early", model.SourceCalendar, at(9, 0), at(10, 0)),
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if out[0].ID != "early" || out[1].ID != "meet" || out[2].ID != "busy" {
		t.Errorf("expected sorted output, got %s, %s, %s", out[0].ID, out[1].ID, out[2].ID)
	}
}

func TestResolveFixedIgnoresAllDay(t *testing.T) {
	holiday := fixedBlock("holiday", model.SourceCalendar, monday, monday.AddDate(0, 0, 1))
	holiday.IsAllDay = true
	_, err := ResolveFixed([]model.Timeblock{
		holiday,
		fixedBlock("meet", model.SourceCalendar, at(10, 0), at(11, 0)),
	})
	if err != nil {
		t.Errorf("expected all-day block to be exempt, got %v", err)
	}
}

func scheduleOf(blocks ...model.Timeblock) *model.Schedule {
	s := &model.Schedule{}
	for _, b := range blocks {
		s.Placements = append(s.Placements, model.Placement{TaskID: b.TaskID, Block: b})
	}
	return s
}

func taskBlock(id string, a, b int) model.Timeblock {
	return model.Timeblock{ID: id, Source: model.SourceTask, Start: at(a, 0), End: at(b, 0), TaskID: id}
}

func TestResolveFinal(t *testing.T) {
	fixed := []model.Timeblock{
		fixedBlock("long", model.SourceCalendar, at(8, 0), at(9, 0)),
		fixedBlock("meet", model.SourceCalendar, at(12, 0), at(13, 0)),
	}

	tests := []struct {
		name    string
		s       *model.Schedule
		wantErr bool
	}{
		{"clean", scheduleOf(taskBlock("a", 9, 10), taskBlock("b", 10, 12), taskBlock("c", 13, 14)), false},
		{"placements overlap", scheduleOf(taskBlock("a", 9, 11), taskBlock("b", 10, 12)), true},
		{"placement overlaps fixed", scheduleOf(taskBlock("a", 11, 13)), true},
		{"placement inside fixed", scheduleOf(taskBlock("a", 8, 9), taskBlock("b", 12, 13)), true},
		{"empty placement", scheduleOf(taskBlock("a", 10, 10)), true},
		{"nil schedule", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ResolveFinal(fixed, tt.s)
			if tt.wantErr && !errors.Is(err, model.ErrInvariant) {
				t.Fatalf("expected invariant violation, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
		})
	}
}
