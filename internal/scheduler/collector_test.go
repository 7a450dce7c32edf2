package scheduler

import (
	"errors"
	"testing"
	"time"

	"github.com/rcliao/timeblock/internal/model"
)

func collect(t *testing.T, in CollectInput) *Constraints {
	t.Helper()
	if in.Horizon.Empty() {
		in.Horizon = dayHorizon()
	}
	if in.Policy.WorkHours == nil {
		in.Policy = model.DefaultPolicy()
	}
	if in.Now.IsZero() {
		in.Now = at(8, 0)
	}
	c, err := Collect(in)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	return c
}

func assertIntervals(t *testing.T, got []model.Interval, want ...model.Interval) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d intervals, got %d: %+v", len(want), len(got), got)
	}
	for i := range want {
		if !got[i].Start.Equal(want[i].Start) || !got[i].End.Equal(want[i].End) {
			t.Errorf("interval %d: expected [%v, %v), got [%v, %v)", i, want[i].Start, want[i].End, got[i].Start, got[i].End)
		}
	}
}

func TestCollectPartitionsBlocks(t *testing.T) {
	pinned := model.Timeblock{ID: "w/0", Source: model.SourceTask, Start: at(15, 0), End: at(15, 30), ReadOnly: true, TaskID: "w"}
	movable := model.Timeblock{ID: "w/1", Source: model.SourceTask, Start: at(16, 0), End: at(17, 0), TaskID: "w"}

	c := collect(t, CollectInput{
		Blocks: []model.Timeblock{
			fixedBlock("busy", model.SourceBusy, at(12, 0), at(13, 0)),
			movable,
			fixedBlock("meet", model.SourceCalendar, at(10, 0), at(11, 0)),
			pinned,
			fixedBlock("tomorrow", model.SourceCalendar, at(34, 0), at(35, 0)),
		},
		Tasks: []model.Task{newTask("w", 2*time.Hour)},
	})

	if len(c.Fixed) != 3 {
		t.Fatalf("expected 3 fixed blocks, got %d: %+v", len(c.Fixed), c.Fixed)
	}
	if c.Fixed[0].ID != "meet" || c.Fixed[1].ID != "busy" || c.Fixed[2].ID != "w/0" {
		t.Errorf("expected fixed blocks sorted by start, got %s, %s, %s", c.Fixed[0].ID, c.Fixed[1].ID, c.Fixed[2].ID)
	}
	if c.Superseded != 1 {
		t.Errorf("expected 1 superseded block, got %d", c.Superseded)
	}
	for _, id := range []string{"busy", "meet", "w/0", "tomorrow"} {
		if !c.TakenIDs[id] {
			t.Errorf("expected fixed id %q to be taken", id)
		}
	}
	if c.TakenIDs["w/1"] {
		t.Error("superseded session id should be free for reuse")
	}
	if len(c.Pending) != 1 || c.Pending[0].Estimate() != 90*time.Minute {
		t.Fatalf("expected pinned 30m to reduce estimate to 90m, got %+v", c.Pending)
	}

	assertIntervals(t, c.Free,
		span(at(9, 0), at(10, 0)),
		span(at(11, 0), at(12, 0)),
		span(at(13, 0), at(15, 0)),
		span(at(15, 30), at(17, 0)))
}

func TestCollectFullyPinnedTaskIsNotPending(t *testing.T) {
	c := collect(t, CollectInput{
		Blocks: []model.Timeblock{
			{ID: "x/0", Source: model.SourceTask, Start: at(9, 0), End: at(10, 0), ReadOnly: true, TaskID: "x"},
		},
		Tasks: []model.Task{newTask("x", time.Hour)},
	})
	if len(c.Pending) != 0 {
		t.Errorf("expected no pending tasks, got %+v", c.Pending)
	}
	if len(c.Excluded) != 0 {
		t.Errorf("expected no exclusions, got %+v", c.Excluded)
	}
}

func TestCollectExcludesOutOfHorizonAndInvalid(t *testing.T) {
	future := newTask("future", time.Hour)
	future.EarliestStart = ptr(at(24, 0))
	overdue := newTask("overdue", time.Hour)
	overdue.Deadline = ptr(at(-1, 0))
	broken := newTask("broken", 0)
	ok := newTask("ok", time.Hour)
	ok.Deadline = ptr(at(48, 0))

	c := collect(t, CollectInput{Tasks: []model.Task{future, overdue, broken, ok}})

	if len(c.Pending) != 1 || c.Pending[0].ID != "ok" {
		t.Fatalf("expected only ok pending, got %+v", c.Pending)
	}
	reasons := map[string]model.Reason{}
	for _, x := range c.Excluded {
		reasons[x.TaskID] = x.Reason
	}
	if reasons["future"] != model.ReasonOutOfHorizon || reasons["overdue"] != model.ReasonOutOfHorizon {
		t.Errorf("expected out_of_horizon for future and overdue, got %+v", reasons)
	}
	if reasons["broken"] != model.ReasonInvalid {
		t.Errorf("expected invalid for broken, got %+v", reasons)
	}
	if c.Excluded[0].TaskID != "broken" {
		t.Errorf("expected exclusions sorted by task id, got %+v", c.Excluded)
	}
}

func TestCollectDuplicateTaskIDs(t *testing.T) {
	c := collect(t, CollectInput{Tasks: []model.Task{newTask("d", time.Hour), newTask("d", 2*time.Hour)}})
	if len(c.Pending) != 1 || c.Pending[0].Estimate() != time.Hour {
		t.Fatalf("expected first task to win, got %+v", c.Pending)
	}
	if len(c.Excluded) != 1 || c.Excluded[0].Reason != model.ReasonInvalid {
		t.Errorf("expected duplicate to be invalid, got %+v", c.Excluded)
	}
}

func TestFreeCapacityBlackoutsAndNow(t *testing.T) {
	p := model.DefaultPolicy()
	p.Blackouts = []model.Interval{span(at(12, 0), at(13, 0))}

	free, err := FreeCapacity(p, dayHorizon(), at(8, 0), nil)
	if err != nil {
		t.Fatalf("free: %v", err)
	}
	assertIntervals(t, free, span(at(9, 0), at(12, 0)), span(at(13, 0), at(17, 0)))

	free, err = FreeCapacity(p, dayHorizon(), at(14, 30), nil)
	if err != nil {
		t.Fatalf("free: %v", err)
	}
	assertIntervals(t, free, span(at(14, 30), at(17, 0)))

	free, err = FreeCapacity(p, dayHorizon(), at(18, 0), nil)
	if err != nil {
		t.Fatalf("free: %v", err)
	}
	if len(free) != 0 {
		t.Errorf("expected no free time after work hours, got %+v", free)
	}
}

func TestFreeCapacitySkipsWeekend(t *testing.T) {
	saturday := monday.AddDate(0, 0, 5)
	free, err := FreeCapacity(model.DefaultPolicy(), span(saturday, saturday.AddDate(0, 0, 2)), time.Time{}, nil)
	if err != nil {
		t.Fatalf("free: %v", err)
	}
	if len(free) != 0 {
		t.Errorf("expected no weekend capacity, got %+v", free)
	}
}

func TestFreeCapacityMultipleWindowsPerDay(t *testing.T) {
	p := model.DefaultPolicy()
	p.WorkHours[time.Monday] = []model.WorkWindow{{Start: 8 * 60, End: 12 * 60}, {Start: 13 * 60, End: 18 * 60}}

	free, err := FreeCapacity(p, dayHorizon(), time.Time{}, nil)
	if err != nil {
		t.Fatalf("free: %v", err)
	}
	assertIntervals(t, free, span(at(8, 0), at(12, 0)), span(at(13, 0), at(18, 0)))
}

func TestFreeCapacityUsesPolicyTimezone(t *testing.T) {
	if _, err := time.LoadLocation("America/New_York"); err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	p := model.DefaultPolicy()
	p.Timezone = "America/New_York"

	free, err := FreeCapacity(p, dayHorizon(), time.Time{}, nil)
	if err != nil {
		t.Fatalf("free: %v", err)
	}
	// 09:00-17:00 EST on Monday is 14:00-22:00 UTC.
	assertIntervals(t, free, span(at(14, 0), at(22, 0)))
}

func TestCollectRejectsBadInput(t *testing.T) {
	_, err := Collect(CollectInput{Horizon: span(at(10, 0), at(9, 0)), Policy: model.DefaultPolicy()})
	if !errors.Is(err, model.ErrValidation) {
		t.Errorf("expected validation error for empty horizon, got %v", err)
	}

	p := model.DefaultPolicy()
	p.Timezone = "Mars/Olympus_Mons"
	_, err = Collect(CollectInput{Horizon: dayHorizon(), Policy: p})
	if !errors.Is(err, model.ErrValidation) {
		t.Errorf("expected validation error for bad timezone, got %v", err)
	}
}
