package gate

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/rcliao/timeblock/internal/model"
	"github.com/rcliao/timeblock/internal/normalize"
	"github.com/rcliao/timeblock/internal/scheduler"
)

// Scenario is one named case in the catalogue: synthetic input, the clock
// the engine sees, and what must hold for the output.
type Scenario struct {
	Name        string
	Description string
	Now         time.Time
	Input       scheduler.Input

	// WantErr, when set, is the sentinel the run must fail with. Such
	// scenarios skip the schedule assertions.
	WantErr error

	Assertions []Assertion
}

// Assertion is a single named check against a scenario's outcome. Check
// returns nil when the assertion holds and an error describing the
// offending output otherwise.
type Assertion struct {
	Name  string
	Check func(sc *Scenario, o *Outcome) error
}

// Outcome is what one scenario produced. The pipeline is run twice so the
// determinism check can compare the runs.
type Outcome struct {
	Schedule *model.Schedule
	Err      error
	Log      string

	Rerun    *model.Schedule
	RerunErr error
}

// Scenarios returns the fixed catalogue. Each call builds fresh values.
func Scenarios() []Scenario {
	return []Scenario{
		singleSession(),
		splitSessions(),
		meetingFillsWindow(),
		priorityTie(),
		deadlineMissed(),
		outOfHorizon(),
		overcommit(),
		sameSourceOverlap(),
		crossSourceOverlap(),
		workHoursAndBlackout(),
		malformedRecordSkipped(),
		allDayInTimezone(),
		pinnedTaskBlock(),
		inputOrderIndependent(),
	}
}

// base is Monday 2025-03-03 00:00 UTC.
var base = time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)

// at returns base + d days + h:m.
func at(d, h, m int) time.Time {
	return base.AddDate(0, 0, d).Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func rfc(t time.Time) string { return t.Format(time.RFC3339) }

func ptr(t time.Time) *time.Time { return &t }

func days(n int) model.Interval {
	return model.Interval{Start: base, End: base.AddDate(0, 0, n)}
}

func task(id string, est time.Duration, prio model.Priority) model.Task {
	return model.Task{ID: id, Title: id, EstimatedDuration: model.Duration(est), Priority: prio}
}

// mondayOnly returns the default policy with Monday reduced to the given
// windows and every other day off.
func mondayOnly(windows ...model.WorkWindow) model.Policy {
	p := model.DefaultPolicy()
	p.WorkHours = model.WeekHours{time.Monday: windows}
	return p
}

func window(h1, m1, h2, m2 int) model.WorkWindow {
	return model.WorkWindow{Start: model.ClockTime(h1*60 + m1), End: model.ClockTime(h2*60 + m2)}
}

func singleSession() Scenario {
	t := task("write", 2*time.Hour, model.PriorityHigh)
	t.Deadline = ptr(at(0, 12, 0))
	return Scenario{
		Name:        "single-session",
		Description: "2h task due in 3h over one 4h window is placed as one session at the earliest time",
		Now:         at(0, 9, 0),
		Input: scheduler.Input{
			UserID:  "gate",
			Horizon: days(1),
			Policy:  mondayOnly(window(9, 0, 13, 0)),
			Tasks:   []model.Task{t},
		},
		Assertions: []Assertion{
			placedAs("write", span(at(0, 9, 0), at(0, 11, 0))),
			placedOnTime("write"),
		},
	}
}

func splitSessions() Scenario {
	t := task("study", 3*time.Hour, model.PriorityNormal)
	t.MaxSessionMinutes = 90
	return Scenario{
		Name:        "split-sessions",
		Description: "3h task with 90m max over two 90m windows is split into two sessions, one per window",
		Now:         at(0, 8, 0),
		Input: scheduler.Input{
			UserID:  "gate",
			Horizon: days(1),
			Policy:  mondayOnly(window(9, 0, 10, 30), window(13, 0, 14, 30)),
			Tasks:   []model.Task{t},
		},
		Assertions: []Assertion{
			placedAs("study",
				span(at(0, 9, 0), at(0, 10, 30)),
				span(at(0, 13, 0), at(0, 14, 30))),
			placedOnTime("study"),
		},
	}
}

func meetingFillsWindow() Scenario {
	meeting := model.Timeblock{
		ID: "planning", Source: model.SourceCalendar, Provider: model.ProviderGoogle,
		Title: "Planning", Start: at(0, 9, 0), End: at(0, 11, 0), ReadOnly: true,
	}
	return Scenario{
		Name:        "meeting-fills-window",
		Description: "a meeting covering the only free window leaves the task unplaced and is itself unchanged",
		Now:         at(0, 8, 0),
		Input: scheduler.Input{
			UserID:  "gate",
			Horizon: days(1),
			Policy:  mondayOnly(window(9, 0, 11, 0)),
			Tasks:   []model.Task{task("review", time.Hour, model.PriorityNormal)},
			Records: []normalize.Record{
				normalize.CalendarRecord{ID: "planning", Provider: model.ProviderGoogle, Title: "Planning",
					Start: rfc(meeting.Start), End: rfc(meeting.End)},
			},
		},
		Assertions: []Assertion{
			reasonIs("review", model.ReasonInsufficientCapacity),
			placedAs("review"),
			inFeed(meeting),
		},
	}
}

func priorityTie() Scenario {
	hi := task("urgent", 2*time.Hour, model.PriorityHigh)
	hi.Deadline = ptr(at(0, 12, 0))
	lo := task("someday", 2*time.Hour, model.PriorityLow)
	lo.Deadline = ptr(at(0, 12, 0))
	return Scenario{
		Name:        "priority-tie",
		Description: "same deadline, one window that fits one task: the higher priority wins",
		Now:         at(0, 8, 0),
		Input: scheduler.Input{
			UserID:  "gate",
			Horizon: days(1),
			Policy:  mondayOnly(window(9, 0, 11, 0)),
			Tasks:   []model.Task{lo, hi},
		},
		Assertions: []Assertion{
			placedOnTime("urgent"),
			reasonIs("someday", model.ReasonDeadlineMissed, model.ReasonInsufficientCapacity),
		},
	}
}

func deadlineMissed() Scenario {
	t := task("slides", 2*time.Hour, model.PriorityNormal)
	t.Deadline = ptr(at(0, 10, 0))
	return Scenario{
		Name:        "deadline-missed",
		Description: "a task that cannot finish by its deadline is still placed, late, and flagged",
		Now:         at(0, 8, 0),
		Input: scheduler.Input{
			UserID:  "gate",
			Horizon: days(1),
			Policy:  model.DefaultPolicy(),
			Tasks:   []model.Task{t},
		},
		Assertions: []Assertion{
			reasonIs("slides", model.ReasonDeadlineMissed),
			placedAs("slides", span(at(0, 9, 0), at(0, 11, 0))),
		},
	}
}

func outOfHorizon() Scenario {
	later := task("later", time.Hour, model.PriorityNormal)
	later.EarliestStart = ptr(at(1, 9, 0))
	stale := task("stale", time.Hour, model.PriorityNormal)
	stale.Deadline = ptr(at(-3, 17, 0))
	return Scenario{
		Name:        "out-of-horizon",
		Description: "tasks that cannot start, or were due, outside the horizon are excluded with a reason",
		Now:         at(0, 8, 0),
		Input: scheduler.Input{
			UserID:  "gate",
			Horizon: days(1),
			Policy:  model.DefaultPolicy(),
			Tasks:   []model.Task{later, stale, task("today", time.Hour, model.PriorityNormal)},
		},
		Assertions: []Assertion{
			reasonIs("later", model.ReasonOutOfHorizon),
			reasonIs("stale", model.ReasonOutOfHorizon),
			placedAs("later"),
			placedAs("stale"),
			placedOnTime("today"),
		},
	}
}

func overcommit() Scenario {
	return Scenario{
		Name:        "overcommit",
		Description: "6h of work against 3h of capacity marks the overflow instead of overbooking",
		Now:         at(0, 8, 0),
		Input: scheduler.Input{
			UserID:  "gate",
			Horizon: days(1),
			Policy:  mondayOnly(window(9, 0, 12, 0)),
			Tasks: []model.Task{
				task("a", 2*time.Hour, model.PriorityNormal),
				task("b", 2*time.Hour, model.PriorityNormal),
				task("c", 2*time.Hour, model.PriorityNormal),
			},
		},
		Assertions: []Assertion{
			placedOnTime("a"),
			reasonIs("b", model.ReasonInsufficientCapacity),
			reasonIs("c", model.ReasonInsufficientCapacity),
			totalPlaced(3 * time.Hour),
		},
	}
}

func sameSourceOverlap() Scenario {
	return Scenario{
		Name:        "same-source-overlap",
		Description: "two busy blocks that overlap abort the run with no schedule",
		Now:         at(0, 8, 0),
		Input: scheduler.Input{
			UserID:  "gate",
			Horizon: days(1),
			Policy:  model.DefaultPolicy(),
			Tasks:   []model.Task{task("any", time.Hour, model.PriorityNormal)},
			Records: []normalize.Record{
				normalize.BusyRecord{ID: "gym", Start: rfc(at(0, 9, 0)), End: rfc(at(0, 11, 0))},
				normalize.BusyRecord{ID: "dentist", Start: rfc(at(0, 10, 0)), End: rfc(at(0, 12, 0))},
			},
		},
		WantErr: model.ErrOverlap,
	}
}

func crossSourceOverlap() Scenario {
	return Scenario{
		Name:        "cross-source-overlap",
		Description: "a calendar event and a busy block may overlap; both are kept and avoided",
		Now:         at(0, 8, 0),
		Input: scheduler.Input{
			UserID:  "gate",
			Horizon: days(1),
			Policy:  mondayOnly(window(9, 0, 12, 0)),
			Tasks:   []model.Task{task("focus", 90*time.Minute, model.PriorityNormal)},
			Records: []normalize.Record{
				normalize.CalendarRecord{ID: "sync", Provider: model.ProviderOutlook, Start: rfc(at(0, 10, 0)), End: rfc(at(0, 11, 0))},
				normalize.BusyRecord{ID: "hold", Provider: model.ProviderApple, Start: rfc(at(0, 10, 30)), End: rfc(at(0, 11, 30))},
			},
		},
		Assertions: []Assertion{
			fixedCount(2),
			placedAs("focus", span(at(0, 9, 0), at(0, 10, 0)), span(at(0, 11, 30), at(0, 12, 0))),
		},
	}
}

func workHoursAndBlackout() Scenario {
	p := mondayOnly(window(9, 0, 12, 0), window(13, 0, 17, 0))
	p.Blackouts = []model.Interval{span(at(0, 9, 0), at(0, 10, 30))}
	return Scenario{
		Name:        "work-hours-blackout",
		Description: "placements stay inside work windows and out of blackouts",
		Now:         at(0, 8, 0),
		Input: scheduler.Input{
			UserID:  "gate",
			Horizon: days(1),
			Policy:  p,
			Tasks:   []model.Task{task("draft", 2*time.Hour, model.PriorityNormal)},
		},
		Assertions: []Assertion{
			placedAs("draft", span(at(0, 13, 0), at(0, 15, 0))),
		},
	}
}

func malformedRecordSkipped() Scenario {
	return Scenario{
		Name:        "malformed-record-skipped",
		Description: "a malformed record is skipped with a diagnostic and the run continues",
		Now:         at(0, 8, 0),
		Input: scheduler.Input{
			UserID:  "gate",
			Horizon: days(1),
			Policy:  model.DefaultPolicy(),
			Tasks:   []model.Task{task("email", time.Hour, model.PriorityNormal)},
			Records: []normalize.Record{
				normalize.BusyRecord{ID: "garbled", Start: "monday-ish", End: rfc(at(0, 10, 0))},
				normalize.BusyRecord{ID: "standup", Start: rfc(at(0, 9, 0)), End: rfc(at(0, 10, 0))},
			},
		},
		Assertions: []Assertion{
			fixedCount(1),
			placedAs("email", span(at(0, 10, 0), at(0, 11, 0))),
			logContains("skipping malformed record"),
			logContains("garbled"),
		},
	}
}

func allDayInTimezone() Scenario {
	p := model.DefaultPolicy()
	p.Timezone = "America/New_York"
	// 2025-03-03 is EST (UTC-5): local midnight is 05:00Z and 09:00 local is 14:00Z.
	holiday := model.Timeblock{
		ID: "offsite", Source: model.SourceCalendar, Provider: model.ProviderGoogle, Title: "Offsite",
		Start: at(0, 5, 0), End: at(1, 5, 0), IsAllDay: true, ReadOnly: true,
	}
	return Scenario{
		Name:        "all-day-timezone",
		Description: "an all-day event spans local midnight to midnight and blocks that local day",
		Now:         at(0, 8, 0),
		Input: scheduler.Input{
			UserID:  "gate",
			Horizon: days(2),
			Policy:  p,
			Tasks:   []model.Task{task("plan", 2*time.Hour, model.PriorityNormal)},
			Records: []normalize.Record{
				normalize.CalendarRecord{ID: "offsite", Provider: model.ProviderGoogle, Title: "Offsite",
					Start: "2025-03-03", AllDay: true},
			},
		},
		Assertions: []Assertion{
			inFeed(holiday),
			placedAs("plan", span(at(1, 14, 0), at(1, 16, 0))),
		},
	}
}

func pinnedTaskBlock() Scenario {
	pinned := model.Timeblock{
		ID: "report/pinned", Source: model.SourceTask, Title: "Report",
		Start: at(0, 9, 0), End: at(0, 10, 0), ReadOnly: true, TaskID: "report",
	}
	return Scenario{
		Name:        "pinned-task-block",
		Description: "a pinned session stays put and counts toward its task; unpinned leftovers are replaced",
		Now:         at(0, 8, 0),
		Input: scheduler.Input{
			UserID:  "gate",
			Horizon: days(1),
			Policy:  model.DefaultPolicy(),
			Tasks:   []model.Task{task("report", 3*time.Hour, model.PriorityNormal)},
			Records: []normalize.Record{
				normalize.TaskRecord{ID: "report/pinned", TaskID: "report", Title: "Report",
					Start: rfc(pinned.Start), End: rfc(pinned.End), Pinned: true},
				normalize.TaskRecord{ID: "report/0", TaskID: "report", Title: "Report",
					Start: rfc(at(0, 15, 0)), End: rfc(at(0, 16, 0))},
			},
		},
		Assertions: []Assertion{
			inFeed(pinned),
			fixedCount(1),
			placedAs("report", span(at(0, 10, 0), at(0, 12, 0))),
		},
	}
}

func inputOrderIndependent() Scenario {
	due := task("launch", 3*time.Hour, model.PriorityCritical)
	due.Deadline = ptr(at(1, 12, 0))
	late := task("retro", time.Hour, model.PriorityLow)
	late.EarliestStart = ptr(at(2, 13, 0))
	big := task("migration", 6*time.Hour, model.PriorityHigh)
	big.MinSessionMinutes = 60
	big.MaxSessionMinutes = 120
	return Scenario{
		Name:        "input-order-independent",
		Description: "a busy week reschedules identically when tasks and records arrive in another order",
		Now:         at(0, 8, 0),
		Input: scheduler.Input{
			UserID:  "gate",
			Horizon: days(5),
			Policy:  model.DefaultPolicy(),
			Tasks: []model.Task{
				due, late, big,
				task("notes", 45*time.Minute, model.PriorityNormal),
				task("inbox", 30*time.Minute, model.PriorityNormal),
			},
			Records: []normalize.Record{
				normalize.CalendarRecord{ID: "1on1", Provider: model.ProviderGoogle, Start: rfc(at(0, 10, 0)), End: rfc(at(0, 10, 30))},
				normalize.CalendarRecord{ID: "allhands", Provider: model.ProviderGoogle, Start: rfc(at(1, 13, 0)), End: rfc(at(1, 14, 0))},
				normalize.BusyRecord{ID: "lunch-mon", Start: rfc(at(0, 12, 0)), End: rfc(at(0, 13, 0))},
				normalize.BusyRecord{ID: "lunch-tue", Start: rfc(at(1, 12, 0)), End: rfc(at(1, 13, 0))},
			},
		},
		Assertions: []Assertion{
			placedOnTime("launch"),
			{Name: "reordered input yields same schedule", Check: checkReordered},
		},
	}
}

func span(a, b time.Time) model.Interval { return model.Interval{Start: a, End: b} }

func placedAs(taskID string, want ...model.Interval) Assertion {
	return Assertion{
		Name: fmt.Sprintf("%s placed as %d session(s)", taskID, len(want)),
		Check: func(_ *Scenario, o *Outcome) error {
			got := o.Schedule.PlacedFor(taskID)
			if len(got) != len(want) {
				return fmt.Errorf("got %d sessions: %s", len(got), describeBlocks(got))
			}
			for i, b := range got {
				if !b.Start.Equal(want[i].Start) || !b.End.Equal(want[i].End) {
					return fmt.Errorf("session %d: want %s, got %s", i, describe(want[i]), describeBlocks(got))
				}
			}
			return nil
		},
	}
}

func placedOnTime(taskID string) Assertion {
	return Assertion{
		Name: taskID + " placed on time",
		Check: func(sc *Scenario, o *Outcome) error {
			if u, ok := o.Schedule.Outcome(taskID); ok {
				return fmt.Errorf("marked %s: %s", u.Reason, u.Detail)
			}
			var t *model.Task
			for i := range sc.Input.Tasks {
				if sc.Input.Tasks[i].ID == taskID {
					t = &sc.Input.Tasks[i]
				}
			}
			if t == nil {
				return fmt.Errorf("task not in scenario")
			}
			if got := o.Schedule.PlacedDuration(taskID); got != t.Estimate() {
				return fmt.Errorf("placed %s of %s", got, t.Estimate())
			}
			if t.Deadline != nil {
				for _, b := range o.Schedule.PlacedFor(taskID) {
					if b.End.After(*t.Deadline) {
						return fmt.Errorf("session %s ends after deadline %s", b.ID, t.Deadline.UTC().Format(time.RFC3339))
					}
				}
			}
			return nil
		},
	}
}

func reasonIs(taskID string, reasons ...model.Reason) Assertion {
	names := make([]string, len(reasons))
	for i, r := range reasons {
		names[i] = string(r)
	}
	return Assertion{
		Name: fmt.Sprintf("%s marked %s", taskID, strings.Join(names, " or ")),
		Check: func(_ *Scenario, o *Outcome) error {
			u, ok := o.Schedule.Outcome(taskID)
			if !ok {
				return fmt.Errorf("no unplaced entry; placed %s", describeBlocks(o.Schedule.PlacedFor(taskID)))
			}
			for _, r := range reasons {
				if u.Reason == r {
					return nil
				}
			}
			return fmt.Errorf("marked %s", u.Reason)
		},
	}
}

func inFeed(want model.Timeblock) Assertion {
	return Assertion{
		Name: want.ID + " unchanged in feed",
		Check: func(_ *Scenario, o *Outcome) error {
			for _, b := range o.Schedule.Feed() {
				if b.ID != want.ID {
					continue
				}
				if !reflect.DeepEqual(b, want) {
					return fmt.Errorf("want %+v, got %+v", want, b)
				}
				return nil
			}
			return fmt.Errorf("not in feed")
		},
	}
}

func fixedCount(n int) Assertion {
	return Assertion{
		Name: fmt.Sprintf("%d fixed block(s)", n),
		Check: func(_ *Scenario, o *Outcome) error {
			if len(o.Schedule.Fixed) != n {
				return fmt.Errorf("got %d: %s", len(o.Schedule.Fixed), describeBlocks(o.Schedule.Fixed))
			}
			return nil
		},
	}
}

func totalPlaced(want time.Duration) Assertion {
	return Assertion{
		Name: "total placed " + want.String(),
		Check: func(_ *Scenario, o *Outcome) error {
			got := model.TotalDuration(intervals(o.Schedule.Blocks()))
			if got != want {
				return fmt.Errorf("placed %s", got)
			}
			return nil
		},
	}
}

func logContains(s string) Assertion {
	return Assertion{
		Name: fmt.Sprintf("log mentions %q", s),
		Check: func(_ *Scenario, o *Outcome) error {
			if !strings.Contains(o.Log, s) {
				return fmt.Errorf("log was %q", o.Log)
			}
			return nil
		},
	}
}

func checkReordered(sc *Scenario, o *Outcome) error {
	rev := *sc
	rev.Input.Tasks = reversed(sc.Input.Tasks)
	rev.Input.Records = reversed(sc.Input.Records)
	s, _, err := execute(context.Background(), &rev)
	if err != nil {
		return fmt.Errorf("reordered run: %w", err)
	}
	if !reflect.DeepEqual(s, o.Schedule) {
		return fmt.Errorf("schedules differ:\n  first: %s\n  reordered: %s", describeBlocks(o.Schedule.Blocks()), describeBlocks(s.Blocks()))
	}
	return nil
}

func reversed[T any](in []T) []T {
	out := make([]T, len(in))
	for i, v := range in {
		out[len(in)-1-i] = v
	}
	return out
}

func intervals(blocks []model.Timeblock) []model.Interval {
	out := make([]model.Interval, len(blocks))
	for i, b := range blocks {
		out[i] = b.Interval()
	}
	return out
}

func describe(iv model.Interval) string {
	return fmt.Sprintf("[%s, %s)", iv.Start.UTC().Format("Mon 15:04"), iv.End.UTC().Format("Mon 15:04"))
}

func describeBlocks(blocks []model.Timeblock) string {
	if len(blocks) == 0 {
		return "none"
	}
	parts := make([]string, len(blocks))
	for i, b := range blocks {
		parts[i] = b.ID + " " + describe(b.Interval())
	}
	return strings.Join(parts, ", ")
}
