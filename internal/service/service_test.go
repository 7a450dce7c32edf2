package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rcliao/timeblock/internal/logging"
	"github.com/rcliao/timeblock/internal/model"
	"github.com/rcliao/timeblock/internal/normalize"
	"github.com/rcliao/timeblock/internal/scheduler"
	"github.com/rcliao/timeblock/internal/store"
)

var monday = time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return monday.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func rfc(t time.Time) string { return t.Format(time.RFC3339) }

func day() model.Interval { return model.Interval{Start: monday, End: monday.Add(24 * time.Hour)} }

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestService(st store.Store) *Service {
	e := scheduler.NewEngine(logging.Nop(), scheduler.WithClock(func() time.Time { return at(8, 0) }))
	return New(st, e, logging.Nop(), model.DefaultPolicy())
}

func TestRescheduleAndFeed(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newTestService(st)

	st.PutTask(ctx, "u1", model.Task{ID: "essay", Title: "Essay", EstimatedDuration: model.Duration(90 * time.Minute)})
	st.PutRecord(ctx, "u1", normalize.CalendarRecord{ID: "standup", Provider: model.ProviderGoogle, Title: "Standup",
		Start: rfc(at(9, 0)), End: rfc(at(9, 30))})

	run, err := svc.Reschedule(ctx, "u1", day())
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if run.Placements != 1 || run.Unplaced != 0 {
		t.Fatalf("unexpected run: %+v", run)
	}

	feed, err := svc.Feed(ctx, "u1", at(0, 0), at(24, 0))
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if len(feed) != 2 {
		t.Fatalf("expected meeting and session, got %+v", feed)
	}
	if feed[0].ID != "standup" || !feed[0].ReadOnly || feed[0].Source != model.SourceCalendar {
		t.Errorf("expected read-only meeting first, got %+v", feed[0])
	}
	s := feed[1]
	if s.ID != "essay/0" || s.Source != model.SourceTask || s.ReadOnly || s.Provider != "" {
		t.Errorf("unexpected session: %+v", s)
	}
	if !s.Start.Equal(at(9, 30)) || !s.End.Equal(at(11, 0)) {
		t.Errorf("expected session 09:30-11:00, got %v-%v", s.Start, s.End)
	}
}

func TestRescheduleIsRepeatable(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newTestService(st)

	st.PutTask(ctx, "u1", model.Task{ID: "a", EstimatedDuration: model.Duration(3 * time.Hour)})
	st.PutTask(ctx, "u1", model.Task{ID: "b", EstimatedDuration: model.Duration(time.Hour), Priority: model.PriorityHigh})

	if _, err := svc.Reschedule(ctx, "u1", day()); err != nil {
		t.Fatalf("first: %v", err)
	}
	first, _ := svc.Feed(ctx, "u1", at(0, 0), at(24, 0))
	if _, err := svc.Reschedule(ctx, "u1", day()); err != nil {
		t.Fatalf("second: %v", err)
	}
	second, _ := svc.Feed(ctx, "u1", at(0, 0), at(24, 0))

	if len(first) != len(second) {
		t.Fatalf("feeds differ in length: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID || !first[i].Start.Equal(second[i].Start) || !first[i].End.Equal(second[i].End) {
			t.Errorf("block %d differs: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestRescheduleUsesStoredPolicy(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newTestService(st)

	p := model.DefaultPolicy()
	p.WorkHours[time.Monday] = []model.WorkWindow{{Start: 14 * 60, End: 16 * 60}}
	st.PutPolicy(ctx, "u1", p)
	st.PutTask(ctx, "u1", model.Task{ID: "a", EstimatedDuration: model.Duration(time.Hour)})

	run, err := svc.Reschedule(ctx, "u1", day())
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	got := run.Schedule.PlacedFor("a")
	if len(got) != 1 || !got[0].Start.Equal(at(14, 0)) {
		t.Errorf("expected placement at 14:00, got %+v", got)
	}
}

func TestRescheduleFailureKeepsStoredSchedule(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newTestService(st)

	st.PutTask(ctx, "u1", model.Task{ID: "a", EstimatedDuration: model.Duration(time.Hour)})
	if _, err := svc.Reschedule(ctx, "u1", day()); err != nil {
		t.Fatalf("reschedule: %v", err)
	}

	st.PutRecord(ctx, "u1", normalize.BusyRecord{ID: "x", Start: rfc(at(13, 0)), End: rfc(at(15, 0))})
	st.PutRecord(ctx, "u1", normalize.BusyRecord{ID: "y", Start: rfc(at(14, 0)), End: rfc(at(16, 0))})
	_, err := svc.Reschedule(ctx, "u1", day())
	if !errors.Is(err, model.ErrOverlap) {
		t.Fatalf("expected overlap error, got %v", err)
	}

	feed, _ := svc.Feed(ctx, "u1", at(0, 0), at(24, 0))
	found := false
	for _, b := range feed {
		if b.ID == "a/0" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected previous session to survive a failed run, got %+v", feed)
	}
}

func TestReschedulePinnedSessionKeepsItsID(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newTestService(st)

	st.PutTask(ctx, "u1", model.Task{ID: "essay", EstimatedDuration: model.Duration(3 * time.Hour)})
	run, err := svc.Reschedule(ctx, "u1", day())
	if err != nil {
		t.Fatalf("first reschedule: %v", err)
	}
	first := run.Schedule.PlacedFor("essay")
	if len(first) == 0 || first[0].ID != "essay/0" {
		t.Fatalf("expected essay/0 in first run, got %+v", first)
	}

	// The user pins the first session where it was placed.
	pin := normalize.TaskRecord{ID: first[0].ID, TaskID: "essay", Title: "essay", Pinned: true,
		Start: rfc(first[0].Start), End: rfc(first[0].End)}
	if err := st.PutRecord(ctx, "u1", pin); err != nil {
		t.Fatalf("pin: %v", err)
	}

	run, err = svc.Reschedule(ctx, "u1", day())
	if err != nil {
		t.Fatalf("second reschedule: %v", err)
	}
	want := 3*time.Hour - first[0].Duration()
	if got := run.Schedule.PlacedDuration("essay"); got != want {
		t.Errorf("expected %v placed around the pinned session, got %v", want, got)
	}
	for _, b := range run.Schedule.PlacedFor("essay") {
		if b.ID == pin.ID {
			t.Errorf("new session reused pinned id %s", b.ID)
		}
	}

	if _, err := svc.Reschedule(ctx, "u1", day()); err != nil {
		t.Fatalf("third reschedule: %v", err)
	}
}

func TestReschedulePinnedOutsideHorizonCounts(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newTestService(st)

	st.PutTask(ctx, "u1", model.Task{ID: "essay", EstimatedDuration: model.Duration(3 * time.Hour)})
	// Two hours pinned on Tuesday, outside the Monday horizon.
	st.PutRecord(ctx, "u1", normalize.TaskRecord{ID: "essay/0", TaskID: "essay", Pinned: true,
		Start: rfc(at(33, 0)), End: rfc(at(35, 0))})

	run, err := svc.Reschedule(ctx, "u1", day())
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if got := run.Schedule.PlacedDuration("essay"); got != time.Hour {
		t.Errorf("expected 1h placed on Monday, got %v", got)
	}
	placed := run.Schedule.PlacedFor("essay")
	if len(placed) != 1 || placed[0].ID != "essay/1" {
		t.Errorf("expected a single essay/1 session, got %+v", placed)
	}
}

func TestFeedWindow(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newTestService(st)

	st.PutRecord(ctx, "u1", normalize.BusyRecord{ID: "before", Start: rfc(at(8, 0)), End: rfc(at(9, 0))})
	st.PutRecord(ctx, "u1", normalize.BusyRecord{ID: "inside", Start: rfc(at(10, 0)), End: rfc(at(11, 0))})
	st.PutRecord(ctx, "u1", normalize.BusyRecord{ID: "marker", Start: rfc(at(9, 0)), End: rfc(at(9, 0))})
	st.PutRecord(ctx, "u1", normalize.BusyRecord{ID: "after", Start: rfc(at(12, 0)), End: rfc(at(13, 0))})

	feed, err := svc.Feed(ctx, "u1", at(9, 0), at(12, 0))
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if len(feed) != 2 || feed[0].ID != "marker" || feed[1].ID != "inside" {
		t.Errorf("expected marker and inside, got %+v", feed)
	}

	if _, err := svc.Feed(ctx, "u1", at(12, 0), at(9, 0)); !errors.Is(err, model.ErrValidation) {
		t.Errorf("expected validation error for inverted range, got %v", err)
	}
}

// countingStore records how many runs for one user overlap.
type countingStore struct {
	store.Store
	active  atomic.Int32
	maxSeen atomic.Int32
}

func (c *countingStore) ListTasks(ctx context.Context, userID string) ([]model.Task, error) {
	n := c.active.Add(1)
	for {
		m := c.maxSeen.Load()
		if n <= m || c.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	return c.Store.ListTasks(ctx, userID)
}

func (c *countingStore) SaveSchedule(ctx context.Context, s *model.Schedule) (*store.Run, error) {
	defer c.active.Add(-1)
	return c.Store.SaveSchedule(ctx, s)
}

func TestReschedulePerUserLock(t *testing.T) {
	ctx := context.Background()
	base := newTestStore(t)
	base.PutTask(ctx, "u1", model.Task{ID: "a", EstimatedDuration: model.Duration(time.Hour)})
	cs := &countingStore{Store: base}
	svc := newTestService(cs)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Reschedule(ctx, "u1", day()); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("reschedule: %v", err)
	}
	if got := cs.maxSeen.Load(); got != 1 {
		t.Errorf("expected runs for one user to be serialized, saw %d at once", got)
	}
}

func TestRescheduleRequiresUser(t *testing.T) {
	svc := newTestService(newTestStore(t))
	if _, err := svc.Reschedule(context.Background(), "", day()); !errors.Is(err, model.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}
