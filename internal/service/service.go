// Package service is the calling boundary around the scheduling engine:
// it reads snapshots from the store, runs the engine, and persists the
// result. All I/O happens here, before and after the pure computation.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rcliao/timeblock/internal/logging"
	"github.com/rcliao/timeblock/internal/model"
	"github.com/rcliao/timeblock/internal/normalize"
	"github.com/rcliao/timeblock/internal/scheduler"
	"github.com/rcliao/timeblock/internal/store"
)

// Service schedules users against a store.
type Service struct {
	store         store.Store
	engine        *scheduler.Engine
	log           logging.Logger
	defaultPolicy model.Policy

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a Service. defaultPolicy applies to users with no stored policy.
func New(st store.Store, engine *scheduler.Engine, log logging.Logger, defaultPolicy model.Policy) *Service {
	return &Service{
		store:         st,
		engine:        engine,
		log:           log,
		defaultPolicy: defaultPolicy,
		locks:         make(map[string]*sync.Mutex),
	}
}

// userLock returns the run lock for a user.
func (s *Service) userLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	return l
}

// Policy returns the user's stored policy, or the default when none is stored.
func (s *Service) Policy(ctx context.Context, userID string) (model.Policy, error) {
	p, err := s.store.GetPolicy(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return s.defaultPolicy, nil
	}
	return p, err
}

// Reschedule recomputes the user's schedule over horizon and persists it.
// At most one run per user is in flight; runs for different users proceed
// concurrently. A failed run leaves the stored schedule untouched.
func (s *Service) Reschedule(ctx context.Context, userID string, horizon model.Interval) (*store.Run, error) {
	if userID == "" {
		return nil, &model.ValidationError{Field: "user_id", Msg: "is required"}
	}
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	log := s.log.With(logging.String("user", userID))

	p, err := s.Policy(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}
	tasks, err := s.store.ListTasks(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	records, err := s.store.ListRecords(ctx, userID, horizon.Start, horizon.End)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	// Pinned sessions outside the horizon still count toward their task.
	pinned, err := s.store.ListPinned(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load pinned sessions: %w", err)
	}
	records = mergeRecords(records, pinned)

	sched, err := s.engine.Run(ctx, scheduler.Input{
		UserID:  userID,
		Horizon: horizon,
		Policy:  p,
		Tasks:   tasks,
		Records: records,
	})
	if err != nil {
		log.Error("schedule run failed", logging.Err(err))
		return nil, err
	}

	run, err := s.store.SaveSchedule(ctx, sched)
	if err != nil {
		return nil, fmt.Errorf("save schedule: %w", err)
	}
	log.Info("schedule saved",
		logging.String("run", run.ID),
		logging.Int("placements", run.Placements),
		logging.Int("unplaced", run.Unplaced))
	return run, nil
}

// Feed returns the user's timeblocks that intersect [from, to), ordered by
// start. Zero-length blocks are included when they start inside the range.
// Stored records that no longer normalize are skipped.
func (s *Service) Feed(ctx context.Context, userID string, from, to time.Time) ([]model.Timeblock, error) {
	if !to.After(from) {
		return nil, &model.ValidationError{Field: "to", Msg: "must be after from"}
	}
	p, err := s.Policy(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}
	n, err := normalize.ForPolicy(p)
	if err != nil {
		return nil, err
	}
	records, err := s.store.ListRecords(ctx, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}

	blocks, errs := n.NormalizeAll(records)
	for _, re := range errs {
		s.log.Warn("skipping malformed record", logging.String("user", userID), logging.String("record", re.ID), logging.Err(re.Err))
	}

	window := model.Interval{Start: from, End: to}
	out := make([]model.Timeblock, 0, len(blocks))
	for _, b := range blocks {
		if window.Overlaps(b.Interval()) || (b.Duration() == 0 && !b.Start.Before(from) && b.Start.Before(to)) {
			out = append(out, b)
		}
	}
	model.SortBlocks(out)
	return out, nil
}

// mergeRecords appends the records of extra whose ids are not in recs.
func mergeRecords(recs, extra []normalize.Record) []normalize.Record {
	seen := make(map[string]bool, len(recs))
	for _, r := range recs {
		seen[r.RecordID()] = true
	}
	for _, r := range extra {
		if !seen[r.RecordID()] {
			seen[r.RecordID()] = true
			recs = append(recs, r)
		}
	}
	return recs
}
