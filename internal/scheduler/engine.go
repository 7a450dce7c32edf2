// Package scheduler reconciles fixed time and places movable work.
//
// The pipeline is synchronous and pure over its inputs: records are
// normalized, partitioned into fixed blocks and pending tasks, checked for
// conflicts, allocated into free time, and the result is re-checked before
// it is returned. Runs share no mutable state, so many users can be
// scheduled concurrently; serializing runs for one user is the caller's job.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rcliao/timeblock/internal/logging"
	"github.com/rcliao/timeblock/internal/model"
	"github.com/rcliao/timeblock/internal/normalize"
)

// Input is one scheduling request.
type Input struct {
	UserID  string
	Horizon model.Interval
	Policy  model.Policy
	Tasks   []model.Task
	Records []normalize.Record
}

// Engine runs the scheduling pipeline.
type Engine struct {
	log logging.Logger
	now func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock injects the clock used to decide which time is already past.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an Engine. The zero logger discards output.
func NewEngine(log logging.Logger, opts ...Option) *Engine {
	e := &Engine{log: log, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes the full pipeline. Malformed records and tasks are skipped
// and reported; overlapping fixed blocks and invariant violations abort the
// run with no schedule.
func (e *Engine) Run(ctx context.Context, in Input) (*model.Schedule, error) {
	started := time.Now()
	log := e.log.With(logging.String("user", in.UserID))

	n, err := normalize.ForPolicy(in.Policy)
	if err != nil {
		return nil, fmt.Errorf("policy: %w", err)
	}
	blocks, recErrs := n.NormalizeAll(in.Records)
	for _, re := range recErrs {
		log.Warn("skipping malformed record", logging.Int("index", re.Index), logging.String("record", re.ID), logging.Err(re.Err))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c, err := Collect(CollectInput{
		UserID:  in.UserID,
		Horizon: in.Horizon,
		Policy:  in.Policy,
		Now:     e.now(),
		Blocks:  blocks,
		Tasks:   in.Tasks,
	})
	if err != nil {
		return nil, fmt.Errorf("collect: %w", err)
	}
	for _, x := range c.Excluded {
		log.Warn("task excluded", logging.String("task", x.TaskID), logging.String("reason", string(x.Reason)), logging.String("detail", x.Detail))
	}

	fixed, err := ResolveFixed(c.Fixed)
	if err != nil {
		log.Error("fixed blocks conflict", logging.Err(err))
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s, err := Allocate(c.Pending, c.Free, c.Policy, AllocateOptions{
		UserID:  in.UserID,
		Horizon: in.Horizon,
		Now:     c.Now,

		Reserved: c.TakenIDs,
	})
	if err != nil {
		return nil, fmt.Errorf("allocate: %w", err)
	}

	if err := ResolveFinal(fixed, s); err != nil {
		log.Error("schedule rejected", logging.Err(err))
		return nil, err
	}

	s.Fixed = fixed
	if s.Fixed == nil {
		s.Fixed = []model.Timeblock{}
	}
	s.Unplaced = append(append([]model.Unplaced{}, c.Excluded...), s.Unplaced...)

	log.Debug("schedule computed",
		logging.Int("fixed", len(fixed)),
		logging.Int("pending", len(c.Pending)),
		logging.Int("placements", len(s.Placements)),
		logging.Int("unplaced", len(s.Unplaced)),
		logging.Int("superseded", c.Superseded),
		logging.Int("skipped_records", len(recErrs)),
		logging.Duration("elapsed", time.Since(started)))
	return s, nil
}
