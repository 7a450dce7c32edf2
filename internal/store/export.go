package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rcliao/timeblock/internal/model"
	"github.com/rcliao/timeblock/internal/normalize"
)

// Snapshot is everything the scheduler reads for one user, in wire form.
type Snapshot struct {
	UserID  string                `json:"user_id"`
	Policy  *model.Policy         `json:"policy,omitempty"`
	Tasks   []model.Task          `json:"tasks"`
	Records []normalize.RawRecord `json:"records"`
}

// ImportResult reports what Import stored and skipped.
type ImportResult struct {
	Tasks   int      `json:"tasks"`
	Records int      `json:"records"`
	Policy  bool     `json:"policy"`
	Skipped []string `json:"skipped,omitempty"`
}

// Export returns a user's policy, tasks and every stored record.
func (s *SQLiteStore) Export(ctx context.Context, userID string) (*Snapshot, error) {
	snap := &Snapshot{UserID: userID, Tasks: []model.Task{}, Records: []normalize.RawRecord{}}

	p, err := s.GetPolicy(ctx, userID)
	switch {
	case err == nil:
		snap.Policy = &p
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	tasks, err := s.ListTasks(ctx, userID)
	if err != nil {
		return nil, err
	}
	snap.Tasks = append(snap.Tasks, tasks...)

	recs, err := s.ListRecords(ctx, userID, time.Time{}, time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC))
	if err != nil {
		return nil, err
	}
	for _, r := range recs {
		snap.Records = append(snap.Records, normalize.Raw(r))
	}
	return snap, nil
}

// Import stores a snapshot for userID. Invalid tasks and records are
// skipped and listed in the result; storage errors abort.
func (s *SQLiteStore) Import(ctx context.Context, userID string, snap *Snapshot) (*ImportResult, error) {
	res := &ImportResult{}
	if snap.Policy != nil {
		if err := s.PutPolicy(ctx, userID, *snap.Policy); err != nil {
			return res, fmt.Errorf("policy: %w", err)
		}
		res.Policy = true
	}
	for _, t := range snap.Tasks {
		if err := s.PutTask(ctx, userID, t); err != nil {
			if errors.Is(err, model.ErrValidation) {
				res.Skipped = append(res.Skipped, fmt.Sprintf("task %s: %v", t.ID, err))
				continue
			}
			return res, err
		}
		res.Tasks++
	}
	for _, raw := range snap.Records {
		rec, err := raw.Record()
		if err == nil {
			err = s.PutRecord(ctx, userID, rec)
		}
		if err != nil {
			if errors.Is(err, model.ErrValidation) {
				res.Skipped = append(res.Skipped, fmt.Sprintf("record %s: %v", raw.ID, err))
				continue
			}
			return res, err
		}
		res.Records++
	}
	return res, nil
}
