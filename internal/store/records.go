package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rcliao/timeblock/internal/model"
	"github.com/rcliao/timeblock/internal/normalize"
)

// allDaySlack widens the stored window of all-day records. Their instants
// depend on the reader's timezone, which is not known at write time.
const allDaySlack = 14 * time.Hour

func (s *SQLiteStore) PutRecord(ctx context.Context, userID string, rec normalize.Record) error {
	return putRecord(ctx, s.db, userID, rec)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func putRecord(ctx context.Context, db execer, userID string, rec normalize.Record) error {
	b, err := normalize.New(time.UTC).Normalize(rec)
	if err != nil {
		return err
	}
	start, end := b.Start, b.End
	if b.IsAllDay {
		start, end = start.Add(-allDaySlack), end.Add(allDaySlack)
	}
	raw := normalize.Raw(rec)
	payload, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	var taskID *string
	if raw.TaskID != "" {
		taskID = &raw.TaskID
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO records (user_id, id, source, task_id, pinned, start_at, end_at, payload, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, id) DO UPDATE SET
		   source = excluded.source, task_id = excluded.task_id, pinned = excluded.pinned,
		   start_at = excluded.start_at, end_at = excluded.end_at,
		   payload = excluded.payload, updated_at = excluded.updated_at`,
		userID, raw.ID, raw.Source, taskID, raw.Pinned,
		formatTime(start), formatTime(end), string(payload), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("insert record %s: %w", raw.ID, err)
	}
	return nil
}

// ListRecords returns records ordered by start then id. The match is a
// superset: all-day records are matched with a margin, and records that
// only touch the window are included.
func (s *SQLiteStore) ListRecords(ctx context.Context, userID string, from, to time.Time) ([]normalize.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM records
		 WHERE user_id = ? AND start_at <= ? AND end_at >= ?
		 ORDER BY start_at, id`,
		userID, formatTime(to), formatTime(from))
	if err != nil {
		return nil, err
	}
	return scanRecords(rows)
}

// ListPinned returns every pinned task session of the user, wherever it
// sits on the timeline, ordered by start then id.
func (s *SQLiteStore) ListPinned(ctx context.Context, userID string) ([]normalize.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM records
		 WHERE user_id = ? AND source = ? AND pinned = 1
		 ORDER BY start_at, id`,
		userID, model.SourceTask)
	if err != nil {
		return nil, err
	}
	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]normalize.Record, error) {
	defer rows.Close()

	var out []normalize.Record
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var raw normalize.RawRecord
		if err := json.Unmarshal([]byte(payload), &raw); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		rec, err := raw.Record()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SaveSchedule drops every unpinned task session of the user, writes the
// new placements as task records and logs the run. Nothing is written if
// any step fails.
func (s *SQLiteStore) SaveSchedule(ctx context.Context, sched *model.Schedule) (*Run, error) {
	if sched == nil {
		return nil, errors.New("save schedule: nil schedule")
	}
	now := time.Now().UTC().Truncate(time.Second)
	run := &Run{
		ID:         s.newID(),
		UserID:     sched.UserID,
		Horizon:    sched.Horizon,
		CreatedAt:  now,
		Placements: len(sched.Placements),
		Unplaced:   len(sched.Unplaced),
		Schedule:   sched,
	}
	payload, err := json.Marshal(sched)
	if err != nil {
		return nil, fmt.Errorf("encode schedule: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`DELETE FROM records WHERE user_id = ? AND source = ? AND pinned = 0`,
		sched.UserID, model.SourceTask)
	if err != nil {
		return nil, fmt.Errorf("clear sessions: %w", err)
	}

	for _, p := range sched.Placements {
		var taken int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM records WHERE user_id = ? AND id = ?`, sched.UserID, p.Block.ID).Scan(&taken)
		if err != nil {
			return nil, err
		}
		if taken > 0 {
			return nil, &model.ValidationError{Record: p.Block.ID, Field: "id", Msg: "placement id collides with a fixed record"}
		}
		rec := normalize.TaskRecord{
			ID:     p.Block.ID,
			TaskID: p.TaskID,
			Title:  p.Block.Title,
			Start:  p.Block.Start.UTC().Format(time.RFC3339),
			End:    p.Block.End.UTC().Format(time.RFC3339),
			LinkID: p.Block.LinkID,
		}
		if err := putRecord(ctx, tx, sched.UserID, rec); err != nil {
			return nil, err
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO schedule_runs (id, user_id, horizon_start, horizon_end, placements, unplaced, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.UserID, formatTime(sched.Horizon.Start), formatTime(sched.Horizon.End),
		run.Placements, run.Unplaced, string(payload), formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return run, nil
}

func (s *SQLiteStore) LastRun(ctx context.Context, userID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, horizon_start, horizon_end, placements, unplaced, payload, created_at
		 FROM schedule_runs WHERE user_id = ? ORDER BY id DESC LIMIT 1`, userID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run for %s: %w", userID, ErrNotFound)
	}
	return run, err
}

func scanRun(row scanner) (*Run, error) {
	var r Run
	var hStart, hEnd, payload, createdAt string
	if err := row.Scan(&r.ID, &r.UserID, &hStart, &hEnd, &r.Placements, &r.Unplaced, &payload, &createdAt); err != nil {
		return nil, err
	}
	r.Horizon = model.Interval{Start: parseTime(hStart), End: parseTime(hEnd)}
	r.CreatedAt = parseTime(createdAt)
	r.Schedule = &model.Schedule{}
	if err := json.Unmarshal([]byte(payload), r.Schedule); err != nil {
		return nil, fmt.Errorf("decode schedule: %w", err)
	}
	return &r, nil
}
