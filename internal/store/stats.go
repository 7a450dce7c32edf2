package store

import (
	"context"
	"os"
	"time"
)

// Stats holds database statistics.
type Stats struct {
	DBPath      string      `json:"db_path"`
	DBSizeBytes int64       `json:"db_size_bytes"`
	Tasks       int         `json:"tasks"`
	Records     int         `json:"records"`
	Runs        int         `json:"runs"`
	Links       int         `json:"links"`
	LastRunAt   *time.Time  `json:"last_run_at,omitempty"`
	Users       []UserStats `json:"users"`
}

// UserStats holds per-user counts.
type UserStats struct {
	UserID   string `json:"user_id"`
	Tasks    int    `json:"tasks"`
	Calendar int    `json:"calendar"`
	Busy     int    `json:"busy"`
	Sessions int    `json:"sessions"`
	Pinned   int    `json:"pinned"`
}

// Stats returns database statistics.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{DBPath: s.path}

	if info, err := os.Stat(s.path); err == nil {
		st.DBSizeBytes = info.Size()
	}

	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks`).Scan(&st.Tasks)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&st.Records)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schedule_runs`).Scan(&st.Runs)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM links`).Scan(&st.Links)

	var last string
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(created_at) FROM schedule_runs`).Scan(&last); err == nil && last != "" {
		t := parseTime(last)
		st.LastRunAt = &t
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT u.user_id,
		       (SELECT COUNT(*) FROM tasks t WHERE t.user_id = u.user_id),
		       COALESCE(SUM(r.source = 'calendar'), 0),
		       COALESCE(SUM(r.source = 'busy'), 0),
		       COALESCE(SUM(r.source = 'task' AND r.pinned = 0), 0),
		       COALESCE(SUM(r.source = 'task' AND r.pinned = 1), 0)
		FROM (SELECT user_id FROM tasks UNION SELECT user_id FROM records) u
		LEFT JOIN records r ON r.user_id = u.user_id
		GROUP BY u.user_id ORDER BY u.user_id`)
	if err != nil {
		return st, err
	}
	defer rows.Close()

	for rows.Next() {
		var u UserStats
		if err := rows.Scan(&u.UserID, &u.Tasks, &u.Calendar, &u.Busy, &u.Sessions, &u.Pinned); err != nil {
			return st, err
		}
		st.Users = append(st.Users, u)
	}

	return st, rows.Err()
}
