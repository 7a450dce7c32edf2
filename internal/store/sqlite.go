package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/rcliao/timeblock/internal/model"
)

// tsLayout is the fixed-width UTC layout used for every stored instant so
// that text comparison in SQL orders correctly.
const tsLayout = "2006-01-02T15:04:05Z"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string

	mu      sync.Mutex
	entropy io.Reader
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStore{
		db:      db,
		path:    dbPath,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) newID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		user_id    TEXT NOT NULL,
		id         TEXT NOT NULL,
		payload    TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (user_id, id)
	);

	CREATE TABLE IF NOT EXISTS records (
		user_id    TEXT NOT NULL,
		id         TEXT NOT NULL,
		source     TEXT NOT NULL,
		task_id    TEXT,
		pinned     INTEGER NOT NULL DEFAULT 0,
		start_at   TEXT NOT NULL,
		end_at     TEXT NOT NULL,
		payload    TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (user_id, id)
	);
	CREATE INDEX IF NOT EXISTS idx_records_window ON records(user_id, start_at, end_at);
	CREATE INDEX IF NOT EXISTS idx_records_task ON records(user_id, task_id);

	CREATE TABLE IF NOT EXISTS policies (
		user_id    TEXT PRIMARY KEY,
		payload    TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS schedule_runs (
		id            TEXT PRIMARY KEY,
		user_id       TEXT NOT NULL,
		horizon_start TEXT NOT NULL,
		horizon_end   TEXT NOT NULL,
		placements    INTEGER NOT NULL,
		unplaced      INTEGER NOT NULL,
		payload       TEXT NOT NULL,
		created_at    TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_user ON schedule_runs(user_id, id DESC);

	CREATE TABLE IF NOT EXISTS links (
		id          TEXT PRIMARY KEY,
		user_id     TEXT NOT NULL,
		provider    TEXT,
		external_id TEXT,
		url         TEXT,
		title       TEXT,
		created_at  TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_links_user ON links(user_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) PutTask(ctx context.Context, userID string, t model.Task) error {
	if err := t.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tasks (user_id, id, payload, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id, id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		userID, t.ID, string(payload), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListTasks(ctx context.Context, userID string) ([]model.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM tasks WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var t model.Task
		if err := json.Unmarshal([]byte(payload), &t); err != nil {
			return nil, fmt.Errorf("decode task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (s *SQLiteStore) RemoveTask(ctx context.Context, userID, taskID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE user_id = ? AND id = ?`, userID, taskID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	_, err = tx.ExecContext(ctx,
		`DELETE FROM records WHERE user_id = ? AND source = ? AND task_id = ? AND pinned = 0`,
		userID, model.SourceTask, taskID)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetPolicy(ctx context.Context, userID string) (model.Policy, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM policies WHERE user_id = ?`, userID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Policy{}, fmt.Errorf("policy for %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return model.Policy{}, err
	}
	var p model.Policy
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return model.Policy{}, fmt.Errorf("decode policy: %w", err)
	}
	return p, nil
}

func (s *SQLiteStore) PutPolicy(ctx context.Context, userID string, p model.Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode policy: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO policies (user_id, payload, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		userID, string(payload), formatTime(time.Now()))
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func formatTime(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(tsLayout, s)
	return t
}
