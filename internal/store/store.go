// Package store persists per-user scheduling snapshots (tasks, timeline
// records, policies, links) and the schedules computed from them.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/rcliao/timeblock/internal/model"
	"github.com/rcliao/timeblock/internal/normalize"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Run is one persisted scheduling result.
type Run struct {
	ID         string          `json:"id"`
	UserID     string          `json:"user_id"`
	Horizon    model.Interval  `json:"horizon"`
	CreatedAt  time.Time       `json:"created_at"`
	Placements int             `json:"placements"`
	Unplaced   int             `json:"unplaced"`
	Schedule   *model.Schedule `json:"schedule"`
}

// Link is an external reference (an issue, a calendar event URL, a doc)
// that tasks and blocks point at through their link_id.
type Link struct {
	ID         string         `json:"id"`
	UserID     string         `json:"user_id"`
	Provider   model.Provider `json:"provider,omitempty"`
	ExternalID string         `json:"external_id,omitempty"`
	URL        string         `json:"url,omitempty"`
	Title      string         `json:"title,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Store defines the persistence boundary of the scheduler. Reads are
// point-in-time snapshots; the store takes no part in scheduling.
type Store interface {
	// PutTask creates or replaces a task.
	PutTask(ctx context.Context, userID string, t model.Task) error
	// ListTasks returns a user's tasks ordered by id.
	ListTasks(ctx context.Context, userID string) ([]model.Task, error)
	// RemoveTask deletes a task and its unpinned sessions.
	RemoveTask(ctx context.Context, userID, taskID string) error

	// PutRecord creates or replaces a timeline record. Records that cannot
	// be normalized are rejected with a *model.ValidationError.
	PutRecord(ctx context.Context, userID string, rec normalize.Record) error
	// ListRecords returns the records that may intersect [from, to).
	ListRecords(ctx context.Context, userID string, from, to time.Time) ([]normalize.Record, error)
	// ListPinned returns all pinned task sessions regardless of time.
	ListPinned(ctx context.Context, userID string) ([]normalize.Record, error)

	// GetPolicy returns the user's policy or ErrNotFound.
	GetPolicy(ctx context.Context, userID string) (model.Policy, error)
	// PutPolicy stores the user's policy.
	PutPolicy(ctx context.Context, userID string, p model.Policy) error

	// SaveSchedule replaces the user's unpinned task sessions with the
	// schedule's placements and records the run, atomically.
	SaveSchedule(ctx context.Context, s *model.Schedule) (*Run, error)
	// LastRun returns the most recent run for a user or ErrNotFound.
	LastRun(ctx context.Context, userID string) (*Run, error)

	// PutLink stores a link, assigning an id when empty.
	PutLink(ctx context.Context, l Link) (*Link, error)
	// GetLink returns a link or ErrNotFound.
	GetLink(ctx context.Context, userID, id string) (*Link, error)

	// Stats summarizes the database.
	Stats(ctx context.Context) (*Stats, error)

	// Close closes the store.
	Close() error
}
