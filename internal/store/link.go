package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rcliao/timeblock/internal/model"
)

// PutLink creates or replaces a link.
func (s *SQLiteStore) PutLink(ctx context.Context, l Link) (*Link, error) {
	if l.UserID == "" {
		return nil, &model.ValidationError{Record: l.ID, Field: "user_id", Msg: "is required"}
	}
	if !model.ValidProviders[l.Provider] {
		return nil, &model.ValidationError{Record: l.ID, Field: "provider", Msg: fmt.Sprintf("unknown provider %q", l.Provider)}
	}
	if l.URL == "" && l.ExternalID == "" {
		return nil, &model.ValidationError{Record: l.ID, Field: "url", Msg: "url or external_id is required"}
	}
	if l.ID == "" {
		l.ID = s.newID()
	}
	l.CreatedAt = time.Now().UTC().Truncate(time.Second)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO links (id, user_id, provider, external_id, url, title, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   provider = excluded.provider, external_id = excluded.external_id,
		   url = excluded.url, title = excluded.title`,
		l.ID, l.UserID, nullString(string(l.Provider)), nullString(l.ExternalID),
		nullString(l.URL), nullString(l.Title), formatTime(l.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("insert link: %w", err)
	}
	return &l, nil
}

// GetLink returns one of the user's links.
func (s *SQLiteStore) GetLink(ctx context.Context, userID, id string) (*Link, error) {
	var l Link
	var provider, externalID, url, title sql.NullString
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, provider, external_id, url, title, created_at
		 FROM links WHERE user_id = ? AND id = ?`, userID, id).
		Scan(&l.ID, &l.UserID, &provider, &externalID, &url, &title, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("link %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	l.Provider = model.Provider(provider.String)
	l.ExternalID = externalID.String
	l.URL = url.String
	l.Title = title.String
	l.CreatedAt = parseTime(createdAt)
	return &l, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
