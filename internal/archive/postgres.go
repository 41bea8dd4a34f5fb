package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const createArchiveTable = `
CREATE TABLE IF NOT EXISTS archive_entries (
	id         UUID PRIMARY KEY,
	category   TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	content    JSONB NOT NULL,
	metadata   JSONB NOT NULL DEFAULT '{}'::jsonb
);
CREATE INDEX IF NOT EXISTS archive_entries_category_created_idx
	ON archive_entries (category, created_at DESC);`

// PostgresStore archives entries into a jsonb table through pgx.
type PostgresStore struct {
	db         *pgxpool.Pool
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

func NewPostgresStore(db *pgxpool.Pool, ttl time.Duration, maxEntries int) *PostgresStore {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &PostgresStore{db: db, ttl: ttl, maxEntries: maxEntries, now: time.Now}
}

// EnsureSchema creates the archive table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, createArchiveTable); err != nil {
		return fmt.Errorf("%w: create archive table: %v", ErrArchiveWriteFailed, err)
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, category string, item interface{}, metadata map[string]interface{}) error {
	entry, err := newEntry(category, item, metadata, s.now())
	if err != nil {
		return err
	}
	meta, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrArchiveWriteFailed, err)
	}

	_, err = s.db.Exec(ctx,
		"INSERT INTO archive_entries (id, category, created_at, content, metadata) VALUES ($1, $2, $3, $4::jsonb, $5::jsonb)",
		entry.ID, entry.Category, entry.Timestamp, string(entry.Content), string(meta))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrArchiveWriteFailed, err)
	}
	return nil
}

func (s *PostgresStore) Recent(ctx context.Context, category string, n int, filter Filter) ([]Entry, error) {
	limit := s.maxEntries
	if filter == nil && n > 0 && n < limit {
		limit = n
	}

	cutoff := time.Time{}
	if s.ttl > 0 {
		cutoff = s.now().Add(-s.ttl)
	}

	rows, err := s.db.Query(ctx,
		"SELECT id::text, category, created_at, content, metadata FROM archive_entries WHERE category = $1 AND created_at >= $2 ORDER BY created_at DESC LIMIT $3",
		category, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArchiveReadFailed, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e       Entry
			content []byte
			meta    []byte
		)
		if err := rows.Scan(&e.ID, &e.Category, &e.Timestamp, &content, &meta); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrArchiveReadFailed, err)
		}
		e.Content = json.RawMessage(content)
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Metadata); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrArchiveReadFailed, err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArchiveReadFailed, err)
	}

	return selectRecent(entries, s.now(), s.ttl, n, filter), nil
}

func (s *PostgresStore) Clear(ctx context.Context, category string) error {
	var err error
	if category == "" {
		_, err = s.db.Exec(ctx, "DELETE FROM archive_entries")
	} else {
		_, err = s.db.Exec(ctx, "DELETE FROM archive_entries WHERE category = $1", category)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrArchiveWriteFailed, err)
	}
	return nil
}
