// Package store is the local SQLite database: a ledger of submitted posts
// and a cache of discovered GraphQL query ids.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	_ "modernc.org/sqlite"

	"github.com/mikequentel/xcli/internal/model"
)

// DefaultPath is $XDG_DATA_HOME/xcli/history.db.
func DefaultPath() (string, error) {
	return xdg.DataFile("xcli/history.db")
}

type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates the database and schema if needed.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// one writer; the CLI is sequential anyway
	db.SetMaxOpenConns(1)

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating %s: %w", path, err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS posts (
		post_id   TEXT PRIMARY KEY,
		text      TEXT NOT NULL,
		reply_to  TEXT,
		quote_id  TEXT,
		thread_id TEXT,
		position  INTEGER NOT NULL DEFAULT 0,
		media_ids TEXT,
		posted_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS query_ids (
		operation  TEXT PRIMARY KEY,
		ids        TEXT NOT NULL,
		fetched_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_posts_posted_at ON posts(posted_at);
	CREATE INDEX IF NOT EXISTS idx_posts_thread ON posts(thread_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// RecordPost appends rec to the ledger. Recording the same id twice keeps
// the first row.
func (s *Store) RecordPost(ctx context.Context, rec model.PostRecord) error {
	mediaJSON, err := json.Marshal(rec.MediaIDs)
	if err != nil {
		return err
	}
	postedAt := rec.PostedAt
	if postedAt.IsZero() {
		postedAt = s.now()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO posts (post_id, text, reply_to, quote_id, thread_id, position, media_ids, posted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(post_id) DO NOTHING
	`, rec.PostID, rec.Text, rec.ReplyTo, rec.QuoteID, rec.ThreadID, rec.Position, string(mediaJSON), postedAt.Unix())
	return err
}

// RecentPosts returns up to limit ledger rows, newest first.
func (s *Store) RecentPosts(ctx context.Context, limit int) ([]model.PostRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT post_id, text, reply_to, quote_id, thread_id, position, media_ids, posted_at
		FROM posts
		ORDER BY posted_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.PostRecord
	for rows.Next() {
		var r model.PostRecord
		var replyTo, quoteID, threadID, mediaJSON sql.NullString
		var postedAt int64
		if err := rows.Scan(&r.PostID, &r.Text, &replyTo, &quoteID, &threadID, &r.Position, &mediaJSON, &postedAt); err != nil {
			return nil, err
		}
		r.ReplyTo = replyTo.String
		r.QuoteID = quoteID.String
		r.ThreadID = threadID.String
		if mediaJSON.Valid {
			json.Unmarshal([]byte(mediaJSON.String), &r.MediaIDs)
		}
		r.PostedAt = time.Unix(postedAt, 0).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// SaveQueryIDs replaces the cached ids for every operation in ids.
func (s *Store) SaveQueryIDs(ctx context.Context, ids map[string][]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := s.now().Unix()
	for op, list := range ids {
		raw, err := json.Marshal(list)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO query_ids (operation, ids, fetched_at) VALUES (?, ?, ?)
			ON CONFLICT(operation) DO UPDATE SET ids = excluded.ids, fetched_at = excluded.fetched_at
		`, op, string(raw), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// QueryIDs returns cached ids no older than maxAge. Stale rows are ignored.
func (s *Store) QueryIDs(ctx context.Context, maxAge time.Duration) (map[string][]string, error) {
	cutoff := s.now().Add(-maxAge).Unix()
	rows, err := s.db.QueryContext(ctx, `SELECT operation, ids FROM query_ids WHERE fetched_at >= ?`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var op, raw string
		if err := rows.Scan(&op, &raw); err != nil {
			return nil, err
		}
		var list []string
		if err := json.Unmarshal([]byte(raw), &list); err != nil {
			continue
		}
		out[op] = list
	}
	return out, rows.Err()
}
