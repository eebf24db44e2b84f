// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/faye25tom/TGNexus/internal/chat"
	"github.com/faye25tom/TGNexus/internal/digest"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS config (
	section TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS chat_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	chat_id INTEGER NOT NULL,
	user_id INTEGER NOT NULL,
	username TEXT NOT NULL,
	message TEXT NOT NULL,
	timestamp INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS chat_history_chat_id ON chat_history (chat_id, id);
CREATE TABLE IF NOT EXISTS news_summary (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	title TEXT NOT NULL,
	summary TEXT NOT NULL,
	source_url TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
`

// SQLite is a [Store] backed by a SQLite database file.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens the SQLite database at path, creating it and its parent
// directory if needed.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Get returns the stored config section.
func (s *SQLite) Get(ctx context.Context, section string) ([]byte, error) {
	var value string
	if err := s.db.QueryRowContext(ctx, `SELECT value FROM config WHERE section = ?;`, section).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return []byte(value), nil
}

// Put replaces the config section.
func (s *SQLite) Put(ctx context.Context, section string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO config (section, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (section) DO UPDATE
		SET value = excluded.value, updated_at = excluded.updated_at;
	`, section, string(value), time.Now().Unix())
	return err
}

// Append records a chat message.
func (s *SQLite) Append(ctx context.Context, m chat.Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_history (chat_id, user_id, username, message, timestamp)
		VALUES (?, ?, ?, ?, ?);
	`, m.ChatID, m.SenderID, m.SenderName, m.Text, m.Time.Unix())
	return err
}

// Recent returns at most n latest messages of the chat, oldest first.
func (s *SQLite) Recent(ctx context.Context, chatID int64, n int) ([]chat.Message, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT chat_id, user_id, username, message, timestamp FROM chat_history
		WHERE chat_id = ? ORDER BY id DESC LIMIT ?;
	`, chatID, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []chat.Message
	for rows.Next() {
		var (
			m  chat.Message
			ts int64
		)
		if err := rows.Scan(&m.ChatID, &m.SenderID, &m.SenderName, &m.Text, &ts); err != nil {
			return nil, err
		}
		m.Time = time.Unix(ts, 0)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return chronological(msgs), nil
}

// SaveDigest archives a digest and returns its ID.
func (s *SQLite) SaveDigest(ctx context.Context, r digest.Record) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO news_summary (run_id, title, summary, source_url, created_at)
		VALUES (?, ?, ?, ?, ?);
	`, r.RunID, r.Title, r.Summary, r.SourceURL, r.CreatedAt.Unix())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListDigests returns at most limit archived digests, newest first.
func (s *SQLite) ListDigests(ctx context.Context, limit int) ([]digest.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, title, summary, source_url, created_at FROM news_summary
		ORDER BY id DESC LIMIT ?;
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []digest.Record
	for rows.Next() {
		var (
			r  digest.Record
			ts int64
		)
		if err := rows.Scan(&r.ID, &r.RunID, &r.Title, &r.Summary, &r.SourceURL, &ts); err != nil {
			return nil, err
		}
		r.CreatedAt = time.Unix(ts, 0)
		records = append(records, r)
	}
	return records, rows.Err()
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
