// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/faye25tom/TGNexus/internal/chat"
	"github.com/faye25tom/TGNexus/internal/digest"
)

// Postgres is a [Store] backed by PostgreSQL.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to the database and creates the tables.
func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS config (
			section TEXT PRIMARY KEY,
			value JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS chat_history (
			id BIGSERIAL PRIMARY KEY,
			chat_id BIGINT NOT NULL,
			user_id BIGINT NOT NULL,
			username TEXT NOT NULL,
			message TEXT NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS chat_history_chat_id ON chat_history (chat_id, id);
		CREATE TABLE IF NOT EXISTS news_summary (
			id BIGSERIAL PRIMARY KEY,
			run_id TEXT NOT NULL,
			title TEXT NOT NULL,
			summary TEXT NOT NULL,
			source_url TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL
		);
	`); err != nil {
		pool.Close()
		return nil, err
	}

	return &Postgres{pool: pool}, nil
}

// Get returns the stored config section.
func (s *Postgres) Get(ctx context.Context, section string) ([]byte, error) {
	var data []byte
	if err := s.pool.QueryRow(ctx, `SELECT value FROM config WHERE section = $1;`, section).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

// Put replaces the config section.
func (s *Postgres) Put(ctx context.Context, section string, value []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO config (section, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (section) DO UPDATE
		SET value = $2, updated_at = NOW();
	`, section, string(value))
	return err
}

// Append records a chat message.
func (s *Postgres) Append(ctx context.Context, m chat.Message) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO chat_history (chat_id, user_id, username, message, timestamp)
		VALUES ($1, $2, $3, $4, $5);
	`, m.ChatID, m.SenderID, m.SenderName, m.Text, m.Time)
	return err
}

// Recent returns at most n latest messages of the chat, oldest first.
func (s *Postgres) Recent(ctx context.Context, chatID int64, n int) ([]chat.Message, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT chat_id, user_id, username, message, timestamp FROM chat_history
		WHERE chat_id = $1 ORDER BY id DESC LIMIT $2;
	`, chatID, n)
	if err != nil {
		return nil, err
	}
	msgs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (chat.Message, error) {
		var m chat.Message
		err := row.Scan(&m.ChatID, &m.SenderID, &m.SenderName, &m.Text, &m.Time)
		return m, err
	})
	if err != nil {
		return nil, err
	}
	return chronological(msgs), nil
}

// SaveDigest archives a digest and returns its ID.
func (s *Postgres) SaveDigest(ctx context.Context, r digest.Record) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO news_summary (run_id, title, summary, source_url, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id;
	`, r.RunID, r.Title, r.Summary, r.SourceURL, r.CreatedAt).Scan(&id)
	return id, err
}

// ListDigests returns at most limit archived digests, newest first.
func (s *Postgres) ListDigests(ctx context.Context, limit int) ([]digest.Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, run_id, title, summary, source_url, created_at FROM news_summary
		ORDER BY id DESC LIMIT $1;
	`, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (digest.Record, error) {
		var r digest.Record
		err := row.Scan(&r.ID, &r.RunID, &r.Title, &r.Summary, &r.SourceURL, &r.CreatedAt)
		return r, err
	})
}

// Close closes the connection pool.
func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}
