// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package store persists configuration, chat history and archived digests in
// SQLite, PostgreSQL or memory.
package store

import (
	"context"
	"slices"

	"github.com/faye25tom/TGNexus/internal/chat"
	"github.com/faye25tom/TGNexus/internal/config"
	"github.com/faye25tom/TGNexus/internal/digest"
)

// Store is implemented by every backend.
type Store interface {
	config.Store
	chat.History
	digest.Archive
	// Close closes the store and releases any resources.
	Close() error
}

var (
	_ Store = (*SQLite)(nil)
	_ Store = (*Postgres)(nil)
	_ Store = (*Mem)(nil)
)

// Open opens the store selected by its arguments: PostgreSQL if databaseURL
// is set, memory if path is ":memory:", and the SQLite database at path
// otherwise.
func Open(ctx context.Context, path, databaseURL string) (Store, error) {
	switch {
	case databaseURL != "":
		return NewPostgres(ctx, databaseURL)
	case path == ":memory:":
		return NewMem(), nil
	default:
		return OpenSQLite(ctx, path)
	}
}

// chronological reverses rows selected newest first, so the oldest message
// comes first.
func chronological(msgs []chat.Message) []chat.Message {
	slices.Reverse(msgs)
	return msgs
}
