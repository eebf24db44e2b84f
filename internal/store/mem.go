// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package store

import (
	"context"
	"slices"

	"github.com/faye25tom/TGNexus/internal/chat"
	"github.com/faye25tom/TGNexus/internal/digest"
	"github.com/faye25tom/TGNexus/internal/syncx"
)

// Mem is an in-memory [Store]. Nothing survives a restart.
type Mem struct {
	data *syncx.Protected[*memData]
}

type memData struct {
	config  map[string][]byte
	history []chat.Message
	digests []digest.Record
}

// NewMem returns an empty Mem.
func NewMem() *Mem {
	return &Mem{data: syncx.Protect(&memData{config: make(map[string][]byte)})}
}

// Get returns the stored config section.
func (s *Mem) Get(_ context.Context, section string) (value []byte, err error) {
	s.data.RAccess(func(d *memData) {
		if v, ok := d.config[section]; ok {
			// Return a copy to prevent the caller from mutating the store.
			value = slices.Clone(v)
		}
	})
	return value, nil
}

// Put replaces the config section.
func (s *Mem) Put(_ context.Context, section string, value []byte) error {
	s.data.Access(func(d *memData) {
		d.config[section] = slices.Clone(value)
	})
	return nil
}

// Append records a chat message.
func (s *Mem) Append(_ context.Context, m chat.Message) error {
	s.data.Access(func(d *memData) {
		d.history = append(d.history, m)
	})
	return nil
}

// Recent returns at most n latest messages of the chat, oldest first.
func (s *Mem) Recent(_ context.Context, chatID int64, n int) (msgs []chat.Message, err error) {
	if n <= 0 {
		return nil, nil
	}
	s.data.RAccess(func(d *memData) {
		for i := len(d.history) - 1; i >= 0 && len(msgs) < n; i-- {
			if d.history[i].ChatID == chatID {
				msgs = append(msgs, d.history[i])
			}
		}
	})
	return chronological(msgs), nil
}

// SaveDigest archives a digest and returns its ID.
func (s *Mem) SaveDigest(_ context.Context, r digest.Record) (id int64, err error) {
	s.data.Access(func(d *memData) {
		r.ID = int64(len(d.digests) + 1)
		d.digests = append(d.digests, r)
		id = r.ID
	})
	return id, nil
}

// ListDigests returns at most limit archived digests, newest first.
func (s *Mem) ListDigests(_ context.Context, limit int) (records []digest.Record, err error) {
	s.data.RAccess(func(d *memData) {
		for i := len(d.digests) - 1; i >= 0 && len(records) < limit; i-- {
			records = append(records, d.digests[i])
		}
	})
	return records, nil
}

// Close is a no-op for Mem.
func (s *Mem) Close() error {
	return nil
}
