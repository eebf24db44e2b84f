// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package store

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/faye25tom/TGNexus/internal/chat"
	"github.com/faye25tom/TGNexus/internal/digest"
	"github.com/faye25tom/TGNexus/internal/testutil"
)

func TestMem(t *testing.T) {
	testStore(t, NewMem())
}

func TestSQLite(t *testing.T) {
	s, err := OpenSQLite(t.Context(), filepath.Join(t.TempDir(), "data", "bot.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	testStore(t, s)
}

func TestSQLiteReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.db")
	s, err := OpenSQLite(t.Context(), path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Put(t.Context(), "rss", []byte(`{"feeds":[]}`)); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = OpenSQLite(t.Context(), path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	got, err := s.Get(t.Context(), "rss")
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, string(got), `{"feeds":[]}`)
}

func TestPostgres(t *testing.T) {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		t.Skip("DATABASE_URL is not set")
	}

	s, err := NewPostgres(t.Context(), databaseURL)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	// Clean up the tables before running the test.
	if _, err := s.pool.Exec(t.Context(), "TRUNCATE config, chat_history, news_summary"); err != nil {
		t.Fatal(err)
	}

	testStore(t, s)
}

func TestOpen(t *testing.T) {
	s, err := Open(t.Context(), ":memory:", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*Mem); !ok {
		t.Fatalf("got %T, want *Mem", s)
	}

	s, err = Open(t.Context(), filepath.Join(t.TempDir(), "bot.db"), "")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if _, ok := s.(*SQLite); !ok {
		t.Fatalf("got %T, want *SQLite", s)
	}
}

func testStore(t *testing.T, s Store) {
	ctx := t.Context()

	t.Run("config", func(t *testing.T) {
		v, err := s.Get(ctx, "telegram")
		if err != nil {
			t.Fatal(err)
		}
		if v != nil {
			t.Fatalf("absent section: got %q, want nil", v)
		}

		for _, val := range []string{`{"chat_id":"1"}`, `{"chat_id":"2"}`} {
			if err := s.Put(ctx, "telegram", []byte(val)); err != nil {
				t.Fatal(err)
			}
		}
		v, err = s.Get(ctx, "telegram")
		if err != nil {
			t.Fatal(err)
		}
		// Postgres normalizes JSONB, so compare decoded values.
		testutil.AssertEqual(t,
			testutil.UnmarshalJSON[map[string]string](t, v),
			map[string]string{"chat_id": "2"},
		)
	})

	t.Run("history", func(t *testing.T) {
		base := time.Date(2024, time.March, 5, 12, 0, 0, 0, time.UTC)
		for i := range 7 {
			if err := s.Append(ctx, chat.Message{
				ChatID:     100,
				SenderID:   int64(i),
				SenderName: fmt.Sprintf("user%d", i),
				Text:       fmt.Sprintf("message %d", i),
				Time:       base.Add(time.Duration(i) * time.Minute),
			}); err != nil {
				t.Fatal(err)
			}
		}
		if err := s.Append(ctx, chat.Message{ChatID: 200, SenderName: "other", Text: "elsewhere", Time: base}); err != nil {
			t.Fatal(err)
		}

		msgs, err := s.Recent(ctx, 100, 5)
		if err != nil {
			t.Fatal(err)
		}
		var texts []string
		for _, m := range msgs {
			texts = append(texts, m.Text)
		}
		testutil.AssertEqual(t, texts, []string{"message 2", "message 3", "message 4", "message 5", "message 6"})
		testutil.AssertEqual(t, msgs[0].SenderName, "user2")
		testutil.AssertEqual(t, msgs[0].SenderID, int64(2))
		if !msgs[4].Time.Equal(base.Add(6 * time.Minute)) {
			t.Fatalf("got time %v, want %v", msgs[4].Time, base.Add(6*time.Minute))
		}

		msgs, err = s.Recent(ctx, 200, 5)
		if err != nil {
			t.Fatal(err)
		}
		testutil.AssertEqual(t, len(msgs), 1)

		msgs, err = s.Recent(ctx, 300, 5)
		if err != nil {
			t.Fatal(err)
		}
		testutil.AssertEqual(t, len(msgs), 0)
	})

	t.Run("digests", func(t *testing.T) {
		created := time.Date(2024, time.March, 5, 9, 0, 0, 0, time.UTC)
		var ids []int64
		for i := range 3 {
			id, err := s.SaveDigest(ctx, digest.Record{
				RunID:     fmt.Sprintf("run-%d", i),
				Title:     "Daily digest - 2024-03-05",
				Summary:   fmt.Sprintf("summary %d", i),
				CreatedAt: created,
			})
			if err != nil {
				t.Fatal(err)
			}
			ids = append(ids, id)
		}
		if !(ids[0] < ids[1] && ids[1] < ids[2]) {
			t.Fatalf("ids are not increasing: %v", ids)
		}

		records, err := s.ListDigests(ctx, 2)
		if err != nil {
			t.Fatal(err)
		}
		testutil.AssertEqual(t, len(records), 2)
		testutil.AssertEqual(t, records[0].ID, ids[2])
		testutil.AssertEqual(t, records[0].RunID, "run-2")
		testutil.AssertEqual(t, records[1].Summary, "summary 1")
		if !records[0].CreatedAt.Equal(created) {
			t.Fatalf("got created_at %v, want %v", records[0].CreatedAt, created)
		}
	})
}
