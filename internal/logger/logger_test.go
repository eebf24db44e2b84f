package logger

import (
	"bytes"
	"context"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/faye25tom/TGNexus/internal/testutil"
)

func TestNew(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		verbose   bool
		wantDebug bool
	}{
		"quiet":   {verbose: false, wantDebug: false},
		"verbose": {verbose: true, wantDebug: true},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			s := NewStreamer(10)
			l := New(&buf, s, tc.verbose)
			l.Debug("debug record")
			l.Info("info record", "feed", "https://example.com/rss")

			testutil.AssertEqual(t, strings.Contains(buf.String(), "debug record"), tc.wantDebug)
			if !strings.Contains(buf.String(), "feed=https://example.com/rss") {
				t.Fatalf("attribute missing from %q", buf.String())
			}
			testutil.AssertEqual(t, len(s.Lines()), len(strings.Split(strings.TrimSpace(buf.String()), "\n")))
		})
	}
}

func TestStreamer(t *testing.T) {
	t.Parallel()

	s := NewStreamer(5)
	for i := 1; i <= 6; i++ {
		if _, err := fmt.Fprintf(s, "Line %d\n", i); err != nil {
			t.Fatal(err)
		}
	}

	lines := s.Lines()
	testutil.AssertEqual(t, len(lines), 5)
	testutil.AssertEqual(t, lines[0], "Line 2\n")
	testutil.AssertEqual(t, lines[4], "Line 6\n")

	stream, closeStream := s.Stream()
	defer closeStream()

	go s.Write([]byte("New line\n"))

	select {
	case line := <-stream:
		testutil.AssertEqual(t, line, "New line\n")
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for streamed line")
	}
}

func TestStreamerPartialLines(t *testing.T) {
	t.Parallel()

	s := NewStreamer(3)
	s.Write([]byte("hel"))
	testutil.AssertEqual(t, len(s.Lines()), 0)
	s.Write([]byte("lo\nwor"))
	testutil.AssertEqual(t, s.Lines(), []string{"hello\n"})
}

func TestStreamerServeHTTP(t *testing.T) {
	t.Parallel()

	s := NewStreamer(5)
	s.Write([]byte("old line\n"))

	ctx, cancel := context.WithTimeout(t.Context(), 100*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest("GET", "/debug/logs", nil).WithContext(ctx)
	req.Header.Set("Accept", "text/event-stream")
	w := httptest.NewRecorder()

	s.ServeHTTP(w, req)

	testutil.AssertEqual(t, w.Result().Header.Get("Content-Type"), "text/event-stream")
	if !strings.Contains(w.Body.String(), "event: logline\ndata: old line\n") {
		t.Fatalf("unexpected body: %q", w.Body.String())
	}
}
