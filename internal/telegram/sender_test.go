// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/faye25tom/TGNexus/internal/logger"
	"github.com/faye25tom/TGNexus/internal/request"
	"github.com/faye25tom/TGNexus/internal/testutil"
)

func TestSplitMessage(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		in   string
		want []string
	}{
		"empty":             {in: "  \n", want: nil},
		"short":             {in: "hello", want: []string{"hello"}},
		"exact":             {in: strings.Repeat("a", 4096), want: []string{strings.Repeat("a", 4096)}},
		"long (no newline)": {in: strings.Repeat("a", 4100), want: []string{strings.Repeat("a", 4096), "aaaa"}},
		"long (single line with spaces)": {
			in:   strings.Repeat("a", 3000) + " " + strings.Repeat("b", 1500),
			want: []string{strings.Repeat("a", 3000), strings.Repeat("b", 1500)},
		},
		"long (newline split)": {
			in:   strings.Repeat("a", 4000) + "\n" + strings.Repeat("b", 100),
			want: []string{strings.Repeat("a", 4000), strings.Repeat("b", 100)},
		},
		"multi-byte unicode": {
			in:   strings.Repeat("新", 4095) + "\n" + "闻",
			want: []string{strings.Repeat("新", 4095), "闻"},
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got := splitMessage(tc.in)
			testutil.AssertEqual(t, got, tc.want)
		})
	}
}

func TestSplitMessageNewlineRich(t *testing.T) {
	t.Parallel()

	in := strings.Repeat("line\n", 900)
	got := splitMessage(in)
	if len(got) < 2 {
		t.Fatalf("want at least 2 chunks, got %d", len(got))
	}
	for i, chunk := range got {
		if strings.TrimSpace(chunk) == "" {
			t.Fatalf("chunk %d is empty or whitespace only", i)
		}
		if utf8.RuneCountInString(chunk) > MaxMessageLen {
			t.Fatalf("chunk %d exceeds rune cap: %d", i, utf8.RuneCountInString(chunk))
		}
	}

	joined := strings.Join(got, "\n")
	testutil.AssertEqual(t, joined, strings.TrimSpace(in))
}

func TestFormatDigest(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, time.March, 5, 9, 0, 0, 0, time.UTC)
	const footer = "\n\n_Updated: 2024-03-05 09:00_"

	t.Run("short", func(t *testing.T) {
		got := FormatDigest("Stocks rose.", now)
		testutil.AssertEqual(t, got, digestHeader+"Stocks rose."+footer)
	})

	for name, unit := range map[string]string{"ascii": "a", "cjk": "新", "emoji": "📰"} {
		t.Run("truncated "+name, func(t *testing.T) {
			got := FormatDigest(strings.Repeat(unit, 5000), now)
			testutil.AssertEqual(t, utf8.RuneCountInString(got), MaxMessageLen)
			if !strings.HasPrefix(got, digestHeader) {
				t.Fatalf("header missing: %q", got[:40])
			}
			body, ok := strings.CutSuffix(got, footer)
			if !ok {
				t.Fatal("footer missing")
			}
			if !strings.HasSuffix(body, "...") {
				t.Fatal("truncated body must end with ...")
			}
		})
	}

	t.Run("exactly fits", func(t *testing.T) {
		budget := MaxMessageLen - utf8.RuneCountInString(digestHeader) - utf8.RuneCountInString(footer)
		summary := strings.Repeat("b", budget)
		got := FormatDigest(summary, now)
		testutil.AssertEqual(t, got, digestHeader+summary+footer)
	})
}

func TestSendRateLimitRetry(t *testing.T) {
	t.Parallel()

	s := New(Config{ChatID: "chat", Token: "token", Logger: logger.Discard()})
	var calls int
	s.makeRequest = func(context.Context, string, any) error {
		calls++
		if calls == 1 {
			return &request.StatusError{StatusCode: 429, Body: []byte(`{"parameters":{"retry_after":1}}`)}
		}
		return nil
	}
	var waits []time.Duration
	s.sleep = func(_ context.Context, d time.Duration) bool {
		waits = append(waits, d)
		return true
	}

	err := s.Send(t.Context(), "hello")
	testutil.AssertEqual(t, err, nil)
	testutil.AssertEqual(t, calls, 2)
	testutil.AssertEqual(t, waits, []time.Duration{time.Second})
}

func TestSendRateLimitGivesUp(t *testing.T) {
	t.Parallel()

	s := New(Config{ChatID: "chat", Token: "token", Logger: logger.Discard()})
	var calls int
	s.makeRequest = func(context.Context, string, any) error {
		calls++
		return &request.StatusError{StatusCode: 429, Body: []byte(`{"parameters":{"retry_after":1}}`)}
	}
	s.sleep = func(context.Context, time.Duration) bool { return true }

	if err := s.Send(t.Context(), "hello"); err == nil {
		t.Fatal("want error after exhausting retries")
	}
	testutil.AssertEqual(t, calls, sendRetryLimit)
}

func TestSendNonRetryableError(t *testing.T) {
	t.Parallel()

	s := New(Config{ChatID: "chat", Token: "token", Logger: logger.Discard()})
	wantErr := errors.New("boom")
	s.makeRequest = func(context.Context, string, any) error { return wantErr }
	s.sleep = func(context.Context, time.Duration) bool {
		t.Fatal("sleep should not be called for non-retryable errors")
		return false
	}

	err := s.Send(t.Context(), "hello")
	if !errors.Is(err, wantErr) {
		t.Fatalf("Send() error = %v, want %v", err, wantErr)
	}
}

func TestSendNotConfigured(t *testing.T) {
	t.Parallel()

	for name, cfg := range map[string]Config{
		"no chat":  {Token: "token"},
		"no token": {ChatID: "chat"},
	} {
		t.Run(name, func(t *testing.T) {
			cfg.Logger = logger.Discard()
			s := New(cfg)
			s.makeRequest = func(context.Context, string, any) error {
				t.Fatal("no request must be made")
				return nil
			}
			testutil.AssertEqual(t, s.Send(t.Context(), "hello"), nil)
			testutil.AssertEqual(t, s.SendDigest(t.Context(), "digest"), nil)
		})
	}
}

func TestIsRateLimited(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		err      error
		retry    bool
		waitTime time.Duration
	}{
		"rate-limited": {
			err:      &request.StatusError{StatusCode: 429, Body: []byte(`{"parameters":{"retry_after":3}}`)},
			retry:    true,
			waitTime: 3 * time.Second,
		},
		"wrapped": {
			err:      fmt.Errorf("sending: %w", &request.StatusError{StatusCode: 429, Body: []byte(`{"parameters":{"retry_after":2}}`)}),
			retry:    true,
			waitTime: 2 * time.Second,
		},
		"bad body": {
			err:   &request.StatusError{StatusCode: 429, Body: []byte(`oops`)},
			retry: false,
		},
		"other status": {
			err:   &request.StatusError{StatusCode: 500, Body: []byte(`{}`)},
			retry: false,
		},
		"other error": {
			err:   fmt.Errorf("network"),
			retry: false,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			retry, wait := isRateLimited(tc.err)
			testutil.AssertEqual(t, retry, tc.retry)
			testutil.AssertEqual(t, wait, tc.waitTime)
		})
	}
}

// fakeAPI records Bot API calls and serves canned results.
type fakeAPI struct {
	mu      sync.Mutex
	calls   []apiCall
	results map[string]string
}

type apiCall struct {
	Method string
	Body   map[string]any
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, "/bottoken/") {
		http.Error(w, `{"ok":false,"description":"Unauthorized"}`, http.StatusUnauthorized)
		return
	}
	method := strings.TrimPrefix(r.URL.Path, "/bottoken/")
	b, _ := io.ReadAll(r.Body)
	var body map[string]any
	json.Unmarshal(b, &body)

	f.mu.Lock()
	f.calls = append(f.calls, apiCall{Method: method, Body: body})
	result, ok := f.results[method]
	f.mu.Unlock()
	if !ok {
		result = "true"
	}
	fmt.Fprintf(w, `{"ok":true,"result":%s}`, result)
}

func (f *fakeAPI) sent() []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []apiCall
	for _, c := range f.calls {
		if c.Method == "sendMessage" {
			out = append(out, c)
		}
	}
	return out
}

func newTestSender(t *testing.T, f *fakeAPI, chatID string) *Sender {
	t.Helper()
	return New(Config{
		ChatID:     chatID,
		Token:      "token",
		HTTPClient: testutil.MockHTTPClient(f),
		Logger:     logger.Discard(),
		BaseURL:    "https://telegram.test",
	})
}

func TestSendOverHTTP(t *testing.T) {
	t.Parallel()

	f := &fakeAPI{}
	s := newTestSender(t, f, "-100")
	if err := s.Send(t.Context(), "**Hello** world"); err != nil {
		t.Fatal(err)
	}
	if err := s.Reply(t.Context(), 42, "hi"); err != nil {
		t.Fatal(err)
	}

	sent := f.sent()
	testutil.AssertEqual(t, len(sent), 2)
	testutil.AssertEqual(t, sent[0].Body["chat_id"], "-100")
	testutil.AssertEqual(t, sent[0].Body["text"], "Hello world")
	testutil.AssertEqual(t, sent[0].Body["entities"], []any{
		map[string]any{"type": "bold", "offset": float64(0), "length": float64(5)},
	})
	testutil.AssertEqual(t, sent[1].Body["chat_id"], "42")
}

func TestSendLongMessageSplit(t *testing.T) {
	t.Parallel()

	f := &fakeAPI{}
	s := newTestSender(t, f, "-100")
	text := strings.Repeat("word ", 1000) + "\n" + strings.Repeat("more ", 1000)
	if err := s.Send(t.Context(), text); err != nil {
		t.Fatal(err)
	}
	sent := f.sent()
	if len(sent) < 2 {
		t.Fatalf("got %d messages, want at least 2", len(sent))
	}
	for _, c := range sent {
		if n := utf8.RuneCountInString(c.Body["text"].(string)); n > MaxMessageLen {
			t.Fatalf("message of %d characters", n)
		}
	}
}

func TestGetMe(t *testing.T) {
	t.Parallel()

	f := &fakeAPI{results: map[string]string{
		"getMe": `{"id":1,"is_bot":true,"first_name":"Nexus","username":"nexus_bot"}`,
	}}
	s := newTestSender(t, f, "")
	me, err := s.GetMe(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, me, User{ID: 1, IsBot: true, FirstName: "Nexus", Username: "nexus_bot"})
}

func TestSetWebhook(t *testing.T) {
	t.Parallel()

	f := &fakeAPI{}
	s := newTestSender(t, f, "")
	if err := s.SetWebhook(t.Context(), "https://bot.example.com/telegram", "s3cret"); err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, f.calls[0].Method, "setWebhook")
	testutil.AssertEqual(t, f.calls[0].Body["url"], "https://bot.example.com/telegram")
	testutil.AssertEqual(t, f.calls[0].Body["secret_token"], "s3cret")
}

func TestAPIError(t *testing.T) {
	t.Parallel()

	s := New(Config{
		Token: "token",
		HTTPClient: testutil.MockHTTPClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"ok":false,"description":"Bad Request: chat not found"}`)
		})),
		Logger: logger.Discard(),
	})
	err := s.Reply(t.Context(), 1, "hi")
	if err == nil || !strings.Contains(err.Error(), "chat not found") {
		t.Fatalf("got %v, want chat not found error", err)
	}
}

func TestTokenScrubbed(t *testing.T) {
	t.Parallel()

	const token = "123456:SECRET"
	s := New(Config{
		ChatID:   "1",
		Token:    token,
		Scrubber: strings.NewReplacer(token, "[TOKEN]"),
		HTTPClient: testutil.MockHTTPClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", http.StatusInternalServerError)
		})),
		Logger: logger.Discard(),
	})
	err := s.Send(t.Context(), "hi")
	if err == nil {
		t.Fatal("want error")
	}
	if strings.Contains(err.Error(), token) {
		t.Fatalf("token leaked in %q", err)
	}
}
