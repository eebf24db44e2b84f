// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package httplogger provides a http.RoundTripper middleware that logs
// outgoing HTTP requests at debug level.
package httplogger

import (
	"log/slog"
	"net/http"
	"time"
)

// New returns a http.RoundTripper that logs every request made through t.
// If t is nil, http.DefaultTransport is used. Request URLs and errors are
// passed through scrub, if it's not nil, since some APIs carry credentials in
// the path.
func New(t http.RoundTripper, logger *slog.Logger, scrub func(string) string) http.RoundTripper {
	if t == nil {
		t = http.DefaultTransport
	}
	if logger == nil {
		logger = slog.Default()
	}
	if scrub == nil {
		scrub = func(s string) string { return s }
	}
	return &loggingTransport{transport: t, slog: logger, scrub: scrub}
}

type loggingTransport struct {
	transport http.RoundTripper
	slog      *slog.Logger
	scrub     func(string) string
}

func (t *loggingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.transport.RoundTrip(r)

	attrs := []any{
		"method", r.Method,
		"url", t.scrub(r.URL.String()),
		"duration", time.Since(start).Round(time.Millisecond),
	}
	if resp != nil {
		attrs = append(attrs, "status", resp.StatusCode)
	}
	if err != nil {
		attrs = append(attrs, "error", t.scrub(err.Error()))
	}
	t.slog.DebugContext(r.Context(), "http request", attrs...)

	return resp, err
}
