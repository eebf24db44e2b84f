// © 2024 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"testing"

	"github.com/faye25tom/TGNexus/internal/logger"
	"github.com/faye25tom/TGNexus/internal/testutil"
)

func TestListenAndServeConfig(t *testing.T) {
	cases := map[string]struct {
		c       *ListenAndServeConfig
		wantErr error
	}{
		"no Addr": {
			c:       &ListenAndServeConfig{Mux: http.NewServeMux()},
			wantErr: errNoAddr,
		},
		"nil Mux": {
			c:       &ListenAndServeConfig{Addr: ":3000"},
			wantErr: errNilMux,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			err := ListenAndServe(t.Context(), tc.c)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("got error %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestListenAndServe(t *testing.T) {
	port, err := getFreePort()
	if err != nil {
		t.Fatalf("Failed to find a free port: %v", err)
	}
	addr := fmt.Sprintf("localhost:%d", port)

	var wg sync.WaitGroup
	ready := make(chan struct{})
	errCh := make(chan error, 1)
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := ListenAndServe(ctx, &ListenAndServeConfig{
			Addr:       addr,
			Mux:        http.NewServeMux(),
			Logger:     logger.Discard(),
			Debuggable: true,
			DebugAuth:  func(r *http.Request) bool { return r.URL.Query().Get("key") == "secret" },
			Ready:      func() { close(ready) },
		}); err != nil {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		t.Fatalf("Test server crashed during startup: %v", err)
	case <-ready:
	}

	urls := []struct {
		url        string
		wantStatus int
	}{
		{url: "/health", wantStatus: http.StatusOK},
		{url: "/debug/", wantStatus: http.StatusNotFound},
		{url: "/debug/?key=secret", wantStatus: http.StatusOK},
	}
	for _, u := range urls {
		res, err := http.Get("http://" + addr + u.url)
		if err != nil {
			t.Fatal(err)
		}
		res.Body.Close()
		if res.StatusCode != u.wantStatus {
			t.Fatalf("GET %s: want status code %d, got %d", u.url, u.wantStatus, res.StatusCode)
		}
		testutil.AssertEqual(t, res.Header.Get("X-Content-Type-Options"), "nosniff")
	}

	cancel()
	wg.Wait()
	select {
	case err := <-errCh:
		t.Fatalf("Test server crashed during shutdown: %v", err)
	default:
	}
}

// getFreePort asks the kernel for a free open port that is ready to use.
// Copied from
// https://github.com/phayes/freeport/blob/74d24b5ae9f58fbe4057614465b11352f71cdbea/freeport.go.
func getFreePort() (port int, err error) {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
