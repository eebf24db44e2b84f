// © 2024 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package web

import (
	"net/http"
	"testing"

	"github.com/faye25tom/TGNexus/internal/testutil"
)

func constCheck(status string, ok bool) HealthFunc {
	return func() (string, bool) { return status, ok }
}

func TestHealthHandler(t *testing.T) {
	cases := map[string]struct {
		checks     map[string]HealthFunc
		wantStatus int
		want       HealthResponse
	}{
		"no checks": {
			wantStatus: http.StatusOK,
			want:       HealthResponse{OK: true, Checks: map[string]CheckResponse{}},
		},
		"digest scheduled": {
			checks: map[string]HealthFunc{
				"scheduler": constCheck("next digest at 2024-03-05T09:00:00Z", true),
				"digest":    constCheck("no runs yet", true),
			},
			wantStatus: http.StatusOK,
			want: HealthResponse{OK: true, Checks: map[string]CheckResponse{
				"scheduler": {Status: "next digest at 2024-03-05T09:00:00Z", OK: true},
				"digest":    {Status: "no runs yet", OK: true},
			}},
		},
		"digest not scheduled": {
			checks: map[string]HealthFunc{
				"scheduler": constCheck("digest is not scheduled", false),
				"digest":    constCheck("last run succeeded", true),
			},
			wantStatus: http.StatusServiceUnavailable,
			want: HealthResponse{OK: false, Checks: map[string]CheckResponse{
				"scheduler": {Status: "digest is not scheduled", OK: false},
				"digest":    {Status: "last run succeeded", OK: true},
			}},
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			mux := http.NewServeMux()
			h := Health(mux)
			for name, f := range tc.checks {
				h.RegisterFunc(name, f)
			}

			got := testutil.UnmarshalJSON[HealthResponse](t, []byte(get(t, mux, "/health", tc.wantStatus)))
			testutil.AssertEqual(t, got, tc.want)
		})
	}
}

func TestHealthReturnsRegisteredHandler(t *testing.T) {
	mux := http.NewServeMux()
	Health(mux).RegisterFunc("scheduler", constCheck("digest is not scheduled", false))

	// Checks registered through a second lookup end up on the same page.
	Health(mux).RegisterFunc("digest", constCheck("no runs yet", true))
	got := testutil.UnmarshalJSON[HealthResponse](t, []byte(get(t, mux, "/health", http.StatusServiceUnavailable)))
	testutil.AssertEqual(t, len(got.Checks), 2)
}

func TestHealthHandlerRegisterFuncDuplicate(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("RegisterFunc did not panic when using an already existing name")
		}
	}()

	h := Health(http.NewServeMux())
	h.RegisterFunc("digest", constCheck("no runs yet", true))
	h.RegisterFunc("digest", constCheck("last run succeeded", true))
}
