package request_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/faye25tom/TGNexus/internal/request"
	"github.com/faye25tom/TGNexus/internal/testutil"
)

func TestMake(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/test" {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		if r.Header.Get("Content-Type") != "application/json" {
			http.Error(w, "missing request body", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"message": "success"}`))
	}))
	t.Cleanup(ts.Close)

	cases := map[string]struct {
		params     request.Params
		want       string
		wantErr    bool
		wantStatus int
		notInErr   string
	}{
		"successful request": {
			params: request.Params{
				Method: http.MethodPost,
				URL:    ts.URL + "/test",
				Body:   map[string]string{"key": "value"},
			},
			want: `{"message": "success"}`,
		},
		"successful request with headers": {
			params: request.Params{
				Method: http.MethodPost,
				URL:    ts.URL + "/test",
				Headers: map[string]string{
					"X-Test": "test",
				},
				Body: map[string]string{"key": "value"},
			},
			want: `{"message": "success"}`,
		},
		"custom HTTP client": {
			params: request.Params{
				Method:     http.MethodPost,
				URL:        ts.URL + "/test",
				HTTPClient: &http.Client{},
				Body:       map[string]string{"key": "value"},
			},
			want: `{"message": "success"}`,
		},
		"invalid request method": {
			params: request.Params{
				Method: http.MethodGet,
				URL:    ts.URL + "/test",
			},
			wantErr:    true,
			wantStatus: http.StatusBadRequest,
		},
		"invalid value for JSON": {
			params: request.Params{
				Method: http.MethodPost,
				URL:    ts.URL + "/test",
				Body:   make(chan int),
			},
			wantErr: true,
		},
		"scrubbed token": {
			params: request.Params{
				Method:   http.MethodPost,
				URL:      ts.URL + "/invalid/hello",
				Body:     map[string]string{"key": "value"},
				Scrubber: strings.NewReplacer("hello", "[EXPUNGED]"),
			},
			wantErr:    true,
			wantStatus: http.StatusBadRequest,
			notInErr:   "hello",
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			resp, err := request.Make[json.RawMessage](t.Context(), tc.params)
			if err != nil {
				if !tc.wantErr {
					t.Fatalf("Make() error = %v, wantErr %v", err, tc.wantErr)
				}
				if tc.wantStatus != 0 {
					var se *request.StatusError
					if !errors.As(err, &se) {
						t.Fatalf("Make() error %v is not a *StatusError", err)
					}
					testutil.AssertEqual(t, se.StatusCode, tc.wantStatus)
				}
				if tc.notInErr != "" && strings.Contains(err.Error(), tc.notInErr) {
					t.Fatalf("error %q contains %q", err, tc.notInErr)
				}
				return
			}
			if tc.wantErr {
				t.Fatal("Make() expected error, got none")
			}
			testutil.AssertEqual(t, string(resp), tc.want)
		})
	}
}

func TestMakeIgnoreResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not JSON at all"))
	}))
	t.Cleanup(ts.Close)

	_, err := request.Make[request.IgnoreResponse](t.Context(), request.Params{
		Method: http.MethodGet,
		URL:    ts.URL,
	})
	if err != nil {
		t.Fatalf("Make() with IgnoreResponse failed: %v", err)
	}
}

func TestUserAgentHeader(t *testing.T) {
	var got string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
		w.Write([]byte(`{}`))
	}))
	t.Cleanup(ts.Close)

	if _, err := request.Make[map[string]any](t.Context(), request.Params{
		Method: http.MethodGet,
		URL:    ts.URL,
	}); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(got, "TGNexus/") {
		t.Fatalf("User-Agent = %q, want TGNexus/ prefix", got)
	}
}
