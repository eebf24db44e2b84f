package web

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// get serves a GET request for path and checks the response code.
func get(t testing.TB, h http.Handler, path string, wantStatus int) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	if rec.Code != wantStatus {
		t.Fatalf("GET %s: want response code %d, got %d", path, wantStatus, rec.Code)
	}
	return rec.Body.String()
}
