// Copyright (c) 2021 Tailscale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file located at
// https://github.com/tailscale/tailscale/blob/main/LICENSE.

// Adapted from https://pkg.go.dev/tailscale.com/tsweb#Debugger.

package web

import (
	"cmp"
	"net/http"
	"net/http/pprof"
	"net/url"
	"os"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/faye25tom/TGNexus/internal/version"
)

// DebugHandler is an [http.Handler] that serves a JSON debugging "homepage",
// and provides helpers to register more debug endpoints and reports.
//
// Methods of DebugHandler can be safely called by multiple goroutines.
type DebugHandler struct {
	mux     *http.ServeMux // where this handler is registered
	mu      sync.RWMutex   // covers all fields below
	kvfuncs []kvfunc
	links   []Link
}

type kvfunc struct {
	k string
	v func() any
}

// Link is an entry of the debug index.
type Link struct {
	URL  string `json:"url"`
	Desc string `json:"desc"`
}

// DebugIndex is the response of the /debug/ endpoint.
type DebugIndex struct {
	Version version.Info   `json:"version"`
	Values  map[string]any `json:"values"`
	Links   []Link         `json:"links"`
}

// Debugger returns the [DebugHandler] registered on mux at /debug/, creating it
// if necessary.
func Debugger(mux *http.ServeMux) *DebugHandler {
	h, pat := mux.Handler(&http.Request{URL: &url.URL{Path: "/debug/"}})
	if d, ok := h.(*DebugHandler); ok && pat == "/debug/" {
		return d
	}
	ret := &DebugHandler{mux: mux}
	mux.Handle("/debug/", ret)

	if hostname, err := os.Hostname(); err == nil {
		ret.KV("Machine", hostname)
	}
	ret.KVFunc("Uptime", func() any { return time.Since(timeStart).Round(time.Second).String() })
	ret.KVFunc("Goroutines", func() any { return runtime.NumGoroutine() })
	ret.Handle("pprof/", "pprof", http.HandlerFunc(pprof.Index))
	mux.Handle("/debug/pprof/profile", http.HandlerFunc(pprof.Profile))

	return ret
}

var timeStart = time.Now()

// ServeHTTP implements the [http.Handler] interface.
func (d *DebugHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/debug/" {
		// Sub-handlers are handled by the parent mux directly.
		RespondJSONError(w, r, ErrNotFound)
		return
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	idx := DebugIndex{
		Version: version.Version(),
		Values:  make(map[string]any, len(d.kvfuncs)),
		Links:   d.links,
	}
	for _, kvf := range d.kvfuncs {
		idx.Values[kvf.k] = kvf.v()
	}
	RespondJSON(w, idx)
}

// Handle registers handler at /debug/<slug> and creates a descriptive entry in
// /debug/ for it.
func (d *DebugHandler) Handle(slug, desc string, handler http.Handler) {
	href := "/debug/" + slug
	d.mux.Handle(href, handler)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.links = append(d.links, Link{href, desc})
	slices.SortStableFunc(d.links, func(a, b Link) int {
		return cmp.Compare(a.Desc, b.Desc)
	})
}

// KV adds a key/value item to /debug/.
func (d *DebugHandler) KV(k string, v any) {
	d.KVFunc(k, func() any { return v })
}

// KVFunc adds a key/value item to /debug/. v is called on every request.
func (d *DebugHandler) KVFunc(k string, v func() any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.kvfuncs = append(d.kvfuncs, kvfunc{k, v})
}
