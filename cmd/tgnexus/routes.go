// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/faye25tom/TGNexus/internal/config"
	"github.com/faye25tom/TGNexus/internal/digest"
	"github.com/faye25tom/TGNexus/internal/feed"
	"github.com/faye25tom/TGNexus/internal/scheduler"
	"github.com/faye25tom/TGNexus/internal/web"
)

const maxDigestsLimit = 100

func (e *engine) initRoutes() {
	e.mux = http.NewServeMux()

	e.mux.HandleFunc("POST /telegram", e.handleWebhook)

	admin := http.NewServeMux()
	admin.HandleFunc("POST /admin/digest", e.handleRunDigest)
	admin.HandleFunc("GET /admin/digests", e.handleListDigests)
	admin.HandleFunc("GET /admin/config", e.handleGetConfig)
	admin.HandleFunc("PUT /admin/config/{section}", e.handlePutConfig)
	admin.HandleFunc("POST /admin/gemini/test", e.handleGeminiTest)
	e.mux.Handle("/admin/", web.BearerAuth(e.adminToken, admin))

	health := web.Health(e.mux)
	health.RegisterFunc("scheduler", func() (status string, ok bool) {
		next := e.sched.Next()
		if next.IsZero() {
			return "digest is not scheduled", false
		}
		return "next digest at " + next.Format(time.RFC3339), true
	})
	health.RegisterFunc("digest", func() (status string, ok bool) {
		last := e.pipeline.LastRun()
		switch {
		case last.Finished.IsZero():
			return "no runs yet", true
		case last.Error != "":
			// A failed digest doesn't make the service unhealthy.
			return "last run failed: " + last.Error, true
		default:
			return "last run succeeded", true
		}
	})

	dbg := web.Debugger(e.mux)
	dbg.KVFunc("Next digest", func() any { return e.sched.Next() })
	dbg.KVFunc("Last digest run", func() any { return e.pipeline.LastRun() })
	dbg.Handle("logs", "Logs", e.logStream)
}

// authorized reports whether r carries the admin token.
func (e *engine) authorized(r *http.Request) bool {
	got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return e.adminToken != "" && ok && subtle.ConstantTimeCompare([]byte(got), []byte(e.adminToken)) == 1
}

func (e *engine) handleWebhook(w http.ResponseWriter, r *http.Request) {
	b := e.bot.Load()
	if b == nil || e.host == "" {
		web.RespondJSONError(w, r, web.ErrNotFound)
		return
	}
	b.HandleWebhook(w, r)
}

func (e *engine) handleRunDigest(w http.ResponseWriter, r *http.Request) {
	// The run continues if the client goes away.
	err := e.sched.TriggerNow(context.WithoutCancel(r.Context()))
	if errors.Is(err, digest.ErrNotConfigured) {
		err = fmt.Errorf("%w: %v", web.ErrConflict, err)
	}
	if err != nil {
		web.RespondJSONError(w, r, err)
		return
	}
	web.RespondJSON(w, e.pipeline.LastRun())
}

func (e *engine) handleListDigests(w http.ResponseWriter, r *http.Request) {
	limit := digestsLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			web.RespondJSONError(w, r, fmt.Errorf("%w: limit must be a positive number", web.ErrBadRequest))
			return
		}
		limit = min(n, maxDigestsLimit)
	}
	records, err := e.store.ListDigests(r.Context(), limit)
	if err != nil {
		web.RespondJSONError(w, r, err)
		return
	}
	if records == nil {
		records = []digest.Record{}
	}
	web.RespondJSON(w, records)
}

func (e *engine) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	web.RespondJSON(w, e.cfg.Snapshot(r.Context()).Masked())
}

func (e *engine) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	section := r.PathValue("section")
	v, err := config.NewSection(section)
	if err != nil {
		web.RespondJSONError(w, r, fmt.Errorf("%w: %v", web.ErrNotFound, err))
		return
	}
	if err := web.DecodeJSON(r, v); err != nil {
		web.RespondJSONError(w, r, err)
		return
	}
	keepMaskedSecrets(v, e.cfg.Snapshot(r.Context()))
	if err := validateSection(v); err != nil {
		web.RespondJSONError(w, r, fmt.Errorf("%w: %v", web.ErrBadRequest, err))
		return
	}
	if err := e.cfg.Put(r.Context(), section, v); err != nil {
		web.RespondJSONError(w, r, err)
		return
	}
	web.RespondJSON(w, e.cfg.Snapshot(r.Context()).Masked())
}

// keepMaskedSecrets restores secrets that were sent back the way
// GET /admin/config shows them.
func keepMaskedSecrets(v any, cur config.Snapshot) {
	masked := cur.Masked()
	switch s := v.(type) {
	case *config.Telegram:
		if s.BotToken != "" && s.BotToken == masked.Telegram.BotToken {
			s.BotToken = cur.Telegram.BotToken
		}
	case *config.Gemini:
		if s.APIKey != "" && s.APIKey == masked.Gemini.APIKey {
			s.APIKey = cur.Gemini.APIKey
		}
	}
}

// validateSection rejects values that would only fail later, at digest time.
func validateSection(v any) error {
	switch s := v.(type) {
	case *config.RSS:
		if _, _, err := scheduler.ParseTime(s.SummaryTime); err != nil {
			return err
		}
		for _, u := range s.Feeds {
			if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
				return fmt.Errorf("feed %q is not an HTTP URL", u)
			}
		}
	case *config.Rules:
		if _, err := feed.CompileRule(s.Keep); err != nil {
			return err
		}
	}
	return nil
}

type geminiTestResponse struct {
	Status string `json:"status"`
	Model  string `json:"model"`
}

func (e *engine) handleGeminiTest(w http.ResponseWriter, r *http.Request) {
	h := e.acquire(e.cfg.Snapshot(r.Context()).Gemini)
	if h == nil {
		web.RespondJSONError(w, r, fmt.Errorf("%w: Gemini API key is not configured", web.ErrConflict))
		return
	}
	defer e.release(h)
	if err := h.client.Ping(r.Context()); err != nil {
		web.RespondJSONError(w, r, fmt.Errorf("%w: %v", web.ErrServiceUnavailable, err))
		return
	}
	web.RespondJSON(w, geminiTestResponse{Status: "success", Model: h.client.Model()})
}
