// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"context"

	"github.com/faye25tom/TGNexus/internal/config"
	"github.com/faye25tom/TGNexus/internal/generate"
)

// genHandle is a generation client shared by concurrent callers. Once
// replaced by a client for newer configuration, it is retired and its backend
// is closed by the last caller that still uses it.
type genHandle struct {
	client *generate.Client
	close  func() error // nil for the REST backend

	// guarded by engine.genMu
	refs    int
	retired bool
}

// generator is what Generator hands out. It resolves the client on every
// call, so callers never hold a client across a configuration change.
type generator struct {
	e *engine
	g config.Gemini
}

func (gen generator) Generate(ctx context.Context, prompt string, maxOutputTokens int) generate.Result {
	h := gen.e.acquire(gen.g)
	defer gen.e.release(h)
	return h.client.Generate(ctx, prompt, maxOutputTokens)
}

// Generator implements digest.Deps and trigger.Deps. Clients are reused
// while the configuration stays the same.
func (e *engine) Generator(g config.Gemini) generate.Generator {
	if g.APIKey == "" {
		return nil
	}
	return generator{e: e, g: g}
}

// acquire returns the client for g, replacing the current one if the
// configuration differs. Callers must release the handle. It returns nil
// without an API key.
func (e *engine) acquire(g config.Gemini) *genHandle {
	if g.APIKey == "" {
		return nil
	}

	e.genMu.Lock()
	defer e.genMu.Unlock()
	if e.gen == nil || e.genCfg != g {
		if e.gen != nil {
			e.retireLocked(e.gen)
		}
		e.gen, e.genCfg = e.newGenHandle(g), g
	}
	e.gen.refs++
	return e.gen
}

func (e *engine) release(h *genHandle) {
	if h == nil {
		return
	}
	e.genMu.Lock()
	defer e.genMu.Unlock()
	h.refs--
	if h.retired && h.refs == 0 {
		e.closeHandle(h)
	}
}

func (e *engine) retireLocked(h *genHandle) {
	h.retired = true
	if h.refs == 0 {
		e.closeHandle(h)
	}
}

// closeGenerator retires the current client on shutdown.
func (e *engine) closeGenerator() {
	e.genMu.Lock()
	defer e.genMu.Unlock()
	if e.gen != nil {
		e.retireLocked(e.gen)
		e.gen = nil
	}
}

func (e *engine) closeHandle(h *genHandle) {
	if h.close == nil {
		return
	}
	if err := h.close(); err != nil {
		e.slog.Warn("closing generation backend failed", "error", err)
	}
	h.close = nil
}

func (e *engine) newGenHandle(g config.Gemini) *genHandle {
	h := new(genHandle)

	var backend generate.Backend
	if g.Backend == backendSDK {
		newBackend := e.newSDKBackend
		if newBackend == nil {
			newBackend = func(ctx context.Context, apiKey string) (closingBackend, error) {
				return generate.NewSDKBackend(ctx, apiKey)
			}
		}
		b, err := newBackend(context.Background(), g.APIKey)
		if err != nil {
			e.slog.Error("SDK backend unavailable, using REST", "error", err)
		} else {
			backend, h.close = b, b.Close
		}
	}

	h.client = generate.New(generate.Config{
		APIKey:     g.APIKey,
		Model:      g.Model,
		Backend:    backend,
		HTTPClient: e.httpc,
		Timeout:    e.timeout,
		Scrubber:   e.scrubber(g.APIKey),
		Logger:     e.slog.With("component", "generate"),
	})
	return h
}

// closingBackend is a generation backend holding a connection.
type closingBackend interface {
	generate.Backend
	Close() error
}
