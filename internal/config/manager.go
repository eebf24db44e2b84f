package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"sync"
)

// Manager reads and updates configuration kept in a [Store].
type Manager struct {
	store Store
	slog  *slog.Logger

	mu   sync.Mutex
	subs []func(ctx context.Context, section string)
}

// NewManager returns a new Manager. If logger is nil, slog.Default is used.
func NewManager(store Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: store, slog: logger}
}

// Snapshot loads every section. Absent sections get their defaults; a
// section that can't be loaded is logged and gets its defaults too, so a
// Snapshot is always usable.
func (m *Manager) Snapshot(ctx context.Context) Snapshot {
	s := Defaults()
	for _, name := range Sections() {
		if err := m.load(ctx, name, sections[name](&s)); err != nil {
			m.slog.Error("loading config section failed, using defaults", "section", name, "error", err)
		}
	}
	return s
}

func (m *Manager) load(ctx context.Context, name string, v any) error {
	raw, err := m.store.Get(ctx, name)
	if err != nil {
		return err
	}
	if raw == nil {
		return nil
	}
	// Decode into a fresh default so a broken document doesn't leave v
	// half-updated.
	fresh, _ := NewSection(name)
	if err := json.Unmarshal(raw, fresh); err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

// Put replaces the named section with v, which must be a pointer to the
// section type as returned by [NewSection], and notifies subscribers.
func (m *Manager) Put(ctx context.Context, section string, v any) error {
	want, err := NewSection(section)
	if err != nil {
		return err
	}
	if reflect.TypeOf(want) != reflect.TypeOf(v) {
		return fmt.Errorf("config section %q: got %T, want %T", section, v, want)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := m.store.Put(ctx, section, b); err != nil {
		return fmt.Errorf("storing config section %q: %w", section, err)
	}
	m.slog.Info("config updated", "section", section)

	m.mu.Lock()
	subs := slices.Clone(m.subs)
	m.mu.Unlock()
	for _, f := range subs {
		f(ctx, section)
	}
	return nil
}

// Subscribe registers f to be called after every successful Put.
func (m *Manager) Subscribe(f func(ctx context.Context, section string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, f)
}
