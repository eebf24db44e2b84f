package config

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Seed is configuration applied at startup, keyed by section name. Each value
// is a pointer to the section type.
type Seed map[string]any

// LoadSeed reads a YAML seed file. Every top-level key must be a section
// name; a section given in the file replaces the stored one wholesale, with
// fields it omits set to their defaults.
//
//	rss:
//	  feeds:
//	    - https://example.com/feed.xml
//	  summary_time: "08:30"
func LoadSeed(path string) (Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed: %w", err)
	}
	var doc map[string]yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	seed := make(Seed, len(doc))
	for name, node := range doc {
		v, err := NewSection(name)
		if err != nil {
			return nil, err
		}
		if err := node.Decode(v); err != nil {
			return nil, fmt.Errorf("parse seed section %q: %w", name, err)
		}
		seed[name] = v
	}
	return seed, nil
}

// ApplySeed stores every section of s.
func (m *Manager) ApplySeed(ctx context.Context, s Seed) error {
	for _, name := range Sections() {
		v, ok := s[name]
		if !ok {
			continue
		}
		if err := m.Put(ctx, name, v); err != nil {
			return err
		}
	}
	return nil
}

// Environment variables consulted by SeedFromEnv.
const (
	EnvTelegramToken  = "TELEGRAM_TOKEN"
	EnvTelegramChatID = "TELEGRAM_CHAT_ID"
	EnvGeminiAPIKey   = "GEMINI_API_KEY"
)

// SeedFromEnv fills secrets that are empty in the stored configuration from
// the environment. Values already configured are never overwritten.
func (m *Manager) SeedFromEnv(ctx context.Context, getenv func(string) string) error {
	s := m.Snapshot(ctx)

	tg := s.Telegram
	if tg.BotToken == "" {
		tg.BotToken = getenv(EnvTelegramToken)
	}
	if tg.ChatID == "" {
		tg.ChatID = getenv(EnvTelegramChatID)
	}
	if tg != s.Telegram {
		if err := m.Put(ctx, SectionTelegram, &tg); err != nil {
			return err
		}
	}

	gm := s.Gemini
	if gm.APIKey == "" {
		gm.APIKey = getenv(EnvGeminiAPIKey)
	}
	if gm != s.Gemini {
		if err := m.Put(ctx, SectionGemini, &gm); err != nil {
			return err
		}
	}
	return nil
}
