// Package config holds the runtime configuration of the bot: sections that
// are stored as JSON documents, edited through the admin API and read as one
// snapshot at the start of every cycle.
package config

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

// Section names.
const (
	SectionTelegram = "telegram"
	SectionGemini   = "gemini"
	SectionRSS      = "rss"
	SectionPrompts  = "prompts"
	SectionRules    = "rules"
)

// Telegram configures the chat side.
type Telegram struct {
	BotToken string `json:"bot_token" yaml:"bot_token"`
	// ChatID is the primary chat: digests go there, and every message in it
	// gets a reply.
	ChatID string `json:"chat_id" yaml:"chat_id"`
}

// Gemini configures text generation.
type Gemini struct {
	APIKey string `json:"api_key" yaml:"api_key"`
	Model  string `json:"model" yaml:"model"`
	// Backend is "rest" (default) or "sdk".
	Backend string `json:"backend" yaml:"backend"`
}

// RSS configures the digest.
type RSS struct {
	Feeds []string `json:"feeds" yaml:"feeds"`
	// SummaryTime is the daily digest time, "HH:MM" in local time.
	SummaryTime string `json:"summary_time" yaml:"summary_time"`
}

// Prompts holds prompt templates and trigger keywords.
type Prompts struct {
	// NewsSummary has a {content} placeholder.
	NewsSummary string `json:"news_summary" yaml:"news_summary"`
	// ChatResponse has {context} and {message} placeholders.
	ChatResponse    string   `json:"chat_response" yaml:"chat_response"`
	TriggerKeywords []string `json:"trigger_keywords" yaml:"trigger_keywords"`
}

// Rules holds an optional Starlark keep rule for feed entries.
type Rules struct {
	Keep string `json:"keep" yaml:"keep"`
}

// Snapshot is the whole configuration at one point in time.
type Snapshot struct {
	Telegram Telegram `json:"telegram"`
	Gemini   Gemini   `json:"gemini"`
	RSS      RSS      `json:"rss"`
	Prompts  Prompts  `json:"prompts"`
	Rules    Rules    `json:"rules"`
}

// Default values.
const (
	DefaultModel       = "gemini-2.5-flash"
	DefaultSummaryTime = "09:00"

	DefaultNewsSummaryPrompt = "Write a concise digest of the following news. Highlight the key facts and group related stories:\n\n{content}"

	DefaultChatResponsePrompt = "You are a friendly chat assistant. Given the conversation below, write a natural and helpful reply.\n\n{context}\n\nUser message: {message}"
)

// DefaultTriggerKeywords are the keywords that make the bot reply outside of
// the primary chat.
var DefaultTriggerKeywords = []string{"@bot", "机器人", "助手", "?", "？"}

// Defaults returns the configuration used for absent sections.
func Defaults() Snapshot {
	return Snapshot{
		Gemini: Gemini{
			Model: DefaultModel,
		},
		RSS: RSS{
			Feeds:       []string{},
			SummaryTime: DefaultSummaryTime,
		},
		Prompts: Prompts{
			NewsSummary:     DefaultNewsSummaryPrompt,
			ChatResponse:    DefaultChatResponsePrompt,
			TriggerKeywords: slices.Clone(DefaultTriggerKeywords),
		},
	}
}

// sections maps section names to their fields in a Snapshot.
var sections = map[string]func(*Snapshot) any{
	SectionTelegram: func(s *Snapshot) any { return &s.Telegram },
	SectionGemini:   func(s *Snapshot) any { return &s.Gemini },
	SectionRSS:      func(s *Snapshot) any { return &s.RSS },
	SectionPrompts:  func(s *Snapshot) any { return &s.Prompts },
	SectionRules:    func(s *Snapshot) any { return &s.Rules },
}

// Sections returns the known section names in a stable order.
func Sections() []string {
	return []string{SectionTelegram, SectionGemini, SectionRSS, SectionPrompts, SectionRules}
}

// ErrUnknownSection is returned for section names that don't exist.
var ErrUnknownSection = errors.New("unknown config section")

// NewSection returns a pointer to the default value of the named section,
// suitable for decoding a replacement into.
func NewSection(name string) (any, error) {
	field, ok := sections[name]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownSection, name)
	}
	s := Defaults()
	return field(&s), nil
}

// Store persists sections as JSON documents.
type Store interface {
	// Get returns the stored section, or nil and no error if it's absent.
	Get(ctx context.Context, section string) ([]byte, error)
	// Put replaces the stored section.
	Put(ctx context.Context, section string, value []byte) error
}

// Masked returns a copy of s with secrets masked, suitable for display.
func (s Snapshot) Masked() Snapshot {
	s.Telegram.BotToken = mask(s.Telegram.BotToken)
	s.Gemini.APIKey = mask(s.Gemini.APIKey)
	return s
}

func mask(secret string) string {
	const visible = 4
	if secret == "" {
		return ""
	}
	r := []rune(secret)
	if len(r) <= visible*2 {
		return "****"
	}
	return "****" + string(r[len(r)-visible:])
}
