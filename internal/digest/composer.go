// Package digest composes feed digests with a language model and runs the
// daily digest pipeline.
package digest

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/faye25tom/TGNexus/internal/config"
	"github.com/faye25tom/TGNexus/internal/feed"
	"github.com/faye25tom/TGNexus/internal/generate"
)

// Defaults.
const (
	DefaultRecentWindow  = 48 * time.Hour
	DefaultMinRecent     = 3
	DefaultFallbackCount = 8
	// DigestOutputTokens is the output budget for a digest. It's larger
	// than the budget for chat replies.
	DigestOutputTokens = 10000

	// ContentPlaceholder is replaced with the formatted feed items.
	ContentPlaceholder = "{content}"
)

// MsgNoSummary is sent when the model answered without any usable text.
const MsgNoSummary = "Sorry, no digest could be generated this time. Please try again later or check the feed configuration."

// Fetcher fetches feed items, newest first.
type Fetcher interface {
	FetchAll(ctx context.Context, urls []string) []feed.Item
}

// Config configures a [Composer].
type Config struct {
	Fetcher   Fetcher
	Generator generate.Generator

	// RecentWindow is how far back items count as recent. Defaults to
	// DefaultRecentWindow.
	RecentWindow time.Duration
	// MinRecent is the minimum number of recent items. With fewer, the
	// FallbackCount newest items are used instead. Defaults to
	// DefaultMinRecent.
	MinRecent int
	// FallbackCount defaults to DefaultFallbackCount.
	FallbackCount int

	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Composer turns feeds into a digest.
type Composer struct {
	fetcher       Fetcher
	gen           generate.Generator
	window        time.Duration
	minRecent     int
	fallbackCount int
	slog          *slog.Logger
	now           func() time.Time
}

// NewComposer returns a new Composer.
func NewComposer(c Config) *Composer {
	cp := &Composer{
		fetcher:       c.Fetcher,
		gen:           c.Generator,
		window:        c.RecentWindow,
		minRecent:     c.MinRecent,
		fallbackCount: c.FallbackCount,
		slog:          c.Logger,
		now:           c.Now,
	}
	if cp.window <= 0 {
		cp.window = DefaultRecentWindow
	}
	if cp.minRecent <= 0 {
		cp.minRecent = DefaultMinRecent
	}
	if cp.fallbackCount <= 0 {
		cp.fallbackCount = DefaultFallbackCount
	}
	if cp.slog == nil {
		cp.slog = slog.Default()
	}
	if cp.now == nil {
		cp.now = time.Now
	}
	return cp
}

// Request is one summarization request. The generator cuts prompts that
// exceed its input budget, so a Request is never rejected for its size.
type Request struct {
	Items           []feed.Item
	Template        string
	MaxOutputTokens int
}

// Prompt renders the items into the template.
func (r Request) Prompt() string {
	return Render(r.Template, feed.FormatForPrompt(r.Items))
}

// Compose fetches feeds and summarizes them using template. It reports false
// when there is nothing to send: no feeds, no items, or a failed generation.
// A blocked generation or an empty answer yields an apology instead.
func (c *Composer) Compose(ctx context.Context, feeds []string, template string) (string, bool) {
	if len(feeds) == 0 {
		c.slog.Warn("no feeds configured")
		return "", false
	}
	if c.gen == nil {
		c.slog.Warn("no generator configured")
		return "", false
	}

	items := c.fetcher.FetchAll(ctx, feeds)
	if len(items) == 0 {
		c.slog.Warn("no feed items fetched", "feeds", len(feeds))
		return "", false
	}
	selected := c.Select(items)
	c.slog.Info("composing digest", "fetched", len(items), "selected", len(selected))

	req := Request{Items: selected, Template: template, MaxOutputTokens: DigestOutputTokens}
	res := c.gen.Generate(ctx, req.Prompt(), req.MaxOutputTokens)
	switch {
	case res.Kind == generate.KindFailed:
		c.slog.Error("generating digest failed", "error", res.Err)
		return "", false
	case res.Kind == generate.KindBlocked:
		c.slog.Warn("digest generation blocked", "reason", res.Reason)
		return generate.UserMessage(res, MsgNoSummary), true
	}

	summary := CleanSummary(res.Text)
	if summary == "" {
		c.slog.Warn("digest generation returned no text")
		return MsgNoSummary, true
	}
	return summary, true
}

// Select picks the items to summarize from items sorted newest first: the
// recent ones, or the newest FallbackCount if too few are recent.
func (c *Composer) Select(items []feed.Item) []feed.Item {
	recent := feed.FilterRecent(items, c.window, c.now())
	if len(recent) >= c.minRecent {
		return recent
	}
	return items[:min(len(items), c.fallbackCount)]
}

// Render substitutes content into template. A template without the
// placeholder gets content appended after a blank line; an empty template is
// replaced by the default one.
func Render(template, content string) string {
	if strings.TrimSpace(template) == "" {
		template = config.DefaultNewsSummaryPrompt
	}
	if !strings.Contains(template, ContentPlaceholder) {
		return template + "\n\n" + content
	}
	return strings.ReplaceAll(template, ContentPlaceholder, content)
}

var boilerplatePrefixes = []string{
	"Summary:",
	"Digest:",
	"News summary:",
	"News digest:",
	"新闻摘要：",
	"新闻摘要:",
}

// CleanSummary trims boilerplate headers like "Summary:" that models tend to
// start with.
func CleanSummary(s string) string {
	s = strings.TrimSpace(s)
	for {
		stripped := false
		for _, p := range boilerplatePrefixes {
			if len(s) >= len(p) && strings.EqualFold(s[:len(p)], p) {
				s = strings.TrimSpace(s[len(p):])
				stripped = true
			}
		}
		if !stripped {
			return s
		}
	}
}
