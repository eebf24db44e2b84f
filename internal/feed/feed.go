// © 2024 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package feed fetches RSS, Atom and JSON feeds and normalizes their entries.
package feed

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/faye25tom/TGNexus/internal/syncx"
	"github.com/faye25tom/TGNexus/internal/version"
)

// Item is a normalized feed entry.
type Item struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Summary string `json:"summary"`
	// Published is the parsed publish time with its zone dropped (see
	// ParseDate). It's zero when the date is missing or unparseable.
	Published    time.Time `json:"published"`
	RawPublished string    `json:"raw_published"`
	// Source is the feed title, or its URL if the feed has no title.
	Source string `json:"source"`
}

// Defaults.
const (
	DefaultPerSource   = 10
	DefaultTimeout     = 30 * time.Second
	DefaultConcurrency = 10

	untitled = "(untitled)"
)

// Config configures an [Aggregator].
type Config struct {
	// HTTPClient is used for fetching. Defaults to http.DefaultClient; every
	// fetch is bounded by Timeout anyway.
	HTTPClient *http.Client
	// Timeout bounds each fetch. Defaults to DefaultTimeout.
	Timeout time.Duration
	// PerSource caps entries taken from each feed. Defaults to DefaultPerSource.
	PerSource int
	// Concurrency limits parallel fetches. Defaults to DefaultConcurrency.
	Concurrency int
	// Rule is an optional keep rule applied to every entry.
	Rule *Rule
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Aggregator fetches several feeds and merges their entries.
type Aggregator struct {
	httpc       *http.Client
	timeout     time.Duration
	perSource   int
	concurrency int
	rule        *Rule
	slog        *slog.Logger
}

// NewAggregator returns a new Aggregator.
func NewAggregator(c Config) *Aggregator {
	a := &Aggregator{
		httpc:       c.HTTPClient,
		timeout:     c.Timeout,
		perSource:   c.PerSource,
		concurrency: c.Concurrency,
		rule:        c.Rule,
		slog:        c.Logger,
	}
	if a.httpc == nil {
		a.httpc = http.DefaultClient
	}
	if a.timeout <= 0 {
		a.timeout = DefaultTimeout
	}
	if a.perSource <= 0 {
		a.perSource = DefaultPerSource
	}
	if a.concurrency <= 0 {
		a.concurrency = DefaultConcurrency
	}
	if a.slog == nil {
		a.slog = slog.Default()
	}
	return a
}

// FetchAll fetches every URL independently and returns their entries sorted
// newest first. A failing feed contributes no entries and never aborts the
// others. The result doesn't depend on the order fetches complete in.
func (a *Aggregator) FetchAll(ctx context.Context, urls []string) []Item {
	results := make([][]Item, len(urls))

	wg := syncx.NewLimitedWaitGroup(a.concurrency)
	for i, url := range urls {
		wg.Go(func() {
			items, err := a.fetch(ctx, url)
			if err != nil {
				a.slog.Warn("fetching feed failed", "feed", url, "error", err)
				return
			}
			a.slog.Debug("fetched feed", "feed", url, "items", len(items))
			results[i] = items
		})
	}
	wg.Wait()

	var all []Item
	for _, items := range results {
		all = append(all, items...)
	}
	SortNewest(all)
	return all
}

func (a *Aggregator) fetch(ctx context.Context, url string) ([]Item, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", version.UserAgent())

	res, err := a.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		const readLimit = 1024
		body, _ := io.ReadAll(io.LimitReader(res.Body, readLimit))
		return nil, fmt.Errorf("want 2xx, got %d: %s", res.StatusCode, body)
	}

	// gofeed.Parser keeps per-parse state, so it's not shared between fetches.
	parsed, err := gofeed.NewParser().Parse(res.Body)
	if err != nil {
		return nil, err
	}

	source := cmp.Or(parsed.Title, url)
	var items []Item
	for _, fi := range parsed.Items[:min(len(parsed.Items), a.perSource)] {
		raw := cmp.Or(fi.Published, fi.Updated)
		it := Item{
			Title:        cmp.Or(fi.Title, untitled),
			Link:         fi.Link,
			Summary:      cmp.Or(fi.Description, fi.Content),
			Published:    ParseDate(raw),
			RawPublished: raw,
			Source:       source,
		}
		if a.rule != nil && !a.keep(it) {
			a.slog.Debug("skipped by keep rule", "item", it.Link)
			continue
		}
		items = append(items, it)
	}
	return items, nil
}

func (a *Aggregator) keep(it Item) bool {
	keep, err := a.rule.Keep(it)
	if err != nil {
		a.slog.Warn("applying keep rule failed, keeping item", "item", it.Link, "error", err)
		return true
	}
	return keep
}

// SortNewest sorts items by publish time, newest first. Items without a
// publish time go last. The sort is stable.
func SortNewest(items []Item) {
	slices.SortStableFunc(items, func(a, b Item) int {
		return b.Published.Compare(a.Published)
	})
}
