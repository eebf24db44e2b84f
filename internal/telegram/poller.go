// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package telegram

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// Poller defaults.
const (
	DefaultPollTimeout = 30 * time.Second
	pollRetryDelay     = 5 * time.Second
)

// PollerConfig configures a [Poller].
type PollerConfig struct {
	Sender *Sender
	Bot    *Bot
	// Timeout is the long polling timeout. Defaults to DefaultPollTimeout.
	Timeout time.Duration
	// HTTPClient must not have a timeout shorter than Timeout. Defaults to a
	// client without timeout; every request is bounded by its context.
	HTTPClient *http.Client
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Poller receives updates with getUpdates long polling and passes them to a
// [Bot].
type Poller struct {
	sender  *Sender
	bot     *Bot
	timeout time.Duration
	httpc   *http.Client
	slog    *slog.Logger
	sleep   func(context.Context, time.Duration) bool
}

// NewPoller returns a new Poller.
func NewPoller(c PollerConfig) *Poller {
	p := &Poller{
		sender:  c.Sender,
		bot:     c.Bot,
		timeout: c.Timeout,
		httpc:   c.HTTPClient,
		slog:    c.Logger,
		sleep:   sleep,
	}
	if p.timeout <= 0 {
		p.timeout = DefaultPollTimeout
	}
	if p.httpc == nil {
		p.httpc = &http.Client{}
	}
	if p.slog == nil {
		p.slog = slog.Default()
	}
	return p
}

type getUpdatesArgs struct {
	Offset         int64    `json:"offset,omitempty"`
	Timeout        int      `json:"timeout"`
	AllowedUpdates []string `json:"allowed_updates"`
}

// Run polls for updates until ctx is canceled. A webhook, if set, is removed
// first since Telegram doesn't allow both. Failed polls are retried after a
// short delay.
func (p *Poller) Run(ctx context.Context) error {
	if _, err := call[bool](ctx, &p.sender.api, nil, "deleteWebhook", struct{}{}); err != nil {
		p.slog.Warn("deleting webhook failed", "error", err)
	}
	p.slog.Info("polling for updates")

	var offset int64
	for ctx.Err() == nil {
		updates, err := p.poll(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.slog.Warn("getting updates failed", "error", err)
			if !p.sleep(ctx, pollRetryDelay) {
				return nil
			}
			continue
		}
		for _, u := range updates {
			offset = max(offset, u.UpdateID+1)
			p.bot.Dispatch(context.WithoutCancel(ctx), u)
		}
	}
	return nil
}

func (p *Poller) poll(ctx context.Context, offset int64) ([]Update, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout+10*time.Second)
	defer cancel()

	updates, err := call[[]Update](ctx, &p.sender.api, p.httpc, "getUpdates", getUpdatesArgs{
		Offset:         offset,
		Timeout:        int(p.timeout / time.Second),
		AllowedUpdates: []string{"message"},
	})
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
		// Nothing came during the whole poll.
		return nil, nil
	}
	return updates, err
}
