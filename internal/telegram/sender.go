// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package telegram

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/faye25tom/TGNexus/internal/request"
	"github.com/faye25tom/TGNexus/internal/tgmarkup"
)

const (
	// MaxMessageLen is the maximum length of a message text, in characters.
	MaxMessageLen  = 4096
	sendRetryLimit = 5 // N attempts to retry message sending

	digestHeader = "📰 **Daily digest**\n\n"
	truncMarker  = "..."
)

// Config configures a Telegram sender.
type Config struct {
	// ChatID is the primary chat that Send and SendDigest deliver to.
	ChatID     string
	Token      string
	HTTPClient *http.Client
	Scrubber   *strings.Replacer
	Logger     *slog.Logger
	// BaseURL defaults to DefaultAPI.
	BaseURL string
}

// Sender sends messages via Telegram Bot API.
type Sender struct {
	api
	chatID      string
	slog        *slog.Logger
	now         func() time.Time
	makeRequest func(context.Context, string, any) error
	sleep       func(context.Context, time.Duration) bool
}

// New returns a Telegram sender configured for a specific chat.
func New(cfg Config) *Sender {
	s := &Sender{
		api: api{
			baseURL:  cmp.Or(cfg.BaseURL, DefaultAPI),
			token:    cfg.Token,
			httpc:    cfg.HTTPClient,
			scrubber: cfg.Scrubber,
		},
		chatID: cfg.ChatID,
		slog:   cfg.Logger,
		now:    time.Now,
	}
	if s.httpc == nil {
		s.httpc = request.DefaultClient
	}
	if s.slog == nil {
		s.slog = slog.Default()
	}
	s.makeRequest = s.makeTelegramRequest
	s.sleep = sleep
	return s
}

type message struct {
	ChatID string `json:"chat_id"`
	tgmarkup.Message
}

// Configured reports whether s has a token and a primary chat.
func (s *Sender) Configured() bool { return s.token != "" && s.chatID != "" }

// Send sends a Markdown message to the primary chat. Without a configured
// chat it logs a warning and does nothing.
func (s *Sender) Send(ctx context.Context, text string) error {
	if !s.Configured() {
		s.slog.Warn("telegram is not configured, dropping message")
		return nil
	}
	return s.send(ctx, s.chatID, text)
}

// Reply sends a Markdown message to the given chat.
func (s *Sender) Reply(ctx context.Context, chatID int64, text string) error {
	if s.token == "" {
		s.slog.Warn("telegram is not configured, dropping reply", "chat_id", chatID)
		return nil
	}
	return s.send(ctx, strconv.FormatInt(chatID, 10), text)
}

// SendDigest sends a digest, formatted with [FormatDigest], to the primary
// chat.
func (s *Sender) SendDigest(ctx context.Context, summary string) error {
	return s.Send(ctx, FormatDigest(summary, s.now()))
}

// FormatDigest wraps summary with a header and a footer with the time. If the
// result would be longer than MaxMessageLen, the summary is cut and ends with
// "..." so the result is exactly MaxMessageLen characters long.
func FormatDigest(summary string, now time.Time) string {
	footer := "\n\n_Updated: " + now.Format("2006-01-02 15:04") + "_"
	budget := MaxMessageLen - utf8.RuneCountInString(digestHeader) - utf8.RuneCountInString(footer)
	if utf8.RuneCountInString(summary) > budget {
		summary = string([]rune(summary)[:budget-utf8.RuneCountInString(truncMarker)]) + truncMarker
	}
	return digestHeader + summary + footer
}

func (s *Sender) send(ctx context.Context, chatID, text string) error {
	tgmsg := &message{ChatID: chatID}
	for _, chunk := range splitMessage(text) {
		tgmsg.Message = tgmarkup.FromMarkdown(chunk)

		var err error
		for range sendRetryLimit {
			err = s.makeRequest(ctx, "sendMessage", tgmsg)
			if err == nil {
				break
			}

			retryable, wait := isRateLimited(err)
			if !retryable {
				break
			}

			s.slog.Warn("sending rate limited, waiting", slog.String("chat_id", chatID), slog.Duration("wait", wait))
			if !s.sleep(ctx, wait) {
				return ctx.Err()
			}
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Sender) makeTelegramRequest(ctx context.Context, method string, args any) error {
	_, err := call[json.RawMessage](ctx, &s.api, nil, method, args)
	return err
}

// GetMe returns the bot user. It's a cheap way to check the token.
func (s *Sender) GetMe(ctx context.Context) (User, error) {
	return call[User](ctx, &s.api, nil, "getMe", struct{}{})
}

// SetWebhook makes Telegram deliver updates to url, with secret in the
// X-Telegram-Bot-Api-Secret-Token header.
func (s *Sender) SetWebhook(ctx context.Context, url, secret string) error {
	_, err := call[bool](ctx, &s.api, nil, "setWebhook", map[string]any{
		"url":             url,
		"secret_token":    secret,
		"allowed_updates": []string{"message"},
	})
	return err
}

func splitMessage(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if utf8.RuneCountInString(text) <= MaxMessageLen {
		return []string{text}
	}

	var chunks []string
	for text != "" {
		if utf8.RuneCountInString(text) <= MaxMessageLen {
			chunks = append(chunks, text)
			break
		}

		var (
			lastNewline    = -1
			lastWhitespace = -1
			byteCap        = len(text)
			runeCount      int
		)

		for i, r := range text {
			if runeCount == MaxMessageLen {
				byteCap = i
				break
			}
			runeCount++

			if r == '\n' {
				lastNewline = i
				continue
			}
			if unicode.IsSpace(r) {
				lastWhitespace = i
			}
		}

		splitAt := byteCap
		switch {
		case lastNewline > 0:
			splitAt = lastNewline
		case lastWhitespace > 0:
			splitAt = lastWhitespace
		}

		chunk := strings.TrimSpace(text[:splitAt])
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		text = strings.TrimSpace(text[splitAt:])
	}

	return chunks
}

func isRateLimited(err error) (bool, time.Duration) {
	var statusErr *request.StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusTooManyRequests {
		return false, 0
	}

	var errorResponse struct {
		Parameters struct {
			RetryAfter int `json:"retry_after"`
		} `json:"parameters"`
	}
	if err := json.Unmarshal(statusErr.Body, &errorResponse); err != nil {
		return false, 0
	}

	return true, time.Duration(errorResponse.Parameters.RetryAfter) * time.Second
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
