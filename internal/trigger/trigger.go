// Package trigger decides which chat messages the bot replies to and
// generates the replies from recent conversation history.
package trigger

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/faye25tom/TGNexus/internal/chat"
	"github.com/faye25tom/TGNexus/internal/config"
	"github.com/faye25tom/TGNexus/internal/generate"
)

const (
	// HistoryLimit is how many recent messages are given to the model.
	HistoryLimit = 5
	// ReplyOutputTokens is the output budget for a reply.
	ReplyOutputTokens = 8192
)

// Fallback replies.
const (
	MsgUnavailable   = "Sorry, the AI service is temporarily unavailable."
	MsgNotUnderstood = "Sorry, I couldn't understand your message right now."
)

// Replier sends a reply to a chat.
type Replier interface {
	Reply(ctx context.Context, chatID int64, text string) error
}

// Deps builds the collaborators of a reply from the configuration snapshot
// taken when the message arrives.
type Deps interface {
	// Generator returns nil if generation isn't configured.
	Generator(config.Gemini) generate.Generator
	Replier(config.Telegram) Replier
}

// Snapshotter provides configuration snapshots.
type Snapshotter interface {
	Snapshot(ctx context.Context) config.Snapshot
}

// Config configures an [Engine].
type Config struct {
	Config  Snapshotter
	Deps    Deps
	History chat.History
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Engine handles inbound chat messages.
type Engine struct {
	cfg     Snapshotter
	deps    Deps
	history chat.History
	slog    *slog.Logger
}

// New returns a new Engine.
func New(c Config) *Engine {
	e := &Engine{
		cfg:     c.Config,
		deps:    c.Deps,
		history: c.History,
		slog:    c.Logger,
	}
	if e.slog == nil {
		e.slog = slog.Default()
	}
	return e
}

// ShouldRespond reports whether the bot replies to text sent to chatID: when
// any trigger keyword occurs in text, ignoring case, or when chatID is the
// primary chat. Keywords are matched as plain substrings, so "?" matches any
// question.
func ShouldRespond(text string, chatID int64, cfg config.Snapshot) bool {
	lower := strings.ToLower(text)
	for _, kw := range cfg.Prompts.TriggerKeywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return cfg.Telegram.ChatID != "" && cfg.Telegram.ChatID == strconv.FormatInt(chatID, 10)
}

// Handle records m in the history and, if the bot should respond, replies
// to it. Once the bot decides to respond, a reply is always attempted, if
// only an apology.
func (e *Engine) Handle(ctx context.Context, m chat.Message) {
	logger := e.slog.With("chat_id", m.ChatID)

	if err := e.history.Append(ctx, m); err != nil {
		logger.Error("saving message failed", "error", err)
	}

	cfg := e.cfg.Snapshot(ctx)
	if !ShouldRespond(m.Text, m.ChatID, cfg) {
		return
	}

	reply := e.BuildReply(ctx, m.Text, m.ChatID, cfg)
	if err := e.deps.Replier(cfg.Telegram).Reply(ctx, m.ChatID, reply); err != nil {
		logger.Error("sending reply failed", "error", err)
	}
}

// BuildReply generates a reply to text using the latest messages of the
// chat as context. It never returns an empty string.
func (e *Engine) BuildReply(ctx context.Context, text string, chatID int64, cfg config.Snapshot) string {
	gen := e.deps.Generator(cfg.Gemini)
	if gen == nil {
		return MsgUnavailable
	}

	msgs, err := e.history.Recent(ctx, chatID, HistoryLimit)
	if err != nil {
		// The reply goes ahead without context.
		e.slog.Warn("loading chat history failed", "chat_id", chatID, "error", err)
	}

	prompt := Render(cfg.Prompts.ChatResponse, chat.FormatHistory(msgs), text)
	res := gen.Generate(ctx, prompt, ReplyOutputTokens)
	if res.Kind == generate.KindFailed {
		e.slog.Error("generating reply failed", "chat_id", chatID, "error", res.Err)
	}
	return generate.UserMessage(res, MsgNotUnderstood)
}

// Render substitutes history and message into template. The substitution is
// done in one pass, so placeholders occurring in the values stay as they are.
func Render(template, history, message string) string {
	if strings.TrimSpace(template) == "" {
		template = config.DefaultChatResponsePrompt
	}
	return strings.NewReplacer("{context}", history, "{message}", message).Replace(template)
}
