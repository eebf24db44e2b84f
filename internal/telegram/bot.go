// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package telegram

import (
	"cmp"
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/faye25tom/TGNexus/internal/chat"
	"github.com/faye25tom/TGNexus/internal/web"
)

// SecretHeader carries the webhook secret token.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

const (
	welcomeText = `🤖 Welcome! I'm a chat assistant.

I can:
📰 send a daily news digest
💬 chat with you
❓ answer questions

Send /help to see what else I can do.`

	helpText = `🔧 Commands:

/start - start using the bot
/help - show this help
/status - show the bot status

💡 Tips:
• just send a message to talk to me
• ask a question and I'll answer
• a news digest arrives every day`
)

// BotConfig configures a [Bot].
type BotConfig struct {
	// Sender answers commands.
	Sender *Sender
	// Handler receives every text message that isn't a command.
	Handler chat.Handler
	// Secret is the webhook secret token.
	Secret string
	// Status renders the reply to /status for the given chat.
	Status func(ctx context.Context, chatID int64) string
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Bot turns updates into [chat.Message] values for a handler and answers bot
// commands. Updates are processed in their own goroutines.
type Bot struct {
	sender  *Sender
	handler chat.Handler
	secret  string
	status  func(context.Context, int64) string
	slog    *slog.Logger

	wg sync.WaitGroup
}

// NewBot returns a new Bot.
func NewBot(c BotConfig) *Bot {
	b := &Bot{
		sender:  c.Sender,
		handler: c.Handler,
		secret:  c.Secret,
		status:  c.Status,
		slog:    c.Logger,
	}
	if b.slog == nil {
		b.slog = slog.Default()
	}
	if b.status == nil {
		b.status = func(context.Context, int64) string { return "🟢 Running" }
	}
	return b
}

// HandleWebhook serves updates pushed by Telegram. Requests without the
// right secret token get 404, and so does every request if the Bot has no
// secret.
func (b *Bot) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	if b.secret == "" || subtle.ConstantTimeCompare([]byte(r.Header.Get(SecretHeader)), []byte(b.secret)) != 1 {
		web.RespondJSONError(w, r, web.ErrNotFound)
		return
	}

	var u Update
	if err := web.DecodeJSON(r, &u); err != nil {
		web.RespondJSONError(w, r, err)
		return
	}

	// Telegram redelivers updates that aren't acknowledged quickly, so the
	// update is processed after responding.
	b.Dispatch(context.WithoutCancel(r.Context()), u)
	web.RespondJSON(w, map[string]string{"status": "success"})
}

// Dispatch processes u in a new goroutine.
func (b *Bot) Dispatch(ctx context.Context, u Update) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.handle(ctx, u)
	}()
}

// Wait blocks until all dispatched updates are processed.
func (b *Bot) Wait() { b.wg.Wait() }

func (b *Bot) handle(ctx context.Context, u Update) {
	m := u.Message
	if m == nil || strings.TrimSpace(m.Text) == "" {
		return
	}

	if cmd, ok := command(m.Text); ok {
		b.command(ctx, cmd, m.Chat.ID)
		return
	}

	msg := chat.Message{
		ChatID: m.Chat.ID,
		Text:   m.Text,
		Time:   time.Unix(m.Date, 0),
	}
	if m.From != nil {
		msg.SenderID = m.From.ID
		msg.SenderName = cmp.Or(m.From.Username, m.From.FirstName)
	}
	b.handler.Handle(ctx, msg)
}

func (b *Bot) command(ctx context.Context, cmd string, chatID int64) {
	var reply string
	switch cmd {
	case "start":
		reply = welcomeText
	case "help":
		reply = helpText
	case "status":
		reply = b.status(ctx, chatID)
	default:
		b.slog.Debug("ignoring unknown command", "command", cmd, "chat_id", chatID)
		return
	}
	if err := b.sender.Reply(ctx, chatID, reply); err != nil {
		b.slog.Error("replying to command failed", "command", cmd, "chat_id", chatID, "error", err)
	}
}

// command extracts a bot command name from text like "/help@my_bot args".
func command(text string) (string, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	name, _, _ := strings.Cut(strings.Fields(text)[0][1:], "@")
	return strings.ToLower(name), true
}
