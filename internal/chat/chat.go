// Package chat defines inbound chat messages and the conversation history
// they are recorded in.
package chat

import (
	"context"
	"strings"
	"time"
)

// Message is an inbound chat message.
type Message struct {
	ChatID     int64     `json:"chat_id"`
	SenderID   int64     `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Text       string    `json:"text"`
	Time       time.Time `json:"time"`
}

// Handler handles inbound messages.
type Handler interface {
	Handle(ctx context.Context, m Message)
}

// HandlerFunc is an adapter to allow the use of ordinary functions as
// message handlers.
type HandlerFunc func(ctx context.Context, m Message)

// Handle calls f(ctx, m).
func (f HandlerFunc) Handle(ctx context.Context, m Message) { f(ctx, m) }

// History records messages per chat.
type History interface {
	// Append records m.
	Append(ctx context.Context, m Message) error
	// Recent returns at most n latest messages of the chat, oldest first.
	Recent(ctx context.Context, chatID int64, n int) ([]Message, error)
}

// FormatHistory renders messages as "name: text" lines, in the given order.
func FormatHistory(msgs []Message) string {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, m.SenderName+": "+m.Text)
	}
	return strings.Join(lines, "\n")
}
