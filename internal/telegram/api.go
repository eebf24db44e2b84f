// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package telegram implements message delivery and update handling over the
// Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/faye25tom/TGNexus/internal/request"
)

// DefaultAPI is the Telegram Bot API base URL.
const DefaultAPI = "https://api.telegram.org"

// Update is an incoming update.
// See https://core.telegram.org/bots/api#update.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message,omitempty"`
}

// Message is a Telegram message.
// See https://core.telegram.org/bots/api#message.
type Message struct {
	MessageID int64  `json:"message_id"`
	From      *User  `json:"from,omitempty"`
	Chat      Chat   `json:"chat"`
	Date      int64  `json:"date"`
	Text      string `json:"text,omitempty"`
}

// User is a Telegram user or bot.
type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	Username  string `json:"username,omitempty"`
}

// Chat is a Telegram chat.
type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

type apiResponse[T any] struct {
	OK          bool   `json:"ok"`
	Result      T      `json:"result"`
	Description string `json:"description,omitempty"`
}

// api calls Bot API methods.
type api struct {
	baseURL  string
	token    string
	httpc    *http.Client
	scrubber *strings.Replacer
}

func call[T any](ctx context.Context, a *api, httpc *http.Client, method string, args any) (T, error) {
	if httpc == nil {
		httpc = a.httpc
	}
	resp, err := request.Make[apiResponse[T]](ctx, request.Params{
		Method:     http.MethodPost,
		URL:        a.baseURL + "/bot" + a.token + "/" + method,
		Body:       args,
		HTTPClient: httpc,
		Scrubber:   a.scrubber,
	})
	if err != nil {
		return resp.Result, err
	}
	if !resp.OK {
		return resp.Result, errors.New(method + ": " + resp.Description)
	}
	return resp.Result, nil
}
