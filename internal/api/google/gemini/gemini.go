// © 2024 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package gemini provides a very minimal client for interacting with Gemini
// API.
//
// Response types are deliberately loose: the service has been observed to put
// generated text in several places, so every place is decoded and it's up to
// the caller to pick.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/faye25tom/TGNexus/internal/request"
)

const apiURL = "https://generativelanguage.googleapis.com/v1beta"

// Client holds configuration for interacting with the Gemini API.
type Client struct {
	// APIKey is the API key used for authentication.
	APIKey string
	// HTTPClient is an optional HTTP client to use for requests. Defaults to
	// request.DefaultClient.
	HTTPClient *http.Client
	// Scrubber is an optional strings.Replacer that scrubs unwanted data from
	// error messages.
	Scrubber *strings.Replacer
	// BaseURL overrides the API endpoint.
	BaseURL string
}

// GenerateContentParams defines the structure for the request body sent to the
// GenerateContent API.
type GenerateContentParams struct {
	// Contents is a list of Content objects representing the input text for
	// generation.
	Contents []*Content `json:"contents"`
	// SystemInstruction is an optional Content object specifying system
	// instructions for generation.
	SystemInstruction *Content `json:"systemInstruction,omitempty"`
	// GenerationConfig holds sampling parameters and the output limit.
	GenerationConfig *GenerationConfig `json:"generationConfig,omitempty"`
}

// GenerationConfig configures sampling of a GenerateContent call.
type GenerationConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	Temperature     float64 `json:"temperature,omitempty"`
	TopP            float64 `json:"topP,omitempty"`
	TopK            int     `json:"topK,omitempty"`
}

// Content represents a piece of content with a list of Part objects.
type Content struct {
	// Parts is a list of Part objects representing the textual elements within
	// the content.
	Parts []*Part `json:"parts,omitempty"`
	// Role is the producer of the content. Must be either 'user' or 'model'.
	Role string `json:"role,omitempty"`
	// Text is occasionally set directly on the content instead of in parts.
	Text string `json:"text,omitempty"`
}

// Part represents a textual element within a Content object.
type Part struct {
	Text string `json:"text,omitempty"`
}

// FinishReason is the reason the model stopped generating tokens.
type FinishReason string

// See https://ai.google.dev/api/generate-content#FinishReason.
const (
	FinishStop       FinishReason = "STOP"
	FinishMaxTokens  FinishReason = "MAX_TOKENS"
	FinishSafety     FinishReason = "SAFETY"
	FinishRecitation FinishReason = "RECITATION"
	FinishOther      FinishReason = "OTHER"
)

// GenerateContentResponse defines the structure of the response received from
// the GenerateContent API.
type GenerateContentResponse struct {
	// Candidates is a list of Candidate objects representing the generated text
	// alternatives.
	Candidates []*Candidate `json:"candidates,omitempty"`
	// PromptFeedback is set when the prompt itself was blocked.
	PromptFeedback *PromptFeedback `json:"promptFeedback,omitempty"`
	// Error is set when the service reports an error in a 200 response.
	Error *APIError `json:"error,omitempty"`

	// Raw is the undecoded response body, kept for diagnostics.
	Raw json.RawMessage `json:"-"`
}

// Candidate represents a generated text candidate.
type Candidate struct {
	// Content is the generated content for this candidate.
	Content *Content `json:"content,omitempty"`
	// FinishReason is the reason the model stopped generating tokens.
	FinishReason FinishReason `json:"finishReason,omitempty"`
	// Text is occasionally set directly on the candidate.
	Text string `json:"text,omitempty"`
}

// PromptFeedback holds the reason the prompt was blocked.
type PromptFeedback struct {
	BlockReason string `json:"blockReason,omitempty"`
}

// APIError is an error reported by the Gemini API.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gemini: %s (%d %s)", e.Message, e.Code, e.Status)
}

// ParseError extracts an [APIError] from an error response body, returning nil
// if there is none.
func ParseError(body []byte) *APIError {
	var resp struct {
		Error *APIError `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil
	}
	return resp.Error
}

// GenerateContent sends a request to the Gemini API to generate text content.
//
// A non-200 response is reported as a [*request.StatusError] wrapping an
// [*APIError], if the body contains one.
func (c *Client) GenerateContent(ctx context.Context, model string, params GenerateContentParams) (*GenerateContentResponse, error) {
	if model == "" {
		return nil, errors.New("gemini: model shouldn't be empty")
	}
	base := apiURL
	if c.BaseURL != "" {
		base = strings.TrimSuffix(c.BaseURL, "/")
	}

	raw, err := request.Make[json.RawMessage](ctx, request.Params{
		Method: http.MethodPost,
		URL:    base + "/models/" + model + ":generateContent",
		Headers: map[string]string{
			"x-goog-api-key": c.APIKey,
		},
		Body:       params,
		HTTPClient: c.HTTPClient,
		Scrubber:   c.Scrubber,
	})
	if err != nil {
		var se *request.StatusError
		if errors.As(err, &se) {
			if apiErr := ParseError(se.Body); apiErr != nil {
				return nil, fmt.Errorf("%w: %w", err, apiErr)
			}
		}
		return nil, err
	}

	resp := new(GenerateContentResponse)
	if err := json.Unmarshal(raw, resp); err != nil {
		return nil, fmt.Errorf("gemini: decoding response: %w", err)
	}
	resp.Raw = raw
	return resp, nil
}
