// Package generate turns prompts into text with a generative language model
// and classifies every outcome into a [Result].
package generate

import (
	"context"
	"errors"
)

// Kind classifies a generation outcome.
type Kind int

const (
	// KindText is a successful generation.
	KindText Kind = iota
	// KindBlocked means the service refused to generate content.
	KindBlocked
	// KindTruncated means the text was cut by the output limit.
	KindTruncated
	// KindFailed means there's no usable output.
	KindFailed
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindBlocked:
		return "blocked"
	case KindTruncated:
		return "truncated"
	case KindFailed:
		return "failed"
	}
	return "unknown"
}

// Block reasons.
const (
	ReasonSafety     = "safety"
	ReasonRecitation = "recitation"
)

// User-facing explanations for blocked generations.
const (
	MsgSafety     = "Sorry, I can't generate this content because of safety restrictions. Try rephrasing your request."
	MsgRecitation = "Sorry, I can't generate this content because it may reproduce copyrighted material."
	// MsgTruncatedEmpty is returned when the output limit was reached before
	// any text was produced.
	MsgTruncatedEmpty = "Sorry, the response was cut off before any text was produced. Try a shorter request or reduce the amount of input."
)

var (
	// ErrNoAPIKey is returned when generation is attempted without an API key.
	ErrNoAPIKey = errors.New("generation API key is not configured")
	// ErrMalformedResponse is returned when no text can be extracted from a
	// response.
	ErrMalformedResponse = errors.New("unexpected generation response shape")
)

// Result is the outcome of a single generation.
type Result struct {
	Kind Kind
	// Text is set for KindText and KindTruncated.
	Text string
	// Reason is set for KindBlocked.
	Reason string
	// Err is set for KindFailed.
	Err error
}

// Text returns a successful Result.
func Text(s string) Result { return Result{Kind: KindText, Text: s} }

// Blocked returns a Result for content refused for the given reason.
func Blocked(reason string) Result { return Result{Kind: KindBlocked, Reason: reason} }

// Truncated returns a Result for text cut by the output limit.
func Truncated(s string) Result { return Result{Kind: KindTruncated, Text: s} }

// Failed returns a Result for a failed generation.
func Failed(err error) Result { return Result{Kind: KindFailed, Err: err} }

// OK reports whether r carries text that can be shown to users.
func (r Result) OK() bool {
	return (r.Kind == KindText || r.Kind == KindTruncated) && r.Text != ""
}

// UserMessage renders r as text suitable for sending to users: the generated
// text, an explanation for blocked content, or fallback on failure. Stop
// reason codes are never shown.
func UserMessage(r Result, fallback string) string {
	switch {
	case r.OK():
		return r.Text
	case r.Kind == KindBlocked && r.Reason == ReasonRecitation:
		return MsgRecitation
	case r.Kind == KindBlocked:
		return MsgSafety
	}
	return fallback
}

// Generator generates text from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string, maxOutputTokens int) Result
}
