package generate

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/faye25tom/TGNexus/internal/api/google/gemini"
)

// Defaults.
const (
	DefaultModel         = "gemini-2.5-flash"
	DefaultTimeout       = 30 * time.Second
	DefaultMaxInputRunes = 100000
	// MaxOutputTokens is the upper bound for the maxOutputTokens argument of
	// Generate.
	MaxOutputTokens = 100000

	truncationMarker = "...\n[content truncated]"

	temperature = 0.7
	topP        = 0.95
	topK        = 40
)

// Backend performs a single generateContent call.
type Backend interface {
	GenerateContent(ctx context.Context, model string, params gemini.GenerateContentParams) (*gemini.GenerateContentResponse, error)
}

// Config configures a [Client].
type Config struct {
	// APIKey is the generation service API key. Without it every call fails
	// with ErrNoAPIKey.
	APIKey string
	// Model is the model name. Defaults to DefaultModel.
	Model string
	// Backend performs requests. Defaults to the REST client.
	Backend Backend
	// HTTPClient is used by the default backend.
	HTTPClient *http.Client
	// Timeout bounds every call. Defaults to DefaultTimeout.
	Timeout time.Duration
	// MaxInputRunes caps the prompt length. Defaults to DefaultMaxInputRunes.
	MaxInputRunes int
	// Scrubber removes secrets from error messages.
	Scrubber *strings.Replacer
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Client is a [Generator] backed by Gemini.
type Client struct {
	apiKey   string
	model    string
	backend  Backend
	timeout  time.Duration
	maxInput int
	slog     *slog.Logger
}

var _ Generator = (*Client)(nil)

// New returns a new Client.
func New(c Config) *Client {
	cl := &Client{
		apiKey:   c.APIKey,
		model:    c.Model,
		backend:  c.Backend,
		timeout:  c.Timeout,
		maxInput: c.MaxInputRunes,
		slog:     c.Logger,
	}
	if cl.model == "" {
		cl.model = DefaultModel
	}
	if cl.timeout <= 0 {
		cl.timeout = DefaultTimeout
	}
	if cl.maxInput <= 0 {
		cl.maxInput = DefaultMaxInputRunes
	}
	if cl.slog == nil {
		cl.slog = slog.Default()
	}
	if cl.backend == nil {
		cl.backend = &gemini.Client{
			APIKey:     c.APIKey,
			HTTPClient: c.HTTPClient,
			Scrubber:   c.Scrubber,
		}
	}
	cl.slog = cl.slog.With("model", cl.model)
	return cl
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// Generate sends a single generation request and classifies the outcome. It
// never panics and never returns an error: failures are reported as
// [KindFailed] results.
func (c *Client) Generate(ctx context.Context, prompt string, maxOutputTokens int) Result {
	if c.apiKey == "" {
		c.slog.Error("generation is not configured", "error", ErrNoAPIKey)
		return Failed(ErrNoAPIKey)
	}

	prompt, capped := CapPrompt(prompt, c.maxInput)
	if capped {
		c.slog.Warn("prompt is too long, truncated", "max_runes", c.maxInput)
	}
	maxOutputTokens = min(max(maxOutputTokens, 1), MaxOutputTokens)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.backend.GenerateContent(ctx, c.model, gemini.GenerateContentParams{
		Contents: []*gemini.Content{{Role: "user", Parts: []*gemini.Part{{Text: prompt}}}},
		GenerationConfig: &gemini.GenerationConfig{
			MaxOutputTokens: maxOutputTokens,
			Temperature:     temperature,
			TopP:            topP,
			TopK:            topK,
		},
	})
	if err != nil {
		c.slog.Error("generation request failed", "error", err)
		return Failed(err)
	}
	return c.interpret(resp)
}

func (c *Client) interpret(resp *gemini.GenerateContentResponse) Result {
	if resp.Error != nil {
		c.slog.Error("generation service returned an error", "error", resp.Error)
		return Failed(resp.Error)
	}
	if len(resp.Candidates) == 0 {
		if pf := resp.PromptFeedback; pf != nil && pf.BlockReason != "" {
			c.slog.Warn("prompt was blocked", "reason", pf.BlockReason)
			return Blocked(ReasonSafety)
		}
		c.slog.Error("no candidates in generation response", "error", ErrMalformedResponse)
		c.slog.Debug("unexpected generation response", "payload", string(resp.Raw))
		return Failed(ErrMalformedResponse)
	}

	cand := resp.Candidates[0]
	switch cand.FinishReason {
	case gemini.FinishSafety:
		c.slog.Warn("generation blocked by safety filters")
		return Blocked(ReasonSafety)
	case gemini.FinishRecitation:
		c.slog.Warn("generation blocked for recitation")
		return Blocked(ReasonRecitation)
	case gemini.FinishMaxTokens:
		c.slog.Warn("generation hit the output limit, text may be incomplete")
	case "", gemini.FinishStop:
	default:
		c.slog.Warn("unexpected finish reason", "reason", cand.FinishReason)
	}

	x, ok := extract(cand)
	if !ok {
		c.slog.Error("can't extract text from generation response", "error", ErrMalformedResponse)
		c.slog.Debug("unexpected generation response", "payload", string(resp.Raw))
		return Failed(ErrMalformedResponse)
	}
	c.slog.Debug("extracted generated text", "strategy", x.strategy)
	if x.synthetic || cand.FinishReason == gemini.FinishMaxTokens {
		return Truncated(x.text)
	}
	return Text(x.text)
}

// Ping checks that the generation service is reachable and the credentials
// work, using a tiny output budget.
func (c *Client) Ping(ctx context.Context) error {
	r := c.Generate(ctx, "Reply with the single word OK.", 50)
	if r.Kind == KindFailed {
		return r.Err
	}
	return nil
}

// CapPrompt truncates prompt to at most maxRunes runes, appending a
// truncation marker, and reports whether it did.
func CapPrompt(prompt string, maxRunes int) (string, bool) {
	if utf8.RuneCountInString(prompt) <= maxRunes {
		return prompt, false
	}
	r := []rune(prompt)
	return string(r[:maxRunes]) + truncationMarker, true
}
