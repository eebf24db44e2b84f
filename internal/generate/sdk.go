package generate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/faye25tom/TGNexus/internal/api/google/gemini"
)

// SDKBackend is a [Backend] built on the official Go SDK. Responses are
// converted to the REST wire types, so extraction and stop reason handling
// are shared with the REST backend.
type SDKBackend struct {
	client *genai.Client
}

var _ Backend = (*SDKBackend)(nil)

// NewSDKBackend returns a new SDKBackend authenticated with apiKey.
func NewSDKBackend(ctx context.Context, apiKey string) (*SDKBackend, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating generative AI client: %w", err)
	}
	return &SDKBackend{client: client}, nil
}

// Close releases the underlying connection.
func (b *SDKBackend) Close() error { return b.client.Close() }

// GenerateContent implements [Backend].
func (b *SDKBackend) GenerateContent(ctx context.Context, model string, params gemini.GenerateContentParams) (*gemini.GenerateContentResponse, error) {
	m := b.client.GenerativeModel(model)
	if gc := params.GenerationConfig; gc != nil {
		m.SetMaxOutputTokens(int32(gc.MaxOutputTokens))
		m.SetTemperature(float32(gc.Temperature))
		m.SetTopP(float32(gc.TopP))
		m.SetTopK(int32(gc.TopK))
	}

	var parts []genai.Part
	for _, c := range params.Contents {
		for _, p := range c.Parts {
			parts = append(parts, genai.Text(p.Text))
		}
	}

	resp, err := m.GenerateContent(ctx, parts...)
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return fromBlocked(blocked), nil
	}
	if err != nil {
		return nil, err
	}
	return fromSDK(resp), nil
}

// fromBlocked converts the SDK's blocked error back into the response shape
// the REST API returns for blocked content.
func fromBlocked(e *genai.BlockedError) *gemini.GenerateContentResponse {
	resp := new(gemini.GenerateContentResponse)
	if e.Candidate != nil {
		resp.Candidates = []*gemini.Candidate{fromCandidate(e.Candidate)}
	}
	if e.PromptFeedback != nil {
		resp.PromptFeedback = &gemini.PromptFeedback{BlockReason: blockReason(e.PromptFeedback.BlockReason)}
	}
	resp.Raw, _ = json.Marshal(resp)
	return resp
}

func fromSDK(r *genai.GenerateContentResponse) *gemini.GenerateContentResponse {
	resp := new(gemini.GenerateContentResponse)
	for _, c := range r.Candidates {
		resp.Candidates = append(resp.Candidates, fromCandidate(c))
	}
	if pf := r.PromptFeedback; pf != nil && pf.BlockReason != genai.BlockReasonUnspecified {
		resp.PromptFeedback = &gemini.PromptFeedback{BlockReason: blockReason(pf.BlockReason)}
	}
	resp.Raw, _ = json.Marshal(resp)
	return resp
}

func fromCandidate(c *genai.Candidate) *gemini.Candidate {
	out := &gemini.Candidate{FinishReason: finishReason(c.FinishReason)}
	if c.Content == nil {
		return out
	}
	out.Content = &gemini.Content{Role: c.Content.Role}
	for _, p := range c.Content.Parts {
		if t, ok := p.(genai.Text); ok {
			out.Content.Parts = append(out.Content.Parts, &gemini.Part{Text: string(t)})
		}
	}
	return out
}

func finishReason(r genai.FinishReason) gemini.FinishReason {
	switch r {
	case genai.FinishReasonStop:
		return gemini.FinishStop
	case genai.FinishReasonMaxTokens:
		return gemini.FinishMaxTokens
	case genai.FinishReasonSafety:
		return gemini.FinishSafety
	case genai.FinishReasonRecitation:
		return gemini.FinishRecitation
	case genai.FinishReasonUnspecified:
		return ""
	}
	return gemini.FinishOther
}

func blockReason(r genai.BlockReason) string {
	if r == genai.BlockReasonSafety {
		return "SAFETY"
	}
	return "OTHER"
}
