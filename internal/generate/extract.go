package generate

import (
	"strings"

	"github.com/faye25tom/TGNexus/internal/api/google/gemini"
)

type extraction struct {
	text     string
	strategy string
	// synthetic is true when text is an explanation produced here rather
	// than model output.
	synthetic bool
}

// strategies are tried in order; the first that matches wins.
var strategies = []struct {
	name string
	fn   func(*gemini.Candidate) (text string, synthetic, ok bool)
}{
	{"parts", fromParts},
	{"content text", fromContentText},
	{"candidate text", fromCandidateText},
	{"role only", fromRoleOnly},
}

func extract(c *gemini.Candidate) (extraction, bool) {
	for _, s := range strategies {
		if text, synthetic, ok := s.fn(c); ok {
			return extraction{text: text, strategy: s.name, synthetic: synthetic}, true
		}
	}
	return extraction{}, false
}

func fromParts(c *gemini.Candidate) (string, bool, bool) {
	if c.Content == nil {
		return "", false, false
	}
	for _, p := range c.Content.Parts {
		if p == nil {
			continue
		}
		if text := strings.TrimSpace(p.Text); text != "" {
			return text, false, true
		}
	}
	return "", false, false
}

func fromContentText(c *gemini.Candidate) (string, bool, bool) {
	if c.Content == nil {
		return "", false, false
	}
	text := strings.TrimSpace(c.Content.Text)
	return text, false, text != ""
}

func fromCandidateText(c *gemini.Candidate) (string, bool, bool) {
	text := strings.TrimSpace(c.Text)
	return text, false, text != ""
}

// fromRoleOnly matches content that carries nothing but a role, which the
// service returns when the output limit is hit before any text.
func fromRoleOnly(c *gemini.Candidate) (string, bool, bool) {
	if c.Content == nil || c.Content.Role == "" {
		return "", false, false
	}
	return MsgTruncatedEmpty, true, true
}
