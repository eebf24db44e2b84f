package feed

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html"
)

const (
	// PromptItemLimit is the maximum number of items FormatForPrompt renders.
	PromptItemLimit = 8
	summaryLimit    = 80

	promptHeader = "Here are the latest news articles. Write a concise digest of the most important stories:"
)

// FilterRecent returns items published strictly after now minus within, in
// their original order. now is compared by wall clock, like ParseDate results.
func FilterRecent(items []Item, within time.Duration, now time.Time) []Item {
	cutoff := naive(now).Add(-within)
	var recent []Item
	for _, it := range items {
		if it.Published.After(cutoff) {
			recent = append(recent, it)
		}
	}
	return recent
}

// FormatForPrompt renders at most PromptItemLimit items as a numbered list
// suitable for a language model prompt.
func FormatForPrompt(items []Item) string {
	var sb strings.Builder
	sb.WriteString(promptHeader + "\n")
	for i, it := range items[:min(len(items), PromptItemLimit)] {
		fmt.Fprintf(&sb, "\n%d. %s (%s)\n", i+1, it.Title, it.Source)
		if s := promptSummary(it.Summary); s != "" {
			sb.WriteString("   " + s + "\n")
		}
	}
	return sb.String()
}

func promptSummary(s string) string {
	s = StripMarkup(s)
	if utf8.RuneCountInString(s) > summaryLimit {
		s = string([]rune(s)[:summaryLimit]) + "..."
	}
	return s
}

// StripMarkup returns the text content of an HTML fragment with whitespace
// collapsed. Script and style contents are dropped.
func StripMarkup(s string) string {
	z := html.NewTokenizer(strings.NewReader(s))
	var (
		sb   strings.Builder
		skip int
	)
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(sb.String()), " ")
		case html.StartTagToken:
			if name, _ := z.TagName(); isRawText(name) {
				skip++
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); isRawText(name) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				sb.Write(z.Text())
				sb.WriteByte(' ')
			}
		}
	}
}

func isRawText(tag []byte) bool {
	return string(tag) == "script" || string(tag) == "style"
}
