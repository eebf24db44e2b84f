// © 2024 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package tgmarkup

import (
	"testing"

	"github.com/faye25tom/TGNexus/internal/testutil"
)

func TestFromMarkdown(t *testing.T) {
	cases := map[string]struct {
		in   string
		want Message
	}{
		"plain text": {
			in:   "Just text.",
			want: Message{Text: "Just text."},
		},
		"bold": {
			in: "**Hello** world",
			want: Message{
				Text:     "Hello world",
				Entities: []Entity{{Type: Bold, Offset: 0, Length: 5}},
			},
		},
		"heading and paragraph": {
			in: "# Markets\n\nStocks rose.",
			want: Message{
				Text:     "Markets\n\nStocks rose.",
				Entities: []Entity{{Type: Bold, Offset: 0, Length: 7}},
			},
		},
		"bullet list": {
			in:   "- one\n- two",
			want: Message{Text: "• one\n• two"},
		},
		"ordered list": {
			in:   "1. first\n2. second",
			want: Message{Text: "1. first\n2. second"},
		},
		"link": {
			in: "[source](https://example.com/a)",
			want: Message{
				Text:     "source",
				Entities: []Entity{{Type: TextLink, Offset: 0, Length: 6, URL: "https://example.com/a"}},
			},
		},
		"offsets count UTF-16 code units": {
			in: "Daily 📰 *news*",
			want: Message{
				Text:     "Daily 📰 news",
				Entities: []Entity{{Type: Italic, Offset: 9, Length: 4}},
			},
		},
		"inline code": {
			in: "Run `make`",
			want: Message{
				Text:     "Run make",
				Entities: []Entity{{Type: Code, Offset: 4, Length: 4}},
			},
		},
		"empty": {
			in:   "",
			want: Message{},
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			testutil.AssertEqual(t, FromMarkdown(tc.in), tc.want)
		})
	}
}

func TestUTF16Len(t *testing.T) {
	testutil.AssertEqual(t, utf16len("abc"), 3)
	testutil.AssertEqual(t, utf16len("📰"), 2)
	testutil.AssertEqual(t, utf16len("新闻"), 2)
}
