// © 2024 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package tgmarkup converts Markdown text, as produced by language models,
// to Telegram message text with formatting entities.
package tgmarkup

import (
	"strconv"
	"strings"
	"unicode/utf16"

	"rsc.io/markdown"
)

// Message is a Telegram message text with entities for formatting. It is
// designed to be embedded into sendMessage request bodies.
// See https://core.telegram.org/bots/api#sendmessage.
type Message struct {
	Text     string   `json:"text"`
	Entities []Entity `json:"entities,omitempty"`
}

// Type represents the type of a Telegram message entity.
// See https://core.telegram.org/bots/api#messageentity.
type Type string

// Entity types produced by [FromMarkdown].
const (
	URL           Type = "url"
	Bold          Type = "bold"
	Italic        Type = "italic"
	Strikethrough Type = "strikethrough"
	Blockquote    Type = "blockquote"
	Code          Type = "code"
	Pre           Type = "pre"
	TextLink      Type = "text_link"
)

// Entity is a formatted part of the message text.
type Entity struct {
	Type Type `json:"type"`
	// Offset in UTF-16 code units to the start of the entity.
	Offset int `json:"offset"`
	// Length of the entity in UTF-16 code units.
	Length int `json:"length"`
	// URL is set for text_link entities only.
	URL string `json:"url,omitempty"`
	// Language is set for pre entities only.
	Language string `json:"language,omitempty"`
}

// FromMarkdown converts a Markdown text to a [Message]. Top-level blocks are
// separated by an empty line; trailing newlines are dropped.
func FromMarkdown(text string) Message {
	p := markdown.Parser{
		Strikethrough: true,
		AutoLinkText:  true,
	}
	doc := p.Parse(text)

	c := new(converter)
	for i, b := range doc.Blocks {
		if i > 0 {
			c.sb.WriteString("\n")
		}
		c.block(b)
	}

	out := strings.TrimRight(c.sb.String(), "\n")
	total := utf16len(out)
	var entities []Entity
	for _, e := range c.entities {
		e.Length = min(e.Length, total-e.Offset)
		if e.Length > 0 {
			entities = append(entities, e)
		}
	}
	return Message{Text: out, Entities: entities}
}

type converter struct {
	sb       strings.Builder
	entities []Entity
}

func (c *converter) offset() int { return utf16len(c.sb.String()) }

// wrap records an entity of type t around whatever f writes.
func (c *converter) wrap(t Type, f func()) *Entity {
	start := c.offset()
	f()
	c.entities = append(c.entities, Entity{Type: t, Offset: start, Length: c.offset() - start})
	return &c.entities[len(c.entities)-1]
}

func (c *converter) block(b markdown.Block) {
	switch block := b.(type) {
	case *markdown.Paragraph:
		c.inlines(block.Text.Inline)
		c.sb.WriteString("\n")
	case *markdown.Text:
		// Paragraphs of tight list items.
		c.inlines(block.Inline)
		c.sb.WriteString("\n")
	case *markdown.Heading:
		c.wrap(Bold, func() { c.inlines(block.Text.Inline) })
		c.sb.WriteString("\n")
	case *markdown.Quote:
		c.wrap(Blockquote, func() {
			for _, b := range block.Blocks {
				c.block(b)
			}
		})
	case *markdown.CodeBlock:
		e := c.wrap(Pre, func() { c.sb.WriteString(strings.Join(block.Text, "\n")) })
		e.Language = block.Info
		c.sb.WriteString("\n")
	case *markdown.List:
		ordered := block.Bullet == '.' || block.Bullet == ')'
		n := block.Start
		for _, ib := range block.Items {
			item, ok := ib.(*markdown.Item)
			if !ok {
				continue
			}
			if ordered {
				c.sb.WriteString(strconv.Itoa(n) + ". ")
				n++
			} else {
				c.sb.WriteString("• ")
			}
			for _, b := range item.Blocks {
				c.block(b)
			}
		}
	case *markdown.ThematicBreak:
		c.sb.WriteString("⸻\n")
	}
}

func (c *converter) inlines(inlines []markdown.Inline) {
	for _, inline := range inlines {
		c.inline(inline)
	}
}

func (c *converter) inline(i markdown.Inline) {
	switch inline := i.(type) {
	case *markdown.Plain:
		c.sb.WriteString(inline.Text)
	case *markdown.Escaped:
		c.sb.WriteString(inline.Text)
	case *markdown.Strong:
		c.wrap(Bold, func() { c.inlines(inline.Inner) })
	case *markdown.Emph:
		c.wrap(Italic, func() { c.inlines(inline.Inner) })
	case *markdown.Del:
		c.wrap(Strikethrough, func() { c.inlines(inline.Inner) })
	case *markdown.Link:
		e := c.wrap(TextLink, func() { c.inlines(inline.Inner) })
		e.URL = inline.URL
	case *markdown.AutoLink:
		c.wrap(URL, func() { c.sb.WriteString(inline.Text) })
	case *markdown.Code:
		c.wrap(Code, func() { c.sb.WriteString(inline.Text) })
	case *markdown.HTMLTag:
		c.sb.WriteString(inline.Text)
	case *markdown.SoftBreak, *markdown.HardBreak:
		c.sb.WriteString("\n")
	}
}

func utf16len(s string) int {
	return len(utf16.Encode([]rune(s)))
}
