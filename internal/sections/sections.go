// Package sections splits OCR Markdown into heading-delimited sections.
package sections

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// UntitledHeading labels content that precedes the first heading.
const UntitledHeading = "(untitled)"

// Section is one heading and the content that follows it up to the next
// heading. Page is filled in by callers that know which page the markdown
// came from.
type Section struct {
	Heading string `json:"heading"`
	Level   int    `json:"level"`
	Page    int    `json:"page,omitempty"`
	Content string `json:"content"`
}

var md = goldmark.New()

// Parse splits markdown on ATX headings (# through ######). Content before
// the first heading becomes an untitled level-0 section, as does a document
// with no headings at all. An empty document yields nil.
func Parse(markdown string) []Section {
	src := []byte(markdown)
	doc := md.Parser().Parse(text.NewReader(src))

	type headingMark struct {
		level        int
		title        string
		lineStart    int // offset of the '#' opening the heading line
		contentStart int // offset just past the heading text
	}

	var heads []headingMark
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		h, ok := n.(*ast.Heading)
		if !ok || h.Lines().Len() == 0 {
			continue
		}
		seg := h.Lines().At(0)

		// Backtrack to the start of the heading's line; only ATX headings
		// count, so setext underlines (text over ---) are skipped.
		lineStart := seg.Start
		for lineStart > 0 && src[lineStart-1] != '\n' {
			lineStart--
		}
		if src[lineStart] != '#' {
			continue
		}

		heads = append(heads, headingMark{
			level:        h.Level,
			title:        strings.TrimSpace(string(seg.Value(src))),
			lineStart:    lineStart,
			contentStart: seg.Stop,
		})
	}

	if len(heads) == 0 {
		content := strings.TrimSpace(markdown)
		if content == "" {
			return nil
		}
		return []Section{{Heading: UntitledHeading, Level: 0, Content: content}}
	}

	var out []Section
	if pre := strings.TrimSpace(markdown[:heads[0].lineStart]); pre != "" {
		out = append(out, Section{Heading: UntitledHeading, Level: 0, Content: pre})
	}

	for i, h := range heads {
		end := len(markdown)
		if i+1 < len(heads) {
			end = heads[i+1].lineStart
		}
		out = append(out, Section{
			Heading: h.title,
			Level:   h.level,
			Content: strings.TrimSpace(markdown[h.contentStart:end]),
		})
	}
	return out
}
