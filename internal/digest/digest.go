// Package digest derives a title and a short summary from markdown record
// content, for records written without them.
package digest

import (
	"strings"
	"unicode/utf8"
)

const (
	DefaultTitleLen   = 80
	DefaultSummaryLen = 240
)

// Options bounds the derived fields, in runes.
type Options struct {
	TitleLen   int
	SummaryLen int
}

// DefaultOptions returns default digest limits.
func DefaultOptions() Options {
	return Options{
		TitleLen:   DefaultTitleLen,
		SummaryLen: DefaultSummaryLen,
	}
}

// Digest is a derived title and summary.
type Digest struct {
	Title   string
	Summary string
}

// Of derives a digest from content. The title is the first heading, or the
// first line when there is no heading. The summary is the first block that
// is not a heading.
func Of(content string, opts Options) Digest {
	if opts.TitleLen == 0 {
		opts = DefaultOptions()
	}

	blocks := splitBlocks(strings.TrimSpace(content))
	if len(blocks) == 0 {
		return Digest{}
	}

	var d Digest
	for _, b := range blocks {
		if d.Title == "" && b.heading {
			d.Title = truncate(b.text, opts.TitleLen)
			continue
		}
		if d.Summary == "" && !b.heading {
			d.Summary = truncate(flatten(b.text), opts.SummaryLen)
		}
		if d.Title != "" && d.Summary != "" {
			break
		}
	}
	if d.Title == "" {
		first, _, _ := strings.Cut(blocks[0].text, "\n")
		d.Title = truncate(first, opts.TitleLen)
	}
	return d
}

// Fill returns title and summary with any empty one replaced from content.
func Fill(title, summary, content string, opts Options) (string, string) {
	if title != "" && summary != "" {
		return title, summary
	}
	d := Of(content, opts)
	if title == "" {
		title = d.Title
	}
	if summary == "" {
		summary = d.Summary
	}
	return title, summary
}

type block struct {
	text    string
	heading bool
}

// splitBlocks splits text on heading lines and blank lines. Heading blocks
// carry the heading text without its leading #s.
func splitBlocks(text string) []block {
	var blocks []block
	var current []string

	flush := func() {
		t := strings.TrimSpace(strings.Join(current, "\n"))
		if t != "" {
			blocks = append(blocks, block{text: t})
		}
		current = nil
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "#"):
			flush()
			if h := strings.TrimSpace(strings.TrimLeft(trimmed, "#")); h != "" {
				blocks = append(blocks, block{text: h, heading: true})
			}
		case trimmed == "":
			flush()
		default:
			current = append(current, trimmed)
		}
	}
	flush()
	return blocks
}

func flatten(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncate cuts s to at most n runes, on a word boundary when one exists in
// the back half, and marks the cut with an ellipsis.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)[:n-1]
	cut := string(r)
	if i := strings.LastIndexByte(cut, ' '); i > len(cut)/2 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " .,;:") + "…"
}
