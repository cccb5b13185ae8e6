// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

var (
	// tagStripper removes every element, including markup that was
	// entity-escaped in the source page and so survived parsing as text.
	tagStripper = bluemonday.StrictPolicy().AddSpaceWhenStrippingTag(true)

	blankRunRe = regexp.MustCompile(`\n{3,}`)
)

// Normalize cleans extracted text: entities are decoded, residual tags
// removed, whitespace collapsed within each line, and runs of blank lines
// reduced to one.
func Normalize(text string) string {
	text = html.UnescapeString(text)
	// The policy escapes what it keeps, so decode once more afterwards.
	text = html.UnescapeString(tagStripper.Sanitize(text))
	text = strings.ReplaceAll(text, "\r\n", "\n")

	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = collapseSpace(l)
	}
	text = strings.Join(lines, "\n")
	text = blankRunRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// normalizeMarkdown trims trailing spaces and blank-line runs while keeping
// the indentation Markdown relies on.
func normalizeMarkdown(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	text = strings.Join(lines, "\n")
	text = blankRunRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
