// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package synth

import (
	"fmt"
	"strings"

	"github.com/pdiddy/alif/pkg/types"
)

// fallbackSummaryItems is the number of sources listed in a fallback summary.
const fallbackSummaryItems = 3

// FillEmptySections replaces every empty section in ans with one built from
// that category's scraped sources and returns the keys it replaced.
// Placeholder sources are never cited.
func FillEmptySections(ans *types.Answer, cats types.Categories, sources []types.ScrapedSource) []string {
	if ans.Sections == nil {
		ans.Sections = make(map[string]types.Section, cats.Len())
	}
	grouped := groupSources(sources)

	var filled []string
	for _, cat := range cats.List() {
		if !ans.Sections[cat.Key].IsEmpty() {
			continue
		}
		ans.Sections[cat.Key] = fallbackSection(cat, grouped[cat.Key])
		filled = append(filled, cat.Key)
	}
	return filled
}

func fallbackSection(cat types.Category, list []types.ScrapedSource) types.Section {
	label := displayLabel(cat)
	sec := types.Section{
		FeaturedQuote: "Top sources for " + label,
		Sources:       make([]types.Citation, 0, len(list)),
	}
	if len(list) == 0 {
		return sec
	}

	top := list[0]
	sec.FeaturedQuote = firstNonEmpty(top.Title, sec.FeaturedQuote)
	sec.FeaturedQuoteSource = &types.Citation{Title: firstNonEmpty(top.Title, top.Link), URL: top.Link}

	var lines []string
	for i, s := range list {
		title := firstNonEmpty(s.Title, s.Link)
		sec.Sources = append(sec.Sources, types.Citation{Title: title, URL: s.Link})
		if i < fallbackSummaryItems {
			lines = append(lines, fmt.Sprintf("- [%s, %d] %s", label, i+1, title))
		}
	}
	sec.Summary = strings.Join(lines, "\n")
	return sec
}

// displayLabel renders an upper-case category label in title case
// ("JUDAISM" becomes "Judaism").
func displayLabel(cat types.Category) string {
	l := strings.ToLower(cat.Label)
	if l == "" {
		l = cat.Key
	}
	if l == "" {
		return ""
	}
	return strings.ToUpper(l[:1]) + l[1:]
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
