// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package synth

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/pdiddy/alif/pkg/types"
)

// FormatAnswer writes ans as readable text, sections in category order.
func FormatAnswer(ans types.Answer, cats types.Categories, w io.Writer) {
	fmt.Fprintln(w, ans.Title)
	fmt.Fprintln(w, strings.Repeat("=", len(ans.Title)))

	for _, cat := range cats.List() {
		sec, ok := ans.Sections[cat.Key]
		if !ok {
			continue
		}
		status := string(sec.Status)
		if status == "" {
			status = "n/a"
		}
		fmt.Fprintf(w, "\n%s [%s]\n", cat.Label, status)
		if sec.FeaturedQuote != "" {
			fmt.Fprintf(w, "  %q\n", sec.FeaturedQuote)
			if sec.FeaturedQuoteSource != nil {
				fmt.Fprintf(w, "    - %s <%s>\n", sec.FeaturedQuoteSource.Title, sec.FeaturedQuoteSource.URL)
			}
		}
		if sec.Summary != "" {
			for _, line := range strings.Split(sec.Summary, "\n") {
				fmt.Fprintf(w, "  %s\n", line)
			}
		}
		for i, c := range sec.Sources {
			fmt.Fprintf(w, "  [%d] %s <%s>\n", i+1, c.Title, c.URL)
		}
	}

	if len(ans.Conclusions) > 0 {
		fmt.Fprintln(w, "\nConclusions")
		for _, c := range ans.Conclusions {
			fmt.Fprintf(w, "  %s: %s\n", c.Label, c.Summary)
		}
	}
}

// FormatJSON writes ans as indented JSON.
func FormatJSON(ans types.Answer, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(ans)
}
