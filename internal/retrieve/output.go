// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package retrieve

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/pdiddy/alif/pkg/types"
)

// FormatTable writes sources grouped by category as a human-readable table.
func FormatTable(sources []types.ScrapedSource, w io.Writer) {
	if len(sources) == 0 {
		fmt.Fprintln(w, "No sources found.")
		return
	}

	fmt.Fprintf(w, "%-14s  %-12s  %-45s  %s\n", "Category", "Engine", "Title", "Link")
	fmt.Fprintln(w, strings.Repeat("-", 120))

	var placeholders int
	for _, s := range sources {
		label := s.Label
		if label == "" {
			label = s.Category
		}
		link := s.Link
		if s.Placeholder {
			placeholders++
			link = "-"
		}
		fmt.Fprintf(w, "%-14s  %-12s  %-45s  %s\n", truncate(label, 14), truncate(s.Engine, 12), truncate(s.Title, 45), link)
	}

	fmt.Fprintf(w, "\n%d sources", len(sources)-placeholders)
	if placeholders > 0 {
		fmt.Fprintf(w, ", %d exhausted categories", placeholders)
	}
	fmt.Fprintln(w)
}

// FormatJSON writes sources as indented JSON.
func FormatJSON(sources []types.ScrapedSource, w io.Writer) error {
	if sources == nil {
		sources = []types.ScrapedSource{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(sources)
}

// PrintProgress writes one line per event until events is closed.
func PrintProgress(events <-chan types.ProgressEvent, w io.Writer) {
	for ev := range events {
		switch ev.Kind {
		case types.EventMirror:
			fmt.Fprintf(w, "%-14s  mirror   %s\n", ev.Category, ev.Engine)
		case types.EventSource:
			fmt.Fprintf(w, "%-14s  source   %s\n", ev.Category, ev.Detail)
		case types.EventError:
			fmt.Fprintf(w, "%-14s  error    %s\n", ev.Category, ev.Detail)
		case types.EventDone:
			fmt.Fprintf(w, "%-14s  done     %s\n", ev.Category, ev.Detail)
		case types.EventTimeout:
			fmt.Fprintf(w, "%-14s  timeout\n", ev.Category)
		case types.EventPhase:
			fmt.Fprintf(w, "%-14s  %-8s %s\n", ev.Category, ev.Phase, ev.Detail)
		}
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
