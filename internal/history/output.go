// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package history

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
)

// newTable returns a table writer targeting w. Terminals get rounded box
// drawing; pipes and files get plain ASCII.
func newTable(w io.Writer, header table.Row, rightAligned ...int) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleDefault)
	if f, ok := w.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		tw.SetStyle(table.StyleRounded)
	}
	tw.Style().Format.Header = text.FormatDefault
	tw.AppendHeader(header)

	configs := make([]table.ColumnConfig, 0, len(rightAligned))
	for _, n := range rightAligned {
		configs = append(configs, table.ColumnConfig{Number: n, Align: text.AlignRight, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)
	return tw
}

// FormatTable writes runs as a human-readable table.
func FormatTable(runs []Run, w io.Writer) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}

	tw := newTable(w, table.Row{"ID", "Started", "Outcome", "Sources", "Prompt"}, 4)
	for _, r := range runs {
		tw.AppendRow(table.Row{
			r.ID, r.Started.Local().Format("2006-01-02 15:04:05"), r.Outcome, r.SourceCount(), truncate(r.Prompt, 40),
		})
	}
	tw.Render()
	fmt.Fprintf(w, "\n%d runs\n", len(runs))
}

// FormatDetail writes one run with its per-category breakdown.
func FormatDetail(r Run, w io.Writer) {
	fmt.Fprintf(w, "Run:      %s\n", r.ID)
	fmt.Fprintf(w, "Prompt:   %s\n", r.Prompt)
	fmt.Fprintf(w, "Outcome:  %s\n", r.Outcome)
	if r.Error != "" {
		fmt.Fprintf(w, "Error:    %s\n", r.Error)
	}
	if !r.Finished.IsZero() {
		fmt.Fprintf(w, "Duration: %s\n", r.Finished.Sub(r.Started).Round(time.Millisecond))
	}
	fmt.Fprintln(w)

	tw := newTable(w, table.Row{"Category", "Engine", "Sources", "Query"}, 3)
	for _, c := range r.Categories {
		sources := fmt.Sprint(c.Sources)
		if c.Exhausted {
			sources = "-"
		}
		tw.AppendRow(table.Row{c.Key, truncate(c.Engine, 28), sources, c.Query})
	}
	tw.Render()
}

// FormatJSON writes runs as indented JSON.
func FormatJSON(runs []Run, w io.Writer) error {
	if runs == nil {
		runs = []Run{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(runs)
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
