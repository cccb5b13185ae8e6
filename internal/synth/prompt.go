// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package synth

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"unicode/utf8"

	"github.com/pdiddy/alif/pkg/types"
)

// systemPromptTmpl frames the comparative, tradition-neutral analysis and the
// JSON answer shape.
var systemPromptTmpl = template.Must(template.New("synth").Parse(`You are Alif, a logic-based, belief-agnostic comparative jurisprudence framework.

CORE PRINCIPLES:
- Report what each tradition holds; never decide between traditions.
- Ground every statement in the provided sources or in well-known primary texts.
- Reference sources inline as [Label, n], where Label is the tradition label and n is the 1-based index of the source within that tradition.
- If a tradition has no clear ruling, say so and use the status "unsure".

METHODOLOGY:
1. Identify the question being asked.
2. For each tradition, summarize its position and cite the strongest supporting source.
3. Derive the logically valid conclusions across traditions.

RESPONSE FORMAT:
Respond with a single valid JSON object:
{
  "title": string,
  "sections": {
{{- range $i, $c := .Categories}}{{if $i}},{{end}}
    "{{$c.Key}}": {
      "featured_quote": string,
      "featured_quote_source": { "title": string, "url": string },
      "status": {{$.Statuses}} | null,
      "summary": string,
      "sources": [ { "title": string, "url": string } ]
    }
{{- end}}
  },
  "conclusions": [ { "label": string, "summary": string } ]
}

Traditions: {{range $i, $c := .Categories}}{{if $i}}, {{end}}{{$c.Label}}{{end}}.
Do NOT include any text outside the JSON object.
`))

var statusVocabulary = []types.Status{
	types.StatusPermitted, types.StatusForbidden, types.StatusDisliked,
	types.StatusUnsure, types.StatusEncouraged, types.StatusObligatory,
}

func renderSystemPrompt(cats types.Categories) (string, error) {
	quoted := make([]string, len(statusVocabulary))
	for i, s := range statusVocabulary {
		quoted[i] = `"` + string(s) + `"`
	}
	var buf bytes.Buffer
	err := systemPromptTmpl.Execute(&buf, struct {
		Categories []types.Category
		Statuses   string
	}{cats.List(), strings.Join(quoted, " | ")})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

// userPrompt lists the query and the scraped sources grouped by category,
// numbered per category so the model can cite them as [Label, n].
func userPrompt(query string, cats types.Categories, sources []types.ScrapedSource, maxChars int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Query: %s\n\n", query)

	grouped := groupSources(sources)
	for _, cat := range cats.List() {
		list := grouped[cat.Key]
		fmt.Fprintf(&b, "== %s ==\n", cat.Label)
		if len(list) == 0 {
			b.WriteString("(no sources retrieved)\n\n")
			continue
		}
		for i, s := range list {
			fmt.Fprintf(&b, "[%s, %d] %s\n%s\n%s\n\n", cat.Label, i+1, s.Title, s.Link, clip(s.Content, maxChars))
		}
	}
	b.WriteString("Please provide a comprehensive analysis of the query across every tradition above, in the response format described.")
	return b.String()
}

// groupSources buckets non-placeholder sources by category, keeping order.
func groupSources(sources []types.ScrapedSource) map[string][]types.ScrapedSource {
	out := make(map[string][]types.ScrapedSource)
	for _, s := range sources {
		if s.Placeholder {
			continue
		}
		out[s.Category] = append(out[s.Category], s)
	}
	return out
}

func clip(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	s = s[:max]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s + "..."
}
