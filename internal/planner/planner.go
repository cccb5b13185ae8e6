// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package planner turns a free-text question into one search query per
// enabled category by delegating to a query-expansion LLM and validating its
// JSON response. A plan is either complete or rejected; partial plans never
// reach retrieval.
package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"text/template"

	"go.uber.org/zap"

	"github.com/pdiddy/alif/internal/llm"
	"github.com/pdiddy/alif/pkg/types"
)

// legacyNumResults is assigned to queries recovered from the legacy array
// response shape, which carries no counts.
const legacyNumResults = 3

// Expander is the query-expansion collaborator. llm backends satisfy it.
type Expander interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// PlannerError reports a malformed, incomplete, or failed expansion. It is
// fatal to the run.
type PlannerError struct {
	Reason string

	// Raw is the model output, when one was received.
	Raw string

	Err error
}

func (e *PlannerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("planner: %s: %v", e.Reason, e.Err)
	}
	return "planner: " + e.Reason
}

func (e *PlannerError) Unwrap() error { return e.Err }

// Planner produces Plans over a fixed category table.
type Planner struct {
	Expander   Expander
	Categories types.Categories
	Logger     *zap.Logger
}

// New returns a Planner.
func New(exp Expander, cats types.Categories, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{Expander: exp, Categories: cats, Logger: logger}
}

// systemPromptTmpl instructs the model to answer with one query per category.
var systemPromptTmpl = template.Must(template.New("planner").Parse(`You are Alif, a comparative research assistant.
Your task is to generate concise search queries based on the user's prompt.
Each query should be suitable for searching the sources of one of these traditions: {{range $i, $c := .Categories}}{{if $i}}, {{end}}{{$c.Label}}{{end}}.
If the prompt contains multiple questions or topics, fold them into each query.

For each tradition, also provide a number ({{.Min}}-{{.Max}}) for how many search results should be fetched for that query, based on how much information is likely needed to answer the prompt well.

RESPONSE FORMAT:
Respond with a single valid JSON object:
{
  "queries": {
{{- range $i, $c := .Categories}}{{if $i}},{{end}}
    "{{$c.Key}}": { "query": string, "numResults": number }
{{- end}}
  }
}

Guidelines:
- Each query should be clear, specific, and suitable for comparative search.
- numResults must be an integer between {{.Min}} and {{.Max}} and reflect the complexity or breadth of the topic for each tradition.
- Do NOT include any text outside the JSON object.
`))

// renderSystemPrompt executes the system prompt template for cats.
func renderSystemPrompt(cats types.Categories) (string, error) {
	var buf bytes.Buffer
	err := systemPromptTmpl.Execute(&buf, struct {
		Categories []types.Category
		Min, Max   int
	}{cats.List(), types.MinResults, types.MaxResults})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

func userPrompt(prompt string) string {
	return "User prompt: " + prompt + "\nGenerate search queries and number of results as described above."
}

// Plan expands prompt into a validated Plan covering every enabled category.
// All failures are *PlannerError except context cancellation, which is
// returned as-is.
func (p *Planner) Plan(ctx context.Context, prompt string) (types.Plan, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return types.Plan{}, &PlannerError{Reason: "empty prompt"}
	}
	if p.Categories.Len() == 0 {
		return types.Plan{}, &PlannerError{Reason: "no categories enabled"}
	}
	if p.Expander == nil {
		return types.Plan{}, &PlannerError{Reason: "no query expander configured"}
	}

	system, err := renderSystemPrompt(p.Categories)
	if err != nil {
		return types.Plan{}, &PlannerError{Reason: "rendering prompt", Err: err}
	}

	p.logger().Debug("expanding prompt", zap.String("prompt", prompt), zap.Int("categories", p.Categories.Len()))
	raw, err := p.Expander.Generate(ctx, system, userPrompt(prompt))
	if err != nil {
		if ctx.Err() != nil {
			return types.Plan{}, ctx.Err()
		}
		return types.Plan{}, &PlannerError{Reason: "query expansion failed", Err: err}
	}

	queries, err := normalizePlannerResponse(raw, p.Categories)
	if err != nil {
		p.logger().Warn("rejected planner response", zap.Error(err), zap.String("raw", raw))
		var pe *PlannerError
		if errors.As(err, &pe) {
			pe.Raw = raw
		}
		return types.Plan{}, err
	}

	plan := types.Plan{Prompt: prompt, Order: p.Categories.Keys(), Queries: queries}
	p.logger().Info("plan ready", zap.Int("categories", len(plan.Order)))
	return plan, nil
}

func (p *Planner) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}

// plannerResponse accepts both the keyed object form and the legacy array
// form of "queries".
type plannerResponse struct {
	Queries json.RawMessage `json:"queries"`
}

type rawPlannedQuery struct {
	Query      *string         `json:"query"`
	NumResults json.RawMessage `json:"numResults"`
}

// normalizePlannerResponse strips code fences, parses the JSON, maps the
// legacy array form onto cats in order, and validates that every category in
// cats has a non-empty query and an integer numResults in range. Keys for
// categories outside cats are ignored.
func normalizePlannerResponse(raw string, cats types.Categories) (map[string]types.PlannedQuery, error) {
	text := llm.StripCodeFences(raw)

	var resp plannerResponse
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		return nil, &PlannerError{Reason: "response was not valid JSON", Err: err}
	}
	if len(resp.Queries) == 0 || string(resp.Queries) == "null" {
		return nil, &PlannerError{Reason: `response has no "queries"`}
	}

	entries := make(map[string]rawPlannedQuery)
	switch resp.Queries[0] {
	case '[':
		var list []string
		if err := json.Unmarshal(resp.Queries, &list); err != nil {
			return nil, &PlannerError{Reason: "malformed legacy query list", Err: err}
		}
		n := json.RawMessage(strconv.Itoa(legacyNumResults))
		for i, key := range cats.Keys() {
			if i >= len(list) {
				break
			}
			q := list[i]
			entries[key] = rawPlannedQuery{Query: &q, NumResults: n}
		}
	case '{':
		if err := json.Unmarshal(resp.Queries, &entries); err != nil {
			return nil, &PlannerError{Reason: "malformed query map", Err: err}
		}
	default:
		return nil, &PlannerError{Reason: `"queries" must be an object or array`}
	}

	out := make(map[string]types.PlannedQuery, cats.Len())
	for _, key := range cats.Keys() {
		e, ok := entries[key]
		if !ok {
			return nil, &PlannerError{Reason: fmt.Sprintf("missing category %q", key)}
		}
		if e.Query == nil || strings.TrimSpace(*e.Query) == "" {
			return nil, &PlannerError{Reason: fmt.Sprintf("category %q has an empty query", key)}
		}
		n, err := parseNumResults(e.NumResults)
		if err != nil {
			return nil, &PlannerError{Reason: fmt.Sprintf("category %q", key), Err: err}
		}
		out[key] = types.PlannedQuery{Query: strings.TrimSpace(*e.Query), NumResults: n}
	}
	return out, nil
}

// parseNumResults accepts a JSON number or numeric string holding an integer
// in [MinResults, MaxResults].
func parseNumResults(raw json.RawMessage) (int, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, errors.New("numResults is missing")
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, fmt.Errorf("numResults %s is not numeric", raw)
		}
		f, err = strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, fmt.Errorf("numResults %q is not numeric", s)
		}
	}

	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, fmt.Errorf("numResults %v is not an integer", f)
	}
	n := int(f)
	if n < types.MinResults || n > types.MaxResults {
		return 0, fmt.Errorf("numResults %d outside [%d,%d]", n, types.MinResults, types.MaxResults)
	}
	return n, nil
}

// Validate checks that plan covers every category in cats with a usable
// query. It is applied to plans loaded from disk.
func Validate(plan types.Plan, cats types.Categories) error {
	for _, key := range cats.Keys() {
		q, ok := plan.Query(key)
		if !ok {
			return &PlannerError{Reason: fmt.Sprintf("missing category %q", key)}
		}
		if strings.TrimSpace(q.Query) == "" {
			return &PlannerError{Reason: fmt.Sprintf("category %q has an empty query", key)}
		}
		if q.NumResults < types.MinResults || q.NumResults > types.MaxResults {
			return &PlannerError{Reason: fmt.Sprintf("category %q: numResults %d outside [%d,%d]", key, q.NumResults, types.MinResults, types.MaxResults)}
		}
	}
	return nil
}
