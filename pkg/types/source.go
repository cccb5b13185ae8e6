// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// Plan query bounds.
const (
	MinResults = 1
	MaxResults = 5
)

// EngineNone marks a placeholder source recorded when every search strategy
// and every scrape for a category failed.
const EngineNone = "none"

// PlannedQuery is the search query and desired result count for one category.
type PlannedQuery struct {
	Query      string `json:"query" yaml:"query"`
	NumResults int    `json:"numResults" yaml:"num_results"`
}

// Plan maps every enabled category to exactly one PlannedQuery. It is
// produced once per run and never mutated afterwards.
type Plan struct {
	// Prompt is the free-text question the plan was generated from.
	Prompt string `json:"prompt" yaml:"prompt"`

	// Order lists category keys in planner order.
	Order []string `json:"order" yaml:"order"`

	// Queries holds one PlannedQuery per category key.
	Queries map[string]PlannedQuery `json:"queries" yaml:"queries"`
}

// Query returns the planned query for key.
func (p Plan) Query(key string) (PlannedQuery, bool) {
	q, ok := p.Queries[key]
	return q, ok
}

// SearchHit is a raw, provider-normalized search result.
type SearchHit struct {
	Title   string `json:"title" yaml:"title"`
	Link    string `json:"link" yaml:"link"`
	Snippet string `json:"snippet" yaml:"snippet"`
}

// ScrapedSource is a hit enriched with extracted page content, ready for
// synthesis. Link is the dedup key within a category.
type ScrapedSource struct {
	// Category is the category key (e.g. "islam").
	Category string `json:"category" yaml:"category"`

	// Label is the category display label.
	Label string `json:"label" yaml:"label"`

	Title   string `json:"title" yaml:"title"`
	Link    string `json:"link" yaml:"link"`
	Content string `json:"content" yaml:"content"`

	// Query is the planned query that produced this source.
	Query string `json:"query" yaml:"query"`

	// Engine is the search engine or mirror that returned the hit, or
	// EngineNone for a placeholder.
	Engine string `json:"engine" yaml:"engine"`

	// Placeholder marks the synthetic record of an exhausted category.
	Placeholder bool `json:"placeholder,omitempty" yaml:"placeholder,omitempty"`
}

// DedupeSources removes entries whose Link was already seen, keeping the
// first occurrence and preserving order.
func DedupeSources(sources []ScrapedSource) []ScrapedSource {
	if len(sources) == 0 {
		return sources
	}
	seen := make(map[string]bool, len(sources))
	out := make([]ScrapedSource, 0, len(sources))
	for _, s := range sources {
		if seen[s.Link] {
			continue
		}
		seen[s.Link] = true
		out = append(out, s)
	}
	return out
}
