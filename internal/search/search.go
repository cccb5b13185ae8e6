// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package search finds candidate pages for one category. It tries the
// primary keyed search API first and falls back to the SearXNG mirror pool,
// normalizing both into types.SearchHit.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/alif/pkg/types"
)

// EngineSearx names hits that came from the mirror pool.
const EngineSearx = "searx-html"

// ErrExhausted is returned when the primary provider and every mirror
// failed to produce a usable hit.
var ErrExhausted = errors.New("search: all providers exhausted")

// Provider is a keyed search API that returns hits for one category. The
// primary provider implements this interface.
type Provider interface {
	Name() string
	Search(ctx context.Context, cat types.Category, query string, numResults int) ([]types.SearchHit, error)
}

// ProgressFunc receives intermediate adapter state (engine switches, the
// mirror being tried) before the final hit list is ready. Category, Kind,
// Engine and Detail are set; the caller stamps the rest.
type ProgressFunc func(types.ProgressEvent)

// Outcome is the result of a category search.
type Outcome struct {
	Hits []types.SearchHit

	// Engine is the provider name, EngineSearx, or types.EngineNone.
	Engine string

	// Mirrors lists the mirrors that contributed hits, in order.
	Mirrors []string
}

// Adapter combines the primary provider with the mirror fallback.
type Adapter struct {
	// Primary is the keyed provider. Nil skips straight to the mirrors.
	Primary Provider

	// Mirrors is the fallback strategy. Nil disables fallback.
	Mirrors *SearxProvider

	Logger *zap.Logger
}

// NewAdapter returns an Adapter. primary may be nil.
func NewAdapter(primary Provider, mirrors *SearxProvider, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{Primary: primary, Mirrors: mirrors, Logger: logger}
}

// Search returns hits for query within cat. Primary provider errors,
// non-success statuses, and empty results trigger the mirror fallback. When
// nothing produced a hit the error is ErrExhausted and Outcome.Engine is
// types.EngineNone. Context errors are returned as-is.
func (a *Adapter) Search(ctx context.Context, cat types.Category, query string, numResults int, progress ProgressFunc) (Outcome, error) {
	if numResults < 1 {
		numResults = 1
	}
	log := a.logger().With(zap.String("category", cat.Key))
	emit := func(kind types.EventKind, engine, detail string) {
		if progress != nil {
			progress(types.ProgressEvent{Category: cat.Key, Kind: kind, Engine: engine, Detail: detail, Time: time.Now()})
		}
	}

	if a.Primary != nil {
		name := a.Primary.Name()
		emit(types.EventEngine, name, "Searching with "+name+"...")
		hits, err := a.Primary.Search(ctx, cat, query, numResults)
		switch {
		case ctx.Err() != nil:
			return Outcome{Engine: types.EngineNone}, ctx.Err()
		case err != nil:
			log.Warn("primary provider failed, falling back to mirrors", zap.String("provider", name), zap.Error(err))
		case len(hits) == 0:
			log.Info("primary provider returned no results, falling back to mirrors", zap.String("provider", name))
		default:
			if len(hits) > numResults {
				hits = hits[:numResults]
			}
			log.Debug("primary provider succeeded", zap.String("provider", name), zap.Int("hits", len(hits)))
			emit(types.EventEngine, name, fmt.Sprintf("Found %d sources via %s", len(hits), name))
			return Outcome{Hits: hits, Engine: name}, nil
		}
	}

	if a.Mirrors == nil {
		return Outcome{Engine: types.EngineNone}, ErrExhausted
	}

	emit(types.EventEngine, "searx", "Falling back to mirrors")
	hits, used, err := a.Mirrors.Search(ctx, cat, query, numResults, func(mirror string) {
		emit(types.EventMirror, mirror, "Searching: "+mirror)
	})
	if ctx.Err() != nil {
		return Outcome{Engine: types.EngineNone, Mirrors: used}, ctx.Err()
	}
	if len(hits) == 0 {
		if err != nil {
			log.Warn("mirror pool exhausted", zap.Error(err))
		}
		return Outcome{Engine: types.EngineNone, Mirrors: used}, ErrExhausted
	}
	emit(types.EventEngine, EngineSearx, "Results from: "+strings.Join(used, ", "))
	return Outcome{Hits: hits, Engine: EngineSearx, Mirrors: used}, nil
}

func (a *Adapter) logger() *zap.Logger {
	if a.Logger == nil {
		return zap.NewNop()
	}
	return a.Logger
}

// rawHit is a provider result before normalization. Providers disagree on
// field names, so every known alias is captured.
type rawHit struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
	Text    string `json:"text"`
	Content string `json:"content"`
}

// normalizeSearchHit converts a provider result into a SearchHit. It returns
// false for results without an absolute http(s) link. fallbackTitle is used
// when the provider sent no title.
func normalizeSearchHit(r rawHit, fallbackTitle string) (types.SearchHit, bool) {
	link := strings.TrimSpace(firstNonEmpty(r.URL, r.Link))
	u, err := url.Parse(link)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return types.SearchHit{}, false
	}
	title := collapseSpace(r.Title)
	if title == "" {
		title = fallbackTitle
	}
	return types.SearchHit{
		Title:   title,
		Link:    link,
		Snippet: collapseSpace(firstNonEmpty(r.Snippet, r.Text, r.Content)),
	}, true
}

// filterByDomain keeps hits whose hostname contains one of cat's allow-listed
// domains. Categories without an allow-list keep everything.
func filterByDomain(cat types.Category, hits []types.SearchHit) []types.SearchHit {
	if !cat.HasDomains() {
		return hits
	}
	var kept []types.SearchHit
	for _, h := range hits {
		u, err := url.Parse(h.Link)
		if err != nil || u.Hostname() == "" {
			continue
		}
		if cat.AllowsHost(u.Hostname()) {
			kept = append(kept, h)
		}
	}
	return kept
}

// appendUnique appends hits whose Link is not already in dst.
func appendUnique(dst []types.SearchHit, hits []types.SearchHit) []types.SearchHit {
	seen := make(map[string]bool, len(dst)+len(hits))
	for _, h := range dst {
		seen[h.Link] = true
	}
	for _, h := range hits {
		if seen[h.Link] {
			continue
		}
		seen[h.Link] = true
		dst = append(dst, h)
	}
	return dst
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// FormatTable writes hits as a human-readable table to w.
func FormatTable(out Outcome, w io.Writer) {
	if len(out.Hits) == 0 {
		fmt.Fprintln(w, "No results found.")
		return
	}

	fmt.Fprintf(w, "%-4s  %-50s  %s\n", "Rank", "Title", "Link")
	fmt.Fprintln(w, strings.Repeat("-", 110))
	for i, h := range out.Hits {
		fmt.Fprintf(w, "%-4d  %-50s  %s\n", i+1, truncate(h.Title, 50), h.Link)
	}

	fmt.Fprintf(w, "\n%d results via %s", len(out.Hits), out.Engine)
	if len(out.Mirrors) > 0 {
		fmt.Fprintf(w, " (%s)", strings.Join(out.Mirrors, ", "))
	}
	fmt.Fprintln(w)
}

// FormatJSON writes the outcome as indented JSON to w.
func FormatJSON(out Outcome, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Hits    []types.SearchHit `json:"results"`
		Engine  string            `json:"usedEngine"`
		Mirrors []string          `json:"usedMirrors,omitempty"`
	}{out.Hits, out.Engine, out.Mirrors})
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
