// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/pdiddy/alif/internal/mirrors"
	"github.com/pdiddy/alif/pkg/types"
)

// maxMirrorPage caps how much of a mirror's HTML response is parsed.
const maxMirrorPage = 2 << 20

// SearxProvider walks the mirror pool in order, scraping each mirror's HTML
// results page until enough in-domain hits have been collected.
type SearxProvider struct {
	Client    *http.Client
	Registry  *mirrors.Registry
	UserAgent string
	Logger    *zap.Logger
}

// NewSearxProvider returns a provider over reg.
func NewSearxProvider(client *http.Client, reg *mirrors.Registry, cfg types.SearchConfig, logger *zap.Logger) *SearxProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SearxProvider{Client: client, Registry: reg, UserAgent: cfg.WithDefaults().UserAgent, Logger: logger}
}

// Search queries mirrors in registry order. Hits are de-duplicated by link
// across mirrors and the walk stops once numResults hits are held. onMirror,
// when non-nil, is called before each mirror is tried. It returns the hits
// (at most numResults), the mirrors that contributed at least one hit, and
// the last mirror error when nothing was found.
func (s *SearxProvider) Search(ctx context.Context, cat types.Category, query string, numResults int, onMirror func(string)) ([]types.SearchHit, []string, error) {
	if s.Registry == nil || s.Registry.Len() == 0 {
		return nil, nil, errors.New("searx: no mirrors configured")
	}
	if numResults < 1 {
		numResults = 1
	}
	log := s.logger().With(zap.String("category", cat.Key))

	q := query
	if cat.HasDomains() {
		q = fmt.Sprintf("%s site:%s", query, cat.Domains[0])
	}

	var (
		hits    []types.SearchHit
		used    []string
		lastErr error
	)
	for _, base := range s.Registry.URLs() {
		if err := ctx.Err(); err != nil {
			return hits, used, err
		}
		if onMirror != nil {
			onMirror(base)
		}

		found, err := s.searchMirror(ctx, base, q)
		if err != nil {
			lastErr = err
			log.Debug("mirror failed", zap.String("mirror", base), zap.Error(err))
			continue
		}
		found = filterByDomain(cat, found)
		if len(found) == 0 {
			log.Debug("mirror returned no in-domain results", zap.String("mirror", base))
			continue
		}

		before := len(hits)
		hits = appendUnique(hits, found)
		if len(hits) > before {
			used = append(used, base)
		}
		if len(hits) >= numResults {
			break
		}
	}

	if len(hits) == 0 {
		if lastErr == nil {
			lastErr = errors.New("searx: no mirror returned results")
		}
		return nil, used, lastErr
	}
	if len(hits) > numResults {
		hits = hits[:numResults]
	}
	return hits, used, nil
}

// searchMirror fetches one mirror's results page and parses it.
func (s *SearxProvider) searchMirror(ctx context.Context, base, query string) ([]types.SearchHit, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mirrors.SearchURL(base, query), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	ua := s.UserAgent
	if ua == "" {
		ua = types.DefaultUserAgent
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "text/html")

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mirror %s: %w", base, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("mirror %s returned HTTP %d", base, resp.StatusCode)
	}
	return parseSearxResults(io.LimitReader(resp.Body, maxMirrorPage), base)
}

// parseSearxResults extracts hits from a SearXNG "simple" theme results page.
// Relative links are resolved against base.
func parseSearxResults(r io.Reader, base string) ([]types.SearchHit, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parsing mirror HTML: %w", err)
	}
	baseURL, _ := url.Parse(base)

	var hits []types.SearchHit
	doc.Find("article.result").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Find("a.url_header").First().Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		if baseURL != nil {
			if u, err := baseURL.Parse(strings.TrimSpace(href)); err == nil {
				href = u.String()
			}
		}
		h, ok := normalizeSearchHit(rawHit{
			Title:   sel.Find("h3 a").First().Text(),
			Link:    href,
			Snippet: sel.Find("p.content").First().Text(),
		}, href)
		if ok {
			hits = append(hits, h)
		}
	})
	return hits, nil
}

func (s *SearxProvider) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}
