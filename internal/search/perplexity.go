// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/pdiddy/alif/internal/httputil"
	"github.com/pdiddy/alif/pkg/types"
)

// perplexityAPIURL is the Perplexity search endpoint. Declared as a var so
// tests can substitute an httptest server.
var perplexityAPIURL = "https://api.perplexity.ai/search"

// PerplexityProvider queries the Perplexity search API restricted to a
// category's allow-listed domains.
type PerplexityProvider struct {
	Client *http.Client
	APIKey string
	Config types.SearchConfig
}

// NewPerplexityProvider returns a provider, or nil when no API key is set so
// the adapter goes straight to the mirrors.
func NewPerplexityProvider(client *http.Client, cfg types.SearchConfig) *PerplexityProvider {
	if cfg.PerplexityAPIKey == "" {
		return nil
	}
	return &PerplexityProvider{Client: client, APIKey: cfg.PerplexityAPIKey, Config: cfg.WithDefaults()}
}

// Name returns the provider identifier.
func (p *PerplexityProvider) Name() string { return "perplexity" }

type perplexityRequest struct {
	Query            string   `json:"query"`
	MaxResults       int      `json:"max_results"`
	MaxTokensPerPage int      `json:"max_tokens_per_page"`
	Domains          []string `json:"domains,omitempty"`
}

type perplexityResponse struct {
	Results []rawHit `json:"results"`
}

// Search posts the query prefixed with the category key and returns the
// normalized results.
func (p *PerplexityProvider) Search(ctx context.Context, cat types.Category, query string, numResults int) ([]types.SearchHit, error) {
	if p.APIKey == "" {
		return nil, fmt.Errorf("perplexity: API key not configured")
	}
	cfg := p.Config.WithDefaults()

	domains := cat.Domains
	if len(domains) > cfg.MaxDomains {
		domains = domains[:cfg.MaxDomains]
	}
	body, err := json.Marshal(perplexityRequest{
		Query:            cat.Key + " " + query,
		MaxResults:       min(numResults, cfg.ProviderMaxResults),
		MaxTokensPerPage: cfg.MaxTokensPerPage,
		Domains:          domains,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding perplexity request: %w", err)
	}

	endpoint := perplexityAPIURL
	if cfg.PerplexityURL != "" {
		endpoint = cfg.PerplexityURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", cfg.UserAgent)

	resp, err := httputil.DoWithRetry(ctx, p.Client, req, 0)
	if err != nil {
		return nil, fmt.Errorf("perplexity request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("perplexity returned HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var pr perplexityResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, fmt.Errorf("parsing perplexity response: %w", err)
	}

	var hits []types.SearchHit
	for i, r := range pr.Results {
		h, ok := normalizeSearchHit(r, fmt.Sprintf("%s Source %d", cat.Key, i+1))
		if !ok {
			continue
		}
		hits = appendUnique(hits, []types.SearchHit{h})
	}
	return hits, nil
}
