// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/alif/internal/extract"
	"github.com/pdiddy/alif/internal/history"
	"github.com/pdiddy/alif/internal/httputil"
	"github.com/pdiddy/alif/internal/llm"
	"github.com/pdiddy/alif/internal/mirrors"
	"github.com/pdiddy/alif/internal/planner"
	"github.com/pdiddy/alif/internal/retrieve"
	"github.com/pdiddy/alif/internal/search"
	"github.com/pdiddy/alif/internal/synth"
	"github.com/pdiddy/alif/pkg/types"
)

// llmTimeout bounds one model call.
const llmTimeout = 2 * time.Minute

// --- component construction from cfg ---

func categoryTable() (types.Categories, error) {
	cats, err := cfg.CategoryTable()
	if err != nil {
		return types.Categories{}, fmt.Errorf("category table: %w", err)
	}
	if cats.Len() == 0 {
		return types.Categories{}, fmt.Errorf("no categories enabled")
	}
	return cats, nil
}

// mirrorRegistry returns the configured pool: a mirrors file, an inline
// list, or the built-in pool, in that order.
func mirrorRegistry() (*mirrors.Registry, error) {
	switch {
	case cfg.Search.MirrorsFile != "":
		return mirrors.Load(cfg.Search.MirrorsFile)
	case len(cfg.Search.Mirrors) > 0:
		return mirrors.New(cfg.Search.Mirrors)
	default:
		return mirrors.Default(), nil
	}
}

func searchAdapter() (*search.Adapter, error) {
	reg, err := mirrorRegistry()
	if err != nil {
		return nil, err
	}
	client := httputil.NewClient(cfg.Search.Timeout, false)

	a := search.NewAdapter(nil, search.NewSearxProvider(client, reg, cfg.Search, logger), logger)
	if p := search.NewPerplexityProvider(client, cfg.Search); p != nil {
		a.Primary = p
	}
	return a, nil
}

func extractor() *extract.Extractor {
	return extract.New(cfg.Extract, logger)
}

func queryPlanner(ctx context.Context, cats types.Categories) (*planner.Planner, error) {
	gen, err := llm.New(ctx, cfg.Planner.AIConfig, httputil.NewClient(llmTimeout, false))
	if err != nil {
		return nil, fmt.Errorf("query planner: %w", err)
	}
	return planner.New(gen, cats, logger), nil
}

func synthesizer(ctx context.Context, cats types.Categories) (*synth.Service, error) {
	gen, err := llm.New(ctx, cfg.Synthesis.AIConfig, httputil.NewClient(llmTimeout, false))
	if err != nil {
		return nil, fmt.Errorf("synthesis: %w", err)
	}
	return synth.New(gen, cats, cfg.Synthesis, logger), nil
}

func orchestrator(cats types.Categories) (*retrieve.Orchestrator, error) {
	a, err := searchAdapter()
	if err != nil {
		return nil, err
	}
	return retrieve.New(cats, a, extractor(), cfg.Retrieve, logger), nil
}

// openHistory returns nil when history is disabled or the database cannot
// be opened; history never blocks a run.
func openHistory() *history.Store {
	if cfg.History.Disabled {
		return nil
	}
	s, err := history.Open(cfg.History)
	if err != nil {
		logger.Warn("run history unavailable", zap.String("path", cfg.History.Path), zap.Error(err))
		return nil
	}
	return s
}
