// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package retrieve drives a planned run: categories are searched in small
// concurrent batches, every hit is scraped concurrently with a bounded retry,
// progress is tracked per category, and the flattened sources are delivered
// once every category is done or the run deadline passes.
package retrieve

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/alif/internal/extract"
	"github.com/pdiddy/alif/internal/httputil"
	"github.com/pdiddy/alif/internal/search"
	"github.com/pdiddy/alif/pkg/types"
)

// Placeholder titles recorded for exhausted categories.
const (
	searchFailedTitle   = "No results found (all search engines failed)"
	searchFailedContent = "Every search engine failed for this category. Try again later."
	scrapeFailedTitle   = "Error fetching all results"
)

// Searcher finds hits for a category. *search.Adapter satisfies it.
type Searcher interface {
	Search(ctx context.Context, cat types.Category, query string, numResults int, progress search.ProgressFunc) (search.Outcome, error)
}

// Scraper extracts page content. *extract.Extractor satisfies it.
type Scraper interface {
	Extract(ctx context.Context, url string) (extract.Page, error)
}

// CompletionFunc receives the flattened, per-category de-duplicated sources
// of a finished run, in category order.
type CompletionFunc func(sources []types.ScrapedSource)

// Orchestrator runs retrieval for plans over a fixed category table.
type Orchestrator struct {
	Categories types.Categories
	Searcher   Searcher
	Scraper    Scraper
	Config     types.RetrieveConfig
	Logger     *zap.Logger
}

// New returns an Orchestrator.
func New(cats types.Categories, searcher Searcher, scraper Scraper, cfg types.RetrieveConfig, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{Categories: cats, Searcher: searcher, Scraper: scraper, Config: cfg.WithDefaults(), Logger: logger}
}

// Run executes plan and calls onComplete once with the aggregated sources.
// It returns ctx.Err() without calling onComplete when ctx is cancelled.
// Search and scrape failures never fail the run.
func (o *Orchestrator) Run(ctx context.Context, plan types.Plan, onComplete CompletionFunc) error {
	r, err := o.Start(plan)
	if err != nil {
		return err
	}
	return r.Execute(ctx, onComplete)
}

// Start prepares a run for plan so callers can subscribe to progress before
// calling Execute. Categories in the plan but not in the table are ignored;
// enabled categories missing from the plan are an error.
func (o *Orchestrator) Start(plan types.Plan) (*Run, error) {
	var jobs []job
	for _, cat := range o.Categories.List() {
		q, ok := plan.Query(cat.Key)
		if !ok {
			return nil, fmt.Errorf("plan has no query for category %q", cat.Key)
		}
		jobs = append(jobs, job{cat: cat, query: q})
	}
	if len(jobs) == 0 {
		return nil, errors.New("no categories to retrieve")
	}

	id := uuid.NewString()
	if v7, err := uuid.NewV7(); err == nil {
		id = v7.String()
	}
	keys := make([]string, len(jobs))
	for i, j := range jobs {
		keys[i] = j.cat.Key
	}
	logger := o.logger().With(zap.String("run", id))
	return &Run{
		ID:      id,
		o:       o,
		jobs:    jobs,
		cfg:     o.Config.WithDefaults(),
		logger:  logger,
		tracker: NewTracker(id, keys, logger),
	}, nil
}

func (o *Orchestrator) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

type job struct {
	cat   types.Category
	query types.PlannedQuery
}

// Run is one execution of a plan.
type Run struct {
	ID string

	o       *Orchestrator
	jobs    []job
	cfg     types.RetrieveConfig
	logger  *zap.Logger
	tracker *Tracker
}

// Snapshot returns the run's current progress.
func (r *Run) Snapshot() types.RunSnapshot { return r.tracker.Snapshot() }

// Subscribe streams the run's progress events. See Tracker.Subscribe.
func (r *Run) Subscribe(ctx context.Context) <-chan types.ProgressEvent {
	return r.tracker.Subscribe(ctx)
}

// Execute processes the run. A Run executes once.
func (r *Run) Execute(ctx context.Context, onComplete CompletionFunc) error {
	defer r.tracker.close()

	start := time.Now()
	runCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	agg := newAggregator(r.tracker, onComplete)
	r.logger.Info("run started", zap.Int("categories", len(r.jobs)), zap.Int("batch_size", r.cfg.BatchSize))

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		r.runBatches(runCtx, agg)
	}()

	select {
	case <-finished:
	case <-runCtx.Done():
	}

	if err := ctx.Err(); err != nil && !agg.delivered() {
		<-finished
		r.logger.Info("run cancelled", zap.Duration("elapsed", time.Since(start)))
		return err
	}

	if runCtx.Err() != nil && !agg.delivered() {
		forced := r.tracker.forceDone()
		r.logger.Warn("run deadline exceeded, forcing completion", zap.Strings("categories", forced), zap.Duration("timeout", r.cfg.Timeout))
		agg.check()
	}

	<-finished
	agg.check()
	r.logger.Info("run finished", zap.Duration("elapsed", time.Since(start)), zap.Bool("delivered", agg.delivered()))
	return nil
}

// runBatches processes categories BatchSize at a time with BatchDelay between
// batches. Categories inside a batch run concurrently and independently.
func (r *Run) runBatches(ctx context.Context, agg *aggregator) {
	for start := 0; start < len(r.jobs); start += r.cfg.BatchSize {
		if start > 0 && r.cfg.BatchDelay > 0 {
			if err := httputil.Sleep(ctx, r.cfg.BatchDelay); err != nil {
				return
			}
		}
		if ctx.Err() != nil {
			return
		}

		end := min(start+r.cfg.BatchSize, len(r.jobs))
		var g errgroup.Group
		for _, j := range r.jobs[start:end] {
			g.Go(func() error {
				r.runCategory(ctx, j)
				agg.check()
				return nil
			})
		}
		_ = g.Wait()
	}
}

// runCategory searches one category and scrapes its hits.
func (r *Run) runCategory(ctx context.Context, j job) {
	key := j.cat.Key
	log := r.logger.With(zap.String("category", key))

	r.tracker.update(key, types.ProgressEvent{Kind: types.EventPhase, Detail: "Searching: " + j.query.Query}, func(st *types.CategoryState) {
		st.Phase = types.PhaseSearching
		st.Current = j.query.Query
	})

	out, err := r.o.Searcher.Search(ctx, j.cat, j.query.Query, j.query.NumResults, func(ev types.ProgressEvent) {
		r.tracker.update(key, ev, func(st *types.CategoryState) {
			st.Engine = ev.Engine
			st.Current = ev.Detail
		})
	})
	if ctx.Err() != nil {
		return
	}
	if err != nil || len(out.Hits) == 0 {
		log.Warn("search exhausted", zap.Error(err))
		r.finish(key, []types.ScrapedSource{{
			Category:    key,
			Label:       j.cat.Label,
			Title:       searchFailedTitle,
			Content:     searchFailedContent,
			Query:       j.query.Query,
			Engine:      types.EngineNone,
			Placeholder: true,
		}}, types.EventError)
		return
	}

	hits := out.Hits
	if n := max(j.query.NumResults, types.MinResults); len(hits) > n {
		hits = hits[:n]
	}
	log.Info("search complete", zap.String("engine", out.Engine), zap.Int("hits", len(hits)))
	r.tracker.update(key, types.ProgressEvent{Kind: types.EventPhase, Engine: out.Engine, Detail: fmt.Sprintf("Scraping %d sources", len(hits))}, func(st *types.CategoryState) {
		st.Phase = types.PhaseScraping
		st.Engine = out.Engine
	})

	scraped := make([]*types.ScrapedSource, len(hits))
	var g errgroup.Group
	for i, h := range hits {
		g.Go(func() error {
			src, ok := r.scrapeHit(ctx, j, h, out.Engine)
			if !ok {
				return nil
			}
			scraped[i] = &src
			if !r.tracker.update(key, types.ProgressEvent{Kind: types.EventSource, Engine: out.Engine, Detail: src.Title}, func(st *types.CategoryState) {
				st.Sources = append(st.Sources, src)
				st.Current = src.Title
				st.Error = false
			}) {
				return nil
			}
			if r.cfg.PacingDelay > 0 {
				_ = httputil.Sleep(ctx, r.cfg.PacingDelay)
			}
			return nil
		})
	}
	_ = g.Wait()
	if ctx.Err() != nil {
		return
	}

	var sources []types.ScrapedSource
	for _, s := range scraped {
		if s != nil {
			sources = append(sources, *s)
		}
	}
	sources = types.DedupeSources(sources)
	if len(sources) == 0 {
		log.Warn("every scrape failed", zap.Int("hits", len(hits)))
		r.finish(key, []types.ScrapedSource{{
			Category:    key,
			Label:       j.cat.Label,
			Title:       scrapeFailedTitle,
			Query:       j.query.Query,
			Engine:      types.EngineNone,
			Placeholder: true,
		}}, types.EventError)
		return
	}
	r.finish(key, sources, types.EventDone)
}

// scrapeHit extracts one hit with the configured bounded retry.
func (r *Run) scrapeHit(ctx context.Context, j job, h types.SearchHit, engine string) (types.ScrapedSource, bool) {
	key := j.cat.Key
	policy := httputil.Fixed(r.cfg.ScrapeAttempts, r.cfg.ScrapeBackoff)

	page, err := httputil.Retry(ctx, policy, func(ctx context.Context, attempt int) (extract.Page, error) {
		detail := h.Title
		if attempt > 1 {
			detail = fmt.Sprintf("%s (attempt %d)", h.Title, attempt)
		}
		r.tracker.update(key, types.ProgressEvent{Kind: types.EventItem, Engine: engine, Detail: detail}, func(st *types.CategoryState) {
			st.Current = h.Title
		})
		return r.o.Scraper.Extract(ctx, h.Link)
	}, func(attempt int, err error) {
		r.tracker.update(key, types.ProgressEvent{Kind: types.EventError, Engine: engine, Detail: fmt.Sprintf("Error fetching %s, retrying...", h.Link)}, func(st *types.CategoryState) {
			st.Error = true
		})
		r.logger.Debug("scrape attempt failed", zap.String("category", key), zap.String("url", h.Link), zap.Int("attempt", attempt), zap.Error(err))
	})
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Info("scrape failed", zap.String("category", key), zap.String("url", h.Link), zap.Error(err))
		}
		return types.ScrapedSource{}, false
	}

	src, ok := normalizeScrapedSource(j, h, page, engine)
	if !ok {
		r.logger.Info("scraped page rejected", zap.String("category", key), zap.String("url", h.Link))
	}
	return src, ok
}

// normalizeScrapedSource merges a hit with its extracted page. The hit title
// wins over the page title and page content over the snippet. A source
// without a link or without any text is rejected.
func normalizeScrapedSource(j job, h types.SearchHit, page extract.Page, engine string) (types.ScrapedSource, bool) {
	link := strings.TrimSpace(h.Link)
	content := firstNonEmpty(strings.TrimSpace(page.Content), strings.TrimSpace(h.Snippet))
	title := firstNonEmpty(strings.TrimSpace(h.Title), strings.TrimSpace(page.Title))
	if link == "" || (content == "" && title == "") {
		return types.ScrapedSource{}, false
	}
	return types.ScrapedSource{
		Category: j.cat.Key,
		Label:    j.cat.Label,
		Title:    firstNonEmpty(title, "No title"),
		Link:     link,
		Content:  content,
		Query:    j.query.Query,
		Engine:   engine,
	}, true
}

// finish replaces key's sources with the final list and marks it done.
func (r *Run) finish(key string, sources []types.ScrapedSource, kind types.EventKind) {
	exhausted := len(sources) == 1 && sources[0].Placeholder
	r.tracker.update(key, types.ProgressEvent{Kind: kind, Phase: types.PhaseDone, Detail: fmt.Sprintf("%d sources", len(sources))}, func(st *types.CategoryState) {
		st.Sources = sources
		st.Phase = types.PhaseDone
		st.Done = true
		st.Current = ""
		st.Exhausted = exhausted
		st.Error = exhausted
		if exhausted {
			st.Engine = types.EngineNone
		}
	})
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
