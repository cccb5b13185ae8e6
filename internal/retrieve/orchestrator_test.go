package retrieve

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/pdiddy/alif/internal/extract"
	"github.com/pdiddy/alif/internal/search"
	"github.com/pdiddy/alif/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// --- fakes ---

type fakeSearcher struct {
	mu       sync.Mutex
	outcomes map[string]search.Outcome
	errs     map[string]error
	block    map[string]bool
	started  chan string
	searched []string

	active    int32
	maxActive int32
}

func (f *fakeSearcher) Search(ctx context.Context, cat types.Category, _ string, _ int, progress search.ProgressFunc) (search.Outcome, error) {
	n := atomic.AddInt32(&f.active, 1)
	defer atomic.AddInt32(&f.active, -1)
	for {
		m := atomic.LoadInt32(&f.maxActive)
		if n <= m || atomic.CompareAndSwapInt32(&f.maxActive, m, n) {
			break
		}
	}

	f.mu.Lock()
	f.searched = append(f.searched, cat.Key)
	out, err, block := f.outcomes[cat.Key], f.errs[cat.Key], f.block[cat.Key]
	f.mu.Unlock()

	if f.started != nil {
		f.started <- cat.Key
	}
	if progress != nil {
		progress(types.ProgressEvent{Kind: types.EventMirror, Engine: "https://mirror.test/"})
	}
	if block {
		<-ctx.Done()
		return search.Outcome{Engine: types.EngineNone}, ctx.Err()
	}
	time.Sleep(time.Millisecond)
	return out, err
}

func (f *fakeSearcher) searchedKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.searched...)
}

type fakeScraper struct {
	mu       sync.Mutex
	calls    map[string]int
	failures map[string]int // url → attempts that fail before success; -1 always fails
}

func (f *fakeScraper) Extract(ctx context.Context, url string) (extract.Page, error) {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[url]++
	n := f.calls[url]
	fail := f.failures[url]
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return extract.Page{}, err
	}
	if fail < 0 || n <= fail {
		return extract.Page{}, fmt.Errorf("fetch %s: connection reset", url)
	}
	return extract.Page{URL: url, Title: "Page " + url, Content: "content of " + url}, nil
}

func (f *fakeScraper) callCount(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

func testConfig() types.RetrieveConfig {
	return types.RetrieveConfig{
		BatchSize:      3,
		BatchDelay:     -1,
		ScrapeAttempts: 2,
		ScrapeBackoff:  time.Millisecond,
		PacingDelay:    -1,
		Timeout:        10 * time.Second,
	}
}

func hitsFor(key string, n int) search.Outcome {
	out := search.Outcome{Engine: search.EngineSearx}
	for i := 0; i < n; i++ {
		link := fmt.Sprintf("https://%s.example/%d", key, i)
		out.Hits = append(out.Hits, types.SearchHit{Title: fmt.Sprintf("%s hit %d", key, i), Link: link, Snippet: "snippet"})
	}
	return out
}

func planFor(cats types.Categories, n int) types.Plan {
	p := types.Plan{Prompt: "Is lending money with interest allowed?", Order: cats.Keys(), Queries: map[string]types.PlannedQuery{}}
	for _, k := range cats.Keys() {
		p.Queries[k] = types.PlannedQuery{Query: k + " interest", NumResults: n}
	}
	return p
}

func sixCats(t *testing.T) types.Categories {
	t.Helper()
	cats, err := types.DefaultCategories().Only([]string{"judaism", "christianity", "islam", "hinduism", "sikhism", "buddhism"})
	require.NoError(t, err)
	return cats
}

// collect calls Run and returns every delivered batch of sources.
func collect(t *testing.T, o *Orchestrator, ctx context.Context, plan types.Plan) ([][]types.ScrapedSource, error) {
	t.Helper()
	var (
		mu        sync.Mutex
		delivered [][]types.ScrapedSource
	)
	err := o.Run(ctx, plan, func(s []types.ScrapedSource) {
		mu.Lock()
		delivered = append(delivered, s)
		mu.Unlock()
	})
	return delivered, err
}

// --- scenarios ---

func TestRunFiveSucceedOneExhausted(t *testing.T) {
	cats := sixCats(t)
	s := &fakeSearcher{outcomes: map[string]search.Outcome{}, errs: map[string]error{}}
	for _, k := range cats.Keys() {
		s.outcomes[k] = hitsFor(k, 3)
	}
	s.outcomes["sikhism"] = search.Outcome{Engine: types.EngineNone}
	s.errs["sikhism"] = search.ErrExhausted

	o := New(cats, s, &fakeScraper{}, testConfig(), nil)
	delivered, err := collect(t, o, context.Background(), planFor(cats, 2))
	require.NoError(t, err)
	require.Len(t, delivered, 1, "completion callback must fire exactly once")

	sources := delivered[0]
	require.Len(t, sources, 11)

	byCat := map[string][]types.ScrapedSource{}
	for _, src := range sources {
		byCat[src.Category] = append(byCat[src.Category], src)
	}
	for _, k := range cats.Keys() {
		if k == "sikhism" {
			require.Len(t, byCat[k], 1)
			assert.Equal(t, types.EngineNone, byCat[k][0].Engine)
			assert.True(t, byCat[k][0].Placeholder)
			continue
		}
		require.Len(t, byCat[k], 2, k)
		assert.Equal(t, search.EngineSearx, byCat[k][0].Engine)
		assert.Equal(t, "content of "+byCat[k][0].Link, byCat[k][0].Content)
	}

	// Aggregated order follows category order.
	assert.Equal(t, "judaism", sources[0].Category)
	assert.Equal(t, "buddhism", sources[len(sources)-1].Category)
}

func TestRunRetryOnceThenSuccess(t *testing.T) {
	cats, err := types.DefaultCategories().Only([]string{"islam"})
	require.NoError(t, err)
	out := hitsFor("islam", 1)
	link := out.Hits[0].Link

	s := &fakeSearcher{outcomes: map[string]search.Outcome{"islam": out}}
	sc := &fakeScraper{failures: map[string]int{link: 1}}
	delivered, err := collect(t, New(cats, s, sc, testConfig(), nil), context.Background(), planFor(cats, 1))
	require.NoError(t, err)
	require.Len(t, delivered, 1)

	require.Len(t, delivered[0], 1)
	assert.Equal(t, link, delivered[0][0].Link)
	assert.Equal(t, "content of "+link, delivered[0][0].Content)
	assert.Equal(t, 2, sc.callCount(link))
}

func TestRunRetryBound(t *testing.T) {
	cats, err := types.DefaultCategories().Only([]string{"islam"})
	require.NoError(t, err)
	out := hitsFor("islam", 2)
	bad, good := out.Hits[0].Link, out.Hits[1].Link

	s := &fakeSearcher{outcomes: map[string]search.Outcome{"islam": out}}
	sc := &fakeScraper{failures: map[string]int{bad: -1}}
	delivered, err := collect(t, New(cats, s, sc, testConfig(), nil), context.Background(), planFor(cats, 2))
	require.NoError(t, err)

	assert.Equal(t, 2, sc.callCount(bad), "a hit is scraped at most twice")
	assert.Equal(t, 1, sc.callCount(good))
	require.Len(t, delivered[0], 1)
	assert.Equal(t, good, delivered[0][0].Link)
}

func TestRunAllScrapesFailPlaceholder(t *testing.T) {
	cats, err := types.DefaultCategories().Only([]string{"hinduism"})
	require.NoError(t, err)
	out := hitsFor("hinduism", 2)

	s := &fakeSearcher{outcomes: map[string]search.Outcome{"hinduism": out}}
	sc := &fakeScraper{failures: map[string]int{out.Hits[0].Link: -1, out.Hits[1].Link: -1}}
	o := New(cats, s, sc, testConfig(), nil)
	r, err := o.Start(planFor(cats, 2))
	require.NoError(t, err)

	var got []types.ScrapedSource
	require.NoError(t, r.Execute(context.Background(), func(s []types.ScrapedSource) { got = s }))

	require.Len(t, got, 1)
	assert.True(t, got[0].Placeholder)
	assert.Equal(t, types.EngineNone, got[0].Engine)
	assert.Equal(t, scrapeFailedTitle, got[0].Title)

	st := r.Snapshot().Categories["hinduism"]
	assert.True(t, st.Done)
	assert.True(t, st.Exhausted)
	assert.Equal(t, types.PhaseDone, st.Phase)
}

func TestRunDedupesWithinCategory(t *testing.T) {
	cats, err := types.DefaultCategories().Only([]string{"buddhism"})
	require.NoError(t, err)
	dup := types.SearchHit{Title: "same", Link: "https://buddhism.example/same"}
	s := &fakeSearcher{outcomes: map[string]search.Outcome{"buddhism": {Hits: []types.SearchHit{dup, dup}, Engine: "perplexity"}}}

	delivered, err := collect(t, New(cats, s, &fakeScraper{}, testConfig(), nil), context.Background(), planFor(cats, 2))
	require.NoError(t, err)
	require.Len(t, delivered[0], 1)
	assert.Equal(t, "same", delivered[0][0].Title)
}

func TestRunTruncatesToNumResults(t *testing.T) {
	cats, err := types.DefaultCategories().Only([]string{"judaism"})
	require.NoError(t, err)
	s := &fakeSearcher{outcomes: map[string]search.Outcome{"judaism": hitsFor("judaism", 5)}}
	sc := &fakeScraper{}

	delivered, err := collect(t, New(cats, s, sc, testConfig(), nil), context.Background(), planFor(cats, 2))
	require.NoError(t, err)
	assert.Len(t, delivered[0], 2)
	assert.Equal(t, 0, sc.callCount("https://judaism.example/4"))
}

func TestRunCancellation(t *testing.T) {
	cats := sixCats(t)
	s := &fakeSearcher{
		outcomes: map[string]search.Outcome{},
		block:    map[string]bool{"judaism": true},
		started:  make(chan string, 10),
	}
	for _, k := range cats.Keys() {
		s.outcomes[k] = hitsFor(k, 1)
	}
	cfg := testConfig()
	cfg.BatchSize = 1

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-s.started
		cancel()
	}()

	var called atomic.Bool
	err := New(cats, s, &fakeScraper{}, cfg, nil).Run(ctx, planFor(cats, 1), func([]types.ScrapedSource) { called.Store(true) })
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called.Load(), "no completion callback after cancellation")
	assert.Equal(t, []string{"judaism"}, s.searchedKeys(), "no further categories begin")
}

func TestRunDeadlineForcesCompletion(t *testing.T) {
	cats, err := types.DefaultCategories().Only([]string{"judaism", "islam"})
	require.NoError(t, err)
	s := &fakeSearcher{
		outcomes: map[string]search.Outcome{"islam": hitsFor("islam", 1)},
		block:    map[string]bool{"judaism": true},
	}
	cfg := testConfig()
	cfg.Timeout = 100 * time.Millisecond

	o := New(cats, s, &fakeScraper{}, cfg, nil)
	r, err := o.Start(planFor(cats, 1))
	require.NoError(t, err)

	var calls int32
	var got []types.ScrapedSource
	start := time.Now()
	err = r.Execute(context.Background(), func(s []types.ScrapedSource) {
		atomic.AddInt32(&calls, 1)
		got = s
	})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	require.Len(t, got, 1)
	assert.Equal(t, "islam", got[0].Category)

	snap := r.Snapshot()
	assert.True(t, snap.AllDone())
	assert.Empty(t, snap.Categories["judaism"].Sources)
}

// stallingScraper extracts every URL except stall, which blocks until the
// request context ends.
type stallingScraper struct {
	stall string
}

func (f stallingScraper) Extract(ctx context.Context, url string) (extract.Page, error) {
	if url == f.stall {
		<-ctx.Done()
		return extract.Page{}, ctx.Err()
	}
	return extract.Page{URL: url, Title: "Page " + url, Content: "content of " + url}, nil
}

func TestRunDeadlineDuringScrapingKeepsPartialSources(t *testing.T) {
	cats, err := types.DefaultCategories().Only([]string{"islam"})
	require.NoError(t, err)
	s := &fakeSearcher{outcomes: map[string]search.Outcome{"islam": hitsFor("islam", 2)}}
	cfg := testConfig()
	cfg.Timeout = 150 * time.Millisecond

	o := New(cats, s, stallingScraper{stall: "https://islam.example/1"}, cfg, nil)
	r, err := o.Start(planFor(cats, 2))
	require.NoError(t, err)

	var calls int32
	var got []types.ScrapedSource
	err = r.Execute(context.Background(), func(s []types.ScrapedSource) {
		atomic.AddInt32(&calls, 1)
		got = s
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	require.Len(t, got, 1)
	assert.Equal(t, "https://islam.example/0", got[0].Link)
	assert.False(t, got[0].Placeholder)
	assert.NotEqual(t, types.EngineNone, got[0].Engine)

	st := r.Snapshot().Categories["islam"]
	assert.True(t, st.Done)
	assert.False(t, st.Exhausted)
	assert.Len(t, st.Sources, 1)
}

func TestRunBatchSizeBoundsConcurrency(t *testing.T) {
	cats := sixCats(t)
	s := &fakeSearcher{outcomes: map[string]search.Outcome{}}
	for _, k := range cats.Keys() {
		s.outcomes[k] = hitsFor(k, 1)
	}
	cfg := testConfig()
	cfg.BatchSize = 2

	_, err := collect(t, New(cats, s, &fakeScraper{}, cfg, nil), context.Background(), planFor(cats, 1))
	require.NoError(t, err)
	assert.LessOrEqual(t, atomic.LoadInt32(&s.maxActive), int32(2))
	assert.Len(t, s.searchedKeys(), 6)
}

func TestRunMonotonicDoneAndEventOrder(t *testing.T) {
	cats, err := types.DefaultCategories().Only([]string{"judaism", "christianity"})
	require.NoError(t, err)
	s := &fakeSearcher{outcomes: map[string]search.Outcome{
		"judaism":      hitsFor("judaism", 2),
		"christianity": hitsFor("christianity", 2),
	}}
	o := New(cats, s, &fakeScraper{}, testConfig(), nil)
	r, err := o.Start(planFor(cats, 2))
	require.NoError(t, err)

	events := r.Subscribe(context.Background())
	var all []types.ProgressEvent
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			all = append(all, ev)
		}
	}()

	require.NoError(t, r.Execute(context.Background(), nil))
	<-done

	require.NotEmpty(t, all)
	finished := map[string]bool{}
	phases := map[string][]types.Phase{}
	for _, ev := range all {
		assert.Equal(t, r.ID, ev.RunID)
		if finished[ev.Category] {
			t.Errorf("event %s for %s after done", ev.Kind, ev.Category)
		}
		if ev.Kind == types.EventDone {
			finished[ev.Category] = true
		}
		if p := phases[ev.Category]; len(p) == 0 || p[len(p)-1] != ev.Phase {
			phases[ev.Category] = append(phases[ev.Category], ev.Phase)
		}
	}
	for _, k := range cats.Keys() {
		assert.True(t, finished[k], k)
		assert.Equal(t, []types.Phase{types.PhaseSearching, types.PhaseScraping, types.PhaseDone}, phases[k], k)
	}
}

func TestTrackerRejectsUpdatesAfterDone(t *testing.T) {
	tr := NewTracker("run", []string{"islam"}, nil)
	ok := tr.update("islam", types.ProgressEvent{Kind: types.EventDone}, func(st *types.CategoryState) {
		st.Done = true
		st.Phase = types.PhaseDone
	})
	require.True(t, ok)

	before := tr.Snapshot()
	ok = tr.update("islam", types.ProgressEvent{Kind: types.EventSource}, func(st *types.CategoryState) {
		st.Sources = append(st.Sources, types.ScrapedSource{Link: "late"})
	})
	assert.False(t, ok)
	assert.Empty(t, tr.Snapshot().Categories["islam"].Sources)
	assert.Equal(t, before, tr.Snapshot())
	assert.Empty(t, tr.forceDone())
	tr.close()
}

func TestTrackerSnapshotsAreImmutable(t *testing.T) {
	tr := NewTracker("run", []string{"a", "b"}, nil)
	first := tr.Snapshot()
	tr.update("a", types.ProgressEvent{}, func(st *types.CategoryState) { st.Phase = types.PhaseSearching })
	assert.Equal(t, types.PhasePending, first.Categories["a"].Phase)
	assert.Equal(t, types.PhaseSearching, tr.Snapshot().Categories["a"].Phase)
	assert.False(t, tr.Snapshot().AllDone())
	tr.close()
}

func TestSubscribeAfterCloseReturnsClosedChannel(t *testing.T) {
	tr := NewTracker("run", []string{"a"}, nil)
	tr.close()
	_, open := <-tr.Subscribe(context.Background())
	assert.False(t, open)
}

func TestSubscribeContextStopsForwarding(t *testing.T) {
	tr := NewTracker("run", []string{"a"}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	ch := tr.Subscribe(ctx)
	tr.update("a", types.ProgressEvent{Kind: types.EventPhase}, nil)
	cancel()
	for range ch {
	}
	tr.close()
}

func TestStartMissingCategory(t *testing.T) {
	cats, err := types.DefaultCategories().Only([]string{"judaism", "islam"})
	require.NoError(t, err)
	plan := types.Plan{Queries: map[string]types.PlannedQuery{"judaism": {Query: "q", NumResults: 1}}}
	_, err = New(cats, &fakeSearcher{}, &fakeScraper{}, testConfig(), nil).Start(plan)
	assert.ErrorContains(t, err, `"islam"`)
}

func TestScrapedSourceFallbacks(t *testing.T) {
	cats, err := types.DefaultCategories().Only([]string{"islam"})
	require.NoError(t, err)
	s := &fakeSearcher{outcomes: map[string]search.Outcome{"islam": {
		Hits:   []types.SearchHit{{Link: "https://islam.example/x", Snippet: "snip"}},
		Engine: "perplexity",
	}}}
	delivered, err := collect(t, New(cats, s, emptyScraper{}, testConfig(), nil), context.Background(), planFor(cats, 1))
	require.NoError(t, err)
	require.Len(t, delivered[0], 1)
	src := delivered[0][0]
	assert.Equal(t, "Only title", src.Title)
	assert.Equal(t, "snip", src.Content)
	assert.Equal(t, "ISLAM", src.Label)
	assert.Equal(t, "islam interest", src.Query)
}

func TestNormalizeScrapedSource(t *testing.T) {
	isl, _ := types.DefaultCategories().Get("islam")
	j := job{cat: isl, query: types.PlannedQuery{Query: "riba", NumResults: 2}}

	tests := []struct {
		name      string
		hit       types.SearchHit
		page      extract.Page
		ok        bool
		wantTitle string
		wantBody  string
	}{
		{"hit title wins", types.SearchHit{Title: "Riba", Link: "https://quran.com/2/275"}, extract.Page{Title: "Page", Content: "text"}, true, "Riba", "text"},
		{"page title fills in", types.SearchHit{Link: " https://quran.com/2/275 "}, extract.Page{Title: "Al-Baqarah", Content: "text"}, true, "Al-Baqarah", "text"},
		{"snippet when page empty", types.SearchHit{Link: "https://quran.com/2/275", Snippet: "snip"}, extract.Page{}, true, "No title", "snip"},
		{"no link rejected", types.SearchHit{Title: "Riba"}, extract.Page{Content: "text"}, false, "", ""},
		{"no text rejected", types.SearchHit{Link: "https://quran.com/2/275"}, extract.Page{Content: "  "}, false, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, ok := normalizeScrapedSource(j, tt.hit, tt.page, "perplexity")
			require.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.wantTitle, src.Title)
			assert.Equal(t, tt.wantBody, src.Content)
			assert.Equal(t, "https://quran.com/2/275", src.Link)
			assert.Equal(t, "perplexity", src.Engine)
		})
	}
}

type emptyScraper struct{}

func (emptyScraper) Extract(_ context.Context, url string) (extract.Page, error) {
	return extract.Page{URL: url, Title: "Only title"}, nil
}

// --- output ---

func TestFormatTableAndJSON(t *testing.T) {
	sources := []types.ScrapedSource{
		{Category: "islam", Label: "ISLAM", Title: "Riba", Link: "https://islamqa.info/riba", Engine: "perplexity"},
		{Category: "sikhism", Label: "SIKHISM", Title: scrapeFailedTitle, Engine: types.EngineNone, Placeholder: true},
	}
	var buf bytes.Buffer
	FormatTable(sources, &buf)
	assert.Contains(t, buf.String(), "1 sources, 1 exhausted categories")

	buf.Reset()
	require.NoError(t, FormatJSON(sources, &buf))
	var decoded []types.ScrapedSource
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, sources, decoded)

	buf.Reset()
	require.NoError(t, FormatJSON(nil, &buf))
	assert.Equal(t, "[]\n", buf.String())
}

func TestPrintProgress(t *testing.T) {
	ch := make(chan types.ProgressEvent, 3)
	ch <- types.ProgressEvent{Category: "islam", Kind: types.EventMirror, Engine: "https://m/"}
	ch <- types.ProgressEvent{Category: "islam", Kind: types.EventDone, Detail: "2 sources"}
	ch <- types.ProgressEvent{Category: "islam", Kind: types.EventTimeout}
	close(ch)
	var buf bytes.Buffer
	PrintProgress(ch, &buf)
	assert.Contains(t, buf.String(), "https://m/")
	assert.Contains(t, buf.String(), "2 sources")
	assert.Contains(t, buf.String(), "timeout")
}
