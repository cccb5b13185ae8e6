package history

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/alif/pkg/types"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(types.HistoryConfig{Path: filepath.Join(t.TempDir(), "db", "history.db")})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRun(id string, started time.Time) Run {
	return Run{
		ID:       id,
		Prompt:   "Is lending with interest allowed?",
		Started:  started,
		Finished: started.Add(42 * time.Second),
		Outcome:  OutcomeCompleted,
		Categories: []CategorySummary{
			{Key: "judaism", Query: "ribbit", Engine: "perplexity", Sources: 3},
			{Key: "islam", Query: "riba", Engine: types.EngineNone, Sources: 1, Exhausted: true},
		},
	}
}

func TestRecordAndGet(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Record(ctx, sampleRun("run-1", started)))

	got, err := s.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "Is lending with interest allowed?", got.Prompt)
	assert.Equal(t, OutcomeCompleted, got.Outcome)
	assert.True(t, got.Started.Equal(started))
	assert.True(t, got.Finished.Equal(started.Add(42*time.Second)))
	require.Len(t, got.Categories, 2)
	assert.Equal(t, "judaism", got.Categories[0].Key)
	assert.Equal(t, CategorySummary{Key: "islam", Query: "riba", Engine: "none", Sources: 1, Exhausted: true}, got.Categories[1])
	assert.Equal(t, 3, got.SourceCount())
}

func TestRecordReplaces(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	run := sampleRun("run-1", time.Now())
	require.NoError(t, s.Record(ctx, run))

	run.Outcome = OutcomeFailed
	run.Error = "synthesis: quota exceeded"
	run.Categories = run.Categories[:1]
	require.NoError(t, s.Record(ctx, run))

	got, err := s.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, got.Outcome)
	assert.Equal(t, "synthesis: quota exceeded", got.Error)
	assert.Len(t, got.Categories, 1)
}

func TestRecordRequiresID(t *testing.T) {
	s := testStore(t)
	assert.Error(t, s.Record(context.Background(), Run{Prompt: "x"}))
}

func TestGetNotFound(t *testing.T) {
	s := testStore(t)
	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListNewestFirstAndPrune(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Record(ctx, sampleRun(id, base.Add(time.Duration(i)*time.Hour))))
	}

	runs, err := s.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].ID)
	assert.Equal(t, "b", runs[1].ID)
	assert.Len(t, runs[0].Categories, 2)

	n, err := s.Prune(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	runs, err = s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "c", runs[0].ID)

	_, err = s.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSummarize(t *testing.T) {
	snap := types.RunSnapshot{
		RunID: "r",
		Order: []string{"judaism", "islam"},
		Categories: map[string]types.CategoryState{
			"judaism": {Done: true, Engine: "perplexity", Sources: make([]types.ScrapedSource, 2)},
			"islam":   {Done: true, Engine: types.EngineNone, Exhausted: true, Sources: make([]types.ScrapedSource, 1)},
		},
	}
	plan := types.Plan{Queries: map[string]types.PlannedQuery{
		"judaism": {Query: "ribbit", NumResults: 2},
		"islam":   {Query: "riba", NumResults: 3},
	}}

	got := Summarize(snap, plan)
	assert.Equal(t, []CategorySummary{
		{Key: "judaism", Query: "ribbit", Engine: "perplexity", Sources: 2},
		{Key: "islam", Query: "riba", Engine: "none", Sources: 1, Exhausted: true},
	}, got)
}

func TestFormatTable(t *testing.T) {
	var buf bytes.Buffer
	FormatTable(nil, &buf)
	assert.Contains(t, buf.String(), "No runs recorded.")

	buf.Reset()
	FormatTable([]Run{sampleRun("run-1", time.Now())}, &buf)
	out := buf.String()
	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "1 runs")
}

func TestFormatDetail(t *testing.T) {
	var buf bytes.Buffer
	FormatDetail(sampleRun("run-1", time.Now()), &buf)
	out := buf.String()
	assert.Contains(t, out, "Duration: 42s")
	assert.Contains(t, out, "ribbit")
	assert.Regexp(t, `islam\W+none\W+-\W+riba`, out)
}
