package synth

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/alif/pkg/types"
)

type mockGenerator struct {
	resp   string
	err    error
	system string
	prompt string
}

func (m *mockGenerator) Generate(_ context.Context, system, prompt string) (string, error) {
	m.system, m.prompt = system, prompt
	return m.resp, m.err
}

func threeCats(t *testing.T) types.Categories {
	t.Helper()
	cats, err := types.DefaultCategories().Only([]string{"judaism", "christianity", "islam"})
	require.NoError(t, err)
	return cats
}

var scraped = []types.ScrapedSource{
	{Category: "judaism", Label: "JUDAISM", Title: "Ribbit", Link: "https://www.sefaria.org/ribbit", Content: "Lending at interest between Jews is prohibited.", Engine: "perplexity"},
	{Category: "judaism", Label: "JUDAISM", Title: "", Link: "https://www.chabad.org/heter-iska", Content: "Heter iska.", Engine: "perplexity"},
	{Category: "christianity", Label: "CHRISTIANITY", Title: "Usury", Link: "https://www.catholic.com/usury", Content: "The church on usury.", Engine: "searx-html"},
	{Category: "islam", Label: "ISLAM", Title: "No results found (all search engines failed)", Engine: types.EngineNone, Placeholder: true},
}

const fullResp = `{
  "title": "Lending with interest",
  "sections": {
    "Judaism": {
      "featured_quote": "You shall not lend upon interest to your brother.",
      "featured_quote_source": {"title": "Ribbit", "url": "https://www.sefaria.org/ribbit"},
      "status": "forbidden",
      "summary": "Forbidden between Jews [JUDAISM, 1].",
      "sources": [{"title": "Ribbit", "url": "https://www.sefaria.org/ribbit"}]
    },
    "christianity": {
      "featured_quote": "",
      "status": "allowed-ish",
      "summary": "Views differ by denomination.",
      "sources": []
    },
    "islam": {"summary": "", "sources": []}
  },
  "conclusions": [{"label": "Consensus", "summary": "Exploitative interest is condemned."}]
}`

func TestSynthesizeSuccess(t *testing.T) {
	gen := &mockGenerator{resp: "```json\n" + fullResp + "\n```"}
	s := New(gen, threeCats(t), types.SynthesisConfig{}, nil)

	ans, err := s.Synthesize(context.Background(), " Is lending with interest allowed? ", scraped)
	require.NoError(t, err)

	assert.Equal(t, "Lending with interest", ans.Title)
	require.Len(t, ans.Sections, 3)

	jud := ans.Sections["judaism"]
	assert.Equal(t, types.StatusForbidden, jud.Status)
	require.NotNil(t, jud.FeaturedQuoteSource)
	assert.Equal(t, "https://www.sefaria.org/ribbit", jud.FeaturedQuoteSource.URL)

	chr := ans.Sections["christianity"]
	assert.Equal(t, types.Status(""), chr.Status, "unknown status is dropped")
	assert.Equal(t, "Views differ by denomination.", chr.Summary)

	// Islam was empty and only had a placeholder, so the fallback cites nothing.
	isl := ans.Sections["islam"]
	assert.Equal(t, "Top sources for Islam", isl.FeaturedQuote)
	assert.Nil(t, isl.FeaturedQuoteSource)
	assert.Empty(t, isl.Sources)

	assert.Equal(t, []types.Conclusion{{Label: "Consensus", Summary: "Exploitative interest is condemned."}}, ans.Conclusions)

	assert.Contains(t, gen.prompt, "Query: Is lending with interest allowed?")
	assert.Contains(t, gen.prompt, "[JUDAISM, 2] \nhttps://www.chabad.org/heter-iska")
	assert.Contains(t, gen.prompt, "== ISLAM ==\n(no sources retrieved)")
	assert.NotContains(t, gen.prompt, "all search engines failed")
	assert.Contains(t, gen.system, `"christianity": {`)
	assert.Contains(t, gen.system, `"obligatory"`)
	assert.NotContains(t, gen.system, "hinduism")
}

func TestSynthesizeClipsSourceContent(t *testing.T) {
	gen := &mockGenerator{resp: `{"title":"t","sections":{}}`}
	s := New(gen, threeCats(t), types.SynthesisConfig{MaxSourceChars: 10}, nil)

	long := []types.ScrapedSource{{Category: "islam", Title: "Long", Link: "https://quran.com/2/275", Content: strings.Repeat("riba ", 100)}}
	_, err := s.Synthesize(context.Background(), "q", long)
	require.NoError(t, err)
	assert.Contains(t, gen.prompt, "riba riba ...")
	assert.NotContains(t, gen.prompt, strings.Repeat("riba ", 3))
}

func TestSynthesizeErrors(t *testing.T) {
	cats := threeCats(t)

	_, err := New(&mockGenerator{}, cats, types.SynthesisConfig{}, nil).Synthesize(context.Background(), "  ", nil)
	assert.Error(t, err)

	_, err = New(nil, cats, types.SynthesisConfig{}, nil).Synthesize(context.Background(), "q", nil)
	assert.Error(t, err)

	boom := errors.New("quota exceeded")
	_, err = New(&mockGenerator{err: boom}, cats, types.SynthesisConfig{}, nil).Synthesize(context.Background(), "q", nil)
	assert.ErrorIs(t, err, boom)

	_, err = New(&mockGenerator{resp: "I cannot answer that."}, cats, types.SynthesisConfig{}, nil).Synthesize(context.Background(), "q", nil)
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestSynthesizeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	gen := &mockGenerator{err: errors.New("request aborted")}
	_, err := New(gen, threeCats(t), types.SynthesisConfig{}, nil).Synthesize(ctx, "q", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseAnswerLegacyConclusion(t *testing.T) {
	ans, err := ParseAnswer(`{"sections":{},"conclusion":"Most traditions restrict it."}`, threeCats(t))
	require.NoError(t, err)
	assert.Equal(t, "Results", ans.Title)
	assert.Equal(t, []types.Conclusion{{Label: "Conclusion", Summary: "Most traditions restrict it."}}, ans.Conclusions)
	assert.Len(t, ans.Sections, 3)
}

func TestParseAnswerMalformedSection(t *testing.T) {
	ans, err := ParseAnswer(`{"title":"x","sections":{"judaism":"not an object","islam":{"summary":42,"status":"permitted"}}}`, threeCats(t))
	require.NoError(t, err)
	assert.True(t, ans.Sections["judaism"].IsEmpty())
	assert.Equal(t, "", ans.Sections["islam"].Summary)
	assert.Equal(t, types.StatusPermitted, ans.Sections["islam"].Status)
	assert.NotNil(t, ans.Conclusions)
}

func TestFillEmptySections(t *testing.T) {
	cats := threeCats(t)
	ans := types.Answer{Sections: map[string]types.Section{
		"christianity": {Summary: "kept"},
	}}

	filled := FillEmptySections(&ans, cats, scraped)
	assert.Equal(t, []string{"judaism", "islam"}, filled)

	jud := ans.Sections["judaism"]
	assert.Equal(t, "Ribbit", jud.FeaturedQuote)
	assert.Equal(t, &types.Citation{Title: "Ribbit", URL: "https://www.sefaria.org/ribbit"}, jud.FeaturedQuoteSource)
	assert.Equal(t, "- [Judaism, 1] Ribbit\n- [Judaism, 2] https://www.chabad.org/heter-iska", jud.Summary)
	assert.Equal(t, []types.Citation{
		{Title: "Ribbit", URL: "https://www.sefaria.org/ribbit"},
		{Title: "https://www.chabad.org/heter-iska", URL: "https://www.chabad.org/heter-iska"},
	}, jud.Sources)
	assert.Equal(t, types.Status(""), jud.Status)

	assert.Equal(t, "kept", ans.Sections["christianity"].Summary)
}

func TestFillEmptySectionsNilMap(t *testing.T) {
	var ans types.Answer
	filled := FillEmptySections(&ans, threeCats(t), nil)
	assert.Len(t, filled, 3)
	assert.Len(t, ans.Sections, 3)
}

func TestFormatAnswer(t *testing.T) {
	ans := types.Answer{
		Title: "Interest",
		Sections: map[string]types.Section{
			"judaism": {
				FeaturedQuote:       "Do not lend on interest.",
				FeaturedQuoteSource: &types.Citation{Title: "Ribbit", URL: "https://www.sefaria.org/ribbit"},
				Status:              types.StatusForbidden,
				Summary:             "line one\nline two",
				Sources:             []types.Citation{{Title: "Ribbit", URL: "https://www.sefaria.org/ribbit"}},
			},
			"islam": {},
		},
		Conclusions: []types.Conclusion{{Label: "Consensus", Summary: "Restricted."}},
	}

	var buf bytes.Buffer
	FormatAnswer(ans, threeCats(t), &buf)
	out := buf.String()
	assert.Contains(t, out, "JUDAISM [forbidden]")
	assert.Contains(t, out, "  line two\n")
	assert.Contains(t, out, "[1] Ribbit <https://www.sefaria.org/ribbit>")
	assert.Contains(t, out, "ISLAM [n/a]")
	assert.NotContains(t, out, "CHRISTIANITY")
	assert.Contains(t, out, "Consensus: Restricted.")
}
