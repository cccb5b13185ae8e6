// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package synth turns a question and its scraped sources into a structured
// comparative answer: one section per category, each with a status verdict
// and citations, plus cross-tradition conclusions.
package synth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/alif/internal/llm"
	"github.com/pdiddy/alif/pkg/types"
)

// defaultTitle is used when the model returns no title.
const defaultTitle = "Results"

// ErrInvalidResponse is returned when the model output is not a JSON object.
var ErrInvalidResponse = errors.New("invalid synthesis response")

// Synthesizer produces an Answer for a query from its scraped sources.
type Synthesizer interface {
	Synthesize(ctx context.Context, query string, sources []types.ScrapedSource) (types.Answer, error)
}

// Service is the LLM-backed Synthesizer.
type Service struct {
	Generator  llm.Generator
	Categories types.Categories
	Config     types.SynthesisConfig
	Logger     *zap.Logger
}

// New returns a Service.
func New(gen llm.Generator, cats types.Categories, cfg types.SynthesisConfig, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{Generator: gen, Categories: cats, Config: cfg.WithDefaults(), Logger: logger}
}

// Synthesize asks the model for a comparative answer. Sections the model
// leaves empty are rebuilt from the category's scraped sources.
func (s *Service) Synthesize(ctx context.Context, query string, sources []types.ScrapedSource) (types.Answer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return types.Answer{}, errors.New("empty query")
	}
	if s.Generator == nil {
		return types.Answer{}, errors.New("no generator configured")
	}

	system, err := renderSystemPrompt(s.Categories)
	if err != nil {
		return types.Answer{}, fmt.Errorf("rendering synthesis prompt: %w", err)
	}
	prompt := userPrompt(query, s.Categories, sources, s.Config.MaxSourceChars)

	log := s.logger()
	log.Info("synthesizing answer", zap.Int("sources", len(sources)), zap.Int("prompt_bytes", len(prompt)))
	raw, err := s.Generator.Generate(ctx, system, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return types.Answer{}, ctx.Err()
		}
		return types.Answer{}, fmt.Errorf("synthesis: %w", err)
	}

	ans, err := ParseAnswer(raw, s.Categories)
	if err != nil {
		log.Warn("unparseable synthesis response", zap.Error(err), zap.Int("raw_bytes", len(raw)))
		return types.Answer{}, err
	}
	filled := FillEmptySections(&ans, s.Categories, sources)
	if len(filled) > 0 {
		log.Info("built fallback sections", zap.Strings("categories", filled))
	}
	return ans, nil
}

func (s *Service) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

type rawAnswer struct {
	Title       string                     `json:"title"`
	Sections    map[string]json.RawMessage `json:"sections"`
	Conclusion  string                     `json:"conclusion"`
	Conclusions []types.Conclusion         `json:"conclusions"`
}

type rawSection struct {
	FeaturedQuote       any              `json:"featured_quote"`
	FeaturedQuoteSource *types.Citation  `json:"featured_quote_source"`
	Status              any              `json:"status"`
	Summary             any              `json:"summary"`
	Sources             []types.Citation `json:"sources"`
}

// ParseAnswer normalizes raw model output into an Answer with exactly one
// section per category. Section keys match case-insensitively, a malformed
// section becomes an empty one, statuses outside the vocabulary become
// empty, and a legacy single "conclusion" string becomes one conclusion.
func ParseAnswer(raw string, cats types.Categories) (types.Answer, error) {
	var r rawAnswer
	if err := json.Unmarshal([]byte(llm.StripCodeFences(raw)), &r); err != nil {
		return types.Answer{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	ans := types.Answer{
		Title:       strings.TrimSpace(r.Title),
		Sections:    make(map[string]types.Section, cats.Len()),
		Conclusions: r.Conclusions,
	}
	if ans.Title == "" {
		ans.Title = defaultTitle
	}
	if len(ans.Conclusions) == 0 && strings.TrimSpace(r.Conclusion) != "" {
		ans.Conclusions = []types.Conclusion{{Label: "Conclusion", Summary: r.Conclusion}}
	}
	if ans.Conclusions == nil {
		ans.Conclusions = []types.Conclusion{}
	}

	lowered := make(map[string]json.RawMessage, len(r.Sections))
	for k, v := range r.Sections {
		lowered[strings.ToLower(strings.TrimSpace(k))] = v
	}
	for _, cat := range cats.List() {
		ans.Sections[cat.Key] = parseSection(lowered[cat.Key])
	}
	return ans, nil
}

func parseSection(data json.RawMessage) types.Section {
	empty := types.Section{Sources: []types.Citation{}}
	if len(data) == 0 {
		return empty
	}
	var rs rawSection
	if err := json.Unmarshal(data, &rs); err != nil {
		return empty
	}
	sec := types.Section{
		FeaturedQuote: asString(rs.FeaturedQuote),
		Summary:       asString(rs.Summary),
		Sources:       []types.Citation{},
	}
	if st := types.Status(asString(rs.Status)); types.ValidStatus(st) {
		sec.Status = st
	}
	if rs.FeaturedQuoteSource != nil {
		c := *rs.FeaturedQuoteSource
		sec.FeaturedQuoteSource = &c
	}
	for _, c := range rs.Sources {
		if c.Title == "" && c.URL == "" {
			continue
		}
		sec.Sources = append(sec.Sources, c)
	}
	return sec
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
