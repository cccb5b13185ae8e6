// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package llm wraps the Generative AI backends used for query planning and
// answer synthesis. Each backend turns a system instruction and a user prompt
// into raw response text; callers own prompt rendering and response parsing.
package llm

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/pdiddy/alif/pkg/types"
)

// Generator abstracts the Generative AI API so tests can supply a mock.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// New returns the backend selected by cfg.Provider, wrapped with retries.
func New(ctx context.Context, cfg types.AIConfig, client *http.Client) (Generator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("no API key configured for %s", cfg.Provider)
	}

	var g Generator
	switch cfg.Provider {
	case types.ProviderClaude:
		g = &ClaudeBackend{APIKey: cfg.APIKey, Model: cfg.Model, Client: client}
	case types.ProviderGemini, "":
		gb, err := NewGeminiBackend(ctx, cfg.APIKey, cfg.Model, client)
		if err != nil {
			return nil, err
		}
		g = gb
	default:
		return nil, fmt.Errorf("unknown AI provider %q", cfg.Provider)
	}
	return WithRetry(g, cfg.MaxRetries), nil
}

// backoffBase controls the base duration for exponential backoff. Tests
// override this to avoid real sleeps.
var backoffBase = time.Second

type retrying struct {
	next       Generator
	maxRetries int
}

// WithRetry retries failed calls up to maxRetries times with exponential
// backoff.
func WithRetry(g Generator, maxRetries int) Generator {
	if maxRetries <= 0 {
		return g
	}
	return &retrying{next: g, maxRetries: maxRetries}
}

func (r *retrying) Generate(ctx context.Context, system, prompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * backoffBase
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		text, err := r.next.Generate(ctx, system, prompt)
		if err == nil {
			return text, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		lastErr = err
	}
	return "", fmt.Errorf("after %d retries: %w", r.maxRetries, lastErr)
}

// StripCodeFences removes a surrounding markdown code fence (```json ... ```)
// from model output. Text without a fence is returned trimmed.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
