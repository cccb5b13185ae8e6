package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/alif/pkg/types"
)

func TestMain(m *testing.M) {
	backoffBase = time.Millisecond
	os.Exit(m.Run())
}

type flakyGenerator struct {
	failures int
	calls    int
}

func (f *flakyGenerator) Generate(_ context.Context, _, prompt string) (string, error) {
	f.calls++
	if f.calls <= f.failures {
		return "", errors.New("transient")
	}
	return "ok: " + prompt, nil
}

func TestWithRetry(t *testing.T) {
	f := &flakyGenerator{failures: 2}
	got, err := WithRetry(f, 2).Generate(context.Background(), "", "p")
	require.NoError(t, err)
	assert.Equal(t, "ok: p", got)
	assert.Equal(t, 3, f.calls)

	f = &flakyGenerator{failures: 5}
	_, err = WithRetry(f, 1).Generate(context.Background(), "", "p")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 1 retries")
	assert.Equal(t, 2, f.calls)
}

func TestWithRetryZeroIsPassthrough(t *testing.T) {
	f := &flakyGenerator{}
	assert.Same(t, Generator(f), WithRetry(f, 0))
}

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"plain", ` {"a":1} `, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```\n", `{"a":1}`},
		{"single line", "```json{\"a\":1}```", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripCodeFences(tt.in))
		})
	}
}

func TestClaudeBackend(t *testing.T) {
	var got claudeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, `{"content":[{"type":"text","text":"{\"a\":"},{"type":"tool_use"},{"type":"text","text":"1}"}]}`)
	}))
	defer srv.Close()

	old := claudeAPIURL
	claudeAPIURL = srv.URL
	defer func() { claudeAPIURL = old }()

	c := &ClaudeBackend{APIKey: "key", Model: "m", Client: srv.Client()}
	text, err := c.Generate(context.Background(), "sys", "hello")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, text)
	assert.Equal(t, "sys", got.System)
	assert.Equal(t, "m", got.Model)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "hello", got.Messages[0].Content)
}

func TestClaudeBackendHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", 529)
	}))
	defer srv.Close()

	old := claudeAPIURL
	claudeAPIURL = srv.URL
	defer func() { claudeAPIURL = old }()

	_, err := (&ClaudeBackend{APIKey: "key"}).Generate(context.Background(), "", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "529")
}

func TestGeminiBackend(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"hi there"}]}}]}`)
	}))
	defer srv.Close()

	old := geminiBaseURL
	geminiBaseURL = srv.URL + "/"
	defer func() { geminiBaseURL = old }()

	g, err := NewGeminiBackend(context.Background(), "key", "gemini-2.5-flash", srv.Client())
	require.NoError(t, err)
	text, err := g.Generate(context.Background(), "be brief", "hello")
	require.NoError(t, err)
	assert.Equal(t, "hi there", text)
	assert.True(t, strings.HasSuffix(path, "gemini-2.5-flash:generateContent"), "path %q", path)
}

func TestNewRequiresKey(t *testing.T) {
	_, err := New(context.Background(), types.AIConfig{Provider: types.ProviderClaude}, nil)
	assert.Error(t, err)
}

func TestNewUnknownProvider(t *testing.T) {
	_, err := New(context.Background(), types.AIConfig{Provider: "gpt", APIKey: "k"}, nil)
	assert.ErrorContains(t, err, "unknown AI provider")
}

func TestNewClaude(t *testing.T) {
	g, err := New(context.Background(), types.AIConfig{Provider: types.ProviderClaude, APIKey: "k", Model: "m", MaxRetries: 1}, nil)
	require.NoError(t, err)
	r, ok := g.(*retrying)
	require.True(t, ok)
	assert.IsType(t, &ClaudeBackend{}, r.next)
}
