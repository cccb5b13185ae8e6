package secrets

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/alif/pkg/types"
)

// secretsDir lays out a .secrets directory from files; a trailing slash in
// a name creates a subdirectory instead.
func secretsDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if strings.HasSuffix(name, "/") {
			require.NoError(t, os.Mkdir(filepath.Join(dir, name), 0o755))
			continue
		}
		writeFile(t, dir, name, content)
	}
	return dir
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		want  map[string]string
	}{
		{
			name: "all three provider keys, trimmed",
			files: map[string]string{
				PerplexityKey: "  pplx-abc123  \n",
				GeminiKey:     "AIza-xyz789",
				AnthropicKey:  "sk-ant-1\n",
			},
			want: map[string]string{PerplexityKey: "pplx-abc123", GeminiKey: "AIza-xyz789", AnthropicKey: "sk-ant-1"},
		},
		{
			name:  "blank files are ignored",
			files: map[string]string{GeminiKey: "AIza-1", AnthropicKey: "", PerplexityKey: "  \n\t "},
			want:  map[string]string{GeminiKey: "AIza-1"},
		},
		{
			name:  "dotfiles and subdirectories are ignored",
			files: map[string]string{".gitkeep": "", ".old-gemini-key": "stale", "archive/": "", PerplexityKey: "pplx-real"},
			want:  map[string]string{PerplexityKey: "pplx-real"},
		},
		{
			name: "empty directory",
			want: map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Load(secretsDir(t, tt.files), nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadMissingDirectory(t *testing.T) {
	got, err := Load(filepath.Join(t.TempDir(), ".secrets"), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLoadUnreadableFile(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits do not apply to root")
	}
	dir := secretsDir(t, map[string]string{GeminiKey: "AIza-ok"})
	locked := filepath.Join(dir, PerplexityKey)
	require.NoError(t, os.WriteFile(locked, []byte("pplx"), 0o000))
	t.Cleanup(func() { os.Chmod(locked, 0o644) })

	got, err := Load(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{GeminiKey: "AIza-ok"}, got)
}

func TestResolveEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, PerplexityKey, "from-file")
	writeFile(t, dir, GeminiKey, "gemini-file")

	env := map[string]string{"PERPLEXITY_API_KEY": "from-env", "ANTHROPIC_API_KEY": " ant-env "}
	got, err := Resolve(dir, func(k string) string { return env[k] }, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		PerplexityKey: "from-env",
		GeminiKey:     "gemini-file",
		AnthropicKey:  "ant-env",
	}, got)
}

func TestApply(t *testing.T) {
	secrets := map[string]string{PerplexityKey: "pplx", GeminiKey: "gem", AnthropicKey: "ant"}

	var cfg types.PipelineConfig
	cfg.Synthesis.Provider = types.ProviderClaude
	cfg.Planner.APIKey = "explicit"
	Apply(&cfg, secrets)

	assert.Equal(t, "pplx", cfg.Search.PerplexityAPIKey)
	assert.Equal(t, "explicit", cfg.Planner.APIKey)
	assert.Equal(t, "ant", cfg.Synthesis.APIKey)

	cfg = types.PipelineConfig{}
	Apply(&cfg, secrets)
	assert.Equal(t, "gem", cfg.Planner.APIKey)
	assert.Equal(t, "gem", cfg.Synthesis.APIKey)
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}
