// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets resolves API keys from a directory of plain-text files and
// the environment. Each file in the directory is one secret: the filename is
// the key name and the trimmed contents are the value. An environment
// variable, when set, overrides the file.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/alif/pkg/types"
)

// Key file names.
const (
	PerplexityKey = "perplexity-api-key"
	GeminiKey     = "gemini-api-key"
	AnthropicKey  = "anthropic-api-key"
)

// envOverrides maps key names to the environment variables that override them.
var envOverrides = map[string]string{
	PerplexityKey: "PERPLEXITY_API_KEY",
	GeminiKey:     "GEMINI_API_KEY",
	AnthropicKey:  "ANTHROPIC_API_KEY",
}

// Load reads all files in dir and returns a map of filename to trimmed contents.
// A missing directory or missing files are not errors; Load returns an empty map.
// Unreadable files are logged and skipped.
func Load(dir string, logger *zap.Logger) (map[string]string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	secrets := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			logger.Warn("could not read secret", zap.String("name", name), zap.Error(err))
			continue
		}

		value := strings.TrimSpace(string(data))
		if value != "" {
			secrets[name] = value
		}
	}

	return secrets, nil
}

// Resolve loads dir and applies environment overrides. getenv is usually
// os.Getenv.
func Resolve(dir string, getenv func(string) string, logger *zap.Logger) (map[string]string, error) {
	secrets, err := Load(dir, logger)
	if err != nil {
		return nil, err
	}
	for name, env := range envOverrides {
		if v := strings.TrimSpace(getenv(env)); v != "" {
			secrets[name] = v
		}
	}
	return secrets, nil
}

// Apply fills API keys the configuration leaves empty. The planner and
// synthesis stages take the key matching their provider.
func Apply(cfg *types.PipelineConfig, secrets map[string]string) {
	if cfg.Search.PerplexityAPIKey == "" {
		cfg.Search.PerplexityAPIKey = secrets[PerplexityKey]
	}
	applyAI(&cfg.Planner.AIConfig, secrets)
	applyAI(&cfg.Synthesis.AIConfig, secrets)
}

func applyAI(c *types.AIConfig, secrets map[string]string) {
	if c.APIKey != "" {
		return
	}
	switch c.Provider {
	case types.ProviderClaude:
		c.APIKey = secrets[AnthropicKey]
	default:
		c.APIKey = secrets[GeminiKey]
	}
}
