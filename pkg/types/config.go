package types

import "time"

// BrowserUserAgent is the User-Agent sent when fetching pages to scrape.
// Several tradition sites refuse requests that do not look like a browser.
const BrowserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// DefaultUserAgent is the User-Agent sent to search APIs and mirrors.
const DefaultUserAgent = "Mozilla/5.0 (compatible; alif/0.1)"

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests.
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`
}

// SearchConfig holds settings for the search provider adapter.
type SearchConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// PerplexityAPIKey enables the primary keyed provider. When empty the
	// adapter goes straight to the mirror pool.
	PerplexityAPIKey string `json:"perplexity_api_key,omitempty" yaml:"perplexity_api_key,omitempty" mapstructure:"perplexity_api_key"`

	// PerplexityURL overrides the primary provider endpoint.
	PerplexityURL string `json:"perplexity_url,omitempty" yaml:"perplexity_url,omitempty" mapstructure:"perplexity_url"`

	// ProviderMaxResults caps the results requested from the primary provider (default 10).
	ProviderMaxResults int `json:"provider_max_results" yaml:"provider_max_results" mapstructure:"provider_max_results"`

	// MaxDomains caps the allow-list sent to the primary provider (default 10).
	MaxDomains int `json:"max_domains" yaml:"max_domains" mapstructure:"max_domains"`

	// MaxTokensPerPage is forwarded to the primary provider (default 1024).
	MaxTokensPerPage int `json:"max_tokens_per_page" yaml:"max_tokens_per_page" mapstructure:"max_tokens_per_page"`

	// Mirrors overrides the built-in mirror pool, in preference order.
	Mirrors []string `json:"mirrors,omitempty" yaml:"mirrors,omitempty" mapstructure:"mirrors"`

	// MirrorsFile loads the mirror pool from a YAML file.
	MirrorsFile string `json:"mirrors_file,omitempty" yaml:"mirrors_file,omitempty" mapstructure:"mirrors_file"`
}

// WithDefaults returns c with zero fields set to their defaults.
func (c SearchConfig) WithDefaults() SearchConfig {
	if c.Timeout <= 0 {
		c.Timeout = 20 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.ProviderMaxResults <= 0 {
		c.ProviderMaxResults = 10
	}
	if c.MaxDomains <= 0 {
		c.MaxDomains = 10
	}
	if c.MaxTokensPerPage <= 0 {
		c.MaxTokensPerPage = 1024
	}
	return c
}

// ContentFormat selects how extracted page content is rendered.
type ContentFormat string

const (
	FormatText     ContentFormat = "text"
	FormatMarkdown ContentFormat = "markdown"
)

// ExtractConfig holds settings for the content extractor.
type ExtractConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// MinBlockLen is the minimum trimmed length of a text block (default 80).
	MinBlockLen int `json:"min_block_len" yaml:"min_block_len" mapstructure:"min_block_len"`

	// MaxSummaryLen caps whole-body fallback content (default 2000).
	MaxSummaryLen int `json:"max_summary_len" yaml:"max_summary_len" mapstructure:"max_summary_len"`

	// MaxBodyBytes caps the downloaded page size (default 5 MiB).
	MaxBodyBytes int64 `json:"max_body_bytes" yaml:"max_body_bytes" mapstructure:"max_body_bytes"`

	// InsecureTLS retries TLS failures with certificate validation
	// disabled. Off unless explicitly enabled.
	InsecureTLS bool `json:"insecure_tls" yaml:"insecure_tls" mapstructure:"insecure_tls"`

	// Format selects text or markdown content (default text).
	Format ContentFormat `json:"format" yaml:"format" mapstructure:"format"`
}

// WithDefaults returns c with zero fields set to their defaults.
func (c ExtractConfig) WithDefaults() ExtractConfig {
	if c.Timeout <= 0 {
		c.Timeout = 20 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = BrowserUserAgent
	}
	if c.MinBlockLen <= 0 {
		c.MinBlockLen = 80
	}
	if c.MaxSummaryLen <= 0 {
		c.MaxSummaryLen = 2000
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 5 << 20
	}
	if c.Format == "" {
		c.Format = FormatText
	}
	return c
}

// MaxScrapeAttempts bounds the attempts made for one hit: one try and one retry.
const MaxScrapeAttempts = 2

// RetrieveConfig holds settings for the retrieval orchestrator.
type RetrieveConfig struct {
	// BatchSize is the number of categories processed concurrently (default 3).
	BatchSize int `json:"batch_size" yaml:"batch_size" mapstructure:"batch_size"`

	// BatchDelay is the pause between batches (default 2s). Negative disables it.
	BatchDelay time.Duration `json:"batch_delay" yaml:"batch_delay" mapstructure:"batch_delay"`

	// ScrapeAttempts is the total number of attempts per hit. Values outside
	// [1, MaxScrapeAttempts] become MaxScrapeAttempts.
	ScrapeAttempts int `json:"scrape_attempts" yaml:"scrape_attempts" mapstructure:"scrape_attempts"`

	// ScrapeBackoff is the wait between scrape attempts (default 400ms).
	ScrapeBackoff time.Duration `json:"scrape_backoff" yaml:"scrape_backoff" mapstructure:"scrape_backoff"`

	// PacingDelay is the pause after each successful scrape (default 650ms).
	// Negative disables it.
	PacingDelay time.Duration `json:"pacing_delay" yaml:"pacing_delay" mapstructure:"pacing_delay"`

	// Timeout is the whole-run deadline (default 5m).
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
}

// WithDefaults returns c with zero fields set to their defaults.
func (c RetrieveConfig) WithDefaults() RetrieveConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = 3
	}
	if c.BatchDelay == 0 {
		c.BatchDelay = 2 * time.Second
	}
	if c.ScrapeAttempts <= 0 || c.ScrapeAttempts > MaxScrapeAttempts {
		c.ScrapeAttempts = MaxScrapeAttempts
	}
	if c.ScrapeBackoff == 0 {
		c.ScrapeBackoff = 400 * time.Millisecond
	}
	if c.PacingDelay == 0 {
		c.PacingDelay = 650 * time.Millisecond
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Minute
	}
	return c
}

// AIProvider identifies the LLM backend.
type AIProvider string

const (
	ProviderGemini AIProvider = "gemini"
	ProviderClaude AIProvider = "claude"
)

// AIConfig holds shared settings for stages that call a Generative AI API.
type AIConfig struct {
	// Provider selects gemini or claude (default gemini).
	Provider AIProvider `json:"provider" yaml:"provider" mapstructure:"provider"`

	// Model is the AI model identifier.
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	// APIKey is the authentication key for the AI API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// MaxRetries is the number of retry attempts for failed API calls (default 2).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
}

func (c AIConfig) withDefaults(model string) AIConfig {
	if c.Provider == "" {
		c.Provider = ProviderGemini
	}
	if c.Model == "" {
		switch c.Provider {
		case ProviderClaude:
			c.Model = "claude-sonnet-4-5-20250929"
		default:
			c.Model = model
		}
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 2
	}
	return c
}

// PlannerConfig holds settings for the category query planner.
type PlannerConfig struct {
	AIConfig `yaml:",inline" mapstructure:",squash"`
}

// WithDefaults returns c with zero fields set to their defaults.
func (c PlannerConfig) WithDefaults() PlannerConfig {
	c.AIConfig = c.AIConfig.withDefaults("gemini-2.5-flash-lite")
	return c
}

// SynthesisConfig holds settings for the synthesis stage.
type SynthesisConfig struct {
	AIConfig `yaml:",inline" mapstructure:",squash"`

	// MaxSourceChars caps the content forwarded per source (default 4000).
	MaxSourceChars int `json:"max_source_chars" yaml:"max_source_chars" mapstructure:"max_source_chars"`
}

// WithDefaults returns c with zero fields set to their defaults.
func (c SynthesisConfig) WithDefaults() SynthesisConfig {
	c.AIConfig = c.AIConfig.withDefaults("gemini-2.5-flash")
	if c.MaxSourceChars <= 0 {
		c.MaxSourceChars = 4000
	}
	return c
}

// HistoryConfig holds settings for the run history store.
type HistoryConfig struct {
	// Path is the SQLite database file (default "alif.db").
	Path string `json:"path" yaml:"path" mapstructure:"path"`

	// Disabled turns history recording off.
	Disabled bool `json:"disabled" yaml:"disabled" mapstructure:"disabled"`
}

// ServerConfig holds settings for the HTTP API.
type ServerConfig struct {
	// Addr is the listen address (default ":8080").
	Addr string `json:"addr" yaml:"addr" mapstructure:"addr"`
}

// PipelineConfig groups all stage configurations for the pipeline.
type PipelineConfig struct {
	// Categories overrides the built-in category table.
	Categories []Category `json:"categories,omitempty" yaml:"categories,omitempty" mapstructure:"categories"`

	// EnabledCategories restricts a run to a subset of categories.
	EnabledCategories []string `json:"enabled_categories,omitempty" yaml:"enabled_categories,omitempty" mapstructure:"enabled_categories"`

	Search    SearchConfig    `json:"search" yaml:"search" mapstructure:"search"`
	Extract   ExtractConfig   `json:"extract" yaml:"extract" mapstructure:"extract"`
	Retrieve  RetrieveConfig  `json:"retrieve" yaml:"retrieve" mapstructure:"retrieve"`
	Planner   PlannerConfig   `json:"planner" yaml:"planner" mapstructure:"planner"`
	Synthesis SynthesisConfig `json:"synthesis" yaml:"synthesis" mapstructure:"synthesis"`
	History   HistoryConfig   `json:"history" yaml:"history" mapstructure:"history"`
	Server    ServerConfig    `json:"server" yaml:"server" mapstructure:"server"`
}

// WithDefaults returns c with every stage's defaults applied.
func (c PipelineConfig) WithDefaults() PipelineConfig {
	c.Search = c.Search.WithDefaults()
	c.Extract = c.Extract.WithDefaults()
	c.Retrieve = c.Retrieve.WithDefaults()
	c.Planner = c.Planner.WithDefaults()
	c.Synthesis = c.Synthesis.WithDefaults()
	if c.History.Path == "" {
		c.History.Path = "alif.db"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	return c
}

// CategoryTable returns the enabled categories: the configured table (or the
// built-in one) filtered by EnabledCategories.
func (c PipelineConfig) CategoryTable() (Categories, error) {
	table := DefaultCategories()
	if len(c.Categories) > 0 {
		var err error
		table, err = NewCategories(c.Categories)
		if err != nil {
			return Categories{}, err
		}
	}
	return table.Only(c.EnabledCategories)
}
