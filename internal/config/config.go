package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// GitHub: either a token, or App credentials (app ID + installation + key)
	GitHubToken          string `envconfig:"GITHUB_TOKEN"`
	GitHubAppID          int64  `envconfig:"GITHUB_APP_ID"`
	GitHubInstallationID int64  `envconfig:"GITHUB_INSTALLATION_ID"`
	GitHubPrivateKeyPath string `envconfig:"GITHUB_PRIVATE_KEY_PATH"`
	GitHubAPIURL         string `envconfig:"GITHUB_API_URL" default:"https://api.github.com"`
	GitHubWebHost        string `envconfig:"GITHUB_WEB_HOST" default:"github.com"`

	// Query executor
	MinRequestDelay  time.Duration `envconfig:"MIN_REQUEST_DELAY" default:"250ms"`
	RateLimitCeiling int           `envconfig:"RATE_LIMIT_CEILING" default:"5000"`
	SearchPageSize   int           `envconfig:"SEARCH_PAGE_SIZE" default:"50"`
	SearchLimit      int           `envconfig:"SEARCH_LIMIT" default:"0"` // 0 = unlimited
	RequestTimeout   time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`

	// Collaborators (LLM)
	AnthropicAPIKey     string        `envconfig:"ANTHROPIC_API_KEY"`
	LLMModel            string        `envconfig:"LLM_MODEL" default:"claude-sonnet-4-5"`
	LLMMaxTokens        int           `envconfig:"LLM_MAX_TOKENS" default:"4096"`
	AnalysisMaxAttempts int           `envconfig:"ANALYSIS_MAX_ATTEMPTS" default:"3"`
	AnalysisBackoff     time.Duration `envconfig:"ANALYSIS_BACKOFF" default:"2s"`

	// Caches
	CacheDir        string `envconfig:"CACHE_DIR" default:".perfreview/cache"`
	MemoryCacheSize int    `envconfig:"MEMORY_CACHE_SIZE" default:"256"`

	// Optional outputs
	MetricsAddr   string `envconfig:"METRICS_ADDR"` // e.g. ":9090"; empty disables the endpoint
	SlackBotToken string `envconfig:"SLACK_BOT_TOKEN"`
	SlackChannel  string `envconfig:"SLACK_CHANNEL"`
}

// GitHubAppEnabled returns true if GitHub App credentials are configured.
func (c *Config) GitHubAppEnabled() bool {
	return c.GitHubAppID > 0 && c.GitHubInstallationID > 0 && c.GitHubPrivateKeyPath != ""
}

// SlackEnabled returns true if summaries should be posted to Slack.
func (c *Config) SlackEnabled() bool {
	return c.SlackBotToken != "" && c.SlackChannel != ""
}

// DetailCacheDir is where raw contribution detail is persisted.
func (c *Config) DetailCacheDir() string {
	return filepath.Join(c.CacheDir, "details")
}

// AnalysisCacheDir is where per-actor judgments are persisted.
func (c *Config) AnalysisCacheDir() string {
	return filepath.Join(c.CacheDir, "analyses")
}

// Validate checks the settings a review run cannot start without.
func (c *Config) Validate() error {
	if c.GitHubToken == "" && !c.GitHubAppEnabled() {
		return fmt.Errorf("GitHub credentials missing: set GITHUB_TOKEN or GITHUB_APP_ID, GITHUB_INSTALLATION_ID and GITHUB_PRIVATE_KEY_PATH")
	}
	if c.AnthropicAPIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required")
	}
	if c.AnalysisMaxAttempts < 1 {
		return fmt.Errorf("ANALYSIS_MAX_ATTEMPTS must be >= 1, got %d", c.AnalysisMaxAttempts)
	}
	if c.RateLimitCeiling < 1 {
		return fmt.Errorf("RATE_LIMIT_CEILING must be >= 1, got %d", c.RateLimitCeiling)
	}
	if c.SearchPageSize < 1 || c.SearchPageSize > 100 {
		return fmt.Errorf("SEARCH_PAGE_SIZE must be between 1 and 100, got %d", c.SearchPageSize)
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return &cfg, nil
}
