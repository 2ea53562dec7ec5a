// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "paperboy/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// RetryConfig holds the knobs for the shared retry policy. Each stage
// carries its own copy so ceilings can differ per external service.
type RetryConfig struct {
	// MaxAttempts is the total number of tries, including the first (default 3).
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts"`

	// BaseDelay is the first backoff interval; it doubles per attempt (default 1s).
	BaseDelay time.Duration `json:"base_delay" yaml:"base_delay"`
}

// DiscoveryProvider identifies the listing source implementation.
type DiscoveryProvider string

const (
	ProviderDBLP    DiscoveryProvider = "dblp"
	ProviderListing DiscoveryProvider = "listing"
	ProviderFeed    DiscoveryProvider = "feed"
)

// DiscoveryConfig holds settings for the discovery stage.
type DiscoveryConfig struct {
	HTTPConfig `yaml:",inline"`
	Retry      RetryConfig `json:"retry" yaml:"retry"`

	// Provider selects the listing source: dblp, listing, or feed.
	Provider DiscoveryProvider `json:"provider" yaml:"provider"`

	// Query is the provider query, e.g. "ICLR+2024" for dblp.
	Query string `json:"query" yaml:"query"`

	// ListingURL is the page or feed URL for the listing and feed providers.
	ListingURL string `json:"listing_url" yaml:"listing_url"`

	// PageSize is the number of entries requested per page (default 100).
	PageSize int `json:"page_size" yaml:"page_size"`

	// MaxPages caps pagination; 0 means paginate until the provider is
	// exhausted (empty or short page).
	MaxPages int `json:"max_pages" yaml:"max_pages"`

	// PageDelay is the pause between listing page requests (default 2s).
	PageDelay time.Duration `json:"page_delay" yaml:"page_delay"`
}

// FetchConfig holds settings for the PDF download stage.
type FetchConfig struct {
	HTTPConfig `yaml:",inline"`
	Retry      RetryConfig `json:"retry" yaml:"retry"`

	// PapersDir is the base directory for papers (contains raw/, markdown/).
	PapersDir string `json:"papers_dir" yaml:"papers_dir"`

	// DownloadDelay is the delay between consecutive downloads (default 1s).
	DownloadDelay time.Duration `json:"download_delay" yaml:"download_delay"`
}

// ConversionBackend identifies the PDF conversion engine.
type ConversionBackend string

const (
	BackendRemote    ConversionBackend = "remote"
	BackendContainer ConversionBackend = "container"
)

// ConversionConfig holds settings for the conversion stage.
type ConversionConfig struct {
	HTTPConfig `yaml:",inline"`
	Retry      RetryConfig `json:"retry" yaml:"retry"`

	// Backend selects the conversion engine: remote (HTTP service) or
	// container (local engine image).
	Backend ConversionBackend `json:"backend" yaml:"backend"`

	// ServiceURL is the base URL of the remote conversion service.
	ServiceURL string `json:"service_url" yaml:"service_url"`

	// AuthToken authenticates requests to the remote service; usually
	// loaded from .secrets/conversion-service-token.
	AuthToken string `json:"auth_token,omitempty" yaml:"auth_token,omitempty"`

	// PollInterval is how often the adapter polls a submitted job (default 2s).
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval"`

	// PollBudget bounds the total wait for one conversion (default 5m).
	// Exceeding it is a retriable timeout, not a hang.
	PollBudget time.Duration `json:"poll_budget" yaml:"poll_budget"`

	// PapersDir is the base directory for papers (contains raw/, markdown/).
	PapersDir string `json:"papers_dir" yaml:"papers_dir"`
}

// SummaryConfig holds settings for the summarization stage.
type SummaryConfig struct {
	Retry RetryConfig `json:"retry" yaml:"retry"`

	// BaseURL is the completion service endpoint (default http://localhost:11434).
	BaseURL string `json:"base_url" yaml:"base_url"`

	// Model is the completion model identifier (e.g. "qwen2.5:72b-32k").
	Model string `json:"model" yaml:"model"`

	// Timeout is the per-request timeout for completion calls (default 2m).
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// ContextBudget is the completion service context ceiling in tokens
	// (default 4000). Inputs over budget are chunked.
	ContextBudget int `json:"context_budget" yaml:"context_budget"`

	// PromptFile optionally overrides the built-in summary prompt template.
	PromptFile string `json:"prompt_file,omitempty" yaml:"prompt_file,omitempty"`

	// ReducePromptFile optionally overrides the built-in reduction template.
	ReducePromptFile string `json:"reduce_prompt_file,omitempty" yaml:"reduce_prompt_file,omitempty"`
}

// PublishConfig holds settings for the inbox delivery stage.
type PublishConfig struct {
	HTTPConfig `yaml:",inline"`
	Retry      RetryConfig `json:"retry" yaml:"retry"`

	// APIURL is the inbox endpoint; usually loaded from .secrets/.
	APIURL string `json:"api_url,omitempty" yaml:"api_url,omitempty"`

	// Folder is the inbox collection summaries are filed under.
	Folder string `json:"folder" yaml:"folder"`

	// MaxContentLength truncates summaries to the service limit (default 3000).
	MaxContentLength int `json:"max_content_length" yaml:"max_content_length"`

	// MaxPerRun caps how many papers are published in one run; 0 = unlimited.
	MaxPerRun int `json:"max_per_run" yaml:"max_per_run"`
}

// CatalogConfig holds settings for the catalog store.
type CatalogConfig struct {
	// Path is the SQLite database file (default "catalog/paperboy.db").
	Path string `json:"path" yaml:"path"`

	// ClaimTTL is how long a run's claim on a paper stays valid before
	// another run may steal it (default 30m).
	ClaimTTL time.Duration `json:"claim_ttl" yaml:"claim_ttl"`
}

// WorkerConfig bounds per-stage concurrency. Zero values mean 1
// (sequential), matching the single-batch scheduling model.
type WorkerConfig struct {
	Fetch     int `json:"fetch" yaml:"fetch"`
	Convert   int `json:"convert" yaml:"convert"`
	Summarize int `json:"summarize" yaml:"summarize"`
	Publish   int `json:"publish" yaml:"publish"`
}

// Limit returns the pool size for stage, defaulting to 1.
func (w WorkerConfig) Limit(stage Stage) int {
	var n int
	switch stage {
	case StageFetched:
		n = w.Fetch
	case StageConverted:
		n = w.Convert
	case StageSummarized:
		n = w.Summarize
	case StagePublished:
		n = w.Publish
	}
	if n <= 0 {
		return 1
	}
	return n
}

// PipelineConfig groups all stage configurations for the pipeline.
type PipelineConfig struct {
	Catalog   CatalogConfig    `json:"catalog" yaml:"catalog"`
	Discovery DiscoveryConfig  `json:"discovery" yaml:"discovery"`
	Fetch     FetchConfig      `json:"fetch" yaml:"fetch"`
	Convert   ConversionConfig `json:"convert" yaml:"convert"`
	Summary   SummaryConfig    `json:"summary" yaml:"summary"`
	Publish   PublishConfig    `json:"publish" yaml:"publish"`
	Workers   WorkerConfig     `json:"workers" yaml:"workers"`

	// Ceilings is the per-stage attempt ceiling tracked across runs;
	// a paper at the ceiling moves to failed (default 3 per stage).
	Ceilings map[Stage]int `json:"ceilings,omitempty" yaml:"ceilings,omitempty"`
}

// Ceiling returns the attempt ceiling for stage, defaulting to 3.
func (c PipelineConfig) Ceiling(stage Stage) int {
	if n, ok := c.Ceilings[stage]; ok && n > 0 {
		return n
	}
	return 3
}
