// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings used by components that make
// network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "fanout-engine/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// AIConfig holds shared settings for stages that call the generation API.
type AIConfig struct {
	HTTPConfig `yaml:",inline"`

	// Model is the generation model identifier (e.g. "gemini-1.5-pro-latest").
	Model string `json:"model" yaml:"model"`

	// APIKey is the authentication key for the generation API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// MaxRetries is the number of retry attempts for transient failures
	// (default 3). Malformed responses get exactly one stricter retry
	// regardless of this setting.
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// RequestsPerSecond caps the sustained call rate to the generation API
	// (default 1.0).
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second"`
}

// Retries returns MaxRetries with the default applied.
func (c AIConfig) Retries() int {
	if c.MaxRetries <= 0 {
		return 3
	}
	return c.MaxRetries
}

// ExpansionConfig holds settings for Stage 1.
type ExpansionConfig struct {
	AIConfig `yaml:",inline"`

	// MaxSubQueries soft-caps the expansion size as a cost guard.
	// Zero means uncapped; the generation response determines the count.
	MaxSubQueries int `json:"max_sub_queries" yaml:"max_sub_queries"`
}

// RoutingConfig holds settings for Stage 2.
type RoutingConfig struct {
	AIConfig `yaml:",inline"`

	// Workers bounds the per-item routing concurrency (default 1, sequential).
	Workers int `json:"workers" yaml:"workers"`

	// SourceTypes is the universe of source types the router may choose from.
	// Empty means DefaultSourceTypes.
	SourceTypes []string `json:"source_types,omitempty" yaml:"source_types,omitempty"`

	// Modalities is the universe of content modalities. Empty means
	// DefaultModalities.
	Modalities []string `json:"modalities,omitempty" yaml:"modalities,omitempty"`
}

// DefaultSourceTypes is the built-in source-type universe for routing.
var DefaultSourceTypes = []string{
	"blog", "forum", "news", "e-commerce", "review site",
	"instructional platform", "video channel", "knowledge base",
	"government or academic source", "vendor documentation",
}

// DefaultModalities is the built-in content-modality universe for routing.
var DefaultModalities = []string{
	"long-form text", "structured schedule", "table", "listicle",
	"comparison table", "video with transcript", "step-by-step guide",
	"concise definition",
}

// ProfilingConfig holds settings for Stage 3.
type ProfilingConfig struct {
	AIConfig `yaml:",inline"`

	// Workers bounds the per-item profiling concurrency (default 1, sequential).
	Workers int `json:"workers" yaml:"workers"`

	// TopResults is the number of top-ranking pages to analyze per
	// sub-query (default 3).
	TopResults int `json:"top_results" yaml:"top_results"`
}

// RetrievalConfig holds settings for the web search and fetch adapter.
type RetrievalConfig struct {
	HTTPConfig `yaml:",inline"`

	// APIKey authenticates with the search API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// RequestsPerSecond caps the sustained search call rate (default 1.0).
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second"`

	// CreditCost is the dollar cost recorded per search or fetch operation.
	CreditCost float64 `json:"credit_cost" yaml:"credit_cost"`

	// MaxPageBytes truncates fetched page text (default 10000).
	MaxPageBytes int `json:"max_page_bytes" yaml:"max_page_bytes"`
}

// OutputConfig holds artifact locations.
type OutputConfig struct {
	// OutputDir is the directory for run artifacts: the run JSON, the
	// rendered report, and the cost summary (default "outputs").
	OutputDir string `json:"output_dir" yaml:"output_dir"`
}

// PipelineConfig groups all stage configurations for one run.
type PipelineConfig struct {
	Expansion ExpansionConfig `json:"expansion" yaml:"expansion"`
	Routing   RoutingConfig   `json:"routing" yaml:"routing"`
	Profiling ProfilingConfig `json:"profiling" yaml:"profiling"`
	Retrieval RetrievalConfig `json:"retrieval" yaml:"retrieval"`
	Output    OutputConfig    `json:"output" yaml:"output"`
}
