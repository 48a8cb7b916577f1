// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "deep-research/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// ProviderConfig holds settings for the language-model providers. The
// primary provider handles every call; the secondary takes over on
// primary failure or timeout.
type ProviderConfig struct {
	// AnthropicAPIKey authenticates the primary provider.
	AnthropicAPIKey string `json:"anthropic_api_key,omitempty" yaml:"anthropic_api_key,omitempty"`

	// AnthropicModel is the primary model identifier.
	AnthropicModel string `json:"anthropic_model" yaml:"anthropic_model"`

	// GeminiAPIKey authenticates the secondary provider.
	GeminiAPIKey string `json:"gemini_api_key,omitempty" yaml:"gemini_api_key,omitempty"`

	// GeminiModel is the secondary model identifier.
	GeminiModel string `json:"gemini_model" yaml:"gemini_model"`

	// MaxRetries is the number of retry attempts per provider before
	// switching (default 2).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
}

// EmbeddingConfig holds settings for the embedding service.
type EmbeddingConfig struct {
	// Model is the embedding model identifier (default "text-embedding-3-small").
	Model string `json:"model" yaml:"model"`

	// APIKey authenticates the embedding provider.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// BatchSize is the maximum texts per embedding request (default 50).
	BatchSize int `json:"batch_size" yaml:"batch_size"`

	// MaxAttempts bounds rate-limit retries per batch (default 4).
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts"`
}

// PlannerConfig holds settings for the query-planning stage.
type PlannerConfig struct {
	// CallTimeout bounds the planning model call (default 30s).
	CallTimeout time.Duration `json:"call_timeout" yaml:"call_timeout"`
}

// SearchConfig holds settings for the search-aggregation stage.
type SearchConfig struct {
	HTTPConfig `yaml:",inline"`

	// MaxResultsPerAdapter caps each adapter's result count (default 50).
	MaxResultsPerAdapter int `json:"max_results_per_adapter" yaml:"max_results_per_adapter"`

	// EnableOpenAlex controls whether the OpenAlex adapter is used.
	EnableOpenAlex bool `json:"enable_openalex" yaml:"enable_openalex"`

	// EnableSemanticScholar controls whether the Semantic Scholar adapter is used.
	EnableSemanticScholar bool `json:"enable_semantic_scholar" yaml:"enable_semantic_scholar"`

	// EnableGrounded controls whether the grounded web-search adapter is used.
	EnableGrounded bool `json:"enable_grounded" yaml:"enable_grounded"`

	// SemanticScholarAPIKey is an optional API key for higher rate limits.
	SemanticScholarAPIKey string `json:"semantic_scholar_api_key,omitempty" yaml:"semantic_scholar_api_key,omitempty"`

	// OpenAlexEmail is sent as the mailto parameter for polite pool access.
	OpenAlexEmail string `json:"openalex_email,omitempty" yaml:"openalex_email,omitempty"`
}

// FilterConfig holds the two-stage relevance filter's tuning values. The
// numeric defaults are empirically tuned; keep them as configuration
// rather than re-deriving them.
type FilterConfig struct {
	// PrefilterThreshold is the minimum cosine similarity to survive the
	// embedding prefilter (default 0.48).
	PrefilterThreshold float64 `json:"prefilter_threshold" yaml:"prefilter_threshold"`

	// BracketSize is how many top candidates form the first selection
	// bracket (default 100).
	BracketSize int `json:"bracket_size" yaml:"bracket_size"`

	// BracketPick is how many documents the model selector must return
	// per bracket (default 20).
	BracketPick int `json:"bracket_pick" yaml:"bracket_pick"`

	// YieldFloor is the minimum merged result count before the rescue
	// top-up stops (default 30).
	YieldFloor int `json:"yield_floor" yaml:"yield_floor"`

	// MaxResults caps the filter's output (default 50).
	MaxResults int `json:"max_results" yaml:"max_results"`

	// SelectTimeout bounds each bracket's model call (default 80s).
	SelectTimeout time.Duration `json:"select_timeout" yaml:"select_timeout"`
}

// AcquisitionConfig holds settings for document acquisition.
type AcquisitionConfig struct {
	HTTPConfig `yaml:",inline"`

	// MaxDocumentBytes is the size ceiling for a fetched document
	// (default 25 MB), enforced on the declared length before buffering
	// and on the actual length after.
	MaxDocumentBytes int64 `json:"max_document_bytes" yaml:"max_document_bytes"`

	// Concurrency bounds how many downloads are in flight at once
	// (default 4).
	Concurrency int `json:"concurrency" yaml:"concurrency"`
}

// ExtractionConfig holds settings for note extraction.
type ExtractionConfig struct {
	// PagesPerBatch is the fixed batch size for page partitioning (default 8).
	PagesPerBatch int `json:"pages_per_batch" yaml:"pages_per_batch"`

	// Concurrency bounds how many batches are in flight at once (default 3).
	Concurrency int `json:"concurrency" yaml:"concurrency"`

	// BatchTimeout bounds each batch's model call (default 60s).
	BatchTimeout time.Duration `json:"batch_timeout" yaml:"batch_timeout"`

	// DefaultRelevance is stamped on notes the model returns without a
	// score (default 0.75).
	DefaultRelevance float64 `json:"default_relevance" yaml:"default_relevance"`
}

// StoreConfig holds settings for the persistence sink.
type StoreConfig struct {
	// DataDir is the directory holding the research database and exports.
	DataDir string `json:"data_dir" yaml:"data_dir"`
}

// PipelineConfig groups all stage configurations for a research run.
type PipelineConfig struct {
	Provider    ProviderConfig    `json:"provider" yaml:"provider"`
	Embedding   EmbeddingConfig   `json:"embedding" yaml:"embedding"`
	Planner     PlannerConfig     `json:"planner" yaml:"planner"`
	Search      SearchConfig      `json:"search" yaml:"search"`
	Filter      FilterConfig      `json:"filter" yaml:"filter"`
	Acquisition AcquisitionConfig `json:"acquisition" yaml:"acquisition"`
	Extraction  ExtractionConfig  `json:"extraction" yaml:"extraction"`
	Store       StoreConfig       `json:"store" yaml:"store"`
}

// DefaultPipelineConfig returns the tuned defaults for every stage.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Provider: ProviderConfig{
			AnthropicModel: "claude-sonnet-4-5-20250929",
			GeminiModel:    "gemini-2.5-flash",
			MaxRetries:     2,
		},
		Embedding: EmbeddingConfig{
			Model:       "text-embedding-3-small",
			BatchSize:   50,
			MaxAttempts: 4,
		},
		Planner: PlannerConfig{
			CallTimeout: 30 * time.Second,
		},
		Search: SearchConfig{
			HTTPConfig: HTTPConfig{
				Timeout:   30 * time.Second,
				UserAgent: "deep-research/0.1",
			},
			MaxResultsPerAdapter:  50,
			EnableOpenAlex:        true,
			EnableSemanticScholar: true,
			EnableGrounded:        false,
		},
		Filter: FilterConfig{
			PrefilterThreshold: 0.48,
			BracketSize:        100,
			BracketPick:        20,
			YieldFloor:         30,
			MaxResults:         50,
			SelectTimeout:      80 * time.Second,
		},
		Acquisition: AcquisitionConfig{
			HTTPConfig: HTTPConfig{
				Timeout:   15 * time.Second,
				UserAgent: "deep-research/0.1 (academic research pipeline)",
			},
			MaxDocumentBytes: 25 << 20,
			Concurrency:      4,
		},
		Extraction: ExtractionConfig{
			PagesPerBatch:    8,
			Concurrency:      3,
			BatchTimeout:     60 * time.Second,
			DefaultRelevance: 0.75,
		},
		Store: StoreConfig{
			DataDir: "research",
		},
	}
}
