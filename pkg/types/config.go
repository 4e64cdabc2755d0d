package types

import "time"

// HTTPConfig holds shared HTTP settings used by stages that call external
// providers.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "bites-engine/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// AIConfig holds shared settings for stages that call a Generative AI API.
type AIConfig struct {
	// Model is the AI model identifier.
	Model string `json:"model" yaml:"model"`

	// APIKey is the authentication key for the AI API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// MaxRetries is the number of retry attempts for failed API calls (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
}

// ExtractionConfig holds settings for the insight-extraction stage.
type ExtractionConfig struct {
	AIConfig `yaml:",inline"`

	// MinSectionChars skips sections shorter than this without an API call
	// (default 100).
	MinSectionChars int `json:"min_section_chars" yaml:"min_section_chars"`
}

// EmbeddingConfig holds settings for the embedding stage.
type EmbeddingConfig struct {
	// Model is the embedding model identifier (e.g. "text-embedding-3-small").
	Model string `json:"model" yaml:"model"`

	// APIKey is the authentication key for the embedding API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// Dimensions is the vector length. It must match the store's vector
	// width (default 1536).
	Dimensions int `json:"dimensions" yaml:"dimensions"`

	// MaxRetries is the number of retry attempts for failed API calls (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
}

// StoreConfig holds settings for the knowledge store.
type StoreConfig struct {
	// DataDir is the directory holding the SQLite database file.
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// Dimensions is the embedding vector width enforced on insert.
	Dimensions int `json:"dimensions" yaml:"dimensions"`

	// MaxResults is the default maximum number of search results (default 20).
	MaxResults int `json:"max_results" yaml:"max_results"`
}

// GeneratorConfig holds settings for daily bite generation.
type GeneratorConfig struct {
	// SequenceLength is the number of insight-backed cards per bite (default 6).
	SequenceLength int `json:"sequence_length" yaml:"sequence_length"`

	// CandidateLimit is how many insights retrieval over-fetches (default 10).
	CandidateLimit int `json:"candidate_limit" yaml:"candidate_limit"`

	// SeenWindowDays is how far back prior bites are scanned when excluding
	// already-shown insights (default 14).
	SeenWindowDays int `json:"seen_window_days" yaml:"seen_window_days"`

	// QuestionInterval inserts a question card after every n content cards
	// (default 3).
	QuestionInterval int `json:"question_interval" yaml:"question_interval"`
}

// ServerConfig holds settings for the HTTP serving surface.
type ServerConfig struct {
	// Addr is the listen address (default ":8080").
	Addr string `json:"addr" yaml:"addr"`
}

// PipelineConfig groups all stage configurations.
type PipelineConfig struct {
	Extraction ExtractionConfig `json:"extraction" yaml:"extraction"`
	Embedding  EmbeddingConfig  `json:"embedding" yaml:"embedding"`
	Store      StoreConfig      `json:"store" yaml:"store"`
	Generator  GeneratorConfig  `json:"generator" yaml:"generator"`
	Server     ServerConfig     `json:"server" yaml:"server"`
}
