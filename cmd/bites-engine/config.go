// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"github.com/spf13/viper"

	"github.com/strokecovery/bites-engine/internal/embed"
	"github.com/strokecovery/bites-engine/internal/extract"
	"github.com/strokecovery/bites-engine/internal/knowledge"
	"github.com/strokecovery/bites-engine/pkg/types"
)

func init() {
	viper.SetDefault("extraction.model", "claude-sonnet-4-5")
	viper.SetDefault("extraction.max_retries", 3)
	viper.SetDefault("extraction.min_section_chars", 100)
	viper.SetDefault("embedding.model", "text-embedding-3-small")
	viper.SetDefault("embedding.dimensions", 1536)
	viper.SetDefault("embedding.max_retries", 3)
	viper.SetDefault("store.data_dir", "data")
	viper.SetDefault("store.max_results", 20)
	viper.SetDefault("generator.sequence_length", 6)
	viper.SetDefault("generator.candidate_limit", 10)
	viper.SetDefault("generator.seen_window_days", 14)
	viper.SetDefault("generator.question_interval", 3)
	viper.SetDefault("server.addr", ":8080")
}

// pipelineConfig assembles the full stage configuration from config file,
// environment, and loaded secrets. The store's vector width always follows
// the embedding dimensions.
func pipelineConfig() types.PipelineConfig {
	dims := viper.GetInt("embedding.dimensions")

	return types.PipelineConfig{
		Extraction: types.ExtractionConfig{
			AIConfig: types.AIConfig{
				Model:      viper.GetString("extraction.model"),
				APIKey:     secretDefault("anthropic-api-key", viper.GetString("extraction.api_key")),
				MaxRetries: viper.GetInt("extraction.max_retries"),
			},
			MinSectionChars: viper.GetInt("extraction.min_section_chars"),
		},
		Embedding: types.EmbeddingConfig{
			Model:      viper.GetString("embedding.model"),
			APIKey:     secretDefault("openai-api-key", viper.GetString("embedding.api_key")),
			Dimensions: dims,
			MaxRetries: viper.GetInt("embedding.max_retries"),
		},
		Store: types.StoreConfig{
			DataDir:    viper.GetString("store.data_dir"),
			Dimensions: dims,
			MaxResults: viper.GetInt("store.max_results"),
		},
		Generator: types.GeneratorConfig{
			SequenceLength:   viper.GetInt("generator.sequence_length"),
			CandidateLimit:   viper.GetInt("generator.candidate_limit"),
			SeenWindowDays:   viper.GetInt("generator.seen_window_days"),
			QuestionInterval: viper.GetInt("generator.question_interval"),
		},
		Server: types.ServerConfig{
			Addr: viper.GetString("server.addr"),
		},
	}
}

// openStore opens the knowledge base described by cfg.
func openStore(cfg types.PipelineConfig) (*knowledge.Store, error) {
	return knowledge.NewStore(cfg.Store)
}

// claudeBackend builds the extraction backend, or nil when no API key is
// configured.
func claudeBackend(cfg types.PipelineConfig) extract.AIBackend {
	if cfg.Extraction.APIKey == "" {
		return nil
	}
	return &extract.ClaudeBackend{
		APIKey: cfg.Extraction.APIKey,
		Model:  cfg.Extraction.Model,
	}
}

// openAIBackend builds the embedding backend, or nil when no API key is
// configured.
func openAIBackend(cfg types.PipelineConfig) embed.Backend {
	if cfg.Embedding.APIKey == "" {
		return nil
	}
	return embed.NewOpenAIBackend(cfg.Embedding)
}
