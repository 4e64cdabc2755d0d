// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/strokecovery/bites-engine/internal/pipeline"
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Embed insights that were stored without a vector",
	Long: `Backfill finds insights whose embedding is missing (for example after
ingesting without an OpenAI key or after an embedding outage), embeds
them, and writes the vectors back to the knowledge base.`,
	RunE: runBackfill,
}

func runBackfill(cmd *cobra.Command, args []string) error {
	cfg := pipelineConfig()

	embedder := openAIBackend(cfg)
	if embedder == nil {
		return fmt.Errorf("backfill requires an API key: add .secrets/openai-api-key or set embedding.api_key")
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	p := pipeline.New(store, nil, embedder, cfg)

	limit, _ := cmd.Flags().GetInt("limit")
	summary, err := p.Backfill(context.Background(), limit, os.Stdout)
	if err != nil {
		return err
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d insight(s) failed embedding", summary.Failed)
	}
	return nil
}

func init() {
	backfillCmd.Flags().Int("limit", 100, "maximum insights to embed in one run")

	rootCmd.AddCommand(backfillCmd)
}
