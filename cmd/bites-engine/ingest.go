// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/strokecovery/bites-engine/internal/pipeline"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [path]",
	Short: "Ingest a document or directory into the knowledge base",
	Long: `Ingest parses documents, extracts insights with the Claude API, embeds
them with the OpenAI API, and stores everything in the knowledge base.
A directory is processed concurrently; documents already in the base
(matched by content fingerprint) are skipped.

Without an openai-api-key secret, insights are stored unembedded and
can be embedded later with backfill.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg := pipelineConfig()
	if dataDir, _ := cmd.Flags().GetString("data-dir"); dataDir != "" {
		cfg.Store.DataDir = dataDir
	}

	ai := claudeBackend(cfg)
	if ai == nil {
		return fmt.Errorf("ingestion requires an API key: add .secrets/anthropic-api-key or set extraction.api_key")
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	p := pipeline.New(store, ai, openAIBackend(cfg), cfg)

	info, err := os.Stat(args[0])
	if err != nil {
		return err
	}

	var summary pipeline.Summary
	if info.IsDir() {
		workers, _ := cmd.Flags().GetInt("workers")
		summary, err = p.IngestDir(context.Background(), args[0], workers, os.Stdout)
	} else {
		summary, err = p.IngestFile(context.Background(), args[0], os.Stdout)
	}
	if err != nil {
		return err
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d document(s) failed ingestion", summary.Failed)
	}
	return nil
}

func init() {
	ingestCmd.Flags().Int("workers", 4, "concurrent documents when ingesting a directory")
	ingestCmd.Flags().String("data-dir", "", "knowledge base directory (default from config)")

	rootCmd.AddCommand(ingestCmd)
}
