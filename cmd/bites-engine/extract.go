// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/strokecovery/bites-engine/internal/extract"
	"github.com/strokecovery/bites-engine/internal/parse"
	"github.com/strokecovery/bites-engine/pkg/types"
)

var extractCmd = &cobra.Command{
	Use:   "extract [file]",
	Short: "Extract structured insights from a research document",
	Long: `Extract parses a paper and runs Claude-backed insight extraction over
each section, printing the resulting claims without touching the
knowledge base. Sections that yield no parseable response are reported
and skipped.

Requires the anthropic-api-key secret or extraction.api_key config.`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func runExtract(cmd *cobra.Command, args []string) error {
	cfg := pipelineConfig()
	if model, _ := cmd.Flags().GetString("model"); model != "" {
		cfg.Extraction.Model = model
	}

	backend := claudeBackend(cfg)
	if backend == nil {
		return fmt.Errorf("extraction requires an API key: add .secrets/anthropic-api-key or set extraction.api_key")
	}

	raw, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	_, sections, err := parse.Parse(raw, args[0])
	if err != nil {
		return err
	}

	var insights []types.Insight
	for _, sec := range sections {
		out, err := extract.ExtractSection(context.Background(), backend, sec, cfg.Extraction)
		if err != nil {
			if errors.Is(err, extract.ErrBadResponse) {
				fmt.Fprintf(os.Stderr, "skipping section %s: %v\n", sec.Name, err)
				continue
			}
			return err
		}
		insights = append(insights, out...)
	}

	output, _ := cmd.Flags().GetString("output")
	switch output {
	case "yaml", "":
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(insights)
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(insights)
	default:
		return fmt.Errorf("unsupported output %q: use yaml or json", output)
	}
}

func init() {
	extractCmd.Flags().String("model", "", "AI model identifier for extraction")
	extractCmd.Flags().String("output", "yaml", "output format: yaml or json")

	rootCmd.AddCommand(extractCmd)
}
