// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/strokecovery/bites-engine/internal/knowledge"
	"github.com/strokecovery/bites-engine/pkg/types"
)

var searchCmd = &cobra.Command{
	Use:   "search [query...]",
	Short: "Search stored insights by similarity and filters",
	Long: `Search embeds the query text with the OpenAI API and returns the most
similar insights, optionally filtered by stroke type and recovery phase.
Untagged insights match every filter. Without a query the newest
filtered insights are returned unranked.`,
	RunE: runSearch,
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg := pipelineConfig()

	phase, _ := cmd.Flags().GetString("phase")
	if phase != "" && !types.ValidPhase(types.RecoveryPhase(phase)) {
		return fmt.Errorf("unknown phase %q: use acute, subacute, or chronic", phase)
	}
	strokeTypes, _ := cmd.Flags().GetStringSlice("stroke-type")
	limit, _ := cmd.Flags().GetInt("limit")

	var query []float32
	if text := strings.Join(args, " "); text != "" {
		embedder := openAIBackend(cfg)
		if embedder == nil {
			return fmt.Errorf("text search requires an API key: add .secrets/openai-api-key or set embedding.api_key")
		}
		vecs, err := embedder.Embed(context.Background(), []string{text})
		if err != nil {
			return fmt.Errorf("embedding query: %w", err)
		}
		query = vecs[0]
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	results, err := store.SearchInsights(context.Background(), query, limit, knowledge.Filters{
		StrokeTypes:   strokeTypes,
		RecoveryPhase: types.RecoveryPhase(phase),
	})
	if err != nil {
		return err
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	return formatSearchOutput(results, jsonOutput)
}

func formatSearchOutput(results []knowledge.ScoredInsight, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-4s  %-6s  %-8s  %-60s  %s\n",
		"Rank", "Score", "Phase", "Claim", "Intervention")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 100))

	for i, r := range results {
		claim := r.Claim
		if len(claim) > 60 {
			claim = claim[:57] + "..."
		}
		intervention := r.Intervention
		if len(intervention) > 20 {
			intervention = intervention[:17] + "..."
		}
		fmt.Fprintf(os.Stdout, "%-4d  %-6.3f  %-8s  %-60s  %s\n",
			i+1, r.Score, r.RecoveryPhase, claim, intervention)
	}

	fmt.Fprintf(os.Stdout, "\n%d results\n", len(results))
	return nil
}

func init() {
	searchCmd.Flags().StringSlice("stroke-type", nil, "filter by stroke type: ischemic, hemorrhagic, tbi")
	searchCmd.Flags().String("phase", "", "filter by recovery phase: acute, subacute, chronic")
	searchCmd.Flags().Int("limit", 0, "maximum results (default from config)")
	searchCmd.Flags().Bool("json", false, "output results as JSON")

	rootCmd.AddCommand(searchCmd)
}
