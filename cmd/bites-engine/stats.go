// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show knowledge base row counts",
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	store, err := openStore(pipelineConfig())
	if err != nil {
		return err
	}
	defer store.Close()

	stats, err := store.Stats(context.Background())
	if err != nil {
		return err
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	fmt.Printf("Papers:    %d\n", stats.Papers)
	fmt.Printf("Sections:  %d\n", stats.Sections)
	fmt.Printf("Insights:  %d (%d embedded)\n", stats.Insights, stats.Embedded)
	fmt.Printf("Bites:     %d\n", stats.Bites)
	fmt.Printf("Answers:   %d\n", stats.Answers)
	return nil
}

func init() {
	statsCmd.Flags().Bool("json", false, "output counts as JSON")

	rootCmd.AddCommand(statsCmd)
}
