// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/strokecovery/bites-engine/internal/parse"
	"github.com/strokecovery/bites-engine/pkg/types"
)

var parseCmd = &cobra.Command{
	Use:   "parse [file]",
	Short: "Parse a research document into metadata and sections",
	Long: `Parse reads a plain-text or markdown research paper, detects title,
authors, year, and study type, and splits the body into named sections.
Nothing is written to the knowledge base; use ingest for that.`,
	Args: cobra.ExactArgs(1),
	RunE: runParse,
}

func runParse(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	paper, sections, err := parse.Parse(raw, args[0])
	if err != nil {
		return err
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Paper    *types.Paper    `json:"paper"`
			Sections []types.Section `json:"sections"`
		}{paper, sections})
	}

	fmt.Printf("Title:       %s\n", paper.Title)
	fmt.Printf("Authors:     %s\n", strings.Join(paper.Authors, "; "))
	if paper.Year > 0 {
		fmt.Printf("Year:        %d\n", paper.Year)
	}
	if paper.StudyType != "" {
		fmt.Printf("Study type:  %s\n", paper.StudyType)
	}
	fmt.Printf("Fingerprint: %s\n", paper.Fingerprint)

	fmt.Printf("\n%-20s  %s\n", "Section", "Chars")
	fmt.Println(strings.Repeat("-", 30))
	for _, sec := range sections {
		fmt.Printf("%-20s  %d\n", sec.Name, len(sec.RawText))
	}
	return nil
}

func init() {
	parseCmd.Flags().Bool("json", false, "output parsed paper and sections as JSON")

	rootCmd.AddCommand(parseCmd)
}
