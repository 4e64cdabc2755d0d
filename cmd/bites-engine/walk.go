// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/strokecovery/bites-engine/internal/bites"
	"github.com/strokecovery/bites-engine/internal/tui"
	"github.com/strokecovery/bites-engine/pkg/types"
)

var walkCmd = &cobra.Command{
	Use:   "walk",
	Short: "Walk through today's bite in the terminal",
	Long: `Walk fetches (or generates) today's bite for a patient and plays it as
an interactive card deck. Arrow keys move between cards, a/b answer
questions, and answers are saved on exit.`,
	RunE: runWalk,
}

func runWalk(cmd *cobra.Command, args []string) error {
	cfg := pipelineConfig()

	patient, _ := cmd.Flags().GetString("patient")
	strokeType, _ := cmd.Flags().GetString("stroke-type")
	days, _ := cmd.Flags().GetInt("days")

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	svc := bites.NewService(store, openAIBackend(cfg), cfg.Generator, zap.NewNop())

	profile := types.PatientProfile{
		PatientID:       patient,
		StrokeType:      strokeType,
		DaysSinceStroke: days,
	}

	m := tui.NewModel(svc, tui.StoreFlusher{Store: store}, profile)
	_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

func init() {
	walkCmd.Flags().String("patient", "", "patient identifier (required)")
	walkCmd.Flags().String("stroke-type", "", "patient stroke type: ischemic, hemorrhagic, tbi")
	walkCmd.Flags().Int("days", 0, "days since the stroke event")
	walkCmd.MarkFlagRequired("patient")

	rootCmd.AddCommand(walkCmd)
}
