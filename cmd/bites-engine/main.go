// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the bites-engine CLI.
//
// bites-engine ingests stroke research papers, extracts and embeds
// rehabilitation insights into a SQLite knowledge base, and generates
// daily card decks ("bites") for recovering patients. Each pipeline
// stage is a subcommand; serve exposes the deck API over HTTP and
// walk traverses a deck in the terminal.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/strokecovery/bites-engine/internal/secrets"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds API keys loaded from .secrets/ at startup.
var loadedSecrets map[string]string

// secretDefault returns the secret value for key if it exists, or fallback otherwise.
func secretDefault(key, fallback string) string {
	if fallback != "" {
		return fallback
	}
	if v, ok := loadedSecrets[key]; ok {
		return v
	}
	return ""
}

// rootCmd is the base command for the bites-engine CLI.
var rootCmd = &cobra.Command{
	Use:   "bites-engine",
	Short: "Research-backed daily recovery cards for stroke patients",
	Long: `bites-engine turns stroke rehabilitation research into daily card decks.
The pipeline parses papers, extracts structured claims with the Claude API,
embeds them with the OpenAI API, and stores everything in a local SQLite
knowledge base.

Each stage is a subcommand: parse, extract, ingest, backfill, and search
operate on the knowledge base; serve exposes bites over HTTP and walk
plays a bite in the terminal.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := secrets.Load(".secrets/")
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", keys)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./bites-engine.yaml or ~/.config/bites-engine/config.yaml)")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("bites-engine")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "bites-engine"))
		}
	}

	viper.SetEnvPrefix("BITES_ENGINE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
