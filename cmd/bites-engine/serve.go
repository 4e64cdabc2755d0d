// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/strokecovery/bites-engine/internal/bites"
	"github.com/strokecovery/bites-engine/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve daily bites over HTTP",
	Long: `Serve runs the bite API: fetch or generate a patient's deck for the day
and record their answers. Generation degrades to recency ranking when no
openai-api-key secret is configured, and to a static deck when the
knowledge base is empty.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := pipelineConfig()
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Server.Addr = addr
	}

	log, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer log.Sync()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	svc := bites.NewService(store, openAIBackend(cfg), cfg.Generator, log)
	srv := server.New(store, svc, log, todayUTC)

	log.Info("listening", zap.String("addr", cfg.Server.Addr))
	return srv.Router().Run(cfg.Server.Addr)
}

// todayUTC is the serving date for "today's bite" requests.
func todayUTC() string {
	return time.Now().UTC().Format("2006-01-02")
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default from config)")

	rootCmd.AddCommand(serveCmd)
}
