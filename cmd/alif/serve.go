// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pdiddy/alif/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the research pipeline over HTTP",
	Long: `Serve exposes the pipeline as a JSON API. POST /api/research streams
plan, progress, sources, and answer events over server-sent events; closing
the connection cancels the run. Planning and synthesis are disabled when no
model API key is configured.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default :8080)")
	viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if verbose, _ := cmd.Flags().GetBool("verbose"); !verbose {
		logLevel.SetLevel(zap.InfoLevel)
	}
	ctx, cancel := signalContext()
	defer cancel()

	cats, err := categoryTable()
	if err != nil {
		return err
	}
	reg, err := mirrorRegistry()
	if err != nil {
		return err
	}
	orch, err := orchestrator(cats)
	if err != nil {
		return err
	}

	srv := &server.Server{
		Categories: cats,
		Mirrors:    reg,
		Retriever:  orch,
		Scraper:    extractor(),
		Logger:     logger,
	}
	if p, err := queryPlanner(ctx, cats); err == nil {
		srv.Planner = p
	} else {
		logger.Warn("planning disabled", zap.Error(err))
	}
	if s, err := synthesizer(ctx, cats); err == nil {
		srv.Synthesizer = s
	} else {
		logger.Warn("synthesis disabled", zap.Error(err))
	}
	if hist := openHistory(); hist != nil {
		defer hist.Close()
		srv.History = hist
	}

	return srv.ListenAndServe(ctx, cfg.Server.Addr)
}
