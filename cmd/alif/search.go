// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pdiddy/alif/internal/history"
	"github.com/pdiddy/alif/internal/planner"
	"github.com/pdiddy/alif/internal/retrieve"
	"github.com/pdiddy/alif/internal/synth"
	"github.com/pdiddy/alif/pkg/types"
)

var searchCmd = &cobra.Command{
	Use:   "search [prompt...]",
	Short: "Run the full research pipeline for a question",
	Long: `Search plans one query per tradition, searches each tradition's
authoritative sources in small concurrent batches, scrapes every hit, and
prints the aggregated sources. Progress is streamed to stderr.

Use --plan to reuse a plan written by "alif plan --out", and --synthesize to
finish with a cited comparative answer.`,
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().String("plan", "", "read the plan from this YAML file instead of planning")
	searchCmd.Flags().Bool("synthesize", false, "synthesize a comparative answer from the sources")
	searchCmd.Flags().String("format", "table", "output format: table or json")
	searchCmd.Flags().Bool("quiet", false, "do not print progress")
	searchCmd.Flags().Duration("timeout", 0, "whole-run deadline (default 5m)")

	rootCmd.AddCommand(searchCmd)
}

// searchResult is the JSON output of a search.
type searchResult struct {
	RunID   string                `json:"runId"`
	Plan    types.Plan            `json:"plan"`
	Sources []types.ScrapedSource `json:"sources"`
	Answer  *types.Answer         `json:"answer,omitempty"`
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	format, _ := cmd.Flags().GetString("format")
	if format != "table" && format != "json" {
		return fmt.Errorf("unsupported format %q: use table or json", format)
	}
	if timeout, _ := cmd.Flags().GetDuration("timeout"); timeout > 0 {
		cfg.Retrieve.Timeout = timeout
	}
	doSynth, _ := cmd.Flags().GetBool("synthesize")
	quiet, _ := cmd.Flags().GetBool("quiet")

	cats, err := categoryTable()
	if err != nil {
		return err
	}
	plan, err := loadOrMakePlan(ctx, cmd, cats, strings.Join(args, " "))
	if err != nil {
		return err
	}

	// Build the synthesizer up front so a missing key fails before retrieval.
	var syn *synth.Service
	if doSynth {
		if syn, err = synthesizer(ctx, cats); err != nil {
			return err
		}
	}

	orch, err := orchestrator(cats)
	if err != nil {
		return err
	}
	run, err := orch.Start(plan)
	if err != nil {
		return err
	}

	hist := openHistory()
	if hist != nil {
		defer hist.Close()
	}
	rec := history.Run{ID: run.ID, Prompt: plan.Prompt, Started: time.Now(), Synthesized: doSynth}

	progressDone := make(chan struct{})
	events := run.Subscribe(ctx)
	go func() {
		defer close(progressDone)
		var w io.Writer = os.Stderr
		if quiet {
			w = io.Discard
		}
		retrieve.PrintProgress(events, w)
	}()

	var sources []types.ScrapedSource
	err = run.Execute(ctx, func(s []types.ScrapedSource) { sources = s })
	<-progressDone
	if err != nil {
		rec.Outcome, rec.Error = history.OutcomeCancelled, err.Error()
		recordRun(hist, rec, run, plan)
		return err
	}

	result := searchResult{RunID: run.ID, Plan: plan, Sources: sources}
	rec.Outcome = history.OutcomeCompleted
	if syn != nil {
		ans, err := syn.Synthesize(ctx, plan.Prompt, sources)
		if err != nil {
			rec.Outcome, rec.Error = history.OutcomeFailed, err.Error()
			recordRun(hist, rec, run, plan)
			return err
		}
		result.Answer = &ans
	}
	recordRun(hist, rec, run, plan)

	if format == "json" {
		if result.Sources == nil {
			result.Sources = []types.ScrapedSource{}
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	retrieve.FormatTable(sources, os.Stdout)
	if result.Answer != nil {
		fmt.Fprintln(os.Stdout)
		synth.FormatAnswer(*result.Answer, cats, os.Stdout)
	}
	return nil
}

func loadOrMakePlan(ctx context.Context, cmd *cobra.Command, cats types.Categories, prompt string) (types.Plan, error) {
	if path, _ := cmd.Flags().GetString("plan"); path != "" {
		plan, err := planner.ReadPlanFile(path, cats)
		if err != nil {
			return types.Plan{}, err
		}
		if prompt != "" {
			plan.Prompt = prompt
		}
		return plan, nil
	}
	if strings.TrimSpace(prompt) == "" {
		return types.Plan{}, fmt.Errorf("provide a question or --plan")
	}
	p, err := queryPlanner(ctx, cats)
	if err != nil {
		return types.Plan{}, err
	}
	return p.Plan(ctx, prompt)
}

func recordRun(hist *history.Store, rec history.Run, run *retrieve.Run, plan types.Plan) {
	if hist == nil {
		return
	}
	rec.Finished = time.Now()
	rec.Categories = history.Summarize(run.Snapshot(), plan)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := hist.Record(ctx, rec); err != nil {
		logger.Warn("recording run history failed", zap.Error(err))
	}
}
