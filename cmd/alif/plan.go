// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/alif/internal/planner"
)

var planCmd = &cobra.Command{
	Use:   "plan [prompt...]",
	Short: "Expand a question into one search query per tradition",
	Long: `Plan asks the query-expansion model for one search query and result
count per enabled category and prints the validated plan. Use --out to save
it as YAML and pass it to search --plan to skip planning on later runs.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPlan,
}

func init() {
	planCmd.Flags().String("out", "", "write the plan to this YAML file")
	planCmd.Flags().Bool("json", false, "output the plan as JSON")

	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	cats, err := categoryTable()
	if err != nil {
		return err
	}
	p, err := queryPlanner(ctx, cats)
	if err != nil {
		return err
	}

	plan, err := p.Plan(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}

	if out, _ := cmd.Flags().GetString("out"); out != "" {
		if err := planner.WritePlanFile(out, plan); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Plan written to %s\n", out)
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(plan)
	}
	planner.FormatPlan(plan, cats, os.Stdout)
	return nil
}
