// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package planner

import (
	"fmt"
	"io"
	"os"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/alif/pkg/types"
)

// WritePlanFile marshals plan to a YAML file at path.
func WritePlanFile(path string, plan types.Plan) error {
	data, err := yaml.Marshal(plan)
	if err != nil {
		return fmt.Errorf("marshaling plan: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadPlanFile loads a plan written by WritePlanFile and validates it against
// cats. Categories in the file but not in cats are dropped, and Order is
// reset to the table order.
func ReadPlanFile(path string, cats types.Categories) (types.Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.Plan{}, fmt.Errorf("reading plan file: %w", err)
	}

	var plan types.Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return types.Plan{}, fmt.Errorf("parsing plan file %s: %w", path, err)
	}
	if err := Validate(plan, cats); err != nil {
		return types.Plan{}, fmt.Errorf("plan file %s: %w", path, err)
	}

	queries := make(map[string]types.PlannedQuery, cats.Len())
	for _, key := range cats.Keys() {
		queries[key] = plan.Queries[key]
	}
	plan.Queries = queries
	plan.Order = cats.Keys()
	return plan, nil
}

// FormatPlan writes plan as an aligned table.
func FormatPlan(plan types.Plan, cats types.Categories, w io.Writer) {
	fmt.Fprintf(w, "Prompt: %s\n\n", plan.Prompt)
	fmt.Fprintf(w, "%-14s  %-3s  %s\n", "Category", "N", "Query")
	for _, key := range plan.Order {
		q := plan.Queries[key]
		label := key
		if c, ok := cats.Get(key); ok {
			label = c.Label
		}
		fmt.Fprintf(w, "%-14s  %-3d  %s\n", label, q.NumResults, q.Query)
	}
}
