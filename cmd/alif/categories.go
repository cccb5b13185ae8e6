// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List the enabled tradition categories and their domain allow-lists",
	RunE: func(cmd *cobra.Command, args []string) error {
		cats, err := categoryTable()
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "%-14s  %-14s  %s\n", "Key", "Label", "Domains")
		fmt.Fprintln(os.Stdout, strings.Repeat("-", 100))
		for _, c := range cats.List() {
			domains := strings.Join(c.Domains, ", ")
			if domains == "" {
				domains = "(any)"
			}
			fmt.Fprintf(os.Stdout, "%-14s  %-14s  %s\n", c.Key, c.Label, domains)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(categoriesCmd)
}
