// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var mirrorsCmd = &cobra.Command{
	Use:   "mirrors",
	Short: "List the fallback search mirrors in preference order",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := mirrorRegistry()
		if err != nil {
			return err
		}
		for i, u := range reg.URLs() {
			fmt.Fprintf(os.Stdout, "%3d  %s\n", i+1, u)
		}
		fmt.Fprintf(os.Stdout, "\n%d mirrors\n", reg.Len())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mirrorsCmd)
}
