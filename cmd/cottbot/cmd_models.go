package main

import (
	"fmt"

	"cottbot/internal/models"

	"github.com/spf13/cobra"
)

// modelsCmd prints the selectable model catalog.
var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the selectable completion models",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, m := range models.Available {
			marker := " "
			if m.ID == models.DefaultModel {
				marker = "*"
			}
			vision := ""
			if m.SupportsVision {
				vision = " (vision)"
			}
			fmt.Printf("%s %-28s %s [%s]%s\n", marker, m.ID, m.Name, m.Provider, vision)
		}
		fmt.Println("\n* default model")
		return nil
	},
}
