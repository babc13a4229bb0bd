package main

import (
	"fmt"
	"sort"

	"cottbot/internal/config"
	"cottbot/internal/models"
	"cottbot/internal/pricing"
	"cottbot/internal/usage"

	"github.com/spf13/cobra"
)

// usageCmd prints aggregated token and cost statistics.
var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show aggregated token usage and estimated cost",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		tracker, err := usage.NewTracker(cfg.Bot.DataDir)
		if err != nil {
			return err
		}
		stats := tracker.Stats()

		fmt.Printf("Total: %d tokens (%d prompt, %d completion), %s\n",
			stats.Total.Total, stats.Total.Prompt, stats.Total.Completion,
			pricing.Format(stats.Total.Cost))

		if len(stats.ByModel) > 0 {
			fmt.Println("\nBy model:")
			for _, id := range sortedKeys(stats.ByModel) {
				tc := stats.ByModel[id]
				fmt.Printf("  %-28s %10d tokens  %s\n", models.DisplayName(id), tc.Total, pricing.Format(tc.Cost))
			}
		}
		if len(stats.ByUser) > 0 {
			fmt.Println("\nBy user:")
			for _, id := range sortedKeys(stats.ByUser) {
				tc := stats.ByUser[id]
				fmt.Printf("  %-28s %10d tokens  %s\n", id, tc.Total, pricing.Format(tc.Cost))
			}
		}
		return nil
	},
}

func sortedKeys(m map[string]usage.TokenCounts) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
