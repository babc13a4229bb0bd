package main

import (
	"fmt"
	"strings"

	"cottbot/internal/models"
	"cottbot/internal/prompt"
	"cottbot/internal/store"

	"github.com/spf13/cobra"
)

var prefsUserID string

// prefsCmd manages per-user model and prompt preferences.
var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "Manage per-user preferences",
}

var prefsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show a user's stored preferences",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(db *store.Store) error {
			prefs, err := db.Preferences(prefsUserID)
			if err != nil {
				return err
			}
			fmt.Printf("User:   %s\n", prefs.UserID)
			fmt.Printf("Model:  %s (%s)\n", models.DisplayName(prefs.Model), prefs.Model)
			fmt.Printf("Prompt: %s\n", prompt.DisplayName(prefs.PromptVariant))
			return nil
		})
	},
}

var prefsSetModelCmd = &cobra.Command{
	Use:   "set-model [model-id]",
	Short: "Set a user's completion model",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := models.Normalize(args[0])
		if _, ok := models.ByID(id); !ok {
			ids := make([]string, 0, len(models.Available))
			for _, m := range models.Available {
				ids = append(ids, m.ID)
			}
			return fmt.Errorf("unknown model %q (available: %s)", args[0], strings.Join(ids, ", "))
		}
		return withStore(func(db *store.Store) error {
			if err := db.SetModel(prefsUserID, id); err != nil {
				return err
			}
			fmt.Printf("Model for %s set to %s\n", prefsUserID, models.DisplayName(id))
			return nil
		})
	},
}

var prefsSetPromptCmd = &cobra.Command{
	Use:   "set-prompt [variant]",
	Short: "Set a user's prompt variant",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		variant := args[0]
		if !prompt.Known(variant) {
			ids := make([]string, 0, len(prompt.Variants))
			for _, v := range prompt.Variants {
				ids = append(ids, v.ID)
			}
			return fmt.Errorf("unknown prompt variant %q (available: %s)", variant, strings.Join(ids, ", "))
		}
		return withStore(func(db *store.Store) error {
			if err := db.SetPromptVariant(prefsUserID, variant); err != nil {
				return err
			}
			fmt.Printf("Prompt for %s set to %s\n", prefsUserID, prompt.DisplayName(variant))
			return nil
		})
	},
}

func init() {
	prefsCmd.PersistentFlags().StringVar(&prefsUserID, "user", "cli", "User identity")
	prefsCmd.AddCommand(prefsShowCmd)
	prefsCmd.AddCommand(prefsSetModelCmd)
	prefsCmd.AddCommand(prefsSetPromptCmd)
}
