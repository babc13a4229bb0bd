package main

import (
	"fmt"

	"cottbot/internal/config"
	"cottbot/internal/store"

	"github.com/spf13/cobra"
)

var (
	banReason string
	banBy     string
)

// banCmd manages the ban registry.
var banCmd = &cobra.Command{
	Use:   "ban",
	Short: "Manage the ban registry",
}

var banAddCmd = &cobra.Command{
	Use:   "add [user-id]",
	Short: "Ban a user from the gateway",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(db *store.Store) error {
			if err := requireAdmin(db, banBy); err != nil {
				return err
			}
			by := banBy
			if by == "" {
				by = "cli"
			}
			if err := db.Ban(args[0], by, banReason); err != nil {
				return err
			}
			fmt.Printf("Banned %s\n", args[0])
			return nil
		})
	},
}

var banRemoveCmd = &cobra.Command{
	Use:   "remove [user-id]",
	Short: "Lift a user's ban",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(db *store.Store) error {
			if err := requireAdmin(db, banBy); err != nil {
				return err
			}
			removed, err := db.Unban(args[0])
			if err != nil {
				return err
			}
			if !removed {
				fmt.Printf("%s was not banned\n", args[0])
				return nil
			}
			fmt.Printf("Unbanned %s\n", args[0])
			return nil
		})
	},
}

var banListCmd = &cobra.Command{
	Use:   "list",
	Short: "List banned users",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(db *store.Store) error {
			bans, err := db.Bans()
			if err != nil {
				return err
			}
			if len(bans) == 0 {
				fmt.Println("No banned users")
				return nil
			}
			for _, b := range bans {
				reason := b.Reason
				if reason == "" {
					reason = "(no reason)"
				}
				fmt.Printf("%s  banned by %s at %s: %s\n", b.UserID, b.BannedBy, b.BannedAt.Format("2006-01-02 15:04"), reason)
			}
			return nil
		})
	},
}

var banApproveCmd = &cobra.Command{
	Use:   "approve [user-id]",
	Short: "Approve a user as a ban administrator",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(db *store.Store) error {
			if err := db.AddAdmin(args[0]); err != nil {
				return err
			}
			fmt.Printf("Approved %s as admin\n", args[0])
			return nil
		})
	},
}

// requireAdmin checks the actor against the admin registry. An empty actor
// means local operator access; no check applies.
func requireAdmin(db *store.Store, actor string) error {
	if actor == "" {
		return nil
	}
	isAdmin, err := db.IsAdmin(actor)
	if err != nil {
		return err
	}
	if !isAdmin {
		return fmt.Errorf("%s is not an approved admin", actor)
	}
	return nil
}

func init() {
	banAddCmd.Flags().StringVar(&banReason, "reason", "", "Reason recorded with the ban")
	banCmd.PersistentFlags().StringVar(&banBy, "by", "", "Acting admin identity (checked against the admin registry)")
	banCmd.AddCommand(banAddCmd)
	banCmd.AddCommand(banRemoveCmd)
	banCmd.AddCommand(banListCmd)
	banCmd.AddCommand(banApproveCmd)
}

func withStore(fn func(*store.Store) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db)
}
