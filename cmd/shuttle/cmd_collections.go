package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/user/shuttle/pkg/client"
)

var collectionsCmd = &cobra.Command{
	Use:   "collections",
	Short: "Manage collections",
}

var collectionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List collections with their member counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()
		cols, err := newClient().ListCollections(ctx)
		if err != nil {
			return err
		}
		return printResult(cols, func() {
			for _, c := range cols {
				fmt.Printf("%s  %-30s %d\n", c.ID, c.Name, c.Total)
			}
		})
	},
}

var collectionsCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create an empty collection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()
		col, err := newClient().CreateCollection(ctx, args[0])
		if err != nil {
			return err
		}
		return printResult(col, func() { fmt.Println(col.ID) })
	},
}

var collectionsGetCmd = &cobra.Command{
	Use:   "get <collection-id>",
	Short: "Show a collection and a page of its members",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()
		col, err := newClient().GetCollection(ctx, args[0], viper.GetInt("offset"), viper.GetInt("limit"))
		if err != nil {
			return err
		}
		return printResult(col, func() {
			fmt.Printf("%s  %s  total=%d\n", col.ID, col.Name, col.Total)
			for _, id := range col.CompanyIDs {
				fmt.Println(id)
			}
		})
	},
}

var collectionsDeleteCmd = &cobra.Command{
	Use:   "delete <collection-id>",
	Short: "Delete a collection and its members",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()
		if err := newClient().DeleteCollection(ctx, args[0]); err != nil {
			return err
		}
		return printResult(map[string]string{"deleted": args[0]}, func() {
			fmt.Printf("deleted %s\n", args[0])
		})
	},
}

var collectionsAddCmd = &cobra.Command{
	Use:   "add <collection-id> <company-ids...>",
	Short: "Add a small set of companies directly",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args[1:])
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()
		added, err := newClient().AddCompanies(ctx, args[0], ids)
		if err != nil {
			return err
		}
		return printResult(map[string]int{"added": added}, func() {
			fmt.Printf("added %d of %d\n", added, len(ids))
		})
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove <collection-id> [company-ids...]",
	Short: "Remove companies from a collection",
	Long:  "With ids only those are removed. With --all every member is removed except --exclude ids.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args[1:])
		if err != nil {
			return err
		}
		exclude, err := parseIDs(viper.GetStringSlice("exclude"))
		if err != nil {
			return err
		}
		mode := client.ModeSelected
		if viper.GetBool("all") {
			mode = client.ModeAll
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()
		deleted, err := newClient().RemoveCompanies(ctx, args[0], mode, ids, exclude)
		if err != nil {
			return err
		}
		return printResult(map[string]int{"deleted": deleted}, func() {
			fmt.Printf("removed %d\n", deleted)
		})
	},
}

func init() {
	collectionsGetCmd.Flags().Int("offset", 0, "Members to skip")
	collectionsGetCmd.Flags().Int("limit", 100, "Members to show")
	removeCmd.Flags().Bool("all", false, "Remove every member")
	removeCmd.Flags().StringSlice("exclude", nil, "Ids kept when --all is set")

	addClientFlags(collectionsListCmd, collectionsCreateCmd, collectionsGetCmd, collectionsDeleteCmd, collectionsAddCmd, removeCmd)
	collectionsCmd.AddCommand(collectionsListCmd, collectionsCreateCmd, collectionsGetCmd, collectionsDeleteCmd, collectionsAddCmd)
	rootCmd.AddCommand(collectionsCmd, removeCmd)
}
