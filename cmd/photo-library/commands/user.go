package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newUserCommand(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users and their root paths",
	}
	cmd.AddCommand(newUserAddCommand(o), newUserAddRootCommand(o))
	return cmd
}

func newUserAddCommand(o *options) *cobra.Command {
	var admin bool
	cmd := &cobra.Command{
		Use:   "add <username>",
		Short: "Create a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, db, err := o.openCatalog(ctx)
			if err != nil {
				return err
			}
			defer closeCatalog(cmd, db)

			user, err := db.CreateUser(ctx, args[0], admin)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created user %s (id %d)\n", user.Username, user.ID)
			return nil
		},
	}
	cmd.Flags().BoolVar(&admin, "admin", false, "grant administrator rights")
	return cmd
}

func newUserAddRootCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "add-root <user> <directory>",
		Short: "Register a directory as a root path of a user",
		Long: "The directory becomes the root album of the user. It must exist and\n" +
			"must not overlap another root path of the same user.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, db, err := o.openCatalog(ctx)
			if err != nil {
				return err
			}
			defer closeCatalog(cmd, db)

			user, err := lookupUser(ctx, db, args[0])
			if err != nil {
				return fmt.Errorf("user %s: %w", args[0], err)
			}
			root, album, err := db.AddRootPath(ctx, user.ID, args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added root path %s for %s (album %d)\n", root.Path, user.Username, album.ID)
			return nil
		},
	}
}
