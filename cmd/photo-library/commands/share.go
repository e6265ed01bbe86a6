package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"photo-library/internal/database"
	"photo-library/internal/share"
)

func newShareCommand(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "share",
		Short: "Manage share tokens",
	}
	cmd.AddCommand(newShareCreateCommand(o))
	return cmd
}

type shareCreateFlags struct {
	user    string
	album   int64
	media   int64
	expire  time.Duration
	protect bool
}

func newShareCreateCommand(o *options) *cobra.Command {
	var f shareCreateFlags
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Share an album or a media file",
		Long: "Create prints a token that opens the album or media file without an\n" +
			"account. With --protect the token also requires a password.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShareCreate(cmd, o, f)
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&f.user, "user", "u", "", "username or id of the owner")
	flags.Int64Var(&f.album, "album", 0, "album to share")
	flags.Int64Var(&f.media, "media", 0, "media file to share")
	flags.DurationVar(&f.expire, "expire", 0, "lifetime of the token, e.g. 72h (default never expires)")
	flags.BoolVar(&f.protect, "protect", false, "prompt for a password")
	_ = cmd.MarkFlagRequired("user")
	cmd.MarkFlagsOneRequired("album", "media")
	cmd.MarkFlagsMutuallyExclusive("album", "media")
	return cmd
}

func runShareCreate(cmd *cobra.Command, o *options, f shareCreateFlags) error {
	if f.expire < 0 {
		return fmt.Errorf("--expire must not be negative")
	}

	var password string
	if f.protect {
		p, err := promptPassword(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		password = p
	}

	ctx := cmd.Context()
	_, db, err := o.openCatalog(ctx)
	if err != nil {
		return err
	}
	defer closeCatalog(cmd, db)

	user, err := lookupUser(ctx, db, f.user)
	if err != nil {
		return fmt.Errorf("user %s: %w", f.user, err)
	}

	var target database.ShareTarget
	if cmd.Flags().Changed("album") {
		target.AlbumID = &f.album
	} else {
		target.MediaID = &f.media
	}
	var expire *time.Time
	if f.expire > 0 {
		t := time.Now().Add(f.expire)
		expire = &t
	}

	token, err := share.NewService(db).Create(ctx, user.ID, target, expire, password)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Share token: %s\n", token.Value)
	if token.Expire != nil {
		fmt.Fprintf(out, "Expires:     %s\n", expire.UTC().Format(time.RFC3339))
	}
	if token.HasPassword() {
		fmt.Fprintln(out, "Protected:   yes")
	}
	return nil
}
