package commands

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"photo-library/internal/faces"
	"photo-library/internal/filesystem"
	"photo-library/internal/media"
	"photo-library/internal/metadata"
	"photo-library/internal/scanner"
	"photo-library/internal/storage"
	"photo-library/internal/transcoder"
)

func newScanCommand(o *options) *cobra.Command {
	var (
		userRef    string
		regenerate bool
	)
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan the root paths of one user and exit",
		Long: "Scan walks the root paths of a user, indexes new and changed files and\n" +
			"tombstones records whose file is gone. Interrupting a scan keeps every record.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runScan(ctx, cmd, o, userRef, regenerate)
		},
	}
	cmd.Flags().StringVarP(&userRef, "user", "u", "", "username or id of the user to scan")
	cmd.Flags().BoolVar(&regenerate, "regenerate", false, "reprocess unchanged files too")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func runScan(ctx context.Context, cmd *cobra.Command, o *options, userRef string, regenerate bool) error {
	cfg, db, err := o.openCatalog(ctx)
	if err != nil {
		return err
	}
	defer closeCatalog(cmd, db)

	user, err := lookupUser(ctx, db, userRef)
	if err != nil {
		return fmt.Errorf("user %s: %w", userRef, err)
	}

	store, err := storage.New(ctx, cfg.Storage, cfg.ThumbnailDir)
	if err != nil {
		return fmt.Errorf("failed to initialize asset storage: %w", err)
	}
	trans := transcoder.New(cfg.TranscodeDir, cfg.Transcoding.Enabled)
	defer trans.Cleanup()

	info, err := db.SiteInfo(ctx, cfg.SiteDefaults())
	if err != nil {
		return err
	}
	method := func() string { return info.ThumbnailMethod }

	sc := scanner.New(scanner.Config{
		DB:          db,
		Extractor:   metadata.NewExtractor(trans),
		Thumbnails:  media.NewGenerator(store, trans, method, false),
		Faces:       faces.NewService(db, cfg.Faces.MaxDistance),
		Retry:       filesystem.DefaultRetryConfig(),
		ContentHash: cfg.Scanner.ContentHash,
	})

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Scanning library of %s\n", user.Username)
	res, err := sc.Run(ctx, scanner.Job{
		UserID:     user.ID,
		Regenerate: regenerate,
		Progress: func(p scanner.Progress) {
			fmt.Fprintf(out, "  %3.0f%%  %d/%d files\n", p.Fraction*100, p.Processed, p.Total)
		},
	})
	if res != nil {
		fmt.Fprintf(out, "Scan finished: %s\n", res.Summary())
		for _, w := range res.Warnings {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %s\n", w)
		}
	}
	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(out, "Scan interrupted, no records were removed")
		return nil
	}
	return err
}
