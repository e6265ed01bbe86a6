package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"photo-library/internal/database"
	"photo-library/internal/logging"
	"photo-library/internal/startup"
)

// options are the persistent flags shared by every command.
type options struct {
	configPath string
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	o := &options{}

	root := &cobra.Command{
		Use:           "photo-library",
		Short:         "Self-hosted photo and video library",
		Long:          "Photo Library - indexes photo and video libraries into a browsable catalog",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&o.configPath, "config", "c", "", "config file path")

	root.AddCommand(
		newServeCommand(o),
		newScanCommand(o),
		newUserCommand(o),
		newShareCommand(o),
		newVersionCommand(),
	)
	return root
}

// Execute executes the root command.
func Execute() error {
	return NewRootCommand().ExecuteContext(context.Background())
}

// loadConfig reads the configuration and initializes logging without the
// startup banner the server prints.
func (o *options) loadConfig() (*startup.Config, error) {
	cfg, err := startup.ReadConfig(o.configPath)
	if err != nil {
		return nil, err
	}
	if err := logging.Initialize(cfg.Log); err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	return cfg, nil
}

// openCatalog loads the configuration and opens the catalog database.
func (o *options) openCatalog(ctx context.Context) (*startup.Config, *database.Database, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	db, err := database.New(ctx, cfg.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database %s: %w", cfg.Database.Path, err)
	}
	return cfg, db, nil
}

// lookupUser resolves a username or a numeric user id.
func lookupUser(ctx context.Context, db *database.Database, ref string) (*database.User, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return db.GetUser(ctx, id)
	}
	return db.GetUserByUsername(ctx, ref)
}

func closeCatalog(cmd *cobra.Command, db *database.Database) {
	if err := db.Close(); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: failed to close database: %v\n", err)
	}
}
