package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ditto-display/ditto/internal/platform/config"
	"github.com/ditto-display/ditto/internal/platform/logging"
)

// rootOptions holds the flags shared by every subcommand.
type rootOptions struct {
	Profile   string
	ConfigDir string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "ditto",
		Short: "Quote cards for e-ink displays",
		Long: `ditto serves quote cards rendered over background images to
e-ink picture frames. Each frame walks its own shuffled deck of the
catalog, which is synced from a Notion database.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Profile, "profile", config.Profile(),
		"config profile, loaded from {config-dir}/{profile}.yaml")
	cmd.PersistentFlags().StringVar(&opts.ConfigDir, "config-dir", config.DefaultConfigDir,
		"directory holding base.yaml and the profile files")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newSyncCommand(opts))
	cmd.AddCommand(newRenderCommand(opts))
	cmd.AddCommand(newVersionCommand())

	return cmd
}

// load reads and validates the configuration and installs the logger.
func (o *rootOptions) load() (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadDir(o.ConfigDir, o.Profile)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := logging.New(&logging.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Service: cfg.App.Name,
		Version: cfg.App.Version,
		File: logging.FileConfig{
			Enabled:    cfg.Log.File.Enabled,
			Path:       cfg.Log.File.Path,
			MaxSizeMB:  cfg.Log.File.MaxSizeMB,
			MaxBackups: cfg.Log.File.MaxBackups,
			MaxAgeDays: cfg.Log.File.MaxAgeDays,
			Compress:   cfg.Log.File.Compress,
		},
	})
	logging.SetDefault(logger)

	return cfg, logger, nil
}
