package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var errCatalogDisabled = errors.New("notion catalog is disabled; set notion.enabled")

func newSyncCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Sync the catalog from Notion once and exit",
		Long: `Fetch every active item from the configured Notion database and
replace the local catalog with it. Newly added quotes are appended to every
client's deck. A failed fetch leaves the catalog untouched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSync(cmd.Context(), root, cmd.OutOrStdout())
		},
	}
}

func runSync(ctx context.Context, root *rootOptions, out io.Writer) error {
	cfg, logger, err := root.load()
	if err != nil {
		return err
	}

	a, err := newApplication(ctx, cfg, logger, prometheus.NewRegistry())
	if err != nil {
		return err
	}
	defer a.Close()

	if a.sync == nil {
		return errCatalogDisabled
	}

	if cfg.Sync.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Sync.Timeout)
		defer cancel()
	}

	result, err := a.sync.Run(ctx)
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")

	return enc.Encode(result)
}
