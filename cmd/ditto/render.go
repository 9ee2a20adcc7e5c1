package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/ditto-display/ditto/internal/app"
	"github.com/ditto-display/ditto/internal/domain"
)

// renderOptions holds flags for the render command.
type renderOptions struct {
	*rootOptions

	Client    string
	Direction string
	Width     int
	Height    int
	Out       string
}

func newRenderCommand(root *rootOptions) *cobra.Command {
	opts := &renderOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a client's next card to a file",
		Long: `Move a client through its deck and write the resulting card as a
JPEG, exactly as the HTTP endpoints would serve it. Unknown clients are
registered on first use.

Example:
  ditto render --client kitchen --direction next --out card.jpg
  ditto render --client hall --direction random --width 1200 --height 825 --out hall.jpg`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRender(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.Client, "client", "cli", "client name")
	cmd.Flags().StringVar(&opts.Direction, "direction", domain.DirectionForward.String(), "current, next, previous or random")
	cmd.Flags().IntVar(&opts.Width, "width", 0, "card width; 0 uses the client's default")
	cmd.Flags().IntVar(&opts.Height, "height", 0, "card height; 0 uses the client's default")
	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "output file (required)")
	_ = cmd.MarkFlagRequired("out")

	return cmd
}

func runRender(ctx context.Context, opts *renderOptions, out io.Writer) (err error) {
	dir, err := domain.ParseDirection(opts.Direction)
	if err != nil {
		return err
	}

	cfg, logger, err := opts.load()
	if err != nil {
		return err
	}

	a, err := newApplication(ctx, cfg, logger, prometheus.NewRegistry())
	if err != nil {
		return err
	}

	defer func() {
		err = errors.Join(err, a.Close())
	}()

	card, err := a.quotes.Serve(ctx, app.ImageRequest{
		Client:    opts.Client,
		Direction: dir,
		Width:     opts.Width,
		Height:    opts.Height,
		Method:    "CLI",
		Path:      "render",
	})
	if err != nil {
		return err
	}

	if err := os.WriteFile(opts.Out, card.Image, 0o644); err != nil { //nolint:gosec // output image is meant to be readable
		return fmt.Errorf("writing card: %w", err)
	}

	_, err = fmt.Fprintf(out, "wrote %s (%dx%d, %s) to %s\n",
		card.Quote.ID, card.Dims.Width, card.Dims.Height, card.Outcome, opts.Out)

	return err
}
