// Package compositor renders quote cards: it fits the background to the
// target size, grades and softens it, then draws the fitted text on top and
// encodes the result as JPEG.
package compositor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"

	"golang.org/x/image/draw"

	"github.com/ditto-display/ditto/internal/domain"
	"github.com/ditto-display/ditto/internal/layout"
	"github.com/ditto-display/ditto/internal/ports"
)

// Pipeline stages, reported in ImageProcessingError.
const (
	StageEnhance  = "enhance"
	StageBlur     = "blur"
	StageKuwahara = "kuwahara"
	StageOverlay  = "overlay"
	StageEncode   = "encode"
)

// Compositor implements ports.CardRenderer.
type Compositor struct {
	fonts    *layout.FontSet
	opts     Options
	fallback image.Image
	logger   *slog.Logger
}

// Config contains the dependencies of a Compositor.
type Config struct {
	Fonts   *layout.FontSet
	Options Options
	Logger  *slog.Logger
}

var _ ports.CardRenderer = (*Compositor)(nil)

// New builds a Compositor, loading the fallback background once.
func New(cfg Config) (*Compositor, error) {
	if cfg.Fonts == nil {
		cfg.Fonts = layout.DefaultFontSet()
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if _, err := cfg.Options.palette(); err != nil {
		return nil, err
	}

	fallback, err := LoadFallback(cfg.Options.FallbackImage)
	if err != nil {
		return nil, err
	}

	return &Compositor{
		fonts:    cfg.Fonts,
		opts:     cfg.Options,
		fallback: fallback,
		logger:   cfg.Logger,
	}, nil
}

// Options returns the layout the compositor renders with.
func (c *Compositor) Options() Options {
	return c.opts
}

// Render draws card at dims. A nil Background, or static backdrop mode,
// renders over the fallback image. Cancellation is checked between stages.
func (c *Compositor) Render(ctx context.Context, card ports.Card, dims domain.Dimensions) ([]byte, error) {
	if dims.Width <= 0 || dims.Height <= 0 {
		return nil, domain.NewValidationErrorWithValue("dimensions", "width and height must be positive", dims)
	}

	bg := card.Background
	if bg == nil || c.opts.StaticBackdrop {
		bg = c.fallback
	}

	fail := func(stage string, err error) ([]byte, error) {
		return nil, domain.NewImageProcessingError(card.QuoteID, stage, err)
	}

	canvas := Cover(bg, dims.Width, dims.Height)

	steps := []struct {
		stage string
		run   func()
	}{
		{StageEnhance, func() { Enhance(canvas, c.opts.Saturation, c.opts.Brightness, c.opts.Gamma) }},
		{StageBlur, func() { GaussianBlur(canvas, c.opts.BlurSize, c.opts.BlurSigma) }},
		{StageKuwahara, func() { Kuwahara(canvas, c.opts.KuwaharaRadius) }},
	}

	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return fail(s.stage, err)
		}

		s.run()
	}

	if err := ctx.Err(); err != nil {
		return fail(StageOverlay, err)
	}

	overlay, err := RenderOverlay(c.fonts, c.opts, card.Content, card.Title, card.Author, dims.Width, dims.Height)
	if err != nil {
		return fail(StageOverlay, err)
	}

	c.logger.DebugContext(ctx, "fitted card text",
		slog.String("quote_id", card.QuoteID),
		slog.Int("quote_size", overlay.Quote.Size),
		slog.Int("quote_lines", len(overlay.Quote.Lines())),
		slog.Int("truncations", overlay.Quote.Truncations),
		slog.Int("title_size", overlay.TitleSize),
		slog.Int("author_size", overlay.AuthorSize),
	)

	draw.Draw(canvas, canvas.Bounds(), overlay.Image, image.Point{}, draw.Over)

	if err := ctx.Err(); err != nil {
		return fail(StageEncode, err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: c.quality()}); err != nil {
		return fail(StageEncode, fmt.Errorf("jpeg: %w", err))
	}

	return buf.Bytes(), nil
}

func (c *Compositor) quality() int {
	if c.opts.JPEGQuality < 1 || c.opts.JPEGQuality > 100 {
		return jpeg.DefaultQuality
	}

	return c.opts.JPEGQuality
}
