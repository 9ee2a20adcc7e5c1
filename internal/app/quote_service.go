// Package app contains application services that orchestrate use cases.
package app

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/ditto-display/ditto/internal/compositor"
	"github.com/ditto-display/ditto/internal/domain"
	"github.com/ditto-display/ditto/internal/platform/telemetry"
	"github.com/ditto-display/ditto/internal/ports"
)

// MaxDimension bounds requested and stored card dimensions.
const MaxDimension = 8192

// DefaultRenderTimeout bounds one shared render when no timeout is set.
const DefaultRenderTimeout = 30 * time.Second

// DefaultPixelBudget is how many output pixels may be rendered at once.
// A render costs roughly 24 bytes per pixel across the canvas, overlay,
// masks and blur buffers, so 4096x4096 is about 400 MB.
const DefaultPixelBudget = 4096 * 4096

// QuoteService moves clients through their decks and serves the rendered
// card for the quote they land on.
type QuoteService struct {
	quotes        ports.QuoteRepository
	clients       ports.ClientRepository
	catalog       ports.CatalogSource
	images        ports.ImageSource
	renderer      ports.CardRenderer
	cache         ports.RenderCache
	defaults      domain.Dimensions
	renderTimeout time.Duration
	metrics       *telemetry.Metrics
	connections   *ConnectionLog
	locks         *KeyedMutex
	group         singleflight.Group
	budget        int64
	pixels        *semaphore.Weighted
	logger        *slog.Logger
	now           func() time.Time
}

// QuoteServiceConfig contains configuration for the quote service.
type QuoteServiceConfig struct {
	Quotes   ports.QuoteRepository
	Clients  ports.ClientRepository
	Images   ports.ImageSource
	Renderer ports.CardRenderer

	// Catalog refreshes expired background URLs. Optional.
	Catalog ports.CatalogSource

	// Cache keeps downloaded backgrounds and rendered cards. Optional.
	Cache ports.RenderCache

	// Defaults apply when neither the request nor the client sets a size.
	Defaults domain.Dimensions

	RenderTimeout time.Duration

	// PixelBudget bounds the summed area of renders in progress. Larger
	// single requests are rejected. Zero means DefaultPixelBudget.
	PixelBudget int64

	Metrics     *telemetry.Metrics
	Connections *ConnectionLog
	Logger      *slog.Logger
	Now         func() time.Time
}

// NewQuoteService creates a new quote service with the provided dependencies.
func NewQuoteService(cfg QuoteServiceConfig) *QuoteService {
	if cfg.Quotes == nil || cfg.Clients == nil || cfg.Images == nil || cfg.Renderer == nil {
		panic("app: quote service requires quotes, clients, images and renderer")
	}

	if cfg.Defaults.Width <= 0 || cfg.Defaults.Height <= 0 {
		cfg.Defaults = domain.Dimensions{Width: 800, Height: 480}
	}

	if cfg.RenderTimeout <= 0 {
		cfg.RenderTimeout = DefaultRenderTimeout
	}

	if cfg.PixelBudget <= 0 {
		cfg.PixelBudget = DefaultPixelBudget
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &QuoteService{
		quotes:        cfg.Quotes,
		clients:       cfg.Clients,
		catalog:       cfg.Catalog,
		images:        cfg.Images,
		renderer:      cfg.Renderer,
		cache:         cfg.Cache,
		defaults:      cfg.Defaults,
		renderTimeout: cfg.RenderTimeout,
		metrics:       cfg.Metrics,
		connections:   cfg.Connections,
		locks:         NewKeyedMutex(),
		budget:        cfg.PixelBudget,
		pixels:        semaphore.NewWeighted(cfg.PixelBudget),
		logger:        cfg.Logger,
		now:           cfg.Now,
	}
}

// ImageRequest asks for the card a client sees after moving in Direction.
// Zero Width or Height means unset.
type ImageRequest struct {
	Client    string
	Direction domain.Direction
	Width     int
	Height    int

	// Method and Path are recorded in the connection log.
	Method string
	Path   string
}

// RenderedCard is an encoded card and what it shows.
type RenderedCard struct {
	Quote   domain.Quote
	Client  domain.Client
	Dims    domain.Dimensions
	Image   []byte
	Outcome string
}

// ContentType of every rendered card.
const ContentType = "image/jpeg"

// Serve navigates req.Client and renders the resulting quote. Unknown
// clients are registered on first contact.
func (s *QuoteService) Serve(ctx context.Context, req ImageRequest) (card *RenderedCard, err error) {
	start := time.Now()

	ctx, span := telemetry.StartSpan(ctx, "card.serve",
		attribute.String("ditto.client", req.Client),
		attribute.String("ditto.direction", req.Direction.String()),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	if err := validateRequest(req); err != nil {
		return nil, err
	}

	quote, client, err := s.navigate(ctx, req)
	if err != nil {
		return nil, err
	}

	dims := s.resolveDims(req, client)

	data, outcome, err := s.render(ctx, *quote, dims)

	elapsed := time.Since(start)
	s.metrics.ObserveRender(outcome, elapsed)

	if err != nil {
		s.logger.ErrorContext(ctx, "failed to render card",
			slog.String("client", req.Client),
			slog.String("quote_id", quote.ID),
			slog.Any("error", err),
		)

		return nil, err
	}

	if s.connections != nil {
		s.connections.Add(Connection{
			Client:           req.Client,
			Timestamp:        s.now().UTC(),
			Method:           req.Method,
			Path:             req.Path,
			QuoteID:          quote.ID,
			ProcessingTimeMS: elapsed.Milliseconds(),
		})
	}

	s.logger.InfoContext(ctx, "served card",
		slog.String("client", req.Client),
		slog.String("direction", req.Direction.String()),
		slog.String("quote_id", quote.ID),
		slog.Int("position", client.CurrentPosition),
		slog.Int("width", dims.Width),
		slog.Int("height", dims.Height),
		slog.String("outcome", outcome),
		slog.Duration("elapsed", elapsed),
	)

	return &RenderedCard{
		Quote:   *quote,
		Client:  *client,
		Dims:    dims,
		Image:   data,
		Outcome: outcome,
	}, nil
}

func validateRequest(req ImageRequest) error {
	if strings.TrimSpace(req.Client) == "" {
		return domain.NewValidationError("client", "is required")
	}

	if err := validateDimension("width", req.Width); err != nil {
		return err
	}

	return validateDimension("height", req.Height)
}

// validateDimension accepts zero as unset.
func validateDimension(field string, v int) error {
	if v < 0 || v > MaxDimension {
		return domain.NewValidationErrorWithValue(field, fmt.Sprintf("must be between 1 and %d", MaxDimension), v)
	}

	return nil
}

// navigate holds the client's lock so concurrent requests from one display
// observe positions in order.
func (s *QuoteService) navigate(ctx context.Context, req ImageRequest) (*domain.Quote, *domain.Client, error) {
	unlock, err := s.locks.Lock(ctx, req.Client)
	if err != nil {
		return nil, nil, err
	}
	defer unlock()

	quote, client, err := s.clients.Navigate(ctx, req.Client, req.Direction, s.defaults)
	if err != nil {
		return nil, nil, err
	}

	s.metrics.ObserveNavigation(req.Direction.String())

	return quote, client, nil
}

// resolveDims picks each side independently: request, then client, then
// the configured default.
func (s *QuoteService) resolveDims(req ImageRequest, client *domain.Client) domain.Dimensions {
	pick := func(requested, stored, fallback int) int {
		switch {
		case requested > 0:
			return requested
		case stored > 0:
			return stored
		default:
			return fallback
		}
	}

	return domain.Dimensions{
		Width:  pick(req.Width, client.DefaultWidth, s.defaults.Width),
		Height: pick(req.Height, client.DefaultHeight, s.defaults.Height),
	}
}

type renderResult struct {
	data    []byte
	outcome string
}

// render shares one in-flight render per quote and size. The shared work
// outlives a single caller's cancellation but not the render timeout.
func (s *QuoteService) render(ctx context.Context, q domain.Quote, dims domain.Dimensions) ([]byte, string, error) {
	key := fmt.Sprintf("%s@%dx%d", q.ID, dims.Width, dims.Height)

	ch := s.group.DoChan(key, func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.renderTimeout)
		defer cancel()

		return s.produce(rctx, q, dims)
	})

	select {
	case <-ctx.Done():
		return nil, telemetry.RenderFailed, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, telemetry.RenderFailed, res.Err
		}

		r := res.Val.(renderResult)

		return r.data, r.outcome, nil
	}
}

func (s *QuoteService) produce(ctx context.Context, q domain.Quote, dims domain.Dimensions) (renderResult, error) {
	if s.cache != nil {
		if data, ok := s.cache.Processed(q.ID, dims); ok {
			return renderResult{data: data, outcome: telemetry.RenderCached}, nil
		}
	}

	area := int64(dims.Width) * int64(dims.Height)
	if area > s.budget {
		return renderResult{}, domain.NewValidationErrorWithValue("dimensions",
			fmt.Sprintf("exceed the render budget of %d pixels", s.budget), fmt.Sprintf("%dx%d", dims.Width, dims.Height))
	}

	if err := s.pixels.Acquire(ctx, area); err != nil {
		return renderResult{}, err
	}
	defer s.pixels.Release(area)

	bg, err := s.background(ctx, q)
	if err != nil {
		return renderResult{}, err
	}

	card := ports.Card{
		QuoteID:    q.ID,
		Content:    q.Content,
		Title:      q.Title,
		Author:     q.Author,
		Background: bg,
	}

	outcome := telemetry.RenderDrawn
	if bg == nil {
		outcome = telemetry.RenderFallback
	}

	data, err := s.renderer.Render(ctx, card, dims)
	if err != nil && bg != nil && domain.IsImageProcessing(err) && ctx.Err() == nil {
		s.logger.WarnContext(ctx, "render failed, retrying over fallback background",
			slog.String("quote_id", q.ID),
			slog.Any("error", err),
		)

		card.Background = nil
		outcome = telemetry.RenderFallback
		data, err = s.renderer.Render(ctx, card, dims)
	}

	if err != nil {
		return renderResult{}, err
	}

	// Fallback renders are not cached so a later download can replace them.
	if s.cache != nil && outcome == telemetry.RenderDrawn {
		if err := s.cache.StoreProcessed(q.ID, dims, data); err != nil {
			s.logger.WarnContext(ctx, "failed to cache rendered card",
				slog.String("quote_id", q.ID),
				slog.Any("error", err),
			)
		}
	}

	return renderResult{data: data, outcome: outcome}, nil
}

// background returns the decoded background for q, or nil when the card
// should be drawn over the fallback image. Only cancellation is an error.
// Downloads are cached only once they decode; cached bytes that no longer
// decode are evicted and downloaded again.
func (s *QuoteService) background(ctx context.Context, q domain.Quote) (image.Image, error) {
	if s.cache != nil {
		if data, ok := s.cache.Raw(q.ID); ok {
			img, err := compositor.Decode(data)
			if err == nil {
				return img, nil
			}

			s.logger.WarnContext(ctx, "evicting undecodable cached background",
				slog.String("quote_id", q.ID),
				slog.Any("error", err),
			)

			if err := s.cache.Evict(q.ID); err != nil {
				s.logger.WarnContext(ctx, "failed to evict cached background",
					slog.String("quote_id", q.ID),
					slog.Any("error", err),
				)
			}
		}
	}

	data, err := s.download(ctx, q)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		s.logger.WarnContext(ctx, "background unavailable, using fallback",
			slog.String("quote_id", q.ID),
			slog.Any("error", err),
		)

		return nil, nil
	}

	if data == nil {
		return nil, nil
	}

	img, err := compositor.Decode(data)
	if err != nil {
		s.logger.WarnContext(ctx, "undecodable background, using fallback",
			slog.String("quote_id", q.ID),
			slog.Int("bytes", len(data)),
			slog.Any("error", err),
		)

		return nil, nil
	}

	if s.cache != nil {
		if err := s.cache.StoreRaw(q.ID, data); err != nil {
			s.logger.WarnContext(ctx, "failed to cache background",
				slog.String("quote_id", q.ID),
				slog.Any("error", err),
			)
		}
	}

	return img, nil
}

// download fetches q's background, refreshing a missing or expired URL
// from the catalog first. A nil slice means the quote has no image.
func (s *QuoteService) download(ctx context.Context, q domain.Quote) ([]byte, error) {
	url := q.ImageURL

	if q.ImageExpired(s.now()) && s.catalog != nil {
		ref, err := s.catalog.FetchImage(ctx, q.ID)
		if err != nil {
			return nil, fmt.Errorf("refresh image url: %w", err)
		}

		url = ""

		if ref != nil {
			url = ref.URL

			if err := s.quotes.UpdateImage(ctx, q.ID, ref.URL, ref.Expiry); err != nil && !domain.IsNotFound(err) {
				s.logger.WarnContext(ctx, "failed to persist refreshed image url",
					slog.String("quote_id", q.ID),
					slog.Any("error", err),
				)
			}
		}
	}

	if url == "" {
		return nil, nil
	}

	data, err := s.images.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	if len(data) == 0 {
		return nil, errors.New("empty background")
	}

	return data, nil
}
