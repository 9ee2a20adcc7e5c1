package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ditto-display/ditto/internal/domain"
	"github.com/ditto-display/ditto/internal/platform/telemetry"
	"github.com/ditto-display/ditto/internal/ports"
)

// MaxClientNameLength bounds client names, which usually are IP addresses.
const MaxClientNameLength = 128

// ClientService manages display clients.
type ClientService struct {
	clients  ports.ClientRepository
	quotes   ports.QuoteRepository
	defaults domain.Dimensions
	metrics  *telemetry.Metrics
	logger   *slog.Logger
}

// ClientServiceConfig contains the dependencies of a ClientService.
type ClientServiceConfig struct {
	Clients ports.ClientRepository
	Quotes  ports.QuoteRepository

	// Defaults are stored for clients registered without dimensions.
	Defaults domain.Dimensions

	Metrics *telemetry.Metrics
	Logger  *slog.Logger
}

// NewClientService creates a ClientService.
func NewClientService(cfg ClientServiceConfig) *ClientService {
	if cfg.Clients == nil || cfg.Quotes == nil {
		panic("app: client service requires clients and quotes")
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &ClientService{
		clients:  cfg.Clients,
		quotes:   cfg.Quotes,
		defaults: cfg.Defaults,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
	}
}

// RegisterRequest registers a client. Nil dimensions take the configured
// defaults.
type RegisterRequest struct {
	Name   string
	Width  *int
	Height *int
}

// Register creates the client if it does not exist yet. An existing client
// is returned unchanged with created false.
func (s *ClientService) Register(ctx context.Context, req RegisterRequest) (*domain.Client, bool, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, false, domain.NewValidationError("client_name", "is required")
	}

	if len(name) > MaxClientNameLength {
		return nil, false, domain.NewValidationErrorWithValue("client_name", "is too long", len(name))
	}

	dims := s.defaults

	if req.Width != nil {
		if err := validateStoredDimension("width", *req.Width); err != nil {
			return nil, false, err
		}

		dims.Width = *req.Width
	}

	if req.Height != nil {
		if err := validateStoredDimension("height", *req.Height); err != nil {
			return nil, false, err
		}

		dims.Height = *req.Height
	}

	client, created, err := s.clients.RegisterClient(ctx, name, dims)
	if err != nil {
		return nil, false, err
	}

	if created {
		s.logger.InfoContext(ctx, "registered client",
			slog.String("client", client.Name),
			slog.Int64("client_id", client.ID),
			slog.Int("width", client.DefaultWidth),
			slog.Int("height", client.DefaultHeight),
		)

		s.refreshGauges(ctx)
	}

	return client, created, nil
}

// List returns every client ordered by id.
func (s *ClientService) List(ctx context.Context) ([]domain.Client, error) {
	return s.clients.ListClients(ctx)
}

// Get returns the client named name.
func (s *ClientService) Get(ctx context.Context, name string) (*domain.Client, error) {
	return s.clients.GetClient(ctx, name)
}

// Update applies a partial update to the client with id.
func (s *ClientService) Update(ctx context.Context, id int64, update domain.ClientUpdate) (*domain.Client, error) {
	if update.Empty() {
		return nil, domain.NewValidationError("body", "at least one of width, height or position is required")
	}

	if update.Width != nil {
		if err := validateStoredDimension("width", *update.Width); err != nil {
			return nil, err
		}
	}

	if update.Height != nil {
		if err := validateStoredDimension("height", *update.Height); err != nil {
			return nil, err
		}
	}

	client, err := s.clients.UpdateClient(ctx, id, update)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "updated client",
		slog.String("client", client.Name),
		slog.Int64("client_id", client.ID),
		slog.Int("position", client.CurrentPosition),
	)

	return client, nil
}

// Stats counts quotes and clients.
func (s *ClientService) Stats(ctx context.Context) (domain.Stats, error) {
	return s.quotes.Stats(ctx)
}

func (s *ClientService) refreshGauges(ctx context.Context) {
	stats, err := s.quotes.Stats(ctx)
	if err != nil {
		s.logger.DebugContext(ctx, "failed to refresh catalog gauges", slog.Any("error", err))
		return
	}

	s.metrics.SetCatalog(stats.QuoteCount, stats.ClientCount)
}

// validateStoredDimension rejects sizes a client cannot be rendered at.
func validateStoredDimension(field string, v int) error {
	if v == 0 {
		return domain.NewValidationErrorWithValue(field, fmt.Sprintf("must be between 1 and %d", MaxDimension), v)
	}

	return validateDimension(field, v)
}
