package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/ditto-display/ditto/internal/adapters/clients"
	"github.com/ditto-display/ditto/internal/adapters/clients/imagefetch"
	"github.com/ditto-display/ditto/internal/adapters/clients/notion"
	"github.com/ditto-display/ditto/internal/adapters/store"
	"github.com/ditto-display/ditto/internal/app"
	"github.com/ditto-display/ditto/internal/compositor"
	"github.com/ditto-display/ditto/internal/domain"
	"github.com/ditto-display/ditto/internal/layout"
	"github.com/ditto-display/ditto/internal/platform/config"
	"github.com/ditto-display/ditto/internal/platform/database"
	"github.com/ditto-display/ditto/internal/platform/telemetry"
	"github.com/ditto-display/ditto/internal/ports"
)

// application is the fully wired service graph shared by the subcommands.
type application struct {
	cfg    *config.Config
	logger *slog.Logger

	db      *sql.DB
	store   *store.Store
	metrics *telemetry.Metrics
	health  *ports.DefaultHealthRegistry

	quotes  *app.QuoteService
	clients *app.ClientService
	status  *app.StatusService

	// sync is nil when the Notion catalog is disabled.
	sync *app.SyncService
}

func newApplication(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	reg prometheus.Registerer,
) (a *application, err error) {
	metrics, err := telemetry.NewMetrics(reg)
	if err != nil {
		return nil, fmt.Errorf("registering metrics: %w", err)
	}

	db, err := database.Open(ctx, cfg.Database.Path,
		database.WithBusyTimeout(cfg.Database.BusyTimeout),
		database.WithMkdirAll(),
	)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	defer func() {
		if err != nil {
			_ = db.Close()
		}
	}()

	st, err := store.New(ctx, db)
	if err != nil {
		return nil, err
	}

	health := ports.NewHealthRegistry()
	if err := health.Register(st); err != nil {
		return nil, fmt.Errorf("registering store health check: %w", err)
	}

	var catalog ports.CatalogSource

	if cfg.Notion.Enabled {
		adapter, err := newNotionAdapter(cfg, logger, metrics)
		if err != nil {
			return nil, err
		}

		if err := health.Register(adapter); err != nil {
			return nil, fmt.Errorf("registering notion health check: %w", err)
		}

		catalog = adapter
	}

	images, err := newImageFetcher(cfg, logger)
	if err != nil {
		return nil, err
	}

	renderer, err := newCompositor(cfg, logger)
	if err != nil {
		return nil, err
	}

	cache, err := compositor.NewDiskCache(cfg.Cache.Dir, cfg.Cache.Enabled)
	if err != nil {
		return nil, fmt.Errorf("creating image cache: %w", err)
	}

	defaults := domain.Dimensions{Width: cfg.Render.DefaultWidth, Height: cfg.Render.DefaultHeight}
	connections := app.NewConnectionLog(cfg.Status.RecentConnections)

	a = &application{
		cfg:     cfg,
		logger:  logger,
		db:      db,
		store:   st,
		metrics: metrics,
		health:  health,
	}

	a.quotes = app.NewQuoteService(app.QuoteServiceConfig{
		Quotes:        st,
		Clients:       st,
		Images:        images,
		Renderer:      renderer,
		Catalog:       catalog,
		Cache:         cache,
		Defaults:      defaults,
		RenderTimeout: cfg.Server.RequestTimeout,
		PixelBudget:   cfg.Render.PixelBudget,
		Metrics:       metrics,
		Connections:   connections,
		Logger:        logger,
	})

	a.clients = app.NewClientService(app.ClientServiceConfig{
		Clients:  st,
		Quotes:   st,
		Defaults: defaults,
		Metrics:  metrics,
		Logger:   logger,
	})

	var reporter app.SyncReporter

	if catalog != nil {
		a.sync = app.NewSyncService(app.SyncServiceConfig{
			Catalog:  catalog,
			Quotes:   st,
			Cache:    cache,
			SourceID: cfg.Notion.DatabaseID,
			Metrics:  metrics,
			Logger:   logger,
		})
		reporter = a.sync
	}

	a.status = app.NewStatusService(app.StatusServiceConfig{
		Quotes:      st,
		Health:      health,
		Sync:        reporter,
		Connections: connections,
		Info: app.StatusInfo{
			Name:         cfg.App.Name,
			Version:      cfg.App.Version,
			Environment:  cfg.App.Environment,
			DatabasePath: cfg.Database.Path,
			Config:       statusConfig(cfg),
		},
		Logger: logger,
	})

	return a, nil
}

// Close releases the database.
func (a *application) Close() error {
	return a.db.Close()
}

// scheduler returns the catalog sync scheduler, or nil when syncing is
// off.
func (a *application) scheduler() (*app.Scheduler, error) {
	if !a.cfg.Sync.Enabled {
		return nil, nil
	}

	if a.sync == nil {
		a.logger.Warn("sync is enabled but notion is not; scheduler not started")
		return nil, nil
	}

	hour, minute, err := a.cfg.Sync.TimeOfDay()
	if err != nil {
		return nil, err
	}

	return app.NewScheduler(app.SchedulerConfig{
		Syncer:     a.sync,
		Hour:       hour,
		Minute:     minute,
		OnStartup:  a.cfg.Sync.OnStartup,
		RetryPause: a.cfg.Sync.RetryPause,
		Timeout:    a.cfg.Sync.Timeout,
		Logger:     a.logger,
	})
}

func newNotionAdapter(cfg *config.Config, logger *slog.Logger, metrics *telemetry.Metrics) (*notion.Adapter, error) {
	gate := clients.NewRateGate()
	gate.OnPause(metrics.ObservePause)

	var limiter *rate.Limiter
	if cfg.Notion.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Notion.RequestsPerSecond), max(cfg.Notion.Burst, 1))
	}

	client, err := clients.New(&clients.Config{
		BaseURL:          cfg.Notion.BaseURL,
		ServiceName:      notion.ServiceName,
		Timeout:          cfg.Client.Timeout,
		Retry:            cfg.Client.Retry,
		Circuit:          cfg.Client.CircuitBreaker,
		Transport:        cfg.Client.Transport,
		Gate:             gate,
		Limiter:          limiter,
		RateLimitRetries: cfg.Notion.MaxRetries,
		RateLimitBackoff: cfg.Notion.InitialBackoff,
		AuthFunc:         notion.AuthFunc(cfg.Notion.Token, cfg.Notion.Version),
		Logger:           logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating notion client: %w", err)
	}

	return notion.New(client, notion.Config{
		Version:          cfg.Notion.Version,
		ImageConcurrency: cfg.Notion.ImageConcurrency,
		Logger:           logger,
	}), nil
}

func newImageFetcher(cfg *config.Config, logger *slog.Logger) (*imagefetch.Fetcher, error) {
	client, err := clients.New(&clients.Config{
		ServiceName: imagefetch.ServiceName,
		Timeout:     cfg.Images.Timeout,
		Retry:       cfg.Client.Retry,
		Circuit:     cfg.Client.CircuitBreaker,
		Transport:   cfg.Client.Transport,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating image client: %w", err)
	}

	return imagefetch.New(client, cfg.Images.MaxBytes), nil
}

func newCompositor(cfg *config.Config, logger *slog.Logger) (*compositor.Compositor, error) {
	quote, title, author := fontSpecs(cfg.Fonts)

	fonts, err := layout.LoadFontSet(quote, title, author)
	if err != nil {
		return nil, fmt.Errorf("loading fonts: %w", err)
	}

	comp, err := compositor.New(compositor.Config{
		Fonts:   fonts,
		Options: compositorOptions(cfg.Render),
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating compositor: %w", err)
	}

	return comp, nil
}

// fontSpecs maps the font config to specs. An unset path selects the
// bundled face for that role.
func fontSpecs(cfg config.FontsConfig) (quote, title, author layout.FontSpec) {
	spec := func(f config.FontConfig, embedded string) layout.FontSpec {
		if f.Path == "" {
			return layout.FontSpec{Path: layout.EmbeddedPrefix + embedded}
		}

		return layout.FontSpec{Path: f.Path, Index: f.Index}
	}

	return spec(cfg.Quote, "gobolditalic"), spec(cfg.Title, "gobold"), spec(cfg.Author, "goregular")
}

// compositorOptions overlays the render config on the stock layout. The
// stroke and truncation tuning have no config keys and keep their defaults.
func compositorOptions(r config.RenderConfig) compositor.Options {
	opts := compositor.DefaultOptions()

	opts.PaddingWidth = r.PaddingWidth
	opts.PaddingHeight = r.PaddingHeight

	opts.Quote = compositor.Band{Height: r.QuoteHeight, Color: r.QuoteColor}
	opts.Title = compositor.Band{Height: r.TitleHeight, Color: r.TitleColor}
	opts.Author = compositor.Band{Height: r.AuthorHeight, Color: r.AuthorColor}
	opts.StrokeColor = r.StrokeColor

	opts.QuoteBox.MinSize = r.QuoteMinSize
	opts.QuoteBox.MaxSize = r.QuoteMaxSize
	opts.QuoteBox.Step = r.QuoteStep
	opts.QuoteBox.Spacing = r.LineSpacing

	opts.Saturation = r.Saturation
	opts.Brightness = r.Brightness
	opts.Gamma = r.Gamma
	opts.BlurSize = r.BlurSize
	opts.BlurSigma = r.BlurSigma
	opts.KuwaharaRadius = r.KuwaharaRadius
	opts.JPEGQuality = r.JPEGQuality

	opts.StaticBackdrop = r.UseStaticBackground
	opts.FallbackImage = r.FallbackImage

	return opts
}

// statusConfig is the part of the configuration shown on the status page.
func statusConfig(cfg *config.Config) map[string]any {
	return map[string]any{
		"render": cfg.Render,
		"cache":  cfg.Cache,
	}
}
