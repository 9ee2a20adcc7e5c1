// Package notion reads the quote catalog from a Notion database. Each
// database page is one quote; its first image block is the background.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ditto-display/ditto/internal/adapters/clients"
	"github.com/ditto-display/ditto/internal/adapters/clients/acl"
	"github.com/ditto-display/ditto/internal/domain"
	"github.com/ditto-display/ditto/internal/ports"
)

// ServiceName names the upstream in errors, logs and metrics.
const ServiceName = "notion"

const (
	defaultVersion          = "2022-06-28"
	defaultImageConcurrency = 4
	queryPageSize           = 100
)

// Config configures an Adapter.
type Config struct {
	// Version is sent as the Notion-Version header.
	Version string

	// ImageConcurrency bounds parallel image block lookups during a
	// catalog fetch.
	ImageConcurrency int

	Logger *slog.Logger
}

// Adapter implements ports.CatalogSource.
type Adapter struct {
	acl.BaseAdapter

	version     string
	concurrency int
	logger      *slog.Logger
}

var (
	_ ports.CatalogSource = (*Adapter)(nil)
	_ ports.HealthChecker = (*Adapter)(nil)
)

// New wraps client. The client must authenticate with the integration
// token, see AuthFunc.
func New(client *clients.Client, cfg Config) *Adapter {
	if cfg.Version == "" {
		cfg.Version = defaultVersion
	}

	if cfg.ImageConcurrency <= 0 {
		cfg.ImageConcurrency = defaultImageConcurrency
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Adapter{
		BaseAdapter: acl.NewBaseAdapter(client, ServiceName),
		version:     cfg.Version,
		concurrency: cfg.ImageConcurrency,
		logger:      logger.With(slog.String("component", "notion.Adapter")),
	}
}

// AuthFunc returns a clients.Config.AuthFunc sending token and version on
// every attempt.
func AuthFunc(token, version string) func(*http.Request) {
	if version == "" {
		version = defaultVersion
	}

	return func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Notion-Version", version)
	}
}

// FetchAllActiveItems pages through the database, drops inactive pages
// and looks up every remaining page's background image.
//
// A failed page of results fails the whole fetch so a partial catalog is
// never mistaken for deletions. A failed image lookup only leaves that
// quote without a background, unless upstream is rate limiting.
func (a *Adapter) FetchAllActiveItems(ctx context.Context, sourceID string) (*ports.CatalogSnapshot, error) {
	if sourceID == "" {
		return nil, domain.NewValidationError("database_id", "is required")
	}

	start := time.Now()

	pages, err := a.queryAll(ctx, sourceID)
	if err != nil {
		return nil, err
	}

	quotes, skipped, err := acl.TranslateSlice(pages, toQuote)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)

	for i := range quotes {
		q := &quotes[i]

		g.Go(func() error {
			ref, err := a.FetchImage(gctx, q.ID)
			if err != nil {
				if domain.IsRateLimited(err) || gctx.Err() != nil {
					return err
				}

				a.logger.WarnContext(gctx, "image block lookup failed",
					slog.String("page_id", q.ID),
					slog.Any("error", err),
				)

				return nil
			}

			if ref != nil {
				q.ImageURL = ref.URL
				q.ImageExpiry = ref.Expiry
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	a.logger.InfoContext(ctx, "fetched catalog",
		slog.Int("pages", len(pages)),
		slog.Int("active", len(quotes)),
		slog.Int("skipped", skipped),
		slog.Duration("duration", time.Since(start)),
	)

	return &ports.CatalogSnapshot{Items: quotes, Skipped: skipped}, nil
}

func (a *Adapter) queryAll(ctx context.Context, databaseID string) ([]page, error) {
	path := "/v1/databases/" + url.PathEscape(databaseID) + "/query"

	var (
		pages  []page
		cursor string
	)

	for {
		payload, err := json.Marshal(queryRequest{StartCursor: cursor, PageSize: queryPageSize})
		if err != nil {
			return nil, fmt.Errorf("encoding query: %w", err)
		}

		body, err := a.Post(ctx, path, bytes.NewReader(payload), "query database", databaseID)
		if err != nil {
			return nil, err
		}

		resp, err := acl.DecodeResponseForService[queryResponse](body, ServiceName, "query database")
		if err != nil {
			return nil, err
		}

		pages = append(pages, resp.Results...)

		if !resp.HasMore || resp.NextCursor == nil || *resp.NextCursor == "" {
			return pages, nil
		}

		cursor = *resp.NextCursor
	}
}

// FetchImage returns the first image block of a page, or nil when the page
// has none. Only the first page of children is read.
func (a *Adapter) FetchImage(ctx context.Context, itemID string) (*ports.ImageRef, error) {
	path := "/v1/blocks/" + url.PathEscape(itemID) + "/children?page_size=" + fmt.Sprint(queryPageSize)

	body, err := a.Get(ctx, path, "list blocks", itemID)
	if err != nil {
		return nil, err
	}

	list, err := acl.DecodeResponseForService[blockList](body, ServiceName, "list blocks")
	if err != nil {
		return nil, err
	}

	return imageRef(list.Results), nil
}

// Name implements ports.HealthChecker.
func (a *Adapter) Name() string {
	return ServiceName
}

// Optional implements ports.OptionalChecker. Cards keep rendering from the
// local catalog while upstream is down.
func (a *Adapter) Optional() bool {
	return true
}

// Check verifies the token by reading the integration's own user.
func (a *Adapter) Check(ctx context.Context) error {
	if state := a.Client().CircuitState(); state == clients.StateOpen {
		return domain.NewUnavailableError(ServiceName, "circuit breaker open")
	}

	body, err := a.Get(ctx, "/v1/users/me", "health check", "")
	if err != nil {
		return err
	}

	return body.Close()
}
