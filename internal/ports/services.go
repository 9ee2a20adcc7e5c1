// Package ports defines the interfaces the application layer depends on.
// Adapters implement them; methods take a context first, return domain
// types and report failures with domain errors.
package ports

import (
	"context"
	"image"
	"time"

	"github.com/ditto-display/ditto/internal/domain"
)

// QuoteRepository persists the quote catalog. The catalog sync is its only
// writer.
type QuoteRepository interface {
	// UpsertQuote inserts or replaces a quote by id.
	UpsertQuote(ctx context.Context, q domain.Quote) error

	// DeleteQuote removes a quote and every deck entry that references it.
	// Deleting an unknown id is a no-op.
	DeleteQuote(ctx context.Context, id string) error

	// GetQuote returns domain.ErrNotFound for an unknown id.
	GetQuote(ctx context.Context, id string) (*domain.Quote, error)

	// AllQuoteIDs returns every catalog id.
	AllQuoteIDs(ctx context.Context) ([]string, error)

	// ListQuotes returns the whole catalog ordered by id.
	ListQuotes(ctx context.Context) ([]domain.Quote, error)

	// UpdateImage stores a refreshed background URL and its expiry.
	UpdateImage(ctx context.Context, id, url string, expiry *time.Time) error

	// ApplyCatalog replaces the catalog with quotes in one transaction:
	// upserts them, deletes ids no longer present and appends newcomers to
	// every client's deck.
	ApplyCatalog(ctx context.Context, quotes []domain.Quote) (domain.SyncResult, error)

	// Stats counts quotes and clients.
	Stats(ctx context.Context) (domain.Stats, error)
}

// ClientRepository persists clients and their decks.
type ClientRepository interface {
	// RegisterClient creates a client with a freshly shuffled deck. It is
	// idempotent: an existing client is returned unchanged with created
	// set to false.
	RegisterClient(ctx context.Context, name string, dims domain.Dimensions) (client *domain.Client, created bool, err error)

	// GetClient returns domain.ErrNotFound for an unknown name.
	GetClient(ctx context.Context, name string) (*domain.Client, error)

	// ListClients returns all clients ordered by id.
	ListClients(ctx context.Context) ([]domain.Client, error)

	// UpdateClient applies a partial update. Unknown ids return a
	// client not found error.
	UpdateClient(ctx context.Context, id int64, update domain.ClientUpdate) (*domain.Client, error)

	// Deck returns the client's quote ids in deck order.
	Deck(ctx context.Context, name string) ([]string, error)

	// Navigate moves the client through its deck and returns the quote at
	// the new position. Unknown clients are registered with dims first.
	// An empty deck returns the client together with domain.ErrNoQuotes
	// and leaves its position untouched.
	Navigate(ctx context.Context, name string, dir domain.Direction, dims domain.Dimensions) (*domain.Quote, *domain.Client, error)
}

// CatalogSnapshot is the full set of active items read from upstream.
type CatalogSnapshot struct {
	Items   []domain.Quote
	Skipped int
}

// ImageRef is a background image location.
type ImageRef struct {
	URL    string
	Expiry *time.Time
}

// CatalogSource reads the upstream catalog.
type CatalogSource interface {
	// FetchAllActiveItems returns every displayable item in the source.
	// Returns domain.ErrRateLimited when upstream keeps throttling.
	FetchAllActiveItems(ctx context.Context, sourceID string) (*CatalogSnapshot, error)

	// FetchImage re-reads the background image of one item. A nil ref
	// means the item has no image.
	FetchImage(ctx context.Context, itemID string) (*ImageRef, error)
}

// ImageSource downloads raw background image bytes.
type ImageSource interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Card is everything drawn on one rendered image.
type Card struct {
	QuoteID    string
	Content    string
	Title      string
	Author     string
	Background image.Image
}

// CardRenderer turns a card into an encoded image.
type CardRenderer interface {
	Render(ctx context.Context, card Card, dims domain.Dimensions) ([]byte, error)
}

// RenderCache keeps processed cards and downloaded backgrounds on disk.
type RenderCache interface {
	// Processed returns a previously rendered card for quoteID at dims.
	Processed(quoteID string, dims domain.Dimensions) ([]byte, bool)

	// StoreProcessed saves a rendered card.
	StoreProcessed(quoteID string, dims domain.Dimensions, data []byte) error

	// Raw returns a previously downloaded background.
	Raw(quoteID string) ([]byte, bool)

	// StoreRaw saves a downloaded background.
	StoreRaw(quoteID string, data []byte) error

	// Evict drops the background and every rendered size of quoteID.
	Evict(quoteID string) error
}
