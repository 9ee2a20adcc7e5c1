package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ditto-display/ditto/internal/adapters/store"
	"github.com/ditto-display/ditto/internal/compositor"
	"github.com/ditto-display/ditto/internal/domain"
	"github.com/ditto-display/ditto/internal/mocks"
	"github.com/ditto-display/ditto/internal/platform/database"
	"github.com/ditto-display/ditto/internal/platform/telemetry"
	"github.com/ditto-display/ditto/internal/ports"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

// discardLogger returns a logger that discards all output.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.New(context.Background(), database.OpenMemory(t),
		store.WithSource(rand.New(rand.NewPCG(7, 11))),
		store.WithClock(func() time.Time { return testNow }),
	)
	require.NoError(t, err)

	return s
}

func seedQuotes(t *testing.T, s *store.Store, quotes ...domain.Quote) {
	t.Helper()

	for _, q := range quotes {
		require.NoError(t, s.UpsertQuote(context.Background(), q))
	}
}

func pngBytes(t *testing.T) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for i := range img.Pix {
		img.Pix[i] = 200
	}

	img.Set(1, 1, color.RGBA{R: 10, A: 255})

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	return buf.Bytes()
}

type quoteFixture struct {
	store    *store.Store
	catalog  *mocks.MockCatalogSource
	images   *mocks.MockImageSource
	renderer *mocks.MockCardRenderer
	cache    *mocks.MockRenderCache
	conns    *ConnectionLog
}

func newQuoteFixture(t *testing.T, withCache bool) (*QuoteService, *quoteFixture) {
	t.Helper()

	f := &quoteFixture{
		store:    newTestStore(t),
		catalog:  mocks.NewMockCatalogSource(t),
		images:   mocks.NewMockImageSource(t),
		renderer: mocks.NewMockCardRenderer(t),
		conns:    NewConnectionLog(10),
	}

	cfg := QuoteServiceConfig{
		Quotes:      f.store,
		Clients:     f.store,
		Catalog:     f.catalog,
		Images:      f.images,
		Renderer:    f.renderer,
		Defaults:    domain.Dimensions{Width: 800, Height: 480},
		Connections: f.conns,
		Logger:      discardLogger(),
		Now:         func() time.Time { return testNow },
	}

	if withCache {
		f.cache = mocks.NewMockRenderCache(t)
		cfg.Cache = f.cache
	}

	return NewQuoteService(cfg), f
}

func hasBackground(want bool) any {
	return mock.MatchedBy(func(c ports.Card) bool { return (c.Background != nil) == want })
}

func TestNewQuoteService_PanicsWithoutDependencies(t *testing.T) {
	assert.Panics(t, func() {
		NewQuoteService(QuoteServiceConfig{Logger: discardLogger()})
	})
}

func TestNewQuoteService_Defaults(t *testing.T) {
	s := newTestStore(t)

	svc := NewQuoteService(QuoteServiceConfig{
		Quotes:   s,
		Clients:  s,
		Images:   mocks.NewMockImageSource(t),
		Renderer: mocks.NewMockCardRenderer(t),
	})

	require.NotNil(t, svc)
	assert.Equal(t, domain.Dimensions{Width: 800, Height: 480}, svc.defaults)
	assert.Equal(t, DefaultRenderTimeout, svc.renderTimeout)
	assert.Equal(t, int64(DefaultPixelBudget), svc.budget)
}

func TestQuoteService_Serve_RendersDownloadedBackground(t *testing.T) {
	svc, f := newQuoteFixture(t, false)
	seedQuotes(t, f.store, domain.Quote{
		ID: "q1", Content: "Stay hungry", Title: "Speech", Author: "Jobs",
		ImageURL: "https://img.example/q1.png",
	})

	f.images.EXPECT().Fetch(mock.Anything, "https://img.example/q1.png").Return(pngBytes(t), nil)
	f.renderer.EXPECT().
		Render(mock.Anything, mock.MatchedBy(func(c ports.Card) bool {
			return c.QuoteID == "q1" && c.Content == "Stay hungry" && c.Author == "Jobs" && c.Background != nil
		}), domain.Dimensions{Width: 800, Height: 480}).
		Return([]byte("jpeg"), nil)

	card, err := svc.Serve(context.Background(), ImageRequest{
		Client: "10.0.0.7", Direction: domain.DirectionForward, Method: "GET", Path: "/next",
	})
	require.NoError(t, err)

	assert.Equal(t, "q1", card.Quote.ID)
	assert.Equal(t, "10.0.0.7", card.Client.Name)
	assert.Equal(t, []byte("jpeg"), card.Image)
	assert.Equal(t, telemetry.RenderDrawn, card.Outcome)

	recent := f.conns.Recent()
	require.Len(t, recent, 1)
	assert.Equal(t, "10.0.0.7", recent[0].Client)
	assert.Equal(t, "/next", recent[0].Path)
	assert.Equal(t, "q1", recent[0].QuoteID)
	assert.Equal(t, testNow, recent[0].Timestamp)
}

func TestQuoteService_Serve_ResolvesDimensions(t *testing.T) {
	tests := []struct {
		name     string
		register *domain.Dimensions
		width    int
		height   int
		want     domain.Dimensions
	}{
		{
			name: "configured defaults",
			want: domain.Dimensions{Width: 800, Height: 480},
		},
		{
			name:   "request overrides both",
			width:  1200,
			height: 825,
			want:   domain.Dimensions{Width: 1200, Height: 825},
		},
		{
			name:  "sides resolve independently",
			width: 640,
			want:  domain.Dimensions{Width: 640, Height: 480},
		},
		{
			name:     "client defaults",
			register: &domain.Dimensions{Width: 1872, Height: 1404},
			want:     domain.Dimensions{Width: 1872, Height: 1404},
		},
		{
			name:     "request beats client defaults",
			register: &domain.Dimensions{Width: 1872, Height: 1404},
			height:   300,
			want:     domain.Dimensions{Width: 1872, Height: 300},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, f := newQuoteFixture(t, false)
			seedQuotes(t, f.store, domain.Quote{ID: "q1", Content: "c"})

			if tt.register != nil {
				_, _, err := f.store.RegisterClient(context.Background(), "kitchen", *tt.register)
				require.NoError(t, err)
			}

			f.catalog.EXPECT().FetchImage(mock.Anything, "q1").Return(nil, nil)
			f.renderer.EXPECT().Render(mock.Anything, hasBackground(false), tt.want).Return([]byte("x"), nil)

			card, err := svc.Serve(context.Background(), ImageRequest{
				Client: "kitchen", Direction: domain.DirectionCurrent, Width: tt.width, Height: tt.height,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, card.Dims)
			assert.Equal(t, telemetry.RenderFallback, card.Outcome)
		})
	}
}

func TestQuoteService_Serve_Validation(t *testing.T) {
	tests := []struct {
		name  string
		req   ImageRequest
		field string
	}{
		{name: "missing client", req: ImageRequest{Client: "  "}, field: "client"},
		{name: "negative width", req: ImageRequest{Client: "a", Width: -1}, field: "width"},
		{name: "huge height", req: ImageRequest{Client: "a", Height: MaxDimension + 1}, field: "height"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newQuoteFixture(t, false)

			_, err := svc.Serve(context.Background(), tt.req)
			require.Error(t, err)

			var ve *domain.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestQuoteService_Serve_EmptyCatalog(t *testing.T) {
	svc, f := newQuoteFixture(t, false)

	_, err := svc.Serve(context.Background(), ImageRequest{Client: "a", Direction: domain.DirectionForward})
	require.Error(t, err)
	assert.True(t, domain.IsNotFound(err))
	assert.Empty(t, f.conns.Recent())

	// The client is still registered on first contact.
	_, err = f.store.GetClient(context.Background(), "a")
	require.NoError(t, err)
}

func TestQuoteService_Serve_DownloadFailureFallsBack(t *testing.T) {
	svc, f := newQuoteFixture(t, true)
	seedQuotes(t, f.store, domain.Quote{ID: "q1", Content: "c", ImageURL: "https://img.example/q1.png"})
	dims := domain.Dimensions{Width: 800, Height: 480}

	f.cache.EXPECT().Processed("q1", dims).Return(nil, false)
	f.cache.EXPECT().Raw("q1").Return(nil, false)
	f.images.EXPECT().Fetch(mock.Anything, "https://img.example/q1.png").
		Return(nil, domain.NewUnavailableError("images", "connection reset"))
	f.renderer.EXPECT().Render(mock.Anything, hasBackground(false), dims).Return([]byte("fallback"), nil)

	card, err := svc.Serve(context.Background(), ImageRequest{Client: "a"})
	require.NoError(t, err)
	assert.Equal(t, telemetry.RenderFallback, card.Outcome)
	assert.Equal(t, []byte("fallback"), card.Image)

	// Fallback renders are never cached.
	f.cache.AssertNotCalled(t, "StoreProcessed", mock.Anything, mock.Anything, mock.Anything)
}

func TestQuoteService_Serve_RefreshesExpiredImage(t *testing.T) {
	svc, f := newQuoteFixture(t, true)
	expired := testNow.Add(-time.Hour)
	fresh := testNow.Add(time.Hour)
	dims := domain.Dimensions{Width: 800, Height: 480}
	data := pngBytes(t)

	seedQuotes(t, f.store, domain.Quote{
		ID: "q1", Content: "c", ImageURL: "https://s3.example/old", ImageExpiry: &expired,
	})

	f.cache.EXPECT().Processed("q1", dims).Return(nil, false)
	f.cache.EXPECT().Raw("q1").Return(nil, false)
	f.catalog.EXPECT().FetchImage(mock.Anything, "q1").
		Return(&ports.ImageRef{URL: "https://s3.example/new", Expiry: &fresh}, nil)
	f.images.EXPECT().Fetch(mock.Anything, "https://s3.example/new").Return(data, nil)
	f.cache.EXPECT().StoreRaw("q1", data).Return(nil)
	f.renderer.EXPECT().Render(mock.Anything, hasBackground(true), dims).Return([]byte("card"), nil)
	f.cache.EXPECT().StoreProcessed("q1", dims, []byte("card")).Return(nil)

	card, err := svc.Serve(context.Background(), ImageRequest{Client: "a"})
	require.NoError(t, err)
	assert.Equal(t, telemetry.RenderDrawn, card.Outcome)

	q, err := f.store.GetQuote(context.Background(), "q1")
	require.NoError(t, err)
	assert.Equal(t, "https://s3.example/new", q.ImageURL)
	require.NotNil(t, q.ImageExpiry)
	assert.True(t, fresh.Equal(*q.ImageExpiry))
}

func TestQuoteService_Serve_ProcessedCacheHit(t *testing.T) {
	svc, f := newQuoteFixture(t, true)
	seedQuotes(t, f.store, domain.Quote{ID: "q1", Content: "c", ImageURL: "https://img.example/q1.png"})

	f.cache.EXPECT().Processed("q1", domain.Dimensions{Width: 400, Height: 300}).Return([]byte("cached"), true)

	card, err := svc.Serve(context.Background(), ImageRequest{Client: "a", Width: 400, Height: 300})
	require.NoError(t, err)
	assert.Equal(t, []byte("cached"), card.Image)
	assert.Equal(t, telemetry.RenderCached, card.Outcome)
}

func TestQuoteService_Serve_RawCacheSkipsDownload(t *testing.T) {
	svc, f := newQuoteFixture(t, true)
	dims := domain.Dimensions{Width: 800, Height: 480}
	seedQuotes(t, f.store, domain.Quote{ID: "q1", Content: "c", ImageURL: "https://img.example/q1.png"})

	f.cache.EXPECT().Processed("q1", dims).Return(nil, false)
	f.cache.EXPECT().Raw("q1").Return(pngBytes(t), true)
	f.renderer.EXPECT().Render(mock.Anything, hasBackground(true), dims).Return([]byte("card"), nil)
	f.cache.EXPECT().StoreProcessed("q1", dims, []byte("card")).Return(errors.New("disk full"))

	card, err := svc.Serve(context.Background(), ImageRequest{Client: "a"})
	require.NoError(t, err)
	assert.Equal(t, telemetry.RenderDrawn, card.Outcome)
}

func TestQuoteService_Serve_ProcessingFailureRetriesOverFallback(t *testing.T) {
	svc, f := newQuoteFixture(t, false)
	seedQuotes(t, f.store, domain.Quote{ID: "q1", Content: "c", ImageURL: "https://img.example/q1.png"})
	dims := domain.Dimensions{Width: 800, Height: 480}

	f.images.EXPECT().Fetch(mock.Anything, mock.Anything).Return(pngBytes(t), nil)
	f.renderer.EXPECT().Render(mock.Anything, hasBackground(true), dims).
		Return(nil, domain.NewImageProcessingError("q1", "blur", errors.New("boom"))).Once()
	f.renderer.EXPECT().Render(mock.Anything, hasBackground(false), dims).Return([]byte("fallback"), nil).Once()

	card, err := svc.Serve(context.Background(), ImageRequest{Client: "a"})
	require.NoError(t, err)
	assert.Equal(t, telemetry.RenderFallback, card.Outcome)
}

func TestQuoteService_Serve_FallbackFailureSurfaces(t *testing.T) {
	svc, f := newQuoteFixture(t, false)
	seedQuotes(t, f.store, domain.Quote{ID: "q1", Content: "c", ImageURL: "https://img.example/q1.png"})

	f.images.EXPECT().Fetch(mock.Anything, mock.Anything).Return(nil, errors.New("404"))
	f.renderer.EXPECT().Render(mock.Anything, hasBackground(false), mock.Anything).
		Return(nil, domain.NewImageProcessingError("q1", "encode", errors.New("boom")))

	_, err := svc.Serve(context.Background(), ImageRequest{Client: "a"})
	require.Error(t, err)
	assert.True(t, domain.IsImageProcessing(err))
	assert.Empty(t, f.conns.Recent())
}

func TestQuoteService_Serve_WalksDeck(t *testing.T) {
	svc, f := newQuoteFixture(t, false)

	for i := range 4 {
		seedQuotes(t, f.store, domain.Quote{ID: fmt.Sprintf("q%d", i), Content: "c"})
	}

	f.catalog.EXPECT().FetchImage(mock.Anything, mock.Anything).Return(nil, nil)
	f.renderer.EXPECT().Render(mock.Anything, mock.Anything, mock.Anything).Return([]byte("x"), nil)

	ctx := context.Background()
	serve := func(dir domain.Direction) string {
		card, err := svc.Serve(ctx, ImageRequest{Client: "a", Direction: dir})
		require.NoError(t, err)

		return card.Quote.ID
	}

	first := serve(domain.DirectionForward)
	seen := map[string]bool{first: true}

	for range 3 {
		seen[serve(domain.DirectionForward)] = true
	}

	assert.Len(t, seen, 4, "four forward moves visit every quote once")
	assert.Equal(t, first, serve(domain.DirectionForward), "the deck wraps around")

	second := serve(domain.DirectionForward)
	assert.Equal(t, first, serve(domain.DirectionReverse))
	assert.Equal(t, first, serve(domain.DirectionCurrent))
	assert.NotEqual(t, first, second)
}

func TestQuoteService_Serve_CancelledBeforeNavigate(t *testing.T) {
	svc, f := newQuoteFixture(t, false)
	seedQuotes(t, f.store, domain.Quote{ID: "q1", Content: "c"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Serve(ctx, ImageRequest{Client: "a"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestQuoteService_Serve_UndecodableDownloadIsRetried(t *testing.T) {
	s := newTestStore(t)
	seedQuotes(t, s, domain.Quote{ID: "q1", Content: "c", ImageURL: "https://img.example/q1"})

	cache, err := compositor.NewDiskCache(t.TempDir(), false)
	require.NoError(t, err)

	images := mocks.NewMockImageSource(t)
	images.EXPECT().Fetch(mock.Anything, "https://img.example/q1").Return([]byte("<html>oops</html>"), nil).Once()
	images.EXPECT().Fetch(mock.Anything, "https://img.example/q1").Return(pngBytes(t), nil).Once()

	var drawn []bool

	renderer := mocks.NewMockCardRenderer(t)
	renderer.EXPECT().Render(mock.Anything, mock.Anything, mock.Anything).
		RunAndReturn(func(_ context.Context, c ports.Card, _ domain.Dimensions) ([]byte, error) {
			drawn = append(drawn, c.Background != nil)
			return []byte("card"), nil
		})

	svc := NewQuoteService(QuoteServiceConfig{
		Quotes:   s,
		Clients:  s,
		Images:   images,
		Renderer: renderer,
		Cache:    cache,
		Logger:   discardLogger(),
		Now:      func() time.Time { return testNow },
	})

	for range 3 {
		_, err := svc.Serve(context.Background(), ImageRequest{Client: "a"})
		require.NoError(t, err)
	}

	// The error page is never cached, so the second render downloads
	// again and the third reads the good copy from disk.
	assert.Equal(t, []bool{false, true, true}, drawn)

	raw, ok := cache.Raw("q1")
	require.True(t, ok)
	assert.Equal(t, pngBytes(t), raw)
}

func TestQuoteService_Serve_EvictsUndecodableCachedBackground(t *testing.T) {
	svc, f := newQuoteFixture(t, true)
	seedQuotes(t, f.store, domain.Quote{ID: "q1", Content: "c", ImageURL: "https://img.example/q1.png"})
	dims := domain.Dimensions{Width: 800, Height: 480}
	data := pngBytes(t)

	f.cache.EXPECT().Processed("q1", dims).Return(nil, false)
	f.cache.EXPECT().Raw("q1").Return([]byte("truncated"), true)
	f.cache.EXPECT().Evict("q1").Return(nil)
	f.images.EXPECT().Fetch(mock.Anything, "https://img.example/q1.png").Return(data, nil)
	f.cache.EXPECT().StoreRaw("q1", data).Return(nil)
	f.renderer.EXPECT().Render(mock.Anything, hasBackground(true), dims).Return([]byte("card"), nil)
	f.cache.EXPECT().StoreProcessed("q1", dims, []byte("card")).Return(nil)

	card, err := svc.Serve(context.Background(), ImageRequest{Client: "a"})
	require.NoError(t, err)
	assert.Equal(t, telemetry.RenderDrawn, card.Outcome)
}

func TestQuoteService_Serve_RejectsRenderOverPixelBudget(t *testing.T) {
	s := newTestStore(t)
	seedQuotes(t, s, domain.Quote{ID: "q1", Content: "c"})

	svc := NewQuoteService(QuoteServiceConfig{
		Quotes:      s,
		Clients:     s,
		Images:      mocks.NewMockImageSource(t),
		Renderer:    mocks.NewMockCardRenderer(t),
		PixelBudget: 800 * 480,
		Logger:      discardLogger(),
	})

	_, err := svc.Serve(context.Background(), ImageRequest{Client: "a", Width: 8192, Height: 8192})
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
}

func TestQuoteService_Serve_PixelBudgetBoundsConcurrentRenders(t *testing.T) {
	s := newTestStore(t)
	seedQuotes(t, s, domain.Quote{ID: "q1", Content: "c"})

	catalog := mocks.NewMockCatalogSource(t)
	catalog.EXPECT().FetchImage(mock.Anything, "q1").Return(nil, nil)

	var active, peak atomic.Int32

	renderer := mocks.NewMockCardRenderer(t)
	renderer.EXPECT().Render(mock.Anything, mock.Anything, mock.Anything).
		RunAndReturn(func(context.Context, ports.Card, domain.Dimensions) ([]byte, error) {
			n := active.Add(1)
			defer active.Add(-1)

			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}

			time.Sleep(20 * time.Millisecond)

			return []byte("card"), nil
		})

	svc := NewQuoteService(QuoteServiceConfig{
		Quotes:      s,
		Clients:     s,
		Catalog:     catalog,
		Images:      mocks.NewMockImageSource(t),
		Renderer:    renderer,
		PixelBudget: 800 * 480,
		Logger:      discardLogger(),
	})

	// Different sizes so the renders are not shared.
	requests := []ImageRequest{
		{Client: "landscape", Width: 800, Height: 480},
		{Client: "portrait", Width: 480, Height: 800},
		{Client: "small", Width: 400, Height: 240},
	}

	var wg sync.WaitGroup

	for _, req := range requests {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := svc.Serve(context.Background(), req)
			assert.NoError(t, err)
		}()
	}

	wg.Wait()

	assert.Equal(t, int32(1), peak.Load(), "renders whose areas sum past the budget never overlap")
}
