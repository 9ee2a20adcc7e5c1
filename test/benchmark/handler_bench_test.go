package benchmark

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	httpadapter "github.com/ditto-display/ditto/internal/adapters/http"
	"github.com/ditto-display/ditto/internal/adapters/http/handlers"
	"github.com/ditto-display/ditto/internal/adapters/store"
	"github.com/ditto-display/ditto/internal/app"
	"github.com/ditto-display/ditto/internal/compositor"
	"github.com/ditto-display/ditto/internal/domain"
	"github.com/ditto-display/ditto/internal/layout"
	"github.com/ditto-display/ditto/internal/platform/database"
	"github.com/ditto-display/ditto/internal/platform/telemetry"
	"github.com/ditto-display/ditto/internal/ports"
)

func init() {
	// Set Gin to release mode for accurate benchmarks
	gin.SetMode(gin.ReleaseMode)
}

var benchDims = domain.Dimensions{Width: 480, Height: 300}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// createGinContext creates a Gin context for handler testing.
func createGinContext(w http.ResponseWriter, r *http.Request) *gin.Context {
	c, _ := gin.CreateTestContext(w)
	c.Request = r

	return c
}

// noImages fails every download; benchmark quotes carry no image URL.
type noImages struct{}

func (noImages) Fetch(context.Context, string) ([]byte, error) {
	return nil, errors.New("no images in benchmarks")
}

type server struct {
	engine *gin.Engine
	store  *store.Store
	health *ports.DefaultHealthRegistry
}

// setupServer wires an in-memory catalog of n quotes behind the router.
// Backgrounds are the fallback gradient, so nothing leaves the process.
func setupServer(b *testing.B, n int, cached bool) *server {
	b.Helper()

	ctx := context.Background()
	logger := discardLogger()

	st, err := store.New(ctx, database.OpenMemory(b))
	if err != nil {
		b.Fatal(err)
	}

	quotes := make([]domain.Quote, n)
	for i := range quotes {
		quotes[i] = domain.Quote{
			ID:      fmt.Sprintf("q%03d", i),
			Content: "The best way to predict the future is to invent it, one small step at a time.",
			Author:  "Someone",
		}
	}

	if _, err := st.ApplyCatalog(ctx, quotes); err != nil {
		b.Fatal(err)
	}

	metrics, err := telemetry.NewMetrics(prometheus.NewRegistry())
	if err != nil {
		b.Fatal(err)
	}

	renderer, err := compositor.New(compositor.Config{
		Fonts:   layout.DefaultFontSet(),
		Options: compositor.DefaultOptions(),
		Logger:  logger,
	})
	if err != nil {
		b.Fatal(err)
	}

	var cache *compositor.DiskCache
	if cached {
		cache, err = compositor.NewDiskCache(b.TempDir(), true)
		if err != nil {
			b.Fatal(err)
		}
	}

	svc := app.NewQuoteService(app.QuoteServiceConfig{
		Quotes:   st,
		Clients:  st,
		Images:   noImages{},
		Renderer: renderer,
		Cache:    cache,
		Defaults: benchDims,
		Metrics:  metrics,
		Logger:   logger,
	})

	health := ports.NewHealthRegistry()
	if err := health.Register(st); err != nil {
		b.Fatal(err)
	}

	engine := gin.New()
	httpadapter.SetupRouter(engine, httpadapter.RouterConfig{
		Logger:      logger,
		ServiceName: "ditto-bench",
		Health:      handlers.NewHealthHandler(health, handlers.NewBuildInfo("1.0.0", "abc123", "2026-01-01T00:00:00Z")),
		Images:      handlers.NewImageHandler(svc),
		Clients: handlers.NewClientHandler(app.NewClientService(app.ClientServiceConfig{
			Clients:  st,
			Quotes:   st,
			Defaults: benchDims,
			Metrics:  metrics,
			Logger:   logger,
		})),
		Status: handlers.NewStatusHandler(app.NewStatusService(app.StatusServiceConfig{
			Quotes: st,
			Health: health,
			Logger: logger,
		})),
	})

	return &server{engine: engine, store: st, health: health}
}

func (s *server) get(b *testing.B, path string) {
	b.Helper()

	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, http.NoBody))

	if w.Code != http.StatusOK {
		b.Fatalf("GET %s: status %d: %s", path, w.Code, w.Body.String())
	}
}

// BenchmarkLivenessHandler measures the performance of the liveness endpoint.
// This is a critical path for Kubernetes probes and should be extremely fast.
func BenchmarkLivenessHandler(b *testing.B) {
	handler := handlers.NewHealthHandler(ports.NewHealthRegistry(), handlers.NewBuildInfo("1.0.0", "abc123", "2026-01-01T00:00:00Z"))
	req := httptest.NewRequest(http.MethodGet, "/-/live", http.NoBody)

	b.ReportAllocs()

	for b.Loop() {
		w := httptest.NewRecorder()
		handler.Liveness(createGinContext(w, req))
	}
}

// BenchmarkReadinessHandler_Store measures readiness with the SQLite check.
func BenchmarkReadinessHandler_Store(b *testing.B) {
	s := setupServer(b, 1, false)
	handler := handlers.NewHealthHandler(s.health, handlers.NewBuildInfo("1.0.0", "abc123", "2026-01-01T00:00:00Z"))
	req := httptest.NewRequest(http.MethodGet, "/-/ready", http.NoBody)

	b.ReportAllocs()

	for b.Loop() {
		w := httptest.NewRecorder()
		handler.Readiness(createGinContext(w, req))
	}
}

// BenchmarkNavigate measures one deck step without rendering.
func BenchmarkNavigate(b *testing.B) {
	s := setupServer(b, 200, false)
	ctx := context.Background()

	b.ReportAllocs()

	for b.Loop() {
		if _, _, err := s.store.Navigate(ctx, "kitchen", domain.DirectionForward, benchDims); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkServeCard_Cached measures the full request path when every card
// is already in the processed cache.
func BenchmarkServeCard_Cached(b *testing.B) {
	s := setupServer(b, 4, true)

	// Warm one full pass of the deck.
	for range 4 {
		s.get(b, "/next?client_override=kitchen")
	}

	b.ReportAllocs()

	for b.Loop() {
		s.get(b, "/next?client_override=kitchen")
	}
}

// BenchmarkServeCard_Render measures drawing a card on every request.
func BenchmarkServeCard_Render(b *testing.B) {
	s := setupServer(b, 4, false)

	b.ReportAllocs()

	for b.Loop() {
		s.get(b, "/next?client_override=kitchen")
	}
}

// BenchmarkFitMultilineBox measures the font size search for a long quote.
func BenchmarkFitMultilineBox(b *testing.B) {
	font := layout.MustEmbedded("gobolditalic")
	text := "Simplicity is prerequisite for reliability. It is the ultimate sophistication, " +
		"and anyone who has ever tried to explain a complicated system knows how rare it is."
	opts := layout.DefaultBoxOptions()

	b.ReportAllocs()

	for b.Loop() {
		layout.FitMultilineBox(text, font, 400, 200, opts)
	}
}

// BenchmarkMiddlewareChain measures the overhead of the middleware chain.
func BenchmarkMiddlewareChain(b *testing.B) {
	s := setupServer(b, 1, false)

	b.ReportAllocs()

	for b.Loop() {
		s.get(b, "/health")
	}
}
