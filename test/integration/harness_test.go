//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/ditto-display/ditto/internal/adapters/clients"
	"github.com/ditto-display/ditto/internal/adapters/clients/imagefetch"
	"github.com/ditto-display/ditto/internal/adapters/clients/notion"
	httpadapter "github.com/ditto-display/ditto/internal/adapters/http"
	"github.com/ditto-display/ditto/internal/adapters/http/handlers"
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

const (
	testDatabaseID = "db-quotes"
	testToken      = "secret_integration"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// notionPage is one row of the fake database.
type notionPage struct {
	ID     string
	Quote  string
	Title  string
	Author string
	Hidden bool

	// ImageURL is served as an uploaded file when Expiry is set and as an
	// external link otherwise. Empty means the page has no image block.
	ImageURL string
	Expiry   *time.Time
}

func (p notionPage) wire() map[string]any {
	text := func(s string) []map[string]string {
		if s == "" {
			return []map[string]string{}
		}

		return []map[string]string{{"plain_text": s}}
	}

	return map[string]any{
		"object":   "page",
		"id":       p.ID,
		"archived": false,
		"in_trash": false,
		"properties": map[string]any{
			notion.PropContent: map[string]any{"type": "title", "title": text(p.Quote)},
			notion.PropTitle:   map[string]any{"type": "rich_text", "rich_text": text(p.Title)},
			notion.PropAuthor:  map[string]any{"type": "rich_text", "rich_text": text(p.Author)},
			notion.PropDisplay: map[string]any{"type": "checkbox", "checkbox": !p.Hidden},
		},
	}
}

func (p notionPage) imageBlocks() []map[string]any {
	if p.ImageURL == "" {
		return []map[string]any{{"object": "block", "id": p.ID + "-p", "type": "paragraph"}}
	}

	img := map[string]any{"type": "external", "external": map[string]any{"url": p.ImageURL}}
	if p.Expiry != nil {
		img = map[string]any{"type": "file", "file": map[string]any{"url": p.ImageURL, "expiry_time": p.Expiry}}
	}

	return []map[string]any{{"object": "block", "id": p.ID + "-img", "type": "image", "image": img}}
}

// fakeNotion serves a mutable database over the subset of the Notion API
// the catalog adapter calls.
type fakeNotion struct {
	server   *httptest.Server
	pageSize int

	mu       sync.Mutex
	pages    []notionPage
	throttle int
	failing  bool

	queries   atomic.Int32
	lookups   atomic.Int32
	throttled atomic.Int32
}

func newFakeNotion(t testing.TB) *fakeNotion {
	t.Helper()

	f := &fakeNotion{pageSize: 2}
	f.server = httptest.NewServer(f)
	t.Cleanup(f.server.Close)

	return f
}

func (f *fakeNotion) setPages(pages ...notionPage) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.pages = append([]notionPage(nil), pages...)
}

func (f *fakeNotion) dropPage(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	kept := f.pages[:0]
	for _, p := range f.pages {
		if p.ID != id {
			kept = append(kept, p)
		}
	}

	f.pages = kept
}

// throttleNext answers the next n requests with 429.
func (f *fakeNotion) throttleNext(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.throttle = n
}

func (f *fakeNotion) setFailing(failing bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.failing = failing
}

func (f *fakeNotion) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer "+testToken {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"object": "error", "code": "unauthorized"})
		return
	}

	f.mu.Lock()
	throttled := f.throttle > 0
	if throttled {
		f.throttle--
	}
	failing := f.failing
	pages := append([]notionPage(nil), f.pages...)
	f.mu.Unlock()

	if throttled {
		f.throttled.Add(1)
		w.Header().Set("Retry-After", "0.01")
		writeJSON(w, http.StatusTooManyRequests, map[string]any{"object": "error", "code": "rate_limited"})

		return
	}

	if failing {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"object": "error", "code": "internal_server_error"})
		return
	}

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/v1/databases/"+testDatabaseID+"/query":
		f.queries.Add(1)
		f.query(w, r, pages)

	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/v1/blocks/"):
		f.lookups.Add(1)

		id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v1/blocks/"), "/children")
		for _, p := range pages {
			if p.ID == id {
				writeJSON(w, http.StatusOK, map[string]any{"object": "list", "results": p.imageBlocks(), "has_more": false})
				return
			}
		}

		writeJSON(w, http.StatusNotFound, map[string]any{"object": "error", "code": "object_not_found"})

	case r.Method == http.MethodGet && r.URL.Path == "/v1/users/me":
		writeJSON(w, http.StatusOK, map[string]any{"object": "user", "type": "bot"})

	default:
		writeJSON(w, http.StatusNotFound, map[string]any{"object": "error", "code": "invalid_request_url"})
	}
}

func (f *fakeNotion) query(w http.ResponseWriter, r *http.Request, pages []notionPage) {
	var req struct {
		StartCursor string `json:"start_cursor"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"object": "error", "code": "invalid_json"})
		return
	}

	start := 0
	if req.StartCursor != "" {
		start, _ = strconv.Atoi(req.StartCursor)
	}

	end := min(start+f.pageSize, len(pages))
	start = min(start, end)

	results := make([]map[string]any, 0, end-start)
	for _, p := range pages[start:end] {
		results = append(results, p.wire())
	}

	var next any
	if end < len(pages) {
		next = strconv.Itoa(end)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"object":      "list",
		"results":     results,
		"has_more":    next != nil,
		"next_cursor": next,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// imageHost serves a JPEG under /img/ and fails every other path.
type imageHost struct {
	server *httptest.Server
	jpeg   []byte
	hits   atomic.Int32
}

func newImageHost(t testing.TB) *imageHost {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 96, 64))
	for y := range 64 {
		for x := range 96 {
			img.Set(x, y, color.RGBA{R: uint8(x * 2), G: 90, B: uint8(y * 3), A: 255})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))

	h := &imageHost{jpeg: buf.Bytes()}
	h.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.hits.Add(1)

		if !strings.HasPrefix(r.URL.Path, "/img/") {
			http.Error(w, "gone", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(h.jpeg)
	}))
	t.Cleanup(h.server.Close)

	return h
}

// URL returns an image URL on the host; broken URLs answer 500.
func (h *imageHost) URL(name string) string {
	return h.server.URL + "/img/" + name + ".jpg"
}

func (h *imageHost) BrokenURL(name string) string {
	return h.server.URL + "/broken/" + name + ".jpg"
}

// harness is a complete ditto instance wired the way the serve command
// wires it, against fake upstreams.
type harness struct {
	notion *fakeNotion
	images *imageHost

	store   *store.Store
	cache   *compositor.DiskCache
	health  *ports.DefaultHealthRegistry
	sync    *app.SyncService
	quotes  *app.QuoteService
	clients *app.ClientService
	status  *app.StatusService

	server *httptest.Server
}

var testDefaults = domain.Dimensions{Width: 320, Height: 200}

var (
	testRetry = config.RetryConfig{
		MaxAttempts:     2,
		InitialInterval: 5 * time.Millisecond,
		MaxInterval:     20 * time.Millisecond,
		Multiplier:      2.0,
	}

	testCircuit = config.CircuitBreakerConfig{
		MaxFailures:   5,
		Timeout:       100 * time.Millisecond,
		HalfOpenLimit: 1,
	}
)

func newHarness(t testing.TB) *harness {
	t.Helper()

	ctx := context.Background()
	dir := t.TempDir()
	logger := discardLogger()

	reg := prometheus.NewRegistry()
	metrics, err := telemetry.NewMetrics(reg)
	require.NoError(t, err)

	db, err := database.Open(ctx, filepath.Join(dir, "ditto.db"), database.WithMkdirAll())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	st, err := store.New(ctx, db)
	require.NoError(t, err)

	h := &harness{
		notion: newFakeNotion(t),
		images: newImageHost(t),
		store:  st,
		health: ports.NewHealthRegistry(),
	}

	gate := clients.NewRateGate()
	gate.OnPause(metrics.ObservePause)

	notionClient, err := clients.New(&clients.Config{
		BaseURL:          h.notion.server.URL,
		ServiceName:      notion.ServiceName,
		Timeout:          5 * time.Second,
		Retry:            testRetry,
		Circuit:          testCircuit,
		Gate:             gate,
		RateLimitRetries: 5,
		RateLimitBackoff: 10 * time.Millisecond,
		AuthFunc:         notion.AuthFunc(testToken, ""),
		Logger:           logger,
	})
	require.NoError(t, err)

	catalog := notion.New(notionClient, notion.Config{ImageConcurrency: 2, Logger: logger})

	imageClient, err := clients.New(&clients.Config{
		ServiceName: imagefetch.ServiceName,
		Timeout:     5 * time.Second,
		Retry:       testRetry,
		Circuit:     testCircuit,
		Logger:      logger,
	})
	require.NoError(t, err)

	opts := compositor.DefaultOptions()
	opts.BlurSize = 5
	opts.BlurSigma = 1.5

	renderer, err := compositor.New(compositor.Config{
		Fonts:   layout.DefaultFontSet(),
		Options: opts,
		Logger:  logger,
	})
	require.NoError(t, err)

	h.cache, err = compositor.NewDiskCache(filepath.Join(dir, "cache"), true)
	require.NoError(t, err)

	require.NoError(t, h.health.Register(st))
	require.NoError(t, h.health.Register(catalog))

	connections := app.NewConnectionLog(10)

	h.sync = app.NewSyncService(app.SyncServiceConfig{
		Catalog:  catalog,
		Quotes:   st,
		SourceID: testDatabaseID,
		Metrics:  metrics,
		Logger:   logger,
	})

	h.quotes = app.NewQuoteService(app.QuoteServiceConfig{
		Quotes:        st,
		Clients:       st,
		Images:        imagefetch.New(imageClient, 0),
		Renderer:      renderer,
		Catalog:       catalog,
		Cache:         h.cache,
		Defaults:      testDefaults,
		RenderTimeout: 10 * time.Second,
		Metrics:       metrics,
		Connections:   connections,
		Logger:        logger,
	})

	h.clients = app.NewClientService(app.ClientServiceConfig{
		Clients:  st,
		Quotes:   st,
		Defaults: testDefaults,
		Metrics:  metrics,
		Logger:   logger,
	})

	h.status = app.NewStatusService(app.StatusServiceConfig{
		Quotes:      st,
		Health:      h.health,
		Sync:        h.sync,
		Connections: connections,
		Info:        app.StatusInfo{Name: "ditto", Version: "test", Environment: "test", DatabasePath: "ditto.db"},
		Logger:      logger,
	})

	gin.SetMode(gin.TestMode)

	engine := gin.New()
	httpadapter.SetupRouter(engine, httpadapter.RouterConfig{
		Logger:      logger,
		ServiceName: "ditto",
		Health: handlers.NewHealthHandler(h.health, handlers.NewBuildInfo("test", "abc123", "2026-01-01T00:00:00Z")).
			WithGatherer(reg),
		Images:  handlers.NewImageHandler(h.quotes),
		Clients: handlers.NewClientHandler(h.clients),
		Status:  handlers.NewStatusHandler(h.status),
		Timeout: 20 * time.Second,
	})

	h.server = httptest.NewServer(engine)
	t.Cleanup(h.server.Close)

	return h
}

// seed replaces the fake database and syncs it into the store.
func (h *harness) seed(t testing.TB, pages ...notionPage) domain.SyncResult {
	t.Helper()

	h.notion.setPages(pages...)

	result, err := h.sync.Run(context.Background())
	require.NoError(t, err)

	return result
}
