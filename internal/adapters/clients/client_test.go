package clients

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/ditto-display/ditto/internal/adapters/http/middleware"
	"github.com/ditto-display/ditto/internal/domain"
	"github.com/ditto-display/ditto/internal/platform/config"
)

func defaultConfig() *Config {
	return &Config{
		ServiceName: "notion",
		Timeout:     5 * time.Second,
		Retry: config.RetryConfig{
			MaxAttempts:     3,
			InitialInterval: 10 * time.Millisecond,
			MaxInterval:     100 * time.Millisecond,
			Multiplier:      2.0,
		},
		Circuit: config.CircuitBreakerConfig{
			MaxFailures:   5,
			Timeout:       time.Second,
			HalfOpenLimit: 2,
		},
		RateLimitBackoff: 5 * time.Millisecond,
	}
}

func closeBody(t *testing.T, resp *http.Response) {
	t.Helper()

	if err := resp.Body.Close(); err != nil {
		t.Errorf("failed to close response body: %v", err)
	}
}

func newTestClient(t *testing.T, h http.HandlerFunc, mutate func(*Config)) *Client {
	t.Helper()

	server := httptest.NewServer(h)
	t.Cleanup(server.Close)

	cfg := defaultConfig()
	cfg.BaseURL = server.URL

	if mutate != nil {
		mutate(cfg)
	}

	client, err := New(cfg)
	require.NoError(t, err)

	return client
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil)
	assert.ErrorContains(t, err, "config is required")

	cfg := defaultConfig()
	cfg.ServiceName = ""

	_, err = New(cfg)
	assert.ErrorContains(t, err, "service name is required")
}

func TestNew_Defaults(t *testing.T) {
	cfg := defaultConfig()
	cfg.BaseURL = "https://api.notion.com/"
	cfg.RateLimitRetries = 0
	cfg.Retry.MaxAttempts = 0

	client, err := New(cfg)
	require.NoError(t, err)

	assert.Equal(t, "https://api.notion.com", client.baseURL)
	assert.Equal(t, defaultRateLimitRetries, client.cfg.RateLimitRetries)
	assert.Equal(t, 1, client.cfg.Retry.MaxAttempts)
	assert.NotNil(t, client.Gate())
	assert.Equal(t, "notion", client.ServiceName())
}

func TestClient_HeaderPropagation(t *testing.T) {
	var gotRequestID, gotCorrelationID, gotAuth string

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotRequestID = r.Header.Get(middleware.HeaderRequestID)
		gotCorrelationID = r.Header.Get(middleware.HeaderCorrelationID)
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}, func(c *Config) {
		c.AuthFunc = func(r *http.Request) { r.Header.Set("Authorization", "Bearer secret_abc") }
	})

	ctx := middleware.ContextWithRequestID(context.Background(), "req-1")
	ctx = middleware.ContextWithCorrelationID(ctx, "corr-2")

	resp, err := client.Get(ctx, "/v1/users/me")
	require.NoError(t, err)
	defer closeBody(t, resp)

	assert.Equal(t, "req-1", gotRequestID)
	assert.Equal(t, "corr-2", gotCorrelationID)
	assert.Equal(t, "Bearer secret_abc", gotAuth)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var attempts atomic.Int32

	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}

		w.WriteHeader(http.StatusOK)
	}, nil)

	resp, err := client.Get(context.Background(), "/x")
	require.NoError(t, err)
	defer closeBody(t, resp)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestClient_ClientErrorsPassThrough(t *testing.T) {
	var attempts atomic.Int32

	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}, nil)

	resp, err := client.Get(context.Background(), "/x")
	require.NoError(t, err)
	defer closeBody(t, resp)

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestClient_MaxRetriesExceeded(t *testing.T) {
	var attempts atomic.Int32

	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}, nil)

	_, err := client.Get(context.Background(), "/x")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMaxRetriesExceeded)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestClient_RateLimitRecovers(t *testing.T) {
	var attempts atomic.Int32

	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		if attempts.Add(1) <= 2 {
			w.Header().Set("Retry-After", "0.02")
			w.WriteHeader(http.StatusTooManyRequests)

			return
		}

		w.WriteHeader(http.StatusOK)
	}, func(c *Config) { c.Retry.MaxAttempts = 1 })
	pauses := countPauses(client.Gate())

	start := time.Now()

	resp, err := client.Get(context.Background(), "/x")
	require.NoError(t, err)
	defer closeBody(t, resp)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), attempts.Load(), "429s do not consume retry attempts")
	assert.Equal(t, int32(2), pauses.Load())
	assert.GreaterOrEqual(t, time.Since(start), 35*time.Millisecond)
}

func TestClient_RateLimitExhausted(t *testing.T) {
	var attempts atomic.Int32

	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}, func(c *Config) {
		c.RateLimitRetries = 3
		c.RateLimitBackoff = time.Millisecond
	})
	pauses := countPauses(client.Gate())

	_, err := client.Get(context.Background(), "/x")
	require.Error(t, err)
	assert.True(t, domain.IsRateLimited(err))

	var rl *domain.RateLimitedError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, 4, rl.Attempts)
	assert.Equal(t, "notion", rl.Service)
	assert.Equal(t, 8*time.Millisecond, rl.RetryAfter, "backoff doubles per 429")

	assert.Equal(t, int32(4), attempts.Load())
	assert.Equal(t, int32(3), pauses.Load())
	assert.Equal(t, StateClosed, client.CircuitState(), "throttling is not a breaker failure")
}

func TestClient_SharedGatePausesOtherClients(t *testing.T) {
	gate := NewRateGate()

	throttled := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
	}, func(c *Config) {
		c.Gate = gate
		c.RateLimitRetries = 1
	})

	var hits atomic.Int32

	other := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}, func(c *Config) { c.Gate = gate })

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	go func() { _, _ = throttled.Get(ctx, "/x") }()

	require.Eventually(t, func() bool { return gate.Remaining() > 0 }, time.Second, 5*time.Millisecond)

	short, cancelShort := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancelShort()

	_, err := other.Get(short, "/y")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, hits.Load(), "second client must not reach the upstream while paused")
}

func TestClient_RetryRewindsBody(t *testing.T) {
	var bodies []string

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(b))

		if len(bodies) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}

		w.WriteHeader(http.StatusOK)
	}, nil)

	resp, err := client.Post(context.Background(), "/v1/databases/db/query", strings.NewReader(`{"page_size":100}`))
	require.NoError(t, err)
	defer closeBody(t, resp)

	assert.Equal(t, []string{`{"page_size":100}`, `{"page_size":100}`}, bodies)
}

func TestClient_Limiter(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}, func(c *Config) { c.Limiter = rate.NewLimiter(rate.Every(30*time.Millisecond), 1) })

	start := time.Now()

	for range 3 {
		resp, err := client.Get(context.Background(), "/x")
		require.NoError(t, err)
		closeBody(t, resp)
	}

	assert.GreaterOrEqual(t, time.Since(start), 55*time.Millisecond)
}

func TestClient_CircuitBreaker(t *testing.T) {
	var calls atomic.Int32

	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}, func(c *Config) {
		c.Retry.MaxAttempts = 1
		c.Circuit.MaxFailures = 2
	})

	_, err := client.Get(context.Background(), "/x")
	require.Error(t, err)
	assert.Equal(t, StateClosed, client.CircuitState())

	_, err = client.Get(context.Background(), "/x")
	require.Error(t, err)
	assert.Equal(t, StateOpen, client.CircuitState())

	before := calls.Load()

	_, err = client.Get(context.Background(), "/x")
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, before, calls.Load())
}

func TestClient_ContextCancellation(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := client.Get(ctx, "/x")
	require.Error(t, err)
}

func TestClient_BuildURL(t *testing.T) {
	cfg := defaultConfig()
	cfg.BaseURL = "https://api.notion.com"

	client, err := New(cfg)
	require.NoError(t, err)

	assert.Equal(t, "https://api.notion.com/v1/pages", client.buildURL("/v1/pages"))
	assert.Equal(t, "https://api.notion.com/v1/pages", client.buildURL("v1/pages"))
	assert.Equal(t, "https://s3.example.com/a.png", client.buildURL("https://s3.example.com/a.png"))
}

func TestClient_Backoff(t *testing.T) {
	cfg := defaultConfig()
	cfg.Retry.InitialInterval = 100 * time.Millisecond
	cfg.Retry.MaxInterval = time.Second

	client, err := New(cfg)
	require.NoError(t, err)

	assert.InDelta(t, 100*time.Millisecond, client.backoff(1), float64(30*time.Millisecond))
	assert.InDelta(t, 200*time.Millisecond, client.backoff(2), float64(55*time.Millisecond))
	assert.LessOrEqual(t, client.backoff(20), time.Second+time.Second/4)
}

func TestRetryAfter(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name   string
		header string
		want   time.Duration
	}{
		{name: "missing uses default", header: "", want: 7 * time.Second},
		{name: "seconds", header: "3", want: 3 * time.Second},
		{name: "fractional seconds", header: "0.5", want: 500 * time.Millisecond},
		{name: "http date", header: now.Add(4 * time.Second).Format(http.TimeFormat), want: 4 * time.Second},
		{name: "date in the past", header: now.Add(-time.Minute).Format(http.TimeFormat), want: 0},
		{name: "garbage uses default", header: "soon", want: 7 * time.Second},
		{name: "negative uses default", header: "-2", want: 7 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{Header: http.Header{}}
			if tt.header != "" {
				resp.Header.Set("Retry-After", tt.header)
			}

			assert.Equal(t, tt.want, retryAfter(resp, 7*time.Second, now))
		})
	}
}

type testNetError struct {
	timeout bool
}

func (e testNetError) Error() string   { return "test net error" }
func (e testNetError) Timeout() bool   { return e.timeout }
func (e testNetError) Temporary() bool { return true }

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"nil", nil, false},
		{"context canceled", context.Canceled, false},
		{"deadline exceeded", context.DeadlineExceeded, false},
		{"net timeout", testNetError{timeout: true}, true},
		{"net error without timeout", testNetError{timeout: false}, false},
		{"connection refused", &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, isRetryableError(tt.err))
		})
	}
}
