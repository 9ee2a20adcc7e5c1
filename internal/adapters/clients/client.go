// Package clients holds the outbound HTTP plumbing shared by the Notion and
// image adapters: a retrying client, its circuit breaker and the rate gate.
package clients

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/ditto-display/ditto/internal/adapters/http/middleware"
	"github.com/ditto-display/ditto/internal/domain"
	"github.com/ditto-display/ditto/internal/platform/config"
	"github.com/ditto-display/ditto/internal/platform/logging"
)

// ErrMaxRetriesExceeded wraps the last failure once every attempt is spent.
var ErrMaxRetriesExceeded = errors.New("max retries exceeded")

const (
	instrumentationName = "github.com/ditto-display/ditto/internal/adapters/clients"

	defaultTimeout             = 30 * time.Second
	defaultRateLimitRetries    = 5
	defaultRateLimitBackoff    = time.Second
	defaultBackoffJitterFactor = 0.25
)

// Config configures a Client.
type Config struct {
	// BaseURL prefixes every relative path.
	BaseURL string

	// ServiceName names the upstream in logs, spans and metrics.
	ServiceName string

	// Timeout bounds a single attempt.
	Timeout time.Duration

	Retry     config.RetryConfig
	Circuit   config.CircuitBreakerConfig
	Transport config.TransportConfig

	// Gate is shared by every client that talks to the same upstream. A 429
	// seen by one of them pauses all of them. Nil gets a private gate.
	Gate *RateGate

	// Limiter paces outgoing attempts. Nil means unpaced.
	Limiter *rate.Limiter

	// RateLimitRetries is how many 429 responses are waited out before the
	// call fails with a RateLimitedError.
	RateLimitRetries int

	// RateLimitBackoff is the first pause when a 429 carries no Retry-After.
	// It doubles on each further 429 of the same call.
	RateLimitBackoff time.Duration

	// AuthFunc decorates each attempt.
	AuthFunc func(*http.Request)

	Logger *slog.Logger
}

// Client is an instrumented HTTP client for one upstream. Transport errors
// and 5xx responses are retried with jittered exponential backoff behind a
// circuit breaker; 429 responses close the shared RateGate instead.
type Client struct {
	http        *http.Client
	baseURL     string
	serviceName string
	cfg         Config
	logger      *slog.Logger
	breaker     *Breaker
	gate        *RateGate

	tracer trace.Tracer

	requestDuration metric.Float64Histogram
	requestTotal    metric.Int64Counter
	rateLimited     metric.Int64Counter
}

// New creates a Client.
func New(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}

	if cfg.ServiceName == "" {
		return nil, errors.New("service name is required")
	}

	c := *cfg
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}

	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = 1
	}

	if c.RateLimitRetries <= 0 {
		c.RateLimitRetries = defaultRateLimitRetries
	}

	if c.RateLimitBackoff <= 0 {
		c.RateLimitBackoff = defaultRateLimitBackoff
	}

	if c.Gate == nil {
		c.Gate = NewRateGate()
	}

	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	logger = logger.With(
		slog.String("component", "clients.Client"),
		slog.String("upstream", c.ServiceName),
	)

	breaker := NewBreaker(c.Circuit)
	breaker.OnStateChange(func(from, to State) {
		logger.Warn("circuit breaker state changed",
			slog.String("from", from.String()),
			slog.String("to", to.String()),
		)
	})

	meter := otel.Meter(instrumentationName)

	requestDuration, err := meter.Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("Duration of upstream HTTP requests"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating duration metric: %w", err)
	}

	requestTotal, err := meter.Int64Counter(
		"http.client.request.total",
		metric.WithDescription("Total number of upstream HTTP requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating request counter: %w", err)
	}

	rateLimited, err := meter.Int64Counter(
		"http.client.rate_limited.total",
		metric.WithDescription("Upstream 429 responses"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating rate limit counter: %w", err)
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        c.Transport.MaxIdleConns,
		MaxIdleConnsPerHost: c.Transport.MaxIdleConnsPerHost,
		IdleConnTimeout:     c.Transport.IdleConnTimeout,
	}

	return &Client{
		http:            &http.Client{Timeout: c.Timeout, Transport: transport},
		baseURL:         strings.TrimSuffix(c.BaseURL, "/"),
		serviceName:     c.ServiceName,
		cfg:             c,
		logger:          logger,
		breaker:         breaker,
		gate:            c.Gate,
		tracer:          otel.Tracer(instrumentationName),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		rateLimited:     rateLimited,
	}, nil
}

// Do sends req. Requests with a body are only retried when req.GetBody is
// set, which http.NewRequest does for the usual in-memory readers.
//
// The returned response may carry any status below 500 other than 429;
// interpreting it is the caller's job.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	start := time.Now()
	logger := logging.FromContext(ctx).With(
		slog.String("upstream", c.serviceName),
		slog.String("method", req.Method),
		slog.String("path", req.URL.Path),
	)

	if err := c.breaker.Acquire(); err != nil {
		c.recordMetrics(ctx, req.Method, 0, time.Since(start), "circuit_open")
		logger.WarnContext(ctx, "request blocked by circuit breaker")

		return nil, err
	}

	c.injectHeaders(ctx, req)

	ctx, span := c.tracer.Start(ctx, fmt.Sprintf("HTTP %s %s", req.Method, c.serviceName),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", req.Method),
			attribute.String("http.url", req.URL.String()),
			attribute.String("peer.service", c.serviceName),
		),
	)
	defer span.End()

	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.send(ctx, req, logger)

	return c.finish(ctx, req, resp, err, span, logger, start)
}

// send runs the attempt loop. 429 responses are counted separately from
// failed attempts.
func (c *Client) send(ctx context.Context, req *http.Request, logger *slog.Logger) (*http.Response, error) {
	var (
		lastErr    error
		limited    int
		rlBackoff  = c.cfg.RateLimitBackoff
		attempt    int
		needRewind bool
	)

	for attempt < c.cfg.Retry.MaxAttempts {
		if err := c.gate.Wait(ctx); err != nil {
			return nil, err
		}

		if c.cfg.Limiter != nil {
			if err := c.cfg.Limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		if needRewind {
			if err := rewind(req); err != nil {
				return nil, err
			}
		}

		needRewind = true

		if c.cfg.AuthFunc != nil {
			c.cfg.AuthFunc(req)
		}

		logger.Log(ctx, logging.LevelTrace, "upstream attempt",
			slog.Int("attempt", attempt+1),
			slog.Int("rate_limited", limited),
		)

		resp, err := c.http.Do(req.WithContext(ctx))

		if err == nil && resp.StatusCode == http.StatusTooManyRequests {
			wait := retryAfter(resp, rlBackoff, time.Now())
			drain(resp, logger)

			limited++
			c.rateLimited.Add(ctx, 1, metric.WithAttributes(attribute.String("peer.service", c.serviceName)))

			if limited > c.cfg.RateLimitRetries {
				return nil, domain.NewRateLimitedError(c.serviceName, limited, wait)
			}

			logger.WarnContext(ctx, "upstream rate limit, pausing all callers",
				slog.Duration("retry_after", wait),
				slog.Int("rate_limited", limited),
			)

			c.gate.Pause(wait)
			rlBackoff *= 2

			continue
		}

		retry, err := c.classify(resp, err, attempt, logger)
		if !retry {
			if err != nil {
				return nil, err
			}

			return resp, nil
		}

		lastErr = err
		attempt++

		if attempt < c.cfg.Retry.MaxAttempts {
			if err := c.sleep(ctx, c.backoff(attempt)); err != nil {
				return nil, err
			}
		}
	}

	return nil, fmt.Errorf("%w: %w", ErrMaxRetriesExceeded, lastErr)
}

// classify reports whether an attempt should be retried.
func (c *Client) classify(resp *http.Response, err error, attempt int, logger *slog.Logger) (bool, error) {
	if err != nil {
		if isRetryableError(err) {
			logger.Debug("request failed with retryable error",
				slog.Int("attempt", attempt+1),
				slog.Any("error", err),
			)

			return true, err
		}

		return false, err
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		logger.Debug("request failed with server error",
			slog.Int("attempt", attempt+1),
			slog.Int("status", resp.StatusCode),
		)
		drain(resp, logger)

		return true, fmt.Errorf("server error: %d", resp.StatusCode)
	}

	return false, nil
}

func (c *Client) finish(
	ctx context.Context, req *http.Request, resp *http.Response, err error,
	span trace.Span, logger *slog.Logger, start time.Time,
) (*http.Response, error) {
	elapsed := time.Since(start)

	if err != nil {
		span.SetStatus(codes.Error, err.Error())

		switch {
		case domain.IsRateLimited(err):
			// The upstream answered; it is throttling, not failing.
			c.breaker.Success()
			c.recordMetrics(ctx, req.Method, http.StatusTooManyRequests, elapsed, "rate_limited")
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			c.breaker.Failure()
			c.recordMetrics(ctx, req.Method, 0, elapsed, "context_canceled")
		default:
			c.breaker.Failure()
			c.recordMetrics(ctx, req.Method, 0, elapsed, "error")
		}

		logger.ErrorContext(ctx, "request failed",
			slog.Duration("duration", elapsed),
			slog.Any("error", err),
		)

		return nil, err
	}

	c.breaker.Success()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode >= http.StatusBadRequest {
		span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", resp.StatusCode))
	}

	c.recordMetrics(ctx, req.Method, resp.StatusCode, elapsed, fmt.Sprintf("%dxx", resp.StatusCode/100))

	logger.DebugContext(ctx, "request completed",
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", elapsed),
	)

	return resp, nil
}

// Get performs a GET against a path relative to BaseURL, or an absolute URL.
func (c *Client) Get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.buildURL(path), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	return c.Do(ctx, req)
}

// Post performs a JSON POST.
func (c *Client) Post(ctx context.Context, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.buildURL(path), body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	return c.Do(ctx, req)
}

// CircuitState returns the breaker position.
func (c *Client) CircuitState() State {
	return c.breaker.State()
}

// Gate returns the rate gate the client waits on.
func (c *Client) Gate() *RateGate {
	return c.gate
}

// ServiceName returns the upstream name.
func (c *Client) ServiceName() string {
	return c.serviceName
}

func (c *Client) injectHeaders(ctx context.Context, req *http.Request) {
	if requestID := middleware.RequestIDFromContext(ctx); requestID != "" {
		req.Header.Set(middleware.HeaderRequestID, requestID)
	}

	if correlationID := middleware.CorrelationIDFromContext(ctx); correlationID != "" {
		req.Header.Set(middleware.HeaderCorrelationID, correlationID)
	}
}

func (c *Client) buildURL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}

	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	return c.baseURL + path
}

// backoff is initial * multiplier^(attempt-1), capped, with jitter.
func (c *Client) backoff(attempt int) time.Duration {
	r := c.cfg.Retry
	d := float64(r.InitialInterval) * math.Pow(max(r.Multiplier, 1), float64(attempt-1))

	if r.MaxInterval > 0 {
		d = math.Min(d, float64(r.MaxInterval))
	}

	jitter := r.JitterFactor
	if jitter <= 0 {
		jitter = defaultBackoffJitterFactor
	}

	d += d * jitter * (rand.Float64()*2 - 1) //nolint:gosec // jitter only

	return time.Duration(d)
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) recordMetrics(ctx context.Context, method string, status int, d time.Duration, result string) {
	attrs := []attribute.KeyValue{
		attribute.String("http.method", method),
		attribute.String("peer.service", c.serviceName),
		attribute.String("result", result),
	}

	if status > 0 {
		attrs = append(attrs, attribute.Int("http.status_code", status))
	}

	c.requestDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attrs...))
	c.requestTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// retryAfter reads Retry-After as delta seconds or an HTTP date, falling
// back to def.
func retryAfter(resp *http.Response, def time.Duration, now time.Time) time.Duration {
	v := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if v == "" {
		return def
	}

	if secs, err := strconv.ParseFloat(v, 64); err == nil && secs >= 0 {
		return time.Duration(secs * float64(time.Second))
	}

	if at, err := http.ParseTime(v); err == nil {
		return max(at.Sub(now), 0)
	}

	return def
}

func rewind(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody {
		return nil
	}

	if req.GetBody == nil {
		return errors.New("request body cannot be replayed")
	}

	body, err := req.GetBody()
	if err != nil {
		return fmt.Errorf("rewinding request body: %w", err)
	}

	req.Body = body

	return nil
}

func drain(resp *http.Response, logger *slog.Logger) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if err := resp.Body.Close(); err != nil {
		logger.Debug("failed to close response body", slog.Any("error", err))
	}
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError

	return errors.As(err, &opErr)
}
