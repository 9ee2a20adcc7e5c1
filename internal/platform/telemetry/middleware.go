package telemetry

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/ditto-display/ditto/internal/platform/telemetry"

// ProbePrefix marks operational routes that are neither traced nor counted.
const ProbePrefix = "/-/"

// HeaderTraceID carries the trace of a request back to the caller.
const HeaderTraceID = "X-Trace-ID"

// cardSpanAttrs copies card response headers onto the request span, so a
// trace shows which quote a display was sent.
var cardSpanAttrs = map[string]attribute.Key{
	"X-Quote-ID":      "ditto.quote.id",
	"X-Deck-Position": "ditto.deck.position",
}

type httpInstruments struct {
	duration metric.Float64Histogram
	total    metric.Int64Counter
	inFlight metric.Int64UpDownCounter
}

func newHTTPInstruments(meter metric.Meter) (*httpInstruments, error) {
	duration, errDuration := meter.Float64Histogram("http.server.request.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"))
	total, errTotal := meter.Int64Counter("http.server.request.total",
		metric.WithDescription("Total number of HTTP requests"))
	inFlight, errInFlight := meter.Int64UpDownCounter("http.server.active_requests",
		metric.WithDescription("Number of active HTTP requests"))

	if err := errors.Join(errDuration, errTotal, errInFlight); err != nil {
		return nil, err
	}

	return &httpInstruments{duration: duration, total: total, inFlight: inFlight}, nil
}

func (m *httpInstruments) observe(c *gin.Context) {
	if m == nil {
		c.Next()
		return
	}

	ctx := c.Request.Context()
	start := time.Now()

	method := metric.WithAttributes(attribute.String("http.method", c.Request.Method))
	m.inFlight.Add(ctx, 1, method)

	defer m.inFlight.Add(ctx, -1, method)

	c.Next()

	attrs := metric.WithAttributes(
		attribute.String("http.method", c.Request.Method),
		attribute.String("http.route", c.FullPath()),
		attribute.Int("http.status_code", c.Writer.Status()),
	)
	m.duration.Record(ctx, time.Since(start).Seconds(), attrs)
	m.total.Add(ctx, 1, attrs)
}

// Middleware returns otelgin tracing followed by HTTP metrics, card span
// attributes and the X-Trace-ID response header. Probe routes skip all of
// it so Kubernetes and Prometheus polling stay out of the traces.
func Middleware(serviceName string) []gin.HandlerFunc {
	isProbe := func(path string) bool { return strings.HasPrefix(path, ProbePrefix) }

	tracing := otelgin.Middleware(serviceName,
		otelgin.WithFilter(func(r *http.Request) bool { return !isProbe(r.URL.Path) }),
	)

	instruments, err := newHTTPInstruments(otel.Meter(instrumentationName))
	if err != nil {
		otel.Handle(err)
	}

	return []gin.HandlerFunc{tracing, func(c *gin.Context) {
		if isProbe(c.Request.URL.Path) {
			c.Next()
			return
		}

		span := trace.SpanFromContext(c.Request.Context())
		if sc := span.SpanContext(); sc.HasTraceID() {
			c.Header(HeaderTraceID, sc.TraceID().String())
		}

		instruments.observe(c)

		for header, key := range cardSpanAttrs {
			if v := c.Writer.Header().Get(header); v != "" {
				span.SetAttributes(key.String(v))
			}
		}
	}}
}
