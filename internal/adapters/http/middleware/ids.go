// Package middleware provides the gin middleware of the display server.
package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ditto-display/ditto/internal/platform/logging"
)

const (
	// HeaderRequestID names one request. A fresh one is minted when the
	// caller sends none.
	HeaderRequestID = "X-Request-ID"

	// HeaderCorrelationID is kept across service hops, so a display that
	// sets it can follow its request into the Notion calls it triggered.
	HeaderCorrelationID = "X-Correlation-ID"

	// ContextKeyRequestID is the gin key of the request ID.
	ContextKeyRequestID = logging.KeyRequestID

	// ContextKeyCorrelationID is the gin key of the correlation ID.
	ContextKeyCorrelationID = logging.KeyCorrelationID
)

// maxIDLength bounds IDs accepted from callers.
const maxIDLength = 128

type idKey struct{ name string }

var (
	requestIDKey     = idKey{"request_id"}
	correlationIDKey = idKey{"correlation_id"}
)

// traceHeader is one ID carried in a request header, echoed back, attached
// to the request logger and kept in the context for outbound clients.
type traceHeader struct {
	header string
	ginKey string
	ctxKey idKey
}

var (
	requestIDHeader     = traceHeader{HeaderRequestID, ContextKeyRequestID, requestIDKey}
	correlationIDHeader = traceHeader{HeaderCorrelationID, ContextKeyCorrelationID, correlationIDKey}
)

func (h traceHeader) middleware() gin.HandlerFunc {
	enrich := logging.Enricher(h.ginKey)

	return func(c *gin.Context) {
		id := c.GetHeader(h.header)
		if id == "" || len(id) > maxIDLength {
			id = uuid.NewString()
		}

		c.Set(h.ginKey, id)
		c.Header(h.header, id)

		ctx := enrich(c.Request.Context(), id)
		c.Request = c.Request.WithContext(context.WithValue(ctx, h.ctxKey, id))

		c.Next()
	}
}

func (h traceHeader) fromGin(c *gin.Context) string {
	v, _ := c.Get(h.ginKey)
	id, _ := v.(string)

	return id
}

func (h traceHeader) fromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	id, _ := ctx.Value(h.ctxKey).(string)

	return id
}

// RequestID returns middleware that extracts or generates X-Request-ID.
func RequestID() gin.HandlerFunc { return requestIDHeader.middleware() }

// CorrelationID returns middleware that propagates X-Correlation-ID,
// starting a new one when the caller sent none.
func CorrelationID() gin.HandlerFunc { return correlationIDHeader.middleware() }

// GetRequestID returns the request ID, or "" when RequestID did not run.
func GetRequestID(c *gin.Context) string { return requestIDHeader.fromGin(c) }

// GetCorrelationID returns the correlation ID, or "".
func GetCorrelationID(c *gin.Context) string { return correlationIDHeader.fromGin(c) }

// MustGetRequestID is GetRequestID with "unknown" for a missing ID.
func MustGetRequestID(c *gin.Context) string { return orUnknown(GetRequestID(c)) }

// MustGetCorrelationID is GetCorrelationID with "unknown" for a missing ID.
func MustGetCorrelationID(c *gin.Context) string { return orUnknown(GetCorrelationID(c)) }

func orUnknown(id string) string {
	if id == "" {
		return "unknown"
	}

	return id
}

// RequestIDFromContext returns the request ID stored by RequestID, or "".
// The Notion client forwards it upstream.
func RequestIDFromContext(ctx context.Context) string {
	return requestIDHeader.fromContext(ctx)
}

// CorrelationIDFromContext returns the correlation ID, or "".
func CorrelationIDFromContext(ctx context.Context) string {
	return correlationIDHeader.fromContext(ctx)
}

// ContextWithRequestID stores a request ID for outbound clients.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// ContextWithCorrelationID stores a correlation ID for outbound clients.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}
