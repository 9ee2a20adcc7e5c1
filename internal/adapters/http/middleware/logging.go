package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ditto-display/ditto/internal/platform/logging"
)

// probePrefix marks the liveness, readiness, build and metrics routes.
const probePrefix = "/-/"

// cardHeaders are response headers worth repeating in the request line.
// Image handlers set them once a card has been chosen.
var cardHeaders = []struct{ header, attr string }{
	{"X-Quote-ID", "quote_id"},
	{"X-Deck-Position", "deck_position"},
}

// WithLogger seeds every request context with logger so the ID middleware
// and handlers enrich the application logger instead of the process
// default. Register it before RequestID and CorrelationID.
func WithLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if logger != nil {
			c.Request = c.Request.WithContext(logging.WithContext(c.Request.Context(), logger))
		}

		c.Next()
	}
}

// Logging returns middleware that writes one line per completed request
// with whatever the handlers added to the request logger, such as the
// display name. Probes and the exact skipPaths are not logged.
func Logging(skipPaths ...string) gin.HandlerFunc {
	skip := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = true
	}

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if skip[path] || strings.HasPrefix(path, probePrefix) {
			c.Next()
			return
		}

		if q := c.Request.URL.RawQuery; q != "" {
			path += "?" + q
		}

		start := time.Now()

		c.Next()

		elapsed := time.Since(start)
		status := c.Writer.Status()

		attrs := []slog.Attr{
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("client_ip", c.ClientIP()),
			slog.Int("status", status),
			slog.Duration("latency", elapsed),
			slog.Int64("latency_ms", elapsed.Milliseconds()),
			slog.Int("bytes", c.Writer.Size()),
		}

		for _, h := range cardHeaders {
			if v := c.Writer.Header().Get(h.header); v != "" {
				attrs = append(attrs, slog.String(h.attr, v))
			}
		}

		if len(c.Errors) > 0 {
			attrs = append(attrs, slog.String("errors", c.Errors.String()))
		}

		ctx := c.Request.Context()
		logging.FromContext(ctx).LogAttrs(ctx, statusLevel(status), "request completed", attrs...)
	}
}

func statusLevel(status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
