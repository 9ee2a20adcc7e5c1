package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ditto-display/ditto/internal/adapters/http/dto"
)

// Timeout returns middleware that bounds a request, render and upstream
// fetches included. Handlers normally map context.DeadlineExceeded to a 504
// themselves; if one gives up without writing, the 504 is written here.
// Paths under one of skipPrefixes keep the caller's context.
func Timeout(timeout time.Duration, skipPrefixes ...string) gin.HandlerFunc {
	if timeout <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		for _, prefix := range skipPrefixes {
			if strings.HasPrefix(c.Request.URL.Path, prefix) {
				c.Next()
				return
			}
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		if c.Writer.Written() || !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return
		}

		c.AbortWithStatusJSON(http.StatusGatewayTimeout,
			dto.NewErrorResponse(dto.ErrorCodeTimeout, "request timed out").WithTraceID(dto.GetTraceID(c)))
	}
}
