package dto

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"github.com/ditto-display/ditto/internal/domain"
	"github.com/ditto-display/ditto/internal/platform/logging"
)

// ContextKeyTraceID is the gin context key handlers may set to override
// the trace id reported in errors.
const ContextKeyTraceID = "trace_id"

// GetTraceID returns the id that ties an error response to the logs: an
// explicit gin value, the active span, then the request id header.
func GetTraceID(c *gin.Context) string {
	if v, ok := c.Get(ContextKeyTraceID); ok {
		if s, ok := v.(string); ok {
			return s
		}

		return ""
	}

	if sc := trace.SpanFromContext(c.Request.Context()).SpanContext(); sc.HasTraceID() {
		return sc.TraceID().String()
	}

	return c.GetHeader("X-Request-ID")
}

// MapDomainError maps a domain error to an HTTP status code and error response.
// Unknown errors map to 500 with a generic message.
func MapDomainError(err error) (int, *ErrorResponse) {
	if err == nil {
		return http.StatusOK, nil
	}

	resp := domainErrorResponse(err)

	return HTTPStatusFromCode(resp.Error.Code), resp
}

func domainErrorResponse(err error) *ErrorResponse {
	switch {
	case domain.IsNotFound(err):
		return NewErrorResponse(ErrorCodeNotFound, err.Error())

	case domain.IsValidation(err):
		var details map[string]string

		var ve *domain.ValidationError
		if errors.As(err, &ve) && ve.Field != "" {
			details = map[string]string{ve.Field: ve.Message}
		}

		return NewErrorResponseWithDetails(ErrorCodeValidation, err.Error(), details)

	case domain.IsConflict(err):
		return NewErrorResponse(ErrorCodeConflict, err.Error())

	case domain.IsRateLimited(err):
		return NewErrorResponse(ErrorCodeRateLimited, "upstream is rate limiting requests, try again later")

	case domain.IsUnavailable(err):
		return NewErrorResponse(ErrorCodeUnavailable, "a dependency is temporarily unavailable")

	case domain.IsImageProcessing(err):
		return NewErrorResponse(ErrorCodeImageProcessing, "the image could not be rendered")

	case errors.Is(err, context.DeadlineExceeded):
		return NewErrorResponse(ErrorCodeTimeout, "request timeout exceeded")

	default:
		return NewErrorResponse(ErrorCodeInternal, "an internal error occurred")
	}
}

// HandleError writes err as a JSON error envelope. Server-side failures
// are logged with the request's logger.
func HandleError(c *gin.Context, err error) {
	status, resp := respond(c, err)
	c.JSON(status, resp)
}

// AbortWithError is HandleError for middleware: the chain stops here.
func AbortWithError(c *gin.Context, err error) {
	status, resp := respond(c, err)
	c.AbortWithStatusJSON(status, resp)
}

// RespondWithValidationErrors writes a 400 with field-level messages.
func RespondWithValidationErrors(c *gin.Context, fieldErrors map[string]string) {
	c.JSON(http.StatusBadRequest,
		NewErrorResponseWithDetails(ErrorCodeValidation, "request validation failed", fieldErrors).
			WithTraceID(GetTraceID(c)))
}

func respond(c *gin.Context, err error) (int, *ErrorResponse) {
	status, resp := MapDomainError(err)
	resp.WithTraceID(GetTraceID(c))

	var rl *domain.RateLimitedError
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(rl.RetryAfter.Seconds()))))
	}

	if status >= http.StatusInternalServerError {
		logging.FromContext(c.Request.Context()).ErrorContext(c.Request.Context(), "request failed",
			slog.Int("status", status),
			slog.String("code", resp.Error.Code),
			slog.String("trace_id", resp.TraceID),
			slog.Any("error", err),
		)
	}

	return status, resp
}

// RespondWithBindError answers a failed BindAndValidate or
// BindQueryAndValidate.
func RespondWithBindError(c *gin.Context, err error) {
	switch {
	case IsValidationError(err):
		RespondWithValidationErrors(c, ValidationErrors(err))
	case errors.Is(err, ErrBinding):
		c.JSON(http.StatusBadRequest,
			NewErrorResponse(ErrorCodeBadRequest, "malformed request").WithTraceID(GetTraceID(c)))
	default:
		HandleError(c, err)
	}
}
