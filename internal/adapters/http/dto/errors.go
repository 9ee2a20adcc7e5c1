// Package dto holds the JSON shapes of the HTTP API and the helpers that
// bind, validate and answer with them.
package dto

import "net/http"

// ErrorResponse is the envelope of every JSON error a display or operator
// can receive. Image routes answer errors in JSON too, never as a card.
type ErrorResponse struct {
	Error   ErrorDetail `json:"error"`
	TraceID string      `json:"traceId,omitempty"`
}

// ErrorDetail is the body of an ErrorResponse.
type ErrorDetail struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// Error codes.
const (
	ErrorCodeNotFound        = "NOT_FOUND"
	ErrorCodeConflict        = "CONFLICT"
	ErrorCodeValidation      = "VALIDATION_ERROR"
	ErrorCodeBadRequest      = "BAD_REQUEST"
	ErrorCodeRateLimited     = "RATE_LIMITED"
	ErrorCodeUnavailable     = "SERVICE_UNAVAILABLE"
	ErrorCodeImageProcessing = "IMAGE_PROCESSING_FAILED"
	ErrorCodeTimeout         = "TIMEOUT"
	ErrorCodeInternal        = "INTERNAL_ERROR"
)

// codeStatus is the HTTP status of each code. A Notion rate limit is a 503
// to the display, which just retries on its next refresh.
var codeStatus = map[string]int{
	ErrorCodeNotFound:        http.StatusNotFound,
	ErrorCodeConflict:        http.StatusConflict,
	ErrorCodeValidation:      http.StatusBadRequest,
	ErrorCodeBadRequest:      http.StatusBadRequest,
	ErrorCodeRateLimited:     http.StatusServiceUnavailable,
	ErrorCodeUnavailable:     http.StatusServiceUnavailable,
	ErrorCodeImageProcessing: http.StatusInternalServerError,
	ErrorCodeTimeout:         http.StatusGatewayTimeout,
	ErrorCodeInternal:        http.StatusInternalServerError,
}

// HTTPStatusFromCode returns the status for code; unknown codes are 500.
func HTTPStatusFromCode(code string) int {
	if status, ok := codeStatus[code]; ok {
		return status
	}

	return http.StatusInternalServerError
}

// NewErrorResponse builds an envelope without field details.
func NewErrorResponse(code, message string) *ErrorResponse {
	return NewErrorResponseWithDetails(code, message, nil)
}

// NewErrorResponseWithDetails builds an envelope whose details map request
// fields to what is wrong with them.
func NewErrorResponseWithDetails(code, message string, details map[string]string) *ErrorResponse {
	return &ErrorResponse{Error: ErrorDetail{Code: code, Message: message, Details: details}}
}

// WithTraceID sets the id that ties the response to the server logs.
func (e *ErrorResponse) WithTraceID(traceID string) *ErrorResponse {
	e.TraceID = traceID
	return e
}
