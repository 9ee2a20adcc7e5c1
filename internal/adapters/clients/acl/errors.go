package acl

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/ditto-display/ditto/internal/adapters/clients"
	"github.com/ditto-display/ditto/internal/domain"
)

// APIError is the error object Notion returns with every non-2xx status:
//
//	{"object":"error","status":400,"code":"validation_error",
//	 "message":"...","request_id":"..."}
//
// Image hosts answer with anything at all; those bodies simply fail to
// parse and the status alone decides.
type APIError struct {
	Object    string `json:"object"`
	Status    int    `json:"status"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

// Notion error codes with a specific domain mapping.
const (
	CodeInvalidJSON        = "invalid_json"
	CodeInvalidRequest     = "invalid_request"
	CodeValidation         = "validation_error"
	CodeMissingVersion     = "missing_version"
	CodeUnauthorized       = "unauthorized"
	CodeRestricted         = "restricted_resource"
	CodeObjectNotFound     = "object_not_found"
	CodeConflict           = "conflict_error"
	CodeRateLimited        = "rate_limited"
	CodeInternalError      = "internal_server_error"
	CodeServiceUnavailable = "service_unavailable"
	CodeDatabaseDown       = "database_connection_unavailable"
	CodeGatewayTimeout     = "gateway_timeout"
)

// ParseErrorResponse decodes an error body, or returns nil when it holds
// neither a code nor a message.
func ParseErrorResponse(body io.Reader) *APIError {
	if body == nil {
		return nil
	}

	var e APIError
	if err := json.NewDecoder(body).Decode(&e); err != nil || (e.Code == "" && e.Message == "") {
		return nil
	}

	return &e
}

// MapHTTPError translates a transport error or a non-2xx response into a
// domain error. entityID names the page or block for not-found errors.
func MapHTTPError(resp *http.Response, clientErr error, serviceName, operation, entityID string) error {
	switch {
	case clientErr != nil:
		return mapClientError(clientErr, serviceName, operation)
	case resp == nil:
		return domain.NewUnavailableError(serviceName, "no response received")
	case resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices:
		return nil
	}

	var apiErr *APIError
	if resp.Body != nil {
		apiErr = ParseErrorResponse(resp.Body)
	}

	message := fmt.Sprintf("%s failed with status %d", operation, resp.StatusCode)
	if apiErr != nil && apiErr.Message != "" {
		message = apiErr.Message
	}

	if apiErr != nil {
		if err := MapExternalCode(apiErr.Code, message, serviceName, entityID); err != nil {
			return err
		}
	}

	return mapStatus(resp.StatusCode, message, serviceName, entityID)
}

func mapClientError(err error, serviceName, operation string) error {
	switch {
	case domain.IsRateLimited(err):
		return err
	case errors.Is(err, clients.ErrCircuitOpen):
		return domain.NewUnavailableError(serviceName, "circuit breaker open during "+operation)
	case errors.Is(err, clients.ErrMaxRetriesExceeded):
		return domain.NewUnavailableError(serviceName, "max retries exceeded during "+operation)
	default:
		return domain.NewUnavailableError(serviceName, fmt.Sprintf("%s failed: %v", operation, err))
	}
}

func mapStatus(status int, message, serviceName, entityID string) error {
	switch status {
	case http.StatusNotFound:
		return domain.NewNotFoundError(serviceName, entityID)
	case http.StatusConflict:
		return domain.NewConflictError(serviceName, message)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return domain.NewValidationError("", message)
	default:
		return domain.NewUnavailableError(serviceName, message)
	}
}

// MapExternalCode maps a Notion error code, or returns nil for codes
// without a specific mapping so the status decides.
func MapExternalCode(code, message, serviceName, entityID string) error {
	switch code {
	case CodeObjectNotFound:
		return domain.NewNotFoundError(serviceName, entityID)
	case CodeConflict:
		return domain.NewConflictError(serviceName, message)
	case CodeValidation, CodeInvalidJSON, CodeInvalidRequest, CodeMissingVersion:
		return domain.NewValidationError("", message)
	case CodeUnauthorized, CodeRestricted:
		// The integration lost access to the database; only an operator
		// can fix that, so displays see it as an outage.
		return domain.NewUnavailableError(serviceName, "access denied: "+message)
	case CodeRateLimited, CodeInternalError, CodeServiceUnavailable, CodeDatabaseDown, CodeGatewayTimeout:
		return domain.NewUnavailableError(serviceName, message)
	default:
		return nil
	}
}
