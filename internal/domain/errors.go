// Package domain contains the quote card entities and the errors they raise.
// Each error type unwraps to one sentinel, which is what the HTTP layer and
// the CLI switch on.
package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinels.
var (
	// ErrNotFound: unknown client, or no quote to land on.
	ErrNotFound = errors.New("not found")

	// ErrConflict: the operation collides with one already running, such
	// as a second catalog sync.
	ErrConflict = errors.New("conflict")

	// ErrValidation: a direction, dimension or client field was rejected.
	ErrValidation = errors.New("validation failed")

	// ErrUnavailable: Notion, the image host or the database cannot be
	// reached.
	ErrUnavailable = errors.New("unavailable")

	// ErrRateLimited indicates the upstream catalog kept rate limiting us
	// after the retry budget was spent.
	ErrRateLimited = errors.New("upstream rate limited")

	// ErrImageProcessing indicates a background image could not be decoded
	// or processed.
	ErrImageProcessing = errors.New("image processing failed")
)

// Entity names used in NotFoundError.
const (
	EntityQuote  = "quote"
	EntityClient = "client"
)

// NotFoundError names the missing entity.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s with id %q not found", e.Entity, e.ID)
	}

	return e.Entity + " not found"
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// NewNotFoundError reports a missing entity.
func NewNotFoundError(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// NewClientNotFoundError is returned when a client id or name is unknown.
func NewClientNotFoundError(id string) error {
	return &NotFoundError{Entity: EntityClient, ID: id}
}

// ErrNoQuotes is returned by navigation when the catalog (or the client's
// deck) is empty.
var ErrNoQuotes = &NotFoundError{Entity: EntityQuote}

// ConflictError says what was already in progress.
type ConflictError struct {
	Entity string
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s conflict: %s", e.Entity, e.Reason)
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// NewConflictError reports a conflicting operation.
func NewConflictError(entity, reason string) error {
	return &ConflictError{Entity: entity, Reason: reason}
}

// ValidationError names the rejected field. Value, when set, is the
// rejected input.
type ValidationError struct {
	Field   string
	Message string
	Value   any
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
	}

	return "validation failed: " + e.Message
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NewValidationError rejects field.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// NewValidationErrorWithValue rejects field and keeps the value for logs.
func NewValidationErrorWithValue(field, message string, value any) error {
	return &ValidationError{Field: field, Message: message, Value: value}
}

// NewInvalidDirectionError reports an unknown navigation direction.
func NewInvalidDirectionError(value string) error {
	return &ValidationError{
		Field:   "direction",
		Message: "must be one of current, next, previous, random",
		Value:   value,
	}
}

// UnavailableError names the dependency that could not be reached.
type UnavailableError struct {
	Service string
	Reason  string
}

func (e *UnavailableError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("service %q unavailable: %s", e.Service, e.Reason)
	}

	return fmt.Sprintf("service %q unavailable", e.Service)
}

func (e *UnavailableError) Unwrap() error {
	return ErrUnavailable
}

// NewUnavailableError reports an unreachable dependency.
func NewUnavailableError(service, reason string) error {
	return &UnavailableError{Service: service, Reason: reason}
}

// RateLimitedError is returned once the rate-limit retry budget is exhausted.
type RateLimitedError struct {
	Service    string
	Attempts   int
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("service %q rate limited after %d attempts (last retry-after %s)",
		e.Service, e.Attempts, e.RetryAfter)
}

func (e *RateLimitedError) Unwrap() error {
	return ErrRateLimited
}

// NewRateLimitedError reports a spent 429 budget.
func NewRateLimitedError(service string, attempts int, retryAfter time.Duration) error {
	return &RateLimitedError{Service: service, Attempts: attempts, RetryAfter: retryAfter}
}

// ImageProcessingError wraps a failure to load or transform a background image.
type ImageProcessingError struct {
	QuoteID string
	Stage   string
	Err     error
}

func (e *ImageProcessingError) Error() string {
	msg := "image processing failed"
	if e.QuoteID != "" {
		msg = fmt.Sprintf("image processing failed for quote %q", e.QuoteID)
	}

	if e.Stage != "" {
		msg += " at " + e.Stage
	}

	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

// Unwrap exposes both the sentinel and the underlying cause.
func (e *ImageProcessingError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrImageProcessing}
	}

	return []error{ErrImageProcessing, e.Err}
}

// NewImageProcessingError reports a background failure at stage, e.g.
// "decode" or "filter".
func NewImageProcessingError(quoteID, stage string, err error) error {
	return &ImageProcessingError{QuoteID: quoteID, Stage: stage, Err: err}
}

// IsNotFound reports whether err is, or wraps, ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsConflict reports whether err is, or wraps, ErrConflict.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsValidation reports whether err is, or wraps, ErrValidation.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsUnavailable reports whether err is, or wraps, ErrUnavailable.
func IsUnavailable(err error) bool { return errors.Is(err, ErrUnavailable) }

// IsRateLimited reports whether err is, or wraps, ErrRateLimited.
func IsRateLimited(err error) bool { return errors.Is(err, ErrRateLimited) }

// IsImageProcessing reports whether err is, or wraps, ErrImageProcessing.
func IsImageProcessing(err error) bool { return errors.Is(err, ErrImageProcessing) }
