// Package acl is the translation boundary between upstream HTTP APIs and
// the domain. Upstream DTOs stay unexported in the adapter that owns them;
// everything that crosses this package is a domain type or a domain error.
package acl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/ditto-display/ditto/internal/adapters/clients"
	"github.com/ditto-display/ditto/internal/domain"
)

// BaseAdapter is embedded by upstream adapters.
type BaseAdapter struct {
	client      *clients.Client
	serviceName string
}

// NewBaseAdapter wraps client under serviceName.
func NewBaseAdapter(client *clients.Client, serviceName string) BaseAdapter {
	return BaseAdapter{client: client, serviceName: serviceName}
}

// Client returns the underlying HTTP client.
func (a *BaseAdapter) Client() *clients.Client {
	return a.client
}

// ServiceName returns the upstream name used in domain errors.
func (a *BaseAdapter) ServiceName() string {
	return a.serviceName
}

// Get issues a GET and returns the body of a 2xx response; the caller
// closes it. Anything else comes back as a domain error.
func (a *BaseAdapter) Get(ctx context.Context, path, operation, entityID string) (io.ReadCloser, error) {
	resp, err := a.client.Get(ctx, path)

	return a.check(resp, err, operation, entityID)
}

// Post issues a JSON POST; see Get.
func (a *BaseAdapter) Post(ctx context.Context, path string, body io.Reader, operation, entityID string) (io.ReadCloser, error) {
	resp, err := a.client.Post(ctx, path, body)

	return a.check(resp, err, operation, entityID)
}

func (a *BaseAdapter) check(resp *http.Response, err error, operation, entityID string) (io.ReadCloser, error) {
	if err != nil {
		return nil, MapHTTPError(nil, err, a.serviceName, operation, entityID)
	}

	if resp.StatusCode >= http.StatusMultipleChoices {
		defer func() { _ = resp.Body.Close() }()

		return nil, MapHTTPError(resp, nil, a.serviceName, operation, entityID)
	}

	return resp.Body, nil
}

// DecodeResponse decodes a JSON body into T and closes it.
func DecodeResponse[T any](body io.ReadCloser) (*T, error) {
	if body == nil {
		return nil, fmt.Errorf("response body is nil")
	}
	defer func() { _ = body.Close() }()

	var out T
	if err := json.NewDecoder(body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	return &out, nil
}

// DecodeResponseForService is DecodeResponse with decode failures reported
// as the upstream being unavailable.
func DecodeResponseForService[T any](body io.ReadCloser, serviceName, operation string) (*T, error) {
	out, err := DecodeResponse[T](body)
	if err != nil {
		return nil, domain.NewUnavailableError(serviceName, fmt.Sprintf("%s: %v", operation, err))
	}

	return out, nil
}

// Translator converts one upstream DTO. It reports ok=false for records
// that should be skipped rather than failing the batch.
type Translator[E any, D any] func(ext *E) (d D, ok bool, err error)

// TranslateSlice applies translate to every item, stopping at the first
// error. It returns the kept results and how many were skipped.
func TranslateSlice[E any, D any](items []E, translate Translator[E, D]) ([]D, int, error) {
	out := make([]D, 0, len(items))
	skipped := 0

	for i := range items {
		d, ok, err := translate(&items[i])
		if err != nil {
			return nil, 0, fmt.Errorf("translating item %d: %w", i, err)
		}

		if !ok {
			skipped++
			continue
		}

		out = append(out, d)
	}

	return out, skipped, nil
}
