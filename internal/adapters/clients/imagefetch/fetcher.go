// Package imagefetch downloads background images.
package imagefetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/ditto-display/ditto/internal/adapters/clients"
	"github.com/ditto-display/ditto/internal/adapters/clients/acl"
	"github.com/ditto-display/ditto/internal/domain"
	"github.com/ditto-display/ditto/internal/ports"
)

// ServiceName names the image host in errors, logs and metrics.
const ServiceName = "images"

// DefaultMaxBytes bounds a single download.
const DefaultMaxBytes = 32 << 20

// Fetcher implements ports.ImageSource over a clients.Client with no base
// URL; every call passes an absolute URL.
type Fetcher struct {
	acl.BaseAdapter

	maxBytes int64
}

var _ ports.ImageSource = (*Fetcher)(nil)

// New wraps client. maxBytes <= 0 uses DefaultMaxBytes.
func New(client *clients.Client, maxBytes int64) *Fetcher {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	return &Fetcher{
		BaseAdapter: acl.NewBaseAdapter(client, ServiceName),
		maxBytes:    maxBytes,
	}
}

// Fetch downloads rawURL. Only http and https URLs are accepted.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, domain.NewValidationErrorWithValue("url", "must be an absolute http(s) URL", rawURL)
	}

	body, err := f.Get(ctx, rawURL, "download image", u.Host+u.Path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = body.Close() }()

	data, err := io.ReadAll(io.LimitReader(body, f.maxBytes+1))
	if err != nil {
		return nil, domain.NewUnavailableError(ServiceName, fmt.Sprintf("reading image: %v", err))
	}

	if int64(len(data)) > f.maxBytes {
		return nil, domain.NewValidationErrorWithValue("url", fmt.Sprintf("image exceeds %d bytes", f.maxBytes), rawURL)
	}

	if len(data) == 0 {
		return nil, domain.NewUnavailableError(ServiceName, "empty image body")
	}

	return data, nil
}

// Sniff reports the content type of data, for logging.
func Sniff(data []byte) string {
	ct := http.DetectContentType(data)
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}

	return ct
}
