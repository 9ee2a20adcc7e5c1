package compositor

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ditto-display/ditto/internal/domain"
)

// processedSize matches the "{w}x{h}.jpg" tail of a processed file name,
// so evicting "a" never touches the cards of "a_b".
var processedSize = regexp.MustCompile(`^[0-9]+x[0-9]+\.jpg$`)

// DiskCache stores rendered cards and downloaded backgrounds under Dir:
//
//	{dir}/processed/{id}_{w}x{h}.jpg
//	{dir}/raw/{id}.img
//
// Processed lookups and writes are no-ops unless ProcessedEnabled is set;
// the raw cache is always on.
type DiskCache struct {
	Dir              string
	ProcessedEnabled bool
}

// NewDiskCache creates the cache directories under dir.
func NewDiskCache(dir string, processed bool) (*DiskCache, error) {
	for _, sub := range []string{"processed", "raw"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}

	return &DiskCache{Dir: dir, ProcessedEnabled: processed}, nil
}

// ProcessedPath returns the file a card for quoteID at dims is cached in.
func (c *DiskCache) ProcessedPath(quoteID string, dims domain.Dimensions) string {
	name := fmt.Sprintf("%s_%dx%d.jpg", sanitizeKey(quoteID), dims.Width, dims.Height)
	return filepath.Join(c.Dir, "processed", name)
}

// RawPath returns the file the background for quoteID is cached in.
func (c *DiskCache) RawPath(quoteID string) string {
	return filepath.Join(c.Dir, "raw", sanitizeKey(quoteID)+".img")
}

// Processed implements ports.RenderCache.
func (c *DiskCache) Processed(quoteID string, dims domain.Dimensions) ([]byte, bool) {
	if !c.ProcessedEnabled {
		return nil, false
	}

	return readIfExists(c.ProcessedPath(quoteID, dims))
}

// StoreProcessed implements ports.RenderCache.
func (c *DiskCache) StoreProcessed(quoteID string, dims domain.Dimensions, data []byte) error {
	if !c.ProcessedEnabled {
		return nil
	}

	return writeAtomic(c.ProcessedPath(quoteID, dims), data)
}

// Raw implements ports.RenderCache.
func (c *DiskCache) Raw(quoteID string) ([]byte, bool) {
	return readIfExists(c.RawPath(quoteID))
}

// StoreRaw implements ports.RenderCache.
func (c *DiskCache) StoreRaw(quoteID string, data []byte) error {
	return writeAtomic(c.RawPath(quoteID), data)
}

func readIfExists(path string) ([]byte, bool) {
	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		return nil, false
	}

	return data, true
}

// writeAtomic writes through a temp file in the target directory so
// readers never observe a partial file.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	name := tmp.Name()

	_, werr := tmp.Write(data)
	cerr := tmp.Close()

	if err := errors.Join(werr, cerr); err != nil {
		_ = os.Remove(name)
		return fmt.Errorf("write %s: %w", path, err)
	}

	if err := os.Rename(name, path); err != nil {
		_ = os.Remove(name)
		return fmt.Errorf("rename %s: %w", path, err)
	}

	return nil
}

// sanitizeKey maps an id onto a safe file name component.
func sanitizeKey(id string) string {
	if id == "" {
		return "_"
	}

	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, id)
}

// Evict implements ports.RenderCache. Missing files are not an error.
func (c *DiskCache) Evict(quoteID string) error {
	key := sanitizeKey(quoteID)
	dir := filepath.Join(c.Dir, "processed")

	entries, err := os.ReadDir(dir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("read %s: %w", dir, err)
	}

	paths := []string{c.RawPath(quoteID)}

	for _, e := range entries {
		if size, ok := strings.CutPrefix(e.Name(), key+"_"); ok && processedSize.MatchString(size) {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}

	var errs []error

	for _, path := range paths {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("evict %s: %w", quoteID, err)
	}

	return nil
}
