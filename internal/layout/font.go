package layout

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomedium"
	"golang.org/x/image/font/gofont/gomediumitalic"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
)

// EmbeddedPrefix selects one of the bundled Go fonts instead of a file path,
// e.g. "embed:gobolditalic".
const EmbeddedPrefix = "embed:"

var embedded = map[string][]byte{
	"goregular":      goregular.TTF,
	"gobold":         gobold.TTF,
	"goitalic":       goitalic.TTF,
	"gobolditalic":   gobolditalic.TTF,
	"gomedium":       gomedium.TTF,
	"gomediumitalic": gomediumitalic.TTF,
}

// ErrUnknownEmbeddedFont is returned for an embed: name that is not bundled.
var ErrUnknownEmbeddedFont = errors.New("unknown embedded font")

// FontSpec names a font file and the face index inside it. Index only
// matters for collections (.ttc); single-face files must use index 0.
type FontSpec struct {
	Path  string
	Index int
}

// String implements fmt.Stringer.
func (s FontSpec) String() string {
	if s.Index == 0 {
		return s.Path
	}

	return fmt.Sprintf("%s#%d", s.Path, s.Index)
}

// Font is a parsed font that can be measured at any integer pixel size.
// Measure is safe for concurrent use; faces returned by Face are not.
type Font struct {
	name string
	sfnt *opentype.Font
	bufs sync.Pool
}

// LoadFont reads and parses the font named by spec.
func LoadFont(spec FontSpec) (*Font, error) {
	data, err := readFontData(spec.Path)
	if err != nil {
		return nil, err
	}

	f, err := parseFont(data, spec.Index)
	if err != nil {
		return nil, fmt.Errorf("parse font %s: %w", spec, err)
	}

	return newFont(spec.String(), f), nil
}

// MustEmbedded returns a bundled font and panics if name is unknown.
// Intended for tests and defaults.
func MustEmbedded(name string) *Font {
	f, err := LoadFont(FontSpec{Path: EmbeddedPrefix + name})
	if err != nil {
		panic(err)
	}

	return f
}

func newFont(name string, f *opentype.Font) *Font {
	return &Font{
		name: name,
		sfnt: f,
		bufs: sync.Pool{New: func() any { return new(sfnt.Buffer) }},
	}
}

func readFontData(path string) ([]byte, error) {
	if path == "" {
		return goregular.TTF, nil
	}

	if name, ok := strings.CutPrefix(path, EmbeddedPrefix); ok {
		data, found := embedded[name]
		if !found {
			return nil, fmt.Errorf("%w: %q", ErrUnknownEmbeddedFont, name)
		}

		return data, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read font: %w", err)
	}

	return data, nil
}

func parseFont(data []byte, index int) (*opentype.Font, error) {
	if bytes.HasPrefix(data, []byte("ttcf")) {
		coll, err := opentype.ParseCollection(data)
		if err != nil {
			return nil, err
		}

		if index < 0 || index >= coll.NumFonts() {
			return nil, fmt.Errorf("face index %d out of range (collection has %d)", index, coll.NumFonts())
		}

		return coll.Font(index)
	}

	if index != 0 {
		return nil, fmt.Errorf("face index %d requested from a single-face font", index)
	}

	return opentype.Parse(data)
}

// Name identifies the font by the FontSpec it was loaded from.
func (f *Font) Name() string {
	return f.name
}

// Measure returns the advance width in pixels of text rendered at size,
// including kerning, truncated to whole pixels.
func (f *Font) Measure(text string, size int) int {
	if text == "" || size <= 0 {
		return 0
	}

	buf, _ := f.bufs.Get().(*sfnt.Buffer)
	defer f.bufs.Put(buf)

	ppem := fixed.I(size)

	var (
		width fixed.Int26_6
		prev  sfnt.GlyphIndex
		first = true
	)

	for _, r := range text {
		idx, err := f.sfnt.GlyphIndex(buf, r)
		if err != nil {
			continue
		}

		if !first {
			if k, kerr := f.sfnt.Kern(buf, prev, idx, ppem, font.HintingNone); kerr == nil {
				width += k
			}
		}

		adv, err := f.sfnt.GlyphAdvance(buf, idx, ppem, font.HintingNone)
		if err != nil {
			continue
		}

		width += adv
		prev = idx
		first = false
	}

	return width.Floor()
}

// Face returns a drawable face at size pixels. The caller owns the face and
// must Close it.
func (f *Font) Face(size int) (font.Face, error) {
	return opentype.NewFace(f.sfnt, &opentype.FaceOptions{
		Size:    float64(size),
		DPI:     72,
		Hinting: font.HintingNone,
	})
}

// FontSet holds the faces used for each text role on a card.
type FontSet struct {
	Quote  *Font
	Title  *Font
	Author *Font
}

// LoadFontSet loads the three role fonts once at startup.
func LoadFontSet(quote, title, author FontSpec) (*FontSet, error) {
	q, err := LoadFont(quote)
	if err != nil {
		return nil, fmt.Errorf("quote font: %w", err)
	}

	t, err := LoadFont(title)
	if err != nil {
		return nil, fmt.Errorf("title font: %w", err)
	}

	a, err := LoadFont(author)
	if err != nil {
		return nil, fmt.Errorf("author font: %w", err)
	}

	return &FontSet{Quote: q, Title: t, Author: a}, nil
}

// DefaultFontSet uses the bundled Go fonts.
func DefaultFontSet() *FontSet {
	return &FontSet{
		Quote:  MustEmbedded("gobolditalic"),
		Title:  MustEmbedded("gobold"),
		Author: MustEmbedded("goregular"),
	}
}
