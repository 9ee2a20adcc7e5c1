package compositor

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"

	"github.com/ditto-display/ditto/internal/layout"
)

// Band describes one text role on the card.
type Band struct {
	// Height is the band height as a fraction of the card height.
	Height float64
	// Color is the fill color, a name or #rrggbb.
	Color string
}

// Options controls every stage of the pipeline. Offsets are fractions of
// the target size so the same layout works portrait and landscape.
type Options struct {
	PaddingWidth  float64
	PaddingHeight float64

	Quote  Band
	Title  Band
	Author Band

	// QuoteInset is subtracted from the quote band height, in pixels.
	QuoteInset int

	QuoteBox    layout.BoxOptions
	LineMinSize int
	LineStep    int

	QuoteStroke layout.StrokeOptions
	LineStroke  int
	StrokeColor string

	Saturation float64
	Brightness float64
	Gamma      float64

	BlurSize       int
	BlurSigma      float64
	KuwaharaRadius int
	JPEGQuality    int
	StaticBackdrop bool
	FallbackImage  string
}

// DefaultOptions returns the stock card layout.
func DefaultOptions() Options {
	return Options{
		PaddingWidth:  15.0 / 480,
		PaddingHeight: 15.0 / 800,
		Quote:         Band{Height: 0.8, Color: "white"},
		Title:         Band{Height: 0.075, Color: "white"},
		Author:        Band{Height: 0.05, Color: "white"},
		QuoteInset:    8,
		QuoteBox:      layout.DefaultBoxOptions(),
		LineMinSize:   layout.DefaultLineOptions().MinSize,
		LineStep:      layout.DefaultLineOptions().Step,
		QuoteStroke:   layout.DefaultStrokeOptions(),
		LineStroke:    2,
		StrokeColor:   "black",
		Saturation:    1.2,
		Brightness:    1.0,
		Gamma:         0.85,
		BlurSize:      35,
		BlurSigma:     5.0,
		JPEGQuality:   70,
	}
}

// Geometry is Options resolved to integer pixels for one target size.
type Geometry struct {
	Width, Height int

	PadW, PadH int

	SafeWidth       int
	SafeQuoteHeight int

	TitleHeight  int
	AuthorHeight int
}

// Resolve converts the fractional layout to pixels for a target size.
func (o Options) Resolve(width, height int) Geometry {
	padW := int(o.PaddingWidth * float64(width))
	padH := int(o.PaddingHeight * float64(height))
	quoteH := int(o.Quote.Height * float64(height))

	return Geometry{
		Width:           width,
		Height:          height,
		PadW:            padW,
		PadH:            padH,
		SafeWidth:       width - 2*padW,
		SafeQuoteHeight: quoteH - 2*padH - o.QuoteInset,
		TitleHeight:     int(o.Title.Height * float64(height)),
		AuthorHeight:    int(o.Author.Height * float64(height)),
	}
}

var namedColors = map[string]color.RGBA{
	"white": {R: 255, G: 255, B: 255, A: 255},
	"black": {R: 0, G: 0, B: 0, A: 255},
	"gray":  {R: 128, G: 128, B: 128, A: 255},
	"grey":  {R: 128, G: 128, B: 128, A: 255},
	"red":   {R: 255, G: 0, B: 0, A: 255},
	"green": {R: 0, G: 128, B: 0, A: 255},
	"blue":  {R: 0, G: 0, B: 255, A: 255},
}

// ParseColor accepts a color name or #rgb / #rrggbb.
func ParseColor(s string) (color.RGBA, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if c, ok := namedColors[s]; ok {
		return c, nil
	}

	hex, ok := strings.CutPrefix(s, "#")
	if !ok {
		return color.RGBA{}, fmt.Errorf("unknown color %q", s)
	}

	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}

	if len(hex) != 6 {
		return color.RGBA{}, fmt.Errorf("invalid hex color %q", s)
	}

	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid hex color %q: %w", s, err)
	}

	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
}
