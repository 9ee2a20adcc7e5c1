package compositor

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"

	"github.com/ditto-display/ditto/internal/layout"
)

// Overlay is the fitted text layer for one card, before compositing.
type Overlay struct {
	Image *image.RGBA

	Quote       layout.Fitted
	TitleSize   int
	AuthorSize  int
	QuoteStroke int
}

// textRun is one line of text placed at a baseline origin.
type textRun struct {
	text string
	dot  image.Point
}

// palette holds the parsed colors for a render.
type palette struct {
	quote, title, author, stroke color.RGBA
}

func (o Options) palette() (palette, error) {
	var (
		p   palette
		err error
	)

	for _, c := range []struct {
		dst  *color.RGBA
		name string
		val  string
	}{
		{&p.quote, "quote", o.Quote.Color},
		{&p.title, "title", o.Title.Color},
		{&p.author, "author", o.Author.Color},
		{&p.stroke, "stroke", o.StrokeColor},
	} {
		if *c.dst, err = ParseColor(c.val); err != nil {
			return palette{}, fmt.Errorf("%s color: %w", c.name, err)
		}
	}

	return p, nil
}

// RenderOverlay lays out quote, title and author on a transparent layer
// of the given size. The quote is centered in the safe width and hangs
// from the top padding; title and author sit right-aligned on the bottom
// edge, the author below the title.
func RenderOverlay(fonts *layout.FontSet, opts Options, content, title, author string, width, height int) (*Overlay, error) {
	pal, err := opts.palette()
	if err != nil {
		return nil, err
	}

	g := opts.Resolve(width, height)
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	out := &Overlay{Image: dst}

	out.Quote = layout.FitMultilineBox(content, fonts.Quote, g.SafeWidth, g.SafeQuoteHeight, opts.QuoteBox)
	out.QuoteStroke = layout.StrokeWidth(out.Quote.Size, opts.QuoteStroke)

	if content != "" {
		ascent, _, err := faceMetrics(fonts.Quote, out.Quote.Size)
		if err != nil {
			return nil, err
		}

		var runs []textRun

		for i, line := range out.Quote.Lines() {
			x := g.PadW + (g.SafeWidth-fonts.Quote.Measure(line, out.Quote.Size))/2
			y := g.PadH + i*(out.Quote.Size+opts.QuoteBox.Spacing) + ascent
			runs = append(runs, textRun{text: line, dot: image.Pt(x, y)})
		}

		err = drawRuns(dst, fonts.Quote, out.Quote.Size, runs, pal.quote, pal.stroke, out.QuoteStroke)
		if err != nil {
			return nil, err
		}
	}

	right := width - g.PadW

	out.TitleSize, err = drawAnchored(dst, fonts.Title, opts, title, g.SafeWidth, g.TitleHeight,
		image.Pt(right, height-g.PadH-g.AuthorHeight), pal.title, pal.stroke)
	if err != nil {
		return nil, fmt.Errorf("title: %w", err)
	}

	out.AuthorSize, err = drawAnchored(dst, fonts.Author, opts, author, g.SafeWidth, g.AuthorHeight,
		image.Pt(right, height-g.PadH), pal.author, pal.stroke)
	if err != nil {
		return nil, fmt.Errorf("author: %w", err)
	}

	return out, nil
}

// drawAnchored fits a single line to maxWidth with the band height as the
// largest size and draws it with its right-bottom corner at anchor.
func drawAnchored(
	dst *image.RGBA, f *layout.Font, opts Options, text string, maxWidth, band int,
	anchor image.Point, fill, stroke color.RGBA,
) (int, error) {
	size := layout.FitSingleLineWidth(text, f, maxWidth, layout.LineOptions{
		MinSize: opts.LineMinSize,
		MaxSize: band,
		Step:    opts.LineStep,
	})

	if text == "" {
		return size, nil
	}

	_, descent, err := faceMetrics(f, size)
	if err != nil {
		return 0, err
	}

	dot := image.Pt(anchor.X-f.Measure(text, size), anchor.Y-descent)

	return size, drawRuns(dst, f, size, []textRun{{text: text, dot: dot}}, fill, stroke, opts.LineStroke)
}

func faceMetrics(f *layout.Font, size int) (ascent, descent int, err error) {
	face, err := f.Face(size)
	if err != nil {
		return 0, 0, fmt.Errorf("open face %s@%d: %w", f.Name(), size, err)
	}
	defer face.Close()

	m := face.Metrics()

	return m.Ascent.Ceil(), m.Descent.Ceil(), nil
}

// drawRuns rasterizes runs into a coverage mask, paints a dilated copy of
// it in the stroke color, then the mask itself in the fill color.
func drawRuns(dst *image.RGBA, f *layout.Font, size int, runs []textRun, fill, stroke color.RGBA, strokeWidth int) error {
	face, err := f.Face(size)
	if err != nil {
		return fmt.Errorf("open face %s@%d: %w", f.Name(), size, err)
	}
	defer face.Close()

	mask := image.NewAlpha(dst.Bounds())
	d := font.Drawer{Dst: mask, Src: image.Opaque, Face: face}

	for _, r := range runs {
		d.Dot = fixed.P(r.dot.X, r.dot.Y)
		d.DrawString(r.text)
	}

	if strokeWidth > 0 {
		outline := dilate(mask, strokeWidth)
		draw.DrawMask(dst, dst.Bounds(), image.NewUniform(stroke), image.Point{}, outline, outline.Rect.Min, draw.Over)
	}

	draw.DrawMask(dst, dst.Bounds(), image.NewUniform(fill), image.Point{}, mask, mask.Rect.Min, draw.Over)

	return nil
}

// dilate grows the coverage of mask by a disk of the given radius.
func dilate(mask *image.Alpha, radius int) *image.Alpha {
	out := image.NewAlpha(mask.Rect)
	b := mask.Rect

	type offset struct{ dx, dy int }

	var disk []offset

	r2 := radius * radius
	for dy := -radius; dy <= radius; dy++ {
		span := int(math.Sqrt(float64(r2 - dy*dy)))
		for dx := -span; dx <= span; dx++ {
			disk = append(disk, offset{dx, dy})
		}
	}

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			a := mask.Pix[mask.PixOffset(x, y)]
			if a == 0 {
				continue
			}

			for _, o := range disk {
				px, py := x+o.dx, y+o.dy
				if px < b.Min.X || px >= b.Max.X || py < b.Min.Y || py >= b.Max.Y {
					continue
				}

				if i := out.PixOffset(px, py); out.Pix[i] < a {
					out.Pix[i] = a
				}
			}
		}
	}

	return out
}
