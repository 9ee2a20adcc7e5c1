package compositor

import (
	"image"
	"math"

	"golang.org/x/image/draw"
)

// Cover scales src uniformly until it covers width x height and crops the
// centre. The scale is chosen from the height first and grown again if the
// width still falls short.
func Cover(src image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))

	sb := src.Bounds()
	if sb.Empty() {
		return dst
	}

	scale := float64(height) / float64(sb.Dy())
	if float64(sb.Dx())*scale < float64(width) {
		scale = float64(width) / float64(sb.Dx())
	}

	// Source region that maps onto the target after scaling.
	cw := min(sb.Dx(), int(math.Round(float64(width)/scale)))
	ch := min(sb.Dy(), int(math.Round(float64(height)/scale)))
	x0 := sb.Min.X + (sb.Dx()-cw)/2
	y0 := sb.Min.Y + (sb.Dy()-ch)/2

	draw.CatmullRom.Scale(dst, dst.Bounds(), src, image.Rect(x0, y0, x0+cw, y0+ch), draw.Src, nil)

	return dst
}

// Enhance multiplies saturation and value in HSV space, then applies a
// gamma curve to CIELAB lightness. A gamma below 1 lifts shadows.
func Enhance(img *image.RGBA, saturation, value, gamma float64) {
	doHSV := saturation != 1 || value != 1
	doLab := gamma != 1 && gamma > 0

	if !doHSV && !doLab {
		return
	}

	pix := img.Pix
	for i := 0; i+3 < len(pix); i += 4 {
		r := float64(pix[i]) / 255
		g := float64(pix[i+1]) / 255
		b := float64(pix[i+2]) / 255

		if doHSV {
			h, s, v := rgbToHSV(r, g, b)
			r, g, b = hsvToRGB(h, clamp01(s*saturation), clamp01(v*value))
		}

		if doLab {
			l, a, bb := rgbToLab(r, g, b)
			l = 100 * math.Pow(l/100, gamma)
			r, g, b = labToRGB(l, a, bb)
		}

		pix[i] = to8(r)
		pix[i+1] = to8(g)
		pix[i+2] = to8(b)
	}
}

// GaussianBlur blurs img with a size x size kernel. Even sizes are rounded
// up to the next odd size; a non-positive sigma is derived from the size.
func GaussianBlur(img *image.RGBA, size int, sigma float64) {
	if size <= 1 {
		return
	}

	if size%2 == 0 {
		size++
	}

	if sigma <= 0 {
		sigma = 0.3*(float64(size-1)*0.5-1) + 0.8
	}

	kernel := gaussianKernel(size, sigma)
	radius := size / 2
	w, h := img.Rect.Dx(), img.Rect.Dy()
	tmp := make([]float32, w*h*3)

	// Horizontal pass into tmp.
	for y := range h {
		row := img.Pix[y*img.Stride:]

		for x := range w {
			var r, g, b float32

			for k, kv := range kernel {
				sx := clampInt(x+k-radius, 0, w-1) * 4
				r += kv * float32(row[sx])
				g += kv * float32(row[sx+1])
				b += kv * float32(row[sx+2])
			}

			o := (y*w + x) * 3
			tmp[o], tmp[o+1], tmp[o+2] = r, g, b
		}
	}

	// Vertical pass back into img.
	for y := range h {
		for x := range w {
			var r, g, b float32

			for k, kv := range kernel {
				o := (clampInt(y+k-radius, 0, h-1)*w + x) * 3
				r += kv * tmp[o]
				g += kv * tmp[o+1]
				b += kv * tmp[o+2]
			}

			p := y*img.Stride + x*4
			img.Pix[p] = roundByte(r)
			img.Pix[p+1] = roundByte(g)
			img.Pix[p+2] = roundByte(b)
		}
	}
}

func gaussianKernel(size int, sigma float64) []float32 {
	kernel := make([]float32, size)
	radius := size / 2

	var sum float64

	weights := make([]float64, size)
	for i := range size {
		d := float64(i - radius)
		weights[i] = math.Exp(-(d * d) / (2 * sigma * sigma))
		sum += weights[i]
	}

	for i, w := range weights {
		kernel[i] = float32(w / sum)
	}

	return kernel
}

// Kuwahara smooths img while keeping edges: each pixel takes the mean
// color of whichever of its four (radius+1)-square quadrants has the
// lowest luminance variance.
func Kuwahara(img *image.RGBA, radius int) {
	if radius <= 0 {
		return
	}

	w, h := img.Rect.Dx(), img.Rect.Dy()
	sat := newSummedArea(img)
	out := make([]uint8, len(img.Pix))
	copy(out, img.Pix)

	for y := range h {
		for x := range w {
			best := math.Inf(1)

			var mr, mg, mb float64

			for _, q := range [4][4]int{
				{x - radius, y - radius, x, y},
				{x, y - radius, x + radius, y},
				{x - radius, y, x, y + radius},
				{x, y, x + radius, y + radius},
			} {
				x0, y0 := max(q[0], 0), max(q[1], 0)
				x1, y1 := min(q[2], w-1), min(q[3], h-1)

				n, r, g, b, l, l2 := sat.sum(x0, y0, x1, y1)
				mean := l / n
				variance := l2/n - mean*mean

				if variance < best {
					best = variance
					mr, mg, mb = r/n, g/n, b/n
				}
			}

			p := y*img.Stride + x*4
			out[p] = roundByte(float32(mr))
			out[p+1] = roundByte(float32(mg))
			out[p+2] = roundByte(float32(mb))
		}
	}

	copy(img.Pix, out)
}

// summedArea holds inclusive prefix sums of color, luminance and squared
// luminance, padded by one row and column of zeros.
type summedArea struct {
	w             int
	r, g, b, l, q []float64
}

func newSummedArea(img *image.RGBA) *summedArea {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	stride := w + 1
	size := stride * (h + 1)

	s := &summedArea{
		w: w,
		r: make([]float64, size), g: make([]float64, size), b: make([]float64, size),
		l: make([]float64, size), q: make([]float64, size),
	}

	for y := range h {
		for x := range w {
			p := y*img.Stride + x*4
			r, g, b := float64(img.Pix[p]), float64(img.Pix[p+1]), float64(img.Pix[p+2])
			lum := 0.299*r + 0.587*g + 0.114*b

			i := (y+1)*stride + x + 1
			up, left, diag := i-stride, i-1, i-stride-1

			s.r[i] = r + s.r[up] + s.r[left] - s.r[diag]
			s.g[i] = g + s.g[up] + s.g[left] - s.g[diag]
			s.b[i] = b + s.b[up] + s.b[left] - s.b[diag]
			s.l[i] = lum + s.l[up] + s.l[left] - s.l[diag]
			s.q[i] = lum*lum + s.q[up] + s.q[left] - s.q[diag]
		}
	}

	return s
}

// sum returns the pixel count and sums over the inclusive rectangle.
func (s *summedArea) sum(x0, y0, x1, y1 int) (n, r, g, b, l, q float64) {
	stride := s.w + 1
	a := y0*stride + x0
	bb := y0*stride + x1 + 1
	c := (y1+1)*stride + x0
	d := (y1+1)*stride + x1 + 1

	area := func(t []float64) float64 { return t[d] - t[bb] - t[c] + t[a] }

	return float64((x1 - x0 + 1) * (y1 - y0 + 1)), area(s.r), area(s.g), area(s.b), area(s.l), area(s.q)
}

func rgbToHSV(r, g, b float64) (h, s, v float64) {
	maxC := max(r, g, b)
	minC := min(r, g, b)
	delta := maxC - minC
	v = maxC

	if maxC > 0 {
		s = delta / maxC
	}

	if delta == 0 {
		return 0, s, v
	}

	switch maxC {
	case r:
		h = math.Mod((g-b)/delta, 6)
	case g:
		h = (b-r)/delta + 2
	default:
		h = (r-g)/delta + 4
	}

	h *= 60
	if h < 0 {
		h += 360
	}

	return h, s, v
}

func hsvToRGB(h, s, v float64) (r, g, b float64) {
	c := v * s
	x := c * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := v - c

	switch {
	case h < 60:
		r, g, b = c, x, 0
	case h < 120:
		r, g, b = x, c, 0
	case h < 180:
		r, g, b = 0, c, x
	case h < 240:
		r, g, b = 0, x, c
	case h < 300:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}

	return r + m, g + m, b + m
}

// D65 reference white.
const (
	whiteX = 0.95047
	whiteY = 1.0
	whiteZ = 1.08883
)

func rgbToLab(r, g, b float64) (l, a, bb float64) {
	rl, gl, bl := linearize(r), linearize(g), linearize(b)

	x := (0.4124564*rl + 0.3575761*gl + 0.1804375*bl) / whiteX
	y := (0.2126729*rl + 0.7151522*gl + 0.0721750*bl) / whiteY
	z := (0.0193339*rl + 0.1191920*gl + 0.9503041*bl) / whiteZ

	fx, fy, fz := labF(x), labF(y), labF(z)

	return 116*fy - 16, 500 * (fx - fy), 200 * (fy - fz)
}

func labToRGB(l, a, bb float64) (r, g, b float64) {
	fy := (l + 16) / 116
	fx := fy + a/500
	fz := fy - bb/200

	x := labFInv(fx) * whiteX
	y := labFInv(fy) * whiteY
	z := labFInv(fz) * whiteZ

	rl := 3.2404542*x - 1.5371385*y - 0.4985314*z
	gl := -0.9692660*x + 1.8760108*y + 0.0415560*z
	bl := 0.0556434*x - 0.2040259*y + 1.0572252*z

	return delinearize(rl), delinearize(gl), delinearize(bl)
}

const (
	labEpsilon = 216.0 / 24389.0
	labKappa   = 24389.0 / 27.0
)

func labF(t float64) float64 {
	if t > labEpsilon {
		return math.Cbrt(t)
	}

	return (labKappa*t + 16) / 116
}

func labFInv(t float64) float64 {
	if t3 := t * t * t; t3 > labEpsilon {
		return t3
	}

	return (116*t - 16) / labKappa
}

func linearize(c float64) float64 {
	if c <= 0.04045 {
		return c / 12.92
	}

	return math.Pow((c+0.055)/1.055, 2.4)
}

func delinearize(c float64) float64 {
	c = clamp01(c)
	if c <= 0.0031308 {
		return 12.92 * c
	}

	return 1.055*math.Pow(c, 1/2.4) - 0.055
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

func to8(v float64) uint8 {
	return uint8(math.Round(clamp01(v) * 255))
}

func roundByte(v float32) uint8 {
	if v <= 0 {
		return 0
	}

	if v >= 255 {
		return 255
	}

	return uint8(v + 0.5)
}
