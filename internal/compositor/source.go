package compositor

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/webp"
)

// MaxSourcePixels bounds the declared size of a background. Headers are
// checked before decoding, so a small file claiming huge dimensions is
// rejected without allocating its pixels.
const MaxSourcePixels = 64 << 20

// ErrImageTooLarge is returned for backgrounds above MaxSourcePixels.
var ErrImageTooLarge = errors.New("image too large")

// Decode reads a JPEG, PNG, GIF or WebP background.
func Decode(data []byte) (image.Image, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image header (%d bytes): %w", len(data), err)
	}

	if px := int64(cfg.Width) * int64(cfg.Height); px > MaxSourcePixels {
		return nil, fmt.Errorf("decode %s image %dx%d: %w", format, cfg.Width, cfg.Height, ErrImageTooLarge)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image (%d bytes): %w", len(data), err)
	}

	if img.Bounds().Empty() {
		return nil, fmt.Errorf("decode %s image: empty bounds", format)
	}

	return img, nil
}

// LoadFallback returns the static background at path, or a generated
// gradient when path is empty.
func LoadFallback(path string) (image.Image, error) {
	if path == "" {
		return Gradient(480, 800), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fallback image: %w", err)
	}

	return Decode(data)
}

// Gradient is a dark vertical slate gradient that keeps white text
// readable once blurred and composited.
func Gradient(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	top := color.RGBA{R: 52, G: 63, B: 86, A: 255}
	bottom := color.RGBA{R: 14, G: 17, B: 26, A: 255}

	for y := range height {
		t := 0.0
		if height > 1 {
			t = float64(y) / float64(height-1)
		}

		c := color.RGBA{
			R: mix(top.R, bottom.R, t),
			G: mix(top.G, bottom.G, t),
			B: mix(top.B, bottom.B, t),
			A: 255,
		}

		row := img.Pix[y*img.Stride : y*img.Stride+width*4]
		for x := 0; x < len(row); x += 4 {
			row[x], row[x+1], row[x+2], row[x+3] = c.R, c.G, c.B, c.A
		}
	}

	return img
}

func mix(a, b uint8, t float64) uint8 {
	return uint8(float64(a) + (float64(b)-float64(a))*t + 0.5)
}
