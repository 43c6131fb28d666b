package thumb

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/fogleman/gg"
	"github.com/gen2brain/webp"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
)

// EncodeConfig configures thumbnail encoding.
type EncodeConfig struct {
	// MaxSize bounds the longer edge in pixels.
	MaxSize int
	// Quality is the lossy WebP quality (0-100).
	Quality int
}

// DefaultEncodeConfig returns the production settings.
func DefaultEncodeConfig() EncodeConfig {
	return EncodeConfig{MaxSize: 512, Quality: 85}
}

// Encoder turns raw image bytes into a WebP thumbnail.
type Encoder struct {
	cfg EncodeConfig
}

// NewEncoder creates an encoder.
func NewEncoder(cfg EncodeConfig) *Encoder {
	def := DefaultEncodeConfig()
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = def.MaxSize
	}
	if cfg.Quality <= 0 || cfg.Quality > 100 {
		cfg.Quality = def.Quality
	}
	return &Encoder{cfg: cfg}
}

// Encode decodes data, downsizes it so the longer edge is at most MaxSize, flattens any alpha
// onto white and encodes lossy WebP.
func (e *Encoder) Encode(data []byte) ([]byte, error) {
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	b := src.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("empty %s image", format)
	}

	w, h := FitWithin(b.Dx(), b.Dy(), e.cfg.MaxSize)
	scaled := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), src, b, draw.Src, nil)

	dc := gg.NewContext(w, h)
	dc.SetColor(color.White)
	dc.Clear()
	dc.DrawImage(scaled, 0, 0)

	var buf bytes.Buffer
	if err := webp.Encode(&buf, dc.Image(), webp.Options{Quality: e.cfg.Quality}); err != nil {
		return nil, fmt.Errorf("failed to encode webp: %w", err)
	}
	return buf.Bytes(), nil
}

// FitWithin scales (w, h) so the longer edge is at most max, keeping the aspect ratio.
// Images already within bounds are returned unchanged.
func FitWithin(w, h, max int) (int, int) {
	if w <= max && h <= max {
		return w, h
	}
	if w >= h {
		nh := h * max / w
		if nh < 1 {
			nh = 1
		}
		return max, nh
	}
	nw := w * max / h
	if nw < 1 {
		nw = 1
	}
	return nw, max
}
