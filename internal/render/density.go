// Package render draws per-level density overviews using fogleman/gg.
package render

import (
	"bytes"
	"fmt"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/fogleman/gg"

	"github.com/wheredidthecitygo/Where-did-the-city-go---Code/internal/pyramid"
	"github.com/wheredidthecitygo/Where-did-the-city-go---Code/pkg/colormap"
)

// Config contains renderer configuration.
type Config struct {
	// ImageSize is the edge of the square overview in pixels.
	ImageSize int
	Colormap  string
}

// DensityRenderer renders one pixel block per cell, colored by log point count.
type DensityRenderer struct {
	config     Config
	cmap       colormap.Colormap
	bufferPool sync.Pool
}

// NewDensityRenderer creates a new renderer.
func NewDensityRenderer(cfg Config) (*DensityRenderer, error) {
	if cfg.ImageSize <= 0 {
		cfg.ImageSize = 1024
	}
	if cfg.Colormap == "" {
		cfg.Colormap = "viridis"
	}
	cmap, err := colormap.ByName(cfg.Colormap)
	if err != nil {
		return nil, err
	}
	return &DensityRenderer{
		config: cfg,
		cmap:   cmap,
		bufferPool: sync.Pool{
			New: func() interface{} {
				return bytes.NewBuffer(make([]byte, 0, 64*1024))
			},
		},
	}, nil
}

// FileName is the overview file name for a level.
func FileName(level pyramid.Level) string {
	return level.Name() + "_density.png"
}

// Render draws the level. The top row of the image is the maximum y of the grid.
func (r *DensityRenderer) Render(level pyramid.Level) ([]byte, error) {
	size := float64(r.config.ImageSize)
	dc := gg.NewContext(r.config.ImageSize, r.config.ImageSize)
	dc.SetColor(color.White)
	dc.Clear()

	maxCount := 0
	for _, rec := range level.Cells {
		if rec.Count > maxCount {
			maxCount = rec.Count
		}
	}
	if maxCount == 0 || level.Size <= 0 {
		return r.encodeContext(dc)
	}

	cellSize := size / float64(level.Size)
	norm := math.Log1p(float64(maxCount))

	for key, rec := range level.Cells {
		px := float64(key.X) * cellSize
		py := float64(level.Size-1-key.Y) * cellSize

		t := 1.0
		if norm > 0 {
			t = math.Log1p(float64(rec.Count)) / norm
		}
		dc.SetColor(r.cmap.At(t))
		dc.DrawRectangle(px, py, cellSize, cellSize)
		dc.Fill()
	}

	return r.encodeContext(dc)
}

// WriteFile renders the level into dir and returns the file name.
func (r *DensityRenderer) WriteFile(dir string, level pyramid.Level) (string, error) {
	data, err := r.Render(level)
	if err != nil {
		return "", fmt.Errorf("failed to render %s: %w", level.Name(), err)
	}
	name := FileName(level)
	if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	return name, nil
}

func (r *DensityRenderer) encodeContext(dc *gg.Context) ([]byte, error) {
	buf := r.bufferPool.Get().(*bytes.Buffer)
	defer func() {
		buf.Reset()
		r.bufferPool.Put(buf)
	}()

	encoder := png.Encoder{CompressionLevel: png.BestCompression}
	if err := encoder.Encode(buf, dc.Image()); err != nil {
		return nil, err
	}

	result := make([]byte, buf.Len())
	copy(result, buf.Bytes())
	return result, nil
}
