// Package colormap provides sequential color schemes for density overviews.
package colormap

import (
	"fmt"
	"image/color"
	"sort"
)

// Colormap maps normalized values [0, 1] to colors.
type Colormap interface {
	At(t float64) color.Color
}

// LinearColormap interpolates linearly between evenly spaced stops.
type LinearColormap struct {
	stops []color.RGBA
}

// At returns the color at position t (0-1). Values outside the range are clamped.
func (c LinearColormap) At(t float64) color.Color {
	if t <= 0 {
		return c.stops[0]
	}
	if t >= 1 {
		return c.stops[len(c.stops)-1]
	}

	pos := t * float64(len(c.stops)-1)
	lower := int(pos)
	upper := lower + 1
	if upper >= len(c.stops) {
		upper = len(c.stops) - 1
	}
	return lerp(c.stops[lower], c.stops[upper], pos-float64(lower))
}

// Reversed returns the colormap with its stops in reverse order.
func (c LinearColormap) Reversed() LinearColormap {
	out := make([]color.RGBA, len(c.stops))
	for i, s := range c.stops {
		out[len(out)-1-i] = s
	}
	return LinearColormap{stops: out}
}

func lerp(a, b color.RGBA, t float64) color.RGBA {
	return color.RGBA{
		R: uint8(float64(a.R) + t*(float64(b.R)-float64(a.R))),
		G: uint8(float64(a.G) + t*(float64(b.G)-float64(a.G))),
		B: uint8(float64(a.B) + t*(float64(b.B)-float64(a.B))),
		A: 255,
	}
}

// Viridis (matplotlib)
var Viridis = LinearColormap{
	stops: []color.RGBA{
		{68, 1, 84, 255},
		{72, 35, 116, 255},
		{64, 67, 135, 255},
		{52, 94, 141, 255},
		{41, 120, 142, 255},
		{32, 144, 140, 255},
		{34, 167, 132, 255},
		{68, 190, 112, 255},
		{121, 209, 81, 255},
		{189, 222, 38, 255},
		{253, 231, 37, 255},
	},
}

// Magma (matplotlib)
var Magma = LinearColormap{
	stops: []color.RGBA{
		{0, 0, 4, 255},
		{28, 16, 68, 255},
		{79, 18, 123, 255},
		{129, 37, 129, 255},
		{181, 54, 122, 255},
		{229, 80, 100, 255},
		{251, 135, 97, 255},
		{254, 194, 135, 255},
		{252, 253, 191, 255},
	},
}

// Greys runs from white to black, for print-friendly overviews.
var Greys = LinearColormap{
	stops: []color.RGBA{
		{255, 255, 255, 255},
		{189, 189, 189, 255},
		{115, 115, 115, 255},
		{37, 37, 37, 255},
		{0, 0, 0, 255},
	},
}

var registry = map[string]LinearColormap{
	"viridis":   Viridis,
	"magma":     Magma,
	"greys":     Greys,
	"viridis_r": Viridis.Reversed(),
}

// ByName looks up a registered colormap.
func ByName(name string) (Colormap, error) {
	c, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown colormap %q (available: %v)", name, Names())
	}
	return c, nil
}

// Names lists the registered colormaps in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
