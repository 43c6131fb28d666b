package pyramid

import (
	"github.com/golang/geo/r2"
)

// Bounds returns the bounding rectangle of the raw coordinates.
func Bounds(points []Point) r2.Rect {
	if len(points) == 0 {
		return r2.EmptyRect()
	}
	rect := r2.RectFromPoints(r2.Point{X: points[0].X, Y: points[0].Y})
	for _, p := range points[1:] {
		rect = rect.AddPoint(r2.Point{X: p.X, Y: p.Y})
	}
	return rect
}

// Normalize rescales coordinates linearly to the unit square. The smallest raw x maps to 0 and
// the largest to 1, independently per axis.
func Normalize(points []Point) ([]Point, error) {
	if len(points) == 0 {
		return nil, ErrEmptyInput
	}

	rect := Bounds(points)
	xRange := rect.X.Length()
	yRange := rect.Y.Length()
	if xRange <= 0 || yRange <= 0 {
		return nil, ErrEmptyInput
	}

	out := make([]Point, len(points))
	for i, p := range points {
		out[i] = Point{
			URL:     p.URL,
			Caption: p.Caption,
			X:       clampUnit((p.X - rect.X.Lo) / xRange),
			Y:       clampUnit((p.Y - rect.Y.Lo) / yRange),
		}
	}
	return out, nil
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
