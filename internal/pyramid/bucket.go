package pyramid

import (
	"math"

	"github.com/paulmach/orb"
)

// cellIndex maps a unit coordinate to a cell index, clamping 1.0 into the last cell.
func cellIndex(v float64, n int) int {
	idx := int(math.Floor(v * float64(n)))
	if idx >= n {
		idx = n - 1
	}
	if idx < 0 {
		idx = 0
	}
	return idx
}

// Bucket groups normalized points by leaf cell. Points keep their input order inside a cell.
func Bucket(points []Point, n int) map[CellKey][]Point {
	buckets := make(map[CellKey][]Point)
	for _, p := range points {
		key := CellKey{X: cellIndex(p.X, n), Y: cellIndex(p.Y, n)}
		buckets[key] = append(buckets[key], p)
	}
	return buckets
}

// CellBounds returns the unit-square bounds of a cell in a grid of size n.
func CellBounds(key CellKey, n int) orb.Bound {
	w := 1.0 / float64(n)
	return orb.Bound{
		Min: orb.Point{float64(key.X) * w, float64(key.Y) * w},
		Max: orb.Point{float64(key.X+1) * w, float64(key.Y+1) * w},
	}
}
