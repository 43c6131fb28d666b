package pyramid

import (
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

func (p Point) vec() orb.Point {
	return orb.Point{p.X, p.Y}
}

// closestTo returns the index of the point nearest to target; ties keep the first one.
func closestTo(points []Point, target orb.Point) int {
	best := -1
	bestDist := 0.0
	for i, p := range points {
		d := planar.DistanceSquared(p.vec(), target)
		if best < 0 || d < bestDist {
			best = i
			bestDist = d
		}
	}
	return best
}

// SelectRepresentative picks the point that stands for a cell.
//
// Small cells (at most opts.SmallCellThreshold points) use the point nearest to the cell
// center. Larger cells are split into an opts.MiniGrid square sub-grid; the most populated
// sub-cell wins (ties go to the lowest (mx, my)) and the point nearest to its center is chosen.
func SelectRepresentative(points []Point, bounds orb.Bound, opts Options) (Point, bool) {
	if len(points) == 0 {
		return Point{}, false
	}

	if len(points) <= opts.SmallCellThreshold {
		return points[closestTo(points, bounds.Center())], true
	}

	m := opts.MiniGrid
	miniW := (bounds.Max[0] - bounds.Min[0]) / float64(m)
	miniH := (bounds.Max[1] - bounds.Min[1]) / float64(m)

	sub := make([][]Point, m*m)
	for _, p := range points {
		mx := clampIndex(int((p.X-bounds.Min[0])/miniW), m)
		my := clampIndex(int((p.Y-bounds.Min[1])/miniH), m)
		idx := mx*m + my
		sub[idx] = append(sub[idx], p)
	}

	// idx = mx*m + my, so ascending idx is lexicographic (mx, my).
	densest := 0
	for idx := 1; idx < len(sub); idx++ {
		if len(sub[idx]) > len(sub[densest]) {
			densest = idx
		}
	}

	mx, my := densest/m, densest%m
	center := orb.Point{
		bounds.Min[0] + (float64(mx)+0.5)*miniW,
		bounds.Min[1] + (float64(my)+0.5)*miniH,
	}
	candidates := sub[densest]
	return candidates[closestTo(candidates, center)], true
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// SortByDistance returns a copy of points ordered by squared distance to ref.
// Equal distances keep input order.
func SortByDistance(points []Point, ref Point) []Point {
	target := ref.vec()
	dist := make([]float64, len(points))
	idx := make([]int, len(points))
	for i, p := range points {
		dist[i] = planar.DistanceSquared(p.vec(), target)
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return dist[idx[a]] < dist[idx[b]] })

	out := make([]Point, len(points))
	for i, j := range idx {
		out[i] = points[j]
	}
	return out
}
