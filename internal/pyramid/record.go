package pyramid

import (
	"hash/fnv"
	"math/rand"
	"sort"
)

// BuildLeafRecord assembles a finest-level record. sorted is the complete cell point list
// ordered by distance to the selected representative; final is the candidate whose image was
// acquired.
func BuildLeafRecord(key CellKey, sorted []Point, final Point, image string, opts Options) CellRecord {
	return CellRecord{
		Count:    len(sorted),
		Image:    image,
		URL:      final.URL,
		Caption:  final.Caption,
		Examples: leafExamples(key, sorted, opts),
	}
}

func leafExamples(key CellKey, sorted []Point, opts Options) []Example {
	limit := opts.ExamplesPerCell
	if len(sorted) <= limit {
		out := make([]Example, len(sorted))
		for i, p := range sorted {
			out[i] = Example{URL: p.URL, Caption: p.Caption}
		}
		return out
	}

	r := rand.New(rand.NewSource(cellSeed(opts.Seed, key)))
	idx := sampleIndices(len(sorted), limit, r)
	out := make([]Example, len(idx))
	for i, j := range idx {
		out[i] = Example{URL: sorted[j].URL, Caption: sorted[j].Caption}
	}
	return out
}

// cellSeed derives a per-cell seed so sampling does not depend on worker scheduling.
func cellSeed(seed int64, key CellKey) int64 {
	h := fnv.New64a()
	h.Write([]byte(key.String()))
	return seed ^ int64(h.Sum64())
}

// sampleIndices draws k distinct indices from [0, n) and returns them ascending.
func sampleIndices(n, k int, r *rand.Rand) []int {
	if k >= n {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	if k <= 0 {
		return []int{}
	}

	// Partial Fisher-Yates over a virtual identity permutation.
	swapped := make(map[int]int, k)
	at := func(i int) int {
		if v, ok := swapped[i]; ok {
			return v
		}
		return i
	}
	idx := make([]int, k)
	for i := 0; i < k; i++ {
		j := i + r.Intn(n-i)
		vi, vj := at(i), at(j)
		swapped[i], swapped[j] = vj, vi
		idx[i] = vj
	}
	sort.Ints(idx)
	return idx
}
