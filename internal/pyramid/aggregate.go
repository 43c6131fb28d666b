package pyramid

import "log"

// childOffsets is the fixed quadrant order used for best-child ties and example merging.
var childOffsets = [4][2]int{{0, 0}, {0, 1}, {1, 0}, {1, 1}}

// Aggregate merges 2x2 blocks of finer into a level of size target.
//
// The coarse record inherits image, url and caption from the child with the highest count
// (first in quadrant order on ties); counts are summed and examples are merged evenly.
func Aggregate(finer Level, target int, examplesPerCell int) Level {
	coarse := NewLevel(target)
	children := make([]CellRecord, 0, 4)

	for cx := 0; cx < target; cx++ {
		for cy := 0; cy < target; cy++ {
			children = children[:0]
			for _, off := range childOffsets {
				if rec, ok := finer.Cells[CellKey{X: cx*2 + off[0], Y: cy*2 + off[1]}]; ok {
					children = append(children, rec)
				}
			}
			if len(children) == 0 {
				continue
			}
			coarse.Cells[CellKey{X: cx, Y: cy}] = mergeChildren(children, examplesPerCell)
		}
	}
	return coarse
}

func mergeChildren(children []CellRecord, limit int) CellRecord {
	best := 0
	total := 0
	for i, c := range children {
		total += c.Count
		if c.Count > children[best].Count {
			best = i
		}
	}

	take := (limit + len(children) - 1) / len(children)
	examples := make([]Example, 0, limit)
	for _, c := range children {
		n := take
		if n > len(c.Examples) {
			n = len(c.Examples)
		}
		examples = append(examples, c.Examples[:n]...)
	}
	if len(examples) > limit {
		examples = examples[:limit]
	}

	return CellRecord{
		Count:    total,
		Image:    children[best].Image,
		URL:      children[best].URL,
		Caption:  children[best].Caption,
		Examples: examples,
	}
}

// BuildPyramid derives every coarser level from the finest one, in opts.LevelSizes order.
func BuildPyramid(leaf Level, opts Options) Pyramid {
	p := Pyramid{Levels: []Level{leaf}}
	current := leaf
	for _, size := range opts.LevelSizes[1:] {
		log.Printf("[Builder] Aggregating grid %d -> %d", current.Size, size)
		current = Aggregate(current, size, opts.ExamplesPerCell)
		p.Levels = append(p.Levels, current)
	}
	return p
}
