package pyramid

import (
	"fmt"
	"testing"
)

func examplesFor(prefix string, n int) []Example {
	out := make([]Example, n)
	for i := range out {
		out[i] = Example{URL: fmt.Sprintf("%s/%d", prefix, i), Caption: prefix}
	}
	return out
}

func leafRecord(key CellKey, count int) CellRecord {
	n := count
	if n > 100 {
		n = 100
	}
	return CellRecord{
		Count:    count,
		Image:    fmt.Sprintf("images/256/%d_%d.webp", key.X, key.Y),
		URL:      "url-" + key.String(),
		Caption:  "caption-" + key.String(),
		Examples: examplesFor(key.String(), n),
	}
}

func TestAggregate_CoarseCellScenario(t *testing.T) {
	finer := NewLevel(256)
	finer.Cells[CellKey{10, 10}] = leafRecord(CellKey{10, 10}, 3)
	finer.Cells[CellKey{10, 11}] = leafRecord(CellKey{10, 11}, 7)
	finer.Cells[CellKey{11, 11}] = leafRecord(CellKey{11, 11}, 2)
	// Each child holds a full example list so the per-child quota is visible.
	for k, rec := range finer.Cells {
		rec.Examples = examplesFor(k.String(), 100)
		finer.Cells[k] = rec
	}

	coarse := Aggregate(finer, 128, 100)

	rec, ok := coarse.Cells[CellKey{5, 5}]
	if !ok {
		t.Fatal("expected coarse cell 5,5")
	}
	if len(coarse.Cells) != 1 {
		t.Fatalf("expected exactly one coarse cell, got %d", len(coarse.Cells))
	}
	if rec.Count != 12 {
		t.Errorf("expected count 12, got %d", rec.Count)
	}
	if rec.Image != "images/256/10_11.webp" {
		t.Errorf("expected image of child 10,11, got %s", rec.Image)
	}
	if rec.URL != "url-10,11" || rec.Caption != "caption-10,11" {
		t.Errorf("expected url/caption of child 10,11, got %s / %s", rec.URL, rec.Caption)
	}

	if len(rec.Examples) != 100 {
		t.Fatalf("expected 100 examples, got %d", len(rec.Examples))
	}
	// ceil(100/3) = 34 from each child in quadrant order, truncated to 100.
	for i, ex := range rec.Examples {
		var want string
		switch {
		case i < 34:
			want = fmt.Sprintf("10,10/%d", i)
		case i < 68:
			want = fmt.Sprintf("10,11/%d", i-34)
		default:
			want = fmt.Sprintf("11,11/%d", i-68)
		}
		if ex.URL != want {
			t.Fatalf("example %d: expected %s, got %s", i, want, ex.URL)
		}
	}
}

func TestAggregate_BestChildTieUsesQuadrantOrder(t *testing.T) {
	finer := NewLevel(4)
	finer.Cells[CellKey{1, 0}] = leafRecord(CellKey{1, 0}, 5)
	finer.Cells[CellKey{0, 1}] = leafRecord(CellKey{0, 1}, 5)

	coarse := Aggregate(finer, 2, 100)
	rec := coarse.Cells[CellKey{0, 0}]
	if rec.Image != "images/256/0_1.webp" {
		t.Fatalf("expected child (0,1) to win the tie, got %s", rec.Image)
	}
}

func TestAggregate_ShortChildExampleLists(t *testing.T) {
	finer := NewLevel(4)
	finer.Cells[CellKey{2, 2}] = leafRecord(CellKey{2, 2}, 2)
	finer.Cells[CellKey{3, 3}] = leafRecord(CellKey{3, 3}, 4)

	rec := Aggregate(finer, 2, 100).Cells[CellKey{1, 1}]
	if len(rec.Examples) != 6 {
		t.Fatalf("expected all 6 child examples, got %d", len(rec.Examples))
	}
	if rec.Examples[0].URL != "2,2/0" || rec.Examples[2].URL != "3,3/0" {
		t.Fatalf("unexpected merge order: %+v", rec.Examples)
	}
}

func TestBuildPyramid_Invariants(t *testing.T) {
	leaf := NewLevel(256)
	for i := 0; i < 500; i++ {
		key := CellKey{X: (i * 37) % 256, Y: (i * 91) % 256}
		leaf.Cells[key] = leafRecord(key, 1+(i*13)%250)
	}

	p := BuildPyramid(leaf, DefaultOptions())
	if len(p.Levels) != 3 {
		t.Fatalf("expected 3 levels, got %d", len(p.Levels))
	}

	for li := 1; li < len(p.Levels); li++ {
		finer, coarse := p.Levels[li-1], p.Levels[li]
		if coarse.Size*2 != finer.Size {
			t.Fatalf("level %d has size %d, finer is %d", li, coarse.Size, finer.Size)
		}
		if coarse.TotalCount() != finer.TotalCount() {
			t.Errorf("level %d total %d != finer total %d", li, coarse.TotalCount(), finer.TotalCount())
		}

		for key, rec := range coarse.Cells {
			sum := 0
			images := map[string]bool{}
			for _, off := range childOffsets {
				child, ok := finer.Cells[CellKey{key.X*2 + off[0], key.Y*2 + off[1]}]
				if ok {
					sum += child.Count
					images[child.Image] = true
				}
			}
			if sum == 0 {
				t.Errorf("cell %s at level %d has no children", key, coarse.Size)
			}
			if rec.Count != sum {
				t.Errorf("cell %s: count %d != children sum %d", key, rec.Count, sum)
			}
			if !images[rec.Image] {
				t.Errorf("cell %s: image %s not inherited from a child", key, rec.Image)
			}
			if len(rec.Examples) > 100 {
				t.Errorf("cell %s: %d examples exceed cap", key, len(rec.Examples))
			}
			if rec.Count < 1 {
				t.Errorf("cell %s: empty cell materialized", key)
			}
		}
	}
}
