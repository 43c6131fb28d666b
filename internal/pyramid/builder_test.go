package pyramid

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

// fakeAcquirer succeeds on the first candidate whose URL is not listed as failing.
type fakeAcquirer struct {
	mu      sync.Mutex
	failing map[string]bool
	calls   map[CellKey][]string
}

func newFakeAcquirer(failing ...string) *fakeAcquirer {
	f := &fakeAcquirer{failing: map[string]bool{}, calls: map[CellKey][]string{}}
	for _, u := range failing {
		f.failing[u] = true
	}
	return f
}

func (f *fakeAcquirer) Acquire(_ context.Context, key CellKey, candidates []Point) (Acquisition, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, c := range candidates {
		f.calls[key] = append(f.calls[key], c.URL)
		if f.failing[c.URL] {
			continue
		}
		return Acquisition{Index: i, Path: fmt.Sprintf("images/256/%d_%d.webp", key.X, key.Y), Attempts: i + 1}, true
	}
	return Acquisition{Attempts: len(candidates)}, false
}

func TestBuildLeaf_FallbackCandidate(t *testing.T) {
	key := CellKey{X: 10, Y: 20}
	center := CellBounds(key, 256).Center()
	w := 1.0 / 256

	points := []Point{
		{URL: "D", Caption: "d", X: center[0] + 0.3*w, Y: center[1]},
		{URL: "B", Caption: "b", X: center[0] + 0.1*w, Y: center[1]},
		{URL: "A", Caption: "a", X: center[0], Y: center[1]},
		{URL: "C", Caption: "c", X: center[0] - 0.2*w, Y: center[1]},
	}

	acq := newFakeAcquirer("A")
	var outcomes []CellOutcome
	b := NewBuilder(BuilderConfig{
		Options:  DefaultOptions(),
		Acquirer: acq,
		Workers:  4,
		OnCell:   func(o CellOutcome) { outcomes = append(outcomes, o) },
	})

	level, stats, err := b.BuildLeaf(context.Background(), map[CellKey][]Point{key: points})
	if err != nil {
		t.Fatalf("BuildLeaf error: %v", err)
	}

	rec, ok := level.Cells[key]
	if !ok {
		t.Fatal("expected cell 10,20")
	}
	if rec.Count != 4 {
		t.Errorf("expected count 4, got %d", rec.Count)
	}
	if rec.Image != "images/256/10_20.webp" {
		t.Errorf("unexpected image %s", rec.Image)
	}
	if rec.URL != "B" || rec.Caption != "b" {
		t.Errorf("expected fallback candidate B, got %s/%s", rec.URL, rec.Caption)
	}

	want := []string{"A", "B", "C", "D"}
	if len(rec.Examples) != len(want) {
		t.Fatalf("expected %d examples, got %d", len(want), len(rec.Examples))
	}
	for i, u := range want {
		if rec.Examples[i].URL != u {
			t.Errorf("example %d: expected %s, got %s", i, u, rec.Examples[i].URL)
		}
	}

	if got := acq.calls[key]; len(got) != 2 || got[0] != "A" || got[1] != "B" {
		t.Errorf("expected attempts A then B, got %v", got)
	}
	if stats.AcquiredCells != 1 || stats.DroppedCells != 0 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if len(outcomes) != 1 || outcomes[0].URL != "B" || outcomes[0].Acquisition.Index != 1 {
		t.Errorf("unexpected outcomes %+v", outcomes)
	}
}

func TestBuildLeaf_DropsCellWhenAllCandidatesFail(t *testing.T) {
	good := CellKey{X: 1, Y: 1}
	bad := CellKey{X: 200, Y: 3}
	buckets := map[CellKey][]Point{
		good: {{URL: "ok", X: 1.5 / 256, Y: 1.5 / 256}},
		bad: {
			{URL: "x1", X: 200.5 / 256, Y: 3.5 / 256},
			{URL: "x2", X: 200.6 / 256, Y: 3.5 / 256},
		},
	}

	b := NewBuilder(BuilderConfig{Options: DefaultOptions(), Acquirer: newFakeAcquirer("x1", "x2")})
	level, stats, err := b.BuildLeaf(context.Background(), buckets)
	if err != nil {
		t.Fatalf("BuildLeaf error: %v", err)
	}
	if _, ok := level.Cells[bad]; ok {
		t.Fatal("cell with no acquirable image must be dropped")
	}
	if _, ok := level.Cells[good]; !ok {
		t.Fatal("expected the good cell to be kept")
	}
	if stats.DroppedCells != 1 || stats.AcquiredCells != 1 || stats.LeafCells != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestBuildLeaf_CandidateLimit(t *testing.T) {
	key := CellKey{X: 0, Y: 0}
	var points []Point
	var failing []string
	for i := 0; i < 30; i++ {
		u := fmt.Sprintf("p%d", i)
		points = append(points, Point{URL: u, X: float64(i) * 0.0001, Y: 0})
		failing = append(failing, u)
	}

	acq := newFakeAcquirer(failing...)
	b := NewBuilder(BuilderConfig{Options: DefaultOptions(), Acquirer: acq})
	level, _, err := b.BuildLeaf(context.Background(), map[CellKey][]Point{key: points})
	if err != nil {
		t.Fatalf("BuildLeaf error: %v", err)
	}
	if len(level.Cells) != 0 {
		t.Fatal("expected the cell to be dropped")
	}
	if n := len(acq.calls[key]); n != 10 {
		t.Fatalf("expected 10 attempts, got %d", n)
	}
}

func TestBuild_EndToEnd(t *testing.T) {
	var raw []Point
	for i := 0; i < 300; i++ {
		raw = append(raw, Point{
			URL: fmt.Sprintf("u%d", i),
			X:   float64(i%17) * 3.1,
			Y:   float64(i%23) * -1.7,
		})
	}

	b := NewBuilder(BuilderConfig{Options: DefaultOptions(), Acquirer: newFakeAcquirer()})
	p, stats, err := b.Build(context.Background(), raw)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if stats.Points != 300 {
		t.Fatalf("expected 300 points, got %d", stats.Points)
	}
	for _, level := range p.Levels {
		if level.TotalCount() != 300 {
			t.Errorf("%s: expected total 300, got %d", level.Name(), level.TotalCount())
		}
	}
}

func TestBuild_EmptyInput(t *testing.T) {
	b := NewBuilder(BuilderConfig{Options: DefaultOptions(), Acquirer: newFakeAcquirer()})
	if _, _, err := b.Build(context.Background(), nil); !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}
}

func TestBuildLeaf_Cancelled(t *testing.T) {
	buckets := map[CellKey][]Point{}
	for i := 0; i < 50; i++ {
		key := CellKey{X: i, Y: i}
		buckets[key] = []Point{{URL: key.String(), X: (float64(i) + 0.5) / 256, Y: (float64(i) + 0.5) / 256}}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := NewBuilder(BuilderConfig{Options: DefaultOptions(), Acquirer: newFakeAcquirer()})
	_, _, err := b.BuildLeaf(ctx, buckets)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
