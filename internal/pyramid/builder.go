package pyramid

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
)

// Acquisition describes a successful image acquisition for a leaf cell.
type Acquisition struct {
	// Index of the winning candidate.
	Index int
	// Path is the image path relative to the output directory.
	Path string
	// Attempts counts candidates tried, including the winner.
	Attempts int
	// Reused is set when the destination already existed and nothing was fetched.
	Reused bool
}

// ImageAcquirer persists a thumbnail for the first viable candidate of a leaf cell.
type ImageAcquirer interface {
	Acquire(ctx context.Context, key CellKey, candidates []Point) (Acquisition, bool)
}

// CellOutcome is reported for every processed leaf cell.
type CellOutcome struct {
	Key         CellKey
	Points      int
	Acquired    bool
	Acquisition Acquisition
	// URL of the final representative, empty when the cell was dropped.
	URL string
}

// BuildStats summarizes a pyramid build.
type BuildStats struct {
	Points        int
	LeafCells     int
	AcquiredCells int
	DroppedCells  int
	ReusedImages  int
}

// BuilderConfig contains builder configuration.
type BuilderConfig struct {
	Options  Options
	Acquirer ImageAcquirer
	// Workers bounds the number of cells processed concurrently (default 32).
	Workers int
	// OnCell, if set, is called from the coordinating goroutine for every finished cell.
	OnCell func(CellOutcome)
	// ProgressEvery logs progress after this many cells (default 1000).
	ProgressEvery int
}

// Builder runs the leaf stage on a bounded worker pool and derives the coarser levels.
type Builder struct {
	cfg BuilderConfig
}

type cellJob struct {
	key    CellKey
	points []Point
}

type cellResult struct {
	record  CellRecord
	outcome CellOutcome
}

// NewBuilder creates a new pyramid builder.
func NewBuilder(cfg BuilderConfig) *Builder {
	if cfg.Workers <= 0 {
		cfg.Workers = 32
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = 1000
	}
	return &Builder{cfg: cfg}
}

// Build normalizes raw points, buckets them and produces the full pyramid.
func (b *Builder) Build(ctx context.Context, raw []Point) (Pyramid, BuildStats, error) {
	if err := b.cfg.Options.Validate(); err != nil {
		return Pyramid{}, BuildStats{}, fmt.Errorf("invalid pyramid options: %w", err)
	}

	points, err := Normalize(raw)
	if err != nil {
		return Pyramid{}, BuildStats{}, err
	}

	leafSize := b.cfg.Options.LeafSize()
	buckets := Bucket(points, leafSize)
	log.Printf("[Builder] Bucketed %d points into %d cells (grid %d)", len(points), len(buckets), leafSize)

	leaf, stats, err := b.BuildLeaf(ctx, buckets)
	if err != nil {
		return Pyramid{}, stats, err
	}
	stats.Points = len(points)

	return BuildPyramid(leaf, b.cfg.Options), stats, nil
}

// BuildLeaf selects, acquires and records every bucketed leaf cell. Cells whose candidates all
// fail are dropped.
func (b *Builder) BuildLeaf(ctx context.Context, buckets map[CellKey][]Point) (Level, BuildStats, error) {
	opts := b.cfg.Options
	level := NewLevel(opts.LeafSize())
	stats := BuildStats{LeafCells: len(buckets)}

	keys := make([]CellKey, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	jobs := make(chan cellJob, b.cfg.Workers*2)
	results := make(chan cellResult, b.cfg.Workers*2)

	go func() {
		defer close(jobs)
		for _, k := range keys {
			select {
			case jobs <- cellJob{key: k, points: buckets[k]}:
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < b.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				if ctx.Err() != nil {
					continue
				}
				results <- b.processCell(ctx, job)
			}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	done := 0
	for res := range results {
		done++
		if res.outcome.Acquired {
			level.Cells[res.outcome.Key] = res.record
			stats.AcquiredCells++
			if res.outcome.Acquisition.Reused {
				stats.ReusedImages++
			}
		} else {
			stats.DroppedCells++
			log.Printf("[Builder] Dropped cell %s: no candidate image could be acquired (%d points)",
				res.outcome.Key, res.outcome.Points)
		}
		if b.cfg.OnCell != nil {
			b.cfg.OnCell(res.outcome)
		}
		if done%b.cfg.ProgressEvery == 0 || done == len(keys) {
			log.Printf("[Builder] Processed %d/%d cells (%d acquired, %d dropped)",
				done, len(keys), stats.AcquiredCells, stats.DroppedCells)
		}
	}

	if err := ctx.Err(); err != nil {
		return level, stats, fmt.Errorf("leaf stage interrupted after %d/%d cells: %w", done, len(keys), err)
	}
	return level, stats, nil
}

func (b *Builder) processCell(ctx context.Context, job cellJob) cellResult {
	opts := b.cfg.Options
	outcome := CellOutcome{Key: job.key, Points: len(job.points)}

	rep, ok := SelectRepresentative(job.points, CellBounds(job.key, opts.LeafSize()), opts)
	if !ok {
		return cellResult{outcome: outcome}
	}

	sorted := SortByDistance(job.points, rep)
	candidates := sorted
	if len(candidates) > opts.CandidateLimit {
		candidates = candidates[:opts.CandidateLimit]
	}

	acq, ok := b.cfg.Acquirer.Acquire(ctx, job.key, candidates)
	if !ok || acq.Index < 0 || acq.Index >= len(candidates) {
		return cellResult{outcome: outcome}
	}

	final := candidates[acq.Index]
	outcome.Acquired = true
	outcome.Acquisition = acq
	outcome.URL = final.URL

	return cellResult{
		record:  BuildLeafRecord(job.key, sorted, final, acq.Path, opts),
		outcome: outcome,
	}
}
