// Package pyramid builds the multi-resolution cell pyramid from a normalized point cloud.
package pyramid

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrEmptyInput is returned when points cannot be normalized: the list is empty
// or one axis has zero range.
var ErrEmptyInput = errors.New("empty input: no points or zero coordinate range")

// Point is one image of the point cloud.
type Point struct {
	URL     string
	Caption string
	X       float64
	Y       float64
}

// CellKey addresses a cell inside one level.
type CellKey struct {
	X int
	Y int
}

// String returns the textual "cx,cy" form used as JSON object key.
func (k CellKey) String() string {
	return strconv.Itoa(k.X) + "," + strconv.Itoa(k.Y)
}

// Less orders keys numerically, x first.
func (k CellKey) Less(o CellKey) bool {
	if k.X != o.X {
		return k.X < o.X
	}
	return k.Y < o.Y
}

// ParseCellKey parses the "cx,cy" form.
func ParseCellKey(s string) (CellKey, error) {
	xs, ys, ok := strings.Cut(s, ",")
	if !ok {
		return CellKey{}, fmt.Errorf("invalid cell key %q", s)
	}
	x, err := strconv.Atoi(xs)
	if err != nil {
		return CellKey{}, fmt.Errorf("invalid cell key %q: %w", s, err)
	}
	y, err := strconv.Atoi(ys)
	if err != nil {
		return CellKey{}, fmt.Errorf("invalid cell key %q: %w", s, err)
	}
	return CellKey{X: x, Y: y}, nil
}

// Example is one entry of a cell's browsable example list.
type Example struct {
	URL     string `json:"url"`
	Caption string `json:"caption"`
}

// CellRecord is the persisted content of a non-empty cell.
type CellRecord struct {
	Count    int       `json:"count"`
	Image    string    `json:"img"`
	URL      string    `json:"url"`
	Caption  string    `json:"caption"`
	Examples []Example `json:"examples"`
}

// Level is one resolution layer. Cells is sparse: cells without points are absent.
type Level struct {
	Size  int
	Cells map[CellKey]CellRecord
}

// NewLevel returns an empty level of the given grid size.
func NewLevel(size int) Level {
	return Level{Size: size, Cells: make(map[CellKey]CellRecord)}
}

// Name is the base file name of the level ("grid_256").
func (l Level) Name() string {
	return "grid_" + strconv.Itoa(l.Size)
}

// Keys returns the level's keys in numeric order.
func (l Level) Keys() []CellKey {
	keys := make([]CellKey, 0, len(l.Cells))
	for k := range l.Cells {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}

// TotalCount sums the point counts of all cells.
func (l Level) TotalCount() int {
	total := 0
	for _, rec := range l.Cells {
		total += rec.Count
	}
	return total
}

// Pyramid holds levels finest first.
type Pyramid struct {
	Levels []Level
}

// Options controls selection, sampling and aggregation.
type Options struct {
	// LevelSizes lists grid sizes finest first; each must be half of the previous.
	LevelSizes         []int
	MiniGrid           int
	SmallCellThreshold int
	CandidateLimit     int
	ExamplesPerCell    int
	// Seed drives example sampling for cells above ExamplesPerCell.
	Seed int64
}

// DefaultOptions returns the production settings.
func DefaultOptions() Options {
	return Options{
		LevelSizes:         []int{256, 128, 64},
		MiniGrid:           10,
		SmallCellThreshold: 50,
		CandidateLimit:     10,
		ExamplesPerCell:    100,
	}
}

// Validate checks the level chain and limits.
func (o Options) Validate() error {
	if len(o.LevelSizes) == 0 {
		return errors.New("at least one level size is required")
	}
	for i, size := range o.LevelSizes {
		if size <= 0 {
			return fmt.Errorf("invalid level size %d", size)
		}
		if i > 0 && o.LevelSizes[i-1] != size*2 {
			return fmt.Errorf("level size %d must be half of %d", size, o.LevelSizes[i-1])
		}
	}
	if o.MiniGrid <= 0 {
		return fmt.Errorf("invalid mini grid size %d", o.MiniGrid)
	}
	if o.CandidateLimit <= 0 {
		return fmt.Errorf("invalid candidate limit %d", o.CandidateLimit)
	}
	if o.ExamplesPerCell <= 0 {
		return fmt.Errorf("invalid examples per cell %d", o.ExamplesPerCell)
	}
	return nil
}

// LeafSize returns the finest grid size.
func (o Options) LeafSize() int {
	return o.LevelSizes[0]
}
