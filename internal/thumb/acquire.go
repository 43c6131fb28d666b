package thumb

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"sync/atomic"

	"github.com/wheredidthecitygo/Where-did-the-city-go---Code/internal/cache"
	"github.com/wheredidthecitygo/Where-did-the-city-go---Code/internal/pyramid"
)

// WinnerLookup returns the URL recorded as the final representative of a cell by an earlier run.
type WinnerLookup func(key pyramid.CellKey) (string, bool)

// Config configures the acquirer.
type Config struct {
	// OutputDir is the export root; images go to OutputDir/images/<LeafSize>/.
	OutputDir string
	LeafSize  int
	// Verbose logs every failed candidate.
	Verbose bool
}

// Stats counts acquisition activity.
type Stats struct {
	Fetched    int64
	Failed     int64
	CacheHits  int64
	SkippedBad int64
	Reused     int64
}

// Acquirer implements pyramid.ImageAcquirer on top of a Fetcher and an Encoder.
type Acquirer struct {
	cfg     Config
	fetcher Fetcher
	encoder *Encoder
	cache   *cache.Manager
	prior   WinnerLookup

	fetched    atomic.Int64
	failed     atomic.Int64
	cacheHits  atomic.Int64
	skippedBad atomic.Int64
	reused     atomic.Int64
}

// NewAcquirer creates an acquirer. cache and prior may be nil.
func NewAcquirer(cfg Config, fetcher Fetcher, encoder *Encoder, c *cache.Manager, prior WinnerLookup) *Acquirer {
	if cfg.LeafSize <= 0 {
		cfg.LeafSize = 256
	}
	return &Acquirer{cfg: cfg, fetcher: fetcher, encoder: encoder, cache: c, prior: prior}
}

// Prepare creates the image directory.
func (a *Acquirer) Prepare() error {
	dir := filepath.Join(a.cfg.OutputDir, filepath.FromSlash(a.ImageDir()))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create image directory: %w", err)
	}
	return nil
}

// ImageDir is the image directory relative to the output directory.
func (a *Acquirer) ImageDir() string {
	return path.Join("images", strconv.Itoa(a.cfg.LeafSize))
}

// RelPath is the image path of a leaf cell relative to the output directory, as stored in
// cell records.
func (a *Acquirer) RelPath(key pyramid.CellKey) string {
	return path.Join(a.ImageDir(), fmt.Sprintf("%d_%d.webp", key.X, key.Y))
}

// Acquire walks candidates in order and keeps the first one that can be fetched, decoded and
// encoded. An existing destination file is reused without any fetch.
func (a *Acquirer) Acquire(ctx context.Context, key pyramid.CellKey, candidates []pyramid.Point) (pyramid.Acquisition, bool) {
	rel := a.RelPath(key)
	dest := filepath.Join(a.cfg.OutputDir, filepath.FromSlash(rel))

	if _, err := os.Stat(dest); err == nil {
		a.reused.Add(1)
		return pyramid.Acquisition{Index: a.priorIndex(key, candidates), Path: rel, Reused: true}, len(candidates) > 0
	}

	attempts := 0
	for i, c := range candidates {
		if ctx.Err() != nil {
			break
		}
		attempts++

		data, err := a.thumbnail(ctx, c.URL)
		if err != nil {
			a.failed.Add(1)
			if a.cfg.Verbose {
				log.Printf("[Acquirer] Cell %s candidate %d failed: %v", key, i, err)
			}
			continue
		}

		if err := writeAtomic(dest, data); err != nil {
			log.Printf("[Acquirer] Cell %s: %v", key, err)
			continue
		}
		return pyramid.Acquisition{Index: i, Path: rel, Attempts: attempts}, true
	}

	return pyramid.Acquisition{Attempts: attempts}, false
}

func (a *Acquirer) priorIndex(key pyramid.CellKey, candidates []pyramid.Point) int {
	if a.prior == nil {
		return 0
	}
	url, ok := a.prior(key)
	if !ok {
		return 0
	}
	for i, c := range candidates {
		if c.URL == url {
			return i
		}
	}
	return 0
}

var errEmptyURL = errors.New("empty url")

func (a *Acquirer) thumbnail(ctx context.Context, url string) ([]byte, error) {
	if url == "" {
		return nil, errEmptyURL
	}
	if reason, bad := a.cache.IsFailed(url); bad {
		a.skippedBad.Add(1)
		return nil, fmt.Errorf("failed earlier in this run: %s", reason)
	}
	if data, ok := a.cache.GetThumb(url); ok {
		a.cacheHits.Add(1)
		return data, nil
	}

	raw, err := a.fetcher.Fetch(ctx, url)
	if err != nil {
		// A cancelled run says nothing about the URL.
		if ctx.Err() == nil {
			a.cache.MarkFailed(url, err.Error())
		}
		return nil, err
	}
	a.fetched.Add(1)

	data, err := a.encoder.Encode(raw)
	if err != nil {
		a.cache.MarkFailed(url, err.Error())
		return nil, err
	}
	if err := a.cache.SetThumb(url, data); err != nil && a.cfg.Verbose {
		log.Printf("[Acquirer] Thumbnail for %s not cached: %v", url, err)
	}
	return data, nil
}

// Stats returns a snapshot of the counters.
func (a *Acquirer) Stats() Stats {
	return Stats{
		Fetched:    a.fetched.Load(),
		Failed:     a.failed.Load(),
		CacheHits:  a.cacheHits.Load(),
		SkippedBad: a.skippedBad.Load(),
		Reused:     a.reused.Load(),
	}
}

func writeAtomic(dest string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".tmp-*.webp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", dest, err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to rename %s: %w", dest, err)
	}
	return nil
}
