// Package service provides the export pipeline that ties loading, pyramid construction and
// persistence together.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/wheredidthecitygo/Where-did-the-city-go---Code/internal/cache"
	"github.com/wheredidthecitygo/Where-did-the-city-go---Code/internal/config"
	"github.com/wheredidthecitygo/Where-did-the-city-go---Code/internal/data/records"
	"github.com/wheredidthecitygo/Where-did-the-city-go---Code/internal/pyramid"
	"github.com/wheredidthecitygo/Where-did-the-city-go---Code/internal/render"
	"github.com/wheredidthecitygo/Where-did-the-city-go---Code/internal/runstore"
	"github.com/wheredidthecitygo/Where-did-the-city-go---Code/internal/thumb"
	"github.com/wheredidthecitygo/Where-did-the-city-go---Code/internal/tiles"
)

// LockFile is created in the output directory while an export runs.
const LockFile = ".citymap.lock"

// ErrLocked is returned when another export holds the output directory.
var ErrLocked = errors.New("output directory is locked by another export")

// outcomeBatch is the number of cell outcomes written to the ledger per transaction.
const outcomeBatch = 500

// ExportServiceConfig contains export service configuration.
type ExportServiceConfig struct {
	Config *config.Config
	// HTTPClient is used for image downloads; nil uses a default client.
	HTTPClient *http.Client
	Verbose    bool
}

// ExportRequest names the input file and the output directory of one run.
type ExportRequest struct {
	Input     string
	OutputDir string
}

// ExportResult summarizes a finished run.
type ExportResult struct {
	RunID     string
	Stats     pyramid.BuildStats
	Levels    []tiles.LevelFiles
	Overviews []string
	Images    thumb.Stats
	Duration  time.Duration
}

// ExportService runs exports.
type ExportService struct {
	cfg        *config.Config
	httpClient *http.Client
	verbose    bool
}

// NewExportService creates a new export service.
func NewExportService(cfg ExportServiceConfig) *ExportService {
	c := cfg.Config
	if c == nil {
		c = config.DefaultConfig()
	}
	return &ExportService{cfg: c, httpClient: cfg.HTTPClient, verbose: cfg.Verbose}
}

// PyramidOptions maps the export section of the configuration.
func PyramidOptions(c *config.Config) pyramid.Options {
	return pyramid.Options{
		LevelSizes:         c.Export.LevelSizes,
		MiniGrid:           c.Export.MiniGrid,
		SmallCellThreshold: c.Export.SmallCellThreshold,
		CandidateLimit:     c.Export.CandidateLimit,
		ExamplesPerCell:    c.Export.ExamplesPerCell,
		Seed:               c.Export.Seed,
	}
}

// Run executes a complete export. Any returned error means the output is not complete.
func (s *ExportService) Run(ctx context.Context, req ExportRequest) (*ExportResult, error) {
	start := time.Now()
	if err := s.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	opts := PyramidOptions(s.cfg)
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := os.MkdirAll(req.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	lock := flock.New(filepath.Join(req.OutputDir, LockFile))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock output directory: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLocked, req.OutputDir)
	}
	defer lock.Unlock()

	log.Printf("[Export] Loading points from %s", req.Input)
	points, err := records.Load(req.Input)
	if err != nil {
		return nil, err
	}
	log.Printf("[Export] Loaded %d points", len(points))

	store, err := s.openStore(req.OutputDir)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	if n, err := store.MarkRunningAsFailed("interrupted before completion"); err == nil && n > 0 {
		log.Printf("[Export] Marked %d stale run(s) as failed", n)
	}

	run, err := store.CreateRun(runstore.RunParams{
		Input:        req.Input,
		OutputDir:    req.OutputDir,
		LevelSizes:   opts.LevelSizes,
		Seed:         opts.Seed,
		Workers:      s.cfg.Export.Workers,
		MaxJSONBytes: s.maxJSONBytes(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	log.Printf("[Export] Run %s started", run.ID)

	result, err := s.export(ctx, req, run.ID, points, opts, store)
	if err != nil {
		status := runstore.RunStatusFailed
		if errors.Is(err, context.Canceled) {
			status = runstore.RunStatusCancelled
		}
		var counts runstore.RunCounts
		if result != nil {
			counts = runCounts(result.Stats)
		}
		if ferr := store.FinishRun(run.ID, status, counts, err.Error()); ferr != nil {
			log.Printf("[Export] Failed to record run status: %v", ferr)
		}
		return nil, err
	}

	if err := store.FinishRun(run.ID, runstore.RunStatusCompleted, runCounts(result.Stats), ""); err != nil {
		return nil, fmt.Errorf("failed to finish run: %w", err)
	}
	result.Duration = time.Since(start)
	log.Printf("[Export] Run %s completed in %s", run.ID, result.Duration.Round(time.Millisecond))
	return result, nil
}

func (s *ExportService) export(ctx context.Context, req ExportRequest, runID string, points []pyramid.Point,
	opts pyramid.Options, store *runstore.Store) (*ExportResult, error) {
	result := &ExportResult{RunID: runID}

	winners, err := store.Winners()
	if err != nil {
		return result, fmt.Errorf("failed to load recorded winners: %w", err)
	}

	cacheManager, err := cache.NewManager(cache.Config{
		ThumbCacheSizeMB: s.cfg.Cache.ThumbSizeMB,
		ThumbTTL:         time.Duration(s.cfg.Cache.ThumbTTLMinutes) * time.Minute,
		FailedURLs:       s.cfg.Cache.FailedURLs,
	})
	if err != nil {
		return result, err
	}
	defer cacheManager.Close()

	fetcher := thumb.NewHTTPFetcher(thumb.FetchConfig{
		Timeout:           s.cfg.Fetch.Timeout(),
		RequestsPerSecond: s.cfg.Fetch.RequestsPerSecond,
		Burst:             s.cfg.Fetch.Burst,
		UserAgent:         s.cfg.Fetch.UserAgent,
		MaxBytes:          int64(s.cfg.Fetch.MaxBodyMB) << 20,
	}, s.httpClient)
	encoder := thumb.NewEncoder(thumb.EncodeConfig{MaxSize: s.cfg.Image.MaxSize, Quality: s.cfg.Image.Quality})
	acquirer := thumb.NewAcquirer(thumb.Config{
		OutputDir: req.OutputDir,
		LeafSize:  opts.LeafSize(),
		Verbose:   s.verbose,
	}, fetcher, encoder, cacheManager, func(k pyramid.CellKey) (string, bool) {
		url, ok := winners[k]
		return url, ok
	})
	if err := acquirer.Prepare(); err != nil {
		return result, err
	}

	pending := make([]pyramid.CellOutcome, 0, outcomeBatch)
	var ledgerErr error
	flush := func() {
		if ledgerErr == nil {
			ledgerErr = store.RecordOutcomes(runID, pending)
		}
		pending = pending[:0]
	}

	builder := pyramid.NewBuilder(pyramid.BuilderConfig{
		Options:  opts,
		Acquirer: acquirer,
		Workers:  s.cfg.Export.Workers,
		OnCell: func(o pyramid.CellOutcome) {
			pending = append(pending, o)
			if len(pending) >= outcomeBatch {
				flush()
			}
		},
	})

	pyr, stats, err := builder.Build(ctx, points)
	flush()
	result.Stats = stats
	result.Images = acquirer.Stats()
	if err != nil {
		return result, err
	}
	if ledgerErr != nil {
		log.Printf("[Export] Failed to record cell outcomes: %v", ledgerErr)
	}
	log.Printf("[Export] Leaf stage: %d cells, %d acquired, %d dropped, %d reused, %d fetched",
		stats.LeafCells, stats.AcquiredCells, stats.DroppedCells, stats.ReusedImages, result.Images.Fetched)

	writer := tiles.NewWriter(tiles.Config{
		OutputDir: req.OutputDir,
		MaxBytes:  s.maxJSONBytes(),
		Compress:  s.cfg.Output.Compress,
	})
	for _, level := range pyr.Levels {
		files, err := writer.WriteLevel(level)
		if err != nil {
			return result, err
		}
		result.Levels = append(result.Levels, files)
	}

	if s.cfg.Render.Enabled {
		renderer, err := render.NewDensityRenderer(render.Config{
			ImageSize: s.cfg.Render.ImageSize,
			Colormap:  s.cfg.Render.Colormap,
		})
		if err != nil {
			return result, err
		}
		for _, level := range pyr.Levels {
			name, err := renderer.WriteFile(req.OutputDir, level)
			if err != nil {
				return result, err
			}
			result.Overviews = append(result.Overviews, name)
		}
	}

	err = writer.WriteManifest(tiles.Manifest{
		RunID:        runID,
		GeneratedAt:  time.Now().UTC(),
		Points:       stats.Points,
		DroppedCells: stats.DroppedCells,
		ImageDir:     acquirer.ImageDir(),
		Levels:       result.Levels,
		Overviews:    result.Overviews,
	})
	if err != nil {
		return result, err
	}
	return result, nil
}

func (s *ExportService) openStore(outputDir string) (*runstore.Store, error) {
	path := s.cfg.Store.Path
	if path == "" {
		path = filepath.Join(outputDir, runstore.DefaultFile)
	}
	store, err := runstore.NewStore(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open run ledger: %w", err)
	}
	return store, nil
}

func (s *ExportService) maxJSONBytes() int64 {
	return int64(s.cfg.Output.MaxJSONMB) * 1024 * 1024
}

func runCounts(stats pyramid.BuildStats) runstore.RunCounts {
	return runstore.RunCounts{
		Points:        stats.Points,
		LeafCells:     stats.LeafCells,
		AcquiredCells: stats.AcquiredCells,
		DroppedCells:  stats.DroppedCells,
		ReusedImages:  stats.ReusedImages,
	}
}
