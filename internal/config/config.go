// Package config handles configuration loading for the citymap exporter.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config represents the exporter configuration.
type Config struct {
	Export ExportConfig `yaml:"export" toml:"export"`
	Fetch  FetchConfig  `yaml:"fetch" toml:"fetch"`
	Image  ImageConfig  `yaml:"image" toml:"image"`
	Cache  CacheConfig  `yaml:"cache" toml:"cache"`
	Output OutputConfig `yaml:"output" toml:"output"`
	Render RenderConfig `yaml:"render" toml:"render"`
	Store  StoreConfig  `yaml:"store" toml:"store"`
}

// ExportConfig contains pyramid construction settings.
type ExportConfig struct {
	LevelSizes         []int `yaml:"level_sizes" toml:"level_sizes"`
	MiniGrid           int   `yaml:"mini_grid" toml:"mini_grid"`
	SmallCellThreshold int   `yaml:"small_cell_threshold" toml:"small_cell_threshold"`
	CandidateLimit     int   `yaml:"candidate_limit" toml:"candidate_limit"`
	ExamplesPerCell    int   `yaml:"examples_per_cell" toml:"examples_per_cell"`
	Seed               int64 `yaml:"seed" toml:"seed"`
	Workers            int   `yaml:"workers" toml:"workers"`
}

// FetchConfig contains outbound HTTP settings.
type FetchConfig struct {
	TimeoutSeconds    float64 `yaml:"timeout_seconds" toml:"timeout_seconds"`
	RequestsPerSecond float64 `yaml:"requests_per_second" toml:"requests_per_second"`
	Burst             int     `yaml:"burst" toml:"burst"`
	UserAgent         string  `yaml:"user_agent" toml:"user_agent"`
	MaxBodyMB         int     `yaml:"max_body_mb" toml:"max_body_mb"`
}

// ImageConfig contains thumbnail settings.
type ImageConfig struct {
	MaxSize int `yaml:"max_size" toml:"max_size"`
	Quality int `yaml:"quality" toml:"quality"`
}

// CacheConfig contains in-memory cache settings.
type CacheConfig struct {
	ThumbSizeMB     int `yaml:"thumb_size_mb" toml:"thumb_size_mb"`
	ThumbTTLMinutes int `yaml:"thumb_ttl_minutes" toml:"thumb_ttl_minutes"`
	FailedURLs      int `yaml:"failed_urls" toml:"failed_urls"`
}

// OutputConfig contains tile file settings.
type OutputConfig struct {
	MaxJSONMB int  `yaml:"max_json_mb" toml:"max_json_mb"`
	Compress  bool `yaml:"compress" toml:"compress"`
}

// RenderConfig contains density overview settings.
type RenderConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	ImageSize int    `yaml:"image_size" toml:"image_size"`
	Colormap  string `yaml:"colormap" toml:"colormap"`
}

// StoreConfig contains run ledger settings. An empty path places the ledger in the output directory.
type StoreConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// Timeout returns the per-attempt fetch timeout.
func (f FetchConfig) Timeout() time.Duration {
	return time.Duration(f.TimeoutSeconds * float64(time.Second))
}

// Load reads configuration from a YAML or TOML file (chosen by extension).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		// Return default config if file doesn't exist
		return DefaultConfig(), nil
	}

	cfg := DefaultConfig()
	// Render.Enabled defaults to true; a file has to switch it off explicitly.
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	applyDefaults(cfg)

	return cfg, nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Export: ExportConfig{
			LevelSizes:         []int{256, 128, 64},
			MiniGrid:           10,
			SmallCellThreshold: 50,
			CandidateLimit:     10,
			ExamplesPerCell:    100,
			Workers:            32,
		},
		Fetch: FetchConfig{
			TimeoutSeconds: 10,
			Burst:          1,
			UserAgent:      "citymap-export/1.0",
			MaxBodyMB:      32,
		},
		Image: ImageConfig{
			MaxSize: 512,
			Quality: 85,
		},
		Cache: CacheConfig{
			ThumbSizeMB:     256,
			ThumbTTLMinutes: 60,
			FailedURLs:      100000,
		},
		Output: OutputConfig{
			MaxJSONMB: 50,
		},
		Render: RenderConfig{
			Enabled:   true,
			ImageSize: 1024,
			Colormap:  "viridis",
		},
	}
}

func applyDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if len(cfg.Export.LevelSizes) == 0 {
		cfg.Export.LevelSizes = defaults.Export.LevelSizes
	}
	if cfg.Export.MiniGrid == 0 {
		cfg.Export.MiniGrid = defaults.Export.MiniGrid
	}
	if cfg.Export.SmallCellThreshold == 0 {
		cfg.Export.SmallCellThreshold = defaults.Export.SmallCellThreshold
	}
	if cfg.Export.CandidateLimit == 0 {
		cfg.Export.CandidateLimit = defaults.Export.CandidateLimit
	}
	if cfg.Export.ExamplesPerCell == 0 {
		cfg.Export.ExamplesPerCell = defaults.Export.ExamplesPerCell
	}
	if cfg.Export.Workers == 0 {
		cfg.Export.Workers = defaults.Export.Workers
	}
	if cfg.Fetch.TimeoutSeconds == 0 {
		cfg.Fetch.TimeoutSeconds = defaults.Fetch.TimeoutSeconds
	}
	if cfg.Fetch.Burst == 0 {
		cfg.Fetch.Burst = defaults.Fetch.Burst
	}
	if cfg.Fetch.UserAgent == "" {
		cfg.Fetch.UserAgent = defaults.Fetch.UserAgent
	}
	if cfg.Fetch.MaxBodyMB == 0 {
		cfg.Fetch.MaxBodyMB = defaults.Fetch.MaxBodyMB
	}
	if cfg.Image.MaxSize == 0 {
		cfg.Image.MaxSize = defaults.Image.MaxSize
	}
	if cfg.Image.Quality == 0 {
		cfg.Image.Quality = defaults.Image.Quality
	}
	if cfg.Cache.ThumbTTLMinutes == 0 {
		cfg.Cache.ThumbTTLMinutes = defaults.Cache.ThumbTTLMinutes
	}
	if cfg.Output.MaxJSONMB == 0 {
		cfg.Output.MaxJSONMB = defaults.Output.MaxJSONMB
	}
	if cfg.Render.ImageSize == 0 {
		cfg.Render.ImageSize = defaults.Render.ImageSize
	}
	if cfg.Render.Colormap == "" {
		cfg.Render.Colormap = defaults.Render.Colormap
	}
}

// Validate checks values that defaults cannot repair.
func (c *Config) Validate() error {
	sizes := c.Export.LevelSizes
	for i, size := range sizes {
		if size <= 0 {
			return fmt.Errorf("export.level_sizes: invalid size %d", size)
		}
		if i > 0 && sizes[i-1] != size*2 {
			return fmt.Errorf("export.level_sizes: %d must be half of %d", size, sizes[i-1])
		}
	}
	if c.Export.MiniGrid < 0 || c.Export.SmallCellThreshold < 0 || c.Export.CandidateLimit < 0 ||
		c.Export.ExamplesPerCell < 0 || c.Export.Workers < 0 {
		return fmt.Errorf("export: limits must be positive")
	}
	if c.Fetch.TimeoutSeconds < 0 || c.Fetch.RequestsPerSecond < 0 {
		return fmt.Errorf("fetch: timeout and rate must not be negative")
	}
	if c.Image.Quality < 0 || c.Image.Quality > 100 {
		return fmt.Errorf("image.quality must be within 0-100, got %d", c.Image.Quality)
	}
	if c.Image.MaxSize < 0 {
		return fmt.Errorf("image.max_size must be positive, got %d", c.Image.MaxSize)
	}
	if c.Output.MaxJSONMB < 0 {
		return fmt.Errorf("output.max_json_mb must be positive, got %d", c.Output.MaxJSONMB)
	}
	return nil
}
