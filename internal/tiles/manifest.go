package tiles

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ManifestFile is the name of the manifest written at the output root.
const ManifestFile = "manifest.json"

// Manifest lets a viewer discover level files without listing the directory.
type Manifest struct {
	RunID        string       `json:"run_id"`
	GeneratedAt  time.Time    `json:"generated_at"`
	Points       int          `json:"points"`
	DroppedCells int          `json:"dropped_cells"`
	ImageDir     string       `json:"image_dir"`
	Levels       []LevelFiles `json:"levels"`
	Overviews    []string     `json:"overviews,omitempty"`
}

// WriteManifest writes manifest.json (and its sidecar when compression is on).
func (w *Writer) WriteManifest(m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	path := filepath.Join(w.cfg.OutputDir, ManifestFile)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if w.cfg.Compress {
		return compressFile(path)
	}
	return nil
}

// ReadManifest loads a manifest from an output directory.
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return &m, nil
}
