package tiles

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/wheredidthecitygo/Where-did-the-city-go---Code/internal/pyramid"
)

// Level returns the manifest entry of the level with the given grid size.
func (m *Manifest) Level(size int) (LevelFiles, bool) {
	for _, l := range m.Levels {
		if l.Size == size {
			return l, true
		}
	}
	return LevelFiles{}, false
}

// ReadLevel loads every file of a written level back into memory.
func ReadLevel(dir string, files LevelFiles) (pyramid.Level, error) {
	level := pyramid.NewLevel(files.Size)
	for _, file := range files.Files {
		data, err := os.ReadFile(filepath.Join(dir, file))
		if err != nil {
			return level, fmt.Errorf("failed to read %s: %w", file, err)
		}
		var cells map[string]pyramid.CellRecord
		if err := json.Unmarshal(data, &cells); err != nil {
			return level, fmt.Errorf("failed to parse %s: %w", file, err)
		}
		for text, rec := range cells {
			key, err := pyramid.ParseCellKey(text)
			if err != nil {
				return level, fmt.Errorf("%s: %w", file, err)
			}
			level.Cells[key] = rec
		}
	}
	return level, nil
}
