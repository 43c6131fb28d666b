// Package records loads the point cloud from columnar files (.parquet or .csv).
package records

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/wheredidthecitygo/Where-did-the-city-go---Code/internal/pyramid"
)

// Column names.
const (
	ColumnX       = "x"
	ColumnY       = "y"
	ColumnURL     = "url"
	ColumnCaption = "caption"
)

// RequiredColumns must be present in every point source.
var RequiredColumns = []string{ColumnX, ColumnY, ColumnURL, ColumnCaption}

var (
	// ErrMissingColumn is returned when a required column is absent.
	ErrMissingColumn = errors.New("missing required column")
	// ErrUnsupportedFormat is returned for files that are neither parquet nor csv.
	ErrUnsupportedFormat = errors.New("unsupported input format")
	// ErrInvalidCoordinate is returned for null, NaN or infinite coordinates.
	ErrInvalidCoordinate = errors.New("invalid coordinate")
)

// Format identifies a point source encoding.
type Format string

const (
	FormatParquet Format = "parquet"
	FormatCSV     Format = "csv"
)

// DetectFormat picks the format from the file extension.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet", ".pq":
		return FormatParquet, nil
	case ".csv":
		return FormatCSV, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
}

// Load reads every point of the file at path.
func Load(path string) ([]pyramid.Point, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}

	var points []pyramid.Point
	switch format {
	case FormatParquet:
		points, err = loadParquet(path)
	case FormatCSV:
		points, err = loadCSV(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return points, nil
}

// ReadColumn streams the non-null values of one text column.
func ReadColumn(path, column string, fn func(string)) error {
	format, err := DetectFormat(path)
	if err != nil {
		return err
	}
	switch format {
	case FormatParquet:
		err = readParquetColumn(path, column, fn)
	case FormatCSV:
		err = readCSVColumn(path, column, fn)
	}
	if err != nil {
		return fmt.Errorf("failed to read column %q of %s: %w", column, path, err)
	}
	return nil
}

// ExpandInputs replaces directories by the supported files they contain, sorted by name.
func ExpandInputs(paths []string) ([]string, error) {
	var out []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", p, err)
		}
		if !info.IsDir() {
			out = append(out, p)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read directory %s: %w", p, err)
		}
		var files []string
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			if _, err := DetectFormat(e.Name()); err == nil {
				files = append(files, filepath.Join(p, e.Name()))
			}
		}
		sort.Strings(files)
		out = append(out, files...)
	}
	return out, nil
}

func checkCoordinate(row int, name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: row %d column %s is %v", ErrInvalidCoordinate, row, name, v)
	}
	return nil
}
