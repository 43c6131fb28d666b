package records

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/wheredidthecitygo/Where-did-the-city-go---Code/internal/pyramid"
)

type csvSource struct {
	f      *os.File
	r      *csv.Reader
	header map[string]int
}

func openCSV(path string) (*csvSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.ReuseRecord = true

	names, err := r.Read()
	if err != nil {
		f.Close()
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty file", ErrMissingColumn)
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	header := make(map[string]int, len(names))
	for i, n := range names {
		n = strings.TrimSpace(strings.TrimPrefix(n, "\ufeff"))
		if _, dup := header[n]; !dup {
			header[n] = i
		}
	}
	return &csvSource{f: f, r: r, header: header}, nil
}

func (s *csvSource) index(column string) (int, error) {
	i, ok := s.header[column]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingColumn, column)
	}
	return i, nil
}

func field(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return rec[i]
}

func loadCSV(path string) ([]pyramid.Point, error) {
	src, err := openCSV(path)
	if err != nil {
		return nil, err
	}
	defer src.f.Close()

	idx := make([]int, len(RequiredColumns))
	for i, col := range RequiredColumns {
		if idx[i], err = src.index(col); err != nil {
			return nil, err
		}
	}

	var points []pyramid.Point
	for row := 0; ; row++ {
		rec, err := src.r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", row, err)
		}

		x, err := parseCoordinate(row, ColumnX, field(rec, idx[0]))
		if err != nil {
			return nil, err
		}
		y, err := parseCoordinate(row, ColumnY, field(rec, idx[1]))
		if err != nil {
			return nil, err
		}
		points = append(points, pyramid.Point{
			X:       x,
			Y:       y,
			URL:     field(rec, idx[2]),
			Caption: field(rec, idx[3]),
		})
	}
	return points, nil
}

func parseCoordinate(row int, name, s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: row %d column %s: %q", ErrInvalidCoordinate, row, name, s)
	}
	return v, checkCoordinate(row, name, v)
}

func readCSVColumn(path, column string, fn func(string)) error {
	src, err := openCSV(path)
	if err != nil {
		return err
	}
	defer src.f.Close()

	i, err := src.index(column)
	if err != nil {
		return err
	}
	for {
		rec, err := src.r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if v := field(rec, i); v != "" {
			fn(v)
		}
	}
}
