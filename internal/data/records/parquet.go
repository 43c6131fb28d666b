package records

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"

	"github.com/wheredidthecitygo/Where-did-the-city-go---Code/internal/pyramid"
)

// pointRow is the parquet row layout. Pointer fields keep nulls distinguishable.
type pointRow struct {
	X       *float64 `parquet:"x,optional"`
	Y       *float64 `parquet:"y,optional"`
	URL     *string  `parquet:"url,optional"`
	Caption *string  `parquet:"caption,optional"`
}

func openParquet(path string) (*os.File, *parquet.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	return f, pf, nil
}

func loadParquet(path string) ([]pyramid.Point, error) {
	f, pf, err := openParquet(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	schema := pf.Schema()
	for _, col := range RequiredColumns {
		if _, ok := schema.Lookup(col); !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, col)
		}
	}

	reader := parquet.NewGenericReader[pointRow](f)
	defer reader.Close()

	points := make([]pyramid.Point, 0, int(reader.NumRows()))
	buf := make([]pointRow, 4096)
	row := 0
	for {
		n, err := reader.Read(buf)
		for i := 0; i < n; i++ {
			p, perr := buf[i].point(row)
			if perr != nil {
				return nil, perr
			}
			points = append(points, p)
			row++
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read rows: %w", err)
		}
	}
	return points, nil
}

func (r pointRow) point(row int) (pyramid.Point, error) {
	if r.X == nil || r.Y == nil {
		return pyramid.Point{}, fmt.Errorf("%w: row %d has a null coordinate", ErrInvalidCoordinate, row)
	}
	if err := checkCoordinate(row, ColumnX, *r.X); err != nil {
		return pyramid.Point{}, err
	}
	if err := checkCoordinate(row, ColumnY, *r.Y); err != nil {
		return pyramid.Point{}, err
	}
	p := pyramid.Point{X: *r.X, Y: *r.Y}
	if r.URL != nil {
		p.URL = *r.URL
	}
	if r.Caption != nil {
		p.Caption = *r.Caption
	}
	return p, nil
}

func readParquetColumn(path, column string, fn func(string)) error {
	f, pf, err := openParquet(path)
	if err != nil {
		return err
	}
	defer f.Close()

	leaf, ok := pf.Schema().Lookup(column)
	if !ok {
		return fmt.Errorf("%w: %s", ErrMissingColumn, column)
	}

	reader := parquet.NewReader(f)
	defer reader.Close()

	rows := make([]parquet.Row, 1024)
	for {
		n, err := reader.ReadRows(rows)
		for _, r := range rows[:n] {
			for _, v := range r {
				if v.Column() == leaf.ColumnIndex && !v.IsNull() {
					fn(string(v.ByteArray()))
				}
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read rows: %w", err)
		}
	}
}
