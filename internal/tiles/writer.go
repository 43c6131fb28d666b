// Package tiles serializes pyramid levels into size-budgeted JSON shard files.
package tiles

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/wheredidthecitygo/Where-did-the-city-go---Code/internal/pyramid"
)

// DefaultMaxBytes is the per-file budget (50 MiB).
const DefaultMaxBytes = 50 * 1024 * 1024

// Config contains writer configuration.
type Config struct {
	OutputDir string
	// MaxBytes is the size budget of a single JSON file.
	MaxBytes int64
	// Compress writes a .zst sidecar next to every JSON file.
	Compress bool
}

// LevelFiles describes what WriteLevel produced for one level.
type LevelFiles struct {
	Name   string   `json:"name"`
	Size   int      `json:"grid_size"`
	Cells  int      `json:"cells"`
	Points int      `json:"points"`
	Bytes  int64    `json:"bytes"`
	Files  []string `json:"files"`
}

// Writer writes level JSON files.
type Writer struct {
	cfg Config
}

// NewWriter creates a tile writer.
func NewWriter(cfg Config) *Writer {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	return &Writer{cfg: cfg}
}

type entry struct {
	key  pyramid.CellKey
	size int
}

// WriteLevel writes level as <name>.json when the compact serialization fits the budget,
// otherwise as contiguous <name>_part<N>.json chunks of the numerically sorted keys.
func (w *Writer) WriteLevel(level pyramid.Level) (LevelFiles, error) {
	name := level.Name()
	out := LevelFiles{Name: name, Size: level.Size, Cells: len(level.Cells), Points: level.TotalCount()}

	keys := level.Keys()
	entries := make([]entry, len(keys))
	var total int64 = 2 // {}
	for i, k := range keys {
		n, err := measureEntry(k, level.Cells[k])
		if err != nil {
			return out, fmt.Errorf("failed to encode cell %s of %s: %w", k, name, err)
		}
		entries[i] = entry{key: k, size: n}
		total += int64(n)
	}
	if len(entries) > 1 {
		total += int64(len(entries) - 1) // commas
	}
	out.Bytes = total

	if err := w.removeLevelFiles(name); err != nil {
		return out, err
	}

	parts, chunk := planShards(total, w.cfg.MaxBytes, len(entries))
	if parts == 1 {
		file := name + ".json"
		if err := w.writeFile(file, level, entries); err != nil {
			return out, err
		}
		out.Files = []string{file}
		log.Printf("[Tiles] Saved %s (%.2f MB, %d cells)", file, mb(total), len(entries))
		return out, nil
	}

	log.Printf("[Tiles] %s too large (%.2f MB), splitting into %d parts", name, mb(total), parts)
	for i := 0; i < parts; i++ {
		start := i * chunk
		if start >= len(entries) {
			break
		}
		end := start + chunk
		if end > len(entries) {
			end = len(entries)
		}
		file := fmt.Sprintf("%s_part%d.json", name, i+1)
		if err := w.writeFile(file, level, entries[start:end]); err != nil {
			return out, err
		}
		out.Files = append(out.Files, file)
		log.Printf("[Tiles]   Saved part %d: %s (%d cells)", i+1, file, end-start)
	}
	return out, nil
}

// removeLevelFiles deletes the JSON files and sidecars an earlier run wrote for the level.
func (w *Writer) removeLevelFiles(name string) error {
	for _, pattern := range []string{name + ".json", name + "_part*.json"} {
		matches, err := filepath.Glob(filepath.Join(w.cfg.OutputDir, pattern))
		if err != nil {
			return err
		}
		for _, m := range matches {
			for _, path := range []string{m, m + ".zst"} {
				if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
					return fmt.Errorf("failed to remove stale %s: %w", filepath.Base(path), err)
				}
			}
		}
	}
	return nil
}

// planShards returns the number of parts and the number of entries per part.
func planShards(total, budget int64, n int) (parts, chunk int) {
	if total <= budget || n <= 1 {
		return 1, n
	}
	parts = int((total + budget - 1) / budget)
	chunk = (n + parts - 1) / parts
	return parts, chunk
}

func (w *Writer) writeFile(file string, level pyramid.Level, entries []entry) error {
	path := filepath.Join(w.cfg.OutputDir, file)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", file, err)
	}

	bw := bufio.NewWriterSize(f, 1024*1024)
	if err := writeObject(bw, level, entries); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", file, err)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("failed to flush %s: %w", file, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", file, err)
	}

	if w.cfg.Compress {
		if err := compressFile(path); err != nil {
			return err
		}
	}
	return nil
}

func writeObject(out io.Writer, level pyramid.Level, entries []entry) error {
	if _, err := io.WriteString(out, "{"); err != nil {
		return err
	}
	var buf bytes.Buffer
	for i, e := range entries {
		buf.Reset()
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := appendEntry(&buf, e.key, level.Cells[e.key]); err != nil {
			return err
		}
		if _, err := out.Write(buf.Bytes()); err != nil {
			return err
		}
	}
	_, err := io.WriteString(out, "}")
	return err
}

// appendEntry writes `"cx,cy":{...}` without a trailing newline.
func appendEntry(buf *bytes.Buffer, key pyramid.CellKey, rec pyramid.CellRecord) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(key.String()); err != nil {
		return err
	}
	buf.Truncate(buf.Len() - 1)
	buf.WriteByte(':')
	if err := enc.Encode(rec); err != nil {
		return err
	}
	buf.Truncate(buf.Len() - 1)
	return nil
}

func measureEntry(key pyramid.CellKey, rec pyramid.CellRecord) (int, error) {
	var buf bytes.Buffer
	if err := appendEntry(&buf, key, rec); err != nil {
		return 0, err
	}
	return buf.Len(), nil
}

func compressFile(path string) error {
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer src.Close()

	dst, err := os.Create(path + ".zst")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer dst.Close()

	bufWriter := bufio.NewWriterSize(dst, 1024*1024)
	enc, err := zstd.NewWriter(bufWriter, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return fmt.Errorf("failed to create zstd writer: %w", err)
	}
	if _, err := io.Copy(enc, src); err != nil {
		enc.Close()
		return fmt.Errorf("failed to compress %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to finish %s.zst: %w", path, err)
	}
	return bufWriter.Flush()
}

func mb(n int64) float64 {
	return float64(n) / (1024 * 1024)
}
