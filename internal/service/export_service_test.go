package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gofrs/flock"

	"github.com/wheredidthecitygo/Where-did-the-city-go---Code/internal/config"
	"github.com/wheredidthecitygo/Where-did-the-city-go---Code/internal/data/records"
	"github.com/wheredidthecitygo/Where-did-the-city-go---Code/internal/pyramid"
	"github.com/wheredidthecitygo/Where-did-the-city-go---Code/internal/runstore"
	"github.com/wheredidthecitygo/Where-did-the-city-go---Code/internal/tiles"
)

type imageHost struct {
	srv  *httptest.Server
	hits atomic.Int64
}

func newImageHost(t *testing.T) *imageHost {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for i := range img.Pix {
		img.Pix[i] = uint8(i)
	}
	img.Set(0, 0, color.RGBA{255, 0, 0, 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	body := buf.Bytes()

	h := &imageHost{}
	h.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.hits.Add(1)
		if strings.HasPrefix(r.URL.Path, "/ok/") {
			w.Write(body)
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(h.srv.Close)
	return h
}

func writeInput(t *testing.T, dir, base string) string {
	t.Helper()
	lines := []string{
		"x,y,url,caption",
		"0,0," + base + "/ok/origin.jpg,origin",
		"256,256," + base + "/ok/corner.jpg,corner",
		"10.5,20.5," + base + "/missing/a.jpg,A",
		"10.6,20.5," + base + "/ok/b.jpg,B",
		"10.3,20.5," + base + "/ok/c.jpg,C",
		"10.9,20.5," + base + "/ok/d.jpg,D",
	}
	path := filepath.Join(dir, "points.csv")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	return path
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Export.Workers = 4
	cfg.Fetch.TimeoutSeconds = 5
	cfg.Render.ImageSize = 64
	return cfg
}

func readLevel(t *testing.T, path string) map[string]pyramid.CellRecord {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	var level map[string]pyramid.CellRecord
	if err := json.Unmarshal(data, &level); err != nil {
		t.Fatalf("parse %s: %v", path, err)
	}
	return level
}

func TestExportService_EndToEnd(t *testing.T) {
	host := newImageHost(t)
	out := t.TempDir()
	input := writeInput(t, t.TempDir(), host.srv.URL)

	svc := NewExportService(ExportServiceConfig{Config: testConfig(), HTTPClient: host.srv.Client()})
	result, err := svc.Run(context.Background(), ExportRequest{Input: input, OutputDir: out})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}

	if result.Stats.Points != 6 || result.Stats.AcquiredCells != 3 || result.Stats.DroppedCells != 0 {
		t.Fatalf("unexpected stats %+v", result.Stats)
	}

	leaf := readLevel(t, filepath.Join(out, "grid_256.json"))
	rec, ok := leaf["10,20"]
	if !ok {
		t.Fatalf("expected cell 10,20 in %v", leaf)
	}
	if rec.Count != 4 || rec.Image != "images/256/10_20.webp" || rec.Caption != "B" {
		t.Fatalf("unexpected leaf record %+v", rec)
	}
	var order []string
	for _, ex := range rec.Examples {
		order = append(order, ex.Caption)
	}
	if strings.Join(order, "") != "ABCD" {
		t.Fatalf("expected examples by distance ABCD, got %v", order)
	}
	if _, err := os.Stat(filepath.Join(out, "images", "256", "10_20.webp")); err != nil {
		t.Fatalf("expected image file: %v", err)
	}

	for _, name := range []string{"grid_128.json", "grid_64.json"} {
		total := 0
		for _, r := range readLevel(t, filepath.Join(out, name)) {
			total += r.Count
		}
		if total != 6 {
			t.Errorf("%s: expected total count 6, got %d", name, total)
		}
	}
	coarse := readLevel(t, filepath.Join(out, "grid_128.json"))["5,10"]
	if coarse.Image != rec.Image || coarse.URL != rec.URL {
		t.Fatalf("coarse cell must reuse the leaf image, got %+v", coarse)
	}

	m, err := tiles.ReadManifest(out)
	if err != nil {
		t.Fatalf("ReadManifest error: %v", err)
	}
	if m.RunID != result.RunID || len(m.Levels) != 3 || len(m.Overviews) != 3 || m.ImageDir != "images/256" {
		t.Fatalf("unexpected manifest %+v", m)
	}

	store, err := runstore.NewStore(filepath.Join(out, runstore.DefaultFile))
	if err != nil {
		t.Fatalf("NewStore error: %v", err)
	}
	defer store.Close()
	run, err := store.GetRun(result.RunID)
	if err != nil || run == nil || run.Status != runstore.RunStatusCompleted {
		t.Fatalf("expected completed run, got %+v (%v)", run, err)
	}
}

func TestExportService_IdempotentRerun(t *testing.T) {
	host := newImageHost(t)
	out := t.TempDir()
	input := writeInput(t, t.TempDir(), host.srv.URL)
	svc := NewExportService(ExportServiceConfig{Config: testConfig(), HTTPClient: host.srv.Client()})

	if _, err := svc.Run(context.Background(), ExportRequest{Input: input, OutputDir: out}); err != nil {
		t.Fatalf("first run error: %v", err)
	}
	first, _ := os.ReadFile(filepath.Join(out, "grid_256.json"))
	hits := host.hits.Load()

	result, err := svc.Run(context.Background(), ExportRequest{Input: input, OutputDir: out})
	if err != nil {
		t.Fatalf("second run error: %v", err)
	}
	if got := host.hits.Load(); got != hits {
		t.Fatalf("expected no requests on re-run, got %d new", got-hits)
	}
	if result.Stats.ReusedImages != 3 {
		t.Fatalf("expected 3 reused images, got %d", result.Stats.ReusedImages)
	}
	second, _ := os.ReadFile(filepath.Join(out, "grid_256.json"))
	if !bytes.Equal(first, second) {
		t.Fatal("re-run must reproduce the same leaf file")
	}
}

func TestExportService_InputErrors(t *testing.T) {
	out := t.TempDir()
	dir := t.TempDir()
	svc := NewExportService(ExportServiceConfig{Config: testConfig()})

	missing := filepath.Join(dir, "missing.csv")
	os.WriteFile(missing, []byte("x,url\n1,u\n"), 0644)
	if _, err := svc.Run(context.Background(), ExportRequest{Input: missing, OutputDir: out}); !errors.Is(err, records.ErrMissingColumn) {
		t.Fatalf("expected ErrMissingColumn, got %v", err)
	}

	flat := filepath.Join(dir, "flat.csv")
	os.WriteFile(flat, []byte("x,y,url,caption\n1,1,u,a\n1,2,v,b\n"), 0644)
	if _, err := svc.Run(context.Background(), ExportRequest{Input: flat, OutputDir: out}); !errors.Is(err, pyramid.ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}
}

func TestExportService_Locked(t *testing.T) {
	out := t.TempDir()
	lock := flock.New(filepath.Join(out, LockFile))
	if ok, err := lock.TryLock(); err != nil || !ok {
		t.Fatalf("TryLock: %v %v", ok, err)
	}
	defer lock.Unlock()

	svc := NewExportService(ExportServiceConfig{Config: testConfig()})
	_, err := svc.Run(context.Background(), ExportRequest{Input: "unused.csv", OutputDir: out})
	if !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
}
