package runstore

import (
	"path/filepath"
	"testing"

	"github.com/wheredidthecitygo/Where-did-the-city-go---Code/internal/pyramid"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "nested", DefaultFile))
	if err != nil {
		t.Fatalf("NewStore error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_RunLifecycle(t *testing.T) {
	s := openTestStore(t)

	run, err := s.CreateRun(RunParams{Input: "points.parquet", LevelSizes: []int{256, 128, 64}, Seed: 7})
	if err != nil {
		t.Fatalf("CreateRun error: %v", err)
	}
	if run.ID == "" || run.Status != RunStatusRunning {
		t.Fatalf("unexpected run %+v", run)
	}

	counts := RunCounts{Points: 10, LeafCells: 4, AcquiredCells: 3, DroppedCells: 1}
	if err := s.FinishRun(run.ID, RunStatusCompleted, counts, ""); err != nil {
		t.Fatalf("FinishRun error: %v", err)
	}

	got, err := s.GetRun(run.ID)
	if err != nil {
		t.Fatalf("GetRun error: %v", err)
	}
	if got == nil {
		t.Fatal("expected run")
	}
	if got.Status != RunStatusCompleted || got.Counts != counts || got.FinishedAt == nil {
		t.Fatalf("unexpected stored run %+v", got)
	}
	if got.Params.Input != "points.parquet" || got.Params.Seed != 7 || len(got.Params.LevelSizes) != 3 {
		t.Fatalf("unexpected params %+v", got.Params)
	}

	missing, err := s.GetRun("nope")
	if err != nil || missing != nil {
		t.Fatalf("expected nil run, got %+v (%v)", missing, err)
	}
}

func TestStore_OutcomesAndWinners(t *testing.T) {
	s := openTestStore(t)

	first, _ := s.CreateRun(RunParams{})
	err := s.RecordOutcomes(first.ID, []pyramid.CellOutcome{
		{Key: pyramid.CellKey{X: 1, Y: 2}, Points: 4, Acquired: true, URL: "http://a/1",
			Acquisition: pyramid.Acquisition{Index: 1, Attempts: 2}},
		{Key: pyramid.CellKey{X: 3, Y: 3}, Points: 2},
	})
	if err != nil {
		t.Fatalf("RecordOutcomes error: %v", err)
	}

	second, _ := s.CreateRun(RunParams{})
	err = s.RecordOutcomes(second.ID, []pyramid.CellOutcome{
		{Key: pyramid.CellKey{X: 1, Y: 2}, Points: 4, Acquired: true, URL: "http://a/2",
			Acquisition: pyramid.Acquisition{Index: 0, Reused: true}},
	})
	if err != nil {
		t.Fatalf("RecordOutcomes error: %v", err)
	}

	winners, err := s.Winners()
	if err != nil {
		t.Fatalf("Winners error: %v", err)
	}
	if len(winners) != 1 || winners[pyramid.CellKey{X: 1, Y: 2}] != "http://a/2" {
		t.Fatalf("unexpected winners %v", winners)
	}

	n, err := s.AcquisitionCount(first.ID)
	if err != nil || n != 2 {
		t.Fatalf("expected 2 outcomes for first run, got %d (%v)", n, err)
	}
}

func TestStore_MarkRunningAsFailed(t *testing.T) {
	s := openTestStore(t)

	stale, _ := s.CreateRun(RunParams{})
	done, _ := s.CreateRun(RunParams{})
	if err := s.FinishRun(done.ID, RunStatusCompleted, RunCounts{}, ""); err != nil {
		t.Fatalf("FinishRun error: %v", err)
	}

	n, err := s.MarkRunningAsFailed("interrupted")
	if err != nil || n != 1 {
		t.Fatalf("expected 1 updated run, got %d (%v)", n, err)
	}
	got, _ := s.GetRun(stale.ID)
	if got.Status != RunStatusFailed || got.Error != "interrupted" {
		t.Fatalf("unexpected stale run %+v", got)
	}

	runs, err := s.ListRuns(10)
	if err != nil || len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d (%v)", len(runs), err)
	}
}
