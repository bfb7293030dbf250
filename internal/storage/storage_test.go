package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tomgould/Scrape/internal/types"
)

func sampleOutcome(name string, status types.Status) types.Outcome {
	return types.Outcome{
		Item: types.DownloadItem{
			SourceURL:      "http://example.com/files/" + name,
			LocalPath:      "/tmp/out/" + name,
			FileName:       name,
			DestinationDir: "/tmp/out",
		},
		Status:           status,
		HTTPStatus:       200,
		BytesTransferred: 2048,
		Elapsed:          1500 * time.Millisecond,
		RetriesUsed:      1,
		FinishedAt:       time.Now(),
	}
}

func TestNewRecord(t *testing.T) {
	o := sampleOutcome("a.gif", types.StatusFailed)
	o.Error = "HTTP 503"

	r := NewRecord("run-1", o)

	if r.RunID != "run-1" || r.URL != o.Item.SourceURL || r.LocalPath != o.Item.LocalPath {
		t.Errorf("Unexpected identity fields: %+v", r)
	}
	if r.ElapsedMS != 1500 {
		t.Errorf("Expected 1500ms, got %d", r.ElapsedMS)
	}
	if r.Status != types.StatusFailed || r.Error != "HTTP 503" || r.Retries != 1 {
		t.Errorf("Unexpected result fields: %+v", r)
	}
}

func TestStorageNew(t *testing.T) {
	tmpDir := filepath.Join(t.TempDir(), "cache")

	store, err := New(tmpDir)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	defer store.Close()

	if store.Path() != filepath.Join(tmpDir, ReportFileName) {
		t.Errorf("Unexpected report path %s", store.Path())
	}
	if _, err := os.Stat(store.Path()); err != nil {
		t.Errorf("Expected report file to exist: %v", err)
	}
}

func TestStorageRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := New(tmpDir)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}

	for _, name := range []string{"a.gif", "b.gif"} {
		if err := store.SaveRecord(NewRecord("run-1", sampleOutcome(name, types.StatusSuccess))); err != nil {
			t.Fatalf("Failed to save record: %v", err)
		}
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	records, err := LoadRecords(filepath.Join(tmpDir, ReportFileName))
	if err != nil {
		t.Fatalf("LoadRecords() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	if records[1].FileName != "b.gif" || records[1].Status != types.StatusSuccess {
		t.Errorf("Unexpected second record %+v", records[1])
	}
}

func TestStorageAppendsAcrossSessions(t *testing.T) {
	tmpDir := t.TempDir()
	for i := 0; i < 2; i++ {
		store, err := New(tmpDir)
		if err != nil {
			t.Fatalf("Failed to create storage: %v", err)
		}
		store.SaveRecord(NewRecord("run", sampleOutcome("x.bin", types.StatusSkipped)))
		store.Close()
	}

	records, _ := LoadRecords(filepath.Join(tmpDir, ReportFileName))
	if len(records) != 2 {
		t.Errorf("Expected report to be appended, got %d records", len(records))
	}
}

func TestLoadRecordsSkipsBadLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), ReportFileName)
	content := `{"run_id":"r","url":"u","status":"SUCCESS"}
not json

{"run_id":"r","url":"v","status":"FAILED"}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	records, err := LoadRecords(path)
	if err != nil {
		t.Fatalf("LoadRecords() error = %v", err)
	}
	if len(records) != 2 || records[1].Status != types.StatusFailed {
		t.Errorf("Expected 2 valid records, got %+v", records)
	}
}

func TestLoadRecordsMissingFile(t *testing.T) {
	records, err := LoadRecords(filepath.Join(t.TempDir(), "nope.jsonl"))
	if err != nil || len(records) != 0 {
		t.Errorf("Expected empty result for missing file, got %v, %v", records, err)
	}
}

func openSQLite(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), DatabaseFileName))
	if err != nil {
		t.Fatalf("Failed to create SQLite storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStorageSQLiteRecords(t *testing.T) {
	store := openSQLite(t)

	store.SaveRecord(NewRecord("run-1", sampleOutcome("a.gif", types.StatusSuccess)))
	failed := sampleOutcome("b.gif", types.StatusFailed)
	failed.Error = "connection reset"
	failed.HTTPStatus = 0
	store.SaveRecord(NewRecord("run-1", failed))
	store.SaveRecord(NewRecord("run-2", sampleOutcome("c.gif", types.StatusSuccess)))

	all, err := store.QueryRecords(QueryFilter{})
	if err != nil {
		t.Fatalf("QueryRecords() error = %v", err)
	}
	if len(all) != 3 {
		t.Errorf("Expected 3 records, got %d", len(all))
	}

	status := types.StatusFailed
	failures, err := store.QueryRecords(QueryFilter{RunID: "run-1", Status: &status})
	if err != nil {
		t.Fatalf("QueryRecords() error = %v", err)
	}
	if len(failures) != 1 {
		t.Fatalf("Expected 1 failure, got %d", len(failures))
	}
	if failures[0].FileName != "b.gif" || failures[0].Error != "connection reset" {
		t.Errorf("Unexpected failure record %+v", failures[0])
	}
	if failures[0].FinishedAt.IsZero() {
		t.Error("Expected finished_at to round trip")
	}

	limited, _ := store.QueryRecords(QueryFilter{Limit: 2})
	if len(limited) != 2 {
		t.Errorf("Expected limit to apply, got %d", len(limited))
	}
}

func TestStorageSQLiteStats(t *testing.T) {
	store := openSQLite(t)
	store.SaveRecord(NewRecord("run-1", sampleOutcome("a", types.StatusSuccess)))
	store.SaveRecord(NewRecord("run-1", sampleOutcome("b", types.StatusSuccess)))
	store.SaveRecord(NewRecord("run-1", sampleOutcome("c", types.StatusSkipped)))
	store.SaveRecord(NewRecord("run-2", sampleOutcome("d", types.StatusFailed)))

	stats, err := store.GetStats("run-1")
	if err != nil {
		t.Fatalf("GetStats() error = %v", err)
	}
	if stats["SUCCESS"] != 2 || stats["SKIPPED"] != 1 || stats["FAILED"] != 0 || stats["TOTAL"] != 3 {
		t.Errorf("Unexpected run-1 stats %v", stats)
	}

	all, _ := store.GetStats("")
	if all["TOTAL"] != 4 {
		t.Errorf("Expected 4 outcomes overall, got %v", all)
	}
}

func TestStorageSQLiteRuns(t *testing.T) {
	store := openSQLite(t)
	base := time.Now().Add(-time.Hour)

	for i, id := range []string{"older", "newer"} {
		run := Run{
			ID:         id,
			Mode:       types.ModeDownload,
			Targets:    []string{"http://a/", "http://b/"},
			StartedAt:  base.Add(time.Duration(i) * time.Minute),
			FinishedAt: base.Add(time.Duration(i)*time.Minute + 30*time.Second),
			Stats:      types.Stats{Total: 3, Success: 2, Failed: 1, BytesDownloaded: 4096},
		}
		if err := store.SaveRun(run); err != nil {
			t.Fatalf("SaveRun() error = %v", err)
		}
	}

	latest, err := store.LatestRun()
	if err != nil {
		t.Fatalf("LatestRun() error = %v", err)
	}
	if latest.ID != "newer" {
		t.Errorf("Expected newest run, got %s", latest.ID)
	}
	if len(latest.Targets) != 2 || latest.Stats.Success != 2 || latest.Stats.BytesDownloaded != 4096 {
		t.Errorf("Unexpected run %+v", latest)
	}
	if latest.Stats.Duration() != 30*time.Second {
		t.Errorf("Expected 30s duration, got %v", latest.Stats.Duration())
	}

	// replacing a run keeps one row
	latest.Stats.Skipped = 5
	store.SaveRun(latest)
	runs, _ := store.ListRuns(0)
	if len(runs) != 2 {
		t.Errorf("Expected 2 runs after replace, got %d", len(runs))
	}
}

func TestStorageSQLiteNoRuns(t *testing.T) {
	store := openSQLite(t)
	if _, err := store.LatestRun(); err == nil {
		t.Error("Expected an error when no run exists")
	}
}
