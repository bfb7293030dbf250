package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tomgould/Scrape/internal/storage"
	"github.com/tomgould/Scrape/internal/types"
)

func sampleItems() []types.DownloadItem {
	return []types.DownloadItem{
		{
			SourceURL:      "https://example.com/pics/a.gif",
			LocalPath:      "/data/pics/a.gif",
			FileName:       "a.gif",
			DestinationDir: "/data/pics",
		},
		{
			SourceURL:      "https://example.com/pics/b%2C c.gif",
			LocalPath:      "/data/pics/b c.gif",
			FileName:       "b c.gif",
			DestinationDir: "/data/pics",
		},
	}
}

func TestFormatFromPath(t *testing.T) {
	tests := []struct {
		path    string
		want    Format
		wantErr bool
	}{
		{"out.json", FormatJSON, false},
		{"OUT.CSV", FormatCSV, false},
		{"list.txt", FormatText, false},
		{"list", FormatText, false},
		{"out.xml", "", true},
	}
	for _, tt := range tests {
		got, err := FormatFromPath(tt.path)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("FormatFromPath(%q) = %q, %v", tt.path, got, err)
		}
	}
}

func TestExporterExportJSON(t *testing.T) {
	tmpDir := t.TempDir()

	exporter, err := NewExporter(tmpDir)
	if err != nil {
		t.Fatalf("Failed to create exporter: %v", err)
	}

	path, err := exporter.ExportItems(sampleItems(), "export.json")
	if err != nil {
		t.Fatalf("Failed to export JSON: %v", err)
	}
	if path != filepath.Join(tmpDir, "export.json") {
		t.Errorf("Unexpected export path %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var back []types.DownloadItem
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Export is not valid JSON: %v", err)
	}
	if len(back) != 2 || back[1].FileName != "b c.gif" {
		t.Errorf("Unexpected exported items %+v", back)
	}
}

func TestExporterExportCSV(t *testing.T) {
	tmpDir := t.TempDir()
	exporter, _ := NewExporter(tmpDir)

	path, err := exporter.ExportItems(sampleItems(), filepath.Join(tmpDir, "nested.csv"))
	if err != nil {
		t.Fatalf("Failed to export CSV: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("Export is not valid CSV: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("Expected header plus 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "SourceURL" || rows[2][2] != "b c.gif" {
		t.Errorf("Unexpected rows %v", rows)
	}
}

func TestExporterRejectsUnknownFormat(t *testing.T) {
	exporter, _ := NewExporter(t.TempDir())
	if _, err := exporter.ExportItems(sampleItems(), "out.xml"); err == nil {
		t.Error("Expected error for unsupported format")
	}
}

func TestWriteListing(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteListing(&buf, sampleItems()[:1]); err != nil {
		t.Fatal(err)
	}
	want := "Found : /data/pics/a.gif\nFile Location: https://example.com/pics/a.gif\n"
	if buf.String() != want {
		t.Errorf("Expected %q, got %q", want, buf.String())
	}
}

func TestWriteItemsJSONEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteItemsJSON(&buf, nil); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Errorf("Expected empty array, got %q", buf.String())
	}
}

func TestWriteRecordsCSV(t *testing.T) {
	records := []storage.Record{{
		RunID:      "run-1",
		URL:        "https://example.com/a.gif",
		LocalPath:  "/data/a.gif",
		Status:     types.StatusFailed,
		HTTPStatus: 503,
		Bytes:      12,
		Retries:    3,
		Error:      "HTTP 503, giving up",
		FinishedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}}

	var buf bytes.Buffer
	if err := WriteRecordsCSV(&buf, records); err != nil {
		t.Fatal(err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(rows))
	}
	row := rows[1]
	if row[1] != "FAILED" || row[4] != "503" || row[8] != "HTTP 503, giving up" || row[9] != "2024-01-02T03:04:05Z" {
		t.Errorf("Unexpected row %v", row)
	}
}
