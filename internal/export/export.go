package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tomgould/Scrape/internal/storage"
	"github.com/tomgould/Scrape/internal/types"
)

// Format selects an export encoding
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatText Format = "txt"
)

// FormatFromPath picks a format from a file extension
func FormatFromPath(path string) (Format, error) {
	switch ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")); ext {
	case "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	case "txt", "":
		return FormatText, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", ext)
	}
}

type Exporter struct {
	outputDir string
}

func NewExporter(outputDir string) (*Exporter, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	return &Exporter{
		outputDir: outputDir,
	}, nil
}

// path resolves a relative output name against the exporter's directory
func (e *Exporter) path(outputFile string) string {
	if filepath.IsAbs(outputFile) {
		return outputFile
	}
	return filepath.Join(e.outputDir, outputFile)
}

// ExportItems writes discovered items in the format implied by outputFile's extension
func (e *Exporter) ExportItems(items []types.DownloadItem, outputFile string) (string, error) {
	format, err := FormatFromPath(outputFile)
	if err != nil {
		return "", err
	}
	path := e.path(outputFile)

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create export file: %w", err)
	}
	defer file.Close()

	switch format {
	case FormatJSON:
		err = WriteItemsJSON(file, items)
	case FormatCSV:
		err = WriteItemsCSV(file, items)
	default:
		err = WriteListing(file, items)
	}
	if err != nil {
		return "", err
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("failed to close export file: %w", err)
	}
	return path, nil
}

// WriteItemsJSON encodes items as an indented JSON array
func WriteItemsJSON(w io.Writer, items []types.DownloadItem) error {
	if items == nil {
		items = []types.DownloadItem{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(items); err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return nil
}

// WriteItemsCSV writes one row per item with a header
func WriteItemsCSV(w io.Writer, items []types.DownloadItem) error {
	writer := csv.NewWriter(w)

	headers := []string{"SourceURL", "LocalPath", "FileName", "DestinationDir"}
	if err := writer.Write(headers); err != nil {
		return fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, item := range items {
		record := []string{item.SourceURL, item.LocalPath, item.FileName, item.DestinationDir}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// WriteListing prints the search-mode listing, two lines per item
func WriteListing(w io.Writer, items []types.DownloadItem) error {
	for _, item := range items {
		if _, err := fmt.Fprintf(w, "Found : %s\nFile Location: %s\n", item.LocalPath, item.SourceURL); err != nil {
			return err
		}
	}
	return nil
}

// WriteRecordsCSV writes outcome records as CSV
func WriteRecordsCSV(w io.Writer, records []storage.Record) error {
	writer := csv.NewWriter(w)

	headers := []string{"RunID", "Status", "URL", "LocalPath", "HTTPStatus", "Bytes", "ElapsedMS", "Retries", "Error", "FinishedAt"}
	if err := writer.Write(headers); err != nil {
		return fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, r := range records {
		record := []string{
			r.RunID,
			r.Status.String(),
			r.URL,
			r.LocalPath,
			strconv.Itoa(r.HTTPStatus),
			strconv.FormatInt(r.Bytes, 10),
			strconv.FormatInt(r.ElapsedMS, 10),
			strconv.Itoa(r.Retries),
			r.Error,
			r.FinishedAt.Format(time.RFC3339),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}
