package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tomgould/Scrape/internal/types"
)

// ReportFileName is the JSONL outcome report kept under the cache directory
const ReportFileName = "outcomes.jsonl"

// Record is the persisted form of one terminal outcome
type Record struct {
	RunID      string       `json:"run_id"`
	URL        string       `json:"url"`
	LocalPath  string       `json:"local_path"`
	FileName   string       `json:"file_name"`
	Status     types.Status `json:"status"`
	HTTPStatus int          `json:"http_status,omitempty"`
	Bytes      int64        `json:"bytes"`
	ElapsedMS  int64        `json:"elapsed_ms"`
	Throughput float64      `json:"throughput_bps,omitempty"`
	Retries    int          `json:"retries"`
	Error      string       `json:"error,omitempty"`
	FinishedAt time.Time    `json:"finished_at"`
}

// NewRecord flattens an outcome for storage
func NewRecord(runID string, o types.Outcome) Record {
	finished := o.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}
	return Record{
		RunID:      runID,
		URL:        o.Item.SourceURL,
		LocalPath:  o.Item.LocalPath,
		FileName:   o.Item.FileName,
		Status:     o.Status,
		HTTPStatus: o.HTTPStatus,
		Bytes:      o.BytesTransferred,
		ElapsedMS:  o.Elapsed.Milliseconds(),
		Throughput: o.Throughput,
		Retries:    o.RetriesUsed,
		Error:      o.Error,
		FinishedAt: finished.UTC(),
	}
}

// Ledger persists outcome records
type Ledger interface {
	SaveRecord(Record) error
	Close() error
}

// Storage appends outcome records to a JSONL file
type Storage struct {
	path  string
	mu    sync.Mutex
	jsonl *os.File
}

// New opens (or creates) the JSONL report inside dataDir
func New(dataDir string) (*Storage, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	path := filepath.Join(dataDir, ReportFileName)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open JSONL file: %w", err)
	}

	return &Storage{
		path:  path,
		jsonl: file,
	}, nil
}

// Path returns the report file location
func (s *Storage) Path() string {
	return s.path
}

// SaveRecord appends one record as a JSON line
func (s *Storage) SaveRecord(record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	if _, err := s.jsonl.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}

	return nil
}

// LoadRecords reads every record from a JSONL report. Malformed lines are skipped.
func LoadRecords(path string) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Record{}, nil
		}
		return nil, fmt.Errorf("failed to read JSONL file: %w", err)
	}
	defer file.Close()

	records := make([]Record, 0)
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var record Record
		if err := json.Unmarshal(line, &record); err == nil {
			records = append(records, record)
		}
	}
	if err := scanner.Err(); err != nil {
		return records, fmt.Errorf("failed to scan JSONL file: %w", err)
	}

	return records, nil
}

// Close closes the report file
func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.jsonl != nil {
		err := s.jsonl.Close()
		s.jsonl = nil
		return err
	}

	return nil
}
