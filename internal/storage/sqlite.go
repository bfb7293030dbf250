package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/tomgould/Scrape/internal/types"
)

// DatabaseFileName is the SQLite ledger kept under the cache directory
const DatabaseFileName = "scrape.db"

// Run summarises one scrape session
type Run struct {
	ID         string
	Mode       types.Mode
	Targets    []string
	StartedAt  time.Time
	FinishedAt time.Time
	Stats      types.Stats
}

// QueryFilter narrows QueryRecords; zero fields match everything
type QueryFilter struct {
	RunID  string
	Status *types.Status
	Limit  int
}

// SQLiteStorage provides SQLite-based storage for queryable data
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// single writer; records arrive one at a time anyway
	db.SetMaxOpenConns(1)

	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		mode TEXT NOT NULL,
		targets TEXT NOT NULL,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP NOT NULL,
		discovered INTEGER NOT NULL DEFAULT 0,
		total INTEGER NOT NULL DEFAULT 0,
		success INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		retries INTEGER NOT NULL DEFAULT 0,
		bytes INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS outcomes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		url TEXT NOT NULL,
		local_path TEXT NOT NULL,
		file_name TEXT NOT NULL,
		status TEXT NOT NULL,
		http_status INTEGER,
		bytes INTEGER NOT NULL DEFAULT 0,
		elapsed_ms INTEGER NOT NULL DEFAULT 0,
		throughput REAL NOT NULL DEFAULT 0,
		retries INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		finished_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_outcomes_run ON outcomes(run_id);
	CREATE INDEX IF NOT EXISTS idx_outcomes_status ON outcomes(status);
	CREATE INDEX IF NOT EXISTS idx_outcomes_url ON outcomes(url);
	`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// SaveRun inserts or replaces the summary row for a run
func (s *SQLiteStorage) SaveRun(run Run) error {
	query := `
		INSERT OR REPLACE INTO runs
		(id, mode, targets, started_at, finished_at, discovered, total, success, failed, skipped, retries, bytes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(query,
		run.ID,
		string(run.Mode),
		strings.Join(run.Targets, "\n"),
		run.StartedAt.UTC(),
		run.FinishedAt.UTC(),
		run.Stats.Discovered,
		run.Stats.Total,
		run.Stats.Success,
		run.Stats.Failed,
		run.Stats.Skipped,
		run.Stats.Retries,
		run.Stats.BytesDownloaded,
	)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}
	return nil
}

// SaveRecord saves one outcome record
func (s *SQLiteStorage) SaveRecord(record Record) error {
	query := `
		INSERT INTO outcomes
		(run_id, url, local_path, file_name, status, http_status, bytes, elapsed_ms, throughput, retries, error, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(query,
		record.RunID,
		record.URL,
		record.LocalPath,
		record.FileName,
		record.Status.String(),
		record.HTTPStatus,
		record.Bytes,
		record.ElapsedMS,
		record.Throughput,
		record.Retries,
		record.Error,
		record.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save outcome for %s: %w", record.URL, err)
	}
	return nil
}

// QueryRecords returns outcome records matching filter, newest first
func (s *SQLiteStorage) QueryRecords(filter QueryFilter) ([]Record, error) {
	query := "SELECT run_id, url, local_path, file_name, status, http_status, bytes, elapsed_ms, throughput, retries, error, finished_at FROM outcomes WHERE 1=1"
	args := make([]interface{}, 0)

	if filter.RunID != "" {
		query += " AND run_id = ?"
		args = append(args, filter.RunID)
	}

	if filter.Status != nil {
		query += " AND status = ?"
		args = append(args, filter.Status.String())
	}

	query += " ORDER BY finished_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		var record Record
		var status string
		var errText sql.NullString
		var httpStatus sql.NullInt64
		err := rows.Scan(
			&record.RunID,
			&record.URL,
			&record.LocalPath,
			&record.FileName,
			&status,
			&httpStatus,
			&record.Bytes,
			&record.ElapsedMS,
			&record.Throughput,
			&record.Retries,
			&errText,
			&record.FinishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		if err := record.Status.UnmarshalText([]byte(status)); err != nil {
			return nil, err
		}
		record.HTTPStatus = int(httpStatus.Int64)
		record.Error = errText.String
		records = append(records, record)
	}

	return records, rows.Err()
}

// LatestRun returns the most recently started run
func (s *SQLiteStorage) LatestRun() (Run, error) {
	runs, err := s.ListRuns(1)
	if err != nil {
		return Run{}, err
	}
	if len(runs) == 0 {
		return Run{}, sql.ErrNoRows
	}
	return runs[0], nil
}

// ListRuns returns up to limit runs, newest first
func (s *SQLiteStorage) ListRuns(limit int) ([]Run, error) {
	query := `SELECT id, mode, targets, started_at, finished_at, discovered, total, success, failed, skipped, retries, bytes
		FROM runs ORDER BY started_at DESC`
	args := make([]interface{}, 0)
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := make([]Run, 0)
	for rows.Next() {
		var run Run
		var mode, targets string
		err := rows.Scan(
			&run.ID,
			&mode,
			&targets,
			&run.StartedAt,
			&run.FinishedAt,
			&run.Stats.Discovered,
			&run.Stats.Total,
			&run.Stats.Success,
			&run.Stats.Failed,
			&run.Stats.Skipped,
			&run.Stats.Retries,
			&run.Stats.BytesDownloaded,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.Mode = types.Mode(mode)
		if targets != "" {
			run.Targets = strings.Split(targets, "\n")
		}
		run.Stats.StartTime = run.StartedAt
		run.Stats.EndTime = run.FinishedAt
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// GetStats returns outcome counts per status, for one run or all runs when runID is empty
func (s *SQLiteStorage) GetStats(runID string) (map[string]int, error) {
	query := "SELECT status, COUNT(*) FROM outcomes"
	args := make([]interface{}, 0)
	if runID != "" {
		query += " WHERE run_id = ?"
		args = append(args, runID)
	}
	query += " GROUP BY status"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count outcomes: %w", err)
	}
	defer rows.Close()

	stats := map[string]int{
		types.StatusSuccess.String(): 0,
		types.StatusFailed.String():  0,
		types.StatusSkipped.String(): 0,
	}
	total := 0
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		stats[status] = n
		total += n
	}
	stats["TOTAL"] = total

	return stats, rows.Err()
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
