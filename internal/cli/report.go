package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/tomgould/Scrape/internal/export"
	"github.com/tomgould/Scrape/internal/storage"
	"github.com/tomgould/Scrape/internal/types"
)

var (
	reportRunID  string
	reportStatus string
	reportLimit  int
	reportCSV    string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show the outcomes of a previous run",
	Long:  `Summarise a recorded run from the outcome database (or the JSONL report when no database exists)`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		var status *types.Status
		if reportStatus != "" {
			var s types.Status
			if err := s.UnmarshalText([]byte(reportStatus)); err != nil {
				return err
			}
			status = &s
		}
		filter := storage.QueryFilter{RunID: reportRunID, Status: status, Limit: reportLimit}

		var records []storage.Record
		out := cmd.OutOrStdout()
		dbPath := filepath.Join(cfg.CachePath, storage.DatabaseFileName)
		if _, statErr := os.Stat(dbPath); statErr == nil {
			records, err = reportFromDatabase(out, dbPath, filter)
		} else {
			records, err = reportFromJSONL(out, filepath.Join(cfg.CachePath, storage.ReportFileName), filter)
		}
		if err != nil {
			return err
		}

		writeRecords(out, records)

		if reportCSV != "" {
			f, err := os.Create(reportCSV)
			if err != nil {
				return fmt.Errorf("failed to create CSV file: %w", err)
			}
			defer f.Close()
			if err := export.WriteRecordsCSV(f, records); err != nil {
				return fmt.Errorf("export failed: %w", err)
			}
			fmt.Fprintf(out, "Exported %d records to %s\n", len(records), reportCSV)
		}
		return nil
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportRunID, "run", "", "Run ID (default latest)")
	reportCmd.Flags().StringVar(&reportStatus, "status", "", "Only show outcomes with this status: success/failed/skipped")
	reportCmd.Flags().IntVar(&reportLimit, "limit", 50, "Maximum records to list (0 for all)")
	reportCmd.Flags().StringVar(&reportCSV, "csv", "", "Also write the listed records to this CSV file")
}

func reportFromDatabase(out io.Writer, dbPath string, filter storage.QueryFilter) ([]storage.Record, error) {
	db, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	if filter.RunID == "" {
		run, err := db.LatestRun()
		if err != nil {
			return nil, fmt.Errorf("no runs recorded: %w", err)
		}
		filter.RunID = run.ID
		fmt.Fprintln(out, renderSummary(fmt.Sprintf("Run %s (%s)", run.ID, run.Mode), run.Stats))
	}

	counts, err := db.GetStats(filter.RunID)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(out, "Recorded outcomes: %d success, %d failed, %d skipped\n",
		counts["SUCCESS"], counts["FAILED"], counts["SKIPPED"])

	return db.QueryRecords(filter)
}

// reportFromJSONL filters the flat report in memory. Without a run ID the
// run of the last line is used.
func reportFromJSONL(out io.Writer, path string, filter storage.QueryFilter) ([]storage.Record, error) {
	all, err := storage.LoadRecords(path)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("no outcomes recorded in %s", path)
	}
	if filter.RunID == "" {
		filter.RunID = all[len(all)-1].RunID
	}

	counts := make(map[types.Status]int)
	selected := make([]storage.Record, 0)
	for i := len(all) - 1; i >= 0; i-- {
		r := all[i]
		if r.RunID != filter.RunID {
			continue
		}
		counts[r.Status]++
		if filter.Status != nil && r.Status != *filter.Status {
			continue
		}
		if filter.Limit > 0 && len(selected) >= filter.Limit {
			continue
		}
		selected = append(selected, r)
	}

	fmt.Fprintf(out, "Run %s\nRecorded outcomes: %d success, %d failed, %d skipped\n", filter.RunID,
		counts[types.StatusSuccess], counts[types.StatusFailed], counts[types.StatusSkipped])
	return selected, nil
}

func writeRecords(out io.Writer, records []storage.Record) {
	if len(records) == 0 {
		return
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STATUS\tFILE\tSIZE KB\tTIME S\tRETRIES\tERROR")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%.1f\t%.2f\t%d\t%s\n",
			r.Status, r.LocalPath, float64(r.Bytes)/1024, float64(r.ElapsedMS)/1000, r.Retries, r.Error)
	}
	tw.Flush()
}
