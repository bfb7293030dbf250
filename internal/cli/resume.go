package cli

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/tomgould/Scrape/internal/storage"
	"github.com/tomgould/Scrape/internal/types"
)

var (
	resumeFlags   runFlags
	resumeRunID   string
	resumeSkipped bool
)

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Retry the files a previous run did not finish",
	Long: `Read the outcome database, collect the failed (and optionally skipped)
files of a run and download them again, resuming any partial data.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := prepareRun(cmd, &resumeFlags, types.ModeDownload)
		if err != nil {
			return err
		}

		items, runID, err := pendingItems(filepath.Join(cfg.CachePath, storage.DatabaseFileName), resumeRunID, resumeSkipped)
		if err != nil {
			return fmt.Errorf("failed to load previous run: %w", err)
		}
		out := cmd.OutOrStdout()
		if len(items) == 0 {
			fmt.Fprintf(out, "Nothing to resume for run %s\n", runID)
			return nil
		}
		fmt.Fprintf(out, "Resuming %d files from run %s\n", len(items), runID)

		ledgers, closeLedgers, err := openLedgers(cfg)
		if err != nil {
			return err
		}
		defer closeLedgers()

		res, err := execute(cmd, cfg, &resumeFlags, scraperOptions{ledgers: ledgers, retry: items})
		if res != nil {
			fmt.Fprintln(out, renderSummary("Resume finished", res.Stats))
			fmt.Fprintf(out, "Run %s\n", res.RunID)
		}
		if err != nil {
			return fmt.Errorf("resume failed: %w", err)
		}
		return nil
	},
}

func init() {
	addRunFlags(resumeCmd, &resumeFlags)
	resumeCmd.Flags().StringVar(&resumeRunID, "run", "", "Run ID to resume (default latest)")
	resumeCmd.Flags().BoolVar(&resumeSkipped, "include-skipped", true, "Also retry files that were skipped, e.g. by cancellation")
}

// pendingItems rebuilds the unfinished download items of a run from the database
func pendingItems(dbPath, runID string, includeSkipped bool) ([]types.DownloadItem, string, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return nil, "", fmt.Errorf("no outcome database at %s: %w", dbPath, err)
	}
	db, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, "", err
	}
	defer db.Close()

	if runID == "" {
		run, err := db.LatestRun()
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", errors.New("no runs recorded")
		}
		if err != nil {
			return nil, "", err
		}
		runID = run.ID
	}

	statuses := []types.Status{types.StatusFailed}
	if includeSkipped {
		statuses = append(statuses, types.StatusSkipped)
	}

	seen := make(map[string]struct{})
	items := make([]types.DownloadItem, 0)
	for _, status := range statuses {
		records, err := db.QueryRecords(storage.QueryFilter{RunID: runID, Status: &status})
		if err != nil {
			return nil, runID, err
		}
		for _, r := range records {
			if _, dup := seen[r.LocalPath]; dup {
				continue
			}
			seen[r.LocalPath] = struct{}{}
			if _, err := os.Stat(r.LocalPath); err == nil {
				continue
			}
			items = append(items, types.DownloadItem{
				SourceURL:      r.URL,
				LocalPath:      r.LocalPath,
				FileName:       r.FileName,
				DestinationDir: filepath.Dir(r.LocalPath),
			})
		}
	}
	return items, runID, nil
}
