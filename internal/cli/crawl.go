package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/tomgould/Scrape/internal/config"
	"github.com/tomgould/Scrape/internal/export"
	"github.com/tomgould/Scrape/internal/scraper"
	"github.com/tomgould/Scrape/internal/stats"
	"github.com/tomgould/Scrape/internal/storage"
	"github.com/tomgould/Scrape/internal/types"
)

var (
	searchFlags  runFlags
	searchExport string

	downloadFlags runFlags
	testMode      bool
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "List matching files without downloading",
	Long:  `Crawl the configured listings and print every file that passes the filters`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := prepareRun(cmd, &searchFlags, types.ModeSearch)
		if err != nil {
			return err
		}

		res, err := execute(cmd, cfg, &searchFlags, scraperOptions{})
		if res == nil {
			return err
		}

		out := cmd.OutOrStdout()
		if werr := export.WriteListing(out, res.Items); werr != nil {
			return werr
		}
		fmt.Fprintf(out, "\n%d files found\n", len(res.Items))

		if searchExport != "" {
			exporter, xerr := export.NewExporter(filepath.Dir(searchExport))
			if xerr != nil {
				return xerr
			}
			path, xerr := exporter.ExportItems(res.Items, searchExport)
			if xerr != nil {
				return fmt.Errorf("export failed: %w", xerr)
			}
			fmt.Fprintf(out, "Exported %d files to %s\n", len(res.Items), path)
		}
		return err
	},
}

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download matching files",
	Long: `Crawl the configured listings and download every file that passes the
filters and is not already on disk. Interrupted files are resumed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		mode := types.ModeDownload
		if testMode {
			mode = types.ModeTest
		}
		cfg, err := prepareRun(cmd, &downloadFlags, mode)
		if err != nil {
			return err
		}

		ledgers, closeLedgers, err := openLedgers(cfg)
		if err != nil {
			return err
		}
		defer closeLedgers()

		res, err := execute(cmd, cfg, &downloadFlags, scraperOptions{ledgers: ledgers})
		if res != nil {
			title := "Download finished"
			if mode == types.ModeTest {
				title = "Test run finished"
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderSummary(title, res.Stats))
			fmt.Fprintf(cmd.OutOrStdout(), "Run %s\n", res.RunID)
		}
		if err != nil {
			return fmt.Errorf("download failed: %w", err)
		}
		return nil
	},
}

func init() {
	addRunFlags(searchCmd, &searchFlags)
	searchCmd.Flags().StringVar(&searchExport, "export", "", "Also write the results to a .json, .csv or .txt file")

	addRunFlags(downloadCmd, &downloadFlags)
	downloadCmd.Flags().BoolVar(&testMode, "test", false, "Create empty placeholder files instead of downloading")
}

// prepareRun merges the config file and flags for one mode
func prepareRun(cmd *cobra.Command, f *runFlags, mode types.Mode) (config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return config.Config{}, err
	}
	cfg.Mode = string(mode)
	if err := f.apply(cmd, &cfg); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

type scraperOptions struct {
	ledgers []storage.Ledger
	retry   []types.DownloadItem
}

// execute builds the logger, metrics and progress bar around one scraper run
func execute(cmd *cobra.Command, cfg config.Config, f *runFlags, so scraperOptions) (*scraper.Result, error) {
	logger, closeLog, err := buildLogger(cfg.Logging, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	defer closeLog()

	tc := cfg.ToTypes()
	tc.Logger = logger

	var opts []scraper.Option
	for _, l := range so.ledgers {
		opts = append(opts, scraper.WithLedger(l))
	}

	if cfg.Metrics.Addr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		opts = append(opts, scraper.WithMetrics(stats.NewMetrics(reg)))
		stop := startMetrics(cfg.Metrics.Addr, reg, logger)
		defer stop()
	}

	var bar *progressBar
	if tc.Mode != types.ModeSearch && !f.noProgress {
		bar = newProgressBar(progressOutput(cmd), string(tc.Mode))
		tc.Progress = bar.update
	}

	s := scraper.New(tc, opts...)
	var res *scraper.Result
	if so.retry != nil {
		res, err = s.Retry(cmd.Context(), so.retry)
	} else {
		res, err = s.Run(cmd.Context())
	}
	if bar != nil {
		bar.finish()
	}
	return res, err
}

// progressOutput hides the bar when stdout is not a terminal-like file
func progressOutput(cmd *cobra.Command) io.Writer {
	out := cmd.OutOrStdout()
	if f, ok := out.(*os.File); ok {
		if fi, err := f.Stat(); err == nil && fi.Mode()&os.ModeCharDevice != 0 {
			return f
		}
		return io.Discard
	}
	return out
}
