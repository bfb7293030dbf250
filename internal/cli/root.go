package cli

import (
	"context"

	"github.com/spf13/cobra"
)

var (
	configPath  string
	cacheDir    string
	logLevel    string
	logJSON     bool
	logFile     string
	metricsAddr string
)

var rootCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Mirror files from open directory listings",
	Long: `Scrape crawls open web directory listings, filters the files it finds by
extension, path and name, and downloads them with bounded concurrency,
retries, resume and an optional bandwidth cap.`,
	SilenceUsage: true,
}

// ExecuteContext runs the root command with ctx; cancelling it stops a run gracefully.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&cacheDir, "cache-dir", "", "Directory for the outcome report and database (default from config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug/info/warn/error")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Write logs as JSON")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Append logs to this file instead of stderr")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Serve prometheus metrics on this address, e.g. :9090")

	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(configCmd)
}
