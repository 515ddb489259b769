package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"devmind/internal/indexer"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build or refresh the project index",
	Long: `Walk the project tree, extract functions, imports, and todo comments from
changed files, reconcile deleted files, and harvest new git history. Unchanged
files are skipped by content fingerprint, so re-running is cheap.`,
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	db, _, err := openEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	// Ctrl+C stops dispatching new files; extracted files still get written
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stats, err := indexer.New(cfg, db, logger).Run(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Indexed %d files (%d skipped, %d deleted, %d degraded), %d commits harvested in %s\n",
		stats.FilesIndexed, stats.FilesSkipped, stats.FilesDeleted, stats.FilesDegraded,
		stats.CommitsHarvested, stats.Duration.Round(time.Millisecond))
	return nil
}
