package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"devmind/internal/export"
)

var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a compressed snapshot of the index",
	Long: `Serialize the whole index - files, functions, imports, todos, and commit
history - as zstd-compressed JSON. Useful for archiving an index or inspecting
it with external tooling.`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "devmind-snapshot.json.zst", "Output file path")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
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

	f, err := os.Create(exportOutput)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := export.WriteSnapshot(db, f); err != nil {
		return err
	}
	fmt.Printf("Snapshot written to %s\n", exportOutput)
	return nil
}
