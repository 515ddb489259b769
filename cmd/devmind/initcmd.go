package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"devmind/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize devmind in a project",
	Long: `Create the .devmind directory with a default config.json and an empty
index database. Safe to run in an already-initialized project.`,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	root, err := filepath.Abs(rootFlag)
	if err != nil {
		return err
	}

	cfg := config.DefaultConfig()
	cfg.ProjectRoot = root
	if err := cfg.Save(root); err != nil {
		return err
	}

	logger := newLogger(cfg)
	db, _, err := openEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	fmt.Printf("Initialized devmind in %s\n", filepath.Join(root, ".devmind"))
	fmt.Println("Run 'devmind index' to build the index.")
	return nil
}
