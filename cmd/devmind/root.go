package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"devmind/internal/config"
	"devmind/internal/logging"
	"devmind/internal/query"
	"devmind/internal/storage"
	"devmind/internal/version"
)

var (
	rootFlag      string
	logLevelFlag  string
	logFormatFlag string
)

var rootCmd = &cobra.Command{
	Use:   "devmind",
	Short: "DevMind - codebase indexing and context assembly",
	Long: `DevMind indexes a codebase into a local SQLite database - files, function
definitions, import relationships, todo comments, and git history - and answers
context questions over that index: project overview, symbol search, function
context, recent changes, and related files. The same queries are exposed as
MCP tools via 'devmind serve'.`,
	Version: version.Version,
}

func init() {
	rootCmd.SetVersionTemplate("devmind version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&rootFlag, "root", ".", "Project root directory")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level: debug, info, warn, or error")
	rootCmd.PersistentFlags().StringVar(&logFormatFlag, "log-format", "", "Log format: human or json")
}

// loadConfig loads the project config and applies CLI overrides.
func loadConfig() (*config.Config, error) {
	root, err := filepath.Abs(rootFlag)
	if err != nil {
		return nil, err
	}

	cfg, err := config.LoadConfig(root)
	if err != nil {
		return nil, err
	}
	if logLevelFlag != "" {
		cfg.Logging.Level = logLevelFlag
	}
	if logFormatFlag != "" {
		cfg.Logging.Format = logFormatFlag
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *logging.Logger {
	format := logging.HumanFormat
	if cfg.Logging.Format == string(logging.JSONFormat) {
		format = logging.JSONFormat
	}
	return logging.NewLogger(logging.Config{
		Format: format,
		Level:  logging.ParseLevel(cfg.Logging.Level),
	})
}

// openEngine opens the index database and builds a query engine over it.
func openEngine(cfg *config.Config, logger *logging.Logger) (*storage.DB, *query.Engine, error) {
	db, err := storage.Open(cfg.ProjectRoot, logger)
	if err != nil {
		return nil, nil, err
	}
	return db, query.NewEngine(cfg.ProjectRoot, db, logger), nil
}

// withEngine runs a query against the index and prints the result as JSON.
func withEngine(fn func(*query.Engine) (interface{}, error)) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	db, engine, err := openEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	result, err := fn(engine)
	if err != nil {
		return err
	}
	return printJSON(result)
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout, string(data))
	return err
}
