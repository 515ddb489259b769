package main

import (
	"github.com/spf13/cobra"

	"devmind/internal/mcp"
	"devmind/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server on stdio",
	Long: `Serve the index as MCP tools over stdin/stdout for LLM clients. All logs
go to stderr; stdout carries only JSON-RPC messages. The server reads the
existing index - run 'devmind index' first, and re-run it to refresh.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
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

	return mcp.NewServer(version.Version, engine, logger).Start()
}
