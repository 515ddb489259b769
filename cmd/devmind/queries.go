package main

import (
	"github.com/spf13/cobra"

	"devmind/internal/query"
)

// The query commands mirror the MCP tools for shell use; all print JSON.

var overviewCmd = &cobra.Command{
	Use:   "overview",
	Short: "Show the project overview",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(e *query.Engine) (interface{}, error) {
			return e.ProjectOverview()
		})
	},
}

var (
	searchLimit int

	searchCmd = &cobra.Command{
		Use:   "search <term>",
		Short: "Search functions and todo comments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(e *query.Engine) (interface{}, error) {
				return e.Search(args[0], searchLimit)
			})
		},
	}
)

var contextCmd = &cobra.Command{
	Use:   "context <function-name>",
	Short: "Show everything known about a function",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(e *query.Engine) (interface{}, error) {
			return e.GetFunctionContext(args[0])
		})
	},
}

var (
	changesLimit int

	changesCmd = &cobra.Command{
		Use:   "changes [file-path]",
		Short: "Show recent commits for a file, or repo-wide without an argument",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) > 0 {
				path = args[0]
			}
			return withEngine(func(e *query.Engine) (interface{}, error) {
				return e.RecentChanges(path, changesLimit)
			})
		},
	}
)

var (
	relatedDepth int

	relatedCmd = &cobra.Command{
		Use:   "related <file-path>",
		Short: "Show files related through the import graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(e *query.Engine) (interface{}, error) {
				return e.FindRelatedFiles(args[0], relatedDepth)
			})
		},
	}
)

func init() {
	searchCmd.Flags().IntVar(&searchLimit, "limit", 0, "Maximum number of results (default 20)")
	changesCmd.Flags().IntVar(&changesLimit, "limit", 0, "Maximum number of commits (default 10)")
	relatedCmd.Flags().IntVar(&relatedDepth, "depth", 0, "Import-graph hops to follow (default 1)")

	rootCmd.AddCommand(overviewCmd, searchCmd, contextCmd, changesCmd, relatedCmd)
}
