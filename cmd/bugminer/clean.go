package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var (
	cleanOutput bool
	cleanCache  bool
	cleanIssues string
)

var cleanCmd = &cobra.Command{
	Use:   "clean <project-id>",
	Short: "Remove a project's output tree and optionally its caches",
	Long: `Clean removes mined state for a project so the next run regenerates it.

By default only the output tree (ledger, patches, reports) is removed.
The cache tier (repository mirror, log snapshot) is only removed with
--cache, and a shared issue index only with --issues, since other
projects may still be using it.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(cmd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		projectID := args[0]

		var targets []string
		if cleanOutput {
			targets = append(targets, filepath.Join(cfg.OutputRoot, projectID))
		}
		if cleanCache {
			targets = append(targets, filepath.Join(cfg.CacheRoot, projectID))
		}
		if cleanIssues != "" {
			targets = append(targets, filepath.Join(cfg.CacheRoot, "issues", cleanIssues))
		}

		for _, dir := range targets {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				fmt.Printf("%s does not exist, nothing to do.\n", dir)
				continue
			}
			if err := os.RemoveAll(dir); err != nil {
				fmt.Fprintf(os.Stderr, "Error: could not remove %s: %v\n", dir, err)
				os.Exit(1)
			}
			fmt.Printf("Removed %s\n", dir)
		}
	},
}

func init() {
	cleanCmd.Flags().BoolVar(&cleanOutput, "output", true, "remove the project output tree")
	cleanCmd.Flags().BoolVar(&cleanCache, "cache", false, "remove the project cache tier (mirror, log snapshot)")
	cleanCmd.Flags().StringVar(&cleanIssues, "issues", "", "also remove the shared issue index with this key (e.g. jira_LANG)")
	rootCmd.AddCommand(cleanCmd)
}
