package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bugcorpus/bugminer/internal/store"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var summarizeCmd = &cobra.Command{
	Use:   "summarize <project-id>",
	Short: "Summarize a project's mined ledger",
	Long:  `Display ledger row counts and artifact coverage for a mined project.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(cmd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		projectID := args[0]
		outputDir := filepath.Join(cfg.OutputRoot, projectID)

		ledger := store.NewLedger(filepath.Join(outputDir, store.LedgerFileName))
		entries, err := ledger.Entries()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		fmt.Printf("\n%s\n\n", cyan("=== "+projectID+" ==="))
		if len(entries) == 0 {
			fmt.Printf("  %s\n", gray("No ledger rows"))
			return
		}

		fixedCommits := make(map[string]bool)
		issues := make(map[string]bool)
		patches := 0
		reports := 0
		for _, e := range entries {
			fixedCommits[e.FixedRevision] = true
			issues[e.IssueID] = true
			if store.FileNonEmpty(filepath.Join(outputDir, "patches", e.IssueID+".src.patch")) {
				patches++
			}
			if store.FileNonEmpty(filepath.Join(outputDir, "reports", e.IssueID+".json")) ||
				store.FileNonEmpty(filepath.Join(outputDir, "reports", e.IssueID+".xml")) {
				reports++
			}
		}

		fmt.Printf("  Ledger rows:      %d (vid %d..%d)\n", len(entries), entries[0].VID, entries[len(entries)-1].VID)
		fmt.Printf("  Distinct fixes:   %d commits, %d issues\n", len(fixedCommits), len(issues))
		fmt.Printf("  Patch coverage:   %d/%d\n", patches, len(entries))
		fmt.Printf("  Report coverage:  %d/%d\n", reports, len(entries))
	},
}

func init() {
	rootCmd.AddCommand(summarizeCmd)
}
