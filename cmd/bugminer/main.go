// Command bugminer mines bug-fixing commit pairs from version-control
// history and issue trackers, producing a per-project ledger of
// (buggy revision, fixed revision, issue) rows plus patch and report
// artifacts.
package main

import (
	"fmt"
	"os"

	"github.com/bugcorpus/bugminer/internal/config"
	"github.com/spf13/cobra"
)

var (
	cfgPath    string
	cacheRoot  string
	outputRoot string
)

var rootCmd = &cobra.Command{
	Use:   "bugminer",
	Short: "Mine bug-fixing commit pairs from repositories and issue trackers",
	Long: `bugminer reconstructs "bug report -> fix commit" links for a batch of
projects. For each project it mirrors the repository, loads the shared
issue index for its tracker, cross-references the commit log against
known issue ids, and materializes patch, report, and discussion
artifacts for every confirmed fix.

All stages are idempotent: completed artifacts are detected and
skipped, so an interrupted run can simply be restarted.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "bugminer.yaml", "path to config file")
	rootCmd.PersistentFlags().StringVar(&cacheRoot, "cache-dir", "", "cache root (overrides config)")
	rootCmd.PersistentFlags().StringVar(&outputRoot, "output-dir", "", "output root (overrides config)")
}

// loadConfig merges the config file with root-level flag overrides.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	explicit := cmd.Flags().Changed("config") || rootCmd.PersistentFlags().Changed("config")
	cfg, err := config.Load(cfgPath, explicit)
	if err != nil {
		return cfg, err
	}
	if cacheRoot != "" {
		cfg.CacheRoot = cacheRoot
	}
	if outputRoot != "" {
		cfg.OutputRoot = outputRoot
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
