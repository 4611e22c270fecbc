package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bugcorpus/bugminer/internal/gitcli"
	"github.com/bugcorpus/bugminer/internal/transport"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/mod/semver"
)

// minGitVersion is the oldest git the miner is known to work with;
// --git-dir log/diff behavior is stable well before this.
const minGitVersion = "v2.20.0"

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check miner installation and environment health",
	Long: `Run health checks to diagnose common configuration issues.

This command checks for:
- git availability and minimum version
- Model and code-hosting credentials
- Cache and output root writability

Exit codes:
  0 - All checks passed
  1 - One or more checks failed`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(cmd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		green := color.New(color.FgGreen).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		cyan := color.New(color.FgCyan).SprintFunc()

		fmt.Printf("Running bugminer health checks...\n\n")
		failures := 0

		ctx := context.Background()
		runner := transport.NewRunner()
		runner.Quiet = true

		fmt.Printf("%s git\n", cyan("→"))
		git, err := gitcli.New(ctx, runner)
		if err != nil {
			fmt.Printf("  %s %v\n", red("✗"), err)
			failures++
		} else {
			version, verr := git.Version(ctx)
			switch {
			case verr != nil:
				fmt.Printf("  %s cannot determine git version: %v\n", yellow("⚠"), verr)
			case semver.Compare("v"+version, minGitVersion) < 0:
				fmt.Printf("  %s git %s is older than %s\n", red("✗"), version, minGitVersion)
				failures++
			default:
				fmt.Printf("  %s git %s\n", green("✓"), version)
			}
		}

		fmt.Printf("%s credentials\n", cyan("→"))
		if os.Getenv("ANTHROPIC_API_KEY") == "" {
			fmt.Printf("  %s ANTHROPIC_API_KEY not set (semantic matching for GitHub trackers will fail)\n", yellow("⚠"))
		} else {
			fmt.Printf("  %s ANTHROPIC_API_KEY set\n", green("✓"))
		}
		if os.Getenv("GH_TOKEN") == "" {
			fmt.Printf("  %s GH_TOKEN not set (GitHub downloads run at unauthenticated rate limits)\n", yellow("⚠"))
		} else {
			fmt.Printf("  %s GH_TOKEN set\n", green("✓"))
		}

		fmt.Printf("%s directories\n", cyan("→"))
		for _, dir := range []string{cfg.CacheRoot, cfg.OutputRoot} {
			if err := checkWritable(dir); err != nil {
				fmt.Printf("  %s %s: %v\n", red("✗"), dir, err)
				failures++
			} else {
				fmt.Printf("  %s %s writable\n", green("✓"), dir)
			}
		}

		fmt.Println()
		if failures > 0 {
			fmt.Printf("%s %d check(s) failed\n", red("✗"), failures)
			os.Exit(1)
		}
		fmt.Printf("%s all checks passed\n", green("✓"))
	},
}

func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	probe := filepath.Join(dir, ".bugminer-doctor")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return err
	}
	return os.Remove(probe)
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}
