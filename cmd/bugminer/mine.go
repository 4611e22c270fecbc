package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/bugcorpus/bugminer/internal/miner"
	"github.com/bugcorpus/bugminer/internal/project"
	"github.com/bugcorpus/bugminer/internal/store"
	"github.com/spf13/cobra"
)

var (
	mineWorkers  int64
	mineModel    string
	mineLister   string
	mineErrorLog string
)

var mineCmd = &cobra.Command{
	Use:   "mine <batch-file>",
	Short: "Mine every project listed in a batch file",
	Long: `Mine runs the full pipeline for each project in the batch file, one
project at a time. A project failure rolls back that project's output
tree and the batch continues; only a missing batch file aborts the run.

The batch file is tab-separated, one project per line:

  id  name  repo_url  tracker  tracker_project_id  fix_pattern  [sub_path]  [tracker_base_url]

Lines starting with '#' and blank lines are ignored.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(cmd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		specs, err := project.ParseBatchFile(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if len(specs) == 0 {
			fmt.Fprintln(os.Stderr, "Error: batch file contains no projects")
			os.Exit(1)
		}

		// Tee failure reports into a run log next to the outputs.
		errOut := io.Writer(os.Stderr)
		logFile, err := os.Create(mineErrorLog)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: cannot create %s: %v\n", mineErrorLog, err)
		} else {
			defer logFile.Close()
			errOut = io.MultiWriter(os.Stderr, logFile)
		}

		workers := mineWorkers
		if !cmd.Flags().Changed("workers") {
			workers = int64(cfg.Workers)
		}
		model := mineModel
		if model == "" {
			model = cfg.Model
		}
		lister := mineLister
		if lister == "" {
			lister = cfg.ListerCommand
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		m, err := miner.New(ctx, miner.Config{
			Layout: store.Layout{
				CacheRoot:  cfg.CacheRoot,
				OutputRoot: cfg.OutputRoot,
			},
			Workers:         workers,
			Model:           model,
			RequestInterval: cfg.RequestInterval(),
			GitTimeout:      cfg.GitTimeout(),
			ListerCommand:   lister,
			ErrOut:          errOut,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if err := m.Run(ctx, specs); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	mineCmd.Flags().Int64Var(&mineWorkers, "workers", 5, "concurrent adjudication calls")
	mineCmd.Flags().StringVar(&mineModel, "model", "", "adjudication model (overrides config)")
	mineCmd.Flags().StringVar(&mineLister, "lister", "", "issue-lister collaborator executable")
	mineCmd.Flags().StringVar(&mineErrorLog, "error-log", "error.txt", "file receiving a copy of failure reports")
	rootCmd.AddCommand(mineCmd)
}
