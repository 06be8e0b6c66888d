package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pillarlens/pkg/config"
	"pillarlens/pkg/pipeline"
)

var stageCmd = &cobra.Command{
	Use:   "stage <name>",
	Short: "run a single named stage in isolation",
	Long: `Runs exactly one stage of the convergence pipeline against the current
Version Store and checkpoint, rather than the full sequence "run" drives.

Valid stage names: journal_review, judge, dra, sync_to_csv, gap_analysis,
trigger_evaluator, deep_review.`,
	Args: cobra.ExactArgs(1),
	RunE: runStage,
}

func runStage(cmd *cobra.Command, args []string) error {
	name := config.StageName(args[0])

	cfg, err := loadConfig(configDir)
	if err != nil {
		return exitError(exitConfigError, fmt.Errorf("loading configuration: %w", err))
	}

	papers, err := scanDataDir(cfg.Paths.DataDir)
	if err != nil {
		return exitError(exitConfigError, fmt.Errorf("scanning data dir %s: %w", cfg.Paths.DataDir, err))
	}

	// A stage invocation continues the current checkpoint when one already
	// exists, so a sequence of `stage` calls accumulates state the way `run`
	// would; the very first invocation against a clean output_dir starts fresh.
	if _, err := os.Stat(currentCheckpointPath(cfg)); err == nil {
		cfg.Pipeline.Resume = true
	}

	ctrl, err := buildController(cfg, nil)
	if err != nil {
		return exitError(exitConfigError, err)
	}

	lock, err := pipeline.AcquireLock(lockPath(cfg))
	if err != nil {
		return exitError(exitConfigError, err)
	}
	defer lock.Release()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\ninterrupt received, writing checkpoint and stopping")
		cancel()
	}()

	cp, exitCode, stageErr := ctrl.RunStage(ctx, name, papers)
	if archErr := archiveCheckpoint(cfg, cp); archErr != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to archive checkpoint: %v\n", archErr)
	}
	if stageErr != nil {
		return exitError(exitCode, stageErr)
	}
	return nil
}
