package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pillarlens/pkg/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "run the full convergence pipeline over data_dir",
	RunE:  runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configDir)
	if err != nil {
		return exitError(exitConfigError, fmt.Errorf("loading configuration: %w", err))
	}

	if cfg.Pipeline.DryRun {
		fmt.Println("dry run: no LLM calls will be made")
		for k, v := range cfg.Stats() {
			fmt.Printf("  %s: %v\n", k, v)
		}
		return nil
	}

	// spec.md §4.8: absence of a resume flag on an existing checkpoint must
	// leave it untouched and diagnose, never silently fabricate a new run
	// that overwrites it on the next save.
	if !cfg.Pipeline.Resume && cfg.Pipeline.ResumeFromCheckpoint == "" {
		if _, err := os.Stat(currentCheckpointPath(cfg)); err == nil {
			return exitError(exitConfigError, fmt.Errorf("a checkpoint already exists at %s; run `pillarlens resume` to continue it, or remove it to start fresh", currentCheckpointPath(cfg)))
		}
	}

	papers, err := scanDataDir(cfg.Paths.DataDir)
	if err != nil {
		return exitError(exitConfigError, fmt.Errorf("scanning data dir %s: %w", cfg.Paths.DataDir, err))
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

	cp, exitCode, runErr := ctrl.Run(ctx, papers)
	if archErr := archiveCheckpoint(cfg, cp); archErr != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to archive checkpoint: %v\n", archErr)
	}
	if runErr != nil {
		return exitError(exitCode, runErr)
	}
	return nil
}
