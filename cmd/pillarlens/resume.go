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

var resumeFromCheckpoint string

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "resume an interrupted convergence run from its last checkpoint",
	RunE:  runResume,
}

func init() {
	resumeCmd.Flags().StringVar(&resumeFromCheckpoint, "from", "", "explicit checkpoint file to resume from (default: the run's current checkpoint)")
}

func runResume(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configDir)
	if err != nil {
		return exitError(exitConfigError, fmt.Errorf("loading configuration: %w", err))
	}

	resume := true
	overrides := config.Overrides{Resume: &resume}
	if resumeFromCheckpoint != "" {
		cfg.Pipeline.ResumeFromCheckpoint = resumeFromCheckpoint
	}
	overrides.Apply(cfg)

	checkpointPath := cfg.Pipeline.ResumeFromCheckpoint
	if checkpointPath == "" {
		checkpointPath = currentCheckpointPath(cfg)
	}
	if _, err := pipeline.LoadCheckpoint(checkpointPath); err != nil {
		return exitError(exitNoCheckpoint, fmt.Errorf("no checkpoint to resume at %s: %w", checkpointPath, err))
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
