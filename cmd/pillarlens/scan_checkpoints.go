package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"pillarlens/pkg/config"
	"pillarlens/pkg/pipeline"
)

var scanCheckpointsCmd = &cobra.Command{
	Use:   "scan-checkpoints",
	Short: "list checkpoints under output_dir with stage statuses and coverage",
	RunE:  runScanCheckpoints,
}

func runScanCheckpoints(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configDir)
	if err != nil {
		return exitError(exitConfigError, fmt.Errorf("loading configuration: %w", err))
	}

	checkpoints, err := collectCheckpoints(cfg)
	if err != nil {
		return exitError(exitConfigError, err)
	}

	if len(checkpoints) == 0 {
		fmt.Println("no checkpoints found")
		return nil
	}

	sort.Slice(checkpoints, func(i, j int) bool { return checkpoints[i].UpdatedAt.Before(checkpoints[j].UpdatedAt) })

	for _, cp := range checkpoints {
		fmt.Printf("run_id=%s job_type=%s coverage=%.1f%%\n", cp.RunID, cp.JobType, cp.OverallCoverage*100)
		for _, name := range config.Sequence() {
			fmt.Printf("  %-18s %s\n", name, cp.StageStatus(name))
		}
	}
	return nil
}

// collectCheckpoints reads every archived checkpoint plus the current
// in-progress one (if any), deduplicated by run_id.
func collectCheckpoints(cfg *config.Config) ([]*pipeline.Checkpoint, error) {
	seen := make(map[string]bool)
	var out []*pipeline.Checkpoint

	dir := checkpointArchiveDir(cfg)
	entries, err := os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading checkpoint archive dir %s: %w", dir, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		cp, err := pipeline.LoadCheckpoint(filepath.Join(dir, e.Name()))
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: skipping unreadable checkpoint %s: %v\n", e.Name(), err)
			continue
		}
		seen[cp.RunID] = true
		out = append(out, cp)
	}

	if cp, err := pipeline.LoadCheckpoint(currentCheckpointPath(cfg)); err == nil && !seen[cp.RunID] {
		out = append(out, cp)
	}

	return out, nil
}
