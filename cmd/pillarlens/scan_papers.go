package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"pillarlens/pkg/store"
)

var scanPapersCmd = &cobra.Command{
	Use:   "scan-papers",
	Short: "scan data_dir for paper files and print a manifest",
	RunE:  runScanPapers,
}

func detectedPaperType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return "pdf"
	case ".csv":
		return "csv"
	default:
		return "unknown"
	}
}

func runScanPapers(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configDir)
	if err != nil {
		return exitError(exitConfigError, fmt.Errorf("loading configuration: %w", err))
	}

	papers, err := scanDataDir(cfg.Paths.DataDir)
	if err != nil {
		return exitError(exitConfigError, fmt.Errorf("scanning data dir %s: %w", cfg.Paths.DataDir, err))
	}

	h, err := store.New(cfg.Paths.VersionHistoryPath).Load()
	if err != nil {
		return exitError(exitConfigError, fmt.Errorf("loading version history: %w", err))
	}

	fmt.Printf("%-40s %10s %8s %s\n", "FILENAME", "SIZE", "TYPE", "HAS_HISTORY")
	for _, p := range papers {
		info, err := os.Stat(p.Path)
		size := int64(-1)
		if err == nil {
			size = info.Size()
		}
		hasHistory := len(h[p.ID]) > 0
		fmt.Printf("%-40s %10d %8s %v\n", p.ID, size, detectedPaperType(p.ID), hasHistory)
	}
	return nil
}
