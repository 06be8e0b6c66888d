package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"pillarlens/pkg/csvexport"
	"pillarlens/pkg/store"
)

var syncCSVCmd = &cobra.Command{
	Use:   "sync-csv",
	Short: "export the Version Store's current claim set to CSV",
	RunE:  runSyncCSV,
}

func runSyncCSV(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configDir)
	if err != nil {
		return exitError(exitConfigError, fmt.Errorf("loading configuration: %w", err))
	}

	h, err := store.New(cfg.Paths.VersionHistoryPath).Load()
	if err != nil {
		return exitError(exitStageFailed, fmt.Errorf("loading version history: %w", err))
	}

	csvPath := filepath.Join(cfg.Paths.OutputDir, "claims.csv")
	if err := csvexport.Export(h, csvPath); err != nil {
		return exitError(exitStageFailed, fmt.Errorf("exporting csv: %w", err))
	}
	fmt.Println("wrote", csvPath)
	return nil
}
