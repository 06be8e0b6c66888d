package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configDir string

var rootCmd = &cobra.Command{
	Use:   "pillarlens",
	Short: "pillarlens converges a systematic literature review against a pillar catalog",
	Long: `pillarlens runs the convergence engine described in the project's pillar
catalog: it ingests papers, extracts and judges claims against named
sub-requirements, analyzes remaining gaps, and decides whether another
review iteration is worth its cost.

Run without a subcommand to see usage; "run" starts a fresh convergence run.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", getEnv("CONFIG_DIR", "./deploy/config"), "path to configuration directory")

	rootCmd.AddCommand(
		runCmd,
		resumeCmd,
		stageCmd,
		scanPapersCmd,
		scanCheckpointsCmd,
		syncCSVCmd,
		versionCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		var ce *cliError
		if errors.As(err, &ce) {
			fmt.Fprintln(os.Stderr, ce.err)
			os.Exit(ce.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitStageFailed)
	}
}
