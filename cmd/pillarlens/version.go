package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pillarlens/pkg/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "print the pillarlens build version",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(version.Full())
		return nil
	},
}
