package main

import (
	"fmt"

	"facegate/internal/version"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("facegate %s\n", version.Version)
		fmt.Printf("  Commit: %s\n", version.CommitSHA)
		fmt.Printf("  Built:  %s\n", version.BuildDate)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
