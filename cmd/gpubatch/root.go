// The gpubatch command exercises and inspects batch construction from the
// command line.
package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use: "gpubatch",
	Short: "gpubatch CLI tool can run batch-construction demos and inspect " +
		"submission recordings.",
	Long: `gpubatch CLI tool can run batch-construction demos and inspect ` +
		`submission recordings. Currently, it supports running demo ` +
		`submissions in both addressing modes and listing recording tables.`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	// Optional .env holding defaults such as GPUBATCH_MONITOR_PORT.
	_ = godotenv.Load()

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
