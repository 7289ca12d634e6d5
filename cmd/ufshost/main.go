// The ufshost command runs a host controller against a simulated device:
// it drives an I/O workload, optionally injects faults, and serves the
// controller state for live inspection.
package main

import (
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

var rootCmd = &cobra.Command{
	Use:   "ufshost",
	Short: "ufshost drives a block-storage host controller engine.",
	Long: `ufshost drives a block-storage host controller engine against a ` +
		`simulated device. It exercises command dispatch, clock gating and ` +
		`scaling, link power management, and error recovery, and can record ` +
		`every controller event into a SQLite database.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		atexit.Exit(1)
	}
	atexit.Exit(0)
}

func init() {
	rootCmd.AddCommand(runCmd)
}
