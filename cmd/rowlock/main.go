package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/mistakeknot/rowlock/internal/cli"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "rowlock",
		Short: "Conflict-free concurrent row allocation for a shared workbook",
		Long: `rowlock coordinates many uncoordinated agents writing to one shared
in-memory workbook: exclusive row-range reservations, reservation-aware
appends, chunked writes with cooperative cancellation, and a spillover
cache for oversized reads.`,
	}

	rootCmd.AddCommand(cli.StressCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
