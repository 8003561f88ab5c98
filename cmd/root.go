package cmd

import (
	"fmt"
	"os"

	"msp-console/core/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "msp-console",
	Short: "MSP Billing Console",
	Long: `MSP Console reconciles per-company vendor usage counts against PSA
agreement billing lines, surfaces discrepancies for review, and writes
corrected quantities back to the PSA.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		// Console format with "debug" level gives ISO8601 timestamps, which
		// reads better for a CLI than the prod epoch encoding.
		cfg := &logger.Config{
			Level:  "debug",
			Format: "console",
		}

		l, logErr := logger.New(cfg)
		if logErr == nil {
			l.Error("command failed", zap.Error(err))
			_ = l.Sync()
		} else {
			fmt.Println(err)
		}
		os.Exit(1)
	}
}
