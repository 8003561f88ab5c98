package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var writebackActor string

// writebackCmd pushes corrected quantities back to the PSA from the command line.
var writebackCmd = &cobra.Command{
	Use:   "writeback <item-id> [item-id...]",
	Short: "Write corrected quantities for reconciliation items back to the PSA",
	Long: `Writeback re-fetches the live vendor quantity for each item and updates
the linked PSA agreement line to match. Items must be linked to a PSA
agreement and line; unmatched items cannot be written back.

A failed item is reported and never stops the rest of the batch.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runWriteback,
}

func init() {
	writebackCmd.Flags().StringVar(&writebackActor, "actor", "", "Operator to attribute the updates to")

	RootCmd.AddCommand(writebackCmd)
}

func runWriteback(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	svc, l, err := bootstrapService()
	if err != nil {
		return err
	}
	defer l.Sync()

	outcomes := svc.WriteBackMany(ctx, args, writebackActor)

	failed := 0
	for _, outcome := range outcomes {
		if outcome.Err != "" {
			failed++
			fmt.Printf("  %s FAILED: %s\n", outcome.ItemID, outcome.Err)
			continue
		}
		fmt.Printf("  %s updated %d -> %d\n", outcome.ItemID, outcome.OldQty, outcome.NewQty)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d write-backs failed", failed, len(outcomes))
	}
	return nil
}
