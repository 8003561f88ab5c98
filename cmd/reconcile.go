package cmd

import (
	"context"
	"errors"
	"fmt"

	"msp-console/core/config"
	"msp-console/core/database"
	"msp-console/core/lock"
	"msp-console/core/logger"
	"msp-console/core/psa"
	"msp-console/feature/billing"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	reconcileCompanyID string
	reconcileAllFlag   bool
	reconcileActor     string
)

// reconcileCmd runs reconciliation from the command line.
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile vendor usage counts against PSA billing lines",
	Long: `Reconcile compares live vendor usage against each company's PSA
agreement lines and records a snapshot of discrepancy items for review.

Examples:
  # Reconcile one company
  reconcile --company 4f9c...

  # Reconcile every company with active integrations
  reconcile --all

  # Attribute the run to an operator
  reconcile --company 4f9c... --actor jane@example.com`,
	RunE: runReconcile,
}

func init() {
	reconcileCmd.Flags().StringVar(&reconcileCompanyID, "company", "", "Company ID to reconcile")
	reconcileCmd.Flags().BoolVar(&reconcileAllFlag, "all", false, "Reconcile every company with active integrations")
	reconcileCmd.Flags().StringVar(&reconcileActor, "actor", "", "Operator to attribute the run to")

	RootCmd.AddCommand(reconcileCmd)
}

func runReconcile(cmd *cobra.Command, args []string) error {
	if !reconcileAllFlag && reconcileCompanyID == "" {
		return errors.New("either --company or --all is required")
	}

	ctx := context.Background()
	svc, l, err := bootstrapService()
	if err != nil {
		return err
	}
	defer l.Sync()

	if reconcileAllFlag {
		results, err := svc.ReconcileAll(ctx, reconcileActor)
		if err != nil {
			return err
		}

		fmt.Printf("Reconciled %d companies:\n", len(results))
		for _, result := range results {
			if result.Err != "" {
				fmt.Printf("  %-30s FAILED: %s\n", result.CompanyName, result.Err)
				continue
			}
			fmt.Printf("  %-30s %d items, %d discrepancies (snapshot %s)\n",
				result.CompanyName, result.TotalItems, result.Discrepancies, result.SnapshotID)
		}
		return nil
	}

	result, err := svc.Reconcile(ctx, reconcileCompanyID, reconcileActor)
	if err != nil {
		return err
	}

	fmt.Printf("Snapshot %s: %d items, %d discrepancies, revenue impact %s\n",
		result.SnapshotID, result.TotalItems, result.Discrepancies, result.TotalRevenueImpact.StringFixed(2))
	for _, failure := range result.SourceFailures {
		fmt.Printf("  vendor %s unavailable: %s\n", failure.VendorID, failure.Err)
	}
	return nil
}

// bootstrapService wires a billing service for CLI commands.
func bootstrapService() (*billing.Service, *zap.Logger, error) {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	l, err := logger.New(&cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	db, err := database.Connect(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	psaClient, err := psa.NewClient(cfg.Psa)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create PSA client: %w", err)
	}

	locker, err := lock.New(cfg.Lock)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create lock service: %w", err)
	}

	registry := billing.NewSourceRegistry(db)
	return billing.NewService(db, psaClient, registry, locker, l), l, nil
}
