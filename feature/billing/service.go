package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"msp-console/core/lock"
	"msp-console/core/psa"
	"msp-console/core/vendor"
	"msp-console/feature/billing/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// reconcileLeaseTTL bounds how long a crashed run can block a company.
const reconcileLeaseTTL = 5 * time.Minute

// leaser is the slice of core/lock the service depends on.
type leaser interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (*lock.Lease, error)
}

// Service is the operator-facing surface of the billing subsystem. It
// serializes reconciliation per company with a redis lease and exposes item
// review, write-back, and activity queries.
type Service struct {
	db          *gorm.DB
	engine      *Engine
	coordinator *WriteBackCoordinator
	aggregator  *vendor.Aggregator
	recorder    *ActivityRecorder
	locker      leaser
	logger      *zap.Logger
}

// NewService wires the billing subsystem over its collaborators.
func NewService(db *gorm.DB, psaClient psa.Client, registry *vendor.Registry, locker *lock.Locker, logger *zap.Logger) *Service {
	aggregator := vendor.NewAggregator(registry, logger)
	return &Service{
		db:          db,
		engine:      NewEngine(db, psaClient, aggregator, logger),
		coordinator: NewWriteBackCoordinator(db, psaClient, registry, logger),
		aggregator:  aggregator,
		recorder:    NewActivityRecorder(db),
		locker:      locker,
		logger:      logger,
	}
}

// Reconcile runs one reconciliation pass for a company. Concurrent runs for
// the same company are rejected with ErrRunInProgress.
func (s *Service) Reconcile(ctx context.Context, companyID, actorID string) (*Result, error) {
	lease, err := s.locker.Acquire(ctx, leaseKey(companyID), reconcileLeaseTTL)
	if errors.Is(err, lock.ErrBusy) {
		return nil, ErrRunInProgress
	}
	if err != nil {
		return nil, err
	}
	defer s.releaseLease(ctx, lease, companyID)

	return s.engine.Reconcile(ctx, companyID, actorID)
}

func (s *Service) releaseLease(ctx context.Context, lease *lock.Lease, companyID string) {
	if err := lease.Release(ctx); err != nil {
		s.logger.Warn("failed to release company lease",
			zap.String("company_id", companyID), zap.Error(err))
	}
}

// CompanyResult summarizes one company's slice of a batch reconciliation.
type CompanyResult struct {
	CompanyID     string `json:"company_id"`
	CompanyName   string `json:"company_name"`
	SnapshotID    string `json:"snapshot_id,omitempty"`
	TotalItems    int    `json:"total_items"`
	Discrepancies int    `json:"discrepancies"`
	Err           string `json:"error,omitempty"`
}

// ReconcileAll reconciles every company with at least one active vendor
// integration. Vendor data is aggregated once in bulk and partitioned per
// company, so the pass costs one fetch per vendor rather than one per
// company. A failed company is reported in its result and never stops the
// batch.
func (s *Service) ReconcileAll(ctx context.Context, actorID string) ([]CompanyResult, error) {
	bindingsByCompany, err := s.loadActiveBindings(ctx)
	if err != nil {
		return nil, err
	}
	if len(bindingsByCompany) == 0 {
		return []CompanyResult{}, nil
	}

	companyIDs := make([]string, 0, len(bindingsByCompany))
	for companyID := range bindingsByCompany {
		companyIDs = append(companyIDs, companyID)
	}

	var companies []models.Company
	err = s.db.WithContext(ctx).
		Where("id IN ?", companyIDs).
		Order("name").
		Find(&companies).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load companies: %w", err)
	}

	bulk := s.aggregator.All(ctx, nil)

	results := make([]CompanyResult, 0, len(companies))
	for _, company := range companies {
		bindings := bindingsByCompany[company.ID]
		report := reportFor(bulk, bindings)

		result := CompanyResult{CompanyID: company.ID, CompanyName: company.Name}
		runResult, err := s.runLocked(ctx, company, report, actorID)
		if err != nil {
			s.logger.Warn("company reconciliation failed",
				zap.String("company_id", company.ID), zap.Error(err))
			result.Err = err.Error()
		} else {
			result.SnapshotID = runResult.SnapshotID
			result.TotalItems = runResult.TotalItems
			result.Discrepancies = runResult.Discrepancies
		}
		results = append(results, result)
	}

	return results, nil
}

func (s *Service) runLocked(ctx context.Context, company models.Company, report vendor.Report, actorID string) (*Result, error) {
	lease, err := s.locker.Acquire(ctx, leaseKey(company.ID), reconcileLeaseTTL)
	if errors.Is(err, lock.ErrBusy) {
		return nil, ErrRunInProgress
	}
	if err != nil {
		return nil, err
	}
	defer s.releaseLease(ctx, lease, company.ID)

	return s.engine.Run(ctx, &company, report, actorID)
}

// ApproveItem marks a pending item approved and records the review.
func (s *Service) ApproveItem(ctx context.Context, itemID, actorID string) error {
	return s.reviewItem(ctx, itemID, actorID, models.ItemApproved, models.ActionApproved, "discrepancy approved by operator")
}

// DismissItem marks a pending item dismissed and records the review.
func (s *Service) DismissItem(ctx context.Context, itemID, actorID string) error {
	return s.reviewItem(ctx, itemID, actorID, models.ItemDismissed, models.ActionDismissed, "discrepancy dismissed by operator")
}

// reviewItem applies an operator decision. Only pending items can be
// reviewed; approved, dismissed, and adjusted are terminal.
func (s *Service) reviewItem(ctx context.Context, itemID, actorID, status, action, result string) error {
	var item models.ReconciliationItem
	err := s.db.WithContext(ctx).First(&item, "id = ?", itemID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrItemNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load item %s: %w", itemID, err)
	}

	if item.Status != models.ItemPending {
		return ErrInvalidTransition
	}

	if err := s.db.WithContext(ctx).Model(&item).Update("status", status).Error; err != nil {
		return fmt.Errorf("failed to update item %s: %w", itemID, err)
	}

	entry := models.BillingActivityEntry{
		CompanyID:   item.CompanyID,
		ProductName: item.VendorProductName,
		VendorID:    item.VendorID,
		PsaQty:      item.PsaQty,
		VendorQty:   item.VendorQty,
		Change:      item.Discrepancy,
		Action:      action,
		Result:      result,
		ActorID:     actorRef(actorID),
		SnapshotID:  item.SnapshotID,
		ItemID:      item.ID,
	}
	return s.recorder.Record(ctx, entry)
}

// WriteBack pushes one item's live vendor quantity to its PSA line. It holds
// the item's company lease for the duration, so a write-back never mutates
// items or cached lines while a reconciliation for the same company runs.
func (s *Service) WriteBack(ctx context.Context, itemID, actorID string) (*WriteBackOutcome, error) {
	companyID, err := s.itemCompany(ctx, itemID)
	if err != nil {
		return nil, err
	}

	lease, err := s.locker.Acquire(ctx, leaseKey(companyID), reconcileLeaseTTL)
	if errors.Is(err, lock.ErrBusy) {
		return nil, ErrRunInProgress
	}
	if err != nil {
		return nil, err
	}
	defer s.releaseLease(ctx, lease, companyID)

	return s.coordinator.WriteBack(ctx, itemID, actorID)
}

// WriteBackMany pushes a batch of items to the PSA, one outcome per item.
// Each item takes its company's lease in turn; a failed item is reported in
// its outcome and never aborts the remainder of the batch.
func (s *Service) WriteBackMany(ctx context.Context, itemIDs []string, actorID string) []WriteBackOutcome {
	outcomes := make([]WriteBackOutcome, 0, len(itemIDs))
	for _, itemID := range itemIDs {
		outcome, err := s.WriteBack(ctx, itemID, actorID)
		if err != nil {
			s.logger.Warn("write-back failed",
				zap.String("item_id", itemID),
				zap.Error(err),
			)
			outcomes = append(outcomes, WriteBackOutcome{ItemID: itemID, Err: err.Error()})
			continue
		}
		outcomes = append(outcomes, *outcome)
	}
	return outcomes
}

func (s *Service) itemCompany(ctx context.Context, itemID string) (string, error) {
	var item models.ReconciliationItem
	err := s.db.WithContext(ctx).
		Select("company_id").
		First(&item, "id = ?", itemID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrItemNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to load item %s: %w", itemID, err)
	}
	return item.CompanyID, nil
}

// Snapshot loads one snapshot.
func (s *Service) Snapshot(ctx context.Context, snapshotID string) (*models.ReconciliationSnapshot, error) {
	var snapshot models.ReconciliationSnapshot
	err := s.db.WithContext(ctx).First(&snapshot, "id = ?", snapshotID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot %s: %w", snapshotID, err)
	}
	return &snapshot, nil
}

// ItemsForSnapshot returns a snapshot's items, discrepancies first.
func (s *Service) ItemsForSnapshot(ctx context.Context, snapshotID string) ([]models.ReconciliationItem, error) {
	if _, err := s.Snapshot(ctx, snapshotID); err != nil {
		return nil, err
	}

	var items []models.ReconciliationItem
	err := s.db.WithContext(ctx).
		Where("snapshot_id = ?", snapshotID).
		Order("ABS(discrepancy) DESC, vendor_id, vendor_product_key").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load items for snapshot %s: %w", snapshotID, err)
	}
	return items, nil
}

// ActivityForCompany returns a company's billing activity log, newest first.
func (s *Service) ActivityForCompany(ctx context.Context, companyID string, limit int) ([]models.BillingActivityEntry, error) {
	return s.recorder.ForCompany(ctx, companyID, limit)
}

// loadActiveBindings groups every active vendor integration by company.
func (s *Service) loadActiveBindings(ctx context.Context) (map[string][]vendor.Binding, error) {
	var integrations []models.CompanyIntegration
	err := s.db.WithContext(ctx).
		Where("active = ?", true).
		Order("company_id, vendor_id").
		Find(&integrations).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load integrations: %w", err)
	}

	byCompany := make(map[string][]vendor.Binding)
	for _, integration := range integrations {
		byCompany[integration.CompanyID] = append(byCompany[integration.CompanyID], vendor.Binding{
			VendorID:   integration.VendorID,
			ExternalID: integration.ExternalID,
		})
	}
	return byCompany, nil
}

// reportFor carves one company's slice out of a bulk aggregation.
func reportFor(bulk vendor.BulkReport, bindings []vendor.Binding) vendor.Report {
	report := vendor.Report{}
	for _, binding := range bindings {
		for _, count := range bulk.CountsByExternalID[binding.ExternalID] {
			if count.VendorID == binding.VendorID {
				report.Counts = append(report.Counts, count)
			}
		}
		for _, failure := range bulk.Failures {
			if failure.VendorID != binding.VendorID {
				continue
			}
			if failure.CompanyExternalID == "" || failure.CompanyExternalID == binding.ExternalID {
				report.Failures = append(report.Failures, failure)
			}
		}
	}
	return report
}

func leaseKey(companyID string) string {
	return "billing:reconcile:" + companyID
}
