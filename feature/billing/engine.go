package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"msp-console/core/psa"
	"msp-console/core/vendor"
	"msp-console/feature/billing/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Engine runs one reconciliation pass for a company: it compares live vendor
// usage against the company's current PSA billing lines, persists a snapshot
// of items, and records one activity entry per item.
type Engine struct {
	db         *gorm.DB
	psa        psa.Client
	aggregator *vendor.Aggregator
	resolver   *MappingResolver
	recorder   *ActivityRecorder
	logger     *zap.Logger
}

// NewEngine creates an engine over the record store, the PSA collaborator,
// and the vendor aggregator.
func NewEngine(db *gorm.DB, psaClient psa.Client, aggregator *vendor.Aggregator, logger *zap.Logger) *Engine {
	return &Engine{
		db:         db,
		psa:        psaClient,
		aggregator: aggregator,
		resolver:   NewMappingResolver(db),
		recorder:   NewActivityRecorder(db),
		logger:     logger,
	}
}

// Result summarizes one reconciliation run.
type Result struct {
	SnapshotID         string                 `json:"snapshot_id"`
	TotalItems         int                    `json:"total_items"`
	Discrepancies      int                    `json:"discrepancies"`
	TotalRevenueImpact decimal.Decimal        `json:"total_revenue_impact"`
	SourceFailures     []vendor.SourceFailure `json:"source_failures,omitempty"`
}

// Reconcile compares live vendor usage against PSA billing for one company.
func (e *Engine) Reconcile(ctx context.Context, companyID, actorID string) (*Result, error) {
	company, err := e.loadCompany(ctx, companyID)
	if err != nil {
		return nil, err
	}

	bindings, err := e.loadBindings(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if len(bindings) == 0 {
		return nil, ErrNoIntegrations
	}

	report := e.aggregator.ForCompany(ctx, bindings)
	return e.Run(ctx, company, report, actorID)
}

// Run executes a reconciliation pass against an already-aggregated report.
// Batch reconciliation uses this to reuse one bulk aggregation pass across
// companies.
func (e *Engine) Run(ctx context.Context, company *models.Company, report vendor.Report, actorID string) (*Result, error) {
	snapshot := models.ReconciliationSnapshot{
		ID:          uuid.NewString(),
		CompanyID:   company.ID,
		TriggeredBy: actorID,
		Status:      models.SnapshotInProgress,
		CreatedAt:   time.Now(),
	}
	if err := e.db.WithContext(ctx).Create(&snapshot).Error; err != nil {
		return nil, fmt.Errorf("failed to create snapshot: %w", err)
	}

	lines, err := e.listBillableLines(ctx, company)
	if err != nil {
		e.finishSnapshot(ctx, &snapshot, models.SnapshotFailed, runSummary{})
		return nil, err
	}

	summary, err := e.generateItems(ctx, &snapshot, company, lines, report.Counts, actorID)
	if err != nil {
		// A failure partway through the item loop must not leave the snapshot
		// stuck in_progress: mark it failed and keep the partial summary so
		// the operator can see how far the run got.
		e.finishSnapshot(ctx, &snapshot, models.SnapshotFailed, summary)
		return nil, fmt.Errorf("reconciliation for company %s failed: %w", company.ID, err)
	}

	e.finishSnapshot(ctx, &snapshot, models.SnapshotCompleted, summary)

	e.logger.Info("reconciliation completed",
		zap.String("company_id", company.ID),
		zap.String("snapshot_id", snapshot.ID),
		zap.Int("total_items", summary.totalItems),
		zap.Int("discrepancies", summary.discrepancies),
		zap.Int("vendor_failures", len(report.Failures)),
	)

	return &Result{
		SnapshotID:         snapshot.ID,
		TotalItems:         summary.totalItems,
		Discrepancies:      summary.discrepancies,
		TotalRevenueImpact: summary.revenueImpact,
		SourceFailures:     report.Failures,
	}, nil
}

// runSummary accumulates the snapshot summary during item generation.
type runSummary struct {
	totalItems    int
	discrepancies int
	matched       int
	revenueImpact decimal.Decimal
}

func (e *Engine) generateItems(
	ctx context.Context,
	snapshot *models.ReconciliationSnapshot,
	company *models.Company,
	lines []psa.BillingLine,
	counts []vendor.Count,
	actorID string,
) (runSummary, error) {
	summary := runSummary{revenueImpact: decimal.Zero}

	for _, count := range counts {
		// The assignment is upserted for every nonzero count regardless of
		// whether a billing mapping exists: the system always knows which
		// vendor products a company actually uses.
		productID, err := e.upsertVendorProduct(ctx, count)
		if err != nil {
			return summary, err
		}
		if err := e.upsertAssignment(ctx, company.ID, productID); err != nil {
			return summary, err
		}

		mappings, err := e.resolver.Resolve(ctx, count.VendorID, count.ProductKey)
		if err != nil {
			return summary, err
		}

		for _, mapping := range mappings {
			item, err := e.createItem(ctx, snapshot, company, count, mapping, lines, actorID)
			if err != nil {
				return summary, err
			}

			summary.totalItems++
			if item.Discrepancy != 0 {
				summary.discrepancies++
			}
			if item.RevenueImpact.Valid {
				summary.matched++
				summary.revenueImpact = summary.revenueImpact.Add(item.RevenueImpact.Decimal)
			}
		}
	}

	return summary, nil
}

// createItem compares one vendor count against the PSA lines matched by one
// mapping, persists the item, and records its activity entry.
func (e *Engine) createItem(
	ctx context.Context,
	snapshot *models.ReconciliationSnapshot,
	company *models.Company,
	count vendor.Count,
	mapping models.ProductMapping,
	lines []psa.BillingLine,
	actorID string,
) (*models.ReconciliationItem, error) {
	matched := matchLines(lines, *mapping.PsaProductName)

	item := models.ReconciliationItem{
		ID:                uuid.NewString(),
		SnapshotID:        snapshot.ID,
		CompanyID:         company.ID,
		VendorID:          count.VendorID,
		VendorProductKey:  count.ProductKey,
		VendorProductName: count.ProductName,
		VendorQty:         count.Count,
		Status:            models.ItemPending,
	}

	action := models.ActionDetected
	result := "no matching PSA billing line"

	if len(matched) > 0 {
		psaQty := 0
		prices := make([]decimal.Decimal, 0, len(matched))
		for _, line := range matched {
			psaQty += line.Quantity
			prices = append(prices, line.UnitPrice)
		}
		// All matched lines are summed and averaged; no single winner.
		avgPrice := decimal.Avg(prices[0], prices[1:]...)

		item.PsaQty = psaQty
		item.Discrepancy = count.Count - psaQty
		item.UnitPrice = decimal.NullDecimal{Decimal: avgPrice, Valid: true}
		item.RevenueImpact = decimal.NullDecimal{
			Decimal: decimal.NewFromInt(int64(item.Discrepancy)).Mul(avgPrice),
			Valid:   true,
		}
		item.LinkedAgreementID = &matched[0].ExternalAgreementID
		item.LinkedLineID = &matched[0].ExternalLineID

		if item.Discrepancy == 0 {
			item.Status = models.ItemApproved
			action = models.ActionAutoApproved
			result = "vendor and PSA quantities match"
		} else {
			result = fmt.Sprintf("discrepancy of %+d %s", item.Discrepancy, mapping.UnitLabel)
		}
	} else {
		item.PsaQty = 0
		item.Discrepancy = count.Count
	}

	if err := e.db.WithContext(ctx).Create(&item).Error; err != nil {
		return nil, fmt.Errorf("failed to create item for %s/%s: %w", count.VendorID, count.ProductKey, err)
	}

	entry := models.BillingActivityEntry{
		CompanyID:   company.ID,
		ProductName: *mapping.PsaProductName,
		VendorID:    count.VendorID,
		PsaQty:      item.PsaQty,
		VendorQty:   item.VendorQty,
		Change:      item.Discrepancy,
		Action:      action,
		Result:      result,
		ActorID:     actorRef(actorID),
		SnapshotID:  snapshot.ID,
		ItemID:      item.ID,
	}
	if err := e.recorder.Record(ctx, entry); err != nil {
		return nil, err
	}

	return &item, nil
}

func (e *Engine) finishSnapshot(ctx context.Context, snapshot *models.ReconciliationSnapshot, status string, summary runSummary) {
	updates := map[string]any{
		"status":               status,
		"total_items":          summary.totalItems,
		"discrepancies":        summary.discrepancies,
		"matched_count":        summary.matched,
		"total_revenue_impact": summary.revenueImpact,
	}
	if err := e.db.WithContext(ctx).Model(snapshot).Updates(updates).Error; err != nil {
		e.logger.Error("failed to finish snapshot",
			zap.String("snapshot_id", snapshot.ID),
			zap.String("status", status),
			zap.Error(err),
		)
	}
}

func (e *Engine) listBillableLines(ctx context.Context, company *models.Company) ([]psa.BillingLine, error) {
	lines, err := e.psa.ListBillingLines(ctx, company.PsaCompanyID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch PSA billing lines for company %s: %w", company.ID, err)
	}

	billable := make([]psa.BillingLine, 0, len(lines))
	for _, line := range lines {
		if line.Billable && !line.Cancelled {
			billable = append(billable, line)
		}
	}
	return billable, nil
}

func (e *Engine) loadCompany(ctx context.Context, companyID string) (*models.Company, error) {
	var company models.Company
	err := e.db.WithContext(ctx).First(&company, "id = ?", companyID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCompanyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load company %s: %w", companyID, err)
	}
	return &company, nil
}

func (e *Engine) loadBindings(ctx context.Context, companyID string) ([]vendor.Binding, error) {
	var integrations []models.CompanyIntegration
	err := e.db.WithContext(ctx).
		Where("company_id = ? AND active = ?", companyID, true).
		Order("vendor_id").
		Find(&integrations).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load integrations for company %s: %w", companyID, err)
	}

	bindings := make([]vendor.Binding, 0, len(integrations))
	for _, integration := range integrations {
		bindings = append(bindings, vendor.Binding{
			VendorID:   integration.VendorID,
			ExternalID: integration.ExternalID,
		})
	}
	return bindings, nil
}

func (e *Engine) upsertVendorProduct(ctx context.Context, count vendor.Count) (string, error) {
	var product models.VendorProduct
	err := e.db.WithContext(ctx).
		Where("vendor_id = ? AND product_key = ?", count.VendorID, count.ProductKey).
		First(&product).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		product = models.VendorProduct{
			ID:          uuid.NewString(),
			VendorID:    count.VendorID,
			ProductKey:  count.ProductKey,
			ProductName: count.ProductName,
			Unit:        count.Unit,
			CreatedAt:   time.Now(),
		}
		if err := e.db.WithContext(ctx).Create(&product).Error; err != nil {
			return "", fmt.Errorf("failed to create vendor product %s/%s: %w", count.VendorID, count.ProductKey, err)
		}
		return product.ID, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load vendor product %s/%s: %w", count.VendorID, count.ProductKey, err)
	}

	return product.ID, nil
}

func (e *Engine) upsertAssignment(ctx context.Context, companyID, vendorProductID string) error {
	assignment := models.CompanyProductAssignment{
		ID:              uuid.NewString(),
		CompanyID:       companyID,
		VendorProductID: vendorProductID,
		CreatedAt:       time.Now(),
	}
	// The unique (company_id, vendor_product_id) index makes this idempotent.
	err := e.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&assignment).Error
	if err != nil {
		return fmt.Errorf("failed to upsert assignment for company %s: %w", companyID, err)
	}
	return nil
}

// matchLines returns the billing lines whose product name contains the mapped
// name as a case-insensitive substring. Mappings store the stable fragment of
// the free-form PSA product name; over-matches surface as extra items for
// operator review rather than being hidden.
func matchLines(lines []psa.BillingLine, productName string) []psa.BillingLine {
	needle := strings.ToLower(productName)

	var matched []psa.BillingLine
	for _, line := range lines {
		if strings.Contains(strings.ToLower(line.ProductName), needle) {
			matched = append(matched, line)
		}
	}
	return matched
}

func actorRef(actorID string) *string {
	if actorID == "" {
		return nil
	}
	return &actorID
}
