package billing

import (
	"context"
	"errors"
	"fmt"

	"msp-console/core/psa"
	"msp-console/core/vendor"
	"msp-console/feature/billing/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// WriteBackCoordinator pushes corrected quantities back to the PSA agreement
// line an item is linked to. The vendor count is re-fetched immediately
// before the update so the PSA receives the current quantity, not the one
// observed when the snapshot ran.
type WriteBackCoordinator struct {
	db       *gorm.DB
	psa      psa.Client
	registry *vendor.Registry
	recorder *ActivityRecorder
	logger   *zap.Logger
}

// NewWriteBackCoordinator creates a coordinator over the record store, the
// PSA collaborator, and the vendor source registry.
func NewWriteBackCoordinator(db *gorm.DB, psaClient psa.Client, registry *vendor.Registry, logger *zap.Logger) *WriteBackCoordinator {
	return &WriteBackCoordinator{
		db:       db,
		psa:      psaClient,
		registry: registry,
		recorder: NewActivityRecorder(db),
		logger:   logger,
	}
}

// WriteBackOutcome reports the result of one item's write-back attempt.
type WriteBackOutcome struct {
	ItemID string `json:"item_id"`
	OldQty int    `json:"old_qty"`
	NewQty int    `json:"new_qty"`
	Err    string `json:"error,omitempty"`
}

// WriteBack pushes the live vendor quantity for one item to its linked PSA
// agreement line and marks the item adjusted. Items without both a linked
// agreement ID and line ID are rejected with ErrMissingPsaLink.
func (c *WriteBackCoordinator) WriteBack(ctx context.Context, itemID, actorID string) (*WriteBackOutcome, error) {
	var item models.ReconciliationItem
	err := c.db.WithContext(ctx).First(&item, "id = ?", itemID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load item %s: %w", itemID, err)
	}

	if item.LinkedAgreementID == nil || item.LinkedLineID == nil {
		return nil, ErrMissingPsaLink
	}

	liveQty, err := c.fetchLiveQuantity(ctx, &item)
	if err != nil {
		return nil, err
	}

	oldQty := item.PsaQty
	if err := c.psa.UpdateLineQuantity(ctx, *item.LinkedAgreementID, *item.LinkedLineID, liveQty); err != nil {
		return nil, fmt.Errorf("failed to update PSA line %s: %w", *item.LinkedLineID, err)
	}

	// The PSA update succeeded; local state follows it even if these writes
	// surface errors to the caller.
	if err := c.markAdjusted(ctx, &item, liveQty); err != nil {
		return nil, err
	}

	entry := models.BillingActivityEntry{
		CompanyID:   item.CompanyID,
		ProductName: item.VendorProductName,
		VendorID:    item.VendorID,
		PsaQty:      liveQty,
		VendorQty:   liveQty,
		Change:      liveQty - oldQty,
		Action:      models.ActionSyncedToPsa,
		Result:      fmt.Sprintf("PSA quantity updated from %d to %d", oldQty, liveQty),
		ActorID:     actorRef(actorID),
		SnapshotID:  item.SnapshotID,
		ItemID:      item.ID,
	}
	if err := c.recorder.Record(ctx, entry); err != nil {
		return nil, err
	}

	c.logger.Info("wrote quantity back to PSA",
		zap.String("item_id", item.ID),
		zap.String("company_id", item.CompanyID),
		zap.Int("old_qty", oldQty),
		zap.Int("new_qty", liveQty),
	)

	return &WriteBackOutcome{ItemID: item.ID, OldQty: oldQty, NewQty: liveQty}, nil
}

// fetchLiveQuantity re-fetches the item's vendor count through its company
// integration so stale snapshot data is never written to the PSA.
func (c *WriteBackCoordinator) fetchLiveQuantity(ctx context.Context, item *models.ReconciliationItem) (int, error) {
	var integration models.CompanyIntegration
	err := c.db.WithContext(ctx).
		Where("company_id = ? AND vendor_id = ? AND active = ?", item.CompanyID, item.VendorID, true).
		First(&integration).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrNoIntegration
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load integration for company %s vendor %s: %w", item.CompanyID, item.VendorID, err)
	}

	source, ok := c.registry.Lookup(item.VendorID)
	if !ok {
		return 0, fmt.Errorf("no source registered for vendor %s", item.VendorID)
	}

	counts, err := source.FetchForCompany(ctx, integration.ExternalID)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch live counts from vendor %s: %w", item.VendorID, err)
	}

	// A product absent from the live feed means its usage dropped to zero.
	for _, count := range counts {
		if count.ProductKey == item.VendorProductKey {
			return count.Count, nil
		}
	}
	return 0, nil
}

func (c *WriteBackCoordinator) markAdjusted(ctx context.Context, item *models.ReconciliationItem, liveQty int) error {
	updates := map[string]any{
		"status":         models.ItemAdjusted,
		"psa_qty":        liveQty,
		"vendor_qty":     liveQty,
		"discrepancy":    0,
		"revenue_impact": decimal.Zero,
	}
	if err := c.db.WithContext(ctx).Model(item).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to mark item %s adjusted: %w", item.ID, err)
	}

	err := c.db.WithContext(ctx).
		Model(&models.CachedBillingLine{}).
		Where("company_id = ? AND external_line_id = ?", item.CompanyID, *item.LinkedLineID).
		Update("quantity", liveQty).Error
	if err != nil {
		return fmt.Errorf("failed to refresh cached line %s: %w", *item.LinkedLineID, err)
	}

	item.Status = models.ItemAdjusted
	item.PsaQty = liveQty
	item.VendorQty = liveQty
	item.Discrepancy = 0
	return nil
}
