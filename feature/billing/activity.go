package billing

import (
	"context"
	"fmt"
	"time"

	"msp-console/feature/billing/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ActivityRecorder appends immutable audit entries. It deliberately exposes
// no update or delete API: every item creation and status transition writes
// exactly one entry, and history is reconstructed from entries alone.
type ActivityRecorder struct {
	db *gorm.DB
}

// NewActivityRecorder creates a recorder over the activity table.
func NewActivityRecorder(db *gorm.DB) *ActivityRecorder {
	return &ActivityRecorder{db: db}
}

// Record appends one entry. The ID and timestamp are assigned here so callers
// only describe what happened.
func (r *ActivityRecorder) Record(ctx context.Context, entry models.BillingActivityEntry) error {
	entry.ID = uuid.NewString()
	entry.CreatedAt = time.Now()

	if err := r.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("failed to record activity entry: %w", err)
	}
	return nil
}

// ForCompany returns a company's activity history, most recent first.
func (r *ActivityRecorder) ForCompany(ctx context.Context, companyID string, limit int) ([]models.BillingActivityEntry, error) {
	if limit <= 0 {
		limit = 200
	}

	var entries []models.BillingActivityEntry
	err := r.db.WithContext(ctx).
		Where("company_id = ?", companyID).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load activity for company %s: %w", companyID, err)
	}
	return entries, nil
}
