package billing

import (
	"context"
	"fmt"

	"msp-console/feature/billing/models"

	"gorm.io/gorm"
)

// MappingResolver resolves a (vendorID, productKey) pair to the PSA products
// it bills against.
type MappingResolver struct {
	db *gorm.DB
}

// NewMappingResolver creates a resolver over the mapping table.
func NewMappingResolver(db *gorm.DB) *MappingResolver {
	return &MappingResolver{db: db}
}

// Resolve returns the active mappings applicable to a vendor product key.
// An exact key match wins; only when no exact mapping exists do the vendor's
// wildcard mappings apply. Mappings without a PSA product name are unusable
// and skipped. Several mappings may apply at once: a single vendor count can
// legitimately roll up into more than one PSA product line, and the engine
// processes each independently.
func (r *MappingResolver) Resolve(ctx context.Context, vendorID, productKey string) ([]models.ProductMapping, error) {
	var exact []models.ProductMapping
	err := r.db.WithContext(ctx).
		Where("vendor_id = ? AND vendor_product_key = ? AND is_active = ? AND psa_product_name IS NOT NULL",
			vendorID, productKey, true).
		Order("created_at").
		Find(&exact).Error
	if err != nil {
		return nil, fmt.Errorf("failed to resolve mappings for %s/%s: %w", vendorID, productKey, err)
	}
	if len(exact) > 0 {
		return exact, nil
	}

	var wildcard []models.ProductMapping
	err = r.db.WithContext(ctx).
		Where("vendor_id = ? AND vendor_product_key IN ? AND is_active = ? AND psa_product_name IS NOT NULL",
			vendorID, models.WildcardKeys, true).
		Order("created_at").
		Find(&wildcard).Error
	if err != nil {
		return nil, fmt.Errorf("failed to resolve wildcard mappings for %s: %w", vendorID, err)
	}

	return wildcard, nil
}
