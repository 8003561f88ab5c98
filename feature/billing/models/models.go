package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot lifecycle states.
const (
	SnapshotInProgress = "in_progress"
	SnapshotCompleted  = "completed"
	SnapshotFailed     = "failed"
)

// Item lifecycle states.
const (
	ItemPending   = "pending"
	ItemApproved  = "approved"
	ItemDismissed = "dismissed"
	ItemAdjusted  = "adjusted"
)

// Activity actions.
const (
	ActionDetected     = "detected"
	ActionAutoApproved = "auto_approved"
	ActionApproved     = "approved"
	ActionDismissed    = "dismissed"
	ActionSyncedToPsa  = "synced_to_psa"
)

// Wildcard sentinels for ProductMapping.VendorProductKey, meaning "any
// unmapped key for this vendor".
var WildcardKeys = []string{"*", "all_devices", "all_agents"}

// Company is an MSP client.
type Company struct {
	ID   string `gorm:"type:char(36);primaryKey" json:"id"`
	Name string `gorm:"size:255" json:"name"`
	// PsaCompanyID is the company's identifier in the PSA.
	PsaCompanyID string    `gorm:"size:64;index" json:"psa_company_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// CompanyIntegration links a company to its external identifier in one
// vendor's platform. A company has at most one integration per vendor.
type CompanyIntegration struct {
	ID         string `gorm:"type:char(36);primaryKey" json:"id"`
	CompanyID  string `gorm:"type:char(36);uniqueIndex:idx_company_vendor" json:"company_id"`
	VendorID   string `gorm:"size:64;uniqueIndex:idx_company_vendor" json:"vendor_id"`
	ExternalID string `gorm:"size:128" json:"external_id"`
	Active     bool   `json:"active"`
}

// VendorProduct is one catalog row per (vendor, product key) the system has
// ever observed. Upserted idempotently during reconciliation.
type VendorProduct struct {
	ID          string    `gorm:"type:char(36);primaryKey" json:"id"`
	VendorID    string    `gorm:"size:64;uniqueIndex:idx_vendor_product_key" json:"vendor_id"`
	ProductKey  string    `gorm:"size:128;uniqueIndex:idx_vendor_product_key" json:"product_key"`
	ProductName string    `gorm:"size:255" json:"product_name"`
	Unit        string    `gorm:"size:32" json:"unit"`
	CreatedAt   time.Time `json:"created_at"`
}

// ProductMapping maps a vendor product key to a PSA product name.
// VendorProductKey may be an exact key or one of the wildcard sentinels.
// A mapping with a null PsaProductName is never usable. Mutated only by an
// operator; several active mappings may share the same key when one vendor
// count rolls up into more than one PSA product line.
type ProductMapping struct {
	ID               string    `gorm:"type:char(36);primaryKey" json:"id"`
	VendorID         string    `gorm:"size:64;index:idx_mapping_vendor" json:"vendor_id"`
	VendorProductKey string    `gorm:"size:128;index:idx_mapping_vendor" json:"vendor_product_key"`
	PsaProductName   *string   `gorm:"size:255" json:"psa_product_name"`
	CountMethod      string    `gorm:"size:64" json:"count_method"`
	UnitLabel        string    `gorm:"size:32" json:"unit_label"`
	IsActive         bool      `json:"is_active"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// IsWildcard reports whether the mapping uses a wildcard sentinel key.
func (m ProductMapping) IsWildcard() bool {
	for _, k := range WildcardKeys {
		if m.VendorProductKey == k {
			return true
		}
	}
	return false
}

// CachedBillingLine is the local mirror of one PSA billing line. It is
// refreshed by the PSA agreement sync and updated in place after write-back.
type CachedBillingLine struct {
	ID                  string          `gorm:"type:char(36);primaryKey" json:"id"`
	CompanyID           string          `gorm:"type:char(36);index" json:"company_id"`
	AgreementID         string          `gorm:"size:64" json:"agreement_id"`
	ExternalAgreementID string          `gorm:"size:64" json:"external_agreement_id"`
	ExternalLineID      string          `gorm:"size:64;index" json:"external_line_id"`
	ProductName         string          `gorm:"size:255" json:"product_name"`
	Quantity            int             `json:"quantity"`
	UnitPrice           decimal.Decimal `gorm:"type:decimal(12,2)" json:"unit_price"`
	UnitCost            decimal.Decimal `gorm:"type:decimal(12,2)" json:"unit_cost"`
	Billable            bool            `json:"billable"`
	Cancelled           bool            `json:"cancelled"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// ReconciliationSnapshot is one point-in-time reconciliation run.
// Immutable once completed except for summary fields.
type ReconciliationSnapshot struct {
	ID          string    `gorm:"type:char(36);primaryKey" json:"id"`
	CompanyID   string    `gorm:"type:char(36);index" json:"company_id"`
	TriggeredBy string    `gorm:"size:64" json:"triggered_by"`
	Status      string    `gorm:"size:16" json:"status"`
	CreatedAt   time.Time `json:"created_at"`

	// Summary fields, written when the run finishes.
	TotalItems         int             `json:"total_items"`
	Discrepancies      int             `json:"discrepancies"`
	MatchedCount       int             `json:"matched_count"`
	TotalRevenueImpact decimal.Decimal `gorm:"type:decimal(14,2)" json:"total_revenue_impact"`
}

// ReconciliationItem is one compared product within a snapshot. Items are
// created only inside a snapshot, never standalone.
//
// Invariants: Discrepancy == VendorQty - PsaQty. RevenueImpact is
// Discrepancy * average unit price of the matched lines, and null when no
// PSA line matched.
type ReconciliationItem struct {
	ID                string `gorm:"type:char(36);primaryKey" json:"id"`
	SnapshotID        string `gorm:"type:char(36);index" json:"snapshot_id"`
	CompanyID         string `gorm:"type:char(36);index" json:"company_id"`
	VendorID          string `gorm:"size:64" json:"vendor_id"`
	VendorProductKey  string `gorm:"size:128" json:"vendor_product_key"`
	VendorProductName string `gorm:"size:255" json:"vendor_product_name"`

	PsaQty        int                 `json:"psa_qty"`
	VendorQty     int                 `json:"vendor_qty"`
	Discrepancy   int                 `json:"discrepancy"`
	UnitPrice     decimal.NullDecimal `gorm:"type:decimal(12,2)" json:"unit_price"`
	RevenueImpact decimal.NullDecimal `gorm:"type:decimal(14,2)" json:"revenue_impact"`

	Status            string    `gorm:"size:16" json:"status"`
	LinkedAgreementID *string   `gorm:"size:64" json:"linked_agreement_id"`
	LinkedLineID      *string   `gorm:"size:64" json:"linked_line_id"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// BillingActivityEntry is one append-only audit record. Entries are never
// updated or deleted once written, and carry enough context to reconstruct a
// billing-change history without consulting any other table.
type BillingActivityEntry struct {
	ID          string    `gorm:"type:char(36);primaryKey" json:"id"`
	CompanyID   string    `gorm:"type:char(36);index" json:"company_id"`
	ProductName string    `gorm:"size:255" json:"product_name"`
	VendorID    string    `gorm:"size:64" json:"vendor_id"`
	PsaQty      int       `json:"psa_qty"`
	VendorQty   int       `json:"vendor_qty"`
	Change      int       `json:"change"`
	Action      string    `gorm:"size:32" json:"action"`
	Result      string    `gorm:"size:255" json:"result"`
	ActorID     *string   `gorm:"size:64" json:"actor_id"`
	SnapshotID  string    `gorm:"type:char(36);index" json:"snapshot_id"`
	ItemID      string    `gorm:"type:char(36)" json:"item_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// CompanyProductAssignment records that a company actually uses a vendor
// product. Auto-created the first time a nonzero count is observed; the
// unique index guarantees at most one row per pair regardless of run count.
type CompanyProductAssignment struct {
	ID              string    `gorm:"type:char(36);primaryKey" json:"id"`
	CompanyID       string    `gorm:"type:char(36);uniqueIndex:idx_company_product" json:"company_id"`
	VendorProductID string    `gorm:"type:char(36);uniqueIndex:idx_company_product" json:"vendor_product_id"`
	CreatedAt       time.Time `json:"created_at"`
}
