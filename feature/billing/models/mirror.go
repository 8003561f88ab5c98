package models

import "time"

// Mirror tables for normalized vendor inventory. The per-vendor sync workers
// (outside this subsystem) keep these refreshed; the count sources only read.

// VendorDevice is one monitored device from a device-management vendor.
type VendorDevice struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	VendorID          string    `gorm:"size:64;index:idx_device_vendor_company" json:"vendor_id"`
	CompanyExternalID string    `gorm:"size:128;index:idx_device_vendor_company" json:"company_external_id"`
	DeviceID          string    `gorm:"size:128" json:"device_id"`
	Hostname          string    `gorm:"size:255" json:"hostname"`
	PlatformClass     string    `gorm:"size:64" json:"platform_class"`
	OSFamily          string    `gorm:"size:64" json:"os_family"`
	SyncedAt          time.Time `json:"synced_at"`
}

// VendorBackupJob is one device appearing in a vendor's backup-job list.
type VendorBackupJob struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	VendorID string    `gorm:"size:64;index" json:"vendor_id"`
	DeviceID string    `gorm:"size:128" json:"device_id"`
	JobName  string    `gorm:"size:255" json:"job_name"`
	SyncedAt time.Time `json:"synced_at"`
}

// VendorAgent is one endpoint-security agent.
type VendorAgent struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	VendorID          string    `gorm:"size:64;index:idx_agent_vendor_company" json:"vendor_id"`
	CompanyExternalID string    `gorm:"size:128;index:idx_agent_vendor_company" json:"company_external_id"`
	AgentID           string    `gorm:"size:128" json:"agent_id"`
	Status            string    `gorm:"size:32" json:"status"`
	SyncedAt          time.Time `json:"synced_at"`
}

// VendorTenantRecord is one mail/identity tenant.
type VendorTenantRecord struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	VendorID          string    `gorm:"size:64;index:idx_tenant_vendor_company" json:"vendor_id"`
	CompanyExternalID string    `gorm:"size:128;index:idx_tenant_vendor_company" json:"company_external_id"`
	TenantID          string    `gorm:"size:128" json:"tenant_id"`
	Name              string    `gorm:"size:255" json:"name"`
	TenantType        string    `gorm:"size:64" json:"tenant_type"`
	SyncedAt          time.Time `json:"synced_at"`
}

// VendorTenantLicense is one licensed SKU within a tenant.
type VendorTenantLicense struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	VendorID          string    `gorm:"size:64;index:idx_license_vendor_company" json:"vendor_id"`
	CompanyExternalID string    `gorm:"size:128;index:idx_license_vendor_company" json:"company_external_id"`
	TenantID          string    `gorm:"size:128" json:"tenant_id"`
	SKU               string    `gorm:"size:128" json:"sku"`
	ProductName       string    `gorm:"size:255" json:"product_name"`
	Seats             int       `json:"seats"`
	SyncedAt          time.Time `json:"synced_at"`
}
