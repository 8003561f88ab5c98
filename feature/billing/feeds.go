package billing

import (
	"context"
	"fmt"

	"msp-console/core/vendor"
	"msp-console/feature/billing/models"

	"gorm.io/gorm"
)

// Vendor identifiers for the built-in integrations.
const (
	VendorRMM  = "rmm"
	VendorEDR  = "edr"
	VendorM365 = "m365"
)

// NewSourceRegistry builds the vendor source registry over the normalized
// inventory mirrors. Adding a vendor means registering one more source here;
// the aggregator and engine stay untouched.
func NewSourceRegistry(db *gorm.DB) *vendor.Registry {
	registry := vendor.NewRegistry()
	registry.Register(vendor.NewDeviceSource(VendorRMM, &deviceFeed{db: db, vendorID: VendorRMM}))
	registry.Register(vendor.NewAgentSource(VendorEDR, &agentFeed{db: db, vendorID: VendorEDR}))
	registry.Register(vendor.NewTenantSource(VendorM365, &tenantFeed{db: db, vendorID: VendorM365}))
	return registry
}

// deviceFeed reads the device mirror tables for one vendor.
type deviceFeed struct {
	db       *gorm.DB
	vendorID string
}

func (f *deviceFeed) DevicesForCompany(ctx context.Context, externalID string) ([]vendor.Device, error) {
	var rows []models.VendorDevice
	err := f.db.WithContext(ctx).
		Where("vendor_id = ? AND company_external_id = ?", f.vendorID, externalID).
		Order("device_id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load devices for %s: %w", externalID, err)
	}

	devices := make([]vendor.Device, 0, len(rows))
	for _, row := range rows {
		devices = append(devices, toDevice(row))
	}
	return devices, nil
}

func (f *deviceFeed) AllDevices(ctx context.Context) (map[string][]vendor.Device, error) {
	var rows []models.VendorDevice
	err := f.db.WithContext(ctx).
		Where("vendor_id = ?", f.vendorID).
		Order("company_external_id, device_id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load device inventory: %w", err)
	}

	out := make(map[string][]vendor.Device)
	for _, row := range rows {
		out[row.CompanyExternalID] = append(out[row.CompanyExternalID], toDevice(row))
	}
	return out, nil
}

func (f *deviceFeed) BackupProtectedDeviceIDs(ctx context.Context) (map[string]struct{}, error) {
	var rows []models.VendorBackupJob
	err := f.db.WithContext(ctx).
		Where("vendor_id = ?", f.vendorID).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load backup jobs: %w", err)
	}

	ids := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		ids[row.DeviceID] = struct{}{}
	}
	return ids, nil
}

func toDevice(row models.VendorDevice) vendor.Device {
	return vendor.Device{
		ID:            row.DeviceID,
		Hostname:      row.Hostname,
		PlatformClass: row.PlatformClass,
		OSFamily:      row.OSFamily,
	}
}

// agentFeed reads the agent mirror table for one vendor.
type agentFeed struct {
	db       *gorm.DB
	vendorID string
}

func (f *agentFeed) AgentsForCompany(ctx context.Context, externalID string) ([]vendor.Agent, error) {
	var rows []models.VendorAgent
	err := f.db.WithContext(ctx).
		Where("vendor_id = ? AND company_external_id = ?", f.vendorID, externalID).
		Order("agent_id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load agents for %s: %w", externalID, err)
	}

	agents := make([]vendor.Agent, 0, len(rows))
	for _, row := range rows {
		agents = append(agents, vendor.Agent{ID: row.AgentID, Status: row.Status})
	}
	return agents, nil
}

func (f *agentFeed) AllAgents(ctx context.Context) (map[string][]vendor.Agent, error) {
	var rows []models.VendorAgent
	err := f.db.WithContext(ctx).
		Where("vendor_id = ?", f.vendorID).
		Order("company_external_id, agent_id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load agent inventory: %w", err)
	}

	out := make(map[string][]vendor.Agent)
	for _, row := range rows {
		out[row.CompanyExternalID] = append(out[row.CompanyExternalID], vendor.Agent{ID: row.AgentID, Status: row.Status})
	}
	return out, nil
}

// tenantFeed reads the tenant and license mirror tables for one vendor.
type tenantFeed struct {
	db       *gorm.DB
	vendorID string
}

func (f *tenantFeed) TenantsForCompany(ctx context.Context, externalID string) ([]vendor.Tenant, error) {
	var rows []models.VendorTenantRecord
	err := f.db.WithContext(ctx).
		Where("vendor_id = ? AND company_external_id = ?", f.vendorID, externalID).
		Order("tenant_id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load tenants for %s: %w", externalID, err)
	}

	tenants := make([]vendor.Tenant, 0, len(rows))
	for _, row := range rows {
		tenants = append(tenants, toTenant(row))
	}
	return tenants, nil
}

func (f *tenantFeed) AllTenants(ctx context.Context) (map[string][]vendor.Tenant, error) {
	var rows []models.VendorTenantRecord
	err := f.db.WithContext(ctx).
		Where("vendor_id = ?", f.vendorID).
		Order("company_external_id, tenant_id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load tenant inventory: %w", err)
	}

	out := make(map[string][]vendor.Tenant)
	for _, row := range rows {
		out[row.CompanyExternalID] = append(out[row.CompanyExternalID], toTenant(row))
	}
	return out, nil
}

func (f *tenantFeed) SeatsForCompany(ctx context.Context, externalID string) ([]vendor.LicenseSeat, error) {
	var rows []models.VendorTenantLicense
	err := f.db.WithContext(ctx).
		Where("vendor_id = ? AND company_external_id = ?", f.vendorID, externalID).
		Order("sku").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load license seats for %s: %w", externalID, err)
	}

	seats := make([]vendor.LicenseSeat, 0, len(rows))
	for _, row := range rows {
		seats = append(seats, toSeat(row))
	}
	return seats, nil
}

func (f *tenantFeed) AllSeats(ctx context.Context) (map[string][]vendor.LicenseSeat, error) {
	var rows []models.VendorTenantLicense
	err := f.db.WithContext(ctx).
		Where("vendor_id = ?", f.vendorID).
		Order("company_external_id, sku").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load license inventory: %w", err)
	}

	out := make(map[string][]vendor.LicenseSeat)
	for _, row := range rows {
		out[row.CompanyExternalID] = append(out[row.CompanyExternalID], toSeat(row))
	}
	return out, nil
}

func toTenant(row models.VendorTenantRecord) vendor.Tenant {
	return vendor.Tenant{ID: row.TenantID, Name: row.Name, TenantType: row.TenantType}
}

func toSeat(row models.VendorTenantLicense) vendor.LicenseSeat {
	return vendor.LicenseSeat{
		TenantID:    row.TenantID,
		SKU:         row.SKU,
		ProductName: row.ProductName,
		Seats:       row.Seats,
	}
}
