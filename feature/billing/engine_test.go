package billing

import (
	"context"
	"fmt"
	"testing"
	"time"

	"msp-console/core/psa"
	"msp-console/core/vendor"
	"msp-console/feature/billing/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to open mock sql db: %v", err)
	}

	dialector := mysql.New(mysql.Config{
		Conn:                      db,
		SkipInitializeWithVersion: true,
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to open gorm db: %v", err)
	}

	return gormDB, mock
}

// fakePsaClient is a scriptable PSA collaborator.
type fakePsaClient struct {
	lines     map[string][]psa.BillingLine
	listErr   error
	updates   map[string]int
	updateErr error
}

func (f *fakePsaClient) ListBillingLines(ctx context.Context, psaCompanyID string) ([]psa.BillingLine, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.lines[psaCompanyID], nil
}

func (f *fakePsaClient) UpdateLineQuantity(ctx context.Context, agreementExternalID, lineExternalID string, quantity int) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	if f.updates == nil {
		f.updates = map[string]int{}
	}
	f.updates[lineExternalID] = quantity
	return nil
}

func newTestEngine(db *gorm.DB, psaClient psa.Client) *Engine {
	agg := vendor.NewAggregator(vendor.NewRegistry(), zap.NewNop())
	return NewEngine(db, psaClient, agg, zap.NewNop())
}

func testCompany() *models.Company {
	return &models.Company{ID: "c1", Name: "Acme", PsaCompanyID: "psa-acme"}
}

func billableLine(lineID, product string, qty int, price string) psa.BillingLine {
	return psa.BillingLine{
		AgreementID:         "agr-1",
		ExternalAgreementID: "ext-agr-1",
		ExternalLineID:      lineID,
		ProductName:         product,
		Quantity:            qty,
		UnitPrice:           decimal.RequireFromString(price),
		Billable:            true,
	}
}

func mappingRows(psaProductName string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "vendor_id", "vendor_product_key", "psa_product_name",
		"count_method", "unit_label", "is_active", "created_at", "updated_at",
	}).AddRow("m1", "rmm", "workstation", psaProductName,
		"device_count", "devices", true, time.Now(), time.Now())
}

func expectSnapshotInsert(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `reconciliation_snapshots`").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
}

func expectSnapshotUpdate(mock sqlmock.Sqlmock, status string) {
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `reconciliation_snapshots`").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), status, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
}

// expectProductUpserts covers the vendor product catalog insert and the
// company assignment insert for one previously unseen count.
func expectProductUpserts(mock sqlmock.Sqlmock) {
	mock.ExpectQuery("SELECT \\* FROM `vendor_products`").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `vendor_products`").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	mock.ExpectBegin()
	// The unique (company_id, vendor_product_id) pair must be inserted with a
	// do-nothing conflict clause so repeated runs keep exactly one row.
	mock.ExpectExec("INSERT INTO `company_product_assignments`.*ON DUPLICATE KEY UPDATE").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
}

// expectKnownProductUpserts covers a count whose vendor product already
// exists in the catalog: no product insert, but the assignment upsert still
// runs.
func expectKnownProductUpserts(mock sqlmock.Sqlmock) {
	mock.ExpectQuery("SELECT \\* FROM `vendor_products`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "vendor_id", "product_key", "product_name", "unit"}).
			AddRow("vp1", "rmm", "workstation", "Workstations", "devices"))
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `company_product_assignments`.*ON DUPLICATE KEY UPDATE").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
}

func expectItemInsert(mock sqlmock.Sqlmock, psaQty, vendorQty, discrepancy int, status string) {
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `reconciliation_items`").
		WithArgs(
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), // id, snapshot, company
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), // vendor, key, name
			psaQty, vendorQty, discrepancy,
			sqlmock.AnyArg(), sqlmock.AnyArg(), // unit price, revenue impact
			status,
			sqlmock.AnyArg(), sqlmock.AnyArg(), // links
			sqlmock.AnyArg(), sqlmock.AnyArg(), // timestamps
		).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
}

func expectActivityInsert(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `billing_activity_entries`").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
}

func workstationReport(qty int) vendor.Report {
	return vendor.Report{Counts: []vendor.Count{{
		VendorID:          "rmm",
		ProductKey:        "workstation",
		ProductName:       "Workstations",
		Count:             qty,
		Unit:              "devices",
		CompanyExternalID: "acme-1",
		ObservedAt:        time.Now(),
	}}}
}

func TestRun_AutoApprovesMatchedQuantities(t *testing.T) {
	db, mock := setupMockDB(t)
	psaClient := &fakePsaClient{lines: map[string][]psa.BillingLine{
		"psa-acme": {billableLine("l1", "Acme RMM Workstation Agent", 50, "12.50")},
	}}
	engine := newTestEngine(db, psaClient)

	expectSnapshotInsert(mock)
	expectProductUpserts(mock)
	mock.ExpectQuery("SELECT \\* FROM `product_mappings`").
		WillReturnRows(mappingRows("RMM Workstation"))
	expectItemInsert(mock, 50, 50, 0, models.ItemApproved)
	expectActivityInsert(mock)
	expectSnapshotUpdate(mock, models.SnapshotCompleted)

	result, err := engine.Run(context.Background(), testCompany(), workstationReport(50), "ops@msp.test")

	assert.NoError(t, err)
	assert.Equal(t, 1, result.TotalItems)
	assert.Equal(t, 0, result.Discrepancies)
	assert.True(t, result.TotalRevenueImpact.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_OverbilledQuantityStaysPending(t *testing.T) {
	db, mock := setupMockDB(t)
	psaClient := &fakePsaClient{lines: map[string][]psa.BillingLine{
		"psa-acme": {billableLine("l1", "Acme RMM Workstation Agent", 50, "10")},
	}}
	engine := newTestEngine(db, psaClient)

	expectSnapshotInsert(mock)
	expectProductUpserts(mock)
	mock.ExpectQuery("SELECT \\* FROM `product_mappings`").
		WillReturnRows(mappingRows("RMM Workstation"))
	// Vendor has 48 but the PSA still bills 50: discrepancy -2, impact -20.
	expectItemInsert(mock, 50, 48, -2, models.ItemPending)
	expectActivityInsert(mock)
	expectSnapshotUpdate(mock, models.SnapshotCompleted)

	result, err := engine.Run(context.Background(), testCompany(), workstationReport(48), "")

	assert.NoError(t, err)
	assert.Equal(t, 1, result.Discrepancies)
	assert.True(t, result.TotalRevenueImpact.Equal(decimal.NewFromInt(-20)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_SumsAndAveragesMultipleMatches(t *testing.T) {
	db, mock := setupMockDB(t)
	psaClient := &fakePsaClient{lines: map[string][]psa.BillingLine{
		"psa-acme": {
			billableLine("l1", "RMM Workstation - Standard", 20, "10"),
			billableLine("l2", "RMM Workstation - Premium", 5, "20"),
		},
	}}
	engine := newTestEngine(db, psaClient)

	expectSnapshotInsert(mock)
	expectProductUpserts(mock)
	mock.ExpectQuery("SELECT \\* FROM `product_mappings`").
		WillReturnRows(mappingRows("RMM Workstation"))
	// 30 vendor vs 25 billed across both lines, at the 15 average price.
	expectItemInsert(mock, 25, 30, 5, models.ItemPending)
	expectActivityInsert(mock)
	expectSnapshotUpdate(mock, models.SnapshotCompleted)

	result, err := engine.Run(context.Background(), testCompany(), workstationReport(30), "")

	assert.NoError(t, err)
	assert.True(t, result.TotalRevenueImpact.Equal(decimal.NewFromInt(75)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_UnmatchedProductHasNoRevenueImpact(t *testing.T) {
	db, mock := setupMockDB(t)
	psaClient := &fakePsaClient{lines: map[string][]psa.BillingLine{
		"psa-acme": {billableLine("l1", "Backup Licensing", 10, "30")},
	}}
	engine := newTestEngine(db, psaClient)

	expectSnapshotInsert(mock)
	expectProductUpserts(mock)
	mock.ExpectQuery("SELECT \\* FROM `product_mappings`").
		WillReturnRows(mappingRows("RMM Workstation"))
	expectItemInsert(mock, 0, 48, 48, models.ItemPending)
	expectActivityInsert(mock)
	expectSnapshotUpdate(mock, models.SnapshotCompleted)

	result, err := engine.Run(context.Background(), testCompany(), workstationReport(48), "")

	assert.NoError(t, err)
	assert.Equal(t, 1, result.TotalItems)
	assert.Equal(t, 1, result.Discrepancies)
	// No matched line, so the item carries no revenue impact.
	assert.True(t, result.TotalRevenueImpact.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_IgnoresNonBillableAndCancelledLines(t *testing.T) {
	cancelled := billableLine("l2", "RMM Workstation - Old", 99, "10")
	cancelled.Cancelled = true
	internal := billableLine("l3", "RMM Workstation - Internal", 7, "10")
	internal.Billable = false

	db, mock := setupMockDB(t)
	psaClient := &fakePsaClient{lines: map[string][]psa.BillingLine{
		"psa-acme": {billableLine("l1", "RMM Workstation", 50, "10"), cancelled, internal},
	}}
	engine := newTestEngine(db, psaClient)

	expectSnapshotInsert(mock)
	expectProductUpserts(mock)
	mock.ExpectQuery("SELECT \\* FROM `product_mappings`").
		WillReturnRows(mappingRows("RMM Workstation"))
	expectItemInsert(mock, 50, 50, 0, models.ItemApproved)
	expectActivityInsert(mock)
	expectSnapshotUpdate(mock, models.SnapshotCompleted)

	_, err := engine.Run(context.Background(), testCompany(), workstationReport(50), "")

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_ZeroVendorCountAgainstBilledLine(t *testing.T) {
	db, mock := setupMockDB(t)
	psaClient := &fakePsaClient{lines: map[string][]psa.BillingLine{
		"psa-acme": {billableLine("l1", "RMM Workstation", 5, "8")},
	}}
	engine := newTestEngine(db, psaClient)

	expectSnapshotInsert(mock)
	expectProductUpserts(mock)
	mock.ExpectQuery("SELECT \\* FROM `product_mappings`").
		WillReturnRows(mappingRows("RMM Workstation"))
	// Usage dropped to zero but the PSA still bills 5 seats at 8 each.
	expectItemInsert(mock, 5, 0, -5, models.ItemPending)
	expectActivityInsert(mock)
	expectSnapshotUpdate(mock, models.SnapshotCompleted)

	result, err := engine.Run(context.Background(), testCompany(), workstationReport(0), "")

	assert.NoError(t, err)
	assert.Equal(t, 1, result.Discrepancies)
	assert.True(t, result.TotalRevenueImpact.Equal(decimal.NewFromInt(-40)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_RepeatRunsProduceIdenticalItems(t *testing.T) {
	db, mock := setupMockDB(t)
	psaClient := &fakePsaClient{lines: map[string][]psa.BillingLine{
		"psa-acme": {billableLine("l1", "RMM Workstation", 50, "10")},
	}}
	engine := newTestEngine(db, psaClient)
	report := workstationReport(48)

	// First run seeds the catalog and writes the item.
	expectSnapshotInsert(mock)
	expectProductUpserts(mock)
	mock.ExpectQuery("SELECT \\* FROM `product_mappings`").
		WillReturnRows(mappingRows("RMM Workstation"))
	expectItemInsert(mock, 50, 48, -2, models.ItemPending)
	expectActivityInsert(mock)
	expectSnapshotUpdate(mock, models.SnapshotCompleted)

	// A second run over unchanged data finds the catalog row, re-upserts the
	// assignment, and writes an item with identical quantities.
	expectSnapshotInsert(mock)
	expectKnownProductUpserts(mock)
	mock.ExpectQuery("SELECT \\* FROM `product_mappings`").
		WillReturnRows(mappingRows("RMM Workstation"))
	expectItemInsert(mock, 50, 48, -2, models.ItemPending)
	expectActivityInsert(mock)
	expectSnapshotUpdate(mock, models.SnapshotCompleted)

	first, err := engine.Run(context.Background(), testCompany(), report, "")
	assert.NoError(t, err)

	second, err := engine.Run(context.Background(), testCompany(), report, "")
	assert.NoError(t, err)

	assert.Equal(t, first.TotalItems, second.TotalItems)
	assert.Equal(t, first.Discrepancies, second.Discrepancies)
	assert.True(t, first.TotalRevenueImpact.Equal(second.TotalRevenueImpact))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_PsaFailureMarksSnapshotFailed(t *testing.T) {
	db, mock := setupMockDB(t)
	psaClient := &fakePsaClient{listErr: fmt.Errorf("psa gateway timeout")}
	engine := newTestEngine(db, psaClient)

	expectSnapshotInsert(mock)
	expectSnapshotUpdate(mock, models.SnapshotFailed)

	_, err := engine.Run(context.Background(), testCompany(), workstationReport(48), "")

	assert.ErrorContains(t, err, "psa gateway timeout")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_ItemLoopFailureMarksSnapshotFailed(t *testing.T) {
	db, mock := setupMockDB(t)
	psaClient := &fakePsaClient{lines: map[string][]psa.BillingLine{
		"psa-acme": {billableLine("l1", "RMM Workstation", 50, "10")},
	}}
	engine := newTestEngine(db, psaClient)

	expectSnapshotInsert(mock)
	mock.ExpectQuery("SELECT \\* FROM `vendor_products`").
		WillReturnError(fmt.Errorf("connection reset"))
	expectSnapshotUpdate(mock, models.SnapshotFailed)

	_, err := engine.Run(context.Background(), testCompany(), workstationReport(50), "")

	assert.ErrorContains(t, err, "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcile_UnknownCompany(t *testing.T) {
	db, mock := setupMockDB(t)
	engine := newTestEngine(db, &fakePsaClient{})

	mock.ExpectQuery("SELECT \\* FROM `companies`").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := engine.Reconcile(context.Background(), "missing", "")

	assert.ErrorIs(t, err, ErrCompanyNotFound)
}

func TestReconcile_NoActiveIntegrations(t *testing.T) {
	db, mock := setupMockDB(t)
	engine := newTestEngine(db, &fakePsaClient{})

	mock.ExpectQuery("SELECT \\* FROM `companies`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "psa_company_id"}).
			AddRow("c1", "Acme", "psa-acme"))
	mock.ExpectQuery("SELECT \\* FROM `company_integrations`").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := engine.Reconcile(context.Background(), "c1", "")

	assert.ErrorIs(t, err, ErrNoIntegrations)
}

func TestMatchLines(t *testing.T) {
	lines := []psa.BillingLine{
		{ExternalLineID: "l1", ProductName: "Acme RMM Workstation Agent"},
		{ExternalLineID: "l2", ProductName: "acme rmm workstation agent - legacy"},
		{ExternalLineID: "l3", ProductName: "Backup Licensing"},
	}

	matched := matchLines(lines, "RMM Workstation")

	assert.Len(t, matched, 2)
	assert.Equal(t, "l1", matched[0].ExternalLineID)
	assert.Equal(t, "l2", matched[1].ExternalLineID)

	assert.Empty(t, matchLines(lines, "Endpoint"))
}
