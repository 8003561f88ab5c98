package billing

import (
	"context"
	"testing"
	"time"

	"msp-console/core/lock"
	"msp-console/core/vendor"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(db *gorm.DB) *Service {
	locker, _ := lock.New(lock.Config{Enabled: false})
	return NewService(db, &fakePsaClient{}, vendor.NewRegistry(), locker, zap.NewNop())
}

func pendingItemRows() *sqlmock.Rows {
	return linkedItemRows(50, 48)
}

func expectReviewWrites(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `reconciliation_items`").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	expectActivityInsert(mock)
}

func TestApproveItem_RecordsActivity(t *testing.T) {
	db, mock := setupMockDB(t)
	svc := newTestService(db)

	mock.ExpectQuery("SELECT \\* FROM `reconciliation_items`").
		WillReturnRows(pendingItemRows())
	expectReviewWrites(mock)

	err := svc.ApproveItem(context.Background(), "i1", "ops@msp.test")

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDismissItem_RecordsActivity(t *testing.T) {
	db, mock := setupMockDB(t)
	svc := newTestService(db)

	mock.ExpectQuery("SELECT \\* FROM `reconciliation_items`").
		WillReturnRows(pendingItemRows())
	expectReviewWrites(mock)

	err := svc.DismissItem(context.Background(), "i1", "")

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewItem_OnlyPendingCanTransition(t *testing.T) {
	tests := []struct {
		name   string
		status string
	}{
		{"already approved", "approved"},
		{"already dismissed", "dismissed"},
		{"already adjusted", "adjusted"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := setupMockDB(t)
			svc := newTestService(db)

			rows := sqlmock.NewRows(itemColumns()).AddRow(
				"i1", "s1", "c1", "rmm", "workstation", "Workstations",
				50, 48, -2, "10.00", "-20.00", tt.status, "ext-agr-1", "l1",
				time.Now(), time.Now(),
			)
			mock.ExpectQuery("SELECT \\* FROM `reconciliation_items`").
				WillReturnRows(rows)

			err := svc.ApproveItem(context.Background(), "i1", "")

			assert.ErrorIs(t, err, ErrInvalidTransition)
		})
	}
}

func TestApproveItem_NotFound(t *testing.T) {
	db, mock := setupMockDB(t)
	svc := newTestService(db)

	mock.ExpectQuery("SELECT \\* FROM `reconciliation_items`").
		WillReturnRows(sqlmock.NewRows(itemColumns()))

	err := svc.ApproveItem(context.Background(), "missing", "")

	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestItemsForSnapshot_UnknownSnapshot(t *testing.T) {
	db, mock := setupMockDB(t)
	svc := newTestService(db)

	mock.ExpectQuery("SELECT \\* FROM `reconciliation_snapshots`").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := svc.ItemsForSnapshot(context.Background(), "missing")

	assert.ErrorIs(t, err, ErrSnapshotNotFound)
}

func TestReconcileAll_NoActiveIntegrations(t *testing.T) {
	db, mock := setupMockDB(t)
	svc := newTestService(db)

	mock.ExpectQuery("SELECT \\* FROM `company_integrations`").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	results, err := svc.ReconcileAll(context.Background(), "")

	assert.NoError(t, err)
	assert.Empty(t, results)
}

func TestReportFor_CarvesCompanySlice(t *testing.T) {
	bulk := vendor.BulkReport{
		CountsByExternalID: map[string][]vendor.Count{
			"acme-1": {{VendorID: "rmm", ProductKey: "server", Count: 4}},
			"acme-2": {{VendorID: "edr", ProductKey: "endpoint_agent", Count: 30}},
			"bolt-1": {{VendorID: "rmm", ProductKey: "server", Count: 9}},
		},
		Failures: []vendor.SourceFailure{
			{VendorID: "m365", Err: "tenant api down"},
			{VendorID: "rmm", CompanyExternalID: "bolt-1", Err: "partial sync"},
		},
	}

	report := reportFor(bulk, []vendor.Binding{
		{VendorID: "rmm", ExternalID: "acme-1"},
		{VendorID: "edr", ExternalID: "acme-2"},
		{VendorID: "m365", ExternalID: "acme-m"},
	})

	assert.Len(t, report.Counts, 2)
	// The vendor-wide m365 failure applies; bolt-1's rmm failure does not.
	assert.Len(t, report.Failures, 1)
	assert.Equal(t, "m365", report.Failures[0].VendorID)
}
