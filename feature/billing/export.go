package billing

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"msp-console/core/storage"
	"msp-console/feature/billing/models"

	"github.com/minio/minio-go/v7"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Exporter renders a snapshot as an XLSX workbook and uploads it to object
// storage for sharing outside the console.
type Exporter struct {
	db     *gorm.DB
	store  storage.Client
	bucket string
	logger *zap.Logger
}

// NewExporter creates an exporter writing into the given bucket.
func NewExporter(db *gorm.DB, store storage.Client, bucket string, logger *zap.Logger) *Exporter {
	return &Exporter{db: db, store: store, bucket: bucket, logger: logger}
}

// Export builds the workbook for one snapshot and uploads it. It returns the
// object name under the exporter's bucket.
func (e *Exporter) Export(ctx context.Context, snapshotID string) (string, error) {
	var snapshot models.ReconciliationSnapshot
	err := e.db.WithContext(ctx).First(&snapshot, "id = ?", snapshotID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrSnapshotNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to load snapshot %s: %w", snapshotID, err)
	}

	var company models.Company
	if err := e.db.WithContext(ctx).First(&company, "id = ?", snapshot.CompanyID).Error; err != nil {
		return "", fmt.Errorf("failed to load company %s: %w", snapshot.CompanyID, err)
	}

	var items []models.ReconciliationItem
	err = e.db.WithContext(ctx).
		Where("snapshot_id = ?", snapshotID).
		Order("vendor_id, vendor_product_key").
		Find(&items).Error
	if err != nil {
		return "", fmt.Errorf("failed to load items for snapshot %s: %w", snapshotID, err)
	}

	buf, err := buildWorkbook(&snapshot, &company, items)
	if err != nil {
		return "", err
	}

	if err := e.ensureBucket(ctx); err != nil {
		return "", err
	}

	objectName := fmt.Sprintf("reconciliation/%s/%s.xlsx", company.ID, snapshot.ID)
	_, err = e.store.PutObject(ctx, e.bucket, objectName, buf, int64(buf.Len()),
		minio.PutObjectOptions{ContentType: xlsxContentType})
	if err != nil {
		return "", fmt.Errorf("failed to upload report %s: %w", objectName, err)
	}

	e.logger.Info("exported snapshot report",
		zap.String("snapshot_id", snapshot.ID),
		zap.String("object_name", objectName),
	)
	return objectName, nil
}

func (e *Exporter) ensureBucket(ctx context.Context) error {
	exists, err := e.store.BucketExists(ctx, e.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", e.bucket, err)
	}
	if exists {
		return nil
	}
	if err := e.store.MakeBucket(ctx, e.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", e.bucket, err)
	}
	return nil
}

func buildWorkbook(snapshot *models.ReconciliationSnapshot, company *models.Company, items []models.ReconciliationItem) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	summary := "Summary"
	f.SetSheetName("Sheet1", summary)
	f.SetCellValue(summary, "A1", "Company")
	f.SetCellValue(summary, "B1", company.Name)
	f.SetCellValue(summary, "A2", "Snapshot")
	f.SetCellValue(summary, "B2", snapshot.ID)
	f.SetCellValue(summary, "A3", "Status")
	f.SetCellValue(summary, "B3", snapshot.Status)
	f.SetCellValue(summary, "A4", "Run At")
	f.SetCellValue(summary, "B4", snapshot.CreatedAt.Format("2006-01-02 15:04:05"))
	f.SetCellValue(summary, "A5", "Total Items")
	f.SetCellValue(summary, "B5", snapshot.TotalItems)
	f.SetCellValue(summary, "A6", "Discrepancies")
	f.SetCellValue(summary, "B6", snapshot.Discrepancies)
	f.SetCellValue(summary, "A7", "Matched Items")
	f.SetCellValue(summary, "B7", snapshot.MatchedCount)
	f.SetCellValue(summary, "A8", "Revenue Impact")
	f.SetCellValue(summary, "B8", snapshot.TotalRevenueImpact.InexactFloat64())

	sheet := "Items"
	if _, err := f.NewSheet(sheet); err != nil {
		return nil, fmt.Errorf("failed to build workbook: %w", err)
	}
	headers := []string{"Vendor", "Product Key", "Product Name", "PSA Qty", "Vendor Qty", "Discrepancy", "Unit Price", "Revenue Impact", "Status"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, header)
	}
	for row, item := range items {
		values := []any{
			item.VendorID,
			item.VendorProductKey,
			item.VendorProductName,
			item.PsaQty,
			item.VendorQty,
			item.Discrepancy,
			nullDecimalCell(item.UnitPrice),
			nullDecimalCell(item.RevenueImpact),
			item.Status,
		}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			f.SetCellValue(sheet, cell, value)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to render workbook: %w", err)
	}
	return buf, nil
}

// nullDecimalCell renders an unmatched item's price fields as an empty cell
// instead of a misleading zero.
func nullDecimalCell(d decimal.NullDecimal) any {
	if !d.Valid {
		return ""
	}
	return d.Decimal.InexactFloat64()
}
