package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/okoa-labs/fuelscan/internal/entity"
	"github.com/okoa-labs/fuelscan/internal/store"
)

// Service produces XLSX bytes for bookkeeping export.
type Service struct {
	store  store.TransactionStore
	logger *slog.Logger
}

func NewService(st store.TransactionStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, logger: logger}
}

// ExportXLSX returns a workbook of reconciled transactions in the window.
// If only from is provided -> from..now; nil/nil exports everything.
func (s *Service) ExportXLSX(ctx context.Context, from, to *time.Time) ([]byte, error) {
	start := time.Now()
	if from != nil && to == nil {
		now := time.Now().UTC()
		to = &now
	}

	txs, err := s.store.List(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	f := excelize.NewFile()
	const sheet = "Transactions"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)
	if defIndex, _ := f.GetSheetIndex("Sheet1"); defIndex != -1 {
		_ = f.DeleteSheet("Sheet1")
	}

	headers := []string{
		"Date", "Merchant", "Amount (KES)", "Litres", "Fuel Type",
		"Price/Litre", "Invoice Number", "KRA Verified", "Status",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for row, tx := range txs {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row+2)
			_ = f.SetCellValue(sheet, cell, v)
		}
		write(1, formatDate(tx))
		write(2, tx.Merchant.Value)
		write(3, tx.Amount.Value)
		write(4, tx.Litres.Value)
		write(5, tx.FuelType.Value)
		write(6, tx.PricePerLitre.Value)
		write(7, tx.InvoiceNumber)
		write(8, tx.KRAVerified)
		write(9, string(tx.OverallStatus))
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	s.logger.Info("export.xlsx.ok", "rows", len(txs), "elapsed_ms", time.Since(start).Milliseconds())
	return buf.Bytes(), nil
}

func formatDate(tx entity.ReconciledTransaction) string {
	if tx.TxDate.Value.IsZero() {
		return ""
	}
	return tx.TxDate.Value.Format("2006-01-02")
}
