// Package export renders receipts and splits as XLSX workbooks.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/mmynk/receiptsplit/internal/models"
)

const (
	ItemsSheet  = "Items"
	SplitsSheet = "Splits"
	ScansSheet  = "Scans"

	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	errorColor = "9A0511"
)

// ScanRow is the outcome of processing one receipt file.
type ScanRow struct {
	File    string
	Receipt *models.Receipt
	Issues  []models.ValidationIssue
	Err     error
}

// WriteSplits writes the receipt's items and each person's share to w.
func WriteSplits(w io.Writer, receipt models.Receipt, splits []models.PersonSplit) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ItemsSheet); err != nil {
		return fmt.Errorf("failed to create items sheet: %w", err)
	}
	if err := writeHeader(f, ItemsSheet, "Description", "Quantity", "Unit Price", "Total"); err != nil {
		return err
	}
	for i, item := range receipt.Items {
		row := i + 2
		f.SetCellValue(ItemsSheet, fmt.Sprintf("A%d", row), item.Description)
		setAmount(f, ItemsSheet, fmt.Sprintf("B%d", row), item.Quantity)
		setAmount(f, ItemsSheet, fmt.Sprintf("C%d", row), item.UnitPrice)
		setAmount(f, ItemsSheet, fmt.Sprintf("D%d", row), item.TotalPrice)
	}
	summary := len(receipt.Items) + 3
	for i, line := range []struct {
		label string
		value *float64
	}{
		{"Subtotal", receipt.Subtotal},
		{"Tax", receipt.Tax},
		{"Service Charge", receipt.ServiceCharge},
		{"Total", receipt.Total},
	} {
		f.SetCellValue(ItemsSheet, fmt.Sprintf("C%d", summary+i), line.label)
		setAmount(f, ItemsSheet, fmt.Sprintf("D%d", summary+i), line.value)
	}

	if _, err := f.NewSheet(SplitsSheet); err != nil {
		return fmt.Errorf("failed to create splits sheet: %w", err)
	}
	if err := writeHeader(f, SplitsSheet, "Person", "Item", "Amount", "Shared By", "Subtotal", "Tax", "Service Charge", "Total"); err != nil {
		return err
	}
	row := 2
	for _, split := range splits {
		f.SetCellValue(SplitsSheet, fmt.Sprintf("A%d", row), split.Person.Name)
		f.SetCellValue(SplitsSheet, fmt.Sprintf("E%d", row), split.Subtotal)
		f.SetCellValue(SplitsSheet, fmt.Sprintf("F%d", row), split.Tax)
		f.SetCellValue(SplitsSheet, fmt.Sprintf("G%d", row), split.ServiceCharge)
		f.SetCellValue(SplitsSheet, fmt.Sprintf("H%d", row), split.Total)
		row++
		for _, item := range split.Items {
			f.SetCellValue(SplitsSheet, fmt.Sprintf("B%d", row), item.Description)
			f.SetCellValue(SplitsSheet, fmt.Sprintf("C%d", row), item.Amount)
			f.SetCellValue(SplitsSheet, fmt.Sprintf("D%d", row), item.Splitters)
			row++
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// WriteScanReport writes one row per scanned file to w. Failed rows are red.
func WriteScanReport(w io.Writer, rows []ScanRow) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ScansSheet); err != nil {
		return fmt.Errorf("failed to create scans sheet: %w", err)
	}
	if err := writeHeader(f, ScansSheet, "File", "Establishment", "Items", "Subtotal", "Tax", "Service Charge", "Total", "Issues", "Error"); err != nil {
		return err
	}

	errStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Color: errorColor}})
	if err != nil {
		return fmt.Errorf("failed to create error style: %w", err)
	}

	for i, r := range rows {
		row := i + 2
		f.SetCellValue(ScansSheet, fmt.Sprintf("A%d", row), r.File)
		if r.Err != nil {
			f.SetCellValue(ScansSheet, fmt.Sprintf("I%d", row), r.Err.Error())
			f.SetCellStyle(ScansSheet, fmt.Sprintf("A%d", row), fmt.Sprintf("I%d", row), errStyle)
			continue
		}
		if r.Receipt == nil {
			continue
		}
		f.SetCellValue(ScansSheet, fmt.Sprintf("B%d", row), r.Receipt.EstablishmentName)
		f.SetCellValue(ScansSheet, fmt.Sprintf("C%d", row), len(r.Receipt.Items))
		setAmount(f, ScansSheet, fmt.Sprintf("D%d", row), r.Receipt.Subtotal)
		setAmount(f, ScansSheet, fmt.Sprintf("E%d", row), r.Receipt.Tax)
		setAmount(f, ScansSheet, fmt.Sprintf("F%d", row), r.Receipt.ServiceCharge)
		setAmount(f, ScansSheet, fmt.Sprintf("G%d", row), r.Receipt.Total)
		f.SetCellValue(ScansSheet, fmt.Sprintf("H%d", row), len(r.Issues))
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeHeader(f *excelize.File, sheet string, headers ...string) error {
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return fmt.Errorf("failed to resolve header cell: %w", err)
		}
		f.SetCellValue(sheet, cell, h)
	}
	return nil
}

// setAmount leaves the cell empty for absent values.
func setAmount(f *excelize.File, sheet, cell string, v *float64) {
	if v != nil {
		f.SetCellValue(sheet, cell, *v)
	}
}
