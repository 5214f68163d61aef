package pipeline

import (
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

// ExportEntriesToXLSX writes one upload's canonical entries to a workbook
// for manual review.
func ExportEntriesToXLSX(entries []EntryRecord, outputPath string) error {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)

	headers := []string{
		"upload_id", "reseller", "product_ean", "functional_name",
		"month", "year", "quantity", "sales_lc", "sales_eur", "currency",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for i, e := range entries {
		r := i + 2
		set := func(col int, value any) {
			cell, _ := excelize.CoordinatesToCellName(col, r)
			_ = f.SetCellValue(sheet, cell, value)
		}

		set(1, e.UploadID)
		set(2, e.Reseller)
		set(3, e.ProductEAN)
		set(4, e.FunctionalName)
		set(5, e.Month)
		set(6, e.Year)
		set(7, e.Quantity)
		set(8, e.SalesLC)
		if e.SalesEUR != nil {
			set(9, *e.SalesEUR)
		}
		set(10, e.Currency)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}
