package cli

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"german-ocr/ocr"
)

const (
	reportSheet = "Ergebnisse"
	// Excel refuses longer cell values.
	maxCellChars = 32767
)

var reportHeaders = []string{"File", "Status", "Model", "Pages", "Processing ms", "Price", "Job ID", "Text / Error"}

// writeReport stores one row per batch item in an XLSX workbook at path.
func writeReport(path string, paths []string, items []ocr.BatchItem) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", reportSheet); err != nil {
		return fmt.Errorf("xlsx sheet: %w", err)
	}
	for i, h := range reportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(reportSheet, cell, h)
	}
	if bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		last, _ := excelize.CoordinatesToCellName(len(reportHeaders), 1)
		_ = f.SetCellStyle(reportSheet, "A1", last, bold)
	}

	for i, item := range items {
		row := i + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(reportSheet, cell, v)
		}
		write(1, paths[item.Index])
		if !item.OK() {
			write(2, "failed")
			write(8, truncateCell(item.Err.Error()))
			continue
		}
		res := item.Result
		write(2, "completed")
		write(3, res.ModelUsed.DisplayName())
		if res.Metadata.Pages > 0 {
			write(4, res.Metadata.Pages)
		}
		write(5, res.ProcessingTimeMs)
		write(6, res.Metadata.PriceDisplay)
		write(7, res.JobID)
		write(8, truncateCell(res.Text))
	}

	_ = f.SetColWidth(reportSheet, "A", "A", 40)
	_ = f.SetColWidth(reportSheet, "B", "F", 14)
	_ = f.SetColWidth(reportSheet, "G", "G", 38)
	_ = f.SetColWidth(reportSheet, "H", "H", 80)
	_ = f.SetPanes(reportSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}

func truncateCell(s string) string {
	r := []rune(s)
	if len(r) <= maxCellChars {
		return s
	}
	return string(r[:maxCellChars-1]) + "…"
}
