package reporting

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/ducminhle1904/portfolio-risk-governor/internal/audit"
)

// ExcelReporter exports audit records to an XLSX workbook for offline review.
type ExcelReporter struct{}

// NewExcelReporter creates a new Excel reporter
func NewExcelReporter() *ExcelReporter {
	return &ExcelReporter{}
}

// ExcelStyles holds the style IDs used across sheets.
type ExcelStyles struct {
	HeaderStyle  int
	NumberStyle  int
	PercentStyle int
}

// WriteDayXLSX writes one UTC day of audit records to an Excel file with a
// Records sheet and a Findings sheet.
func (r *ExcelReporter) WriteDayXLSX(records []audit.Record, day time.Time, path string) error {
	// Ensure directory exists before creating file
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	fx := excelize.NewFile()
	defer fx.Close()

	const recordsSheet = "Records"
	const findingsSheet = "Findings"

	fx.SetSheetName(fx.GetSheetName(0), recordsSheet)
	fx.NewSheet(findingsSheet)

	styles, err := r.createExcelStyles(fx)
	if err != nil {
		return err
	}

	if err := r.writeRecordsSheet(fx, recordsSheet, records, styles); err != nil {
		return err
	}
	if err := r.writeFindingsSheet(fx, findingsSheet, records, styles); err != nil {
		return err
	}

	return fx.SaveAs(path)
}

func (r *ExcelReporter) createExcelStyles(fx *excelize.File) (ExcelStyles, error) {
	var styles ExcelStyles
	var err error

	// Header style - Dark blue background with white text
	styles.HeaderStyle, err = fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold:   true,
			Size:   11,
			Color:  "FFFFFF",
			Family: "Calibri",
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"2F4F4F"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return styles, err
	}

	styles.NumberStyle, err = fx.NewStyle(&excelize.Style{
		NumFmt: 2, // 0.00
		Alignment: &excelize.Alignment{
			Horizontal: "right",
		},
	})
	if err != nil {
		return styles, err
	}

	styles.PercentStyle, err = fx.NewStyle(&excelize.Style{
		NumFmt: 2,
		Alignment: &excelize.Alignment{
			Horizontal: "right",
		},
	})
	return styles, err
}

func (r *ExcelReporter) writeRecordsSheet(fx *excelize.File, sheet string, records []audit.Record, styles ExcelStyles) error {
	headers := []string{"Seq", "Time (UTC)", "Status", "Portfolio Action",
		"Critical", "Warning", "Daily Loss %", "Net Exposure", "Max Share %",
		"Total Equity", "Actions"}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		fx.SetCellValue(sheet, cell, h)
		fx.SetCellStyle(sheet, cell, cell, styles.HeaderStyle)
	}

	for row, rec := range records {
		values := []interface{}{
			rec.Seq,
			rec.TsUTC.Format("2006-01-02 15:04:05"),
			string(rec.Status),
			string(rec.PortfolioAction),
			rec.CriticalCount,
			rec.WarningCount,
		}
		if rec.Metrics != nil {
			values = append(values,
				rec.Metrics.PortfolioDailyLossPct,
				rec.Metrics.AbsNetExposureQuote,
				rec.Metrics.MaxEquitySharePct,
				rec.Metrics.TotalEquityQuote)
		} else {
			values = append(values, "", "", "", "")
		}
		values = append(values, len(rec.Actions))

		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			fx.SetCellValue(sheet, cell, v)
		}
	}

	fx.SetColWidth(sheet, "A", "A", 8)
	fx.SetColWidth(sheet, "B", "B", 20)
	fx.SetColWidth(sheet, "C", "K", 14)

	return nil
}

func (r *ExcelReporter) writeFindingsSheet(fx *excelize.File, sheet string, records []audit.Record, styles ExcelStyles) error {
	headers := []string{"Seq", "Time (UTC)", "Severity", "Category", "Check", "Message", "Details"}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		fx.SetCellValue(sheet, cell, h)
		fx.SetCellStyle(sheet, cell, cell, styles.HeaderStyle)
	}

	row := 2
	for _, rec := range records {
		for _, f := range rec.Findings {
			details := ""
			if len(f.Details) > 0 {
				if data, err := json.Marshal(f.Details); err == nil {
					details = string(data)
				}
			}

			values := []interface{}{
				rec.Seq,
				rec.TsUTC.Format("2006-01-02 15:04:05"),
				string(f.Severity),
				string(f.Category),
				f.Check,
				f.Message,
				details,
			}
			for col, v := range values {
				cell, _ := excelize.CoordinatesToCellName(col+1, row)
				fx.SetCellValue(sheet, cell, v)
			}
			row++
		}
	}

	fx.SetColWidth(sheet, "A", "A", 8)
	fx.SetColWidth(sheet, "B", "B", 20)
	fx.SetColWidth(sheet, "C", "E", 16)
	fx.SetColWidth(sheet, "F", "G", 50)

	return nil
}
