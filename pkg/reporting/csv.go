package reporting

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/ducminhle1904/portfolio-risk-governor/internal/audit"
)

// WriteDayCSV writes one UTC day of audit records as CSV. An empty path
// writes to stdout.
func WriteDayCSV(records []audit.Record, outputFile string) error {
	var w *csv.Writer

	if outputFile == "" {
		w = csv.NewWriter(os.Stdout)
	} else {
		file, err := os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer file.Close()
		w = csv.NewWriter(file)
	}

	return writeCSV(w, records)
}

func writeCSV(w *csv.Writer, records []audit.Record) error {
	w.Write([]string{"seq", "ts_utc", "status", "portfolio_action",
		"critical_count", "warning_count", "daily_loss_pct",
		"net_exposure_quote", "max_equity_share_pct", "total_equity_quote",
		"action_count"})

	for _, rec := range records {
		row := []string{
			strconv.FormatUint(rec.Seq, 10),
			rec.TsUTC.Format("2006-01-02T15:04:05Z"),
			string(rec.Status),
			string(rec.PortfolioAction),
			strconv.Itoa(rec.CriticalCount),
			strconv.Itoa(rec.WarningCount),
		}
		if rec.Metrics != nil {
			row = append(row,
				fmt.Sprintf("%.4f", rec.Metrics.PortfolioDailyLossPct),
				fmt.Sprintf("%.2f", rec.Metrics.AbsNetExposureQuote),
				fmt.Sprintf("%.2f", rec.Metrics.MaxEquitySharePct),
				fmt.Sprintf("%.2f", rec.Metrics.TotalEquityQuote))
		} else {
			row = append(row, "", "", "", "")
		}
		row = append(row, strconv.Itoa(len(rec.Actions)))

		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	w.Flush()
	return w.Error()
}

// WriteCSVTo writes the records to an arbitrary writer.
func WriteCSVTo(out io.Writer, records []audit.Record) error {
	return writeCSV(csv.NewWriter(out), records)
}
