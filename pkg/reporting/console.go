package reporting

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ducminhle1904/portfolio-risk-governor/internal/audit"
	"github.com/ducminhle1904/portfolio-risk-governor/internal/gates"
)

// ConsoleReporter renders audit records as terminal tables.
type ConsoleReporter struct {
	out io.Writer
}

// NewConsoleReporter creates a reporter writing to stdout.
func NewConsoleReporter() *ConsoleReporter {
	return &ConsoleReporter{out: os.Stdout}
}

// NewConsoleReporterTo creates a reporter writing to the given writer.
func NewConsoleReporterTo(out io.Writer) *ConsoleReporter {
	return &ConsoleReporter{out: out}
}

// PrintDay renders one UTC day of audit records.
func (r *ConsoleReporter) PrintDay(records []audit.Record, day time.Time) {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetTitle(fmt.Sprintf("AUDIT LOG %s", day.UTC().Format("2006-01-02")))
	t.SetStyle(table.StyleRounded)

	t.AppendHeader(table.Row{"Seq", "Time (UTC)", "Status", "Action", "Crit", "Warn", "Actions"})
	for _, rec := range records {
		t.AppendRow(table.Row{
			rec.Seq,
			rec.TsUTC.Format("15:04:05"),
			string(rec.Status),
			string(rec.PortfolioAction),
			rec.CriticalCount,
			rec.WarningCount,
			len(rec.Actions),
		})
	}

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
	})

	t.Render()
	fmt.Fprintln(r.out)
}

// PrintLatest renders the most recent audit record in full, including its
// findings and dispatched actions.
func (r *ConsoleReporter) PrintLatest(rec *audit.Record) {
	if rec == nil {
		fmt.Fprintln(r.out, "audit log is empty")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetTitle("LATEST AUDIT RECORD")
	t.SetStyle(table.StyleRounded)

	t.AppendRows([]table.Row{
		{"🕒 Time", rec.TsUTC.Format("2006-01-02 15:04:05 UTC")},
		{"🔢 Seq", rec.Seq},
		{"🚦 Status", string(rec.Status)},
		{"⚡ Action", string(rec.PortfolioAction)},
		{"🚨 Critical", rec.CriticalCount},
		{"⚠️ Warning", rec.WarningCount},
	})

	if rec.Metrics != nil {
		t.AppendSeparator()
		t.AppendRows([]table.Row{
			{"📉 Daily Loss %", fmt.Sprintf("%.2f", rec.Metrics.PortfolioDailyLossPct)},
			{"📊 Net Exposure", fmt.Sprintf("%.2f", rec.Metrics.AbsNetExposureQuote)},
			{"🎯 Max Share %", fmt.Sprintf("%.2f", rec.Metrics.MaxEquitySharePct)},
			{"💰 Total Equity", fmt.Sprintf("%.2f", rec.Metrics.TotalEquityQuote)},
		})
	}

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 16, WidthMax: 16, Align: text.AlignLeft},
		{Number: 2, WidthMin: 25, WidthMax: 45, Align: text.AlignLeft},
	})

	t.Render()

	if len(rec.Findings) > 0 {
		r.printFindings(rec.Findings)
	}
	if len(rec.Actions) > 0 {
		r.printActions(rec)
	}
	fmt.Fprintln(r.out)
}

func (r *ConsoleReporter) printFindings(findings []gates.Finding) {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetTitle("FINDINGS")
	t.SetStyle(table.StyleRounded)

	t.AppendHeader(table.Row{"Severity", "Category", "Check", "Message"})
	for _, f := range findings {
		t.AppendRow(table.Row{string(f.Severity), string(f.Category), f.Check, f.Message})
	}

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, WidthMax: 60},
	})

	t.Render()
}

func (r *ConsoleReporter) printActions(rec *audit.Record) {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetTitle("DISPATCHED ACTIONS")
	t.SetStyle(table.StyleRounded)

	t.AppendHeader(table.Row{"Bot", "Action", "Event ID"})
	for _, act := range rec.Actions {
		t.AppendRow(table.Row{act.Bot, string(act.Action), act.EventID})
	}

	t.Render()
}
