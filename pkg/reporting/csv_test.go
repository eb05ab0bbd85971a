package reporting

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducminhle1904/portfolio-risk-governor/internal/audit"
	"github.com/ducminhle1904/portfolio-risk-governor/internal/decision"
	"github.com/ducminhle1904/portfolio-risk-governor/internal/dispatch"
	"github.com/ducminhle1904/portfolio-risk-governor/internal/metrics"
	"github.com/ducminhle1904/portfolio-risk-governor/internal/state"
)

func sampleRecords() []audit.Record {
	ts := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	return []audit.Record{
		{
			TsUTC:           ts,
			Seq:             1,
			Status:          state.ModeNormal,
			PortfolioAction: decision.ActionNone,
			Metrics: &metrics.Snapshot{
				Timestamp:             ts,
				PortfolioDailyLossPct: -1.25,
				AbsNetExposureQuote:   42000,
				MaxEquitySharePct:     35,
				TotalEquityQuote:      90000,
			},
		},
		{
			TsUTC:           ts.Add(time.Minute),
			Seq:             2,
			Status:          state.ModeSoftPause,
			PortfolioAction: decision.ActionSoftPause,
			CriticalCount:   1,
			Actions: []dispatch.Action{
				{Bot: "alpha", Action: decision.ActionSoftPause, EventID: "evt-1"},
			},
		},
	}
}

// TestWriteCSVTo tests the CSV export shape
func TestWriteCSVTo(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSVTo(&buf, sampleRecords()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)

	assert.True(t, strings.HasPrefix(lines[0], "seq,ts_utc,status"))
	assert.Contains(t, lines[1], "normal")
	assert.Contains(t, lines[1], "-1.2500")
	assert.Contains(t, lines[2], "soft_pause")
	assert.True(t, strings.HasSuffix(lines[2], ",1"), "action count column")
}

// TestWriteCSVTo_MetricslessRecord tests records written without a snapshot
func TestWriteCSVTo_MetricslessRecord(t *testing.T) {
	records := sampleRecords()[1:]

	var buf bytes.Buffer
	require.NoError(t, WriteCSVTo(&buf, records))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], ",,,,")
}
