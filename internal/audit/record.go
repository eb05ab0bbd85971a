package audit

import (
	"time"

	"github.com/ducminhle1904/portfolio-risk-governor/internal/decision"
	"github.com/ducminhle1904/portfolio-risk-governor/internal/dispatch"
	"github.com/ducminhle1904/portfolio-risk-governor/internal/gates"
	"github.com/ducminhle1904/portfolio-risk-governor/internal/metrics"
	"github.com/ducminhle1904/portfolio-risk-governor/internal/state"
)

// Record is the unit of durable truth: exactly one per evaluation cycle,
// append-only, never rewritten. Records are ordered by timestamp with ties
// broken by Seq, the append order, which is authoritative.
type Record struct {
	TsUTC           time.Time                `json:"ts_utc"`
	Seq             uint64                   `json:"seq"`
	Status          state.Mode               `json:"status"`
	PortfolioAction decision.PortfolioAction `json:"portfolio_action"`
	CriticalCount   int                      `json:"critical_count"`
	WarningCount    int                      `json:"warning_count"`
	Metrics         *metrics.Snapshot        `json:"metrics"`
	Findings        []gates.Finding          `json:"findings"`
	Actions         []dispatch.Action        `json:"actions"`
}
