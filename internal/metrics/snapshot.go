package metrics

import (
	"time"
)

// Snapshot is a point-in-time view of the portfolio metrics the governor
// evaluates. It is produced once per cycle and never mutated afterwards.
type Snapshot struct {
	Timestamp             time.Time `json:"timestamp"`
	PortfolioDailyLossPct float64   `json:"portfolio_daily_loss_pct"` // signed percent, losses negative
	AbsNetExposureQuote   float64   `json:"abs_net_exposure_quote"`   // non-negative, quote currency
	MaxEquitySharePct     float64   `json:"max_equity_share_pct"`     // 0-100, largest single-asset share
	TotalEquityQuote      float64   `json:"total_equity_quote"`       // non-negative, quote currency
}

// Age returns how old the snapshot is relative to now.
func (s *Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.Timestamp)
}

// IsStale reports whether the snapshot is older than maxAge.
func (s *Snapshot) IsStale(now time.Time, maxAge time.Duration) bool {
	if s.Timestamp.IsZero() {
		return true
	}
	return s.Age(now) > maxAge
}
