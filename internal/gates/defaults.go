package gates

import (
	"fmt"
	"time"

	"github.com/ducminhle1904/portfolio-risk-governor/internal/metrics"
)

// Thresholds holds the policy limits the default check set evaluates
// against. Values come from configuration and are static within a cycle.
type Thresholds struct {
	DailyLossWarningPct  float64       // signed, e.g. -3.0
	DailyLossCriticalPct float64       // signed, e.g. -5.0
	MaxNetExposureQuote  float64       // quote currency
	MaxEquitySharePct    float64       // 0-100
	MinTotalEquityQuote  float64       // quote currency floor
	MaxSnapshotAge       time.Duration // freshness window
}

// DefaultThresholds returns a conservative default policy.
func DefaultThresholds() Thresholds {
	return Thresholds{
		DailyLossWarningPct:  -3.0,
		DailyLossCriticalPct: -5.0,
		MaxNetExposureQuote:  100000,
		MaxEquitySharePct:    60,
		MinTotalEquityQuote:  1000,
		MaxSnapshotAge:       2 * time.Minute,
	}
}

// DefaultChecks builds the standard ordered check set from thresholds. The
// declaration order here is the finding order in every audit record.
func DefaultChecks(t Thresholds) []Check {
	return []Check{
		{
			Name:     "daily_loss_exceeded",
			Category: CategoryMarketState,
			Severity: SeverityCritical,
			Predicate: func(snap *metrics.Snapshot) (bool, Details) {
				return snap.PortfolioDailyLossPct <= t.DailyLossCriticalPct, Details{
					"daily_loss_pct": snap.PortfolioDailyLossPct,
					"limit_pct":      t.DailyLossCriticalPct,
				}
			},
			Describe: func(snap *metrics.Snapshot) string {
				return fmt.Sprintf("daily loss %.2f%% breaches critical limit %.2f%%",
					snap.PortfolioDailyLossPct, t.DailyLossCriticalPct)
			},
		},
		{
			Name:     "daily_loss_warning",
			Category: CategoryMarketState,
			Severity: SeverityWarning,
			Predicate: func(snap *metrics.Snapshot) (bool, Details) {
				fired := snap.PortfolioDailyLossPct <= t.DailyLossWarningPct &&
					snap.PortfolioDailyLossPct > t.DailyLossCriticalPct
				return fired, Details{
					"daily_loss_pct": snap.PortfolioDailyLossPct,
					"limit_pct":      t.DailyLossWarningPct,
				}
			},
			Describe: func(snap *metrics.Snapshot) string {
				return fmt.Sprintf("daily loss %.2f%% breaches warning limit %.2f%%",
					snap.PortfolioDailyLossPct, t.DailyLossWarningPct)
			},
		},
		{
			Name:     "net_exposure_exceeded",
			Category: CategoryMarketState,
			Severity: SeverityCritical,
			Predicate: func(snap *metrics.Snapshot) (bool, Details) {
				return snap.AbsNetExposureQuote > t.MaxNetExposureQuote, Details{
					"abs_net_exposure_quote": snap.AbsNetExposureQuote,
					"limit_quote":            t.MaxNetExposureQuote,
				}
			},
			Describe: func(snap *metrics.Snapshot) string {
				return fmt.Sprintf("net exposure %.2f exceeds limit %.2f",
					snap.AbsNetExposureQuote, t.MaxNetExposureQuote)
			},
		},
		{
			Name:     "equity_concentration",
			Category: CategoryMarketState,
			Severity: SeverityWarning,
			Predicate: func(snap *metrics.Snapshot) (bool, Details) {
				return snap.MaxEquitySharePct > t.MaxEquitySharePct, Details{
					"max_equity_share_pct": snap.MaxEquitySharePct,
					"limit_pct":            t.MaxEquitySharePct,
				}
			},
			Describe: func(snap *metrics.Snapshot) string {
				return fmt.Sprintf("largest equity share %.1f%% exceeds limit %.1f%%",
					snap.MaxEquitySharePct, t.MaxEquitySharePct)
			},
		},
		{
			Name:     "equity_floor_breached",
			Category: CategorySignalQuality,
			Severity: SeverityCritical,
			Predicate: func(snap *metrics.Snapshot) (bool, Details) {
				return snap.TotalEquityQuote < t.MinTotalEquityQuote, Details{
					"total_equity_quote": snap.TotalEquityQuote,
					"floor_quote":        t.MinTotalEquityQuote,
				}
			},
			Describe: func(snap *metrics.Snapshot) string {
				return fmt.Sprintf("total equity %.2f below floor %.2f",
					snap.TotalEquityQuote, t.MinTotalEquityQuote)
			},
		},
	}
}
