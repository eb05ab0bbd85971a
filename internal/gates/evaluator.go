package gates

import (
	"fmt"

	"github.com/ducminhle1904/portfolio-risk-governor/internal/metrics"
)

// CheckFailed is the synthetic check name used when a configured check
// panics during evaluation. A broken rule must fail closed, never be
// silently dropped.
const CheckFailed = "check_failed"

// Check is one configured gate rule: a predicate over the snapshot plus the
// metadata needed to turn a hit into a finding.
type Check struct {
	Name     string
	Category Category
	Severity Severity

	// Predicate reports whether the check fires for the snapshot and
	// optionally returns structured details for the finding.
	Predicate func(snap *metrics.Snapshot) (bool, Details)

	// Describe renders the human-readable message for a fired check.
	Describe func(snap *metrics.Snapshot) string
}

// Evaluator applies an ordered list of checks to a snapshot. Evaluation has
// no side effects and is deterministic: the same snapshot and check
// configuration always yield the same findings in declaration order.
type Evaluator struct {
	checks []Check
}

// NewEvaluator creates an evaluator over the given ordered checks.
func NewEvaluator(checks []Check) *Evaluator {
	return &Evaluator{checks: checks}
}

// Evaluate runs every check against the snapshot and returns one finding per
// fired check, preserving check-declaration order.
func (e *Evaluator) Evaluate(snap *metrics.Snapshot) []Finding {
	findings := make([]Finding, 0, len(e.checks))
	for _, check := range e.checks {
		if f := evaluateOne(check, snap); f != nil {
			findings = append(findings, *f)
		}
	}
	return findings
}

// evaluateOne runs a single check, converting a panicking predicate into a
// synthetic critical finding that names the broken check.
func evaluateOne(check Check, snap *metrics.Snapshot) (finding *Finding) {
	defer func() {
		if r := recover(); r != nil {
			finding = &Finding{
				Severity: SeverityCritical,
				Category: check.Category,
				Check:    CheckFailed,
				Message:  fmt.Sprintf("check %s failed during evaluation: %v", check.Name, r),
				Details:  Details{"check": check.Name, "panic": fmt.Sprintf("%v", r)},
			}
		}
	}()

	fired, details := check.Predicate(snap)
	if !fired {
		return nil
	}

	message := check.Name
	if check.Describe != nil {
		message = check.Describe(snap)
	}

	return &Finding{
		Severity: check.Severity,
		Category: check.Category,
		Check:    check.Name,
		Message:  message,
		Details:  details,
	}
}

// StaleMetricsFinding is the fail-closed finding injected when the metrics
// source is missing, stale, or errored. It is critical by design: an absent
// snapshot must never look like a clean cycle.
func StaleMetricsFinding(reason string) Finding {
	return Finding{
		Severity: SeverityCritical,
		Category: CategorySignalQuality,
		Check:    "metrics_stale",
		Message:  fmt.Sprintf("metrics snapshot unavailable or stale: %s", reason),
		Details:  Details{"reason": reason},
	}
}

// DeliveryFailureFinding is the execution finding carried into the next
// cycle when a local delivery exhausted its retry budget.
func DeliveryFailureFinding(bot, eventID string, attempts int, err error) Finding {
	return Finding{
		Severity: SeverityWarning,
		Category: CategoryExecution,
		Check:    "delivery_failed",
		Message:  fmt.Sprintf("action delivery to bot %s failed after %d attempts: %v", bot, attempts, err),
		Details: Details{
			"bot":      bot,
			"event_id": eventID,
			"attempts": attempts,
			"error":    err.Error(),
		},
	}
}
