package decision

import (
	"time"

	"github.com/ducminhle1904/portfolio-risk-governor/internal/gates"
	"github.com/ducminhle1904/portfolio-risk-governor/internal/state"
)

// PortfolioAction is the portfolio-level action decided for a cycle.
type PortfolioAction string

const (
	ActionNone       PortfolioAction = "none"
	ActionSoftPause  PortfolioAction = "soft_pause"
	ActionKillSwitch PortfolioAction = "kill_switch"
	ActionResume     PortfolioAction = "resume"
)

// Config holds the escalation policy thresholds.
type Config struct {
	// KillSwitchCriticalThreshold is the critical-finding count at or above
	// which the cycle escalates straight to kill switch.
	KillSwitchCriticalThreshold int

	// ConsecutiveRejectThreshold is the reject-counter value at or above
	// which the governor soft-pauses even without fresh critical findings.
	ConsecutiveRejectThreshold int

	// Cooldown is the minimum soft-pause duration before resume becomes
	// eligible.
	Cooldown time.Duration

	// BusOutageGrace is how long a bus outage may persist before it is
	// folded into the decision as a pause condition.
	BusOutageGrace time.Duration

	// ResumeResetsRejects controls whether a resume zeroes the
	// consecutive-reject counter (true, the safe default) or leaves it to
	// decay naturally.
	ResumeResetsRejects bool
}

// DefaultConfig returns the default escalation policy.
func DefaultConfig() Config {
	return Config{
		KillSwitchCriticalThreshold: 3,
		ConsecutiveRejectThreshold:  3,
		Cooldown:                    15 * time.Minute,
		BusOutageGrace:              5 * time.Minute,
		ResumeResetsRejects:         true,
	}
}

// Outcome is the result of deciding one cycle.
type Outcome struct {
	Status        state.Mode
	Action        PortfolioAction
	CriticalCount int
	WarningCount  int
}

// Engine aggregates findings into a status and portfolio action, applying
// the escalation and recovery rules against the governor state. Decide is
// deterministic: identical findings, state, and clock always produce the
// same outcome and state mutation.
type Engine struct {
	cfg Config
}

// NewEngine creates a decision engine with the given policy.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Decide computes the cycle outcome and mutates st accordingly. The caller
// holds the cycle mutex; no other goroutine observes st during Decide.
//
// Escalation order: kill switch on the critical threshold (regardless of
// prior mode), then soft pause on any critical, an exceeded reject counter,
// or a sustained bus outage, then resume when a paused governor has cooled
// down through a clean cycle. KillSwitch is terminal here: only an external
// clear (via ManualReview) leaves it, because a false resume is worse than
// staying paused.
func (e *Engine) Decide(findings []gates.Finding, st *state.GovernorState, now time.Time) Outcome {
	critical, warning := gates.CountBySeverity(findings)

	out := Outcome{
		CriticalCount: critical,
		WarningCount:  warning,
	}

	switch {
	case critical >= e.cfg.KillSwitchCriticalThreshold:
		// Re-asserts idempotently when already in kill switch.
		out.Action = ActionKillSwitch
		st.Transition(state.ModeKillSwitch, now)

	case st.Mode == state.ModeKillSwitch || st.Mode == state.ModeManualReview:
		// Terminal until externally cleared. Sub-threshold criticals (a
		// stale snapshot included) emit no fresh action here: the bots were
		// already halted when the switch engaged, so holding the kill state
		// is the fail-closed outcome and a soft_pause would only downgrade
		// it.
		out.Action = ActionNone

	case critical > 0 ||
		st.ConsecutiveRejects >= e.cfg.ConsecutiveRejectThreshold ||
		st.BusOutageExceeds(now, e.cfg.BusOutageGrace):
		out.Action = ActionSoftPause
		st.Transition(state.ModeSoftPause, now)
		st.CooldownUntil = now.Add(e.cfg.Cooldown)

	case st.Mode == state.ModeSoftPause && st.CooldownElapsed(now) && critical == 0 && warning == 0:
		out.Action = ActionResume
		st.Transition(state.ModeNormal, now)
		st.CooldownUntil = time.Time{}
		if e.cfg.ResumeResetsRejects {
			st.ConsecutiveRejects = 0
		}

	default:
		out.Action = ActionNone
		if st.Mode == state.ModeNormal && warning > 0 {
			st.Transition(state.ModeWarning, now)
		} else if st.Mode == state.ModeWarning && warning == 0 {
			st.Transition(state.ModeNormal, now)
		}
	}

	e.updateRejectCounter(critical, st)

	out.Status = st.Mode
	return out
}

// updateRejectCounter advances the consecutive-reject counter after the
// decision is taken: critical cycles push it up, clean cycles let it decay
// so a sustained clean stretch can reach the resume path.
func (e *Engine) updateRejectCounter(critical int, st *state.GovernorState) {
	if critical > 0 {
		st.ConsecutiveRejects++
		return
	}
	if st.ConsecutiveRejects > 0 {
		st.ConsecutiveRejects--
	}
}
