package decision

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ducminhle1904/portfolio-risk-governor/internal/gates"
	"github.com/ducminhle1904/portfolio-risk-governor/internal/state"
)

func criticalFindings(n int) []gates.Finding {
	findings := make([]gates.Finding, n)
	for i := range findings {
		findings[i] = gates.Finding{Severity: gates.SeverityCritical, Check: "test"}
	}
	return findings
}

func warningFindings(n int) []gates.Finding {
	findings := make([]gates.Finding, n)
	for i := range findings {
		findings[i] = gates.Finding{Severity: gates.SeverityWarning, Check: "test"}
	}
	return findings
}

// TestDecide_CleanCycle tests that a clean cycle stays in normal with no action
func TestDecide_CleanCycle(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	st := state.NewGovernorState()

	out := engine.Decide(nil, st, time.Now().UTC())

	assert.Equal(t, ActionNone, out.Action)
	assert.Equal(t, state.ModeNormal, out.Status)
}

// TestDecide_KillSwitchThreshold tests escalation straight to kill switch
func TestDecide_KillSwitchThreshold(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	st := state.NewGovernorState()

	out := engine.Decide(criticalFindings(3), st, time.Now().UTC())

	assert.Equal(t, ActionKillSwitch, out.Action)
	assert.Equal(t, state.ModeKillSwitch, out.Status)
	assert.Equal(t, 3, out.CriticalCount)
}

// TestDecide_KillSwitchIsTerminal tests that nothing short of the threshold leaves kill switch
func TestDecide_KillSwitchIsTerminal(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	st := state.NewGovernorState()
	now := time.Now().UTC()

	engine.Decide(criticalFindings(3), st, now)

	// A long run of clean cycles must not resume a killed portfolio.
	for i := 0; i < 10; i++ {
		now = now.Add(time.Hour)
		out := engine.Decide(nil, st, now)
		assert.Equal(t, ActionNone, out.Action)
		assert.Equal(t, state.ModeKillSwitch, out.Status)
	}
}

// TestDecide_KillSwitchReassertsAtThreshold tests that a killed portfolio
// keeps emitting kill_switch while the breach persists at threshold
func TestDecide_KillSwitchReassertsAtThreshold(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	st := state.NewGovernorState()
	now := time.Now().UTC()

	engine.Decide(criticalFindings(3), st, now)
	engaged := st.LastTransition

	out := engine.Decide(criticalFindings(3), st, now.Add(time.Minute))
	assert.Equal(t, ActionKillSwitch, out.Action)
	assert.Equal(t, state.ModeKillSwitch, out.Status)
	assert.Equal(t, engaged, st.LastTransition, "re-assertion is not a state change")
}

// TestDecide_KillSwitchHoldsOnSubThresholdCritical tests that criticals below
// the threshold keep a killed portfolio held rather than downgrading it
func TestDecide_KillSwitchHoldsOnSubThresholdCritical(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	st := state.NewGovernorState()
	now := time.Now().UTC()

	engine.Decide(criticalFindings(3), st, now)

	// One critical (a stale snapshot, say) would soft-pause a normal
	// portfolio; here the kill state already blocks everything it would.
	out := engine.Decide(criticalFindings(1), st, now.Add(time.Minute))
	assert.Equal(t, ActionNone, out.Action)
	assert.Equal(t, state.ModeKillSwitch, out.Status)
}

// TestDecide_SingleCriticalSoftPauses tests the soft-pause path on one critical finding
func TestDecide_SingleCriticalSoftPauses(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	st := state.NewGovernorState()
	now := time.Now().UTC()

	out := engine.Decide(criticalFindings(1), st, now)

	assert.Equal(t, ActionSoftPause, out.Action)
	assert.Equal(t, state.ModeSoftPause, out.Status)
	assert.Equal(t, now.Add(DefaultConfig().Cooldown), st.CooldownUntil)
}

// TestDecide_RejectCounterSoftPauses tests the consecutive-reject escalation
// path: with a threshold of two, two critical cycles followed by a clean
// cycle still soft-pause, because the counter is inspected before it decays.
func TestDecide_RejectCounterSoftPauses(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConsecutiveRejectThreshold = 2
	engine := NewEngine(cfg)
	st := state.NewGovernorState()
	now := time.Now().UTC()

	engine.Decide(criticalFindings(1), st, now)
	now = now.Add(time.Minute)
	engine.Decide(criticalFindings(1), st, now)
	assert.Equal(t, 2, st.ConsecutiveRejects)

	now = now.Add(time.Minute)
	out := engine.Decide(nil, st, now)
	assert.Equal(t, ActionSoftPause, out.Action)
	assert.Equal(t, state.ModeSoftPause, out.Status)
}

// TestDecide_ResumeAfterCooldown tests the resume path after a clean cooldown
func TestDecide_ResumeAfterCooldown(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	st := state.NewGovernorState()
	now := time.Now().UTC()

	engine.Decide(criticalFindings(1), st, now)
	assert.Equal(t, state.ModeSoftPause, st.Mode)

	now = now.Add(DefaultConfig().Cooldown)
	out := engine.Decide(nil, st, now)

	assert.Equal(t, ActionResume, out.Action)
	assert.Equal(t, state.ModeNormal, out.Status)
	assert.Equal(t, 0, st.ConsecutiveRejects)
	assert.True(t, st.CooldownUntil.IsZero())
}

// TestDecide_NoResumeBeforeCooldown tests that resume waits out the cooldown
func TestDecide_NoResumeBeforeCooldown(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	st := state.NewGovernorState()
	now := time.Now().UTC()

	engine.Decide(criticalFindings(1), st, now)

	out := engine.Decide(nil, st, now.Add(time.Minute))
	assert.Equal(t, ActionNone, out.Action)
	assert.Equal(t, state.ModeSoftPause, out.Status)
}

// TestDecide_NoResumeWithWarnings tests that warnings block the resume path
func TestDecide_NoResumeWithWarnings(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	st := state.NewGovernorState()
	now := time.Now().UTC()

	engine.Decide(criticalFindings(1), st, now)

	now = now.Add(2 * DefaultConfig().Cooldown)
	out := engine.Decide(warningFindings(1), st, now)
	assert.Equal(t, ActionNone, out.Action)
	assert.Equal(t, state.ModeSoftPause, out.Status)
}

// TestDecide_WarningSubstate tests the normal/warning informational substate
func TestDecide_WarningSubstate(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	st := state.NewGovernorState()
	now := time.Now().UTC()

	out := engine.Decide(warningFindings(2), st, now)
	assert.Equal(t, ActionNone, out.Action)
	assert.Equal(t, state.ModeWarning, out.Status)
	assert.Equal(t, 2, out.WarningCount)

	out = engine.Decide(nil, st, now.Add(time.Minute))
	assert.Equal(t, state.ModeNormal, out.Status)
}

// TestDecide_BusOutagePastGraceSoftPauses tests the sustained-bus-outage pause condition
func TestDecide_BusOutagePastGraceSoftPauses(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	st := state.NewGovernorState()
	now := time.Now().UTC()

	st.MarkBusOutage(now)

	// Within the grace period the outage is tolerated.
	out := engine.Decide(nil, st, now.Add(time.Minute))
	assert.Equal(t, ActionNone, out.Action)

	out = engine.Decide(nil, st, now.Add(DefaultConfig().BusOutageGrace+time.Minute))
	assert.Equal(t, ActionSoftPause, out.Action)
	assert.Equal(t, state.ModeSoftPause, out.Status)
}

// TestDecide_Deterministic tests that identical inputs produce identical outcomes
func TestDecide_Deterministic(t *testing.T) {
	now := time.Now().UTC()
	findings := criticalFindings(2)

	run := func() (Outcome, state.GovernorState) {
		engine := NewEngine(DefaultConfig())
		st := state.NewGovernorState()
		st.LastTransition = now
		out := engine.Decide(findings, st, now)
		return out, *st
	}

	out1, st1 := run()
	out2, st2 := run()
	assert.Equal(t, out1, out2)
	assert.Equal(t, st1, st2)
}
