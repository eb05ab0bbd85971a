package state

import (
	"time"
)

// Mode is the governor's operating mode. Warning is an informational
// substate of Normal: counters increment but no action is gated by it.
// KillSwitch is terminal until an external clear moves it to ManualReview.
type Mode string

const (
	ModeNormal       Mode = "normal"
	ModeWarning      Mode = "warning"
	ModeSoftPause    Mode = "soft_pause"
	ModeKillSwitch   Mode = "kill_switch"
	ModeManualReview Mode = "manual_review"
)

// IsPaused reports whether the mode blocks new risk-taking.
func (m Mode) IsPaused() bool {
	return m == ModeSoftPause || m == ModeKillSwitch || m == ModeManualReview
}

// GovernorState is the process-wide state of one governor instance. It is
// mutated exclusively inside an evaluation cycle, under the cycle mutex.
type GovernorState struct {
	Mode               Mode      `json:"mode"`
	LastTransition     time.Time `json:"last_transition"`
	ConsecutiveRejects int       `json:"consecutive_rejects"`
	BusOutage          bool      `json:"bus_outage"`
	BusOutageSince     time.Time `json:"bus_outage_since,omitempty"`
	CooldownUntil      time.Time `json:"cooldown_until,omitempty"`
}

// NewGovernorState returns a fresh state in Normal mode.
func NewGovernorState() *GovernorState {
	return &GovernorState{
		Mode:           ModeNormal,
		LastTransition: time.Now().UTC(),
	}
}

// Transition moves the state to the given mode, recording the transition
// time. Returns true when the mode actually changed.
func (s *GovernorState) Transition(mode Mode, now time.Time) bool {
	if s.Mode == mode {
		return false
	}
	s.Mode = mode
	s.LastTransition = now
	return true
}

// CooldownElapsed reports whether the soft-pause cooldown has expired.
func (s *GovernorState) CooldownElapsed(now time.Time) bool {
	return !now.Before(s.CooldownUntil)
}

// MarkBusOutage records the start of a bus outage if one is not already
// being tracked.
func (s *GovernorState) MarkBusOutage(now time.Time) {
	if !s.BusOutage {
		s.BusOutage = true
		s.BusOutageSince = now
	}
}

// ClearBusOutage resets the outage tracking after a successful publish.
func (s *GovernorState) ClearBusOutage() {
	s.BusOutage = false
	s.BusOutageSince = time.Time{}
}

// BusOutageExceeds reports whether a tracked outage has persisted beyond the
// grace period.
func (s *GovernorState) BusOutageExceeds(now time.Time, grace time.Duration) bool {
	return s.BusOutage && now.Sub(s.BusOutageSince) > grace
}

// Copy returns a value copy, used when handing state to reporting code.
func (s *GovernorState) Copy() GovernorState {
	return *s
}
