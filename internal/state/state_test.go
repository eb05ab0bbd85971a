package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTransition_RecordsChange tests that mode changes stamp the transition time
func TestTransition_RecordsChange(t *testing.T) {
	st := NewGovernorState()
	now := time.Now().UTC().Add(time.Hour)

	changed := st.Transition(ModeSoftPause, now)
	assert.True(t, changed)
	assert.Equal(t, ModeSoftPause, st.Mode)
	assert.Equal(t, now, st.LastTransition)

	// Re-asserting the same mode is a no-op.
	changed = st.Transition(ModeSoftPause, now.Add(time.Minute))
	assert.False(t, changed)
	assert.Equal(t, now, st.LastTransition)
}

// TestIsPaused tests which modes block new risk-taking
func TestIsPaused(t *testing.T) {
	assert.False(t, ModeNormal.IsPaused())
	assert.False(t, ModeWarning.IsPaused())
	assert.True(t, ModeSoftPause.IsPaused())
	assert.True(t, ModeKillSwitch.IsPaused())
	assert.True(t, ModeManualReview.IsPaused())
}

// TestBusOutageTracking tests outage marking, grace comparison, and clearing
func TestBusOutageTracking(t *testing.T) {
	st := NewGovernorState()
	now := time.Now().UTC()

	st.MarkBusOutage(now)
	assert.True(t, st.BusOutage)

	// A second mark keeps the original start.
	st.MarkBusOutage(now.Add(time.Minute))
	assert.Equal(t, now, st.BusOutageSince)

	assert.False(t, st.BusOutageExceeds(now.Add(time.Minute), 5*time.Minute))
	assert.True(t, st.BusOutageExceeds(now.Add(6*time.Minute), 5*time.Minute))

	st.ClearBusOutage()
	assert.False(t, st.BusOutage)
	assert.False(t, st.BusOutageExceeds(now.Add(time.Hour), 0))
}

// TestCooldownElapsed tests the resume-eligibility clock
func TestCooldownElapsed(t *testing.T) {
	st := NewGovernorState()
	now := time.Now().UTC()

	st.CooldownUntil = now.Add(10 * time.Minute)
	assert.False(t, st.CooldownElapsed(now))
	assert.True(t, st.CooldownElapsed(now.Add(10*time.Minute)))
}

// TestStore_RoundTrip tests persistence through save and load
func TestStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	store := NewStore(path)

	st := NewGovernorState()
	st.Transition(ModeKillSwitch, time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC))
	st.ConsecutiveRejects = 4
	require.NoError(t, store.Save(st))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, ModeKillSwitch, loaded.Mode)
	assert.Equal(t, 4, loaded.ConsecutiveRejects)
	assert.Equal(t, st.LastTransition, loaded.LastTransition)
}

// TestStore_LoadMissingFile tests that a fresh deployment starts in normal
func TestStore_LoadMissingFile(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "state.json"))

	st, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, ModeNormal, st.Mode)
}

// TestStore_LoadCorruptFile tests that torn state files surface an error
func TestStore_LoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"mode":`), 0644))

	_, err := NewStore(path).Load()
	assert.Error(t, err)
}
