package dispatch

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducminhle1904/portfolio-risk-governor/internal/bus"
	"github.com/ducminhle1904/portfolio-risk-governor/internal/decision"
	"github.com/ducminhle1904/portfolio-risk-governor/internal/logger"
)

// fakeAuthority is a scriptable local authority for delivery tests.
type fakeAuthority struct {
	mu       sync.Mutex
	calls    int
	failures int  // fail this many attempts before succeeding
	reject   bool // reject every attempt
}

func (f *fakeAuthority) Apply(ctx context.Context, action Action) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	if f.reject {
		return &RejectionError{Bot: action.Bot, Reason: "position limit reached"}
	}
	if f.calls <= f.failures {
		return fmt.Errorf("connection refused")
	}
	return nil
}

func (f *fakeAuthority) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func fastRetry() RetryConfig {
	return RetryConfig{
		MaxRetries:    2,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

func testDispatcher(t *testing.T, scope []string, authorities map[string]LocalAuthority) *Dispatcher {
	t.Helper()

	log, err := logger.NewLoggerAt(t.TempDir(), "test")
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })

	d, err := NewDispatcher(scope, authorities, fastRetry(), bus.Noop{}, bus.NewHealth(), time.Second, log)
	require.NoError(t, err)
	return d
}

// TestNewDispatcher_EmptyScope tests that an empty approved scope is refused
func TestNewDispatcher_EmptyScope(t *testing.T) {
	_, err := NewDispatcher(nil, nil, fastRetry(), bus.Noop{}, bus.NewHealth(), time.Second, nil)
	assert.Error(t, err)
}

// TestNewDispatcher_DuplicateBot tests that duplicate scope entries are refused
func TestNewDispatcher_DuplicateBot(t *testing.T) {
	authorities := map[string]LocalAuthority{"alpha": &fakeAuthority{}}
	_, err := NewDispatcher([]string{"alpha", "alpha"}, authorities, fastRetry(),
		bus.Noop{}, bus.NewHealth(), time.Second, nil)
	assert.Error(t, err)
}

// TestNewDispatcher_MissingAuthority tests that every in-scope bot needs an authority
func TestNewDispatcher_MissingAuthority(t *testing.T) {
	authorities := map[string]LocalAuthority{"alpha": &fakeAuthority{}}
	_, err := NewDispatcher([]string{"alpha", "beta"}, authorities, fastRetry(),
		bus.Noop{}, bus.NewHealth(), time.Second, nil)
	assert.Error(t, err)
}

// TestNewDispatcher_DefaultsBusHealth tests that an omitted bus health tracker is created
func TestNewDispatcher_DefaultsBusHealth(t *testing.T) {
	authorities := map[string]LocalAuthority{"alpha": &fakeAuthority{}}
	d, err := NewDispatcher([]string{"alpha"}, authorities, fastRetry(),
		bus.Noop{}, nil, time.Second, nil)
	require.NoError(t, err)
	assert.NotNil(t, d.busHealth)
}

// TestBuildActions_OnePerBotWithFreshEventIDs tests the per-bot fan-out
func TestBuildActions_OnePerBotWithFreshEventIDs(t *testing.T) {
	authorities := map[string]LocalAuthority{
		"alpha": &fakeAuthority{},
		"beta":  &fakeAuthority{},
	}
	d := testDispatcher(t, []string{"alpha", "beta"}, authorities)

	actions := d.BuildActions(decision.ActionSoftPause)
	require.Len(t, actions, 2)
	assert.Equal(t, "alpha", actions[0].Bot)
	assert.Equal(t, "beta", actions[1].Bot)

	seen := make(map[string]bool)
	for _, act := range actions {
		assert.Equal(t, decision.ActionSoftPause, act.Action)
		assert.NotEmpty(t, act.EventID)
		assert.False(t, seen[act.EventID], "event ids must be unique")
		seen[act.EventID] = true
	}

	// A second fan-out mints new event ids even for the same decision.
	again := d.BuildActions(decision.ActionSoftPause)
	assert.NotEqual(t, actions[0].EventID, again[0].EventID)
}

// TestValidateScope_RejectsOutOfScope tests scope containment before delivery
func TestValidateScope_RejectsOutOfScope(t *testing.T) {
	authorities := map[string]LocalAuthority{"alpha": &fakeAuthority{}}
	d := testDispatcher(t, []string{"alpha"}, authorities)

	err := d.ValidateScope([]Action{
		{Bot: "alpha", Action: decision.ActionSoftPause, EventID: "e1"},
		{Bot: "intruder", Action: decision.ActionKillSwitch, EventID: "e2"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "intruder")
}

// TestDispatch_DeliversToAllBots tests the happy path across bots
func TestDispatch_DeliversToAllBots(t *testing.T) {
	alpha := &fakeAuthority{}
	beta := &fakeAuthority{}
	d := testDispatcher(t, []string{"alpha", "beta"},
		map[string]LocalAuthority{"alpha": alpha, "beta": beta})

	results := d.Dispatch(context.Background(), d.BuildActions(decision.ActionKillSwitch))

	require.Len(t, results, 2)
	for _, r := range results {
		assert.NoError(t, r.Err)
		assert.Equal(t, 1, r.Attempts)
	}
	assert.Equal(t, 1, alpha.callCount())
	assert.Equal(t, 1, beta.callCount())
}

// TestDispatch_RetriesTransientFailures tests the bounded retry budget
func TestDispatch_RetriesTransientFailures(t *testing.T) {
	flaky := &fakeAuthority{failures: 2}
	d := testDispatcher(t, []string{"alpha"},
		map[string]LocalAuthority{"alpha": flaky})

	results := d.Dispatch(context.Background(), d.BuildActions(decision.ActionSoftPause))

	require.Len(t, results, 1)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, 3, results[0].Attempts)
}

// TestDispatch_ExhaustedBudgetSurfacesFailure tests retry exhaustion
func TestDispatch_ExhaustedBudgetSurfacesFailure(t *testing.T) {
	dead := &fakeAuthority{failures: 100}
	d := testDispatcher(t, []string{"alpha"},
		map[string]LocalAuthority{"alpha": dead})

	results := d.Dispatch(context.Background(), d.BuildActions(decision.ActionSoftPause))

	require.Len(t, results, 1)
	assert.Error(t, results[0].Err)
	assert.False(t, results[0].Rejected)
	assert.Equal(t, 3, results[0].Attempts) // MaxRetries 2 means 3 attempts

	findings := FailureFindings(results)
	require.Len(t, findings, 1)
	assert.Equal(t, "delivery_failed", findings[0].Check)
}

// TestDispatch_RejectionIsNotRetried tests that a rejection settles immediately
func TestDispatch_RejectionIsNotRetried(t *testing.T) {
	rejecting := &fakeAuthority{reject: true}
	d := testDispatcher(t, []string{"alpha"},
		map[string]LocalAuthority{"alpha": rejecting})

	results := d.Dispatch(context.Background(), d.BuildActions(decision.ActionSoftPause))

	require.Len(t, results, 1)
	assert.True(t, results[0].Rejected)
	assert.Equal(t, 1, results[0].Attempts)
	assert.Equal(t, 1, rejecting.callCount())

	// Rejections feed the reject counter, not the finding stream.
	assert.Empty(t, FailureFindings(results))
	assert.Equal(t, 1, CountRejections(results))
}

// TestDispatch_MixedOutcomes tests independent per-bot settlement
func TestDispatch_MixedOutcomes(t *testing.T) {
	ok := &fakeAuthority{}
	rejecting := &fakeAuthority{reject: true}
	dead := &fakeAuthority{failures: 100}
	d := testDispatcher(t, []string{"ok", "rej", "dead"},
		map[string]LocalAuthority{"ok": ok, "rej": rejecting, "dead": dead})

	results := d.Dispatch(context.Background(), d.BuildActions(decision.ActionSoftPause))

	require.Len(t, results, 3)
	byBot := make(map[string]Result)
	for _, r := range results {
		byBot[r.Action.Bot] = r
	}

	assert.NoError(t, byBot["ok"].Err)
	assert.True(t, byBot["rej"].Rejected)
	assert.Error(t, byBot["dead"].Err)
	assert.False(t, byBot["dead"].Rejected)

	assert.Equal(t, 1, CountRejections(results))
	assert.Len(t, FailureFindings(results), 1)
}
