package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestHealth_FailureKeepsOriginalStart tests outage start tracking across failures
func TestHealth_FailureKeepsOriginalStart(t *testing.T) {
	h := NewHealth()
	start := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

	h.RecordFailure(start)
	h.RecordFailure(start.Add(time.Minute))

	outage, since := h.Snapshot()
	assert.True(t, outage)
	assert.Equal(t, start, since)
}

// TestHealth_SuccessClearsOutage tests recovery accounting
func TestHealth_SuccessClearsOutage(t *testing.T) {
	h := NewHealth()
	h.RecordFailure(time.Now().UTC())

	h.RecordSuccess()

	outage, since := h.Snapshot()
	assert.False(t, outage)
	assert.True(t, since.IsZero())
}

// TestNoop tests that the no-op publisher accepts everything
func TestNoop(t *testing.T) {
	var p Publisher = Noop{}

	assert.NoError(t, p.PublishIntent(context.Background(), map[string]string{"bot": "alpha"}))
	assert.NoError(t, p.PublishAudit(context.Background(), struct{ Seq int }{1}))
	assert.NoError(t, p.Close())
}
