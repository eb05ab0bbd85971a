package bus

import (
	"context"
	"sync"
	"time"
)

// Publisher mirrors governor output onto a message bus. Both topics carry
// non-authoritative copies of the durable audit file: publish failure
// degrades observability, never correctness.
type Publisher interface {
	// PublishIntent publishes one execution-intent-shaped message derived
	// from a dispatched action.
	PublishIntent(ctx context.Context, payload interface{}) error

	// PublishAudit publishes a full audit record mirror.
	PublishAudit(ctx context.Context, payload interface{}) error

	Close() error
}

// Noop discards everything. Used when no bus is configured.
type Noop struct{}

// PublishIntent implements Publisher
func (Noop) PublishIntent(ctx context.Context, payload interface{}) error { return nil }

// PublishAudit implements Publisher
func (Noop) PublishAudit(ctx context.Context, payload interface{}) error { return nil }

// Close implements Publisher
func (Noop) Close() error { return nil }

// Health tracks publish outcomes across goroutines. Publication is
// fire-and-forget relative to the cycle, so results land here and the next
// cycle folds them into the decision.
type Health struct {
	mu     sync.Mutex
	outage bool
	since  time.Time
}

// NewHealth creates a healthy tracker.
func NewHealth() *Health {
	return &Health{}
}

// RecordFailure marks the bus as down, keeping the original outage start.
func (h *Health) RecordFailure(now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.outage {
		h.outage = true
		h.since = now
	}
}

// RecordSuccess clears any tracked outage.
func (h *Health) RecordSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.outage = false
	h.since = time.Time{}
}

// Snapshot returns the current outage flag and start time.
func (h *Health) Snapshot() (bool, time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.outage, h.since
}
