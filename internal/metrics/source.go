package metrics

import (
	"context"
)

// Source supplies the snapshot for an evaluation cycle. Implementations must
// honor context cancellation; the governor fetches with a hard timeout and
// treats any error as a stale-metrics condition.
type Source interface {
	Fetch(ctx context.Context) (*Snapshot, error)
}

// SourceFunc adapts a plain function to the Source interface.
type SourceFunc func(ctx context.Context) (*Snapshot, error)

// Fetch implements Source
func (f SourceFunc) Fetch(ctx context.Context) (*Snapshot, error) {
	return f(ctx)
}

// StaticSource returns the same snapshot on every fetch. Used in tests and
// for replaying recorded metrics.
type StaticSource struct {
	Snapshot *Snapshot
}

// Fetch implements Source
func (s *StaticSource) Fetch(ctx context.Context) (*Snapshot, error) {
	return s.Snapshot, nil
}
