package notifier

import (
	"context"

	"github.com/cfbotcore/pipeline/internal/pipeline"
)

// Sink is the outbound hook BranchTested fires through. Concrete sinks
// live alongside this interface so tests can substitute a recording
// fake.
type Sink interface {
	Notify(ctx context.Context, b *pipeline.Branch) error
}

// MultiSink fans a single notification out to several sinks,
// collecting (but not aborting on) individual failures.
type MultiSink struct {
	Sinks []Sink
}

func (m MultiSink) Notify(ctx context.Context, b *pipeline.Branch) error {
	var firstErr error
	for _, s := range m.Sinks {
		if err := s.Notify(ctx, b); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
