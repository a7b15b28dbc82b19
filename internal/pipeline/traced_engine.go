package pipeline

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/cfbotcore/pipeline/internal/telemetry"
)

// TracedEngine wraps an Engine, opening a span around every Step call
// so a branch's full apply/compile/test lifecycle is visible as a
// trace in whatever exporter telemetry.Provider is configured with.
type TracedEngine struct {
	*Engine
	Tracer trace.Tracer
}

// NewTracedEngine wraps engine with tracer.
func NewTracedEngine(engine *Engine, tracer trace.Tracer) *TracedEngine {
	return &TracedEngine{Engine: engine, Tracer: tracer}
}

// Step opens a span for this transition, recording the branch's
// pre-transition status and the resulting status/error.
func (t *TracedEngine) Step(ctx context.Context, b *Branch) (*time.Duration, error) {
	ctx, span := t.Tracer.Start(ctx, telemetry.SpanEngineStep,
		trace.WithAttributes(
			attribute.String(telemetry.AttrPatchID, b.PatchID),
			attribute.String(telemetry.AttrBranchID, b.BranchID),
			attribute.String(telemetry.AttrStatus, string(b.Status)),
		),
	)
	defer span.End()

	delay, err := t.Engine.Step(ctx, b)

	span.SetAttributes(attribute.String("branch.status.after", string(b.Status)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return delay, err
}
