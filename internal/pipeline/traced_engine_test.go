package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/cfbotcore/pipeline/internal/ledger"
)

type alwaysOKDriver struct{}

func (alwaysOKDriver) Begin(_ context.Context, _ *Branch) (bool, error)    { return true, nil }
func (alwaysOKDriver) IsDone(_ context.Context, _ *Branch) (bool, error)   { return true, nil }
func (alwaysOKDriver) DidFail(_ context.Context, _ *Branch) (bool, error)  { return false, nil }
func (alwaysOKDriver) GetDelay(_ context.Context, _ *Branch) *time.Duration { return nil }

type noopNotifier struct{}

func (noopNotifier) BranchUpdated(_ context.Context, _ *Branch) error { return nil }
func (noopNotifier) BranchTested(_ context.Context, _ *Branch) error  { return nil }

func TestTracedEngine_StepDelegatesAndRecordsStatus(t *testing.T) {
	ledgerStore := ledger.NewMemoryStore()
	engine := &Engine{
		Applier:  alwaysOKDriver{},
		Compiler: alwaysOKDriver{},
		Tester:   alwaysOKDriver{},
		Notifier: noopNotifier{},
		Ledger:   ledgerStore,
	}
	traced := NewTracedEngine(engine, noop.NewTracerProvider().Tracer("test"))

	b := &Branch{PatchID: "101", BranchID: "b-101", Status: StatusNew}
	_, err := traced.Step(context.Background(), b)
	require.NoError(t, err)
	assert.Equal(t, StatusApplying, b.Status)
}
