package ticker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cfbotcore/pipeline/internal/ledger"
	"github.com/cfbotcore/pipeline/internal/notifier"
	"github.com/cfbotcore/pipeline/internal/pipeline"
	"github.com/cfbotcore/pipeline/internal/queue"
)

type instantDriver struct{}

func (instantDriver) Begin(_ context.Context, _ *pipeline.Branch) (bool, error)    { return true, nil }
func (instantDriver) IsDone(_ context.Context, _ *pipeline.Branch) (bool, error)   { return true, nil }
func (instantDriver) DidFail(_ context.Context, _ *pipeline.Branch) (bool, error)  { return false, nil }
func (instantDriver) GetDelay(_ context.Context, _ *pipeline.Branch) *time.Duration { return nil }

func newTestTicker(t *testing.T) (*Ticker, *queue.Queue, pipeline.Store) {
	t.Helper()
	q := queue.New("default")
	branches := pipeline.NewMemoryStore()
	ledgerStore := ledger.NewMemoryStore()

	n := &notifier.Notifier{Queue: q, Branches: branches, Ledger: ledgerStore}
	engine := &pipeline.Engine{
		Applier:  instantDriver{},
		Compiler: instantDriver{},
		Tester:   instantDriver{},
		Notifier: n,
		Ledger:   ledgerStore,
	}

	return New(q, branches, ledgerStore, engine, time.Second), q, branches
}

func TestTicker_TickCreatesAndAdvancesBranch(t *testing.T) {
	tck, q, branches := newTestTicker(t)
	_, err := q.Insert("101", "m101")
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 8; i++ {
		tck.tick(ctx)
	}

	b, ok, err := branches.Get(ctx, "101")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, pipeline.StatusFinished, b.Status)
}

func TestTicker_IgnoredItemsAreSkipped(t *testing.T) {
	tck, q, branches := newTestTicker(t)
	_, err := q.Insert("101", "m101")
	require.NoError(t, err)
	require.NoError(t, q.SetIgnored("101", true))

	ctx := context.Background()
	tck.tick(ctx)

	_, ok, err := branches.Get(ctx, "101")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTicker_SetInterval(t *testing.T) {
	tck, _, _ := newTestTicker(t)
	tck.SetInterval(5 * time.Second)
	assert.Equal(t, 5*time.Second, tck.currentInterval())
}
