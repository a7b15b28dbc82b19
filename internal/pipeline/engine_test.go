package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cfbotcore/pipeline/internal/ledger"
)

// fakeDriver is a stage driver whose begin/isDone/didFail outcomes are
// scripted per test, avoiding any real git/meson/ninja invocation.
type fakeDriver struct {
	beginResult   bool
	isDoneResult  bool
	didFailResult bool
	delay         *time.Duration
	calls         []string
}

func (f *fakeDriver) Begin(_ context.Context, _ *Branch) (bool, error) {
	f.calls = append(f.calls, "begin")
	return f.beginResult, nil
}
func (f *fakeDriver) IsDone(_ context.Context, _ *Branch) (bool, error) {
	f.calls = append(f.calls, "isDone")
	return f.isDoneResult, nil
}
func (f *fakeDriver) DidFail(_ context.Context, _ *Branch) (bool, error) {
	f.calls = append(f.calls, "didFail")
	return f.didFailResult, nil
}
func (f *fakeDriver) GetDelay(_ context.Context, _ *Branch) *time.Duration {
	return f.delay
}

type recordingNotifier struct {
	updates int
	tested  int
}

func (n *recordingNotifier) BranchUpdated(_ context.Context, _ *Branch) error {
	n.updates++
	return nil
}
func (n *recordingNotifier) BranchTested(_ context.Context, _ *Branch) error {
	n.tested++
	return nil
}

func newHappyEngine() (*Engine, *recordingNotifier) {
	notifier := &recordingNotifier{}
	return &Engine{
		Applier:  &fakeDriver{beginResult: true, isDoneResult: true, didFailResult: false},
		Compiler: &fakeDriver{beginResult: true, isDoneResult: true, didFailResult: false},
		Tester:   &fakeDriver{beginResult: true, isDoneResult: true, didFailResult: false},
		Notifier: notifier,
		Ledger:   ledger.NewMemoryStore(),
	}, notifier
}

func TestEngine_SinglePatchHappyPath(t *testing.T) {
	engine, notifier := newHappyEngine()
	b := &Branch{PatchID: "101", BranchID: "b-101", Status: StatusNew}
	ctx := context.Background()

	wantSequence := []Status{
		StatusApplying, StatusApplied, StatusCompiling, StatusCompiled,
		StatusTesting, StatusTested, StatusFinished,
	}

	for i, want := range wantSequence {
		_, err := engine.Step(ctx, b)
		require.NoError(t, err)
		assert.Equal(t, want, b.Status, "step %d", i+1)
	}

	assert.Equal(t, len(wantSequence), notifier.updates)
	assert.Equal(t, 1, notifier.tested)

	// Terminal: further steps are no-ops with nil delay.
	delay, err := engine.Step(ctx, b)
	require.NoError(t, err)
	assert.Nil(t, delay)
	assert.Equal(t, StatusFinished, b.Status)
}

func TestEngine_CompileFailure(t *testing.T) {
	engine, _ := newHappyEngine()
	engine.Compiler = &fakeDriver{beginResult: true, isDoneResult: true, didFailResult: true}

	b := &Branch{PatchID: "5", BranchID: "b-5", Status: StatusApplied}
	ctx := context.Background()

	_, err := engine.Step(ctx, b) // begin compiling
	require.NoError(t, err)
	assert.Equal(t, StatusCompiling, b.Status)

	_, err = engine.Step(ctx, b) // isDone -> didFail
	require.NoError(t, err)
	assert.Equal(t, StatusCompilingFailed, b.Status)
	assert.True(t, b.Status.IsTerminal())
}

func TestEngine_ApplyAbortedWhenBeginFails(t *testing.T) {
	engine, _ := newHappyEngine()
	engine.Applier = &fakeDriver{beginResult: false}

	b := &Branch{PatchID: "9", BranchID: "b-9", Status: StatusNew}
	delay, err := engine.Step(context.Background(), b)
	require.NoError(t, err)
	assert.Nil(t, delay)
	assert.Equal(t, StatusApplyingAborted, b.Status)
}

func TestEngine_NotDoneYetReturnsDelay(t *testing.T) {
	engine, _ := newHappyEngine()
	d := 60 * time.Second
	engine.Compiler = &fakeDriver{isDoneResult: false, delay: &d}

	b := &Branch{PatchID: "1", BranchID: "b-1", Status: StatusCompiling}
	delay, err := engine.Step(context.Background(), b)
	require.NoError(t, err)
	require.NotNil(t, delay)
	assert.Equal(t, d, *delay)
	assert.Equal(t, StatusCompiling, b.Status)
}

func TestEngine_UnknownStatusIsInvalidState(t *testing.T) {
	engine, _ := newHappyEngine()
	b := &Branch{PatchID: "1", BranchID: "b-1", Status: Status("bogus")}
	_, err := engine.Step(context.Background(), b)
	assert.Error(t, err)
}

func TestEngine_ConcurrentBranchesIndependent(t *testing.T) {
	engine, _ := newHappyEngine()
	ctx := context.Background()
	b1 := &Branch{PatchID: "1", BranchID: "b-1", Status: StatusNew}
	b2 := &Branch{PatchID: "2", BranchID: "b-2", Status: StatusNew}

	for i := 0; i < 6; i++ {
		_, err := engine.Step(ctx, b1)
		require.NoError(t, err)
		_, err = engine.Step(ctx, b2)
		require.NoError(t, err)
	}

	assert.Equal(t, StatusTested, b1.Status)
	assert.Equal(t, StatusTested, b2.Status)
}
