package tester

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cfbotcore/pipeline/internal/ledger"
	"github.com/cfbotcore/pipeline/internal/pipeline"
)

func TestLocal_Begin_TestFailure(t *testing.T) {
	store := ledger.NewMemoryStore()
	l := &Local{
		Ledger: store,
		run: func(dir, name string, args ...string) (string, string, error) {
			return "", "1 test failed", errors.New("exit 1")
		},
	}

	ok, err := l.Begin(context.Background(), &pipeline.Branch{PatchID: "1", BranchID: "b-1"})
	require.NoError(t, err)
	assert.True(t, ok)

	require.Eventually(t, func() bool {
		done, err := l.IsDone(context.Background(), &pipeline.Branch{BranchID: "b-1"})
		return err == nil && done
	}, time.Second, 10*time.Millisecond)

	failed, err := l.DidFail(context.Background(), &pipeline.Branch{BranchID: "b-1"})
	require.NoError(t, err)
	assert.True(t, failed)
}

func TestLocal_Begin_TestSuccess(t *testing.T) {
	store := ledger.NewMemoryStore()
	l := &Local{
		Ledger: store,
		run: func(dir, name string, args ...string) (string, string, error) {
			return "ok", "", nil
		},
	}

	ok, err := l.Begin(context.Background(), &pipeline.Branch{PatchID: "1", BranchID: "b-2"})
	require.NoError(t, err)
	assert.True(t, ok)

	require.Eventually(t, func() bool {
		done, err := l.IsDone(context.Background(), &pipeline.Branch{BranchID: "b-2"})
		return err == nil && done
	}, time.Second, 10*time.Millisecond)

	failed, err := l.DidFail(context.Background(), &pipeline.Branch{BranchID: "b-2"})
	require.NoError(t, err)
	assert.False(t, failed)
}
