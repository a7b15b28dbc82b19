package compiler

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

func TestLocal_Begin_ConfigureFailureCompletesWithoutNinja(t *testing.T) {
	store := ledger.NewMemoryStore()
	l := &Local{
		Ledger: store,
		run: func(dir, name string, args ...string) (string, string, error) {
			if name == "meson" {
				return "", "configure blew up", errors.New("exit 1")
			}
			t.Fatalf("unexpected command %s", name)
			return "", "", nil
		},
	}

	ok, err := l.Begin(context.Background(), &pipeline.Branch{PatchID: "1", BranchID: "b-1"})
	require.NoError(t, err)
	assert.True(t, ok)

	done, err := l.IsDone(context.Background(), &pipeline.Branch{BranchID: "b-1"})
	require.NoError(t, err)
	assert.True(t, done)

	failed, err := l.DidFail(context.Background(), &pipeline.Branch{BranchID: "b-1"})
	require.NoError(t, err)
	assert.True(t, failed)

	tasks, err := store.TasksForBranch(context.Background(), "b-1")
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "Compile", tasks[0].TaskName)
	assert.Equal(t, ledger.TaskCompleted, tasks[0].Status)
	assert.Equal(t, "Meson Setup", tasks[1].TaskName)
	assert.Equal(t, ledger.TaskFailed, tasks[1].Status)
}

func TestLocal_Begin_ConfigureSuccessRunsNinjaAsync(t *testing.T) {
	store := ledger.NewMemoryStore()
	ninjaStarted := make(chan struct{})
	l := &Local{
		Ledger: store,
		run: func(dir, name string, args ...string) (string, string, error) {
			if name == "meson" {
				return "configured", "", nil
			}
			close(ninjaStarted)
			return "built ok", "", nil
		},
	}

	ok, err := l.Begin(context.Background(), &pipeline.Branch{PatchID: "1", BranchID: "b-2"})
	require.NoError(t, err)
	assert.True(t, ok)

	select {
	case <-ninjaStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("ninja never started")
	}

	require.Eventually(t, func() bool {
		done, err := l.IsDone(context.Background(), &pipeline.Branch{BranchID: "b-2"})
		return err == nil && done
	}, time.Second, 10*time.Millisecond)

	failed, err := l.DidFail(context.Background(), &pipeline.Branch{BranchID: "b-2"})
	require.NoError(t, err)
	assert.False(t, failed)
}

func TestLocal_GetDelay(t *testing.T) {
	l := &Local{}
	d := l.GetDelay(context.Background(), &pipeline.Branch{})
	require.NotNil(t, d)
	assert.Equal(t, 60*time.Second, *d)
}
