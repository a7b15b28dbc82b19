package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTask_IsDoneIsFailure(t *testing.T) {
	cases := []struct {
		status     TaskStatus
		done, fail bool
	}{
		{TaskCreated, false, false},
		{TaskExecuting, false, false},
		{TaskCompleted, true, false},
		{TaskFailed, true, true},
		{TaskAborted, true, true},
		{TaskErrored, true, true},
	}
	for _, c := range cases {
		task := &Task{Status: c.status}
		assert.Equal(t, c.done, task.IsDone(), c.status)
		assert.Equal(t, c.fail, task.IsFailure(), c.status)
	}
}

func TestMemoryStore_ClearTasksForBranch(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	task := &Task{BranchID: "b1", TaskName: "Compile"}
	require.NoError(t, store.CreateTask(ctx, task))
	cmd := &Command{TaskID: task.ID, Name: "Configure"}
	require.NoError(t, store.CreateCommand(ctx, cmd))

	other := &Task{BranchID: "b2", TaskName: "Compile"}
	require.NoError(t, store.CreateTask(ctx, other))

	require.NoError(t, store.ClearTasksForBranch(ctx, "b1"))

	tasks, err := store.TasksForBranch(ctx, "b1")
	require.NoError(t, err)
	assert.Empty(t, tasks)

	remaining, err := store.TasksForBranch(ctx, "b2")
	require.NoError(t, err)
	assert.Len(t, remaining, 1)

	cmds, err := store.CommandsForTask(ctx, task.ID, "")
	require.NoError(t, err)
	assert.Empty(t, cmds)
}

func TestMemoryStore_HistoryOrderedDescending(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	for _, status := range []string{"new", "applying", "applied"} {
		require.NoError(t, store.AppendHistory(ctx, &BranchHistory{BranchID: "b1", Status: status}))
	}

	hist, err := store.HistoryForBranch(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, hist, 3)
	assert.Equal(t, "applied", hist[0].Status)
}
