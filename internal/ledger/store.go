package ledger

import "context"

// Store is the persistence boundary for Tasks, Commands, Artifacts and
// Branch History. internal/storage/sqlite provides the reference
// implementation; internal/ledger.NewMemoryStore provides an in-memory
// fake for stage-driver unit tests.
type Store interface {
	CreateTask(ctx context.Context, t *Task) error
	UpdateTask(ctx context.Context, t *Task) error
	TasksForBranch(ctx context.Context, branchID string) ([]*Task, error)
	FirstTaskByName(ctx context.Context, branchID, taskName string) (*Task, error)
	ClearTasksForBranch(ctx context.Context, branchID string) error

	CreateCommand(ctx context.Context, c *Command) error
	UpdateCommand(ctx context.Context, c *Command) error
	CommandsForTask(ctx context.Context, taskID int64, commandType string) ([]*Command, error)

	CreateArtifact(ctx context.Context, a *Artifact) error

	AppendHistory(ctx context.Context, h *BranchHistory) error
	HistoryForBranch(ctx context.Context, branchID string) ([]*BranchHistory, error)
}
