// Package ledger implements the Task/Command/Artifact bookkeeping and
// the append-only Branch History. It is the
// store the Engine and stage drivers read and write to track progress
// within a single attempt.
package ledger

import "time"

// TaskStatus mirrors the original's ten-value STATUS_CHOICES. Only the
// four terminal statuses participate in IsDone/IsFailure; the rest
// (CREATED, EXECUTING, NEEDS_APPROVAL, TRIGGERED, SCHEDULED, PAUSED)
// describe in-flight or pre-execution states that the Engine's stage
// drivers pass through before reaching a terminal one.
type TaskStatus string

const (
	TaskCreated       TaskStatus = "CREATED"
	TaskExecuting     TaskStatus = "EXECUTING"
	TaskNeedsApproval TaskStatus = "NEEDS_APPROVAL"
	TaskTriggered     TaskStatus = "TRIGGERED"
	TaskScheduled     TaskStatus = "SCHEDULED"
	TaskPaused        TaskStatus = "PAUSED"
	TaskCompleted     TaskStatus = "COMPLETED"
	TaskFailed        TaskStatus = "FAILED"
	TaskAborted       TaskStatus = "ABORTED"
	TaskErrored       TaskStatus = "ERRORED"
)

var terminalStatuses = map[TaskStatus]bool{
	TaskCompleted: true,
	TaskFailed:    true,
	TaskAborted:   true,
	TaskErrored:   true,
}

var failureStatuses = map[TaskStatus]bool{
	TaskFailed:  true,
	TaskAborted: true,
	TaskErrored: true,
}

// Task is a coarse pipeline step (Download, Apply, Compile, Ninja,
// Test, Run Test). TaskID is the opaque, external-CI-facing identifier
// (distinct from the internal numeric ID).
type Task struct {
	ID       int64
	TaskID   string
	TaskName string
	BranchID string
	Position int
	Status   TaskStatus
	Payload  map[string]any
	Created  time.Time
	Modified time.Time
}

// IsDone reports whether the task has reached any terminal status.
func (t *Task) IsDone() bool { return terminalStatuses[t.Status] }

// IsFailure reports whether the task's terminal status is a failure.
func (t *Task) IsFailure() bool { return failureStatuses[t.Status] }

// Command is one sub-step of a Task: a per-file download, a per-file
// apply, or similar.
type Command struct {
	ID       int64
	TaskID   int64
	Name     string
	Type     string
	Status   TaskStatus
	Duration time.Duration
	Payload  map[string]any
}

// Artifact records one saved output file belonging to a Task.
type Artifact struct {
	ID      int64
	TaskID  int64
	Name    string
	Path    string
	Size    int64
	Body    []byte
	Payload map[string]any
}

// TaskSnapshot is the inlined tuple shape BranchHistory carries for
// every Task live at the time of a transition, matching the original's
// add_branch_to_history side table.
type TaskSnapshot struct {
	TaskID   string         `json:"task_id"`
	TaskName string         `json:"task_name"`
	Status   TaskStatus     `json:"status"`
	Created  time.Time      `json:"created"`
	Modified time.Time      `json:"modified"`
	Payload  map[string]any `json:"payload"`
}

// BranchHistory is one append-only row: a snapshot of Branch fields at
// a transition, plus the task tuples live at that moment.
type BranchHistory struct {
	ID        int64
	PatchID   string
	BranchID  string
	Status    string
	TaskCount int
	Tasks     []TaskSnapshot
	Modified  time.Time
}
