// Package pipeline implements the per-branch pipeline state machine
// a deterministic engine that advances a Branch through
// apply -> compile -> test -> notify, one transition per call, driven
// by pluggable stage drivers.
package pipeline

import "time"

// Status is one of the fifteen named Branch states.
type Status string

const (
	StatusNew Status = "new"

	StatusApplying       Status = "applying"
	StatusApplyingFailed  Status = "applying-failed"
	StatusApplyingAborted Status = "applying-aborted"
	StatusApplied        Status = "applied"

	StatusCompiling       Status = "compiling"
	StatusCompilingFailed  Status = "compiling-failed"
	StatusCompilingAborted Status = "compiling-aborted"
	StatusCompiled        Status = "compiled"

	StatusTesting       Status = "testing"
	StatusTestingFailed  Status = "testing-failed"
	StatusTestingAborted Status = "testing-aborted"
	StatusTested        Status = "tested"

	StatusNotifying Status = "notifying"
	StatusFinished  Status = "finished"
)

// terminalStatuses are the statuses the Engine no-ops on.
var terminalStatuses = map[Status]bool{
	StatusFinished:         true,
	StatusApplyingFailed:   true,
	StatusApplyingAborted:  true,
	StatusCompilingFailed:  true,
	StatusCompilingAborted: true,
	StatusTestingFailed:    true,
	StatusTestingAborted:   true,
}

// IsTerminal reports whether status is one of the Engine's no-op states.
func (s Status) IsTerminal() bool { return terminalStatuses[s] }

// Branch is one attempted run of the pipeline against one patch set.
type Branch struct {
	PatchID    string
	BranchID   string
	BranchName string
	Status     Status

	CommitID      string
	ApplyURL      string
	BaseCommitSHA string

	PatchCount     int
	FirstAdditions int
	FirstDeletions int
	AllAdditions   int
	AllDeletions   int

	NeedsRebaseSince *time.Time
	FailingSince     *time.Time

	Version  int
	Created  time.Time
	Modified time.Time
}
