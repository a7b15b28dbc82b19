// Package notifier implements the Notifier: the
// side-effects that run after every Engine transition (persisting a
// BranchHistory row, flipping queue-item ignored/rebase/failing
// bookkeeping) plus the outbound hook invoked once a Branch reaches
// `tested`.
package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cfbotcore/pipeline/internal/ledger"
	"github.com/cfbotcore/pipeline/internal/log"
	"github.com/cfbotcore/pipeline/internal/pipeline"
	"github.com/cfbotcore/pipeline/internal/queue"
)

var compileFailureStatuses = map[pipeline.Status]bool{
	pipeline.StatusCompilingAborted: true,
	pipeline.StatusCompilingFailed:  true,
}

var testFailureStatuses = map[pipeline.Status]bool{
	pipeline.StatusTestingAborted: true,
	pipeline.StatusTestingFailed:  true,
}

var baseCommitCaptureStatuses = map[pipeline.Status]bool{
	pipeline.StatusCompiled:        true,
	pipeline.StatusCompilingFailed: true,
}

// Notifier implements pipeline.Notifier against a Queue, a Branch
// store, and a Ledger, plus an outbound Sink used for the tested hook.
type Notifier struct {
	Queue   *queue.Queue
	Branches pipeline.Store
	Ledger  ledger.Store
	Sink    Sink
}

// BranchUpdated writes the BranchHistory row for every Engine step
// (pipeline.CreateBranch writes the initial row of a new branch). It
// applies the exact status-triggered side effects from the original
// Notifier.notify_branch_update before persisting the branch and
// appending the history row.
func (n *Notifier) BranchUpdated(ctx context.Context, b *pipeline.Branch) error {
	now := time.Now()

	switch {
	case compileFailureStatuses[b.Status]:
		b.NeedsRebaseSince = &now
		b.FailingSince = &now
		n.ignoreQueueItem(b.PatchID)
	case testFailureStatuses[b.Status]:
		b.NeedsRebaseSince = nil
		b.FailingSince = &now
		n.ignoreQueueItem(b.PatchID)
	}

	if baseCommitCaptureStatuses[b.Status] {
		if err := n.Queue.SetLastBaseCommitSHA(b.PatchID, b.BaseCommitSHA); err != nil {
			log.Warn(log.CatNotifier, "failed to propagate base commit sha to queue item", "patch_id", b.PatchID, "error", err.Error())
		}
	}

	b.Modified = now
	if err := n.Branches.Save(ctx, b); err != nil {
		return fmt.Errorf("notifier: save branch: %w", err)
	}

	return n.appendHistory(ctx, b)
}

func (n *Notifier) ignoreQueueItem(patchID string) {
	if err := n.Queue.SetIgnored(patchID, true); err != nil {
		log.Warn(log.CatNotifier, "failed to mark queue item ignored", "patch_id", patchID, "error", err.Error())
	}
}

// appendHistory snapshots the branch plus every current Task, inlining
// the task tuples as JSON per the original's add_branch_to_history.
func (n *Notifier) appendHistory(ctx context.Context, b *pipeline.Branch) error {
	tasks, err := n.Ledger.TasksForBranch(ctx, b.BranchID)
	if err != nil {
		return fmt.Errorf("notifier: list tasks for history: %w", err)
	}

	snapshots := make([]ledger.TaskSnapshot, 0, len(tasks))
	for _, t := range tasks {
		snapshots = append(snapshots, ledger.TaskSnapshot{
			TaskID:   t.TaskID,
			TaskName: t.TaskName,
			Status:   t.Status,
			Created:  t.Created,
			Modified: t.Modified,
			Payload:  t.Payload,
		})
	}

	return n.Ledger.AppendHistory(ctx, &ledger.BranchHistory{
		PatchID:   b.PatchID,
		BranchID:  b.BranchID,
		Status:    string(b.Status),
		TaskCount: len(tasks),
		Tasks:     snapshots,
	})
}

// BranchTested is the hook for outbound notification (email/webhook);
// the core has no required side-effects here beyond firing the Sink.
func (n *Notifier) BranchTested(ctx context.Context, b *pipeline.Branch) error {
	if n.Sink == nil {
		return nil
	}
	return n.Sink.Notify(ctx, b)
}

// MarshalTaskSnapshots is exposed for storage layers that persist the
// history-tasks side table as a JSON column, matching the original's
// commitfest_cfbotbranchhistorytask table.
func MarshalTaskSnapshots(snapshots []ledger.TaskSnapshot) ([]byte, error) {
	return json.Marshal(snapshots)
}
