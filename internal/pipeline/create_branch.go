package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/cfbotcore/pipeline/internal/ledger"
	"github.com/cfbotcore/pipeline/internal/log"
	"github.com/cfbotcore/pipeline/internal/queue"
)

// CreateBranch is the re-entrant glue step between dequeuing a
// QueueItem and handing a Branch to the Engine, grounded on
// Workflow.createBranch in the original source. It looks
// up the queue item for patchID, creates (or re-fetches) a Branch row
// with status `new`, and appends the branch's first BranchHistory row
// when newly created.
func CreateBranch(ctx context.Context, q *queue.Queue, branches Store, history ledger.Store, patchID, messageID string) (*Branch, error) {
	item, ok := q.ByPatchID(patchID)
	if !ok {
		return nil, fmt.Errorf("create branch: no queue item for patch %s", patchID)
	}

	existing, ok, err := branches.Get(ctx, patchID)
	if err != nil {
		return nil, fmt.Errorf("create branch: lookup: %w", err)
	}
	if ok {
		log.Debug(log.CatEngine, "re-fetching existing branch", "patch_id", patchID, "branch_id", existing.BranchID)
		return existing, nil
	}

	now := time.Now()
	b := &Branch{
		PatchID:    patchID,
		BranchID:   branchIDFor(patchID, messageID),
		BranchName: fmt.Sprintf("cf/%s", patchID),
		Status:     StatusNew,
		Created:    now,
		Modified:   now,
	}

	if err := branches.Save(ctx, b); err != nil {
		return nil, fmt.Errorf("create branch: save: %w", err)
	}

	if err := history.AppendHistory(ctx, &ledger.BranchHistory{
		PatchID:  b.PatchID,
		BranchID: b.BranchID,
		Status:   string(b.Status),
	}); err != nil {
		log.ErrorErr(log.CatEngine, "failed to append initial branch history row", err, "patch_id", patchID)
	}

	log.Info(log.CatEngine, "branch created", "patch_id", patchID, "branch_id", b.BranchID, "message_id", messageID)
	_ = item // queue item located solely to validate the patch is enqueued
	return b, nil
}

func branchIDFor(patchID, messageID string) string {
	return fmt.Sprintf("%s-%s", patchID, messageID)
}
