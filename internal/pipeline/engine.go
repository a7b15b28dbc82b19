package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/cfbotcore/pipeline/internal/errs"
	"github.com/cfbotcore/pipeline/internal/ledger"
	"github.com/cfbotcore/pipeline/internal/log"
)

// Engine advances a Branch through the attempt lifecycle one
// transition per Step call.
type Engine struct {
	Applier  Applier
	Compiler Compiler
	Tester   Tester
	Notifier Notifier
	Ledger   ledger.Store
}

// Step performs exactly one transition on b, mutating it in place, and
// returns the delay hint the caller should wait before ticking again
// (nil means no automatic re-tick is scheduled).
//
// After every call — regardless of whether status changed — the
// Engine invokes Notifier.BranchUpdated, which appends a BranchHistory
// row. The only other writer of history rows is CreateBranch, which
// appends the initial `new` row for a newly created branch.
func (e *Engine) Step(ctx context.Context, b *Branch) (*time.Duration, error) {
	delay, err := e.step(ctx, b)

	if notifyErr := e.Notifier.BranchUpdated(ctx, b); notifyErr != nil {
		log.ErrorErr(log.CatEngine, "branchUpdated failed; history row may be missing", notifyErr, "patch_id", b.PatchID, "status", b.Status)
	}

	return delay, err
}

func (e *Engine) step(ctx context.Context, b *Branch) (*time.Duration, error) {
	switch b.Status {
	case StatusNew:
		return e.begin(ctx, b, e.Applier, StatusApplying, StatusApplyingAborted)

	case StatusApplying:
		return e.poll(ctx, b, e.Applier, StatusApplied, StatusApplyingFailed)

	case StatusApplied:
		if err := e.Ledger.ClearTasksForBranch(ctx, b.BranchID); err != nil {
			return nil, fmt.Errorf("clear tasks before compiling: %w", err)
		}
		return e.begin(ctx, b, e.Compiler, StatusCompiling, StatusCompilingAborted)

	case StatusCompiling:
		return e.poll(ctx, b, e.Compiler, StatusCompiled, StatusCompilingFailed)

	case StatusCompiled:
		if err := e.Ledger.ClearTasksForBranch(ctx, b.BranchID); err != nil {
			return nil, fmt.Errorf("clear tasks before testing: %w", err)
		}
		return e.begin(ctx, b, e.Tester, StatusTesting, StatusTestingAborted)

	case StatusTesting:
		return e.poll(ctx, b, e.Tester, StatusTested, StatusTestingFailed)

	case StatusTested:
		b.Status = StatusNotifying
		if err := e.Notifier.BranchTested(ctx, b); err != nil {
			log.ErrorErr(log.CatEngine, "branchTested hook failed", err, "patch_id", b.PatchID)
		}
		b.Status = StatusFinished
		return nil, nil

	default:
		if b.Status.IsTerminal() {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: branch %s has unknown status %q", errs.InvalidStateError, b.PatchID, b.Status)
	}
}

// stageDriver is the shape begin/poll need; Applier/Compiler/Tester
// all satisfy it structurally.
type stageDriver interface {
	Begin(ctx context.Context, b *Branch) (bool, error)
	IsDone(ctx context.Context, b *Branch) (bool, error)
	DidFail(ctx context.Context, b *Branch) (bool, error)
	GetDelay(ctx context.Context, b *Branch) *time.Duration
}

func (e *Engine) begin(ctx context.Context, b *Branch, driver stageDriver, onOK, onFail Status) (*time.Duration, error) {
	ok, err := driver.Begin(ctx, b)
	if err != nil {
		log.ErrorErr(log.CatEngine, "stage driver begin errored; treating as abort", err, "patch_id", b.PatchID, "status", b.Status)
		b.Status = onFail
		return nil, nil
	}
	if ok {
		b.Status = onOK
	} else {
		b.Status = onFail
	}
	return nil, nil
}

func (e *Engine) poll(ctx context.Context, b *Branch, driver stageDriver, onOK, onFail Status) (*time.Duration, error) {
	done, err := driver.IsDone(ctx, b)
	if err != nil {
		log.ErrorErr(log.CatEngine, "stage driver isDone errored; treating as failure", err, "patch_id", b.PatchID, "status", b.Status)
		b.Status = onFail
		return nil, nil
	}
	if !done {
		delay := driver.GetDelay(ctx, b)
		return delay, nil
	}

	failed, err := driver.DidFail(ctx, b)
	if err != nil {
		log.ErrorErr(log.CatEngine, "stage driver didFail errored; treating as failure", err, "patch_id", b.PatchID, "status", b.Status)
		b.Status = onFail
		return nil, nil
	}
	if failed {
		b.Status = onFail
	} else {
		b.Status = onOK
	}
	return nil, nil
}
