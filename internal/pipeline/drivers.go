package pipeline

import (
	"context"
	"time"
)

// Applier, Compiler and Tester are the three pluggable stage-driver
// capability interfaces. They share an identical
// method shape by design — begin/isDone/didFail/getDelay — but are
// kept as distinct named interfaces so the Engine and its callers
// cannot accidentally wire a Compiler where a Tester belongs.
type Applier interface {
	Begin(ctx context.Context, b *Branch) (bool, error)
	IsDone(ctx context.Context, b *Branch) (bool, error)
	DidFail(ctx context.Context, b *Branch) (bool, error)
	GetDelay(ctx context.Context, b *Branch) *time.Duration
}

type Compiler interface {
	Begin(ctx context.Context, b *Branch) (bool, error)
	IsDone(ctx context.Context, b *Branch) (bool, error)
	DidFail(ctx context.Context, b *Branch) (bool, error)
	GetDelay(ctx context.Context, b *Branch) *time.Duration
}

type Tester interface {
	Begin(ctx context.Context, b *Branch) (bool, error)
	IsDone(ctx context.Context, b *Branch) (bool, error)
	DidFail(ctx context.Context, b *Branch) (bool, error)
	GetDelay(ctx context.Context, b *Branch) *time.Duration
}

// Notifier is invoked by the Engine after every transition
// (BranchUpdated) and once more when a Branch reaches `tested`
// (BranchTested).
type Notifier interface {
	BranchUpdated(ctx context.Context, b *Branch) error
	BranchTested(ctx context.Context, b *Branch) error
}
