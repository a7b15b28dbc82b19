package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cfbotcore/pipeline/internal/ledger"
	"github.com/cfbotcore/pipeline/internal/queue"
)

func TestCreateBranch_NewAndIdempotent(t *testing.T) {
	ctx := context.Background()
	q := queue.New("t")
	_, err := q.Insert("101", "msg-a")
	require.NoError(t, err)

	branches := NewMemoryStore()
	ledgerStore := ledger.NewMemoryStore()

	b1, err := CreateBranch(ctx, q, branches, ledgerStore, "101", "msg-a")
	require.NoError(t, err)
	assert.Equal(t, StatusNew, b1.Status)

	hist, err := ledgerStore.HistoryForBranch(ctx, b1.BranchID)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, "new", hist[0].Status)

	b2, err := CreateBranch(ctx, q, branches, ledgerStore, "101", "msg-a")
	require.NoError(t, err)
	assert.Equal(t, b1.BranchID, b2.BranchID)

	hist, err = ledgerStore.HistoryForBranch(ctx, b1.BranchID)
	require.NoError(t, err)
	assert.Len(t, hist, 1, "re-fetching an existing branch must not append history")
}

func TestCreateBranch_UnknownPatchErrors(t *testing.T) {
	ctx := context.Background()
	q := queue.New("t")
	_, err := CreateBranch(ctx, q, NewMemoryStore(), ledger.NewMemoryStore(), "999", "m")
	assert.Error(t, err)
}
