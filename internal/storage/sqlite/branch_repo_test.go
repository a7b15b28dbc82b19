package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cfbotcore/pipeline/internal/pipeline"
)

func TestBranchRepo_GetMissing(t *testing.T) {
	db := newTestDB(t)
	repo := NewBranchRepo(db)

	b, ok, err := repo.Get(context.Background(), "nope")
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, b)
}

func TestBranchRepo_SaveAndGet(t *testing.T) {
	db := newTestDB(t)
	repo := NewBranchRepo(db)
	ctx := context.Background()

	b := &pipeline.Branch{
		PatchID:    "101",
		BranchID:   "b-101",
		BranchName: "cf/101",
		Status:     pipeline.StatusApplying,
	}
	require.NoError(t, repo.Save(ctx, b))
	require.Equal(t, 1, b.Version)

	fetched, ok, err := repo.Get(ctx, "101")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, pipeline.StatusApplying, fetched.Status)
	require.Equal(t, 1, fetched.Version)
}

func TestBranchRepo_SaveUpsertsAndIncrementsVersion(t *testing.T) {
	db := newTestDB(t)
	repo := NewBranchRepo(db)
	ctx := context.Background()

	b := &pipeline.Branch{PatchID: "101", BranchID: "b-101", Status: pipeline.StatusApplying}
	require.NoError(t, repo.Save(ctx, b))

	b.Status = pipeline.StatusCompilingFailed
	now := time.Now().UTC()
	b.FailingSince = &now
	require.NoError(t, repo.Save(ctx, b))
	require.Equal(t, 2, b.Version)

	fetched, ok, err := repo.Get(ctx, "101")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, pipeline.StatusCompilingFailed, fetched.Status)
	require.NotNil(t, fetched.FailingSince)
	require.Equal(t, 2, fetched.Version)
}
