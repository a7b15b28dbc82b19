package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cfbotcore/pipeline/internal/queue"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestQueueRepo_LoadEmpty(t *testing.T) {
	db := newTestDB(t)
	repo := NewQueueRepo(db)

	q, err := repo.Load(context.Background(), "default")
	require.NoError(t, err)
	require.Equal(t, 0, q.Len())
}

func TestQueueRepo_SaveAndReload(t *testing.T) {
	db := newTestDB(t)
	repo := NewQueueRepo(db)
	ctx := context.Background()

	q := queue.New("default")
	_, err := q.Insert("100", "m100")
	require.NoError(t, err)
	_, err = q.Insert("101", "m101")
	require.NoError(t, err)
	_, err = q.Insert("102", "m102")
	require.NoError(t, err)
	require.NoError(t, q.SetIgnored("101", true))
	require.NoError(t, q.SetLastBaseCommitSHA("100", "deadbeef"))

	require.NoError(t, repo.Save(ctx, q, "default"))

	reloaded, err := repo.Load(ctx, "default")
	require.NoError(t, err)
	require.Equal(t, 3, reloaded.Len())

	item, ok := reloaded.ByPatchID("101")
	require.True(t, ok)
	require.NotNil(t, item.IgnoredAt)

	item, ok = reloaded.ByPatchID("100")
	require.True(t, ok)
	require.Equal(t, "deadbeef", item.LastBaseCommitSHA)

	all := reloaded.All()
	require.Len(t, all, 3)
	require.Nil(t, all[0].Prev)
	require.Nil(t, all[len(all)-1].Next)
}

func TestQueueRepo_SaveOverwritesPreviousState(t *testing.T) {
	db := newTestDB(t)
	repo := NewQueueRepo(db)
	ctx := context.Background()

	q := queue.New("default")
	_, err := q.Insert("200", "m200")
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, q, "default"))

	require.NoError(t, q.Remove(1))
	_, err = q.Insert("201", "m201")
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, q, "default"))

	reloaded, err := repo.Load(ctx, "default")
	require.NoError(t, err)
	require.Equal(t, 1, reloaded.Len())
	_, ok := reloaded.ByPatchID("201")
	require.True(t, ok)
}
