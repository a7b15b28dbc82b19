package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingStore struct {
	Store
	gets int
}

func (c *countingStore) Get(ctx context.Context, patchID string) (*Branch, bool, error) {
	c.gets++
	return c.Store.Get(ctx, patchID)
}

func TestCachedStore_RepeatedGetHitsCacheNotInner(t *testing.T) {
	inner := &countingStore{Store: NewMemoryStore()}
	require.NoError(t, inner.Save(context.Background(), &Branch{PatchID: "101", Status: StatusApplying}))

	cached := NewCachedStore(inner)

	_, ok, err := cached.Get(context.Background(), "101")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, inner.gets)

	_, ok, err = cached.Get(context.Background(), "101")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, inner.gets, "second Get should be served from cache")
}

func TestCachedStore_SaveInvalidatesCache(t *testing.T) {
	inner := &countingStore{Store: NewMemoryStore()}
	cached := NewCachedStore(inner)

	b := &Branch{PatchID: "101", Status: StatusApplying}
	require.NoError(t, cached.Save(context.Background(), b))

	_, ok, err := cached.Get(context.Background(), "101")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, inner.gets)

	b.Status = StatusCompiling
	require.NoError(t, cached.Save(context.Background(), b))

	fetched, ok, err := cached.Get(context.Background(), "101")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, StatusCompiling, fetched.Status)
	assert.Equal(t, 2, inner.gets, "Get after Save should refetch from inner store")
}
