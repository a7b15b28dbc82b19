package pipeline

import (
	"context"
	"time"

	"github.com/cfbotcore/pipeline/internal/storage/cache"
)

const branchCacheTTL = 30 * time.Second

// CachedStore fronts a Store with an in-memory read-through cache keyed
// by patch-id, invalidated on every Save. The Ticker looks up every
// queued branch on every tick (through CreateBranch and before each
// Step), so caching branches that have not changed since their last
// Save avoids a sqlite round trip.
type CachedStore struct {
	inner   Store
	manager cache.Manager[string, *Branch]
	rtc     *cache.ReadThroughCache[string, *Branch, string]
}

// NewCachedStore wraps inner with a read-through cache.
func NewCachedStore(inner Store) *CachedStore {
	manager := cache.NewInMemoryManager[string, *Branch]("branch", cache.DefaultExpiration, cache.DefaultCleanupInterval)
	return &CachedStore{
		inner:   inner,
		manager: manager,
		rtc: cache.NewReadThroughCache[string, *Branch, string](manager, func(ctx context.Context, patchID string) (*Branch, error) {
			b, _, err := inner.Get(ctx, patchID)
			return b, err
		}, false),
	}
}

func (c *CachedStore) Get(ctx context.Context, patchID string) (*Branch, bool, error) {
	b, err := c.rtc.Get(ctx, patchID, patchID, branchCacheTTL)
	if err != nil {
		return nil, false, err
	}
	return b, b != nil, nil
}

func (c *CachedStore) Save(ctx context.Context, b *Branch) error {
	if err := c.inner.Save(ctx, b); err != nil {
		return err
	}
	return c.manager.Delete(ctx, b.PatchID)
}
