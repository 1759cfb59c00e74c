// Package caching wraps a block store with an in-memory LRU cache.
//
// The cache is read-through and write-through: writes always reach the wrapped store
// before being cached. Operations on the same block are serialized.
package caching

import (
	"context"

	lru "github.com/hashicorp/golang-lru"
	"github.com/im7mortal/kmutex"
	"github.com/oneconcern/cryptfs/pkg/blockstore"
	"github.com/oneconcern/cryptfs/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// New wraps a block store with a cache
func New(base blockstore.BlockStore, opts ...Option) (blockstore.BlockStore, error) {
	c := &cachingStore{
		base:      base,
		cacheSize: DefaultCacheSize,
		blockSize: DefaultBlockSize,
		l:         zap.NewNop(),
		locks:     kmutex.New(),
	}
	for _, apply := range opts {
		apply(c)
	}

	if c.MetricsEnabled() {
		c.m = metrics.NewCacheMetrics("blockcache")
		if err := c.m.Register(c.reg); err != nil {
			return nil, err
		}
	}

	entries := BytesToEntries(c.cacheSize, c.blockSize)
	var err error
	c.lru, err = lru.NewWithEvict(entries, func(key interface{}, _ interface{}) {
		if c.MetricsEnabled() {
			c.m.Evictions.Inc()
		}
	})
	if err != nil {
		return nil, err
	}
	c.l.Debug("block cache ready", zap.Int("entries", entries), zap.Stringer("base", base))

	return c, nil
}

type cachingStore struct {
	metrics.Enable
	base blockstore.BlockStore

	cacheSize int
	blockSize int
	lru       *lru.Cache

	// per-block locks
	locks *kmutex.Kmutex

	l   *zap.Logger
	reg prometheus.Registerer
	m   *metrics.CacheMetrics
}

func clone(data []byte) []byte {
	out := make([]byte, len(data))
	copy(out, data)
	return out
}

func (c *cachingStore) hit() {
	if c.MetricsEnabled() {
		c.m.Hits.Inc()
	}
}

func (c *cachingStore) miss() {
	if c.MetricsEnabled() {
		c.m.Misses.Inc()
	}
}

func (c *cachingStore) Exists(ctx context.Context, key blockstore.Key) (bool, error) {
	if c.lru.Contains(key) {
		return true, nil
	}
	return c.base.Exists(ctx, key)
}

func (c *cachingStore) Create(ctx context.Context, data []byte) (blockstore.Key, error) {
	return blockstore.CreateWithRandomKey(ctx, c, data)
}

func (c *cachingStore) TryCreate(ctx context.Context, key blockstore.Key, data []byte) (bool, error) {
	c.locks.Lock(key)
	defer c.locks.Unlock(key)

	if c.lru.Contains(key) {
		return false, nil
	}
	created, err := c.base.TryCreate(ctx, key, data)
	if err != nil || !created {
		return false, err
	}
	c.lru.Add(key, clone(data))
	return true, nil
}

func (c *cachingStore) Store(ctx context.Context, key blockstore.Key, data []byte) error {
	c.locks.Lock(key)
	defer c.locks.Unlock(key)

	if err := c.base.Store(ctx, key, data); err != nil {
		c.lru.Remove(key)
		return err
	}
	c.lru.Add(key, clone(data))
	return nil
}

func (c *cachingStore) Load(ctx context.Context, key blockstore.Key) ([]byte, bool, error) {
	c.locks.Lock(key)
	defer c.locks.Unlock(key)

	if cached, ok := c.lru.Get(key); ok {
		c.hit()
		return clone(cached.([]byte)), true, nil
	}
	c.miss()

	data, found, err := c.base.Load(ctx, key)
	if err != nil || !found {
		return nil, found, err
	}
	c.lru.Add(key, clone(data))
	return data, true, nil
}

func (c *cachingStore) Remove(ctx context.Context, key blockstore.Key) (bool, error) {
	c.locks.Lock(key)
	defer c.locks.Unlock(key)

	c.lru.Remove(key)
	return c.base.Remove(ctx, key)
}

func (c *cachingStore) NumBlocks(ctx context.Context) (uint64, error) {
	return c.base.NumBlocks(ctx)
}

func (c *cachingStore) BlockSizeFromPhysicalBlockSize(blockSize uint64) uint64 {
	return c.base.BlockSizeFromPhysicalBlockSize(blockSize)
}

func (c *cachingStore) Close() error {
	c.lru.Purge()
	return c.base.Close()
}

func (c *cachingStore) String() string {
	return "cached(" + c.base.String() + ")"
}
