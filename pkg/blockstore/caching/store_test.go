package caching

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/oneconcern/cryptfs/pkg/blockstore"
	"github.com/oneconcern/cryptfs/pkg/blockstore/localfs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStore counts loads reaching the wrapped store
type countingStore struct {
	blockstore.BlockStore
	loads int64
}

func (c *countingStore) Load(ctx context.Context, key blockstore.Key) ([]byte, bool, error) {
	atomic.AddInt64(&c.loads, 1)
	return c.BlockStore.Load(ctx, key)
}

func setupCache(t testing.TB, opts ...Option) (blockstore.BlockStore, *countingStore) {
	t.Helper()
	raw, err := localfs.New(afero.NewMemMapFs())
	require.NoError(t, err)
	base := &countingStore{BlockStore: raw}
	c, err := New(base, opts...)
	require.NoError(t, err)
	return c, base
}

func TestReadThrough(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, base := setupCache(t, WithMetrics(reg))
	ctx := context.Background()

	k := blockstore.NewRandomKey()
	require.NoError(t, base.Store(ctx, k, []byte("stored behind the cache")))

	for i := 0; i < 3; i++ {
		data, found, err := c.Load(ctx, k)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "stored behind the cache", string(data))
	}
	assert.EqualValues(t, 1, atomic.LoadInt64(&base.loads))

	m := c.(*cachingStore).m
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Hits))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Misses))

	_, found, err := c.Load(ctx, blockstore.NewRandomKey())
	require.NoError(t, err)
	assert.False(t, found)
}

func TestWriteThrough(t *testing.T) {
	c, base := setupCache(t)
	ctx := context.Background()

	k, err := c.Create(ctx, []byte("v1"))
	require.NoError(t, err)

	data, found, err := base.BlockStore.Load(ctx, k)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "v1", string(data))

	require.NoError(t, c.Store(ctx, k, []byte("v2")))
	data, _, err = base.BlockStore.Load(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))

	data, _, err = c.Load(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))
	assert.Zero(t, atomic.LoadInt64(&base.loads))

	created, err := c.TryCreate(ctx, k, []byte("v3"))
	require.NoError(t, err)
	assert.False(t, created)
}

func TestCachedCopiesAreIsolated(t *testing.T) {
	c, _ := setupCache(t)
	ctx := context.Background()

	payload := []byte("original")
	k, err := c.Create(ctx, payload)
	require.NoError(t, err)
	payload[0] = 'X'

	data, _, err := c.Load(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))

	data[0] = 'Y'
	again, _, err := c.Load(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, "original", string(again))
}

func TestRemove(t *testing.T) {
	c, base := setupCache(t)
	ctx := context.Background()

	k, err := c.Create(ctx, []byte("doomed"))
	require.NoError(t, err)

	removed, err := c.Remove(ctx, k)
	require.NoError(t, err)
	assert.True(t, removed)

	has, err := c.Exists(ctx, k)
	require.NoError(t, err)
	assert.False(t, has)

	_, found, err := c.Load(ctx, k)
	require.NoError(t, err)
	assert.False(t, found)
	assert.EqualValues(t, 1, atomic.LoadInt64(&base.loads))

	removed, err = c.Remove(ctx, k)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestEviction(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, base := setupCache(t, CacheSize(2*1024), BlockSize(1024), WithMetrics(reg))
	ctx := context.Background()

	keys := make([]blockstore.Key, 3)
	for i := range keys {
		var err error
		keys[i], err = c.Create(ctx, []byte{byte(i)})
		require.NoError(t, err)
	}
	m := c.(*cachingStore).m
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Evictions))

	// the first block was evicted and must be fetched again
	data, found, err := c.Load(ctx, keys[0])
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte{0}, data)
	assert.EqualValues(t, 1, atomic.LoadInt64(&base.loads))

	n, err := c.NumBlocks(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}

func TestConcurrentAccess(t *testing.T) {
	c, _ := setupCache(t, CacheSize(4*1024), BlockSize(1024))
	ctx := context.Background()

	keys := make([]blockstore.Key, 16)
	for i := range keys {
		var err error
		keys[i], err = c.Create(ctx, []byte{byte(i)})
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := range keys {
				k := keys[(i+w)%len(keys)]
				data, found, err := c.Load(ctx, k)
				assert.NoError(t, err)
				assert.True(t, found)
				assert.Len(t, data, 1)
			}
		}(w)
	}
	wg.Wait()
}

func TestBytesToEntries(t *testing.T) {
	assert.Equal(t, 1, BytesToEntries(10, 1024))
	assert.Equal(t, 1, BytesToEntries(10, 0))
	assert.Equal(t, 2048, BytesToEntries(DefaultCacheSize, DefaultBlockSize))
	c, _ := setupCache(t)
	assert.Contains(t, c.String(), "cached(localfs")
	require.NoError(t, c.Close())
}
