// Copyright © 2018 One Concern

package localfs

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/oneconcern/cryptfs/pkg/blockstore"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	sixteenTons   = blockstore.MustNewKey([]byte("sixteentons-0001"))
	seventeenTons = blockstore.MustNewKey([]byte("seventeentons-01"))
	fifteenTons   = blockstore.MustNewKey([]byte("fifteentons-0001"))
)

func setupStore(t testing.TB) (blockstore.BlockStore, afero.Fs, func()) {
	t.Helper()

	fs := afero.NewMemMapFs()
	bs, err := New(fs)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, bs.Store(ctx, sixteenTons, []byte("this is the text")))
	require.NoError(t, bs.Store(ctx, seventeenTons, []byte("this is the text for another thing")))

	return bs, fs, func() { _ = bs.Close() }
}

func TestExists(t *testing.T) {
	bs, _, cleanup := setupStore(t)
	defer cleanup()

	has, err := bs.Exists(context.Background(), sixteenTons)
	require.NoError(t, err)
	require.True(t, has)

	has, err = bs.Exists(context.Background(), fifteenTons)
	require.NoError(t, err)
	require.False(t, has)
}

func TestLoad(t *testing.T) {
	bs, _, cleanup := setupStore(t)
	defer cleanup()

	b, found, err := bs.Load(context.Background(), seventeenTons)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "this is the text for another thing", string(b))

	b, found, err = bs.Load(context.Background(), fifteenTons)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, b)
}

func TestLayout(t *testing.T) {
	bs, fs, cleanup := setupStore(t)
	defer cleanup()

	s := sixteenTons.String()
	exists, err := afero.Exists(fs, filepath.Join(s[:3], s[3:]))
	require.NoError(t, err)
	assert.True(t, exists)

	n, err := bs.NumBlocks(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestStoreOverwrites(t *testing.T) {
	bs, _, cleanup := setupStore(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, bs.Store(ctx, sixteenTons, []byte("here we go once again")))

	b, found, err := bs.Load(ctx, sixteenTons)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "here we go once again", string(b))

	n, err := bs.NumBlocks(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestTryCreate(t *testing.T) {
	bs, _, cleanup := setupStore(t)
	defer cleanup()

	ctx := context.Background()
	created, err := bs.TryCreate(ctx, sixteenTons, []byte("should not overwrite"))
	require.NoError(t, err)
	assert.False(t, created)

	b, _, err := bs.Load(ctx, sixteenTons)
	require.NoError(t, err)
	assert.Equal(t, "this is the text", string(b))

	created, err = bs.TryCreate(ctx, fifteenTons, []byte("fresh"))
	require.NoError(t, err)
	assert.True(t, created)
}

func TestConcurrentTryCreate(t *testing.T) {
	bs, _, cleanup := setupStore(t)
	defer cleanup()

	ctx := context.Background()
	var (
		wg      sync.WaitGroup
		mx      sync.Mutex
		winners int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			created, err := bs.TryCreate(ctx, fifteenTons, []byte("race"))
			assert.NoError(t, err)
			if created {
				mx.Lock()
				winners++
				mx.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, winners)
}

func TestCreateAndRemove(t *testing.T) {
	bs, _, cleanup := setupStore(t)
	defer cleanup()

	ctx := context.Background()
	k, err := bs.Create(ctx, []byte("brand new"))
	require.NoError(t, err)

	removed, err := bs.Remove(ctx, k)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = bs.Remove(ctx, k)
	require.NoError(t, err)
	assert.False(t, removed)

	_, found, err := bs.Load(ctx, k)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestString(t *testing.T) {
	bs, err := New(afero.NewBasePathFs(afero.NewMemMapFs(), "/blocks"))
	require.NoError(t, err)
	assert.Equal(t, "localfs@/blocks", bs.String())
	assert.EqualValues(t, 1024, bs.BlockSizeFromPhysicalBlockSize(1024))
}
