package encrypted

import (
	"context"
	"testing"

	"github.com/oneconcern/cryptfs/pkg/blockstore"
	"github.com/oneconcern/cryptfs/pkg/blockstore/localfs"
	"github.com/oneconcern/cryptfs/pkg/blockstore/status"
	"github.com/oneconcern/cryptfs/pkg/cipher"
	"github.com/oneconcern/cryptfs/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t testing.TB, name string) (blockstore.BlockStore, blockstore.BlockStore) {
	t.Helper()
	raw, err := localfs.New(afero.NewMemMapFs())
	require.NoError(t, err)

	size, err := cipher.KeySize(name)
	require.NoError(t, err)
	key, err := cipher.CreateKey(cipher.NewPseudoRandom(7), size)
	require.NoError(t, err)
	c, err := cipher.New(name, key)
	require.NoError(t, err)

	return New(raw, c), raw
}

func TestRoundTrip(t *testing.T) {
	for _, name := range cipher.Names() {
		name := name
		t.Run(name, func(t *testing.T) {
			bs, raw := setupStore(t, name)
			ctx := context.Background()

			k, err := bs.Create(ctx, []byte("secret block"))
			require.NoError(t, err)

			stored, found, err := raw.Load(ctx, k)
			require.NoError(t, err)
			require.True(t, found)
			assert.NotContains(t, string(stored), "secret block")
			assert.Equal(t, []byte{1, 0}, stored[:2])

			data, found, err := bs.Load(ctx, k)
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, "secret block", string(data))

			require.NoError(t, bs.Store(ctx, k, []byte("updated")))
			data, _, err = bs.Load(ctx, k)
			require.NoError(t, err)
			assert.Equal(t, "updated", string(data))

			_, found, err = bs.Load(ctx, blockstore.NewRandomKey())
			require.NoError(t, err)
			assert.False(t, found)

			removed, err := bs.Remove(ctx, k)
			require.NoError(t, err)
			assert.True(t, removed)
			has, err := bs.Exists(ctx, k)
			require.NoError(t, err)
			assert.False(t, has)
		})
	}
}

func TestSwappedBlocksFailToDecrypt(t *testing.T) {
	bs, raw := setupStore(t, cipher.AES256GCM)
	ctx := context.Background()

	k1, err := bs.Create(ctx, []byte("first"))
	require.NoError(t, err)
	k2, err := bs.Create(ctx, []byte("second"))
	require.NoError(t, err)

	stored, _, err := raw.Load(ctx, k1)
	require.NoError(t, err)
	require.NoError(t, raw.Store(ctx, k2, stored))

	_, _, err = bs.Load(ctx, k2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrDecryption))
}

func TestCorruptBlocks(t *testing.T) {
	bs, raw := setupStore(t, cipher.AES256GCM)
	ctx := context.Background()

	k := blockstore.NewRandomKey()
	require.NoError(t, raw.Store(ctx, k, []byte{1}))
	_, _, err := bs.Load(ctx, k)
	assert.True(t, errors.Is(err, status.ErrCorruptBlock))

	require.NoError(t, raw.Store(ctx, k, []byte{9, 0, 1, 2, 3}))
	_, _, err = bs.Load(ctx, k)
	assert.True(t, errors.Is(err, status.ErrCorruptBlock))

	require.NoError(t, raw.Store(ctx, k, []byte{1, 0, 1, 2, 3}))
	_, _, err = bs.Load(ctx, k)
	assert.True(t, errors.Is(err, status.ErrDecryption))
}

func TestBlockSize(t *testing.T) {
	bs, _ := setupStore(t, cipher.AES256GCM)
	// 2 bytes header, 12 bytes nonce, 16 bytes tag
	assert.EqualValues(t, 1024-30, bs.BlockSizeFromPhysicalBlockSize(1024))
	assert.Zero(t, bs.BlockSizeFromPhysicalBlockSize(10))
	assert.Equal(t, "encrypted[aes-256-gcm](localfs)", bs.String())
	require.NoError(t, bs.Close())
	require.NoError(t, bs.Close())
}
