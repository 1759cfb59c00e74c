// Package testutil provides in-memory fixtures shared by tests.
package testutil

import (
	"testing"

	"github.com/oneconcern/cryptfs/pkg/blobstore"
	"github.com/oneconcern/cryptfs/pkg/blobstore/onblocks"
	"github.com/oneconcern/cryptfs/pkg/blockstore"
	"github.com/oneconcern/cryptfs/pkg/blockstore/localfs"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

// SmallBlockSize makes trees grow deep with little data: 64 bytes per leaf, 4 children per inner node
const SmallBlockSize = 8 + 4*blockstore.KeySize

// MemoryBlockStore returns a raw block store backed by an in-memory file system
func MemoryBlockStore(t testing.TB) blockstore.BlockStore {
	t.Helper()
	bs, err := localfs.New(afero.NewMemMapFs())
	require.NoError(t, err)
	return bs
}

// MemoryBlobStore returns a blob store with small blocks, backed by an in-memory file system
func MemoryBlobStore(t testing.TB) blobstore.BlobStore {
	t.Helper()
	bs, err := onblocks.New(MemoryBlockStore(t), onblocks.BlockSize(SmallBlockSize))
	require.NoError(t, err)
	t.Cleanup(func() { _ = bs.Close() })
	return bs
}
