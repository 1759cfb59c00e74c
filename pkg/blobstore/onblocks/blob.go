package onblocks

import (
	"context"

	"github.com/oneconcern/cryptfs/pkg/blobstore"
	"github.com/oneconcern/cryptfs/pkg/blockstore"
)

// blob is a handle on a tree. Every operation reloads the root, so that handles on the same blob never go stale.
type blob struct {
	store *blobStore
	key   blockstore.Key
}

func (b *blob) Key() blockstore.Key {
	return b.key
}

func (b *blob) withRoot(ctx context.Context, fn func(*node) error) error {
	b.store.locks.Lock(b.key)
	defer b.store.locks.Unlock(b.key)

	root, found, err := b.store.loadNode(ctx, b.key)
	if err != nil {
		return err
	}
	if !found {
		return blobstore.ErrBlobNotFound.Wrapf("blob %v", b.key)
	}
	return fn(root)
}

func (b *blob) Size(ctx context.Context) (uint64, error) {
	var size uint64
	err := b.withRoot(ctx, func(root *node) error {
		var err error
		size, err = b.store.size(ctx, root)
		return err
	})
	return size, err
}

func (b *blob) Resize(ctx context.Context, size uint64) error {
	return b.withRoot(ctx, func(root *node) error {
		return b.store.resize(ctx, root, size)
	})
}

func (b *blob) ReadAt(ctx context.Context, p []byte, off uint64) (int, error) {
	var n int
	err := b.withRoot(ctx, func(root *node) error {
		var err error
		n, err = b.store.readAt(ctx, root, p, off)
		return err
	})
	return n, err
}

func (b *blob) WriteAt(ctx context.Context, p []byte, off uint64) error {
	return b.withRoot(ctx, func(root *node) error {
		return b.store.writeAt(ctx, root, p, off)
	})
}

func (b *blob) ReadAll(ctx context.Context) ([]byte, error) {
	var data []byte
	err := b.withRoot(ctx, func(root *node) error {
		size, err := b.store.size(ctx, root)
		if err != nil {
			return err
		}
		data = make([]byte, size)
		_, err = b.store.readAt(ctx, root, data, 0)
		return err
	})
	return data, err
}

func (b *blob) String() string {
	return b.key.String()
}
