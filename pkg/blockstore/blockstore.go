// Copyright © 2018 One Concern

// Package blockstore defines the contract of stores persisting fixed-size blocks,
// as well as their identifiers.
//
// Implementations are layered: a raw backend (localfs, bdgr, sthree) is wrapped by
// a cache (caching), then by an encryption layer (encrypted).
package blockstore

import (
	"context"

	"github.com/oneconcern/cryptfs/pkg/blockstore/status"
)

// maxCreateAttempts bounds the number of random keys tried by CreateWithRandomKey
const maxCreateAttempts = 10

// BlockStore knows how to persist blocks of bytes, keyed by a Key.
//
// A missing block is not an error: Load and Remove report it with a false flag.
// Implementations are safe for concurrent use.
type BlockStore interface {
	// Exists tells if a block is present
	Exists(context.Context, Key) (bool, error)

	// Create stores a new block under a fresh key
	Create(context.Context, []byte) (Key, error)

	// TryCreate stores a new block under the given key, unless a block already exists for it
	TryCreate(context.Context, Key, []byte) (bool, error)

	// Store creates or overwrites a block
	Store(context.Context, Key, []byte) error

	// Load returns the content of a block
	Load(context.Context, Key) ([]byte, bool, error)

	// Remove deletes a block
	Remove(context.Context, Key) (bool, error)

	// NumBlocks counts the blocks held by the store
	NumBlocks(context.Context) (uint64, error)

	// BlockSizeFromPhysicalBlockSize tells how many bytes a caller may store in a block
	// which occupies blockSize bytes in the underlying storage
	BlockSizeFromPhysicalBlockSize(blockSize uint64) uint64

	// Close releases resources
	Close() error

	String() string
}

// CreateWithRandomKey stores data under a fresh random key, retrying on key collisions.
func CreateWithRandomKey(ctx context.Context, store BlockStore, data []byte) (Key, error) {
	for i := 0; i < maxCreateAttempts; i++ {
		key := NewRandomKey()
		created, err := store.TryCreate(ctx, key, data)
		if err != nil {
			return Key{}, err
		}
		if created {
			return key, nil
		}
	}
	return Key{}, status.ErrKeyCollision.Wrapf("after %d attempts on %v", maxCreateAttempts, store)
}
