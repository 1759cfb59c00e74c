// Package blobstore defines logical blobs: byte-addressable streams of arbitrary size,
// built on top of a block store.
package blobstore

import (
	"context"

	"github.com/oneconcern/cryptfs/pkg/blockstore"
	"github.com/oneconcern/cryptfs/pkg/errors"
)

var (
	// ErrBlobNotFound is returned when operating on a handle whose blob has been removed
	ErrBlobNotFound = errors.New("blob not found")

	// ErrCorruptTree is returned when the blocks of a blob are inconsistent
	ErrCorruptTree = errors.New("corrupt blob tree")
)

// Blob is a handle on a logical blob. Handles are safe for concurrent use.
type Blob interface {
	// Key identifies the blob. It never changes over the life of the blob.
	Key() blockstore.Key

	Size(context.Context) (uint64, error)

	// Resize grows (zero-filled) or truncates the blob
	Resize(context.Context, uint64) error

	// ReadAt follows the io.ReaderAt conventions: it returns io.EOF when fewer than len(p) bytes are available
	ReadAt(ctx context.Context, p []byte, off uint64) (int, error)

	// WriteAt writes p at offset off, growing the blob if needed
	WriteAt(ctx context.Context, p []byte, off uint64) error

	// ReadAll returns the whole content of the blob
	ReadAll(context.Context) ([]byte, error)
}

// BlobStore creates, loads and removes blobs.
//
// A missing blob is not an error: Load reports it with a false flag.
type BlobStore interface {
	Create(context.Context) (Blob, error)
	Load(context.Context, blockstore.Key) (Blob, bool, error)
	Remove(context.Context, Blob) error

	// NumBlocks counts the blocks in the underlying block store
	NumBlocks(context.Context) (uint64, error)

	Close() error
	String() string
}
