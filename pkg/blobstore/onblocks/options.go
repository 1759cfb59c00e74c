package onblocks

import (
	"github.com/docker/go-units"
	"go.uber.org/zap"
)

const (
	// DefaultBlockSize is the default physical size of blocks
	DefaultBlockSize = 32 * units.KiB

	defaultConcurrency = 8
)

// Option to configure the blob store
type Option func(*blobStore)

// BlockSize sets the physical block size, in bytes.
// The size available to blob nodes is derived from it by the underlying block store.
func BlockSize(size uint64) Option {
	return func(s *blobStore) {
		s.physicalBlockSize = size
	}
}

// Concurrency bounds the number of parallel block operations when removing blobs
func Concurrency(n int) Option {
	return func(s *blobStore) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// Logger for the blob store
func Logger(l *zap.Logger) Option {
	return func(s *blobStore) {
		if l != nil {
			s.l = l
		}
	}
}
