package caching

import (
	"github.com/docker/go-units"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	// DefaultCacheSize is the default memory budget of the cache
	DefaultCacheSize = 64 * units.MiB

	// DefaultBlockSize is the expected size of cached blocks, used to turn the memory budget into a number of entries
	DefaultBlockSize = 32 * units.KiB
)

// Option to configure the cache
type Option func(*cachingStore)

// CacheSize sets the memory budget of the cache, in bytes
func CacheSize(size int) Option {
	return func(c *cachingStore) {
		c.cacheSize = size
	}
}

// BlockSize sets the expected size of cached blocks, in bytes
func BlockSize(size int) Option {
	return func(c *cachingStore) {
		c.blockSize = size
	}
}

// Logger for the cache
func Logger(l *zap.Logger) Option {
	return func(c *cachingStore) {
		if l != nil {
			c.l = l
		}
	}
}

// WithMetrics enables cache metrics, registered on reg
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *cachingStore) {
		c.reg = reg
		c.EnableMetrics(reg != nil)
	}
}

// BytesToEntries converts a memory budget into a number of cache entries (at least one)
func BytesToEntries(size, blockSize int) int {
	if blockSize <= 0 {
		return 1
	}
	n := size / blockSize
	if n < 1 {
		return 1
	}
	return n
}
