package device

import (
	"time"

	"github.com/juju/mutex/v2"
	"github.com/oneconcern/cryptfs/pkg/blockstore/caching"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const defaultLockDelay = 50 * time.Millisecond

// Option to configure a device
type Option func(*options)

type options struct {
	l         *zap.Logger
	cacheSize int
	reg       prometheus.Registerer
	lockDelay time.Duration
	acquire   func(mutex.Spec) (mutex.Releaser, error)
}

func defaultOptions() options {
	return options{
		l:         zap.NewNop(),
		cacheSize: caching.DefaultCacheSize,
		lockDelay: defaultLockDelay,
		acquire:   mutex.Acquire,
	}
}

// Logger for the device and its storage chain
func Logger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.l = l
		}
	}
}

// CacheSize sets the memory budget of the block cache, in bytes
func CacheSize(size int) Option {
	return func(o *options) {
		if size > 0 {
			o.cacheSize = size
		}
	}
}

// WithMetrics enables metrics for the device and its storage chain, registered on reg
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.reg = reg
	}
}

// LockDelay sets how often the lock guarding root creation is polled
func LockDelay(delay time.Duration) Option {
	return func(o *options) {
		if delay > 0 {
			o.lockDelay = delay
		}
	}
}

// LockAcquirer replaces the cross-process lock guarding root creation
func LockAcquirer(acquire func(mutex.Spec) (mutex.Releaser, error)) Option {
	return func(o *options) {
		if acquire != nil {
			o.acquire = acquire
		}
	}
}
