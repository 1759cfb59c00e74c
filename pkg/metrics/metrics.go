// Package metrics provides shared prometheus collectors for cryptfs components.
//
// Collectors are created unregistered. Components register them lazily on the
// registerer they are given, and registering the same metric twice reuses the
// collector registered first.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes all cryptfs metrics
const Namespace = "cryptfs"

// Enable equips any type with some capabilities to collect metrics in a very concise way.
//
// Sample usage:
//
//	type myType struct{
//	  metrics.Enable
//	  m *metrics.IOMetrics
//	}
//
//	func (t *myType) Do() {
//	  if t.MetricsEnabled() {
//	    defer t.m.IO(time.Now(), "do")
//	  }
//	}
type Enable struct {
	metricsEnabled bool
}

// MetricsEnabled tells whether metrics are enabled or not
func (e Enable) MetricsEnabled() bool {
	return e.metricsEnabled
}

// EnableMetrics toggles metrics collection
func (e *Enable) EnableMetrics(enabled bool) {
	e.metricsEnabled = enabled
}

// Ensure registers a collector, or returns the equivalent collector registered before.
func Ensure[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if reg == nil {
		return c, nil
	}
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		if existing, ok := already.ExistingCollector.(T); ok {
			return existing, nil
		}
	}
	return c, err
}

// IOMetrics is a common set of metrics reporting about IO activity
type IOMetrics struct {
	Count    *prometheus.CounterVec
	Failures *prometheus.CounterVec
	Timing   *prometheus.HistogramVec
}

// NewIOMetrics builds IO metrics for some subsystem, labeled by operation
func NewIOMetrics(subsystem string) *IOMetrics {
	return &IOMetrics{
		Count: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystem,
			Name:      "io_count",
			Help:      "number of IO requests",
		}, []string{"operation"}),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystem,
			Name:      "io_failures",
			Help:      "number of failed IOs",
		}, []string{"operation"}),
		Timing: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: subsystem,
			Name:      "io_duration_seconds",
			Help:      "response time in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"operation"}),
	}
}

// Register the IO metrics
func (n *IOMetrics) Register(reg prometheus.Registerer) (err error) {
	if n.Count, err = Ensure(reg, n.Count); err != nil {
		return err
	}
	if n.Failures, err = Ensure(reg, n.Failures); err != nil {
		return err
	}
	n.Timing, err = Ensure(reg, n.Timing)
	return err
}

// IO records the count and duration of an IO operation.
//
// Example:
//
//	defer m.IO(time.Now(), "load")
func (n *IOMetrics) IO(start time.Time, operation string) {
	n.Timing.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	n.Count.WithLabelValues(operation).Inc()
}

// Failed records a failure on some IO operation
func (n *IOMetrics) Failed(operation string) {
	n.Failures.WithLabelValues(operation).Inc()
}

// IORecord records all metrics for an IO operation in one deferred call.
//
// Example with deferred error capture:
//
//	defer func(start time.Time) {
//	  m.IORecord(start, "load")(err)
//	}(time.Now())
func (n *IOMetrics) IORecord(start time.Time, operation string) func(error) {
	return func(err error) {
		n.IO(start, operation)
		if err != nil {
			n.Failed(operation)
		}
	}
}

// CacheMetrics reports about cache efficiency
type CacheMetrics struct {
	Hits      prometheus.Counter
	Misses    prometheus.Counter
	Evictions prometheus.Counter
}

// NewCacheMetrics builds cache metrics for some subsystem
func NewCacheMetrics(subsystem string) *CacheMetrics {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		})
	}
	return &CacheMetrics{
		Hits:      counter("cache_hits", "number of cache hits"),
		Misses:    counter("cache_misses", "number of cache misses"),
		Evictions: counter("cache_evictions", "number of entries evicted from the cache"),
	}
}

// Register the cache metrics
func (c *CacheMetrics) Register(reg prometheus.Registerer) (err error) {
	if c.Hits, err = Ensure(reg, c.Hits); err != nil {
		return err
	}
	if c.Misses, err = Ensure(reg, c.Misses); err != nil {
		return err
	}
	c.Evictions, err = Ensure(reg, c.Evictions)
	return err
}

// Counter builds a simple counter for some subsystem
func Counter(subsystem, name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	})
}
