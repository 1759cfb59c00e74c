// Copyright © 2018 One Concern

// Package device binds a cryptfs configuration to a storage chain and resolves file system paths.
//
// A device owns a blob store built from a raw block store, and the key of the root directory blob.
// It loads, creates and removes blobs, and walks directory blobs down from the root to resolve paths.
package device

import (
	"context"
	"time"

	"github.com/oneconcern/cryptfs/pkg/blobstore"
	"github.com/oneconcern/cryptfs/pkg/blockstore"
	"github.com/oneconcern/cryptfs/pkg/config"
	"github.com/oneconcern/cryptfs/pkg/errors"
	"github.com/oneconcern/cryptfs/pkg/fsblob"
	"github.com/oneconcern/cryptfs/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Device is a mounted cryptfs file system. It is safe for concurrent use.
type Device struct {
	metrics.Enable

	blobs blobstore.BlobStore
	root  blockstore.Key
	l     *zap.Logger

	m               *metrics.IOMetrics
	missingRemovals prometheus.Counter
}

// New builds a device.
//
// The device takes ownership of base. The configuration is only used during construction:
// when it has no root directory yet, a root directory is created and the configuration is saved.
// Concurrent constructions over the same configuration file create a single root directory.
func New(ctx context.Context, cfg *config.Config, base blockstore.BlockStore, opts ...Option) (*Device, error) {
	o := defaultOptions()
	for _, apply := range opts {
		apply(&o)
	}

	blobs, err := buildBlobStore(cfg, base, o)
	if err != nil {
		return nil, err
	}

	d := &Device{
		blobs:           blobs,
		l:               o.l,
		m:               metrics.NewIOMetrics("device"),
		missingRemovals: metrics.Counter("device", "missing_blob_removals", "number of removals of blobs which could not be found"),
	}
	if o.reg != nil {
		d.EnableMetrics(true)
		if err = d.registerMetrics(o.reg); err != nil {
			_ = blobs.Close()
			return nil, err
		}
	}

	if d.root, err = d.resolveRoot(ctx, cfg, o); err != nil {
		_ = blobs.Close()
		return nil, err
	}
	d.l.Info("device ready", zap.Stringer("root", d.root), zap.Stringer("blobs", blobs))
	return d, nil
}

func (d *Device) registerMetrics(reg prometheus.Registerer) (err error) {
	if err = d.m.Register(reg); err != nil {
		return err
	}
	d.missingRemovals, err = metrics.Ensure(reg, d.missingRemovals)
	return err
}

// resolveRoot decodes the root key held by the configuration, or creates the root directory
func (d *Device) resolveRoot(ctx context.Context, cfg *config.Config, o options) (blockstore.Key, error) {
	if !cfg.HasRoot() {
		if err := d.createRoot(ctx, cfg, o); err != nil {
			return blockstore.Key{}, err
		}
	}
	root, err := blockstore.KeyFromString(cfg.RootBlob)
	if err != nil {
		return blockstore.Key{}, ErrDecode.Wrapf("root blob %q: %v", cfg.RootBlob, err)
	}
	return root, nil
}

func (d *Device) createRoot(ctx context.Context, cfg *config.Config, o options) error {
	lock, err := o.lockConfig(cfg.Filename())
	if err != nil {
		return err
	}
	defer lock.Release()

	// another device may have created the root while we were waiting for the lock
	if err = cfg.Reload(); err != nil {
		return err
	}
	if cfg.HasRoot() {
		return nil
	}

	b, err := d.blobs.Create(ctx)
	if err != nil {
		return err
	}
	if _, err = fsblob.InitializeEmptyDir(ctx, b, blockstore.Key{}); err != nil {
		return err
	}
	cfg.RootBlob = b.Key().String()
	if err = cfg.Save(); err != nil {
		return err
	}
	d.l.Info("created root directory", zap.Stringer("root", b.Key()), zap.String("config", cfg.Filename()))
	return nil
}

// RootKey is the key of the root directory blob
func (d *Device) RootKey() blockstore.Key {
	return d.root
}

// CreateBlob creates an empty blob
func (d *Device) CreateBlob(ctx context.Context) (b blobstore.Blob, err error) {
	if d.MetricsEnabled() {
		defer func(t0 time.Time) { d.m.IORecord(t0, "create")(err) }(time.Now())
	}
	return d.blobs.Create(ctx)
}

// LoadBlob loads a blob. A missing blob is reported with a false flag.
func (d *Device) LoadBlob(ctx context.Context, key blockstore.Key) (b blobstore.Blob, found bool, err error) {
	if d.MetricsEnabled() {
		defer func(t0 time.Time) { d.m.IORecord(t0, "load")(err) }(time.Now())
	}
	return d.blobs.Load(ctx, key)
}

// RemoveBlob removes a blob. Removing a missing blob is not an error, but it is logged and counted.
func (d *Device) RemoveBlob(ctx context.Context, key blockstore.Key) (err error) {
	if d.MetricsEnabled() {
		defer func(t0 time.Time) { d.m.IORecord(t0, "remove")(err) }(time.Now())
	}

	b, found, err := d.blobs.Load(ctx, key)
	if err != nil {
		return err
	}
	if found {
		err = d.blobs.Remove(ctx, b)
		if !errors.Is(err, blobstore.ErrBlobNotFound) {
			return err
		}
	}
	d.l.Warn("tried to remove a blob which does not exist", zap.Stringer("blob", key))
	d.missingRemovals.Inc()
	return nil
}

// Statfs is not supported
func (d *Device) Statfs(_ context.Context, path string) error {
	return ErrNotSupported.Wrapf("statfs %s", path)
}

// NumBlocks counts the blocks held by the underlying block store
func (d *Device) NumBlocks(ctx context.Context) (uint64, error) {
	return d.blobs.NumBlocks(ctx)
}

// Close releases the storage chain: the key material is wiped and the block store is closed
func (d *Device) Close() error {
	return d.blobs.Close()
}
