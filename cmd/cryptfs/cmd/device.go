// Copyright © 2018 One Concern

package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/docker/go-units"
	"github.com/oneconcern/cryptfs/pkg/blockstore"
	"github.com/oneconcern/cryptfs/pkg/blockstore/bdgr"
	"github.com/oneconcern/cryptfs/pkg/blockstore/instrumented"
	"github.com/oneconcern/cryptfs/pkg/blockstore/localfs"
	"github.com/oneconcern/cryptfs/pkg/blockstore/sthree"
	"github.com/oneconcern/cryptfs/pkg/config"
	"github.com/oneconcern/cryptfs/pkg/device"
	opentracing "github.com/opentracing/opentracing-go"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// openBackend opens the raw block store selected by the flags
func openBackend(flags flagsT) (blockstore.BlockStore, error) {
	var (
		bs  blockstore.BlockStore
		err error
	)
	switch flags.root.backend {
	case backendLocalFS, "":
		if err = os.MkdirAll(flags.root.blocks, 0700); err != nil {
			return nil, err
		}
		bs, err = localfs.New(afero.NewBasePathFs(afero.NewOsFs(), flags.root.blocks))
	case backendBadger:
		bs, err = bdgr.Open(flags.root.blocks)
	case backendS3:
		bucket, prefix := flags.root.blocks, ""
		if i := strings.IndexByte(bucket, '/'); i >= 0 {
			bucket, prefix = bucket[:i], bucket[i+1:]
		}
		bs, err = sthree.New(sthree.Bucket(bucket), sthree.Prefix(prefix))
	default:
		return nil, fmt.Errorf("unknown backend %q", flags.root.backend)
	}
	if err != nil {
		return nil, err
	}

	if flags.root.trace {
		bs = instrumented.Instrument(opentracing.GlobalTracer(), logger, bs)
	}
	return bs, nil
}

// openDevice loads or creates the configuration of the file system, then mounts it
func openDevice(ctx context.Context, flags flagsT) (*device.Device, error) {
	cacheSize, err := units.RAMInBytes(flags.root.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("invalid cache size %q: %w", flags.root.cacheSize, err)
	}

	cfg, err := config.NewLoader(config.Logger(logger)).LoadOrCreate(flags.root.config)
	if err != nil {
		return nil, err
	}

	bs, err := openBackend(flags)
	if err != nil {
		return nil, err
	}
	logger.Debug("opening device", zap.String("config", cfg.Filename()), zap.Stringer("blocks", bs))

	opts := []device.Option{
		device.Logger(logger),
		device.CacheSize(int(cacheSize)),
	}
	if flags.root.metrics != "" {
		opts = append(opts, device.WithMetrics(metricsRegistry))
	}
	return device.New(ctx, cfg, bs, opts...)
}

func closeDevice(d *device.Device) {
	if err := d.Close(); err != nil {
		logger.Warn("closing device", zap.Error(err))
	}
}
